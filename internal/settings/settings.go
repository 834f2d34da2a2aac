// ABOUTME: Viper-backed settings store consumed by the connection supervisor
// ABOUTME: Exposes server address and client identity with change notification
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Setting keys.
const (
	KeyServerHost   = "server.host"
	KeyServerPort   = "server.port"
	KeyClientName   = "client.name"
	KeyClientLocale = "client.locale"
)

// DefaultPort is the spmp server's default listen port.
const DefaultPort = 3973

// Store wraps a viper instance. Values are opaque inputs to the client; the
// supervisor re-reads them on every reconnect and subscribes to OnChange to
// reconnect immediately when they are edited externally.
type Store struct {
	v *viper.Viper

	mu  sync.Mutex
	fns []func()
}

// Load builds the store from defaults, an optional config file, and watches
// the file for external edits. An empty configPath falls back to
// $XDG_CONFIG_HOME/spmp/config.yaml and the working directory.
func Load(configPath string) (*Store, error) {
	v := viper.New()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "spmp"
	}

	v.SetDefault(KeyServerHost, "")
	v.SetDefault(KeyServerPort, DefaultPort)
	v.SetDefault(KeyClientName, fmt.Sprintf("%s-spmp", hostname))
	v.SetDefault(KeyClientLocale, "en")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "spmp"))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		logrus.Debugf("settings: no config file found, using defaults")
	}

	s := &Store{v: v}

	v.OnConfigChange(func(fsnotify.Event) {
		logrus.Infof("settings: config file changed")
		s.notify()
	})
	if v.ConfigFileUsed() != "" {
		v.WatchConfig()
	}

	return s, nil
}

// OnChange registers a callback fired after any external settings change.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.fns = append(s.fns, fn)
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.Lock()
	fns := s.fns
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Set overrides one key programmatically (CLI flags, discovery results) and
// notifies subscribers the same way a file edit would.
func (s *Store) Set(key string, value any) {
	s.v.Set(key, value)
	s.notify()
}

// ServerHost returns the configured server host, possibly empty.
func (s *Store) ServerHost() string { return s.v.GetString(KeyServerHost) }

// ServerPort returns the configured server port.
func (s *Store) ServerPort() int { return s.v.GetInt(KeyServerPort) }

// ServerAddr returns the full transport endpoint.
func (s *Store) ServerAddr() string {
	return fmt.Sprintf("tcp://%s:%d", s.ServerHost(), s.ServerPort())
}

// ClientName returns the display name sent in the handshake.
func (s *Store) ClientName() string { return s.v.GetString(KeyClientName) }

// Locale returns the client locale (IETF language tag).
func (s *Store) Locale() string { return s.v.GetString(KeyClientLocale) }
