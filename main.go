// ABOUTME: Entry point for the spmp remote playback client
// ABOUTME: Parses CLI flags, wires settings, cache and supervisor, handles shutdown
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/TeaqariaWTF/spmp/internal/command"
	"github.com/TeaqariaWTF/spmp/internal/controller"
	"github.com/TeaqariaWTF/spmp/internal/discovery"
	"github.com/TeaqariaWTF/spmp/internal/playerstate"
	"github.com/TeaqariaWTF/spmp/internal/protocol"
	"github.com/TeaqariaWTF/spmp/internal/settings"
	"github.com/TeaqariaWTF/spmp/internal/statecache"
	"github.com/TeaqariaWTF/spmp/internal/transport"
	"github.com/TeaqariaWTF/spmp/internal/version"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	configPath  = flag.String("config", "", "Config file path (default: user config dir)")
	serverFlag  = flag.String("server", "", "Server host[:port] override (skip mDNS)")
	nameFlag    = flag.String("name", "", "Client display name override")
	headless    = flag.Bool("headless", false, "Identify as a headless controller")
	logFile     = flag.String("log-file", "", "Log file path (default: stderr only)")
	verbose     = flag.Bool("verbose", false, "Enable debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", version.Product, version.Version)
		return
	}

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			logrus.Fatalf("error opening log file: %v", err)
		}
		defer func() { _ = f.Close() }()
		logrus.SetOutput(io.MultiWriter(os.Stderr, f))
	}

	logrus.Infof("Starting %s %s", version.Product, version.Version)

	store, err := settings.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load settings: %v", err)
	}
	if *serverFlag != "" {
		host, port := splitHostPort(*serverFlag)
		store.Set(settings.KeyServerHost, host)
		if port != 0 {
			store.Set(settings.KeyServerPort, port)
		}
	}
	if *nameFlag != "" {
		store.Set(settings.KeyClientName, *nameFlag)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// No configured server: browse for one.
	if store.ServerHost() == "" {
		logrus.Infof("No server configured, starting mDNS discovery...")
		disc := discovery.NewManager()
		disc.Browse()

		select {
		case server := <-disc.Servers():
			store.Set(settings.KeyServerHost, server.Host)
			store.Set(settings.KeyServerPort, server.Port)
		case <-time.After(10 * time.Second):
			logrus.Fatalf("No server found after 10 seconds")
		}
		disc.Stop()
	}

	state := playerstate.New()
	queue := command.New()

	cache := openCache()
	if cache != nil {
		defer cache.Close()
		if snap, ok, err := cache.Load(); err != nil {
			logrus.Warnf("State cache unreadable: %v", err)
		} else if ok {
			state.Restore(snap)
			logrus.Infof("Restored cached state: %d queued songs", len(snap.Queue))
		}
	}

	clientType := protocol.ClientTypeInteractive
	if *headless {
		clientType = protocol.ClientTypeHeadless
	}

	clientID := uuid.New().String()
	ctrl := controller.New(controller.Config{
		ClientType: clientType,
		ClientID:   clientID,
		Dial: func(ctx context.Context, addr string) (transport.Conn, error) {
			return transport.Dial(ctx, addr, clientID)
		},
	}, store, state, queue)

	ctrl.OnStatus(func(s controller.Status) {
		logrus.Infof("Connection: %s", s)
	})

	state.OnEvent(func(ev protocol.Event) {
		switch e := ev.(type) {
		case protocol.SongChanged:
			logrus.Infof("Now playing: %s - %s", e.Song.Artist, e.Song.Title)
		case protocol.PlaybackStateChanged:
			if e.Playing {
				logrus.Infof("Playback resumed")
			} else {
				logrus.Infof("Playback paused")
			}
		}
		if cache != nil && persistable(ev) {
			if err := cache.Save(state.Snapshot()); err != nil {
				logrus.Warnf("State cache write failed: %v", err)
			}
		}
	})

	go func() {
		if err := ctrl.Run(ctx); err != nil && ctx.Err() == nil {
			logrus.Errorf("Supervisor stopped: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logrus.Infof("Shutdown signal received")

	cancel()
	if cache != nil {
		if err := cache.Save(state.Snapshot()); err != nil {
			logrus.Warnf("Final state cache write failed: %v", err)
		}
	}
	logrus.Infof("Stopped")
}

// openCache opens the snapshot cache under the user cache dir. A missing
// cache degrades to a fresh state mirror, never a startup failure.
func openCache() *statecache.Cache {
	dir, err := os.UserCacheDir()
	if err != nil {
		logrus.Warnf("No user cache dir, state cache disabled: %v", err)
		return nil
	}
	dir = filepath.Join(dir, "spmp")
	if err := os.MkdirAll(dir, 0755); err != nil {
		logrus.Warnf("Cannot create %s, state cache disabled: %v", dir, err)
		return nil
	}
	cache, err := statecache.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		logrus.Warnf("State cache disabled: %v", err)
		return nil
	}
	return cache
}

// persistable reports whether an event changes state worth caching. Position
// re-anchors arrive continuously and are not worth a disk write each.
func persistable(ev protocol.Event) bool {
	switch ev.(type) {
	case protocol.PositionChanged, protocol.PlaybackStateChanged:
		return false
	default:
		return true
	}
}

// splitHostPort parses "host" or "host:port" flag values.
func splitHostPort(s string) (string, int) {
	host := s
	port := 0
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			host = s[:i]
			fmt.Sscanf(s[i+1:], "%d", &port)
			break
		}
	}
	return host, port
}
