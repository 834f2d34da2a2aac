// ABOUTME: Connection supervisor for the spmp server session
// ABOUTME: Owns the connect/handshake/poll/reconnect cycle and outbound command flushing
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TeaqariaWTF/spmp/internal/command"
	"github.com/TeaqariaWTF/spmp/internal/playerstate"
	"github.com/TeaqariaWTF/spmp/internal/protocol"
	"github.com/TeaqariaWTF/spmp/internal/transport"
	"github.com/TeaqariaWTF/spmp/internal/version"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Status is the externally observable connection state.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusHandshaking
	StatusConnected
	StatusRejected
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusHandshaking:
		return "handshaking"
	case StatusConnected:
		return "connected"
	case StatusRejected:
		return "handshake-rejected"
	default:
		return "unknown"
	}
}

// Settings is the read side of the externally managed configuration store.
type Settings interface {
	ServerAddr() string
	ClientName() string
	Locale() string
	OnChange(fn func())
}

// Config tunes the supervisor. Zero values pick the protocol defaults.
type Config struct {
	TickInterval     time.Duration // outbound flush cadence, default 100ms
	PollTimeout      time.Duration // liveness window, default 10s
	HandshakeTimeout time.Duration // connect+handshake bound, default 10s
	ClientType       string        // protocol.ClientTypeInteractive by default
	ClientID         string        // random UUID by default
	Dial             transport.Dialer
}

var (
	errPollTimeout      = errors.New("no traffic within poll timeout")
	errHandshakeTimeout = errors.New("no handshake response within timeout")
	errRejected         = errors.New("handshake rejected by server")
	errSessionRestart   = errors.New("session restart requested")
)

// Controller runs the full session lifecycle: connect, handshake, the
// periodic poll/flush loop, and reconnection after timeouts. It is the only
// writer of the state model and the only reader of the command queue.
type Controller struct {
	cfg      Config
	settings Settings
	state    *playerstate.State
	queue    *command.Queue

	restart        chan struct{}
	restartPending atomic.Bool

	mu        sync.RWMutex
	status    Status
	statusFns []func(Status)
}

// New wires a supervisor. The command queue and state model are shared with
// the caller: callers enqueue through the command helpers and read state
// through the model's accessors.
func New(cfg Config, settings Settings, state *playerstate.State, queue *command.Queue) *Controller {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.ClientType == "" {
		cfg.ClientType = protocol.ClientTypeInteractive
	}
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.New().String()
	}

	c := &Controller{
		cfg:      cfg,
		settings: settings,
		state:    state,
		queue:    queue,
		restart:  make(chan struct{}, 1),
		status:   StatusDisconnected,
	}

	settings.OnChange(c.RequestRestart)
	return c
}

// ClientID returns the session identity sent in the handshake.
func (c *Controller) ClientID() string { return c.cfg.ClientID }

// OnStatus registers a callback for connection status transitions.
func (c *Controller) OnStatus(fn func(Status)) {
	c.mu.Lock()
	c.statusFns = append(c.statusFns, fn)
	c.mu.Unlock()
}

// Status returns the current connection status.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Controller) setStatus(s Status) {
	c.mu.Lock()
	if c.status == s {
		c.mu.Unlock()
		return
	}
	c.status = s
	fns := c.statusFns
	c.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// RequestRestart tears down the current session and reconnects with freshly
// read settings. Safe from any goroutine; coalesces repeated requests.
func (c *Controller) RequestRestart() {
	c.restartPending.Store(true)
	select {
	case c.restart <- struct{}{}:
	default:
	}
}

// Run drives the reconnect loop until ctx is cancelled. Transport failures,
// handshake timeouts and poll timeouts are never fatal: each one tears down
// the session and starts over from connecting.
func (c *Controller) Run(ctx context.Context) error {
	defer c.setStatus(StatusDisconnected)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.restartPending.Store(false)
		drainSignal(c.restart)

		addr := c.settings.ServerAddr()
		c.setStatus(StatusConnecting)

		dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		conn, err := c.cfg.Dial(dialCtx, addr)
		cancel()
		if err != nil {
			logrus.Warnf("controller: connect to %s failed: %v", addr, err)
			if !c.waitRetry(ctx) {
				return ctx.Err()
			}
			continue
		}

		err = c.runSession(ctx, conn)
		conn.Close()

		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case c.restartPending.Load():
			logrus.Infof("controller: settings changed, reconnecting")
			continue
		case errors.Is(err, errRejected):
			// Status already surfaced; retry in case the server comes back
			// compatible.
			if !c.waitRetry(ctx) {
				return ctx.Err()
			}
		case err != nil:
			logrus.Warnf("controller: session ended: %v", err)
			if !c.waitRetry(ctx) {
				return ctx.Err()
			}
		}
	}
}

// runSession performs the handshake and then the CONNECTED tick loop. The
// conn is closed by the caller on return.
func (c *Controller) runSession(ctx context.Context, conn transport.Conn) error {
	// Unblock an in-flight poll immediately on shutdown or settings change.
	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-c.restart:
			c.restartPending.Store(true)
			conn.Close()
		case <-sessionDone:
		}
	}()

	if err := c.handshake(conn); err != nil {
		return err
	}

	c.setStatus(StatusConnected)

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		frames, ok, err := conn.Poll(c.cfg.PollTimeout)
		if err != nil {
			if c.restartPending.Load() || ctx.Err() != nil {
				return errSessionRestart
			}
			return fmt.Errorf("poll: %w", err)
		}
		if !ok {
			logrus.Warnf("controller: %v, reconnecting", errPollTimeout)
			return errPollTimeout
		}

		c.applyFrames(frames)
		for {
			more, ok, err := conn.TryPoll()
			if err != nil {
				return fmt.Errorf("poll: %w", err)
			}
			if !ok {
				break
			}
			c.applyFrames(more)
		}

		batch := c.queue.DrainAll()
		out, err := protocol.EncodeCommandFrames(batch)
		if err != nil {
			// A command that cannot serialize is dropped, not fatal.
			logrus.Warnf("controller: %v", err)
			out, _ = protocol.EncodeCommandFrames(nil)
		}
		if err := conn.Send(out); err != nil {
			return fmt.Errorf("flush commands: %w", err)
		}
	}
}

// handshake sends the client identity and waits for the server's single
// reply. Timeouts and malformed replies are retried via reconnect; an
// explicit rejection is surfaced distinctly for the UI.
func (c *Controller) handshake(conn transport.Conn) error {
	c.setStatus(StatusHandshaking)

	frame, err := protocol.EncodeHandshake(protocol.ClientHandshake{
		ClientID:        c.cfg.ClientID,
		Name:            c.settings.ClientName(),
		Type:            c.cfg.ClientType,
		Language:        c.settings.Locale(),
		ClientVersion:   version.Version,
		ProtocolVersion: protocol.ProtocolVersion,
	})
	if err != nil {
		return err
	}
	if err := conn.Send([][]byte{frame}); err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}

	frames, ok, err := conn.Poll(c.cfg.HandshakeTimeout)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	if !ok {
		return errHandshakeTimeout
	}
	if len(frames) == 0 {
		return errHandshakeTimeout
	}

	reply, err := protocol.DecodeServerHandshake(frames[0])
	if err != nil {
		// Malformed reply is handled like a timeout: retry, non-fatal.
		logrus.Warnf("controller: %v", err)
		return errHandshakeTimeout
	}
	if reply.Rejected() {
		logrus.Warnf("controller: server %q rejected handshake: %s", reply.ServerName, *reply.RejectReason)
		c.setStatus(StatusRejected)
		return errRejected
	}

	logrus.Infof("controller: handshake complete with %q (protocol v%d)", reply.ServerName, reply.ProtocolVersion)
	if reply.VolumeLevel > 0 {
		c.state.Apply(protocol.VolumeChanged{Level: reply.VolumeLevel})
	}
	return nil
}

// applyFrames decodes every frame of one multipart message in order and
// applies each event. Malformed frames are skipped and logged; one bad frame
// must not drop an otherwise healthy session.
func (c *Controller) applyFrames(frames [][]byte) {
	for _, frame := range frames {
		ev, err := protocol.DecodeEvent(frame)
		if err != nil {
			logrus.Warnf("controller: skipping frame: %v", err)
			continue
		}
		if ev == nil {
			continue
		}
		c.state.Apply(ev)
	}
}

// waitRetry sleeps one tick before the next connect attempt, waking early on
// a settings change. Returns false when ctx is done.
func (c *Controller) waitRetry(ctx context.Context) bool {
	timer := time.NewTimer(c.cfg.TickInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-c.restart:
		c.restartPending.Store(true)
		return true
	case <-timer.C:
		return true
	}
}

func drainSignal(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
}
