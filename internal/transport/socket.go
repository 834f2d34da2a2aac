// ABOUTME: Message-queue transport socket for the spmp server connection
// ABOUTME: Wraps a ZeroMQ DEALER with poll-with-timeout semantics
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
)

// Conn is one session's bidirectional, multipart-framed connection. The
// network loop is its only user; everything else talks to the session
// through the command queue and the state model.
type Conn interface {
	// Send ships one multipart message.
	Send(frames [][]byte) error

	// Poll waits up to timeout for one inbound multipart message. ok is
	// false when the window elapsed with no traffic; err is a transport
	// failure (including a closed connection).
	Poll(timeout time.Duration) (frames [][]byte, ok bool, err error)

	// TryPoll is Poll with a zero window, used to drain queued messages.
	TryPoll() (frames [][]byte, ok bool, err error)

	// Close tears the connection down and unblocks any in-flight Poll.
	Close() error
}

// Dialer opens a Conn to one server endpoint. The controller takes a Dialer
// so tests can substitute an in-memory peer.
type Dialer func(ctx context.Context, addr string) (Conn, error)

type dealerConn struct {
	sock   zmq4.Socket
	cancel context.CancelFunc

	inbox chan [][]byte
	errc  chan error

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects a DEALER socket to addr (tcp://host:port) identified by
// identity, and starts the reader that feeds the inbox.
func Dial(ctx context.Context, addr, identity string) (Conn, error) {
	sctx, cancel := context.WithCancel(ctx)

	sock := zmq4.NewDealer(sctx, zmq4.WithID(zmq4.SocketIdentity(identity)))
	if err := sock.Dial(addr); err != nil {
		cancel()
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	c := &dealerConn{
		sock:   sock,
		cancel: cancel,
		inbox:  make(chan [][]byte, 16),
		errc:   make(chan error, 1),
		closed: make(chan struct{}),
	}
	go c.readLoop()

	return c, nil
}

// readLoop receives multipart messages until the socket dies.
func (c *dealerConn) readLoop() {
	for {
		msg, err := c.sock.Recv()
		if err != nil {
			select {
			case c.errc <- err:
			default:
			}
			return
		}

		select {
		case c.inbox <- msg.Frames:
		case <-c.closed:
			return
		}
	}
}

func (c *dealerConn) Send(frames [][]byte) error {
	select {
	case <-c.closed:
		return fmt.Errorf("send on closed connection")
	default:
	}

	if err := c.sock.Send(zmq4.NewMsgFrom(frames...)); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (c *dealerConn) Poll(timeout time.Duration) ([][]byte, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case frames := <-c.inbox:
		return frames, true, nil
	case err := <-c.errc:
		return nil, false, err
	case <-c.closed:
		return nil, false, fmt.Errorf("poll on closed connection")
	case <-timer.C:
		return nil, false, nil
	}
}

func (c *dealerConn) TryPoll() ([][]byte, bool, error) {
	select {
	case frames := <-c.inbox:
		return frames, true, nil
	case err := <-c.errc:
		return nil, false, err
	default:
		return nil, false, nil
	}
}

func (c *dealerConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.cancel()
		c.sock.Close()
	})
	return nil
}
