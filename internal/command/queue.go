// ABOUTME: Thread-safe outbound command queue
// ABOUTME: Many writers enqueue, the supervisor drains one batch per tick
package command

import (
	"sync"

	"github.com/TeaqariaWTF/spmp/internal/protocol"
)

// Queue buffers commands until the next protocol tick. Enqueue never blocks
// and is safe from any goroutine; DrainAll is called only by the connection
// supervisor. A command enqueued before DrainAll lands in that batch in
// enqueue order; one racing a drain lands in that batch or the next, exactly
// once either way.
type Queue struct {
	mu      sync.Mutex
	pending []protocol.Command
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue appends one command.
func (q *Queue) Enqueue(action string, params ...any) {
	q.mu.Lock()
	q.pending = append(q.pending, protocol.Command{Action: action, Params: params})
	q.mu.Unlock()
}

// DrainAll atomically removes and returns everything queued so far.
func (q *Queue) DrainAll() []protocol.Command {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()
	return batch
}

// Len reports how many commands are waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
