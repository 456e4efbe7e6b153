package device

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// commandIDs hands out monotonic ULIDs so commands queued within the same
// millisecond still sort in order.
type commandIDs struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newCommandIDs() *commandIDs {
	return &commandIDs{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *commandIDs) next(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}

// commandQueue is a FIFO of commands for a single device.
type commandQueue []QueuedCommand

func (q *commandQueue) push(cmd QueuedCommand) {
	*q = append(*q, cmd)
}

func (q *commandQueue) pop() (QueuedCommand, bool) {
	if len(*q) == 0 {
		return QueuedCommand{}, false
	}
	cmd := (*q)[0]
	(*q)[0] = QueuedCommand{}
	*q = (*q)[1:]
	return cmd, true
}

func (q commandQueue) len() int {
	return len(q)
}
