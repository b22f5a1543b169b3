package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrQueueEmpty is returned by TryPop when nothing is queued.
	ErrQueueEmpty = errors.New("queue is empty")
	// ErrQueueClosed is returned by Pop after Close.
	ErrQueueClosed = errors.New("queue is closed")
)

// Command is a unit of work for the loop.
type Command interface {
	command()
}

// SendMessage sends Text to the agent as a new turn.
type SendMessage struct {
	Text string
}

// StartNewConversation discards the conversation and reconnects.
type StartNewConversation struct{}

func (SendMessage) command()          {}
func (StartNewConversation) command() {}

// QueuedCommand is a command waiting to be processed.
type QueuedCommand struct {
	// ID is the unique identifier for this command (auto-assigned).
	ID       string
	Command  Command
	QueuedAt time.Time
}

// Queue is the loop's FIFO command queue. It is safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	items  []QueuedCommand
	closed bool
	// notify has one slot; a send means the queue may have changed.
	notify chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Add appends cmd. It returns ErrQueueClosed after Close.
func (q *Queue) Add(cmd Command) (QueuedCommand, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return QueuedCommand{}, ErrQueueClosed
	}
	qc := QueuedCommand{ID: "c-" + uuid.NewString(), Command: cmd, QueuedAt: time.Now()}
	q.items = append(q.items, qc)
	q.mu.Unlock()

	q.signal()
	return qc, nil
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// TryPop removes and returns the oldest command without blocking.
func (q *Queue) TryPop() (QueuedCommand, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		if q.closed {
			return QueuedCommand{}, ErrQueueClosed
		}
		return QueuedCommand{}, ErrQueueEmpty
	}
	qc := q.items[0]
	q.items[0] = QueuedCommand{}
	q.items = q.items[1:]
	return qc, nil
}

// Pop removes and returns the oldest command, waiting until one is queued,
// ctx ends or the queue is closed.
func (q *Queue) Pop(ctx context.Context) (QueuedCommand, error) {
	for {
		qc, err := q.TryPop()
		if !errors.Is(err, ErrQueueEmpty) {
			return qc, err
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return QueuedCommand{}, ctx.Err()
		}
	}
}

// Len returns the number of queued commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close wakes waiters; queued commands can still be popped.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}
