package tokenize

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	errQueueClosed  = errors.New("queue closed")
	errQueueTimeout = errors.New("queue wait timed out")
)

// lineQueue is an unbounded FIFO fed by the stdout reader goroutine. push
// never blocks; pop waits for a line, close, ctx or timeout. It supports one
// consumer at a time, which Mecab guarantees with its mutex.
type lineQueue struct {
	mu     sync.Mutex
	lines  []string
	closed bool
	ready  chan struct{}
}

func newLineQueue() *lineQueue {
	return &lineQueue{ready: make(chan struct{}, 1)}
}

func (q *lineQueue) push(line string) {
	q.mu.Lock()
	q.lines = append(q.lines, line)
	q.mu.Unlock()
	q.signal()
}

func (q *lineQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *lineQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// pop returns the oldest line. Lines queued before close are still
// delivered; errQueueClosed is returned only once the queue is drained.
func (q *lineQueue) pop(ctx context.Context, timeout time.Duration) (string, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	for {
		q.mu.Lock()
		if len(q.lines) > 0 {
			line := q.lines[0]
			q.lines[0] = ""
			q.lines = q.lines[1:]
			q.mu.Unlock()
			return line, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return "", errQueueClosed
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			return "", ctx.Err()
		case <-expired:
			return "", errQueueTimeout
		}
	}
}
