package s2s

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// writeBatchSize bounds how many queued lines are concatenated
	// into a single transport write.
	writeBatchSize = 64
	// idleBackoff is the drain interval once the queue has emptied.
	idleBackoff = 200 * time.Millisecond
	// busyBackoff is the drain interval while lines remain queued.
	// Keeping it well under idleBackoff flushes promptly under load
	// without tripping peer-side flood protection.
	busyBackoff = 10 * time.Millisecond
)

// writeQueue buffers outbound lines and drains them onto the
// transport in bounded batches at a bounded rate.
type writeQueue struct {
	mu      sync.Mutex
	lines   []string
	w       io.Writer
	clk     clock.Clock
	closed  bool
	onError func(error)
}

func newWriteQueue(w io.Writer, clk clock.Clock, onError func(error)) *writeQueue {
	return &writeQueue{w: w, clk: clk, onError: onError}
}

// setWriter binds the drain target. Lines enqueued earlier stay
// buffered until the first drain after binding.
func (q *writeQueue) setWriter(w io.Writer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.w = w
}

// enqueue appends one terminated line to the queue.
func (q *writeQueue) enqueue(line string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrSessionClosed
	}
	q.lines = append(q.lines, line)
	metricQueueDepth.Set(float64(len(q.lines)))
	return nil
}

// pop removes up to n lines and reports how many remain.
func (q *writeQueue) pop(n int) (batch []string, remaining int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.lines) == 0 {
		return nil, 0
	}
	if n > len(q.lines) {
		n = len(q.lines)
	}
	batch = q.lines[:n:n]
	q.lines = q.lines[n:]
	metricQueueDepth.Set(float64(len(q.lines)))
	return batch, len(q.lines)
}

// run drains the queue until done is closed. Each iteration performs
// at most one transport write, then backs off.
func (q *writeQueue) run(done <-chan struct{}) {
	for {
		batch, remaining := q.pop(writeBatchSize)
		if len(batch) > 0 {
			if err := q.write(batch); err != nil {
				if q.onError != nil {
					q.onError(err)
				}
				return
			}
		}
		backoff := idleBackoff
		if remaining > 0 {
			backoff = busyBackoff
		}
		t := q.clk.Timer(backoff)
		select {
		case <-done:
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// flush writes everything still queued in one final pass. Used on
// graceful disconnect so parting QUIT/SQUIT lines reach the peer.
func (q *writeQueue) flush() error {
	for {
		batch, remaining := q.pop(writeBatchSize)
		if len(batch) == 0 {
			return nil
		}
		if err := q.write(batch); err != nil {
			return err
		}
		if remaining == 0 {
			return nil
		}
	}
}

func (q *writeQueue) write(batch []string) error {
	q.mu.Lock()
	w := q.w
	q.mu.Unlock()
	if w == nil {
		return ErrNotConnected
	}
	_, err := io.WriteString(w, strings.Join(batch, ""))
	if err == nil {
		metricLinesWritten.Add(float64(len(batch)))
	}
	return err
}

// close abandons the queue; anything still buffered is dropped.
func (q *writeQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.lines = nil
	metricQueueDepth.Set(0)
}
