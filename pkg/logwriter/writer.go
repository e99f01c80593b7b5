// Package logwriter batches request log records and persists them off the
// request path. Delivery is at-least-once: a failed batch is re-queued at
// the front, in order, and retried on the next flush tick indefinitely.
package logwriter

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pario-ai/warden/pkg/models"
)

// BatchStore persists one batch of records transactionally.
type BatchStore interface {
	PersistBatch(ctx context.Context, recs []models.LogRecord) error
}

// Config parameterizes a Writer.
type Config struct {
	FlushInterval time.Duration // default 500ms
	MaxBatchSize  int           // default 100
}

// Writer owns an in-process queue of log records and a flush timer.
type Writer struct {
	store BatchStore
	cfg   Config

	mu    sync.Mutex
	queue []models.LogRecord

	flushing atomic.Bool
	done     chan struct{}
	wg       sync.WaitGroup
}

// New builds a Writer and starts its flush loop. Call Close to drain and stop.
func New(store BatchStore, cfg Config) *Writer {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 100
	}
	w := &Writer{
		store: store,
		cfg:   cfg,
		done:  make(chan struct{}),
	}
	w.wg.Add(1)
	go w.flushLoop()
	return w
}

// Enqueue appends rec to the in-memory queue. It never performs I/O and
// never blocks the caller on a flush.
func (w *Writer) Enqueue(rec models.LogRecord) {
	w.mu.Lock()
	w.queue = append(w.queue, rec)
	w.mu.Unlock()
}

// Pending returns the number of records awaiting persistence.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// Flush persists queued records. A non-forced flush writes at most one batch
// of MaxBatchSize records; a forced flush loops until the queue is drained.
// Only one flush runs at a time; a Flush invoked while another is in flight
// is a no-op, leaving the work to the next tick.
func (w *Writer) Flush(ctx context.Context, force bool) error {
	if !w.flushing.CompareAndSwap(false, true) {
		return nil
	}
	defer w.flushing.Store(false)

	for {
		batch := w.takeBatch()
		if len(batch) == 0 {
			return nil
		}

		if err := w.store.PersistBatch(ctx, batch); err != nil {
			w.requeueFront(batch)
			log.Printf("logwriter: flush of %d records failed, re-queued: %v", len(batch), err)
			return err
		}

		if !force {
			return nil
		}
	}
}

// Close stops the flush loop and performs one forced flush, draining the
// queue. The proxy's shutdown path calls this before exit.
func (w *Writer) Close(ctx context.Context) error {
	close(w.done)
	w.wg.Wait()
	return w.Flush(ctx, true)
}

func (w *Writer) takeBatch() []models.LogRecord {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := min(len(w.queue), w.cfg.MaxBatchSize)
	if n == 0 {
		return nil
	}
	batch := make([]models.LogRecord, n)
	copy(batch, w.queue[:n])
	w.queue = w.queue[n:]
	return batch
}

// requeueFront restores a failed batch ahead of anything enqueued since,
// preserving the original order.
func (w *Writer) requeueFront(batch []models.LogRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queue = append(batch, w.queue...)
}

func (w *Writer) flushLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			_ = w.Flush(context.Background(), false)
		}
	}
}
