package usagelog

import (
	"context"
	"sync"
	"time"

	"codeberg.org/pdgen/server/internal/logger"
)

// implemented by recorders that can store several entries at once
type batchRecorder interface {
	RecordBatch(ctx context.Context, entries []Entry) error
}

// queues entries in memory and writes them to a backing recorder from a
// background loop, so requests never wait on the database
type BufferedRecorder struct {
	target     Recorder
	interval   time.Duration
	maxPending int

	mu      sync.Mutex
	pending []Entry

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// creates a buffer in front of target. at most maxPending entries are held;
// beyond that the oldest are dropped.
func NewBufferedRecorder(target Recorder, interval time.Duration, maxPending int) *BufferedRecorder {
	return &BufferedRecorder{
		target:     target,
		interval:   interval,
		maxPending: maxPending,
		stopCh:     make(chan struct{}),
	}
}

// begins the background flush loop
func (b *BufferedRecorder) Start() {
	b.wg.Add(1)
	go b.run()
	logger.Info("usage log flusher started", "interval", b.interval.String())
}

// stops the loop after a final flush
func (b *BufferedRecorder) Stop() {
	close(b.stopCh)
	b.wg.Wait()
	logger.Info("usage log flusher stopped")
}

func (b *BufferedRecorder) run() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flushWithTimeout()
		case <-b.stopCh:
			b.flushWithTimeout()
			return
		}
	}
}

func (b *BufferedRecorder) flushWithTimeout() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.Flush(ctx); err != nil {
		logger.ErrorErr(err, "failed to flush usage log")
	}
}

func (b *BufferedRecorder) Record(_ context.Context, entry *Entry) error {
	entry.stamp()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, *entry)
	b.trimLocked()

	return nil
}

// writes everything queued so far. entries that could not be written are
// put back for the next flush.
func (b *BufferedRecorder) Flush(ctx context.Context) error {
	b.mu.Lock()
	entries := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}

	written, err := b.write(ctx, entries)
	if err != nil {
		b.mu.Lock()
		b.pending = append(entries[written:], b.pending...)
		b.trimLocked()
		b.mu.Unlock()

		return err
	}

	logger.Debug("flushed usage log", "entries", written)
	return nil
}

func (b *BufferedRecorder) write(ctx context.Context, entries []Entry) (int, error) {
	if batch, ok := b.target.(batchRecorder); ok {
		if err := batch.RecordBatch(ctx, entries); err != nil {
			return 0, err
		}

		return len(entries), nil
	}

	for i := range entries {
		if err := b.target.Record(ctx, &entries[i]); err != nil {
			return i, err
		}
	}

	return len(entries), nil
}

// flushes first so the result includes requests still in the queue
func (b *BufferedRecorder) Recent(ctx context.Context, subjectID string, limit int) ([]Entry, error) {
	if err := b.Flush(ctx); err != nil {
		return nil, err
	}

	return b.target.Recent(ctx, subjectID, limit)
}

// number of entries waiting for the next flush
func (b *BufferedRecorder) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.pending)
}

func (b *BufferedRecorder) trimLocked() {
	if b.maxPending <= 0 || len(b.pending) <= b.maxPending {
		return
	}

	dropped := len(b.pending) - b.maxPending
	b.pending = b.pending[dropped:]
	logger.Warn("usage log buffer full, dropping oldest entries", "dropped", dropped)
}
