// Package sink delivers accepted samples to downstream writers without
// blocking the ingestion path.
package sink

import (
	"context"
	"sync"
	"time"

	"telemetry-hub/internal/metrics"
	"telemetry-hub/internal/models"

	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// Record is one normalized row addressed to a device-day log.
type Record struct {
	DeviceID string
	Day      string
	Row      models.SampleRow
}

// NewRecord builds the Record for an accepted sample.
func NewRecord(e models.SampleEvent) Record {
	return Record{DeviceID: e.DeviceID, Day: e.Day(), Row: e.Row()}
}

// Writer persists or forwards a record synchronously.
type Writer interface {
	Name() string
	Write(ctx context.Context, rec Record) error
}

// Submitter accepts records fire-and-forget.
type Submitter interface {
	Submit(rec Record)
}

// Async runs one Writer behind a bounded queue drained by a single worker,
// so records reach the writer in submission order. A full queue drops the
// record.
type Async struct {
	writer  Writer
	queue   chan Record
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsync wraps w with a queue of the given size.
func NewAsync(w Writer, buffer int, m *metrics.Metrics, logger *zap.Logger) *Async {
	if buffer <= 0 {
		buffer = 1
	}
	return &Async{
		writer:  w,
		queue:   make(chan Record, buffer),
		metrics: m,
		logger:  logger.With(zap.String("sink", w.Name())),
		done:    make(chan struct{}),
	}
}

// Start launches the worker. It exits once Close has been called and the
// queue is drained.
func (a *Async) Start(ctx context.Context) {
	go a.run(ctx)
}

// Submit enqueues rec without blocking.
func (a *Async) Submit(rec Record) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.metrics.SinkDropped(a.writer.Name())
		return
	}
	select {
	case a.queue <- rec:
	default:
		a.metrics.SinkDropped(a.writer.Name())
		a.logger.Warn("Sink queue full, dropping sample", zap.String("device_id", rec.DeviceID))
	}
}

// Close stops accepting records and waits for the worker to drain the queue
// or for ctx to expire.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) run(ctx context.Context) {
	defer close(a.done)
	for rec := range a.queue {
		a.write(ctx, rec)
	}
}

func (a *Async) write(ctx context.Context, rec Record) {
	// a cancelled service context must not lose queued rows during drain
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	err := a.writer.Write(wctx, rec)
	a.metrics.SinkWrite(a.writer.Name(), err)
	if err != nil {
		a.logger.Error("Failed to write sample",
			zap.String("device_id", rec.DeviceID),
			zap.String("day", rec.Day),
			zap.Error(err),
		)
	}
}

// Fanout submits every record to each member independently.
type Fanout []Submitter

// Submit implements Submitter.
func (f Fanout) Submit(rec Record) {
	for _, s := range f {
		s.Submit(rec)
	}
}
