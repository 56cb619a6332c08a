package writer

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mevdschee/tqbulkwriter/batch"
	"github.com/mevdschee/tqbulkwriter/metrics"
	"github.com/mevdschee/tqbulkwriter/parser"
)

// drainTimeout bounds the best-effort final flush during shutdown so a
// dead store cannot hold up termination.
const drainTimeout = 5 * time.Second

// Writer drains the inbound queue on a single goroutine, consolidating
// mergeable requests into batches and applying them to the store in one
// multi-statement execution per flush. Accepted requests are applied
// at-least-once per attempt; a batch that exhausts its retry budget is
// logged and discarded.
type Writer struct {
	cfg   Config
	store Store
	exec  *executor
	acc   *batch.Accumulator

	queue    chan Request
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Writer and starts its loop. The initial connection is
// attempted eagerly; if it fails the writer still runs, and the first
// required write triggers the executor's reconnect loop.
func New(cfg Config, st Store) *Writer {
	ctx, cancel := context.WithCancel(context.Background())

	w := &Writer{
		cfg:   cfg,
		store: st,
		exec: &executor{
			store:             st,
			connectRetryDelay: cfg.ConnectRetryDelay,
			contentionDelay:   cfg.ContentionDelay,
		},
		acc:    batch.New(cfg.MaxValueBytes),
		queue:  make(chan Request, cfg.QueueCapacity),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}

	log.Info("writer connecting to store")
	if err := st.Connect(ctx); err != nil {
		log.WithError(err).Warn("initial store connection failed")
	}

	go w.run()
	return w
}

// Enqueue hands a request to the writer. It blocks while the queue is
// full and returns ErrStopped once the writer has been stopped.
func (w *Writer) Enqueue(req Request) error {
	select {
	case <-w.stopCh:
		return ErrStopped
	default:
	}

	select {
	case w.queue <- req:
		return nil
	case <-w.stopCh:
		return ErrStopped
	}
}

// IsConnected reports whether the store connection is currently usable.
// Safe to call from any goroutine.
func (w *Writer) IsConnected() bool {
	return w.store.Connected()
}

// Stop shuts the writer down and waits for the loop to terminate.
// Pending accumulated entries get one best-effort final flush before
// the store connection is closed. Idempotent.
func (w *Writer) Stop() {
	w.stopOnce.Do(func() {
		// Cancelling first makes an in-flight reconnect loop return
		// instead of blocking shutdown behind a dead store.
		w.cancel()
		close(w.stopCh)
	})
	<-w.doneCh
}

func (w *Writer) run() {
	defer close(w.doneCh)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("writer loop aborted by internal fault")
			w.store.Close()
		}
	}()

	log.Debug("writer loop started")

	lastFlush := time.Now()
	forced := false

	for {
		if forced || time.Since(lastFlush) > w.cfg.BatchTimeWindow ||
			w.acc.Count() >= w.cfg.BatchSizeLimit {
			if w.acc.Count() > 0 {
				w.flush(w.ctx)
			}
			lastFlush = time.Now()
			forced = false
		}

		// The poll timeout doubles as the flush tick: it bounds how long
		// a lone entry can wait before the time trigger fires.
		timer := time.NewTimer(w.cfg.BatchTimeWindow)
		select {
		case <-w.stopCh:
			timer.Stop()
			w.drain()
			return
		case req := <-w.queue:
			timer.Stop()
			if req.IsImmediate() {
				w.executeImmediate(req.Query)
			} else {
				_, force := w.acc.Add(batch.Key{Prefix: req.Prefix, Suffix: req.Suffix}, req.Value)
				if force {
					log.WithField("bytes", w.cfg.MaxValueBytes).
						Debug("merged value over size limit, forcing flush")
					forced = true
				}
			}
		case <-timer.C:
		}
	}
}

// flush renders the accumulated batch into one multi-statement string
// and applies it with the batch retry budget. The accumulator is
// cleared afterwards whether or not the flush succeeded: retrying a
// poison batch forever would stall the queue, so an exhausted budget
// means the batch is logged and discarded.
func (w *Writer) flush(ctx context.Context) {
	stmt, ok := w.acc.Render()
	if !ok {
		return
	}

	count := w.acc.Count()
	log.WithFields(log.Fields{
		"requests": count,
		"keys":     w.acc.Len(),
	}).Trace("flushing batch")

	start := time.Now()
	applied := w.exec.execute(ctx, stmt, w.cfg.BatchRetries)
	metrics.BatchSize.Observe(float64(count))
	metrics.FlushLatency.Observe(time.Since(start).Seconds())

	if applied {
		metrics.FlushTotal.WithLabelValues("success").Inc()
		for _, key := range w.acc.Keys() {
			metrics.StatementsTotal.WithLabelValues(parser.TypeOf(key.Prefix).Label()).Inc()
		}
	} else {
		metrics.FlushTotal.WithLabelValues("dropped").Inc()
		metrics.DroppedTotal.Inc()
		log.WithField("requests", count).Warn("dropping batch after exhausted retries")
	}

	w.acc.Clear()
}

// executeImmediate applies a non-batched statement with its own small
// retry budget. It does not touch the accumulator or the flush timer.
func (w *Writer) executeImmediate(query string) {
	if w.exec.execute(w.ctx, query, w.cfg.ImmediateRetries) {
		metrics.StatementsTotal.WithLabelValues(parser.TypeOf(query).Label()).Inc()
		return
	}
	metrics.DroppedTotal.Inc()
}

// drain performs a best-effort final flush of whatever is accumulated,
// then closes the store connection. The writer's own context is already
// cancelled here, so the flush runs under a short fresh deadline.
func (w *Writer) drain() {
	log.Debug("writer draining")

	if w.acc.Count() > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		w.flush(ctx)
		cancel()
	}

	if err := w.store.Close(); err != nil {
		log.WithError(err).Warn("error closing store connection")
	}
	log.Info("writer stopped")
}
