package mirror

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// OpKind names a mirror write.
type OpKind string

const (
	OpSet        OpKind = "set"
	OpHashSet    OpKind = "hash_set"
	OpListAppend OpKind = "list_append"
)

// Op is one queued mirror write.
type Op struct {
	Kind  OpKind
	Key   string
	Field string
	Value string
}

const (
	defaultQueueSize = 1024
	defaultTimeout   = 2 * time.Second
)

// Writer drains mirror writes on a single goroutine so callers never wait on
// the store. Ops are applied in enqueue order. A full queue drops the op; an
// open circuit skips it. Both outcomes are logged and counted, neither is
// reported to the caller that produced the op.
type Writer struct {
	store   Store
	breaker *CircuitBreaker
	logger  *slog.Logger
	metrics *Metrics
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Op
	done   chan struct{}
}

// Option configures a Writer.
type Option func(*Writer)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) {
		w.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(w *Writer) {
		w.metrics = m
	}
}

func WithBreaker(cb *CircuitBreaker) Option {
	return func(w *Writer) {
		w.breaker = cb
	}
}

// WithTimeout bounds each store call.
func WithTimeout(d time.Duration) Option {
	return func(w *Writer) {
		if d > 0 {
			w.timeout = d
		}
	}
}

func WithQueueSize(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.queue = make(chan Op, n)
		}
	}
}

// NewWriter starts a write-behind worker in front of store.
func NewWriter(store Store, opts ...Option) *Writer {
	w := &Writer{
		store:   store,
		breaker: NewCircuitBreaker(5, 30*time.Second),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout: defaultTimeout,
		queue:   make(chan Op, defaultQueueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.run()
	return w
}

// Store returns the underlying store for synchronous reads.
func (w *Writer) Store() Store {
	if w == nil {
		return nil
	}
	return w.store
}

// Healthy reports whether the circuit currently admits store traffic.
// Readers use it to skip restore lookups during an outage.
func (w *Writer) Healthy() bool {
	return w != nil && w.breaker.Allow()
}

// Enqueue schedules op without blocking. Returns false when the op was dropped.
func (w *Writer) Enqueue(op Op) bool {
	if w == nil {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.metrics.observe(op.Kind, "dropped")
		return false
	}
	select {
	case w.queue <- op:
		w.metrics.setDepth(len(w.queue))
		return true
	default:
		w.metrics.observe(op.Kind, "dropped")
		w.logger.Warn("mirror queue full, dropping write", "kind", op.Kind, "key", op.Key)
		return false
	}
}

// Close stops accepting ops and waits for the queue to drain or ctx to end.
func (w *Writer) Close(ctx context.Context) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain mirror queue: %w", ctx.Err())
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for op := range w.queue {
		w.metrics.setDepth(len(w.queue))
		w.apply(op)
	}
}

func (w *Writer) apply(op Op) {
	if !w.breaker.Allow() {
		w.metrics.observe(op.Kind, "skipped")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	var err error
	switch op.Kind {
	case OpSet:
		err = w.store.Set(ctx, op.Key, op.Value)
	case OpHashSet:
		err = w.store.HashSet(ctx, op.Key, op.Field, op.Value)
	case OpListAppend:
		err = w.store.ListAppend(ctx, op.Key, op.Value)
	default:
		err = fmt.Errorf("unknown mirror op %q", op.Kind)
	}

	if err != nil {
		w.metrics.observe(op.Kind, "failed")
		if opened := w.breaker.RecordFailure(); opened {
			w.logger.Error("mirror circuit opened", "kind", op.Kind, "error", err)
			return
		}
		w.logger.Warn("mirror write failed", "kind", op.Kind, "key", op.Key, "field", op.Field, "error", err)
		return
	}
	w.breaker.RecordSuccess()
	w.metrics.observe(op.Kind, "ok")
}
