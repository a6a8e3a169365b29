// Package budget tracks each caller's cumulative privacy budget (epsilon).
//
// The in-memory ledger is authoritative. When a mirror writer is attached,
// every change is written behind to a durable hash and unseen callers are
// restored from it on first access.
package budget

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"nexus/internal/governance/metrics"
	dErrors "nexus/pkg/domain-errors"
	"nexus/pkg/platform/mirror"
	"nexus/pkg/platform/sentinel"
)

// MirrorHash is the durable hash holding remaining budgets keyed by caller id.
const MirrorHash = "nexus:privacy:budgets"

// DefaultTotal is the per-caller budget when none is configured.
const DefaultTotal = 1.0

// settleScale is the grid remaining balances are rounded to after each
// spend, so that equal decimal steps reach exactly zero.
const settleScale = 1e12

const (
	refusedInsufficient = "insufficient"
	refusedInvalid      = "invalid"
)

type account struct {
	mu        sync.Mutex
	remaining float64
	loaded    bool
}

// Ledger owns the caller -> remaining map. Consume is serialized per caller;
// different callers never share a lock beyond the map lookup.
type Ledger struct {
	total float64

	mu       sync.Mutex
	accounts map[string]*account

	writer         *mirror.Writer
	restoreTimeout time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// WithMirror attaches a write-behind writer. The ledger closes it in Close.
func WithMirror(w *mirror.Writer) Option {
	return func(l *Ledger) {
		l.writer = w
	}
}

// WithRestoreTimeout bounds the mirror lookup made for an unseen caller.
func WithRestoreTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.restoreTimeout = d
		}
	}
}

// NewLedger creates a ledger where every caller starts with total.
// A non-positive total falls back to DefaultTotal.
func NewLedger(total float64, opts ...Option) *Ledger {
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		total = DefaultTotal
	}
	l := &Ledger{
		total:          total,
		accounts:       make(map[string]*account),
		restoreTimeout: 500 * time.Millisecond,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Total returns the configured per-caller budget.
func (l *Ledger) Total() float64 {
	return l.total
}

// Consume spends amount from the caller's budget. It returns false without
// changing anything when amount is negative or exceeds what remains.
func (l *Ledger) Consume(ctx context.Context, amount float64, callerID string) bool {
	ok, err := l.ConsumeChecked(ctx, amount, callerID)
	return err == nil && ok
}

// ConsumeChecked is Consume with validation failures reported as a
// CodeBadRequest error instead of a plain false.
func (l *Ledger) ConsumeChecked(ctx context.Context, amount float64, callerID string) (bool, error) {
	acct := l.lockAccount(ctx, callerID)
	defer acct.mu.Unlock()

	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		l.metrics.IncRefused(refusedInvalid)
		l.logger.WarnContext(ctx, "invalid epsilon requested",
			"caller_id", callerID,
			"epsilon", amount,
		)
		return false, dErrors.New(dErrors.CodeBadRequest, "epsilon must be a finite, non-negative number")
	}

	if amount > acct.remaining {
		l.metrics.IncRefused(refusedInsufficient)
		l.logger.InfoContext(ctx, "privacy budget exhausted",
			"caller_id", callerID,
			"remaining", acct.remaining,
			"requested", amount,
		)
		return false, nil
	}

	acct.remaining = settle(acct.remaining - amount)
	l.persist(callerID, acct.remaining)
	l.metrics.AddConsumed(amount)
	l.logger.DebugContext(ctx, "privacy budget consumed",
		"caller_id", callerID,
		"consumed", amount,
		"remaining", acct.remaining,
	)
	return true, nil
}

// Remaining returns the caller's current budget.
func (l *Ledger) Remaining(ctx context.Context, callerID string) float64 {
	acct := l.lockAccount(ctx, callerID)
	defer acct.mu.Unlock()
	return acct.remaining
}

// Reset restores the caller's budget to the configured total.
func (l *Ledger) Reset(ctx context.Context, callerID string) {
	acct := l.account(callerID)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	acct.remaining = l.total
	acct.loaded = true
	l.persist(callerID, acct.remaining)
	l.metrics.IncReset()
	l.logger.InfoContext(ctx, "privacy budget reset", "caller_id", callerID)
}

// MirrorEnabled reports whether a durable mirror is attached and reachable.
func (l *Ledger) MirrorEnabled() bool {
	return l.writer != nil && l.writer.Healthy()
}

// Close drains pending mirror writes.
func (l *Ledger) Close(ctx context.Context) error {
	return l.writer.Close(ctx)
}

func (l *Ledger) account(callerID string) *account {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[callerID]
	if !ok {
		acct = &account{}
		l.accounts[callerID] = acct
	}
	return acct
}

// lockAccount returns the caller's account locked and initialized.
func (l *Ledger) lockAccount(ctx context.Context, callerID string) *account {
	acct := l.account(callerID)
	acct.mu.Lock()
	if !acct.loaded {
		acct.remaining = l.restore(ctx, callerID)
		acct.loaded = true
	}
	return acct
}

// restore reads a previously persisted balance, falling back to the total
// when the mirror is absent, unreachable, or holds nothing usable.
func (l *Ledger) restore(ctx context.Context, callerID string) float64 {
	if !l.writer.Healthy() {
		return l.total
	}
	ctx, cancel := context.WithTimeout(ctx, l.restoreTimeout)
	defer cancel()

	raw, err := l.writer.Store().HashGet(ctx, MirrorHash, callerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			l.metrics.IncRestore("miss")
			return l.total
		}
		l.metrics.IncRestore("error")
		l.logger.WarnContext(ctx, "privacy budget restore failed",
			"caller_id", callerID,
			"error", err,
		)
		return l.total
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) {
		l.metrics.IncRestore("error")
		l.logger.WarnContext(ctx, "privacy budget restore unparsable",
			"caller_id", callerID,
			"value", raw,
		)
		return l.total
	}
	l.metrics.IncRestore("hit")
	return math.Min(math.Max(v, 0), l.total)
}

// persist must be called with the account lock held so queued writes keep
// per-caller order.
func (l *Ledger) persist(callerID string, remaining float64) {
	if l.writer == nil {
		return
	}
	op := mirror.Op{
		Kind:  mirror.OpHashSet,
		Key:   MirrorHash,
		Field: callerID,
		Value: strconv.FormatFloat(remaining, 'g', -1, 64),
	}
	// drops are counted and logged by the writer
	l.writer.Enqueue(op)
}

func settle(v float64) float64 {
	return math.Max(0, math.Round(v*settleScale)/settleScale)
}
