// Package audit implements the append-only, hash-chained event log that every
// trust decision is recorded through.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"nexus/pkg/platform/mirror"
)

// MirrorKey is the durable list that receives every appended entry.
const MirrorKey = "nexus:audit:log"

type record struct {
	entry   Entry // Details left nil; see details
	details []byte
}

// Chain is the process-wide audit log. The in-memory sequence is the source of
// truth; the optional mirror is written behind it.
type Chain struct {
	mu       sync.RWMutex
	records  []record
	lastHash string

	writer  *mirror.Writer
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
	newID   func() string
}

type Option func(*Chain)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) {
		c.logger = logger
	}
}

// WithMirror attaches a write-behind writer. The chain owns it and closes it
// in Close.
func WithMirror(w *mirror.Writer) Option {
	return func(c *Chain) {
		c.writer = w
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Chain) {
		c.metrics = m
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Chain) {
		c.now = now
	}
}

func NewChain(opts ...Option) *Chain {
	c := &Chain{
		lastHash: GenesisHash,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Append records an event and returns the new entry id. Details are copied
// into canonical form, so later changes to the caller's map do not affect the
// stored entry. The mirror write is queued, never awaited.
func (c *Chain) Append(ctx context.Context, event EventKind, callerID string, layer Layer, component string, details map[string]any) string {
	raw := encodeDetails(details)

	c.mu.Lock()
	e := Entry{
		ID:           c.newID(),
		TimestampUS:  c.now().UnixMicro(),
		Event:        event,
		CallerID:     callerID,
		Layer:        layer,
		Component:    component,
		PreviousHash: c.lastHash,
	}
	e.IntegrityHash = computeHash(c.lastHash, &e, raw)
	c.records = append(c.records, record{entry: e, details: raw})
	c.lastHash = e.IntegrityHash

	// enqueue under the lock so the mirror list keeps chain order
	if c.writer != nil {
		c.enqueue(e, raw)
	}
	c.mu.Unlock()

	c.metrics.IncAppend(event.Category())
	c.logger.DebugContext(ctx, "audit entry appended",
		"audit_id", e.ID,
		"event", event,
		"layer", layer,
		"component", component,
	)
	return e.ID
}

func (c *Chain) enqueue(e Entry, raw []byte) {
	e.Details = decodeDetails(raw)
	payload, err := json.Marshal(e)
	if err != nil {
		c.logger.Warn("audit entry not mirrored", "audit_id", e.ID, "error", err)
		return
	}
	if !c.writer.Enqueue(mirror.Op{Kind: mirror.OpListAppend, Key: MirrorKey, Value: string(payload)}) {
		c.metrics.IncMirrorDropped()
	}
}

// Entries returns all entries in append order, or only the entry whose id is
// filterID when it is non-empty. Returned values are copies.
func (c *Chain) Entries(filterID string) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.records))
	for _, r := range c.records {
		if filterID != "" && r.entry.ID != filterID {
			continue
		}
		e := r.entry
		e.Details = decodeDetails(r.details)
		out = append(out, e)
	}
	return out
}

// Verify recomputes the chain from GenesisHash and reports whether every
// stored link and hash matches. It never repairs anything.
func (c *Chain) Verify() bool {
	c.mu.RLock()
	intact := verifyRecords(c.records)
	c.mu.RUnlock()

	c.metrics.IncVerification(intact)
	if !intact {
		c.logger.Error("audit chain integrity check failed")
	}
	return intact
}

func verifyRecords(records []record) bool {
	expected := GenesisHash
	for i := range records {
		r := &records[i]
		if r.entry.PreviousHash != expected {
			return false
		}
		if computeHash(expected, &r.entry, r.details) != r.entry.IntegrityHash {
			return false
		}
		expected = r.entry.IntegrityHash
	}
	return true
}

// Count returns the number of entries.
func (c *Chain) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// MirrorEnabled reports whether a durable mirror is attached and reachable.
func (c *Chain) MirrorEnabled() bool {
	return c.writer != nil && c.writer.Healthy()
}

// Close drains pending mirror writes.
func (c *Chain) Close(ctx context.Context) error {
	return c.writer.Close(ctx)
}
