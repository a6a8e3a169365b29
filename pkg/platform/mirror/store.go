// Package mirror defines the best-effort durable replica used by the audit chain
// and the budget ledger. The replica is never the source of truth for an
// in-flight decision: reads only seed unseen state, writes happen behind the
// in-memory commit and their failures are logged, never returned to callers.
package mirror

import (
	"context"
	"errors"

	"nexus/pkg/platform/sentinel"
)

// Store is the key/value surface of the durable mirror.
// Get and HashGet return sentinel.ErrNotFound when the key or field is absent.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	HashGet(ctx context.Context, hash, field string) (string, error)
	HashSet(ctx context.Context, hash, field, value string) error
	ListAppend(ctx context.Context, key, value string) error
}

// ListAppender is the append-only subset of Store, implemented by log-style sinks.
type ListAppender interface {
	ListAppend(ctx context.Context, key, value string) error
}

// Nop is a Store that holds nothing. Reads report not-found, writes succeed.
type Nop struct{}

func (Nop) Get(context.Context, string) (string, error)             { return "", sentinel.ErrNotFound }
func (Nop) Set(context.Context, string, string) error               { return nil }
func (Nop) HashGet(context.Context, string, string) (string, error) { return "", sentinel.ErrNotFound }
func (Nop) HashSet(context.Context, string, string, string) error   { return nil }
func (Nop) ListAppend(context.Context, string, string) error        { return nil }

// Tee forwards every call to primary and additionally fans list appends out to
// extra sinks. Errors from all targets are joined.
func Tee(primary Store, extra ...ListAppender) Store {
	if primary == nil {
		primary = Nop{}
	}
	if len(extra) == 0 {
		return primary
	}
	return &tee{Store: primary, extra: extra}
}

type tee struct {
	Store
	extra []ListAppender
}

func (t *tee) ListAppend(ctx context.Context, key, value string) error {
	errs := []error{t.Store.ListAppend(ctx, key, value)}
	for _, sink := range t.extra {
		errs = append(errs, sink.ListAppend(ctx, key, value))
	}
	return errors.Join(errs...)
}
