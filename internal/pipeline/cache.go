package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"nexus/pkg/platform/mirror"
)

const cachePrefix = "nexus:cache:gateway:"

// ResponseCache keeps generated answers in the durable mirror, keyed by
// prompt and model. Lookups are synchronous and bounded by a timeout; stores
// are written behind. A miss or an outage only means regenerating.
type ResponseCache struct {
	writer  *mirror.Writer
	timeout time.Duration
}

func NewResponseCache(w *mirror.Writer, timeout time.Duration) *ResponseCache {
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	return &ResponseCache{writer: w, timeout: timeout}
}

func cacheKey(prompt, model string) string {
	sum := sha256.Sum256([]byte(prompt + ":" + model))
	return cachePrefix + hex.EncodeToString(sum[:8])
}

func (c *ResponseCache) Get(ctx context.Context, prompt, model string) (string, bool) {
	if c == nil || !c.writer.Healthy() {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	v, err := c.writer.Store().Get(ctx, cacheKey(prompt, model))
	if err != nil {
		return "", false
	}
	return v, true
}

func (c *ResponseCache) Put(prompt, model, response string) {
	if c == nil {
		return
	}
	c.writer.Enqueue(mirror.Op{Kind: mirror.OpSet, Key: cacheKey(prompt, model), Value: response})
}

// Close drains pending cache writes.
func (c *ResponseCache) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.writer.Close(ctx)
}
