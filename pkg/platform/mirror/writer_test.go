package mirror

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"nexus/pkg/testutil/fakemirror"
)

type WriterSuite struct {
	suite.Suite
	store   *fakemirror.Store
	metrics *Metrics
}

func TestWriterSuite(t *testing.T) {
	suite.Run(t, new(WriterSuite))
}

func (s *WriterSuite) SetupTest() {
	s.store = fakemirror.New()
	s.metrics = NewMetrics(prometheus.NewRegistry())
}

func (s *WriterSuite) closeWriter(w *Writer) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Require().NoError(w.Close(ctx))
}

// =============================================================================
// Delivery
// =============================================================================

func (s *WriterSuite) TestAppliesOpsInOrder() {
	w := NewWriter(s.store, WithMetrics(s.metrics))

	s.True(w.Enqueue(Op{Kind: OpListAppend, Key: "log", Value: "a"}))
	s.True(w.Enqueue(Op{Kind: OpListAppend, Key: "log", Value: "b"}))
	s.True(w.Enqueue(Op{Kind: OpHashSet, Key: "h", Field: "f", Value: "1"}))
	s.True(w.Enqueue(Op{Kind: OpSet, Key: "k", Value: "v"}))
	s.closeWriter(w)

	s.Equal([]string{"a", "b"}, s.store.List("log"))
	s.Equal(map[string]string{"f": "1"}, s.store.Hash("h"))
	v, err := s.store.Get(context.Background(), "k")
	s.Require().NoError(err)
	s.Equal("v", v)
	s.Equal(2.0, testutil.ToFloat64(s.metrics.Ops.WithLabelValues(string(OpListAppend), "ok")))
}

func (s *WriterSuite) TestEnqueueAfterCloseIsDropped() {
	w := NewWriter(s.store)
	s.closeWriter(w)

	s.False(w.Enqueue(Op{Kind: OpSet, Key: "k", Value: "v"}))
	s.Require().NoError(w.Close(context.Background()), "second close is a no-op")
}

func (s *WriterSuite) TestNilWriter() {
	var w *Writer
	s.False(w.Enqueue(Op{Kind: OpSet}))
	s.False(w.Healthy())
	s.Nil(w.Store())
	s.NoError(w.Close(context.Background()))
}

// =============================================================================
// Degradation
// =============================================================================

func (s *WriterSuite) TestFullQueueDropsWithoutBlocking() {
	s.store.Block = make(chan struct{})
	w := NewWriter(s.store, WithQueueSize(1), WithMetrics(s.metrics))

	accepted := 0
	for range 5 {
		if w.Enqueue(Op{Kind: OpListAppend, Key: "log", Value: "x"}) {
			accepted++
		}
	}
	// one op held by the worker, one in the queue
	s.LessOrEqual(accepted, 2)
	s.GreaterOrEqual(testutil.ToFloat64(s.metrics.Ops.WithLabelValues(string(OpListAppend), "dropped")), 3.0)

	close(s.store.Block)
	s.closeWriter(w)
	s.Len(s.store.List("log"), accepted)
}

func (s *WriterSuite) TestBreakerSkipsAfterConsecutiveFailures() {
	s.store.SetErr(errors.New("connection refused"))
	w := NewWriter(s.store,
		WithBreaker(NewCircuitBreaker(2, time.Hour)),
		WithMetrics(s.metrics),
	)

	for range 5 {
		s.True(w.Enqueue(Op{Kind: OpHashSet, Key: "h", Field: "f", Value: "v"}))
	}
	s.closeWriter(w)

	s.Equal(2, s.store.Calls(), "open circuit stops store traffic")
	s.Equal(2.0, testutil.ToFloat64(s.metrics.Ops.WithLabelValues(string(OpHashSet), "failed")))
	s.Equal(3.0, testutil.ToFloat64(s.metrics.Ops.WithLabelValues(string(OpHashSet), "skipped")))
	s.False(w.Healthy())
}

func (s *WriterSuite) TestCloseHonoursContext() {
	s.store.Block = make(chan struct{})
	w := NewWriter(s.store, WithTimeout(50*time.Millisecond))
	s.True(w.Enqueue(Op{Kind: OpSet, Key: "k", Value: "v"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.Close(ctx)
	s.Require().Error(err)
	s.ErrorIs(err, context.Canceled)
}
