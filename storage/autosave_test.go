package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/strata/canvas"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/graph"
)

// recordingKV counts writes and can be told to fail.
type recordingKV struct {
	*MemoryKV
	mu     sync.Mutex
	writes map[string]int
	fail   error
}

func newRecordingKV() *recordingKV {
	return &recordingKV{MemoryKV: NewMemoryKV(), writes: make(map[string]int)}
}

func (r *recordingKV) Set(ctx context.Context, key, value string) error {
	r.mu.Lock()
	fail := r.fail
	r.writes[key]++
	r.mu.Unlock()
	if fail != nil {
		return fail
	}
	return r.MemoryKV.Set(ctx, key, value)
}

func (r *recordingKV) setFail(err error) {
	r.mu.Lock()
	r.fail = err
	r.mu.Unlock()
}

func (r *recordingKV) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes[key]
}

func newTestAutoSaver(t *testing.T, kv KV, opts ...AutoSaveOption) (*AutoSaver, *Store, *Metrics) {
	t.Helper()
	store := newTestStore(t, kv)
	metrics := NewMetrics("strata_test", prometheus.NewRegistry())
	opts = append([]AutoSaveOption{
		WithInterval(0),
		WithMetrics(metrics),
		WithAutoSaveLogger(zaptest.NewLogger(t).Sugar()),
	}, opts...)
	a := NewAutoSaver(store, opts...)
	return a, store, metrics
}

func flush(t *testing.T, a *AutoSaver) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Flush(ctx))
}

func TestAutoSaver_SavesOnMutation(t *testing.T) {
	kv := newRecordingKV()
	a, store, metrics := newTestAutoSaver(t, kv)
	a.Start(context.Background())
	defer a.Close()

	c := canvas.NewRoot("Main Canvas")
	detach := a.Attach(c)
	defer detach()

	id := c.Graph.AddNode("payment", graph.Position{X: 10}, nil)
	flush(t, a)

	loaded, ok := store.Load(context.Background(), "Main Canvas")
	require.True(t, ok)
	assert.True(t, loaded.Graph.HasNode(id))
	assert.False(t, c.Graph.Dirty())
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.Saves), 1.0)
}

func TestAutoSaver_LatestWins(t *testing.T) {
	kv := newRecordingKV()
	a, store, metrics := newTestAutoSaver(t, kv)

	c := canvas.NewRoot("Main Canvas")
	a.Attach(c)
	id := c.Graph.AddNode("payment", graph.Position{}, nil)
	for i := 1; i <= 20; i++ {
		c.Graph.MoveNode(id, graph.Position{X: float64(i)})
	}

	// Nothing is written until the writer starts, so all 21 snapshots coalesce.
	a.Start(context.Background())
	flush(t, a)
	a.Close()

	assert.Equal(t, 1, kv.count("canvas_Main_Canvas"))
	assert.Equal(t, 20.0, testutil.ToFloat64(metrics.Superseded))

	loaded, ok := store.Load(context.Background(), "Main Canvas")
	require.True(t, ok)
	n, _ := loaded.Graph.Node(id)
	assert.Equal(t, 20.0, n.Position.X)
}

func TestAutoSaver_FailureKeepsMemoryState(t *testing.T) {
	kv := newRecordingKV()
	kv.setFail(errors.New("quota exceeded"))
	a, _, metrics := newTestAutoSaver(t, kv, WithBreaker(0, time.Second))
	a.Start(context.Background())
	defer a.Close()

	c := canvas.NewRoot("Main Canvas")
	a.Attach(c)
	id := c.Graph.AddNode("wallet", graph.Position{}, nil)
	flush(t, a)

	assert.True(t, c.Graph.HasNode(id))
	assert.True(t, c.Graph.Dirty())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Failures))
}

func TestAutoSaver_BreakerOpens(t *testing.T) {
	kv := newRecordingKV()
	kv.setFail(errors.New("connection refused"))
	a, _, metrics := newTestAutoSaver(t, kv, WithBreaker(2, time.Hour))
	a.Start(context.Background())
	defer a.Close()

	for _, title := range []string{"A", "B", "C", "D"} {
		a.Schedule(canvas.New("canvas-"+title, title, title))
		flush(t, a)
	}

	assert.Equal(t, gobreaker.StateOpen, a.BreakerState())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Failures))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Rejected))
	assert.Equal(t, 0, kv.count("canvas_C"), "open breaker never reaches the backend")
}

func TestAutoSaver_CloseDrains(t *testing.T) {
	kv := newRecordingKV()
	a, store, _ := newTestAutoSaver(t, kv)

	a.Schedule(canvas.New("canvas-x", "Pending", "x"))
	a.Close()

	assert.True(t, store.Exists(context.Background(), "Pending"))
}

func TestAutoSaver_FlushReturnsOnContextEnd(t *testing.T) {
	kv := newRecordingKV()
	a, store, _ := newTestAutoSaver(t, kv)

	// Not started, so the queue never drains on its own.
	a.Schedule(canvas.New("canvas-x", "Stuck", "x"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	returned := make(chan error, 1)
	go func() { returned <- a.Flush(ctx) }()

	select {
	case err := <-returned:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("Flush did not return after its context ended")
	}

	t.Run("already cancelled", func(t *testing.T) {
		done, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, a.Flush(done), context.Canceled)
	})

	a.Close()
	assert.True(t, store.Exists(context.Background(), "Stuck"))
	flush(t, a)
}

func TestAutoSaver_ManualAndAutoShareEncoding(t *testing.T) {
	ctx := context.Background()
	manualKV := NewMemoryKV()
	autoKV := newRecordingKV()

	c := sampleCanvas(t)
	require.NoError(t, newTestStore(t, manualKV).Save(ctx, c))

	a, _, _ := newTestAutoSaver(t, autoKV)
	a.Schedule(c)
	a.Close()

	manual, _, _ := manualKV.Get(ctx, "canvas_Main_Canvas")
	auto, _, _ := autoKV.Get(ctx, "canvas_Main_Canvas")
	assert.JSONEq(t, manual, auto)
}
