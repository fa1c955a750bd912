package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/strata/canvas"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/graph"
	"github.com/teranos/strata/logger"
)

const (
	defaultInterval        = 250 * time.Millisecond
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30 * time.Second
)

// AutoSaver writes canvases in the background after every mutation.
//
// Encoding happens on the caller's goroutine; the writer goroutine only sees
// bytes. Per key only the latest snapshot is kept, so a burst of drags costs
// one write. Failures are logged and counted and the in-memory graph stays
// as it is.
type AutoSaver struct {
	store   *Store
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	metrics *Metrics
	logger  *zap.SugaredLogger

	interval        time.Duration
	breakerFailures uint32
	breakerTimeout  time.Duration

	mu      sync.Mutex
	pending map[string]Pending
	order   []string
	writing bool
	idle    *sync.Cond

	wake    chan struct{}
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
	started atomic.Bool
}

// AutoSaveOption configures an AutoSaver.
type AutoSaveOption func(*AutoSaver)

// WithInterval sets the minimum spacing between writes.
func WithInterval(d time.Duration) AutoSaveOption {
	return func(a *AutoSaver) { a.interval = d }
}

// WithBreaker trips the storage breaker after failures consecutive errors
// and probes again after timeout.
func WithBreaker(failures uint32, timeout time.Duration) AutoSaveOption {
	return func(a *AutoSaver) {
		a.breakerFailures = failures
		a.breakerTimeout = timeout
	}
}

// WithMetrics records outcomes on m.
func WithMetrics(m *Metrics) AutoSaveOption {
	return func(a *AutoSaver) { a.metrics = m }
}

// WithAutoSaveLogger sets the logger.
func WithAutoSaveLogger(l *zap.SugaredLogger) AutoSaveOption {
	return func(a *AutoSaver) { a.logger = logger.OrNop(l) }
}

// NewAutoSaver creates a stopped AutoSaver. Call Start to begin writing.
func NewAutoSaver(store *Store, opts ...AutoSaveOption) *AutoSaver {
	a := &AutoSaver{
		store:           store,
		logger:          logger.ComponentLogger("autosave"),
		interval:        defaultInterval,
		breakerFailures: defaultBreakerFailures,
		breakerTimeout:  defaultBreakerTimeout,
		pending:         make(map[string]Pending),
		wake:            make(chan struct{}, 1),
		stop:            make(chan struct{}),
		stopped:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.idle = sync.NewCond(&a.mu)

	limit := rate.Inf
	if a.interval > 0 {
		limit = rate.Every(a.interval)
	}
	a.limiter = rate.NewLimiter(limit, 1)

	failures := a.breakerFailures
	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "canvas-storage",
		Timeout: a.breakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return failures > 0 && c.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			a.logger.Warnw("Storage breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return a
}

// Start runs the writer until ctx is cancelled or Close is called.
func (a *AutoSaver) Start(ctx context.Context) {
	if a.started.CompareAndSwap(false, true) {
		go a.run(ctx)
	}
}

// Attach schedules a save of c after every mutation of its graph.
// The returned func detaches.
func (a *AutoSaver) Attach(c *canvas.Canvas) (detach func()) {
	return c.Graph.Observe(func(graph.Mutation) {
		a.Schedule(c)
	})
}

// Schedule encodes c now and queues it for writing, replacing any older
// snapshot queued under the same key.
func (a *AutoSaver) Schedule(c *canvas.Canvas) {
	p, err := a.store.Prepare(c)
	if err != nil {
		a.logger.Errorw("Autosave encode failed", logger.FieldCanvasID, c.ID, logger.FieldError, err)
		return
	}

	a.mu.Lock()
	if _, queued := a.pending[p.Key]; queued {
		if a.metrics != nil {
			a.metrics.Superseded.Inc()
		}
	} else {
		a.order = append(a.order, p.Key)
	}
	a.pending[p.Key] = p
	a.setQueueGauge()
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *AutoSaver) setQueueGauge() {
	if a.metrics != nil {
		a.metrics.Queue.Set(float64(len(a.order)))
	}
}

func (a *AutoSaver) next() (Pending, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.order) == 0 {
		a.writing = false
		a.idle.Broadcast()
		return Pending{}, false
	}
	key := a.order[0]
	a.order = a.order[1:]
	p := a.pending[key]
	delete(a.pending, key)
	a.writing = true
	a.setQueueGauge()
	return p, true
}

func (a *AutoSaver) run(ctx context.Context) {
	defer close(a.stopped)
	for {
		select {
		case <-ctx.Done():
			a.drain(context.Background())
			return
		case <-a.stop:
			a.drain(context.Background())
			return
		case <-a.wake:
		}

		for {
			p, ok := a.next()
			if !ok {
				break
			}
			if err := a.limiter.Wait(ctx); err != nil {
				a.write(context.Background(), p)
				a.done()
				break
			}
			a.write(ctx, p)
			a.done()
		}
	}
}

func (a *AutoSaver) done() {
	a.mu.Lock()
	a.writing = false
	a.idle.Broadcast()
	a.mu.Unlock()
}

func (a *AutoSaver) drain(ctx context.Context) {
	for {
		p, ok := a.next()
		if !ok {
			return
		}
		a.write(ctx, p)
		a.done()
	}
}

func (a *AutoSaver) write(ctx context.Context, p Pending) {
	_, err := a.breaker.Execute(func() (interface{}, error) {
		return nil, a.store.Write(ctx, p)
	})
	switch {
	case err == nil:
		if a.metrics != nil {
			a.metrics.Saves.Inc()
			a.metrics.Bytes.Observe(float64(len(p.Data)))
		}
		a.logger.Debugw("Autosaved canvas", logger.FieldStorageKey, p.Key, logger.FieldVersion, p.Version)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		if a.metrics != nil {
			a.metrics.Rejected.Inc()
		}
		a.logger.Warnw("Autosave skipped, storage breaker open", logger.FieldStorageKey, p.Key)
	default:
		if a.metrics != nil {
			a.metrics.Failures.Inc()
		}
		a.logger.Errorw("Autosave failed", logger.FieldStorageKey, p.Key, logger.FieldError, err)
	}
}

// Flush blocks until everything queued so far has been attempted or ctx ends.
func (a *AutoSaver) Flush(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		a.mu.Lock()
		a.idle.Broadcast()
		a.mu.Unlock()
	})
	defer stop()

	a.mu.Lock()
	defer a.mu.Unlock()
	for len(a.order) > 0 || a.writing {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.idle.Wait()
	}
	return nil
}

// Close stops the writer after attempting every queued snapshot.
func (a *AutoSaver) Close() {
	if !a.started.Load() {
		a.drain(context.Background())
		return
	}
	a.once.Do(func() { close(a.stop) })
	<-a.stopped
}

// BreakerState reports the storage breaker state.
func (a *AutoSaver) BreakerState() gobreaker.State {
	return a.breaker.State()
}
