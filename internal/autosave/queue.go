// Package autosave coalesces rapid edits to the same key into a single
// delayed write carrying the most recent value.
package autosave

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"backoffice-service/internal/util"
)

var ErrClosed = errors.New("autosave queue closed")

// WriteFunc persists the latest value scheduled for a key
type WriteFunc[K comparable, V any] func(ctx context.Context, key K, value V) error

type entry[V any] struct {
	value V
	seq   uint64
	timer *time.Timer
}

// Queue debounces writes per key. Only the last value scheduled within the
// delay window is written, and a write never lands after a newer one for
// the same key.
type Queue[K comparable, V any] struct {
	delay   time.Duration
	write   WriteFunc[K, V]
	onError func(key K, err error)
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[K]*entry[V]
	seq     uint64
	closed  bool

	keyLocks    sync.Map // K -> *sync.Mutex
	writtenMu   sync.Mutex
	lastWritten map[K]uint64
	inflight    sync.WaitGroup
}

func New[K comparable, V any](delay time.Duration, write WriteFunc[K, V], onError func(key K, err error)) *Queue[K, V] {
	return &Queue[K, V]{
		delay:       delay,
		write:       write,
		onError:     onError,
		logger:      util.GetLogger().Named("autosave"),
		pending:     make(map[K]*entry[V]),
		lastWritten: make(map[K]uint64),
	}
}

// Schedule replaces any pending value for key and restarts its timer
func (q *Queue[K, V]) Schedule(key K, value V) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	q.seq++
	if e, ok := q.pending[key]; ok {
		e.timer.Stop()
		util.AutosaveCollapsedTotal.Inc()
	}

	e := &entry[V]{value: value, seq: q.seq}
	e.timer = time.AfterFunc(q.delay, func() { q.fire(key, e) })
	q.pending[key] = e
	return nil
}

// Pending returns the number of keys waiting for their timer
func (q *Queue[K, V]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue[K, V]) fire(key K, e *entry[V]) {
	q.mu.Lock()
	if cur, ok := q.pending[key]; !ok || cur != e {
		q.mu.Unlock()
		return
	}
	delete(q.pending, key)
	q.inflight.Add(1)
	q.mu.Unlock()

	defer q.inflight.Done()
	q.run(context.Background(), key, e)
}

func (q *Queue[K, V]) run(ctx context.Context, key K, e *entry[V]) error {
	l, _ := q.keyLocks.LoadOrStore(key, &sync.Mutex{})
	lock := l.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	q.writtenMu.Lock()
	stale := q.lastWritten[key] > e.seq
	q.writtenMu.Unlock()
	if stale {
		util.AutosaveWritesTotal.WithLabelValues("stale").Inc()
		return nil
	}

	if err := q.write(ctx, key, e.value); err != nil {
		util.AutosaveWritesTotal.WithLabelValues("error").Inc()
		q.logger.Warn("Autosave write failed", zap.Any("key", key), zap.Error(err))
		if q.onError != nil {
			q.onError(key, err)
		}
		return err
	}

	q.writtenMu.Lock()
	q.lastWritten[key] = e.seq
	q.writtenMu.Unlock()
	util.AutosaveWritesTotal.WithLabelValues("ok").Inc()
	return nil
}

// Flush writes every pending value now, without waiting for timers.
// It returns the first write error.
func (q *Queue[K, V]) Flush(ctx context.Context) error {
	q.mu.Lock()
	batch := make(map[K]*entry[V], len(q.pending))
	for k, e := range q.pending {
		e.timer.Stop()
		batch[k] = e
	}
	q.pending = make(map[K]*entry[V])
	q.inflight.Add(1)
	q.mu.Unlock()
	defer q.inflight.Done()

	var firstErr error
	for k, e := range batch {
		if err := q.run(ctx, k, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close drops pending values and waits for in-flight writes
func (q *Queue[K, V]) Close() {
	q.mu.Lock()
	q.closed = true
	for _, e := range q.pending {
		e.timer.Stop()
	}
	dropped := len(q.pending)
	q.pending = make(map[K]*entry[V])
	q.mu.Unlock()

	if dropped > 0 {
		q.logger.Info("Autosave queue closed with pending edits", zap.Int("dropped", dropped))
	}
	q.inflight.Wait()
}
