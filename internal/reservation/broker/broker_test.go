package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBroker_RegisterWaitDeliver(t *testing.T) {
	b := New[string]("test", zap.NewNop())

	h, err := b.Register("corr-1")
	require.NoError(t, err)
	defer h.Close()

	go func() {
		b.Deliver("corr-1", "hello")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, err := b.Wait(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestBroker_RegisterDuplicateFails(t *testing.T) {
	b := New[string]("test", zap.NewNop())

	h, err := b.Register("corr-1")
	require.NoError(t, err)
	defer h.Close()

	_, err = b.Register("corr-1")
	assert.ErrorIs(t, err, ErrAlreadyInFlight)
}

func TestBroker_DeliverForUnknownIDIsNoOp(t *testing.T) {
	b := New[string]("test", zap.NewNop())

	assert.NotPanics(t, func() {
		b.Deliver("does-not-exist", "whatever")
	})
}

func TestBroker_DeliverAfterCompletionIsNoOp(t *testing.T) {
	b := New[string]("test", zap.NewNop())

	h, err := b.Register("corr-1")
	require.NoError(t, err)
	defer h.Close()

	b.Deliver("corr-1", "first")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := b.Wait(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	assert.NotPanics(t, func() {
		b.Deliver("corr-1", "second")
	})
}

func TestBroker_CancelUnblocksWaiter(t *testing.T) {
	b := New[string]("test", zap.NewNop())

	h, err := b.Register("corr-1")
	require.NoError(t, err)
	defer h.Close()

	go func() {
		b.Cancel("corr-1")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = b.Wait(ctx, h)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestBroker_CancelIsIdempotent(t *testing.T) {
	b := New[string]("test", zap.NewNop())

	h, err := b.Register("corr-1")
	require.NoError(t, err)
	defer h.Close()

	assert.NotPanics(t, func() {
		b.Cancel("corr-1")
		b.Cancel("corr-1")
	})
}

func TestBroker_WaitTimesOutOnContextDeadline(t *testing.T) {
	b := New[string]("test", zap.NewNop())

	h, err := b.Register("corr-1")
	require.NoError(t, err)
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = b.Wait(ctx, h)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandle_CloseIsIdempotent(t *testing.T) {
	b := New[string]("test", zap.NewNop())

	h, err := b.Register("corr-1")
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		h.Close()
		h.Close()
		h.Close()
	})
	assert.Equal(t, 0, b.InFlight())
}

func TestBroker_CloseAfterWaitAllowsReRegister(t *testing.T) {
	b := New[string]("test", zap.NewNop())

	h, err := b.Register("corr-1")
	require.NoError(t, err)

	go b.Deliver("corr-1", "v1")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = b.Wait(ctx, h)
	require.NoError(t, err)
	h.Close()

	h2, err := b.Register("corr-1")
	require.NoError(t, err)
	defer h2.Close()
}

func TestBroker_Sweep(t *testing.T) {
	b := New[string]("test", zap.NewNop())

	h1, err := b.Register("corr-1")
	require.NoError(t, err)
	h2, err := b.Register("corr-2")
	require.NoError(t, err)
	defer h2.Close()

	b.Deliver("corr-1", "done")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = b.Wait(ctx, h1)
	require.NoError(t, err)

	assert.Equal(t, 2, b.InFlight())
	b.Sweep()
	assert.Equal(t, 1, b.InFlight())
}

func TestBroker_ConcurrentRegisterDeliverIsRaceFree(t *testing.T) {
	b := New[int]("test", zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := correlationIDFor(i)
			h, err := b.Register(id)
			if err != nil {
				return
			}
			defer h.Close()

			go b.Deliver(id, i)

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_, _ = b.Wait(ctx, h)
		}()
	}
	wg.Wait()
}

func correlationIDFor(i int) string {
	return "corr-" + string(rune('a'+i%26)) + string(rune('0'+i%10))
}
