package correlation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return New(zerolog.Nop())
}

func TestResolveWithoutWaiterIsNoop(t *testing.T) {
	r := newTestRegistry()
	assert.False(t, r.Resolve("room:123", json.RawMessage(`{}`)))
	assert.Equal(t, 0, r.Pending())
}

func TestRegisterResolveRoundTrip(t *testing.T) {
	r := newTestRegistry()
	ch, cancel := r.Register("room:123")
	defer cancel()

	require.True(t, r.Resolve("room:123", json.RawMessage(`{"number":"123"}`)))

	select {
	case v := <-ch:
		assert.JSONEq(t, `{"number":"123"}`, string(v))
	case <-time.After(time.Second):
		t.Fatal("waiter was not delivered")
	}

	// Resolved waiters are removed.
	assert.False(t, r.Resolve("room:123", json.RawMessage(`{}`)))
}

func TestSecondRegisterReplacesFirst(t *testing.T) {
	r := newTestRegistry()
	ch1, cancel1 := r.Register("room:1")
	defer cancel1()
	ch2, cancel2 := r.Register("room:1")
	defer cancel2()

	require.True(t, r.Resolve("room:1", json.RawMessage(`"v"`)))

	select {
	case <-ch1:
		t.Fatal("orphaned waiter must never be invoked")
	default:
	}

	select {
	case v := <-ch2:
		assert.Equal(t, `"v"`, string(v))
	case <-time.After(time.Second):
		t.Fatal("replacement waiter was not delivered")
	}
}

func TestCancelRemovesOnlyCurrentWaiter(t *testing.T) {
	r := newTestRegistry()
	_, cancel1 := r.Register("k")
	_, cancel2 := r.Register("k")

	// cancel1 belongs to the replaced waiter and must not remove waiter 2.
	cancel1()
	assert.Equal(t, 1, r.Pending())

	cancel2()
	assert.Equal(t, 0, r.Pending())
}

func TestAwaitDelivery(t *testing.T) {
	r := newTestRegistry()

	go func() {
		time.Sleep(10 * time.Millisecond)
		r.Resolve("contact:abc", json.RawMessage(`{"account":"abc"}`))
	}()

	v, err := r.Await(context.Background(), "contact:abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"account":"abc"}`, string(v))
}

func TestAwaitContextCancellation(t *testing.T) {
	r := newTestRegistry()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Await(ctx, "contact:never")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	// Abandoned waiters are cleaned up by the deferred cancel.
	assert.Equal(t, 0, r.Pending())
}
