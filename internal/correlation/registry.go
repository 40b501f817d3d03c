// Package correlation matches "fire a command, wait for an unrelated later
// notification" patterns. The backend carries no request id, so command sites
// register a waiter under an application-chosen key (a room id, a contact id,
// or a composite) and the demultiplexer resolves it when a matching frame
// arrives.
package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatbridge/chatbridge/internal/metrics"
)

// ErrAwaitTimeout reports that the awaited notification never arrived.
var ErrAwaitTimeout = errors.New("correlation: await timed out")

// DefaultAwaitTimeout bounds every Await that does not carry a tighter
// deadline on its context.
const DefaultAwaitTimeout = 2 * time.Minute

// Registry is a keyed table of pending continuations. At most one waiter per
// key: a second Register for the same key replaces the first, which is then
// never resolved. That replacement is an explicit contract here, not an
// accident; callers that can collide on a key must serialize themselves.
type Registry struct {
	logger  zerolog.Logger
	mu      sync.Mutex
	waiters map[string]chan json.RawMessage
}

// New creates an empty registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		logger:  logger.With().Str("component", "correlation").Logger(),
		waiters: make(map[string]chan json.RawMessage),
	}
}

// Register installs a waiter for key and returns its delivery channel plus a
// cancel func. The channel receives at most one value. Cancel removes the
// waiter if it is still the current one; it is safe to call after delivery.
func (r *Registry) Register(key string) (<-chan json.RawMessage, func()) {
	ch := make(chan json.RawMessage, 1)

	r.mu.Lock()
	if _, ok := r.waiters[key]; ok {
		// Last write wins: the prior waiter is orphaned and will time out.
		r.logger.Warn().Str("key", key).Msg("replacing pending waiter")
	}
	r.waiters[key] = ch
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if cur, ok := r.waiters[key]; ok && cur == ch {
			delete(r.waiters, key)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

// Resolve delivers value to the waiter for key, if any, and removes it. A
// resolve with no waiter is a no-op: most notifications have nobody waiting.
func (r *Registry) Resolve(key string, value json.RawMessage) bool {
	r.mu.Lock()
	ch, ok := r.waiters[key]
	if ok {
		delete(r.waiters, key)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	ch <- value
	return true
}

// Await registers a waiter for key and blocks until it resolves, the context
// ends, or DefaultAwaitTimeout elapses.
func (r *Registry) Await(ctx context.Context, key string) (json.RawMessage, error) {
	ch, cancel := r.Register(key)
	defer cancel()

	timer := time.NewTimer(DefaultAwaitTimeout)
	defer timer.Stop()

	select {
	case v := <-ch:
		return v, nil
	case <-timer.C:
		metrics.CorrelationTimeouts.Inc()
		return nil, fmt.Errorf("%w: key %q", ErrAwaitTimeout, key)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending returns the number of outstanding waiters.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}
