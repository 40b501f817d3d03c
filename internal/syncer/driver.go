// Package syncer keeps the local cache converged with the backend: a full
// sweep after login, a rate-limited backfill queue for room detail, and
// on-demand point lookups that fall through the cache to a correlated fetch.
package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatbridge/chatbridge/internal/cache"
	"github.com/chatbridge/chatbridge/internal/correlation"
	"github.com/chatbridge/chatbridge/internal/metrics"
	"github.com/chatbridge/chatbridge/internal/models"
)

// Caller issues one unary backend command. Satisfied by the gateway.
type Caller interface {
	Call(ctx context.Context, apiName string, data any) (json.RawMessage, error)
}

// Options tune the driver's pacing. Zero values take the defaults; tests
// shrink them.
type Options struct {
	// QueueSpacing is the fixed gap between backfill jobs. One job is in
	// flight at a time.
	QueueSpacing time.Duration
	// AwaitTimeout bounds every correlated wait.
	AwaitTimeout time.Duration
	// MemberRetryBase, MemberRetryCap, and MemberRetryAttempts shape the
	// name-resolution refetch backoff.
	MemberRetryBase     time.Duration
	MemberRetryCap      time.Duration
	MemberRetryAttempts int
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.QueueSpacing <= 0 {
		out.QueueSpacing = 30 * time.Millisecond
	}
	if out.AwaitTimeout <= 0 {
		out.AwaitTimeout = correlation.DefaultAwaitTimeout
	}
	if out.MemberRetryBase <= 0 {
		out.MemberRetryBase = 10 * time.Millisecond
	}
	if out.MemberRetryCap <= 0 {
		out.MemberRetryCap = 20 * time.Second
	}
	if out.MemberRetryAttempts <= 0 {
		out.MemberRetryAttempts = 9
	}
	return out
}

const memberRetryMultiplier = 3

// Driver owns cache convergence. All methods are safe for concurrent use.
type Driver struct {
	logger   zerolog.Logger
	caller   Caller
	registry *correlation.Registry
	store    cache.Store
	opts     Options

	mu       sync.Mutex
	inflight map[string]struct{}
	queue    chan string

	wg sync.WaitGroup
}

// New builds a driver over the given gateway caller, registry, and cache.
func New(logger zerolog.Logger, caller Caller, registry *correlation.Registry, store cache.Store, opts Options) *Driver {
	return &Driver{
		logger:   logger.With().Str("component", "syncer").Logger(),
		caller:   caller,
		registry: registry,
		store:    store,
		opts:     opts.withDefaults(),
		inflight: make(map[string]struct{}),
		queue:    make(chan string, 1024),
	}
}

// Run consumes the backfill queue until ctx ends. Jobs execute one at a time
// with a fixed gap so a full-sweep burst does not hammer the backend.
func (d *Driver) Run(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case roomID := <-d.queue:
				d.backfillRoom(ctx, roomID)
				d.mu.Lock()
				delete(d.inflight, roomID)
				d.mu.Unlock()

				select {
				case <-ctx.Done():
					return
				case <-time.After(d.opts.QueueSpacing):
				}
			}
		}
	}()
}

// Wait blocks until the queue worker has exited.
func (d *Driver) Wait() {
	d.wg.Wait()
}

// EnqueueRoomBackfill schedules a room detail fetch. A room already queued or
// running is not queued again.
func (d *Driver) EnqueueRoomBackfill(roomID string) {
	d.mu.Lock()
	if _, dup := d.inflight[roomID]; dup {
		d.mu.Unlock()
		return
	}
	d.inflight[roomID] = struct{}{}
	d.mu.Unlock()

	select {
	case d.queue <- roomID:
	default:
		d.mu.Lock()
		delete(d.inflight, roomID)
		d.mu.Unlock()
		d.logger.Warn().Str("room", roomID).Msg("backfill queue full, job dropped")
		metrics.SyncJobs.WithLabelValues("dropped").Inc()
	}
}

func (d *Driver) backfillRoom(ctx context.Context, roomID string) {
	err := d.callAndAwait(ctx, correlation.RoomKey(roomID), "getRoomInfo", map[string]string{"account": roomID})
	if err != nil {
		d.logger.Warn().Err(err).Str("room", roomID).Msg("room backfill failed")
		metrics.SyncJobs.WithLabelValues("failed").Inc()
		return
	}
	metrics.SyncJobs.WithLabelValues("ok").Inc()
}

// callAndAwait registers the waiter before issuing the command, so a fast
// reply cannot slip past the registration.
func (d *Driver) callAndAwait(ctx context.Context, key, apiName string, data any) error {
	ch, cancel := d.registry.Register(key)
	defer cancel()

	if _, err := d.caller.Call(ctx, apiName, data); err != nil {
		return err
	}

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.opts.AwaitTimeout):
		metrics.CorrelationTimeouts.Inc()
		return correlation.ErrAwaitTimeout
	}
}

// FullSync sweeps contacts and rooms after login and queues a detail
// backfill for every room the sweep left incomplete.
func (d *Driver) FullSync(ctx context.Context) error {
	if err := d.callAndAwait(ctx, correlation.ContactListKey(), "getContactList", nil); err != nil {
		return err
	}
	if err := d.callAndAwait(ctx, correlation.RoomListKey(), "getRoomList", nil); err != nil {
		return err
	}

	ids, err := d.store.RoomIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		room, err := d.store.GetRoom(id)
		if err != nil || room.Incomplete() {
			d.EnqueueRoomBackfill(id)
		}
	}
	d.logger.Info().Int("rooms", len(ids)).Msg("full sweep complete")
	return nil
}

// Contact returns the contact for id, fetching through the gateway on a
// cache miss. The id may come from either identifier namespace.
func (d *Driver) Contact(ctx context.Context, id string) (models.Contact, error) {
	if c, err := d.store.GetContact(id); err == nil {
		return c, nil
	}

	if err := d.callAndAwait(ctx, correlation.ContactKey(id), "getContactInfo", map[string]string{"account": id}); err != nil {
		return models.Contact{}, err
	}
	return d.store.GetContact(id)
}

// Room returns the room for id, fetching detail when the cached copy is
// missing or incomplete.
func (d *Driver) Room(ctx context.Context, id string) (models.Room, error) {
	if room, err := d.store.GetRoom(id); err == nil && !room.Incomplete() {
		return room, nil
	}
	if err := d.callAndAwait(ctx, correlation.RoomKey(id), "getRoomInfo", map[string]string{"account": id}); err != nil {
		return models.Room{}, err
	}
	return d.store.GetRoom(id)
}

// RoomMembers returns the member map for a room, fetching on a miss.
func (d *Driver) RoomMembers(ctx context.Context, roomID string) (map[string]models.RoomMember, error) {
	if members, err := d.store.GetRoomMembers(roomID); err == nil && len(members) > 0 {
		return members, nil
	}
	if err := d.callAndAwait(ctx, correlation.RoomMemberKey(roomID), "getRoomMember", map[string]string{"account": roomID}); err != nil {
		return nil, err
	}
	return d.store.GetRoomMembers(roomID)
}
