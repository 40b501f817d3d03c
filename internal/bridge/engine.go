// Package bridge assembles the adapter: gateway, demultiplexer,
// synchronization driver, cache, and command client, wired into one engine
// with a single typed event stream for the host application.
package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/chatbridge/chatbridge/internal/api"
	"github.com/chatbridge/chatbridge/internal/cache"
	"github.com/chatbridge/chatbridge/internal/classifier"
	"github.com/chatbridge/chatbridge/internal/config"
	"github.com/chatbridge/chatbridge/internal/correlation"
	"github.com/chatbridge/chatbridge/internal/events"
	"github.com/chatbridge/chatbridge/internal/gateway"
	"github.com/chatbridge/chatbridge/internal/models"
	"github.com/chatbridge/chatbridge/internal/syncer"
)

// Engine is the assembled adapter. Events() delivers the final event stream:
// system messages announcing membership or topic changes arrive already
// classified and resolved to account ids.
type Engine struct {
	logger   zerolog.Logger
	gw       *gateway.Gateway
	store    cache.Store
	messages *cache.MessageCache
	registry *correlation.Registry
	demux    *events.Demux
	driver   *syncer.Driver
	commands *api.Client

	out    chan events.Event
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires an engine from configuration. store selects the cache backend;
// uploader may be nil when blob sends are not needed.
func New(logger zerolog.Logger, cfg *config.Config, store cache.Store, uploader api.BlobUploader) *Engine {
	gw := gateway.New(cfg.Token, cfg.Endpoint, logger)
	registry := correlation.New(logger)
	messages := cache.NewMessageCache(cfg.MessageCacheMax, cfg.MessageCacheAge)
	demux := events.New(logger, registry, store, messages)
	driver := syncer.New(logger, gw, registry, store, syncer.Options{})
	commands := api.New(logger, gw, registry, uploader)

	return &Engine{
		logger:   logger.With().Str("component", "bridge").Logger(),
		gw:       gw,
		store:    store,
		messages: messages,
		registry: registry,
		demux:    demux,
		driver:   driver,
		commands: commands,
		out:      make(chan events.Event, 64),
	}
}

// Start connects the stream and begins event processing. It returns once the
// initial connection is up.
func (e *Engine) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.demux.Attach(e.gw)
	if err := e.gw.Start(runCtx); err != nil {
		cancel()
		return err
	}
	e.driver.Run(runCtx)

	e.wg.Add(1)
	go e.loop(runCtx)
	return nil
}

// Stop tears the engine down and closes the event stream.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.gw.Stop()
	e.driver.Wait()
	e.wg.Wait()
	close(e.out)
}

// Events is the final typed event stream.
func (e *Engine) Events() <-chan events.Event {
	return e.out
}

// Commands is the outbound command surface.
func (e *Engine) Commands() *api.Client {
	return e.commands
}

// Contact fetches a contact through the cache.
func (e *Engine) Contact(ctx context.Context, id string) (models.Contact, error) {
	return e.driver.Contact(ctx, id)
}

// Room fetches a room through the cache.
func (e *Engine) Room(ctx context.Context, id string) (models.Room, error) {
	return e.driver.Room(ctx, id)
}

// RoomMembers fetches a room's member map through the cache.
func (e *Engine) RoomMembers(ctx context.Context, roomID string) (map[string]models.RoomMember, error) {
	return e.driver.RoomMembers(ctx, roomID)
}

// Message returns a recently seen message from the bounded message cache.
func (e *Engine) Message(id string) (models.MessageEnvelope, bool) {
	return e.messages.Get(id)
}

// Friendship returns a cached friendship event by id.
func (e *Engine) Friendship(id string) (models.Friendship, error) {
	return e.store.GetFriendship(id)
}

// RoomInvitation returns a cached invitation by id.
func (e *Engine) RoomInvitation(id string) (models.RoomInvitation, error) {
	return e.store.GetRoomInvitation(id)
}

// StreamHealthy reports whether the stream is up; used by the health
// endpoint.
func (e *Engine) StreamHealthy() error {
	if s := e.gw.State(); s != gateway.StateStreaming {
		return errors.New("stream " + s.String())
	}
	return nil
}

func (e *Engine) loop(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.demux.Events():
			e.handle(ctx, ev)
		}
	}
}

func (e *Engine) handle(ctx context.Context, ev events.Event) {
	switch v := ev.(type) {
	case events.LoginEvent:
		e.logger.Info().Str("account", v.Account).Msg("logged in, starting full sweep")
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.driver.FullSync(ctx); err != nil {
				e.logger.Error().Err(err).Msg("full sweep failed")
			}
		}()
		e.forward(ctx, ev)

	case events.MessageEvent:
		if v.Message.RoomID != "" && v.Message.ContentType == models.ContentSystem {
			// Name resolution may retry against the backend for a long
			// time; it must not hold up delivery of other events.
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				msg := v.Message
				if typed := e.classifySystemMessage(ctx, &msg); typed != nil {
					e.forward(ctx, typed)
					return
				}
				e.forward(ctx, events.MessageEvent{Message: msg})
			}()
			return
		}
		e.forward(ctx, ev)

	case events.RoomJoinEvent:
		e.markRoomStale(v.RoomID)
		e.forward(ctx, ev)

	case events.RoomLeaveEvent:
		if !e.leftRoom(v) {
			e.markRoomStale(v.RoomID)
		}
		e.forward(ctx, ev)

	case events.InvalidTokenEvent:
		e.logger.Error().Msg("credential rejected by backend; session cannot continue")
		e.forward(ctx, ev)

	default:
		e.forward(ctx, ev)
	}
}

// markRoomStale drops the cached room summary and queues a detail refetch.
// Membership changed under it, so reads must not trust the old copy.
func (e *Engine) markRoomStale(roomID string) {
	if err := e.store.InvalidateRoom(roomID); err != nil {
		e.logger.Warn().Err(err).Str("room", roomID).Msg("room invalidation failed")
	}
	e.driver.EnqueueRoomBackfill(roomID)
}

// leftRoom reports whether the leave event removed the local account itself.
func (e *Engine) leftRoom(v events.RoomLeaveEvent) bool {
	self := e.store.AccountID()
	for _, id := range v.LeaverIDs {
		if id == self {
			return true
		}
	}
	return false
}

// classifySystemMessage turns a room system message into a typed membership
// or topic event with names resolved to account ids, or returns nil to pass
// the message through unchanged.
func (e *Engine) classifySystemMessage(ctx context.Context, msg *models.MessageEnvelope) events.Event {
	if msg.RoomID == "" || msg.ContentType != models.ContentSystem {
		return nil
	}

	switch c := classifier.Classify(msg).(type) {
	case *classifier.RoomJoin:
		invitees := e.driver.ResolveMemberNames(ctx, c.RoomID, c.InviteeNames)
		inviter := e.driver.ResolveMemberName(ctx, c.RoomID, c.InviterName)
		e.driver.EnqueueRoomBackfill(c.RoomID)
		return events.RoomJoinEvent{
			RoomID:     c.RoomID,
			InviteeIDs: invitees,
			InviterID:  inviter,
			Timestamp:  c.Timestamp,
		}

	case *classifier.RoomLeave:
		leavers := e.driver.ResolveMemberNames(ctx, c.RoomID, c.LeaverNames)
		remover := e.driver.ResolveMemberName(ctx, c.RoomID, c.RemoverName)
		e.driver.EnqueueRoomBackfill(c.RoomID)
		return events.RoomLeaveEvent{
			RoomID:    c.RoomID,
			LeaverIDs: leavers,
			RemoverID: remover,
			Timestamp: c.Timestamp,
		}

	case *classifier.RoomTopic:
		changer := e.driver.ResolveMemberName(ctx, c.RoomID, c.ChangerName)
		oldTopic := ""
		if room, err := e.store.GetRoom(c.RoomID); err == nil {
			oldTopic = room.Topic
			room.Topic = c.Topic
			if err := e.store.SetRoom(room); err != nil {
				e.logger.Warn().Err(err).Str("room", c.RoomID).Msg("topic update not cached")
			}
		}
		e.driver.EnqueueRoomBackfill(c.RoomID)
		return events.RoomTopicEvent{
			RoomID:    c.RoomID,
			Topic:     c.Topic,
			OldTopic:  oldTopic,
			ChangerID: changer,
			Timestamp: c.Timestamp,
		}
	}
	return nil
}

func (e *Engine) forward(ctx context.Context, ev events.Event) {
	select {
	case e.out <- ev:
	case <-ctx.Done():
	}
}
