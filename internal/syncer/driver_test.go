package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatbridge/chatbridge/internal/cache"
	"github.com/chatbridge/chatbridge/internal/classifier"
	"github.com/chatbridge/chatbridge/internal/correlation"
	"github.com/chatbridge/chatbridge/internal/models"
)

type callerFunc func(ctx context.Context, apiName string, data any) (json.RawMessage, error)

func (f callerFunc) Call(ctx context.Context, apiName string, data any) (json.RawMessage, error) {
	return f(ctx, apiName, data)
}

func fastOpts() Options {
	return Options{
		QueueSpacing:        time.Millisecond,
		AwaitTimeout:        200 * time.Millisecond,
		MemberRetryBase:     time.Millisecond,
		MemberRetryCap:      4 * time.Millisecond,
		MemberRetryAttempts: 2,
	}
}

func TestBackfillIsIdempotentPerRoom(t *testing.T) {
	store := cache.NewMemoryStore()
	require.NoError(t, store.Init("wxid_self"))
	registry := correlation.New(zerolog.Nop())

	var calls int32
	caller := callerFunc(func(ctx context.Context, apiName string, data any) (json.RawMessage, error) {
		atomic.AddInt32(&calls, 1)
		go registry.Resolve(correlation.RoomKey("42@chatroom"), []byte(`{}`))
		return nil, nil
	})
	d := New(zerolog.Nop(), caller, registry, store, fastOpts())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.EnqueueRoomBackfill("42@chatroom")
		}()
	}
	wg.Wait()

	ctx, cancel := context.WithCancel(context.Background())
	d.Run(ctx)
	time.Sleep(100 * time.Millisecond)
	cancel()
	d.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "duplicate enqueues must collapse to one fetch")
}

func TestFullSyncQueuesOnlyIncompleteRooms(t *testing.T) {
	store := cache.NewMemoryStore()
	require.NoError(t, store.Init("wxid_self"))
	registry := correlation.New(zerolog.Nop())

	caller := callerFunc(func(ctx context.Context, apiName string, data any) (json.RawMessage, error) {
		switch apiName {
		case "getContactList":
			go registry.Resolve(correlation.ContactListKey(), []byte(`{}`))
		case "getRoomList":
			store.SetRoom(models.Room{ID: "full@chatroom", Topic: "Full", Owner: "wxid_o",
				Members: []models.RoomMember{{Account: "wxid_a"}}})
			store.SetRoom(models.Room{ID: "bare@chatroom", Topic: "Bare"})
			go registry.Resolve(correlation.RoomListKey(), []byte(`{}`))
		}
		return nil, nil
	})
	d := New(zerolog.Nop(), caller, registry, store, fastOpts())

	require.NoError(t, d.FullSync(context.Background()))

	select {
	case id := <-d.queue:
		assert.Equal(t, "bare@chatroom", id)
	default:
		t.Fatal("incomplete room not queued")
	}
	select {
	case id := <-d.queue:
		t.Fatalf("complete room %s queued", id)
	default:
	}
}

func TestContactLookupThroughAliasMapping(t *testing.T) {
	store := cache.NewMemoryStore()
	require.NoError(t, store.Init("wxid_self"))
	require.NoError(t, store.SetContact(models.Contact{Account: "wxid_a", AccountAlias: "alice", Name: "A"}))
	require.NoError(t, store.SetAccountAlias("wxid_a", "alice"))

	caller := callerFunc(func(ctx context.Context, apiName string, data any) (json.RawMessage, error) {
		t.Fatal("cache hit must not reach the backend")
		return nil, nil
	})
	d := New(zerolog.Nop(), caller, correlation.New(zerolog.Nop()), store, fastOpts())

	c, err := d.Contact(context.Background(), "wxid_a")
	require.NoError(t, err)
	assert.Equal(t, "A", c.Name)
}

func TestContactMissFetchesOnce(t *testing.T) {
	store := cache.NewMemoryStore()
	require.NoError(t, store.Init("wxid_self"))
	registry := correlation.New(zerolog.Nop())

	var calls int32
	caller := callerFunc(func(ctx context.Context, apiName string, data any) (json.RawMessage, error) {
		atomic.AddInt32(&calls, 1)
		store.SetContact(models.Contact{Account: "wxid_b", Name: "B"})
		go registry.Resolve(correlation.ContactKey("wxid_b"), []byte(`{}`))
		return nil, nil
	})
	d := New(zerolog.Nop(), caller, registry, store, fastOpts())

	c, err := d.Contact(context.Background(), "wxid_b")
	require.NoError(t, err)
	assert.Equal(t, "B", c.Name)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestResolveMemberNames(t *testing.T) {
	store := cache.NewMemoryStore()
	require.NoError(t, store.Init("wxid_self"))
	require.NoError(t, store.SetRoomMembers("42@chatroom", map[string]models.RoomMember{
		"wxid_a": {Account: "wxid_a", Name: "Alice", RoomAlias: "Al"},
		"wxid_b": {Account: "wxid_b", Name: "Bob"},
	}))

	d := New(zerolog.Nop(), callerFunc(func(context.Context, string, any) (json.RawMessage, error) {
		return nil, nil
	}), correlation.New(zerolog.Nop()), store, fastOpts())

	ids := d.ResolveMemberNames(context.Background(), "42@chatroom", []string{"Al", "Bob", classifier.Self})
	assert.ElementsMatch(t, []string{"wxid_a", "wxid_b", "wxid_self"}, ids)
}

func TestResolveMemberNameRefetchesAfterMiss(t *testing.T) {
	store := cache.NewMemoryStore()
	require.NoError(t, store.Init("wxid_self"))
	require.NoError(t, store.SetRoomMembers("42@chatroom", map[string]models.RoomMember{
		"wxid_a": {Account: "wxid_a", Name: "Alice"},
	}))
	registry := correlation.New(zerolog.Nop())

	caller := callerFunc(func(ctx context.Context, apiName string, data any) (json.RawMessage, error) {
		store.SetRoomMembers("42@chatroom", map[string]models.RoomMember{
			"wxid_a": {Account: "wxid_a", Name: "Alice"},
			"wxid_c": {Account: "wxid_c", Name: "Carol"},
		})
		go registry.Resolve(correlation.RoomMemberKey("42@chatroom"), []byte(`{}`))
		return nil, nil
	})
	d := New(zerolog.Nop(), caller, registry, store, fastOpts())

	assert.Equal(t, "wxid_c", d.ResolveMemberName(context.Background(), "42@chatroom", "Carol"))
}

func TestResolveMemberNamesDegradesToEmpty(t *testing.T) {
	store := cache.NewMemoryStore()
	require.NoError(t, store.Init("wxid_self"))
	registry := correlation.New(zerolog.Nop())

	caller := callerFunc(func(ctx context.Context, apiName string, data any) (json.RawMessage, error) {
		return nil, assert.AnError
	})
	d := New(zerolog.Nop(), caller, registry, store, fastOpts())

	ids := d.ResolveMemberNames(context.Background(), "42@chatroom", []string{"Ghost"})
	assert.Empty(t, ids)
}
