package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatbridge/chatbridge/internal/cache"
	"github.com/chatbridge/chatbridge/internal/config"
	"github.com/chatbridge/chatbridge/internal/events"
	"github.com/chatbridge/chatbridge/internal/models"
)

func newTestEngine(t *testing.T) (*Engine, *cache.MemoryStore) {
	t.Helper()
	store := cache.NewMemoryStore()
	require.NoError(t, store.Init("wxid_self"))
	cfg := &config.Config{
		Token:           "secret",
		Endpoint:        "http://127.0.0.1:0",
		MessageCacheMax: 100,
		MessageCacheAge: time.Hour,
	}
	return New(zerolog.Nop(), cfg, store, nil), store
}

func roomSystemMsg(roomID, content string) models.MessageEnvelope {
	return models.MessageEnvelope{
		ID:          "01J0TESTMSG",
		ContentType: models.ContentSystem,
		Content:     content,
		RoomID:      roomID,
		Timestamp:   1717000000,
	}
}

func TestClassifyJoinResolvesMemberIDs(t *testing.T) {
	e, store := newTestEngine(t)
	require.NoError(t, store.SetRoomMembers("42@chatroom", map[string]models.RoomMember{
		"wxid_gy": {Account: "wxid_gy", Name: "高原ོ"},
		"wxid_ol": {Account: "wxid_ol", Name: "奥斯陆"},
	}))

	msg := roomSystemMsg("42@chatroom", `"高原ོ"邀请"奥斯陆"加入了群聊`)
	ev := e.classifySystemMessage(context.Background(), &msg)

	join, ok := ev.(events.RoomJoinEvent)
	require.True(t, ok)
	assert.Equal(t, "42@chatroom", join.RoomID)
	assert.Equal(t, "wxid_gy", join.InviterID)
	assert.Equal(t, []string{"wxid_ol"}, join.InviteeIDs)
}

func TestClassifySelfInviteUsesAccountID(t *testing.T) {
	e, store := newTestEngine(t)
	require.NoError(t, store.SetRoomMembers("42@chatroom", map[string]models.RoomMember{
		"wxid_b": {Account: "wxid_b", Name: "Bob"},
	}))

	msg := roomSystemMsg("42@chatroom", `你邀请"Bob"加入了群聊`)
	ev := e.classifySystemMessage(context.Background(), &msg)

	join, ok := ev.(events.RoomJoinEvent)
	require.True(t, ok)
	assert.Equal(t, "wxid_self", join.InviterID)
	assert.Equal(t, []string{"wxid_b"}, join.InviteeIDs)
}

func TestClassifyTopicUpdatesCache(t *testing.T) {
	e, store := newTestEngine(t)
	require.NoError(t, store.SetRoom(models.Room{ID: "42@chatroom", Topic: "Old Name", Owner: "wxid_o"}))

	msg := roomSystemMsg("42@chatroom", `你修改群名为“New Name”`)
	ev := e.classifySystemMessage(context.Background(), &msg)

	topic, ok := ev.(events.RoomTopicEvent)
	require.True(t, ok)
	assert.Equal(t, "New Name", topic.Topic)
	assert.Equal(t, "Old Name", topic.OldTopic)
	assert.Equal(t, "wxid_self", topic.ChangerID)

	room, err := store.GetRoom("42@chatroom")
	require.NoError(t, err)
	assert.Equal(t, "New Name", room.Topic)
}

func TestPlainSystemMessagePassesThrough(t *testing.T) {
	e, _ := newTestEngine(t)
	msg := roomSystemMsg("42@chatroom", "You recalled a message")
	assert.Nil(t, e.classifySystemMessage(context.Background(), &msg))
}

func TestPrivateMessageNotClassified(t *testing.T) {
	e, _ := newTestEngine(t)
	msg := models.MessageEnvelope{
		ID:          "01J0TESTMSG",
		ContentType: models.ContentSystem,
		Content:     `你修改群名为“x”`,
	}
	assert.Nil(t, e.classifySystemMessage(context.Background(), &msg))
}

func TestUnresolvableSystemMessageDoesNotStallEvents(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// No cached members and an unreachable backend: every resolution
	// attempt for these names misses and retries under backoff.
	done := make(chan struct{})
	go func() {
		e.handle(ctx, events.MessageEvent{Message: roomSystemMsg("42@chatroom", `"Ghost"邀请"Phantom"加入了群聊`)})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handle blocked on member-name resolution")
	}

	plain := models.MessageEnvelope{
		ID:          "01J0PLAIN",
		ContentType: models.ContentText,
		Content:     "hi",
	}
	e.handle(ctx, events.MessageEvent{Message: plain})

	select {
	case ev := <-e.out:
		msg, ok := ev.(events.MessageEvent)
		require.True(t, ok)
		assert.Equal(t, "01J0PLAIN", msg.Message.ID)
	case <-time.After(time.Second):
		t.Fatal("event delivery stalled behind member-name resolution")
	}

	cancel()
	e.wg.Wait()
}

func TestLeftRoom(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.True(t, e.leftRoom(events.RoomLeaveEvent{LeaverIDs: []string{"wxid_self"}}))
	assert.False(t, e.leftRoom(events.RoomLeaveEvent{LeaverIDs: []string{"wxid_a"}}))
}
