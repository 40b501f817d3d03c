package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatbridge/chatbridge/internal/models"
)

func systemMsg(roomID, content string) *models.MessageEnvelope {
	return &models.MessageEnvelope{
		ID:          "1",
		ContentType: models.ContentSystem,
		Content:     content,
		RoomID:      roomID,
		RoomTopic:   "Bots",
		SelfAccount: "wxid_v7j3e9kna9l912",
	}
}

func TestParseRoomJoinOtherInviteOther(t *testing.T) {
	e := ParseRoomJoin(systemMsg("23761343687@chatroom", `"高原ོ"邀请"奥斯陆"加入了群聊`))
	require.NotNil(t, e)
	assert.Equal(t, "高原ོ", e.InviterName)
	assert.Equal(t, []string{"奥斯陆"}, e.InviteeNames)
	assert.Equal(t, "23761343687@chatroom", e.RoomID)
}

func TestParseRoomJoinOtherInviteOthers(t *testing.T) {
	e := ParseRoomJoin(systemMsg("23761343687@chatroom", `"高原ོ"邀请"袋袋-句子互动商务、百年-句子技术支持"加入了群聊`))
	require.NotNil(t, e)
	assert.Equal(t, "高原ོ", e.InviterName)
	assert.Equal(t, []string{"袋袋-句子互动商务", "百年-句子技术支持"}, e.InviteeNames)
}

func TestParseRoomJoinOtherInviteSelf(t *testing.T) {
	e := ParseRoomJoin(systemMsg("23761343687@chatroom", `"我爱抓娃娃-抓抓抓抓抓抓抓抓"邀请你加入了群聊，群聊参与人还有：苏畅👾、高原ོ`))
	require.NotNil(t, e)
	assert.Equal(t, "我爱抓娃娃-抓抓抓抓抓抓抓抓", e.InviterName)
	assert.Equal(t, []string{Self}, e.InviteeNames)
}

func TestParseRoomJoinSelfInviteOther(t *testing.T) {
	e := ParseRoomJoin(systemMsg("23761343687@chatroom", `你邀请"彩虹桥"加入了群聊`))
	require.NotNil(t, e)
	assert.Equal(t, Self, e.InviterName)
	assert.Equal(t, []string{"彩虹桥"}, e.InviteeNames)
}

func TestParseRoomJoinEnglish(t *testing.T) {
	e := ParseRoomJoin(systemMsg("1@chatroom", `"Tony" invited "Maya, Lee" to the group chat`))
	require.NotNil(t, e)
	assert.Equal(t, "Tony", e.InviterName)
	assert.Equal(t, []string{"Maya", "Lee"}, e.InviteeNames)
}

func TestParseRoomJoinNoRoomID(t *testing.T) {
	assert.Nil(t, ParseRoomJoin(systemMsg("", `"A"邀请"B"加入了群聊`)))
}

func TestParseRoomLeaveSelfRemoveOther(t *testing.T) {
	e := ParseRoomLeave(systemMsg("23761343687@chatroom", `你将"百年-句子技术支持"移出了群聊`))
	require.NotNil(t, e)
	assert.Equal(t, Self, e.RemoverName)
	assert.Equal(t, []string{"百年-句子技术支持"}, e.LeaverNames)
}

func TestParseRoomLeaveOtherRemoveSelf(t *testing.T) {
	e := ParseRoomLeave(systemMsg("23761343687@chatroom", `你被"高原ོ"移出群聊`))
	require.NotNil(t, e)
	assert.Equal(t, "高原ོ", e.RemoverName)
	assert.Equal(t, []string{Self}, e.LeaverNames)
}

func TestParseRoomTopicSelf(t *testing.T) {
	e := ParseRoomTopic(systemMsg("11421066118@chatroom", `你修改群名为“botsssss”`))
	require.NotNil(t, e)
	assert.Equal(t, Self, e.ChangerName)
	assert.Equal(t, "botsssss", e.Topic)
	assert.Equal(t, "11421066118@chatroom", e.RoomID)
}

func TestParseRoomTopicOther(t *testing.T) {
	e := ParseRoomTopic(systemMsg("11421066118@chatroom", `"高原ོ"修改群名为“BOTs”`))
	require.NotNil(t, e)
	assert.Equal(t, "高原ོ", e.ChangerName)
	assert.Equal(t, "BOTs", e.Topic)
}

func TestParseRoomTopicEnglish(t *testing.T) {
	e := ParseRoomTopic(systemMsg("1@chatroom", `"Tony" changed the group name to "ops"`))
	require.NotNil(t, e)
	assert.Equal(t, "Tony", e.ChangerName)
	assert.Equal(t, "ops", e.Topic)
}

func TestClassifyPriorityAndNoMatch(t *testing.T) {
	// Arbitrary unrelated text is not an event.
	assert.Nil(t, Classify(systemMsg("1@chatroom", "lunch anyone?")))

	// A join message classifies as join and nothing else.
	e := Classify(systemMsg("1@chatroom", `"A"邀请"B"加入了群聊`))
	_, ok := e.(*RoomJoin)
	assert.True(t, ok)
}

func TestParseFriendshipConfirm(t *testing.T) {
	msg := &models.MessageEnvelope{
		ID:          "m1",
		Content:     "你已添加了高原ོ，现在可以开始聊天了。",
		PeerAccount: "acct_1",
		PeerAlias:   "wxid_1",
	}
	f := ParseFriendshipConfirm(msg)
	require.NotNil(t, f)
	assert.Equal(t, models.FriendshipConfirm, f.Type)
	assert.Equal(t, "wxid_1", f.ContactID)
	assert.Equal(t, "m1", f.ID)

	assert.Nil(t, ParseFriendshipConfirm(systemMsg("", "hello there")))
}

func TestParseFriendshipVerify(t *testing.T) {
	msg := &models.MessageEnvelope{
		ID:          "m2",
		Content:     "高原ོ开启了朋友验证，你还不是他（她）朋友。请先发送朋友验证请求，对方验证通过后，才能聊天。",
		PeerAccount: "acct_1",
	}
	f := ParseFriendshipVerify(msg)
	require.NotNil(t, f)
	assert.Equal(t, models.FriendshipVerify, f.Type)
	assert.Equal(t, "acct_1", f.ContactID)
}

func TestParseFriendRequest(t *testing.T) {
	f := ParseFriendRequest(&models.WireFriendRequest{
		Account:        "acct_9",
		CheckMsg:       "hi, it's me",
		EncodeUserName: "v1_abc",
	})
	require.NotNil(t, f)
	assert.Equal(t, models.FriendshipReceive, f.Type)
	assert.Equal(t, "acct_9", f.ContactID)
	assert.Equal(t, "hi, it's me", f.Hello)
	assert.NotEmpty(t, f.ID)
}

func TestParseFriendRequestPrefersAlias(t *testing.T) {
	f := ParseFriendRequest(&models.WireFriendRequest{
		Account:      "acct_9",
		AccountAlias: "wxid_9",
	})
	require.NotNil(t, f)
	assert.Equal(t, "wxid_9", f.ContactID)
}

func TestParseNewFriendContact(t *testing.T) {
	c := ParseNewFriendContact(&models.WireNewFriendMessage{
		Data: `{"name":"奥斯陆","account":"acct_5","sex":"2","area":"Oslo","thumb":"http://x/t.png"}`,
	})
	require.NotNil(t, c)
	assert.Equal(t, "acct_5", c.Account)
	assert.Equal(t, models.GenderFemale, c.Gender)

	assert.Nil(t, ParseNewFriendContact(&models.WireNewFriendMessage{Data: "not json"}))
}

func TestParseRoomInvite(t *testing.T) {
	content := `{"des":"\"苏畅\"邀请你加入群聊💑 长青服饰👫，进入可查看详情。","thumb":"http://x/h.png","title":"邀请你加入群聊","url":"https://support.example.com/join?ticket=abc"}`
	msg := &models.MessageEnvelope{ID: "m3", Content: content, SelfAccount: "wxid_self"}

	inv := ParseRoomInvite(msg)
	require.NotNil(t, inv)
	assert.Equal(t, "💑 长青服饰👫", inv.RoomTopic)
	assert.Equal(t, "https://support.example.com/join?ticket=abc", inv.URL)

	assert.Nil(t, ParseRoomInvite(&models.MessageEnvelope{Content: "plain text"}))
}

func TestParseURLLink(t *testing.T) {
	msg := &models.MessageEnvelope{
		ContentType: models.ContentURLLink,
		Content:     `{"title":"a post","thumbUrl":"http://x/t.png","des":"summary","url":"http://x/p"}`,
	}
	l := ParseURLLink(msg)
	require.NotNil(t, l)
	assert.Equal(t, "a post", l.Title)
	assert.Equal(t, "http://x/p", l.URL)

	assert.Nil(t, ParseURLLink(&models.MessageEnvelope{ContentType: models.ContentText}))
}
