// Package classifier turns backend system-message strings into structured
// room events. It is pure and stateless: pattern tables in, event or nil out.
// Patterns are locale-specific (Chinese and English production traffic) and
// tried in order; the first match wins. Name-to-identifier resolution is the
// caller's job.
package classifier

import (
	"regexp"
	"strings"

	"github.com/chatbridge/chatbridge/internal/models"
)

// Self is the sentinel standing in for the local account when the message
// text refers to the bot itself ("You removed ...", "你修改群名...").
const Self = "<self>"

// RoomJoin is a parsed member-joined system message.
type RoomJoin struct {
	RoomID       string
	InviterName  string
	InviteeNames []string
	Timestamp    int64
}

// RoomLeave is a parsed member-left system message.
type RoomLeave struct {
	RoomID      string
	RemoverName string
	LeaverNames []string
	Timestamp   int64
}

// RoomTopic is a parsed topic-change system message. Only the new topic is
// known from the text; the old topic comes from the caller's cache.
type RoomTopic struct {
	RoomID      string
	ChangerName string
	Topic       string
	Timestamp   int64
}

var (
	// Join: other invites other(s). Names in group 2 are 、-separated (zh)
	// or comma-separated (en).
	roomJoinOtherInviteOther = []*regexp.Regexp{
		regexp.MustCompile(`^"(.+)"邀请"(.+)"加入了群聊`),
		regexp.MustCompile(`^"?(.+?)"? invited "?(.+?)"? to the group chat`),
	}

	// Join: other invites the local account.
	roomJoinOtherInviteSelf = []*regexp.Regexp{
		regexp.MustCompile(`^"(.+)"邀请你加入了群聊`),
		regexp.MustCompile(`^"?(.+?)"? invited you to a group chat`),
		regexp.MustCompile(`^"?(.+?)"? invited you to join the group chat`),
	}

	// Join: the local account invites other(s).
	roomJoinSelfInviteOther = []*regexp.Regexp{
		regexp.MustCompile(`^你邀请"(.+)"加入了群聊`),
		regexp.MustCompile(`^You invited "?(.+?)"? to the group chat`),
	}

	// Join: someone joined by scanning a shared QR code. The sharer is the
	// closest thing to an inviter the text gives us.
	roomJoinScanQRCode = []*regexp.Regexp{
		regexp.MustCompile(`^"(.+)"通过扫描"(.+)"分享的二维码加入群聊`),
		regexp.MustCompile(`^"?(.+?)"? joined the group chat via the QR code shared by "?(.+?)"?`),
	}

	// Leave: the local account removed member(s).
	roomLeaveSelfRemoveOther = []*regexp.Regexp{
		regexp.MustCompile(`^你将"(.+)"移出了群聊`),
		regexp.MustCompile(`^You removed "(.+)" from the group chat`),
	}

	// Leave: the local account was removed. The other-removes-other case
	// produces no message at all, so it cannot be detected.
	roomLeaveOtherRemoveSelf = []*regexp.Regexp{
		regexp.MustCompile(`^你被"(.+)"移出群聊`),
		regexp.MustCompile(`^You were removed from the group chat by "(.+)"`),
	}

	// Topic changed by the local account.
	roomTopicSelf = []*regexp.Regexp{
		regexp.MustCompile(`^你修改群名为“(.+)”`),
		regexp.MustCompile(`^You changed the group name to "(.+)"`),
	}

	// Topic changed by another member.
	roomTopicOther = []*regexp.Regexp{
		regexp.MustCompile(`^"(.+)"修改群名为“(.+)”`),
		regexp.MustCompile(`^"(.+)" changed the group name to "(.+)"`),
	}
)

func matchFirst(patterns []*regexp.Regexp, text string) []string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return m
		}
	}
	return nil
}

// splitNames splits a matched name-list capture on both locale separators.
func splitNames(s string) []string {
	sep := "、"
	if strings.Contains(s, ", ") {
		sep = ", "
	}
	parts := strings.Split(s, sep)
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}
	return names
}

// ParseRoomJoin returns the join event encoded in a system message, or nil.
func ParseRoomJoin(msg *models.MessageEnvelope) *RoomJoin {
	if msg.RoomID == "" || msg.Content == "" {
		return nil
	}

	if m := matchFirst(roomJoinOtherInviteSelf, msg.Content); m != nil {
		return &RoomJoin{
			RoomID:       msg.RoomID,
			InviterName:  m[1],
			InviteeNames: []string{Self},
			Timestamp:    msg.Timestamp,
		}
	}
	if m := matchFirst(roomJoinSelfInviteOther, msg.Content); m != nil {
		return &RoomJoin{
			RoomID:       msg.RoomID,
			InviterName:  Self,
			InviteeNames: splitNames(m[1]),
			Timestamp:    msg.Timestamp,
		}
	}
	if m := matchFirst(roomJoinOtherInviteOther, msg.Content); m != nil {
		return &RoomJoin{
			RoomID:       msg.RoomID,
			InviterName:  m[1],
			InviteeNames: splitNames(m[2]),
			Timestamp:    msg.Timestamp,
		}
	}
	if m := matchFirst(roomJoinScanQRCode, msg.Content); m != nil {
		inviter := m[2]
		if inviter == "你" {
			inviter = Self
		}
		return &RoomJoin{
			RoomID:       msg.RoomID,
			InviterName:  inviter,
			InviteeNames: splitNames(m[1]),
			Timestamp:    msg.Timestamp,
		}
	}
	return nil
}

// ParseRoomLeave returns the leave event encoded in a system message, or nil.
func ParseRoomLeave(msg *models.MessageEnvelope) *RoomLeave {
	if msg.RoomID == "" || msg.Content == "" {
		return nil
	}

	if m := matchFirst(roomLeaveSelfRemoveOther, msg.Content); m != nil {
		return &RoomLeave{
			RoomID:      msg.RoomID,
			RemoverName: Self,
			LeaverNames: splitNames(m[1]),
			Timestamp:   msg.Timestamp,
		}
	}
	if m := matchFirst(roomLeaveOtherRemoveSelf, msg.Content); m != nil {
		return &RoomLeave{
			RoomID:      msg.RoomID,
			RemoverName: m[1],
			LeaverNames: []string{Self},
			Timestamp:   msg.Timestamp,
		}
	}
	return nil
}

// ParseRoomTopic returns the topic-change event encoded in a system message,
// or nil.
func ParseRoomTopic(msg *models.MessageEnvelope) *RoomTopic {
	if msg.RoomID == "" || msg.Content == "" {
		return nil
	}

	if m := matchFirst(roomTopicSelf, msg.Content); m != nil {
		return &RoomTopic{
			RoomID:      msg.RoomID,
			ChangerName: Self,
			Topic:       m[1],
			Timestamp:   msg.Timestamp,
		}
	}
	if m := matchFirst(roomTopicOther, msg.Content); m != nil {
		return &RoomTopic{
			RoomID:      msg.RoomID,
			ChangerName: m[1],
			Topic:       m[2],
			Timestamp:   msg.Timestamp,
		}
	}
	return nil
}

// Classify tries the three detectors in fixed priority order (join, leave,
// topic) and returns the first event that fires, or nil when the text is an
// ordinary message. At most one family matches a given system message.
func Classify(msg *models.MessageEnvelope) any {
	if e := ParseRoomJoin(msg); e != nil {
		return e
	}
	if e := ParseRoomLeave(msg); e != nil {
		return e
	}
	if e := ParseRoomTopic(msg); e != nil {
		return e
	}
	return nil
}
