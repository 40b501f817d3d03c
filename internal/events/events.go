// Package events turns the raw frame stream into typed domain events. The
// demultiplexer is the only component that understands frame codes; everything
// downstream consumes the Event types defined here.
package events

import "github.com/chatbridge/chatbridge/internal/models"

// Event is the closed set of domain notifications. Kind doubles as the
// metrics label.
type Event interface {
	Kind() string
}

// LoginEvent signals a completed session login.
type LoginEvent struct {
	Account      string
	AccountAlias string
	Name         string
	Avatar       string
}

// LogoutEvent signals the end of the session, voluntary or not.
type LogoutEvent struct {
	Account string
	Reason  string
}

// ScanEvent carries login QR code progress. A Status of 8 means the code was
// scanned and confirmed on the phone.
type ScanEvent struct {
	QRCode string
	Status int
}

// MessageEvent is a regular inbound or self-sent message.
type MessageEvent struct {
	Message models.MessageEnvelope
}

// FriendshipEvent is a friend request, confirmation, or verification demand.
type FriendshipEvent struct {
	Friendship models.Friendship
}

// FriendDeletedEvent signals the counterparty removed the friendship.
type FriendDeletedEvent struct {
	Account      string
	AccountAlias string
}

// RoomJoinEvent signals accounts entering a room.
type RoomJoinEvent struct {
	RoomID     string
	InviteeIDs []string
	InviterID  string
	Timestamp  int64
}

// RoomLeaveEvent signals accounts leaving or being removed from a room.
type RoomLeaveEvent struct {
	RoomID    string
	LeaverIDs []string
	RemoverID string
	Timestamp int64
}

// RoomTopicEvent signals a room rename.
type RoomTopicEvent struct {
	RoomID    string
	Topic     string
	OldTopic  string
	ChangerID string
	Timestamp int64
}

// RoomInviteEvent is an invitation card for a room the account is not in.
type RoomInviteEvent struct {
	Invitation models.RoomInvitation
}

// HeartbeatEvent is the rate-capped local liveness signal.
type HeartbeatEvent struct{}

// ReconnectEvent signals that the stream was replaced; cached listeners on
// the old stream handle are gone.
type ReconnectEvent struct{}

// InvalidTokenEvent signals a rejected credential. Not recoverable without a
// new token.
type InvalidTokenEvent struct{}

func (LoginEvent) Kind() string         { return "login" }
func (LogoutEvent) Kind() string        { return "logout" }
func (ScanEvent) Kind() string          { return "scan" }
func (MessageEvent) Kind() string       { return "message" }
func (FriendshipEvent) Kind() string    { return "friendship" }
func (FriendDeletedEvent) Kind() string { return "friend-deleted" }
func (RoomJoinEvent) Kind() string      { return "room-join" }
func (RoomLeaveEvent) Kind() string     { return "room-leave" }
func (RoomTopicEvent) Kind() string     { return "room-topic" }
func (RoomInviteEvent) Kind() string    { return "room-invite" }
func (HeartbeatEvent) Kind() string     { return "heartbeat" }
func (ReconnectEvent) Kind() string     { return "reconnect" }
func (InvalidTokenEvent) Kind() string  { return "invalid-token" }
