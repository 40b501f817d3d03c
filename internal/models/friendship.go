package models

// FriendshipType discriminates the three friendship event flavors.
type FriendshipType int

const (
	FriendshipConfirm FriendshipType = iota + 1
	FriendshipReceive
	FriendshipVerify
)

// Friendship is a pending or completed friend event, cached until the
// consumer fetches it by id.
type Friendship struct {
	ID        string         `json:"id"`
	Type      FriendshipType `json:"type"`
	ContactID string         `json:"contact_id"`
	Hello     string         `json:"hello,omitempty"`
	Stranger  string         `json:"stranger,omitempty"`
	Ticket    string         `json:"ticket,omitempty"`
	Timestamp int64          `json:"timestamp"`
}
