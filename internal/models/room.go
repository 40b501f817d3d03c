package models

// Room is the local record for one group chat.
type Room struct {
	ID      string       `json:"id"`
	Topic   string       `json:"topic"`
	Avatar  string       `json:"avatar,omitempty"`
	Owner   string       `json:"owner"`
	Disturb int          `json:"disturb"`
	Members []RoomMember `json:"members"`
}

// Incomplete reports whether the room still needs a detail sync. A room is
// incomplete until it has both an owner and a member list.
func (r *Room) Incomplete() bool {
	return r.Owner == "" || len(r.Members) == 0
}

// RoomMember duplicates the contact shape scoped to one room.
type RoomMember struct {
	Account      string `json:"account"`
	AccountAlias string `json:"account_alias,omitempty"`
	Name         string `json:"name"`
	RoomAlias    string `json:"room_alias,omitempty"`
	Avatar       string `json:"avatar,omitempty"`
	Description  string `json:"description,omitempty"`
	Gender       Gender `json:"gender"`
}

// RoomInvitation is a parsed invitation card received while the local account
// is not yet in the room.
type RoomInvitation struct {
	ID        string `json:"id"`
	FromUser  string `json:"from_user"`
	RoomTopic string `json:"room_topic"`
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"`
}
