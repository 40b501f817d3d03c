package correlation

import "fmt"

// Key constructors shared by the side that registers a waiter and the side
// that resolves it. Keys embed the entity id the reply will carry, so a reply
// only ever satisfies the request that named the same entity.

func ContactKey(id string) string {
	return "contact:" + id
}

func RoomKey(id string) string {
	return "room:" + id
}

func RoomMemberKey(roomID string) string {
	return "room-member:" + roomID
}

func RoomQRCodeKey(roomID string) string {
	return "room-qrcode:" + roomID
}

// RoomCreateKey has no entity id: the room id is exactly what the reply
// delivers, so at most one create can be in flight.
func RoomCreateKey() string {
	return "room-create"
}

func ContactListKey() string {
	return "contact-list"
}

func RoomListKey() string {
	return "room-list"
}

// AddFriendKey correlates an outbound friend request with its pre-accept
// notification, which echoes the requesting account and the searched phone.
func AddFriendKey(selfAccount string, phone int64) string {
	return fmt.Sprintf("add-friend:%s:%d", selfAccount, phone)
}
