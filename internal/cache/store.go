// Package cache holds the local view of the account: contacts, rooms, room
// members, and pending friendship events. The store has no network awareness;
// the synchronization driver decides when to fill or invalidate it.
//
// Concurrency contract: safe concurrent reads, last-write-wins concurrent
// writes per key, no cross-key atomicity. A Room and its member map are
// independent keys and may be observed out of sync with each other.
package cache

import (
	"errors"

	"github.com/chatbridge/chatbridge/internal/models"
)

var (
	// ErrNotReady reports that the store has not been initialized for an
	// account yet. Distinct from ErrNotFound so callers can tell "no such
	// entity" from "not yet able to answer".
	ErrNotReady = errors.New("cache: not initialized")

	// ErrNotFound reports a missing entity in a ready store.
	ErrNotFound = errors.New("cache: not found")
)

// Store is the cache surface shared by the gateway consumers. Implementations
// must be safe for concurrent use.
type Store interface {
	// Init binds the store to a logged-in account and makes it ready.
	// Re-init with a different account clears previous state.
	Init(accountID string) error
	// Release clears all state and makes the store not-ready.
	Release() error
	Ready() bool
	AccountID() string

	// GetContact accepts either identifier namespace: a direct key miss
	// falls back through the account→alias mapping.
	GetContact(id string) (models.Contact, error)
	SetContact(c models.Contact) error
	ContactIDs() ([]string, error)
	// SetAccountAlias records the account→alias identifier mapping so either
	// namespace can be used as a lookup key.
	SetAccountAlias(account, alias string) error
	GetAccountAlias(account string) (string, error)

	GetRoom(id string) (models.Room, error)
	SetRoom(r models.Room) error
	// DeleteRoom removes the room and its member map; used when the local
	// account leaves or is removed from the room.
	DeleteRoom(id string) error
	// InvalidateRoom marks the room dirty so the next read refetches.
	InvalidateRoom(id string) error
	RoomIDs() ([]string, error)

	GetRoomMembers(roomID string) (map[string]models.RoomMember, error)
	SetRoomMembers(roomID string, members map[string]models.RoomMember) error
	InvalidateRoomMembers(roomID string) error

	GetFriendship(id string) (models.Friendship, error)
	SetFriendship(f models.Friendship) error

	GetRoomInvitation(id string) (models.RoomInvitation, error)
	SetRoomInvitation(inv models.RoomInvitation) error
}
