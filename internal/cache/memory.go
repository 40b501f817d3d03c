package cache

import (
	"sync"

	"github.com/chatbridge/chatbridge/internal/metrics"
	"github.com/chatbridge/chatbridge/internal/models"
)

// MemoryStore is the default in-process Store.
type MemoryStore struct {
	mu        sync.RWMutex
	accountID string

	contacts    map[string]models.Contact
	aliases     map[string]string // account -> alias
	rooms       map[string]models.Room
	members     map[string]map[string]models.RoomMember
	friendships map[string]models.Friendship
	invitations map[string]models.RoomInvitation
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a not-ready store; call Init after login.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accountID = accountID
	s.contacts = make(map[string]models.Contact)
	s.aliases = make(map[string]string)
	s.rooms = make(map[string]models.Room)
	s.members = make(map[string]map[string]models.RoomMember)
	s.friendships = make(map[string]models.Friendship)
	s.invitations = make(map[string]models.RoomInvitation)
	return nil
}

func (s *MemoryStore) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accountID = ""
	s.contacts = nil
	s.aliases = nil
	s.rooms = nil
	s.members = nil
	s.friendships = nil
	s.invitations = nil
	return nil
}

func (s *MemoryStore) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contacts != nil
}

func (s *MemoryStore) AccountID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountID
}

func (s *MemoryStore) GetContact(id string) (models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.contacts == nil {
		return models.Contact{}, ErrNotReady
	}
	c, ok := s.contacts[id]
	if !ok {
		// Records are keyed by the alias-preferred id; a plain account id
		// resolves through the alias mapping.
		if alias, aliased := s.aliases[id]; aliased {
			c, ok = s.contacts[alias]
		}
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues("contact", "miss").Inc()
		return models.Contact{}, ErrNotFound
	}
	metrics.CacheLookups.WithLabelValues("contact", "hit").Inc()
	return c, nil
}

func (s *MemoryStore) SetContact(c models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.contacts == nil {
		return ErrNotReady
	}
	s.contacts[c.ID()] = c
	return nil
}

func (s *MemoryStore) ContactIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.contacts == nil {
		return nil, ErrNotReady
	}
	ids := make([]string, 0, len(s.contacts))
	for id := range s.contacts {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *MemoryStore) SetAccountAlias(account, alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aliases == nil {
		return ErrNotReady
	}
	s.aliases[account] = alias
	return nil
}

func (s *MemoryStore) GetAccountAlias(account string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.aliases == nil {
		return "", ErrNotReady
	}
	alias, ok := s.aliases[account]
	if !ok {
		return "", ErrNotFound
	}
	return alias, nil
}

func (s *MemoryStore) GetRoom(id string) (models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rooms == nil {
		return models.Room{}, ErrNotReady
	}
	r, ok := s.rooms[id]
	if !ok {
		metrics.CacheLookups.WithLabelValues("room", "miss").Inc()
		return models.Room{}, ErrNotFound
	}
	metrics.CacheLookups.WithLabelValues("room", "hit").Inc()
	return r, nil
}

func (s *MemoryStore) SetRoom(r models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rooms == nil {
		return ErrNotReady
	}
	s.rooms[r.ID] = r
	return nil
}

func (s *MemoryStore) DeleteRoom(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rooms == nil {
		return ErrNotReady
	}
	delete(s.rooms, id)
	delete(s.members, id)
	return nil
}

func (s *MemoryStore) InvalidateRoom(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rooms == nil {
		return ErrNotReady
	}
	delete(s.rooms, id)
	return nil
}

func (s *MemoryStore) RoomIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rooms == nil {
		return nil, ErrNotReady
	}
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *MemoryStore) GetRoomMembers(roomID string) (map[string]models.RoomMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.members == nil {
		return nil, ErrNotReady
	}
	m, ok := s.members[roomID]
	if !ok {
		metrics.CacheLookups.WithLabelValues("room_member", "miss").Inc()
		return nil, ErrNotFound
	}
	metrics.CacheLookups.WithLabelValues("room_member", "hit").Inc()
	out := make(map[string]models.RoomMember, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) SetRoomMembers(roomID string, members map[string]models.RoomMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members == nil {
		return ErrNotReady
	}
	m := make(map[string]models.RoomMember, len(members))
	for k, v := range members {
		m[k] = v
	}
	s.members[roomID] = m
	return nil
}

func (s *MemoryStore) InvalidateRoomMembers(roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members == nil {
		return ErrNotReady
	}
	delete(s.members, roomID)
	return nil
}

func (s *MemoryStore) GetFriendship(id string) (models.Friendship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.friendships == nil {
		return models.Friendship{}, ErrNotReady
	}
	f, ok := s.friendships[id]
	if !ok {
		return models.Friendship{}, ErrNotFound
	}
	return f, nil
}

func (s *MemoryStore) SetFriendship(f models.Friendship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.friendships == nil {
		return ErrNotReady
	}
	s.friendships[f.ID] = f
	return nil
}

func (s *MemoryStore) GetRoomInvitation(id string) (models.RoomInvitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.invitations == nil {
		return models.RoomInvitation{}, ErrNotReady
	}
	inv, ok := s.invitations[id]
	if !ok {
		return models.RoomInvitation{}, ErrNotFound
	}
	return inv, nil
}

func (s *MemoryStore) SetRoomInvitation(inv models.RoomInvitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.invitations == nil {
		return ErrNotReady
	}
	s.invitations[inv.ID] = inv
	return nil
}
