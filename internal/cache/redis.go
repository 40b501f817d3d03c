package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/chatbridge/chatbridge/internal/metrics"
	"github.com/chatbridge/chatbridge/internal/models"
)

// RedisStore is a Store that survives process restarts. Each account's view
// lives under its own key prefix; Init for a different account leaves other
// accounts' data untouched.
type RedisStore struct {
	client *redis.Client
	ctx    context.Context

	mu        sync.RWMutex
	accountID string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client, ctx: ctx}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping verifies the Redis connection; used by the health endpoint.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Init(accountID string) error {
	s.mu.Lock()
	s.accountID = accountID
	s.mu.Unlock()
	return nil
}

func (s *RedisStore) Release() error {
	s.mu.Lock()
	s.accountID = ""
	s.mu.Unlock()
	return nil
}

func (s *RedisStore) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountID != ""
}

func (s *RedisStore) AccountID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountID
}

// key returns the hash key for one record kind under the current account.
func (s *RedisStore) key(kind string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.accountID == "" {
		return "", ErrNotReady
	}
	return fmt.Sprintf("chatbridge:%s:%s", s.accountID, kind), nil
}

func (s *RedisStore) getJSON(kind, field string, dst any) error {
	key, err := s.key(kind)
	if err != nil {
		return err
	}
	data, err := s.client.HGet(s.ctx, key, field).Result()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dst)
}

func (s *RedisStore) setJSON(kind, field string, v any) error {
	key, err := s.key(kind)
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.HSet(s.ctx, key, field, string(data)).Err()
}

func (s *RedisStore) del(kind string, fields ...string) error {
	key, err := s.key(kind)
	if err != nil {
		return err
	}
	return s.client.HDel(s.ctx, key, fields...).Err()
}

func (s *RedisStore) fields(kind string) ([]string, error) {
	key, err := s.key(kind)
	if err != nil {
		return nil, err
	}
	return s.client.HKeys(s.ctx, key).Result()
}

func (s *RedisStore) GetContact(id string) (models.Contact, error) {
	var c models.Contact
	err := s.getJSON("contacts", id, &c)
	if err == ErrNotFound {
		var alias string
		if s.getJSON("aliases", id, &alias) == nil {
			err = s.getJSON("contacts", alias, &c)
		}
	}
	if err == ErrNotFound {
		metrics.CacheLookups.WithLabelValues("contact", "miss").Inc()
	} else if err == nil {
		metrics.CacheLookups.WithLabelValues("contact", "hit").Inc()
	}
	return c, err
}

func (s *RedisStore) SetContact(c models.Contact) error {
	return s.setJSON("contacts", c.ID(), c)
}

func (s *RedisStore) ContactIDs() ([]string, error) {
	return s.fields("contacts")
}

func (s *RedisStore) SetAccountAlias(account, alias string) error {
	return s.setJSON("aliases", account, alias)
}

func (s *RedisStore) GetAccountAlias(account string) (string, error) {
	var alias string
	err := s.getJSON("aliases", account, &alias)
	return alias, err
}

func (s *RedisStore) GetRoom(id string) (models.Room, error) {
	var r models.Room
	err := s.getJSON("rooms", id, &r)
	if err == ErrNotFound {
		metrics.CacheLookups.WithLabelValues("room", "miss").Inc()
	} else if err == nil {
		metrics.CacheLookups.WithLabelValues("room", "hit").Inc()
	}
	return r, err
}

func (s *RedisStore) SetRoom(r models.Room) error {
	return s.setJSON("rooms", r.ID, r)
}

func (s *RedisStore) DeleteRoom(id string) error {
	if err := s.del("rooms", id); err != nil {
		return err
	}
	return s.del("members", id)
}

func (s *RedisStore) InvalidateRoom(id string) error {
	return s.del("rooms", id)
}

func (s *RedisStore) RoomIDs() ([]string, error) {
	return s.fields("rooms")
}

func (s *RedisStore) GetRoomMembers(roomID string) (map[string]models.RoomMember, error) {
	var m map[string]models.RoomMember
	err := s.getJSON("members", roomID, &m)
	if err == ErrNotFound {
		metrics.CacheLookups.WithLabelValues("room_member", "miss").Inc()
	} else if err == nil {
		metrics.CacheLookups.WithLabelValues("room_member", "hit").Inc()
	}
	return m, err
}

func (s *RedisStore) SetRoomMembers(roomID string, members map[string]models.RoomMember) error {
	return s.setJSON("members", roomID, members)
}

func (s *RedisStore) InvalidateRoomMembers(roomID string) error {
	return s.del("members", roomID)
}

func (s *RedisStore) GetFriendship(id string) (models.Friendship, error) {
	var f models.Friendship
	err := s.getJSON("friendships", id, &f)
	return f, err
}

func (s *RedisStore) SetFriendship(f models.Friendship) error {
	return s.setJSON("friendships", f.ID, f)
}

func (s *RedisStore) GetRoomInvitation(id string) (models.RoomInvitation, error) {
	var inv models.RoomInvitation
	err := s.getJSON("invitations", id, &inv)
	return inv, err
}

func (s *RedisStore) SetRoomInvitation(inv models.RoomInvitation) error {
	return s.setJSON("invitations", inv.ID, inv)
}
