package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRefreshUnknown indica un jti inexistente, revocado o expirado.
var ErrRefreshUnknown = errors.New("refresh session unknown")

// RefreshTokenStore registra cada sesión de refresh por jti, con su dueño, y
// las indexa por usuario para poder cerrarlas todas a la vez.
type RefreshTokenStore interface {
	Save(jti, userID string, ttl time.Duration) error
	Owner(jti string) (string, error)
	Revoke(jti string) error
	RevokeUser(userID string) error
}

type refreshSession struct {
	userID    string
	expiresAt time.Time
}

type memoryRefreshTokenStore struct {
	mu       sync.Mutex
	sessions map[string]refreshSession
	byUser   map[string]map[string]struct{}
}

func NewMemoryRefreshTokenStore() RefreshTokenStore {
	return &memoryRefreshTokenStore{
		sessions: make(map[string]refreshSession),
		byUser:   make(map[string]map[string]struct{}),
	}
}

func (s *memoryRefreshTokenStore) Save(jti, userID string, ttl time.Duration) error {
	if strings.TrimSpace(jti) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(jti)
	s.sessions[jti] = refreshSession{userID: userID, expiresAt: time.Now().UTC().Add(ttl)}
	jtis, ok := s.byUser[userID]
	if !ok {
		jtis = make(map[string]struct{})
		s.byUser[userID] = jtis
	}
	jtis[jti] = struct{}{}
	return nil
}

func (s *memoryRefreshTokenStore) Owner(jti string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[jti]
	if !ok {
		return "", ErrRefreshUnknown
	}
	if time.Now().UTC().After(sess.expiresAt) {
		s.dropLocked(jti)
		return "", ErrRefreshUnknown
	}
	return sess.userID, nil
}

func (s *memoryRefreshTokenStore) Revoke(jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(jti)
	return nil
}

func (s *memoryRefreshTokenStore) RevokeUser(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for jti := range s.byUser[userID] {
		delete(s.sessions, jti)
	}
	delete(s.byUser, userID)
	return nil
}

func (s *memoryRefreshTokenStore) dropLocked(jti string) {
	sess, ok := s.sessions[jti]
	if !ok {
		return
	}
	delete(s.sessions, jti)
	if jtis, ok := s.byUser[sess.userID]; ok {
		delete(jtis, jti)
		if len(jtis) == 0 {
			delete(s.byUser, sess.userID)
		}
	}
}

// redisSessionClient es el subconjunto de *redis.Client que usa el store.
type redisSessionClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// redisRefreshTokenStore guarda portal:refresh:session:<jti> -> userID y el
// set portal:refresh:user:<userID> con los jti vivos del usuario.
type redisRefreshTokenStore struct {
	client  redisSessionClient
	prefix  string
	timeout time.Duration
}

// NewRedisRefreshTokenStore devuelve nil si no hay cliente, para caer al store en memoria.
func NewRedisRefreshTokenStore(client *redis.Client) RefreshTokenStore {
	if client == nil {
		return nil
	}
	return newRedisRefreshTokenStore(client)
}

func newRedisRefreshTokenStore(client redisSessionClient) *redisRefreshTokenStore {
	return &redisRefreshTokenStore{
		client:  client,
		prefix:  "portal:refresh:",
		timeout: 500 * time.Millisecond,
	}
}

func (s *redisRefreshTokenStore) sessionKey(jti string) string {
	return s.prefix + "session:" + jti
}

func (s *redisRefreshTokenStore) userKey(userID string) string {
	return s.prefix + "user:" + userID
}

func (s *redisRefreshTokenStore) Save(jti, userID string, ttl time.Duration) error {
	if strings.TrimSpace(jti) == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.client.Set(ctx, s.sessionKey(jti), userID, ttl).Err(); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, s.userKey(userID), jti).Err(); err != nil {
		return err
	}
	// El índice vive tanto como la sesión más reciente.
	return s.client.Expire(ctx, s.userKey(userID), ttl).Err()
}

func (s *redisRefreshTokenStore) Owner(jti string) (string, error) {
	if strings.TrimSpace(jti) == "" {
		return "", ErrRefreshUnknown
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	userID, err := s.client.Get(ctx, s.sessionKey(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrRefreshUnknown
	}
	return userID, err
}

func (s *redisRefreshTokenStore) Revoke(jti string) error {
	if strings.TrimSpace(jti) == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	userID, err := s.client.Get(ctx, s.sessionKey(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.sessionKey(jti)).Err(); err != nil {
		return err
	}
	return s.client.SRem(ctx, s.userKey(userID), jti).Err()
}

func (s *redisRefreshTokenStore) RevokeUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	jtis, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(jtis)+1)
	for _, jti := range jtis {
		keys = append(keys, s.sessionKey(jti))
	}
	keys = append(keys, s.userKey(userID))
	return s.client.Del(ctx, keys...).Err()
}
