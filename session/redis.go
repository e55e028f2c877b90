package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient creates a client and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// RedisStore keeps each session as a hash under "session:<sid>".
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

func sessionKey(sid string) string { return "session:" + sid }

func (s *RedisStore) Init(ctx context.Context, sid string) (Flags, error) {
	key := sessionKey(sid)
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return Flags{}, fmt.Errorf("session: load %s: %w", sid, err)
	}
	if len(vals) > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return Flags{}, fmt.Errorf("session: refresh %s: %w", sid, err)
		}
	}

	f := Flags{
		CookieConsent: vals["consent"] == "1",
		AdminUserID:   vals["admin_user_id"],
	}
	if ts, err := strconv.ParseInt(vals["updated_at"], 10, 64); err == nil {
		f.UpdatedAt = time.Unix(ts, 0)
	}
	return f, nil
}

func (s *RedisStore) SetConsent(ctx context.Context, sid string, accepted bool) error {
	if !accepted {
		return s.Reset(ctx, sid)
	}
	return s.set(ctx, sid, "consent", "1")
}

func (s *RedisStore) SetAdmin(ctx context.Context, sid, userID string) error {
	return s.set(ctx, sid, "admin_user_id", userID)
}

func (s *RedisStore) Reset(ctx context.Context, sid string) error {
	if err := s.client.Del(ctx, sessionKey(sid)).Err(); err != nil {
		return fmt.Errorf("session: reset %s: %w", sid, err)
	}
	return nil
}

func (s *RedisStore) set(ctx context.Context, sid, field, value string) error {
	key := sessionKey(sid)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, field, value, "updated_at", strconv.FormatInt(s.now().Unix(), 10))
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: set %s.%s: %w", sid, field, err)
	}
	return nil
}

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a Lock shared by every process using the same Redis.
type RedisLock struct {
	client *redis.Client
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	ok, err := l.client.SetNX(ctx, "lock:"+key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("session: lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.client, []string{"lock:" + key}, token).Err()
		})
	}, nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
