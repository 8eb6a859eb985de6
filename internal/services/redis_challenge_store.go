package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const challengeKeyPrefix = "recovery:challenge:"

// Both scripts re-check expiry against the stored expires_at so a challenge is
// never usable past its deadline even if the Redis TTL lags.
var recordFailedAttemptScript = redis.NewScript(`
local expires = redis.call('HGET', KEYS[1], 'expires_at')
if not expires then
	return -1
end
local attempts = tonumber(redis.call('HGET', KEYS[1], 'attempts'))
local max = tonumber(redis.call('HGET', KEYS[1], 'max_attempts'))
if tonumber(expires) <= tonumber(ARGV[1]) or attempts >= max then
	return -1
end
attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
if attempts >= max then
	redis.call('DEL', KEYS[1])
	return -2
end
return max - attempts
`)

var consumeChallengeScript = redis.NewScript(`
local fields = redis.call('HGETALL', KEYS[1])
if #fields == 0 then
	return false
end
local record = {}
for i = 1, #fields, 2 do
	record[fields[i]] = fields[i + 1]
end
if tonumber(record['expires_at']) <= tonumber(ARGV[1]) or tonumber(record['attempts']) >= tonumber(record['max_attempts']) then
	return false
end
redis.call('DEL', KEYS[1])
return fields
`)

// RedisChallengeStore keeps challenges in Redis hashes so every API instance
// shares the same state.
type RedisChallengeStore struct {
	redis        redis.UniversalClient
	cfg          ChallengeStoreConfig
	now          func() time.Time
	generateCode func() (string, error)
}

func NewRedisChallengeStore(redisClient redis.UniversalClient, cfg ChallengeStoreConfig) *RedisChallengeStore {
	return &RedisChallengeStore{
		redis:        redisClient,
		cfg:          cfg.withDefaults(),
		now:          time.Now,
		generateCode: GenerateChallengeCode,
	}
}

func (s *RedisChallengeStore) key(phone string) string {
	return challengeKeyPrefix + phone
}

func (s *RedisChallengeStore) Issue(ctx context.Context, key string, identity BoundIdentity) (*Challenge, error) {
	code, err := s.generateCode()
	if err != nil {
		return nil, err
	}

	// stored with millisecond precision
	now := s.now().Truncate(time.Millisecond)
	c := &Challenge{
		Key:         key,
		Code:        code,
		Identity:    identity,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.cfg.TTL),
		MaxAttempts: s.cfg.MaxAttempts,
	}

	k := s.key(key)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k, map[string]interface{}{
			"code":         c.Code,
			"user_id":      c.Identity.UserID.String(),
			"role":         c.Identity.Role,
			"phone":        c.Identity.Phone,
			"issued_at":    c.IssuedAt.UnixMilli(),
			"expires_at":   c.ExpiresAt.UnixMilli(),
			"attempts":     0,
			"max_attempts": c.MaxAttempts,
		})
		pipe.PExpire(ctx, k, s.cfg.TTL)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("challenge store: issue: %w", err)
	}

	return c, nil
}

func (s *RedisChallengeStore) Peek(ctx context.Context, key string) (*Challenge, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("challenge store: peek: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrChallengeNotFound
	}

	c, err := decodeChallenge(key, fields)
	if err != nil {
		return nil, err
	}
	if !c.Live(s.now()) {
		return nil, ErrChallengeNotFound
	}
	return c, nil
}

func (s *RedisChallengeStore) RecordFailedAttempt(ctx context.Context, key string) (int, error) {
	remaining, err := recordFailedAttemptScript.Run(ctx, s.redis, []string{s.key(key)}, s.now().UnixMilli()).Int()
	if err != nil {
		return 0, fmt.Errorf("challenge store: record attempt: %w", err)
	}

	switch remaining {
	case -1:
		return 0, ErrChallengeNotFound
	case -2:
		return 0, ErrChallengeGone
	default:
		return remaining, nil
	}
}

func (s *RedisChallengeStore) Consume(ctx context.Context, key string) (*Challenge, error) {
	raw, err := consumeChallengeScript.Run(ctx, s.redis, []string{s.key(key)}, s.now().UnixMilli()).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("challenge store: consume: %w", err)
	}

	fields := make(map[string]string, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		fields[raw[i]] = raw[i+1]
	}
	return decodeChallenge(key, fields)
}

func (s *RedisChallengeStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("challenge store: delete: %w", err)
	}
	return nil
}

func (s *RedisChallengeStore) CooldownRemaining(ctx context.Context, key string) (time.Duration, error) {
	c, err := s.Peek(ctx, key)
	if err != nil {
		if errors.Is(err, ErrChallengeNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return c.ExpiresAt.Sub(s.now()), nil
}

func decodeChallenge(key string, fields map[string]string) (*Challenge, error) {
	userID, err := uuid.Parse(fields["user_id"])
	if err != nil {
		return nil, fmt.Errorf("challenge store: decode user id: %w", err)
	}
	issuedAt, err := strconv.ParseInt(fields["issued_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("challenge store: decode issued_at: %w", err)
	}
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("challenge store: decode expires_at: %w", err)
	}
	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return nil, fmt.Errorf("challenge store: decode attempts: %w", err)
	}
	maxAttempts, err := strconv.Atoi(fields["max_attempts"])
	if err != nil {
		return nil, fmt.Errorf("challenge store: decode max_attempts: %w", err)
	}

	return &Challenge{
		Key:  key,
		Code: fields["code"],
		Identity: BoundIdentity{
			UserID: userID,
			Role:   fields["role"],
			Phone:  fields["phone"],
		},
		IssuedAt:    time.UnixMilli(issuedAt),
		ExpiresAt:   time.UnixMilli(expiresAt),
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
	}, nil
}
