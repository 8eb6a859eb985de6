package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultChallengeTTL         = 10 * time.Minute
	DefaultChallengeMaxAttempts = 3
	challengeCodeDigits         = 6
)

var (
	ErrChallengeNotFound = errors.New("challenge not found or expired")
	ErrChallengeGone     = errors.New("challenge attempts exhausted")
)

var challengeCodeSpace = big.NewInt(1_000_000)

// BoundIdentity is the identity snapshot a challenge authorizes. It is
// captured at issuance and never updated.
type BoundIdentity struct {
	UserID uuid.UUID
	Role   string
	Phone  string
}

// Challenge is a single outstanding recovery code for one phone number.
type Challenge struct {
	Key         string
	Code        string
	Identity    BoundIdentity
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Attempts    int
	MaxAttempts int
}

// Live reports whether the challenge can still be verified at now.
func (c *Challenge) Live(now time.Time) bool {
	return c != nil && now.Before(c.ExpiresAt) && c.Attempts < c.MaxAttempts
}

// ChallengeStore holds at most one live challenge per canonical phone number.
// RecordFailedAttempt and Consume are atomic per key.
type ChallengeStore interface {
	Issue(ctx context.Context, key string, identity BoundIdentity) (*Challenge, error)
	Peek(ctx context.Context, key string) (*Challenge, error)
	RecordFailedAttempt(ctx context.Context, key string) (int, error)
	Consume(ctx context.Context, key string) (*Challenge, error)
	Delete(ctx context.Context, key string) error
	CooldownRemaining(ctx context.Context, key string) (time.Duration, error)
}

// ChallengeStoreConfig tunes challenge lifetime and attempt budget.
type ChallengeStoreConfig struct {
	TTL         time.Duration
	MaxAttempts int
}

func (c ChallengeStoreConfig) withDefaults() ChallengeStoreConfig {
	if c.TTL <= 0 {
		c.TTL = DefaultChallengeTTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultChallengeMaxAttempts
	}
	return c
}

// GenerateChallengeCode returns a uniformly distributed 6 digit code,
// leading zeros preserved.
func GenerateChallengeCode() (string, error) {
	n, err := rand.Int(rand.Reader, challengeCodeSpace)
	if err != nil {
		return "", fmt.Errorf("generate challenge code: %w", err)
	}
	return fmt.Sprintf("%0*d", challengeCodeDigits, n.Int64()), nil
}

// MemoryChallengeStore is a process-local ChallengeStore guarded by a single
// mutex. It does not survive restarts and must not be shared between
// instances; use RedisChallengeStore for that.
type MemoryChallengeStore struct {
	cfg          ChallengeStoreConfig
	mu           sync.Mutex
	challenges   map[string]*Challenge
	now          func() time.Time
	generateCode func() (string, error)
}

func NewMemoryChallengeStore(cfg ChallengeStoreConfig) *MemoryChallengeStore {
	return &MemoryChallengeStore{
		cfg:          cfg.withDefaults(),
		challenges:   make(map[string]*Challenge),
		now:          time.Now,
		generateCode: GenerateChallengeCode,
	}
}

func (s *MemoryChallengeStore) Issue(ctx context.Context, key string, identity BoundIdentity) (*Challenge, error) {
	code, err := s.generateCode()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c := &Challenge{
		Key:         key,
		Code:        code,
		Identity:    identity,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.cfg.TTL),
		MaxAttempts: s.cfg.MaxAttempts,
	}
	s.challenges[key] = c

	cp := *c
	return &cp, nil
}

func (s *MemoryChallengeStore) Peek(ctx context.Context, key string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.live(key)
	if !ok {
		return nil, ErrChallengeNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryChallengeStore) RecordFailedAttempt(ctx context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.live(key)
	if !ok {
		return 0, ErrChallengeNotFound
	}

	c.Attempts++
	if c.Attempts >= c.MaxAttempts {
		delete(s.challenges, key)
		return 0, ErrChallengeGone
	}
	return c.MaxAttempts - c.Attempts, nil
}

func (s *MemoryChallengeStore) Consume(ctx context.Context, key string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.live(key)
	if !ok {
		return nil, ErrChallengeNotFound
	}
	delete(s.challenges, key)
	return c, nil
}

func (s *MemoryChallengeStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.challenges, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryChallengeStore) CooldownRemaining(ctx context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.live(key)
	if !ok {
		return 0, nil
	}
	return c.ExpiresAt.Sub(s.now()), nil
}

// Purge drops expired entries and returns how many were removed.
func (s *MemoryChallengeStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, c := range s.challenges {
		if !c.Live(now) {
			delete(s.challenges, key)
			removed++
		}
	}
	return removed
}

// live returns the entry for key if it is still usable. Expired entries are
// left for Purge. Callers must hold s.mu.
func (s *MemoryChallengeStore) live(key string) (*Challenge, bool) {
	c, ok := s.challenges[key]
	if !ok || !c.Live(s.now()) {
		return nil, false
	}
	return c, true
}
