package roomstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = time.Hour

// Player is one seat of a mirrored room.
type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Seat string `json:"seat"`
}

// Snapshot is the Redis view of a live room. It is written for operators and
// dashboards; the server never reads it back to rebuild state.
type Snapshot struct {
	Code          string    `json:"code"`
	Players       []Player  `json:"players"`
	Started       bool      `json:"started"`
	CurrentPlayer string    `json:"currentPlayer"`
	TurnCount     int       `json:"turnCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

// Open parses a redis:// URL and pings the server.
func Open(redisURL string, ttl time.Duration) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewStore(rdb, ttl), nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func keyRoom(code string) string { return "mn:room:" + strings.TrimSpace(code) }
func keyActive() string          { return "mn:rooms:active" }

// Save writes the snapshot and adds its code to the active index.
func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, keyRoom(snap.Code), raw, s.ttl)
		p.SAdd(ctx, keyActive(), snap.Code)
		p.Expire(ctx, keyActive(), s.ttl)
		return nil
	})
	return err
}

// Delete removes the snapshot and its index entry.
func (s *Store) Delete(ctx context.Context, code string) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, keyRoom(code))
		p.SRem(ctx, keyActive(), strings.TrimSpace(code))
		return nil
	})
	return err
}

// Load returns nil, nil when no snapshot exists.
func (s *Store) Load(ctx context.Context, code string) (*Snapshot, error) {
	raw, err := s.rdb.Get(ctx, keyRoom(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Active lists the indexed room codes in ascending order.
func (s *Store) Active(ctx context.Context) ([]string, error) {
	codes, err := s.rdb.SMembers(ctx, keyActive()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(codes)
	return codes, nil
}

// Reset clears what a previous process left behind. Called once on boot.
func (s *Store) Reset(ctx context.Context) error {
	codes, err := s.rdb.SMembers(ctx, keyActive()).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(codes)+1)
	for _, c := range codes {
		keys = append(keys, keyRoom(c))
	}
	keys = append(keys, keyActive())
	return s.rdb.Del(ctx, keys...).Err()
}
