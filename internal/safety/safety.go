// Package safety answers whether two users may interact.
package safety

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/pairkey"
	"github.com/oggyb/muzz-matching/internal/repository"
)

// Checker is consulted before an action is recorded and before a match is created.
type Checker interface {
	IsBlocked(ctx context.Context, a, b string) (bool, error)
}

// Blocker records and lifts blocks on behalf of a user.
type Blocker interface {
	Block(ctx context.Context, blockerID, blockedID, reason string) error
	Unblock(ctx context.Context, blockerID, blockedID string) error
}

// Store is a DB-backed Checker with a Redis read-through cache keyed by the sorted pair.
type Store struct {
	blocks *repository.BlockRepository
	cache  *cache.RedisCache
	logger *slog.Logger
	now    func() time.Time
}

// NewStore builds a Store. rc may be nil, in which case every lookup hits the DB.
func NewStore(database *gorm.DB, rc *cache.RedisCache, logger *slog.Logger, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		blocks: repository.NewBlockRepository(database),
		cache:  rc,
		logger: logger.With("component", "safety"),
		now:    now,
	}
}

// IsBlocked reports an active block in either direction.
func (s *Store) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	key := cache.KeyForBlock(pairkey.Sorted(a, b))
	if s.cache != nil {
		if v, ok, err := s.cache.GetFlag(ctx, key); err == nil && ok {
			return v, nil
		} else if err != nil {
			s.logger.Warn("block cache read failed", "err", err)
		}
	}

	blocked, err := s.blocks.IsBlocked(ctx, a, b)
	if err != nil {
		return false, fmt.Errorf("check block %s/%s: %w", a, b, err)
	}
	if s.cache != nil {
		_ = s.cache.SetFlag(ctx, key, blocked)
	}
	return blocked, nil
}

// Block activates blocker -> blocked.
func (s *Store) Block(ctx context.Context, blockerID, blockedID, reason string) error {
	return s.set(ctx, blockerID, blockedID, reason, true)
}

// Unblock lifts blocker -> blocked. A block in the other direction still applies.
func (s *Store) Unblock(ctx context.Context, blockerID, blockedID string) error {
	return s.set(ctx, blockerID, blockedID, "", false)
}

func (s *Store) set(ctx context.Context, blockerID, blockedID, reason string, active bool) error {
	if err := s.blocks.Upsert(ctx, blockerID, blockedID, reason, active, s.now().UTC()); err != nil {
		return fmt.Errorf("store block %s->%s: %w", blockerID, blockedID, err)
	}
	if s.cache != nil {
		if err := s.cache.Del(ctx, cache.KeyForBlock(pairkey.Sorted(blockerID, blockedID))); err != nil {
			s.logger.Warn("block cache invalidation failed", "err", err)
		}
	}
	s.logger.Info("block updated", "blocker", blockerID, "blocked", blockedID, "active", active)
	return nil
}
