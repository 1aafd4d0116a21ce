package projector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/db"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
)

// Matches returns the user's UserMatches with its entries. A user without any
// projection gets an empty aggregate.
func (p *Projector) Matches(ctx context.Context, userID string) (*db.UserMatches, error) {
	um, err := p.aggregates.GetMatches(ctx, userID)
	if errors.Is(err, svcErr.ErrAggregateNotFound) {
		um = &db.UserMatches{UserID: userID}
	} else if err != nil {
		return nil, fmt.Errorf("load user matches: %w", err)
	}
	entries, err := p.aggregates.ListEntries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load match entries: %w", err)
	}
	um.Entries = entries
	return um, nil
}

// Activity returns the user's UserActivity with its daily summary. A user without
// any projection gets an empty aggregate.
func (p *Projector) Activity(ctx context.Context, userID string) (*db.UserActivity, error) {
	a, err := p.aggregates.GetActivity(ctx, userID)
	if errors.Is(err, svcErr.ErrAggregateNotFound) {
		a = &db.UserActivity{UserID: userID}
	} else if err != nil {
		return nil, fmt.Errorf("load user activity: %w", err)
	}
	days, err := p.aggregates.ListDays(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load daily summary: %w", err)
	}
	a.Days = days
	return a, nil
}

// unreadBadgeTTL bounds how long a fill that lost a race with an
// invalidation can serve a stale badge.
const unreadBadgeTTL = 30 * time.Second

// UnreadTotal is the user's unread badge: the sum of entry unread counters.
// Cache-first on unread:count:<id>; projections invalidate it.
func (p *Projector) UnreadTotal(ctx context.Context, userID string) (int64, error) {
	rc := p.appCtx.RedisCache
	key := cache.KeyForUnread(userID)
	if rc != nil {
		if n, ok, err := rc.PeekCount(ctx, key); err != nil {
			p.logger.Warn("unread cache read failed", "user", userID, "err", err)
		} else if ok {
			return n, nil
		}
	}

	n, err := p.aggregates.SumUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("sum unread: %w", err)
	}
	if rc != nil {
		_ = rc.FillCount(ctx, key, n, unreadBadgeTTL)
	}
	return n, nil
}
