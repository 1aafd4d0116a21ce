package app

import (
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/config"
	"github.com/oggyb/muzz-matching/internal/notify"
	"github.com/oggyb/muzz-matching/internal/safety"
)

// AppContext holds shared dependencies (DB, Redis, Logger, collaborators, etc.)
type AppContext struct {
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	Config     *config.Config
	Safety     safety.Checker
	Notifier   notify.Notifier

	clock func() time.Time
}

type Option func(*AppContext)

func WithConfig(cfg *config.Config) Option {
	return func(a *AppContext) { a.Config = cfg }
}

func WithSafety(c safety.Checker) Option {
	return func(a *AppContext) { a.Safety = c }
}

func WithNotifier(n notify.Notifier) Option {
	return func(a *AppContext) { a.Notifier = n }
}

// WithClock overrides time.Now. Tests use it to drive streaks and sweeps.
func WithClock(now func() time.Time) Option {
	return func(a *AppContext) { a.clock = now }
}

// New creates a new AppContext. Unset collaborators fall back to a DB-backed
// safety store and a no-op notifier.
func New(db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger, opts ...Option) *AppContext {
	a := &AppContext{
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.Config == nil {
		a.Config = &config.Config{}
	}
	if a.Safety == nil {
		a.Safety = safety.NewStore(db, rdb, logger, a.clock)
	}
	if a.Notifier == nil {
		a.Notifier = notify.Nop{}
	}
	return a
}

// Now returns the current time in UTC, truncated to what the DB keeps.
func (a *AppContext) Now() time.Time {
	return a.clock().UTC().Truncate(time.Millisecond)
}

// Matching returns the matching settings with zero values replaced by defaults.
func (a *AppContext) Matching() config.MatchingConfig {
	m := a.Config.Matching
	if m.RetryLimit < 1 {
		m.RetryLimit = 3
	}
	if m.AutoArchiveAfter <= 0 {
		m.AutoArchiveAfter = 30 * 24 * time.Hour
	}
	if m.ProjectionGrace <= 0 {
		m.ProjectionGrace = 30 * time.Second
	}
	return m
}
