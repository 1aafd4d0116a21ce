// Package testutil wires the in-memory backends used by package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/config"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/logger"
	"github.com/oggyb/muzz-matching/internal/notify"
)

var dbSeq atomic.Int64

// NewTestDB opens a migrated in-memory SQLite database private to the test.
//
// The pool is capped at one connection, so code under test must route every
// statement inside a transaction through that transaction's handle.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(database))
	return database
}

// NewTestRedis starts a miniredis and returns a cache bound to it.
func NewTestRedis(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rc := cache.NewRedisCache(config.RedisConfig{Addr: mr.Addr(), CacheTTL: time.Hour})
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

// Clock is a settable time source for tests.
type Clock struct {
	now atomic.Int64
}

func NewClock(start time.Time) *Clock {
	c := &Clock{}
	c.Set(start)
	return c
}

func (c *Clock) Now() time.Time { return time.Unix(0, c.now.Load()).UTC() }

func (c *Clock) Set(t time.Time) { c.now.Store(t.UnixNano()) }

func (c *Clock) Advance(d time.Duration) { c.now.Add(int64(d)) }

// NewApp builds an AppContext over a fresh test DB and miniredis, driven by clock.
func NewApp(t *testing.T, clock *Clock, opts ...app.Option) *app.AppContext {
	t.Helper()

	rc, _ := NewTestRedis(t)
	all := append([]app.Option{app.WithClock(clock.Now)}, opts...)
	return app.New(NewTestDB(t), rc, logger.Nop(), all...)
}

// Recorder is a Notifier that keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *Recorder) Notify(_ context.Context, e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of what was received so far.
func (r *Recorder) Events() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

// For returns the events addressed to userID.
func (r *Recorder) For(userID string) []notify.Event {
	var out []notify.Event
	for _, e := range r.Events() {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}
