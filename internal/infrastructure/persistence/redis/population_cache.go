package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alem-hub/wellness-hub/internal/domain/risk"
	"github.com/alem-hub/wellness-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/wellness-hub/pkg/logger"
)

// ValueCache is the subset of Cache used by CachedSource.
type ValueCache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// SourceWriter is a population source that also accepts writes.
type SourceWriter interface {
	risk.Source
	risk.Writer
}

var (
	studentsKey   = PopulationKey("students")
	indicatorsKey = PopulationKey("indicators")
)

// ══════════════════════════════════════════════════════════════════════════════
// CACHED SOURCE
// ══════════════════════════════════════════════════════════════════════════════

// CachedSource is a read-through cache in front of the population source.
// Concurrent misses for the same collection share one source read, and writes
// through it invalidate the cached collections. Cache failures never fail a
// read: the source is consulted directly.
type CachedSource struct {
	next  SourceWriter
	cache ValueCache
	ttl   time.Duration
	log   *logger.Logger

	studentsGroup   singleflight.Group
	indicatorsGroup singleflight.Group
}

// NewCachedSource wraps next. A zero ttl means TTLPopulation.
func NewCachedSource(next SourceWriter, cache ValueCache, ttl time.Duration, log *logger.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = TTLPopulation
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CachedSource{next: next, cache: cache, ttl: ttl, log: log.With(logger.Component("population_cache"))}
}

// GetStudents implements risk.Source.
func (c *CachedSource) GetStudents(ctx context.Context) ([]risk.Student, error) {
	return readThrough(ctx, c, &c.studentsGroup, studentsKey, c.next.GetStudents)
}

// GetEarlyWarningIndicators implements risk.Source.
func (c *CachedSource) GetEarlyWarningIndicators(ctx context.Context) ([]risk.EarlyWarningIndicator, error) {
	return readThrough(ctx, c, &c.indicatorsGroup, indicatorsKey, c.next.GetEarlyWarningIndicators)
}

// UpsertStudents implements risk.Writer and drops the cached students.
func (c *CachedSource) UpsertStudents(ctx context.Context, students []risk.Student) error {
	if err := c.next.UpsertStudents(ctx, students); err != nil {
		return err
	}
	c.invalidate(ctx, studentsKey)
	return nil
}

// InsertIndicators implements risk.Writer and drops the cached indicators.
func (c *CachedSource) InsertIndicators(ctx context.Context, indicators []risk.EarlyWarningIndicator) error {
	if err := c.next.InsertIndicators(ctx, indicators); err != nil {
		return err
	}
	c.invalidate(ctx, indicatorsKey)
	return nil
}

func (c *CachedSource) invalidate(ctx context.Context, key string) {
	if err := c.cache.Delete(ctx, key); err != nil {
		c.log.Warn("cache invalidation failed", logger.String("key", key), logger.Err(err))
	}
}

func readThrough[T any](ctx context.Context, c *CachedSource, group *singleflight.Group, key string, load func(context.Context) ([]T, error)) ([]T, error) {
	var cached []T
	err := c.cache.Get(ctx, key, &cached)
	switch {
	case err == nil:
		metrics.RecordCacheLookup("hit")
		return cached, nil
	case errors.Is(err, ErrCacheMiss):
		metrics.RecordCacheLookup("miss")
	default:
		metrics.RecordCacheLookup("error")
		c.log.Warn("cache read failed", logger.String("key", key), logger.Err(err))
	}

	v, err, _ := group.Do(key, func() (any, error) {
		items, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(ctx, key, items, c.ttl); err != nil {
			c.log.Warn("cache write failed", logger.String("key", key), logger.Err(err))
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}

	items, ok := v.([]T)
	if !ok {
		return nil, fmt.Errorf("redis: unexpected type from singleflight group %q: got %T", key, v)
	}
	return items, nil
}
