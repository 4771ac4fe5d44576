package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/wellness-hub/internal/domain/risk"
	"github.com/alem-hub/wellness-hub/internal/domain/shared"
	"github.com/alem-hub/wellness-hub/internal/infrastructure/persistence/memory"
)

// fakeCache mimics Cache with JSON round-trips in memory.
type fakeCache struct {
	mu      sync.Mutex
	values  map[string][]byte
	failGet error
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string][]byte)}
}

func (f *fakeCache) Get(_ context.Context, key string, dest any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return f.failGet
	}
	data, ok := f.values[key]
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (f *fakeCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = data
	return nil
}

func (f *fakeCache) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

func (f *fakeCache) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.values[key]
	return ok
}

// countingSource counts student reads and can block them.
type countingSource struct {
	*memory.Store
	reads   atomic.Int32
	release chan struct{}
}

func (c *countingSource) GetStudents(ctx context.Context) ([]risk.Student, error) {
	c.reads.Add(1)
	if c.release != nil {
		<-c.release
	}
	return c.Store.GetStudents(ctx)
}

func newSource(t *testing.T) *countingSource {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.UpsertStudents(context.Background(), []risk.Student{
		{ID: "s1", Name: "Alex Morgan", RiskScore: 82, Trend: risk.TrendUp, Factors: []risk.RiskFactor{
			{Name: "Attendance", Category: risk.CategoryAttendance, Trend: risk.TrendUp, Weight: 40},
		}},
		{ID: "s2", Name: "Jamie Lee", RiskScore: 65, Trend: risk.TrendStable},
	}))
	return &countingSource{Store: store}
}

func TestCachedSource_ReadThrough(t *testing.T) {
	src := newSource(t)
	cache := newFakeCache()
	cs := NewCachedSource(src, cache, 0, nil)
	ctx := context.Background()

	first, err := cs.GetStudents(ctx)
	require.NoError(t, err)
	assert.True(t, cache.has(studentsKey))

	second, err := cs.GetStudents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.reads.Load())
	assert.Equal(t, first, second)
	assert.Equal(t, risk.Percent(40), second[0].Factors[0].Weight)
}

func TestCachedSource_WriteInvalidates(t *testing.T) {
	src := newSource(t)
	cache := newFakeCache()
	cs := NewCachedSource(src, cache, 0, nil)
	ctx := context.Background()

	_, err := cs.GetStudents(ctx)
	require.NoError(t, err)

	require.NoError(t, cs.UpsertStudents(ctx, []risk.Student{{ID: "s3", Name: "Sam Alvarez", RiskScore: 45}}))
	assert.False(t, cache.has(studentsKey))

	students, err := cs.GetStudents(ctx)
	require.NoError(t, err)
	assert.Len(t, students, 3)
	assert.Equal(t, int32(2), src.reads.Load())
}

func TestCachedSource_CacheFailureFallsBackToSource(t *testing.T) {
	src := newSource(t)
	cache := newFakeCache()
	cache.failGet = errors.New("connection refused")
	cs := NewCachedSource(src, cache, 0, nil)

	students, err := cs.GetStudents(context.Background())
	require.NoError(t, err)
	assert.Len(t, students, 2)
}

func TestCachedSource_SourceFailureIsNotCached(t *testing.T) {
	src := newSource(t)
	cache := newFakeCache()
	cs := NewCachedSource(src, cache, 0, nil)

	src.FailReads(errors.New("timeout"))
	_, err := cs.GetStudents(context.Background())
	assert.True(t, shared.IsDataUnavailable(err))
	assert.False(t, cache.has(studentsKey))
}

func TestCachedSource_ConcurrentMissesShareOneRead(t *testing.T) {
	src := newSource(t)
	src.release = make(chan struct{})
	cs := NewCachedSource(src, newFakeCache(), 0, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			students, err := cs.GetStudents(context.Background())
			assert.NoError(t, err)
			assert.Len(t, students, 2)
		}()
	}

	require.Eventually(t, func() bool { return src.reads.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(src.release)
	wg.Wait()

	assert.LessOrEqual(t, src.reads.Load(), int32(2))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "population:students", PopulationKey("students"))
	assert.Equal(t, "pubsub:events", PubSubChannel("events"))
	assert.Equal(t, "localhost:6379", DefaultConfig().Addr())
}
