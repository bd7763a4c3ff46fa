package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vivarium/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFetcher struct {
	mu     sync.Mutex
	calls  int
	series []models.SeriesPoint
	fail   bool
}

func (f *fakeFetcher) FetchSeries(ctx context.Context, subjectID string, period models.Period) ([]models.SeriesPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return nil, errors.New("appliance unreachable")
	}
	return f.series, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func newTestCache(fetcher SeriesFetcher) *SeriesCacheService {
	cache := NewSeriesCacheService(fetcher, zap.NewNop())
	cache.refreshEvery = time.Hour // background refresh disabled unless a test shortens it
	return cache
}

func TestGetSeriesServesCachedWithinTTL(t *testing.T) {
	fetcher := &fakeFetcher{series: []models.SeriesPoint{{Timestamp: 100, Value: 21.5}}}
	cache := newTestCache(fetcher)
	defer cache.Close()

	current := time.Unix(1000, 0)
	cache.now = func() time.Time { return current }

	ctx := context.Background()

	// First request: nothing cached yet, one background fetch fires.
	got := cache.GetSeries(ctx, "s1", models.PeriodDay, false)
	assert.Empty(t, got)
	waitFor(t, func() bool { return fetcher.callCount() == 1 })
	waitFor(t, func() bool { return len(cache.GetSeries(ctx, "s1", models.PeriodDay, false)) == 1 })

	// Second request inside the TTL: cached series, no second fetch.
	current = current.Add(200 * time.Second)
	got = cache.GetSeries(ctx, "s1", models.PeriodDay, false)
	require.Len(t, got, 1)
	assert.Equal(t, int64(100), got[0].Timestamp)
	assert.Equal(t, 1, fetcher.callCount())

	// Past the TTL: exactly one refetch.
	current = current.Add(200 * time.Second)
	got = cache.GetSeries(ctx, "s1", models.PeriodDay, false)
	require.Len(t, got, 1) // stale entry still served immediately
	waitFor(t, func() bool { return fetcher.callCount() == 2 })
}

func TestGetSeriesForceRefresh(t *testing.T) {
	fetcher := &fakeFetcher{series: []models.SeriesPoint{{Timestamp: 100, Value: 21.5}}}
	cache := newTestCache(fetcher)
	defer cache.Close()

	ctx := context.Background()

	cache.GetSeries(ctx, "s1", models.PeriodDay, false)
	waitFor(t, func() bool { return fetcher.callCount() == 1 })
	waitFor(t, func() bool { return len(cache.GetSeries(ctx, "s1", models.PeriodDay, false)) == 1 })

	cache.GetSeries(ctx, "s1", models.PeriodDay, true)
	waitFor(t, func() bool { return fetcher.callCount() == 2 })
}

func TestGetSeriesPeriodsAreIndependent(t *testing.T) {
	fetcher := &fakeFetcher{series: []models.SeriesPoint{{Timestamp: 100, Value: 21.5}}}
	cache := newTestCache(fetcher)
	defer cache.Close()

	ctx := context.Background()

	cache.GetSeries(ctx, "s1", models.PeriodDay, false)
	waitFor(t, func() bool { return fetcher.callCount() == 1 })

	// A different period is a distinct key and fetches on its own.
	cache.GetSeries(ctx, "s1", models.PeriodWeek, false)
	waitFor(t, func() bool { return fetcher.callCount() == 2 })

	// The day entry is untouched by the week fetch.
	waitFor(t, func() bool { return len(cache.GetSeries(ctx, "s1", models.PeriodDay, false)) == 1 })
	assert.Equal(t, 2, fetcher.callCount())
}

func TestBackgroundRefreshStopsOnRelease(t *testing.T) {
	fetcher := &fakeFetcher{series: []models.SeriesPoint{{Timestamp: 100, Value: 21.5}}}
	cache := newTestCache(fetcher)
	cache.refreshEvery = 20 * time.Millisecond
	defer cache.Close()

	ctx := context.Background()

	cache.GetSeries(ctx, "s1", models.PeriodDay, false)
	// The background refresh keeps fetching without further requests.
	waitFor(t, func() bool { return fetcher.callCount() >= 3 })

	cache.Release("s1", models.PeriodDay)
	time.Sleep(60 * time.Millisecond) // let any in-flight fetch settle
	settled := fetcher.callCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, fetcher.callCount())
}

func TestFetchFailureKeepsStaleSeries(t *testing.T) {
	fetcher := &fakeFetcher{series: []models.SeriesPoint{{Timestamp: 100, Value: 21.5}}}
	cache := newTestCache(fetcher)
	defer cache.Close()

	current := time.Unix(1000, 0)
	cache.now = func() time.Time { return current }

	ctx := context.Background()

	cache.GetSeries(ctx, "s1", models.PeriodDay, false)
	waitFor(t, func() bool { return fetcher.callCount() == 1 })
	waitFor(t, func() bool { return len(cache.GetSeries(ctx, "s1", models.PeriodDay, false)) == 1 })

	// Entry goes stale, the refetch fails, the stale series keeps serving.
	fetcher.setFail(true)
	current = current.Add(400 * time.Second)
	got := cache.GetSeries(ctx, "s1", models.PeriodDay, false)
	require.Len(t, got, 1)
	waitFor(t, func() bool { return fetcher.callCount() == 2 })

	got = cache.GetSeries(ctx, "s1", models.PeriodDay, false)
	require.Len(t, got, 1)
	assert.Equal(t, int64(100), got[0].Timestamp)
}

func TestCloseStopsAllRefreshes(t *testing.T) {
	fetcher := &fakeFetcher{series: []models.SeriesPoint{{Timestamp: 100, Value: 21.5}}}
	cache := newTestCache(fetcher)
	cache.refreshEvery = 20 * time.Millisecond

	ctx := context.Background()

	cache.GetSeries(ctx, "s1", models.PeriodDay, false)
	waitFor(t, func() bool { return fetcher.callCount() >= 1 })

	cache.Close()
	time.Sleep(60 * time.Millisecond)
	settled := fetcher.callCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, fetcher.callCount())

	assert.Nil(t, cache.GetSeries(ctx, "s1", models.PeriodDay, false))
}
