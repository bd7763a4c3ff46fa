package services

import (
	"context"
	"sync"
	"time"

	"vivarium/models"

	"go.uber.org/zap"
)

const (
	// seriesTTL is the freshness window: an entry younger than this is served
	// without a refetch.
	seriesTTL = 300 * time.Second
	// seriesRefreshEvery drives the background refresh that keeps an open
	// graph drifting forward without user interaction.
	seriesRefreshEvery = 60 * time.Second
)

// SeriesFetcher retrieves the full historical series for one subject/period.
// The HTTP API service implements it; tests substitute fakes.
type SeriesFetcher interface {
	FetchSeries(ctx context.Context, subjectID string, period models.Period) ([]models.SeriesPoint, error)
}

type seriesKey struct {
	subject string
	period  models.Period
}

type seriesEntry struct {
	fetchedAt time.Time
	series    []models.SeriesPoint
	refresh   *time.Timer
	fetching  bool
	released  bool
	failures  int
}

// SeriesCacheService caches historical series per (subject, period). Entries
// are served immediately, possibly stale, while a background fetch brings
// them up to date. The cache exclusively owns the entry table; callers only
// read through GetSeries.
type SeriesCacheService struct {
	logger  *zap.Logger
	fetcher SeriesFetcher

	ttl          time.Duration
	refreshEvery time.Duration
	now          func() time.Time

	mu      sync.Mutex
	entries map[seriesKey]*seriesEntry
	closed  bool
}

func NewSeriesCacheService(fetcher SeriesFetcher, logger *zap.Logger) *SeriesCacheService {
	return &SeriesCacheService{
		logger:       logger,
		fetcher:      fetcher,
		ttl:          seriesTTL,
		refreshEvery: seriesRefreshEvery,
		now:          time.Now,
		entries:      make(map[seriesKey]*seriesEntry),
	}
}

// GetSeries returns the best-known series immediately. When the entry is
// missing, stale or forceRefresh is set, a background fetch replaces the
// series in place once it resolves. After a hit or a completed fetch the
// per-key background refresh is rearmed, so changing periods never
// invalidates other periods' entries.
func (c *SeriesCacheService) GetSeries(ctx context.Context, subjectID string, period models.Period, forceRefresh bool) []models.SeriesPoint {
	key := seriesKey{subject: subjectID, period: period}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	entry, ok := c.entries[key]
	if !ok {
		entry = &seriesEntry{}
		c.entries[key] = entry
	}
	entry.released = false
	series := entry.series
	stale := entry.fetchedAt.IsZero() || c.now().Sub(entry.fetchedAt) >= c.ttl
	fetch := (stale || forceRefresh) && !entry.fetching
	if fetch {
		entry.fetching = true
	} else if !entry.fetching {
		c.armRefreshLocked(ctx, key, entry)
	}
	c.mu.Unlock()

	if fetch {
		go c.refresh(ctx, key)
	}
	return series
}

// Release cancels the background refresh for a key once no view displays it.
// The cached series itself stays available until it ages out.
func (c *SeriesCacheService) Release(subjectID string, period models.Period) {
	key := seriesKey{subject: subjectID, period: period}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok {
		entry.released = true
		if entry.refresh != nil {
			entry.refresh.Stop()
			entry.refresh = nil
		}
	}
}

// Close cancels every outstanding refresh timer. The cache serves nothing
// afterwards.
func (c *SeriesCacheService) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, entry := range c.entries {
		if entry.refresh != nil {
			entry.refresh.Stop()
			entry.refresh = nil
		}
	}
}

// refresh performs one fetch for key and stores the result. A failed fetch
// keeps the stale series; the next scheduled refresh retries naturally, there
// is no separate failure backoff.
func (c *SeriesCacheService) refresh(ctx context.Context, key seriesKey) {
	points, err := c.fetcher.FetchSeries(ctx, key.subject, key.period)

	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok || c.closed {
		c.mu.Unlock()
		return
	}
	entry.fetching = false
	if err != nil {
		entry.failures++
		failures := entry.failures
		c.armRefreshLocked(ctx, key, entry)
		c.mu.Unlock()

		c.logger.Warn("History fetch failed, serving stale series",
			zap.String("subject", key.subject),
			zap.String("period", string(key.period)),
			zap.Int("consecutive_failures", failures),
			zap.Error(err))
		return
	}
	entry.failures = 0
	entry.series = points
	entry.fetchedAt = c.now()
	c.armRefreshLocked(ctx, key, entry)
	c.mu.Unlock()

	c.logger.Debug("History series refreshed",
		zap.String("subject", key.subject),
		zap.String("period", string(key.period)),
		zap.Int("points", len(points)))
}

// armRefreshLocked rearms the per-key background refresh. The previous timer
// is always stopped first so at most one is outstanding per key. Caller holds
// the lock.
func (c *SeriesCacheService) armRefreshLocked(ctx context.Context, key seriesKey, entry *seriesEntry) {
	if c.closed || entry.released {
		return
	}
	if entry.refresh != nil {
		entry.refresh.Stop()
	}
	entry.refresh = time.AfterFunc(c.refreshEvery, func() {
		c.mu.Lock()
		entry, ok := c.entries[key]
		if !ok || c.closed || entry.fetching {
			c.mu.Unlock()
			return
		}
		entry.fetching = true
		c.mu.Unlock()

		c.refresh(ctx, key)
	})
}
