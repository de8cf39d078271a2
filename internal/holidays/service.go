package holidays

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"holidaybot/internal/metrics"
	logx "holidaybot/pkg/logx"
)

// Pre-midnight threshold: refreshes at or after 23:45 fill "today" with the
// next calendar day.
const (
	boundaryHour   = 23
	boundaryMinute = 45
)

type ServiceOptions struct {
	SourceURL string
	Logger    logx.Logger
	Metrics   metrics.Collector
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Service coordinates refreshes and serves holiday queries from the Store.
// Refresh is the only path that contacts the remote page.
type Service struct {
	store   *Store
	fetcher Fetcher
	source  string
	log     logx.Logger
	metrics metrics.Collector
	clock   func() time.Time
	flight  singleflight.Group
}

func NewService(store *Store, fetcher Fetcher, opt ServiceOptions) *Service {
	if opt.Logger.IsZero() {
		opt.Logger = logx.Nop()
	}
	if opt.Metrics == nil {
		opt.Metrics = metrics.Noop()
	}
	if opt.SourceURL == "" {
		opt.SourceURL = DefaultSourceURL
	}
	if opt.Clock == nil {
		opt.Clock = time.Now
	}
	return &Service{
		store:   store,
		fetcher: fetcher,
		source:  opt.SourceURL,
		log:     opt.Logger,
		metrics: opt.Metrics,
		clock:   opt.Clock,
	}
}

func (s *Service) Store() *Store { return s.store }

// TargetDates applies the day-boundary rule to now (already in the target zone).
func TargetDates(now time.Time) (today, tomorrow time.Time) {
	d := dateOf(now)
	if now.Hour() == boundaryHour && now.Minute() >= boundaryMinute {
		return addDays(d, 1), addDays(d, 2)
	}
	return d, addDays(d, 1)
}

// Refresh fetches the page once, parses both target dates and rewrites the
// cache. Concurrent callers share a single in-flight refresh and its result;
// the fetch is detached from any one caller's cancellation.
func (s *Service) Refresh(ctx context.Context, now time.Time) (Result, error) {
	ch := s.flight.DoChan("refresh", func() (any, error) {
		return s.refresh(context.WithoutCancel(ctx), now)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Result{}, res.Err
		}
		return res.Val.(Result), nil
	}
}

func (s *Service) refresh(ctx context.Context, now time.Time) (Result, error) {
	now = now.In(s.store.Location())
	start := time.Now()

	markup, err := s.fetcher.Fetch(ctx)
	if err != nil {
		s.metrics.ObserveRefresh(metrics.ResultError, time.Since(start))
		return Result{}, fmt.Errorf("refresh holidays: %w", err)
	}

	todayDate, tomorrowDate := TargetDates(now)
	todayList := ParseHolidays(markup, todayDate)
	tomorrowList := ParseHolidays(markup, tomorrowDate)

	s.store.SetSlots(
		NewSlot(todayDate, todayList, now, s.source),
		NewSlot(tomorrowDate, tomorrowList, now, s.source),
		now,
	)
	s.metrics.ObserveRefresh(metrics.ResultOK, time.Since(start))
	s.log.Info("holiday cache refreshed",
		logx.Date("today", todayDate),
		logx.Int("today_count", len(todayList)),
		logx.Date("tomorrow", tomorrowDate),
		logx.Int("tomorrow_count", len(tomorrowList)),
		logx.Bool("pre_midnight", !todayDate.Equal(dateOf(now))),
	)

	r, ok := s.store.Slot(todayDate)
	if !ok {
		return Result{}, errors.New("refresh holidays: today slot missing after write")
	}
	return r, nil
}

// EnsureForDate returns the cached slot for date, refreshing once on a miss.
func (s *Service) EnsureForDate(ctx context.Context, date time.Time) (Result, bool) {
	if r, ok := s.store.Slot(date); ok {
		return r, true
	}
	if _, err := s.Refresh(ctx, s.clock()); err != nil {
		s.log.Warn("refresh on cache miss failed", logx.Date("date", date), logx.Err(err))
	}
	return s.store.Slot(date)
}

// TodayHolidays always returns a result for now's date: a cache hit unless
// forceRefresh, else fresh data, else the cached slot annotated as stale,
// else an empty result annotated as a failed fetch.
func (s *Service) TodayHolidays(ctx context.Context, now time.Time, forceRefresh bool) Result {
	now = now.In(s.store.Location())
	date := dateOf(now)

	if !forceRefresh {
		if r, ok := s.store.Slot(date); ok {
			s.metrics.IncCacheLookup(metrics.LookupHit)
			return r
		}
	}

	fresh, err := s.Refresh(ctx, now)
	if err == nil {
		s.metrics.IncCacheLookup(metrics.LookupMiss)
		if r, ok := s.store.Slot(date); ok {
			return r
		}
		return fresh
	}
	s.log.Warn("failed to refresh holiday cache", logx.Date("date", date), logx.Err(err))

	if r, ok := s.store.Slot(date); ok {
		s.metrics.IncCacheLookup(metrics.LookupStale)
		return r.WithError(TextStaleCache)
	}
	s.metrics.IncCacheLookup(metrics.LookupSynthetic)
	return NewResult(date, nil, s.source, now, TextFetchFailed)
}

// SelectAutopostHoliday picks the headline holiday: the first entry that
// does not mention Russia, else the first entry.
func SelectAutopostHoliday(list []string) (string, bool) {
	if len(list) == 0 {
		return "", false
	}
	for _, name := range list {
		if !mentionsCountry(name) {
			return name, true
		}
	}
	return list[0], true
}

func mentionsCountry(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "росси") || strings.Contains(lower, "russia")
}
