package holidays

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "holidaybot/pkg/logx"
)

type fakeFetcher struct {
	calls  atomic.Int32
	markup string
	err    error
	gate   chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context) (string, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.markup, f.err
}

func pageFor(days map[string][]string) string {
	out := "<html><body>"
	for day, names := range days {
		out += fmt.Sprintf(`<div id="div_%s">`, day)
		for i, n := range names {
			out += fmt.Sprintf(`<a href="/holidays/0/0/%d/">%s</a>`, i, n)
		}
		out += "</div>"
	}
	return out + "</body></html>"
}

func newTestService(t *testing.T, now time.Time, f Fetcher) (*Service, *countingFile) {
	t.Helper()
	s, cf, _ := openTestStore(t, now)
	return NewService(s, f, ServiceOptions{Logger: logx.Nop(), Clock: func() time.Time { return now }}), cf
}

func TestTargetDates_DayBoundary(t *testing.T) {
	t.Parallel()
	cases := []struct {
		now      time.Time
		today    string
		tomorrow string
	}{
		{time.Date(2024, 1, 7, 0, 0, 0, 0, msk), "2024-01-07", "2024-01-08"},
		{time.Date(2024, 1, 7, 23, 44, 59, 0, msk), "2024-01-07", "2024-01-08"},
		{time.Date(2024, 1, 7, 23, 45, 0, 0, msk), "2024-01-08", "2024-01-09"},
		{time.Date(2024, 1, 7, 23, 50, 0, 0, msk), "2024-01-08", "2024-01-09"},
		{time.Date(2024, 12, 31, 23, 59, 0, 0, msk), "2025-01-01", "2025-01-02"},
		{time.Date(2024, 2, 28, 23, 46, 0, 0, msk), "2024-02-29", "2024-03-01"},
		{time.Date(2024, 1, 7, 22, 50, 0, 0, msk), "2024-01-07", "2024-01-08"},
	}
	for _, tc := range cases {
		today, tomorrow := TargetDates(tc.now)
		if DateKey(today) != tc.today || DateKey(tomorrow) != tc.tomorrow {
			t.Fatalf("%s: got %s/%s want %s/%s", tc.now, DateKey(today), DateKey(tomorrow), tc.today, tc.tomorrow)
		}
	}
}

func TestRefresh_WritesSlotsPerBoundaryRule(t *testing.T) {
	t.Parallel()
	markup := pageFor(map[string][]string{
		"2024-01-07": {"Седьмое"},
		"2024-01-08": {"Восьмое"},
		"2024-01-09": {"Девятое"},
	})

	before := time.Date(2024, 1, 7, 12, 0, 0, 0, msk)
	svc, _ := newTestService(t, before, &fakeFetcher{markup: markup})
	r, err := svc.Refresh(context.Background(), before)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if DateKey(r.Date) != "2024-01-07" || r.Holidays()[0] != "Седьмое" {
		t.Fatalf("result %+v", r)
	}
	doc := svc.Store().Snapshot()
	if doc.Today.Date != "2024-01-07" || doc.Tomorrow.Date != "2024-01-08" {
		t.Fatalf("slots %s/%s", doc.Today.Date, doc.Tomorrow.Date)
	}

	after := time.Date(2024, 1, 7, 23, 50, 0, 0, msk)
	svc2, _ := newTestService(t, after, &fakeFetcher{markup: markup})
	if _, err := svc2.Refresh(context.Background(), after); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	doc = svc2.Store().Snapshot()
	if doc.Today.Date != "2024-01-08" || doc.Tomorrow.Date != "2024-01-09" {
		t.Fatalf("pre-midnight slots %s/%s", doc.Today.Date, doc.Tomorrow.Date)
	}
	if !reflect.DeepEqual(doc.Tomorrow.Holidays, []string{"Девятое"}) {
		t.Fatalf("tomorrow holidays %q", doc.Tomorrow.Holidays)
	}
	if doc.UpdatedAt == nil || !doc.UpdatedAt.Equal(after) {
		t.Fatalf("updated_at=%v", doc.UpdatedAt)
	}
}

func TestRefresh_ConvertsToTargetZone(t *testing.T) {
	t.Parallel()
	markup := pageFor(map[string][]string{"2024-01-08": {"A"}, "2024-01-09": {"B"}})
	// 20:50 UTC is 23:50 in MSK.
	nowUTC := time.Date(2024, 1, 7, 20, 50, 0, 0, time.UTC)
	svc, _ := newTestService(t, nowUTC.In(msk), &fakeFetcher{markup: markup})
	if _, err := svc.Refresh(context.Background(), nowUTC); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := svc.Store().Snapshot().Today.Date; got != "2024-01-08" {
		t.Fatalf("today=%s", got)
	}
}

func TestRefresh_SingleFlight(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 7, 12, 0, 0, 0, msk)
	f := &fakeFetcher{
		markup: pageFor(map[string][]string{"2024-01-07": {"A", "B"}}),
		gate:   make(chan struct{}),
	}
	svc, cf := newTestService(t, now, f)
	base := cf.Saves()

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Result, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Refresh(context.Background(), now)
		}(i)
	}
	// Let every caller join the in-flight refresh before the fetch completes.
	deadline := time.Now().Add(2 * time.Second)
	for f.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	if got := f.calls.Load(); got != 1 {
		t.Fatalf("fetches=%d want 1", got)
	}
	if got := cf.Saves() - base; got != 1 {
		t.Fatalf("writes=%d want 1", got)
	}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if !reflect.DeepEqual(results[i].Holidays(), []string{"A", "B"}) {
			t.Fatalf("caller %d saw %q", i, results[i].Holidays())
		}
	}
}

func TestRefresh_CallerCancelDoesNotAbortFetch(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 7, 12, 0, 0, 0, msk)
	f := &fakeFetcher{markup: pageFor(map[string][]string{"2024-01-07": {"A"}}), gate: make(chan struct{})}
	svc, _ := newTestService(t, now, f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.Refresh(ctx, now)
		done <- err
	}()
	for f.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("want canceled, got %v", err)
	}

	close(f.gate)
	r, err := svc.Refresh(context.Background(), now)
	if err != nil || !r.HasData() {
		t.Fatalf("follow-up refresh: %+v %v", r, err)
	}
}

func TestTodayHolidays_CacheHitSkipsFetch(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 7, 12, 0, 0, 0, msk)
	f := &fakeFetcher{markup: pageFor(map[string][]string{"2024-01-07": {"Fresh"}})}
	svc, _ := newTestService(t, now, f)
	svc.Store().SetSlots(NewSlot(now, []string{"Cached"}, now, ""), NewSlot(now.AddDate(0, 0, 1), nil, now, ""), now)

	r := svc.TodayHolidays(context.Background(), now, false)
	if r.Holidays()[0] != "Cached" || f.calls.Load() != 0 {
		t.Fatalf("result=%q calls=%d", r.Holidays(), f.calls.Load())
	}

	r = svc.TodayHolidays(context.Background(), now, true)
	if r.Holidays()[0] != "Fresh" || f.calls.Load() != 1 {
		t.Fatalf("forced: result=%q calls=%d", r.Holidays(), f.calls.Load())
	}
}

func TestTodayHolidays_MissRefreshes(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 1, 6, 12, 0, 0, 0, msk)
	f := &fakeFetcher{markup: pageFor(map[string][]string{"2024-01-09": {"Later"}})}
	svc, _ := newTestService(t, start, f)

	now := time.Date(2024, 1, 9, 8, 0, 0, 0, msk)
	r := svc.TodayHolidays(context.Background(), now, false)
	if f.calls.Load() != 1 || r.Holidays()[0] != "Later" || r.Error != "" {
		t.Fatalf("result=%+v calls=%d", r, f.calls.Load())
	}
}

func TestTodayHolidays_StaleFallback(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 7, 12, 0, 0, 0, msk)
	f := &fakeFetcher{err: errors.New("timeout")}
	svc, _ := newTestService(t, now, f)
	svc.Store().SetSlots(NewSlot(now, []string{"Old"}, now, ""), NewSlot(now.AddDate(0, 0, 1), nil, now, ""), now)

	for i := 0; i < 2; i++ {
		r := svc.TodayHolidays(context.Background(), now, true)
		if r.Holidays()[0] != "Old" || r.Error != TextStaleCache {
			t.Fatalf("call %d: %+v", i, r)
		}
	}
	cached, _ := svc.Store().Slot(now)
	if cached.Error != "" {
		t.Fatalf("stale annotation leaked into the store: %q", cached.Error)
	}
}

func TestTodayHolidays_SyntheticFallback(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, msk)
	f := &fakeFetcher{err: errors.New("connection refused")}
	svc, _ := newTestService(t, start, f)

	now := time.Date(2024, 1, 7, 12, 0, 0, 0, msk)
	r := svc.TodayHolidays(context.Background(), now, false)
	if r.HasData() || r.Error != TextFetchFailed || DateKey(r.Date) != "2024-01-07" {
		t.Fatalf("result=%+v", r)
	}
	if r.SourceURL != DefaultSourceURL {
		t.Fatalf("source=%q", r.SourceURL)
	}
}

func TestEnsureForDate(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 7, 12, 0, 0, 0, msk)
	f := &fakeFetcher{markup: pageFor(map[string][]string{"2024-01-07": {"A"}, "2024-01-08": {"B"}})}
	svc, _ := newTestService(t, now, f)

	// Placeholder slot for today hits without fetching.
	r, ok := svc.EnsureForDate(context.Background(), now)
	if !ok || r.HasData() || f.calls.Load() != 0 {
		t.Fatalf("ok=%v r=%+v calls=%d", ok, r, f.calls.Load())
	}

	// Unknown date triggers one refresh, then misses.
	_, ok = svc.EnsureForDate(context.Background(), time.Date(2024, 2, 1, 0, 0, 0, 0, msk))
	if ok || f.calls.Load() != 1 {
		t.Fatalf("ok=%v calls=%d", ok, f.calls.Load())
	}

	r, ok = svc.EnsureForDate(context.Background(), time.Date(2024, 1, 8, 0, 0, 0, 0, msk))
	if !ok || r.Holidays()[0] != "B" {
		t.Fatalf("ok=%v r=%+v", ok, r)
	}
}

func TestSelectAutopostHoliday(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   []string
		want string
		ok   bool
	}{
		{[]string{"День России", "Прадник мороженого"}, "Прадник мороженого", true},
		{[]string{"День России"}, "День России", true},
		{[]string{"Russia Day", "ДЕНЬ РОССИИ"}, "Russia Day", true},
		{[]string{"Праздник", "День России"}, "Праздник", true},
		{nil, "", false},
		{[]string{}, "", false},
	}
	for _, tc := range cases {
		got, ok := SelectAutopostHoliday(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("SelectAutopostHoliday(%q) = %q,%v want %q,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
