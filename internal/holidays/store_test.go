package holidays

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"holidaybot/internal/storage"
	logx "holidaybot/pkg/logx"
)

var msk = time.FixedZone("MSK", 3*60*60)

// countingFile wraps a JSON file and counts writes.
type countingFile struct {
	mu    sync.Mutex
	inner *storage.JSONFile
	saves int
	fail  error
}

func newCountingFile(t *testing.T, path string) *countingFile {
	t.Helper()
	f, err := storage.NewJSONFile(path)
	if err != nil {
		t.Fatalf("NewJSONFile: %v", err)
	}
	return &countingFile{inner: f}
}

func (c *countingFile) Load(v any) (bool, error) { return c.inner.Load(v) }

func (c *countingFile) Save(v any) error {
	c.mu.Lock()
	c.saves++
	fail := c.fail
	c.mu.Unlock()
	if fail != nil {
		return fail
	}
	return c.inner.Save(v)
}

func (c *countingFile) Saves() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

func openTestStore(t *testing.T, now time.Time) (*Store, *countingFile, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "holidays.json")
	cf := newCountingFile(t, path)
	s, err := OpenStore(path, "09:00", now, logx.Nop(), withPersister(cf))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	return s, cf, path
}

func TestOpenStore_InitializesMissingFile(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 3, 10, 14, 0, 0, 0, msk)
	s, cf, path := openTestStore(t, now)

	if cf.Saves() != 1 {
		t.Fatalf("want defaults written once, got %d writes", cf.Saves())
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("cache file not created: %v", err)
	}
	doc := s.Snapshot()
	if doc.AutopostTime != "09:00" {
		t.Fatalf("autopost=%q", doc.AutopostTime)
	}
	if doc.Today.Date != "2024-03-10" || doc.Tomorrow.Date != "2024-03-11" {
		t.Fatalf("placeholders: %q / %q", doc.Today.Date, doc.Tomorrow.Date)
	}
	if doc.Today.Holidays == nil || len(doc.Today.Holidays) != 0 {
		t.Fatalf("placeholder holidays should be empty list")
	}
	if doc.UpdatedAt == nil {
		t.Fatalf("updated_at not set")
	}
}

func TestOpenStore_CorruptFileRecreated(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "holidays.json")
	if err := os.WriteFile(path, []byte("{garbage"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	now := time.Date(2024, 3, 10, 14, 0, 0, 0, msk)
	s, err := OpenStore(path, "7:05", now, logx.Nop())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	if got := s.AutopostTime(); got != "07:05" {
		t.Fatalf("autopost=%q", got)
	}

	reopened, err := OpenStore(path, "00:00", now, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.AutopostTime(); got != "07:05" {
		t.Fatalf("recreated document not persisted, autopost=%q", got)
	}
}

func TestStore_SlotHitOnlyForExactDate(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 7, 10, 0, 0, 0, msk)
	s, _, _ := openTestStore(t, now)
	s.SetSlots(
		NewSlot(time.Date(2024, 1, 7, 0, 0, 0, 0, msk), []string{"A", "B"}, now, DefaultSourceURL),
		NewSlot(time.Date(2024, 1, 8, 0, 0, 0, 0, msk), nil, now, DefaultSourceURL),
		now,
	)

	r, ok := s.Slot(time.Date(2024, 1, 7, 23, 59, 0, 0, msk))
	if !ok || !reflect.DeepEqual(r.Holidays(), []string{"A", "B"}) || r.Error != "" {
		t.Fatalf("today: ok=%v result=%+v", ok, r)
	}
	if !r.FetchedAt.Equal(now) {
		t.Fatalf("fetched_at=%v", r.FetchedAt)
	}

	r, ok = s.Slot(time.Date(2024, 1, 8, 0, 0, 0, 0, msk))
	if !ok || r.HasData() || r.Error != TextNoHolidays {
		t.Fatalf("empty tomorrow slot should hit with annotation: ok=%v %+v", ok, r)
	}

	for _, d := range []time.Time{
		time.Date(2024, 1, 6, 0, 0, 0, 0, msk),
		time.Date(2024, 1, 9, 0, 0, 0, 0, msk),
		time.Date(2023, 1, 7, 0, 0, 0, 0, msk),
	} {
		if _, ok := s.Slot(d); ok {
			t.Fatalf("unexpected hit for %s", DateKey(d))
		}
	}
}

func TestStore_MalformedSlotDateIsMiss(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "holidays.json")
	raw := `{"autopost_time":"10:00","updated_at":null,
	"today":{"date":"2024-13-45","holidays":["X"],"fetched_at":"bad","source_url":""},
	"tomorrow":{"date":"2024-01-08","holidays":["Y"],"fetched_at":"bad","source_url":""}}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	now := time.Date(2024, 1, 7, 10, 0, 0, 0, msk)
	s, err := OpenStore(path, "00:00", now, logx.Nop())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	if s.AutopostTime() != "10:00" {
		t.Fatalf("autopost=%q", s.AutopostTime())
	}
	if _, ok := s.Slot(time.Date(2024, 1, 7, 0, 0, 0, 0, msk)); ok {
		t.Fatalf("malformed date should miss")
	}
	r, ok := s.Slot(time.Date(2024, 1, 8, 0, 0, 0, 0, msk))
	if !ok || r.Holidays()[0] != "Y" || r.SourceURL != DefaultSourceURL {
		t.Fatalf("tomorrow: ok=%v %+v", ok, r)
	}
	if want := time.Date(2024, 1, 8, 0, 0, 0, 0, msk); !r.FetchedAt.Equal(want) {
		t.Fatalf("unparsable fetched_at should fall back to the slot date, got %v", r.FetchedAt)
	}
}

func TestStore_SetAutopostTime(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 7, 10, 0, 0, 0, msk)
	s, cf, _ := openTestStore(t, now)
	base := cf.Saves()

	got, changed, err := s.SetAutopostTime("9:00")
	if err != nil || changed || got != "09:00" {
		t.Fatalf("same value: got=%q changed=%v err=%v", got, changed, err)
	}
	if cf.Saves() != base {
		t.Fatalf("same value must not rewrite")
	}
	if s.Signal().Pending() {
		t.Fatalf("same value must not signal")
	}

	got, changed, err = s.SetAutopostTime("08:30")
	if err != nil || !changed || got != "08:30" {
		t.Fatalf("new value: got=%q changed=%v err=%v", got, changed, err)
	}
	if cf.Saves() != base+1 {
		t.Fatalf("want one rewrite, got %d", cf.Saves()-base)
	}
	select {
	case <-s.Signal().C():
	default:
		t.Fatalf("new value must signal")
	}
	if s.Signal().Pending() {
		t.Fatalf("signal must be consumed by one receive")
	}

	if _, _, err := s.SetAutopostTime("25:00"); !errors.Is(err, ErrInvalidTime) {
		t.Fatalf("want ErrInvalidTime, got %v", err)
	}
	if s.AutopostTime() != "08:30" {
		t.Fatalf("invalid input changed state")
	}
}

func TestStore_PersistFailureKeepsMemory(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 7, 10, 0, 0, 0, msk)
	s, cf, _ := openTestStore(t, now)
	cf.mu.Lock()
	cf.fail = errors.New("disk full")
	cf.mu.Unlock()

	if _, changed, err := s.SetAutopostTime("06:00"); err != nil || !changed {
		t.Fatalf("changed=%v err=%v", changed, err)
	}
	if s.AutopostTime() != "06:00" {
		t.Fatalf("in-memory value lost after failed write")
	}
}

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 7, 23, 50, 0, 0, msk)
	path := filepath.Join(t.TempDir(), "holidays.json")
	s, err := OpenStore(path, "00:00", now, logx.Nop())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	s.SetSlots(
		NewSlot(time.Date(2024, 1, 8, 0, 0, 0, 0, msk), []string{"Один", "Два", "Два"}, now, "https://example.test/day/"),
		NewSlot(time.Date(2024, 1, 9, 0, 0, 0, 0, msk), []string{"Три"}, now, "https://example.test/day/"),
		now,
	)
	if _, _, err := s.SetAutopostTime("12:15"); err != nil {
		t.Fatalf("SetAutopostTime: %v", err)
	}
	before := s.Snapshot()

	reopened, err := OpenStore(path, "00:00", now.Add(time.Hour), logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	after := reopened.Snapshot()

	if before.AutopostTime != after.AutopostTime ||
		!reflect.DeepEqual(before.Today, after.Today) ||
		!reflect.DeepEqual(before.Tomorrow, after.Tomorrow) {
		t.Fatalf("round trip mismatch:\nbefore=%+v\nafter=%+v", before, after)
	}
	if before.UpdatedAt == nil || after.UpdatedAt == nil || !before.UpdatedAt.Equal(*after.UpdatedAt) {
		t.Fatalf("updated_at mismatch: %v vs %v", before.UpdatedAt, after.UpdatedAt)
	}
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 7, 10, 0, 0, 0, msk)
	s, _, _ := openTestStore(t, now)
	s.SetSlots(NewSlot(now, []string{"A"}, now, ""), NewSlot(now.AddDate(0, 0, 1), nil, now, ""), now)

	snap := s.Snapshot()
	snap.Today.Holidays[0] = "mutated"
	r, _ := s.Slot(now)
	if r.Holidays()[0] != "A" {
		t.Fatalf("snapshot aliases store state")
	}
	hs := r.Holidays()
	hs[0] = "mutated"
	if r.Holidays()[0] != "A" {
		t.Fatalf("result aliases its holidays")
	}
}
