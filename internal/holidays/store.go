package holidays

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"holidaybot/internal/metrics"
	"holidaybot/internal/storage"
	logx "holidaybot/pkg/logx"
)

// Document is the persisted cache layout.
type Document struct {
	AutopostTime string     `json:"autopost_time"`
	UpdatedAt    *time.Time `json:"updated_at"`
	Today        SlotData   `json:"today"`
	Tomorrow     SlotData   `json:"tomorrow"`
}

// SlotData is one dated cache entry. Dates and instants are kept as strings
// so a single malformed value degrades to a cache miss instead of a failed load.
type SlotData struct {
	Date      string   `json:"date"`
	Holidays  []string `json:"holidays"`
	FetchedAt string   `json:"fetched_at"`
	SourceURL string   `json:"source_url"`
}

// NewSlot builds slot data for date.
func NewSlot(date time.Time, holidays []string, fetchedAt time.Time, sourceURL string) SlotData {
	hs := slices.Clone(holidays)
	if hs == nil {
		hs = []string{}
	}
	return SlotData{
		Date:      DateKey(date),
		Holidays:  hs,
		FetchedAt: fetchedAt.Format(time.RFC3339),
		SourceURL: sourceURL,
	}
}

func (d SlotData) clone() SlotData {
	d.Holidays = slices.Clone(d.Holidays)
	if d.Holidays == nil {
		d.Holidays = []string{}
	}
	return d
}

func (d Document) clone() Document {
	cp := d
	if d.UpdatedAt != nil {
		t := *d.UpdatedAt
		cp.UpdatedAt = &t
	}
	cp.Today = d.Today.clone()
	cp.Tomorrow = d.Tomorrow.clone()
	return cp
}

type persister interface {
	Load(v any) (bool, error)
	Save(v any) error
}

// Store owns the cache document. Reads are lock-free snapshots; writers
// serialize on mu and swap in a complete new document before persisting it.
type Store struct {
	file    persister
	doc     atomic.Pointer[Document]
	mu      sync.Mutex
	loc     *time.Location
	signal  *Signal
	log     logx.Logger
	metrics metrics.Collector
	source  string
}

type StoreOption func(*Store)

func WithStoreMetrics(m metrics.Collector) StoreOption {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithPlaceholderSource sets the source URL written into placeholder slots.
func WithPlaceholderSource(url string) StoreOption {
	return func(s *Store) {
		if url != "" {
			s.source = url
		}
	}
}

func withPersister(p persister) StoreOption {
	return func(s *Store) { s.file = p }
}

// OpenStore loads the document at path or initializes it with defaults.
// A missing or unreadable file is never fatal: defaults are written back
// immediately so the file mirrors memory from here on. now fixes the
// placeholder dates and the zone used to interpret stored dates.
func OpenStore(path, defaultAutopostTime string, now time.Time, log logx.Logger, opts ...StoreOption) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{
		loc:     now.Location(),
		signal:  NewSignal(),
		log:     log,
		metrics: metrics.Noop(),
		source:  DefaultSourceURL,
	}
	for _, o := range opts {
		o(s)
	}
	if s.file == nil {
		f, err := storage.NewJSONFile(path)
		if err != nil {
			return nil, err
		}
		s.file = f
	}

	if norm, err := NormalizeTime(defaultAutopostTime); err == nil {
		defaultAutopostTime = norm
	} else {
		log.Warn("invalid default autopost time, using 00:00", logx.String("value", defaultAutopostTime))
		defaultAutopostTime = "00:00"
	}

	doc := s.load(defaultAutopostTime, now)
	s.doc.Store(&doc)
	s.observe(doc)
	s.persist(doc)
	return s, nil
}

func (s *Store) load(defaultAutopostTime string, now time.Time) Document {
	today := dateOf(now)
	var doc Document
	found, err := s.file.Load(&doc)
	switch {
	case err != nil:
		s.log.Warn("holiday cache unreadable, recreating", logx.Err(err))
		doc = Document{UpdatedAt: &now}
	case !found:
		s.log.Info("holiday cache not found, creating")
		doc = Document{UpdatedAt: &now}
	}

	if norm, err := NormalizeTime(doc.AutopostTime); err == nil {
		doc.AutopostTime = norm
	} else {
		if doc.AutopostTime != "" {
			s.log.Warn("stored autopost time invalid, using default", logx.String("value", doc.AutopostTime))
		}
		doc.AutopostTime = defaultAutopostTime
	}
	if doc.Today.Date == "" {
		doc.Today = NewSlot(today, nil, now, s.source)
	}
	if doc.Tomorrow.Date == "" {
		doc.Tomorrow = NewSlot(addDays(today, 1), nil, now, s.source)
	}
	return doc.clone()
}

// Signal is notified on every effective autopost time change.
func (s *Store) Signal() *Signal { return s.signal }

// Location is the zone stored dates are interpreted in.
func (s *Store) Location() *time.Location { return s.loc }

// Slot returns the cached result whose stored date equals date exactly.
func (s *Store) Slot(date time.Time) (Result, bool) {
	doc := s.doc.Load()
	key := DateKey(date)
	for _, slot := range []SlotData{doc.Today, doc.Tomorrow} {
		if slot.Date != key {
			continue
		}
		if r, ok := s.toResult(slot); ok {
			return r, true
		}
	}
	return Result{}, false
}

func (s *Store) toResult(slot SlotData) (Result, bool) {
	date, err := time.ParseInLocation(time.DateOnly, slot.Date, s.loc)
	if err != nil {
		return Result{}, false
	}
	fetchedAt, err := time.Parse(time.RFC3339, slot.FetchedAt)
	if err != nil {
		fetchedAt = date
	}
	fetchedAt = fetchedAt.In(s.loc)
	source := slot.SourceURL
	if source == "" {
		source = s.source
	}
	annotation := ""
	if len(slot.Holidays) == 0 {
		annotation = TextNoHolidays
	}
	return NewResult(date, slot.Holidays, source, fetchedAt, annotation), true
}

// SetSlots replaces both slots and updated_at in one rewrite.
func (s *Store) SetSlots(today, tomorrow SlotData, fetchedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.doc.Load().clone()
	next.Today = today.clone()
	next.Tomorrow = tomorrow.clone()
	t := fetchedAt
	next.UpdatedAt = &t
	s.doc.Store(&next)
	s.observe(next)
	s.persist(next)
}

func (s *Store) AutopostTime() string { return s.doc.Load().AutopostTime }

// SetAutopostTime validates and stores value. changed is false when the
// normalized value equals the current one; then nothing is written and the
// signal is not raised.
func (s *Store) SetAutopostTime(value string) (normalized string, changed bool, err error) {
	normalized, err = NormalizeTime(value)
	if err != nil {
		return "", false, err
	}

	s.mu.Lock()
	cur := s.doc.Load()
	if cur.AutopostTime == normalized {
		s.mu.Unlock()
		return normalized, false, nil
	}
	next := cur.clone()
	next.AutopostTime = normalized
	s.doc.Store(&next)
	s.persist(next)
	s.mu.Unlock()

	s.log.Info("autopost time updated", logx.String("from", cur.AutopostTime), logx.String("to", normalized))
	s.signal.Notify()
	return normalized, true, nil
}

// Snapshot returns a deep copy of the current document.
func (s *Store) Snapshot() Document { return s.doc.Load().clone() }

func (s *Store) persist(doc Document) {
	if err := s.file.Save(doc); err != nil {
		s.metrics.IncPersistError()
		s.log.Warn("failed to persist holiday cache", logx.Err(err))
	}
}

func (s *Store) observe(doc Document) {
	s.metrics.SetHolidaysCached("today", len(doc.Today.Holidays))
	s.metrics.SetHolidaysCached("tomorrow", len(doc.Tomorrow.Holidays))
}
