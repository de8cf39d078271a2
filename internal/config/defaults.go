package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata" // timezone names resolve on hosts without zoneinfo

	"holidaybot/internal/holidays"
)

const (
	DefaultCachePath    = "data/holidays.json"
	DefaultAutopostTime = "00:00"
	DefaultTimezone     = "Europe/Moscow"
	DefaultPrefetchAt   = "23:50"
	DefaultMetricsAddr  = "127.0.0.1:9464"
)

// Holidays is the resolved holidays section.
type Holidays struct {
	CachePath      string
	AutopostTime   string
	Location       *time.Location
	SourceURL      string
	FetchTimeout   time.Duration
	UserAgent      string
	PrefetchAt     string
	DigestLimit    int
	RefreshOnStart bool
}

// ResolveHolidays applies defaults and parses the holidays section.
func (c *Config) ResolveHolidays() (Holidays, error) {
	h := c.Holidays
	out := Holidays{
		CachePath:      strings.TrimSpace(h.CachePath),
		SourceURL:      strings.TrimSpace(h.SourceURL),
		UserAgent:      strings.TrimSpace(h.UserAgent),
		DigestLimit:    h.DigestLimit,
		RefreshOnStart: h.RefreshOnStart == nil || *h.RefreshOnStart,
	}
	if out.CachePath == "" {
		out.CachePath = DefaultCachePath
	}
	if out.SourceURL == "" {
		out.SourceURL = holidays.DefaultSourceURL
	}
	if out.UserAgent == "" {
		out.UserAgent = holidays.DefaultUserAgent
	}
	if out.DigestLimit < 0 {
		return Holidays{}, fmt.Errorf("holidays.digest_limit: must be >= 0")
	}
	if out.DigestLimit == 0 {
		out.DigestLimit = holidays.DefaultDigestLimit
	}

	var err error
	if out.AutopostTime, err = clockOrDefault("holidays.autopost_time", h.AutopostTime, DefaultAutopostTime); err != nil {
		return Holidays{}, err
	}
	if out.PrefetchAt, err = clockOrDefault("holidays.prefetch_at", h.PrefetchAt, DefaultPrefetchAt); err != nil {
		return Holidays{}, err
	}
	if out.FetchTimeout, err = ParseDurationOrDefault("holidays.fetch_timeout", h.FetchTimeout, 10*time.Second); err != nil {
		return Holidays{}, err
	}

	tz := strings.TrimSpace(h.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	if out.Location, err = time.LoadLocation(tz); err != nil {
		return Holidays{}, fmt.Errorf("holidays.timezone: %w", err)
	}

	u, err := url.Parse(out.SourceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Holidays{}, fmt.Errorf("holidays.source_url: invalid url %q", out.SourceURL)
	}
	return out, nil
}

func clockOrDefault(path, raw, def string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	v, err := holidays.NormalizeTime(raw)
	if err != nil {
		return "", fmt.Errorf("%s: %q: %w", path, raw, err)
	}
	return v, nil
}

// Validate checks every section. It is run on load and before a hot reload
// is committed.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token: required"))
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ResolveHolidays(); err != nil {
		errs = append(errs, err)
	}
	if c.Logging.Telegram.RatePerSec < 0 {
		errs = append(errs, errors.New("logging.telegram.rate_per_sec: must be >= 0"))
	}
	o := c.Observability
	for _, f := range [...]struct{ path, raw string }{
		{"observability.read_timeout", o.ReadTimeout},
		{"observability.write_timeout", o.WriteTimeout},
		{"observability.idle_timeout", o.IdleTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
