package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector receives domain events from the holiday cache and scheduler.
// Calls happen inline on request and refresh paths and must be cheap.
type Collector interface {
	ObserveRefresh(result string, took time.Duration)
	IncCacheLookup(kind string)
	IncPersistError()
	IncAutopost(result string)
	SetHolidaysCached(slot string, n int)
}

// Refresh and autopost result labels.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSent    = "sent"
	ResultSkipped = "skipped"
)

// Cache lookup kinds.
const (
	LookupHit       = "hit"
	LookupMiss      = "miss"
	LookupStale     = "stale"
	LookupSynthetic = "synthetic"
)

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector { return noopCollector{} }

func (noopCollector) ObserveRefresh(string, time.Duration) {}
func (noopCollector) IncCacheLookup(string)                {}
func (noopCollector) IncPersistError()                     {}
func (noopCollector) IncAutopost(string)                   {}
func (noopCollector) SetHolidaysCached(string, int)        {}

// PrometheusCollector exposes the holidaybot_* metric families.
type PrometheusCollector struct {
	refreshes     *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	lookups       *prometheus.CounterVec
	persistErrors prometheus.Counter
	autoposts     *prometheus.CounterVec
	cached        *prometheus.GaugeVec
}

// NewPrometheusCollector registers the metric families with reg, reusing
// collectors that are already registered there.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var err error
	p := &PrometheusCollector{}

	if p.refreshes, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "holidaybot_refresh_total",
		Help: "Refresh attempts against the remote holiday page by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if p.fetchDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "holidaybot_fetch_duration_seconds",
		Help:    "Duration of refreshes including fetch, parse and persist.",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
	})); err != nil {
		return nil, err
	}
	if p.lookups, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "holidaybot_cache_hits_total",
		Help: "Today lookups by how they were served.",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if p.persistErrors, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "holidaybot_persist_errors_total",
		Help: "Failed rewrites of the cache document.",
	})); err != nil {
		return nil, err
	}
	if p.autoposts, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "holidaybot_autopost_total",
		Help: "Autopost iterations by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if p.cached, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "holidaybot_holidays_cached",
		Help: "Number of holidays stored per cache slot.",
	}, []string{"slot"})); err != nil {
		return nil, err
	}
	return p, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}

func (p *PrometheusCollector) ObserveRefresh(result string, took time.Duration) {
	if p == nil {
		return
	}
	p.refreshes.WithLabelValues(result).Inc()
	p.fetchDuration.Observe(took.Seconds())
}

func (p *PrometheusCollector) IncCacheLookup(kind string) {
	if p == nil {
		return
	}
	p.lookups.WithLabelValues(kind).Inc()
}

func (p *PrometheusCollector) IncPersistError() {
	if p == nil {
		return
	}
	p.persistErrors.Inc()
}

func (p *PrometheusCollector) IncAutopost(result string) {
	if p == nil {
		return
	}
	p.autoposts.WithLabelValues(result).Inc()
}

func (p *PrometheusCollector) SetHolidaysCached(slot string, n int) {
	if p == nil {
		return
	}
	p.cached.WithLabelValues(slot).Set(float64(n))
}
