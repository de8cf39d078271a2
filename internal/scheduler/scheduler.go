package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"holidaybot/internal/holidays"
	"holidaybot/internal/metrics"
	rtsup "holidaybot/internal/runtime/supervisor"
	kit "holidaybot/internal/transport"
	logx "holidaybot/pkg/logx"
)

const (
	DefaultPrefetchAt = "23:50"
	DefaultCooldown   = 60 * time.Second
)

// Sender delivers the autopost message.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

type Options struct {
	// PrefetchAt is the daily refresh time, HH:MM in the store's zone.
	PrefetchAt string
	// Target returns the autopost destination; ChatID 0 disables posting.
	Target      func() kit.ChatTarget
	DigestLimit func() int
	// Cooldown is the pause after a failed iteration.
	Cooldown time.Duration

	Clock   func() time.Time
	After   func(time.Duration) <-chan time.Time
	Logger  logx.Logger
	Metrics metrics.Collector
}

// Service runs the nightly prefetch and the daily autopost loops.
type Service struct {
	holidays *holidays.Service
	store    *holidays.Store
	sender   Sender

	prefetchAt  string
	target      func() kit.ChatTarget
	digestLimit func() int
	cooldown    time.Duration
	clock       func() time.Time
	after       func(time.Duration) <-chan time.Time
	log         logx.Logger
	metrics     metrics.Collector
}

func New(svc *holidays.Service, sender Sender, opt Options) (*Service, error) {
	if svc == nil {
		return nil, errors.New("scheduler: holidays service required")
	}
	if opt.PrefetchAt == "" {
		opt.PrefetchAt = DefaultPrefetchAt
	}
	prefetchAt, err := holidays.NormalizeTime(opt.PrefetchAt)
	if err != nil {
		return nil, fmt.Errorf("scheduler: prefetch_at %q: %w", opt.PrefetchAt, err)
	}
	if opt.Target == nil {
		opt.Target = func() kit.ChatTarget { return kit.ChatTarget{} }
	}
	if opt.DigestLimit == nil {
		opt.DigestLimit = func() int { return holidays.DefaultDigestLimit }
	}
	if opt.Cooldown <= 0 {
		opt.Cooldown = DefaultCooldown
	}
	if opt.Clock == nil {
		opt.Clock = time.Now
	}
	if opt.After == nil {
		opt.After = time.After
	}
	if opt.Logger.IsZero() {
		opt.Logger = logx.Nop()
	}
	if opt.Metrics == nil {
		opt.Metrics = metrics.Noop()
	}
	return &Service{
		holidays:    svc,
		store:       svc.Store(),
		sender:      sender,
		prefetchAt:  prefetchAt,
		target:      opt.Target,
		digestLimit: opt.DigestLimit,
		cooldown:    opt.Cooldown,
		clock:       opt.Clock,
		after:       opt.After,
		log:         opt.Logger,
		metrics:     opt.Metrics,
	}, nil
}

// Start launches both loops under sup. They stop when its context is canceled.
func (s *Service) Start(sup *rtsup.Supervisor) {
	sup.Go0("scheduler.prefetch", s.RunPrefetch)
	sup.Go0("scheduler.autopost", s.RunAutopost)
	s.log.Info("scheduler started",
		logx.String("prefetch_at", s.prefetchAt),
		logx.String("autopost_at", s.store.AutopostTime()),
		logx.String("tz", s.store.Location().String()),
	)
}

func (s *Service) now() time.Time { return s.clock().In(s.store.Location()) }

// RunPrefetch refreshes the cache every day at PrefetchAt until ctx is done.
func (s *Service) RunPrefetch(ctx context.Context) {
	s.loop(ctx, "prefetch", s.prefetchOnce)
}

// RunAutopost posts the cached digest every day at the store's autopost
// time until ctx is done. A change of the autopost time reschedules the
// pending wait without posting.
func (s *Service) RunAutopost(ctx context.Context) {
	s.loop(ctx, "autopost", s.autopostOnce)
}

func (s *Service) loop(ctx context.Context, name string, once func(context.Context) error) {
	log := s.log.With(logx.String("loop", name))
	for ctx.Err() == nil {
		err := runRecovered(ctx, once)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			continue
		}
		log.Error("iteration failed", logx.Err(err), logx.Duration("cooldown", s.cooldown))
		select {
		case <-ctx.Done():
			return
		case <-s.after(s.cooldown):
		}
	}
}

func runRecovered(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}

func (s *Service) prefetchOnce(ctx context.Context) error {
	now := s.now()
	next, err := NextFire(now, s.prefetchAt)
	if err != nil {
		return err
	}
	s.log.Debug("prefetch scheduled", logx.Time("next", next), logx.Duration("delay", next.Sub(now)))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.after(next.Sub(now)):
	}

	r, err := s.holidays.Refresh(ctx, s.now())
	if err != nil {
		return fmt.Errorf("prefetch: %w", err)
	}
	s.log.Info("prefetch finished", logx.Date("today", r.Date), logx.Int("count", r.Len()))
	return nil
}

func (s *Service) autopostOnce(ctx context.Context) error {
	now := s.now()
	at := s.store.AutopostTime()
	next, err := NextFire(now, at)
	if err != nil {
		return fmt.Errorf("autopost time %q: %w", at, err)
	}
	s.log.Info("autopost scheduled", logx.String("at", at), logx.Time("next", next), logx.Duration("delay", next.Sub(now)))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.store.Signal().C():
		s.log.Info("autopost time changed, rescheduling")
		return nil
	case <-s.after(next.Sub(now)):
	}
	return s.post(ctx)
}

func (s *Service) post(ctx context.Context) error {
	target := s.target()
	if target.ChatID == 0 {
		s.metrics.IncAutopost(metrics.ResultSkipped)
		s.log.Warn("autopost skipped: target chat not configured")
		return nil
	}

	today := s.now()
	r, ok := s.holidays.EnsureForDate(ctx, today)
	if !ok || !r.HasData() {
		s.metrics.IncAutopost(metrics.ResultSkipped)
		s.log.Warn("autopost skipped: no holidays cached", logx.Date("date", today))
		return nil
	}

	text := ComposeAutopost(r, s.digestLimit())
	if _, err := s.sender.SendText(ctx, target, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}); err != nil {
		s.metrics.IncAutopost(metrics.ResultError)
		return fmt.Errorf("send autopost: %w", err)
	}
	s.metrics.IncAutopost(metrics.ResultSent)
	s.log.Info("autopost sent", logx.Date("date", r.Date), logx.Int64("chat_id", target.ChatID), logx.Int("count", r.Len()))
	return nil
}

// ComposeAutopost renders the headline holiday followed by the digest.
func ComposeAutopost(r holidays.Result, limit int) string {
	digest := holidays.FormatDigest(r, limit)
	name, ok := holidays.SelectAutopostHoliday(r.Holidays())
	if !ok {
		return digest
	}
	return holidays.FormatSingleHoliday(name, r.Date) + "\n\n" + digest
}
