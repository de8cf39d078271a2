package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"holidaybot/internal/bot"
	"holidaybot/internal/config"
	"holidaybot/internal/holidays"
	"holidaybot/internal/metrics"
	"holidaybot/internal/observability"
	"holidaybot/internal/runtime/sdnotify"
	rtsup "holidaybot/internal/runtime/supervisor"
	"holidaybot/internal/scheduler"
	kit "holidaybot/internal/transport"
	"holidaybot/internal/transport/router"
	"holidaybot/internal/transport/telegram"
	logx "holidaybot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter  *telegram.Adapter
	router   *router.Router
	bot      *bot.Bot
	holidays *holidays.Service
	sched    *scheduler.Service
	obs      *observability.Server
	notify   *sdnotify.Notifier

	loc            *time.Location
	refreshOnStart bool
	targetChat     atomic.Int64

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	hc, err := cfg.ResolveHolidays()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Apply() warns when the Telegram sink is enabled without a target, so
	// bootstrap with it off, set the target, then apply the final config.
	logCfg := mapLogging(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	logSvc.SetTelegramTarget(groupLogChat(cfg), cfg.Logging.Telegram.ThreadID)
	logSvc.Apply(logCfg)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mc, err := metrics.NewPrometheusCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	store, err := holidays.OpenStore(hc.CachePath, hc.AutopostTime, time.Now().In(hc.Location),
		log.With(logx.String("comp", "store")),
		holidays.WithStoreMetrics(mc),
		holidays.WithPlaceholderSource(hc.SourceURL),
	)
	if err != nil {
		return nil, err
	}
	svc := holidays.NewService(store,
		holidays.NewHTTPFetcher(hc.SourceURL, hc.UserAgent, hc.FetchTimeout),
		holidays.ServiceOptions{
			SourceURL: hc.SourceURL,
			Logger:    log.With(logx.String("comp", "holidays")),
			Metrics:   mc,
		})

	b := bot.New(svc, bot.Options{DigestLimit: hc.DigestLimit})
	r := router.New(log.With(logx.String("comp", "commands")), ad, bot.RouterOptions())
	r.SetCommands(b.Commands())
	r.SetPolicy(mapPolicy(cfg))

	a := &App{
		cfgm:           cfgm,
		log:            log.With(logx.String("comp", "app")),
		logs:           logSvc,
		adapter:        ad,
		router:         r,
		bot:            b,
		holidays:       svc,
		loc:            hc.Location,
		refreshOnStart: hc.RefreshOnStart,
		notify:         sdnotify.New(cfg.Systemd.Notify, log.With(logx.String("comp", "sdnotify"))),
		updates:        make(chan kit.Update, 256),
	}
	a.targetChat.Store(cfg.Telegram.TargetChatID)

	sched, err := scheduler.New(svc, ad, scheduler.Options{
		PrefetchAt:  hc.PrefetchAt,
		Target:      func() kit.ChatTarget { return kit.ChatTarget{ChatID: a.targetChat.Load()} },
		DigestLimit: b.DigestLimit,
		Logger:      log.With(logx.String("comp", "scheduler")),
		Metrics:     mc,
	})
	if err != nil {
		return nil, err
	}
	a.sched = sched

	obsCfg, err := mapObservability(cfg)
	if err != nil {
		return nil, err
	}
	a.obs = observability.New(obsCfg, reg, a.health, log.With(logx.String("comp", "observability")))
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) health() error {
	if a.sup == nil {
		return errors.New("not started")
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	if a.refreshOnStart {
		a.sup.Go0("holidays.refresh_on_start", func(c context.Context) {
			if _, err := a.holidays.Refresh(c, time.Now().In(a.loc)); err != nil {
				a.log.Warn("startup refresh failed; serving cached data", logx.Err(err))
			}
		})
	}

	checkCtx, cancel := context.WithTimeout(runCtx, 10*time.Second)
	bot.StartupCheck(checkCtx, a.adapter, a.targetChat.Load(), a.log)
	if err := a.router.UpdateMenu(checkCtx); err != nil {
		a.log.Warn("command menu update failed", logx.Err(err))
	}
	cancel()

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})
	a.sched.Start(a.sup)
	a.obs.Start(runCtx)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("sdnotify.watchdog", a.notify.Watchdog)

	a.notify.Ready()
	a.notify.Status("serving")
	a.log.Info("app started",
		logx.Int64("target_chat_id", a.targetChat.Load()),
		logx.String("autopost_at", a.holidays.Store().AutopostTime()),
	)
	return nil
}

// reloadLoop applies hot-reloadable settings. Keys that need a restart are
// only reported.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			ch := config.Summarize(lastApplied, newCfg)
			lastApplied = newCfg
			if ch.Empty() {
				a.log.Info("config reloaded (no changes)")
				continue
			}
			a.apply(ctx, newCfg)

			fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)
			a.log.Info("config reloaded", fields...)
			if len(ch.RestartRequired) > 0 {
				a.log.Warn("some changes take effect after restart", logx.String("keys", strings.Join(ch.RestartRequired, ",")))
			}
		}
	}
}

func (a *App) apply(ctx context.Context, cfg *config.Config) {
	// target first so Apply() doesn't warn when the Telegram sink is enabled
	a.logs.SetTelegramTarget(groupLogChat(cfg), cfg.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLogging(cfg))

	a.router.SetPolicy(mapPolicy(cfg))
	a.targetChat.Store(cfg.Telegram.TargetChatID)

	if hc, err := cfg.ResolveHolidays(); err == nil {
		a.bot.SetDigestLimit(hc.DigestLimit)
	}

	oc, err := mapObservability(cfg)
	if err != nil {
		a.log.Warn("invalid observability config; keeping previous", logx.Err(err))
		return
	}
	a.obs.Reconfigure(ctx, oc)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.notify.Stopping()
	a.sup.Cancel()

	a.step(ctx, "observability", 1*time.Second, func(c context.Context) error { a.obs.Stop(c); return nil })
	a.step(ctx, "adapter", 2*time.Second, a.adapter.Stop)
	// scheduler, dispatcher, config watch and reload all run under sup
	a.step(ctx, "supervisor", 3*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs one shutdown step with an upper bound so a stuck component
// can't stall the whole stop. The caller's deadline is never extended.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		max = min(max, time.Until(dl))
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
