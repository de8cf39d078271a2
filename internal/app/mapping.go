package app

import (
	"strconv"
	"strings"
	"time"

	"holidaybot/internal/config"
	"holidaybot/internal/observability"
	"holidaybot/internal/transport/router"
	logx "holidaybot/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// groupLogChat parses telegram.group_log; invalid or empty yields 0.
func groupLogChat(cfg *config.Config) int64 {
	s := strings.TrimSpace(cfg.Telegram.GroupLog)
	if s == "" {
		return 0
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func mapPolicy(cfg *config.Config) router.Policy {
	return router.Policy{
		AdminIDs:     cfg.Telegram.AdminUserIDs,
		TargetChatID: cfg.Telegram.TargetChatID,
	}
}

func mapObservability(cfg *config.Config) (observability.Config, error) {
	o := cfg.Observability
	out := observability.Config{
		Enabled:       o.Enabled,
		Addr:          strings.TrimSpace(o.Addr),
		Token:         strings.TrimSpace(o.Token),
		AllowInsecure: o.AllowInsecure,
		Pprof:         o.Pprof,
	}
	if out.Addr == "" {
		out.Addr = config.DefaultMetricsAddr
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("observability.read_timeout", o.ReadTimeout, 5*time.Second); err != nil {
		return observability.Config{}, err
	}
	// pprof profile/trace stream for up to 30s by default.
	if out.WriteTimeout, err = config.ParseDurationOrDefault("observability.write_timeout", o.WriteTimeout, 35*time.Second); err != nil {
		return observability.Config{}, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("observability.idle_timeout", o.IdleTimeout, 60*time.Second); err != nil {
		return observability.Config{}, err
	}
	return out, nil
}
