package config

import (
	"reflect"
	"sort"
	"strings"

	logx "holidaybot/pkg/logx"
)

// Change summarizes a reload. Fields never carry secrets.
type Change struct {
	// Sections lists changed top-level sections, sorted.
	Sections []string
	Fields   []logx.Field
	// RestartRequired lists changed keys that only take effect after a restart.
	RestartRequired []string
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// Summarize compares two configs for logging and hot-reload decisions.
func Summarize(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	restart := func(key string, changed bool) {
		if changed {
			ch.RestartRequired = append(ch.RestartRequired, key)
		}
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token || ot.TargetChatID != nt.TargetChatID ||
		!reflect.DeepEqual(ot.AdminUserIDs, nt.AdminUserIDs) ||
		strings.TrimSpace(ot.GroupLog) != strings.TrimSpace(nt.GroupLog) ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) {
		ch.Sections = append(ch.Sections, "telegram")
		ch.Fields = append(ch.Fields,
			logx.Int64("telegram.target_chat_id", nt.TargetChatID),
			logx.Int("telegram.admin_count", len(nt.AdminUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nt.GroupLog) != ""),
		)
		restart("telegram.token", ot.Token != nt.Token)
		restart("telegram.poll_timeout", strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout))
	}

	oh, nh := oldCfg.Holidays, newCfg.Holidays
	if !reflect.DeepEqual(oh, nh) {
		ch.Sections = append(ch.Sections, "holidays")
		ch.Fields = append(ch.Fields,
			logx.Int("holidays.digest_limit", nh.DigestLimit),
			logx.String("holidays.timezone", nh.Timezone),
		)
		restart("holidays.cache_path", oh.CachePath != nh.CachePath)
		restart("holidays.timezone", oh.Timezone != nh.Timezone)
		restart("holidays.source_url", oh.SourceURL != nh.SourceURL)
		restart("holidays.fetch_timeout", oh.FetchTimeout != nh.FetchTimeout)
		restart("holidays.user_agent", oh.UserAgent != nh.UserAgent)
		restart("holidays.prefetch_at", oh.PrefetchAt != nh.PrefetchAt)
		// autopost_time seeds an empty cache only; /holidaystime owns it afterwards.
		restart("holidays.autopost_time", oh.AutopostTime != nh.AutopostTime)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		nl := newCfg.Logging
		ch.Sections = append(ch.Sections, "logging")
		ch.Fields = append(ch.Fields,
			logx.String("logging.level", nl.Level),
			logx.Bool("logging.console", nl.Console),
			logx.Bool("logging.file_enabled", nl.File.Enabled),
			logx.Bool("logging.telegram_enabled", nl.Telegram.Enabled),
		)
	}

	oo, no := oldCfg.Observability, newCfg.Observability
	if !reflect.DeepEqual(oo, no) {
		ch.Sections = append(ch.Sections, "observability")
		ch.Fields = append(ch.Fields,
			logx.Bool("observability.enabled", no.Enabled),
			logx.String("observability.addr", strings.TrimSpace(no.Addr)),
			logx.Bool("observability.token_set", strings.TrimSpace(no.Token) != ""),
			logx.Bool("observability.pprof", no.Pprof),
		)
	}

	if oldCfg.Systemd != newCfg.Systemd {
		ch.Sections = append(ch.Sections, "systemd")
		restart("systemd.notify", true)
	}

	sort.Strings(ch.Sections)
	return ch
}
