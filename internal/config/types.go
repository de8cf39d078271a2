package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("10s", "1m"); times of day are HH:MM.
type Config struct {
	Telegram      TelegramConfig      `json:"telegram"`
	Holidays      HolidaysConfig      `json:"holidays"`
	Logging       LoggingConfig       `json:"logging"`
	Observability ObservabilityConfig `json:"observability,omitempty"`
	Systemd       SystemdConfig       `json:"systemd,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// TargetChatID is the autopost destination and the only chat the bot
	// answers in. 0 means not configured yet.
	TargetChatID int64   `json:"target_chat_id"`
	AdminUserIDs []int64 `json:"admin_user_ids"`
	// GroupLog is the chat id that receives the Telegram log sink.
	GroupLog    string `json:"group_log,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// HolidaysConfig controls the cache, the remote source and the schedules.
//
// Defaults (when omitted):
//   - cache_path: "data/holidays.json"
//   - autopost_time: "00:00"
//   - timezone: "Europe/Moscow"
//   - source_url: "https://www.calend.ru/day/"
//   - fetch_timeout: "10s"
//   - prefetch_at: "23:50"
//   - digest_limit: 10
//   - refresh_on_start: true
type HolidaysConfig struct {
	CachePath      string `json:"cache_path,omitempty"`
	AutopostTime   string `json:"autopost_time,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
	SourceURL      string `json:"source_url,omitempty"`
	FetchTimeout   string `json:"fetch_timeout,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
	PrefetchAt     string `json:"prefetch_at,omitempty"`
	DigestLimit    int    `json:"digest_limit,omitempty"`
	RefreshOnStart *bool  `json:"refresh_on_start,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// ObservabilityConfig controls the optional HTTP server with /metrics,
// /healthz and pprof.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9464").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type ObservabilityConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:9464"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type SystemdConfig struct {
	// Notify sends READY/STOPPING/WATCHDOG when NOTIFY_SOCKET is set.
	Notify bool `json:"notify"`
}
