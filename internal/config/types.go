package config

import (
	"encoding/json"
	"strings"
)

// Config is the full runtime configuration. Every field is reachable from
// the optional config file (json tags) and, for whitelisted keys, from the
// environment (koanf tags; see envKeys).
type Config struct {
	Poll     PollConfig     `json:"poll" koanf:"poll"`
	Slack    SlackConfig    `json:"slack" koanf:"slack"`
	Logging  LoggingConfig  `json:"logging" koanf:"logging"`
	Limiter  LimiterConfig  `json:"limiter" koanf:"limiter"`
	Source   SourceConfig   `json:"source" koanf:"source"`
	Notifier NotifierConfig `json:"notifier" koanf:"notifier"`
	Schedule ScheduleConfig `json:"schedule" koanf:"schedule"`
	Metrics  MetricsConfig  `json:"metrics" koanf:"metrics"`
	Telegram TelegramConfig `json:"telegram" koanf:"telegram"`
}

// PollConfig describes what a sweep looks for.
type PollConfig struct {
	// PeriodMS is the look-back window in milliseconds.
	PeriodMS Millis `json:"period_ms" koanf:"period_ms" validate:"required"`
	// Groups is a whitespace-separated list of log group names.
	Groups  string `json:"groups" koanf:"groups" validate:"required"`
	Pattern string `json:"pattern" koanf:"pattern" validate:"required"`
}

type SlackConfig struct {
	WebhookURL string `json:"webhook_url" koanf:"webhook_url" validate:"required,url"`
	Channel    string `json:"channel" koanf:"channel" validate:"required"`
	User       string `json:"user" koanf:"user" validate:"required"`
	Icon       string `json:"icon" koanf:"icon" validate:"required"`
}

type LoggingConfig struct {
	Level  string        `json:"level" koanf:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Format string        `json:"format" koanf:"format" validate:"omitempty,oneof=console json"`
	File   LogFileConfig `json:"file" koanf:"file"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled" koanf:"enabled"`
	Path    string `json:"path" koanf:"path" validate:"required_if=Enabled true"`
}

// LimiterConfig bounds backend queries per window within one sweep.
type LimiterConfig struct {
	Enabled bool   `json:"enabled" koanf:"enabled"`
	Quota   int    `json:"quota" koanf:"quota"`
	Window  string `json:"window" koanf:"window"`
}

type SourceConfig struct {
	DefaultPrefix      string `json:"default_prefix" koanf:"default_prefix"`
	StreamPrefixByDate bool   `json:"stream_prefix_by_date" koanf:"stream_prefix_by_date"`
	Region             string `json:"region" koanf:"region"`
	Endpoint           string `json:"endpoint" koanf:"endpoint" validate:"omitempty,url"`
	// QueryTimeout bounds one backend query; "0s" or empty disables it.
	QueryTimeout string `json:"query_timeout" koanf:"query_timeout"`
	EventLimit   int    `json:"event_limit" koanf:"event_limit" validate:"min=0,max=10000"`
	EventCap     int    `json:"event_cap" koanf:"event_cap" validate:"min=0"`
}

// NotifierConfig tunes chat delivery.
//
// Durations are Go duration strings (e.g. "10s").
type NotifierConfig struct {
	RatePerSec     float64 `json:"rate_per_sec" koanf:"rate_per_sec" validate:"min=0"`
	Timeout        string  `json:"timeout" koanf:"timeout"`
	MessageCeiling int     `json:"message_ceiling" koanf:"message_ceiling" validate:"min=0"`
}

// ScheduleConfig drives daemon mode. Spec accepts the same forms as
// scheduler.ParseSchedule; empty means "every poll period".
type ScheduleConfig struct {
	Spec     string `json:"spec" koanf:"spec"`
	Timezone string `json:"timezone" koanf:"timezone" validate:"omitempty,timezone"`
}

type MetricsConfig struct {
	Addr string `json:"addr" koanf:"addr" validate:"omitempty,hostname_port"`
	// Pprof mounts /debug/pprof/ next to /metrics.
	Pprof bool `json:"pprof" koanf:"pprof"`
}

// TelegramConfig enables an optional Telegram mirror of every notification.
type TelegramConfig struct {
	Token    string `json:"token" koanf:"token"`
	ChatID   int64  `json:"chat_id" koanf:"chat_id" validate:"required_with=Token"`
	ThreadID int    `json:"thread_id" koanf:"thread_id" validate:"min=0"`
}

func (t TelegramConfig) Enabled() bool { return strings.TrimSpace(t.Token) != "" }

// Millis is a millisecond count kept verbatim until validation so a bad
// value surfaces as a config error naming its key. It decodes from a JSON
// number or string.
type Millis string

func (m *Millis) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*m = Millis(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*m = Millis(n.String())
	return nil
}

// Default returns the configuration before any file or environment layer.
func Default() Config {
	var c Config
	c.Logging.Level = "info"
	c.Logging.Format = "console"
	c.Limiter.Enabled = true
	c.Limiter.Quota = 5
	c.Limiter.Window = "1s"
	c.Source.DefaultPrefix = "/aws/lambda/"
	c.Notifier.RatePerSec = 1
	c.Notifier.Timeout = "10s"
	return c
}
