package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "logsweep/pkg/logx"
)

var requiredEnv = map[string]string{
	"POLL_PERIOD_MS":    "60000",
	"LOG_GROUPS":        "svc-a  svc-b\t/custom/group",
	"LOG_PATTERN":       "ERROR",
	"SLACK_WEBHOOK_URL": "https://hooks.slack.com/services/T000/B000/XXXX",
	"SLACK_CHANNEL":     "#alerts",
	"SLACK_USER":        "logsweep",
	"SLACK_ICON":        ":rotating_light:",
}

// isolateEnv blanks every whitelisted variable; empty values count as unset.
func isolateEnv(t *testing.T) {
	t.Helper()
	for k := range envKeys {
		t.Setenv(k, "")
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	for k, v := range requiredEnv {
		t.Setenv(k, v)
	}
}

func noDotEnv(t *testing.T) Options {
	return Options{DotEnv: filepath.Join(t.TempDir(), "missing.env")}
}

func configErrorKeys(err error) map[string]bool {
	keys := map[string]bool{}
	var walk func(error)
	walk = func(err error) {
		if err == nil {
			return
		}
		if j, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range j.Unwrap() {
				walk(e)
			}
			return
		}
		var ce *Error
		if errors.As(err, &ce) {
			keys[ce.Key] = true
		}
	}
	walk(err)
	return keys
}

func TestLoadFromEnvironment(t *testing.T) {
	isolateEnv(t)
	setRequired(t)

	cfg, err := Load(noDotEnv(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.PollPeriod(); got != time.Minute {
		t.Fatalf("PollPeriod = %s", got)
	}
	groups := cfg.GroupNames()
	if len(groups) != 3 || groups[0] != "svc-a" || groups[2] != "/custom/group" {
		t.Fatalf("GroupNames = %q", groups)
	}
	if cfg.Slack.Channel != "#alerts" || cfg.Slack.Icon != ":rotating_light:" {
		t.Fatalf("slack = %+v", cfg.Slack)
	}
	// defaults survive
	if !cfg.Limiter.Enabled || cfg.Limiter.Quota != 5 || cfg.LimiterWindow() != time.Second {
		t.Fatalf("limiter defaults = %+v", cfg.Limiter)
	}
	if cfg.Source.DefaultPrefix != "/aws/lambda/" {
		t.Fatalf("DefaultPrefix = %q", cfg.Source.DefaultPrefix)
	}
	if cfg.Telegram.Enabled() {
		t.Fatal("telegram should be disabled by default")
	}
}

func TestLoadOptionalEnvOverrides(t *testing.T) {
	isolateEnv(t)
	setRequired(t)
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("RATE_LIMIT_QUOTA", "9")
	t.Setenv("STREAM_PREFIX_BY_DATE", "true")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "-100200300")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load(noDotEnv(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Limiter.Enabled || cfg.Limiter.Quota != 9 {
		t.Fatalf("limiter = %+v", cfg.Limiter)
	}
	if !cfg.Source.StreamPrefixByDate {
		t.Fatal("StreamPrefixByDate not applied")
	}
	if !cfg.Telegram.Enabled() || cfg.Telegram.ChatID != -100200300 {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("format = %q", cfg.Logging.Format)
	}
}

func TestLoadMissingRequiredKeys(t *testing.T) {
	isolateEnv(t)
	setRequired(t)
	t.Setenv("LOG_PATTERN", "")
	t.Setenv("SLACK_CHANNEL", "")

	_, err := Load(noDotEnv(t))
	if err == nil {
		t.Fatal("expected error")
	}
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("want *Error, got %T", err)
	}
	keys := configErrorKeys(err)
	if !keys["LOG_PATTERN"] || !keys["SLACK_CHANNEL"] {
		t.Fatalf("error keys = %v (%v)", keys, err)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	cases := []struct {
		name, key, value string
	}{
		{"zero period", "POLL_PERIOD_MS", "0"},
		{"negative period", "POLL_PERIOD_MS", "-5"},
		{"non-numeric period", "POLL_PERIOD_MS", "1m"},
		{"period past duration range", "POLL_PERIOD_MS", "10000000000000"},
		{"zero quota while enabled", "RATE_LIMIT_QUOTA", "0"},
		{"bad webhook", "SLACK_WEBHOOK_URL", "not a url"},
		{"bad window", "RATE_LIMIT_WINDOW", "soon"},
		{"bad format", "LOG_FORMAT", "xml"},
		{"bad timezone", "SCHEDULE_TIMEZONE", "Mars/Olympus"},
		{"chat without token", "TELEGRAM_CHAT_ID", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			isolateEnv(t)
			setRequired(t)
			t.Setenv(tc.key, tc.value)
			if tc.key == "TELEGRAM_CHAT_ID" {
				t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
			}

			_, err := Load(noDotEnv(t))
			if err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.value)
			}
			if keys := configErrorKeys(err); !keys[tc.key] {
				t.Fatalf("error should name %s, got %v (%v)", tc.key, keys, err)
			}
		})
	}
}

func TestLoadIgnoresQuotaWhenLimiterDisabled(t *testing.T) {
	isolateEnv(t)
	setRequired(t)
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("RATE_LIMIT_QUOTA", "0")

	cfg, err := Load(noDotEnv(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Limiter.Enabled {
		t.Fatal("limiter should be disabled")
	}
}

func TestLoadRejectsEventLimitAboveBackendMax(t *testing.T) {
	isolateEnv(t)
	setRequired(t)

	dir := t.TempDir()
	for _, tc := range []struct {
		limit   int
		wantErr bool
	}{
		{10000, false},
		{10001, true},
		{1 << 32, true},
	} {
		path := filepath.Join(dir, "logsweep.json")
		if err := os.WriteFile(path, []byte(fmt.Sprintf(`{"source":{"event_limit":%d}}`, tc.limit)), 0o600); err != nil {
			t.Fatal(err)
		}
		opts := noDotEnv(t)
		opts.File = path
		_, err := Load(opts)
		if (err != nil) != tc.wantErr {
			t.Fatalf("event_limit=%d: err = %v", tc.limit, err)
		}
		if tc.wantErr && !configErrorKeys(err)["source.event_limit"] {
			t.Fatalf("event_limit=%d: error should name source.event_limit, got %v", tc.limit, err)
		}
	}
}

func TestParseMillisRange(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw     Millis
		want    time.Duration
		wantErr bool
	}{
		{"300000", 5 * time.Minute, false},
		{"9223372036854", 9223372036854 * time.Millisecond, false},
		{"9223372036855", 0, true},
		{"10000000000000", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseMillis("POLL_PERIOD_MS", tc.raw)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Fatalf("ParseMillis(%q) = %v, %v", tc.raw, got, err)
		}
	}
}

func TestLoadYAMLFileWithEnvPrecedence(t *testing.T) {
	isolateEnv(t)
	setRequired(t)
	t.Setenv("RATE_LIMIT_QUOTA", "7")

	path := filepath.Join(t.TempDir(), "logsweep.yaml")
	data := `
poll:
  pattern: "WARN"
limiter:
  quota: 2
  window: 500ms
source:
  query_timeout: 5s
schedule:
  spec: "*/5 * * * *"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	opts := noDotEnv(t)
	opts.File = path

	cfg, err := Load(opts)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Poll.Pattern != "ERROR" {
		t.Fatalf("env should win over file: pattern = %q", cfg.Poll.Pattern)
	}
	if cfg.Limiter.Quota != 7 {
		t.Fatalf("env should win over file: quota = %d", cfg.Limiter.Quota)
	}
	if cfg.LimiterWindow() != 500*time.Millisecond || cfg.QueryTimeout() != 5*time.Second {
		t.Fatalf("file values not applied: window=%s timeout=%s", cfg.LimiterWindow(), cfg.QueryTimeout())
	}
	if cfg.Schedule.Spec != "*/5 * * * *" {
		t.Fatalf("schedule = %q", cfg.Schedule.Spec)
	}
}

func TestLoadRejectsUnknownFileKeys(t *testing.T) {
	isolateEnv(t)
	setRequired(t)

	path := filepath.Join(t.TempDir(), "logsweep.json")
	if err := os.WriteFile(path, []byte(`{"limiter":{"quota":2,"burst":9}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	opts := noDotEnv(t)
	opts.File = path
	_, err := Load(opts)
	var ce *Error
	if !errors.As(err, &ce) || ce.Key != path {
		t.Fatalf("want *Error for %s, got %v", path, err)
	}
}

func TestLoadPeriodFromFileNumber(t *testing.T) {
	isolateEnv(t)
	setRequired(t)
	t.Setenv("POLL_PERIOD_MS", "")

	path := filepath.Join(t.TempDir(), "logsweep.yml")
	if err := os.WriteFile(path, []byte("poll:\n  period_ms: 300000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	opts := noDotEnv(t)
	opts.File = path
	cfg, err := Load(opts)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollPeriod() != 5*time.Minute {
		t.Fatalf("PollPeriod = %s", cfg.PollPeriod())
	}
}

func TestLoadDotEnv(t *testing.T) {
	isolateEnv(t)
	setRequired(t)
	t.Setenv("LOG_PATTERN", "")

	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("LOG_PATTERN=Task timed out\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv never overrides existing variables, including empty ones.
	if err := os.Unsetenv("LOG_PATTERN"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("LOG_PATTERN") })

	cfg, err := Load(Options{DotEnv: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Poll.Pattern != "Task timed out" {
		t.Fatalf("pattern = %q", cfg.Poll.Pattern)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{" 2s ", 2 * time.Second, false},
		{"-1s", 0, true},
		{"abc", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseDurationField("K", tc.raw)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Fatalf("ParseDurationField(%q) = %v, %v", tc.raw, got, err)
		}
	}
}

func TestSummarizeChangeHidesSecrets(t *testing.T) {
	t.Parallel()
	a := Default()
	b := Default()
	b.Slack.WebhookURL = "https://hooks.slack.com/services/secret"
	b.Limiter.Quota = 3

	changed, attrs := SummarizeChange(&a, &b)
	if len(changed) != 2 || changed[0] != "slack" || changed[1] != "limiter" {
		t.Fatalf("changed = %v", changed)
	}
	var buf bytes.Buffer
	logx.NewWriter(&buf, "debug").Info("reload", attrs...)
	if strings.Contains(buf.String(), "secret") {
		t.Fatalf("webhook URL leaked: %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"limiter.quota":3`) {
		t.Fatalf("missing limiter attrs: %s", buf.String())
	}
	if got := RequiresRestart(&a, &b); len(got) != 1 || got[0] != "slack" {
		t.Fatalf("RequiresRestart = %v", got)
	}
}
