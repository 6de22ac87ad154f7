package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	yaml "go.yaml.in/yaml/v3"
)

// Error is a missing or invalid configuration value. Key names the
// environment variable when the value has one, otherwise the config path.
type Error struct {
	Key    string
	Reason string
	Err    error
}

func (e *Error) Error() string { return fmt.Sprintf("config %s: %s", e.Key, e.Reason) }
func (e *Error) Unwrap() error { return e.Err }

// envKeys whitelists the environment variables read into Config, keyed by
// variable name. Anything else in the environment is ignored.
var envKeys = map[string]string{
	"POLL_PERIOD_MS":    "poll.period_ms",
	"LOG_GROUPS":        "poll.groups",
	"LOG_PATTERN":       "poll.pattern",
	"SLACK_WEBHOOK_URL": "slack.webhook_url",
	"SLACK_CHANNEL":     "slack.channel",
	"SLACK_USER":        "slack.user",
	"SLACK_ICON":        "slack.icon",

	"LOG_LEVEL":             "logging.level",
	"LOG_FORMAT":            "logging.format",
	"RATE_LIMIT_ENABLED":    "limiter.enabled",
	"RATE_LIMIT_QUOTA":      "limiter.quota",
	"RATE_LIMIT_WINDOW":     "limiter.window",
	"DEFAULT_GROUP_PREFIX":  "source.default_prefix",
	"STREAM_PREFIX_BY_DATE": "source.stream_prefix_by_date",
	"AWS_REGION":            "source.region",
	"LOGS_ENDPOINT_URL":     "source.endpoint",
	"SCHEDULE":              "schedule.spec",
	"SCHEDULE_TIMEZONE":     "schedule.timezone",
	"METRICS_ADDR":          "metrics.addr",
	"TELEGRAM_BOT_TOKEN":    "telegram.token",
	"TELEGRAM_CHAT_ID":      "telegram.chat_id",
}

// keyFor returns the name a user would set for path.
func keyFor(path string) string {
	for k, p := range envKeys {
		if p == path {
			return k
		}
	}
	return path
}

// Options selects the layers Load reads.
type Options struct {
	// File is an optional YAML or JSON config file.
	File string
	// DotEnv is loaded into the process environment before anything else;
	// it never overrides variables that are already set. Defaults to ".env";
	// a missing file is ignored.
	DotEnv string
}

// Load builds the configuration from, in increasing precedence: defaults,
// the config file, then the environment. The result is validated.
func Load(opts Options) (*Config, error) {
	dotenv := opts.DotEnv
	if dotenv == "" {
		dotenv = ".env"
	}
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &Error{Key: dotenv, Reason: err.Error(), Err: err}
	}

	cfg := Default()
	if opts.File != "" {
		if err := decodeFile(opts.File, &cfg); err != nil {
			return nil, &Error{Key: opts.File, Reason: err.Error(), Err: err}
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	k := koanf.New(".")
	err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, any) {
		// An empty key tells the provider to skip the variable. Empty values
		// count as unset so they never clobber file or default values.
		if strings.TrimSpace(value) == "" {
			return "", nil
		}
		return envKeys[key], strings.TrimSpace(value)
	}), nil)
	if err != nil {
		return &Error{Key: "environment", Reason: err.Error(), Err: err}
	}
	if len(k.Keys()) == 0 {
		return nil
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return &Error{Key: "environment", Reason: err.Error(), Err: err}
	}
	return nil
}

// decodeFile strictly decodes path onto cfg. Unknown keys and trailing data
// are rejected; fields the file omits keep their current value.
func decodeFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	jb, err := coerceToJSONBytes(path, b)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("trailing data")
		}
		return err
	}
	return nil
}

// coerceToJSONBytes turns YAML into JSON so both formats share the strict
// JSON decoder. Files without a .yaml/.yml extension are taken as JSON.
func coerceToJSONBytes(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if v == nil {
		return []byte("{}"), nil
	}
	j, err := json.Marshal(stringKeys(v))
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, nil
}

func stringKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = stringKeys(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = stringKeys(x[i])
		}
		return x
	default:
		return in
	}
}
