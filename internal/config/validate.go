package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their config path rather than Go name.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks cfg and returns every problem found, each as *Error,
// joined with errors.Join.
func Validate(cfg *Config) error {
	if cfg == nil {
		return &Error{Key: "config", Reason: "config is nil"}
	}
	var errs []error

	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &Error{Key: "config", Reason: err.Error(), Err: err}
		}
		for _, fe := range verrs {
			errs = append(errs, fieldError(fe))
		}
	}

	// Semantic checks only for values the tag pass accepted.
	if cfg.Poll.PeriodMS != "" {
		if _, err := ParseMillis(keyFor("poll.period_ms"), cfg.Poll.PeriodMS); err != nil {
			errs = append(errs, err)
		}
	}
	if strings.TrimSpace(cfg.Poll.Groups) != "" && len(cfg.GroupNames()) == 0 {
		errs = append(errs, &Error{Key: keyFor("poll.groups"), Reason: "no group names"})
	}
	if cfg.Limiter.Enabled {
		if cfg.Limiter.Quota < 1 {
			errs = append(errs, &Error{Key: keyFor("limiter.quota"), Reason: fmt.Sprintf("%d must be at least 1", cfg.Limiter.Quota)})
		}
		if _, err := ParseDurationField(keyFor("limiter.window"), cfg.Limiter.Window); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := ParseDurationField(keyFor("source.query_timeout"), cfg.Source.QueryTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField(keyFor("notifier.timeout"), cfg.Notifier.Timeout); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func fieldError(fe validator.FieldError) *Error {
	// Namespace is "Config.section.field".
	_, path, _ := strings.Cut(fe.Namespace(), ".")
	key := keyFor(path)
	var reason string
	switch fe.Tag() {
	case "required", "required_if", "required_with":
		reason = "is required"
	case "url":
		reason = fmt.Sprintf("%q is not a valid URL", fe.Value())
	case "oneof":
		reason = fmt.Sprintf("%q must be one of [%s]", fe.Value(), fe.Param())
	case "min":
		reason = fmt.Sprintf("%v must be at least %s", fe.Value(), fe.Param())
	case "max":
		reason = fmt.Sprintf("%v must be at most %s", fe.Value(), fe.Param())
	default:
		reason = fmt.Sprintf("%v fails %q", fe.Value(), fe.Tag())
	}
	return &Error{Key: key, Reason: reason}
}

// GroupNames splits the configured group list on whitespace.
func (c *Config) GroupNames() []string { return strings.Fields(c.Poll.Groups) }

// PollPeriod returns the look-back window. It is 0 for an unvalidated or
// invalid config.
func (c *Config) PollPeriod() time.Duration {
	d, _ := ParseMillis("", c.Poll.PeriodMS)
	return d
}

func (c *Config) LimiterWindow() time.Duration {
	d, _ := ParseDurationOrDefault("", c.Limiter.Window, time.Second)
	return d
}

func (c *Config) QueryTimeout() time.Duration {
	d, _ := ParseDurationField("", c.Source.QueryTimeout)
	return d
}

func (c *Config) NotifyTimeout() time.Duration {
	d, _ := ParseDurationOrDefault("", c.Notifier.Timeout, 10*time.Second)
	return d
}

// Location returns the schedule timezone, defaulting to time.Local.
func (c *Config) Location() *time.Location {
	if tz := strings.TrimSpace(c.Schedule.Timezone); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return time.Local
}
