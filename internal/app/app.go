// Package app wires configuration, the log source, the sweeper and the
// notifier together and runs them in one of three modes: a single sweep, an
// AWS Lambda handler, or a scheduled daemon.
package app

import (
	"context"
	"fmt"
	"time"

	"logsweep/internal/config"
	"logsweep/internal/logsource"
	"logsweep/internal/logsource/cloudwatch"
	"logsweep/internal/metrics"
	"logsweep/internal/notifier"
	"logsweep/internal/notifier/slack"
	"logsweep/internal/notifier/telegram"
	"logsweep/internal/sweep"
	logx "logsweep/pkg/logx"
)

type Options struct {
	ConfigFile string
	DotEnv     string

	// Source replaces the CloudWatch client when set.
	Source logsource.Source
	// Sinks replaces the configured chat sinks when set.
	Sinks []notifier.Sink
}

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	metrics *metrics.Recorder
	notif   *notifier.Service
	sweeper *sweep.Sweeper
}

// New loads the configuration and builds every component. A configuration
// problem is returned as *config.Error before anything touches the network.
func New(ctx context.Context, opts Options) (*App, error) {
	bootLog := logx.NewConsole("info").With(logx.String("comp", "config"))
	cfgm := config.NewManager(config.Options{File: opts.ConfigFile, DotEnv: opts.DotEnv}, bootLog)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	rec := metrics.New()

	src := opts.Source
	if src == nil {
		cw, err := cloudwatch.New(ctx, cloudwatch.Config{
			Region:   cfg.Source.Region,
			Endpoint: cfg.Source.Endpoint,
		})
		if err != nil {
			_ = logSvc.Close()
			return nil, fmt.Errorf("cloudwatch client: %w", err)
		}
		src = cw
	}

	sinks := opts.Sinks
	if sinks == nil {
		sinks, err = buildSinks(cfg)
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
	}
	notif := notifier.New(notifier.Config{
		RatePerSec:     cfg.Notifier.RatePerSec,
		Timeout:        cfg.NotifyTimeout(),
		MessageCeiling: cfg.Notifier.MessageCeiling,
	}, log.With(logx.String("comp", "notifier")), rec, sinks...)

	sweeper := sweep.New(sweepSettings(cfg), src, notif, log.With(logx.String("comp", "sweep")), rec)

	log.Info("logsweep configured",
		logx.Int("groups", len(cfg.GroupNames())),
		logx.Duration("period", cfg.PollPeriod()),
		logx.Bool("rate_limit", cfg.Limiter.Enabled),
		logx.Int("sinks", len(sinks)),
	)
	return &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		metrics: rec,
		notif:   notif,
		sweeper: sweeper,
	}, nil
}

// RunOnce performs one sweep and delivers its result.
func (a *App) RunOnce(ctx context.Context) sweep.Result {
	return a.sweeper.Sweep(ctx)
}

// LambdaHandler returns the handler for lambda mode. It takes no payload and
// never returns the sweep's own failures: those were already reported to
// chat, and a returned error would make Lambda retry the whole sweep.
func (a *App) LambdaHandler() func(ctx context.Context) error {
	return func(ctx context.Context) error {
		res := a.sweeper.Sweep(ctx)
		if ctx.Err() != nil {
			return fmt.Errorf("sweep %s interrupted: %w", res.RunID, ctx.Err())
		}
		return nil
	}
}

func (a *App) Close() error {
	if a.logs == nil {
		return nil
	}
	return a.logs.Close()
}

func buildSinks(cfg *config.Config) ([]notifier.Sink, error) {
	sl, err := slack.New(slack.Config{
		WebhookURL: cfg.Slack.WebhookURL,
		Channel:    cfg.Slack.Channel,
		Username:   cfg.Slack.User,
		Icon:       cfg.Slack.Icon,
	})
	if err != nil {
		return nil, &config.Error{Key: "SLACK_WEBHOOK_URL", Reason: err.Error(), Err: err}
	}
	sinks := []notifier.Sink{sl}

	if cfg.Telegram.Enabled() {
		tg, err := telegram.New(telegram.Config{
			Token:    cfg.Telegram.Token,
			ChatID:   cfg.Telegram.ChatID,
			ThreadID: cfg.Telegram.ThreadID,
		})
		if err != nil {
			return nil, &config.Error{Key: "TELEGRAM_BOT_TOKEN", Reason: err.Error(), Err: err}
		}
		sinks = append(sinks, tg)
	}
	return sinks, nil
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func sweepSettings(cfg *config.Config) sweep.Settings {
	return sweep.Settings{
		Groups:             cfg.GroupNames(),
		Pattern:            cfg.Poll.Pattern,
		Period:             cfg.PollPeriod(),
		NamespacePrefix:    cfg.Source.DefaultPrefix,
		StreamPrefixByDate: cfg.Source.StreamPrefixByDate,
		QueryTimeout:       cfg.QueryTimeout(),
		Budget: sweep.Budget{
			MessageCeiling: cfg.Notifier.MessageCeiling,
			EventCap:       cfg.Source.EventCap,
			EventLimit:     cfg.Source.EventLimit,
		},
		Limiter: sweep.LimiterSettings{
			Enabled: cfg.Limiter.Enabled,
			Quota:   cfg.Limiter.Quota,
			Window:  cfg.LimiterWindow(),
		},
		Location: cfg.Location(),
	}
}

// scheduleSpec defaults to one sweep per look-back period so consecutive
// windows tile without gaps.
func scheduleSpec(cfg *config.Config) string {
	if cfg.Schedule.Spec != "" {
		return cfg.Schedule.Spec
	}
	d := max(cfg.PollPeriod().Truncate(time.Second), time.Second)
	return "@every " + d.String()
}
