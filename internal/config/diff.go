package config

import (
	logx "logsweep/pkg/logx"
)

// SummarizeChange lists the config sections that differ and returns safe
// log attributes for them. Secrets (webhook URL, bot token) are never
// included; only whether they are set.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Poll != newCfg.Poll {
		changed = append(changed, "poll")
		attrs = append(attrs,
			logx.Duration("poll.period", newCfg.PollPeriod()),
			logx.Int("poll.groups", len(newCfg.GroupNames())),
			logx.String("poll.pattern", newCfg.Poll.Pattern),
		)
	}
	if oldCfg.Slack != newCfg.Slack {
		changed = append(changed, "slack")
		attrs = append(attrs,
			logx.String("slack.channel", newCfg.Slack.Channel),
			logx.Bool("slack.webhook_changed", oldCfg.Slack.WebhookURL != newCfg.Slack.WebhookURL),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.String("logging.format", newCfg.Logging.Format),
		)
	}
	if oldCfg.Limiter != newCfg.Limiter {
		changed = append(changed, "limiter")
		attrs = append(attrs,
			logx.Bool("limiter.enabled", newCfg.Limiter.Enabled),
			logx.Int("limiter.quota", newCfg.Limiter.Quota),
			logx.String("limiter.window", newCfg.Limiter.Window),
		)
	}
	if oldCfg.Source != newCfg.Source {
		changed = append(changed, "source")
		attrs = append(attrs, logx.String("source.default_prefix", newCfg.Source.DefaultPrefix))
	}
	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
	}
	if oldCfg.Schedule != newCfg.Schedule {
		changed = append(changed, "schedule")
		attrs = append(attrs, logx.String("schedule.spec", newCfg.Schedule.Spec))
	}
	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
	}
	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs, logx.Bool("telegram.enabled", newCfg.Telegram.Enabled()))
	}
	return changed, attrs
}

// RequiresRestart reports changes that only take effect on restart: the
// metrics listener, the notifier and the log client are built once at startup.
func RequiresRestart(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	if oldCfg.Metrics != newCfg.Metrics {
		out = append(out, "metrics")
	}
	if oldCfg.Slack != newCfg.Slack {
		out = append(out, "slack")
	}
	if oldCfg.Telegram != newCfg.Telegram {
		out = append(out, "telegram")
	}
	if oldCfg.Notifier != newCfg.Notifier {
		out = append(out, "notifier")
	}
	if oldCfg.Source.Region != newCfg.Source.Region || oldCfg.Source.Endpoint != newCfg.Source.Endpoint {
		out = append(out, "source")
	}
	return out
}
