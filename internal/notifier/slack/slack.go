// Package slack delivers notifications through a Slack incoming webhook.
package slack

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	// Icon is an emoji name (":rotating_light:") or an image URL.
	Icon string
}

type Sink struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.WebhookURL) == "" {
		return nil, errors.New("slack webhook url is empty")
	}
	return &Sink{cfg: cfg, client: &http.Client{Timeout: 15 * time.Second}}, nil
}

func (s *Sink) Name() string { return "slack" }

func (s *Sink) Send(ctx context.Context, text string) error {
	msg := &slack.WebhookMessage{
		Channel:  s.cfg.Channel,
		Username: s.cfg.Username,
		Text:     text,
	}
	if icon := strings.TrimSpace(s.cfg.Icon); strings.HasPrefix(icon, "http://") || strings.HasPrefix(icon, "https://") {
		msg.IconURL = icon
	} else {
		msg.IconEmoji = icon
	}
	return slack.PostWebhookCustomHTTPContext(ctx, s.cfg.WebhookURL, s.client, msg)
}
