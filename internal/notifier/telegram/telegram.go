// Package telegram mirrors notifications into a Telegram chat through the
// Bot API.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// textLimit is Telegram's per-message limit; sweep reports stay below it.
const textLimit = 4096

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int // forum topic; 0 for none
	// APIURL overrides the Bot API endpoint (tests, local Bot API servers).
	APIURL string
}

type Sink struct {
	cfg Config
	bot *tele.Bot
}

func New(cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		URL:    cfg.APIURL,
		Client: &http.Client{Timeout: 15 * time.Second},
		// Offline skips the getMe handshake; this sink only sends.
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &Sink{cfg: cfg, bot: b}, nil
}

func (s *Sink) Name() string { return "telegram" }

// Send posts text without a parse mode. Reports carry Slack markup and may be
// cut mid-fence, which the Bot API rejects as Markdown. telebot has no
// context support, so ctx is only checked before the call; the HTTP client
// timeout bounds the call.
func (s *Sink) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r := []rune(text); len(r) > textLimit {
		text = string(r[:textLimit])
	}
	_, err := s.bot.Send(&tele.Chat{ID: s.cfg.ChatID}, text, &tele.SendOptions{
		DisableWebPagePreview: true,
		ThreadID:              s.cfg.ThreadID,
	})
	return err
}
