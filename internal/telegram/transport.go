// Package telegram implements domain.Transport on top of the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"scopelock/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// parseErrorMarker is how the Bot API reports malformed HTML in sendMessage.
const parseErrorMarker = "can't parse entities"

type Config struct {
	Token          string
	ChatID         string // numeric id or @channelusername
	APIEndpoint    string // defaults to tgbotapi.APIEndpoint
	HTTPClient     tgbotapi.HTTPClient
	RatePerMinute  int // 0 = only 429 pauses
	Burst          int
	DisablePreview bool
	Logger         *slog.Logger
}

// Transport sends single messages to one chat.
type Transport struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	channel        string
	disablePreview bool
	limiter        *RateLimiter
	logger         *slog.Logger
}

// New validates the target chat and connects to the Bot API (getMe).
func New(cfg Config) (*Transport, error) {
	if strings.TrimSpace(cfg.Token) == "" || strings.TrimSpace(cfg.ChatID) == "" {
		return nil, domain.ErrMissingCredentials
	}
	chatID, channel, err := ParseChatID(cfg.ChatID)
	if err != nil {
		return nil, err
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.HTTPClient == nil {
		client, err := NewHTTPClient(ClientOptions{})
		if err != nil {
			return nil, err
		}
		cfg.HTTPClient = client
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.APIEndpoint, cfg.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	logger.Debug("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	t := &Transport{
		bot:            bot,
		chatID:         chatID,
		channel:        channel,
		disablePreview: cfg.DisablePreview,
		logger:         logger,
	}
	if cfg.RatePerMinute > 0 {
		t.limiter = NewRateLimiter(cfg.Burst, float64(cfg.RatePerMinute))
	} else {
		t.limiter = NewUnlimitedRateLimiter()
	}
	return t, nil
}

// ParseChatID accepts a numeric chat id or an @channel username.
func ParseChatID(s string) (int64, string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "@") {
		if len(s) == 1 {
			return 0, "", fmt.Errorf("invalid chat id %q", s)
		}
		return 0, s, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return 0, "", fmt.Errorf("invalid chat id %q: must be numeric or @channel", s)
	}
	return id, "", nil
}

// BotUsername is the username reported by getMe.
func (t *Transport) BotUsername() string { return t.bot.Self.UserName }

// Send delivers text as one message. A rich send whose markup Telegram
// refuses returns *domain.FormatRejection; the caller decides whether to
// retry as plain text.
func (t *Transport) Send(ctx context.Context, text string, richText bool) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := t.newMessage(text)
	if richText {
		msg.ParseMode = tgbotapi.ModeHTML
	}

	_, err := t.bot.Send(msg)
	if err == nil {
		return nil
	}

	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		if richText && strings.Contains(apiErr.Message, parseErrorMarker) {
			return &domain.FormatRejection{Detail: apiErr.Message}
		}
		if apiErr.RetryAfter > 0 {
			t.logger.Warn("telegram rate limited", "retry_after", apiErr.RetryAfter)
			t.limiter.Pause(time.Duration(apiErr.RetryAfter) * time.Second)
			return fmt.Errorf("telegram send: %s (retry after %ds)", apiErr.Message, apiErr.RetryAfter)
		}
	}
	return fmt.Errorf("telegram send: %w", err)
}

func (t *Transport) newMessage(text string) tgbotapi.MessageConfig {
	var msg tgbotapi.MessageConfig
	if t.channel != "" {
		msg = tgbotapi.NewMessageToChannel(t.channel, text)
	} else {
		msg = tgbotapi.NewMessage(t.chatID, text)
	}
	msg.DisableWebPagePreview = t.disablePreview
	return msg
}
