package domain

import "errors"

var (
	// ErrMissingCredentials is returned before any delivery when the bot token
	// or destination chat is not configured.
	ErrMissingCredentials = errors.New("missing telegram credentials: TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are required")

	// ErrEmptyMessage is returned when the input text is empty after trimming.
	ErrEmptyMessage = errors.New("empty message")
)
