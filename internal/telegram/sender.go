package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Config locates the bot and the chat that receives verification codes.
type Config struct {
	Token   string
	ChatID  string
	Timeout time.Duration
}

// Configured reports whether both the bot token and the chat id are set.
func (c Config) Configured() bool {
	return c.Token != "" && c.ChatID != ""
}

// Sender delivers verification messages through the Bot API.
type Sender struct {
	cfg    Config
	chatID int64

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewSender validates cfg. The bot itself is created on the first send so
// startup does not depend on the Telegram API being reachable.
func NewSender(cfg Config) (*Sender, error) {
	s := &Sender{cfg: cfg}
	if !cfg.Configured() {
		return s, nil
	}
	id, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", cfg.ChatID, err)
	}
	s.chatID = id
	if s.cfg.Timeout <= 0 {
		s.cfg.Timeout = 5 * time.Second
	}
	return s, nil
}

func (s *Sender) Configured() bool {
	return s != nil && s.cfg.Configured()
}

// Send posts text to the configured chat.
func (s *Sender) Send(ctx context.Context, text string) error {
	if !s.Configured() {
		return fmt.Errorf("telegram bot not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	bot, err := s.client(ctx)
	if err != nil {
		return err
	}
	if _, err := bot.Send(tgbotapi.NewMessage(s.chatID, text)); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func (s *Sender) client(ctx context.Context) (*tgbotapi.BotAPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bot != nil {
		return s.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(s.cfg.Token, tgbotapi.APIEndpoint, &http.Client{Timeout: s.cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	s.bot = bot
	slog.InfoContext(ctx, "Telegram bot connected", "bot", bot.Self.UserName)
	return bot, nil
}
