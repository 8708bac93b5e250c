package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/St1cky1/restaurant-task-service/internal/config"
	"github.com/St1cky1/restaurant-task-service/internal/entity"
	"github.com/St1cky1/restaurant-task-service/internal/logging"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sony/gobreaker"
)

// TelegramSender отправляет текст в личный чат пользователя.
// Chat id совпадает с telegram id пользователя. Вызовы идут через circuit breaker,
// чтобы при недоступности API не держать воркеры на таймаутах.
type TelegramSender struct {
	bot     *tgbotapi.BotAPI
	breaker *gobreaker.CircuitBreaker
}

func NewTelegramSender(cfg config.TelegramConfig) (*TelegramSender, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is empty")
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	logging.Logger.WithField("bot", bot.Self.UserName).Info("Telegram бот авторизован")

	return &TelegramSender{bot: bot, breaker: newTelegramBreaker()}, nil
}

func newTelegramBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "telegram",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Logger.Warnf("Circuit breaker '%s': %s -> %s", name, from.String(), to.String())
		},
	})
}

// Send уважает отмену ctx только до отправки, сам HTTP-вызов ограничен таймаутом клиента.
func (s *TelegramSender) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return s.bot.Send(tgbotapi.NewMessage(chatID, text))
	})
	return err
}

// Notify - прямая доставка без очереди (notifier.mode=direct).
func (s *TelegramSender) Notify(ctx context.Context, n *entity.Notification) error {
	return s.Send(ctx, n.RecipientID, n.Text)
}
