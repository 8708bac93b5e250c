package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/St1cky1/restaurant-task-service/internal/entity"
	"github.com/St1cky1/restaurant-task-service/internal/infrastructure/client"
	"github.com/St1cky1/restaurant-task-service/internal/logging"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Sender - доставка текста в чат, реализуется client.TelegramSender.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// NotificationWorker доставляет уведомления из очереди в telegram.
type NotificationWorker struct {
	consumer Consumer
	sender   Sender
	// пауза перед возвратом сообщения в очередь при разомкнутом breaker
	backoff time.Duration
}

func NewNotificationWorker(consumer Consumer, sender Sender) *NotificationWorker {
	return &NotificationWorker{
		consumer: consumer,
		sender:   sender,
		backoff:  5 * time.Second,
	}
}

// Start блокируется до отмены ctx.
func (w *NotificationWorker) Start(ctx context.Context) error {
	return consume(ctx, w.consumer, client.NotificationQueue, "notification_worker", w.processMessage)
}

func (w *NotificationWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	var n entity.Notification
	if err := json.Unmarshal(msg.Body, &n); err != nil || n.RecipientID == 0 {
		logging.Logger.WithError(err).Error("Некорректное уведомление в очереди")
		msg.Nack(false, false)
		return
	}

	log := logging.Logger.WithFields(logrus.Fields{
		"task_id":      n.TaskID,
		"recipient_id": n.RecipientID,
		"kind":         n.Kind,
	})

	err := w.sender.Send(ctx, n.RecipientID, n.Text)
	switch {
	case err == nil:
		msg.Ack(false)
		log.Debug("Уведомление доставлено")
	case temporary(err):
		// telegram недоступен, сообщение вернётся в очередь
		log.WithError(err).Warn("Доставка отложена")
		select {
		case <-ctx.Done():
		case <-time.After(w.backoff):
		}
		msg.Nack(false, true)
	default:
		// например, пользователь не начинал диалог с ботом: повтор не поможет
		log.WithError(&entity.DeliveryError{RecipientID: n.RecipientID, Err: err}).Error("Уведомление не доставлено")
		msg.Nack(false, false)
	}
}

func temporary(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) ||
		errors.Is(err, context.Canceled)
}
