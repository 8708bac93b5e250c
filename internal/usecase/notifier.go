package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/St1cky1/restaurant-task-service/internal/entity"
	"github.com/St1cky1/restaurant-task-service/internal/logging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Notifier - порт доставки сообщения одному получателю.
// Реализации: публикация в RabbitMQ или прямая отправка в telegram.
type Notifier interface {
	Notify(ctx context.Context, n *entity.Notification) error
}

const defaultConcurrency = 8

// Dispatcher рассылает одно сообщение нескольким получателям.
// Ошибка одного получателя не мешает остальным и наружу не возвращается.
type Dispatcher struct {
	notifier    Notifier
	concurrency int
	now         func() time.Time
}

func NewDispatcher(notifier Notifier, concurrency int) *Dispatcher {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Dispatcher{
		notifier:    notifier,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Send возвращает число успешно доставленных сообщений.
func (d *Dispatcher) Send(ctx context.Context, taskID int, kind entity.NotificationKind, text string, recipients []int64) int {
	recipients = uniqueRecipients(recipients)
	if len(recipients) == 0 {
		return 0
	}

	results := make([]bool, len(recipients))
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, recipient := range recipients {
		i, recipient := i, recipient
		g.Go(func() error {
			n := &entity.Notification{
				ID:          uuid.NewString(),
				RecipientID: recipient,
				TaskID:      taskID,
				Kind:        kind,
				Text:        text,
				CreatedAt:   d.now(),
			}
			if err := d.notifier.Notify(ctx, n); err != nil {
				d.logFailure(n, &entity.DeliveryError{RecipientID: recipient, Err: err})
				return nil
			}
			results[i] = true
			return nil
		})
	}
	g.Wait()

	delivered := 0
	for _, ok := range results {
		if ok {
			delivered++
		}
	}
	return delivered
}

func (d *Dispatcher) logFailure(n *entity.Notification, err error) {
	fields := logrus.Fields{
		"task_id":      n.TaskID,
		"recipient_id": n.RecipientID,
		"kind":         n.Kind,
	}
	if errors.Is(err, context.Canceled) {
		logging.Logger.WithFields(fields).Warn("Отправка уведомления прервана")
		return
	}
	logging.Logger.WithFields(fields).WithError(err).Error("Ошибка отправки уведомления")
}

func uniqueRecipients(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
