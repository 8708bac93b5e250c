package worker

import (
	"context"
	"encoding/json"

	"github.com/St1cky1/restaurant-task-service/internal/entity"
	"github.com/St1cky1/restaurant-task-service/internal/infrastructure/client"
	"github.com/St1cky1/restaurant-task-service/internal/logging"
	"github.com/St1cky1/restaurant-task-service/internal/repository"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// AuditWorker сохраняет сообщения аудита из очереди в task_audit.
type AuditWorker struct {
	consumer  Consumer
	auditRepo repository.ITaskAuditRepository
}

func NewAuditWorker(consumer Consumer, auditRepo repository.ITaskAuditRepository) *AuditWorker {
	return &AuditWorker{
		consumer:  consumer,
		auditRepo: auditRepo,
	}
}

// Start блокируется до отмены ctx.
func (w *AuditWorker) Start(ctx context.Context) error {
	return consume(ctx, w.consumer, client.AuditQueue, "audit_worker", w.processMessage)
}

func (w *AuditWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	// 1. Парсим сообщение
	var auditMsg entity.AuditMessage
	if err := json.Unmarshal(msg.Body, &auditMsg); err != nil {
		logging.Logger.WithError(err).Error("Ошибка парсинга сообщения аудита")
		msg.Nack(false, false) // Не возвращаем в очередь
		return
	}

	// 2. Конвертируем в TaskAudit
	taskAudit, err := convertToTaskAudit(&auditMsg)
	if err != nil {
		logging.Logger.WithError(err).Error("Ошибка конвертации аудита")
		msg.Nack(false, false)
		return
	}

	log := logging.Logger.WithFields(logrus.Fields{"task_id": taskAudit.EntityID, "action": taskAudit.Action})

	// 3. Сохраняем в БД
	if err := w.auditRepo.Create(ctx, taskAudit); err != nil {
		log.WithError(err).Error("Ошибка сохранения аудита")
		msg.Nack(false, true) // Возвращаем в очередь для повторной обработки
		return
	}

	// 4. Подтверждаем обработку
	msg.Ack(false)
	log.Debug("Аудит сохранен")
}

func convertToTaskAudit(msg *entity.AuditMessage) (*entity.TaskAudit, error) {
	oldValues, err := marshalValues(msg.OldValues)
	if err != nil {
		return nil, err
	}
	newValues, err := marshalValues(msg.NewValues)
	if err != nil {
		return nil, err
	}
	changes, err := marshalValues(msg.Changes)
	if err != nil {
		return nil, err
	}

	return &entity.TaskAudit{
		UserID:     msg.UserID,
		Action:     msg.Action,
		EntityType: "task",
		EntityID:   msg.EntityID,
		OldValues:  oldValues,
		NewValues:  newValues,
		Changes:    changes,
		ChangesAt:  msg.Timestamp,
	}, nil
}

// marshalValues: nil-карта сохраняется как NULL.
func marshalValues(values map[string]any) (*string, error) {
	if values == nil {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

// PublishAuditMessage сохраняет аудит сразу, без очереди (notifier.mode=direct).
func (w *AuditWorker) PublishAuditMessage(ctx context.Context, message *entity.AuditMessage) error {
	taskAudit, err := convertToTaskAudit(message)
	if err != nil {
		return err
	}
	return w.auditRepo.Create(ctx, taskAudit)
}
