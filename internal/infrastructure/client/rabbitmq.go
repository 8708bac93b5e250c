package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/St1cky1/restaurant-task-service/internal/entity"
	"github.com/St1cky1/restaurant-task-service/internal/logging"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	AuditQueue        = "task_audit_logs"
	NotificationQueue = "task_notifications"
)

// RabbitMQClient публикует аудит и уведомления. Канал amqp не потокобезопасен
// для публикации, поэтому публикации идут под мьютексом.
type RabbitMQClient struct {
	conn    *amqp.Connection
	mu      sync.Mutex
	channel *amqp.Channel
}

func NewRabbitMQClient(url string) (*RabbitMQClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	for _, name := range []string{AuditQueue, NotificationQueue} {
		if err := declareQueue(channel, name); err != nil {
			conn.Close()
			return nil, err
		}
	}

	logging.Logger.Info("Подключение к RabbitMQ установлено")
	return &RabbitMQClient{conn: conn, channel: channel}, nil
}

func declareQueue(channel *amqp.Channel, name string) error {
	_, err := channel.QueueDeclare(
		name,  // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

func (c *RabbitMQClient) publish(ctx context.Context, queue, messageID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    messageID,
			Body:         body,
			DeliveryMode: amqp.Persistent, // Сообщения сохраняются на диск
		},
	)
}

func (c *RabbitMQClient) PublishAuditMessage(ctx context.Context, message *entity.AuditMessage) error {
	if err := c.publish(ctx, AuditQueue, "", message); err != nil {
		return err
	}
	logging.Logger.WithFields(logrus.Fields{
		"action":  message.Action,
		"task_id": message.EntityID,
	}).Debug("Аудит отправлен в RabbitMQ")
	return nil
}

// Notify ставит уведомление в очередь, доставкой в telegram занимается NotificationWorker.
func (c *RabbitMQClient) Notify(ctx context.Context, n *entity.Notification) error {
	return c.publish(ctx, NotificationQueue, n.ID, n)
}

// Consume открывает отдельный канал под consumer'а, по одному неподтверждённому сообщению.
func (c *RabbitMQClient) Consume(ctx context.Context, queue, tag string) (<-chan amqp.Delivery, func() error, error) {
	channel, err := c.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("open consumer channel: %w", err)
	}
	if err := declareQueue(channel, queue); err != nil {
		channel.Close()
		return nil, nil, err
	}
	if err := channel.Qos(1, 0, false); err != nil {
		channel.Close()
		return nil, nil, fmt.Errorf("set qos: %w", err)
	}

	msgs, err := channel.ConsumeWithContext(
		ctx,
		queue, // queue
		tag,   // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		channel.Close()
		return nil, nil, fmt.Errorf("consume %s: %w", queue, err)
	}
	return msgs, channel.Close, nil
}

func (c *RabbitMQClient) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
