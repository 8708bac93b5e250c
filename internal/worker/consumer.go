package worker

import (
	"context"

	"github.com/St1cky1/restaurant-task-service/internal/logging"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer - источник сообщений очереди, реализуется client.RabbitMQClient.
type Consumer interface {
	Consume(ctx context.Context, queue, tag string) (<-chan amqp.Delivery, func() error, error)
}

// consume читает очередь до отмены ctx или закрытия канала.
func consume(ctx context.Context, c Consumer, queue, tag string, handle func(context.Context, amqp.Delivery)) error {
	msgs, closeChannel, err := c.Consume(ctx, queue, tag)
	if err != nil {
		return err
	}
	defer closeChannel()

	log := logging.Logger.WithField("queue", queue)
	log.Infof("%s запущен. Ожидаем сообщения...", tag)

	for {
		select {
		case <-ctx.Done():
			log.Infof("%s остановлен", tag)
			return nil
		case msg, ok := <-msgs:
			if !ok {
				log.Warn("Канал сообщений закрыт")
				return nil
			}
			handle(ctx, msg)
		}
	}
}
