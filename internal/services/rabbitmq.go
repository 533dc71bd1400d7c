package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// rabbitMQBroker keeps tasks in a durable queue. Deliveries are acked only
// after the worker has decided the task's outcome, so a crash mid-task leads
// to redelivery.
type rabbitMQBroker struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	publishMu sync.Mutex
}

func NewRabbitMQBroker(url, queue string, prefetch int) (Broker, error) {
	if queue == "" {
		return nil, fmt.Errorf("%w: rabbitmq queue name is required", ErrInvalidArgument)
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to set rabbitmq prefetch: %w", err)
		}
	}

	logrus.Infof("✅ Connected to RabbitMQ queue %s", queue)

	return &rabbitMQBroker{conn: conn, ch: ch, queue: queue}, nil
}

func (b *rabbitMQBroker) Publish(ctx context.Context, task Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}

	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	err = b.ch.PublishWithContext(ctx, "", b.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Type:         task.Name,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish task: %w", err)
	}

	return nil
}

func (b *rabbitMQBroker) Consume(ctx context.Context) (<-chan Delivery, error) {
	msgs, err := b.ch.ConsumeWithContext(ctx, b.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume queue %s: %w", b.queue, err)
	}

	out := make(chan Delivery)

	go func() {
		defer close(out)
		for msg := range msgs {
			var task Task
			if err := json.Unmarshal(msg.Body, &task); err != nil {
				logrus.WithError(err).Error("❌ Dropping undecodable task message")
				msg.Nack(false, false)
				continue
			}

			delivery := Delivery{
				Task: task,
				Ack:  func() error { return msg.Ack(false) },
				Nack: func(requeue bool) error { return msg.Nack(false, requeue) },
			}

			select {
			case out <- delivery:
			case <-ctx.Done():
				msg.Nack(false, true)
				return
			}
		}
	}()

	return out, nil
}

func (b *rabbitMQBroker) Close() error {
	if err := b.ch.Close(); err != nil {
		b.conn.Close()
		return fmt.Errorf("failed to close rabbitmq channel: %w", err)
	}

	return b.conn.Close()
}
