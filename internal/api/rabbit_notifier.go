package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"kitchenline/server/internal/models"
)

// RabbitNotifier публикует уведомления в fanout exchange для внешнего коллаборатора звука/тостов
type RabbitNotifier struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	timeout  time.Duration

	acks <-chan amqp.Confirmation
	mu   sync.Mutex // publisher confirms требуют последовательной публикации
}

// NewRabbitNotifier подключается к брокеру и объявляет exchange
func NewRabbitNotifier(url, exchange string) (*RabbitNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}

	log.Printf("✅ RabbitMQ подключен, уведомления в exchange %s", exchange)
	return &RabbitNotifier{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		timeout:  5 * time.Second,
		acks:     ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

// Notify публикует уведомление и ждет подтверждения брокера
func (r *RabbitNotifier) Notify(ctx context.Context, n models.Notification) error {
	if r.conn == nil || r.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.ch.PublishWithContext(ctx, r.exchange, n.Kind, false, false, amqp.Publishing{
		DeliveryMode: amqp.Transient,
		ContentType:  "application/json",
		MessageId:    n.ID,
		Timestamp:    n.Timestamp,
		Headers:      amqp.Table{"audio": n.Audio, "severity": string(n.Severity)},
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", n.Kind, err)
	}

	select {
	case conf := <-r.acks:
		if conf.Ack {
			return nil
		}
		return errors.New("publish NACK from broker")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close закрывает канал и соединение
func (r *RabbitNotifier) Close() {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
}
