package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const notificationsQueue = "noblindezone.notifications"

// AMQP publishes every notification to a durable queue so downstream
// consumers (dashboards, SIEM forwarders) see the same stream the chat
// channel does. Documents are published by reference: the artifact path,
// not the bytes.
type AMQP struct {
	url  string
	mu   sync.Mutex
	conn *amqp.Connection
}

func NewAMQP(url string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp connect failed: %w", err)
	}
	return &AMQP{url: url, conn: conn}, nil
}

func (a *AMQP) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil && !a.conn.IsClosed() {
		_ = a.conn.Close()
	}
}

type queuedNotification struct {
	SentAt   string `json:"sent_at"`
	Text     string `json:"text,omitempty"`
	Document string `json:"document,omitempty"`
}

func (a *AMQP) SendMessage(ctx context.Context, text string) error {
	return a.publish(ctx, queuedNotification{
		SentAt: time.Now().UTC().Format(time.RFC3339Nano),
		Text:   text,
	})
}

func (a *AMQP) SendDocument(ctx context.Context, path string) error {
	return a.publish(ctx, queuedNotification{
		SentAt:   time.Now().UTC().Format(time.RFC3339Nano),
		Document: path,
	})
}

func (a *AMQP) publish(ctx context.Context, n queuedNotification) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil || a.conn.IsClosed() {
		conn, err := amqp.Dial(a.url)
		if err != nil {
			return fmt.Errorf("amqp reconnect failed: %w", err)
		}
		a.conn = conn
	}

	ch, err := a.conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel error: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(notificationsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("amqp declare queue %s: %w", notificationsQueue, err)
	}

	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, "", notificationsQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}
