// Package rabbitmq moves email jobs through a durable RabbitMQ queue.
// The API publishes with Publisher; cmd/mailer drains the queue with Consumer.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-api-accounts/internal/pkg/mailtext"
	amqp "github.com/rabbitmq/amqp091-go"
)

// EmailJob is the JSON payload put on the queue.
type EmailJob struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// Dial opens a connection and channel and declares the durable queue.
func Dial(url, queue string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("queue declare: %w", err)
	}
	return conn, ch, nil
}

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher implements the activation sender by enqueuing an EmailJob.
type Publisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    publishChannel
	queue string
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, ch, err := Dial(url, queue)
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if c, ok := p.ch.(*amqp.Channel); ok && c != nil {
		_ = c.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

func (p *Publisher) SendActivationEmail(ctx context.Context, to, link string) error {
	body, err := mailtext.Activation(link)
	if err != nil {
		return err
	}
	return p.Publish(ctx, EmailJob{To: to, Subject: mailtext.ActivationSubject, Text: body})
}

// Publish writes job to the queue as a persistent message.
func (p *Publisher) Publish(ctx context.Context, job EmailJob) error {
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         b,
		},
	)
}
