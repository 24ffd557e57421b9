package rabbitmq

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// attemptsHeader counts failed deliveries of a job.
const attemptsHeader = "x-delivery-attempts"

const maxBackoff = time.Minute

// EmailSender delivers one rendered email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, text string) error
}

// Consumer delivers queued jobs. A job is acked after delivery and dropped
// when it cannot be decoded. A failed job is republished with its attempt
// count after a growing delay; once maxAttempts is reached it is rejected
// without requeue, which dead-letters it when the queue has a DLX policy.
type Consumer struct {
	sender      EmailSender
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
}

func NewConsumer(sender EmailSender, timeout time.Duration, maxAttempts int, backoff time.Duration) *Consumer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if backoff < 0 {
		backoff = 0
	}
	return &Consumer{sender: sender, timeout: timeout, maxAttempts: maxAttempts, backoff: backoff}
}

// Run consumes queue on ch until ctx is cancelled or the delivery channel closes.
func (c *Consumer) Run(ctx context.Context, ch *amqp.Channel, queue string, prefetch int) error {
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return err
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	slog.Info("email consumer listening", "queue", queue, "max_attempts", c.maxAttempts)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			c.Handle(ctx, ch, queue, d)
		}
	}
}

// Handle processes one delivery. Retries are republished to queue on pub.
func (c *Consumer) Handle(ctx context.Context, pub publishChannel, queue string, d amqp.Delivery) {
	var job EmailJob
	if err := json.Unmarshal(d.Body, &job); err != nil || job.To == "" {
		slog.Warn("dropping malformed email job", "err", err)
		_ = d.Nack(false, false)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err := c.sender.SendEmail(sendCtx, job.To, job.Subject, job.Text)
	cancel()
	if err == nil {
		_ = d.Ack(false)
		return
	}

	attempts := deliveryAttempts(d) + 1
	if attempts >= c.maxAttempts {
		slog.Error("email delivery failed, giving up", "to", job.To, "attempts", attempts, "err", err)
		_ = d.Nack(false, false)
		return
	}
	slog.Warn("email delivery failed, retrying", "to", job.To, "attempts", attempts, "err", err)

	select {
	case <-ctx.Done():
		_ = d.Nack(false, true)
		return
	case <-time.After(c.delay(attempts)):
	}

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[attemptsHeader] = int32(attempts)
	if err := pub.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Timestamp:    time.Now(),
		Body:         d.Body,
	}); err != nil {
		slog.Error("email retry republish failed, requeueing", "to", job.To, "err", err)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// delay doubles the base backoff per attempt, capped at maxBackoff.
func (c *Consumer) delay(attempts int) time.Duration {
	d := c.backoff
	for i := 1; i < attempts && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

func deliveryAttempts(d amqp.Delivery) int {
	switch v := d.Headers[attemptsHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	case int8:
		return int(v)
	default:
		return 0
	}
}
