// Package notification delivers activation emails off the request path.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-api-accounts/internal/domain"
)

// ActivationEmail is one queued activation message.
type ActivationEmail struct {
	UserID string `json:"user_id"`
	To     string `json:"to"`
	Link   string `json:"link"`
}

// Sender performs the actual delivery (SMTP, Mailgun, a broker, ...).
type Sender interface {
	SendActivationEmail(ctx context.Context, to, link string) error
}

// Dispatcher fans queued messages out to a fixed pool of workers.
// Enqueue never blocks: a full queue drops the message and reports false.
type Dispatcher struct {
	sender  Sender
	queue   chan ActivationEmail
	workers int
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	start  sync.Once
}

func NewDispatcher(sender Sender, workers, queueSize int, timeout time.Duration) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Dispatcher{
		sender:  sender,
		queue:   make(chan ActivationEmail, queueSize),
		workers: workers,
		timeout: timeout,
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (d *Dispatcher) Start(ctx context.Context) {
	d.start.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				for msg := range d.queue {
					d.deliver(ctx, msg)
				}
			}()
		}
	})
}

// Enqueue hands msg to the workers without waiting.
func (d *Dispatcher) Enqueue(msg ActivationEmail) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- msg:
		return true
	default:
		slog.Warn("activation email queue full, message dropped", "user_id", msg.UserID)
		return false
	}
}

// Close stops accepting messages and waits for queued ones to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, msg ActivationEmail) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.sender.SendActivationEmail(ctx, msg.To, msg.Link); err != nil {
		slog.Error("activation email delivery failed",
			"user_id", msg.UserID,
			"err", fmt.Errorf("%w: %v", domain.ErrDelivery, err))
		return
	}
	slog.Debug("activation email delivered", "user_id", msg.UserID)
}

// LogSender writes the activation link to the log instead of sending mail.
// Used with NOTIFY_DRIVER=log during local development.
type LogSender struct{}

func (LogSender) SendActivationEmail(ctx context.Context, to, link string) error {
	slog.InfoContext(ctx, "activation email", "to", to, "link", link)
	return nil
}
