package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockChannel struct{ mock.Mock }

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return m.Called(ctx, exchange, key, mandatory, immediate, msg).Error(0)
}

type mockSender struct{ mock.Mock }

func (m *mockSender) SendEmail(ctx context.Context, to, subject, text string) error {
	return m.Called(ctx, to, subject, text).Error(0)
}

// ackRecorder implements amqp.Acknowledger.
type ackRecorder struct {
	acked, nacked, requeued bool
}

func (a *ackRecorder) Ack(uint64, bool) error { a.acked = true; return nil }
func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}
func (a *ackRecorder) Reject(_ uint64, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}

func TestPublisher_SendActivationEmail(t *testing.T) {
	ch := &mockChannel{}
	ch.On("PublishWithContext", mock.Anything, "", "activation_emails", false, false,
		mock.MatchedBy(func(p amqp.Publishing) bool {
			var job EmailJob
			if err := json.Unmarshal(p.Body, &job); err != nil {
				return false
			}
			return p.DeliveryMode == amqp.Persistent &&
				p.ContentType == "application/json" &&
				job.To == "a@x.com" &&
				job.Subject != "" &&
				len(job.Text) > 0
		})).Return(nil)

	p := &Publisher{ch: ch, queue: "activation_emails"}
	require.NoError(t, p.SendActivationEmail(context.Background(), "a@x.com", "http://l/v1/activate/a/b"))
	ch.AssertExpectations(t)
}

func TestPublisher_PropagatesError(t *testing.T) {
	ch := &mockChannel{}
	ch.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("channel closed"))

	p := &Publisher{ch: ch, queue: "q"}
	assert.Error(t, p.Publish(context.Background(), EmailJob{To: "a@x.com"}))
}

func delivery(t *testing.T, body any) (amqp.Delivery, *ackRecorder) {
	t.Helper()
	ack := &ackRecorder{}
	var b []byte
	switch v := body.(type) {
	case string:
		b = []byte(v)
	default:
		var err error
		b, err = json.Marshal(v)
		require.NoError(t, err)
	}
	return amqp.Delivery{Acknowledger: ack, Body: b}, ack
}

func newTestConsumer(s EmailSender) *Consumer {
	return NewConsumer(s, time.Second, 3, 0)
}

func TestConsumer_AcksOnSuccess(t *testing.T) {
	s := &mockSender{}
	s.On("SendEmail", mock.Anything, "a@x.com", "subj", "text").Return(nil)
	d, ack := delivery(t, EmailJob{To: "a@x.com", Subject: "subj", Text: "text"})
	ch := &mockChannel{}

	newTestConsumer(s).Handle(context.Background(), ch, "q", d)
	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
	ch.AssertNotCalled(t, "PublishWithContext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConsumer_RetriesWithAttemptCount(t *testing.T) {
	s := &mockSender{}
	s.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("mailgun down"))
	d, ack := delivery(t, EmailJob{To: "a@x.com"})
	ch := &mockChannel{}
	ch.On("PublishWithContext", mock.Anything, "", "q", false, false, mock.MatchedBy(func(p amqp.Publishing) bool {
		return p.Headers[attemptsHeader] == int32(1) && p.DeliveryMode == amqp.Persistent && string(p.Body) == string(d.Body)
	})).Return(nil)

	newTestConsumer(s).Handle(context.Background(), ch, "q", d)
	ch.AssertExpectations(t)
	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
}

func TestConsumer_GivesUpAfterMaxAttempts(t *testing.T) {
	s := &mockSender{}
	s.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("400 bad recipient"))
	d, ack := delivery(t, EmailJob{To: "bad@x.com"})
	d.Headers = amqp.Table{attemptsHeader: int32(2)}
	ch := &mockChannel{}

	newTestConsumer(s).Handle(context.Background(), ch, "q", d)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeued)
	assert.False(t, ack.acked)
	ch.AssertNotCalled(t, "PublishWithContext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConsumer_RequeuesWhenRepublishFails(t *testing.T) {
	s := &mockSender{}
	s.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("mailgun down"))
	d, ack := delivery(t, EmailJob{To: "a@x.com"})
	ch := &mockChannel{}
	ch.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("channel closed"))

	newTestConsumer(s).Handle(context.Background(), ch, "q", d)
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeued)
}

func TestConsumer_DropsMalformed(t *testing.T) {
	for _, body := range []any{"{not json", EmailJob{Subject: "no recipient"}} {
		s := &mockSender{}
		d, ack := delivery(t, body)

		newTestConsumer(s).Handle(context.Background(), &mockChannel{}, "q", d)
		assert.True(t, ack.nacked)
		assert.False(t, ack.requeued)
		s.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestConsumer_DelayDoublesUpToCap(t *testing.T) {
	c := NewConsumer(&mockSender{}, time.Second, 10, 2*time.Second)
	assert.Equal(t, 2*time.Second, c.delay(1))
	assert.Equal(t, 4*time.Second, c.delay(2))
	assert.Equal(t, 8*time.Second, c.delay(3))
	assert.Equal(t, maxBackoff, c.delay(9))
}

func TestDeliveryAttempts_HeaderTypes(t *testing.T) {
	assert.Equal(t, 0, deliveryAttempts(amqp.Delivery{}))
	assert.Equal(t, 2, deliveryAttempts(amqp.Delivery{Headers: amqp.Table{attemptsHeader: int32(2)}}))
	assert.Equal(t, 4, deliveryAttempts(amqp.Delivery{Headers: amqp.Table{attemptsHeader: int64(4)}}))
	assert.Equal(t, 0, deliveryAttempts(amqp.Delivery{Headers: amqp.Table{attemptsHeader: "3"}}))
}
