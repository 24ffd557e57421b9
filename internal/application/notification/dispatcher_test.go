package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []string
	err   error
	block chan struct{}
}

func (r *recordingSender) SendActivationEmail(ctx context.Context, to, link string) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, to+" "+link)
	return r.err
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestDispatcher_DeliversAndDrainsOnClose(t *testing.T) {
	s := &recordingSender{}
	d := NewDispatcher(s, 2, 10, time.Second)
	d.Start(context.Background())

	for i := 0; i < 5; i++ {
		require.True(t, d.Enqueue(ActivationEmail{UserID: "u", To: "a@x.com", Link: "l"}))
	}
	d.Close()
	assert.Equal(t, 5, s.count())
}

func TestDispatcher_FullQueueDoesNotBlock(t *testing.T) {
	s := &recordingSender{block: make(chan struct{})}
	d := NewDispatcher(s, 1, 1, time.Second)

	// Not started: the single buffer slot fills and the next call must drop.
	assert.True(t, d.Enqueue(ActivationEmail{To: "a@x.com"}))

	done := make(chan bool)
	go func() { done <- d.Enqueue(ActivationEmail{To: "b@x.com"}) }()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}

	close(s.block)
	d.Start(context.Background())
	d.Close()
	assert.Equal(t, 1, s.count())
}

func TestDispatcher_EnqueueAfterClose(t *testing.T) {
	d := NewDispatcher(&recordingSender{}, 1, 1, time.Second)
	d.Start(context.Background())
	d.Close()
	assert.False(t, d.Enqueue(ActivationEmail{To: "a@x.com"}))
	d.Close()
}

func TestDispatcher_DeliveryErrorIsAbsorbed(t *testing.T) {
	s := &recordingSender{err: errors.New("smtp down")}
	d := NewDispatcher(s, 1, 4, time.Second)
	d.Start(context.Background())
	require.True(t, d.Enqueue(ActivationEmail{To: "a@x.com"}))
	require.True(t, d.Enqueue(ActivationEmail{To: "b@x.com"}))
	d.Close()
	assert.Equal(t, 2, s.count())
}

func TestDispatcher_TimeoutBoundsDelivery(t *testing.T) {
	s := &recordingSender{block: make(chan struct{})}
	d := NewDispatcher(s, 1, 1, 20*time.Millisecond)
	d.Start(context.Background())
	require.True(t, d.Enqueue(ActivationEmail{To: "a@x.com"}))

	finished := make(chan struct{})
	go func() { d.Close(); close(finished) }()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery was not bounded by the timeout")
	}
	assert.Equal(t, 0, s.count())
}
