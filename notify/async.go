package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by Async.Notify when the queue has no room.
var ErrQueueFull = errors.New("notification queue full")

type message struct {
	userID, title, body string
}

// Async queues messages for a background worker so callers never wait on
// delivery. Messages arriving while the queue is full are dropped.
type Async struct {
	next    Notifier
	queue   chan message
	logger  *zap.Logger
	timeout time.Duration
}

// NewAsync wraps next with a queue of the given size.
func NewAsync(next Notifier, size int, logger *zap.Logger) *Async {
	if size <= 0 {
		size = 128
	}
	return &Async{
		next:    next,
		queue:   make(chan message, size),
		logger:  logger.Named("notify"),
		timeout: 5 * time.Second,
	}
}

func (a *Async) Notify(_ context.Context, userID, title, body string) error {
	select {
	case a.queue <- message{userID: userID, title: title, body: body}:
		return nil
	default:
		a.logger.Warn("notification queue full", zap.String("user_id", userID), zap.String("title", title))
		return ErrQueueFull
	}
}

// Run delivers queued messages until ctx is cancelled, then flushes what is
// already queued.
func (a *Async) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			a.drain()
			return nil
		case m := <-a.queue:
			a.deliver(context.Background(), m)
		}
	}
}

func (a *Async) drain() {
	for {
		select {
		case m := <-a.queue:
			a.deliver(context.Background(), m)
		default:
			return
		}
	}
}

func (a *Async) deliver(parent context.Context, m message) {
	ctx, cancel := context.WithTimeout(parent, a.timeout)
	defer cancel()
	if err := a.next.Notify(ctx, m.userID, m.title, m.body); err != nil {
		a.logger.Warn("notification delivery failed", zap.String("user_id", m.userID), zap.Error(err))
	}
}

// Pending is the number of queued messages.
func (a *Async) Pending() int { return len(a.queue) }
