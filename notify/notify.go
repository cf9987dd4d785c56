/*
Package notify delivers workflow notifications to users.

PURPOSE:
  The leave service tells the faculty member who filed an application
  when it moves. Approvers find pending work in their inbox listing
  instead of a message. Delivery never blocks or fails a workflow step, so
  every notifier here is best effort and errors are only logged upstream.

NOTIFIERS:
  Inbox:  Persists a Notification row the user reads over the API
  Log:    Writes the message to the structured log
  Multi:  Fans one message out to several notifiers
  Async:  Bounded queue drained by a background worker

SEE ALSO:
  - leave/store.go: the Notifier interface the service calls
  - api/handlers.go: notification listing and mark-read endpoints
*/
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notification is one message stored in a user's inbox.
type Notification struct {
	ID        string
	UserID    string
	Title     string
	Body      string
	Read      bool
	CreatedAt time.Time
}

// Notifier delivers a message to a user.
type Notifier interface {
	Notify(ctx context.Context, userID, title, body string) error
}

// =============================================================================
// INBOX
// =============================================================================

// Store persists notifications.
type Store interface {
	SaveNotification(ctx context.Context, n Notification) error
}

// Inbox stores every message as an unread Notification.
type Inbox struct {
	Store Store
	Now   func() time.Time
}

func NewInbox(store Store) *Inbox {
	return &Inbox{Store: store, Now: time.Now}
}

func (i *Inbox) Notify(ctx context.Context, userID, title, body string) error {
	if userID == "" {
		return nil
	}
	return i.Store.SaveNotification(ctx, Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Body:      body,
		CreatedAt: i.Now().UTC(),
	})
}

// =============================================================================
// LOG
// =============================================================================

// Log writes messages to a zap logger.
type Log struct {
	Logger *zap.Logger
}

func (l Log) Notify(_ context.Context, userID, title, body string) error {
	l.Logger.Info("notification",
		zap.String("user_id", userID),
		zap.String("title", title),
		zap.String("body", body))
	return nil
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, userID, title, body string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, userID, title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
