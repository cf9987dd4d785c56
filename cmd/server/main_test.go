package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/prabandh/leave-engine/notify"
)

type recordingInbox struct {
	sent []string
}

func (r *recordingInbox) Notify(_ context.Context, userID, title, _ string) error {
	r.sent = append(r.sent, userID+":"+title)
	return nil
}

// slowServer queues a notification while it drains, like a request that
// completes during Shutdown.
type slowServer struct {
	during func()
	err    error
}

func (s *slowServer) Shutdown(context.Context) error {
	s.during()
	return s.err
}

// =============================================================================
// SHUTDOWN
// =============================================================================

func TestShutdown_NotifierDrainsAfterServerStops(t *testing.T) {
	// GIVEN: A running notifier and a server whose last request notifies
	//        the filer while Shutdown is draining
	// WHEN: shutdown runs
	// THEN: The notifier stops only afterwards and delivers that message
	inbox := &recordingInbox{}
	a := notify.NewAsync(inbox, 8, zaptest.NewLogger(t))
	notifyCtx, stopNotify := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(notifyCtx) }()

	server := &slowServer{during: func() {
		require.NoError(t, a.Notify(context.Background(), "f-101", "Leave approved", ""))
	}}

	require.NoError(t, shutdown(server, time.Second, stopNotify))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("notifier did not stop after shutdown")
	}
	assert.Equal(t, []string{"f-101:Leave approved"}, inbox.sent)
	assert.Zero(t, a.Pending())
}

func TestShutdown_StopsNotifierEvenWhenDrainFails(t *testing.T) {
	stopped := false
	server := &slowServer{during: func() {}, err: errors.New("deadline exceeded")}

	err := shutdown(server, time.Millisecond, func() { stopped = true })

	require.EqualError(t, err, "deadline exceeded")
	assert.True(t, stopped)
}
