package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendly/attendly-backend-go/internal/domain/notification"
	"github.com/attendly/attendly-backend-go/internal/pkg/sse"
)

type fakeRepo struct {
	mu      sync.Mutex
	stored  []*notification.Notification
	batches int
	err     error
}

func (f *fakeRepo) CreateBatch(ctx context.Context, notifications []*notification.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches++
	for i, n := range notifications {
		n.ID = fmt.Sprintf("notif-%d-%d", f.batches, i)
		n.CreatedAt = time.Now()
		f.stored = append(f.stored, n)
	}
	return nil
}

func (f *fakeRepo) ListForRecipient(ctx context.Context, recipientID string, limit int) ([]notification.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []notification.Notification
	for _, n := range f.stored {
		if n.RecipientID == recipientID {
			list = append(list, *n)
		}
	}
	return list, nil
}

func (f *fakeRepo) storedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stored)
}

func newTestService(repo *fakeRepo, hub *sse.Hub, opts Options) *Service {
	return NewService(repo, hub, opts, slog.New(slog.DiscardHandler))
}

func TestSend_PersistsAndPublishes(t *testing.T) {
	repo := &fakeRepo{}
	hub := sse.NewHub()
	svc := newTestService(repo, hub, Options{Workers: 1, FlushInterval: 10 * time.Millisecond})
	svc.Start()
	defer svc.Stop()

	events, cleanup := hub.Subscribe("emp-1")
	defer cleanup()

	svc.SendRequestNotification(context.Background(), "emp-1", "req-1", notification.KindRequestApproved, "Annual leave approved")

	select {
	case ev := <-events:
		assert.Equal(t, "emp-1", ev.EmployeeID)
		assert.Equal(t, string(notification.KindRequestApproved), ev.Event)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}

	assert.Equal(t, 1, repo.storedCount())

	list, err := svc.ListForRecipient(context.Background(), "emp-1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Annual leave approved", list[0].Subject)
	require.NotNil(t, list[0].RequestID)
	assert.Equal(t, "req-1", *list[0].RequestID)
}

func TestSend_BatchesUpToLimit(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, sse.NewHub(), Options{Workers: 1, BatchSize: 3, FlushInterval: time.Hour})
	svc.Start()

	for i := 0; i < 3; i++ {
		svc.SendRequestNotification(context.Background(), "emp-1", "", notification.KindCheckedIn, "Checked in")
	}

	assert.Eventually(t, func() bool { return repo.storedCount() == 3 }, time.Second, 5*time.Millisecond)

	repo.mu.Lock()
	batches := repo.batches
	repo.mu.Unlock()
	assert.Equal(t, 1, batches)

	svc.Stop()
}

func TestStop_FlushesPendingQueue(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, sse.NewHub(), Options{Workers: 1, BatchSize: 100, FlushInterval: time.Hour})
	svc.Start()

	for i := 0; i < 5; i++ {
		svc.SendRequestNotification(context.Background(), "emp-1", "", notification.KindCheckedOut, "Checked out")
	}

	svc.Stop()
	assert.Equal(t, 5, repo.storedCount())
}

func TestSend_DropsWhenQueueSaturated(t *testing.T) {
	repo := &fakeRepo{}
	// Workers are never started so the queue cannot drain.
	svc := newTestService(repo, sse.NewHub(), Options{Workers: 1, QueueSize: 2})

	for i := 0; i < 5; i++ {
		svc.SendRequestNotification(context.Background(), "emp-1", "", notification.KindCheckedIn, "Checked in")
	}
	assert.Len(t, svc.queue, 2)
}

func TestSend_AfterStopIsIgnored(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, sse.NewHub(), Options{Workers: 1})
	svc.Start()
	svc.Stop()

	svc.SendRequestNotification(context.Background(), "emp-1", "", notification.KindCheckedIn, "Checked in")
	assert.Equal(t, 0, repo.storedCount())
}

func TestFlush_PublishesEvenWhenPersistenceFails(t *testing.T) {
	repo := &fakeRepo{err: fmt.Errorf("database unavailable")}
	hub := sse.NewHub()
	svc := newTestService(repo, hub, Options{Workers: 1, FlushInterval: 10 * time.Millisecond})
	svc.Start()
	defer svc.Stop()

	events, cleanup := hub.Subscribe("emp-1")
	defer cleanup()

	svc.SendRequestNotification(context.Background(), "emp-1", "", notification.KindRequestDenied, "Request denied")

	select {
	case ev := <-events:
		assert.Equal(t, string(notification.KindRequestDenied), ev.Event)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}
