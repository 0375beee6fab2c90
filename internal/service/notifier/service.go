package notifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/attendly/attendly-backend-go/internal/domain/notification"
	"github.com/attendly/attendly-backend-go/internal/pkg/sse"
)

// Options size the dispatcher. Zero values fall back to defaults.
type Options struct {
	Workers       int
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
}

func (o *Options) defaults() {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 20
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 2 * time.Second
	}
}

// Service is the asynchronous notification dispatcher. Producers hand
// over notifications without blocking; workers persist them in batches
// and push them to live SSE subscribers. It implements
// notification.Sender.
type Service struct {
	repo notification.Repository
	hub  *sse.Hub
	opts Options
	log  *slog.Logger

	queue  chan *notification.Notification
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewService(repo notification.Repository, hub *sse.Hub, opts Options, log *slog.Logger) *Service {
	opts.defaults()
	return &Service{
		repo:  repo,
		hub:   hub,
		opts:  opts,
		log:   log,
		queue: make(chan *notification.Notification, opts.QueueSize),
	}
}

// Start launches the dispatch workers.
func (s *Service) Start() {
	for i := 0; i < s.opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.log.Info("notification dispatcher started",
		"workers", s.opts.Workers,
		"queue_size", s.opts.QueueSize,
	)
}

// Stop drains the queue and waits for workers to flush.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("notification dispatcher stopped")
}

// SendRequestNotification enqueues without blocking. A saturated queue
// drops the notification; attendance and leave writes must never stall
// on delivery.
func (s *Service) SendRequestNotification(ctx context.Context, recipientID, requestID string, kind notification.Kind, subject string) {
	n := &notification.Notification{
		RecipientID: recipientID,
		Kind:        kind,
		Subject:     subject,
	}
	if requestID != "" {
		n.RequestID = &requestID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.log.Warn("notification dropped, dispatcher stopped", "recipient_id", recipientID)
		return
	}

	select {
	case s.queue <- n:
	default:
		s.log.Warn("notification dropped, queue saturated",
			"recipient_id", recipientID,
			"kind", kind,
		)
	}
}

// ListForRecipient exposes the stored feed for the presentation layer.
func (s *Service) ListForRecipient(ctx context.Context, recipientID string, limit int) ([]notification.Notification, error) {
	return s.repo.ListForRecipient(ctx, recipientID, limit)
}

func (s *Service) worker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]*notification.Notification, 0, s.opts.BatchSize)
	for {
		select {
		case n, ok := <-s.queue:
			if !ok {
				s.flush(batch)
				return
			}
			batch = append(batch, n)
			if len(batch) >= s.opts.BatchSize {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			s.flush(batch)
			batch = batch[:0]
		}
	}
}

// flush persists the batch, then pushes each notification to any live
// SSE subscriber. Persistence failures only cost the feed entry; the
// push still goes out.
func (s *Service) flush(batch []*notification.Notification) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		s.log.Error("failed to persist notification batch",
			"count", len(batch),
			"error", err,
		)
	}

	for _, n := range batch {
		s.hub.Publish(n.RecipientID, sse.Event{
			EmployeeID: n.RecipientID,
			Event:      string(n.Kind),
			Data: map[string]interface{}{
				"id":         n.ID,
				"request_id": n.RequestID,
				"subject":    n.Subject,
				"created_at": n.CreatedAt,
			},
		})
	}
}
