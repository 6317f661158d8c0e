package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/events"
	"github.com/spec-kit/ticket-desk/internal/service"
)

// ErrQueueFull is returned by Publish when the buffer has no room.
var ErrQueueFull = errors.New("notification queue full")

// ErrStopped is returned by Publish after Stop.
var ErrStopped = errors.New("notification worker stopped")

// NotificationWorker moves event delivery off the request path. It wraps a
// synchronous dispatcher and feeds it from a buffered queue.
type NotificationWorker struct {
	inner  events.Dispatcher
	logger *zap.Logger
	queue  chan events.Event

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

var _ events.Dispatcher = (*NotificationWorker)(nil)

// NewNotificationWorker wraps inner with a queue of the given size.
func NewNotificationWorker(inner events.Dispatcher, buffer int, logger *zap.Logger) *NotificationWorker {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{
		inner:  inner,
		logger: logger,
		queue:  make(chan events.Event, buffer),
	}
}

// StartNotificationWorker registers notification handlers and starts delivery.
func StartNotificationWorker(w *NotificationWorker, notificationService *service.NotificationService) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	w.Start()
}

// Start launches the delivery goroutine.
func (w *NotificationWorker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for event := range w.queue {
			if err := w.inner.Publish(context.Background(), event); err != nil {
				w.logger.Warn("notification delivery failed",
					zap.String("event_type", string(event.Type)),
					zap.String("subject_id", event.SubjectID),
					zap.Error(err))
			}
		}
	}()
}

// Publish enqueues the event without blocking.
func (w *NotificationWorker) Publish(_ context.Context, event events.Event) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return ErrStopped
	}
	select {
	case w.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe registers a handler on the wrapped dispatcher.
func (w *NotificationWorker) Subscribe(eventType events.EventType, handler events.EventHandler) {
	w.inner.Subscribe(eventType, handler)
}

// Stop refuses new events, delivers what is queued, and waits.
func (w *NotificationWorker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.queue)
	w.mu.Unlock()
	w.wg.Wait()
}
