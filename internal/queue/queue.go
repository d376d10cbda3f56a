package queue

import (
	"errors"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"ggnhomes/server/internal/metrics"
	"ggnhomes/server/internal/models"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// EventQueue is a bounded in-memory queue of engagement events drained by a
// fixed set of workers.
type EventQueue struct {
	items    chan models.EngagementEvent
	maxSize  int
	closed   bool
	started  bool
	mu       sync.RWMutex
	wg       sync.WaitGroup
	logger   *logrus.Logger
	handlers []func(models.EngagementEvent) error
}

// NewEventQueue creates a queue holding at most bufferSize pending events
func NewEventQueue(bufferSize int, logger *logrus.Logger) *EventQueue {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &EventQueue{
		items:    make(chan models.EngagementEvent, bufferSize),
		maxSize:  bufferSize,
		logger:   logger,
		handlers: make([]func(models.EngagementEvent) error, 0),
	}
}

// Push adds an event without blocking
func (q *EventQueue) Push(event models.EngagementEvent) error {
	// Held for the send so Close cannot close the channel underneath it
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- event:
		metrics.EngagementQueueDepth.Set(float64(len(q.items)))
		q.logger.WithFields(logrus.Fields{
			"kind":        event.Kind,
			"property_id": event.PropertyID,
		}).Debug("Pushed event to queue")
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe adds a handler function that will be called for each event
func (q *EventQueue) Subscribe(handler func(models.EngagementEvent) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// Start launches the workers. Calling it again has no effect.
func (q *EventQueue) Start(workers int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true

	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.process()
	}
}

// process drains the queue until it is closed and empty
func (q *EventQueue) process() {
	defer q.wg.Done()
	for event := range q.items {
		metrics.EngagementQueueDepth.Set(float64(len(q.items)))
		q.dispatch(event)
	}
}

// dispatch sends the event to all subscribed handlers
func (q *EventQueue) dispatch(event models.EngagementEvent) {
	q.mu.RLock()
	handlers := q.handlers
	q.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			q.logger.WithError(err).WithFields(logrus.Fields{
				"kind":        event.Kind,
				"property_id": event.PropertyID,
			}).Error("Handler failed to process event")
		}
	}
}

// Close rejects new events and waits for the workers to drain what is queued
func (q *EventQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.items)
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}

// Len returns the current number of pending events
func (q *EventQueue) Len() int {
	return len(q.items)
}

// IsClosed returns whether the queue has been closed
func (q *EventQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
