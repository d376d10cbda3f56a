package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"ggnhomes/server/config"
	"ggnhomes/server/internal/engagement"
	"ggnhomes/server/internal/models"
	"ggnhomes/server/internal/queue"
)

// Applier writes one engagement event to the store
type Applier interface {
	Apply(ctx context.Context, event models.EngagementEvent) error
}

// EventProcessor drains the engagement queue into the store, retrying
// failed writes.
type EventProcessor struct {
	applier Applier
	logger  *logrus.Logger
	config  *config.Config
	queue   *queue.EventQueue
	ctx     context.Context
	cancel  context.CancelFunc
	now     func() time.Time
}

// NewEventProcessor creates a processor draining the given queue
func NewEventProcessor(applier Applier, q *queue.EventQueue, cfg *config.Config, logger *logrus.Logger) *EventProcessor {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EventProcessor{
		applier: applier,
		queue:   q,
		config:  cfg,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
	}
}

// Start subscribes to the queue and launches the workers
func (p *EventProcessor) Start() {
	p.queue.Subscribe(p.processEvent)
	p.queue.Start(p.config.Engagement.ProcessorCount)
}

// Stop drains the queue and waits for the workers
func (p *EventProcessor) Stop() {
	p.queue.Close()
	p.cancel()
}

// Dispatch enqueues an event without waiting for the write. Invalid events
// are rejected up front. When the queue is full or closed the event is
// applied inline.
func (p *EventProcessor) Dispatch(ctx context.Context, event models.EngagementEvent) error {
	if err := validate(event); err != nil {
		return err
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = p.now()
	}

	err := p.queue.Push(event)
	if err == nil {
		return nil
	}

	p.logger.WithError(err).WithFields(logrus.Fields{
		"kind":        event.Kind,
		"property_id": event.PropertyID,
	}).Warn("Queue rejected event, applying inline")
	return p.applier.Apply(ctx, event)
}

func validate(event models.EngagementEvent) error {
	switch event.Kind {
	case models.EventView, models.EventEngagement:
	default:
		return fmt.Errorf("%w: %q", engagement.ErrUnknownEvent, event.Kind)
	}
	if event.PropertyID <= 0 {
		return fmt.Errorf("%w: property id must be positive", engagement.ErrValidation)
	}
	if event.Seconds < 0 {
		return fmt.Errorf("%w: engagement seconds must not be negative, got %d", engagement.ErrValidation, event.Seconds)
	}
	return nil
}

// processEvent applies a single event, retrying on failure
func (p *EventProcessor) processEvent(event models.EngagementEvent) error {
	maxRetries := p.config.Engagement.MaxRetries

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			p.logger.WithFields(logrus.Fields{
				"kind":        event.Kind,
				"property_id": event.PropertyID,
				"attempt":     attempt,
				"max_retries": maxRetries,
			}).Info("Retrying engagement event")

			select {
			case <-p.ctx.Done():
				return fmt.Errorf("processor stopped: %w", err)
			case <-time.After(p.config.Engagement.RetryDelay):
			}
		}

		err = p.applier.Apply(p.ctx, event)
		if err == nil {
			return nil
		}
		if permanent(err) {
			return err
		}
	}

	return fmt.Errorf("failed to process event after %d attempts: %w", maxRetries+1, err)
}

// permanent reports errors that no retry can fix
func permanent(err error) bool {
	return errors.Is(err, engagement.ErrValidation) || errors.Is(err, engagement.ErrUnknownEvent)
}
