package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ggnhomes/server/config"
	"ggnhomes/server/internal/database"
	"ggnhomes/server/internal/engagement"
	"ggnhomes/server/internal/models"
	"ggnhomes/server/internal/queue"
)

// MockApplier is a mock implementation of Applier
type MockApplier struct {
	mock.Mock
}

func (m *MockApplier) Apply(ctx context.Context, event models.EngagementEvent) error {
	args := m.Called(event.Kind, event.PropertyID)
	return args.Error(0)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Engagement.ProcessorCount = 2
	cfg.Engagement.MaxRetries = 3
	cfg.Engagement.RetryDelay = time.Millisecond
	return cfg
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestNewEventProcessor(t *testing.T) {
	applier := &MockApplier{}
	q := queue.NewEventQueue(10, nil)
	cfg := testConfig()
	logger := quietLogger()

	p := NewEventProcessor(applier, q, cfg, logger)

	assert.NotNil(t, p)
	assert.Equal(t, applier, p.applier)
	assert.Equal(t, q, p.queue)
	assert.Equal(t, cfg, p.config)
	assert.Equal(t, logger, p.logger)
}

func TestEventProcessor_ProcessEvent(t *testing.T) {
	applier := &MockApplier{}
	p := NewEventProcessor(applier, queue.NewEventQueue(10, nil), testConfig(), quietLogger())

	// Succeeds on the first attempt
	applier.On("Apply", models.EventView, int64(1)).Return(nil).Once()
	assert.NoError(t, p.processEvent(models.EngagementEvent{Kind: models.EventView, PropertyID: 1}))

	// Transient failures are retried until the limit
	applier.On("Apply", models.EventView, int64(2)).Return(errors.New("db locked")).Times(4)
	err := p.processEvent(models.EngagementEvent{Kind: models.EventView, PropertyID: 2})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to process event after 4 attempts")

	// Validation failures are not retried
	applier.On("Apply", models.EventEngagement, int64(3)).Return(engagement.ErrValidation).Once()
	err = p.processEvent(models.EngagementEvent{Kind: models.EventEngagement, PropertyID: 3})
	assert.ErrorIs(t, err, engagement.ErrValidation)

	applier.AssertExpectations(t)
}

func TestEventProcessor_RecoversAfterRetry(t *testing.T) {
	applier := &MockApplier{}
	p := NewEventProcessor(applier, queue.NewEventQueue(10, nil), testConfig(), quietLogger())

	applier.On("Apply", models.EventView, int64(5)).Return(errors.New("busy")).Twice()
	applier.On("Apply", models.EventView, int64(5)).Return(nil).Once()

	assert.NoError(t, p.processEvent(models.EngagementEvent{Kind: models.EventView, PropertyID: 5}))
	applier.AssertNumberOfCalls(t, "Apply", 3)
}

func TestEventProcessor_DispatchValidation(t *testing.T) {
	applier := &MockApplier{}
	p := NewEventProcessor(applier, queue.NewEventQueue(10, nil), testConfig(), quietLogger())

	err := p.Dispatch(context.Background(), models.EngagementEvent{Kind: "click", PropertyID: 1})
	assert.ErrorIs(t, err, engagement.ErrUnknownEvent)

	err = p.Dispatch(context.Background(), models.EngagementEvent{Kind: models.EventEngagement, PropertyID: 1, Seconds: -3})
	assert.ErrorIs(t, err, engagement.ErrValidation)

	err = p.Dispatch(context.Background(), models.EngagementEvent{Kind: models.EventView})
	assert.ErrorIs(t, err, engagement.ErrValidation)

	applier.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
}

func TestEventProcessor_DispatchInlineWhenClosed(t *testing.T) {
	applier := &MockApplier{}
	q := queue.NewEventQueue(10, nil)
	p := NewEventProcessor(applier, q, testConfig(), quietLogger())
	require.NoError(t, q.Close())

	applier.On("Apply", models.EventView, int64(9)).Return(nil).Once()
	assert.NoError(t, p.Dispatch(context.Background(), models.EngagementEvent{Kind: models.EventView, PropertyID: 9}))
	applier.AssertExpectations(t)
}

type countingApplier struct {
	mu     sync.Mutex
	events []models.EngagementEvent
}

func (c *countingApplier) Apply(_ context.Context, event models.EngagementEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func TestEventProcessor_StartStop(t *testing.T) {
	applier := &countingApplier{}
	q := queue.NewEventQueue(100, nil)
	p := NewEventProcessor(applier, q, testConfig(), quietLogger())

	p.Start()
	for i := 1; i <= 25; i++ {
		require.NoError(t, p.Dispatch(context.Background(), models.EngagementEvent{Kind: models.EventView, PropertyID: int64(i)}))
	}
	p.Stop()

	assert.True(t, q.IsClosed())
	applier.mu.Lock()
	defer applier.mu.Unlock()
	// Each event is applied exactly once
	assert.Len(t, applier.events, 25)
	for _, e := range applier.events {
		assert.False(t, e.ReceivedAt.IsZero())
	}
}

func TestEventProcessingIntegration(t *testing.T) {
	db, err := database.NewTestDB()
	require.NoError(t, err)

	tracker := engagement.NewTracker(db, time.Second, quietLogger())
	q := queue.NewEventQueue(200, quietLogger())
	p := NewEventProcessor(tracker, q, testConfig(), quietLogger())
	p.Start()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Dispatch(context.Background(), models.EngagementEvent{Kind: models.EventView, PropertyID: 42})
		}()
	}
	wg.Wait()
	require.NoError(t, p.Dispatch(context.Background(), models.EngagementEvent{Kind: models.EventEngagement, PropertyID: 42, Seconds: 30}))
	p.Stop()

	m, err := tracker.GetMetrics(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(40), m.TotalViews)
	assert.Equal(t, int64(30), m.TotalEngagementSeconds)
}
