package engagement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"ggnhomes/server/internal/database"
	"ggnhomes/server/internal/models"
)

func setupTracker(t *testing.T) (*Tracker, *gorm.DB) {
	t.Helper()
	db, err := database.NewTestDB()
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewTracker(db, 5*time.Second, logger), db
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestAddView_CreatesAggregateLazily(t *testing.T) {
	tracker, db := setupTracker(t)
	ctx := context.Background()

	assert.Equal(t, int64(0), countRows(t, db, &models.EngagementAggregate{}))

	require.NoError(t, tracker.AddView(ctx, 7))
	require.NoError(t, tracker.AddView(ctx, 7))

	m, err := tracker.GetMetrics(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.TotalViews)
	assert.Equal(t, int64(1), countRows(t, db, &models.EngagementAggregate{}))
}

func TestAddView_ConcurrentWritersLoseNothing(t *testing.T) {
	tracker, _ := setupTracker(t)
	ctx := context.Background()

	const writers = 50
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- tracker.AddView(ctx, 11)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	m, err := tracker.GetMetrics(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, int64(writers), m.TotalViews)
}

func TestAddEngagementTime(t *testing.T) {
	tracker, db := setupTracker(t)
	ctx := context.Background()

	// Zero seconds is accepted without touching the store
	require.NoError(t, tracker.AddEngagementTime(ctx, 3, 0))
	assert.Equal(t, int64(0), countRows(t, db, &models.EngagementAggregate{}))

	require.NoError(t, tracker.AddEngagementTime(ctx, 3, 45))
	require.NoError(t, tracker.AddEngagementTime(ctx, 3, 0))
	require.NoError(t, tracker.AddEngagementTime(ctx, 3, 15))

	err := tracker.AddEngagementTime(ctx, 3, -1)
	assert.ErrorIs(t, err, ErrValidation)

	m, err := tracker.GetMetrics(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(60), m.TotalEngagementSeconds)
}

func TestAddRating(t *testing.T) {
	tracker, _ := setupTracker(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		value   int
		wantErr bool
	}{
		{"Lowest", 1, false},
		{"Highest", 5, false},
		{"Too high", 6, true},
		{"Zero", 0, true},
		{"Negative", -2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tracker.AddRating(ctx, 5, tt.value, "nice", "u1")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	m, err := tracker.GetMetrics(ctx, 5)
	require.NoError(t, err)
	// Only the two valid ratings were stored; duplicates per user are kept
	require.Len(t, m.Ratings, 2)
	assert.Equal(t, "u1", m.Ratings[0].UserID)
	assert.Equal(t, "u1", m.Ratings[1].UserID)
	assert.Equal(t, 3.0, m.AverageRating)
}

func TestAddRating_RejectedValueLeavesCountUnchanged(t *testing.T) {
	tracker, _ := setupTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.AddRating(ctx, 8, 4, "", ""))
	before, err := tracker.GetMetrics(ctx, 8)
	require.NoError(t, err)

	assert.ErrorIs(t, tracker.AddRating(ctx, 8, 6, "too good", "u2"), ErrValidation)

	after, err := tracker.GetMetrics(ctx, 8)
	require.NoError(t, err)
	assert.Len(t, after.Ratings, len(before.Ratings))
}

func TestAddSave_Idempotent(t *testing.T) {
	tracker, db := setupTracker(t)
	ctx := context.Background()

	already, err := tracker.AddSave(ctx, 9, "u1")
	require.NoError(t, err)
	assert.False(t, already)

	already, err = tracker.AddSave(ctx, 9, "u1")
	require.NoError(t, err)
	assert.True(t, already)

	already, err = tracker.AddSave(ctx, 9, "u2")
	require.NoError(t, err)
	assert.False(t, already)

	m, err := tracker.GetMetrics(ctx, 9)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, m.Saves)

	var aggregate models.EngagementAggregate
	require.NoError(t, db.First(&aggregate, "property_id = ?", 9).Error)
	assert.Equal(t, int64(2), aggregate.TotalSaves)

	_, err = tracker.AddSave(ctx, 9, " ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetMetrics_UnknownProperty(t *testing.T) {
	tracker, _ := setupTracker(t)

	m, err := tracker.GetMetrics(context.Background(), 404)
	require.NoError(t, err)
	assert.Equal(t, int64(404), m.PropertyID)
	assert.Zero(t, m.TotalViews)
	assert.Empty(t, m.Ratings)
	assert.Empty(t, m.Saves)

	_, err = tracker.GetMetrics(context.Background(), 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestApply(t *testing.T) {
	tracker, _ := setupTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.Apply(ctx, models.EngagementEvent{Kind: models.EventView, PropertyID: 2}))
	require.NoError(t, tracker.Apply(ctx, models.EngagementEvent{Kind: models.EventEngagement, PropertyID: 2, Seconds: 12}))
	assert.ErrorIs(t, tracker.Apply(ctx, models.EngagementEvent{Kind: "share", PropertyID: 2}), ErrUnknownEvent)

	m, err := tracker.GetMetrics(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.TotalViews)
	assert.Equal(t, int64(12), m.TotalEngagementSeconds)
}

func TestSavedProperties(t *testing.T) {
	tracker, db := setupTracker(t)
	ctx := context.Background()

	require.NoError(t, database.Wrap(db, nil).InsertProperties([]models.Property{
		{ID: 1, Title: "Active", Sector: "Sector 56", IsActive: true},
		{ID: 2, Title: "Inactive", Sector: "Sector 57", IsActive: false},
		{ID: 3, Title: "Other", Sector: "Sector 45", IsActive: true},
	}))

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	tracker.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	for _, pid := range []int64{1, 2, 3} {
		_, err := tracker.AddSave(ctx, pid, "u1")
		require.NoError(t, err)
	}

	saved, err := tracker.SavedProperties(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, int64(3), saved[0].ID)
	assert.Equal(t, int64(1), saved[1].ID)

	saved, err = tracker.SavedProperties(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestSummary(t *testing.T) {
	tracker, _ := setupTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.AddView(ctx, 1))
	require.NoError(t, tracker.AddView(ctx, 1))
	require.NoError(t, tracker.AddView(ctx, 2))
	require.NoError(t, tracker.AddEngagementTime(ctx, 1, 30))
	require.NoError(t, tracker.AddEngagementTime(ctx, 2, 61))
	require.NoError(t, tracker.AddRating(ctx, 1, 4, "", "a"))
	require.NoError(t, tracker.AddRating(ctx, 2, 5, "", "b"))
	require.NoError(t, tracker.AddRating(ctx, 2, 5, "", "b"))
	_, err := tracker.AddSave(ctx, 2, "a")
	require.NoError(t, err)

	summary, err := tracker.Summary(ctx, []int64{1, 2, 99})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalProperties)
	assert.Equal(t, int64(3), summary.TotalViews)
	assert.Equal(t, int64(1), summary.TotalSaves)
	assert.Equal(t, int64(3), summary.TotalRatings)
	assert.Equal(t, 4.7, summary.AvgRating)
	assert.Equal(t, int64(46), summary.AvgEngagement)

	empty, err := tracker.Summary(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, &models.EngagementSummary{}, empty)

	none, err := tracker.Summary(ctx, []int64{500})
	require.NoError(t, err)
	assert.Zero(t, none.TotalProperties)
}

func TestStoreOutage(t *testing.T) {
	tracker, db := setupTracker(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	assert.ErrorIs(t, tracker.AddView(context.Background(), 1), ErrServiceUnavailable)
	_, err = tracker.AddSave(context.Background(), 1, "u1")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}
