// Package engagement records per-property views, dwell time, ratings and saves.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ggnhomes/server/internal/metrics"
	"ggnhomes/server/internal/models"
)

var (
	ErrValidation         = errors.New("invalid engagement input")
	ErrServiceUnavailable = errors.New("engagement store unavailable")
	ErrUnknownEvent       = errors.New("unknown engagement event")
)

const (
	MinRating = 1
	MaxRating = 5
)

// Tracker applies engagement events with atomic SQL increments. Counters are
// never read back and rewritten.
type Tracker struct {
	db      *gorm.DB
	logger  *logrus.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewTracker(db *gorm.DB, timeout time.Duration, logger *logrus.Logger) *Tracker {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Tracker{db: db, logger: logger, timeout: timeout, now: time.Now}
}

func (t *Tracker) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.timeout)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
}

func validateProperty(pid int64) error {
	if pid <= 0 {
		return fmt.Errorf("%w: property id must be positive", ErrValidation)
	}
	return nil
}

// ensureAggregate creates the counter row on the first event for a property
func ensureAggregate(tx *gorm.DB, pid int64) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.EngagementAggregate{PropertyID: pid}).Error
}

func (t *Tracker) increment(ctx context.Context, pid int64, column string, delta int64) error {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureAggregate(tx, pid); err != nil {
			return err
		}
		return tx.Model(&models.EngagementAggregate{}).
			Where("property_id = ?", pid).
			UpdateColumns(map[string]interface{}{
				column:       gorm.Expr(column+" + ?", delta),
				"updated_at": t.now(),
			}).Error
	})
}

// AddView counts one view of the property
func (t *Tracker) AddView(ctx context.Context, pid int64) error {
	if err := validateProperty(pid); err != nil {
		return err
	}
	if err := t.increment(ctx, pid, "total_views", 1); err != nil {
		metrics.EngagementEvents.WithLabelValues(models.EventView, "error").Inc()
		t.logger.WithError(err).WithField("property_id", pid).Error("Failed to record view")
		return unavailable(err)
	}
	metrics.EngagementEvents.WithLabelValues(models.EventView, "ok").Inc()
	return nil
}

// AddEngagementTime adds dwell seconds. Zero seconds performs no write.
func (t *Tracker) AddEngagementTime(ctx context.Context, pid int64, seconds int64) error {
	if err := validateProperty(pid); err != nil {
		return err
	}
	if seconds < 0 {
		return fmt.Errorf("%w: engagement seconds must not be negative, got %d", ErrValidation, seconds)
	}
	if seconds == 0 {
		return nil
	}
	if err := t.increment(ctx, pid, "total_engagement_seconds", seconds); err != nil {
		metrics.EngagementEvents.WithLabelValues(models.EventEngagement, "error").Inc()
		t.logger.WithError(err).WithFields(logrus.Fields{
			"property_id": pid,
			"seconds":     seconds,
		}).Error("Failed to record engagement time")
		return unavailable(err)
	}
	metrics.EngagementEvents.WithLabelValues(models.EventEngagement, "ok").Inc()
	return nil
}

// AddRating appends a rating. The same user may rate a property repeatedly.
func (t *Tracker) AddRating(ctx context.Context, pid int64, value int, comment, userID string) error {
	if err := validateProperty(pid); err != nil {
		return err
	}
	if value < MinRating || value > MaxRating {
		return fmt.Errorf("%w: rating must be between %d and %d, got %d", ErrValidation, MinRating, MaxRating, value)
	}

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	rating := models.Rating{
		PropertyID:  pid,
		UserID:      userID,
		Value:       value,
		Comment:     strings.TrimSpace(comment),
		SubmittedAt: t.now(),
	}
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureAggregate(tx, pid); err != nil {
			return err
		}
		return tx.Create(&rating).Error
	})
	if err != nil {
		metrics.EngagementEvents.WithLabelValues("rating", "error").Inc()
		t.logger.WithError(err).WithField("property_id", pid).Error("Failed to record rating")
		return unavailable(err)
	}

	metrics.EngagementEvents.WithLabelValues("rating", "ok").Inc()
	return nil
}

// AddSave marks the property as saved by the user. Saving an already saved
// property changes nothing and reports alreadySaved.
func (t *Tracker) AddSave(ctx context.Context, pid int64, userID string) (alreadySaved bool, err error) {
	if err := validateProperty(pid); err != nil {
		return false, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, fmt.Errorf("%w: saving requires a signed-in user", ErrValidation)
	}

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	err = t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureAggregate(tx, pid); err != nil {
			return err
		}

		result := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.Save{PropertyID: pid, UserID: userID, SavedAt: t.now()})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			alreadySaved = true
			return nil
		}

		return tx.Model(&models.EngagementAggregate{}).
			Where("property_id = ?", pid).
			UpdateColumns(map[string]interface{}{
				"total_saves": gorm.Expr("total_saves + ?", 1),
				"updated_at":  t.now(),
			}).Error
	})
	if err != nil {
		metrics.EngagementEvents.WithLabelValues("save", "error").Inc()
		t.logger.WithError(err).WithFields(logrus.Fields{
			"property_id": pid,
			"user_id":     userID,
		}).Error("Failed to record save")
		return false, unavailable(err)
	}

	metrics.EngagementEvents.WithLabelValues("save", "ok").Inc()
	return alreadySaved, nil
}

// Apply routes a queued event to the matching counter update
func (t *Tracker) Apply(ctx context.Context, event models.EngagementEvent) error {
	switch event.Kind {
	case models.EventView:
		return t.AddView(ctx, event.PropertyID)
	case models.EventEngagement:
		return t.AddEngagementTime(ctx, event.PropertyID, event.Seconds)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event.Kind)
	}
}

// GetMetrics returns the engagement read model of one property. A property
// without events yields zero counters.
func (t *Tracker) GetMetrics(ctx context.Context, pid int64) (*models.EngagementMetrics, error) {
	if err := validateProperty(pid); err != nil {
		return nil, err
	}

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()
	db := t.db.WithContext(ctx)

	var aggregate models.EngagementAggregate
	err := db.Where("property_id = ?", pid).Limit(1).Find(&aggregate).Error
	if err != nil {
		return nil, unavailable(err)
	}

	ratings := []models.Rating{}
	if err := db.Where("property_id = ?", pid).Order("submitted_at").Order("id").Find(&ratings).Error; err != nil {
		return nil, unavailable(err)
	}

	saves := []string{}
	if err := db.Model(&models.Save{}).Where("property_id = ?", pid).Order("saved_at").Order("user_id").Pluck("user_id", &saves).Error; err != nil {
		return nil, unavailable(err)
	}

	result := &models.EngagementMetrics{
		PropertyID:             pid,
		TotalViews:             aggregate.TotalViews,
		TotalEngagementSeconds: aggregate.TotalEngagementSeconds,
		Ratings:                ratings,
		Saves:                  saves,
	}
	if len(ratings) > 0 {
		sum := 0
		for _, r := range ratings {
			sum += r.Value
		}
		result.AverageRating = roundTenth(float64(sum) / float64(len(ratings)))
	}
	return result, nil
}

// SavedProperties lists the active properties the user saved, latest save first
func (t *Tracker) SavedProperties(ctx context.Context, userID string) ([]models.Property, error) {
	properties := []models.Property{}
	if strings.TrimSpace(userID) == "" {
		return properties, nil
	}

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	err := t.db.WithContext(ctx).
		Model(&models.Property{}).
		Joins("JOIN saves ON saves.property_id = properties.id").
		Where("saves.user_id = ? AND properties.is_active = ?", userID, true).
		Order("saves.saved_at DESC").
		Order("properties.id").
		Find(&properties).Error
	if err != nil {
		t.logger.WithError(err).WithField("user_id", userID).Error("Failed to load saved properties")
		return nil, unavailable(err)
	}
	return properties, nil
}

// Summary aggregates engagement over a set of properties, typically those of
// one owner. Properties without any event are not counted.
func (t *Tracker) Summary(ctx context.Context, propertyIDs []int64) (*models.EngagementSummary, error) {
	summary := &models.EngagementSummary{}
	if len(propertyIDs) == 0 {
		return summary, nil
	}

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()
	db := t.db.WithContext(ctx)

	var aggregates []models.EngagementAggregate
	if err := db.Where("property_id IN ?", propertyIDs).Find(&aggregates).Error; err != nil {
		return nil, unavailable(err)
	}
	if len(aggregates) == 0 {
		return summary, nil
	}

	var ratingStats struct {
		Count int64
		Total int64
	}
	err := db.Model(&models.Rating{}).
		Select("COUNT(*) AS count, COALESCE(SUM(value), 0) AS total").
		Where("property_id IN ?", propertyIDs).
		Scan(&ratingStats).Error
	if err != nil {
		return nil, unavailable(err)
	}

	var seconds int64
	for _, a := range aggregates {
		summary.TotalViews += a.TotalViews
		summary.TotalSaves += a.TotalSaves
		seconds += a.TotalEngagementSeconds
	}
	summary.TotalProperties = len(aggregates)
	summary.TotalRatings = ratingStats.Count
	if ratingStats.Count > 0 {
		summary.AvgRating = roundTenth(float64(ratingStats.Total) / float64(ratingStats.Count))
	}
	summary.AvgEngagement = int64(math.Round(float64(seconds) / float64(len(aggregates))))
	return summary, nil
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
