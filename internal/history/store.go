// Package history keeps the per-user log of committed searches.
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"ggnhomes/server/internal/models"
)

var ErrServiceUnavailable = errors.New("search history store unavailable")

const DefaultLimit = 10

// Store is an append-only search log. Anonymous callers are never recorded.
type Store struct {
	db           *gorm.DB
	logger       *logrus.Logger
	defaultLimit int
	now          func() time.Time
}

func NewStore(db *gorm.DB, defaultLimit int, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	return &Store{db: db, logger: logger, defaultLimit: defaultLimit, now: time.Now}
}

// Record appends a query for the user. Blank queries, anonymous users and a
// repeat of the user's latest query are ignored.
func (s *Store) Record(ctx context.Context, userID, query string) error {
	userID = strings.TrimSpace(userID)
	query = strings.TrimSpace(query)
	if userID == "" || query == "" {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest []models.SearchHistoryEntry
		if err := tx.Where("user_id = ?", userID).
			Order("created_at DESC").Order("id DESC").
			Limit(1).Find(&latest).Error; err != nil {
			return err
		}
		if len(latest) == 1 && latest[0].Query == query {
			return nil
		}
		return tx.Create(&models.SearchHistoryEntry{
			UserID:    userID,
			Query:     query,
			CreatedAt: s.now(),
		}).Error
	})
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("Failed to record search")
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return nil
}

// Recent returns the user's latest queries, most recent first. A
// non-positive limit uses the store default.
func (s *Store) Recent(ctx context.Context, userID string, limit int) ([]models.SearchHistoryEntry, error) {
	entries := []models.SearchHistoryEntry{}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return entries, nil
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}

	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("Failed to load search history")
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return entries, nil
}
