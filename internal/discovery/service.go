// Package discovery matches place names against the property catalogue.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"ggnhomes/server/internal/metrics"
	"ggnhomes/server/internal/models"
)

var ErrServiceUnavailable = errors.New("property store unavailable")

// Service runs read-only lookups over the properties table
type Service struct {
	db      *gorm.DB
	logger  *logrus.Logger
	timeout time.Duration
}

func NewService(db *gorm.DB, timeout time.Duration, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Service{db: db, logger: logger, timeout: timeout}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// NormalizeCandidates trims the place names, drops blanks and collapses
// case-insensitive duplicates. The first spelling is kept.
func NormalizeCandidates(fields []string) []string {
	out := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		key := strings.ToLower(f)
		if f == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}

// escapeLike escapes LIKE wildcards so a candidate only matches literally
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// sectorPattern escapes LIKE wildcards stored in the sector column itself
const sectorPattern = `REPLACE(REPLACE(REPLACE(LOWER(sector), '\', '\\'), '%', '\%'), '_', '\_')`

// matchClause builds one WHERE fragment covering every candidate. A property
// matches when its sector contains the candidate, the candidate contains its
// sector, or its address contains the candidate. Comparison is case-insensitive.
func matchClause(candidates []string) (string, []interface{}) {
	parts := make([]string, 0, len(candidates))
	args := make([]interface{}, 0, len(candidates)*3)
	for _, c := range candidates {
		lower := strings.ToLower(c)
		pattern := "%" + escapeLike(lower) + "%"
		parts = append(parts, `(LOWER(sector) LIKE ? ESCAPE '\' OR (sector <> '' AND ? LIKE '%' || `+sectorPattern+` || '%' ESCAPE '\') OR LOWER(address) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, lower, pattern)
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// FindByLocation returns the properties matching any of the candidate place
// names, each property at most once, ordered by id. No candidates means no
// results and no error.
func (s *Service) FindByLocation(ctx context.Context, fields []string, activeOnly bool) ([]models.Property, error) {
	candidates := NormalizeCandidates(fields)
	if len(candidates) == 0 {
		metrics.DiscoveryQueries.WithLabelValues("empty").Inc()
		return []models.Property{}, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	where, args := matchClause(candidates)
	query := s.db.WithContext(ctx).Model(&models.Property{}).Where(where, args...)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var properties []models.Property
	err := query.Order("id").Find(&properties).Error
	metrics.DiscoveryQueryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DiscoveryQueries.WithLabelValues("unavailable").Inc()
		s.logger.WithError(err).WithField("candidates", candidates).Error("Location lookup failed")
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	metrics.DiscoveryQueries.WithLabelValues("ok").Inc()
	s.logger.WithFields(logrus.Fields{
		"candidates": candidates,
		"matches":    len(properties),
		"active":     activeOnly,
	}).Debug("Location lookup completed")

	if properties == nil {
		properties = []models.Property{}
	}
	return properties, nil
}

// LatestActive returns up to limit active properties, newest listing first
func (s *Service) LatestActive(ctx context.Context, limit int) ([]models.Property, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("listed_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var properties []models.Property
	if err := query.Find(&properties).Error; err != nil {
		s.logger.WithError(err).Error("Failed to load latest properties")
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if properties == nil {
		properties = []models.Property{}
	}
	return properties, nil
}
