// Package recommend builds the recommended and nearby property feeds.
package recommend

import (
	"context"
	"math/rand"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"ggnhomes/server/internal/metrics"
	"ggnhomes/server/internal/models"
)

// Discovery is the property lookup the feeds are built from
type Discovery interface {
	FindByLocation(ctx context.Context, fields []string, activeOnly bool) ([]models.Property, error)
	LatestActive(ctx context.Context, limit int) ([]models.Property, error)
}

// History supplies a user's recent searches
type History interface {
	Recent(ctx context.Context, userID string, limit int) ([]models.SearchHistoryEntry, error)
}

type Options struct {
	GenericFeedCap  int
	PersonalFeedCap int
	HistoryLimit    int
	DefaultArea     string
}

// Feeds are two independent lists; neither is ranked against the other
type Feeds struct {
	Recommended   []models.Property `json:"recommended"`
	Nearby        []models.Property `json:"nearby"`
	PreferredArea string            `json:"preferred_area,omitempty"`
	Personalized  bool              `json:"personalized"`
}

type Assembler struct {
	discovery Discovery
	history   History
	opts      Options
	logger    *logrus.Logger

	// pick returns a uniform index in [0, n)
	pick func(n int) int
}

func NewAssembler(discovery Discovery, history History, opts Options, logger *logrus.Logger) *Assembler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if opts.GenericFeedCap <= 0 {
		opts.GenericFeedCap = 15
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 10
	}
	if strings.TrimSpace(opts.DefaultArea) == "" {
		opts.DefaultArea = "Gurgaon"
	}
	return &Assembler{
		discovery: discovery,
		history:   history,
		opts:      opts,
		logger:    logger,
		pick:      rand.Intn,
	}
}

// Assemble builds both feeds concurrently. Lookup failures degrade to empty
// or generic lists and are never returned to the caller.
func (a *Assembler) Assemble(ctx context.Context, identity models.Identity, state models.SessionState, fix *models.LocationFix) *Feeds {
	feeds := &Feeds{
		Recommended: []models.Property{},
		Nearby:      []models.Property{},
	}

	var g errgroup.Group
	g.Go(func() error {
		if identity.Anonymous() {
			feeds.Recommended = a.genericFeed(ctx)
			metrics.Feeds.WithLabelValues("anonymous").Inc()
			return nil
		}
		feeds.PreferredArea = a.PreferredArea(ctx, identity.UserID, state)
		feeds.Recommended, feeds.Personalized = a.personalFeed(ctx, feeds.PreferredArea)
		if feeds.Personalized {
			metrics.Feeds.WithLabelValues("personalized").Inc()
		} else {
			metrics.Feeds.WithLabelValues("fallback").Inc()
		}
		return nil
	})
	if fix != nil {
		g.Go(func() error {
			feeds.Nearby = a.Nearby(ctx, fix)
			return nil
		})
	}
	_ = g.Wait()

	return feeds
}

// Nearby lists active properties around the fix, or nothing when the lookup fails
func (a *Assembler) Nearby(ctx context.Context, fix *models.LocationFix) []models.Property {
	if fix == nil {
		return []models.Property{}
	}
	properties, err := a.discovery.FindByLocation(ctx, fix.Fields, true)
	if err != nil {
		a.logger.WithError(err).WithField("fields", fix.Fields).Warn("Nearby lookup failed, returning no properties")
		return []models.Property{}
	}
	return properties
}

// PreferredArea samples one recent search uniformly at random and extracts
// its place token. Without a usable search it falls back to the session's
// last sector and then to the default area.
func (a *Assembler) PreferredArea(ctx context.Context, userID string, state models.SessionState) string {
	entries, err := a.history.Recent(ctx, userID, a.opts.HistoryLimit)
	if err != nil {
		a.logger.WithError(err).WithField("user_id", userID).Warn("Could not load search history")
	}
	if len(entries) > 0 {
		sampled := entries[a.pick(len(entries))]
		if token := ExtractAreaToken(sampled.Query); token != "" {
			return token
		}
	}
	if last := strings.TrimSpace(state.LastSector); last != "" {
		return last
	}
	return a.opts.DefaultArea
}

func (a *Assembler) personalFeed(ctx context.Context, area string) ([]models.Property, bool) {
	properties, err := a.discovery.FindByLocation(ctx, []string{area}, true)
	if err != nil {
		a.logger.WithError(err).WithField("area", area).Warn("Personal feed lookup failed, serving generic feed")
		return a.genericFeed(ctx), false
	}
	if len(properties) == 0 {
		a.logger.WithField("area", area).Debug("No properties for preferred area, serving generic feed")
		return a.genericFeed(ctx), false
	}
	if a.opts.PersonalFeedCap > 0 && len(properties) > a.opts.PersonalFeedCap {
		properties = properties[:a.opts.PersonalFeedCap]
	}
	return properties, true
}

func (a *Assembler) genericFeed(ctx context.Context) []models.Property {
	properties, err := a.discovery.LatestActive(ctx, a.opts.GenericFeedCap)
	if err != nil {
		a.logger.WithError(err).Warn("Generic feed lookup failed")
		return []models.Property{}
	}
	if len(properties) > a.opts.GenericFeedCap {
		properties = properties[:a.opts.GenericFeedCap]
	}
	return properties
}
