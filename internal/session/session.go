// Package session models one client's browsing session: the current location
// fix, debounced nearby refreshes and autocomplete, and property dwell tracking.
package session

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ggnhomes/server/internal/debounce"
	"ggnhomes/server/internal/models"
)

const DefaultWindow = 300 * time.Millisecond

type Suggester interface {
	Suggest(text string) []models.Suggestion
}

type NearbySource interface {
	Nearby(ctx context.Context, fix *models.LocationFix) []models.Property
}

// EventSink receives fire-and-forget engagement events
type EventSink interface {
	Dispatch(ctx context.Context, event models.EngagementEvent) error
}

type Options struct {
	Window time.Duration

	// Called with the refreshed nearby list after a fix settles
	OnNearby func(fix *models.LocationFix, properties []models.Property)

	// Called with the suggestions for the last typed value
	OnSuggestions func(text string, suggestions []models.Suggestion)
}

type Session struct {
	identity  models.Identity
	suggester Suggester
	nearby    NearbySource
	sink      EventSink
	opts      Options
	logger    *logrus.Logger
	now       func() time.Time

	nearbyDebounce  *debounce.Debouncer
	suggestDebounce *debounce.Debouncer

	// Held while a callback runs so Close can wait it out
	deliverMu sync.Mutex

	mu       sync.Mutex
	state    models.SessionState
	fix      *models.LocationFix
	openID   int64
	openedAt time.Time
	closed   bool
}

func New(identity models.Identity, suggester Suggester, nearby NearbySource, sink EventSink, opts Options, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	return &Session{
		identity:        identity,
		suggester:       suggester,
		nearby:          nearby,
		sink:            sink,
		opts:            opts,
		logger:          logger,
		now:             time.Now,
		nearbyDebounce:  debounce.New(opts.Window),
		suggestDebounce: debounce.New(opts.Window),
	}
}

func (s *Session) Identity() models.Identity {
	return s.identity
}

// State returns a copy of the session state for feed assembly
func (s *Session) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SetLastSector(sector string) {
	sector = strings.TrimSpace(sector)
	if sector == "" {
		return
	}
	s.mu.Lock()
	s.state.LastSector = sector
	s.mu.Unlock()
}

// Fix returns the latest location fix, or nil
func (s *Session) Fix() *models.LocationFix {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fix
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) deliver(fn func()) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.isClosed() {
		return
	}
	fn()
}

// UpdateFix replaces the current fix and schedules a nearby refresh. Fixes
// arriving within the window collapse into one lookup for the last of them.
func (s *Session) UpdateFix(fix *models.LocationFix) {
	if fix == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.fix = fix
	s.mu.Unlock()

	s.nearbyDebounce.Trigger(func() {
		properties := s.nearby.Nearby(context.Background(), fix)
		if s.opts.OnNearby != nil {
			s.deliver(func() { s.opts.OnNearby(fix, properties) })
		}
	})
}

// Type records a keystroke in the area search box. Only the value left after
// the window elapses is looked up.
func (s *Session) Type(text string) {
	if s.isClosed() {
		return
	}
	s.suggestDebounce.Trigger(func() {
		suggestions := s.suggester.Suggest(text)
		if s.opts.OnSuggestions != nil {
			s.deliver(func() { s.opts.OnSuggestions(text, suggestions) })
		}
	})
}

// OpenProperty records a view when the user navigates to a property. Opening
// the property that is already open does not count again. A different
// property closes the previous one first.
func (s *Session) OpenProperty(ctx context.Context, property models.Property) error {
	s.mu.Lock()
	if s.closed || s.openID == property.ID {
		s.mu.Unlock()
		return nil
	}
	prevID, prevOpened := s.openID, s.openedAt
	s.openID = property.ID
	s.openedAt = s.now()
	if sector := strings.TrimSpace(property.Sector); sector != "" {
		s.state.LastSector = sector
	}
	s.mu.Unlock()

	if prevID != 0 {
		s.reportDwell(ctx, prevID, prevOpened)
	}

	return s.sink.Dispatch(ctx, models.EngagementEvent{
		Kind:       models.EventView,
		PropertyID: property.ID,
	})
}

// CloseProperty reports the whole seconds spent on the open property
func (s *Session) CloseProperty(ctx context.Context) error {
	s.mu.Lock()
	id, opened := s.openID, s.openedAt
	s.openID = 0
	s.mu.Unlock()

	if id == 0 {
		return nil
	}
	return s.reportDwell(ctx, id, opened)
}

func (s *Session) reportDwell(ctx context.Context, id int64, opened time.Time) error {
	seconds := int64(s.now().Sub(opened) / time.Second)
	if seconds <= 0 {
		return nil
	}
	err := s.sink.Dispatch(ctx, models.EngagementEvent{
		Kind:       models.EventEngagement,
		PropertyID: id,
		Seconds:    seconds,
	})
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"property_id": id,
			"seconds":     seconds,
		}).Warn("Failed to report engagement time")
	}
	return err
}

// Close cancels pending refreshes and lookups and reports dwell time for the
// open property. Callbacks never fire after Close returns, so a callback must
// not call Close itself.
func (s *Session) Close(ctx context.Context) error {
	s.deliverMu.Lock()
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()
	s.deliverMu.Unlock()
	if already {
		return nil
	}

	s.nearbyDebounce.Stop()
	s.suggestDebounce.Stop()
	return s.CloseProperty(ctx)
}
