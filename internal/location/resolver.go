// Package location turns device coordinates into an ordered hierarchy of
// place names, most specific first.
package location

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ggnhomes/server/internal/geocoding"
	"ggnhomes/server/internal/models"
)

var (
	ErrPermissionDenied = errors.New("location permission denied")
	ErrUnavailable      = errors.New("location unavailable")
	ErrGeocodeFailure   = errors.New("reverse geocoding failed")
)

// Geolocator is the device location capability
type Geolocator interface {
	CurrentPosition(ctx context.Context) (lat, lon float64, err error)
}

type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (*geocoding.Address, error)
}

// Coordinates is a Geolocator that reports a fixed, already known position
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

func (c Coordinates) CurrentPosition(context.Context) (float64, float64, error) {
	return c.Latitude, c.Longitude, nil
}

// Denied is a Geolocator for clients that refused the location prompt
type Denied struct{}

func (Denied) CurrentPosition(context.Context) (float64, float64, error) {
	return 0, 0, ErrPermissionDenied
}

// Resolver keeps the latest successful fix. A failed cycle never replaces it.
type Resolver struct {
	geolocator Geolocator
	geocoder   ReverseGeocoder
	logger     *logrus.Logger
	timeout    time.Duration
	now        func() time.Time

	mu      sync.RWMutex
	current *models.LocationFix
}

func NewResolver(geolocator Geolocator, geocoder ReverseGeocoder, timeout time.Duration, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Resolver{
		geolocator: geolocator,
		geocoder:   geocoder,
		logger:     logger,
		timeout:    timeout,
		now:        time.Now,
	}
}

// Current returns the last resolved fix, or nil
func (r *Resolver) Current() *models.LocationFix {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// RequestLocation runs one geolocation and reverse-geocode cycle. On success
// the new fix replaces the previous one wholesale.
func (r *Resolver) RequestLocation(ctx context.Context) (*models.LocationFix, error) {
	return r.resolveFrom(ctx, r.geolocator)
}

// ResolveWith runs a cycle against the given device position instead of the
// resolver's own Geolocator.
func (r *Resolver) ResolveWith(ctx context.Context, geolocator Geolocator) (*models.LocationFix, error) {
	return r.resolveFrom(ctx, geolocator)
}

func (r *Resolver) resolveFrom(ctx context.Context, geolocator Geolocator) (*models.LocationFix, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if geolocator == nil {
		return nil, ErrUnavailable
	}
	lat, lon, err := geolocator.CurrentPosition(ctx)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	addr, err := r.geocoder.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"latitude":  lat,
			"longitude": lon,
		}).Warn("Reverse geocoding failed, keeping previous fix")
		return nil, fmt.Errorf("%w: %v", ErrGeocodeFailure, err)
	}

	fix, ok := BuildFix(lat, lon, *addr, r.now())
	if !ok {
		r.logger.WithFields(logrus.Fields{
			"latitude":  lat,
			"longitude": lon,
		}).Warn("Could not determine any place name from location")
		return nil, fmt.Errorf("%w: no place name resolved", ErrGeocodeFailure)
	}

	r.mu.Lock()
	r.current = fix
	r.mu.Unlock()

	return fix, nil
}

// FirstNonEmpty returns the first candidate that is not blank, trimmed
func FirstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if s := strings.TrimSpace(c); s != "" {
			return s
		}
	}
	return ""
}

// fallbackTail is the precedence shared by both facets after their own keys
func fallbackTail(a geocoding.Address) []string {
	return []string{a.Village, a.CityDistrict, a.County, a.StateDistrict, a.State}
}

// AreaCandidates lists the area-like keys in precedence order
func AreaCandidates(a geocoding.Address) []string {
	return append([]string{a.Suburb, a.Neighbourhood}, fallbackTail(a)...)
}

// CityCandidates lists the city-like keys in precedence order
func CityCandidates(a geocoding.Address) []string {
	return append([]string{a.City, a.Town}, fallbackTail(a)...)
}

// BuildFix assembles the ordered, deduplicated field list from an address.
// It reports false when no level resolved.
func BuildFix(lat, lon float64, a geocoding.Address, at time.Time) (*models.LocationFix, bool) {
	area := FirstNonEmpty(AreaCandidates(a)...)
	city := FirstNonEmpty(CityCandidates(a)...)

	levels := append([]string{area, city}, fallbackTail(a)...)
	fields := make([]string, 0, len(levels))
	seen := make(map[string]bool, len(levels))
	for _, level := range levels {
		level = strings.TrimSpace(level)
		key := strings.ToLower(level)
		if level == "" || seen[key] {
			continue
		}
		seen[key] = true
		fields = append(fields, level)
	}
	if len(fields) == 0 {
		return nil, false
	}

	return &models.LocationFix{
		Latitude:   lat,
		Longitude:  lon,
		Area:       area,
		City:       city,
		Fields:     fields,
		ResolvedAt: at,
	}, true
}
