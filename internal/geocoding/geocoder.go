package geocoding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"ggnhomes/server/internal/metrics"
)

var (
	ErrNoAddress    = errors.New("reverse geocoder returned no address")
	ErrCircuitOpen  = errors.New("reverse geocoder temporarily disabled")
	ErrBadStatus    = errors.New("reverse geocoder returned an error status")
	ErrInvalidPoint = errors.New("coordinates out of range")
)

// Address carries the standard Nominatim place-name keys
type Address struct {
	City          string `json:"city,omitempty"`
	Town          string `json:"town,omitempty"`
	Village       string `json:"village,omitempty"`
	Suburb        string `json:"suburb,omitempty"`
	Neighbourhood string `json:"neighbourhood,omitempty"`
	CityDistrict  string `json:"city_district,omitempty"`
	County        string `json:"county,omitempty"`
	StateDistrict string `json:"state_district,omitempty"`
	State         string `json:"state,omitempty"`
}

// Empty reports whether no place-name key is set
func (a Address) Empty() bool {
	return a == Address{}
}

type Options struct {
	BaseURL           string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	ReuseRadiusMeters float64
	CacheDir          string

	// Oldest entries are evicted once the cache holds this many addresses
	MaxCacheEntries int
}

// DefaultMaxCacheEntries bounds the in-memory and on-disk address cache
const DefaultMaxCacheEntries = 5000

type cachedAddress struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Address Address `json:"address"`
}

type Geocoder struct {
	logger      *logrus.Logger
	baseURL     string
	userAgent   string
	cacheDir    string
	reuseRadius float64
	timeout     time.Duration
	maxEntries  int
	cache       map[string]cachedAddress
	order       []string
	cacheLock   sync.RWMutex
	saveLock    sync.Mutex
	client      *http.Client
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[*Address]
	group       singleflight.Group
}

func NewGeocoder(logger *logrus.Logger, opts Options) *Geocoder {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 1
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "ggnHomes Discovery/1.0"
	}
	if opts.MaxCacheEntries <= 0 {
		opts.MaxCacheEntries = DefaultMaxCacheEntries
	}

	g := &Geocoder{
		logger:      logger,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		userAgent:   opts.UserAgent,
		cacheDir:    opts.CacheDir,
		reuseRadius: opts.ReuseRadiusMeters,
		timeout:     opts.Timeout,
		maxEntries:  opts.MaxCacheEntries,
		cache:       make(map[string]cachedAddress),
		client:      &http.Client{Timeout: opts.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
	}

	g.breaker = gobreaker.NewCircuitBreaker[*Address](gobreaker.Settings{
		Name:        "reverse-geocoder",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// An empty answer is a valid response, not an outage. Cancellation
		// says nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoAddress) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state transition")
		},
	})

	if g.cacheDir != "" {
		// Create cache directory if it doesn't exist
		if err := os.MkdirAll(g.cacheDir, 0755); err != nil {
			logger.WithError(err).Warn("Could not create geocode cache directory")
		}
		g.loadCache()
	}

	return g
}

func (g *Geocoder) cacheFile() string {
	return filepath.Join(g.cacheDir, "reverse_geocode_cache.json")
}

func (g *Geocoder) loadCache() {
	data, err := os.ReadFile(g.cacheFile())
	if err != nil {
		g.logger.Warnf("Could not load geocode cache: %v", err)
		return
	}

	loaded := make(map[string]cachedAddress)
	if err := json.Unmarshal(data, &loaded); err != nil {
		g.logger.Errorf("Failed to parse geocode cache: %v", err)
		return
	}

	g.cacheLock.Lock()
	defer g.cacheLock.Unlock()
	for key, entry := range loaded {
		g.storeLocked(key, entry)
	}

	g.logger.Infof("Loaded %d cached addresses", len(g.cache))
}

// storeLocked inserts an entry and evicts the oldest ones past the cap.
// Callers hold cacheLock.
func (g *Geocoder) storeLocked(key string, entry cachedAddress) {
	if _, exists := g.cache[key]; !exists {
		g.order = append(g.order, key)
	}
	g.cache[key] = entry

	for len(g.order) > g.maxEntries {
		delete(g.cache, g.order[0])
		g.order = g.order[1:]
	}
}

// saveCache writes the cache through a temporary file so a reader never
// sees a partial document. Saves run one at a time.
func (g *Geocoder) saveCache() {
	if g.cacheDir == "" {
		return
	}

	g.saveLock.Lock()
	defer g.saveLock.Unlock()

	g.cacheLock.RLock()
	data, err := json.Marshal(g.cache)
	g.cacheLock.RUnlock()
	if err != nil {
		g.logger.Errorf("Failed to marshal geocode cache: %v", err)
		return
	}

	tmp, err := os.CreateTemp(g.cacheDir, "reverse_geocode_cache-*.tmp")
	if err != nil {
		g.logger.Errorf("Failed to save geocode cache: %v", err)
		return
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		g.logger.Errorf("Failed to save geocode cache: %v", err)
		return
	}
	if err := tmp.Close(); err != nil {
		g.logger.Errorf("Failed to save geocode cache: %v", err)
		return
	}
	if err := os.Rename(tmp.Name(), g.cacheFile()); err != nil {
		g.logger.Errorf("Failed to save geocode cache: %v", err)
		return
	}

	g.logger.Debug("Saved geocode cache to disk")
}

// CacheSize returns the number of cached addresses
func (g *Geocoder) CacheSize() int {
	g.cacheLock.RLock()
	defer g.cacheLock.RUnlock()
	return len(g.cache)
}

// cacheKey rounds to four decimals, roughly eleven metres
func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("%.4f|%.4f", lat, lon)
}

// lookupCache returns a cached address for the exact rounded key, or the
// closest cached point within the reuse radius.
func (g *Geocoder) lookupCache(lat, lon float64) (Address, bool) {
	g.cacheLock.RLock()
	defer g.cacheLock.RUnlock()

	if entry, ok := g.cache[cacheKey(lat, lon)]; ok {
		return entry.Address, true
	}
	if g.reuseRadius <= 0 {
		return Address{}, false
	}

	point := orb.Point{lon, lat}
	best, bestDistance := Address{}, g.reuseRadius
	found := false
	for _, entry := range g.cache {
		d := geo.Distance(point, orb.Point{entry.Lon, entry.Lat})
		if d <= bestDistance {
			best, bestDistance, found = entry.Address, d, true
		}
	}
	return best, found
}

type nominatimReverseResponse struct {
	Error   string  `json:"error"`
	Address Address `json:"address"`
}

// ReverseGeocode resolves coordinates to a place-name address. Concurrent
// requests for the same rounded coordinate share one upstream call.
func (g *Geocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (*Address, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("%w: %f,%f", ErrInvalidPoint, lat, lon)
	}

	if addr, ok := g.lookupCache(lat, lon); ok {
		g.logger.WithFields(logrus.Fields{
			"latitude":  lat,
			"longitude": lon,
			"source":    "cache",
		}).Debug("Found address in cache")
		metrics.GeocodeRequests.WithLabelValues("cache").Inc()
		return &addr, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := cacheKey(lat, lon)
	ch := g.group.DoChan(key, func() (interface{}, error) {
		// The shared call outlives any single caller
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()

		addr, err := g.breaker.Execute(func() (*Address, error) {
			return g.fetch(fetchCtx, lat, lon)
		})
		if err != nil {
			return nil, err
		}

		g.cacheLock.Lock()
		g.storeLocked(key, cachedAddress{Lat: lat, Lon: lon, Address: *addr})
		g.cacheLock.Unlock()

		// Persist in the background
		go g.saveCache()

		return addr, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}

	if res.Err != nil {
		if errors.Is(res.Err, gobreaker.ErrOpenState) || errors.Is(res.Err, gobreaker.ErrTooManyRequests) {
			metrics.GeocodeRequests.WithLabelValues("rejected").Inc()
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, res.Err)
		}
		metrics.GeocodeRequests.WithLabelValues("failure").Inc()
		return nil, res.Err
	}
	metrics.GeocodeRequests.WithLabelValues("upstream").Inc()

	result := *res.Val.(*Address)
	return &result, nil
}

func (g *Geocoder) fetch(ctx context.Context, lat, lon float64) (*Address, error) {
	// Respect the upstream usage policy
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	params := url.Values{
		"format":         []string{"jsonv2"},
		"lat":            []string{strconv.FormatFloat(lat, 'f', 6, 64)},
		"lon":            []string{strconv.FormatFloat(lon, 'f', 6, 64)},
		"addressdetails": []string{"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/reverse", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept-Language", "en-IN,en;q=0.9")

	fields := logrus.Fields{"latitude": lat, "longitude": lon}
	g.logger.WithFields(fields).Info("Reverse geocoding coordinates")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.WithError(err).WithFields(fields).Error("Reverse geocoding request failed")
		return nil, fmt.Errorf("reverse geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		g.logger.WithFields(fields).WithField("status", resp.StatusCode).Error("Reverse geocoder returned an error")
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		g.logger.WithError(err).WithFields(fields).Error("Failed to read response")
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result nominatimReverseResponse
	if err := json.Unmarshal(body, &result); err != nil {
		g.logger.WithError(err).WithFields(fields).Error("Failed to parse response")
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Error != "" || result.Address.Empty() {
		g.logger.WithFields(fields).Warn("No address found")
		return nil, ErrNoAddress
	}

	g.logger.WithFields(fields).WithField("source", "nominatim").Info("Successfully reverse geocoded coordinates")
	return &result.Address, nil
}
