package scheduler

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ggnhomes/server/config"
)

// AreaSource provides the names the autocomplete index is built from
type AreaSource interface {
	config.AreaReader
	DistinctSectors() ([]string, error)
}

// IndexUpdater receives a complete new set of area names
type IndexUpdater interface {
	Replace(names []string)
}

// Scheduler periodically rebuilds the autocomplete index from the area
// catalogue and the sectors of active listings.
type Scheduler struct {
	source   AreaSource
	index    IndexUpdater
	logger   *logrus.Logger
	interval time.Duration
	extra    []config.Area
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	jobMutex sync.Mutex // Ensures sequential refreshes
}

// NewScheduler creates a new scheduler
func NewScheduler(source AreaSource, index IndexUpdater, interval time.Duration, extra []config.Area, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	return &Scheduler{
		source:   source,
		index:    index,
		logger:   logger,
		interval: interval,
		extra:    extra,
		stopChan: make(chan struct{}),
	}
}

// Start refreshes once and then on every tick
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.runScheduler()
}

// runScheduler handles all scheduled refreshes
func (s *Scheduler) runScheduler() {
	defer s.wg.Done()

	s.logger.Info("Running startup index refresh")
	if err := s.Refresh(); err != nil {
		s.logger.WithError(err).Error("Startup index refresh failed")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case t := <-ticker.C:
			s.logger.WithField("tick", t.Format(time.RFC3339)).Debug("Refreshing autocomplete index")
			if err := s.Refresh(); err != nil {
				s.logger.WithError(err).Error("Scheduled index refresh failed, keeping previous index")
			}
		}
	}
}

// Refresh rebuilds the index now. On error the previous index stays in place.
func (s *Scheduler) Refresh() error {
	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	names, err := config.GetAreaNames(s.source, s.extra...)
	if err != nil {
		return err
	}

	sectors, err := s.source.DistinctSectors()
	if err != nil {
		return fmt.Errorf("failed to load sectors: %w", err)
	}

	seen := make(map[string]bool, len(names)+len(sectors))
	for _, n := range names {
		seen[config.NormalizeArea(n)] = true
	}
	for _, sector := range sectors {
		key := config.NormalizeArea(sector)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, sector)
	}

	s.index.Replace(names)
	s.logger.WithFields(logrus.Fields{
		"areas":   len(names),
		"sectors": len(sectors),
	}).Info("Autocomplete index refreshed")
	return nil
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}
