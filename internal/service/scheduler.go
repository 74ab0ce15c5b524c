package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// VersionChecker runs a forced catalog version check.
type VersionChecker interface {
	EnsureFresh(ctx context.Context, force bool) error
}

// SchedulerConfig holds configuration for the version check scheduler.
type SchedulerConfig struct {
	// Interval is how often the upstream version is checked.
	// Default: 15 minutes
	Interval time.Duration

	// Timeout bounds a single check.
	// Default: 5 minutes
	Timeout time.Duration
}

// VersionScheduler periodically forces a catalog version check so new game
// patches are picked up without a lookup having to notice first.
type VersionScheduler struct {
	checker   VersionChecker
	config    SchedulerConfig
	logger    *slog.Logger
	ticker    *time.Ticker
	stopCh    chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	isRunning bool
	stopped   bool
	mu        sync.Mutex
}

// NewVersionScheduler creates a new scheduler.
func NewVersionScheduler(checker VersionChecker, config SchedulerConfig, logger *slog.Logger) *VersionScheduler {
	if config.Interval == 0 {
		config.Interval = 15 * time.Minute
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &VersionScheduler{
		checker: checker,
		config:  config,
		logger:  logger.With("component", "version_scheduler"),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins periodic checks. The first check runs after one interval;
// startup is covered by the catalog's own Init. A stopped scheduler cannot
// be restarted.
func (s *VersionScheduler) Start() {
	s.mu.Lock()
	if s.isRunning || s.stopped {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	s.logger.Info("version scheduler started", "interval", s.config.Interval)

	go s.run()
}

func (s *VersionScheduler) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ticker.C:
			s.RunNow()
		case <-s.stopCh:
			s.logger.Info("version scheduler stopped")
			return
		}
	}
}

// RunNow performs one forced version check.
func (s *VersionScheduler) RunNow() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	start := time.Now()
	if err := s.checker.EnsureFresh(ctx, true); err != nil {
		s.logger.Error("scheduled version check failed", "error", err)
		return err
	}
	s.logger.Debug("scheduled version check done", "duration", time.Since(start))
	return nil
}

// Stop stops the scheduler and waits for a running check to return.
func (s *VersionScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		running := s.isRunning
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
		s.stopped = true
		s.mu.Unlock()

		if running {
			<-s.done
		}
	})
}
