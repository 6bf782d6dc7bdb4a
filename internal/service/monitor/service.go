// Package monitor keeps the super-admin dashboard data: a periodically
// refreshed platform snapshot exported as Prometheus gauges, and a bounded
// in-memory activity feed.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/jwalitptl/establishment-api/internal/model"
	"github.com/jwalitptl/establishment-api/internal/repository"
	"github.com/jwalitptl/establishment-api/pkg/logger"
	"github.com/jwalitptl/establishment-api/pkg/metrics"
)

// ActivityLimit is how many feed entries are kept.
const ActivityLimit = 100

type Config struct {
	Interval time.Duration
	// HostStats enables the gopsutil memory and CPU readings.
	HostStats bool
}

type Service struct {
	establishments repository.EstablishmentRepository
	checkers       map[string]repository.HealthChecker
	metrics        *metrics.Metrics
	logger         *logger.Logger
	config         Config

	mu       sync.RWMutex
	snapshot *model.PlatformSnapshot
	activity []model.ActivityEntry // newest first

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewService(
	establishments repository.EstablishmentRepository,
	checkers map[string]repository.HealthChecker,
	metrics *metrics.Metrics,
	logger *logger.Logger,
	config Config,
) *Service {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	return &Service{
		establishments: establishments,
		checkers:       checkers,
		metrics:        metrics,
		logger:         logger,
		config:         config,
		activity:       make([]model.ActivityEntry, 0, ActivityLimit),
	}
}

// Start refreshes immediately and then on every interval until Stop is
// called or ctx is done.
func (s *Service) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("monitor already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()

		s.refreshAndLog(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.refreshAndLog(ctx)
			}
		}
	}()

	s.logger.Info("Platform monitor started", "interval", s.config.Interval.String())
	return nil
}

// Stop halts the refresh loop and waits for it to exit.
func (s *Service) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.logger.Info("Platform monitor stopped")
}

func (s *Service) refreshAndLog(ctx context.Context) {
	if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error(err, "Failed to refresh platform snapshot")
	}
}

// Refresh recomputes the snapshot and updates the gauges.
func (s *Service) Refresh(ctx context.Context) (*model.PlatformSnapshot, error) {
	counts, err := s.establishments.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count establishments: %w", err)
	}

	snap := &model.PlatformSnapshot{
		EstablishmentsByStatus: map[model.ClaimStatus]int64{},
		PendingClaims:          counts.PendingClaims,
		ActiveStaff:            counts.ActiveStaff,
		Components:             map[string]bool{},
		RefreshedAt:            time.Now(),
	}
	for _, status := range []model.ClaimStatus{
		model.ClaimStatusUnclaimed, model.ClaimStatusPending, model.ClaimStatusVerified, model.ClaimStatusRejected,
	} {
		n := counts.EstablishmentsByStatus[status]
		snap.EstablishmentsByStatus[status] = n
		s.metrics.EstablishmentsByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
	s.metrics.PendingClaims.Set(float64(counts.PendingClaims))
	s.metrics.ActiveStaff.Set(float64(counts.ActiveStaff))

	for name, checker := range s.checkers {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := checker.Ping(checkCtx)
		cancel()

		up := err == nil
		snap.Components[name] = up
		if up {
			s.metrics.ComponentUp.WithLabelValues(name).Set(1)
		} else {
			s.metrics.ComponentUp.WithLabelValues(name).Set(0)
			s.logger.Warn("Component health check failed", "component", name, "error", err.Error())
		}
	}

	if s.config.HostStats {
		if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
			snap.HostMemoryUsedPercent = vm.UsedPercent
		}
		if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
			snap.HostCPUPercent = pct[0]
		}
	}

	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
	return snap, nil
}

// Snapshot returns the cached snapshot, refreshing it first if none exists.
func (s *Service) Snapshot(ctx context.Context) (*model.PlatformSnapshot, error) {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}
	return s.Refresh(ctx)
}

// Record prepends an entry to the activity feed, dropping the oldest beyond
// ActivityLimit.
func (s *Service) Record(entry model.ActivityEntry) {
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	if entry.Level == "" {
		entry.Level = "info"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.activity) < ActivityLimit {
		s.activity = append(s.activity, model.ActivityEntry{})
	}
	copy(s.activity[1:], s.activity[:len(s.activity)-1])
	s.activity[0] = entry
}

// Activity returns up to limit feed entries, newest first. A non-positive
// limit returns all of them.
func (s *Service) Activity(limit int) []model.ActivityEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.activity) {
		limit = len(s.activity)
	}
	out := make([]model.ActivityEntry, limit)
	copy(out, s.activity[:limit])
	return out
}

// ClearActivity empties the feed.
func (s *Service) ClearActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = s.activity[:0]
}
