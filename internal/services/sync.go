// Package services contains the synchronization manager that coordinates
// periodic data exchange between the service and its registered integration
// adapters.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/taskstream/integration-service/internal/config"
	"github.com/taskstream/integration-service/internal/models"
	"github.com/taskstream/integration-service/pkg/observability"
)

var (
	// ErrSyncFailed is returned when an operation still fails after all
	// retry attempts. It wraps the last underlying error.
	ErrSyncFailed = errors.New("sync operation failed")

	// ErrIntegrationExists is returned when registering a duplicate name.
	ErrIntegrationExists = errors.New("integration already registered")

	// ErrIntegrationNotFound is returned when a send targets an unknown
	// integration.
	ErrIntegrationNotFound = errors.New("integration not registered")

	// ErrInvalidRegistration is returned for an empty name or nil adapter.
	ErrInvalidRegistration = errors.New("invalid integration registration parameters")

	// ErrManagerStopped is returned when StartSync is called after the
	// manager's context has been canceled. A stopped manager cannot be
	// restarted; construct a new one.
	ErrManagerStopped = errors.New("sync manager already stopped")

	// ErrAlreadyRunning is returned when StartSync is called while the
	// scheduler loop is active.
	ErrAlreadyRunning = errors.New("sync already running")
)

// SyncManager owns the integration registry and drives the periodic
// synchronization loop. All exported methods are safe for concurrent use.
//
// The registry maps and the running flag are guarded by mu. Per-integration
// sync metrics live behind their own mutex because the scheduler mutates
// them while holding only the read side of mu.
type SyncManager struct {
	mu           sync.RWMutex
	integrations map[string]models.Integration
	running      bool

	metricsMu sync.Mutex
	metrics   map[string]*models.SyncMetrics

	cfg          *config.Config
	syncInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger        observability.Logger
	metricsClient observability.MetricsClient
}

// NewSyncManager validates the configuration and builds a manager. The
// logger and metrics client may be nil; no-op implementations are
// substituted.
func NewSyncManager(cfg *config.Config, logger observability.Logger, metricsClient observability.MetricsClient) (*SyncManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metricsClient == nil {
		metricsClient = observability.NewNoopMetricsClient()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &SyncManager{
		integrations:  make(map[string]models.Integration),
		metrics:       make(map[string]*models.SyncMetrics),
		cfg:           cfg,
		syncInterval:  cfg.Sync.Interval,
		ctx:           ctx,
		cancel:        cancel,
		logger:        logger.WithPrefix("sync"),
		metricsClient: metricsClient,
	}, nil
}

// RegisterIntegration adds an adapter under the given name and initializes
// it with the service configuration. Registration is atomic: if
// initialization fails, the registry is left unchanged.
func (sm *SyncManager) RegisterIntegration(name string, integration models.Integration) error {
	if name == "" || integration == nil {
		return ErrInvalidRegistration
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.integrations[name]; exists {
		return fmt.Errorf("%w: %q", ErrIntegrationExists, name)
	}

	if err := integration.Initialize(sm.cfg); err != nil {
		return fmt.Errorf("initializing integration %q: %w", name, err)
	}

	sm.integrations[name] = integration

	sm.metricsMu.Lock()
	sm.metrics[name] = &models.SyncMetrics{}
	sm.metricsMu.Unlock()

	sm.logger.Info("integration registered", map[string]interface{}{"integration": name})
	return nil
}

// StartSync launches the scheduler goroutine. It fails if the manager has
// been stopped or if the scheduler is already running.
func (sm *SyncManager) StartSync() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.ctx.Err() != nil {
		return ErrManagerStopped
	}
	if sm.running {
		return ErrAlreadyRunning
	}

	sm.running = true
	sm.wg.Add(1)
	go func() {
		defer sm.wg.Done()
		sm.syncLoop()
	}()

	sm.logger.Info("sync scheduler started", map[string]interface{}{
		"interval": sm.syncInterval.String(),
	})
	return nil
}

// StopSync cancels the scheduler, waits for in-flight work to finish,
// disposes adapters that implement Close, and resets all metrics. It is
// safe to call more than once; the manager is terminal afterwards.
func (sm *SyncManager) StopSync() error {
	sm.cancel()
	sm.wg.Wait()

	sm.mu.Lock()
	sm.running = false
	for name, integration := range sm.integrations {
		if closer, ok := integration.(models.Closer); ok {
			if err := closer.Close(); err != nil {
				sm.logger.Warn("closing integration", map[string]interface{}{
					"integration": name,
					"error":       err.Error(),
				})
			}
		}
	}
	sm.mu.Unlock()

	sm.metricsMu.Lock()
	for name := range sm.metrics {
		sm.metrics[name] = &models.SyncMetrics{}
	}
	sm.metricsMu.Unlock()

	sm.logger.Info("sync scheduler stopped", nil)
	return nil
}

// GetStatus collects each adapter's self-reported status into a fresh map.
// The map always holds one entry per registered integration; errors from
// individual Status calls are joined and returned alongside the map.
func (sm *SyncManager) GetStatus() (map[string]models.IntegrationStatus, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	statusMap := make(map[string]models.IntegrationStatus, len(sm.integrations))
	var errs []error

	for name, integration := range sm.integrations {
		st, err := integration.Status()
		if err != nil {
			errs = append(errs, fmt.Errorf("integration %q: %w", name, err))
		}
		statusMap[name] = st
	}

	return statusMap, errors.Join(errs...)
}

// GetMetrics returns a snapshot of the per-integration sync counters.
func (sm *SyncManager) GetMetrics() map[string]models.SyncMetrics {
	sm.metricsMu.Lock()
	defer sm.metricsMu.Unlock()

	out := make(map[string]models.SyncMetrics, len(sm.metrics))
	for name, m := range sm.metrics {
		out[name] = *m
	}
	return out
}

// SendMessage delivers a payload through the named integration, applying
// the same bounded-retry policy the scheduler uses. The caller's context
// governs cancellation.
func (sm *SyncManager) SendMessage(ctx context.Context, name string, payload interface{}) error {
	sm.mu.RLock()
	integration, ok := sm.integrations[name]
	sm.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrIntegrationNotFound, name)
	}

	start := time.Now()
	sm.recordAttempt(name)
	err := sm.RetryWithBackoff(ctx, func() error {
		return integration.Send(payload)
	})
	sm.recordResult(name, err, time.Since(start))
	return err
}

// RetryWithBackoff runs operation up to the configured number of attempts,
// sleeping with exponential backoff between failures. Cancellation takes
// priority over retry: the context is checked before every attempt, and the
// backoff sleep itself is interruptible. When all attempts fail, the last
// error is wrapped in ErrSyncFailed.
func (sm *SyncManager) RetryWithBackoff(ctx context.Context, operation func() error) error {
	attempts := sm.cfg.Sync.RetryAttempts
	backoff := sm.cfg.Sync.BackoffBase

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		if attempt == attempts {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff *= time.Duration(sm.cfg.Sync.BackoffFactor)
		if backoff > sm.cfg.Sync.BackoffMax {
			backoff = sm.cfg.Sync.BackoffMax
		}
	}

	return fmt.Errorf("%w: %w", ErrSyncFailed, lastErr)
}

// syncLoop runs until the manager's context is canceled, synchronizing
// every registered integration once per interval.
func (sm *SyncManager) syncLoop() {
	ticker := time.NewTicker(sm.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sm.ctx.Done():
			return
		case <-ticker.C:
			sm.syncTick()
		}
	}
}

// syncTick performs one pass over the registry. Adapters are processed
// sequentially under the read lock; a failure that exhausts its retries is
// counted and the pass moves on to the next adapter.
func (sm *SyncManager) syncTick() {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for name, integration := range sm.integrations {
		if sm.ctx.Err() != nil {
			return
		}

		start := time.Now()
		sm.recordAttempt(name)

		err := sm.RetryWithBackoff(sm.ctx, func() error {
			return integration.Send(models.Heartbeat{Timestamp: start})
		})
		sm.recordResult(name, err, time.Since(start))

		if err != nil && !errors.Is(err, context.Canceled) {
			sm.logger.Warn("integration sync failed", map[string]interface{}{
				"integration": name,
				"error":       err.Error(),
			})
		}
	}
}

func (sm *SyncManager) recordAttempt(name string) {
	now := time.Now()

	sm.metricsMu.Lock()
	if m, ok := sm.metrics[name]; ok {
		m.Attempts++
		m.LastAttempt = now
	}
	sm.metricsMu.Unlock()

	sm.metricsClient.IncrementCounter("sync_attempts_total", 1, map[string]string{"integration": name})
}

func (sm *SyncManager) recordResult(name string, err error, elapsed time.Duration) {
	now := time.Now()

	sm.metricsMu.Lock()
	if m, ok := sm.metrics[name]; ok {
		if err != nil {
			m.Failures++
		} else {
			m.Successes++
			m.LastSuccess = now
		}
	}
	sm.metricsMu.Unlock()

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	sm.metricsClient.IncrementCounter("sync_results_total", 1, map[string]string{
		"integration": name,
		"outcome":     outcome,
	})
	sm.metricsClient.RecordHistogram("sync_duration_seconds", elapsed.Seconds(), map[string]string{
		"integration": name,
	})
}
