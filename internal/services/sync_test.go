package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/taskstream/integration-service/internal/config"
	"github.com/taskstream/integration-service/internal/models"
)

// stubIntegration is a minimal Integration with call counters and
// programmable failure behavior.
type stubIntegration struct {
	mu         sync.Mutex
	initCalls  int
	sendCalls  int32
	closeCalls int32

	initErr   error
	sendErr   error
	failUntil int32 // Send fails while sendCalls <= failUntil
	statusErr error
	status    models.IntegrationStatus
}

func (s *stubIntegration) Initialize(cfg interface{}) error {
	s.mu.Lock()
	s.initCalls++
	s.mu.Unlock()
	return s.initErr
}

func (s *stubIntegration) Send(payload interface{}) error {
	n := atomic.AddInt32(&s.sendCalls, 1)
	if s.sendErr != nil {
		return s.sendErr
	}
	if n <= atomic.LoadInt32(&s.failUntil) {
		return errors.New("transient failure")
	}
	return nil
}

func (s *stubIntegration) Status() (models.IntegrationStatus, error) {
	return s.status, s.statusErr
}

func (s *stubIntegration) sends() int32 {
	return atomic.LoadInt32(&s.sendCalls)
}

// closableIntegration additionally satisfies models.Closer.
type closableIntegration struct {
	stubIntegration
}

func (c *closableIntegration) Close() error {
	atomic.AddInt32(&c.closeCalls, 1)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Sync: config.SyncConfig{
			Interval:      20 * time.Millisecond,
			RetryAttempts: 3,
			BackoffBase:   2 * time.Millisecond,
			BackoffFactor: 2,
			BackoffMax:    20 * time.Millisecond,
		},
		Timeout: 5 * time.Second,
	}
}

func newTestManager(t *testing.T) *SyncManager {
	t.Helper()
	sm, err := NewSyncManager(testConfig(), nil, nil)
	require.NoError(t, err)
	return sm
}

func TestNewSyncManagerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Sync.RetryAttempts = 0

	_, err := NewSyncManager(cfg, nil, nil)
	require.Error(t, err)

	var cfgErr *config.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestRegisterIntegration(t *testing.T) {
	sm := newTestManager(t)

	stub := &stubIntegration{}
	require.NoError(t, sm.RegisterIntegration("slack", stub))
	assert.Equal(t, 1, stub.initCalls)

	// Duplicate names are rejected without touching the adapter again.
	err := sm.RegisterIntegration("slack", &stubIntegration{})
	assert.ErrorIs(t, err, ErrIntegrationExists)

	// A metrics slot exists for the registered integration.
	metrics := sm.GetMetrics()
	_, ok := metrics["slack"]
	assert.True(t, ok)
}

func TestRegisterIntegrationInvalidArgs(t *testing.T) {
	sm := newTestManager(t)

	assert.ErrorIs(t, sm.RegisterIntegration("", &stubIntegration{}), ErrInvalidRegistration)
	assert.ErrorIs(t, sm.RegisterIntegration("slack", nil), ErrInvalidRegistration)
}

func TestRegisterIntegrationInitFailureIsAtomic(t *testing.T) {
	sm := newTestManager(t)

	failing := &stubIntegration{initErr: errors.New("bad credentials")}
	err := sm.RegisterIntegration("jira", failing)
	require.Error(t, err)

	// The failed adapter left no trace; the name is free for reuse.
	_, ok := sm.GetMetrics()["jira"]
	assert.False(t, ok)
	assert.NoError(t, sm.RegisterIntegration("jira", &stubIntegration{}))
}

func TestRetryWithBackoffSucceedsAfterTransientFailures(t *testing.T) {
	sm := newTestManager(t)

	calls := 0
	err := sm.RetryWithBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoffStopsOnFirstSuccess(t *testing.T) {
	sm := newTestManager(t)

	calls := 0
	err := sm.RetryWithBackoff(context.Background(), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithBackoffExhaustion(t *testing.T) {
	sm := newTestManager(t)

	underlying := errors.New("connection refused")
	calls := 0
	err := sm.RetryWithBackoff(context.Background(), func() error {
		calls++
		return underlying
	})

	assert.Equal(t, sm.cfg.Sync.RetryAttempts, calls)
	assert.ErrorIs(t, err, ErrSyncFailed)
	assert.ErrorIs(t, err, underlying)
}

func TestRetryWithBackoffCancellationBeforeFirstAttempt(t *testing.T) {
	sm := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := sm.RetryWithBackoff(ctx, func() error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestRetryWithBackoffCancellationDuringBackoff(t *testing.T) {
	cfg := testConfig()
	cfg.Sync.BackoffBase = 500 * time.Millisecond
	cfg.Sync.BackoffMax = time.Second
	sm, err := NewSyncManager(cfg, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- sm.RetryWithBackoff(ctx, func() error {
			calls++
			return errors.New("transient")
		})
	}()

	// Let the first attempt fail, then cancel while the executor sleeps.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case retErr := <-done:
		assert.ErrorIs(t, retErr, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("retry did not return promptly after cancellation")
	}
	assert.Equal(t, 1, calls)
}

func TestSendMessageUnknownIntegration(t *testing.T) {
	sm := newTestManager(t)

	err := sm.SendMessage(context.Background(), "missing", "hello")
	assert.ErrorIs(t, err, ErrIntegrationNotFound)
}

func TestSendMessageRetriesAndRecordsMetrics(t *testing.T) {
	sm := newTestManager(t)

	stub := &stubIntegration{failUntil: 2}
	require.NoError(t, sm.RegisterIntegration("slack", stub))

	err := sm.SendMessage(context.Background(), "slack", "hello")
	require.NoError(t, err)
	assert.Equal(t, int32(3), stub.sends())

	m := sm.GetMetrics()["slack"]
	assert.Equal(t, int64(1), m.Attempts)
	assert.Equal(t, int64(1), m.Successes)
	assert.Equal(t, int64(0), m.Failures)
	assert.False(t, m.LastSuccess.IsZero())
}

func TestSendMessagePermanentFailure(t *testing.T) {
	sm := newTestManager(t)

	stub := &stubIntegration{sendErr: errors.New("boom")}
	require.NoError(t, sm.RegisterIntegration("email", stub))

	err := sm.SendMessage(context.Background(), "email", "hello")
	assert.ErrorIs(t, err, ErrSyncFailed)
	assert.Equal(t, int32(3), stub.sends())

	m := sm.GetMetrics()["email"]
	assert.Equal(t, int64(1), m.Attempts)
	assert.Equal(t, int64(1), m.Failures)
	assert.True(t, m.LastSuccess.IsZero())
}

func TestStartSyncGuards(t *testing.T) {
	sm := newTestManager(t)

	require.NoError(t, sm.StartSync())
	assert.ErrorIs(t, sm.StartSync(), ErrAlreadyRunning)

	require.NoError(t, sm.StopSync())
	assert.ErrorIs(t, sm.StartSync(), ErrManagerStopped)
}

func TestSyncLoopSendsHeartbeats(t *testing.T) {
	sm := newTestManager(t)

	stub := &stubIntegration{}
	require.NoError(t, sm.RegisterIntegration("slack", stub))
	require.NoError(t, sm.StartSync())

	assert.Eventually(t, func() bool {
		return stub.sends() >= 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, sm.StopSync())

	m := sm.GetMetrics()["slack"]
	assert.Equal(t, int64(0), m.Attempts, "metrics reset on stop")
}

func TestSyncLoopIsolatesFailingIntegration(t *testing.T) {
	sm := newTestManager(t)

	healthy := &stubIntegration{}
	broken := &stubIntegration{sendErr: errors.New("down")}
	require.NoError(t, sm.RegisterIntegration("healthy", healthy))
	require.NoError(t, sm.RegisterIntegration("broken", broken))
	require.NoError(t, sm.StartSync())

	assert.Eventually(t, func() bool {
		return healthy.sends() >= 2 && broken.sends() >= 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, sm.StopSync())
}

func TestStopSyncHaltsDeliveryAndClosesAdapters(t *testing.T) {
	defer goleak.VerifyNone(t)

	sm := newTestManager(t)

	adapter := &closableIntegration{}
	require.NoError(t, sm.RegisterIntegration("email", adapter))
	require.NoError(t, sm.StartSync())

	assert.Eventually(t, func() bool {
		return adapter.sends() >= 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, sm.StopSync())
	assert.Equal(t, int32(1), atomic.LoadInt32(&adapter.closeCalls))

	sent := adapter.sends()
	time.Sleep(3 * sm.syncInterval)
	assert.Equal(t, sent, adapter.sends(), "no deliveries after stop")
}

func TestStopSyncIsIdempotent(t *testing.T) {
	sm := newTestManager(t)
	require.NoError(t, sm.StartSync())

	require.NoError(t, sm.StopSync())
	require.NoError(t, sm.StopSync())
}

func TestStopSyncWithoutStart(t *testing.T) {
	sm := newTestManager(t)
	require.NoError(t, sm.StopSync())
}

func TestGetStatus(t *testing.T) {
	sm := newTestManager(t)

	ok := &stubIntegration{status: models.IntegrationStatus{Connected: true, Name: "slack", Type: "slack"}}
	bad := &stubIntegration{statusErr: errors.New("probe failed")}
	require.NoError(t, sm.RegisterIntegration("slack", ok))
	require.NoError(t, sm.RegisterIntegration("jira", bad))

	statuses, err := sm.GetStatus()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jira")

	// One entry per registered integration, even for the failing one.
	assert.Len(t, statuses, 2)
	assert.True(t, statuses["slack"].Connected)
}

func TestGetStatusEmptyRegistry(t *testing.T) {
	sm := newTestManager(t)

	statuses, err := sm.GetStatus()
	require.NoError(t, err)
	assert.Empty(t, statuses)
}

func TestGetMetricsReturnsSnapshot(t *testing.T) {
	sm := newTestManager(t)
	require.NoError(t, sm.RegisterIntegration("slack", &stubIntegration{}))

	snap := sm.GetMetrics()
	entry := snap["slack"]
	entry.Attempts = 99

	fresh := sm.GetMetrics()
	assert.Equal(t, int64(0), fresh["slack"].Attempts)
}

func TestConcurrentRegistrationAndSends(t *testing.T) {
	sm := newTestManager(t)
	require.NoError(t, sm.RegisterIntegration("slack", &stubIntegration{}))
	require.NoError(t, sm.StartSync())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sm.SendMessage(context.Background(), "slack", "ping")
			_, _ = sm.GetStatus()
			_ = sm.GetMetrics()
		}()
	}
	wg.Wait()

	require.NoError(t, sm.StopSync())
}
