// Package adapters provides the concrete integration adapters (Slack,
// Email, Jira) managed by the sync manager.
package adapters

import (
	"sync"
	"time"

	"github.com/taskstream/integration-service/internal/models"
)

// statusTracker is the bookkeeping shared by all adapters: connection
// state, last sync/error timestamps, and success/failure tallies used to
// build IntegrationStatus snapshots.
type statusTracker struct {
	mu         sync.Mutex
	connected  bool
	lastSync   time.Time
	lastError  time.Time
	errorCount int
	successes  int
	attempts   int
}

func (t *statusTracker) setConnected(connected bool) {
	t.mu.Lock()
	t.connected = connected
	t.mu.Unlock()
}

func (t *statusTracker) recordSuccess() {
	t.mu.Lock()
	t.attempts++
	t.successes++
	t.lastSync = time.Now()
	t.connected = true
	t.mu.Unlock()
}

func (t *statusTracker) recordFailure() {
	t.mu.Lock()
	t.attempts++
	t.errorCount++
	t.lastError = time.Now()
	t.mu.Unlock()
}

// snapshot builds a status report. With no attempts yet the success rate
// reports 1.0: nothing has failed.
func (t *statusTracker) snapshot(name, integrationType string, metadata map[string]interface{}) models.IntegrationStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	rate := 1.0
	if t.attempts > 0 {
		rate = float64(t.successes) / float64(t.attempts)
	}

	return models.IntegrationStatus{
		Connected:   t.connected,
		Name:        name,
		Type:        integrationType,
		LastSync:    t.lastSync,
		LastError:   t.lastError,
		ErrorCount:  t.errorCount,
		SuccessRate: rate,
		Metadata:    metadata,
	}
}
