// Package models defines the contract every external-service adapter must
// satisfy, along with the status and metrics types shared between the sync
// manager and the API layer.
package models

import (
	"encoding/json"
	"errors"
	"time"
)

// Sentinel errors shared by all integration adapters.
var (
	// ErrNotImplemented indicates a method the adapter does not support.
	ErrNotImplemented = errors.New("method not implemented")

	// ErrInvalidPayload indicates the payload handed to Send could not be
	// interpreted by the adapter.
	ErrInvalidPayload = errors.New("invalid integration payload")

	// ErrInitializationFailed indicates the adapter could not complete setup.
	ErrInitializationFailed = errors.New("integration initialization failed")

	// ErrConnectionFailed indicates the adapter lost or could not establish
	// its connection to the external service.
	ErrConnectionFailed = errors.New("integration connection failed")
)

// Integration is the capability set an external-service adapter must
// implement to be managed by the sync manager. Initialize is called exactly
// once, synchronously, during registration. Send and Status may be called
// concurrently with each other, but the manager never runs two Send calls
// for the same adapter instance at the same time.
type Integration interface {
	// Initialize prepares the adapter with the service configuration.
	// The adapter is not registered if this returns an error.
	Initialize(config interface{}) error

	// Send performs one unit of synchronization work against the external
	// service. It must be safe to call repeatedly.
	Send(payload interface{}) error

	// Status returns a best-effort health snapshot. It must not block.
	Status() (IntegrationStatus, error)
}

// Closer is an optional capability. Adapters holding sockets or other
// resources implement it to be disposed during manager shutdown.
type Closer interface {
	Close() error
}

// IntegrationStatus is an adapter-reported health snapshot. The sync manager
// passes it through unchanged when aggregating status.
type IntegrationStatus struct {
	// Connected reports whether the adapter currently has a usable
	// connection to the external service.
	Connected bool

	// Name is the human-readable identifier, e.g. "Slack".
	Name string

	// Type categorizes the integration: "chat", "email", "project_management".
	Type string

	// LastSync is the time of the most recent successful send.
	LastSync time.Time

	// LastError is the time of the most recent recorded error, zero if none.
	LastError time.Time

	// ErrorCount is the number of errors since the adapter was initialized.
	ErrorCount int

	// SuccessRate is successful sends over total attempts, in [0, 1].
	SuccessRate float64

	// Metadata carries adapter-specific diagnostic details.
	Metadata map[string]interface{}
}

// MarshalJSON renders timestamps as RFC3339 so status payloads are stable
// for logging and monitoring consumers.
func (s IntegrationStatus) MarshalJSON() ([]byte, error) {
	type alias struct {
		Connected   bool                   `json:"connected"`
		Name        string                 `json:"name"`
		Type        string                 `json:"type"`
		LastSync    string                 `json:"lastSync"`
		LastError   string                 `json:"lastError"`
		ErrorCount  int                    `json:"errorCount"`
		SuccessRate float64                `json:"successRate"`
		Metadata    map[string]interface{} `json:"metadata"`
	}

	return json.Marshal(alias{
		Connected:   s.Connected,
		Name:        s.Name,
		Type:        s.Type,
		LastSync:    s.LastSync.Format(time.RFC3339),
		LastError:   s.LastError.Format(time.RFC3339),
		ErrorCount:  s.ErrorCount,
		SuccessRate: s.SuccessRate,
		Metadata:    s.Metadata,
	})
}

// Heartbeat is the payload the sync scheduler delivers on each tick.
// Adapters treat it as a lightweight connectivity exercise rather than a
// user-visible message.
type Heartbeat struct {
	Timestamp time.Time
}

// SyncMetrics tracks per-integration counters maintained by the sync
// scheduler. A zero value is a valid starting state; the manager resets
// entries back to zero on shutdown.
type SyncMetrics struct {
	Attempts    int64     `json:"attempts"`
	Successes   int64     `json:"successes"`
	Failures    int64     `json:"failures"`
	LastAttempt time.Time `json:"lastAttempt"`
	LastSuccess time.Time `json:"lastSuccess"`
}
