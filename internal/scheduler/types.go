// Package scheduler implements the scheduled maintenance jobs for SkyCheck.
//
// This file defines the payload sent by EventBridge rules to the maintenance
// function. TaskType selects the job; ReferenceTime overrides "now" for
// manual runs.
package scheduler

import "time"

// TaskType identifies which maintenance job an event triggers.
type TaskType string

const (
	// TaskPurgeCounters removes usage counters whose day has ended.
	TaskPurgeCounters TaskType = "purge_expired_counters"
	// TaskProbeUpstreams fetches a briefing for the canary aerodromes.
	TaskProbeUpstreams TaskType = "probe_upstreams"
)

// MaintenancePayload is the EventBridge event body:
//
//	{
//	  "task": "purge_expired_counters",
//	  "reference_time": "2026-03-15T00:05:00Z"  // optional
//	}
type MaintenancePayload struct {
	Task TaskType `json:"task"`
	// ReferenceTime replaces time.Now().UTC() when set.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}
