// Package model defines the core data types shared across the harvesting
// pipeline: raw and canonical leads, runs, and their lifecycle states.
package model

import "time"

// RunStatus represents the lifecycle state of a harvesting run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// RunRequest is the run-creation contract consumed from external callers.
type RunRequest struct {
	Location        string         `json:"location"`
	Category        string         `json:"category"`
	RequireApproval bool           `json:"require_approval"`
	DryRun          bool           `json:"dry_run"`
	Providers       []string       `json:"providers,omitempty"`
	ProviderLimits  map[string]int `json:"provider_limits,omitempty"`
}

// RunCounters aggregates lead statistics for a completed run.
type RunCounters struct {
	TotalLeads         int `json:"total_leads"`
	TotalWebsitesFound int `json:"total_websites_found"`
	TotalEmailsFound   int `json:"total_emails_found"`
}

// Run is a single harvesting run. It is owned and mutated exclusively by the
// orchestrator for its lifetime.
type Run struct {
	ID              string         `json:"id"`
	Location        string         `json:"location"`
	Category        string         `json:"category"`
	Status          RunStatus      `json:"status"`
	RequireApproval bool           `json:"require_approval"`
	DryRun          bool           `json:"dry_run"`
	Providers       []string       `json:"providers,omitempty"`
	ProviderLimits  map[string]int `json:"provider_limits,omitempty"`
	Counters        RunCounters    `json:"counters"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}
