// Package store persists runs, harvested leads and the opt-out list,
// backed by SQLite for local use or PostgreSQL for shared deployments.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/sells-group/leadharvest/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// OptOutKind distinguishes address-level from domain-level suppression.
type OptOutKind string

const (
	OptOutEmail  OptOutKind = "email"
	OptOutDomain OptOutKind = "domain"
)

// OptOutEntry is one suppressed email address or domain.
type OptOutEntry struct {
	ID        string     `json:"id"`
	Value     string     `json:"value"`
	Kind      OptOutKind `json:"kind"`
	CreatedAt time.Time  `json:"created_at"`
}

// KindOfOptOut classifies a raw opt-out value: anything with an "@" is an
// address, everything else a domain.
func KindOfOptOut(value string) OptOutKind {
	if strings.Contains(value, "@") {
		return OptOutEmail
	}
	return OptOutDomain
}

// Store defines the persistence interface for the harvesting pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, req model.RunRequest) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, counters model.RunCounters) error
	FailRun(ctx context.Context, runID string, message string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Leads
	SaveLeads(ctx context.Context, runID string, leads []model.Lead) error
	ListLeads(ctx context.Context, runID string) ([]model.Lead, error)

	// Opt-out list
	AddOptOut(ctx context.Context, value string) (*OptOutEntry, error)
	RemoveOptOut(ctx context.Context, value string) error
	ListOptOuts(ctx context.Context) ([]OptOutEntry, error)
	IsOptedOut(ctx context.Context, email string) (bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
