package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadharvest/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY,
	location         TEXT NOT NULL,
	category         TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'queued',
	require_approval INTEGER NOT NULL DEFAULT 0,
	dry_run          INTEGER NOT NULL DEFAULT 0,
	providers        TEXT,
	provider_limits  TEXT,
	counters         TEXT,
	error_message    TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at     DATETIME
);

CREATE TABLE IF NOT EXISTS leads (
	id               TEXT PRIMARY KEY,
	run_id           TEXT NOT NULL REFERENCES runs(id),
	business_name    TEXT NOT NULL,
	address          TEXT NOT NULL DEFAULT '',
	website          TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL DEFAULT '',
	phone            TEXT NOT NULL DEFAULT '',
	latitude         REAL,
	longitude        REAL,
	confidence_score REAL NOT NULL DEFAULT 0,
	sources          TEXT NOT NULL,
	enrichment       TEXT,
	notes            TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS opt_outs (
	id         TEXT PRIMARY KEY,
	value      TEXT NOT NULL UNIQUE,
	kind       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_leads_run_id ON leads(run_id);
CREATE INDEX IF NOT EXISTS idx_leads_score ON leads(confidence_score);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, req model.RunRequest) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	providersJSON, err := json.Marshal(req.Providers)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal providers")
	}
	limitsJSON, err := json.Marshal(req.ProviderLimits)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal provider limits")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, location, category, status, require_approval, dry_run, providers, provider_limits, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, req.Location, req.Category, string(model.RunStatusQueued),
		req.RequireApproval, req.DryRun, string(providersJSON), string(limitsJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:              id,
		Location:        req.Location,
		Category:        req.Category,
		Status:          model.RunStatusQueued,
		RequireApproval: req.RequireApproval,
		DryRun:          req.DryRun,
		Providers:       req.Providers,
		ProviderLimits:  req.ProviderLimits,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, counters model.RunCounters) error {
	countersJSON, err := json.Marshal(counters)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal counters")
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, counters = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusCompleted), string(countersJSON), now, now, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, message string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error_message = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), message, now, now, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

const sqliteRunColumns = `id, location, category, status, require_approval, dry_run, providers, provider_limits, counters, error_message, created_at, updated_at, completed_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`, runID)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveLeads(ctx context.Context, runID string, leads []model.Lead) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save leads")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM leads WHERE run_id = ?`, runID); err != nil {
		return eris.Wrapf(err, "sqlite: clear leads for run %s", runID)
	}

	for _, lead := range leads {
		sourcesJSON, err := json.Marshal(lead.Sources)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal sources")
		}
		enrichmentJSON, err := json.Marshal(lead.Enrichment)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal enrichment")
		}

		var lat, lon any
		if lead.Latitude != nil {
			lat = *lead.Latitude
		}
		if lead.Longitude != nil {
			lon = *lead.Longitude
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO leads (id, run_id, business_name, address, website, email, phone, latitude, longitude, confidence_score, sources, enrichment, notes, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			lead.ID, runID, lead.BusinessName, lead.Address, lead.Website, lead.Email, lead.Phone,
			lat, lon, lead.ConfidenceScore, string(sourcesJSON), string(enrichmentJSON),
			lead.Notes, lead.CreatedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert lead %s", lead.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save leads")
}

func (s *SQLiteStore) ListLeads(ctx context.Context, runID string) ([]model.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, business_name, address, website, email, phone, latitude, longitude, confidence_score, sources, enrichment, notes, created_at
		 FROM leads WHERE run_id = ? ORDER BY confidence_score DESC, business_name`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list leads for run %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var leads []model.Lead
	for rows.Next() {
		var lead model.Lead
		var lat, lon sql.NullFloat64
		var sourcesJSON, enrichmentJSON sql.NullString
		err := rows.Scan(&lead.ID, &lead.RunID, &lead.BusinessName, &lead.Address, &lead.Website,
			&lead.Email, &lead.Phone, &lat, &lon, &lead.ConfidenceScore,
			&sourcesJSON, &enrichmentJSON, &lead.Notes, &lead.CreatedAt)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		if lat.Valid {
			lead.Latitude = &lat.Float64
		}
		if lon.Valid {
			lead.Longitude = &lon.Float64
		}
		if sourcesJSON.Valid {
			if err := json.Unmarshal([]byte(sourcesJSON.String), &lead.Sources); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal sources")
			}
		}
		if enrichmentJSON.Valid && enrichmentJSON.String != "" {
			if err := json.Unmarshal([]byte(enrichmentJSON.String), &lead.Enrichment); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal enrichment")
			}
		}
		leads = append(leads, lead)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) AddOptOut(ctx context.Context, value string) (*OptOutEntry, error) {
	entry := &OptOutEntry{
		ID:        uuid.New().String(),
		Value:     strings.ToLower(strings.TrimSpace(value)),
		CreatedAt: time.Now().UTC(),
	}
	entry.Kind = KindOfOptOut(entry.Value)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO opt_outs (id, value, kind, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(value) DO NOTHING`,
		entry.ID, entry.Value, string(entry.Kind), entry.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: add opt-out %s", entry.Value)
	}
	return entry, nil
}

func (s *SQLiteStore) RemoveOptOut(ctx context.Context, value string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM opt_outs WHERE value = ?`, strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return eris.Wrapf(err, "sqlite: remove opt-out %s", value)
	}
	return checkRowsAffected(res, "opt-out", value)
}

func (s *SQLiteStore) ListOptOuts(ctx context.Context) ([]OptOutEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, value, kind, created_at FROM opt_outs ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list opt-outs")
	}
	defer rows.Close() //nolint:errcheck

	var entries []OptOutEntry
	for rows.Next() {
		var e OptOutEntry
		if err := rows.Scan(&e.ID, &e.Value, &e.Kind, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan opt-out")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list opt-outs iterate")
}

func (s *SQLiteStore) IsOptedOut(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	_, domain, _ := strings.Cut(email, "@")

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM opt_outs WHERE value = ? OR value = ?`,
		email, domain,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: opt-out lookup %s", email)
	}
	return n > 0, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var providersJSON, limitsJSON, countersJSON sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(&r.ID, &r.Location, &r.Category, &r.Status, &r.RequireApproval, &r.DryRun,
		&providersJSON, &limitsJSON, &countersJSON, &r.ErrorMessage,
		&r.CreatedAt, &r.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if providersJSON.Valid && providersJSON.String != "" {
		if err := json.Unmarshal([]byte(providersJSON.String), &r.Providers); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal providers")
		}
	}
	if limitsJSON.Valid && limitsJSON.String != "" {
		if err := json.Unmarshal([]byte(limitsJSON.String), &r.ProviderLimits); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal provider limits")
		}
	}
	if countersJSON.Valid && countersJSON.String != "" {
		if err := json.Unmarshal([]byte(countersJSON.String), &r.Counters); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal counters")
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	return &r, nil
}
