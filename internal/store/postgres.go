package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadharvest/internal/db"
	"github.com/sells-group/leadharvest/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const pgRunColumns = `id, location, category, status, require_approval, dry_run, providers, provider_limits, counters, error_message, created_at, updated_at, completed_at`

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run": `INSERT INTO runs (id, location, category, status, require_approval, dry_run, providers, provider_limits, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"get_run":           `SELECT ` + pgRunColumns + ` FROM runs WHERE id = $1`,
	"opt_out_lookup":    `SELECT COUNT(*) FROM opt_outs WHERE value = $1 OR value = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// Pool exposes the underlying pool for bulk operations such as opt-out
// list imports.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	location         TEXT NOT NULL,
	category         TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'queued',
	require_approval BOOLEAN NOT NULL DEFAULT false,
	dry_run          BOOLEAN NOT NULL DEFAULT false,
	providers        JSONB,
	provider_limits  JSONB,
	counters         JSONB,
	error_message    TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS leads (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id           TEXT NOT NULL REFERENCES runs(id),
	business_name    TEXT NOT NULL,
	address          TEXT NOT NULL DEFAULT '',
	website          TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL DEFAULT '',
	phone            TEXT NOT NULL DEFAULT '',
	latitude         DOUBLE PRECISION,
	longitude        DOUBLE PRECISION,
	confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	sources          JSONB NOT NULL,
	enrichment       JSONB,
	notes            TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS opt_outs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	value      TEXT NOT NULL UNIQUE,
	kind       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_leads_run_id ON leads(run_id);
CREATE INDEX IF NOT EXISTS idx_leads_score ON leads(confidence_score);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, req model.RunRequest) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	providersJSON, err := json.Marshal(req.Providers)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal providers")
	}
	limitsJSON, err := json.Marshal(req.ProviderLimits)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal provider limits")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, location, category, status, require_approval, dry_run, providers, provider_limits, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, req.Location, req.Category, string(model.RunStatusQueued),
		req.RequireApproval, req.DryRun, providersJSON, limitsJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
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

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, counters model.RunCounters) error {
	countersJSON, err := json.Marshal(counters)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal counters")
	}
	now := time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, counters = $2, updated_at = $3, completed_at = $4 WHERE id = $5`,
		string(model.RunStatusCompleted), countersJSON, now, now, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, message string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error_message = $2, updated_at = $3, completed_at = $4 WHERE id = $5`,
		string(model.RunStatusFailed), message, now, now, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgRunColumns+` FROM runs WHERE id = $1`, runID)
	run, err := scanPgRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + pgRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

var leadColumns = []string{
	"id", "run_id", "business_name", "address", "website", "email", "phone",
	"latitude", "longitude", "confidence_score", "sources", "enrichment", "notes", "created_at",
}

func (s *PostgresStore) SaveLeads(ctx context.Context, runID string, leads []model.Lead) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE run_id = $1`, runID); err != nil {
		return eris.Wrapf(err, "postgres: clear leads for run %s", runID)
	}

	rows := make([][]any, 0, len(leads))
	for _, lead := range leads {
		sourcesJSON, err := json.Marshal(lead.Sources)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal sources")
		}
		enrichmentJSON, err := json.Marshal(lead.Enrichment)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal enrichment")
		}
		rows = append(rows, []any{
			lead.ID, runID, lead.BusinessName, lead.Address, lead.Website, lead.Email, lead.Phone,
			lead.Latitude, lead.Longitude, lead.ConfidenceScore, sourcesJSON, enrichmentJSON,
			lead.Notes, lead.CreatedAt.UTC(),
		})
	}

	_, err := db.CopyFrom(ctx, s.pool, "leads", leadColumns, rows)
	return eris.Wrapf(err, "postgres: save leads for run %s", runID)
}

func (s *PostgresStore) ListLeads(ctx context.Context, runID string) ([]model.Lead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, business_name, address, website, email, phone, latitude, longitude, confidence_score, sources, enrichment, notes, created_at
		 FROM leads WHERE run_id = $1 ORDER BY confidence_score DESC, business_name`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list leads for run %s", runID)
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		var lead model.Lead
		var sourcesJSON, enrichmentJSON []byte
		err := rows.Scan(&lead.ID, &lead.RunID, &lead.BusinessName, &lead.Address, &lead.Website,
			&lead.Email, &lead.Phone, &lead.Latitude, &lead.Longitude, &lead.ConfidenceScore,
			&sourcesJSON, &enrichmentJSON, &lead.Notes, &lead.CreatedAt)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		if len(sourcesJSON) > 0 {
			if err := json.Unmarshal(sourcesJSON, &lead.Sources); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal sources")
			}
		}
		if len(enrichmentJSON) > 0 {
			if err := json.Unmarshal(enrichmentJSON, &lead.Enrichment); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal enrichment")
			}
		}
		leads = append(leads, lead)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) AddOptOut(ctx context.Context, value string) (*OptOutEntry, error) {
	entry := &OptOutEntry{
		ID:        uuid.New().String(),
		Value:     strings.ToLower(strings.TrimSpace(value)),
		CreatedAt: time.Now().UTC(),
	}
	entry.Kind = KindOfOptOut(entry.Value)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO opt_outs (id, value, kind, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (value) DO NOTHING`,
		entry.ID, entry.Value, string(entry.Kind), entry.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: add opt-out %s", entry.Value)
	}
	return entry, nil
}

func (s *PostgresStore) RemoveOptOut(ctx context.Context, value string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM opt_outs WHERE value = $1`, strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return eris.Wrapf(err, "postgres: remove opt-out %s", value)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("opt-out not found: %s", value)
	}
	return nil
}

func (s *PostgresStore) ListOptOuts(ctx context.Context) ([]OptOutEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, value, kind, created_at FROM opt_outs ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list opt-outs")
	}
	defer rows.Close()

	var entries []OptOutEntry
	for rows.Next() {
		var e OptOutEntry
		if err := rows.Scan(&e.ID, &e.Value, &e.Kind, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan opt-out")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list opt-outs iterate")
}

func (s *PostgresStore) IsOptedOut(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	_, domain, _ := strings.Cut(email, "@")

	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM opt_outs WHERE value = $1 OR value = $2`,
		email, domain,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: opt-out lookup %s", email)
	}
	return n > 0, nil
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var providersJSON, limitsJSON, countersJSON []byte
	var completedAt *time.Time

	err := row.Scan(&r.ID, &r.Location, &r.Category, &r.Status, &r.RequireApproval, &r.DryRun,
		&providersJSON, &limitsJSON, &countersJSON, &r.ErrorMessage,
		&r.CreatedAt, &r.UpdatedAt, &completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, err
	}

	if len(providersJSON) > 0 {
		if err := json.Unmarshal(providersJSON, &r.Providers); err != nil {
			return nil, eris.Wrap(err, "unmarshal providers")
		}
	}
	if len(limitsJSON) > 0 {
		if err := json.Unmarshal(limitsJSON, &r.ProviderLimits); err != nil {
			return nil, eris.Wrap(err, "unmarshal provider limits")
		}
	}
	if len(countersJSON) > 0 {
		if err := json.Unmarshal(countersJSON, &r.Counters); err != nil {
			return nil, eris.Wrap(err, "unmarshal counters")
		}
	}
	r.CompletedAt = completedAt
	return &r, nil
}

