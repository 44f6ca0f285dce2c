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

	"github.com/laborlens/archetype-cli/internal/db"
	"github.com/laborlens/archetype-cli/internal/model"
	"github.com/laborlens/archetype-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	retry   resilience.RetryConfig
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, maxConns, minConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	if maxConns <= 0 {
		maxConns = 10
	}
	if minConns <= 0 {
		minConns = 2
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{
		pool:    pool,
		retry:   resilience.DefaultRetryConfig(),
		closeFn: pool.Close,
	}, nil
}

// NewPostgresFromPool wraps an existing pool (used in tests with pgxmock).
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, retry: resilience.RetryConfig{MaxAttempts: 1}}
}

const postgresMigration = `
CREATE SCHEMA IF NOT EXISTS labor;

CREATE TABLE IF NOT EXISTS labor.oews_priors (
	metro_area_id     TEXT NOT NULL,
	canonical_role_id TEXT NOT NULL,
	naics_sector      TEXT NOT NULL DEFAULT '',
	year              INT NOT NULL,
	employment_total  INT NOT NULL,
	wage_p10          DOUBLE PRECISION NOT NULL DEFAULT 0,
	wage_p25          DOUBLE PRECISION NOT NULL DEFAULT 0,
	wage_p50          DOUBLE PRECISION NOT NULL DEFAULT 0,
	wage_p75          DOUBLE PRECISION NOT NULL DEFAULT 0,
	wage_p90          DOUBLE PRECISION NOT NULL DEFAULT 0,
	wage_mean         DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (metro_area_id, canonical_role_id, year)
);

CREATE TABLE IF NOT EXISTS labor.evidence (
	id                BIGSERIAL PRIMARY KEY,
	company_id        TEXT NOT NULL,
	metro_area_id     TEXT NOT NULL,
	canonical_role_id TEXT NOT NULL,
	source_type       TEXT NOT NULL,
	salary_min        DOUBLE PRECISION,
	salary_max        DOUBLE PRECISION,
	salary_point      DOUBLE PRECISION,
	collected_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_evidence_cell
	ON labor.evidence(metro_area_id, canonical_role_id);

CREATE TABLE IF NOT EXISTS labor.archetypes (
	company_id           TEXT NOT NULL DEFAULT '',
	metro_area_id        TEXT NOT NULL,
	canonical_role_id    TEXT NOT NULL,
	naics_sector         TEXT NOT NULL DEFAULT '',
	seniority            TEXT NOT NULL DEFAULT 'all',
	record_type          TEXT NOT NULL,
	headcount_p10        INT NOT NULL DEFAULT 0,
	headcount_p50        INT NOT NULL DEFAULT 0,
	headcount_p90        INT NOT NULL DEFAULT 0,
	salary_p25           DOUBLE PRECISION NOT NULL DEFAULT 0,
	salary_p50           DOUBLE PRECISION NOT NULL DEFAULT 0,
	salary_p75           DOUBLE PRECISION NOT NULL DEFAULT 0,
	composite_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (company_id, metro_area_id, canonical_role_id, seniority, record_type)
);

CREATE INDEX IF NOT EXISTS idx_archetypes_tier ON labor.archetypes(record_type);
CREATE INDEX IF NOT EXISTS idx_archetypes_sector ON labor.archetypes(naics_sector);

CREATE TABLE IF NOT EXISTS labor.batch_runs (
	id          UUID PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	params      JSONB NOT NULL DEFAULT '{}',
	summary     JSONB,
	error       TEXT,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);
`

// Migrate applies the labor schema DDL. Statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// UpsertArchetypes bulk-upserts records keyed by the natural key.
func (s *PostgresStore) UpsertArchetypes(ctx context.Context, records []model.Archetype) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	rows := make([][]any, len(records))
	for i, rec := range records {
		rows[i] = archetypeRow(rec)
	}

	cfg := db.UpsertConfig{
		Table:        "labor.archetypes",
		Columns:      archetypeColumns,
		ConflictKeys: archetypeConflictKeys,
	}
	return resilience.DoVal(ctx, s.retry, func(ctx context.Context) (int64, error) {
		return db.BulkUpsert(ctx, s.pool, cfg, rows)
	})
}

// ListArchetypes fetches records matching the filter.
func (s *PostgresStore) ListArchetypes(ctx context.Context, filter ArchetypeFilter) ([]model.Archetype, error) {
	query := `
		SELECT company_id, metro_area_id, canonical_role_id, naics_sector,
		       seniority, record_type,
		       headcount_p10, headcount_p50, headcount_p90,
		       salary_p25, salary_p50, salary_p75,
		       composite_confidence
		FROM labor.archetypes`

	var conds []string
	var args []any
	addCond := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		conds = append(conds, col+" = $"+itoa(len(args)))
	}
	addCond("record_type", string(filter.RecordType))
	addCond("metro_area_id", filter.MetroAreaID)
	addCond("naics_sector", filter.NAICSSector)

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY metro_area_id, canonical_role_id, company_id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list archetypes")
	}
	defer rows.Close()

	var out []model.Archetype
	for rows.Next() {
		var a model.Archetype
		var seniority, recordType string
		if err := rows.Scan(
			&a.CompanyID, &a.Key.MetroAreaID, &a.Key.CanonicalRoleID, &a.NAICSSector,
			&seniority, &recordType,
			&a.HeadcountP10, &a.HeadcountP50, &a.HeadcountP90,
			&a.SalaryP25, &a.SalaryP50, &a.SalaryP75,
			&a.CompositeConfidence,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan archetype")
		}
		a.Seniority = model.Seniority(seniority)
		a.RecordType = model.RecordType(recordType)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate archetypes")
}

// ReplaceSyntheticTier swaps the CbpSynthetic tier for the given rows in one
// transaction.
func (s *PostgresStore) ReplaceSyntheticTier(ctx context.Context, records []model.Archetype) error {
	return resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return eris.Wrap(err, "postgres: begin synthetic replace")
		}
		defer tx.Rollback(ctx) //nolint:errcheck

		if _, err := tx.Exec(ctx,
			`DELETE FROM labor.archetypes WHERE record_type = $1`,
			string(model.RecordCbpSynthetic),
		); err != nil {
			return eris.Wrap(err, "postgres: delete synthetic tier")
		}

		if len(records) > 0 {
			rows := make([][]any, len(records))
			for i, rec := range records {
				rows[i] = archetypeRow(rec)
			}
			if _, err := tx.CopyFrom(ctx, pgx.Identifier{"labor", "archetypes"}, archetypeColumns, pgx.CopyFromRows(rows)); err != nil {
				return eris.Wrap(err, "postgres: copy synthetic tier")
			}
		}

		return eris.Wrap(tx.Commit(ctx), "postgres: commit synthetic replace")
	})
}

// CountByTier returns row counts per record type.
func (s *PostgresStore) CountByTier(ctx context.Context) (map[model.RecordType]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT record_type, COUNT(*) FROM labor.archetypes GROUP BY record_type`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by tier")
	}
	defer rows.Close()

	out := make(map[model.RecordType]int64)
	for rows.Next() {
		var rt string
		var n int64
		if err := rows.Scan(&rt, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tier count")
		}
		out[model.RecordType(rt)] = n
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate tier counts")
}

// StartRun inserts a running batch-run record and returns its ID.
func (s *PostgresStore) StartRun(ctx context.Context, params RunParams) (string, error) {
	id := uuid.New().String()
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal run params")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO labor.batch_runs (id, status, params, started_at) VALUES ($1, $2, $3, $4)`,
		id, string(RunRunning), paramsJSON, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert batch run")
	}
	return id, nil
}

// CompleteRun marks a run complete with its summary.
func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, summary RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run summary")
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE labor.batch_runs SET status = $1, summary = $2, finished_at = $3 WHERE id = $4`,
		string(RunComplete), summaryJSON, time.Now().UTC(), runID,
	)
	return eris.Wrap(err, "postgres: complete batch run")
}

// FailRun marks a run failed with an error message.
func (s *PostgresStore) FailRun(ctx context.Context, runID string, message string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE labor.batch_runs SET status = $1, error = $2, finished_at = $3 WHERE id = $4`,
		string(RunFailed), message, time.Now().UTC(), runID,
	)
	return eris.Wrap(err, "postgres: fail batch run")
}

// LastRun returns the most recently started run, or nil if none exist.
func (s *PostgresStore) LastRun(ctx context.Context) (*RunRecord, error) {
	var rec RunRecord
	var status string
	var paramsJSON []byte
	var summaryJSON []byte
	var errMsg *string

	err := s.pool.QueryRow(ctx, `
		SELECT id, status, params, summary, error, started_at, finished_at
		FROM labor.batch_runs
		ORDER BY started_at DESC
		LIMIT 1`,
	).Scan(&rec.ID, &status, &paramsJSON, &summaryJSON, &errMsg, &rec.StartedAt, &rec.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: query last run")
	}

	rec.Status = RunStatus(status)
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &rec.Params); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run params")
		}
	}
	if len(summaryJSON) > 0 {
		if err := json.Unmarshal(summaryJSON, &rec.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run summary")
		}
	}
	if errMsg != nil {
		rec.Error = *errMsg
	}
	return &rec, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
