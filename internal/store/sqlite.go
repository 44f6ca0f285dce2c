package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/laborlens/archetype-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local dry
// runs and development without a Postgres instance.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqlDB}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS oews_priors (
	metro_area_id     TEXT NOT NULL,
	canonical_role_id TEXT NOT NULL,
	naics_sector      TEXT NOT NULL DEFAULT '',
	year              INTEGER NOT NULL,
	employment_total  INTEGER NOT NULL,
	wage_p10          REAL NOT NULL DEFAULT 0,
	wage_p25          REAL NOT NULL DEFAULT 0,
	wage_p50          REAL NOT NULL DEFAULT 0,
	wage_p75          REAL NOT NULL DEFAULT 0,
	wage_p90          REAL NOT NULL DEFAULT 0,
	wage_mean         REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (metro_area_id, canonical_role_id, year)
);

CREATE TABLE IF NOT EXISTS evidence (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id        TEXT NOT NULL,
	metro_area_id     TEXT NOT NULL,
	canonical_role_id TEXT NOT NULL,
	source_type       TEXT NOT NULL,
	salary_min        REAL,
	salary_max        REAL,
	salary_point      REAL,
	collected_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_evidence_cell ON evidence(metro_area_id, canonical_role_id);

CREATE TABLE IF NOT EXISTS archetypes (
	company_id           TEXT NOT NULL DEFAULT '',
	metro_area_id        TEXT NOT NULL,
	canonical_role_id    TEXT NOT NULL,
	naics_sector         TEXT NOT NULL DEFAULT '',
	seniority            TEXT NOT NULL DEFAULT 'all',
	record_type          TEXT NOT NULL,
	headcount_p10        INTEGER NOT NULL DEFAULT 0,
	headcount_p50        INTEGER NOT NULL DEFAULT 0,
	headcount_p90        INTEGER NOT NULL DEFAULT 0,
	salary_p25           REAL NOT NULL DEFAULT 0,
	salary_p50           REAL NOT NULL DEFAULT 0,
	salary_p75           REAL NOT NULL DEFAULT 0,
	composite_confidence REAL NOT NULL DEFAULT 0,
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (company_id, metro_area_id, canonical_role_id, seniority, record_type)
);

CREATE INDEX IF NOT EXISTS idx_archetypes_tier ON archetypes(record_type);
CREATE INDEX IF NOT EXISTS idx_archetypes_sector ON archetypes(naics_sector);

CREATE TABLE IF NOT EXISTS batch_runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	params      TEXT NOT NULL DEFAULT '{}',
	summary     TEXT,
	error       TEXT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);
`

// Migrate applies the schema DDL. Statements are idempotent.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteUpsert = `
INSERT INTO archetypes (
	company_id, metro_area_id, canonical_role_id, naics_sector,
	seniority, record_type,
	headcount_p10, headcount_p50, headcount_p90,
	salary_p25, salary_p50, salary_p75,
	composite_confidence
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (company_id, metro_area_id, canonical_role_id, seniority, record_type)
DO UPDATE SET
	naics_sector = excluded.naics_sector,
	headcount_p10 = excluded.headcount_p10,
	headcount_p50 = excluded.headcount_p50,
	headcount_p90 = excluded.headcount_p90,
	salary_p25 = excluded.salary_p25,
	salary_p50 = excluded.salary_p50,
	salary_p75 = excluded.salary_p75,
	composite_confidence = excluded.composite_confidence,
	updated_at = datetime('now')`

// UpsertArchetypes upserts records one statement at a time inside a
// transaction.
func (s *SQLiteStore) UpsertArchetypes(ctx context.Context, records []model.Archetype) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, archetypeRow(rec)...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert archetype %s/%s", rec.CompanyID, rec.Key)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return int64(len(records)), nil
}

// ListArchetypes fetches records matching the filter.
func (s *SQLiteStore) ListArchetypes(ctx context.Context, filter ArchetypeFilter) ([]model.Archetype, error) {
	query := `
		SELECT company_id, metro_area_id, canonical_role_id, naics_sector,
		       seniority, record_type,
		       headcount_p10, headcount_p50, headcount_p90,
		       salary_p25, salary_p50, salary_p75,
		       composite_confidence
		FROM archetypes`

	var conds []string
	var args []any
	if filter.RecordType != "" {
		conds = append(conds, "record_type = ?")
		args = append(args, string(filter.RecordType))
	}
	if filter.MetroAreaID != "" {
		conds = append(conds, "metro_area_id = ?")
		args = append(args, filter.MetroAreaID)
	}
	if filter.NAICSSector != "" {
		conds = append(conds, "naics_sector = ?")
		args = append(args, filter.NAICSSector)
	}
	if len(conds) > 0 {
		query += " WHERE " + joinAnd(conds)
	}
	query += " ORDER BY metro_area_id, canonical_role_id, company_id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list archetypes")
	}
	defer rows.Close() //nolint:errcheck

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
			return nil, eris.Wrap(err, "sqlite: scan archetype")
		}
		a.Seniority = model.Seniority(seniority)
		a.RecordType = model.RecordType(recordType)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate archetypes")
}

// ReplaceSyntheticTier swaps the CbpSynthetic tier inside a transaction.
func (s *SQLiteStore) ReplaceSyntheticTier(ctx context.Context, records []model.Archetype) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin synthetic replace")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM archetypes WHERE record_type = ?`,
		string(model.RecordCbpSynthetic),
	); err != nil {
		return eris.Wrap(err, "sqlite: delete synthetic tier")
	}

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare synthetic insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, archetypeRow(rec)...); err != nil {
			return eris.Wrapf(err, "sqlite: insert synthetic archetype %s", rec.Key)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit synthetic replace")
}

// CountByTier returns row counts per record type.
func (s *SQLiteStore) CountByTier(ctx context.Context) (map[model.RecordType]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record_type, COUNT(*) FROM archetypes GROUP BY record_type`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by tier")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[model.RecordType]int64)
	for rows.Next() {
		var rt string
		var n int64
		if err := rows.Scan(&rt, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tier count")
		}
		out[model.RecordType(rt)] = n
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate tier counts")
}

// StartRun inserts a running batch-run record and returns its ID.
func (s *SQLiteStore) StartRun(ctx context.Context, params RunParams) (string, error) {
	id := uuid.New().String()
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal run params")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO batch_runs (id, status, params, started_at) VALUES (?, ?, ?, ?)`,
		id, string(RunRunning), string(paramsJSON), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert batch run")
	}
	return id, nil
}

// CompleteRun marks a run complete with its summary.
func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summary RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run summary")
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE batch_runs SET status = ?, summary = ?, finished_at = ? WHERE id = ?`,
		string(RunComplete), string(summaryJSON), time.Now().UTC(), runID,
	)
	return eris.Wrap(err, "sqlite: complete batch run")
}

// FailRun marks a run failed with an error message.
func (s *SQLiteStore) FailRun(ctx context.Context, runID string, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE batch_runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(RunFailed), message, time.Now().UTC(), runID,
	)
	return eris.Wrap(err, "sqlite: fail batch run")
}

// LastRun returns the most recently started run, or nil if none exist.
func (s *SQLiteStore) LastRun(ctx context.Context) (*RunRecord, error) {
	var rec RunRecord
	var status string
	var paramsJSON string
	var summaryJSON, errMsg sql.NullString
	var finished sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, params, summary, error, started_at, finished_at
		FROM batch_runs
		ORDER BY started_at DESC
		LIMIT 1`,
	).Scan(&rec.ID, &status, &paramsJSON, &summaryJSON, &errMsg, &rec.StartedAt, &finished)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: query last run")
	}

	rec.Status = RunStatus(status)
	if paramsJSON != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &rec.Params); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run params")
		}
	}
	if summaryJSON.Valid && summaryJSON.String != "" {
		if err := json.Unmarshal([]byte(summaryJSON.String), &rec.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run summary")
		}
	}
	if errMsg.Valid {
		rec.Error = errMsg.String
	}
	if finished.Valid {
		t := finished.Time
		rec.FinishedAt = &t
	}
	return &rec, nil
}

func joinAnd(conds []string) string {
	out := conds[0]
	for _, c := range conds[1:] {
		out += " AND " + c
	}
	return out
}
