// Package prior exposes the macro OEWS employment and wage priors per
// labor-market cell.
package prior

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/laborlens/archetype-cli/internal/db"
	"github.com/laborlens/archetype-cli/internal/model"
)

// Provider is a read-only lookup over the prior table. Get returns
// (nil, nil) when no prior exists for the cell; callers treat that as a
// missing-prior condition and skip the cell.
type Provider interface {
	Get(ctx context.Context, key model.MetroRoleKey, year int) (*model.OEWSPrior, error)
	Cells(ctx context.Context, year, limitMetros, limitRoles int) ([]model.MetroRoleKey, error)
}

// PostgresProvider implements Provider over labor.oews_priors.
type PostgresProvider struct {
	pool db.Pool
}

// NewPostgresProvider creates a provider. Returns nil if pool is nil.
func NewPostgresProvider(pool db.Pool) *PostgresProvider {
	if pool == nil {
		return nil
	}
	return &PostgresProvider{pool: pool}
}

// Get fetches the prior row for one cell and reference year.
func (p *PostgresProvider) Get(ctx context.Context, key model.MetroRoleKey, year int) (*model.OEWSPrior, error) {
	if !key.Valid() {
		return nil, eris.Errorf("prior: invalid cell key %q", key)
	}

	var row model.OEWSPrior
	err := p.pool.QueryRow(ctx, `
		SELECT metro_area_id, canonical_role_id, naics_sector, year, employment_total,
		       wage_p10, wage_p25, wage_p50, wage_p75, wage_p90, wage_mean
		FROM labor.oews_priors
		WHERE metro_area_id = $1 AND canonical_role_id = $2 AND year = $3`,
		key.MetroAreaID, key.CanonicalRoleID, year,
	).Scan(
		&row.MetroAreaID, &row.CanonicalRoleID, &row.NAICSSector, &row.Year, &row.EmploymentTotal,
		&row.WageP10, &row.WageP25, &row.WageP50, &row.WageP75, &row.WageP90, &row.WageMean,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "prior: query %s year %d", key, year)
	}

	return &row, nil
}

// Cells enumerates every cell with a prior for the reference year. The debug
// caps restrict how many distinct metros and roles are visited; zero means
// no cap.
func (p *PostgresProvider) Cells(ctx context.Context, year, limitMetros, limitRoles int) ([]model.MetroRoleKey, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT metro_area_id, canonical_role_id
		FROM labor.oews_priors
		WHERE year = $1
		ORDER BY metro_area_id, canonical_role_id`,
		year,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "prior: list cells for year %d", year)
	}
	defer rows.Close()

	metros := make(map[string]bool)
	roles := make(map[string]bool)
	var keys []model.MetroRoleKey
	for rows.Next() {
		var key model.MetroRoleKey
		if err := rows.Scan(&key.MetroAreaID, &key.CanonicalRoleID); err != nil {
			return nil, eris.Wrap(err, "prior: scan cell row")
		}

		if limitMetros > 0 && !metros[key.MetroAreaID] && len(metros) >= limitMetros {
			continue
		}
		if limitRoles > 0 && !roles[key.CanonicalRoleID] && len(roles) >= limitRoles {
			continue
		}
		metros[key.MetroAreaID] = true
		roles[key.CanonicalRoleID] = true
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "prior: iterate cell rows")
	}

	return keys, nil
}

// StaticProvider serves priors from memory. Used in tests and dry runs.
type StaticProvider struct {
	rows map[string]model.OEWSPrior // keyed by MetroRoleKey.String()
}

// NewStaticProvider builds a provider from a fixed set of prior rows.
func NewStaticProvider(priors []model.OEWSPrior) *StaticProvider {
	rows := make(map[string]model.OEWSPrior, len(priors))
	for _, p := range priors {
		rows[p.Key().String()] = p
	}
	return &StaticProvider{rows: rows}
}

// Get returns the prior for the cell, or (nil, nil) if absent or the year
// does not match.
func (s *StaticProvider) Get(_ context.Context, key model.MetroRoleKey, year int) (*model.OEWSPrior, error) {
	p, ok := s.rows[key.String()]
	if !ok || p.Year != year {
		return nil, nil
	}
	return &p, nil
}

// Cells lists the stored cells, honoring the same debug caps as the
// Postgres provider.
func (s *StaticProvider) Cells(_ context.Context, year, limitMetros, limitRoles int) ([]model.MetroRoleKey, error) {
	metros := make(map[string]bool)
	roles := make(map[string]bool)
	var keys []model.MetroRoleKey
	for _, p := range s.rows {
		if p.Year != year {
			continue
		}
		keys = append(keys, p.Key())
	}
	// Map iteration is unordered; sort for deterministic batches.
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	var out []model.MetroRoleKey
	for _, key := range keys {
		if limitMetros > 0 && !metros[key.MetroAreaID] && len(metros) >= limitMetros {
			continue
		}
		if limitRoles > 0 && !roles[key.CanonicalRoleID] && len(roles) >= limitRoles {
			continue
		}
		metros[key.MetroAreaID] = true
		roles[key.CanonicalRoleID] = true
		out = append(out, key)
	}
	return out, nil
}
