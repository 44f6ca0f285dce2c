package oews

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/laborlens/archetype-cli/internal/db"
	"github.com/laborlens/archetype-cli/internal/fetcher"
	"github.com/laborlens/archetype-cli/internal/model"
)

const (
	priorTable = "labor.oews_priors"
	batchSize  = 5000
)

var priorColumns = []string{
	"metro_area_id", "canonical_role_id", "naics_sector", "year",
	"employment_total",
	"wage_p10", "wage_p25", "wage_p50", "wage_p75", "wage_p90", "wage_mean",
}

var priorConflictKeys = []string{"metro_area_id", "canonical_role_id", "year"}

// Loader downloads an annual OEWS metro research file and bulk-upserts the
// mapped rows into the prior table.
type Loader struct {
	pool    db.Pool
	fetcher fetcher.Fetcher
	roleMap map[string]RoleMapping
}

// NewLoader builds a Loader. A nil roleMap falls back to DefaultRoleMap.
func NewLoader(pool db.Pool, f fetcher.Fetcher, roleMap map[string]RoleMapping) *Loader {
	if roleMap == nil {
		roleMap = DefaultRoleMap
	}
	return &Loader{pool: pool, fetcher: f, roleMap: roleMap}
}

// Sync downloads the metro research file for one reference year and loads it.
// Returns the number of prior rows upserted.
func (l *Loader) Sync(ctx context.Context, year int, tempDir string) (int64, error) {
	log := zap.L().With(zap.Int("year", year))

	url := fmt.Sprintf("https://www.bls.gov/oes/special-requests/oesm%02dma.zip", year%100)
	log.Info("downloading OEWS metro data", zap.String("url", url))

	zipPath := filepath.Join(tempDir, fmt.Sprintf("oews_%d.zip", year))
	if _, err := l.fetcher.DownloadToFile(ctx, url, zipPath); err != nil {
		return 0, eris.Wrapf(err, "oews: download year %d", year)
	}
	defer os.Remove(zipPath) //nolint:errcheck

	rows, err := l.processZip(ctx, zipPath, year)
	if err != nil {
		return 0, eris.Wrapf(err, "oews: process year %d", year)
	}

	log.Info("loaded OEWS priors", zap.Int64("rows", rows))
	return rows, nil
}

func (l *Loader) processZip(ctx context.Context, zipPath string, year int) (int64, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return 0, eris.Wrap(err, "oews: open zip")
	}
	defer zr.Close() //nolint:errcheck

	// First pass: the MSA file by name. BLS ships XLSX since ~2019 but
	// older years carry CSV or TXT.
	for _, zf := range zr.File {
		name := strings.ToLower(zf.Name)
		if !strings.Contains(name, "msa") {
			continue
		}
		switch {
		case strings.HasSuffix(name, ".xlsx"):
			return l.parseXLSX(ctx, zf, year)
		case strings.HasSuffix(name, ".csv"), strings.HasSuffix(name, ".txt"):
			rc, err := zf.Open()
			if err != nil {
				return 0, eris.Wrapf(err, "oews: open file %s", zf.Name)
			}
			n, err := l.parseCSV(ctx, rc, year)
			_ = rc.Close()
			return n, err
		}
	}

	// Second pass: any XLSX or CSV.
	for _, zf := range zr.File {
		name := strings.ToLower(zf.Name)
		switch {
		case strings.HasSuffix(name, ".xlsx"):
			return l.parseXLSX(ctx, zf, year)
		case strings.HasSuffix(name, ".csv"), strings.HasSuffix(name, ".txt"):
			rc, err := zf.Open()
			if err != nil {
				return 0, eris.Wrapf(err, "oews: open file %s", zf.Name)
			}
			n, err := l.parseCSV(ctx, rc, year)
			_ = rc.Close()
			return n, err
		}
	}

	return 0, eris.New("oews: no metro CSV or XLSX found in zip")
}

func (l *Loader) parseXLSX(ctx context.Context, zf *zip.File, year int) (int64, error) {
	// tealeg/xlsx needs a file path, so extract to a temp file first.
	rc, err := zf.Open()
	if err != nil {
		return 0, eris.Wrapf(err, "oews: open xlsx %s", zf.Name)
	}
	tmpFile, err := os.CreateTemp("", "oews-*.xlsx")
	if err != nil {
		_ = rc.Close()
		return 0, eris.Wrap(err, "oews: create temp xlsx")
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath) //nolint:errcheck

	if _, err := io.Copy(tmpFile, rc); err != nil {
		_ = tmpFile.Close()
		_ = rc.Close()
		return 0, eris.Wrap(err, "oews: extract xlsx")
	}
	_ = tmpFile.Close()
	_ = rc.Close()

	xlFile, err := xlsx.OpenFile(tmpPath)
	if err != nil {
		return 0, eris.Wrap(err, "oews: parse xlsx")
	}
	if len(xlFile.Sheets) == 0 {
		return 0, eris.New("oews: xlsx has no sheets")
	}
	sheet := xlFile.Sheets[0]
	if len(sheet.Rows) < 2 {
		return 0, eris.New("oews: xlsx sheet is empty")
	}

	headerRow := sheet.Rows[0]
	header := make([]string, len(headerRow.Cells))
	for i, cell := range headerRow.Cells {
		header[i] = strings.TrimSpace(cell.String())
	}
	colIdx := mapColumns(header)

	batch := newPriorBatch(l.pool)
	for rowIdx := 1; rowIdx < len(sheet.Rows); rowIdx++ {
		select {
		case <-ctx.Done():
			return batch.total, ctx.Err()
		default:
		}

		row := sheet.Rows[rowIdx]
		record := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			record[i] = strings.TrimSpace(cell.String())
		}

		prior, ok := l.mapRecord(record, colIdx, year)
		if !ok {
			continue
		}
		if err := batch.add(ctx, prior); err != nil {
			return batch.total, err
		}
	}

	return batch.total, batch.flush(ctx)
}

func (l *Loader) parseCSV(ctx context.Context, r io.Reader, year int) (int64, error) {
	// Older BLS files carry Latin-1 area titles.
	reader := csv.NewReader(charmap.ISO8859_1.NewDecoder().Reader(r))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, eris.Wrap(err, "oews: read CSV header")
	}
	colIdx := mapColumns(header)

	batch := newPriorBatch(l.pool)
	for {
		select {
		case <-ctx.Done():
			return batch.total, ctx.Err()
		default:
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		prior, ok := l.mapRecord(record, colIdx, year)
		if !ok {
			continue
		}
		if err := batch.add(ctx, prior); err != nil {
			return batch.total, err
		}
	}

	return batch.total, batch.flush(ctx)
}

// mapRecord converts one file record into a prior row. Rows for unmapped
// occupations or with suppressed employment are dropped.
func (l *Loader) mapRecord(record []string, colIdx map[string]int, year int) (model.OEWSPrior, bool) {
	occCode := trimQuotes(getCol(record, colIdx, "occ_code"))
	mapping, ok := l.roleMap[occCode]
	if !ok {
		return model.OEWSPrior{}, false
	}

	area := trimQuotes(getCol(record, colIdx, "area"))
	if area == "" {
		area = trimQuotes(getCol(record, colIdx, "area_code"))
	}
	if area == "" {
		return model.OEWSPrior{}, false
	}

	totEmp, ok := parseEmployment(getCol(record, colIdx, "tot_emp"))
	if !ok || totEmp <= 0 {
		return model.OEWSPrior{}, false
	}

	p50 := parseWage(getCol(record, colIdx, "a_median"))
	if p50 <= 0 {
		return model.OEWSPrior{}, false
	}

	return model.OEWSPrior{
		MetroAreaID:     area,
		CanonicalRoleID: mapping.CanonicalRoleID,
		NAICSSector:     mapping.NAICSSector,
		Year:            year,
		EmploymentTotal: totEmp,
		WageP10:         parseWage(getCol(record, colIdx, "a_pct10")),
		WageP25:         parseWage(getCol(record, colIdx, "a_pct25")),
		WageP50:         p50,
		WageP75:         parseWage(getCol(record, colIdx, "a_pct75")),
		WageP90:         parseWage(getCol(record, colIdx, "a_pct90")),
		WageMean:        parseWage(getCol(record, colIdx, "a_mean")),
	}, true
}

// priorBatch accumulates rows and upserts in chunks, deduplicating by
// conflict key within each chunk. Two SOC codes can map to the same
// canonical role; the higher-employment row wins.
type priorBatch struct {
	pool  db.Pool
	rows  [][]any
	emp   []int
	seen  map[string]int
	total int64
}

func newPriorBatch(pool db.Pool) *priorBatch {
	return &priorBatch{pool: pool, seen: make(map[string]int)}
}

func (b *priorBatch) add(ctx context.Context, p model.OEWSPrior) error {
	row := []any{
		p.MetroAreaID, p.CanonicalRoleID, p.NAICSSector, p.Year,
		p.EmploymentTotal,
		p.WageP10, p.WageP25, p.WageP50, p.WageP75, p.WageP90, p.WageMean,
	}

	key := fmt.Sprintf("%s|%s|%d", p.MetroAreaID, p.CanonicalRoleID, p.Year)
	if idx, exists := b.seen[key]; exists {
		if p.EmploymentTotal > b.emp[idx] {
			b.rows[idx] = row
			b.emp[idx] = p.EmploymentTotal
		}
		return nil
	}
	b.seen[key] = len(b.rows)
	b.rows = append(b.rows, row)
	b.emp = append(b.emp, p.EmploymentTotal)

	if len(b.rows) >= batchSize {
		return b.flush(ctx)
	}
	return nil
}

func (b *priorBatch) flush(ctx context.Context) error {
	if len(b.rows) == 0 {
		return nil
	}
	n, err := db.BulkUpsert(ctx, b.pool, db.UpsertConfig{
		Table:        priorTable,
		Columns:      priorColumns,
		ConflictKeys: priorConflictKeys,
	}, b.rows)
	if err != nil {
		return eris.Wrap(err, "oews: bulk upsert priors")
	}
	b.total += n
	b.rows = b.rows[:0]
	b.emp = b.emp[:0]
	b.seen = make(map[string]int)
	return nil
}
