// Package importer loads the achievement catalog from spreadsheets or JSON
// files prepared by the content team.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/learnhub/learnhub/internal/domain/progression"
	"github.com/learnhub/learnhub/internal/domain/shared"
)

// ImportConfig defines where the catalog rows live.
//
// Spreadsheet columns, in order: code, name, description, criteria type,
// threshold, icon.
type ImportConfig struct {
	FilePath string

	// SheetName defaults to the first sheet.
	SheetName string

	// StartRow is 1-based; the default 2 skips the header.
	StartRow int
}

// DefaultImportConfig returns the default import configuration.
func DefaultImportConfig(path string) ImportConfig {
	return ImportConfig{FilePath: path, StartRow: 2}
}

// ImportResult holds the outcome of reading a catalog file.
type ImportResult struct {
	TotalProcessed int
	Skipped        int
	Written        int

	// Accepted are the valid entries, in file order.
	Accepted []progression.Achievement

	// Errors describe rejected rows, e.g. "row 4: unknown criteria kind".
	Errors []string
}

// CatalogWriter stores catalog entries by code.
type CatalogWriter interface {
	UpsertCatalog(ctx context.Context, items []progression.Achievement) (int, error)
}

// Import reads the file and upserts every valid entry. Invalid rows are
// reported in the result and do not stop the import; with dryRun nothing is
// written.
func Import(ctx context.Context, store CatalogWriter, config ImportConfig, dryRun bool) (*ImportResult, error) {
	result, err := Read(config)
	if err != nil {
		return nil, err
	}
	if dryRun || len(result.Accepted) == 0 {
		return result, nil
	}

	n, err := store.UpsertCatalog(ctx, result.Accepted)
	if err != nil {
		return result, fmt.Errorf("importer: upsert catalog: %w", err)
	}
	result.Written = n
	return result, nil
}

// Read parses a .xlsx or .json catalog file without writing anything.
func Read(config ImportConfig) (*ImportResult, error) {
	switch ext := strings.ToLower(filepath.Ext(config.FilePath)); ext {
	case ".xlsx", ".xlsm":
		return readExcel(config)
	case ".json":
		return readJSON(config)
	default:
		return nil, shared.NewDomainError("importer", "Read", shared.ErrInvalidFormat,
			fmt.Sprintf("unsupported catalog file type %q", ext))
	}
}

func readExcel(config ImportConfig) (*ImportResult, error) {
	f, err := excelize.OpenFile(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("importer: open spreadsheet: %w", err)
	}
	defer f.Close()

	sheet := config.SheetName
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("importer: read sheet %q: %w", sheet, err)
	}

	start := config.StartRow
	if start < 1 {
		start = 1
	}

	c := newCollector()
	for i, row := range rows {
		if i < start-1 {
			continue
		}
		if blank(row) {
			continue
		}
		a, err := parseRow(row)
		c.add(i+1, a, err)
	}
	return c.result, nil
}

type jsonEntry struct {
	Code        string               `json:"code"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Criteria    progression.Criteria `json:"criteria"`
	Icon        string               `json:"icon"`
}

func readJSON(config ImportConfig) (*ImportResult, error) {
	raw, err := os.ReadFile(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("importer: read file: %w", err)
	}
	var entries []jsonEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, shared.WrapError("importer", "Read", shared.ErrInvalidFormat, "catalog must be a JSON array", err)
	}

	c := newCollector()
	for i, e := range entries {
		a, err := build(e.Code, e.Name, e.Description, string(e.Criteria.Kind), e.Criteria.Threshold, e.Icon)
		c.add(i+1, a, err)
	}
	return c.result, nil
}

// parseRow maps one spreadsheet row. Missing trailing cells read as empty.
func parseRow(row []string) (progression.Achievement, error) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	threshold, err := strconv.Atoi(cell(4))
	if err != nil {
		return progression.Achievement{}, shared.WrapError("importer", "ParseRow", shared.ErrInvalidFormat,
			"threshold must be an integer", err)
	}
	return build(cell(0), cell(1), cell(2), cell(3), threshold, cell(5))
}

func build(code, name, description, kind string, threshold int, icon string) (progression.Achievement, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return progression.Achievement{}, shared.ValidationError("importer", "ParseRow", "code is required")
	}
	if strings.TrimSpace(name) == "" {
		return progression.Achievement{}, shared.ValidationError("importer", "ParseRow", "name is required")
	}
	criteria, err := progression.NewCriteria(progression.CriteriaKind(kind), threshold)
	if err != nil {
		return progression.Achievement{}, err
	}
	return progression.Achievement{
		Code:        code,
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Criteria:    criteria,
		Icon:        strings.TrimSpace(icon),
	}, nil
}

type collector struct {
	result *ImportResult
	seen   map[string]int
}

func newCollector() *collector {
	return &collector{result: &ImportResult{}, seen: make(map[string]int)}
}

// add records one parsed row. A code repeated later in the file is rejected
// so the first definition wins.
func (c *collector) add(line int, a progression.Achievement, err error) {
	c.result.TotalProcessed++
	if err == nil {
		if first, dup := c.seen[a.Code]; dup {
			err = fmt.Errorf("duplicate code %q (first defined at row %d)", a.Code, first)
		}
	}
	if err != nil {
		c.result.Skipped++
		c.result.Errors = append(c.result.Errors, fmt.Sprintf("row %d: %v", line, err))
		return
	}
	c.seen[a.Code] = line
	c.result.Accepted = append(c.result.Accepted, a)
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
