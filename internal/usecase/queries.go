package usecase

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"docrag/internal/domain"
	"docrag/internal/port"
)

const exportSheet = "Queries"

// QueryDetail is a recorded query with its citations.
type QueryDetail struct {
	Query     domain.QueryRecord `json:"query"`
	Citations []domain.Citation  `json:"citations"`
}

// QueryUseCase reads and exports the query history.
type QueryUseCase struct {
	store port.ChunkStore
}

func NewQueryUseCase(store port.ChunkStore) *QueryUseCase {
	return &QueryUseCase{store: store}
}

// List returns up to limit queries, most recent first.
func (u *QueryUseCase) List(limit int) ([]domain.QueryRecord, error) {
	return u.store.ListQueries(limit)
}

// Show returns the query with its citations, highest score first.
func (u *QueryUseCase) Show(id string) (*QueryDetail, error) {
	rec, err := u.store.GetQuery(id)
	if err != nil {
		return nil, err
	}
	citations, err := u.store.ListCitations(id)
	if err != nil {
		return nil, fmt.Errorf("failed to list citations: %w", err)
	}
	if citations == nil {
		citations = []domain.Citation{}
	}
	return &QueryDetail{Query: rec, Citations: citations}, nil
}

var csvHeader = []string{"id", "created_at", "question", "model", "answer", "citations"}

// Export writes up to limit recent queries to w as "csv", "xlsx" or "json".
func (u *QueryUseCase) Export(w io.Writer, format string, limit int) (int, error) {
	records, err := u.store.ListQueries(limit)
	if err != nil {
		return 0, err
	}

	details := make([]QueryDetail, 0, len(records))
	for _, rec := range records {
		d, err := u.Show(rec.ID)
		if err != nil {
			return 0, err
		}
		details = append(details, *d)
	}

	switch strings.ToLower(format) {
	case "csv":
		return len(details), writeCSV(w, details)
	case "xlsx":
		return len(details), writeXLSX(w, details)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return len(details), enc.Encode(details)
	default:
		return 0, fmt.Errorf("unsupported export format: %s", format)
	}
}

func exportRow(d QueryDetail) []string {
	refs := make([]string, len(d.Citations))
	for i, c := range d.Citations {
		refs[i] = c.Filename + "#" + strconv.FormatUint(c.ChunkID, 10) + ":" + strconv.FormatFloat(c.Score, 'f', 4, 64)
	}
	return []string{
		d.Query.ID,
		d.Query.CreatedAt.UTC().Format(time.RFC3339),
		d.Query.Question,
		d.Query.Model,
		d.Query.Answer,
		strings.Join(refs, ";"),
	}
}

func writeCSV(w io.Writer, details []QueryDetail) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, d := range details {
		if err := cw.Write(exportRow(d)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeXLSX writes one workbook with a single sheet using the CSV columns.
func writeXLSX(w io.Writer, details []QueryDetail) error {
	book := excelize.NewFile()
	defer book.Close()

	if err := book.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}

	rows := make([][]string, 0, len(details)+1)
	rows = append(rows, csvHeader)
	for _, d := range details {
		rows = append(rows, exportRow(d))
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := book.SetSheetRow(exportSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := book.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
