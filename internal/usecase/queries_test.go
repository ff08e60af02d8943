package usecase

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"

	"docrag/internal/domain"
)

func TestQueryUseCase_ShowAndExport(t *testing.T) {
	f := newFixture(t, defaultBuildOptions(), RetrieveOptions{TopK: 2})
	buildCorpus(t, f)

	first, err := f.retrieve.Retrieve(context.Background(), corpus[0], 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.retrieve.Retrieve(context.Background(), corpus[1], 2); err != nil {
		t.Fatal(err)
	}

	uc := NewQueryUseCase(f.store)

	list, _ := uc.List(10)
	if len(list) != 2 || list[1].ID != first.QueryID {
		t.Fatalf("expected newest first, got %+v", list)
	}

	detail, err := uc.Show(first.QueryID)
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Citations) != 2 || detail.Citations[0].Filename != "doc0.txt" {
		t.Errorf("unexpected citations: %+v", detail.Citations)
	}

	if _, err := uc.Show("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	var buf bytes.Buffer
	n, err := uc.Export(&buf, "csv", 0)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || len(rows) != 3 || rows[0][0] != "id" {
		t.Errorf("expected header plus 2 rows, got %d rows", len(rows))
	}

	buf.Reset()
	if _, err := uc.Export(&buf, "json", 1); err != nil {
		t.Fatal(err)
	}
	var exported []QueryDetail
	if err := json.Unmarshal(buf.Bytes(), &exported); err != nil {
		t.Fatal(err)
	}
	if len(exported) != 1 || exported[0].Query.Question != corpus[1] {
		t.Errorf("unexpected json export: %+v", exported)
	}

	buf.Reset()
	n, err = uc.Export(&buf, "xlsx", 0)
	if err != nil {
		t.Fatal(err)
	}
	book, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer book.Close()
	sheet, err := book.GetRows("Queries")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || len(sheet) != 3 || sheet[0][0] != "id" || sheet[1][0] != list[0].ID {
		t.Errorf("unexpected xlsx export: %v", sheet)
	}

	if _, err := uc.Export(&buf, "pdf", 0); err == nil {
		t.Error("expected unsupported format error")
	}
}
