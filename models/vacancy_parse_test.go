package models

import (
	"errors"
	"strings"
	"testing"

	"bitbucket.org/minedudata/nexus_backend/utils"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, header []string, dataRows [][]string) *excelize.File {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for col, value := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			t.Fatalf("set header cell: %v", err)
		}
	}
	for r, row := range dataRows {
		for col, value := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, r+2)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				t.Fatalf("set data cell: %v", err)
			}
		}
	}
	return f
}

func TestParseVacancyRows_RowNumbersStartAfterHeader(t *testing.T) {
	header := append(append([]string{}, RequiredImportColumns...), "curricular_area")
	f := buildWorkbook(t, header, [][]string{
		{"0123456", "I.E. San Martín", "EBR", "Secundaria", "NEX001", "docente", "organica", "licencia", "Matemática"},
		{"", "I.E. Los Andes", "EBR", "Primaria", "NEX002", "DOCENTE", "EVENTUAL", "DESTAQUE", ""},
	})
	defer f.Close()

	rows, err := ParseVacancyRows(f)
	if err != nil {
		t.Fatalf("ParseVacancyRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Row != 2 || rows[1].Row != 3 {
		t.Fatalf("expected spreadsheet rows 2 and 3, got %d and %d", rows[0].Row, rows[1].Row)
	}
	if rows[0].NexusCode != "NEX001" || rows[0].Modality != "EBR" {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[1].IeCode != "" || rows[1].CurricularArea != "" {
		t.Fatalf("empty cells must stay empty, got %+v", rows[1])
	}
}

func TestParseVacancyRows_HeaderMatchingIsCaseInsensitive(t *testing.T) {
	header := []string{"IE_Code", " IE_NAME ", "Modality", "Level", "Nexus_Code", "Position", "Vacancy_Type", "Vacancy_Reason"}
	f := buildWorkbook(t, header, [][]string{
		{"0123456", "I.E. San Martín", "EBR", "Inicial", "NEX010", "DOCENTE", "ORGANICA", "LICENCIA"},
	})
	defer f.Close()

	rows, err := ParseVacancyRows(f)
	if err != nil {
		t.Fatalf("ParseVacancyRows: %v", err)
	}
	if len(rows) != 1 || rows[0].IeName != "I.E. San Martín" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestParseVacancyRows_MissingColumnsAbortWholeImport(t *testing.T) {
	f := buildWorkbook(t, []string{"ie_code", "ie_name", "modality"}, [][]string{
		{"0123456", "I.E. San Martín", "EBR"},
	})
	defer f.Close()

	_, err := ParseVacancyRows(f)
	if err == nil {
		t.Fatalf("expected an error for missing required columns")
	}
	var ve *utils.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	for _, col := range []string{"level", "nexus_code", "position", "vacancy_type", "vacancy_reason"} {
		if ve.Fields[col] != "missing" {
			t.Fatalf("expected column %q reported missing, fields: %v", col, ve.Fields)
		}
		if !strings.Contains(ve.Message, col) {
			t.Fatalf("expected message to name %q, got %q", col, ve.Message)
		}
	}
	if _, present := ve.Fields["modality"]; present {
		t.Fatalf("modality is present in the file and must not be reported missing")
	}
}

func TestParseVacancyRows_NanEquivalentsNormalized(t *testing.T) {
	header := append(append([]string{}, RequiredImportColumns...), "curricular_area")
	f := buildWorkbook(t, header, [][]string{
		{"nan", "I.E. San Martín", "EBR", "Secundaria", "NEX001", "DOCENTE", "ORGANICA", "LICENCIA", "#N/A"},
	})
	defer f.Close()

	rows, err := ParseVacancyRows(f)
	if err != nil {
		t.Fatalf("ParseVacancyRows: %v", err)
	}
	if rows[0].IeCode != "" || rows[0].CurricularArea != "" {
		t.Fatalf("NaN-equivalent cells must normalize to empty, got %+v", rows[0])
	}
}

func TestExportVacancyTemplate(t *testing.T) {
	f, err := ExportVacancyTemplate()
	if err != nil {
		t.Fatalf("ExportVacancyTemplate: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 1 || sheets[0] != "Vacantes" {
		t.Fatalf("expected a single sheet %q, got %v", "Vacantes", sheets)
	}

	rows, err := f.GetRows("Vacantes")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected a header and one example row, got %d rows", len(rows))
	}
	for i, col := range append(append([]string{}, RequiredImportColumns...), "curricular_area") {
		if rows[0][i] != col {
			t.Fatalf("header[%d] = %q, expected %q", i, rows[0][i], col)
		}
	}

	// The template must round-trip through the parser.
	parsed, err := ParseVacancyRows(f)
	if err != nil {
		t.Fatalf("template does not parse: %v", err)
	}
	if len(parsed) != 1 || parsed[0].Row != 2 {
		t.Fatalf("unexpected parsed template rows: %+v", parsed)
	}
}
