package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/minedudata/nexus_backend/config"
	"bitbucket.org/minedudata/nexus_backend/utils"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// EducationalInstitution is created on demand during reconciliation, keyed by
// its modular code when present, by (name, modality, level) otherwise. Never
// deleted by the import path.
type EducationalInstitution struct {
	ID         int       `gorm:"primary_key" json:"id"`
	Code       *string   `gorm:"size:20;unique" json:"code"`
	Name       string    `gorm:"size:255;not null;uniqueIndex:idx_institution_identity" json:"name" binding:"required"`
	ModalityId int       `gorm:"not null;uniqueIndex:idx_institution_identity" json:"modality_id" binding:"required"`
	LevelId    int       `gorm:"not null;uniqueIndex:idx_institution_identity" json:"level_id" binding:"required"`
	Modality   *Modality `gorm:"foreignKey:ModalityId" json:"modality,omitempty"`
	Level      *Level    `gorm:"foreignKey:LevelId" json:"level,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Vacancy struct {
	ID                       int                     `gorm:"primary_key" json:"id"`
	PhaseId                  int                     `gorm:"index;not null" json:"phase_id"`
	EducationalInstitutionId int                     `gorm:"index;not null" json:"educational_institution_id"`
	NexusCode                string                  `gorm:"size:50;not null;unique" json:"nexus_code" binding:"required"`
	Position                 VacancyPosition         `gorm:"size:20" json:"position"`
	VacancyType              VacancyType             `gorm:"size:20" json:"vacancy_type"`
	VacancyReason            VacancyReason           `gorm:"size:30" json:"vacancy_reason"`
	CurricularAreaId         *int                    `json:"curricular_area_id"`
	Phase                    *Phase                  `gorm:"foreignKey:PhaseId" json:"phase,omitempty"`
	EducationalInstitution   *EducationalInstitution `gorm:"foreignKey:EducationalInstitutionId" json:"educational_institution,omitempty"`
	CurricularArea           *CurricularArea         `gorm:"foreignKey:CurricularAreaId" json:"curricular_area,omitempty"`
	IsActive                 *bool                   `gorm:"not null;default:true" json:"is_active"`
	CreatedAt                time.Time               `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time               `gorm:"autoUpdateTime" json:"updated_at"`
}

// VacancyRow is one raw tabular row of an import. Row is the spreadsheet row
// number (header is row 1, data starts at 2) and is preserved through the
// whole pipeline so operators can correct the source file.
type VacancyRow struct {
	Row            int    `json:"row"`
	IeCode         string `json:"ie_code"`
	IeName         string `json:"ie_name"`
	Modality       string `json:"modality"`
	Level          string `json:"level"`
	NexusCode      string `json:"nexus_code"`
	Position       string `json:"position"`
	VacancyType    string `json:"vacancy_type"`
	VacancyReason  string `json:"vacancy_reason"`
	CurricularArea string `json:"curricular_area"`
}

// RequiredImportColumns must all be present in the header row; curricular_area
// is optional.
var RequiredImportColumns = []string{
	"ie_code", "ie_name", "modality", "level",
	"nexus_code", "position", "vacancy_type", "vacancy_reason",
}

var vacancyTemplateColumns = append(append([]string{}, RequiredImportColumns...), "curricular_area")

const vacancyTemplateSheet = "Vacantes"

// ParseVacancyRows reads the first sheet of an uploaded workbook into
// VacancyRows. Missing required columns abort the whole import with a
// ValidationError listing them; no row is processed.
func ParseVacancyRows(f *excelize.File) ([]VacancyRow, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, utils.NewValidationError("el archivo no contiene hojas")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("unable to read sheet: %v", err)
	}
	if len(rows) == 0 {
		return nil, utils.NewValidationError("el archivo está vacío")
	}

	columnIndex := make(map[string]int, len(rows[0]))
	for i, header := range rows[0] {
		columnIndex[strings.ToLower(strings.TrimSpace(header))] = i
	}

	var missing []string
	for _, col := range RequiredImportColumns {
		if _, ok := columnIndex[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		fields := make(map[string]string, len(missing))
		for _, col := range missing {
			fields[col] = "missing"
		}
		return nil, &utils.ValidationError{
			Message: "faltan columnas requeridas: " + strings.Join(missing, ", "),
			Fields:  fields,
		}
	}

	cell := func(row []string, col string) string {
		idx, ok := columnIndex[col]
		if !ok || idx >= len(row) {
			return ""
		}
		return utils.NormalizeCellText(row[idx])
	}

	parsed := make([]VacancyRow, 0, len(rows)-1)
	for i, row := range rows[1:] {
		parsed = append(parsed, VacancyRow{
			Row:            i + 2, // 1-based, after the header
			IeCode:         cell(row, "ie_code"),
			IeName:         cell(row, "ie_name"),
			Modality:       cell(row, "modality"),
			Level:          cell(row, "level"),
			NexusCode:      cell(row, "nexus_code"),
			Position:       cell(row, "position"),
			VacancyType:    cell(row, "vacancy_type"),
			VacancyReason:  cell(row, "vacancy_reason"),
			CurricularArea: cell(row, "curricular_area"),
		})
	}
	return parsed, nil
}

// resolveRowReferences resolves one row against the reference catalog and
// returns the row-scoped error messages. The curricular area is optional; a
// non-empty value that resolves to nothing is a row error (same rule in
// preview and import).
func resolveRowReferences(ctx context.Context, row *VacancyRow) (modality *Modality, level *Level, area *CurricularArea, rowErrors []string) {
	var err error
	modality, err = FindModalityByText(ctx, row.Modality)
	if err != nil {
		rowErrors = append(rowErrors, fmt.Sprintf("Modalidad '%s' no encontrada", row.Modality))
	}

	level, err = FindLevelByName(ctx, row.Level)
	if err != nil {
		rowErrors = append(rowErrors, fmt.Sprintf("Nivel '%s' no encontrado", row.Level))
	}

	if row.CurricularArea != "" {
		area, err = FindCurricularAreaByName(ctx, row.CurricularArea)
		if err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("Área curricular '%s' no encontrada", row.CurricularArea))
		}
	}
	return modality, level, area, rowErrors
}

type VacancyRowError struct {
	Row    int      `json:"row"`
	Errors []string `json:"errors"`
}

type VacancyPreviewRow struct {
	VacancyRow
	Errors []string `json:"errors"`
	Valid  bool     `json:"valid"`
}

type VacancyImportPreview struct {
	Total        int                 `json:"total"`
	ValidCount   int                 `json:"valid_count"`
	InvalidCount int                 `json:"invalid_count"`
	Preview      []VacancyPreviewRow `json:"preview"`
	Errors       []VacancyRowError   `json:"errors"`
}

// PreviewVacancyImport resolves every row against the catalog without writing
// anything, so operators can correct a file before the real import.
func PreviewVacancyImport(ctx context.Context, phaseId int, rows []VacancyRow) (*VacancyImportPreview, error) {
	if err := utils.ValidateResourceId[Phase](ctx, phaseId); err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	preview := &VacancyImportPreview{
		Preview: make([]VacancyPreviewRow, 0, len(rows)),
	}
	for i := range rows {
		_, _, _, rowErrors := resolveRowReferences(ctx, &rows[i])
		preview.Preview = append(preview.Preview, VacancyPreviewRow{
			VacancyRow: rows[i],
			Errors:     rowErrors,
			Valid:      len(rowErrors) == 0,
		})
		if len(rowErrors) > 0 {
			preview.InvalidCount++
			preview.Errors = append(preview.Errors, VacancyRowError{Row: rows[i].Row, Errors: rowErrors})
		} else {
			preview.ValidCount++
		}
	}
	preview.Total = len(rows)
	return preview, nil
}

type VacancyImportResult struct {
	CreatedCount int               `json:"created_count"`
	ErrorCount   int               `json:"error_count"`
	Errors       []VacancyRowError `json:"errors"`
}

// ReconcileVacancies materializes raw rows as vacancies against an existing
// phase. A missing phase aborts the whole batch; every other failure is
// row-scoped: the row is reported and skipped, the rest of the batch goes on.
// Spreadsheet input is uncontrolled, so an all-or-nothing transaction would
// make correcting a large file intolerable.
func ReconcileVacancies(ctx context.Context, phaseId int, rows []VacancyRow) (*VacancyImportResult, error) {
	logger := config.GetLogger()

	if err := utils.ValidateResourceId[Phase](ctx, phaseId); err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	db := config.GetDB()
	result := &VacancyImportResult{}

	for i := range rows {
		row := &rows[i]

		modality, level, area, rowErrors := resolveRowReferences(ctx, row)
		if len(rowErrors) > 0 {
			result.ErrorCount++
			result.Errors = append(result.Errors, VacancyRowError{Row: row.Row, Errors: rowErrors})
			continue
		}

		// Duplicate external codes are data-quality problems of the row, not
		// of the batch.
		count, err := utils.ResourceCountWhere[Vacancy](ctx, "nexus_code = ?", row.NexusCode)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			result.ErrorCount++
			result.Errors = append(result.Errors, VacancyRowError{
				Row:    row.Row,
				Errors: []string{fmt.Sprintf("Código Nexus '%s' ya existe", row.NexusCode)},
			})
			continue
		}

		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			institution, err := findOrCreateInstitution(ctx, tx, row, modality, level)
			if err != nil {
				return err
			}

			vacancy := Vacancy{
				PhaseId:                  phaseId,
				EducationalInstitutionId: institution.ID,
				NexusCode:                row.NexusCode,
				Position:                 VacancyPosition(strings.ToUpper(row.Position)),
				VacancyType:              VacancyType(strings.ToUpper(row.VacancyType)),
				VacancyReason:            VacancyReason(strings.ToUpper(row.VacancyReason)),
				IsActive:                 utils.NewTrue(),
			}
			if area != nil {
				vacancy.CurricularAreaId = &area.ID
			}
			return tx.Create(&vacancy).Error
		})
		if err != nil {
			config.LogError(logger, "vacancy.go", "ReconcileVacancies", "row create", row.Row, err)
			result.ErrorCount++
			result.Errors = append(result.Errors, VacancyRowError{
				Row:    row.Row,
				Errors: []string{err.Error()},
			})
			continue
		}
		result.CreatedCount++
	}

	return result, nil
}

// findOrCreateInstitution resolves the institution by code, by
// (name, modality, level) when the code is blank, creating it with the row's
// values as defaults when nothing matches. Re-running the same batch never
// duplicates institutions.
func findOrCreateInstitution(ctx context.Context, tx *gorm.DB, row *VacancyRow, modality *Modality, level *Level) (*EducationalInstitution, error) {
	var institution EducationalInstitution

	var err error
	if row.IeCode != "" {
		err = tx.WithContext(ctx).Where("code = ?", row.IeCode).First(&institution).Error
	} else {
		err = tx.WithContext(ctx).
			Where("name = ? AND modality_id = ? AND level_id = ?", row.IeName, modality.ID, level.ID).
			First(&institution).Error
	}
	if err == nil {
		return &institution, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	institution = EducationalInstitution{
		Name:       row.IeName,
		ModalityId: modality.ID,
		LevelId:    level.ID,
	}
	if row.IeCode != "" {
		code := row.IeCode
		institution.Code = &code
	}
	if err := tx.WithContext(ctx).Create(&institution).Error; err != nil {
		return nil, err
	}
	return &institution, nil
}

// ExportVacancyTemplate builds the blank import skeleton: the full column set
// plus one illustrative row.
func ExportVacancyTemplate() (*excelize.File, error) {
	f := excelize.NewFile()
	index, err := f.NewSheet(vacancyTemplateSheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	for i, col := range vacancyTemplateColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		f.SetCellValue(vacancyTemplateSheet, cell, col)
	}

	example := []string{
		"0123456",
		"I.E. María Auxiliadora",
		"EBR",
		"Secundaria",
		"NEX001",
		"DOCENTE",
		"ORGANICA",
		"LICENCIA",
		"Matemática",
	}
	for i, value := range example {
		cell, err := excelize.CoordinatesToCellName(i+1, 2)
		if err != nil {
			return nil, err
		}
		f.SetCellValue(vacancyTemplateSheet, cell, value)
	}

	return f, nil
}

/* direct administrative entry */

type NewVacancy struct {
	PhaseId                  int    `json:"phase_id" binding:"required"`
	EducationalInstitutionId int    `json:"educational_institution_id" binding:"required"`
	NexusCode                string `json:"nexus_code" binding:"required"`
	Position                 string `json:"position"`
	VacancyType              string `json:"vacancy_type"`
	VacancyReason            string `json:"vacancy_reason"`
	CurricularAreaId         *int   `json:"curricular_area_id"`
}

func CreateVacancy(ctx context.Context, input *NewVacancy) (*Vacancy, error) {
	if err := utils.ValidateResourceId[Phase](ctx, input.PhaseId); err != nil {
		return nil, utils.NewValidationError("la fase especificada no existe")
	}
	if err := utils.ValidateResourceId[EducationalInstitution](ctx, input.EducationalInstitutionId); err != nil {
		return nil, utils.NewValidationError("la institución educativa especificada no existe")
	}
	if input.CurricularAreaId != nil {
		if err := utils.ValidateResourceId[CurricularArea](ctx, *input.CurricularAreaId); err != nil {
			return nil, utils.NewValidationError("el área curricular especificada no existe")
		}
	}
	if err := utils.ValidateUnique[Vacancy](ctx, "nexus_code", input.NexusCode, 0); err != nil {
		return nil, utils.NewConflictError("ya existe una vacante con el código Nexus", input.NexusCode)
	}

	db := config.GetDB()
	vacancy := Vacancy{
		PhaseId:                  input.PhaseId,
		EducationalInstitutionId: input.EducationalInstitutionId,
		NexusCode:                input.NexusCode,
		Position:                 VacancyPosition(strings.ToUpper(input.Position)),
		VacancyType:              VacancyType(strings.ToUpper(input.VacancyType)),
		VacancyReason:            VacancyReason(strings.ToUpper(input.VacancyReason)),
		CurricularAreaId:         input.CurricularAreaId,
		IsActive:                 utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&vacancy).Error; err != nil {
		return nil, err
	}
	return &vacancy, nil
}

func GetVacancy(ctx context.Context, id int) (*Vacancy, error) {
	return utils.FetchModel[Vacancy](ctx, id, "Phase", "EducationalInstitution", "CurricularArea")
}

// ListVacancies lists all vacancies, filtered by phase when phaseId > 0.
func ListVacancies(ctx context.Context, phaseId int) ([]*Vacancy, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).
		Preload("Phase").
		Preload("EducationalInstitution").
		Preload("EducationalInstitution.Modality").
		Preload("EducationalInstitution.Level").
		Preload("CurricularArea")
	if phaseId > 0 {
		dbCtx = dbCtx.Where("phase_id = ?", phaseId)
	}
	var vacancies []*Vacancy
	if err := dbCtx.Order("created_at DESC").Find(&vacancies).Error; err != nil {
		return nil, err
	}
	return vacancies, nil
}

func ListEducationalInstitutions(ctx context.Context) ([]*EducationalInstitution, error) {
	return utils.FetchAllModels[EducationalInstitution](ctx, "Modality", "Level")
}

func GetEducationalInstitution(ctx context.Context, id int) (*EducationalInstitution, error) {
	return utils.FetchModel[EducationalInstitution](ctx, id, "Modality", "Level")
}
