package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/minedudata/nexus_backend/config"
	"bitbucket.org/minedudata/nexus_backend/utils"
	"gorm.io/gorm"
)

// Phase is one full iteration of the hiring process. At most one phase may be
// active at any time; the invariant is enforced transactionally at creation,
// never as an in-memory flag.
type Phase struct {
	ID          int               `gorm:"primary_key" json:"id"`
	Name        string            `gorm:"size:255;not null;unique" json:"name" binding:"required"`
	Description string            `gorm:"type:text" json:"description"`
	Year        int               `gorm:"not null" json:"year" binding:"required"`
	IsActive    *bool             `gorm:"not null;default:true" json:"is_active"`
	Stages      []PhaseStage      `gorm:"foreignKey:PhaseId" json:"stages,omitempty"`
	Assignments []PhaseAssignment `gorm:"foreignKey:PhaseId" json:"assignments,omitempty"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// PhaseStage exists structurally from phase creation on; both dates stay null
// until the stage is scheduled. Once both are set, start must precede end.
type PhaseStage struct {
	ID        int        `gorm:"primary_key" json:"id"`
	PhaseId   int        `gorm:"index;not null;uniqueIndex:idx_phase_stage_type" json:"phase_id"`
	StageType StageType  `gorm:"size:30;not null;uniqueIndex:idx_phase_stage_type" json:"stage_type"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsScheduled reports whether the stage already has both dates.
func (s *PhaseStage) IsScheduled() bool {
	return s.StartDate != nil && s.EndDate != nil
}

// PhaseAssignment is one adjudication call inside a phase.
type PhaseAssignment struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	PhaseId            int             `gorm:"index;not null" json:"phase_id"`
	AssignmentDateTime time.Time       `gorm:"not null" json:"assignment_datetime"`
	ModalityId         int             `gorm:"not null" json:"modality_id"`
	LevelId            int             `gorm:"not null" json:"level_id"`
	CurricularAreaId   *int            `json:"curricular_area_id"`
	Notes              string          `gorm:"type:text" json:"notes"`
	Modality           *Modality       `gorm:"foreignKey:ModalityId" json:"modality,omitempty"`
	Level              *Level          `gorm:"foreignKey:LevelId" json:"level,omitempty"`
	CurricularArea     *CurricularArea `gorm:"foreignKey:CurricularAreaId" json:"curricular_area,omitempty"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPhaseStage struct {
	StageType StageType  `json:"stage_type" binding:"required"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

type NewPhaseAssignment struct {
	AssignmentDateTime time.Time `json:"assignment_datetime" binding:"required"`
	ModalityId         int       `json:"modality_id" binding:"required"`
	LevelId            int       `json:"level_id" binding:"required"`
	CurricularAreaId   *int      `json:"curricular_area_id"`
	Notes              string    `json:"notes"`
}

type NewPhase struct {
	Name        string               `json:"name" binding:"required"`
	Description string               `json:"description"`
	Year        int                  `json:"year" binding:"required"`
	Stages      []NewPhaseStage      `json:"stages" binding:"required"`
	Assignments []NewPhaseAssignment `json:"assignments" binding:"required"`
}

// MissingStageTypes returns the canonical stage types absent from the
// provided set, in canonical order.
func MissingStageTypes(provided []StageType) []StageType {
	present := make(map[StageType]bool, len(provided))
	for _, st := range provided {
		present[st] = true
	}
	var missing []StageType
	for _, st := range CanonicalStageTypes {
		if !present[st] {
			missing = append(missing, st)
		}
	}
	return missing
}

// ValidateStageDates rejects a window where both dates are present and
// start >= end. Half-scheduled windows are allowed.
func ValidateStageDates(start, end *time.Time) error {
	if start != nil && end != nil && !start.Before(*end) {
		return utils.NewValidationError("la fecha de inicio debe ser anterior a la fecha de fin")
	}
	return nil
}

func (input *NewPhaseAssignment) validate(ctx context.Context) error {
	if err := utils.ValidateResourceId[Modality](ctx, input.ModalityId); err != nil {
		return utils.NewValidationError("la modalidad especificada no existe")
	}
	if err := utils.ValidateResourceId[Level](ctx, input.LevelId); err != nil {
		return utils.NewValidationError("el nivel especificado no existe")
	}
	if input.CurricularAreaId != nil {
		if err := utils.ValidateResourceId[CurricularArea](ctx, *input.CurricularAreaId); err != nil {
			return utils.NewValidationError("el área curricular especificada no existe")
		}
	}
	return nil
}

// Validate checks the structural completeness of a phase creation request:
// the full canonical stage set, valid stage windows, no duplicate stage
// types, at least one assignment, resolvable assignment references.
func (input *NewPhase) Validate(ctx context.Context) error {
	provided := make([]StageType, 0, len(input.Stages))
	seen := make(map[StageType]bool, len(input.Stages))
	for _, stage := range input.Stages {
		if err := stage.StageType.Validate(); err != nil {
			return utils.NewValidationError("tipo de etapa inválido: " + string(stage.StageType))
		}
		if seen[stage.StageType] {
			return utils.NewValidationError("tipo de etapa duplicado: " + string(stage.StageType))
		}
		seen[stage.StageType] = true
		provided = append(provided, stage.StageType)
		if err := ValidateStageDates(stage.StartDate, stage.EndDate); err != nil {
			return err
		}
	}

	if missing := MissingStageTypes(provided); len(missing) > 0 {
		names := make([]string, 0, len(missing))
		fields := make(map[string]string, len(missing))
		for _, st := range missing {
			names = append(names, st.Display())
			fields[string(st)] = "missing"
		}
		return &utils.ValidationError{
			Message: "faltan las siguientes etapas: " + joinStrings(names),
			Fields:  fields,
		}
	}

	if len(input.Assignments) == 0 {
		return utils.NewValidationError("debe incluir al menos una adjudicación")
	}
	for _, assignment := range input.Assignments {
		if err := assignment.validate(ctx); err != nil {
			return err
		}
	}
	return nil
}

func joinStrings(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}

// EarliestStart is the minimum start date across stages that have one.
func (input *NewPhase) EarliestStart() *time.Time {
	var earliest *time.Time
	for _, stage := range input.Stages {
		if stage.StartDate == nil {
			continue
		}
		if earliest == nil || stage.StartDate.Before(*earliest) {
			earliest = stage.StartDate
		}
	}
	return earliest
}

// LatestEnd is the maximum end date among the phase's stages, nil when no
// stage is dated.
func (p *Phase) LatestEnd() *time.Time {
	var latest *time.Time
	for i := range p.Stages {
		end := p.Stages[i].EndDate
		if end == nil {
			continue
		}
		if latest == nil || end.After(*latest) {
			latest = end
		}
	}
	return latest
}

func GetPhase(ctx context.Context, id int) (*Phase, error) {
	return utils.FetchModel[Phase](ctx, id, "Stages", "Assignments")
}

func ListPhases(ctx context.Context) ([]*Phase, error) {
	db := config.GetDB()
	var phases []*Phase
	err := db.WithContext(ctx).
		Preload("Stages").Preload("Assignments").
		Order("year DESC, created_at DESC").
		Find(&phases).Error
	if err != nil {
		return nil, err
	}
	return phases, nil
}

type UpdatePhaseStageInput struct {
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

// UpdatePhaseStage reschedules one stage of a phase. Only the dates are
// mutable; the stage set itself is fixed at phase creation.
func UpdatePhaseStage(ctx context.Context, phaseId int, stageId int, input *UpdatePhaseStageInput) (*PhaseStage, error) {
	db := config.GetDB()

	var stage PhaseStage
	err := db.WithContext(ctx).Where("id = ? AND phase_id = ?", stageId, phaseId).First(&stage).Error
	if err == gorm.ErrRecordNotFound {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := ValidateStageDates(input.StartDate, input.EndDate); err != nil {
		return nil, err
	}

	if err := db.WithContext(ctx).Model(&stage).Updates(map[string]interface{}{
		"StartDate": input.StartDate,
		"EndDate":   input.EndDate,
	}).Error; err != nil {
		return nil, err
	}
	return &stage, nil
}

// AddPhaseAssignment appends one adjudication call to an existing phase.
func AddPhaseAssignment(ctx context.Context, phaseId int, input *NewPhaseAssignment) (*PhaseAssignment, error) {
	if err := utils.ValidateResourceId[Phase](ctx, phaseId); err != nil {
		return nil, err
	}
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()
	assignment := PhaseAssignment{
		PhaseId:            phaseId,
		AssignmentDateTime: input.AssignmentDateTime,
		ModalityId:         input.ModalityId,
		LevelId:            input.LevelId,
		CurricularAreaId:   input.CurricularAreaId,
		Notes:              input.Notes,
	}
	if err := db.WithContext(ctx).Create(&assignment).Error; err != nil {
		return nil, err
	}
	return &assignment, nil
}

// DeactivatePhase clears the active marker so a successor phase can be
// created.
func DeactivatePhase(ctx context.Context, id int) (*Phase, error) {
	db := config.GetDB()
	phase, err := utils.FetchModel[Phase](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(phase).Update("IsActive", false).Error; err != nil {
		return nil, err
	}
	phase.IsActive = utils.NewFalse()
	return phase, nil
}

// ActivePhaseName returns the name of the currently active phase, "" when
// none. Used for conflict payloads.
func ActivePhaseName(ctx context.Context, tx *gorm.DB) (string, error) {
	var phase Phase
	err := tx.WithContext(ctx).Where("is_active = ?", true).First(&phase).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return phase.Name, nil
}

func (p *Phase) String() string {
	return fmt.Sprintf("%s (%d)", p.Name, p.Year)
}
