package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/minedudata/nexus_backend/config"
	"bitbucket.org/minedudata/nexus_backend/models"
	"bitbucket.org/minedudata/nexus_backend/utils"
	"gorm.io/gorm"
)

// CreatePhase creates a phase with its full stage set and adjudication calls
// as one unit. The whole precondition check (active-phase singleton, schedule
// overlap) and the insert run inside one transaction guarded by the schedule
// advisory lock, so two concurrent creations cannot both observe a stale
// precondition and both succeed.
func CreatePhase(ctx context.Context, input *models.NewPhase) (*models.Phase, error) {
	logger := config.GetLogger()

	if err := input.Validate(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var created models.Phase
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireScheduleLock(tx); err != nil {
			return err
		}
		defer ReleaseScheduleLock(tx)

		// Singleton invariant: at most one active phase, checked against
		// persisted state under the lock.
		activeName, err := models.ActivePhaseName(ctx, tx)
		if err != nil {
			return err
		}
		if activeName != "" {
			return utils.NewConflictError("ya existe una fase activa; desactívala antes de crear una nueva", activeName)
		}

		if err := utils.ValidateUnique[models.Phase](ctx, "name", input.Name, 0); err != nil {
			return utils.NewConflictError("ya existe una fase con el nombre", input.Name)
		}

		if err := validateNoScheduleOverlap(ctx, tx, input); err != nil {
			return err
		}

		created = models.Phase{
			Name:        input.Name,
			Description: input.Description,
			Year:        input.Year,
			IsActive:    utils.NewTrue(),
		}
		for _, stage := range input.Stages {
			created.Stages = append(created.Stages, models.PhaseStage{
				StageType: stage.StageType,
				StartDate: stage.StartDate,
				EndDate:   stage.EndDate,
			})
		}
		for _, assignment := range input.Assignments {
			created.Assignments = append(created.Assignments, models.PhaseAssignment{
				AssignmentDateTime: assignment.AssignmentDateTime,
				ModalityId:         assignment.ModalityId,
				LevelId:            assignment.LevelId,
				CurricularAreaId:   assignment.CurricularAreaId,
				Notes:              assignment.Notes,
			})
		}
		if err := tx.Create(&created).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if !utils.IsValidationError(err) && !utils.IsConflictError(err) {
			config.LogError(logger, "phaseWorkflow.go", "CreatePhase", "transaction", input.Name, err)
		}
		return nil, err
	}

	return models.GetPhase(ctx, created.ID)
}

// validateNoScheduleOverlap rejects the new phase when any existing phase is
// still scheduled into the future past the new phase's earliest start.
func validateNoScheduleOverlap(ctx context.Context, tx *gorm.DB, input *models.NewPhase) error {
	earliestStart := input.EarliestStart()
	if earliestStart == nil {
		// Fully unscheduled phases cannot overlap anything yet.
		return nil
	}

	var existing []*models.Phase
	if err := tx.WithContext(ctx).Preload("Stages").Find(&existing).Error; err != nil {
		return err
	}

	now := time.Now()
	for _, phase := range existing {
		latestEnd := phase.LatestEnd()
		if latestEnd == nil {
			continue
		}
		if latestEnd.After(now) && latestEnd.After(*earliestStart) {
			return utils.NewConflictError(
				fmt.Sprintf("la fase %q ya está programada y se superpone con las fechas seleccionadas", phase.Name),
				phase.Name)
		}
	}
	return nil
}
