package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/minedudata/nexus_backend/config"
	"bitbucket.org/minedudata/nexus_backend/utils"
	"gorm.io/gorm"
)

// Prelation is one ranked qualification tier for a (modality, curricular area)
// group. CurricularAreaId is nullable; NULL is a distinct group key (tiers
// that apply to the whole modality).
type Prelation struct {
	ID               int                    `gorm:"primary_key" json:"id"`
	ModalityId       int                    `gorm:"index;not null;uniqueIndex:idx_prelation_group_order" json:"modality_id" binding:"required"`
	CurricularAreaId *int                   `gorm:"uniqueIndex:idx_prelation_group_order" json:"curricular_area_id"`
	OrderId          int                    `gorm:"not null;uniqueIndex:idx_prelation_group_order" json:"order_id" binding:"required"`
	Description      string                 `gorm:"type:text" json:"description"`
	Modality         *Modality              `gorm:"foreignKey:ModalityId" json:"modality,omitempty"`
	CurricularArea   *CurricularArea        `gorm:"foreignKey:CurricularAreaId" json:"curricular_area,omitempty"`
	Order            *PrelationOrder        `gorm:"foreignKey:OrderId" json:"order,omitempty"`
	Levels           []Level                `gorm:"many2many:prelations_link_levels" json:"levels,omitempty"`
	Requirements     []PrelationRequirement `gorm:"foreignKey:PrelationId" json:"requirements,omitempty"`
	IsActive         *bool                  `gorm:"not null;default:true" json:"is_active"`
	CreatedAt        time.Time              `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time              `gorm:"autoUpdateTime" json:"updated_at"`
}

// PrelationRequirement is one qualification condition inside a tier.
// Group clusters conditions; LogicType decides how the cluster combines.
type PrelationRequirement struct {
	ID          int                `gorm:"primary_key" json:"id"`
	PrelationId int                `gorm:"index;not null" json:"prelation_id"`
	Text        string             `gorm:"size:255;not null" json:"text" binding:"required"`
	LogicType   PrelationLogicType `gorm:"size:3;not null;default:'AND'" json:"logic_type"`
	Group       int                `gorm:"not null;default:1" json:"group"`
	IsActive    *bool              `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPrelationRequirement struct {
	Text      string             `json:"text" binding:"required"`
	LogicType PrelationLogicType `json:"logic_type"`
	Group     int                `json:"group"`
}

type NewPrelation struct {
	ModalityId       int                       `json:"modality_id" binding:"required"`
	CurricularAreaId *int                      `json:"curricular_area_id"`
	OrderId          int                       `json:"order_id" binding:"required"`
	Description      string                    `json:"description"`
	LevelIds         []int                     `json:"level_ids" binding:"required,min=1"`
	Requirements     []NewPrelationRequirement `json:"requirements"`
}

// groupLockKey serializes mutations per (modality, curricular area) group so
// concurrent create/delete requests cannot both observe a stale rank set.
func prelationGroupLockKey(modalityId int, curricularAreaId *int) string {
	return fmt.Sprintf("%d:%d", modalityId, utils.DereferencePtr(curricularAreaId))
}

func (input *NewPrelation) validate(ctx context.Context) error {
	if err := utils.ValidateResourceId[Modality](ctx, input.ModalityId); err != nil {
		return utils.NewValidationError("la modalidad especificada no existe")
	}
	if err := utils.ValidateResourceId[PrelationOrder](ctx, input.OrderId); err != nil {
		return utils.NewValidationError("el orden de prelación especificado no existe")
	}
	if input.CurricularAreaId != nil {
		if err := utils.ValidateResourceId[CurricularArea](ctx, *input.CurricularAreaId); err != nil {
			return utils.NewValidationError("el área curricular especificada no existe")
		}
	}
	for _, levelId := range utils.UniqueSlice(input.LevelIds) {
		if err := utils.ValidateResourceId[Level](ctx, levelId); err != nil {
			return utils.NewValidationError("el nivel especificado no existe")
		}
	}
	for _, req := range input.Requirements {
		logic := req.LogicType
		if logic == "" {
			logic = PrelationLogicAnd
		}
		if err := logic.Validate(); err != nil {
			return utils.NewValidationError("tipo de lógica inválido: " + string(req.LogicType))
		}
	}
	return nil
}

// CreatePrelation inserts a tier with its requirement groups as one unit.
// A tier already holding the (modality, curricular area, order) key is a
// conflict. Ranks may be created out of order; only deletion is constrained
// to the tail.
func CreatePrelation(ctx context.Context, input *NewPrelation) (*Prelation, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	release, err := utils.GroupLock(ctx, "prelation", prelationGroupLockKey(input.ModalityId, input.CurricularAreaId), "prelation.go", "CreatePrelation")
	if err != nil {
		return nil, err
	}
	defer release()

	count, err := utils.ResourceCountWhere[Prelation](ctx,
		"modality_id = ? AND curricular_area_id <=> ? AND order_id = ?",
		input.ModalityId, input.CurricularAreaId, input.OrderId)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		order, oerr := GetPrelationOrder(ctx, input.OrderId)
		orderName := fmt.Sprint(input.OrderId)
		if oerr == nil {
			orderName = order.Name
		}
		return nil, utils.NewConflictError("ya existe una prelación para esta modalidad y área curricular con el orden", orderName)
	}

	prelation := Prelation{
		ModalityId:       input.ModalityId,
		CurricularAreaId: input.CurricularAreaId,
		OrderId:          input.OrderId,
		Description:      input.Description,
		IsActive:         utils.NewTrue(),
	}
	for _, req := range input.Requirements {
		logic := req.LogicType
		if logic == "" {
			logic = PrelationLogicAnd
		}
		group := req.Group
		if group == 0 {
			group = 1
		}
		prelation.Requirements = append(prelation.Requirements, PrelationRequirement{
			Text:      req.Text,
			LogicType: logic,
			Group:     group,
			IsActive:  utils.NewTrue(),
		})
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&prelation).Error; err != nil {
			return err
		}
		var levels []Level
		if err := tx.Where("id IN ?", utils.UniqueSlice(input.LevelIds)).Find(&levels).Error; err != nil {
			return err
		}
		if err := tx.Model(&prelation).Association("Levels").Append(&levels); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return GetPrelation(ctx, prelation.ID)
}

// DeletePrelation removes a tier and its requirements, but only when it is
// the highest-ranked tier of its group. Qualification tiers must be retracted
// in reverse order so no rank gap can mislead a downstream ranking.
func DeletePrelation(ctx context.Context, id int) (*Prelation, error) {
	db := config.GetDB()
	prelation, err := utils.FetchModel[Prelation](ctx, id, "Order")
	if err != nil {
		return nil, err
	}

	release, err := utils.GroupLock(ctx, "prelation", prelationGroupLockKey(prelation.ModalityId, prelation.CurricularAreaId), "prelation.go", "DeletePrelation")
	if err != nil {
		return nil, err
	}
	defer release()

	// Every tier in the same group with a higher order blocks this delete.
	var posterior []*Prelation
	if err := db.WithContext(ctx).Preload("Order").
		Where("modality_id = ? AND curricular_area_id <=> ? AND order_id > ?",
			prelation.ModalityId, prelation.CurricularAreaId, prelation.OrderId).
		Order("order_id").
		Find(&posterior).Error; err != nil {
		return nil, err
	}
	if len(posterior) > 0 {
		names := make([]string, 0, len(posterior))
		for _, p := range posterior {
			if p.Order != nil {
				names = append(names, p.Order.Name)
			} else {
				names = append(names, fmt.Sprint(p.OrderId))
			}
		}
		names = utils.UniqueSlice(names)
		orderName := fmt.Sprint(prelation.OrderId)
		if prelation.Order != nil {
			orderName = prelation.Order.Name
		}
		return nil, utils.NewConflictError(
			fmt.Sprintf("no se puede eliminar la prelación %q porque existen prelaciones posteriores; debe eliminarlas en orden inverso", orderName),
			names...)
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("prelation_id = ?", prelation.ID).Delete(&PrelationRequirement{}).Error; err != nil {
			return err
		}
		if err := tx.Model(prelation).Association("Levels").Clear(); err != nil {
			return err
		}
		if err := tx.Delete(prelation).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prelation, nil
}

func GetPrelation(ctx context.Context, id int) (*Prelation, error) {
	return utils.FetchModel[Prelation](ctx, id, "Modality", "CurricularArea", "Order", "Levels", "Requirements")
}

func ListPrelations(ctx context.Context) ([]*Prelation, error) {
	return utils.FetchAllModels[Prelation](ctx, "Modality", "CurricularArea", "Order", "Levels", "Requirements")
}

// EvaluatePrelation reports whether the satisfied requirement set fulfils the
// tier. Per requirement group: every AND requirement must be satisfied, and
// when the group carries OR requirements at least one of them must be. The
// tier is fulfilled when every group is.
func EvaluatePrelation(ctx context.Context, id int, satisfiedRequirementIds []int) (bool, error) {
	prelation, err := utils.FetchModel[Prelation](ctx, id, "Requirements")
	if err != nil {
		return false, err
	}
	return evaluateRequirements(prelation.Requirements, satisfiedRequirementIds), nil
}

func evaluateRequirements(requirements []PrelationRequirement, satisfiedIds []int) bool {
	satisfied := make(map[int]bool, len(satisfiedIds))
	for _, id := range satisfiedIds {
		satisfied[id] = true
	}

	type groupState struct {
		hasOr       bool
		orSatisfied bool
		andOk       bool
	}
	groups := make(map[int]*groupState)
	for _, req := range requirements {
		if req.IsActive != nil && !*req.IsActive {
			continue
		}
		state, ok := groups[req.Group]
		if !ok {
			state = &groupState{andOk: true}
			groups[req.Group] = state
		}
		switch req.LogicType {
		case PrelationLogicOr:
			state.hasOr = true
			if satisfied[req.ID] {
				state.orSatisfied = true
			}
		default:
			if !satisfied[req.ID] {
				state.andOk = false
			}
		}
	}

	for _, state := range groups {
		if !state.andOk {
			return false
		}
		if state.hasOr && !state.orSatisfied {
			return false
		}
	}
	return true
}

// AddPrelationRequirement appends one requirement to an existing tier.
func AddPrelationRequirement(ctx context.Context, prelationId int, input *NewPrelationRequirement) (*PrelationRequirement, error) {
	if err := utils.ValidateResourceId[Prelation](ctx, prelationId); err != nil {
		return nil, err
	}
	logic := input.LogicType
	if logic == "" {
		logic = PrelationLogicAnd
	}
	if err := logic.Validate(); err != nil {
		return nil, utils.NewValidationError("tipo de lógica inválido: " + string(input.LogicType))
	}
	group := input.Group
	if group == 0 {
		group = 1
	}

	db := config.GetDB()
	requirement := PrelationRequirement{
		PrelationId: prelationId,
		Text:        input.Text,
		LogicType:   logic,
		Group:       group,
		IsActive:    utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&requirement).Error; err != nil {
		return nil, err
	}
	return &requirement, nil
}

func DeletePrelationRequirement(ctx context.Context, id int) (*PrelationRequirement, error) {
	db := config.GetDB()
	requirement, err := utils.FetchModel[PrelationRequirement](ctx, id)
	if err != nil {
		return nil, err
	}
	if err = db.WithContext(ctx).Delete(requirement).Error; err != nil {
		return nil, err
	}
	return requirement, nil
}
