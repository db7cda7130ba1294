package models

import (
	"context"
	"time"

	"bitbucket.org/minedudata/nexus_backend/config"
	"bitbucket.org/minedudata/nexus_backend/utils"
	"gorm.io/gorm"
)

type Modality struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Name         string    `gorm:"size:100;not null;unique" json:"name" binding:"required"`
	Abbreviature *string   `gorm:"size:45;unique" json:"abbreviature"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewModality struct {
	Name         string  `json:"name" binding:"required"`
	Abbreviature *string `json:"abbreviature"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewModality) validate(ctx context.Context, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Modality](ctx, id); err != nil {
			return err
		}
	}
	if err := utils.ValidateUnique[Modality](ctx, "name", input.Name, id); err != nil {
		return err
	}
	if input.Abbreviature != nil && *input.Abbreviature != "" {
		if err := utils.ValidateUnique[Modality](ctx, "abbreviature", *input.Abbreviature, id); err != nil {
			return err
		}
	}
	return nil
}

func CreateModality(ctx context.Context, input *NewModality) (*Modality, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	modality := Modality{
		Name:         input.Name,
		Abbreviature: input.Abbreviature,
		IsActive:     utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&modality).Error; err != nil {
		return nil, err
	}
	utils.RemoveRedisList[Modality]()

	return &modality, nil
}

func UpdateModality(ctx context.Context, id int, input *NewModality) (*Modality, error) {
	db := config.GetDB()
	modality, err := utils.FetchModel[Modality](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(modality).Updates(map[string]interface{}{
		"Name":         input.Name,
		"Abbreviature": input.Abbreviature,
	}).Error; err != nil {
		return nil, err
	}
	utils.RemoveRedisList[Modality]()

	return modality, nil
}

func DeleteModality(ctx context.Context, id int) (*Modality, error) {
	db := config.GetDB()
	modality, err := utils.FetchModel[Modality](ctx, id)
	if err != nil {
		return nil, err
	}
	// Explicit PROTECT semantics: a modality referenced by prelations or
	// institutions cannot be removed.
	for table, msg := range map[string]string{
		"prelations":               "prelaciones",
		"educational_institutions": "instituciones educativas",
	} {
		var count int64
		if err := db.WithContext(ctx).Table(table).Where("modality_id = ?", id).Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, utils.NewConflictError("la modalidad está referenciada por " + msg)
		}
	}
	if err = db.WithContext(ctx).Delete(modality).Error; err != nil {
		return nil, err
	}
	utils.RemoveRedisList[Modality]()
	return modality, nil
}

func GetModality(ctx context.Context, id int) (*Modality, error) {
	return utils.FetchModel[Modality](ctx, id)
}

// list modalities, redis or db, cache result
func ListModalities(ctx context.Context) ([]*Modality, error) {
	cached, err := utils.RetrieveRedisList[Modality]()
	if err == nil && cached != nil {
		return cached, nil
	}
	modalities, err := utils.FetchAllModels[Modality](ctx)
	if err != nil {
		return nil, err
	}
	utils.StoreRedisList[Modality](modalities)
	return modalities, nil
}

// FindModalityByText resolves a raw spreadsheet value against the catalog,
// abbreviation first, then name, case-insensitive exact match.
// Returns RecordNotFound when the value matches neither.
func FindModalityByText(ctx context.Context, text string) (*Modality, error) {
	db := config.GetDB()
	var modality Modality
	err := db.WithContext(ctx).
		Where("LOWER(abbreviature) = LOWER(?)", text).
		First(&modality).Error
	if err == nil {
		return &modality, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	err = db.WithContext(ctx).
		Where("LOWER(name) = LOWER(?)", text).
		First(&modality).Error
	if err == gorm.ErrRecordNotFound {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &modality, nil
}
