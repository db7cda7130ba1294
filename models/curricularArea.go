package models

import (
	"context"
	"time"

	"bitbucket.org/minedudata/nexus_backend/config"
	"bitbucket.org/minedudata/nexus_backend/utils"
	"gorm.io/gorm"
)

type CurricularArea struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null;unique" json:"name" binding:"required"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCurricularArea struct {
	Name string `json:"name" binding:"required"`
}

func (input *NewCurricularArea) validate(ctx context.Context, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[CurricularArea](ctx, id); err != nil {
			return err
		}
	}
	if err := utils.ValidateUnique[CurricularArea](ctx, "name", input.Name, id); err != nil {
		return err
	}
	return nil
}

func CreateCurricularArea(ctx context.Context, input *NewCurricularArea) (*CurricularArea, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	area := CurricularArea{
		Name:     input.Name,
		IsActive: utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&area).Error; err != nil {
		return nil, err
	}
	utils.RemoveRedisList[CurricularArea]()

	return &area, nil
}

func UpdateCurricularArea(ctx context.Context, id int, input *NewCurricularArea) (*CurricularArea, error) {
	db := config.GetDB()
	area, err := utils.FetchModel[CurricularArea](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(area).Updates(map[string]interface{}{
		"Name": input.Name,
	}).Error; err != nil {
		return nil, err
	}
	utils.RemoveRedisList[CurricularArea]()

	return area, nil
}

func DeleteCurricularArea(ctx context.Context, id int) (*CurricularArea, error) {
	db := config.GetDB()
	area, err := utils.FetchModel[CurricularArea](ctx, id)
	if err != nil {
		return nil, err
	}
	var count int64
	if err := db.WithContext(ctx).Table("prelations").Where("curricular_area_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewConflictError("el área curricular está referenciada por prelaciones")
	}
	if err = db.WithContext(ctx).Delete(area).Error; err != nil {
		return nil, err
	}
	utils.RemoveRedisList[CurricularArea]()
	return area, nil
}

func GetCurricularArea(ctx context.Context, id int) (*CurricularArea, error) {
	return utils.FetchModel[CurricularArea](ctx, id)
}

func ListCurricularAreas(ctx context.Context) ([]*CurricularArea, error) {
	cached, err := utils.RetrieveRedisList[CurricularArea]()
	if err == nil && cached != nil {
		return cached, nil
	}
	areas, err := utils.FetchAllModels[CurricularArea](ctx)
	if err != nil {
		return nil, err
	}
	utils.StoreRedisList[CurricularArea](areas)
	return areas, nil
}

// FindCurricularAreaByName resolves a raw value by name, case-insensitive
// exact match.
func FindCurricularAreaByName(ctx context.Context, name string) (*CurricularArea, error) {
	db := config.GetDB()
	var area CurricularArea
	err := db.WithContext(ctx).
		Where("LOWER(name) = LOWER(?)", name).
		First(&area).Error
	if err == gorm.ErrRecordNotFound {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &area, nil
}
