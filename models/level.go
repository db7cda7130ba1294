package models

import (
	"context"
	"time"

	"bitbucket.org/minedudata/nexus_backend/config"
	"bitbucket.org/minedudata/nexus_backend/utils"
	"gorm.io/gorm"
)

type Level struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null;unique" json:"name" binding:"required"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewLevel struct {
	Name string `json:"name" binding:"required"`
}

func (input *NewLevel) validate(ctx context.Context, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Level](ctx, id); err != nil {
			return err
		}
	}
	if err := utils.ValidateUnique[Level](ctx, "name", input.Name, id); err != nil {
		return err
	}
	return nil
}

func CreateLevel(ctx context.Context, input *NewLevel) (*Level, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	level := Level{
		Name:     input.Name,
		IsActive: utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&level).Error; err != nil {
		return nil, err
	}
	utils.RemoveRedisList[Level]()

	return &level, nil
}

func UpdateLevel(ctx context.Context, id int, input *NewLevel) (*Level, error) {
	db := config.GetDB()
	level, err := utils.FetchModel[Level](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(level).Updates(map[string]interface{}{
		"Name": input.Name,
	}).Error; err != nil {
		return nil, err
	}
	utils.RemoveRedisList[Level]()

	return level, nil
}

func DeleteLevel(ctx context.Context, id int) (*Level, error) {
	db := config.GetDB()
	level, err := utils.FetchModel[Level](ctx, id)
	if err != nil {
		return nil, err
	}
	var count int64
	if err := db.WithContext(ctx).Table("educational_institutions").Where("level_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewConflictError("el nivel está referenciado por instituciones educativas")
	}
	if err = db.WithContext(ctx).Delete(level).Error; err != nil {
		return nil, err
	}
	utils.RemoveRedisList[Level]()
	return level, nil
}

func GetLevel(ctx context.Context, id int) (*Level, error) {
	return utils.FetchModel[Level](ctx, id)
}

func ListLevels(ctx context.Context) ([]*Level, error) {
	cached, err := utils.RetrieveRedisList[Level]()
	if err == nil && cached != nil {
		return cached, nil
	}
	levels, err := utils.FetchAllModels[Level](ctx)
	if err != nil {
		return nil, err
	}
	utils.StoreRedisList[Level](levels)
	return levels, nil
}

// FindLevelByName resolves a raw value by name, case-insensitive exact match.
func FindLevelByName(ctx context.Context, name string) (*Level, error) {
	db := config.GetDB()
	var level Level
	err := db.WithContext(ctx).
		Where("LOWER(name) = LOWER(?)", name).
		First(&level).Error
	if err == gorm.ErrRecordNotFound {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &level, nil
}
