package models

import (
	"context"
	"time"

	"bitbucket.org/minedudata/nexus_backend/config"
	"bitbucket.org/minedudata/nexus_backend/utils"
)

// PrelationOrder is a rank value ("Primera Prelación", "Segunda Prelación", ...).
// The id sequence is the total order: a higher id is a lower-priority rank.
type PrelationOrder struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null;unique" json:"name" binding:"required"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPrelationOrder struct {
	Name string `json:"name" binding:"required"`
}

func (input *NewPrelationOrder) validate(ctx context.Context, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[PrelationOrder](ctx, id); err != nil {
			return err
		}
	}
	if err := utils.ValidateUnique[PrelationOrder](ctx, "name", input.Name, id); err != nil {
		return err
	}
	return nil
}

func CreatePrelationOrder(ctx context.Context, input *NewPrelationOrder) (*PrelationOrder, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	order := PrelationOrder{
		Name: input.Name,
	}
	if err := db.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, err
	}
	utils.RemoveRedisList[PrelationOrder]()

	return &order, nil
}

func DeletePrelationOrder(ctx context.Context, id int) (*PrelationOrder, error) {
	db := config.GetDB()
	order, err := utils.FetchModel[PrelationOrder](ctx, id)
	if err != nil {
		return nil, err
	}
	var count int64
	if err := db.WithContext(ctx).Table("prelations").Where("order_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewConflictError("el orden de prelación está referenciado por prelaciones")
	}
	if err = db.WithContext(ctx).Delete(order).Error; err != nil {
		return nil, err
	}
	utils.RemoveRedisList[PrelationOrder]()
	return order, nil
}

func GetPrelationOrder(ctx context.Context, id int) (*PrelationOrder, error) {
	return utils.FetchModel[PrelationOrder](ctx, id)
}

func ListPrelationOrders(ctx context.Context) ([]*PrelationOrder, error) {
	cached, err := utils.RetrieveRedisList[PrelationOrder]()
	if err == nil && cached != nil {
		return cached, nil
	}
	orders, err := utils.FetchAllModels[PrelationOrder](ctx)
	if err != nil {
		return nil, err
	}
	utils.StoreRedisList[PrelationOrder](orders)
	return orders, nil
}
