package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"payflow/internal/infra"
	dbm "payflow/internal/models/db_models"
)

type ProductRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*dbm.Product, error)
	IncreaseStock(ctx context.Context, id uuid.UUID, quantity int) error
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*dbm.Product, error) {
	var product dbm.Product
	err := infra.Conn(ctx, r.db).First(&product, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) IncreaseStock(ctx context.Context, id uuid.UUID, quantity int) error {
	res := infra.Conn(ctx, r.db).Model(&dbm.Product{}).
		Where("id = ?", id).
		Update("stock", gorm.Expr("stock + ?", quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product %s not found", id)
	}
	return nil
}
