package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"payflow/internal/infra"
	dbm "payflow/internal/models/db_models"
)

type VoucherRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*dbm.Voucher, error)

	// DeleteUsage removes the usage record tying voucherID to orderID and
	// reports whether one existed.
	DeleteUsage(ctx context.Context, voucherID, orderID uuid.UUID) (bool, error)

	// DecrementUsage lowers the usage counter, never below zero.
	DecrementUsage(ctx context.Context, voucherID uuid.UUID) error
}

type voucherRepository struct {
	db *gorm.DB
}

func NewVoucherRepository(db *gorm.DB) VoucherRepository {
	return &voucherRepository{db: db}
}

func (r *voucherRepository) FindByID(ctx context.Context, id uuid.UUID) (*dbm.Voucher, error) {
	var voucher dbm.Voucher
	err := infra.Conn(ctx, r.db).First(&voucher, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &voucher, nil
}

func (r *voucherRepository) DeleteUsage(ctx context.Context, voucherID, orderID uuid.UUID) (bool, error) {
	res := infra.Conn(ctx, r.db).
		Where("voucher_id = ? AND order_id = ?", voucherID, orderID).
		Delete(&dbm.VoucherUsage{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *voucherRepository) DecrementUsage(ctx context.Context, voucherID uuid.UUID) error {
	return infra.Conn(ctx, r.db).Model(&dbm.Voucher{}).
		Where("id = ? AND used_count > 0", voucherID).
		Update("used_count", gorm.Expr("used_count - 1")).Error
}
