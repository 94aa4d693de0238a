package infra

import (
	"fmt"

	"gorm.io/gorm"
	dbm "payflow/internal/models/db_models"
)

// Migrate creates the payment tables plus the partial unique index that
// enforces at most one open (PENDING/PROCESSING) transaction per order.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&dbm.Transaction{},
		&dbm.Order{},
		&dbm.OrderItem{},
		&dbm.OrderState{},
		&dbm.Product{},
		&dbm.Voucher{},
		&dbm.VoucherUsage{},
		&dbm.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_open_order
		ON transactions (order_id) WHERE status IN ('PENDING', 'PROCESSING') AND deleted_at IS NULL`).Error; err != nil {
		return fmt.Errorf("create open-order index: %w", err)
	}
	return nil
}
