package repositories

import (
	"context"

	"gorm.io/gorm"
	"payflow/internal/infra"
	dbm "payflow/internal/models/db_models"
)

type AuditRepository interface {
	Create(ctx context.Context, entry *dbm.AuditLog) error
	ListByTransaction(ctx context.Context, transactionID string) ([]dbm.AuditLog, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry *dbm.AuditLog) error {
	return infra.Conn(ctx, r.db).Create(entry).Error
}

func (r *auditRepository) ListByTransaction(ctx context.Context, transactionID string) ([]dbm.AuditLog, error) {
	var entries []dbm.AuditLog
	err := infra.Conn(ctx, r.db).
		Where("transaction_id = ?", transactionID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
