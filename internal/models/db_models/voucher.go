package db_models

import "github.com/google/uuid"

type Voucher struct {
	BaseModel
	Code       string `gorm:"size:32;uniqueIndex"`
	UsageLimit int
	UsedCount  int `gorm:"not null;default:0"`
}

// VoucherUsage ties one voucher redemption to the order that consumed it.
type VoucherUsage struct {
	BaseModel
	VoucherID  uuid.UUID `gorm:"type:uuid;index;not null"`
	OrderID    uuid.UUID `gorm:"type:uuid;index;not null"`
	CustomerID uuid.UUID `gorm:"type:uuid;index"`
}
