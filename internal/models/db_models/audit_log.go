package db_models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AuditLog is an append-only record of payment transitions and compensations.
type AuditLog struct {
	BaseModel
	Event         string     `gorm:"size:48;index;not null"`
	TransactionID string     `gorm:"size:40;index"`
	OrderID       *uuid.UUID `gorm:"type:uuid;index"`
	FromStatus    string     `gorm:"size:16"`
	ToStatus      string     `gorm:"size:16"`
	Source        string     `gorm:"size:32"`
	Payload       datatypes.JSON
}
