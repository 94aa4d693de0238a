package db_models

type Product struct {
	BaseModel
	Name  string
	SKU   string `gorm:"size:64;index"`
	Stock int    `gorm:"not null;default:0"`
}
