package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Product guide_status constants. The product mirrors its job's lifecycle and
// is written only in the same transaction as the job transition.
const (
	GuideStatusNone       = "none"
	GuideStatusQueued     = "queued"
	GuideStatusGenerating = "generating"
	GuideStatusInReview   = "in_review"
	GuideStatusPublished  = "published"
)

type Product struct {
	ID          uuid.UUID `gorm:"primaryKey"`
	Name        string    `gorm:"not null"`
	GuideStatus string    `gorm:"not null;type:VARCHAR(20);default:none"`
	DocumentURL *string   `gorm:"type:TEXT"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   *time.Time
}

type ProductList []Product

func (p Product) String() string {
	val, _ := json.Marshal(p)
	return string(val)
}
