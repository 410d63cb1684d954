package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AssemblyGuide struct {
	ID              uuid.UUID `gorm:"primaryKey"`
	ProductID       uuid.UUID `gorm:"not null;uniqueIndex:assembly_guides_product_idx"`
	Title           string    `gorm:"not null"`
	AiGenerated     bool      `gorm:"not null"`
	Published       bool      `gorm:"not null"`
	Confidence      *float64
	PrimaryModel    *string     `gorm:"type:VARCHAR(255)"`
	SecondaryModel  *string     `gorm:"type:VARCHAR(255)"`
	SourcePageCount int         `gorm:"not null;default:0"`
	Steps           []GuideStep `gorm:"foreignKey:GuideID;references:ID;constraint:OnDelete:CASCADE;"`
	CreatedAt       time.Time   `gorm:"not null"`
	UpdatedAt       *time.Time
}

type GuideStep struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	GuideID         uuid.UUID `gorm:"not null;index:guide_steps_guide_idx"`
	Position        int       `gorm:"not null"`
	Title           string    `gorm:"not null"`
	Instruction     string    `gorm:"not null;type:TEXT"`
	IllustrationURL *string   `gorm:"type:TEXT"`
	Tip             *string   `gorm:"type:TEXT"`
}

func (g AssemblyGuide) String() string {
	val, _ := json.Marshal(g)
	return string(val)
}
