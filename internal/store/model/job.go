package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job status constants
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusReview     = "review"
	JobStatusApproved   = "approved"
	JobStatusFailed     = "failed"
)

// Job trigger constants
const (
	TriggeredByManual = "manual"
	TriggeredByCron   = "cron"
	TriggeredByBatch  = "batch"
)

// Priority ranks order the claim scan: the lowest rank is claimed first.
const (
	PriorityHigh   = 0
	PriorityNormal = 1
	PriorityLow    = 2
)

func ParsePriority(name string) (int, error) {
	switch name {
	case "high":
		return PriorityHigh, nil
	case "normal", "":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", name)
	}
}

func PriorityName(rank int) string {
	switch rank {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

type GenerationJob struct {
	ID               uuid.UUID            `gorm:"primaryKey"`
	ProductID        uuid.UUID            `gorm:"not null;index:generation_jobs_product_idx"`
	Status           string               `gorm:"not null;type:VARCHAR(20);index:generation_jobs_status_idx"`
	PriorityRank     int                  `gorm:"not null;default:1"`
	TriggeredBy      string               `gorm:"not null;type:VARCHAR(20)"`
	CreatedAt        time.Time            `gorm:"not null"`
	CompletedAt      *time.Time
	InputDocumentURL string               `gorm:"type:TEXT"`
	RawOutput        []byte               `gorm:"type:jsonb"`
	ConfidenceScore  *float64
	QualityFlags     *JSONField[[]string] `gorm:"type:jsonb"`
	ReviewNotes      *string              `gorm:"type:TEXT"`
	ReviewedBy       *string              `gorm:"type:VARCHAR(255)"`
	PrimaryModel     *string              `gorm:"type:VARCHAR(255)"`
	SecondaryModel   *string              `gorm:"type:VARCHAR(255)"`
}

type GenerationJobList []GenerationJob

func (j GenerationJob) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}

// Active reports whether the job occupies its product's single
// non-terminal slot.
func (j GenerationJob) Active() bool {
	return j.Status == JobStatusQueued || j.Status == JobStatusProcessing
}
