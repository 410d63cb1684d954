package model

import "time"

// ThresholdConfig stores operator-tunable quality gate thresholds. At most
// one row is active; classification reads the active row on every call so a
// change takes effect on the next job.
type ThresholdConfig struct {
	ID                       uint    `gorm:"primaryKey;autoIncrement"`
	AutoPublishMinConfidence float64 `gorm:"not null"`
	ReviewQueueMinConfidence float64 `gorm:"not null"`
	Active                   bool    `gorm:"not null;index:threshold_configs_active_idx"`
	CreatedAt                time.Time
}
