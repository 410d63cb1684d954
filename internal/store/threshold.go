package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/guideforge/guideforge/internal/store/model"
)

type Threshold interface {
	InitialMigration() error
	// Active returns the currently-active threshold configuration or
	// ErrRecordNotFound when none has been stored.
	Active(ctx context.Context) (*model.ThresholdConfig, error)
	// Save activates the given thresholds, deactivating any prior row.
	Save(ctx context.Context, cfg model.ThresholdConfig) (*model.ThresholdConfig, error)
}

type ThresholdStore struct {
	db *gorm.DB
}

// Make sure we conform to Threshold interface
var _ Threshold = (*ThresholdStore)(nil)

func NewThresholdStore(db *gorm.DB) Threshold {
	return &ThresholdStore{db: db}
}

func (s *ThresholdStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.ThresholdConfig{})
}

func (s *ThresholdStore) Active(ctx context.Context) (*model.ThresholdConfig, error) {
	var cfg model.ThresholdConfig
	result := s.getDB(ctx).
		Where("active = ?", true).
		Order("created_at DESC").
		First(&cfg)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &cfg, nil
}

func (s *ThresholdStore) Save(ctx context.Context, cfg model.ThresholdConfig) (*model.ThresholdConfig, error) {
	db := s.getDB(ctx)

	if err := db.Model(&model.ThresholdConfig{}).
		Where("active = ?", true).
		Update("active", false).Error; err != nil {
		return nil, err
	}

	cfg.Active = true
	if err := db.Create(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *ThresholdStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
