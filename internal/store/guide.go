package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/guideforge/guideforge/internal/store/model"
)

type Guide interface {
	InitialMigration() error
	GetByProduct(ctx context.Context, productID uuid.UUID) (*model.AssemblyGuide, error)
	// Replace materializes the guide for a product, discarding any previous
	// guide and all of its steps. Republishing is always a wholesale swap.
	Replace(ctx context.Context, guide model.AssemblyGuide) (*model.AssemblyGuide, error)
}

type GuideStore struct {
	db *gorm.DB
}

// Make sure we conform to Guide interface
var _ Guide = (*GuideStore)(nil)

func NewGuideStore(db *gorm.DB) Guide {
	return &GuideStore{db: db}
}

func (s *GuideStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.AssemblyGuide{}, &model.GuideStep{})
}

func (s *GuideStore) GetByProduct(ctx context.Context, productID uuid.UUID) (*model.AssemblyGuide, error) {
	var guide model.AssemblyGuide
	result := s.getDB(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		First(&guide, "product_id = ?", productID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &guide, nil
}

func (s *GuideStore) Replace(ctx context.Context, guide model.AssemblyGuide) (*model.AssemblyGuide, error) {
	db := s.getDB(ctx)

	var existing model.AssemblyGuide
	result := db.First(&existing, "product_id = ?", guide.ProductID)
	switch {
	case result.Error == nil:
		if err := db.Where("guide_id = ?", existing.ID).Delete(&model.GuideStep{}).Error; err != nil {
			return nil, err
		}
		if err := db.Delete(&model.AssemblyGuide{}, "id = ?", existing.ID).Error; err != nil {
			return nil, err
		}
	case errors.Is(result.Error, gorm.ErrRecordNotFound):
		// first publish for this product
	default:
		return nil, result.Error
	}

	if guide.ID == uuid.Nil {
		guide.ID = uuid.New()
	}
	for i := range guide.Steps {
		guide.Steps[i].GuideID = guide.ID
		guide.Steps[i].Position = i + 1
	}

	if err := db.Create(&guide).Error; err != nil {
		return nil, err
	}
	return &guide, nil
}

func (s *GuideStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
