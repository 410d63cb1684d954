package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/guideforge/guideforge/internal/store/model"
)

type Product interface {
	InitialMigration() error
	Get(ctx context.Context, id uuid.UUID) (*model.Product, error)
	Create(ctx context.Context, product model.Product) (*model.Product, error)
	UpdateGuideStatus(ctx context.Context, id uuid.UUID, guideStatus string) error
}

type ProductStore struct {
	db *gorm.DB
}

// Make sure we conform to Product interface
var _ Product = (*ProductStore)(nil)

func NewProductStore(db *gorm.DB) Product {
	return &ProductStore{db: db}
}

func (s *ProductStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.Product{})
}

func (s *ProductStore) Get(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var product model.Product
	if result := s.getDB(ctx).First(&product, "id = ?", id); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &product, nil
}

func (s *ProductStore) Create(ctx context.Context, product model.Product) (*model.Product, error) {
	if result := s.getDB(ctx).Create(&product); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, result.Error
	}
	return &product, nil
}

func (s *ProductStore) UpdateGuideStatus(ctx context.Context, id uuid.UUID, guideStatus string) error {
	result := s.getDB(ctx).
		Model(&model.Product{ID: id}).
		Update("guide_status", guideStatus)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *ProductStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
