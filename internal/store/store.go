package store

import (
	"context"

	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Job() Job
	Product() Product
	Guide() Guide
	Threshold() Threshold
	InitialMigration() error
	Close() error
}

type DataStore struct {
	db        *gorm.DB
	job       Job
	product   Product
	guide     Guide
	threshold Threshold
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:        db,
		job:       NewJobStore(db),
		product:   NewProductStore(db),
		guide:     NewGuideStore(db),
		threshold: NewThresholdStore(db),
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) Product() Product {
	return s.product
}

func (s *DataStore) Guide() Guide {
	return s.guide
}

func (s *DataStore) Threshold() Threshold {
	return s.threshold
}

func (s *DataStore) InitialMigration() error {
	if err := s.product.InitialMigration(); err != nil {
		return err
	}
	if err := s.job.InitialMigration(); err != nil {
		return err
	}
	if err := s.guide.InitialMigration(); err != nil {
		return err
	}
	return s.threshold.InitialMigration()
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
