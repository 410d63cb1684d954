package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/guideforge/guideforge/internal/store/model"
)

var (
	// ErrNoQueuedJobs is returned by ClaimNext when the queue is empty.
	ErrNoQueuedJobs = errors.New("no queued jobs")
	// ErrClaimLost is returned by ClaimNext when another dispatcher won the
	// conditional transition for the selected candidate.
	ErrClaimLost = errors.New("claim lost")
	// ErrStaleStatus is returned by UpdateIfStatus when the row no longer
	// holds the expected status, or no longer exists.
	ErrStaleStatus = errors.New("job status changed")
)

type Job interface {
	InitialMigration() error
	Create(ctx context.Context, job model.GenerationJob) (*model.GenerationJob, error)
	Get(ctx context.Context, id uuid.UUID) (*model.GenerationJob, error)
	List(ctx context.Context, filter *JobQueryFilter) (model.GenerationJobList, error)
	Update(ctx context.Context, job model.GenerationJob, fields []string) (*model.GenerationJob, error)
	UpdateIfStatus(ctx context.Context, job model.GenerationJob, expectedStatus string, fields []string) (*model.GenerationJob, error)
	ActiveForProduct(ctx context.Context, productID uuid.UUID) (*model.GenerationJob, error)
	ClaimNext(ctx context.Context) (*model.GenerationJob, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
	CountProcessing(ctx context.Context) (int, error)
}

type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (s *JobStore) InitialMigration() error {
	if err := s.db.AutoMigrate(&model.GenerationJob{}); err != nil {
		return err
	}
	// the single active slot per product is backed by the database, not just
	// the check in the enqueue transaction
	return s.db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_generation_jobs_active_product " +
		"ON generation_jobs (product_id) WHERE status IN ('queued', 'processing')").Error
}

func (s *JobStore) Create(ctx context.Context, job model.GenerationJob) (*model.GenerationJob, error) {
	if result := s.getDB(ctx).Create(&job); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, result.Error
	}
	return &job, nil
}

func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*model.GenerationJob, error) {
	var job model.GenerationJob
	if result := s.getDB(ctx).First(&job, "id = ?", id); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &job, nil
}

func (s *JobStore) List(ctx context.Context, filter *JobQueryFilter) (model.GenerationJobList, error) {
	var jobs model.GenerationJobList

	tx := s.getDB(ctx).Model(&model.GenerationJob{})
	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if result := tx.Order("created_at").Find(&jobs); result.Error != nil {
		return nil, result.Error
	}
	return jobs, nil
}

// Update writes only the named columns, leaving the rest of the row alone.
func (s *JobStore) Update(ctx context.Context, job model.GenerationJob, fields []string) (*model.GenerationJob, error) {
	result := s.getDB(ctx).Model(&model.GenerationJob{ID: job.ID}).Select(fields).Updates(&job)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrRecordNotFound
	}
	return &job, nil
}

// UpdateIfStatus writes the named columns only while the row still holds the
// expected status, using the same conditional guard as ClaimNext. A
// transition that raced ahead of the caller surfaces as ErrStaleStatus
// instead of overwriting it.
func (s *JobStore) UpdateIfStatus(ctx context.Context, job model.GenerationJob, expectedStatus string, fields []string) (*model.GenerationJob, error) {
	result := s.getDB(ctx).Model(&model.GenerationJob{ID: job.ID}).
		Where("status = ?", expectedStatus).
		Select(fields).
		Updates(&job)
	if result.Error != nil {
		// re-queueing can collide with the active slot index
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrStaleStatus
	}
	return &job, nil
}

// ActiveForProduct returns the queued or processing job owning the product's
// single active slot, or ErrRecordNotFound. Jobs sitting in review do not
// hold the slot, so a product can be re-enqueued while its previous output
// awaits a reviewer.
func (s *JobStore) ActiveForProduct(ctx context.Context, productID uuid.UUID) (*model.GenerationJob, error) {
	var job model.GenerationJob
	result := s.getDB(ctx).
		Where("product_id = ?", productID).
		Where("status IN ?", []string{model.JobStatusQueued, model.JobStatusProcessing}).
		First(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &job, nil
}

// ClaimNext selects the best queued candidate (lowest priority rank, oldest
// first) and attempts the conditional queued→processing transition scoped to
// that row's id and expected prior status. The conditional update is the only
// coordination between concurrent dispatchers: if another invocation already
// claimed the row, zero rows are affected and ErrClaimLost is returned.
func (s *JobStore) ClaimNext(ctx context.Context) (*model.GenerationJob, error) {
	db := s.getDB(ctx)

	var candidate model.GenerationJob
	result := db.
		Where("status = ?", model.JobStatusQueued).
		Order("priority_rank, created_at").
		First(&candidate)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNoQueuedJobs
		}
		return nil, fmt.Errorf("selecting claim candidate: %w", result.Error)
	}

	result = db.Model(&model.GenerationJob{}).
		Where("id = ? AND status = ?", candidate.ID, model.JobStatusQueued).
		Update("status", model.JobStatusProcessing)
	if result.Error != nil {
		return nil, fmt.Errorf("claiming job %s: %w", candidate.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrClaimLost
	}

	candidate.Status = model.JobStatusProcessing
	return &candidate, nil
}

func (s *JobStore) CountByStatus(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Status string
		Count  int
	}
	result := s.getDB(ctx).
		Model(&model.GenerationJob{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows)
	if result.Error != nil {
		return nil, result.Error
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (s *JobStore) CountProcessing(ctx context.Context) (int, error) {
	var count int64
	result := s.getDB(ctx).
		Model(&model.GenerationJob{}).
		Where("status = ?", model.JobStatusProcessing).
		Count(&count)
	if result.Error != nil {
		return 0, result.Error
	}
	return int(count), nil
}

func (s *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
