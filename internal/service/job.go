package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guideforge/guideforge/internal/store"
	"github.com/guideforge/guideforge/internal/store/model"
	"github.com/guideforge/guideforge/pkg/metrics"
)

const cancelledNote = "cancelled"

// BatchResult reports the outcome of a batch enqueue. Ineligible products
// are skipped, never failures.
type BatchResult struct {
	Queued  int `json:"queued"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
}

type JobService struct {
	store  store.Store
	logger *zap.SugaredLogger
}

func NewJobService(store store.Store) *JobService {
	return &JobService{
		store:  store,
		logger: zap.S().Named("job_service"),
	}
}

// Enqueue creates a queued generation job for the product and moves the
// product's guide status to queued, in one transaction.
func (s *JobService) Enqueue(ctx context.Context, productID uuid.UUID, priorityRank int, triggeredBy string) (*model.GenerationJob, error) {
	ctx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = store.Rollback(ctx)
	}()

	job, err := s.enqueueOne(ctx, productID, priorityRank, triggeredBy)
	if err != nil {
		return nil, err
	}

	if _, err := store.Commit(ctx); err != nil {
		return nil, err
	}

	metrics.IncreaseJobsEnqueuedMetric(triggeredBy)
	s.logger.Infow("job enqueued", "job_id", job.ID, "product_id", productID, "priority", model.PriorityName(priorityRank))
	return job, nil
}

// EnqueueBatch applies the same eligibility checks per product and creates
// all eligible jobs in a single transaction. Products lacking a source
// document or already holding an active job are counted as skipped.
func (s *JobService) EnqueueBatch(ctx context.Context, productIDs []uuid.UUID, priorityRank int, triggeredBy string) (*BatchResult, error) {
	ctx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = store.Rollback(ctx)
	}()

	result := &BatchResult{Total: len(productIDs)}
	for _, productID := range productIDs {
		_, err := s.enqueueOne(ctx, productID, priorityRank, triggeredBy)
		switch err.(type) {
		case nil:
			result.Queued++
		case *ErrProductNotFound, *ErrNoSourceDocument, *ErrJobAlreadyActive:
			result.Skipped++
		default:
			return nil, err
		}
	}

	if _, err := store.Commit(ctx); err != nil {
		return nil, err
	}

	for i := 0; i < result.Queued; i++ {
		metrics.IncreaseJobsEnqueuedMetric(triggeredBy)
	}
	s.logger.Infow("batch enqueued", "queued", result.Queued, "skipped", result.Skipped, "total", result.Total)
	return result, nil
}

func (s *JobService) enqueueOne(ctx context.Context, productID uuid.UUID, priorityRank int, triggeredBy string) (*model.GenerationJob, error) {
	product, err := s.store.Product().Get(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrProductNotFound(productID)
		}
		return nil, err
	}

	if product.DocumentURL == nil || *product.DocumentURL == "" {
		return nil, NewErrNoSourceDocument(productID)
	}

	if active, err := s.store.Job().ActiveForProduct(ctx, productID); err == nil {
		return nil, NewErrJobAlreadyActive(productID, active.ID)
	} else if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	job, err := s.store.Job().Create(ctx, model.GenerationJob{
		ID:               uuid.New(),
		ProductID:        productID,
		Status:           model.JobStatusQueued,
		PriorityRank:     priorityRank,
		TriggeredBy:      triggeredBy,
		CreatedAt:        time.Now(),
		InputDocumentURL: *product.DocumentURL,
	})
	if err != nil {
		// the active slot index catches a concurrent enqueue that slipped
		// past the ActiveForProduct check
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, s.jobAlreadyActiveErr(ctx, productID)
		}
		return nil, fmt.Errorf("creating job for product %s: %w", productID, err)
	}

	if err := s.store.Product().UpdateGuideStatus(ctx, productID, model.GuideStatusQueued); err != nil {
		return nil, fmt.Errorf("marking product %s queued: %w", productID, err)
	}

	return job, nil
}

// Cancel stops a job that has not been claimed yet. Claimed jobs run to
// completion.
func (s *JobService) Cancel(ctx context.Context, jobID uuid.UUID) (*model.GenerationJob, error) {
	ctx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = store.Rollback(ctx)
	}()

	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusQueued {
		return nil, NewErrInvalidJobState(jobID, job.Status, "cancel")
	}

	now := time.Now()
	note := cancelledNote
	job.Status = model.JobStatusFailed
	job.CompletedAt = &now
	job.ReviewNotes = &note

	// guarded on the status the read saw, so a dispatcher claim that lands
	// in between never gets its job cancelled out from under it
	if _, err := s.store.Job().UpdateIfStatus(ctx, *job, model.JobStatusQueued, []string{"status", "completed_at", "review_notes"}); err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			return nil, invalidStateAfterConflict(ctx, s.store, jobID, "cancel")
		}
		return nil, err
	}
	if err := s.store.Product().UpdateGuideStatus(ctx, job.ProductID, model.GuideStatusNone); err != nil {
		return nil, err
	}

	if _, err := store.Commit(ctx); err != nil {
		return nil, err
	}

	s.logger.Infow("job cancelled", "job_id", jobID)
	return job, nil
}

// Retry re-queues a failed job. Failure is the only state retry applies to;
// the pipeline never retries on its own.
func (s *JobService) Retry(ctx context.Context, jobID uuid.UUID) (*model.GenerationJob, error) {
	ctx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = store.Rollback(ctx)
	}()

	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusFailed {
		return nil, NewErrInvalidJobState(jobID, job.Status, "retry")
	}

	job.Status = model.JobStatusQueued
	job.CompletedAt = nil
	job.ReviewNotes = nil

	if _, err := s.store.Job().UpdateIfStatus(ctx, *job, model.JobStatusFailed, []string{"status", "completed_at", "review_notes"}); err != nil {
		switch {
		case errors.Is(err, store.ErrStaleStatus):
			return nil, invalidStateAfterConflict(ctx, s.store, jobID, "retry")
		case errors.Is(err, store.ErrDuplicateKey):
			// the product picked up a fresh job since this one failed
			return nil, s.jobAlreadyActiveErr(ctx, job.ProductID)
		default:
			return nil, err
		}
	}
	if err := s.store.Product().UpdateGuideStatus(ctx, job.ProductID, model.GuideStatusQueued); err != nil {
		return nil, err
	}

	if _, err := store.Commit(ctx); err != nil {
		return nil, err
	}

	s.logger.Infow("job retried", "job_id", jobID)
	return job, nil
}

func (s *JobService) Get(ctx context.Context, jobID uuid.UUID) (*model.GenerationJob, error) {
	return s.getJob(ctx, jobID)
}

func (s *JobService) List(ctx context.Context, status string) (model.GenerationJobList, error) {
	filter := store.NewJobQueryFilter()
	if status != "" {
		filter = filter.ByStatus(status)
	}
	return s.store.Job().List(ctx, filter)
}

// Stats returns job counts per status, with zero entries for all known
// statuses so the review surface always sees the full picture.
func (s *JobService) Stats(ctx context.Context) (map[string]int, error) {
	counts, err := s.store.Job().CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	for _, status := range []string{
		model.JobStatusQueued,
		model.JobStatusProcessing,
		model.JobStatusReview,
		model.JobStatusApproved,
		model.JobStatusFailed,
	} {
		if _, ok := counts[status]; !ok {
			counts[status] = 0
		}
	}
	return counts, nil
}

func (s *JobService) jobAlreadyActiveErr(ctx context.Context, productID uuid.UUID) error {
	activeID := uuid.Nil
	if active, err := s.store.Job().ActiveForProduct(ctx, productID); err == nil {
		activeID = active.ID
	}
	return NewErrJobAlreadyActive(productID, activeID)
}

// invalidStateAfterConflict re-reads a job after a guarded status update lost
// to a concurrent transition, so the caller reports the status that won.
func invalidStateAfterConflict(ctx context.Context, st store.Store, jobID uuid.UUID, operation string) error {
	job, err := st.Job().Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return NewErrJobNotFound(jobID)
		}
		return err
	}
	return NewErrInvalidJobState(jobID, job.Status, operation)
}

func (s *JobService) getJob(ctx context.Context, jobID uuid.UUID) (*model.GenerationJob, error) {
	job, err := s.store.Job().Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(jobID)
		}
		return nil, err
	}
	return job, nil
}
