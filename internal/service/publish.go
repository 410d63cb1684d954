package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guideforge/guideforge/internal/generation"
	"github.com/guideforge/guideforge/internal/qualitygate"
	"github.com/guideforge/guideforge/internal/store"
	"github.com/guideforge/guideforge/internal/store/model"
	"github.com/guideforge/guideforge/pkg/metrics"
)

const (
	autoPublishNote = "auto-published by quality gate"
	holdNote        = "held for review: confidence below review threshold"
)

// PublishService routes generated artifacts into their publish outcome. Each
// branch advances job, product, and guide content in a single transaction so
// no dispatcher ever observes an approved job with unpublished content.
type PublishService struct {
	store       store.Store
	maxErrorLen int
	logger      *zap.SugaredLogger
}

func NewPublishService(store store.Store, maxErrorLen int) *PublishService {
	if maxErrorLen <= 0 {
		maxErrorLen = 500
	}
	return &PublishService{
		store:       store,
		maxErrorLen: maxErrorLen,
		logger:      zap.S().Named("publish_service"),
	}
}

// ResolveThresholds reads the active stored configuration, falling back to
// the defaults. It is called fresh for every classification; thresholds are
// never cached across jobs.
func (s *PublishService) ResolveThresholds(ctx context.Context) qualitygate.Thresholds {
	cfg, err := s.store.Threshold().Active(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrRecordNotFound) {
			s.logger.Warnw("failed to read active thresholds, using defaults", "error", err)
		}
		return qualitygate.DefaultThresholds()
	}
	return qualitygate.Thresholds{
		AutoPublishMinConfidence: cfg.AutoPublishMinConfidence,
		ReviewQueueMinConfidence: cfg.ReviewQueueMinConfidence,
	}
}

// Publish commits the outcome of one generation attempt.
func (s *PublishService) Publish(ctx context.Context, job *model.GenerationJob, artifact *generation.Artifact, result qualitygate.Result, decision qualitygate.Decision) error {
	raw, err := artifact.Marshal()
	if err != nil {
		return fmt.Errorf("encoding artifact for job %s: %w", job.ID, err)
	}

	ctx, err = s.store.NewTransactionContext(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = store.Rollback(ctx)
	}()

	job.RawOutput = raw
	job.ConfidenceScore = &result.OverallConfidence
	job.QualityFlags = model.MakeJSONField(result.Flags)
	job.PrimaryModel = optional(artifact.Metadata.PrimaryModel)
	job.SecondaryModel = optional(artifact.Metadata.SecondaryModel)

	fields := []string{"status", "completed_at", "review_notes", "raw_output", "confidence_score", "quality_flags", "primary_model", "secondary_model"}

	switch decision {
	case qualitygate.DecisionAutoPublish:
		now := time.Now()
		note := autoPublishNote
		job.Status = model.JobStatusApproved
		job.CompletedAt = &now
		job.ReviewNotes = &note

		if err := s.materialize(ctx, job, artifact, result.OverallConfidence); err != nil {
			return err
		}
		if err := s.store.Product().UpdateGuideStatus(ctx, job.ProductID, model.GuideStatusPublished); err != nil {
			return err
		}

	case qualitygate.DecisionReview:
		// content goes live immediately, carrying the AI-generated
		// indicator, while a human verifies it
		job.Status = model.JobStatusReview

		if err := s.materialize(ctx, job, artifact, result.OverallConfidence); err != nil {
			return err
		}
		if err := s.store.Product().UpdateGuideStatus(ctx, job.ProductID, model.GuideStatusPublished); err != nil {
			return err
		}

	case qualitygate.DecisionHold:
		note := holdNote
		job.Status = model.JobStatusReview
		job.ReviewNotes = &note

		if err := s.store.Product().UpdateGuideStatus(ctx, job.ProductID, model.GuideStatusInReview); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown publish decision %q for job %s", decision, job.ID)
	}

	if _, err := s.store.Job().Update(ctx, *job, fields); err != nil {
		return err
	}

	if _, err := store.Commit(ctx); err != nil {
		return err
	}

	metrics.IncreaseJobOutcomeMetric(string(decision))
	s.logger.Infow("publish outcome committed",
		"job_id", job.ID,
		"product_id", job.ProductID,
		"decision", decision,
		"confidence", result.OverallConfidence,
		"flags", len(result.Flags),
	)
	return nil
}

// Fail marks a job failed and resets its product, atomically. Any partial
// output from the generation boundary is discarded.
func (s *PublishService) Fail(ctx context.Context, job *model.GenerationJob, cause error) error {
	ctx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = store.Rollback(ctx)
	}()

	now := time.Now()
	msg := truncate(cause.Error(), s.maxErrorLen)
	job.Status = model.JobStatusFailed
	job.CompletedAt = &now
	job.ReviewNotes = &msg

	if _, err := s.store.Job().Update(ctx, *job, []string{"status", "completed_at", "review_notes"}); err != nil {
		return err
	}
	if err := s.store.Product().UpdateGuideStatus(ctx, job.ProductID, model.GuideStatusNone); err != nil {
		return err
	}

	if _, err := store.Commit(ctx); err != nil {
		return err
	}

	metrics.IncreaseJobOutcomeMetric("failed")
	s.logger.Warnw("job failed", "job_id", job.ID, "product_id", job.ProductID, "error", msg)
	return nil
}

// Approve publishes a held or flagged job from its stored artifact.
func (s *PublishService) Approve(ctx context.Context, jobID uuid.UUID, reviewer string) (*model.GenerationJob, error) {
	ctx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = store.Rollback(ctx)
	}()

	job, err := s.reviewableJob(ctx, jobID, "approve")
	if err != nil {
		return nil, err
	}

	if len(job.RawOutput) == 0 {
		return nil, NewErrNoStoredArtifact(jobID)
	}
	artifact, err := generation.UnmarshalArtifact(job.RawOutput)
	if err != nil {
		return nil, fmt.Errorf("decoding stored artifact for job %s: %w", jobID, err)
	}

	confidence := 0.0
	if job.ConfidenceScore != nil {
		confidence = *job.ConfidenceScore
	}
	if err := s.materialize(ctx, job, artifact, confidence); err != nil {
		return nil, err
	}

	now := time.Now()
	job.Status = model.JobStatusApproved
	job.CompletedAt = &now
	job.ReviewedBy = &reviewer

	// two reviewers deciding the same job race on this guard; the loser's
	// transaction rolls back instead of overwriting the winner
	if _, err := s.store.Job().UpdateIfStatus(ctx, *job, model.JobStatusReview, []string{"status", "completed_at", "reviewed_by"}); err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			return nil, invalidStateAfterConflict(ctx, s.store, jobID, "approve")
		}
		return nil, err
	}
	if err := s.store.Product().UpdateGuideStatus(ctx, job.ProductID, model.GuideStatusPublished); err != nil {
		return nil, err
	}

	if _, err := store.Commit(ctx); err != nil {
		return nil, err
	}

	s.logger.Infow("job approved", "job_id", jobID, "reviewer", reviewer)
	return job, nil
}

// Reject fails a job under review and withdraws its product.
func (s *PublishService) Reject(ctx context.Context, jobID uuid.UUID, reviewer, notes string) (*model.GenerationJob, error) {
	ctx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = store.Rollback(ctx)
	}()

	job, err := s.reviewableJob(ctx, jobID, "reject")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	notes = truncate(notes, s.maxErrorLen)
	job.Status = model.JobStatusFailed
	job.CompletedAt = &now
	job.ReviewNotes = &notes
	job.ReviewedBy = &reviewer

	if _, err := s.store.Job().UpdateIfStatus(ctx, *job, model.JobStatusReview, []string{"status", "completed_at", "review_notes", "reviewed_by"}); err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			return nil, invalidStateAfterConflict(ctx, s.store, jobID, "reject")
		}
		return nil, err
	}
	if err := s.store.Product().UpdateGuideStatus(ctx, job.ProductID, model.GuideStatusNone); err != nil {
		return nil, err
	}

	if _, err := store.Commit(ctx); err != nil {
		return nil, err
	}

	s.logger.Infow("job rejected", "job_id", jobID, "reviewer", reviewer)
	return job, nil
}

// materialize replaces the product's guide wholesale from the artifact.
func (s *PublishService) materialize(ctx context.Context, job *model.GenerationJob, artifact *generation.Artifact, confidence float64) error {
	product, err := s.store.Product().Get(ctx, job.ProductID)
	if err != nil {
		return err
	}

	steps := make([]model.GuideStep, len(artifact.Steps))
	for i, step := range artifact.Steps {
		steps[i] = model.GuideStep{
			Title:           step.Title,
			Instruction:     step.Instruction,
			IllustrationURL: optional(step.IllustrationURL),
			Tip:             optional(step.Tip),
		}
	}

	guide := model.AssemblyGuide{
		ProductID:       job.ProductID,
		Title:           fmt.Sprintf("%s assembly guide", product.Name),
		AiGenerated:     true,
		Published:       true,
		Confidence:      &confidence,
		PrimaryModel:    optional(artifact.Metadata.PrimaryModel),
		SecondaryModel:  optional(artifact.Metadata.SecondaryModel),
		SourcePageCount: artifact.Metadata.SourcePageCount,
		Steps:           steps,
		CreatedAt:       time.Now(),
	}

	if _, err := s.store.Guide().Replace(ctx, guide); err != nil {
		return fmt.Errorf("materializing guide for product %s: %w", job.ProductID, err)
	}
	return nil
}

func (s *PublishService) reviewableJob(ctx context.Context, jobID uuid.UUID, operation string) (*model.GenerationJob, error) {
	job, err := s.store.Job().Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(jobID)
		}
		return nil, err
	}
	if job.Status != model.JobStatusReview {
		return nil, NewErrInvalidJobState(jobID, job.Status, operation)
	}
	return job, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
