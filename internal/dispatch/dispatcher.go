package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guideforge/guideforge/internal/generation"
	"github.com/guideforge/guideforge/internal/qualitygate"
	"github.com/guideforge/guideforge/internal/service"
	"github.com/guideforge/guideforge/internal/store"
	"github.com/guideforge/guideforge/internal/store/model"
	"github.com/guideforge/guideforge/pkg/metrics"
)

// Dispatch statuses reported by DispatchOne.
const (
	// StatusAtCapacity covers both reasons a trigger is deferred without
	// claiming: the concurrency cap is full, or the rate budget's wait
	// exceeds the per-tick ceiling. The log line distinguishes them.
	StatusAtCapacity  = "at_capacity"
	StatusNoJobs      = "no_jobs"
	StatusClaimFailed = "claim_failed"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
)

// Result describes what one on-demand dispatch attempt did, or why it did
// nothing.
type Result struct {
	Processed bool       `json:"processed"`
	Status    string     `json:"status"`
	JobID     *uuid.UUID `json:"jobId,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Config bounds a dispatcher invocation. The periodic driver degrades by
// doing less work in a tick, never by failing the tick.
type Config struct {
	ConcurrencyCap int
	JobsPerTick    int
	TickInterval   time.Duration
	MaxWaitPerTick time.Duration
}

// Dispatcher claims queued jobs, runs them through the generation boundary
// and the quality gate, and hands outcomes to the publish router. Multiple
// dispatcher invocations may run concurrently; the store's conditional claim
// is the only coordination between them.
type Dispatcher struct {
	store     store.Store
	generator generation.Generator
	checker   qualitygate.Checker
	governor  *RateGovernor
	publisher *service.PublishService
	cfg       Config
	logger    *zap.SugaredLogger

	// sleepFunc allows test injection of the bounded rate wait.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(store store.Store, generator generation.Generator, checker qualitygate.Checker, governor *RateGovernor, publisher *service.PublishService, cfg Config) *Dispatcher {
	if cfg.ConcurrencyCap <= 0 {
		cfg.ConcurrencyCap = 1
	}
	if cfg.JobsPerTick <= 0 {
		cfg.JobsPerTick = 1
	}
	return &Dispatcher{
		store:     store,
		generator: generator,
		checker:   checker,
		governor:  governor,
		publisher: publisher,
		cfg:       cfg,
		logger:    zap.S().Named("dispatcher"),
		sleepFunc: sleepContext,
	}
}

// Run drives the periodic batch dispatcher until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Infow("dispatcher started",
		"tick_interval", d.cfg.TickInterval,
		"concurrency_cap", d.cfg.ConcurrencyCap,
		"jobs_per_tick", d.cfg.JobsPerTick,
	)

	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return
		case <-ticker.C:
			d.RunTick(ctx)
		}
	}
}

// RunTick processes up to JobsPerTick queued jobs. It re-checks the global
// processing count before every claim and stops early when at capacity, when
// the rate budget requires waiting longer than the per-tick ceiling, or when
// the queue drains. Per-job errors never abort the tick.
func (d *Dispatcher) RunTick(ctx context.Context) {
	metrics.IncreaseDispatchTicksMetric()

	for i := 0; i < d.cfg.JobsPerTick; i++ {
		if ctx.Err() != nil {
			return
		}

		atCapacity, err := d.atCapacity(ctx)
		if err != nil {
			d.logger.Errorw("failed to read processing count", "error", err)
			return
		}
		if atCapacity {
			d.logger.Debugw("at concurrency cap, ending tick")
			return
		}

		if !d.governor.CanProceed() {
			wait := d.governor.WaitTime()
			if wait > d.cfg.MaxWaitPerTick {
				d.logger.Infow("rate budget exhausted, deferring to next tick", "wait", wait)
				return
			}
			if err := d.sleepFunc(ctx, wait); err != nil {
				return
			}
		}

		job, err := d.store.Job().ClaimNext(ctx)
		switch {
		case errors.Is(err, store.ErrNoQueuedJobs):
			return
		case errors.Is(err, store.ErrClaimLost):
			// another dispatcher got there first, try the next candidate
			continue
		case err != nil:
			d.logger.Errorw("claim failed", "error", err)
			return
		}

		d.process(ctx, job)
	}
}

// DispatchOne claims and processes at most one job, returning a result that
// says why nothing happened when nothing did. It is invoked synchronously
// from operator triggers.
func (d *Dispatcher) DispatchOne(ctx context.Context) (*Result, error) {
	metrics.IncreaseDispatchTicksMetric()

	atCapacity, err := d.atCapacity(ctx)
	if err != nil {
		return nil, err
	}
	if atCapacity {
		return &Result{Status: StatusAtCapacity}, nil
	}

	if !d.governor.CanProceed() {
		wait := d.governor.WaitTime()
		if wait > d.cfg.MaxWaitPerTick {
			d.logger.Infow("rate budget exhausted, deferring trigger", "wait", wait)
			return &Result{Status: StatusAtCapacity}, nil
		}
		if err := d.sleepFunc(ctx, wait); err != nil {
			return nil, err
		}
	}

	job, err := d.store.Job().ClaimNext(ctx)
	switch {
	case errors.Is(err, store.ErrNoQueuedJobs):
		return &Result{Status: StatusNoJobs}, nil
	case errors.Is(err, store.ErrClaimLost):
		return &Result{Status: StatusClaimFailed}, nil
	case err != nil:
		return nil, err
	}

	if processErr := d.process(ctx, job); processErr != nil {
		return &Result{Processed: true, Status: StatusFailed, JobID: &job.ID, Error: processErr.Error()}, nil
	}
	return &Result{Processed: true, Status: StatusCompleted, JobID: &job.ID}, nil
}

// process runs one claimed job to completion. Whatever happens, the job
// never stays in processing: it either reaches a publish outcome or is
// failed with its product reset.
func (d *Dispatcher) process(ctx context.Context, job *model.GenerationJob) error {
	logger := d.logger.With("job_id", job.ID, "product_id", job.ProductID)

	if err := d.store.Product().UpdateGuideStatus(ctx, job.ProductID, model.GuideStatusGenerating); err != nil {
		logger.Errorw("failed to mark product generating", "error", err)
		return d.fail(ctx, job, err)
	}

	d.governor.Reserve()

	artifact, err := d.generator.Generate(ctx, generation.Input{
		JobID:       job.ID,
		DocumentURL: job.InputDocumentURL,
	})
	if err != nil {
		logger.Warnw("generation failed", "error", err)
		return d.fail(ctx, job, err)
	}

	steps := make([]qualitygate.Step, len(artifact.Steps))
	for i, step := range artifact.Steps {
		steps[i] = qualitygate.Step{
			Title:           step.Title,
			Instruction:     step.Instruction,
			IllustrationURL: step.IllustrationURL,
			Tip:             step.Tip,
		}
	}
	checks := d.checker.RunQualityChecks(steps, artifact.Metadata.SourcePageCount)
	result := qualitygate.Merge(artifact.OverallConfidence, artifact.QualityFlags, checks)

	// thresholds are read fresh so operator changes apply to this very job
	thresholds := d.publisher.ResolveThresholds(ctx)
	decision := qualitygate.Classify(result, thresholds)

	if err := d.publisher.Publish(ctx, job, artifact, result, decision); err != nil {
		logger.Errorw("publish failed", "decision", decision, "error", err)
		return d.fail(ctx, job, err)
	}

	logger.Infow("job processed", "decision", decision, "confidence", result.OverallConfidence)
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, job *model.GenerationJob, cause error) error {
	if err := d.publisher.Fail(ctx, job, cause); err != nil {
		// the job may now be stuck in processing; surface loudly
		d.logger.Errorw("failed to mark job failed", "job_id", job.ID, "error", err)
		return fmt.Errorf("marking job %s failed after %q: %w", job.ID, cause, err)
	}
	return cause
}

func (d *Dispatcher) atCapacity(ctx context.Context) (bool, error) {
	processing, err := d.store.Job().CountProcessing(ctx)
	if err != nil {
		return false, err
	}
	metrics.UpdateJobsProcessingMetric(processing)
	return processing >= d.cfg.ConcurrencyCap, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
