package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/guideforge/guideforge/internal/config"
	"github.com/guideforge/guideforge/internal/generation"
	"github.com/guideforge/guideforge/internal/qualitygate"
	"github.com/guideforge/guideforge/internal/service"
	"github.com/guideforge/guideforge/internal/store"
	"github.com/guideforge/guideforge/internal/store/model"
)

// fakeGenerator returns a canned artifact or error and records how many
// times it was invoked.
type fakeGenerator struct {
	artifact *generation.Artifact
	err      error
	calls    int
}

func (f *fakeGenerator) Generate(_ context.Context, _ generation.Input) (*generation.Artifact, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.artifact, nil
}

// contestedStore wraps a real store so the first n ClaimNext calls behave as
// if another dispatcher won the conditional transition.
type contestedStore struct {
	store.Store
	jobs *contestedJobStore
}

func (s *contestedStore) Job() store.Job { return s.jobs }

type contestedJobStore struct {
	store.Job
	lost int
}

func (j *contestedJobStore) ClaimNext(ctx context.Context) (*model.GenerationJob, error) {
	if j.lost > 0 {
		j.lost--
		return nil, store.ErrClaimLost
	}
	return j.Job.ClaimNext(ctx)
}

func goodArtifact() *generation.Artifact {
	return &generation.Artifact{
		Steps: []generation.Step{
			{Title: "Frame", Instruction: "Bolt the four frame members together at the corners"},
			{Title: "Top", Instruction: "Attach the work surface using the supplied wood screws"},
		},
		OverallConfidence: 0.97,
		Metadata: generation.Metadata{
			PrimaryModel:    "claude-sonnet-4-5-20250929",
			SourcePageCount: 4,
		},
	}
}

var _ = Describe("dispatcher", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	newDispatcher := func(gen generation.Generator, cfg Config) *Dispatcher {
		governor := NewRateGovernor(1000, time.Minute, 1)
		publisher := service.NewPublishService(s, 500)
		return NewDispatcher(s, gen, qualitygate.NewDefaultChecker(), governor, publisher, cfg)
	}

	newContestedDispatcher := func(gen generation.Generator, cfg Config, lost int) *Dispatcher {
		contested := &contestedStore{Store: s, jobs: &contestedJobStore{Job: s.Job(), lost: lost}}
		governor := NewRateGovernor(1000, time.Minute, 1)
		publisher := service.NewPublishService(s, 500)
		return NewDispatcher(contested, gen, qualitygate.NewDefaultChecker(), governor, publisher, cfg)
	}

	seedProduct := func() uuid.UUID {
		productID := uuid.New()
		docURL := "https://docs.local/manual.pdf"
		_, err := s.Product().Create(context.TODO(), model.Product{
			ID:          productID,
			Name:        "workbench",
			GuideStatus: model.GuideStatusQueued,
			DocumentURL: &docURL,
		})
		Expect(err).To(BeNil())
		return productID
	}

	seedJob := func(productID uuid.UUID, status string) uuid.UUID {
		jobID := uuid.New()
		_, err := s.Job().Create(context.TODO(), model.GenerationJob{
			ID:               jobID,
			ProductID:        productID,
			Status:           status,
			PriorityRank:     model.PriorityNormal,
			TriggeredBy:      model.TriggeredByManual,
			InputDocumentURL: "https://docs.local/manual.pdf",
		})
		Expect(err).To(BeNil())
		return jobID
	}

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db

		err = s.InitialMigration()
		Expect(err).To(BeNil())
	})

	AfterAll(func() {
		s.Close()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM guide_steps;")
		gormdb.Exec("DELETE FROM assembly_guides;")
		gormdb.Exec("DELETE FROM generation_jobs;")
		gormdb.Exec("DELETE FROM products;")
		gormdb.Exec("DELETE FROM threshold_configs;")
	})

	Context("dispatch one", func() {
		It("reports no jobs on an empty queue", func() {
			d := newDispatcher(&fakeGenerator{artifact: goodArtifact()}, Config{ConcurrencyCap: 2, JobsPerTick: 5})

			result, err := d.DispatchOne(context.TODO())
			Expect(err).To(BeNil())
			Expect(result.Processed).To(BeFalse())
			Expect(result.Status).To(Equal(StatusNoJobs))
		})

		It("runs a job through to auto publish", func() {
			productID := seedProduct()
			jobID := seedJob(productID, model.JobStatusQueued)

			d := newDispatcher(&fakeGenerator{artifact: goodArtifact()}, Config{ConcurrencyCap: 2, JobsPerTick: 5})

			result, err := d.DispatchOne(context.TODO())
			Expect(err).To(BeNil())
			Expect(result.Processed).To(BeTrue())
			Expect(result.Status).To(Equal(StatusCompleted))
			Expect(result.JobID.String()).To(Equal(jobID.String()))

			job, err := s.Job().Get(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusApproved))
			Expect(job.CompletedAt).ToNot(BeNil())
			Expect(*job.ConfidenceScore).To(BeNumerically("==", 0.97))

			product, err := s.Product().Get(context.TODO(), productID)
			Expect(err).To(BeNil())
			Expect(product.GuideStatus).To(Equal(model.GuideStatusPublished))

			guide, err := s.Guide().GetByProduct(context.TODO(), productID)
			Expect(err).To(BeNil())
			Expect(guide.AiGenerated).To(BeTrue())
			Expect(guide.Published).To(BeTrue())
			Expect(guide.Steps).To(HaveLen(2))
		})

		It("holds a low confidence artifact without materializing it", func() {
			artifact := goodArtifact()
			artifact.OverallConfidence = 0.40

			productID := seedProduct()
			jobID := seedJob(productID, model.JobStatusQueued)

			d := newDispatcher(&fakeGenerator{artifact: artifact}, Config{ConcurrencyCap: 2, JobsPerTick: 5})

			result, err := d.DispatchOne(context.TODO())
			Expect(err).To(BeNil())
			Expect(result.Status).To(Equal(StatusCompleted))

			job, err := s.Job().Get(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusReview))

			product, err := s.Product().Get(context.TODO(), productID)
			Expect(err).To(BeNil())
			Expect(product.GuideStatus).To(Equal(model.GuideStatusInReview))

			_, err = s.Guide().GetByProduct(context.TODO(), productID)
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})

		It("fails the job and resets the product when generation errors", func() {
			productID := seedProduct()
			jobID := seedJob(productID, model.JobStatusQueued)

			d := newDispatcher(&fakeGenerator{err: errors.New("provider unavailable")}, Config{ConcurrencyCap: 2, JobsPerTick: 5})

			result, err := d.DispatchOne(context.TODO())
			Expect(err).To(BeNil())
			Expect(result.Processed).To(BeTrue())
			Expect(result.Status).To(Equal(StatusFailed))
			Expect(result.Error).To(ContainSubstring("provider unavailable"))

			job, err := s.Job().Get(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusFailed))
			Expect(*job.ReviewNotes).To(ContainSubstring("provider unavailable"))

			product, err := s.Product().Get(context.TODO(), productID)
			Expect(err).To(BeNil())
			Expect(product.GuideStatus).To(Equal(model.GuideStatusNone))
		})

		It("reports a lost claim without touching the contested job", func() {
			productID := seedProduct()
			jobID := seedJob(productID, model.JobStatusQueued)

			gen := &fakeGenerator{artifact: goodArtifact()}
			d := newContestedDispatcher(gen, Config{ConcurrencyCap: 2, JobsPerTick: 5}, 1)

			result, err := d.DispatchOne(context.TODO())
			Expect(err).To(BeNil())
			Expect(result.Processed).To(BeFalse())
			Expect(result.Status).To(Equal(StatusClaimFailed))
			Expect(gen.calls).To(Equal(0))

			job, err := s.Job().Get(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusQueued))
		})

		It("reports at capacity when the cap is filled", func() {
			seedJob(seedProduct(), model.JobStatusProcessing)
			seedJob(seedProduct(), model.JobStatusProcessing)
			queuedID := seedJob(seedProduct(), model.JobStatusQueued)

			gen := &fakeGenerator{artifact: goodArtifact()}
			d := newDispatcher(gen, Config{ConcurrencyCap: 2, JobsPerTick: 5})

			result, err := d.DispatchOne(context.TODO())
			Expect(err).To(BeNil())
			Expect(result.Processed).To(BeFalse())
			Expect(result.Status).To(Equal(StatusAtCapacity))
			Expect(gen.calls).To(Equal(0))

			job, err := s.Job().Get(context.TODO(), queuedID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusQueued))
		})
	})

	Context("tick", func() {
		It("moves on to the next candidate after a lost claim", func() {
			seedJob(seedProduct(), model.JobStatusQueued)
			seedJob(seedProduct(), model.JobStatusQueued)

			gen := &fakeGenerator{artifact: goodArtifact()}
			d := newContestedDispatcher(gen, Config{ConcurrencyCap: 10, JobsPerTick: 5}, 1)

			d.RunTick(context.TODO())
			Expect(gen.calls).To(Equal(2))

			counts, err := s.Job().CountByStatus(context.TODO())
			Expect(err).To(BeNil())
			Expect(counts[model.JobStatusApproved]).To(Equal(2))
		})

		It("processes up to the per tick budget", func() {
			for i := 0; i < 4; i++ {
				seedJob(seedProduct(), model.JobStatusQueued)
			}

			gen := &fakeGenerator{artifact: goodArtifact()}
			d := newDispatcher(gen, Config{ConcurrencyCap: 10, JobsPerTick: 3})

			d.RunTick(context.TODO())
			Expect(gen.calls).To(Equal(3))

			counts, err := s.Job().CountByStatus(context.TODO())
			Expect(err).To(BeNil())
			Expect(counts[model.JobStatusQueued]).To(Equal(1))
			Expect(counts[model.JobStatusApproved]).To(Equal(3))
		})

		It("drains the queue and stops", func() {
			seedJob(seedProduct(), model.JobStatusQueued)

			gen := &fakeGenerator{artifact: goodArtifact()}
			d := newDispatcher(gen, Config{ConcurrencyCap: 10, JobsPerTick: 5})

			d.RunTick(context.TODO())
			Expect(gen.calls).To(Equal(1))
		})

		It("stops claiming at the concurrency cap", func() {
			seedJob(seedProduct(), model.JobStatusProcessing)
			seedJob(seedProduct(), model.JobStatusProcessing)
			seedJob(seedProduct(), model.JobStatusQueued)

			gen := &fakeGenerator{artifact: goodArtifact()}
			d := newDispatcher(gen, Config{ConcurrencyCap: 2, JobsPerTick: 5})

			d.RunTick(context.TODO())
			Expect(gen.calls).To(Equal(0))
		})

		It("keeps going past a failing job", func() {
			seedJob(seedProduct(), model.JobStatusQueued)
			seedJob(seedProduct(), model.JobStatusQueued)

			gen := &fakeGenerator{err: errors.New("provider unavailable")}
			d := newDispatcher(gen, Config{ConcurrencyCap: 10, JobsPerTick: 5})

			d.RunTick(context.TODO())
			Expect(gen.calls).To(Equal(2))

			counts, err := s.Job().CountByStatus(context.TODO())
			Expect(err).To(BeNil())
			Expect(counts[model.JobStatusFailed]).To(Equal(2))
			Expect(counts[model.JobStatusProcessing]).To(Equal(0))
		})

		It("defers to the next tick when the rate budget needs a long wait", func() {
			seedJob(seedProduct(), model.JobStatusQueued)

			gen := &fakeGenerator{artifact: goodArtifact()}
			governor := NewRateGovernor(1, time.Hour, 1)
			governor.Reserve()

			publisher := service.NewPublishService(s, 500)
			d := NewDispatcher(s, gen, qualitygate.NewDefaultChecker(), governor, publisher, Config{
				ConcurrencyCap: 10,
				JobsPerTick:    5,
				MaxWaitPerTick: 30 * time.Second,
			})

			d.RunTick(context.TODO())
			Expect(gen.calls).To(Equal(0))

			counts, err := s.Job().CountByStatus(context.TODO())
			Expect(err).To(BeNil())
			Expect(counts[model.JobStatusQueued]).To(Equal(1))
		})

		It("waits out a short rate delay instead of deferring", func() {
			seedJob(seedProduct(), model.JobStatusQueued)

			gen := &fakeGenerator{artifact: goodArtifact()}
			governor := NewRateGovernor(60, time.Minute, 1)
			governor.limiter.AllowN(time.Now(), 60)

			var slept time.Duration
			publisher := service.NewPublishService(s, 500)
			d := NewDispatcher(s, gen, qualitygate.NewDefaultChecker(), governor, publisher, Config{
				ConcurrencyCap: 10,
				JobsPerTick:    1,
				MaxWaitPerTick: 30 * time.Second,
			})
			d.sleepFunc = func(_ context.Context, wait time.Duration) error {
				slept = wait
				return nil
			}

			d.RunTick(context.TODO())
			Expect(gen.calls).To(Equal(1))
			Expect(slept).To(BeNumerically(">", 0))
		})
	})

	Context("hot thresholds", func() {
		It("applies the stored configuration to the next job", func() {
			// Under the stricter stored thresholds a 0.97 artifact no
			// longer auto publishes.
			_, err := s.Threshold().Save(context.TODO(), model.ThresholdConfig{
				AutoPublishMinConfidence: 0.99,
				ReviewQueueMinConfidence: 0.50,
			})
			Expect(err).To(BeNil())

			productID := seedProduct()
			jobID := seedJob(productID, model.JobStatusQueued)

			d := newDispatcher(&fakeGenerator{artifact: goodArtifact()}, Config{ConcurrencyCap: 2, JobsPerTick: 5})

			_, err = d.DispatchOne(context.TODO())
			Expect(err).To(BeNil())

			job, err := s.Job().Get(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusReview))

			// content still goes live for the review band
			product, err := s.Product().Get(context.TODO(), productID)
			Expect(err).To(BeNil())
			Expect(product.GuideStatus).To(Equal(model.GuideStatusPublished))
		})
	})
})
