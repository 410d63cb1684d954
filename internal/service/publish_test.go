package service_test

import (
	"context"
	"errors"
	"strings"

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

var _ = Describe("publish service", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
		srv    *service.PublishService
	)

	artifact := func(confidence float64) *generation.Artifact {
		return &generation.Artifact{
			Steps: []generation.Step{
				{Title: "Frame", Instruction: "Bolt the four frame members together at the corners"},
				{Title: "Top", Instruction: "Attach the work surface using the supplied wood screws", Tip: "Pre-drill to avoid splitting"},
			},
			OverallConfidence: confidence,
			Metadata: generation.Metadata{
				PrimaryModel:    "claude-sonnet-4-5-20250929",
				SourcePageCount: 4,
			},
		}
	}

	result := func(confidence float64) qualitygate.Result {
		return qualitygate.Result{OverallConfidence: confidence}
	}

	seedPair := func() (uuid.UUID, *model.GenerationJob) {
		productID := uuid.New()
		docURL := "https://docs.local/manual.pdf"
		_, err := s.Product().Create(context.TODO(), model.Product{
			ID:          productID,
			Name:        "workbench",
			GuideStatus: model.GuideStatusGenerating,
			DocumentURL: &docURL,
		})
		Expect(err).To(BeNil())

		job, err := s.Job().Create(context.TODO(), model.GenerationJob{
			ID:               uuid.New(),
			ProductID:        productID,
			Status:           model.JobStatusProcessing,
			TriggeredBy:      model.TriggeredByManual,
			InputDocumentURL: docURL,
		})
		Expect(err).To(BeNil())
		return productID, job
	}

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
		srv = service.NewPublishService(s, 100)

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

	Context("thresholds", func() {
		It("falls back to the defaults", func() {
			thresholds := srv.ResolveThresholds(context.TODO())
			Expect(thresholds).To(Equal(qualitygate.DefaultThresholds()))
		})

		It("uses the active stored configuration", func() {
			_, err := s.Threshold().Save(context.TODO(), model.ThresholdConfig{
				AutoPublishMinConfidence: 0.95,
				ReviewQueueMinConfidence: 0.60,
			})
			Expect(err).To(BeNil())

			thresholds := srv.ResolveThresholds(context.TODO())
			Expect(thresholds.AutoPublishMinConfidence).To(Equal(0.95))
			Expect(thresholds.ReviewQueueMinConfidence).To(Equal(0.60))
		})
	})

	Context("auto publish", func() {
		It("approves the job and publishes the guide", func() {
			productID, job := seedPair()

			err := srv.Publish(context.TODO(), job, artifact(0.97), result(0.97), qualitygate.DecisionAutoPublish)
			Expect(err).To(BeNil())

			stored, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(stored.Status).To(Equal(model.JobStatusApproved))
			Expect(stored.CompletedAt).ToNot(BeNil())
			Expect(*stored.ReviewNotes).To(ContainSubstring("auto-published"))
			Expect(stored.RawOutput).ToNot(BeEmpty())
			Expect(*stored.ConfidenceScore).To(BeNumerically("==", 0.97))
			Expect(*stored.PrimaryModel).To(Equal("claude-sonnet-4-5-20250929"))

			product, err := s.Product().Get(context.TODO(), productID)
			Expect(err).To(BeNil())
			Expect(product.GuideStatus).To(Equal(model.GuideStatusPublished))

			guide, err := s.Guide().GetByProduct(context.TODO(), productID)
			Expect(err).To(BeNil())
			Expect(guide.Title).To(Equal("workbench assembly guide"))
			Expect(guide.AiGenerated).To(BeTrue())
			Expect(guide.Published).To(BeTrue())
			Expect(guide.Steps).To(HaveLen(2))
			Expect(*guide.Steps[1].Tip).To(Equal("Pre-drill to avoid splitting"))
		})
	})

	Context("review", func() {
		It("publishes the guide while the job awaits review", func() {
			productID, job := seedPair()

			err := srv.Publish(context.TODO(), job, artifact(0.80), result(0.80), qualitygate.DecisionReview)
			Expect(err).To(BeNil())

			stored, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(stored.Status).To(Equal(model.JobStatusReview))
			Expect(stored.CompletedAt).To(BeNil())

			product, err := s.Product().Get(context.TODO(), productID)
			Expect(err).To(BeNil())
			Expect(product.GuideStatus).To(Equal(model.GuideStatusPublished))

			_, err = s.Guide().GetByProduct(context.TODO(), productID)
			Expect(err).To(BeNil())
		})
	})

	Context("hold", func() {
		It("withholds the guide until a human approves", func() {
			productID, job := seedPair()

			err := srv.Publish(context.TODO(), job, artifact(0.40), result(0.40), qualitygate.DecisionHold)
			Expect(err).To(BeNil())

			stored, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(stored.Status).To(Equal(model.JobStatusReview))
			Expect(*stored.ReviewNotes).To(ContainSubstring("held for review"))
			Expect(stored.RawOutput).ToNot(BeEmpty())

			product, err := s.Product().Get(context.TODO(), productID)
			Expect(err).To(BeNil())
			Expect(product.GuideStatus).To(Equal(model.GuideStatusInReview))

			_, err = s.Guide().GetByProduct(context.TODO(), productID)
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})
	})

	Context("fail", func() {
		It("fails the job and resets the product", func() {
			productID, job := seedPair()

			err := srv.Fail(context.TODO(), job, errors.New("provider unavailable"))
			Expect(err).To(BeNil())

			stored, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(stored.Status).To(Equal(model.JobStatusFailed))
			Expect(*stored.ReviewNotes).To(Equal("provider unavailable"))

			product, err := s.Product().Get(context.TODO(), productID)
			Expect(err).To(BeNil())
			Expect(product.GuideStatus).To(Equal(model.GuideStatusNone))
		})

		It("bounds the stored error message", func() {
			_, job := seedPair()

			err := srv.Fail(context.TODO(), job, errors.New(strings.Repeat("x", 5000)))
			Expect(err).To(BeNil())

			stored, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(*stored.ReviewNotes).To(HaveLen(100))
		})
	})

	Context("approve", func() {
		It("publishes a held job from its stored artifact", func() {
			productID, job := seedPair()

			err := srv.Publish(context.TODO(), job, artifact(0.40), result(0.40), qualitygate.DecisionHold)
			Expect(err).To(BeNil())

			approved, err := srv.Approve(context.TODO(), job.ID, "reviewer@example.com")
			Expect(err).To(BeNil())
			Expect(approved.Status).To(Equal(model.JobStatusApproved))
			Expect(*approved.ReviewedBy).To(Equal("reviewer@example.com"))

			product, err := s.Product().Get(context.TODO(), productID)
			Expect(err).To(BeNil())
			Expect(product.GuideStatus).To(Equal(model.GuideStatusPublished))

			guide, err := s.Guide().GetByProduct(context.TODO(), productID)
			Expect(err).To(BeNil())
			Expect(guide.Steps).To(HaveLen(2))
		})

		It("refuses a job that is not under review", func() {
			_, job := seedPair()

			_, err := srv.Approve(context.TODO(), job.ID, "reviewer@example.com")
			Expect(err).To(BeAssignableToTypeOf(&service.ErrInvalidJobState{}))
		})

		It("refuses to approve when a rejection lands after the status read", func() {
			productID, job := seedPair()

			err := srv.Publish(context.TODO(), job, artifact(0.40), result(0.40), qualitygate.DecisionHold)
			Expect(err).To(BeNil())

			// a concurrent reviewer rejected the job first
			rejected, err := srv.Reject(context.TODO(), job.ID, "first@example.com", "wrong product")
			Expect(err).To(BeNil())
			Expect(rejected.Status).To(Equal(model.JobStatusFailed))

			stale := &staleReadStore{Store: s, jobs: &staleReadJobStore{
				Job:         s.Job(),
				staleID:     job.ID,
				staleStatus: model.JobStatusReview,
			}}
			_, err = service.NewPublishService(stale, 100).Approve(context.TODO(), job.ID, "second@example.com")
			Expect(err).To(BeAssignableToTypeOf(&service.ErrInvalidJobState{}))

			stored, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(stored.Status).To(Equal(model.JobStatusFailed))
			Expect(*stored.ReviewedBy).To(Equal("first@example.com"))

			product, err := s.Product().Get(context.TODO(), productID)
			Expect(err).To(BeNil())
			Expect(product.GuideStatus).To(Equal(model.GuideStatusNone))

			_, err = s.Guide().GetByProduct(context.TODO(), productID)
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})

		It("refuses a review job without a stored artifact", func() {
			_, job := seedPair()

			job.Status = model.JobStatusReview
			_, err := s.Job().Update(context.TODO(), *job, []string{"status"})
			Expect(err).To(BeNil())

			_, err = srv.Approve(context.TODO(), job.ID, "reviewer@example.com")
			Expect(err).To(BeAssignableToTypeOf(&service.ErrNoStoredArtifact{}))
		})
	})

	Context("reject", func() {
		It("fails the job and withdraws the product", func() {
			productID, job := seedPair()

			err := srv.Publish(context.TODO(), job, artifact(0.40), result(0.40), qualitygate.DecisionHold)
			Expect(err).To(BeNil())

			rejected, err := srv.Reject(context.TODO(), job.ID, "reviewer@example.com", "steps do not match the product")
			Expect(err).To(BeNil())
			Expect(rejected.Status).To(Equal(model.JobStatusFailed))
			Expect(*rejected.ReviewNotes).To(Equal("steps do not match the product"))
			Expect(*rejected.ReviewedBy).To(Equal("reviewer@example.com"))

			product, err := s.Product().Get(context.TODO(), productID)
			Expect(err).To(BeNil())
			Expect(product.GuideStatus).To(Equal(model.GuideStatusNone))
		})
	})
})
