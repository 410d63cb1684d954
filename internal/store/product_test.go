package store_test

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/guideforge/guideforge/internal/config"
	"github.com/guideforge/guideforge/internal/store"
	"github.com/guideforge/guideforge/internal/store/model"
)

var _ = Describe("product store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

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
		gormdb.Exec("DELETE FROM products;")
	})

	Context("get", func() {
		It("returns the product with its document url", func() {
			productID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertProductDocStm, productID.String(), "workbench", "https://docs.local/workbench.pdf"))
			Expect(tx.Error).To(BeNil())

			product, err := s.Product().Get(context.TODO(), productID)
			Expect(err).To(BeNil())
			Expect(product.Name).To(Equal("workbench"))
			Expect(*product.DocumentURL).To(Equal("https://docs.local/workbench.pdf"))
			Expect(product.GuideStatus).To(Equal(model.GuideStatusNone))
		})

		It("fails for a missing product", func() {
			_, err := s.Product().Get(context.TODO(), uuid.New())
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})
	})

	Context("guide status", func() {
		It("updates the mirrored status", func() {
			productID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertProductStm, productID.String(), "shelf"))
			Expect(tx.Error).To(BeNil())

			err := s.Product().UpdateGuideStatus(context.TODO(), productID, model.GuideStatusGenerating)
			Expect(err).To(BeNil())

			status := ""
			err = gormdb.Raw("SELECT guide_status FROM products WHERE id = ?;", productID.String()).Scan(&status).Error
			Expect(err).To(BeNil())
			Expect(status).To(Equal(model.GuideStatusGenerating))
		})

		It("fails for a missing product", func() {
			err := s.Product().UpdateGuideStatus(context.TODO(), uuid.New(), model.GuideStatusQueued)
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})
	})
})
