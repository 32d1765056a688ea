package sqlitevec_test

import (
	"context"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/vector"
	"github.com/papercomputeco/mnemo/pkg/vector/sqlitevec"
)

func doc(id, memType string, emb ...float32) vector.Document {
	return vector.Document{
		ID:        id,
		Content:   "content of " + id,
		Metadata:  map[string]string{vector.MetadataType: memType},
		Embedding: emb,
	}
}

var _ = Describe("SQLiteVecDriver", func() {
	var (
		log    *slog.Logger
		driver *sqlitevec.SQLiteVecDriver
		ctx    context.Context
	)

	BeforeEach(func() {
		log = logger.Nop()
		ctx = context.Background()
	})

	Describe("NewSQLiteVecDriver", func() {
		It("should return an error when DBPath is empty", func() {
			_, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{DBPath: ""}, log)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("database path is required"))
		})

		It("should error when dimension not specified", func() {
			_, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{DBPath: ":memory:"}, log)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("with an open driver", func() {
		BeforeEach(func() {
			var err error
			driver, err = sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
				DBPath:     ":memory:",
				Dimensions: 4,
			}, log)
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			Expect(driver.Close()).To(Succeed())
		})

		It("should do nothing when given empty docs", func() {
			Expect(driver.Add(ctx, []vector.Document{})).To(Succeed())
		})

		It("should store content and metadata", func() {
			Expect(driver.Add(ctx, []vector.Document{doc("m-1", "fact", 1, 0, 0, 0)})).To(Succeed())

			retrieved, err := driver.Get(ctx, []string{"m-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(retrieved).To(HaveLen(1))
			Expect(retrieved[0].Content).To(Equal("content of m-1"))
			Expect(retrieved[0].Metadata).To(HaveKeyWithValue(vector.MetadataType, "fact"))
			Expect(retrieved[0].Embedding).To(HaveLen(4))
		})

		It("should update an existing document", func() {
			Expect(driver.Add(ctx, []vector.Document{doc("m-1", "fact", 1, 0, 0, 0)})).To(Succeed())
			Expect(driver.Add(ctx, []vector.Document{doc("m-1", "skill", 0, 1, 0, 0)})).To(Succeed())

			retrieved, err := driver.Get(ctx, []string{"m-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(retrieved).To(HaveLen(1))
			Expect(retrieved[0].Metadata).To(HaveKeyWithValue(vector.MetadataType, "skill"))
		})

		Describe("Query", func() {
			BeforeEach(func() {
				Expect(driver.Add(ctx, []vector.Document{
					doc("x", "fact", 1, 0, 0, 0),
					doc("xy", "fact", 1, 1, 0, 0),
					doc("y", "skill", 0, 1, 0, 0),
					doc("z", "rule", 0, 0, 1, 0),
				})).To(Succeed())
			})

			It("should rank by cosine similarity", func() {
				results, err := driver.Query(ctx, []float32{1, 0, 0, 0}, 3)
				Expect(err).NotTo(HaveOccurred())
				Expect(results).To(HaveLen(3))
				Expect(results[0].ID).To(Equal("x"))
				Expect(results[0].Score).To(BeNumerically("~", 1.0, 1e-4))
				Expect(results[1].ID).To(Equal("xy"))
				for i := 1; i < len(results); i++ {
					Expect(results[i-1].Score).To(BeNumerically(">=", results[i].Score))
				}
			})

			It("should default topK to 10 when zero or negative", func() {
				results, err := driver.Query(ctx, []float32{1, 0, 0, 0}, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(results).To(HaveLen(4))
			})
		})

		It("should reject embeddings of the wrong size", func() {
			err := driver.Add(ctx, []vector.Document{doc("m-1", "fact", 1, 0, 0)})
			Expect(err).To(MatchError(vector.ErrDimensions))
			Expect(err).To(MatchError(ContainSubstring("store expects 4")))

			retrieved, err := driver.Get(ctx, []string{"m-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(retrieved).To(BeEmpty())
		})

		It("should delete documents", func() {
			Expect(driver.Add(ctx, []vector.Document{doc("a", "fact", 1, 0, 0, 0), doc("b", "fact", 0, 1, 0, 0)})).To(Succeed())
			Expect(driver.Delete(ctx, []string{"a", "missing"})).To(Succeed())

			retrieved, err := driver.Get(ctx, []string{"a", "b"})
			Expect(err).NotTo(HaveOccurred())
			Expect(retrieved).To(HaveLen(1))
			Expect(retrieved[0].ID).To(Equal("b"))
		})
	})

	It("should implement vector.Driver interface", func() {
		var _ vector.Driver = (*sqlitevec.SQLiteVecDriver)(nil)
	})
})
