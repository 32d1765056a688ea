package embeddings_test

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/embeddings"
	"github.com/papercomputeco/mnemo/pkg/storage/sqlite"
	testutils "github.com/papercomputeco/mnemo/pkg/utils/test"
)

var _ = Describe("Cache", func() {
	var (
		ctx      context.Context
		dbPath   string
		store    *sqlite.Store
		embedder *testutils.MockEmbedder
		cache    *embeddings.Cache
	)

	BeforeEach(func() {
		ctx = context.Background()
		dbPath = filepath.Join(GinkgoT().TempDir(), "memory.db")

		var err error
		store, err = sqlite.Open(dbPath)
		Expect(err).NotTo(HaveOccurred())

		embedder = testutils.NewMockEmbedder()
		embedder.Embeddings["hello"] = []float32{1, 0, 0}

		cache, err = embeddings.NewCache(embeddings.CacheConfig{
			Embedder: embedder,
			Model:    "test-model",
			Store:    store,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	It("requires an embedder", func() {
		_, err := embeddings.NewCache(embeddings.CacheConfig{})
		Expect(err).To(HaveOccurred())
	})

	It("never calls the embedder for blank text", func() {
		_, err := cache.Embed(ctx, "   ")
		Expect(err).To(MatchError(embeddings.ErrEmptyText))
		Expect(embedder.Calls()).To(Equal(0))
	})

	It("embeds once per distinct text", func() {
		first, err := cache.Embed(ctx, "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(first).To(Equal([]float32{1, 0, 0}))

		second, err := cache.Embed(ctx, "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(first))
		Expect(embedder.Calls()).To(Equal(1))
	})

	It("does not let callers change cached vectors", func() {
		first, err := cache.Embed(ctx, "hello")
		Expect(err).NotTo(HaveOccurred())
		first[0] = 42

		second, err := cache.Embed(ctx, "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal([]float32{1, 0, 0}))

		second[1] = 7
		third, err := cache.Embed(ctx, "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(third).To(Equal([]float32{1, 0, 0}))
		Expect(embedder.Calls()).To(Equal(1))
	})

	It("persists entries keyed by the model-qualified hash", func() {
		_, err := cache.Embed(ctx, "hello")
		Expect(err).NotTo(HaveOccurred())

		entry, err := store.GetEmbedding(ctx, embeddings.Hash("test-model", "hello"))
		Expect(err).NotTo(HaveOccurred())
		Expect(entry).NotTo(BeNil())
		Expect(entry.Model).To(Equal("test-model"))
		Expect(entry.Dimension).To(Equal(3))
		Expect(entry.Vector).To(Equal([]float32{1, 0, 0}))
	})

	It("serves persisted entries to a fresh cache without re-embedding", func() {
		_, err := cache.Embed(ctx, "hello")
		Expect(err).NotTo(HaveOccurred())

		other := testutils.NewMockEmbedder()
		fresh, err := embeddings.NewCache(embeddings.CacheConfig{
			Embedder: other,
			Model:    "test-model",
			Store:    store,
		})
		Expect(err).NotTo(HaveOccurred())

		vec, err := fresh.Embed(ctx, "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(vec).To(Equal([]float32{1, 0, 0}))
		Expect(other.Calls()).To(Equal(0))
	})

	It("keys entries by model", func() {
		Expect(embeddings.Hash("a", "text")).NotTo(Equal(embeddings.Hash("b", "text")))
		Expect(embeddings.Hash("a", "text")).To(HaveLen(64))
	})

	It("propagates embedder failures", func() {
		embedder.FailOn = "broken"
		_, err := cache.Embed(ctx, "broken")
		Expect(err).To(HaveOccurred())
	})
})
