package searchutils_test

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/search"
	searchutils "github.com/papercomputeco/mnemo/pkg/search/utils"
	"github.com/papercomputeco/mnemo/pkg/storage/sqlite"
	testutils "github.com/papercomputeco/mnemo/pkg/utils/test"
	"github.com/papercomputeco/mnemo/pkg/vector"
)

var _ = Describe("NewBackend", func() {
	var store *sqlite.Store

	BeforeEach(func() {
		var err error
		store, err = sqlite.Open(filepath.Join(GinkgoT().TempDir(), "memory.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	DescribeTable("falls back to keyword search",
		func(opts searchutils.NewBackendOpts) {
			opts.Store = store
			b, err := searchutils.NewBackend(&opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(b.BackendType()).To(Equal(search.TypeFTS5))
			Expect(b.Available()).To(BeTrue())
		},
		Entry("by default", searchutils.NewBackendOpts{}),
		Entry("for an unknown kind", searchutils.NewBackendOpts{Kind: "elasticsearch"}),
		Entry("when the vector index is missing", searchutils.NewBackendOpts{Kind: "vector"}),
		Entry("when the vector index is disabled", searchutils.NewBackendOpts{
			Kind:  "vector",
			Index: vector.NewIndex(vector.IndexConfig{}),
		}),
		Entry("when no API key is configured", searchutils.NewBackendOpts{Kind: "api_embedding"}),
	)

	It("fails fast when keyword search has no store", func() {
		_, err := searchutils.NewBackend(&searchutils.NewBackendOpts{Kind: "fts5"})
		Expect(err).To(MatchError(search.ErrNoStore))
	})

	It("uses an enabled vector index", func() {
		index := vector.NewIndex(vector.IndexConfig{
			Embedder: testutils.NewMockEmbedder(),
			Driver:   testutils.NewMockVectorDriver(),
		})
		b, err := searchutils.NewBackend(&searchutils.NewBackendOpts{Kind: "vector", Index: index, Store: store})
		Expect(err).NotTo(HaveOccurred())
		Expect(b.BackendType()).To(Equal(search.TypeVector))
	})

	It("uses the API embedding backend when a key is set", func() {
		b, err := searchutils.NewBackend(&searchutils.NewBackendOpts{
			Kind:        "api_embedding",
			Store:       store,
			APIProvider: "openai",
			APIKey:      "sk-test",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(b.BackendType()).To(Equal(search.TypeAPIEmbedding))

		results, err := b.Search(context.Background(), "   ", 5, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())
	})
})
