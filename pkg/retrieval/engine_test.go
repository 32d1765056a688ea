package retrieval_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/retrieval"
	"github.com/papercomputeco/mnemo/pkg/search"
	"github.com/papercomputeco/mnemo/pkg/search/fts"
	"github.com/papercomputeco/mnemo/pkg/storage/sqlite"
)

// brokenBackend fails every search.
type brokenBackend struct{}

func (brokenBackend) Available() bool     { return true }
func (brokenBackend) BackendType() string { return search.TypeVector }
func (brokenBackend) Search(context.Context, string, int, string) ([]search.Result, error) {
	return nil, errors.New("index offline")
}
func (brokenBackend) Add(context.Context, *memory.SemanticMemory) error { return nil }
func (brokenBackend) Delete(context.Context, string) error              { return nil }
func (brokenBackend) BatchAdd(context.Context, []*memory.SemanticMemory) (int, error) {
	return 0, nil
}

var _ = Describe("Engine", func() {
	var (
		ctx     context.Context
		store   *sqlite.Store
		keyword *fts.Backend
		engine  *retrieval.Engine
	)

	save := func(t memory.MemoryType, content string, importance float64) *memory.SemanticMemory {
		m := memory.NewSemanticMemory(t, content)
		m.ImportanceScore = importance
		Expect(store.SaveMemory(ctx, m)).To(Succeed())
		return m
	}

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		store, err = sqlite.Open(filepath.Join(GinkgoT().TempDir(), "memory.db"))
		Expect(err).NotTo(HaveOccurred())
		keyword, err = fts.New(store)
		Expect(err).NotTo(HaveOccurred())
		engine, err = retrieval.NewEngine(retrieval.Config{Store: store, Backend: keyword, Fallback: keyword})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	It("requires a store", func() {
		_, err := retrieval.NewEngine(retrieval.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("recalls semantic memories and formats them", func() {
		save(memory.TypeFact, "the api gateway runs on port 8443", 0.4)

		out, err := engine.Retrieve(ctx, "gateway port", retrieval.RetrieveOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("- [fact] the api gateway runs on port 8443"))
	})

	It("bumps access counts of injected memories", func() {
		m := save(memory.TypeFact, "staging database is postgres 16", 0.4)

		_, err := engine.Retrieve(ctx, "staging database", retrieval.RetrieveOptions{})
		Expect(err).NotTo(HaveOccurred())

		got, err := store.PeekMemory(ctx, m.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.AccessCount).To(Equal(1))
	})

	It("includes recent important memories without a keyword match", func() {
		rule := save(memory.TypeRule, "never force-push to main", 0.9)

		cands, err := engine.RetrieveCandidates(ctx, "unrelated question", nil, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(cands).To(ContainElement(HaveField("ID", rule.ID)))
		Expect(cands[0].Source).To(Equal(retrieval.SourceRecent))
	})

	It("recalls episodes by entity", func() {
		ep := memory.NewEpisode("s1")
		ep.Summary = "migrated billing service"
		ep.Entities = []string{"billing"}
		Expect(store.SaveEpisode(ctx, ep)).To(Succeed())

		cands, err := engine.RetrieveCandidates(ctx, "billing", nil, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(cands).To(ContainElement(SatisfyAll(
			HaveField("ID", ep.ID),
			HaveField("Source", retrieval.SourceEpisode),
		)))
	})

	Context("attachments", func() {
		BeforeEach(func() {
			a := memory.NewAttachment("IMG_0042.jpg")
			a.Description = "grey cat sleeping on the sofa"
			a.MimeType = "image/jpeg"
			Expect(store.SaveAttachment(ctx, a)).To(Succeed())
		})

		It("skips attachments when the query has no media cue", func() {
			cands, err := engine.RetrieveCandidates(ctx, "tell me about the cat", nil, 10)
			Expect(err).NotTo(HaveOccurred())
			for _, c := range cands {
				Expect(c.Source).NotTo(Equal(retrieval.SourceAttachment))
			}
		})

		It("finds attachments by description when the query mentions media", func() {
			cands, err := engine.RetrieveCandidates(ctx, "send the cat photo again", nil, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(cands).NotTo(BeEmpty())
			Expect(cands[0].Source).To(Equal(retrieval.SourceAttachment))
			Expect(cands[0].ID).To(HavePrefix("attach:"))
			Expect(cands[0].Content).To(ContainSubstring("IMG_0042.jpg"))
		})

		It("finds attachments by filename", func() {
			cands, err := engine.RetrieveCandidates(ctx, "the file IMG_0042", nil, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(cands).To(ContainElement(HaveField("Source", retrieval.SourceAttachment)))
		})
	})

	It("falls back to keyword search when the active backend fails", func() {
		save(memory.TypeFact, "redis cache evicts with allkeys-lru", 0.4)

		e, err := retrieval.NewEngine(retrieval.Config{Store: store, Backend: brokenBackend{}, Fallback: keyword})
		Expect(err).NotTo(HaveOccurred())

		out, err := e.Retrieve(ctx, "redis cache", retrieval.RetrieveOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("allkeys-lru"))
	})

	It("reports an error when every backend fails", func() {
		e, err := retrieval.NewEngine(retrieval.Config{Store: store, Backend: brokenBackend{}})
		Expect(err).NotTo(HaveOccurred())

		_, err = e.Retrieve(ctx, "anything", retrieval.RetrieveOptions{})
		Expect(err).To(MatchError(ContainSubstring("index offline")))
	})

	It("honours the token budget", func() {
		for range 10 {
			save(memory.TypeFact, "terraform state lives in s3 "+strings.Repeat("detail ", 10), 0.4)
		}
		out, err := engine.Retrieve(ctx, "terraform state", retrieval.RetrieveOptions{MaxTokens: 40})
		Expect(err).NotTo(HaveOccurred())
		Expect(len([]rune(out))).To(BeNumerically("<=", 40*4+10))
	})

	It("returns an empty string from an empty store", func() {
		out, err := engine.Retrieve(ctx, "anything at all", retrieval.RetrieveOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(BeEmpty())
	})
})
