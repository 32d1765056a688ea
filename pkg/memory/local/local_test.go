package local_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/memory/local"
)

func newMemory(t memory.MemoryType, content string, importance float64) *memory.SemanticMemory {
	m := memory.NewSemanticMemory(t, content)
	m.ImportanceScore = importance
	return m
}

var _ = Describe("Local Memory Cache", func() {
	var cache *local.Cache

	BeforeEach(func() {
		cache = local.NewCache(local.Config{Enabled: true})
	})

	Describe("Put and Get", func() {
		It("stores and returns a memory by id", func() {
			m := newMemory(memory.TypeFact, "Go was created at Google", 0.6)
			cache.Put(m)

			got := cache.Get(m.ID)
			Expect(got).NotTo(BeNil())
			Expect(got.Content).To(Equal("Go was created at Google"))
			Expect(cache.Len()).To(Equal(1))
		})

		It("returns nil for an unknown id", func() {
			Expect(cache.Get("nonexistent")).To(BeNil())
		})

		It("returns a copy so callers cannot mutate internal state", func() {
			m := newMemory(memory.TypeFact, "original fact", 0.5)
			m.Tags = []string{"a"}
			cache.Put(m)

			got := cache.Get(m.ID)
			got.Content = "mutated"
			got.Tags[0] = "mutated"

			internal := cache.Get(m.ID)
			Expect(internal.Content).To(Equal("original fact"))
			Expect(internal.Tags).To(Equal([]string{"a"}))
		})

		It("is a no-op when disabled", func() {
			disabled := local.NewCache(local.Config{Enabled: false})
			m := newMemory(memory.TypeFact, "ignored", 0.5)
			disabled.Put(m)

			Expect(disabled.Get(m.ID)).To(BeNil())
			Expect(disabled.All()).To(BeNil())
		})
	})

	Describe("Delete", func() {
		It("reports whether the memory existed", func() {
			m := newMemory(memory.TypeFact, "to delete", 0.5)
			cache.Put(m)

			Expect(cache.Delete(m.ID)).To(BeTrue())
			Expect(cache.Delete(m.ID)).To(BeFalse())
			Expect(cache.Len()).To(BeZero())
		})
	})

	Describe("Replace", func() {
		It("swaps the full contents", func() {
			cache.Put(newMemory(memory.TypeFact, "old", 0.5))

			fresh := newMemory(memory.TypeRule, "new", 0.9)
			cache.Replace([]*memory.SemanticMemory{fresh})

			Expect(cache.Len()).To(Equal(1))
			Expect(cache.Get(fresh.ID)).NotTo(BeNil())
		})
	})

	Describe("Search", func() {
		BeforeEach(func() {
			cache.Put(
				newMemory(memory.TypePreference, "User prefers dark mode in the editor", 0.4),
				newMemory(memory.TypeFact, "Project uses Go 1.25 and SQLite", 0.8),
				newMemory(memory.TypeRule, "Never force-push to main", 0.9),
			)
		})

		It("matches substrings case-insensitively", func() {
			results := cache.Search(local.Query{Text: "SQLITE"})
			Expect(results).To(HaveLen(1))
			Expect(results[0].Content).To(ContainSubstring("SQLite"))
		})

		It("matches any keyword and orders by importance", func() {
			results := cache.Search(local.Query{Keywords: []string{"editor", "main"}})
			Expect(results).To(HaveLen(2))
			Expect(results[0].Type).To(Equal(memory.TypeRule))
			Expect(results[1].Type).To(Equal(memory.TypePreference))
		})

		It("filters by type and honours the limit", func() {
			results := cache.Search(local.Query{Type: memory.TypeFact})
			Expect(results).To(HaveLen(1))

			limited := cache.Search(local.Query{Limit: 2})
			Expect(limited).To(HaveLen(2))
			Expect(limited[0].ImportanceScore).To(BeNumerically(">=", limited[1].ImportanceScore))
		})

		It("skips superseded memories", func() {
			old := newMemory(memory.TypeFact, "Project uses Go 1.21", 0.9)
			old.SupersededBy = "newer"
			cache.Put(old)

			results := cache.Search(local.Query{Text: "go 1.21"})
			Expect(results).To(BeEmpty())
		})
	})
})
