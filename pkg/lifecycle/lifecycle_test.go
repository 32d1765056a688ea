package lifecycle_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/brain"
	"github.com/papercomputeco/mnemo/pkg/extractor"
	"github.com/papercomputeco/mnemo/pkg/lifecycle"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/search"
	"github.com/papercomputeco/mnemo/pkg/storage"
	"github.com/papercomputeco/mnemo/pkg/storage/sqlite"
)

// countingBackend records BatchAdd calls.
type countingBackend struct {
	added atomic.Int32
}

func (*countingBackend) Available() bool     { return true }
func (*countingBackend) BackendType() string { return search.TypeVector }
func (*countingBackend) Search(context.Context, string, int, string) ([]search.Result, error) {
	return nil, nil
}
func (*countingBackend) Add(context.Context, *memory.SemanticMemory) error { return nil }
func (*countingBackend) Delete(context.Context, string) error              { return nil }
func (b *countingBackend) BatchAdd(_ context.Context, mems []*memory.SemanticMemory) (int, error) {
	b.added.Add(int32(len(mems)))
	return len(mems), nil
}

var _ = Describe("Lifecycle", func() {
	var (
		ctx   context.Context
		store *sqlite.Store
		now   time.Time
	)

	save := func(t memory.MemoryType, content string, importance float64, mutate ...func(*memory.SemanticMemory)) *memory.SemanticMemory {
		m := memory.NewSemanticMemory(t, content)
		m.ImportanceScore = importance
		for _, f := range mutate {
			f(m)
		}
		Expect(store.SaveMemory(ctx, m)).To(Succeed())
		return m
	}

	newManager := func(c lifecycle.Config) *lifecycle.Manager {
		c.Store = store
		if c.Now == nil {
			c.Now = func() time.Time { return now }
		}
		m, err := lifecycle.New(c)
		Expect(err).NotTo(HaveOccurred())
		return m
	}

	count := func() int {
		n, err := store.CountMemories(ctx)
		Expect(err).NotTo(HaveOccurred())
		return n
	}

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Now()
		var err error
		store, err = sqlite.Open(filepath.Join(GinkgoT().TempDir(), "memory.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	It("requires a store", func() {
		_, err := lifecycle.New(lifecycle.Config{})
		Expect(err).To(HaveOccurred())
	})

	Describe("DeduplicateBatch", func() {
		It("keeps the more important of two identical facts", func() {
			keep := save(memory.TypeFact, "Python 3.12", 0.7, func(m *memory.SemanticMemory) {
				m.Subject, m.Predicate = "Python", "version"
			})
			save(memory.TypeFact, "Python 3.12", 0.3)

			removed, err := newManager(lifecycle.Config{}).DeduplicateBatch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(1))

			all, err := store.LoadAllMemories(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
			Expect(all[0].ID).To(Equal(keep.ID))
			Expect(all[0].ImportanceScore).To(Equal(0.7))
		})

		It("is idempotent", func() {
			save(memory.TypeFact, "the build runs on github actions", 0.5)
			save(memory.TypeFact, "The build runs on GitHub Actions", 0.6)
			save(memory.TypeFact, "staging uses postgres", 0.5)

			m := newManager(lifecycle.Config{})
			first, err := m.DeduplicateBatch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(first).To(Equal(1))

			second, err := m.DeduplicateBatch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(BeZero())
			Expect(count()).To(Equal(2))
		})

		It("leaves nothing for a second run when overlaps chain", func() {
			save(memory.TypeFact, "alpha beta gamma delta epsilon zeta", 0.5, func(m *memory.SemanticMemory) {
				m.AccessCount = 5
				m.CreatedAt = now.Add(-2 * time.Hour)
				m.UpdatedAt = m.CreatedAt
			})
			save(memory.TypeFact, "epsilon zeta gamma delta", 0.5, func(m *memory.SemanticMemory) {
				m.CreatedAt = now.Add(-time.Hour)
				m.UpdatedAt = m.CreatedAt
			})
			save(memory.TypeFact, "alpha beta gamma delta", 0.5)

			m := newManager(lifecycle.Config{})
			first, err := m.DeduplicateBatch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(first).To(Equal(2))

			second, err := m.DeduplicateBatch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(BeZero())

			all, err := store.LoadAllMemories(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
			Expect(all[0].Content).To(Equal("alpha beta gamma delta epsilon zeta"))
		})

		It("never merges across types", func() {
			save(memory.TypeFact, "use tabs for indentation", 0.5)
			save(memory.TypePreference, "use tabs for indentation", 0.5)

			removed, err := newManager(lifecycle.Config{}).DeduplicateBatch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeZero())
		})

		It("breaks importance ties by access count", func() {
			save(memory.TypeSkill, "run make lint before pushing", 0.5)
			read := save(memory.TypeSkill, "run make lint before pushing changes", 0.5, func(m *memory.SemanticMemory) {
				m.AccessCount = 4
			})

			_, err := newManager(lifecycle.Config{}).DeduplicateBatch(ctx)
			Expect(err).NotTo(HaveOccurred())
			all, _ := store.LoadAllMemories(ctx)
			Expect(all).To(HaveLen(1))
			Expect(all[0].ID).To(Equal(read.ID))
		})
	})

	Describe("Cluster", func() {
		It("groups by word overlap into index clusters", func() {
			mems := []*memory.SemanticMemory{
				memory.NewSemanticMemory(memory.TypeFact, "deploys go through argo cd"),
				memory.NewSemanticMemory(memory.TypeFact, "the database is postgres"),
				memory.NewSemanticMemory(memory.TypeFact, "deploys go through argo cd nightly"),
				memory.NewSemanticMemory(memory.TypeFact, "Deploys go through Argo CD"),
			}
			Expect(lifecycle.Cluster(mems, lifecycle.DedupThreshold)).To(Equal([][]int{{0, 2, 3}}))
		})

		It("computes overlap against the smaller set", func() {
			a := map[string]struct{}{"a": {}, "b": {}}
			b := map[string]struct{}{"a": {}, "b": {}, "c": {}, "d": {}}
			Expect(lifecycle.Overlap(a, b)).To(Equal(1.0))
			Expect(lifecycle.Overlap(a, nil)).To(Equal(0.0))
		})
	})

	Describe("ComputeDecay", func() {
		It("never touches permanent memories", func() {
			perm := save(memory.TypeRule, "never force push", 0.05, func(m *memory.SemanticMemory) {
				m.Priority = memory.PriorityPermanent
			})
			now = now.Add(365 * 24 * time.Hour)

			_, err := newManager(lifecycle.Config{}).ComputeDecay(ctx)
			Expect(err).NotTo(HaveOccurred())

			got, err := store.PeekMemory(ctx, perm.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).NotTo(BeNil())
			Expect(got.Priority).To(Equal(memory.PriorityPermanent))
			Expect(got.ImportanceScore).To(Equal(0.05))
		})

		It("deletes faded memories and demotes weakening ones", func() {
			faded := save(memory.TypeFact, "temporary token expires friday", 0.05)
			read := save(memory.TypeFact, "often read but faded", 0.05, func(m *memory.SemanticMemory) {
				m.AccessCount = 5
			})
			weak := save(memory.TypeFact, "prefers short answers", 0.5)
			strong := save(memory.TypeFact, "works in berlin", 0.9, func(m *memory.SemanticMemory) {
				m.Priority = memory.PriorityLongTerm
			})
			now = now.Add(10 * 24 * time.Hour)

			affected, err := newManager(lifecycle.Config{}).ComputeDecay(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(affected).To(Equal(3))

			gone, _ := store.PeekMemory(ctx, faded.ID)
			Expect(gone).To(BeNil())

			got, _ := store.PeekMemory(ctx, read.ID)
			Expect(got.Priority).To(Equal(memory.PriorityTransient))

			got, _ = store.PeekMemory(ctx, weak.ID)
			Expect(got.Priority).To(Equal(memory.PriorityTransient))
			Expect(got.ImportanceScore).To(BeNumerically("~", 0.5*0.3486784401, 1e-6))

			got, _ = store.PeekMemory(ctx, strong.ID)
			Expect(got.Priority).To(Equal(memory.PriorityLongTerm))
			Expect(got.ImportanceScore).To(Equal(0.9))
		})

		It("removes expired memories", func() {
			save(memory.TypeFact, "session scoped note", 0.9, func(m *memory.SemanticMemory) {
				m.Priority = memory.PriorityPermanent
				past := time.Now().Add(-time.Hour)
				m.ExpiresAt = &past
			})

			affected, err := newManager(lifecycle.Config{}).ComputeDecay(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(affected).To(Equal(1))
			Expect(count()).To(BeZero())
		})

		It("decays exponentially per day", func() {
			Expect(lifecycle.Decayed(0.8, 0.1, 0)).To(Equal(0.8))
			Expect(lifecycle.Decayed(0.8, 0.1, 24*time.Hour)).To(BeNumerically("~", 0.72, 1e-9))
			Expect(lifecycle.Decayed(0.8, 0, 1000*time.Hour)).To(Equal(0.8))
		})
	})

	Describe("CleanupStaleAttachments", func() {
		It("removes only old attachments without content", func() {
			old := now.Add(-100 * 24 * time.Hour)

			empty := memory.NewAttachment("scan.png")
			empty.CreatedAt = old
			described := memory.NewAttachment("diagram.png")
			described.CreatedAt = old
			described.Description = "architecture diagram"
			fresh := memory.NewAttachment("new.png")
			for _, a := range []*memory.Attachment{empty, described, fresh} {
				Expect(store.SaveAttachment(ctx, a)).To(Succeed())
			}

			removed, err := newManager(lifecycle.Config{}).CleanupStaleAttachments(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(1))

			left, err := store.ListAttachments(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(left).To(HaveLen(2))
			Expect(left).NotTo(ContainElement(HaveField("ID", empty.ID)))
		})
	})

	Describe("RefreshMemoryMD", func() {
		var dir string

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
		})

		It("writes nothing for an empty store", func() {
			wrote, err := newManager(lifecycle.Config{}).RefreshMemoryMD(ctx, dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(wrote).To(BeFalse())
			Expect(filepath.Join(dir, lifecycle.DigestFile)).NotTo(BeAnExistingFile())
		})

		It("leaves an existing digest alone when nothing qualifies", func() {
			path := filepath.Join(dir, lifecycle.DigestFile)
			Expect(os.WriteFile(path, []byte("hand written"), 0o644)).To(Succeed())
			save(memory.TypeFact, "minor detail", 0.2)

			wrote, err := newManager(lifecycle.Config{}).RefreshMemoryMD(ctx, dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(wrote).To(BeFalse())
			Expect(os.ReadFile(path)).To(Equal([]byte("hand written")))
		})

		It("renders sections and keeps a backup", func() {
			path := filepath.Join(dir, lifecycle.DigestFile)
			Expect(os.WriteFile(path, []byte("previous"), 0o644)).To(Succeed())

			save(memory.TypePreference, "prefers concise answers", 0.8)
			save(memory.TypeRule, "never commit secrets", 0.9)
			save(memory.TypeFact, "minor detail", 0.2)

			wrote, err := newManager(lifecycle.Config{}).RefreshMemoryMD(ctx, dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(wrote).To(BeTrue())

			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("# Core Memory\n\n## Preferences\n- prefers concise answers\n\n## Rules\n- never commit secrets\n"))
			Expect(os.ReadFile(path + ".bak")).To(Equal([]byte("previous")))
		})
	})

	Describe("RenderDigest", func() {
		It("caps each type at four and the body at 1200 characters", func() {
			var mems []*memory.SemanticMemory
			for range 6 {
				mems = append(mems, memory.NewSemanticMemory(memory.TypeFact, strings.Repeat("f", 100)))
			}
			for range 20 {
				mems = append(mems, memory.NewSemanticMemory(memory.TypeSkill, strings.Repeat("s", 300)))
			}
			out := lifecycle.RenderDigest(mems)
			Expect(strings.Count(out, "- "+strings.Repeat("f", 100))).To(Equal(4))
			Expect(strings.Count(out, "- "+strings.Repeat("s", 300))).To(Equal(2))
		})

		It("renders nothing without memories", func() {
			Expect(lifecycle.RenderDigest(nil)).To(BeEmpty())
		})
	})

	Describe("ReviewWithLLM", func() {
		It("keeps everything without a thinker", func() {
			save(memory.TypeFact, "a", 0.5)
			save(memory.TypeFact, "b", 0.5)

			r, err := newManager(lifecycle.Config{}).ReviewWithLLM(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(r).To(Equal(lifecycle.ReviewReport{Kept: 2}))
		})

		It("applies delete, update and merge decisions", func() {
			junk := save(memory.TypeFact, "needs apple photos", 0.4)
			stale := save(memory.TypeFact, "uses go 1.21", 0.6)
			dupe := save(memory.TypePreference, "likes dark mode", 0.5)
			target := save(memory.TypePreference, "prefers dark themes", 0.7)
			save(memory.TypeRule, "never push to main", 0.9)

			reply := `[
				{"id": "` + junk.ID + `", "action": "delete", "reason": "one-off task"},
				{"id": "` + stale.ID + `", "action": "update", "new_content": "uses go 1.24", "new_importance": 0.8},
				{"id": "` + dupe.ID + `", "action": "merge", "merged_with": "` + target.ID + `", "new_content": "prefers dark mode everywhere"}
			]`
			t := brain.ThinkerFunc(func(context.Context, string, string) (string, error) { return reply, nil })

			r, err := newManager(lifecycle.Config{Thinker: t}).ReviewWithLLM(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(r).To(Equal(lifecycle.ReviewReport{Deleted: 1, Updated: 1, Merged: 1, Kept: 2}))

			gone, _ := store.PeekMemory(ctx, junk.ID)
			Expect(gone).To(BeNil())
			got, _ := store.PeekMemory(ctx, stale.ID)
			Expect(got.Content).To(Equal("uses go 1.24"))
			Expect(got.ImportanceScore).To(Equal(0.8))
			got, _ = store.PeekMemory(ctx, target.ID)
			Expect(got.Content).To(Equal("prefers dark mode everywhere"))
			gone, _ = store.PeekMemory(ctx, dupe.ID)
			Expect(gone).To(BeNil())
		})

		It("skips a batch with too many destructive decisions", func() {
			var ids []string
			for _, c := range []string{"one", "two", "three", "four", "five"} {
				ids = append(ids, save(memory.TypeFact, c, 0.5).ID)
			}
			reply := "["
			for i, id := range ids[:4] {
				if i > 0 {
					reply += ","
				}
				reply += `{"id": "` + id + `", "action": "delete"}`
			}
			reply += "]"
			t := brain.ThinkerFunc(func(context.Context, string, string) (string, error) { return reply, nil })

			r, err := newManager(lifecycle.Config{Thinker: t}).ReviewWithLLM(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Deleted).To(BeZero())
			Expect(r.Kept).To(Equal(5))
			Expect(count()).To(Equal(5))
		})

		It("keeps the batch when the thinker fails", func() {
			save(memory.TypeFact, "a fact", 0.5)
			t := brain.ThinkerFunc(func(context.Context, string, string) (string, error) {
				return "", errors.New("overloaded")
			})

			r, err := newManager(lifecycle.Config{Thinker: t}).ReviewWithLLM(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(r).To(Equal(lifecycle.ReviewReport{Kept: 1, Errors: 1}))
		})
	})

	Describe("SynthesizeExperiences", func() {
		It("saves a principle and supersedes its sources", func() {
			a := save(memory.TypeError, "docker build failed because the daemon was down", 0.6)
			b := save(memory.TypeSkill, "start docker desktop before compose up", 0.6)
			save(memory.TypeSkill, "use ripgrep for code search", 0.6)

			reply := `[{"synthesized_from": ["` + a.ID + `", "` + b.ID + `", "unknown"], "content": "Check the docker daemon is running before any docker command", "subject": "docker", "predicate": "pitfall", "importance": 0.95}]`
			t := brain.ThinkerFunc(func(context.Context, string, string) (string, error) { return reply, nil })

			n, err := newManager(lifecycle.Config{Thinker: t}).SynthesizeExperiences(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			live, err := store.ListMemories(ctx, storage.MemoryFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(live).To(HaveLen(2))
			Expect(live[0].Content).To(HavePrefix("Check the docker daemon"))
			Expect(live[0].Priority).To(Equal(memory.PriorityLongTerm))
			Expect(live[0].ImportanceScore).To(Equal(0.95))

			src, _ := store.PeekMemory(ctx, a.ID)
			Expect(src.SupersededBy).To(Equal(live[0].ID))
		})

		It("needs at least three candidates", func() {
			save(memory.TypeSkill, "one", 0.5)
			save(memory.TypeSkill, "two", 0.5)
			var calls atomic.Int32
			t := brain.ThinkerFunc(func(context.Context, string, string) (string, error) {
				calls.Add(1)
				return "[]", nil
			})

			n, err := newManager(lifecycle.Config{Thinker: t}).SynthesizeExperiences(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
			Expect(calls.Load()).To(BeZero())
		})
	})

	Describe("ProcessUnextracted", func() {
		thinker := brain.ThinkerFunc(func(_ context.Context, prompt, _ string) (string, error) {
			if strings.Contains(prompt, "postgres") {
				return `[{"type": "FACT", "subject": "staging", "predicate": "database", "content": "Staging runs postgres 16", "importance": 0.7}]`, nil
			}
			return "NONE", nil
		})

		enqueue := func(content string) {
			_, err := store.EnqueueExtraction(ctx, &memory.ExtractionItem{SessionID: "s1", Content: content})
			Expect(err).NotTo(HaveOccurred())
		}

		It("leaves the queue alone without a thinker", func() {
			enqueue("staging runs postgres 16 now")
			n, err := newManager(lifecycle.Config{Extractor: extractor.New(extractor.Config{})}).ProcessUnextracted(ctx, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())

			pending, err := store.DequeueExtraction(ctx, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(HaveLen(1))
		})

		It("drains the queue and saves extracted memories", func() {
			enqueue("staging runs postgres 16 now")
			enqueue("thanks, that is all for today")

			m := newManager(lifecycle.Config{Extractor: extractor.New(extractor.Config{Thinker: thinker})})
			n, err := m.ProcessUnextracted(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			pending, err := store.DequeueExtraction(ctx, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(BeEmpty())

			mems, _ := store.ListMemories(ctx, storage.MemoryFilter{})
			Expect(mems).To(HaveLen(1))
			Expect(mems[0].Source).To(Equal("daily_consolidation"))
			Expect(mems[0].Priority).To(Equal(memory.PriorityLongTerm))
		})

		It("evolves the matching memory for updates", func() {
			existing := save(memory.TypeFact, "Staging runs postgres 14", 0.6, func(m *memory.SemanticMemory) {
				m.Subject, m.Predicate = "staging", "database"
			})
			update := brain.ThinkerFunc(func(context.Context, string, string) (string, error) {
				return `[{"type": "FACT", "subject": "Staging", "predicate": "DATABASE", "content": "Staging runs postgres 16", "importance": 0.5, "is_update": true}]`, nil
			})
			enqueue("we upgraded staging to postgres 16")

			m := newManager(lifecycle.Config{Extractor: extractor.New(extractor.Config{Thinker: update})})
			_, err := m.ProcessUnextracted(ctx, 5)
			Expect(err).NotTo(HaveOccurred())

			Expect(count()).To(Equal(1))
			got, _ := store.PeekMemory(ctx, existing.ID)
			Expect(got.Content).To(Equal("Staging runs postgres 16"))
			Expect(got.ImportanceScore).To(Equal(0.6))
			Expect(got.Confidence).To(BeNumerically("~", 0.6, 1e-9))
		})
	})

	Describe("ConsolidateDaily", func() {
		It("runs every pass and syncs the backend", func() {
			save(memory.TypePreference, "prefers concise answers", 0.8)
			save(memory.TypePreference, "prefers concise answers", 0.4)
			backend := &countingBackend{}
			dir := GinkgoT().TempDir()

			r, err := newManager(lifecycle.Config{Backend: backend, IdentityDir: dir}).ConsolidateDaily(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.DuplicatesRemoved).To(Equal(1))
			Expect(r.DigestWritten).To(BeTrue())
			Expect(r.VectorsSynced).To(Equal(1))
			Expect(r.Review.Kept).To(Equal(1))
			Expect(backend.added.Load()).To(Equal(int32(1)))
			Expect(filepath.Join(dir, lifecycle.DigestFile)).To(BeAnExistingFile())
		})
	})
})
