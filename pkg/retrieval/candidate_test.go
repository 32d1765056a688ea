package retrieval_test

import (
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/retrieval"
)

var _ = Describe("Scoring", func() {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	Describe("Recency", func() {
		It("scores now above 0.9 and thirty days below 0.2", func() {
			Expect(retrieval.Recency(now, now)).To(BeNumerically("~", 1.0, 1e-9))
			Expect(retrieval.Recency(now.Add(-24*time.Hour), now)).To(BeNumerically(">", 0.9))
			Expect(retrieval.Recency(now.Add(-30*24*time.Hour), now)).To(BeNumerically("<", 0.2))
		})

		It("scores a missing time as exactly 0", func() {
			Expect(retrieval.Recency(time.Time{}, now)).To(Equal(0.0))
		})

		It("is monotonically decreasing", func() {
			prev := 2.0
			for days := range 60 {
				r := retrieval.Recency(now.Add(-time.Duration(days)*24*time.Hour), now)
				Expect(r).To(BeNumerically("<", prev))
				prev = r
			}
		})
	})

	Describe("AccessScore", func() {
		It("is 0 for no accesses and saturates at 1", func() {
			Expect(retrieval.AccessScore(0)).To(Equal(0.0))
			Expect(retrieval.AccessScore(1)).To(BeNumerically(">", 0))
			Expect(retrieval.AccessScore(10)).To(BeNumerically(">", retrieval.AccessScore(5)))
			Expect(retrieval.AccessScore(1_000_000)).To(Equal(1.0))
		})
	})

	Describe("Rerank", func() {
		It("ranks the higher-relevance twin first", func() {
			low := &retrieval.Candidate{ID: "low", Relevance: 0.5, Recency: 0.5, Importance: 0.5, Access: 0.5}
			high := &retrieval.Candidate{ID: "high", Relevance: 0.9, Recency: 0.5, Importance: 0.5, Access: 0.5}

			ranked := retrieval.Rerank([]*retrieval.Candidate{low, high}, "")
			Expect(ranked[0].ID).To(Equal("high"))
		})

		It("scores a maximal candidate at 1.0", func() {
			c := &retrieval.Candidate{ID: "max", Relevance: 1, Recency: 1, Importance: 1, Access: 1}
			retrieval.Rerank([]*retrieval.Candidate{c}, "")
			Expect(c.Score).To(BeNumerically("~", 1.0, 1e-9))
		})

		It("applies the weighted sum", func() {
			c := &retrieval.Candidate{Relevance: 0.8, Recency: 0.5, Importance: 0.6, Access: 0.2}
			retrieval.Rerank([]*retrieval.Candidate{c}, "")
			Expect(c.Score).To(BeNumerically("~", 0.4*0.8+0.25*0.5+0.2*0.6+0.15*0.2, 1e-9))
		})

		It("boosts skills above equal facts for a technical persona", func() {
			fact := &retrieval.Candidate{ID: "fact", MemoryType: "fact", Relevance: 0.8, Importance: 0.5}
			skill := &retrieval.Candidate{ID: "skill", MemoryType: "skill", Relevance: 0.8, Importance: 0.5}

			ranked := retrieval.Rerank([]*retrieval.Candidate{fact, skill}, "tech_expert")
			Expect(ranked[0].ID).To(Equal("skill"))
			Expect(skill.Score).To(BeNumerically("~", fact.Score*1.2, 1e-9))

			retrieval.Rerank([]*retrieval.Candidate{fact, skill}, "casual")
			Expect(skill.Score).To(Equal(fact.Score))
		})
	})

	Describe("Merge", func() {
		It("keeps the higher relevance on id collisions", func() {
			a := &retrieval.Candidate{ID: "m1", Relevance: 0.5, Source: retrieval.SourceRecent}
			b := &retrieval.Candidate{ID: "m1", Relevance: 0.8, Source: retrieval.SourceSemantic}
			c := &retrieval.Candidate{ID: "m2", Relevance: 0.6}

			merged := retrieval.Merge([]*retrieval.Candidate{a, c}, []*retrieval.Candidate{b})
			Expect(merged).To(HaveLen(2))
			Expect(merged[0].Source).To(Equal(retrieval.SourceSemantic))
			Expect(merged[1].ID).To(Equal("m2"))
		})
	})

	Describe("Format", func() {
		It("formats nothing to an empty string", func() {
			Expect(retrieval.Format(nil, 100)).To(Equal(""))
		})

		It("stops at the token budget", func() {
			line := strings.Repeat("x", 40)
			cands := []*retrieval.Candidate{{Content: line}, {Content: line}, {Content: line}}

			out := retrieval.Format(cands, 25)
			Expect(strings.Split(out, "\n")).To(HaveLen(2))
		})
	})
})

var _ = Describe("Query helpers", func() {
	It("leaves the query alone without recent messages", func() {
		Expect(retrieval.EnhanceQuery("deploy", nil)).To(Equal("deploy"))
	})

	It("prefixes the last three messages cut to 100 runes", func() {
		long := strings.Repeat("é", 300)
		recent := []memory.Message{
			{Role: "user", Content: "first"},
			{Role: "user", Content: "second"},
			{Role: "assistant", Content: long},
			{Role: "user", Content: "fourth"},
		}
		q := retrieval.EnhanceQuery("deploy", recent)
		Expect(q).NotTo(ContainSubstring("first"))
		Expect(q).To(HavePrefix("second "))
		Expect(q).To(HaveSuffix(" fourth deploy"))
		Expect(strings.Count(q, "é")).To(Equal(100))
	})

	It("skips empty messages", func() {
		recent := []memory.Message{{Role: "assistant", Content: ""}, {Role: "user", Content: "on staging"}}
		Expect(retrieval.EnhanceQuery("deploy", recent)).To(Equal("on staging deploy"))
	})

	DescribeTable("media cues",
		func(query string, want bool) {
			Expect(retrieval.HasMediaCue(query)).To(Equal(want))
		},
		Entry("photo", "send me that Photo again", true),
		Entry("screenshot", "the screenshot from yesterday", true),
		Entry("pdf", "where is the pdf", true),
		Entry("chinese", "上次那张图片", true),
		Entry("none", "what is my favourite editor", false),
	)

	It("extracts paths, file names and long words", func() {
		entities := retrieval.QueryEntities(`fix C:\src\app.py and main.go in the repo`)
		Expect(entities).To(ContainElement(`C:\src\app.py`))
		Expect(entities).To(ContainElement("main.go"))
		Expect(entities).To(ContainElement("fix"))
		Expect(entities).NotTo(ContainElement("in"))
	})

	It("describes attachments on one line", func() {
		a := memory.NewAttachment("cat.jpg")
		a.Description = "a grey cat"
		a.LocalPath = "/media/cat.jpg"
		Expect(retrieval.DescribeAttachment(a)).To(Equal("[user file] cat.jpg | a grey cat | path: /media/cat.jpg"))

		a.Direction = memory.DirectionOutbound
		a.LocalPath = ""
		a.URL = "https://example.com/cat.jpg"
		Expect(retrieval.DescribeAttachment(a)).To(Equal("[generated file] cat.jpg | a grey cat | URL: https://example.com/cat.jpg"))
	})
})
