package memory_test

import (
	"encoding/json"
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

var _ = Describe("SemanticMemory", func() {
	Describe("NewSemanticMemory", func() {
		It("assigns unique ids and defaults", func() {
			a := memory.NewSemanticMemory(memory.TypeFact, "a")
			b := memory.NewSemanticMemory(memory.TypeFact, "b")

			Expect(a.ID).NotTo(BeEmpty())
			Expect(a.ID).NotTo(Equal(b.ID))
			Expect(a.ImportanceScore).To(Equal(0.5))
			Expect(a.Confidence).To(Equal(0.5))
			Expect(a.DecayRate).To(Equal(0.1))
			Expect(a.Priority).To(Equal(memory.PriorityShortTerm))
		})

		It("never shares tags between instances", func() {
			a := memory.NewSemanticMemory(memory.TypeFact, "a")
			b := memory.NewSemanticMemory(memory.TypeFact, "b")
			a.Tags = append(a.Tags, "x")

			Expect(b.Tags).To(BeEmpty())
		})
	})

	Describe("Clamp", func() {
		It("forces scores into [0,1]", func() {
			m := memory.NewSemanticMemory(memory.TypeFact, "x")
			m.ImportanceScore = 3.2
			m.Confidence = -1
			m.Clamp()

			Expect(m.ImportanceScore).To(Equal(1.0))
			Expect(m.Confidence).To(Equal(0.0))
		})

		It("replaces NaN with defaults", func() {
			m := memory.NewSemanticMemory(memory.TypeFact, "x")
			m.ImportanceScore = math.NaN()
			m.Clamp()

			Expect(m.ImportanceScore).To(Equal(memory.DefaultImportance))
		})
	})

	Describe("Clone", func() {
		It("deep copies tags and expiry", func() {
			exp := time.Now().Add(time.Hour)
			m := memory.NewSemanticMemory(memory.TypeFact, "x")
			m.Tags = []string{"one"}
			m.ExpiresAt = &exp

			c := m.Clone()
			c.Tags[0] = "two"
			*c.ExpiresAt = exp.Add(time.Hour)

			Expect(m.Tags[0]).To(Equal("one"))
			Expect(*m.ExpiresAt).To(BeTemporally("==", exp))
		})
	})

	Describe("ToMarkdown", func() {
		It("renders type, subject, content and tags", func() {
			m := memory.NewSemanticMemory(memory.TypeFact, "version 3.12")
			m.Subject = "Python"
			m.Tags = []string{"lang", "runtime"}

			Expect(m.ToMarkdown()).To(Equal("- [fact] Python: version 3.12 (tags: lang, runtime)"))
		})

		It("omits empty subject and tags", func() {
			m := memory.NewSemanticMemory(memory.TypeRule, "never push to main")
			Expect(m.ToMarkdown()).To(Equal("- [rule] never push to main"))
		})
	})

	Describe("JSON round-trip", func() {
		It("reproduces every field", func() {
			exp := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
			m := memory.NewSemanticMemory(memory.TypePreference, "prefers tabs")
			m.Subject = "user"
			m.Predicate = "indent"
			m.ImportanceScore = 0.7
			m.Confidence = 0.9
			m.AccessCount = 4
			m.Tags = []string{"style"}
			m.Source = "session_extraction"
			m.SourceEpisodeID = "ep-1"
			m.SupersededBy = "other"
			m.LastAccessedAt = time.Now().UTC().Truncate(time.Second)
			m.ExpiresAt = &exp

			data, err := json.Marshal(m)
			Expect(err).NotTo(HaveOccurred())

			var decoded memory.SemanticMemory
			Expect(json.Unmarshal(data, &decoded)).To(Succeed())
			Expect(decoded.ID).To(Equal(m.ID))
			Expect(decoded.Type).To(Equal(m.Type))
			Expect(decoded.Priority).To(Equal(m.Priority))
			Expect(decoded.Subject).To(Equal("user"))
			Expect(decoded.Predicate).To(Equal("indent"))
			Expect(decoded.ImportanceScore).To(Equal(0.7))
			Expect(decoded.Confidence).To(Equal(0.9))
			Expect(decoded.AccessCount).To(Equal(4))
			Expect(decoded.Tags).To(Equal([]string{"style"}))
			Expect(decoded.SourceEpisodeID).To(Equal("ep-1"))
			Expect(decoded.SupersededBy).To(Equal("other"))
			Expect(decoded.LastAccessedAt).To(BeTemporally("==", m.LastAccessedAt))
			Expect(*decoded.ExpiresAt).To(BeTemporally("==", exp))
		})

		It("defaults fields missing from legacy records", func() {
			legacy := `{"id":"old-1","type":"FACT","content":"legacy content"}`

			var decoded memory.SemanticMemory
			Expect(json.Unmarshal([]byte(legacy), &decoded)).To(Succeed())
			Expect(decoded.ID).To(Equal("old-1"))
			Expect(decoded.Type).To(Equal(memory.TypeFact))
			Expect(decoded.Priority).To(Equal(memory.PriorityShortTerm))
			Expect(decoded.ImportanceScore).To(Equal(memory.DefaultImportance))
			Expect(decoded.Confidence).To(Equal(memory.DefaultConfidence))
			Expect(decoded.DecayRate).To(Equal(memory.DefaultDecayRate))
			Expect(decoded.Tags).To(BeEmpty())
			Expect(decoded.Tags).NotTo(BeNil())
		})

		It("clamps out-of-range scores on decode", func() {
			var decoded memory.SemanticMemory
			Expect(json.Unmarshal([]byte(`{"content":"x","importance_score":7,"confidence":-2}`), &decoded)).To(Succeed())
			Expect(decoded.ImportanceScore).To(Equal(1.0))
			Expect(decoded.Confidence).To(Equal(0.0))
			Expect(decoded.ID).NotTo(BeEmpty())
		})
	})
})

var _ = Describe("Episode", func() {
	It("round-trips with action nodes", func() {
		ep := memory.NewEpisode("session-1")
		ep.Summary = "Fixed the build"
		ep.Goal = "make CI green"
		ep.ActionNodes = []memory.ActionNode{
			{ToolName: "run_shell", KeyParams: map[string]string{"command": "make"}, Success: false, ErrorMessage: "exit 2"},
		}
		ep.Entities = []string{"Makefile"}
		ep.ToolsUsed = []string{"run_shell"}

		data, err := json.Marshal(ep)
		Expect(err).NotTo(HaveOccurred())

		var decoded memory.Episode
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded.Summary).To(Equal("Fixed the build"))
		Expect(decoded.ActionNodes).To(HaveLen(1))
		Expect(decoded.ActionNodes[0].Success).To(BeFalse())
		Expect(decoded.ActionNodes[0].KeyParams).To(HaveKeyWithValue("command", "make"))
		Expect(decoded.Entities).To(Equal([]string{"Makefile"}))
	})

	It("defaults legacy fields", func() {
		var decoded memory.Episode
		Expect(json.Unmarshal([]byte(`{"id":"e1","session_id":"s","summary":"x","action_nodes":[{"tool_name":"read"}]}`), &decoded)).To(Succeed())
		Expect(decoded.Outcome).To(Equal("completed"))
		Expect(decoded.Source).To(Equal("session_end"))
		Expect(decoded.ImportanceScore).To(Equal(0.5))
		Expect(decoded.ActionNodes[0].Success).To(BeTrue())
		Expect(decoded.LinkedMemoryIDs).NotTo(BeNil())
	})

	It("renders a one-line summary", func() {
		ep := memory.NewEpisode("s")
		ep.Summary = "Deployed v2"
		ep.Goal = "ship"
		ep.ToolsUsed = []string{"deploy"}
		Expect(ep.ToMarkdown()).To(Equal("- [episode] Deployed v2 (goal: ship; outcome: completed; tools: deploy)"))
	})
})

var _ = Describe("Scratchpad", func() {
	It("defaults the user id on decode", func() {
		var decoded memory.Scratchpad
		Expect(json.Unmarshal([]byte(`{"content":"notes"}`), &decoded)).To(Succeed())
		Expect(decoded.UserID).To(Equal(memory.DefaultUserID))
		Expect(decoded.NextSteps).NotTo(BeNil())
	})

	It("round-trips lists", func() {
		sp := memory.NewScratchpad("")
		sp.Content = "# Scratchpad"
		sp.ActiveProjects = []string{"mnemo"}
		sp.OpenQuestions = []string{"which embedder?"}
		sp.NextSteps = []string{"write tests"}

		data, err := json.Marshal(sp)
		Expect(err).NotTo(HaveOccurred())

		var decoded memory.Scratchpad
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded.UserID).To(Equal("default"))
		Expect(decoded.ActiveProjects).To(Equal([]string{"mnemo"}))
		Expect(decoded.OpenQuestions).To(Equal([]string{"which embedder?"}))
		Expect(decoded.NextSteps).To(Equal([]string{"write tests"}))
	})

	It("renders structured lists when content is empty", func() {
		sp := memory.NewScratchpad("u")
		sp.ActiveProjects = []string{"mnemo"}
		Expect(sp.ToMarkdown()).To(ContainSubstring("## Active Projects\n- mnemo"))
	})
})

var _ = Describe("Attachment", func() {
	It("infers direction from the turn role", func() {
		Expect(memory.DirectionForRole("user")).To(Equal(memory.DirectionInbound))
		Expect(memory.DirectionForRole("assistant")).To(Equal(memory.DirectionOutbound))
	})

	It("normalizes unknown directions to inbound", func() {
		var decoded memory.Attachment
		Expect(json.Unmarshal([]byte(`{"filename":"cat.png","direction":"sideways"}`), &decoded)).To(Succeed())
		Expect(decoded.Direction).To(Equal(memory.DirectionInbound))
		Expect(decoded.OriginalFilename).To(Equal("cat.png"))
	})

	It("joins searchable text fields", func() {
		a := memory.NewAttachment("cat.png")
		a.Description = "a grey cat on a sofa"
		a.Tags = []string{"pets"}

		text := a.SearchableText()
		Expect(text).To(ContainSubstring("cat.png"))
		Expect(text).To(ContainSubstring("grey cat"))
		Expect(text).To(ContainSubstring("pets"))
	})
})
