package extractor_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/brain"
	"github.com/papercomputeco/mnemo/pkg/extractor"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

// scripted replies with a fixed answer and records the last prompt.
type scripted struct {
	reply  string
	err    error
	calls  atomic.Int32
	prompt atomic.Value
}

func (s *scripted) Think(_ context.Context, prompt, _ string) (string, error) {
	s.calls.Add(1)
	s.prompt.Store(prompt)
	return s.reply, s.err
}

func (s *scripted) lastPrompt() string {
	p, _ := s.prompt.Load().(string)
	return p
}

var _ = Describe("ExtractFromTurn", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	turn := func(content string) memory.ConversationTurn {
		return memory.ConversationTurn{Role: "user", Content: content}
	}

	It("returns nothing without a thinker", func() {
		e := extractor.New(extractor.Config{})
		Expect(e.HasThinker()).To(BeFalse())
		Expect(e.ExtractFromTurn(ctx, turn("I always deploy with terraform"), "")).To(BeEmpty())
	})

	It("skips short turns without calling the thinker", func() {
		t := &scripted{reply: "NONE"}
		e := extractor.New(extractor.Config{Thinker: t})

		Expect(e.ExtractFromTurn(ctx, turn("ok thanks"), "")).To(BeEmpty())
		Expect(t.calls.Load()).To(BeZero())
	})

	It("still asks about short turns that carry tool calls", func() {
		t := &scripted{reply: "NONE"}
		e := extractor.New(extractor.Config{Thinker: t})

		tt := turn("ok")
		tt.ToolCalls = []memory.ToolCall{{Name: "shell", Input: map[string]any{"command": "ls"}}}
		e.ExtractFromTurn(ctx, tt, "")
		Expect(t.calls.Load()).To(Equal(int32(1)))
	})

	DescribeTable("treats non-answers as empty",
		func(reply string, err error) {
			e := extractor.New(extractor.Config{Thinker: &scripted{reply: reply, err: err}})
			Expect(e.ExtractFromTurn(ctx, turn("my name is Ada and I write Go"), "")).To(BeEmpty())
		},
		Entry("NONE", "NONE", nil),
		Entry("quoted none", "`none`", nil),
		Entry("prose", "nothing to see here", nil),
		Entry("broken json", `[{"type": "FACT", "content": `, nil),
		Entry("object instead of array", `{"content": "something long"}`, nil),
		Entry("thinker error", "", errors.New("rate limited")),
	)

	It("gives up when the thinker outlives the timeout", func() {
		slow := brain.ThinkerFunc(func(ctx context.Context, _, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
		e := extractor.New(extractor.Config{Thinker: slow, Timeout: 20 * time.Millisecond})
		Expect(e.ExtractFromTurn(ctx, turn("my name is Ada and I write Go"), "")).To(BeEmpty())
	})

	It("parses, clamps and defaults items", func() {
		t := &scripted{reply: `Sure, here you go:
[
  {"type": "PREFERENCE", "subject": "user", "predicate": "editor", "content": "Prefers neovim", "importance": 1.7},
  {"type": "rule", "content": "Never push to main", "importance": "0.9"},
  {"type": "ERROR", "content": "tiny"},
  {"type": "SKILL", "content": "Uses make for builds", "importance": -2, "duration": "session"},
  "not an object"
]`}
		e := extractor.New(extractor.Config{Thinker: t})

		items := e.ExtractFromTurn(ctx, turn("I prefer neovim and never push to main"), "")
		Expect(items).To(HaveLen(3))

		Expect(items[0].Type).To(Equal(memory.TypePreference))
		Expect(items[0].Subject).To(Equal("user"))
		Expect(items[0].Importance).To(Equal(1.0))
		Expect(items[0].Duration).To(Equal(extractor.DurationPermanent))

		Expect(items[1].Type).To(Equal(memory.TypeRule))
		Expect(items[1].Importance).To(Equal(0.9))
		Expect(items[1].Duration).To(Equal(extractor.Duration24h))

		Expect(items[2].Importance).To(Equal(0.0))
		Expect(items[2].Duration).To(Equal(extractor.DurationSession))
	})

	It("includes tool context with an error marker", func() {
		t := &scripted{reply: "NONE"}
		e := extractor.New(extractor.Config{Thinker: t})

		tt := turn("deploy the staging stack please")
		tt.ToolCalls = []memory.ToolCall{{ID: "t1", Name: "shell", Input: map[string]any{"command": "make deploy", "secret": "x"}}}
		tt.ToolResults = []memory.ToolResult{{ToolUseID: "t1", Content: "permission denied", IsError: true}}
		e.ExtractFromTurn(ctx, tt, "previous deploy failed")

		prompt := t.lastPrompt()
		Expect(prompt).To(ContainSubstring(`shell({"command":"make deploy"})`))
		Expect(prompt).To(ContainSubstring("ERROR: permission denied"))
		Expect(prompt).To(ContainSubstring("Context: previous deploy failed"))
		Expect(prompt).NotTo(ContainSubstring("secret"))
	})
})

var _ = Describe("BuildToolContext", func() {
	It("is empty without tool calls", func() {
		Expect(extractor.BuildToolContext(nil, []memory.ToolResult{{Content: "x"}})).To(BeEmpty())
	})

	It("caps calls at five and results at three", func() {
		var calls []memory.ToolCall
		var results []memory.ToolResult
		for range 8 {
			calls = append(calls, memory.ToolCall{Name: "read"})
			results = append(results, memory.ToolResult{Content: "ok"})
		}
		out := extractor.BuildToolContext(calls, results)
		Expect(out).To(ContainSubstring("Tool calls:"))
		Expect(strings.Count(out, "- read(")).To(Equal(5))
		Expect(strings.Count(out, "Result: ok")).To(Equal(3))
	})
})

var _ = Describe("ExtractFromConversation", func() {
	ctx := context.Background()
	turns := []memory.ConversationTurn{
		{Role: "user", Content: "call me Ada, I work on the billing team"},
		{Role: "assistant", Content: "Noted, Ada."},
	}

	It("skips conversations without a substantive user turn", func() {
		t := &scripted{reply: "NONE"}
		e := extractor.New(extractor.Config{Thinker: t})
		items, scores := e.ExtractFromConversation(ctx, []memory.ConversationTurn{{Role: "user", Content: "hi"}}, nil)
		Expect(items).To(BeEmpty())
		Expect(scores).To(BeEmpty())
		Expect(t.calls.Load()).To(BeZero())
	})

	It("extracts items", func() {
		t := &scripted{reply: `[{"type": "FACT", "subject": "user", "predicate": "name", "content": "User is called Ada", "importance": 0.9}]`}
		e := extractor.New(extractor.Config{Thinker: t})
		items, scores := e.ExtractFromConversation(ctx, turns, nil)
		Expect(items).To(HaveLen(1))
		Expect(items[0].Content).To(Equal("User is called Ada"))
		Expect(scores).To(BeNil())
	})

	It("scores cited memories in the same call", func() {
		t := &scripted{reply: `{"memories": [{"type": "FACT", "content": "User works on billing"}],
			"citation_scores": [{"memory_id": "m1", "useful": true}, {"memory_id": "", "useful": true}, {"memory_id": "m2", "useful": false}]}`}
		e := extractor.New(extractor.Config{Thinker: t})

		items, scores := e.ExtractFromConversation(ctx, turns, []extractor.CitedMemory{{ID: "m1", Content: "billing service owner"}})
		Expect(t.lastPrompt()).To(ContainSubstring("ID=m1 | billing service owner"))
		Expect(items).To(HaveLen(1))
		Expect(scores).To(Equal([]extractor.CitationScore{{MemoryID: "m1", Useful: true}, {MemoryID: "m2"}}))
	})
})

var _ = Describe("ExtractExperience", func() {
	ctx := context.Background()

	It("needs two assistant turns", func() {
		t := &scripted{reply: `[{"type": "EXPERIENCE", "content": "Check docker is running first"}]`}
		e := extractor.New(extractor.Config{Thinker: t})

		one := []memory.ConversationTurn{{Role: "user", Content: "run it"}, {Role: "assistant", Content: "done"}}
		Expect(e.ExtractExperience(ctx, one)).To(BeEmpty())

		two := append(one, memory.ConversationTurn{Role: "assistant", Content: "docker was down, restarted"})
		items := e.ExtractExperience(ctx, two)
		Expect(items).To(HaveLen(1))
		Expect(items[0].Type).To(Equal(memory.TypeSkill))
	})
})

var _ = Describe("Item", func() {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	DescribeTable("priority",
		func(t memory.MemoryType, importance float64, want memory.Priority) {
			Expect(extractor.Item{Type: t, Importance: importance}.Priority()).To(Equal(want))
		},
		Entry("rule is permanent", memory.TypeRule, 0.1, memory.PriorityPermanent),
		Entry("very important", memory.TypeFact, 0.85, memory.PriorityPermanent),
		Entry("important", memory.TypeFact, 0.6, memory.PriorityLongTerm),
		Entry("ordinary", memory.TypeFact, 0.59, memory.PriorityShortTerm),
	)

	It("applies the duration hint before the priority ttl", func() {
		m := extractor.Item{Type: memory.TypeFact, Content: "uses go 1.24", Importance: 0.7, Duration: extractor.Duration24h}.
			ToMemory("session_extraction", "ep1", now)
		Expect(m.Priority).To(Equal(memory.PriorityLongTerm))
		Expect(m.SourceEpisodeID).To(Equal("ep1"))
		Expect(m.Tags).To(Equal([]string{"fact"}))
		Expect(*m.ExpiresAt).To(BeTemporally("==", now.Add(24*time.Hour)))
	})

	It("leaves permanent items without expiry", func() {
		m := extractor.Item{Type: memory.TypeFact, Content: "name is Ada", Importance: 0.5, Duration: extractor.DurationPermanent}.
			ToMemory("", "", now)
		Expect(m.ExpiresAt).To(BeNil())
	})

	It("falls back to the priority ttl without a hint", func() {
		m := extractor.Item{Type: memory.TypeFact, Content: "short lived", Importance: 0.3}.ToMemory("", "", now)
		Expect(*m.ExpiresAt).To(BeTemporally("==", now.Add(3*24*time.Hour)))

		m = extractor.Item{Type: memory.TypeFact, Content: "longer lived", Importance: 0.7}.ToMemory("", "", now)
		Expect(*m.ExpiresAt).To(BeTemporally("==", now.Add(30*24*time.Hour)))

		m = extractor.Item{Type: memory.TypeFact, Content: "forever", Importance: 0.9}.ToMemory("", "", now)
		Expect(m.ExpiresAt).To(BeNil())
	})
})
