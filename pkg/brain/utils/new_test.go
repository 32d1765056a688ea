package brainutils_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/brain"
	"github.com/papercomputeco/mnemo/pkg/brain/anthropic"
	"github.com/papercomputeco/mnemo/pkg/brain/ollama"
	brainutils "github.com/papercomputeco/mnemo/pkg/brain/utils"
)

var _ = Describe("NewThinker", func() {
	It("returns no thinker for provider none", func() {
		t, err := brainutils.NewThinker(&brainutils.NewThinkerOpts{Provider: "none"})
		Expect(err).NotTo(HaveOccurred())
		Expect(t).To(BeNil())
	})

	It("builds an ollama thinker without credentials", func() {
		t, err := brainutils.NewThinker(&brainutils.NewThinkerOpts{Provider: "ollama"})
		Expect(err).NotTo(HaveOccurred())
		Expect(t).To(BeAssignableToTypeOf(&ollama.Thinker{}))
	})

	It("builds an anthropic thinker from an explicit key", func() {
		t, err := brainutils.NewThinker(&brainutils.NewThinkerOpts{Provider: "Anthropic", APIKey: "sk-ant"})
		Expect(err).NotTo(HaveOccurred())
		Expect(t).To(BeAssignableToTypeOf(&anthropic.Thinker{}))
	})

	It("reports a missing key as not configured", func() {
		GinkgoT().Setenv("OPENAI_API_KEY", "")
		t, err := brainutils.NewThinker(&brainutils.NewThinkerOpts{Provider: "openai"})
		Expect(err).To(MatchError(brain.ErrNotConfigured))
		Expect(t).To(BeNil())
	})

	It("rejects unknown providers", func() {
		_, err := brainutils.NewThinker(&brainutils.NewThinkerOpts{Provider: "gemini"})
		Expect(err).To(HaveOccurred())
	})
})
