package brain_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/brain"
)

func reply(text string) brain.Thinker {
	return brain.ThinkerFunc(func(context.Context, string, string) (string, error) {
		return text, nil
	})
}

var _ = Describe("Ask", func() {
	ctx := context.Background()

	It("returns ErrNotConfigured without a thinker", func() {
		_, err := brain.Ask(ctx, nil, 0, "p", "s")
		Expect(err).To(MatchError(brain.ErrNotConfigured))
	})

	It("trims the reply", func() {
		out, err := brain.Ask(ctx, reply("  [1,2]\n"), 0, "p", "s")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("[1,2]"))
	})

	DescribeTable("maps empty and NONE replies to ErrNoResult",
		func(text string) {
			_, err := brain.Ask(ctx, reply(text), 0, "p", "s")
			Expect(err).To(MatchError(brain.ErrNoResult))
		},
		Entry("blank", "   "),
		Entry("NONE", "NONE"),
		Entry("lowercase", "none"),
		Entry("punctuated", "NONE."),
	)

	It("passes prompt and system through", func() {
		var gotPrompt, gotSystem string
		t := brain.ThinkerFunc(func(_ context.Context, p, s string) (string, error) {
			gotPrompt, gotSystem = p, s
			return "ok", nil
		})
		_, err := brain.Ask(ctx, t, 0, "the prompt", "the system")
		Expect(err).NotTo(HaveOccurred())
		Expect(gotPrompt).To(Equal("the prompt"))
		Expect(gotSystem).To(Equal("the system"))
	})

	It("bounds the call with the timeout", func() {
		slow := brain.ThinkerFunc(func(ctx context.Context, _, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
		_, err := brain.Ask(ctx, slow, 20*time.Millisecond, "p", "s")
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
	})
})
