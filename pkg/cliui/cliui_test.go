package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/cliui"
)

var _ = Describe("cliui", func() {
	DescribeTable("FormatDuration",
		func(d time.Duration, want string) {
			Expect(cliui.FormatDuration(d)).To(Equal(want))
		},
		Entry("milliseconds", 12*time.Millisecond, "12ms"),
		Entry("seconds", 3200*time.Millisecond, "3.2s"),
	)

	It("marks success and failure differently", func() {
		Expect(cliui.Mark(nil)).To(Equal(cliui.SuccessMark))
		Expect(cliui.Mark(errors.New("boom"))).To(Equal(cliui.FailMark))
	})

	It("tags memory types", func() {
		Expect(cliui.TypeTag("fact")).To(ContainSubstring("[fact]"))
		Expect(cliui.TypeTag("episode")).To(ContainSubstring("[episode]"))
	})

	It("reports the step result and returns its error", func() {
		var buf bytes.Buffer
		err := cliui.Step(&buf, "consolidating", func() error { return errors.New("locked") })
		Expect(err).To(MatchError("locked"))
		Expect(buf.String()).To(ContainSubstring("consolidating"))
		Expect(buf.String()).To(HaveSuffix("\n"))
	})

	It("renders markdown", func() {
		out, err := cliui.RenderMarkdown("# Core Memory\n\n- prefers tabs\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("prefers tabs"))
	})
})
