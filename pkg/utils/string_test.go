package utils

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = DescribeTable("Truncate",
	func(in string, max int, want string) {
		Expect(Truncate(in, max)).To(Equal(want))
	},
	Entry("shorter than the limit", "short", 10, "short"),
	Entry("exactly the limit", "12345", 5, "12345"),
	Entry("over the limit", "staging runs postgres 16", 12, "staging runs..."),
	Entry("multi-byte runes", "我喜欢用制表符缩进", 3, "我喜欢..."),
	Entry("no limit", "kept as is", 0, "kept as is"),
)
