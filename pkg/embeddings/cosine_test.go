package embeddings_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/embeddings"
)

var _ = Describe("Cosine", func() {
	It("is 1 for parallel vectors", func() {
		Expect(embeddings.Cosine([]float32{1, 2, 3}, []float32{2, 4, 6})).To(BeNumerically("~", 1.0, 1e-9))
	})

	It("is 0 for orthogonal vectors", func() {
		Expect(embeddings.Cosine([]float32{1, 0}, []float32{0, 1})).To(BeNumerically("~", 0.0, 1e-9))
	})

	It("scores zero, empty and mismatched vectors as 0", func() {
		Expect(embeddings.Cosine([]float32{0, 0}, []float32{1, 1})).To(Equal(0.0))
		Expect(embeddings.Cosine(nil, nil)).To(Equal(0.0))
		Expect(embeddings.Cosine([]float32{1, 2}, []float32{1, 2, 3})).To(Equal(0.0))
	})
})
