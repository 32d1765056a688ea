package qdrant_test

import (
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/vector/qdrant"
)

var _ = Describe("Driver", func() {
	Describe("NewDriver", func() {
		It("should error when dimension not specified", func() {
			_, err := qdrant.NewDriver(qdrant.Config{Host: "localhost"}, logger.Nop())
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("dimensions"))
		})
	})

	Describe("PointID", func() {
		It("keeps ids that already are uuids", func() {
			id := uuid.NewString()
			Expect(qdrant.PointID(id)).To(Equal(id))
		})

		It("maps other ids to a stable uuid", func() {
			first := qdrant.PointID("attach:photo-1")
			Expect(uuid.Validate(first)).To(Succeed())
			Expect(qdrant.PointID("attach:photo-1")).To(Equal(first))
			Expect(qdrant.PointID("attach:photo-2")).NotTo(Equal(first))
		})
	})
})
