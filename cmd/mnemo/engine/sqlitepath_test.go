package engine_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/cmd/mnemo/engine"
)

var _ = Describe("ResolveSQLitePath", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		GinkgoT().Setenv("XDG_DATA_HOME", "")
	})

	It("prefers the override", func() {
		Expect(engine.ResolveSQLitePath("/tmp/custom.db", dir)).To(Equal("/tmp/custom.db"))
	})

	It("defaults to memory.db in the mnemo directory", func() {
		Expect(engine.ResolveSQLitePath("", dir)).To(Equal(filepath.Join(dir, "memory.db")))
	})

	It("uses an existing database under XDG_DATA_HOME", func() {
		xdg := GinkgoT().TempDir()
		GinkgoT().Setenv("XDG_DATA_HOME", xdg)

		dbPath := filepath.Join(xdg, "mnemo", "memory.db")
		Expect(os.MkdirAll(filepath.Dir(dbPath), 0o755)).To(Succeed())
		Expect(os.WriteFile(dbPath, nil, 0o600)).To(Succeed())

		Expect(engine.ResolveSQLitePath("", dir)).To(Equal(dbPath))
	})

	It("prefers the mnemo directory over XDG_DATA_HOME", func() {
		xdg := GinkgoT().TempDir()
		GinkgoT().Setenv("XDG_DATA_HOME", xdg)

		for _, p := range []string{filepath.Join(dir, "memory.db"), filepath.Join(xdg, "mnemo", "memory.db")} {
			Expect(os.MkdirAll(filepath.Dir(p), 0o755)).To(Succeed())
			Expect(os.WriteFile(p, nil, 0o600)).To(Succeed())
		}

		Expect(engine.ResolveSQLitePath("", dir)).To(Equal(filepath.Join(dir, "memory.db")))
	})
})
