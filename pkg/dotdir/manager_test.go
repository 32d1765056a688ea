package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/dotdir"
)

var _ = Describe("Manager", func() {
	var (
		root string
		m    *dotdir.Manager
	)

	chdir := func(dir string) {
		orig, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(dir)).To(Succeed())
		DeferCleanup(func() { Expect(os.Chdir(orig)).To(Succeed()) })
	}

	BeforeEach(func() {
		var err error
		// Resolve symlinks so paths compare equal to filepath.Abs results
		// on systems where the temp dir is a link (macOS /var).
		root, err = filepath.EvalSymlinks(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		GinkgoT().Setenv("HOME", filepath.Join(root, "home"))
		m = dotdir.NewManager()
	})

	Describe("Target", func() {
		It("creates the override dir", func() {
			dir := filepath.Join(root, "custom")
			result, err := m.Target(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(dir))
			Expect(dir).To(BeADirectory())
		})

		It("prefers the override over a local .mnemo dir", func() {
			Expect(os.Mkdir(filepath.Join(root, ".mnemo"), 0o755)).To(Succeed())
			chdir(root)

			override := filepath.Join(root, "override")
			Expect(m.Target(override)).To(Equal(override))
		})

		It("uses the .mnemo dir in the working directory", func() {
			local := filepath.Join(root, ".mnemo")
			Expect(os.Mkdir(local, 0o755)).To(Succeed())
			chdir(root)

			Expect(m.Target("")).To(Equal(local))
		})

		It("finds a .mnemo dir in a parent directory", func() {
			local := filepath.Join(root, "project", ".mnemo")
			nested := filepath.Join(root, "project", "src", "api")
			Expect(os.MkdirAll(local, 0o755)).To(Succeed())
			Expect(os.MkdirAll(nested, 0o755)).To(Succeed())
			chdir(nested)

			Expect(m.Target("")).To(Equal(local))
		})

		It("falls back to creating ~/.mnemo", func() {
			empty := filepath.Join(root, "empty")
			Expect(os.Mkdir(empty, 0o755)).To(Succeed())
			chdir(empty)

			home := filepath.Join(root, "home", ".mnemo")
			Expect(m.Target("")).To(Equal(home))
			Expect(home).To(BeADirectory())
		})
	})
})
