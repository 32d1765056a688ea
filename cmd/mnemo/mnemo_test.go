package mnemocmder_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gopkg.in/yaml.v3"

	mnemocmder "github.com/papercomputeco/mnemo/cmd/mnemo"
	exportcmder "github.com/papercomputeco/mnemo/cmd/mnemo/export"
)

var _ = Describe("NewMnemoCmd", func() {
	It("registers the global flags", func() {
		cmd := mnemocmder.NewMnemoCmd()
		Expect(cmd.PersistentFlags().Lookup("debug")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})

	It("has every subcommand", func() {
		cmd := mnemocmder.NewMnemoCmd()
		names := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements(
			"init", "config", "remember", "search", "forget", "context",
			"session", "consolidate", "digest", "stats", "export", "version",
		))
	})
})

var _ = Describe("mnemo commands", func() {
	var dir string

	run := func(args ...string) (string, error) {
		out := &bytes.Buffer{}
		cmd := mnemocmder.NewMnemoCmd()
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetIn(strings.NewReader(""))
		cmd.SetArgs(append([]string{"--config-dir", dir}, args...))
		err := cmd.Execute()
		return out.String(), err
	}

	mustRun := func(args ...string) string {
		out, err := run(args...)
		Expect(err).NotTo(HaveOccurred(), out)
		return out
	}

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		for _, k := range []string{"MNEMO_SEARCH_BACKEND", "MNEMO_BRAIN_PROVIDER", "MNEMO_STORAGE_SQLITE_PATH", "MNEMO_MEMORY_IDENTITY_DIR"} {
			GinkgoT().Setenv(k, "")
			Expect(os.Unsetenv(k)).To(Succeed())
		}
	})

	Describe("remember, search and forget", func() {
		It("stores, finds and deletes a memory", func() {
			out := mustRun("remember", "The API gateway runs on port 8443", "--tags", "infra")
			Expect(out).To(ContainSubstring("Remembered"))

			ids := strings.Fields(mustRun("search", "gateway", "--quiet"))
			Expect(ids).To(HaveLen(1))

			out = mustRun("search", "--tags", "infra")
			Expect(out).To(ContainSubstring("The API gateway runs on port 8443"))

			out = mustRun("forget", ids[0])
			Expect(out).To(ContainSubstring("Forgot"))
			Expect(mustRun("search", "gateway")).To(ContainSubstring("No memories found."))
		})

		It("reports duplicates instead of storing them twice", func() {
			mustRun("remember", "Uses neovim")
			Expect(mustRun("remember", "uses  NEOVIM")).To(ContainSubstring("Already remembered"))
			Expect(strings.Fields(mustRun("search", "neovim", "--quiet"))).To(HaveLen(1))
		})

		It("rejects unknown types and priorities", func() {
			_, err := run("remember", "x", "--type", "gossip")
			Expect(err).To(MatchError(ContainSubstring("unknown memory type")))

			_, err = run("remember", "x", "--priority", "forever")
			Expect(err).To(MatchError(ContainSubstring("unknown priority")))
		})

		It("reports unknown ids on forget", func() {
			Expect(mustRun("forget", "no-such-id")).To(ContainSubstring("not found"))
		})
	})

	Describe("context", func() {
		It("prints nothing for an empty store", func() {
			Expect(mustRun("context", "plan the release")).To(BeEmpty())
		})

		It("prints relevant memories as markdown", func() {
			mustRun("remember", "Releases are cut from the release branch", "--type", "rule")
			out := mustRun("context", "cut the release")
			Expect(out).To(ContainSubstring("Releases are cut from the release branch"))
		})
	})

	Describe("session", func() {
		It("records turns across invocations and finalizes them", func() {
			Expect(mustRun("session", "start", "s1")).To(ContainSubstring("Started session"))
			Expect(mustRun("session", "start")).To(ContainSubstring("Resumed session"))

			mustRun("session", "record", "--role", "user", "please rename the config loader")
			mustRun("session", "record", "--role", "assistant", "renamed it to settings loader")

			Expect(mustRun("session", "status")).To(ContainSubstring("s1"))

			out := mustRun("session", "end")
			Expect(out).To(MatchRegexp(`Turns:\S*\s+\S*2`))

			_, err := os.Stat(filepath.Join(dir, "session.json"))
			Expect(os.IsNotExist(err)).To(BeTrue())
		})

		It("records attachments with the turn", func() {
			file := filepath.Join(dir, "trace.log")
			Expect(os.WriteFile(file, []byte("panic: nil map"), 0o600)).To(Succeed())

			mustRun("session", "start", "s2")
			mustRun("session", "record", "see the attached trace", "--attach", file)

			out := mustRun("stats", "--json")
			Expect(out).To(ContainSubstring(`"attachments": 1`))
		})

		It("refuses to start a second session", func() {
			mustRun("session", "start", "s1")
			_, err := run("session", "start", "s2")
			Expect(err).To(MatchError(ContainSubstring("end it before starting")))
		})

		It("requires an active session to record", func() {
			_, err := run("session", "record", "hello there")
			Expect(err).To(MatchError(ContainSubstring("no active session")))
		})

		It("reports no active session in status", func() {
			Expect(mustRun("session", "status")).To(ContainSubstring("No active session."))
		})
	})

	Describe("consolidate and digest", func() {
		It("consolidates once and writes the digest", func() {
			mustRun("remember", "Never push to main", "--type", "rule", "--priority", "permanent")

			out := mustRun("consolidate")
			Expect(out).To(ContainSubstring("Duplicates removed"))

			digest := mustRun("digest", "--raw")
			Expect(digest).To(ContainSubstring("Never push to main"))
		})

		It("explains a missing digest", func() {
			Expect(mustRun("digest")).To(ContainSubstring("No digest yet"))
		})

		It("rejects an invalid schedule", func() {
			_, err := run("consolidate", "--daemon", "--schedule", "every tuesday")
			Expect(err).To(MatchError(ContainSubstring("invalid schedule")))
		})
	})

	Describe("stats", func() {
		It("prints counts", func() {
			mustRun("remember", "The CI runs on GitHub Actions")
			out := mustRun("stats")
			Expect(out).To(ContainSubstring("Search backend"))
			Expect(out).To(ContainSubstring("fts5"))
		})
	})

	Describe("export", func() {
		BeforeEach(func() {
			mustRun("remember", "Staging runs postgres 16", "--importance", "0.9")
			mustRun("remember", "Prefers tabs", "--type", "preference")
		})

		It("exports JSON", func() {
			doc := &exportcmder.Document{}
			Expect(json.Unmarshal([]byte(mustRun("export")), doc)).To(Succeed())
			Expect(doc.Count).To(Equal(2))
			Expect(doc.Memories[0].Content).To(Equal("Staging runs postgres 16"))
		})

		It("exports YAML to a file", func() {
			path := filepath.Join(dir, "memories.yaml")
			mustRun("export", "--format", "yaml", "--output", path)

			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			doc := &exportcmder.Document{}
			Expect(yaml.Unmarshal(data, doc)).To(Succeed())
			Expect(doc.Memories).To(HaveLen(2))
			Expect(doc.Memories[1].Type).To(Equal("preference"))
		})

		It("rejects unknown formats", func() {
			_, err := run("export", "--format", "xml")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("version", func() {
		It("prints build information", func() {
			out := mustRun("version")
			Expect(out).To(HavePrefix("mnemo dev"))
			Expect(out).To(ContainSubstring("commit:"))
		})

		It("prints only the version with --short", func() {
			Expect(mustRun("version", "--short")).To(Equal("dev\n"))
		})
	})
})
