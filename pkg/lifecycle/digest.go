package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

// DigestFile is the digest's file name inside the identity directory.
const DigestFile = "MEMORY.md"

const (
	digestMinImportance = 0.5
	digestScanLimit     = 100
	digestPerType       = 4
	digestMaxChars      = 1200
)

// digestSections orders the digest. Types without a section are omitted.
var digestSections = []struct {
	Type  memory.MemoryType
	Label string
}{
	{memory.TypePreference, "Preferences"},
	{memory.TypeRule, "Rules"},
	{memory.TypeFact, "Facts"},
	{memory.TypeError, "Lessons"},
	{memory.TypeSkill, "Skills"},
	{memory.TypePersonaTrait, "Persona"},
}

// RenderDigest builds the digest body from mems: up to four of the most
// important memories per type, stopping a section at the first line that
// would push the bullets past 1200 characters. Returns "" when no section
// has content.
func RenderDigest(mems []*memory.SemanticMemory) string {
	byType := make(map[memory.MemoryType][]*memory.SemanticMemory)
	for _, mem := range mems {
		byType[mem.Type] = append(byType[mem.Type], mem)
	}

	lines := []string{"# Core Memory"}
	total := 0
	wrote := false
	for _, sec := range digestSections {
		group := byType[sec.Type]
		if len(group) == 0 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool { return group[i].ImportanceScore > group[j].ImportanceScore })

		var bullets []string
		for _, mem := range group[:min(len(group), digestPerType)] {
			line := "- " + mem.Content
			n := utf8.RuneCountInString(line)
			if total+n > digestMaxChars {
				break
			}
			bullets = append(bullets, line)
			total += n
		}
		if len(bullets) > 0 {
			lines = append(lines, "", "## "+sec.Label)
			lines = append(lines, bullets...)
			wrote = true
		}
	}
	if !wrote {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// RefreshMemoryMD regenerates dir/MEMORY.md from memories with importance of
// at least 0.5. When nothing qualifies the file is left as it is, present or
// not, and false is returned. The previous digest is kept as MEMORY.md.bak
// and the new one replaces it atomically.
func (m *Manager) RefreshMemoryMD(ctx context.Context, dir string) (bool, error) {
	mems, err := m.store.ListMemories(ctx, storage.MemoryFilter{
		MinImportance: digestMinImportance,
		Limit:         digestScanLimit,
	})
	if err != nil {
		return false, fmt.Errorf("list memories: %w", err)
	}

	body := RenderDigest(mems)
	if body == "" {
		m.logger.Debug("no memories for digest, leaving it untouched")
		return false, nil
	}

	path := filepath.Join(dir, DigestFile)
	if err := writeWithBackup(path, body); err != nil {
		return false, err
	}
	m.logger.Info("refreshed digest", "path", path, "memories", len(mems))
	return true, nil
}

// writeWithBackup copies any existing file to path.bak, then replaces path
// through a temp file and rename.
func writeWithBackup(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create digest directory: %w", err)
	}

	if err := copyFile(path, path+".bak"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("backing up digest: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "memory-*.md")
	if err != nil {
		return fmt.Errorf("creating temp digest: %w", err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpFile.Name())
		return fmt.Errorf("writing temp digest: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpFile.Name())
		return fmt.Errorf("closing temp digest: %w", err)
	}
	if err := os.Chmod(tmpFile.Name(), 0o644); err != nil {
		_ = os.Remove(tmpFile.Name())
		return fmt.Errorf("chmod temp digest: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), path); err != nil {
		_ = os.Remove(tmpFile.Name())
		return fmt.Errorf("persisting digest: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
