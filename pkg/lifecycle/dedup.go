package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// DedupThreshold is the word-overlap ratio, |A∩B| / min(|A|,|B|), at which
// two memories of the same type are duplicates.
const DedupThreshold = 0.7

// DeduplicateBatch clusters live memories of each type by content and keeps
// one per cluster: the most important, then most accessed, then longest,
// then most recently updated. The rest are deleted. Clustering repeats over
// the survivors until no duplicates remain, so a second run removes nothing.
func (m *Manager) DeduplicateBatch(ctx context.Context) (int, error) {
	all, err := m.store.LoadAllMemories(ctx)
	if err != nil {
		return 0, fmt.Errorf("load memories: %w", err)
	}
	if len(all) < 2 {
		return 0, nil
	}

	byType := make(map[memory.MemoryType][]*memory.SemanticMemory)
	for _, mem := range all {
		if mem.SupersededBy != "" {
			continue
		}
		byType[mem.Type] = append(byType[mem.Type], mem)
	}

	deleted := 0
	for _, t := range memory.AllTypes {
		n, err := m.dedupGroup(ctx, byType[t])
		deleted += n
		if err != nil {
			return deleted, err
		}
	}

	if deleted > 0 {
		m.logger.Info("deduplicated memories", "removed", deleted)
	}
	return deleted, nil
}

// dedupGroup deduplicates memories of one type. A kept memory that was not
// its cluster's seed can still overlap memories the seed missed, so each
// pass re-clusters what survived the previous one.
func (m *Manager) dedupGroup(ctx context.Context, group []*memory.SemanticMemory) (int, error) {
	deleted := 0
	for {
		clusters := Cluster(group, DedupThreshold)
		if len(clusters) == 0 {
			return deleted, nil
		}

		gone := make(map[int]bool)
		for _, cluster := range clusters {
			keep, remove := pickBest(group, cluster)
			for _, i := range remove {
				gone[i] = true
				ok, err := m.store.DeleteMemory(ctx, group[i].ID)
				if err != nil {
					return deleted, fmt.Errorf("delete duplicate %s: %w", group[i].ID, err)
				}
				if ok {
					deleted++
					m.logger.Debug("removed duplicate memory", "id", group[i].ID, "kept", group[keep].ID)
				}
			}
		}

		survivors := group[:0:0]
		for i, mem := range group {
			if !gone[i] {
				survivors = append(survivors, mem)
			}
		}
		group = survivors
	}
}

// Cluster groups near-duplicate memories. Each cluster is a list of indexes
// into mems with at least two members; every memory is in at most one
// cluster. The first unassigned memory seeds each cluster.
func Cluster(mems []*memory.SemanticMemory, threshold float64) [][]int {
	if len(mems) < 2 {
		return nil
	}

	norms := make([]string, len(mems))
	words := make([]map[string]struct{}, len(mems))
	for i, mem := range mems {
		norms[i] = normalize(mem.Content)
		words[i] = wordSet(norms[i])
	}

	assigned := make([]bool, len(mems))
	var clusters [][]int
	for i := range mems {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		cluster := []int{i}
		for j := i + 1; j < len(mems); j++ {
			if assigned[j] {
				continue
			}
			if norms[i] == norms[j] || Overlap(words[i], words[j]) >= threshold {
				assigned[j] = true
				cluster = append(cluster, j)
			}
		}
		if len(cluster) > 1 {
			clusters = append(clusters, cluster)
		}
	}
	return clusters
}

// Overlap is |a∩b| / min(|a|,|b|); 0 when either set is empty.
func Overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	shared := 0
	for w := range small {
		if _, ok := large[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}

// pickBest returns the index to keep and the indexes to delete.
func pickBest(mems []*memory.SemanticMemory, cluster []int) (int, []int) {
	ranked := append([]int(nil), cluster...)
	sort.SliceStable(ranked, func(x, y int) bool {
		a, b := mems[ranked[x]], mems[ranked[y]]
		if a.ImportanceScore != b.ImportanceScore {
			return a.ImportanceScore > b.ImportanceScore
		}
		if a.AccessCount != b.AccessCount {
			return a.AccessCount > b.AccessCount
		}
		if la, lb := utf8.RuneCountInString(a.Content), utf8.RuneCountInString(b.Content); la != lb {
			return la > lb
		}
		return a.UpdatedAt.After(b.UpdatedAt)
	})
	return ranked[0], ranked[1:]
}
