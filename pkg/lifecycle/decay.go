package lifecycle

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

const (
	// Memories whose decayed importance drops below deleteBelow, and that
	// were read fewer than keepAccessCount times, are deleted.
	deleteBelow     = 0.1
	keepAccessCount = 3

	// Memories whose decayed importance drops below demoteBelow become
	// transient.
	demoteBelow = 0.3

	decayScanLimit = 500

	// DefaultAttachmentMaxAge is the age after which empty attachments are
	// pruned.
	DefaultAttachmentMaxAge = 90 * 24 * time.Hour
)

// Priorities subject to decay, weakest first. Permanent is never decayed.
var decayPriorities = []memory.Priority{
	memory.PriorityTransient,
	memory.PriorityShortTerm,
	memory.PriorityLongTerm,
}

// ComputeDecay applies importance * (1 - decay_rate)^days since the last
// access or update to every non-permanent memory. Memories that fall below
// 0.1 with fewer than three reads are deleted; those below 0.3 are demoted
// to transient with the decayed importance. Expired memories are then
// cleaned up. Returns how many memories were affected.
func (m *Manager) ComputeDecay(ctx context.Context) (int, error) {
	now := m.now()
	affected := 0

	for _, p := range decayPriorities {
		mems, err := m.store.ListMemories(ctx, storage.MemoryFilter{Priority: p, Limit: decayScanLimit})
		if err != nil {
			return affected, fmt.Errorf("list %s memories: %w", p, err)
		}

		for _, mem := range mems {
			if mem.Priority == memory.PriorityPermanent {
				continue
			}
			ref := mem.LastAccessedAt
			if ref.IsZero() {
				ref = mem.UpdatedAt
			}
			if ref.IsZero() {
				continue
			}

			effective := Decayed(mem.ImportanceScore, mem.DecayRate, now.Sub(ref))
			switch {
			case effective < deleteBelow && mem.AccessCount < keepAccessCount:
				ok, err := m.store.DeleteMemory(ctx, mem.ID)
				if err != nil {
					return affected, fmt.Errorf("delete decayed %s: %w", mem.ID, err)
				}
				if ok {
					affected++
				}

			case effective < demoteBelow && mem.Priority != memory.PriorityTransient:
				transient := memory.PriorityTransient
				if _, err := m.store.UpdateMemory(ctx, mem.ID, storage.MemoryUpdate{
					Priority:        &transient,
					ImportanceScore: &effective,
				}); err != nil {
					return affected, fmt.Errorf("demote %s: %w", mem.ID, err)
				}
				affected++
			}
		}
	}

	expired, err := m.store.CleanupExpired(ctx)
	if err != nil {
		return affected, fmt.Errorf("cleanup expired: %w", err)
	}
	affected += expired

	if affected > 0 {
		m.logger.Info("decayed memories", "affected", affected, "expired", expired)
	}
	return affected, nil
}

// Decayed returns importance after age at the given daily decay rate.
func Decayed(importance, rate float64, age time.Duration) float64 {
	days := max(0, age.Hours()/24)
	return importance * math.Pow(1-min(max(rate, 0), 1), days)
}

// CleanupStaleAttachments deletes attachments older than maxAge that have no
// description, transcription, extracted text or linked memories. A zero
// maxAge uses DefaultAttachmentMaxAge.
func (m *Manager) CleanupStaleAttachments(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultAttachmentMaxAge
	}
	cutoff := m.now().Add(-maxAge)

	all, err := m.store.ListAttachments(ctx)
	if err != nil {
		return 0, fmt.Errorf("list attachments: %w", err)
	}

	removed := 0
	for _, a := range all {
		if a.HasContent() || !a.CreatedAt.Before(cutoff) {
			continue
		}
		ok, err := m.store.DeleteAttachment(ctx, a.ID)
		if err != nil {
			return removed, fmt.Errorf("delete attachment %s: %w", a.ID, err)
		}
		if ok {
			removed++
		}
	}

	if removed > 0 {
		m.logger.Info("cleaned stale attachments", "removed", removed, "max_age", maxAge)
	}
	return removed, nil
}
