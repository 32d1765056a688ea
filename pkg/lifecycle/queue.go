package lifecycle

import (
	"context"
	"fmt"

	"github.com/papercomputeco/mnemo/pkg/extractor"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

// DefaultQueueBatch is how many queue items one dequeue claims.
const DefaultQueueBatch = 20

const consolidationSource = "daily_consolidation"

// ProcessUnextracted drains the extraction queue through the extractor and
// saves what it finds. An item is completed as successful when it yielded
// at least one memory, failed otherwise; either way it is never seen again.
// Without an extractor thinker the queue is left untouched.
func (m *Manager) ProcessUnextracted(ctx context.Context, batchSize int) (int, error) {
	if m.extractor == nil || !m.extractor.HasThinker() {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = DefaultQueueBatch
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		items, err := m.store.DequeueExtraction(ctx, batchSize)
		if err != nil {
			return total, fmt.Errorf("dequeue extraction: %w", err)
		}
		if len(items) == 0 {
			break
		}

		for _, item := range items {
			extracted := m.extractor.ExtractFromTurn(ctx, item.Turn(), "")
			saved := 0
			for _, it := range extracted {
				if _, err := m.save(ctx, it, ""); err != nil {
					m.logger.Warn("failed to save extracted memory", "queue_id", item.ID, "error", err)
					continue
				}
				saved++
			}
			total += saved

			if err := m.store.CompleteExtraction(ctx, item.ID, saved > 0); err != nil {
				return total, fmt.Errorf("complete extraction %d: %w", item.ID, err)
			}
		}
	}

	if total > 0 {
		m.logger.Info("processed extraction queue", "memories", total)
	}
	return total, nil
}

// saveItem is the default SaveFunc. Updates evolve the live memory with the
// same subject and predicate; everything else is saved as new.
func (m *Manager) saveItem(ctx context.Context, it extractor.Item, episodeID string) (string, error) {
	if it.IsUpdate {
		existing, err := m.store.FindSimilar(ctx, it.Subject, it.Predicate)
		if err != nil {
			return "", err
		}
		if existing != nil {
			content := it.Content
			importance := max(existing.ImportanceScore, it.Importance)
			confidence := min(1, existing.Confidence+0.1)
			if _, err := m.store.UpdateMemory(ctx, existing.ID, storage.MemoryUpdate{
				Content:         &content,
				ImportanceScore: &importance,
				Confidence:      &confidence,
			}); err != nil {
				return "", err
			}
			return existing.ID, nil
		}
	}

	mem := it.ToMemory(consolidationSource, episodeID, m.now())
	if err := m.store.SaveMemory(ctx, mem); err != nil {
		return "", err
	}
	return mem.ID, nil
}
