// Package extractor turns conversation turns into memory candidates, episode
// summaries and scratchpad updates.
//
// Every entry point works without a thinker. When the thinker is missing,
// times out, answers "NONE" or returns something unparseable, the extractor
// returns nothing or takes a deterministic fallback; it never fails the
// caller.
package extractor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/papercomputeco/mnemo/pkg/brain"
	"github.com/papercomputeco/mnemo/pkg/logger"
)

// DefaultMinTurnLength is the shortest turn content, in runes, worth sending
// to the thinker when the turn carries no tool calls.
const DefaultMinTurnLength = 10

// Config configures an Extractor.
type Config struct {
	// Thinker is optional. Without it only the deterministic paths run.
	Thinker brain.Thinker

	// MinTurnLength defaults to DefaultMinTurnLength.
	MinTurnLength int

	// Timeout bounds each thinker call. Defaults to brain.DefaultTimeout.
	Timeout time.Duration

	Logger *slog.Logger
}

// Extractor produces memory candidates from conversations.
type Extractor struct {
	thinker       brain.Thinker
	minTurnLength int
	timeout       time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// New creates an Extractor.
func New(c Config) *Extractor {
	l := c.Logger
	if l == nil {
		l = logger.Nop()
	}
	minLen := c.MinTurnLength
	if minLen <= 0 {
		minLen = DefaultMinTurnLength
	}
	return &Extractor{
		thinker:       c.Thinker,
		minTurnLength: minLen,
		timeout:       c.Timeout,
		logger:        l,
		now:           time.Now,
	}
}

// HasThinker reports whether LLM-assisted paths are available.
func (e *Extractor) HasThinker() bool {
	return e.thinker != nil
}

// Thinker returns the configured thinker, which may be nil.
func (e *Extractor) Thinker() brain.Thinker {
	return e.thinker
}

// ask calls the thinker. ok is false for every "no answer" outcome; real
// failures are logged, "NONE" replies are not.
func (e *Extractor) ask(ctx context.Context, op, prompt, system string) (string, bool) {
	reply, err := brain.Ask(ctx, e.thinker, e.timeout, prompt, system)
	switch {
	case err == nil:
		return reply, true
	case errors.Is(err, brain.ErrNoResult), errors.Is(err, brain.ErrNotConfigured):
		return "", false
	default:
		e.logger.Warn("thinker call failed", "op", op, "error", err)
		return "", false
	}
}
