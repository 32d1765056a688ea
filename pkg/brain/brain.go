// Package brain is the narrow LLM capability the memory engine consumes:
// one prompt and one system prompt in, one text reply out.
//
// Callers treat every failure as "no answer" and take a deterministic path,
// so implementations only need to report errors, never recover from them.
package brain

import (
	"context"
	"strings"
	"time"
)

// DefaultTimeout bounds a single Think call made through Ask.
const DefaultTimeout = 30 * time.Second

// NoneReply is the sentinel reply prompts ask the model to give when there
// is nothing to report.
const NoneReply = "NONE"

// Thinker produces a text completion for a prompt.
type Thinker interface {
	Think(ctx context.Context, prompt, system string) (string, error)
}

// ThinkerFunc adapts a function to the Thinker interface.
type ThinkerFunc func(ctx context.Context, prompt, system string) (string, error)

func (f ThinkerFunc) Think(ctx context.Context, prompt, system string) (string, error) {
	return f(ctx, prompt, system)
}

// Ask calls t with a timeout and normalizes the reply. A nil thinker returns
// ErrNotConfigured; a blank or "NONE" reply returns ErrNoResult. A timeout
// of zero uses DefaultTimeout.
func Ask(ctx context.Context, t Thinker, timeout time.Duration, prompt, system string) (string, error) {
	if t == nil {
		return "", ErrNotConfigured
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := t.Think(ctx, prompt, system)
	if err != nil {
		return "", err
	}

	reply = strings.TrimSpace(reply)
	if reply == "" || strings.EqualFold(strings.Trim(reply, ".`\"' "), NoneReply) {
		return "", ErrNoResult
	}
	return reply, nil
}
