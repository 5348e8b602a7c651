// Package translate localizes assistant output from English into the
// requested language.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hrygo/agrisense/plugin/ai/llm"
	"github.com/hrygo/agrisense/plugin/ai/locale"
	"github.com/hrygo/agrisense/plugin/ai/timeout"
)

// ErrIncomplete is returned when no attempt produced a usable translation.
// The source text is returned alongside it.
var ErrIncomplete = errors.New("translation incomplete")

// Translator translates English text into target.
// On failure implementations return the source text together with the error.
type Translator interface {
	Translate(ctx context.Context, text string, target locale.Language) (string, error)
}

// Noop returns text unchanged.
type Noop struct{}

// Translate returns text.
func (Noop) Translate(_ context.Context, text string, _ locale.Language) (string, error) {
	return text, nil
}

const prompt = "Translate the user's text from English to %s. Keep numbers, units, currency symbols and line breaks as they are. Reply with the translation only."

// LLMTranslator translates with a chat model.
type LLMTranslator struct {
	client llm.ChatClient
	// ChunkRunes is the length above which text is translated line by line.
	ChunkRunes int
	// Attempts per translated unit.
	Attempts int
	// MinRatio is the shortest acceptable translation relative to its source.
	MinRatio float64
}

// NewLLMTranslator creates a translator with the default limits.
func NewLLMTranslator(client llm.ChatClient) *LLMTranslator {
	return &LLMTranslator{
		client:     client,
		ChunkRunes: 500,
		Attempts:   timeout.MaxRetries,
		MinRatio:   0.3,
	}
}

// Translate translates text into target. English targets, unsupported
// targets and blank text are returned as is.
func (t *LLMTranslator) Translate(ctx context.Context, text string, target locale.Language) (string, error) {
	if target == locale.English || !target.Valid() {
		return text, nil
	}
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return text, nil
	}

	if len([]rune(cleaned)) <= t.ChunkRunes {
		out, err := t.translateUnit(ctx, cleaned, target)
		if err != nil {
			slog.Warn("translation failed, keeping source text",
				"target", target,
				"error", err)
			return text, err
		}
		return out, nil
	}

	lines := strings.Split(cleaned, "\n")
	failed := 0
	for i, line := range lines {
		src := strings.TrimSpace(line)
		if src == "" {
			continue
		}
		out, err := t.translateUnit(ctx, src, target)
		if err != nil {
			if ctx.Err() != nil {
				return text, ctx.Err()
			}
			failed++
			continue
		}
		lines[i] = out
	}
	if failed > 0 {
		slog.Warn("some lines were not translated",
			"target", target,
			"failed_lines", failed,
			"total_lines", len(lines))
	}
	return strings.Join(lines, "\n"), nil
}

func (t *LLMTranslator) translateUnit(ctx context.Context, src string, target locale.Language) (string, error) {
	minRunes := int(float64(len([]rune(src))) * t.MinRatio)
	var lastErr error
	for attempt := 0; attempt < t.Attempts; attempt++ {
		out, err := t.client.Chat(ctx, []llm.Message{
			{Role: llm.RoleSystem, Content: fmt.Sprintf(prompt, target.Name())},
			{Role: llm.RoleUser, Content: src},
		}, llm.Options{Temperature: 0.1})
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		out = strings.TrimSpace(out)
		if out != "" && len([]rune(out)) >= minRunes {
			return out, nil
		}
		lastErr = ErrIncomplete
	}
	if errors.Is(lastErr, ErrIncomplete) {
		return "", lastErr
	}
	return "", fmt.Errorf("%w: %v", ErrIncomplete, lastErr)
}

var (
	_ Translator = Noop{}
	_ Translator = (*LLMTranslator)(nil)
)
