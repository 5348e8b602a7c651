// Package chat answers agricultural questions with an LLM, scoped to
// Gujarat weather, mandi prices and vegetable diseases.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hrygo/agrisense/plugin/ai/lexicon"
	"github.com/hrygo/agrisense/plugin/ai/llm"
	"github.com/hrygo/agrisense/plugin/ai/locale"
	"github.com/hrygo/agrisense/plugin/ai/similarity"
)

// ErrNotConfigured is returned when no LLM client is available.
var ErrNotConfigured = errors.New("chat backend is not configured")

const systemPrompt = `You are a specialized assistant for Gujarat, India farmers. You ONLY help with:
1. Weather forecasts for Gujarat districts
2. Mandi commodity prices in Gujarat
3. Vegetable disease identification

STRICT RULES:
- Answer ONLY in %s language (%s)
- Do NOT answer questions about: jokes, stories, general knowledge, technology, politics, entertainment, or any non-agricultural topics
- If asked about unrelated topics, respond: "%s"
- Keep responses under 100 words
- Focus only on Gujarat agriculture, weather, and mandi prices
- When discussing commodity prices, acknowledge that data may be from recent years due to API limitations`

const vegetableHint = "User is asking about vegetables in Gujarati. Provide helpful agricultural information."

// Config configures the chat service.
type Config struct {
	Client  llm.ChatClient
	Lexicon *lexicon.Set
	Options llm.Options
	// VegetableTerms are Gujarati words that mark a vegetable question.
	VegetableTerms []string
}

// Reply is one chat answer.
type Reply struct {
	Text string `json:"response"`
	// Gated is set when the question was refused without calling the model.
	Gated bool `json:"gated,omitempty"`
}

// Service answers questions.
type Service struct {
	client     llm.ChatClient
	lexicon    *lexicon.Set
	options    llm.Options
	vegetables []string
}

// NewService creates a chat service. Client may be nil, in which case every
// allowed question fails with ErrNotConfigured.
func NewService(cfg Config) (*Service, error) {
	if cfg.Lexicon == nil {
		return nil, errors.New("lexicon is required")
	}
	if cfg.Options.MaxTokens <= 0 {
		cfg.Options.MaxTokens = 150
	}
	if cfg.Options.Temperature == 0 {
		cfg.Options.Temperature = 0.3
	}
	if cfg.VegetableTerms == nil {
		cfg.VegetableTerms = []string{"બટાટા", "ટમેટા", "કાંદો"}
	}

	vegetables := make([]string, 0, len(cfg.VegetableTerms))
	for _, v := range cfg.VegetableTerms {
		if n := similarity.Normalize(v); n != "" {
			vegetables = append(vegetables, n)
		}
	}
	return &Service{
		client:     cfg.Client,
		lexicon:    cfg.Lexicon,
		options:    cfg.Options,
		vegetables: vegetables,
	}, nil
}

// Available reports whether a model is configured.
func (s *Service) Available() bool {
	return s.client != nil
}

// Reply answers text in lang. Questions outside the allowed topics get the
// restricted-topic message and never reach the model.
func (s *Service) Reply(ctx context.Context, text string, lang locale.Language) (Reply, error) {
	lang = lang.Or(locale.Default)
	normalized := similarity.Normalize(text)
	if !s.allowed(normalized) {
		return Reply{Text: s.lexicon.Message(lexicon.MsgRestricted, lang), Gated: true}, nil
	}
	if s.client == nil {
		return Reply{}, ErrNotConfigured
	}

	prompt := fmt.Sprintf(systemPrompt,
		strings.ToUpper(string(lang)), lang.Name(), s.lexicon.Message(lexicon.MsgRestricted, lang))
	if lang == locale.Gujarati {
		prompt += "\n- For Gujarati queries about vegetables like બટાટા (potato), provide helpful agricultural information"
	}

	user := text
	if lang == locale.Gujarati && s.mentionsVegetable(normalized) {
		user = vegetableHint + "\n\nUser: " + text
	}

	out, err := s.client.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: prompt},
		{Role: llm.RoleUser, Content: user},
	}, s.options)
	if err != nil {
		return Reply{}, fmt.Errorf("chat completion: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return Reply{}, errors.New("chat completion: empty answer")
	}

	slog.Debug("chat answered",
		"language", lang,
		"answer_chars", len([]rune(out)))
	return Reply{Text: out}, nil
}

// allowed re-applies the topic gate: at least one allowed keyword and no
// restricted keyword.
func (s *Service) allowed(normalized string) bool {
	if s.lexicon.Contains(lexicon.Restricted, normalized) {
		return false
	}
	return s.lexicon.Contains(lexicon.Allowed, normalized)
}

func (s *Service) mentionsVegetable(normalized string) bool {
	for _, v := range s.vegetables {
		if strings.Contains(normalized, v) {
			return true
		}
	}
	return false
}
