package router

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/agrisense/plugin/ai/gazetteer"
	"github.com/hrygo/agrisense/plugin/ai/lexicon"
	"github.com/hrygo/agrisense/plugin/ai/locale"
	"github.com/hrygo/agrisense/plugin/ai/resolver"
	"github.com/hrygo/agrisense/plugin/ai/similarity"
)

// Service implements RouterService.
// Layer 1: keyword intent classification with the topic gate
// Layer 2: gazetteer entity resolution on the utterance minus intent words
// Layer 3: action selection from the resolution tiers
type Service struct {
	ruleMatcher *RuleMatcher
	lexicon     *lexicon.Set
	resolver    *resolver.Resolver
	gazetteer   *gazetteer.Gazetteer
}

// Config contains the configuration for the router service.
type Config struct {
	Lexicon  *lexicon.Set
	Resolver *resolver.Resolver
	// ChatOnlyGate applies the restricted-topic veto to chat only instead of
	// to every utterance.
	ChatOnlyGate bool
}

// NewService creates a new router service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Lexicon == nil {
		return nil, errors.New("lexicon is required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("resolver is required")
	}
	return &Service{
		ruleMatcher: NewRuleMatcher(cfg.Lexicon, cfg.ChatOnlyGate),
		lexicon:     cfg.Lexicon,
		resolver:    cfg.Resolver,
		gazetteer:   cfg.Resolver.Gazetteer(),
	}, nil
}

// NewDefaultService builds a router over the embedded lexicon and gazetteer.
func NewDefaultService() (*Service, error) {
	lex, err := lexicon.Default()
	if err != nil {
		return nil, err
	}
	g, err := gazetteer.Default()
	if err != nil {
		return nil, err
	}
	res, err := resolver.New(g, resolver.DefaultConfig())
	if err != nil {
		return nil, err
	}
	return NewService(Config{Lexicon: lex, Resolver: res})
}

// Lexicon returns the keyword and message tables.
func (s *Service) Lexicon() *lexicon.Set {
	return s.lexicon
}

// Gazetteer returns the entity tables.
func (s *Service) Gazetteer() *gazetteer.Gazetteer {
	return s.gazetteer
}

// ClassifyIntent labels one utterance.
func (s *Service) ClassifyIntent(ctx context.Context, input string) Classification {
	return s.ruleMatcher.Match(similarity.Normalize(input))
}

// Route classifies the request and resolves the entities it names.
// Requests with an attached image skip classification entirely.
func (s *Service) Route(ctx context.Context, req Request) *Decision {
	start := time.Now()
	lang := req.Language.Or(locale.Default)

	if req.HasImage {
		return &Decision{Intent: IntentDisease, Action: ActionDetectDisease, Language: lang}
	}

	text := similarity.Normalize(req.Text)
	c := s.ruleMatcher.Match(text)
	d := &Decision{Intent: c.Intent, Keyword: c.Keyword, Language: lang}

	switch c.Intent {
	case IntentWeather:
		d.Query = s.entityQuery(text)
		district := s.resolver.ResolveNormalized(gazetteer.District, d.Query, lang)
		d.District = &district
		d.Action = actionForTier(district.Tier)

	case IntentCommodity:
		d.Query = s.entityQuery(text)
		district := s.resolver.ResolveNormalized(gazetteer.District, d.Query, lang)
		commodity := s.resolver.ResolveNormalized(gazetteer.Commodity, d.Query, lang)
		d.District, d.Commodity = &district, &commodity
		d.Action = commodityAction(district.Tier, commodity.Tier)

	case IntentChat:
		d.Action = ActionDelegateToChat

	default:
		d.Action = ActionReject
	}

	slog.Debug("query routed",
		"input", truncate(req.Text, 50),
		"language", lang,
		"intent", d.Intent,
		"keyword", d.Keyword,
		"action", d.Action,
		"district", d.DistrictID(),
		"commodity", d.CommodityID(),
		"latency_ms", time.Since(start).Milliseconds())
	return d
}

// entityQuery drops whole words that only express intent ("weather",
// "prices") so they cannot be fuzzily matched to an entity.
func (s *Service) entityQuery(text string) string {
	fields := strings.Fields(text)
	kept := fields[:0]
	for _, f := range fields {
		if s.intentOnly(f) {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// intentOnly reports whether word is an intent word naming no entity. Crop
// keywords are gazetteer variants, so "tomato" and "tomatoes" are kept.
func (s *Service) intentOnly(word string) bool {
	if s.gazetteer.IsVariant(word) {
		return false
	}
	for _, kw := range s.lexicon.IntentKeywords(word) {
		if !s.gazetteer.IsVariant(kw) {
			return true
		}
	}
	return false
}

func actionForTier(t resolver.Tier) Action {
	switch t {
	case resolver.TierConfirmed:
		return ActionAnswer
	case resolver.TierTentative:
		return ActionClarify
	default:
		return ActionReject
	}
}

// commodityAction answers as soon as either entity is confirmed; a price
// listing can be filtered by district, by commodity, or by both.
func commodityAction(district, commodity resolver.Tier) Action {
	switch {
	case district == resolver.TierConfirmed || commodity == resolver.TierConfirmed:
		return ActionAnswer
	case district == resolver.TierTentative || commodity == resolver.TierTentative:
		return ActionClarify
	default:
		return ActionReject
	}
}

// truncate shortens s to at most maxLen characters.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

// Ensure Service implements RouterService
var _ RouterService = (*Service)(nil)
