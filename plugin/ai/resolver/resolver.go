// Package resolver resolves free text to a canonical gazetteer entity.
//
// Matching runs in strict priority order and the first stage that produces a
// candidate wins:
//
//  1. exact: the normalized input equals a variant
//  2. substring: a variant occurs in the input, or the input in a variant
//  3. fuzzy: best sequence-alignment score over the whole input and its words
//
// The confidence of the winner is bucketed into a Tier. When nothing clears
// the tentative floor, a small phonetic table is consulted as a fallback.
package resolver

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/agrisense/plugin/ai/gazetteer"
	"github.com/hrygo/agrisense/plugin/ai/locale"
	"github.com/hrygo/agrisense/plugin/ai/similarity"
)

// Method identifies the stage that produced a candidate.
type Method string

const (
	MethodExact     Method = "exact"
	MethodSubstring Method = "substring"
	MethodFuzzy     Method = "fuzzy"
	MethodPhonetic  Method = "phonetic"
)

// Tier is the coarse decision derived from a confidence.
type Tier string

const (
	TierConfirmed Tier = "confirmed"
	TierTentative Tier = "tentative"
	TierNotFound  Tier = "not_found"
)

// MatchCandidate is the best entity found for one input.
type MatchCandidate struct {
	CanonicalID    string  `json:"canonical_id"`
	MatchedVariant string  `json:"matched_variant"`
	Confidence     float64 `json:"confidence"`
	Method         Method  `json:"method"`
}

// Result is the outcome of one resolution. Candidate is nil when Tier is
// TierNotFound, in which case Suggestions holds the popular entities of the
// requested kind as display names.
type Result struct {
	Kind        gazetteer.Kind  `json:"kind"`
	Candidate   *MatchCandidate `json:"candidate,omitempty"`
	Tier        Tier            `json:"tier"`
	Suggestions []string        `json:"suggestions,omitempty"`
}

// ID returns the candidate id, or "" when there is none.
func (r Result) ID() string {
	if r.Candidate == nil {
		return ""
	}
	return r.Candidate.CanonicalID
}

// Confidence returns the candidate confidence, or 0 when there is none.
func (r Result) Confidence() float64 {
	if r.Candidate == nil {
		return 0
	}
	return r.Candidate.Confidence
}

// Config holds the matching thresholds.
type Config struct {
	// ConfirmedFloor is the lowest confidence that is acted on directly.
	ConfirmedFloor float64
	// TentativeFloor is the lowest confidence offered as a suggestion.
	// Fuzzy candidates below it are discarded.
	TentativeFloor float64
	// LongSubstringConfidence applies to containment fragments of at least
	// LongFragmentRunes characters, ShortSubstringConfidence to shorter ones.
	LongSubstringConfidence  float64
	ShortSubstringConfidence float64
	LongFragmentRunes        int
	// MinFragmentRunes is the shortest variant or input that may take part
	// in containment matching.
	MinFragmentRunes int
	// MinTokenRunes is the shortest word scored on its own in the fuzzy stage.
	MinTokenRunes int
	// PhoneticConfidence is assigned to phonetic table hits.
	PhoneticConfidence float64
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		ConfirmedFloor:           0.7,
		TentativeFloor:           0.4,
		LongSubstringConfidence:  0.95,
		ShortSubstringConfidence: 0.85,
		LongFragmentRunes:        4,
		MinFragmentRunes:         3,
		MinTokenRunes:            3,
		PhoneticConfidence:       0.9,
	}
}

// Validate checks that the thresholds are ordered and in range.
func (c Config) Validate() error {
	if c.TentativeFloor <= 0 || c.TentativeFloor > c.ConfirmedFloor || c.ConfirmedFloor > 1 {
		return errors.Errorf("thresholds must satisfy 0 < tentative (%v) <= confirmed (%v) <= 1", c.TentativeFloor, c.ConfirmedFloor)
	}
	if c.ShortSubstringConfidence < c.ConfirmedFloor || c.LongSubstringConfidence < c.ShortSubstringConfidence || c.LongSubstringConfidence > 1 {
		return errors.Errorf("substring confidences must satisfy confirmed <= short (%v) <= long (%v) <= 1", c.ShortSubstringConfidence, c.LongSubstringConfidence)
	}
	if c.PhoneticConfidence < c.ConfirmedFloor || c.PhoneticConfidence > 1 {
		return errors.Errorf("phonetic confidence %v must be within [confirmed, 1]", c.PhoneticConfidence)
	}
	if c.MinFragmentRunes < 1 || c.MinTokenRunes < 1 || c.LongFragmentRunes < c.MinFragmentRunes {
		return errors.New("rune limits must be positive and long fragments at least the minimum fragment")
	}
	return nil
}

// Resolver resolves text against a gazetteer. It is safe for concurrent use.
type Resolver struct {
	g   *gazetteer.Gazetteer
	cfg Config

	// Per kind, variants ordered longest first and shortest first. Both sorts
	// are stable so equal lengths keep gazetteer order.
	longest  map[gazetteer.Kind][]gazetteer.Variant
	shortest map[gazetteer.Kind][]gazetteer.Variant
}

// New creates a Resolver.
func New(g *gazetteer.Gazetteer, cfg Config) (*Resolver, error) {
	if g == nil {
		return nil, errors.New("gazetteer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid resolver config")
	}

	r := &Resolver{
		g:        g,
		cfg:      cfg,
		longest:  make(map[gazetteer.Kind][]gazetteer.Variant),
		shortest: make(map[gazetteer.Kind][]gazetteer.Variant),
	}
	for _, kind := range gazetteer.Kinds {
		long := append([]gazetteer.Variant(nil), g.Variants(kind)...)
		sort.SliceStable(long, func(i, j int) bool { return long[i].Runes > long[j].Runes })
		r.longest[kind] = long

		short := append([]gazetteer.Variant(nil), g.Variants(kind)...)
		sort.SliceStable(short, func(i, j int) bool { return short[i].Runes < short[j].Runes })
		r.shortest[kind] = short
	}
	return r, nil
}

// Config returns the thresholds in use.
func (r *Resolver) Config() Config {
	return r.cfg
}

// Gazetteer returns the gazetteer the resolver matches against.
func (r *Resolver) Gazetteer() *gazetteer.Gazetteer {
	return r.g
}

// Resolve finds the best entity of kind in input. Suggestions on a
// TierNotFound result are display names in lang.
func (r *Resolver) Resolve(kind gazetteer.Kind, input string, lang locale.Language) Result {
	return r.ResolveNormalized(kind, similarity.Normalize(input), lang)
}

// ResolveNormalized is Resolve for text that already went through
// similarity.Normalize.
func (r *Resolver) ResolveNormalized(kind gazetteer.Kind, text string, lang locale.Language) Result {
	if text == "" {
		return r.notFound(kind, lang)
	}

	candidate, ok := r.exact(kind, text)
	if !ok {
		candidate, ok = r.containment(kind, text)
	}
	if !ok {
		candidate, ok = r.fuzzy(kind, text)
	}

	if ok {
		if tier := r.Tier(candidate.Confidence); tier != TierNotFound {
			return Result{Kind: kind, Candidate: &candidate, Tier: tier}
		}
	}

	if candidate, ok := r.phonetic(kind, text); ok {
		return Result{Kind: kind, Candidate: &candidate, Tier: TierConfirmed}
	}
	return r.notFound(kind, lang)
}

// Tier buckets a confidence.
func (r *Resolver) Tier(confidence float64) Tier {
	switch {
	case confidence >= r.cfg.ConfirmedFloor:
		return TierConfirmed
	case confidence >= r.cfg.TentativeFloor:
		return TierTentative
	default:
		return TierNotFound
	}
}

func (r *Resolver) notFound(kind gazetteer.Kind, lang locale.Language) Result {
	return Result{
		Kind:        kind,
		Tier:        TierNotFound,
		Suggestions: r.g.Popular(kind, lang),
	}
}

func (r *Resolver) exact(kind gazetteer.Kind, text string) (MatchCandidate, bool) {
	id, ok := r.g.Lookup(kind, text)
	if !ok {
		return MatchCandidate{}, false
	}
	return MatchCandidate{
		CanonicalID:    id,
		MatchedVariant: text,
		Confidence:     1.0,
		Method:         MethodExact,
	}, true
}

// containment first looks for the longest variant inside the text. Failing
// that, it looks for the shortest variant that contains the whole text, and
// gives up when the text sits inside variants of more than one entity.
func (r *Resolver) containment(kind gazetteer.Kind, text string) (MatchCandidate, bool) {
	for _, v := range r.longest[kind] {
		if v.Runes < r.cfg.MinFragmentRunes {
			break
		}
		if strings.Contains(text, v.Text) {
			return r.substringCandidate(v, v.Runes), true
		}
	}

	textRunes := similarity.RuneLen(text)
	if textRunes < r.cfg.MinFragmentRunes {
		return MatchCandidate{}, false
	}
	var (
		found bool
		best  gazetteer.Variant
	)
	for _, v := range r.shortest[kind] {
		if v.Runes <= textRunes || !strings.Contains(v.Text, text) {
			continue
		}
		if !found {
			best, found = v, true
			continue
		}
		if v.ID != best.ID {
			return MatchCandidate{}, false
		}
	}
	if !found {
		return MatchCandidate{}, false
	}
	return r.substringCandidate(best, textRunes), true
}

func (r *Resolver) substringCandidate(v gazetteer.Variant, fragmentRunes int) MatchCandidate {
	confidence := r.cfg.ShortSubstringConfidence
	if fragmentRunes >= r.cfg.LongFragmentRunes {
		confidence = r.cfg.LongSubstringConfidence
	}
	return MatchCandidate{
		CanonicalID:    v.ID,
		MatchedVariant: v.Text,
		Confidence:     confidence,
		Method:         MethodSubstring,
	}
}

// fuzzy scores every variant against the whole text and against each word
// long enough to carry meaning, keeping the better of the two per variant.
func (r *Resolver) fuzzy(kind gazetteer.Kind, text string) (MatchCandidate, bool) {
	var tokens []string
	words := strings.Fields(text)
	if len(words) > 1 {
		for _, w := range words {
			if similarity.RuneLen(w) >= r.cfg.MinTokenRunes {
				tokens = append(tokens, w)
			}
		}
	}

	var candidates []MatchCandidate
	for _, v := range r.g.Variants(kind) {
		score := similarity.ScoreNormalized(text, v.Text)
		for _, tok := range tokens {
			if s := similarity.ScoreNormalized(tok, v.Text); s > score {
				score = s
			}
		}
		if score >= r.cfg.TentativeFloor {
			candidates = append(candidates, MatchCandidate{
				CanonicalID:    v.ID,
				MatchedVariant: v.Text,
				Confidence:     score,
				Method:         MethodFuzzy,
			})
		}
	}
	if len(candidates) == 0 {
		return MatchCandidate{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	return candidates[0], true
}

func (r *Resolver) phonetic(kind gazetteer.Kind, text string) (MatchCandidate, bool) {
	for _, p := range r.g.Phonetic(kind) {
		if strings.Contains(text, p.Key) {
			return MatchCandidate{
				CanonicalID:    p.ID,
				MatchedVariant: p.Key,
				Confidence:     r.cfg.PhoneticConfidence,
				Method:         MethodPhonetic,
			}, true
		}
	}
	return MatchCandidate{}, false
}
