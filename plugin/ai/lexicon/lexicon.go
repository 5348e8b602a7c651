// Package lexicon holds the keyword tables used to classify utterances and
// the per-language message templates returned to users.
//
// A Set is built once and never mutated, so it can be shared freely across
// goroutines.
package lexicon

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/hrygo/agrisense/plugin/ai/locale"
	"github.com/hrygo/agrisense/plugin/ai/similarity"
)

//go:embed lexicon.yaml
var defaultData []byte

// Category names a keyword table.
type Category string

const (
	Allowed    Category = "allowed"
	Restricted Category = "restricted"
	Weather    Category = "weather"
	Commodity  Category = "commodity"
)

// Categories lists every keyword table a Set must carry.
var Categories = []Category{Allowed, Restricted, Weather, Commodity}

// Message ids.
const (
	MsgRestricted         = "restricted"
	MsgDistrictNotFound   = "district_not_found"
	MsgCommodityNotFound  = "commodity_not_found"
	MsgDidYouMean         = "did_you_mean"
	MsgConfirmDistrict    = "confirm_district"
	MsgConfirmCommodity   = "confirm_commodity"
	MsgNoInput            = "no_input"
	MsgNoDisease          = "no_disease"
	MsgUnsupportedImage   = "unsupported_image"
	MsgDiseaseUnavailable = "disease_unavailable"
	MsgDiseaseDetected    = "disease_detected"
	MsgDiseasesDetected   = "diseases_detected"
	MsgDiseaseSuccess     = "disease_success"
	MsgWeatherUnavailable = "weather_unavailable"
	MsgNoPriceData        = "no_price_data"
	MsgPriceUnavailable   = "price_unavailable"
	MsgChatUnavailable    = "chat_unavailable"
	MsgChatFailed         = "chat_failed"
)

// Document is the on-disk form of a Set.
type Document struct {
	Keywords map[Category][]string       `yaml:"keywords"`
	Messages map[string]map[string]string `yaml:"messages"`
}

// Set is an immutable collection of keyword tables and message templates.
type Set struct {
	keywords map[Category][]string
	intent   map[string]struct{}
	messages map[string]map[locale.Language]string
}

// Default parses the embedded lexicon.
func Default() (*Set, error) {
	return Parse(defaultData)
}

// LoadFile parses a lexicon from a YAML file.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read lexicon file %s", path)
	}
	set, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid lexicon file %s", path)
	}
	return set, nil
}

// Parse builds a Set from YAML.
func Parse(data []byte) (*Set, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse lexicon")
	}
	return New(doc)
}

// New builds a Set from an in-memory document. Keywords are normalized the
// same way user text is, duplicates are dropped, and order is preserved.
func New(doc Document) (*Set, error) {
	s := &Set{
		keywords: make(map[Category][]string, len(Categories)),
		intent:   make(map[string]struct{}),
		messages: make(map[string]map[locale.Language]string, len(doc.Messages)),
	}

	for _, cat := range Categories {
		raw := doc.Keywords[cat]
		seen := make(map[string]struct{}, len(raw))
		var list []string
		for _, kw := range raw {
			n := similarity.Normalize(kw)
			if n == "" {
				continue
			}
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			list = append(list, n)
		}
		if len(list) == 0 {
			return nil, errors.Errorf("keyword category %q is empty", cat)
		}
		s.keywords[cat] = list
	}
	for cat := range doc.Keywords {
		if !knownCategory(cat) {
			return nil, errors.Errorf("unknown keyword category %q", cat)
		}
	}

	for _, kw := range s.keywords[Weather] {
		s.intent[kw] = struct{}{}
	}
	for _, kw := range s.keywords[Commodity] {
		s.intent[kw] = struct{}{}
	}

	for id, byLang := range doc.Messages {
		tmpl := make(map[locale.Language]string, len(byLang))
		for code, text := range byLang {
			lang := locale.Language(strings.ToLower(code))
			if !lang.Valid() {
				return nil, errors.Errorf("message %q has unsupported language %q", id, code)
			}
			tmpl[lang] = text
		}
		if tmpl[locale.Default] == "" {
			return nil, errors.Errorf("message %q has no %s text", id, locale.Default)
		}
		s.messages[id] = tmpl
	}

	return s, nil
}

func knownCategory(c Category) bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

// Match returns the first keyword of cat occurring in text as a substring.
// text must already be normalized.
func (s *Set) Match(cat Category, text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, kw := range s.keywords[cat] {
		if strings.Contains(text, kw) {
			return kw, true
		}
	}
	return "", false
}

// Contains reports whether any keyword of cat occurs in text.
// text must already be normalized.
func (s *Set) Contains(cat Category, text string) bool {
	_, ok := s.Match(cat, text)
	return ok
}

// Keywords returns a copy of the keywords of cat.
func (s *Set) Keywords(cat Category) []string {
	return append([]string(nil), s.keywords[cat]...)
}

// IntentKeywords returns the weather and commodity keywords token equals or
// starts with ("prices", "rainfall"), sorted. A token is an intent word when
// the result is not empty.
func (s *Set) IntentKeywords(token string) []string {
	var out []string
	for kw := range s.intent {
		if strings.HasPrefix(token, kw) {
			out = append(out, kw)
		}
	}
	sort.Strings(out)
	return out
}

// Message returns the template id in lang, falling back to English.
// When args are given the template is formatted with them.
func (s *Set) Message(id string, lang locale.Language, args ...any) string {
	tmpl, ok := s.messages[id]
	if !ok {
		return id
	}
	text, ok := tmpl[lang]
	if !ok || text == "" {
		text = tmpl[locale.Default]
	}
	if len(args) > 0 {
		return fmt.Sprintf(text, args...)
	}
	return text
}

// HasMessage reports whether a template with the given id exists.
func (s *Set) HasMessage(id string) bool {
	_, ok := s.messages[id]
	return ok
}
