// Package gazetteer maps surface forms of Gujarat districts and traded
// commodities (spellings, transliterations, native scripts) to canonical ids.
//
// A Gazetteer is built once and never mutated, so it can be shared freely
// across goroutines.
package gazetteer

import (
	_ "embed"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/hrygo/agrisense/plugin/ai/locale"
	"github.com/hrygo/agrisense/plugin/ai/similarity"
)

//go:embed gazetteer.yaml
var defaultData []byte

// Kind is an entity kind.
type Kind string

const (
	District  Kind = "district"
	Commodity Kind = "commodity"
)

// Kinds lists every entity kind.
var Kinds = []Kind{District, Commodity}

// Entry is one canonical entity.
type Entry struct {
	ID       string
	Kind     Kind
	Names    map[locale.Language]string
	Variants []string
	Lat      float64
	Lon      float64
	// Market is the label the mandi price feed uses, when it differs from ID.
	Market   string
}

// MarketName returns the label the mandi price feed uses for the entry.
func (e Entry) MarketName() string {
	if e.Market != "" {
		return e.Market
	}
	return e.ID
}

// Name returns the display name of the entry in lang, falling back to English
// and then to the id.
func (e Entry) Name(lang locale.Language) string {
	if n := e.Names[lang]; n != "" {
		return n
	}
	if n := e.Names[locale.Default]; n != "" {
		return n
	}
	return e.ID
}

// Variant is one normalized surface form of an entity.
type Variant struct {
	Text  string
	ID    string
	Runes int
}

// Phonetic maps a known misheard or mis-transliterated fragment to an id.
type Phonetic struct {
	Key string `yaml:"key"`
	ID  string `yaml:"id"`
}

// Gazetteer is an immutable variant-to-id index per entity kind.
type Gazetteer struct {
	entries  map[Kind][]Entry
	byID     map[Kind]map[string]int
	variants map[Kind][]Variant
	exact    map[Kind]map[string]string
	popular  map[Kind][]string
	phonetic map[Kind][]Phonetic
}

type entryDoc struct {
	ID       string            `yaml:"id"`
	Names    map[string]string `yaml:"names"`
	Variants []string          `yaml:"variants"`
	Lat      float64           `yaml:"lat"`
	Lon      float64           `yaml:"lon"`
	Market   string            `yaml:"market"`
}

type document struct {
	Districts   []entryDoc          `yaml:"districts"`
	Commodities []entryDoc          `yaml:"commodities"`
	Popular     map[Kind][]string   `yaml:"popular"`
	Phonetic    map[Kind][]Phonetic `yaml:"phonetic"`
}

// Default parses the embedded Gujarat gazetteer.
func Default() (*Gazetteer, error) {
	return Parse(defaultData)
}

// LoadFile parses a gazetteer from a YAML file.
func LoadFile(path string) (*Gazetteer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read gazetteer file %s", path)
	}
	g, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid gazetteer file %s", path)
	}
	return g, nil
}

// Parse builds a Gazetteer from YAML.
func Parse(data []byte) (*Gazetteer, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse gazetteer")
	}

	var entries []Entry
	convert := func(kind Kind, docs []entryDoc) error {
		for _, d := range docs {
			names := make(map[locale.Language]string, len(d.Names))
			for code, name := range d.Names {
				lang := locale.Language(code)
				if !lang.Valid() {
					return errors.Errorf("%s %q has a name in unsupported language %q", kind, d.ID, code)
				}
				names[lang] = name
			}
			entries = append(entries, Entry{
				ID:       d.ID,
				Kind:     kind,
				Names:    names,
				Variants: d.Variants,
				Lat:      d.Lat,
				Lon:      d.Lon,
				Market:   d.Market,
			})
		}
		return nil
	}
	if err := convert(District, doc.Districts); err != nil {
		return nil, err
	}
	if err := convert(Commodity, doc.Commodities); err != nil {
		return nil, err
	}

	return New(entries, doc.Popular, doc.Phonetic)
}

// New builds a Gazetteer. Every entry's id and display names are indexed as
// variants alongside its explicit variants, in that order. A variant that
// maps to two different ids within one kind is an error.
func New(entries []Entry, popular map[Kind][]string, phonetic map[Kind][]Phonetic) (*Gazetteer, error) {
	g := &Gazetteer{
		entries:  make(map[Kind][]Entry, len(Kinds)),
		byID:     make(map[Kind]map[string]int, len(Kinds)),
		variants: make(map[Kind][]Variant, len(Kinds)),
		exact:    make(map[Kind]map[string]string, len(Kinds)),
		popular:  make(map[Kind][]string, len(Kinds)),
		phonetic: make(map[Kind][]Phonetic, len(Kinds)),
	}
	for _, k := range Kinds {
		g.byID[k] = make(map[string]int)
		g.exact[k] = make(map[string]string)
	}

	for _, e := range entries {
		if !knownKind(e.Kind) {
			return nil, errors.Errorf("entry %q has unknown kind %q", e.ID, e.Kind)
		}
		if e.ID == "" {
			return nil, errors.Errorf("%s entry without id", e.Kind)
		}
		if _, dup := g.byID[e.Kind][e.ID]; dup {
			return nil, errors.Errorf("duplicate %s id %q", e.Kind, e.ID)
		}

		forms := make([]string, 0, len(e.Variants)+len(e.Names)+1)
		forms = append(forms, e.ID)
		for _, lang := range locale.All {
			if n := e.Names[lang]; n != "" {
				forms = append(forms, n)
			}
		}
		forms = append(forms, e.Variants...)

		var kept []string
		for _, form := range forms {
			text := similarity.Normalize(form)
			if text == "" {
				continue
			}
			if owner, ok := g.exact[e.Kind][text]; ok {
				if owner != e.ID {
					return nil, errors.Errorf("ambiguous %s variant %q maps to both %q and %q", e.Kind, form, owner, e.ID)
				}
				continue
			}
			g.exact[e.Kind][text] = e.ID
			g.variants[e.Kind] = append(g.variants[e.Kind], Variant{
				Text:  text,
				ID:    e.ID,
				Runes: similarity.RuneLen(text),
			})
			kept = append(kept, text)
		}

		stored := e
		stored.Variants = kept
		g.byID[e.Kind][e.ID] = len(g.entries[e.Kind])
		g.entries[e.Kind] = append(g.entries[e.Kind], stored)
	}

	for kind, ids := range popular {
		if !knownKind(kind) {
			return nil, errors.Errorf("popular list for unknown kind %q", kind)
		}
		for _, id := range ids {
			if _, ok := g.byID[kind][id]; !ok {
				return nil, errors.Errorf("popular %s %q is not in the gazetteer", kind, id)
			}
		}
		g.popular[kind] = append([]string(nil), ids...)
	}

	for kind, table := range phonetic {
		if !knownKind(kind) {
			return nil, errors.Errorf("phonetic table for unknown kind %q", kind)
		}
		for _, p := range table {
			if _, ok := g.byID[kind][p.ID]; !ok {
				return nil, errors.Errorf("phonetic key %q points to unknown %s %q", p.Key, kind, p.ID)
			}
			key := similarity.Normalize(p.Key)
			if key == "" {
				return nil, errors.Errorf("empty phonetic key for %s %q", kind, p.ID)
			}
			g.phonetic[kind] = append(g.phonetic[kind], Phonetic{Key: key, ID: p.ID})
		}
	}

	return g, nil
}

func knownKind(k Kind) bool {
	return k == District || k == Commodity
}

// Variants returns every variant of kind in insertion order.
// The returned slice is shared and must not be modified.
func (g *Gazetteer) Variants(kind Kind) []Variant {
	return g.variants[kind]
}

// Lookup returns the id whose variant equals the normalized text exactly.
func (g *Gazetteer) Lookup(kind Kind, normalized string) (string, bool) {
	id, ok := g.exact[kind][normalized]
	return id, ok
}

// IsVariant reports whether the normalized text is a variant of any kind.
func (g *Gazetteer) IsVariant(normalized string) bool {
	for _, k := range Kinds {
		if _, ok := g.exact[k][normalized]; ok {
			return true
		}
	}
	return false
}

// Entry returns the entry with the given id.
func (g *Gazetteer) Entry(kind Kind, id string) (Entry, bool) {
	idx, ok := g.byID[kind][id]
	if !ok {
		return Entry{}, false
	}
	return g.entries[kind][idx], true
}

// Entries returns every entry of kind in insertion order.
func (g *Gazetteer) Entries(kind Kind) []Entry {
	return append([]Entry(nil), g.entries[kind]...)
}

// PopularIDs returns the curated list of frequently requested ids of kind.
func (g *Gazetteer) PopularIDs(kind Kind) []string {
	return append([]string(nil), g.popular[kind]...)
}

// Popular returns the curated list of kind as display names in lang.
func (g *Gazetteer) Popular(kind Kind, lang locale.Language) []string {
	ids := g.popular[kind]
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		e, _ := g.Entry(kind, id)
		out = append(out, e.Name(lang))
	}
	return out
}

// Phonetic returns the phonetic override table of kind in priority order.
func (g *Gazetteer) Phonetic(kind Kind) []Phonetic {
	return g.phonetic[kind]
}

// Name returns the display name of id in lang, or id itself when unknown.
func (g *Gazetteer) Name(kind Kind, id string, lang locale.Language) string {
	e, ok := g.Entry(kind, id)
	if !ok {
		return id
	}
	return e.Name(lang)
}
