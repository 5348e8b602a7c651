// Package locale defines the languages the assistant answers in.
package locale

import (
	"strings"

	"golang.org/x/text/language"
)

// Language is a supported response language.
type Language string

const (
	English  Language = "en"
	Hindi    Language = "hi"
	Gujarati Language = "gu"
)

// Default is used whenever a request names no language or an unsupported one.
const Default = English

// All lists the supported languages in preference order.
var All = []Language{English, Hindi, Gujarati}

var matcher = language.NewMatcher([]language.Tag{
	language.English,
	language.Hindi,
	language.Gujarati,
})

var names = map[string]Language{
	"english":  English,
	"hindi":    Hindi,
	"gujarati": Gujarati,
}

// Parse maps a free-form language hint to a supported Language.
// It accepts BCP 47 tags ("hi-IN", "gu_IN"), bare codes, and English
// language names. Anything unrecognized maps to Default.
func Parse(s string) Language {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Default
	}
	if l, ok := names[s]; ok {
		return l
	}

	tag, err := language.Parse(strings.ReplaceAll(s, "_", "-"))
	if err != nil {
		return Default
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return Default
	}
	return All[idx]
}

// Valid reports whether l is one of the supported languages.
func (l Language) Valid() bool {
	for _, s := range All {
		if s == l {
			return true
		}
	}
	return false
}

// Or returns l if it is valid, otherwise fallback.
func (l Language) Or(fallback Language) Language {
	if l.Valid() {
		return l
	}
	return fallback
}

// Name returns the English display name of the language.
func (l Language) Name() string {
	switch l {
	case Hindi:
		return "Hindi"
	case Gujarati:
		return "Gujarati"
	default:
		return "English"
	}
}

func (l Language) String() string {
	return string(l)
}
