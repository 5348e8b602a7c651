package router

import (
	"github.com/hrygo/agrisense/plugin/ai/lexicon"
)

// RuleMatcher labels utterances by keyword containment.
// Weather beats commodity, commodity beats chat, and chat is gated by the
// allowed and restricted topic tables.
type RuleMatcher struct {
	lexicon *lexicon.Set
	// chatOnlyGate limits the restricted-topic veto to utterances that fall
	// through to chat. By default a restricted keyword vetoes everything.
	chatOnlyGate bool
}

// NewRuleMatcher creates a new rule matcher over the given keyword tables.
func NewRuleMatcher(lex *lexicon.Set, chatOnlyGate bool) *RuleMatcher {
	return &RuleMatcher{
		lexicon:      lex,
		chatOnlyGate: chatOnlyGate,
	}
}

// Match classifies normalized text.
func (m *RuleMatcher) Match(text string) Classification {
	if !m.chatOnlyGate {
		if kw, ok := m.lexicon.Match(lexicon.Restricted, text); ok {
			return Classification{Intent: IntentRestricted, Keyword: kw}
		}
	}

	if kw, ok := m.lexicon.Match(lexicon.Weather, text); ok {
		return Classification{Intent: IntentWeather, Keyword: kw}
	}
	if kw, ok := m.lexicon.Match(lexicon.Commodity, text); ok {
		return Classification{Intent: IntentCommodity, Keyword: kw}
	}

	// Chat: restricted always wins over allowed.
	if kw, ok := m.lexicon.Match(lexicon.Restricted, text); ok {
		return Classification{Intent: IntentRestricted, Keyword: kw}
	}
	if kw, ok := m.lexicon.Match(lexicon.Allowed, text); ok {
		return Classification{Intent: IntentChat, Keyword: kw}
	}
	return Classification{Intent: IntentRestricted}
}
