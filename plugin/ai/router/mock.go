package router

import (
	"context"
	"strings"

	"github.com/hrygo/agrisense/plugin/ai/locale"
)

// MockRouterService is a mock implementation of RouterService for testing.
type MockRouterService struct {
	// DecisionOverrides maps raw input text to the decision Route returns.
	DecisionOverrides map[string]*Decision
	// Calls records every routed request in order.
	Calls []Request
}

// NewMockRouterService creates a new MockRouterService.
func NewMockRouterService() *MockRouterService {
	return &MockRouterService{
		DecisionOverrides: make(map[string]*Decision),
	}
}

// ClassifyIntent classifies with a handful of English keywords.
func (m *MockRouterService) ClassifyIntent(ctx context.Context, input string) Classification {
	if d, ok := m.DecisionOverrides[input]; ok {
		return Classification{Intent: d.Intent, Keyword: d.Keyword}
	}

	lower := strings.ToLower(input)
	switch {
	case containsAny(lower, []string{"weather", "rain", "temperature"}):
		return Classification{Intent: IntentWeather}
	case containsAny(lower, []string{"price", "mandi", "market"}):
		return Classification{Intent: IntentCommodity}
	case containsAny(lower, []string{"crop", "soil", "farm"}):
		return Classification{Intent: IntentChat}
	default:
		return Classification{Intent: IntentRestricted}
	}
}

// Route returns the override for the input, or a decision without entities.
func (m *MockRouterService) Route(ctx context.Context, req Request) *Decision {
	m.Calls = append(m.Calls, req)
	lang := req.Language.Or(locale.Default)

	if req.HasImage {
		return &Decision{Intent: IntentDisease, Action: ActionDetectDisease, Language: lang}
	}
	if d, ok := m.DecisionOverrides[req.Text]; ok {
		out := *d
		out.Language = lang
		return &out
	}

	c := m.ClassifyIntent(ctx, req.Text)
	d := &Decision{Intent: c.Intent, Language: lang, Action: ActionReject}
	if c.Intent == IntentChat {
		d.Action = ActionDelegateToChat
	}
	return d
}

// containsAny checks if s contains any of the patterns.
func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// Ensure MockRouterService implements RouterService
var _ RouterService = (*MockRouterService)(nil)
