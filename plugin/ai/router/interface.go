// Package router provides the query routing service for the assistant.
// It is consumed by the assistant service and the /api/v1/route endpoint.
package router

import (
	"context"

	"github.com/hrygo/agrisense/plugin/ai/locale"
	"github.com/hrygo/agrisense/plugin/ai/resolver"
)

// RouterService defines the query routing service interface.
// Routing is pure computation: it never blocks and never fails.
type RouterService interface {
	// ClassifyIntent labels one utterance.
	ClassifyIntent(ctx context.Context, input string) Classification

	// Route classifies the request and resolves the entities it names.
	Route(ctx context.Context, req Request) *Decision
}

// Intent represents what the user asked for.
type Intent string

const (
	IntentWeather    Intent = "weather"
	IntentCommodity  Intent = "commodity"
	IntentChat       Intent = "chat"
	IntentRestricted Intent = "restricted"
	IntentDisease    Intent = "disease"
)

// Action tells the caller what to do with a decision.
type Action string

const (
	// ActionAnswer: fetch data for the confirmed entities.
	ActionAnswer Action = "answer"
	// ActionClarify: ask "did you mean ...?" and fetch nothing yet.
	ActionClarify Action = "clarify"
	// ActionReject: return a not-found or restricted-topic message.
	ActionReject Action = "reject"
	// ActionDelegateToChat: hand the raw text to the chat backend.
	ActionDelegateToChat Action = "delegate_to_chat"
	// ActionDetectDisease: run the attached image through disease detection.
	ActionDetectDisease Action = "detect_disease"
)

// Request is one routing input.
type Request struct {
	Text     string          `json:"text"`
	Language locale.Language `json:"language"`
	HasImage bool            `json:"has_image"`
}

// Classification is the outcome of intent classification.
type Classification struct {
	Intent Intent `json:"intent"`
	// Keyword is the lexicon entry that decided the label, empty when no
	// keyword matched.
	Keyword string `json:"keyword,omitempty"`
}

// Decision is the routing outcome for one request.
type Decision struct {
	Intent    Intent           `json:"intent"`
	Action    Action           `json:"action"`
	Language  locale.Language  `json:"language"`
	Keyword   string           `json:"keyword,omitempty"`
	Query     string           `json:"query,omitempty"`
	District  *resolver.Result `json:"district,omitempty"`
	Commodity *resolver.Result `json:"commodity,omitempty"`
}

// DistrictID returns the district id when it was confirmed.
func (d *Decision) DistrictID() string {
	return confirmedID(d.District)
}

// CommodityID returns the commodity id when it was confirmed.
func (d *Decision) CommodityID() string {
	return confirmedID(d.Commodity)
}

// Clarification returns the tentative result the caller should ask about
// when Action is ActionClarify. Commodities are asked about first.
func (d *Decision) Clarification() *resolver.Result {
	if d.Action != ActionClarify {
		return nil
	}
	for _, r := range []*resolver.Result{d.Commodity, d.District} {
		if r != nil && r.Tier == resolver.TierTentative {
			return r
		}
	}
	return nil
}

func confirmedID(r *resolver.Result) string {
	if r == nil || r.Tier != resolver.TierConfirmed {
		return ""
	}
	return r.ID()
}
