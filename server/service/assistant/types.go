package assistant

import (
	"context"

	"github.com/hrygo/agrisense/plugin/ai/chat"
	"github.com/hrygo/agrisense/plugin/ai/gazetteer"
	"github.com/hrygo/agrisense/plugin/ai/locale"
	"github.com/hrygo/agrisense/plugin/ai/router"
	"github.com/hrygo/agrisense/plugin/disease"
	"github.com/hrygo/agrisense/plugin/mandi"
)

// Response types carried in Data.Type.
const (
	TypeWeather          = "weather"
	TypeCommodity        = "commodity"
	TypeClarification    = "clarification"
	TypeError            = "error"
	TypeChat             = "chat"
	TypeDiseaseDetection = "disease_detection"
)

// Chatter answers general agriculture questions.
type Chatter interface {
	Reply(ctx context.Context, text string, lang locale.Language) (chat.Reply, error)
}

// DiseaseAnalyzer classifies an uploaded leaf photo.
type DiseaseAnalyzer interface {
	Analyze(ctx context.Context, raw []byte, lang locale.Language) ([]disease.Prediction, error)
}

// Request is one assistant query.
type Request struct {
	Text     string
	Language locale.Language
	// Image is the raw upload. A non-empty image selects disease detection.
	Image []byte
}

// Result is a successful answer: a short English status line and the typed
// payload shown to the user.
type Result struct {
	Message  string           `json:"message"`
	Data     any              `json:"data"`
	Decision *router.Decision `json:"-"`
}

// WeatherData answers a weather question.
type WeatherData struct {
	Type       string `json:"type"`
	District   string `json:"district"`
	Response   string `json:"response"`
	FuzzyMatch bool   `json:"fuzzy_match"`
}

// CommodityData answers a price question.
type CommodityData struct {
	Type      string         `json:"type"`
	District  string         `json:"district,omitempty"`
	Commodity string         `json:"commodity,omitempty"`
	Response  string         `json:"response"`
	Records   []mandi.Record `json:"records"`
}

// ClarificationData asks the user to confirm a tentative match.
type ClarificationData struct {
	Type              string         `json:"type"`
	Kind              gazetteer.Kind `json:"kind"`
	Suggested         string         `json:"suggested"`
	SuggestedDistrict string         `json:"suggested_district,omitempty"`
	Confidence        float64        `json:"confidence"`
	Response          string         `json:"response"`
}

// NotFoundData reports an entity that could not be resolved.
type NotFoundData struct {
	Type                 string   `json:"type"`
	Response             string   `json:"response"`
	SuggestedDistricts   []string `json:"suggested_districts,omitempty"`
	SuggestedCommodities []string `json:"suggested_commodities,omitempty"`
}

// ChatData carries a chat answer or the restricted-topic refusal.
type ChatData struct {
	Type     string `json:"type"`
	Response string `json:"response"`
}

// DiseaseData reports disease detection results.
type DiseaseData struct {
	Type         string               `json:"type"`
	Predictions  []disease.Prediction `json:"predictions"`
	Response     string               `json:"response"`
	DiseaseCount int                  `json:"disease_count,omitempty"`
}

var (
	_ Chatter         = (*chat.Service)(nil)
	_ DiseaseAnalyzer = (*disease.Service)(nil)
)
