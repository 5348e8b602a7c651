// Package assistant answers user queries end to end: it routes the text,
// calls the weather, mandi, chat or disease collaborator the decision names,
// and localizes the answer.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/agrisense/plugin/ai/chat"
	"github.com/hrygo/agrisense/plugin/ai/gazetteer"
	"github.com/hrygo/agrisense/plugin/ai/lexicon"
	"github.com/hrygo/agrisense/plugin/ai/locale"
	"github.com/hrygo/agrisense/plugin/ai/resolver"
	"github.com/hrygo/agrisense/plugin/ai/router"
	"github.com/hrygo/agrisense/plugin/ai/translate"
	"github.com/hrygo/agrisense/plugin/disease"
	"github.com/hrygo/agrisense/plugin/mandi"
	"github.com/hrygo/agrisense/plugin/weather"
	apperrors "github.com/hrygo/agrisense/server/internal/errors"
	"github.com/hrygo/agrisense/server/internal/observability"
)

// DefaultFuzzyNoticeBelow is the district confidence under which a weather
// answer is prefixed with "did you mean".
const DefaultFuzzyNoticeBelow = 0.9

// Config wires the assistant to its collaborators. Nil collaborators make the
// matching requests fail with SERVICE_UNAVAILABLE.
type Config struct {
	Router     router.RouterService
	Lexicon    *lexicon.Set
	Gazetteer  *gazetteer.Gazetteer
	Weather    weather.Fetcher
	Prices     mandi.PriceSource
	Chat       Chatter
	Disease    DiseaseAnalyzer
	Translator translate.Translator
	Metrics    *observability.Metrics

	FuzzyNoticeBelow float64
}

// Service answers assistant requests.
type Service struct {
	router     router.RouterService
	lexicon    *lexicon.Set
	gazetteer  *gazetteer.Gazetteer
	weather    weather.Fetcher
	prices     mandi.PriceSource
	chat       Chatter
	disease    DiseaseAnalyzer
	translator translate.Translator
	metrics    *observability.Metrics

	fuzzyNoticeBelow float64
}

// NewService creates an assistant service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Router == nil {
		return nil, errors.New("router is required")
	}
	if cfg.Lexicon == nil {
		return nil, errors.New("lexicon is required")
	}
	if cfg.Gazetteer == nil {
		return nil, errors.New("gazetteer is required")
	}
	if cfg.Translator == nil {
		cfg.Translator = translate.Noop{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.GlobalMetrics()
	}
	if cfg.FuzzyNoticeBelow <= 0 {
		cfg.FuzzyNoticeBelow = DefaultFuzzyNoticeBelow
	}
	return &Service{
		router:           cfg.Router,
		lexicon:          cfg.Lexicon,
		gazetteer:        cfg.Gazetteer,
		weather:          cfg.Weather,
		prices:           cfg.Prices,
		chat:             cfg.Chat,
		disease:          cfg.Disease,
		translator:       cfg.Translator,
		metrics:          cfg.Metrics,
		fuzzyNoticeBelow: cfg.FuzzyNoticeBelow,
	}, nil
}

// Handle answers one request. Failures are *apperrors.AppError values whose
// Context["error"] holds the localized text for the user.
func (s *Service) Handle(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	lang := req.Language.Or(locale.Default)

	if strings.TrimSpace(req.Text) == "" && len(req.Image) == 0 {
		err := s.fail(apperrors.InvalidArgument("No input provided"), lexicon.MsgNoInput, lang)
		s.metrics.RecordRequest(time.Since(start), true)
		return nil, err
	}

	d := s.router.Route(ctx, router.Request{Text: req.Text, Language: lang, HasImage: len(req.Image) > 0})
	res, err := s.dispatch(ctx, req, d)
	if res != nil {
		res.Decision = d
	}

	s.metrics.RecordDecision(string(d.Intent), string(d.Action))
	s.metrics.RecordRequest(time.Since(start), err != nil)

	attrs := []any{
		observability.LogFieldIntent, d.Intent,
		observability.LogFieldAction, d.Action,
		observability.LogFieldLanguage, lang,
		observability.LogFieldDuration, time.Since(start).Milliseconds(),
	}
	logger := observability.LoggerFromContext(ctx)
	if err != nil {
		attrs = append(attrs,
			observability.LogFieldErrorCode, apperrors.GetCodeFromError(err, apperrors.ErrCodeInternal),
			"error", err)
		logger.Warn("assistant request failed", attrs...)
	} else {
		logger.Info("assistant request handled", attrs...)
	}
	return res, err
}

func (s *Service) dispatch(ctx context.Context, req Request, d *router.Decision) (*Result, error) {
	switch d.Action {
	case router.ActionDetectDisease:
		return s.detectDisease(ctx, req.Image, d.Language)
	case router.ActionAnswer:
		if d.Intent == router.IntentWeather {
			return s.answerWeather(ctx, d)
		}
		return s.answerPrices(ctx, d)
	case router.ActionClarify:
		if r := d.Clarification(); r != nil {
			return s.clarify(r, d.Language), nil
		}
		return s.notFound(d), nil
	case router.ActionDelegateToChat:
		return s.answerChat(ctx, req.Text, d.Language)
	default:
		if d.Intent == router.IntentRestricted {
			return &Result{
				Message: "Query not allowed",
				Data:    ChatData{Type: TypeChat, Response: s.lexicon.Message(lexicon.MsgRestricted, d.Language)},
			}, nil
		}
		return s.notFound(d), nil
	}
}

func (s *Service) answerWeather(ctx context.Context, d *router.Decision) (*Result, error) {
	lang := d.Language
	if s.weather == nil {
		return nil, s.fail(apperrors.ServiceUnavailable("Weather service is not available", nil), lexicon.MsgWeatherUnavailable, lang)
	}
	entry, ok := s.gazetteer.Entry(gazetteer.District, d.DistrictID())
	if !ok {
		return nil, s.fail(apperrors.Internal("Unknown district", nil), lexicon.MsgWeatherUnavailable, lang)
	}

	start := time.Now()
	forecast, err := s.weather.Forecast(ctx, entry)
	s.metrics.RecordUpstream("weather", time.Since(start), err)
	if err != nil {
		return nil, s.fail(apperrors.UpstreamFailed("Failed to retrieve weather data", err), lexicon.MsgWeatherUnavailable, lang)
	}

	text := s.localize(ctx, weather.Format(forecast, entry.Name(locale.English)), lang)
	fuzzy := d.District.Confidence() < s.fuzzyNoticeBelow
	if fuzzy {
		text = "(" + s.lexicon.Message(lexicon.MsgDidYouMean, lang, entry.Name(lang)) + ")\n\n" + text
	}
	return &Result{
		Message: "Weather information retrieved successfully",
		Data: WeatherData{
			Type:       TypeWeather,
			District:   entry.ID,
			Response:   text,
			FuzzyMatch: fuzzy,
		},
	}, nil
}

func (s *Service) answerPrices(ctx context.Context, d *router.Decision) (*Result, error) {
	lang := d.Language
	if s.prices == nil {
		return nil, s.fail(apperrors.ServiceUnavailable("Commodity price service is not available", nil), lexicon.MsgPriceUnavailable, lang)
	}

	var q mandi.Query
	var districtName string
	districtID, commodityID := d.DistrictID(), d.CommodityID()
	if e, ok := s.gazetteer.Entry(gazetteer.District, districtID); ok {
		q.District = e.MarketName()
		districtName = e.Name(locale.English)
	}
	if e, ok := s.gazetteer.Entry(gazetteer.Commodity, commodityID); ok {
		q.Commodity = e.MarketName()
	}

	start := time.Now()
	records, err := s.prices.Prices(ctx, q)
	s.metrics.RecordUpstream("mandi", time.Since(start), err)
	if err != nil {
		return nil, s.fail(apperrors.UpstreamFailed("Failed to retrieve commodity prices", err), lexicon.MsgPriceUnavailable, lang)
	}

	data := CommodityData{
		Type:      TypeCommodity,
		District:  districtID,
		Commodity: commodityID,
		Records:   records,
	}
	if len(records) == 0 {
		data.Records = []mandi.Record{}
		data.Response = s.lexicon.Message(lexicon.MsgNoPriceData, lang)
		return &Result{Message: "No commodity price data found", Data: data}, nil
	}
	data.Response = s.localize(ctx, mandi.Format(records, districtName), lang)
	return &Result{Message: "Commodity prices retrieved successfully", Data: data}, nil
}

func (s *Service) clarify(r *resolver.Result, lang locale.Language) *Result {
	name := s.gazetteer.Name(r.Kind, r.ID(), lang)
	data := ClarificationData{
		Type:       TypeClarification,
		Kind:       r.Kind,
		Suggested:  r.ID(),
		Confidence: r.Confidence(),
	}
	if r.Kind == gazetteer.District {
		data.SuggestedDistrict = r.ID()
		data.Response = s.lexicon.Message(lexicon.MsgConfirmDistrict, lang, name)
		return &Result{Message: "District name unclear", Data: data}
	}
	data.Response = s.lexicon.Message(lexicon.MsgConfirmCommodity, lang, name)
	return &Result{Message: "Commodity name unclear", Data: data}
}

func (s *Service) notFound(d *router.Decision) *Result {
	lang := d.Language
	data := NotFoundData{Type: TypeError}
	if d.District != nil {
		data.SuggestedDistricts = d.District.Suggestions
	}

	if d.Intent == router.IntentCommodity {
		if d.Commodity != nil {
			data.SuggestedCommodities = d.Commodity.Suggestions
		}
		data.Response = s.lexicon.Message(lexicon.MsgCommodityNotFound, lang) + "\n" + strings.Join(data.SuggestedCommodities, ", ")
		return &Result{Message: "Commodity not recognized", Data: data}
	}
	data.Response = s.lexicon.Message(lexicon.MsgDistrictNotFound, lang) + "\n" + strings.Join(data.SuggestedDistricts, ", ")
	return &Result{Message: "District not recognized", Data: data}
}

func (s *Service) answerChat(ctx context.Context, text string, lang locale.Language) (*Result, error) {
	if s.chat == nil {
		return nil, s.fail(apperrors.ServiceUnavailable("Chat service is not available", nil), lexicon.MsgChatUnavailable, lang)
	}

	start := time.Now()
	reply, err := s.chat.Reply(ctx, text, lang)
	if !reply.Gated {
		s.metrics.RecordUpstream("chat", time.Since(start), err)
	}
	switch {
	case errors.Is(err, chat.ErrNotConfigured):
		return nil, s.fail(apperrors.ServiceUnavailable("Chat service is not available", err), lexicon.MsgChatUnavailable, lang)
	case err != nil:
		return nil, s.fail(apperrors.UpstreamFailed("Failed to generate chat response", err), lexicon.MsgChatFailed, lang)
	}

	msg := "Chat response generated successfully"
	if reply.Gated {
		msg = "Query not allowed"
	}
	return &Result{Message: msg, Data: ChatData{Type: TypeChat, Response: reply.Text}}, nil
}

func (s *Service) detectDisease(ctx context.Context, image []byte, lang locale.Language) (*Result, error) {
	if s.disease == nil {
		return nil, s.fail(apperrors.ServiceUnavailable("Disease detection is not available", disease.ErrNotConfigured), lexicon.MsgDiseaseUnavailable, lang)
	}

	start := time.Now()
	predictions, err := s.disease.Analyze(ctx, image, lang)
	s.metrics.RecordUpstream("disease", time.Since(start), err)
	switch {
	case errors.Is(err, disease.ErrNotConfigured):
		return nil, s.fail(apperrors.ServiceUnavailable("Disease detection is not available", err), lexicon.MsgDiseaseUnavailable, lang)
	case errors.Is(err, disease.ErrUnsupportedImage):
		return nil, s.fail(apperrors.UnsupportedMedia("Failed to process image format", err), lexicon.MsgUnsupportedImage, lang)
	case err != nil:
		return nil, s.fail(apperrors.UpstreamFailed("Failed to classify image", err), lexicon.MsgDiseaseUnavailable, lang)
	}

	if len(predictions) == 0 {
		msg := s.lexicon.Message(lexicon.MsgNoDisease, lang)
		return &Result{
			Message: msg,
			Data: DiseaseData{
				Type:        TypeDiseaseDetection,
				Predictions: []disease.Prediction{},
				Response:    msg,
			},
		}, nil
	}

	names := make([]string, len(predictions))
	for i, p := range predictions {
		names[i] = p.Label
	}
	var response string
	if len(names) == 1 {
		response = s.lexicon.Message(lexicon.MsgDiseaseDetected, lang, names[0])
	} else {
		response = s.lexicon.Message(lexicon.MsgDiseasesDetected, lang, strings.Join(names, ", "))
	}
	return &Result{
		Message: s.lexicon.Message(lexicon.MsgDiseaseSuccess, lang),
		Data: DiseaseData{
			Type:         TypeDiseaseDetection,
			Predictions:  predictions,
			Response:     response,
			DiseaseCount: len(predictions),
		},
	}, nil
}

// localize translates collaborator output that is produced in English.
// A failed translation keeps whatever text came back.
func (s *Service) localize(ctx context.Context, text string, lang locale.Language) string {
	if lang == locale.English {
		return text
	}
	start := time.Now()
	out, err := s.translator.Translate(ctx, text, lang)
	s.metrics.RecordUpstream("translate", time.Since(start), err)
	if err != nil {
		slog.Warn("translation failed, keeping source text",
			observability.LogFieldLanguage, lang,
			"error", err)
	}
	if strings.TrimSpace(out) == "" {
		return text
	}
	return out
}

// fail attaches the localized user message for msgID to appErr.
func (s *Service) fail(appErr *apperrors.AppError, msgID string, lang locale.Language) *apperrors.AppError {
	return appErr.WithContext("error", s.lexicon.Message(msgID, lang))
}
