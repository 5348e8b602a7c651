package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/agrisense/plugin/ai/chat"
	"github.com/hrygo/agrisense/plugin/ai/gazetteer"
	"github.com/hrygo/agrisense/plugin/ai/lexicon"
	"github.com/hrygo/agrisense/plugin/ai/locale"
	"github.com/hrygo/agrisense/plugin/ai/resolver"
	"github.com/hrygo/agrisense/plugin/ai/router"
	"github.com/hrygo/agrisense/plugin/disease"
	"github.com/hrygo/agrisense/plugin/mandi"
	"github.com/hrygo/agrisense/plugin/weather"
	apperrors "github.com/hrygo/agrisense/server/internal/errors"
	"github.com/hrygo/agrisense/server/internal/observability"
)

type fakeWeather struct {
	forecast *weather.Forecast
	err      error
	got      []gazetteer.Entry
}

func (f *fakeWeather) Forecast(_ context.Context, district gazetteer.Entry) (*weather.Forecast, error) {
	f.got = append(f.got, district)
	return f.forecast, f.err
}

type fakePrices struct {
	records []mandi.Record
	err     error
	got     []mandi.Query
}

func (f *fakePrices) Prices(_ context.Context, q mandi.Query) ([]mandi.Record, error) {
	f.got = append(f.got, q)
	return f.records, f.err
}

type fakeChat struct {
	reply chat.Reply
	err   error
	calls int
}

func (f *fakeChat) Reply(_ context.Context, _ string, _ locale.Language) (chat.Reply, error) {
	f.calls++
	return f.reply, f.err
}

type fakeDisease struct {
	predictions []disease.Prediction
	err         error
}

func (f *fakeDisease) Analyze(_ context.Context, _ []byte, _ locale.Language) ([]disease.Prediction, error) {
	return f.predictions, f.err
}

// prefixTranslator marks translated text with the target language.
type prefixTranslator struct {
	err error
}

func (p prefixTranslator) Translate(_ context.Context, text string, target locale.Language) (string, error) {
	if p.err != nil {
		return text, p.err
	}
	return fmt.Sprintf("[%s] %s", target, text), nil
}

var testForecast = &weather.Forecast{
	Current: weather.Current{Temperature: 30, ApparentTemperature: 32, RelativeHumidity: 50, WindSpeed: 10},
	Daily:   weather.Daily{TemperatureMin: []float64{24}, TemperatureMax: []float64{35}},
}

type harness struct {
	svc     *Service
	weather *fakeWeather
	prices  *fakePrices
	chat    *fakeChat
	disease *fakeDisease
	metrics *observability.Metrics
	lexicon *lexicon.Set
	mock    *router.MockRouterService
}

// newHarness wires the assistant to the real router unless useMock is set.
func newHarness(t *testing.T, useMock bool, mutate func(*Config)) *harness {
	t.Helper()
	rt, err := router.NewDefaultService()
	require.NoError(t, err)

	h := &harness{
		weather: &fakeWeather{forecast: testForecast},
		prices:  &fakePrices{},
		chat:    &fakeChat{reply: chat.Reply{Text: "Rotate cotton with groundnut."}},
		disease: &fakeDisease{},
		metrics: observability.NewMetrics(10),
		lexicon: rt.Lexicon(),
		mock:    router.NewMockRouterService(),
	}
	cfg := Config{
		Router:     rt,
		Lexicon:    rt.Lexicon(),
		Gazetteer:  rt.Gazetteer(),
		Weather:    h.weather,
		Prices:     h.prices,
		Chat:       h.chat,
		Disease:    h.disease,
		Translator: prefixTranslator{},
		Metrics:    h.metrics,
	}
	if useMock {
		cfg.Router = h.mock
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.svc, err = NewService(cfg)
	require.NoError(t, err)
	return h
}

func confirmed(kind gazetteer.Kind, id string, conf float64) *resolver.Result {
	return &resolver.Result{
		Kind:      kind,
		Tier:      resolver.TierConfirmed,
		Candidate: &resolver.MatchCandidate{CanonicalID: id, MatchedVariant: strings.ToLower(id), Confidence: conf, Method: resolver.MethodFuzzy},
	}
}

func requireAppError(t *testing.T, err error, code apperrors.ErrorCode) *apperrors.AppError {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
	return appErr
}

func TestHandle_NoInput(t *testing.T) {
	h := newHarness(t, false, nil)

	_, err := h.svc.Handle(context.Background(), Request{Text: "   ", Language: locale.Hindi})
	appErr := requireAppError(t, err, apperrors.ErrCodeInvalidArgument)
	assert.Equal(t, h.lexicon.Message(lexicon.MsgNoInput, locale.Hindi), appErr.Context["error"])
	assert.Equal(t, int64(1), h.metrics.Snapshot().RequestFailed)
}

func TestHandle_Weather(t *testing.T) {
	ctx := context.Background()

	t.Run("exact district", func(t *testing.T) {
		h := newHarness(t, false, nil)
		res, err := h.svc.Handle(ctx, Request{Text: "rajcot weather", Language: locale.English})
		require.NoError(t, err)

		data, ok := res.Data.(WeatherData)
		require.True(t, ok)
		assert.Equal(t, TypeWeather, data.Type)
		assert.Equal(t, "Rajkot", data.District)
		assert.False(t, data.FuzzyMatch)
		assert.Equal(t, weather.Format(testForecast, "Rajkot"), data.Response)
		assert.Equal(t, "Weather information retrieved successfully", res.Message)

		require.Len(t, h.weather.got, 1)
		assert.Equal(t, 22.3039, h.weather.got[0].Lat)
		assert.Equal(t, router.ActionAnswer, res.Decision.Action)

		s := h.metrics.Snapshot()
		assert.Equal(t, int64(1), s.Decisions["weather/answer"])
		assert.Equal(t, int64(1), s.Upstream["weather"].Calls)
	})

	t.Run("fuzzy district is flagged and localized", func(t *testing.T) {
		h := newHarness(t, true, nil)
		h.mock.DecisionOverrides["rajkoot weather"] = &router.Decision{
			Intent:   router.IntentWeather,
			Action:   router.ActionAnswer,
			District: confirmed(gazetteer.District, "Rajkot", 0.8),
		}

		res, err := h.svc.Handle(ctx, Request{Text: "rajkoot weather", Language: locale.Gujarati})
		require.NoError(t, err)
		data := res.Data.(WeatherData)
		assert.True(t, data.FuzzyMatch)
		assert.Equal(t,
			"(શું તમારો મતલબ રાજકોટ હતો?)\n\n[gu] "+weather.Format(testForecast, "Rajkot"),
			data.Response)
	})

	t.Run("upstream failure", func(t *testing.T) {
		h := newHarness(t, false, nil)
		h.weather.err = weather.ErrUpstream

		_, err := h.svc.Handle(ctx, Request{Text: "rajcot weather", Language: locale.Hindi})
		appErr := requireAppError(t, err, apperrors.ErrCodeUpstreamFailed)
		assert.ErrorIs(t, err, weather.ErrUpstream)
		assert.Equal(t, h.lexicon.Message(lexicon.MsgWeatherUnavailable, locale.Hindi), appErr.Context["error"])
		assert.Equal(t, int64(1), h.metrics.Snapshot().Upstream["weather"].Errors)
	})

	t.Run("not configured", func(t *testing.T) {
		h := newHarness(t, false, func(c *Config) { c.Weather = nil })
		_, err := h.svc.Handle(ctx, Request{Text: "rajcot weather"})
		requireAppError(t, err, apperrors.ErrCodeServiceUnavailable)
	})

	t.Run("translation failure keeps english", func(t *testing.T) {
		h := newHarness(t, false, func(c *Config) { c.Translator = prefixTranslator{err: errors.New("quota")} })
		res, err := h.svc.Handle(ctx, Request{Text: "rajcot weather", Language: locale.Hindi})
		require.NoError(t, err)
		assert.Equal(t, weather.Format(testForecast, "Rajkot"), res.Data.(WeatherData).Response)
	})
}

func TestHandle_Commodity(t *testing.T) {
	ctx := context.Background()
	record := mandi.Record{
		Commodity: "Tomato", Variety: "Hybrid", Market: "Rajkot", ArrivalDate: "01/06/2025",
		MinPrice: "800", MaxPrice: "1200", ModalPrice: "1000",
	}

	t.Run("commodity only", func(t *testing.T) {
		h := newHarness(t, false, nil)
		h.prices.records = []mandi.Record{record}

		res, err := h.svc.Handle(ctx, Request{Text: "tamatar price", Language: locale.English})
		require.NoError(t, err)
		require.Equal(t, []mandi.Query{{Commodity: "Tomato"}}, h.prices.got)

		data := res.Data.(CommodityData)
		assert.Equal(t, TypeCommodity, data.Type)
		assert.Equal(t, "Tomato", data.Commodity)
		assert.Empty(t, data.District)
		assert.Equal(t, mandi.Format([]mandi.Record{record}, ""), data.Response)
		assert.Equal(t, "Commodity prices retrieved successfully", res.Message)
	})

	t.Run("market labels", func(t *testing.T) {
		h := newHarness(t, true, nil)
		h.prices.records = []mandi.Record{record}
		h.mock.DecisionOverrides["onion bhav kutch"] = &router.Decision{
			Intent:    router.IntentCommodity,
			Action:    router.ActionAnswer,
			District:  confirmed(gazetteer.District, "Kutch", 1),
			Commodity: confirmed(gazetteer.Commodity, "Onion", 1),
		}

		res, err := h.svc.Handle(ctx, Request{Text: "onion bhav kutch", Language: locale.Gujarati})
		require.NoError(t, err)
		assert.Equal(t, []mandi.Query{{District: "Kachchh", Commodity: "Onion"}}, h.prices.got)
		assert.True(t, strings.HasPrefix(res.Data.(CommodityData).Response, "[gu] Recent commodity prices in Kutch, Gujarat:"))
	})

	t.Run("no records", func(t *testing.T) {
		h := newHarness(t, false, nil)
		res, err := h.svc.Handle(ctx, Request{Text: "tamatar price", Language: locale.Hindi})
		require.NoError(t, err)

		data := res.Data.(CommodityData)
		assert.NotNil(t, data.Records)
		assert.Empty(t, data.Records)
		assert.Equal(t, h.lexicon.Message(lexicon.MsgNoPriceData, locale.Hindi), data.Response)
	})

	t.Run("upstream failure", func(t *testing.T) {
		h := newHarness(t, false, nil)
		h.prices.err = mandi.ErrUpstream
		_, err := h.svc.Handle(ctx, Request{Text: "tamatar price"})
		requireAppError(t, err, apperrors.ErrCodeUpstreamFailed)
	})
}

func TestHandle_Clarification(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()

	res, err := h.svc.Handle(ctx, Request{Text: "weather in rajkxyz", Language: locale.English})
	require.NoError(t, err)
	data := res.Data.(ClarificationData)
	assert.Equal(t, TypeClarification, data.Type)
	assert.Equal(t, gazetteer.District, data.Kind)
	assert.Equal(t, "Rajkot", data.Suggested)
	assert.Equal(t, "Rajkot", data.SuggestedDistrict)
	assert.Equal(t, "Did you mean Rajkot? Please confirm the district name.", data.Response)
	assert.Empty(t, h.weather.got)

	res, err = h.svc.Handle(ctx, Request{Text: "tomxyz price", Language: locale.Hindi})
	require.NoError(t, err)
	data = res.Data.(ClarificationData)
	assert.Equal(t, gazetteer.Commodity, data.Kind)
	assert.Equal(t, "Tomato", data.Suggested)
	assert.Empty(t, data.SuggestedDistrict)
	assert.Equal(t, "क्या आपका मतलब टमाटर था? कृपया फसल के नाम की पुष्टि करें।", data.Response)
	assert.Equal(t, "Commodity name unclear", res.Message)
}

func TestHandle_NotFound(t *testing.T) {
	h := newHarness(t, false, nil)

	res, err := h.svc.Handle(context.Background(), Request{Text: "weather in qqqq", Language: locale.Gujarati})
	require.NoError(t, err)
	data := res.Data.(NotFoundData)
	assert.Equal(t, TypeError, data.Type)
	popular := []string{"અમદાવાદ", "સુરત", "વડોદરા", "રાજકોટ", "ગાંધીનગર", "જામનગર"}
	assert.Equal(t, popular, data.SuggestedDistricts)
	assert.Equal(t,
		h.lexicon.Message(lexicon.MsgDistrictNotFound, locale.Gujarati)+"\n"+strings.Join(popular, ", "),
		data.Response)
	assert.Equal(t, "District not recognized", res.Message)
}

func TestHandle_CommodityNotFound(t *testing.T) {
	h := newHarness(t, false, nil)

	res, err := h.svc.Handle(context.Background(), Request{Text: "mandi prices", Language: locale.English})
	require.NoError(t, err)
	data := res.Data.(NotFoundData)
	assert.Equal(t, []string{"Tomato", "Potato", "Onion", "Cotton", "Wheat", "Groundnut"}, data.SuggestedCommodities)
	assert.Equal(t, "Commodity not recognized", res.Message)
	assert.Empty(t, h.prices.got)
}

func TestHandle_Restricted(t *testing.T) {
	h := newHarness(t, false, nil)

	res, err := h.svc.Handle(context.Background(), Request{Text: "tell me a joke about mandi prices", Language: locale.English})
	require.NoError(t, err)
	assert.Equal(t, ChatData{Type: TypeChat, Response: h.lexicon.Message(lexicon.MsgRestricted, locale.English)}, res.Data)
	assert.Equal(t, "Query not allowed", res.Message)
	assert.Zero(t, h.chat.calls)
	assert.Equal(t, int64(1), h.metrics.Snapshot().Decisions["restricted/reject"])
}

func TestHandle_Chat(t *testing.T) {
	ctx := context.Background()
	req := Request{Text: "tell me about crop rotation", Language: locale.English}

	t.Run("answer", func(t *testing.T) {
		h := newHarness(t, false, nil)
		res, err := h.svc.Handle(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, ChatData{Type: TypeChat, Response: "Rotate cotton with groundnut."}, res.Data)
		assert.Equal(t, 1, h.chat.calls)
	})

	t.Run("gated by the chat service", func(t *testing.T) {
		h := newHarness(t, false, nil)
		h.chat.reply = chat.Reply{Text: "nope", Gated: true}
		res, err := h.svc.Handle(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "Query not allowed", res.Message)
		assert.Nil(t, h.metrics.Snapshot().Upstream["chat"])
	})

	t.Run("backend failure", func(t *testing.T) {
		h := newHarness(t, false, nil)
		h.chat.err = errors.New("500 from provider")
		_, err := h.svc.Handle(ctx, req)
		appErr := requireAppError(t, err, apperrors.ErrCodeUpstreamFailed)
		assert.Equal(t, h.lexicon.Message(lexicon.MsgChatFailed, locale.English), appErr.Context["error"])
	})

	t.Run("not configured", func(t *testing.T) {
		h := newHarness(t, false, nil)
		h.chat.err = chat.ErrNotConfigured
		_, err := h.svc.Handle(ctx, req)
		requireAppError(t, err, apperrors.ErrCodeServiceUnavailable)

		h = newHarness(t, false, func(c *Config) { c.Chat = nil })
		_, err = h.svc.Handle(ctx, req)
		requireAppError(t, err, apperrors.ErrCodeServiceUnavailable)
	})
}

func TestHandle_Disease(t *testing.T) {
	ctx := context.Background()
	img := []byte{0x89, 'P', 'N', 'G'}

	t.Run("detected", func(t *testing.T) {
		h := newHarness(t, false, nil)
		h.disease.predictions = []disease.Prediction{
			{Label: "Tomato Anthracnose", Confidence: 90, OriginalLabel: "Tomato Anthracnose"},
			{Label: "Tomato Early Blight", Confidence: 60, OriginalLabel: "Tomato Early Blight"},
		}
		// The text is ignored when an image is attached.
		res, err := h.svc.Handle(ctx, Request{Text: "tell me a joke", Language: locale.English, Image: img})
		require.NoError(t, err)

		data := res.Data.(DiseaseData)
		assert.Equal(t, TypeDiseaseDetection, data.Type)
		assert.Equal(t, 2, data.DiseaseCount)
		assert.Equal(t, "Detected diseases: Tomato Anthracnose, Tomato Early Blight", data.Response)
		assert.Equal(t, "Disease(s) classified successfully", res.Message)
		assert.Equal(t, int64(1), h.metrics.Snapshot().Decisions["disease/detect_disease"])
	})

	t.Run("single", func(t *testing.T) {
		h := newHarness(t, false, nil)
		h.disease.predictions = []disease.Prediction{{Label: "टमाटर एन्थ्रेक्नोज", OriginalLabel: "Tomato Anthracnose"}}
		res, err := h.svc.Handle(ctx, Request{Language: locale.Hindi, Image: img})
		require.NoError(t, err)
		assert.Equal(t, "पहचाना गया रोग: टमाटर एन्थ्रेक्नोज", res.Data.(DiseaseData).Response)
	})

	t.Run("nothing detected", func(t *testing.T) {
		h := newHarness(t, false, nil)
		res, err := h.svc.Handle(ctx, Request{Language: locale.Gujarati, Image: img})
		require.NoError(t, err)
		data := res.Data.(DiseaseData)
		assert.NotNil(t, data.Predictions)
		assert.Empty(t, data.Predictions)
		assert.Equal(t, h.lexicon.Message(lexicon.MsgNoDisease, locale.Gujarati), data.Response)
	})

	t.Run("unsupported image", func(t *testing.T) {
		h := newHarness(t, false, nil)
		h.disease.err = fmt.Errorf("decode: %w", disease.ErrUnsupportedImage)
		_, err := h.svc.Handle(ctx, Request{Image: img})
		appErr := requireAppError(t, err, apperrors.ErrCodeUnsupportedMedia)
		assert.Equal(t, h.lexicon.Message(lexicon.MsgUnsupportedImage, locale.English), appErr.Context["error"])
		assert.Equal(t, int64(1), h.metrics.Snapshot().Upstream["disease"].Errors)
	})

	t.Run("not configured", func(t *testing.T) {
		h := newHarness(t, false, func(c *Config) { c.Disease = nil })
		_, err := h.svc.Handle(ctx, Request{Image: img})
		requireAppError(t, err, apperrors.ErrCodeServiceUnavailable)
		assert.NotContains(t, h.metrics.Snapshot().Upstream, "disease")
	})

	t.Run("model not configured", func(t *testing.T) {
		h := newHarness(t, false, nil)
		h.disease.err = disease.ErrNotConfigured
		_, err := h.svc.Handle(ctx, Request{Image: img})
		requireAppError(t, err, apperrors.ErrCodeServiceUnavailable)
		up := h.metrics.Snapshot().Upstream["disease"]
		require.NotNil(t, up)
		assert.Equal(t, int64(1), up.Calls)
		assert.Equal(t, int64(1), up.Errors)
	})

	t.Run("model failure", func(t *testing.T) {
		h := newHarness(t, false, nil)
		h.disease.err = errors.New("throttled")
		_, err := h.svc.Handle(ctx, Request{Image: img})
		requireAppError(t, err, apperrors.ErrCodeUpstreamFailed)
		assert.Equal(t, int64(1), h.metrics.Snapshot().Upstream["disease"].Errors)
	})

	t.Run("every outcome is counted", func(t *testing.T) {
		h := newHarness(t, false, nil)
		_, err := h.svc.Handle(ctx, Request{Image: img})
		require.NoError(t, err)
		h.disease.err = disease.ErrUnsupportedImage
		_, err = h.svc.Handle(ctx, Request{Image: img})
		require.Error(t, err)

		up := h.metrics.Snapshot().Upstream["disease"]
		require.NotNil(t, up)
		assert.Equal(t, int64(2), up.Calls)
		assert.Equal(t, int64(1), up.Errors)
	})
}

func TestNewService_Errors(t *testing.T) {
	_, err := NewService(Config{})
	assert.Error(t, err)

	_, err = NewService(Config{Router: router.NewMockRouterService()})
	assert.Error(t, err)
}
