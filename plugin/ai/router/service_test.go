package router

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/agrisense/plugin/ai/gazetteer"
	"github.com/hrygo/agrisense/plugin/ai/lexicon"
	"github.com/hrygo/agrisense/plugin/ai/locale"
	"github.com/hrygo/agrisense/plugin/ai/resolver"
)

func newTestService(t testing.TB, chatOnlyGate bool) *Service {
	t.Helper()
	lex, err := lexicon.Default()
	require.NoError(t, err)
	g, err := gazetteer.Default()
	require.NoError(t, err)
	res, err := resolver.New(g, resolver.DefaultConfig())
	require.NoError(t, err)
	svc, err := NewService(Config{Lexicon: lex, Resolver: res, ChatOnlyGate: chatOnlyGate})
	require.NoError(t, err)
	return svc
}

func TestRuleMatcher_Intent(t *testing.T) {
	svc := newTestService(t, false)

	tests := []struct {
		name           string
		input          string
		expectedIntent Intent
	}{
		{"Weather english", "will it rain in surat", IntentWeather},
		{"Weather hindi", "राजकोट का मौसम", IntentWeather},
		{"Weather gujarati", "અમદાવાદ હવામાન", IntentWeather},
		{"Weather beats commodity", "rain price in Ahmedabad", IntentWeather},
		{"Commodity english", "onion price in rajkot", IntentCommodity},
		{"Commodity hindi", "कपास का दाम", IntentCommodity},
		{"Bare crop", "tomato in rajkot", IntentCommodity},
		{"Bare crop single word", "onion", IntentCommodity},
		{"Bare gujarati crop", "બટાટા", IntentCommodity},
		{"Gujarati crop and district", "ટમેટા રાજકોટ", IntentCommodity},
		{"Hindi crop", "आलू", IntentCommodity},
		{"Allowed chat", "how to improve soil fertility", IntentChat},
		{"Restricted beats allowed", "tell me a joke about mandi prices", IntentRestricted},
		{"No allowed topic", "hello there", IntentRestricted},
		{"Empty", "", IntentRestricted},
		{"Punctuation only", "?!...", IntentRestricted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := svc.ClassifyIntent(context.Background(), tt.input)
			assert.Equal(t, tt.expectedIntent, c.Intent)
		})
	}
}

func TestRuleMatcher_ChatOnlyGate(t *testing.T) {
	strict := newTestService(t, false)
	chatOnly := newTestService(t, true)
	ctx := context.Background()

	c := strict.ClassifyIntent(ctx, "cricket weather in surat")
	assert.Equal(t, IntentRestricted, c.Intent)
	assert.Equal(t, "cricket", c.Keyword)

	c = chatOnly.ClassifyIntent(ctx, "cricket weather in surat")
	assert.Equal(t, IntentWeather, c.Intent)

	for text, keyword := range map[string]string{
		"rain forecast in Rajkot, any news?": "news",
		"weather for my travel to Surat":     "travel",
	} {
		c = strict.ClassifyIntent(ctx, text)
		assert.Equal(t, IntentRestricted, c.Intent, text)
		assert.Equal(t, keyword, c.Keyword, text)

		c = chatOnly.ClassifyIntent(ctx, text)
		assert.Equal(t, IntentWeather, c.Intent, text)
	}

	// Within chat the restricted table still wins.
	c = chatOnly.ClassifyIntent(ctx, "tell me a joke about soil")
	assert.Equal(t, IntentRestricted, c.Intent)
	assert.Equal(t, "joke", c.Keyword)
}

func TestService_Route(t *testing.T) {
	svc := newTestService(t, false)

	tests := []struct {
		name      string
		text      string
		lang      locale.Language
		intent    Intent
		action    Action
		district  string
		commodity string
	}{
		{"Misspelled district weather", "rajcot weather", locale.English, IntentWeather, ActionAnswer, "Rajkot", ""},
		{"Transliterated commodity", "tamatar price", locale.Hindi, IntentCommodity, ActionAnswer, "", "Tomato"},
		{"Weather priority", "rain price in Ahmedabad", locale.English, IntentWeather, ActionAnswer, "Ahmedabad", ""},
		{"Restricted topic", "tell me a joke about mandi prices", locale.English, IntentRestricted, ActionReject, "", ""},
		{"Hindi weather", "राजकोट का मौसम", locale.Hindi, IntentWeather, ActionAnswer, "Rajkot", ""},
		{"Gujarati weather", "અમદાવાદ હવામાન", locale.Gujarati, IntentWeather, ActionAnswer, "Ahmedabad", ""},
		{"Plural keyword", "potato prices in rajkot", locale.English, IntentCommodity, ActionAnswer, "Rajkot", "Potato"},
		{"District only price", "price in ahmedabad", locale.English, IntentCommodity, ActionAnswer, "Ahmedabad", ""},
		{"Gujarati commodity", "બટાટા બજાર", locale.Gujarati, IntentCommodity, ActionAnswer, "", "Potato"},
		{"Crop name without price word", "tomato in rajkot", locale.English, IntentCommodity, ActionAnswer, "Rajkot", "Tomato"},
		{"Single crop name", "onion", locale.English, IntentCommodity, ActionAnswer, "", "Onion"},
		{"Gujarati crop name", "બટાટા", locale.Gujarati, IntentCommodity, ActionAnswer, "", "Potato"},
		{"Gujarati crop and district", "ટમેટા રાજકોટ", locale.Gujarati, IntentCommodity, ActionAnswer, "Rajkot", "Tomato"},
		{"Chat", "tell me about crop rotation", locale.English, IntentChat, ActionDelegateToChat, "", ""},
		{"Off topic", "hello there", locale.English, IntentRestricted, ActionReject, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := svc.Route(context.Background(), Request{Text: tt.text, Language: tt.lang})
			require.NotNil(t, d)
			assert.Equal(t, tt.intent, d.Intent)
			assert.Equal(t, tt.action, d.Action)
			assert.Equal(t, tt.district, d.DistrictID())
			assert.Equal(t, tt.commodity, d.CommodityID())
			assert.Equal(t, tt.lang, d.Language)
		})
	}
}

func TestService_Route_ResolutionDetails(t *testing.T) {
	svc := newTestService(t, false)
	ctx := context.Background()

	t.Run("confirmed district", func(t *testing.T) {
		d := svc.Route(ctx, Request{Text: "rajcot weather", Language: locale.English})
		require.NotNil(t, d.District)
		assert.Nil(t, d.Commodity)
		assert.Equal(t, resolver.TierConfirmed, d.District.Tier)
		assert.GreaterOrEqual(t, d.District.Confidence(), 0.85)
		assert.Equal(t, "rajcot", d.Query)
		assert.Nil(t, d.Clarification())
	})

	t.Run("tentative district", func(t *testing.T) {
		d := svc.Route(ctx, Request{Text: "weather in rajkxyz", Language: locale.English})
		assert.Equal(t, ActionClarify, d.Action)
		require.NotNil(t, d.Clarification())
		assert.Equal(t, "Rajkot", d.Clarification().ID())
		assert.Equal(t, resolver.TierTentative, d.Clarification().Tier)
		assert.Equal(t, "", d.DistrictID())
	})

	t.Run("tentative commodity", func(t *testing.T) {
		d := svc.Route(ctx, Request{Text: "tomxyz price", Language: locale.English})
		assert.Equal(t, IntentCommodity, d.Intent)
		assert.Equal(t, ActionClarify, d.Action)
		require.NotNil(t, d.Clarification())
		assert.Equal(t, gazetteer.Commodity, d.Clarification().Kind)
		assert.Equal(t, "Tomato", d.Clarification().ID())
	})

	t.Run("unknown place", func(t *testing.T) {
		d := svc.Route(ctx, Request{Text: "weather in qqqq", Language: locale.Gujarati})
		assert.Equal(t, ActionReject, d.Action)
		require.NotNil(t, d.District)
		assert.Equal(t, resolver.TierNotFound, d.District.Tier)
		assert.Nil(t, d.District.Candidate)
		assert.Equal(t,
			[]string{"અમદાવાદ", "સુરત", "વડોદરા", "રાજકોટ", "ગાંધીનગર", "જામનગર"},
			d.District.Suggestions)
	})

	t.Run("no entity at all", func(t *testing.T) {
		d := svc.Route(ctx, Request{Text: "mandi prices", Language: locale.English})
		assert.Equal(t, IntentCommodity, d.Intent)
		assert.Equal(t, ActionReject, d.Action)
		assert.Equal(t, "", d.Query)
	})
}

func TestService_Route_Image(t *testing.T) {
	svc := newTestService(t, false)

	d := svc.Route(context.Background(), Request{Text: "tell me a joke", Language: locale.Hindi, HasImage: true})
	assert.Equal(t, IntentDisease, d.Intent)
	assert.Equal(t, ActionDetectDisease, d.Action)
	assert.Equal(t, locale.Hindi, d.Language)
	assert.Nil(t, d.District)
}

func TestService_Route_DefaultLanguage(t *testing.T) {
	svc := newTestService(t, false)

	d := svc.Route(context.Background(), Request{Text: "rajkot weather"})
	assert.Equal(t, locale.English, d.Language)
}

func TestService_Route_Deterministic(t *testing.T) {
	svc := newTestService(t, false)
	ctx := context.Background()

	for _, text := range []string{"rajcot weather", "tomxyz price", "weather in qqqq", "कपास का दाम"} {
		first := svc.Route(ctx, Request{Text: text, Language: locale.English})
		second := svc.Route(ctx, Request{Text: text, Language: locale.English})
		assert.Equal(t, first, second, "text %q", text)
	}
}

func TestService_EntityQuery(t *testing.T) {
	svc := newTestService(t, false)

	assert.Equal(t, "rajkot in rajkot", svc.entityQuery("rajkot weather prices rainfall in rajkot"))
	assert.Equal(t, "", svc.entityQuery("weather price"))
	assert.Equal(t, "राजकोट का", svc.entityQuery("राजकोट का मौसम"))
	assert.Equal(t, "tomato in rajkot", svc.entityQuery("tomato in rajkot"))
	assert.Equal(t, "tomatoes in rajkot", svc.entityQuery("tomatoes prices in rajkot"))
	assert.Equal(t, "બટાટા", svc.entityQuery("બટાટા"))
}

func TestDecision_JSON(t *testing.T) {
	svc := newTestService(t, false)

	d := svc.Route(context.Background(), Request{Text: "rajcot weather", Language: locale.English})
	data, err := json.Marshal(d)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "weather", out["intent"])
	assert.Equal(t, "answer", out["action"])
	assert.Equal(t, "en", out["language"])
	district, ok := out["district"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "confirmed", district["tier"])
	candidate, ok := district["candidate"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Rajkot", candidate["canonical_id"])
	assert.NotContains(t, out, "commodity")
}

func TestNewService_Errors(t *testing.T) {
	_, err := NewService(Config{})
	assert.Error(t, err)

	lex, err := lexicon.Default()
	require.NoError(t, err)
	_, err = NewService(Config{Lexicon: lex})
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "રાજ...", truncate("રાજકોટ", 3))
}

func BenchmarkRoute(b *testing.B) {
	svc := newTestService(b, false)
	ctx := context.Background()
	req := Request{Text: "what is the tamatar price in rajcot mandi today", Language: locale.English}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		svc.Route(ctx, req)
	}
}

func BenchmarkClassifyIntent(b *testing.B) {
	svc := newTestService(b, false)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		svc.ClassifyIntent(ctx, "rain price in Ahmedabad")
	}
}
