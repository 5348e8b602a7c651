package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/agrisense/plugin/ai/gazetteer"
	"github.com/hrygo/agrisense/plugin/ai/locale"
)

func newFixtureResolver(t testing.TB) *Resolver {
	t.Helper()
	entries := []gazetteer.Entry{
		{ID: "Rajkot", Kind: gazetteer.District, Variants: []string{"rajcot"}},
		{ID: "Surat", Kind: gazetteer.District, Names: map[locale.Language]string{locale.Gujarati: "સુરત"}},
		{ID: "Ahmedabad", Kind: gazetteer.District, Variants: []string{"amdavad"}},
		{ID: "Kutch", Kind: gazetteer.District, Variants: []string{"kachchh"}},
		{ID: "Jamnagar", Kind: gazetteer.District},
		{ID: "Bhavnagar", Kind: gazetteer.District},
		{ID: "Tomato", Kind: gazetteer.Commodity, Variants: []string{"tamatar"}},
		{ID: "Potato", Kind: gazetteer.Commodity, Variants: []string{"batata", "aloo"}},
		{ID: "Yam", Kind: gazetteer.Commodity},
	}
	popular := map[gazetteer.Kind][]string{
		gazetteer.District:  {"Surat", "Rajkot"},
		gazetteer.Commodity: {"Tomato"},
	}
	phonetic := map[gazetteer.Kind][]gazetteer.Phonetic{
		gazetteer.District: {{Key: "bhooj", ID: "Kutch"}},
	}
	g, err := gazetteer.New(entries, popular, phonetic)
	require.NoError(t, err)

	r, err := New(g, DefaultConfig())
	require.NoError(t, err)
	return r
}

func TestResolve(t *testing.T) {
	r := newFixtureResolver(t)

	tests := []struct {
		name       string
		kind       gazetteer.Kind
		input      string
		id         string
		method     Method
		tier       Tier
		confidence float64
	}{
		{"exact id", gazetteer.District, "Rajkot", "Rajkot", MethodExact, TierConfirmed, 1.0},
		{"exact variant", gazetteer.District, "  RAJCOT ", "Rajkot", MethodExact, TierConfirmed, 1.0},
		{"exact native name", gazetteer.District, "સુરત", "Surat", MethodExact, TierConfirmed, 1.0},
		{"variant inside sentence", gazetteer.District, "weather in surat today", "Surat", MethodSubstring, TierConfirmed, 0.95},
		{"short variant inside sentence", gazetteer.Commodity, "fresh yam rates", "Yam", MethodSubstring, TierConfirmed, 0.85},
		{"input inside one variant", gazetteer.District, "ahmeda", "Ahmedabad", MethodSubstring, TierConfirmed, 0.95},
		{"misspelling", gazetteer.District, "rajkoot", "Rajkot", MethodFuzzy, TierConfirmed, 12.0 / 13.0},
		{"input inside several entities", gazetteer.District, "nagar", "Jamnagar", MethodFuzzy, TierConfirmed, 10.0 / 13.0},
		{"weak match", gazetteer.District, "surxyz", "Surat", MethodFuzzy, TierTentative, 6.0 / 11.0},
		{"phonetic fallback", gazetteer.District, "bhooj", "Kutch", MethodPhonetic, TierConfirmed, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(tt.kind, tt.input, locale.English)
			require.NotNil(t, res.Candidate)
			assert.Equal(t, tt.kind, res.Kind)
			assert.Equal(t, tt.id, res.ID())
			assert.Equal(t, tt.method, res.Candidate.Method)
			assert.Equal(t, tt.tier, res.Tier)
			assert.InDelta(t, tt.confidence, res.Confidence(), 1e-9)
			assert.Empty(t, res.Suggestions)
		})
	}
}

func TestResolve_NotFound(t *testing.T) {
	r := newFixtureResolver(t)

	for _, input := range []string{"", "   ", "xqzv", "?!"} {
		res := r.Resolve(gazetteer.District, input, locale.English)
		assert.Equal(t, TierNotFound, res.Tier, "input %q", input)
		assert.Nil(t, res.Candidate)
		assert.Equal(t, "", res.ID())
		assert.Zero(t, res.Confidence())
		assert.Equal(t, []string{"Surat", "Rajkot"}, res.Suggestions)
	}

	res := r.Resolve(gazetteer.District, "xqzv", locale.Gujarati)
	assert.Equal(t, []string{"સુરત", "Rajkot"}, res.Suggestions)

	res = r.Resolve(gazetteer.Commodity, "xqzv", locale.Hindi)
	assert.Equal(t, []string{"Tomato"}, res.Suggestions)
}

func TestResolve_KindsAreSeparate(t *testing.T) {
	r := newFixtureResolver(t)

	res := r.Resolve(gazetteer.Commodity, "tamatar", locale.English)
	assert.Equal(t, "Tomato", res.ID())

	res = r.Resolve(gazetteer.District, "tamatar", locale.English)
	assert.NotEqual(t, "Tomato", res.ID())
}

func TestResolve_Idempotent(t *testing.T) {
	r := newFixtureResolver(t)

	for _, input := range []string{"rajkoot", "surxyz", "weather in surat today", "xqzv", "bhooj"} {
		first := r.Resolve(gazetteer.District, input, locale.English)
		second := r.Resolve(gazetteer.District, input, locale.English)
		assert.Equal(t, first, second, "input %q", input)
	}
}

func TestResolve_DefaultGazetteer(t *testing.T) {
	g, err := gazetteer.Default()
	require.NoError(t, err)
	r, err := New(g, DefaultConfig())
	require.NoError(t, err)

	for _, kind := range gazetteer.Kinds {
		for _, v := range g.Variants(kind) {
			res := r.Resolve(kind, v.Text, locale.English)
			require.NotNil(t, res.Candidate, "%s %q", kind, v.Text)
			assert.Equal(t, v.ID, res.ID(), "%s %q", kind, v.Text)
			assert.Equal(t, 1.0, res.Confidence())
			assert.Equal(t, MethodExact, res.Candidate.Method)

			res = r.Resolve(kind, v.Text+" qqq", locale.English)
			require.NotNil(t, res.Candidate, "%s %q with extra words", kind, v.Text)
			assert.Equal(t, v.ID, res.ID(), "%s %q with extra words", kind, v.Text)
			assert.GreaterOrEqual(t, res.Confidence(), 0.85)
			assert.Equal(t, TierConfirmed, res.Tier)
		}
	}

	res := r.Resolve(gazetteer.District, "Amdavad", locale.English)
	assert.Equal(t, "Ahmedabad", res.ID())
	res = r.Resolve(gazetteer.District, "सूरत", locale.Hindi)
	assert.Equal(t, "Surat", res.ID())
}

func TestResolver_Tier(t *testing.T) {
	r := newFixtureResolver(t)

	assert.Equal(t, TierConfirmed, r.Tier(1.0))
	assert.Equal(t, TierConfirmed, r.Tier(0.7))
	assert.Equal(t, TierTentative, r.Tier(0.69))
	assert.Equal(t, TierTentative, r.Tier(0.4))
	assert.Equal(t, TierNotFound, r.Tier(0.39))
	assert.Equal(t, TierNotFound, r.Tier(0))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"tentative above confirmed", func(c *Config) { c.TentativeFloor = 0.8 }},
		{"zero tentative", func(c *Config) { c.TentativeFloor = 0 }},
		{"confirmed above one", func(c *Config) { c.ConfirmedFloor = 1.2 }},
		{"substring below confirmed", func(c *Config) { c.ShortSubstringConfidence = 0.5 }},
		{"long below short", func(c *Config) { c.LongSubstringConfidence = 0.8 }},
		{"phonetic below confirmed", func(c *Config) { c.PhoneticConfidence = 0.6 }},
		{"no fragment limit", func(c *Config) { c.MinFragmentRunes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	assert.Error(t, err)

	g, err := gazetteer.Default()
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.TentativeFloor = 0.9
	_, err = New(g, cfg)
	assert.Error(t, err)
}

func BenchmarkResolve(b *testing.B) {
	g, err := gazetteer.Default()
	require.NoError(b, err)
	r, err := New(g, DefaultConfig())
	require.NoError(b, err)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Resolve(gazetteer.District, "rajkoot mandi bhav", locale.English)
	}
}
