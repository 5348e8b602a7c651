package profile

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/agrisense/plugin/ai/locale"
	"github.com/hrygo/agrisense/plugin/ai/resolver"
)

// EnvPrefix prefixes every environment variable the profile reads.
const EnvPrefix = "AGRISENSE_"

// Profile is the configuration to start the assistant.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Version is the current version of server
	Version string
	// DefaultLanguage is used when a request names no language.
	DefaultLanguage string

	// Data overrides
	GazetteerPath string // AGRISENSE_GAZETTEER_PATH (default: embedded)
	LexiconPath   string // AGRISENSE_LEXICON_PATH (default: embedded)

	// Routing
	StrictGate               bool    // AGRISENSE_STRICT_GATE (default: true)
	ConfirmedFloor           float64 // AGRISENSE_CONFIRMED_FLOOR (default: 0.7)
	TentativeFloor           float64 // AGRISENSE_TENTATIVE_FLOOR (default: 0.4)
	LongSubstringConfidence  float64 // AGRISENSE_LONG_SUBSTRING_CONFIDENCE (default: 0.95)
	ShortSubstringConfidence float64 // AGRISENSE_SHORT_SUBSTRING_CONFIDENCE (default: 0.85)
	PhoneticConfidence       float64 // AGRISENSE_PHONETIC_CONFIDENCE (default: 0.9)
	MinTokenRunes            int     // AGRISENSE_MIN_TOKEN_RUNES (default: 3)
	MinFragmentRunes         int     // AGRISENSE_MIN_FRAGMENT_RUNES (default: 3)

	// LLM (chat and translation)
	LLMBaseURL string // AGRISENSE_LLM_BASE_URL (default: https://api.openai.com/v1)
	LLMAPIKey  string // AGRISENSE_LLM_API_KEY
	LLMModel   string // AGRISENSE_LLM_MODEL (default: gpt-4o-mini)

	// Collaborators
	WeatherBaseURL       string  // AGRISENSE_WEATHER_BASE_URL (default: Open-Meteo)
	MandiAPIKey          string  // AGRISENSE_MANDI_API_KEY
	MandiResourceURL     string  // AGRISENSE_MANDI_RESOURCE_URL (default: data.gov.in daily prices)
	AWSRegion            string  // AGRISENSE_AWS_REGION (default: ap-south-1)
	DiseaseModelARN      string  // AGRISENSE_DISEASE_MODEL_ARN
	DiseaseMinConfidence float64 // AGRISENSE_DISEASE_MIN_CONFIDENCE (default: 0, model threshold)

	// Serving
	RateLimitRPS    float64       // AGRISENSE_RATE_LIMIT_RPS (default: 10)
	RateLimitBurst  int           // AGRISENSE_RATE_LIMIT_BURST (default: 20)
	CacheCapacity   int           // AGRISENSE_CACHE_CAPACITY (default: 1000)
	WeatherCacheTTL time.Duration // AGRISENSE_WEATHER_CACHE_TTL (default: 10m)
	MandiCacheTTL   time.Duration // AGRISENSE_MANDI_CACHE_TTL (default: 30m)
}

// Default returns a profile with every default applied.
func Default() *Profile {
	rc := resolver.DefaultConfig()
	return &Profile{
		Mode:                     "dev",
		Addr:                     "",
		Port:                     8080,
		Version:                  "dev",
		DefaultLanguage:          string(locale.Default),
		StrictGate:               true,
		ConfirmedFloor:           rc.ConfirmedFloor,
		TentativeFloor:           rc.TentativeFloor,
		LongSubstringConfidence:  rc.LongSubstringConfidence,
		ShortSubstringConfidence: rc.ShortSubstringConfidence,
		PhoneticConfidence:       rc.PhoneticConfidence,
		MinTokenRunes:            rc.MinTokenRunes,
		MinFragmentRunes:         rc.MinFragmentRunes,
		LLMBaseURL:               "https://api.openai.com/v1",
		LLMModel:                 "gpt-4o-mini",
		WeatherBaseURL:           "https://api.open-meteo.com/v1/forecast",
		MandiResourceURL:         "https://api.data.gov.in/resource/35985678-0d79-46b4-9ed6-6f13308a1d24",
		AWSRegion:                "ap-south-1",
		RateLimitRPS:             10,
		RateLimitBurst:           20,
		CacheCapacity:            1000,
		WeatherCacheTTL:          10 * time.Minute,
		MandiCacheTTL:            30 * time.Minute,
	}
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsChatEnabled returns true if an LLM API key is configured.
func (p *Profile) IsChatEnabled() bool {
	return p.LLMAPIKey != ""
}

// IsMandiEnabled returns true if a data.gov.in API key is configured.
func (p *Profile) IsMandiEnabled() bool {
	return p.MandiAPIKey != ""
}

// IsDiseaseEnabled returns true if a disease model is configured.
func (p *Profile) IsDiseaseEnabled() bool {
	return p.DiseaseModelARN != ""
}

// Language returns the default reply language.
func (p *Profile) Language() locale.Language {
	return locale.Parse(p.DefaultLanguage)
}

// ResolverConfig returns the resolver thresholds.
func (p *Profile) ResolverConfig() resolver.Config {
	cfg := resolver.DefaultConfig()
	cfg.ConfirmedFloor = p.ConfirmedFloor
	cfg.TentativeFloor = p.TentativeFloor
	cfg.LongSubstringConfidence = p.LongSubstringConfidence
	cfg.ShortSubstringConfidence = p.ShortSubstringConfidence
	cfg.PhoneticConfidence = p.PhoneticConfidence
	cfg.MinTokenRunes = p.MinTokenRunes
	cfg.MinFragmentRunes = p.MinFragmentRunes
	return cfg
}

// FromEnv overrides fields with the AGRISENSE_* variables that are set.
// Unparsable values are logged and ignored.
func (p *Profile) FromEnv() {
	str := func(key string, dst *string) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *float64) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				slog.Warn("ignoring invalid environment value", slog.String("key", EnvPrefix+key), slog.String("value", v))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				slog.Warn("ignoring invalid environment value", slog.String("key", EnvPrefix+key), slog.String("value", v))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				slog.Warn("ignoring invalid environment value", slog.String("key", EnvPrefix+key), slog.String("value", v))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				slog.Warn("ignoring invalid environment value", slog.String("key", EnvPrefix+key), slog.String("value", v))
				return
			}
			*dst = d
		}
	}

	str("MODE", &p.Mode)
	str("ADDR", &p.Addr)
	integer("PORT", &p.Port)
	str("DEFAULT_LANGUAGE", &p.DefaultLanguage)
	str("GAZETTEER_PATH", &p.GazetteerPath)
	str("LEXICON_PATH", &p.LexiconPath)

	boolean("STRICT_GATE", &p.StrictGate)
	num("CONFIRMED_FLOOR", &p.ConfirmedFloor)
	num("TENTATIVE_FLOOR", &p.TentativeFloor)
	num("LONG_SUBSTRING_CONFIDENCE", &p.LongSubstringConfidence)
	num("SHORT_SUBSTRING_CONFIDENCE", &p.ShortSubstringConfidence)
	num("PHONETIC_CONFIDENCE", &p.PhoneticConfidence)
	integer("MIN_TOKEN_RUNES", &p.MinTokenRunes)
	integer("MIN_FRAGMENT_RUNES", &p.MinFragmentRunes)

	str("LLM_BASE_URL", &p.LLMBaseURL)
	str("LLM_API_KEY", &p.LLMAPIKey)
	str("LLM_MODEL", &p.LLMModel)

	str("WEATHER_BASE_URL", &p.WeatherBaseURL)
	str("MANDI_API_KEY", &p.MandiAPIKey)
	str("MANDI_RESOURCE_URL", &p.MandiResourceURL)
	str("AWS_REGION", &p.AWSRegion)
	str("DISEASE_MODEL_ARN", &p.DiseaseModelARN)
	num("DISEASE_MIN_CONFIDENCE", &p.DiseaseMinConfidence)

	num("RATE_LIMIT_RPS", &p.RateLimitRPS)
	integer("RATE_LIMIT_BURST", &p.RateLimitBurst)
	integer("CACHE_CAPACITY", &p.CacheCapacity)
	duration("WEATHER_CACHE_TTL", &p.WeatherCacheTTL)
	duration("MANDI_CACHE_TTL", &p.MandiCacheTTL)
}

func (p *Profile) Validate() error {
	p.Mode = strings.ToLower(strings.TrimSpace(p.Mode))
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}
	if p.Port <= 0 || p.Port > 65535 {
		return errors.Errorf("invalid port %d", p.Port)
	}
	p.DefaultLanguage = string(p.Language())

	if err := p.ResolverConfig().Validate(); err != nil {
		return errors.Wrap(err, "invalid resolver thresholds")
	}
	if p.RateLimitRPS <= 0 || p.RateLimitBurst <= 0 {
		return errors.Errorf("rate limit must be positive, got %v rps burst %d", p.RateLimitRPS, p.RateLimitBurst)
	}
	if p.CacheCapacity <= 0 {
		return errors.Errorf("invalid cache capacity %d", p.CacheCapacity)
	}
	if p.WeatherCacheTTL <= 0 || p.MandiCacheTTL <= 0 {
		return errors.New("cache ttl must be positive")
	}
	if p.DiseaseMinConfidence < 0 || p.DiseaseMinConfidence > 100 {
		return errors.Errorf("disease min confidence %v out of range [0, 100]", p.DiseaseMinConfidence)
	}

	if err := checkDataFile("gazetteer", p.GazetteerPath); err != nil {
		return err
	}
	return checkDataFile("lexicon", p.LexiconPath)
}

// checkDataFile accepts an empty path, meaning the embedded data.
func checkDataFile(name, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return errors.Wrapf(err, "unable to access %s file %s", name, path)
	}
	return nil
}
