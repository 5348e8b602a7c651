package main

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/hrygo/agrisense/internal/profile"
	"github.com/hrygo/agrisense/plugin/ai/chat"
	"github.com/hrygo/agrisense/plugin/ai/gazetteer"
	"github.com/hrygo/agrisense/plugin/ai/lexicon"
	"github.com/hrygo/agrisense/plugin/ai/llm"
	"github.com/hrygo/agrisense/plugin/ai/resolver"
	"github.com/hrygo/agrisense/plugin/ai/router"
	"github.com/hrygo/agrisense/plugin/ai/translate"
	"github.com/hrygo/agrisense/plugin/cache"
	"github.com/hrygo/agrisense/plugin/disease"
	"github.com/hrygo/agrisense/plugin/mandi"
	"github.com/hrygo/agrisense/plugin/weather"
	"github.com/hrygo/agrisense/server/service/assistant"
)

// loadProfile layers defaults, AGRISENSE_* variables, and the viper keys set
// by flags, env or the config file, in that order.
func loadProfile() (*profile.Profile, error) {
	p := profile.Default()
	p.Version = version
	p.FromEnv()

	str := map[string]*string{
		"mode":               &p.Mode,
		"addr":               &p.Addr,
		"default_language":   &p.DefaultLanguage,
		"gazetteer_path":     &p.GazetteerPath,
		"lexicon_path":       &p.LexiconPath,
		"llm.base_url":       &p.LLMBaseURL,
		"llm.api_key":        &p.LLMAPIKey,
		"llm.model":          &p.LLMModel,
		"weather.base_url":   &p.WeatherBaseURL,
		"mandi.api_key":      &p.MandiAPIKey,
		"mandi.resource_url": &p.MandiResourceURL,
		"aws.region":         &p.AWSRegion,
		"disease.model_arn":  &p.DiseaseModelARN,
	}
	for key, dst := range str {
		if viper.IsSet(key) && viper.GetString(key) != "" {
			*dst = viper.GetString(key)
		}
	}
	if viper.IsSet("port") {
		p.Port = viper.GetInt("port")
	}
	if viper.IsSet("strict_gate") {
		p.StrictGate = viper.GetBool("strict_gate")
	}
	if viper.IsSet("rate_limit.rps") {
		p.RateLimitRPS = viper.GetFloat64("rate_limit.rps")
	}
	if viper.IsSet("rate_limit.burst") {
		p.RateLimitBurst = viper.GetInt("rate_limit.burst")
	}
	if viper.IsSet("disease.min_confidence") {
		p.DiseaseMinConfidence = viper.GetFloat64("disease.min_confidence")
	}

	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid profile")
	}
	return p, nil
}

// newRouter loads the data tables and builds the routing core.
func newRouter(p *profile.Profile) (*router.Service, error) {
	lex, err := loadLexicon(p.LexiconPath)
	if err != nil {
		return nil, err
	}
	g, err := loadGazetteer(p.GazetteerPath)
	if err != nil {
		return nil, err
	}
	res, err := resolver.New(g, p.ResolverConfig())
	if err != nil {
		return nil, errors.Wrap(err, "failed to build resolver")
	}
	return router.NewService(router.Config{
		Lexicon:      lex,
		Resolver:     res,
		ChatOnlyGate: !p.StrictGate,
	})
}

func loadLexicon(path string) (*lexicon.Set, error) {
	if path == "" {
		return lexicon.Default()
	}
	return lexicon.LoadFile(path)
}

func loadGazetteer(path string) (*gazetteer.Gazetteer, error) {
	if path == "" {
		return gazetteer.Default()
	}
	return gazetteer.LoadFile(path)
}

// newAssistant wires the collaborators the profile enables. Disabled ones
// stay nil and their requests fail with SERVICE_UNAVAILABLE.
func newAssistant(ctx context.Context, p *profile.Profile, routerService *router.Service, c *cache.Service) (*assistant.Service, error) {
	weatherConfig := weather.DefaultConfig()
	weatherConfig.BaseURL = p.WeatherBaseURL
	weatherConfig.CacheTTL = p.WeatherCacheTTL

	cfg := assistant.Config{
		Router:    routerService,
		Lexicon:   routerService.Lexicon(),
		Gazetteer: routerService.Gazetteer(),
		Weather:   weather.NewClient(weatherConfig, c),
	}

	if p.IsMandiEnabled() {
		mandiConfig := mandi.DefaultConfig()
		mandiConfig.APIKey = p.MandiAPIKey
		mandiConfig.BaseURL = p.MandiResourceURL
		mandiConfig.CacheTTL = p.MandiCacheTTL
		prices, err := mandi.NewClient(mandiConfig, c)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create mandi client")
		}
		cfg.Prices = prices
	} else {
		slog.Info("mandi prices disabled, AGRISENSE_MANDI_API_KEY is not set")
	}

	var chatClient llm.ChatClient
	if p.IsChatEnabled() {
		llmConfig := llm.DefaultConfig()
		llmConfig.BaseURL = p.LLMBaseURL
		llmConfig.APIKey = p.LLMAPIKey
		llmConfig.Model = p.LLMModel
		provider, err := llm.NewProvider(llmConfig)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create llm provider")
		}
		chatClient = provider
		cfg.Translator = translate.NewLLMTranslator(provider)
	} else {
		slog.Info("chat and translation disabled, AGRISENSE_LLM_API_KEY is not set")
	}
	chatService, err := chat.NewService(chat.Config{Client: chatClient, Lexicon: routerService.Lexicon()})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create chat service")
	}
	cfg.Chat = chatService

	if p.IsDiseaseEnabled() {
		detector, err := disease.NewRekognitionDetector(ctx, disease.RekognitionConfig{
			Region:            p.AWSRegion,
			ProjectVersionARN: p.DiseaseModelARN,
			MinConfidence:     p.DiseaseMinConfidence,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create disease detector")
		}
		cfg.Disease = disease.NewService(detector)
	} else {
		slog.Info("disease detection disabled, AGRISENSE_DISEASE_MODEL_ARN is not set")
	}

	return assistant.NewService(cfg)
}
