package v1

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/agrisense/internal/profile"
	"github.com/hrygo/agrisense/plugin/ai/lexicon"
	"github.com/hrygo/agrisense/plugin/ai/router"
	"github.com/hrygo/agrisense/plugin/cache"
	apperrors "github.com/hrygo/agrisense/server/internal/errors"
	"github.com/hrygo/agrisense/server/internal/observability"
	ratelimit "github.com/hrygo/agrisense/server/middleware"
	"github.com/hrygo/agrisense/server/service/assistant"
)

// Handler is the slice of the assistant service the API needs.
type Handler interface {
	Handle(ctx context.Context, req assistant.Request) (*assistant.Result, error)
}

type APIV1Service struct {
	Profile     *profile.Profile
	Assistant   Handler
	Router      router.RouterService
	Lexicon     *lexicon.Set
	Metrics     *observability.Metrics
	RateLimiter *ratelimit.RateLimiter
	// Cache is optional; its stats are reported by the metrics endpoint.
	Cache *cache.Service
}

// Envelope is the body of every response.
type Envelope struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
	Status  int    `json:"status"`
}

func NewAPIV1Service(profile *profile.Profile, handler Handler, routerService router.RouterService, lex *lexicon.Set) *APIV1Service {
	return &APIV1Service{
		Profile:     profile,
		Assistant:   handler,
		Router:      routerService,
		Lexicon:     lex,
		Metrics:     observability.GlobalMetrics(),
		RateLimiter: ratelimit.NewRateLimiter(profile.RateLimitRPS, profile.RateLimitBurst),
	}
}

// RegisterRoutes installs the middleware chain, the error handler and every
// route on e.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.HTTPErrorHandler

	e.Use(middleware.Recover())
	e.Use(s.requestContext)
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderXRequestID},
	}))

	e.GET("/", s.GetServiceInfo)
	e.GET("/healthz", s.GetHealth)
	e.GET("/health", s.GetHealth)

	api := e.Group("/api/v1")
	api.GET("/metrics", s.GetMetricsOverview)
	limited := api.Group("", s.RateLimiter.Middleware())
	limited.POST("/assistant", s.PostAssistant)
	limited.POST("/route", s.PostRoute)

	// Path used by existing mobile clients.
	e.POST("/smart_assistant", s.PostAssistant, s.RateLimiter.Middleware())
}

// bodyLimit leaves room for a base64 encoded image at the upload ceiling.
const bodyLimit = "8M"

// requestContext attaches a RequestContext to every request and writes one
// access log line when the handler returns.
func (s *APIV1Service) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		reqCtx := observability.NewRequestContextWithID(slog.Default(), req.Header.Get(echo.HeaderXRequestID), c.Path())
		c.Response().Header().Set(echo.HeaderXRequestID, reqCtx.RequestID)
		c.SetRequest(req.WithContext(observability.WithRequestContext(req.Context(), reqCtx)))

		err := next(c)
		if err != nil {
			c.Error(err)
		}
		reqCtx.Debug("http request",
			slog.String("method", req.Method),
			slog.Int("status", c.Response().Status),
			slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))
		return nil
	}
}

// HTTPErrorHandler renders every failure in the response envelope. The
// user-facing text comes from the AppError's "error" context when present.
func (s *APIV1Service) HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Failed to process request"
	code := string(apperrors.ErrCodeInternal)
	detail := message

	var he *echo.HTTPError
	if appErr, ok := apperrors.As(err); ok {
		status = appErr.HTTPStatus()
		message = appErr.Message
		code = string(appErr.Code)
		detail = appErr.Message
		if text, ok := appErr.Context["error"].(string); ok && text != "" {
			detail = text
		}
	} else if stderrors.As(err, &he) {
		status = he.Code
		message = http.StatusText(he.Code)
		code = http.StatusText(he.Code)
		detail = message
		if m, ok := he.Message.(string); ok && m != "" {
			detail = m
		}
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		status = apperrors.ErrCodeTimeout.HTTPStatus()
		code = string(apperrors.ErrCodeTimeout)
	}

	logger := observability.LoggerFromContext(c.Request().Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, observability.LogFieldErrorCode, code, "error", err)
	} else {
		logger.Debug("request rejected", "status", status, observability.LogFieldErrorCode, code, "error", err)
	}

	body := Envelope{
		Message: message,
		Data:    map[string]any{"error": detail, "code": code},
		Status:  status,
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		logger.Warn("failed to write error response", "error", err)
	}
}

// ServiceInfo describes the running service.
type ServiceInfo struct {
	Name               string   `json:"name"`
	Version            string   `json:"version"`
	Description        string   `json:"description"`
	MainEndpoint       string   `json:"main_endpoint"`
	SupportedLanguages []string `json:"supported_languages"`
	Features           []string `json:"features"`
	Collaborators      []string `json:"collaborators"`
}

const serviceName = "Gujarat Smart Assistant API with Disease Detection"

// GetServiceInfo handles GET /.
func (s *APIV1Service) GetServiceInfo(c echo.Context) error {
	info := ServiceInfo{
		Name:               serviceName,
		Version:            s.Profile.Version,
		Description:        "Intelligent API for Gujarat agriculture: weather, commodity prices and disease detection with pronunciation tolerant district and crop matching",
		MainEndpoint:       "/api/v1/assistant",
		SupportedLanguages: []string{"English (en)", "Hindi (hi)", "Gujarati (gu)"},
		Features: []string{
			"Enhanced pronunciation recognition for district names",
			"Improved date filtering for commodity prices",
			"Better Gujarati language support for vegetable queries",
			"Weather information for Gujarat districts",
			"Recent commodity/Mandi price information",
			"Vegetable disease detection using AI",
			"Multi-language support with proper translation",
			"Fuzzy district name matching for voice input",
		},
		Collaborators: s.enabledCollaborators(),
	}
	return respond(c, http.StatusOK, serviceName, info)
}

func (s *APIV1Service) enabledCollaborators() []string {
	enabled := []string{"weather"}
	if s.Profile.IsMandiEnabled() {
		enabled = append(enabled, "mandi")
	}
	if s.Profile.IsChatEnabled() {
		enabled = append(enabled, "chat", "translate")
	}
	if s.Profile.IsDiseaseEnabled() {
		enabled = append(enabled, "disease")
	}
	return enabled
}

// GetHealth handles GET /healthz and GET /health.
func (s *APIV1Service) GetHealth(c echo.Context) error {
	return respond(c, http.StatusOK, "Service is healthy", map[string]string{"status": "UP"})
}

func respond(c echo.Context, status int, message string, data any) error {
	if data == nil {
		data = map[string]any{}
	}
	return c.JSON(status, Envelope{Message: message, Data: data, Status: status})
}
