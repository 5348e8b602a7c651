package v1

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/agrisense/plugin/ai/lexicon"
	"github.com/hrygo/agrisense/plugin/ai/locale"
	"github.com/hrygo/agrisense/plugin/ai/router"
	"github.com/hrygo/agrisense/plugin/ai/timeout"
	"github.com/hrygo/agrisense/plugin/disease"
	apperrors "github.com/hrygo/agrisense/server/internal/errors"
	"github.com/hrygo/agrisense/server/service/assistant"
)

// AssistantRequest is the JSON or form body of an assistant query.
type AssistantRequest struct {
	Text     string `json:"text" form:"text"`
	Language string `json:"language" form:"language"`
	// Image is a base64 encoded PNG or JPEG, optionally as a data URL.
	Image string `json:"image" form:"image"`
}

// PostAssistant handles POST /api/v1/assistant.
// Multipart uploads carry the photo in the "file" field.
func (s *APIV1Service) PostAssistant(c echo.Context) error {
	var body AssistantRequest
	if err := c.Bind(&body); err != nil {
		return apperrors.InvalidArgument("Invalid request body").WithContext("error", err.Error())
	}
	lang := locale.Parse(body.Language)

	image, err := s.readImage(c, body.Image, lang)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), timeout.RequestTimeout)
	defer cancel()

	res, err := s.Assistant.Handle(ctx, assistant.Request{
		Text:     strings.TrimSpace(body.Text),
		Language: lang,
		Image:    image,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, res.Message, res.Data)
}

// readImage returns the uploaded photo, or nil when the request has none.
func (s *APIV1Service) readImage(c echo.Context, encoded string, lang locale.Language) ([]byte, error) {
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err == nil {
			f, err := fh.Open()
			if err != nil {
				return nil, apperrors.InvalidArgument("Failed to read upload").WithContext("error", err.Error())
			}
			defer f.Close()
			// One byte past the ceiling is enough for Preprocess to reject it.
			raw, err := io.ReadAll(io.LimitReader(f, disease.MaxImageBytes+1))
			if err != nil {
				return nil, apperrors.InvalidArgument("Failed to read upload").WithContext("error", err.Error())
			}
			if len(raw) == 0 {
				return nil, s.invalidImage("No file selected", lang)
			}
			return raw, nil
		}
		if !errors.Is(err, http.ErrMissingFile) {
			return nil, apperrors.InvalidArgument("Invalid multipart body").WithContext("error", err.Error())
		}
	}

	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, nil
	}
	if i := strings.Index(encoded, ";base64,"); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+len(";base64,"):]
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) == 0 {
		return nil, s.invalidImage("Invalid base64 image data", lang)
	}
	return raw, nil
}

func (s *APIV1Service) invalidImage(msg string, lang locale.Language) *apperrors.AppError {
	appErr := apperrors.InvalidArgument(msg)
	if s.Lexicon != nil {
		appErr = appErr.WithContext("error", s.Lexicon.Message(lexicon.MsgUnsupportedImage, lang))
	}
	return appErr
}

// RouteRequest is the body of POST /api/v1/route.
type RouteRequest struct {
	Text     string `json:"text" form:"text"`
	Language string `json:"language" form:"language"`
}

// PostRoute handles POST /api/v1/route: the routing decision alone, without
// calling any collaborator.
func (s *APIV1Service) PostRoute(c echo.Context) error {
	var body RouteRequest
	if err := c.Bind(&body); err != nil {
		return apperrors.InvalidArgument("Invalid request body").WithContext("error", err.Error())
	}
	if strings.TrimSpace(body.Text) == "" {
		return apperrors.InvalidArgument("No input provided")
	}

	d := s.Router.Route(c.Request().Context(), router.Request{
		Text:     body.Text,
		Language: locale.Parse(body.Language),
	})
	return respond(c, http.StatusOK, "Query routed", d)
}
