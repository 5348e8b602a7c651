// Package disease classifies vegetable leaf photos with a custom-labels
// model and reports the detected diseases in the user's language.
package disease

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/pkg/errors"

	"github.com/hrygo/agrisense/plugin/ai/locale"
	"github.com/hrygo/agrisense/plugin/ai/timeout"
)

var (
	// ErrUnsupportedImage is returned for uploads that are not a usable PNG or JPEG.
	ErrUnsupportedImage = errors.New("unsupported image")
	// ErrNotConfigured is returned when no model is configured.
	ErrNotConfigured = errors.New("disease model is not configured")
)

// IrrelevantLabel is the label the model assigns to photos it was not trained on.
const IrrelevantLabel = "Irrelevant"

// Label is one raw model label.
type Label struct {
	Name       string
	Confidence float64
}

// Prediction is a label prepared for display.
type Prediction struct {
	Label         string  `json:"label"`
	Confidence    float64 `json:"confidence"`
	OriginalLabel string  `json:"original_label"`
}

// Detector runs the classification model on a preprocessed JPEG.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]Label, error)
}

// RekognitionConfig holds the custom-labels model configuration.
type RekognitionConfig struct {
	Region            string
	ProjectVersionARN string
	// MinConfidence drops labels below this percentage. Zero uses the
	// model's own threshold.
	MinConfidence float64
}

type rekognitionAPI interface {
	DetectCustomLabels(ctx context.Context, params *rekognition.DetectCustomLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectCustomLabelsOutput, error)
}

// RekognitionDetector is a Detector backed by Rekognition Custom Labels.
type RekognitionDetector struct {
	api           rekognitionAPI
	arn           string
	minConfidence float64
}

// NewRekognitionDetector loads AWS credentials from the default chain.
func NewRekognitionDetector(ctx context.Context, cfg RekognitionConfig) (*RekognitionDetector, error) {
	if cfg.ProjectVersionARN == "" {
		return nil, ErrNotConfigured
	}
	region := cfg.Region
	if region == "" {
		region = "ap-south-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load aws config")
	}
	return &RekognitionDetector{
		api:           rekognition.NewFromConfig(awsCfg),
		arn:           cfg.ProjectVersionARN,
		minConfidence: cfg.MinConfidence,
	}, nil
}

// Detect implements Detector.
func (d *RekognitionDetector) Detect(ctx context.Context, image []byte) ([]Label, error) {
	input := &rekognition.DetectCustomLabelsInput{
		ProjectVersionArn: aws.String(d.arn),
		Image:             &types.Image{Bytes: image},
	}
	if d.minConfidence > 0 {
		input.MinConfidence = aws.Float32(float32(d.minConfidence))
	}

	out, err := d.api.DetectCustomLabels(ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, "detect custom labels")
	}

	labels := make([]Label, 0, len(out.CustomLabels))
	for _, l := range out.CustomLabels {
		labels = append(labels, Label{
			Name:       aws.ToString(l.Name),
			Confidence: float64(aws.ToFloat32(l.Confidence)),
		})
	}
	return labels, nil
}

// Service preprocesses uploads and turns model labels into predictions.
type Service struct {
	detector Detector
}

// NewService creates a disease service. A nil detector makes every call fail
// with ErrNotConfigured.
func NewService(detector Detector) *Service {
	return &Service{detector: detector}
}

// Available reports whether a model is configured.
func (s *Service) Available() bool {
	return s.detector != nil
}

// Analyze classifies one uploaded image. An empty result means the model saw
// no disease or did not recognize the photo.
func (s *Service) Analyze(ctx context.Context, raw []byte, lang locale.Language) ([]Prediction, error) {
	if s.detector == nil {
		return nil, ErrNotConfigured
	}

	img, err := Preprocess(raw)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout.DiseaseTimeout)
	defer cancel()

	start := time.Now()
	labels, err := s.detector.Detect(ctx, img)
	if err != nil {
		return nil, err
	}
	slog.Debug("disease model answered",
		"labels", len(labels),
		"input_bytes", len(raw),
		"image_bytes", len(img),
		"latency_ms", time.Since(start).Milliseconds())

	return Predictions(labels, lang), nil
}

// Predictions localizes model labels. A leading Irrelevant label discards
// the whole result.
func Predictions(labels []Label, lang locale.Language) []Prediction {
	if len(labels) == 0 || labels[0].Name == IrrelevantLabel {
		return nil
	}
	out := make([]Prediction, 0, len(labels))
	for _, l := range labels {
		out = append(out, Prediction{
			Label:         LocalizedName(l.Name, lang),
			Confidence:    l.Confidence,
			OriginalLabel: l.Name,
		})
	}
	return out
}

var diseaseNames = map[locale.Language]map[string]string{
	locale.Gujarati: {
		"Tomato Anthracnose":    "ટામેટા એન્થ્રેકનોઝ રોગ",
		"Tomato Early Blight":   "ટમેટામાં વહેલું ટપકું",
		"Tomato Powdery Mildew": "ટામેટાનો ભૂકી છારો",
	},
	locale.Hindi: {
		"Tomato Anthracnose":    "टमाटर एन्थ्रेक्नोज",
		"Tomato Early Blight":   "टमाटर का शीघ्र झुलसा रोग",
		"Tomato Powdery Mildew": "टमाटर पाउडरी फफूंदी",
	},
}

var unknownDisease = map[locale.Language]string{
	locale.Gujarati: "અપ્રસ્તુત",
	locale.Hindi:    "अप्रासंगिक",
}

// LocalizedName returns the display name of a model label. English keeps the
// label; unknown labels in other languages read as "irrelevant".
func LocalizedName(label string, lang locale.Language) string {
	names, ok := diseaseNames[lang]
	if !ok {
		return label
	}
	if n, ok := names[label]; ok {
		return n
	}
	return unknownDisease[lang]
}

// Ensure RekognitionDetector implements Detector
var _ Detector = (*RekognitionDetector)(nil)
