package generator

import (
	"context"
	"fmt"
	"strings"

	"picturebook/internal/domain/story"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

const (
	DefaultGeminiModel = "gemini-1.5-pro"
	maxStoryWords      = 500
)

// GeminiLanguages is the fixed language list served by the in-process backend.
var GeminiLanguages = []story.LanguageCode{
	"English", "Nepali", "Hindi", "Spanish", "French",
	"Chinese", "Japanese", "Korean", "Russian", "German",
}

// contentGenerator is the slice of the genai client the service needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiService answers backend requests in-process by calling Gemini directly.
type GeminiService struct {
	models contentGenerator
	model  string
}

// NewGeminiService creates a Gemini-backed service
func NewGeminiService(ctx context.Context, apiKey, model string) (*GeminiService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return newGeminiService(client.Models, model), nil
}

func newGeminiService(models contentGenerator, model string) *GeminiService {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiService{models: models, model: model}
}

func (g *GeminiService) SupportedLanguages(ctx context.Context) ([]story.LanguageCode, error) {
	out := make([]story.LanguageCode, len(GeminiLanguages))
	copy(out, GeminiLanguages)
	return out, nil
}

func (g *GeminiService) GenerateStory(ctx context.Context, req StoryRequest) (string, error) {
	if req.Image.IsZero() {
		return "", &story.ServiceError{Message: "No image provided"}
	}
	category := strings.ToLower(req.Category)
	if category == "" {
		category = "general"
	}
	words := req.WordLimit
	if words <= 0 {
		words = story.DefaultWordLimit
	}
	words = min(words, maxStoryWords)

	prompt := fmt.Sprintf(`Create a %s story based on this image. Be concise and creative.
Requirements:
- Approximately %d words
- Match the %s theme/genre
- Keep descriptions brief but engaging`, category, words, category)

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.7),
		TopP:            genai.Ptr[float32](0.8),
		TopK:            genai.Ptr[float32](40),
		MaxOutputTokens: int32(words * 4),
	}

	text, err := g.generate(ctx, cfg, imagePart(req.Image), genai.NewPartFromText(prompt))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (g *GeminiService) GenerateCaption(ctx context.Context, req CaptionRequest) (string, error) {
	if req.Image.IsZero() {
		return "", &story.ServiceError{Message: "No image provided"}
	}
	prompt := "Generate a creative and descriptive caption for this image. Keep it concise but engaging."
	return g.generate(ctx, nil, genai.NewPartFromText(prompt), imagePart(req.Image))
}

func (g *GeminiService) Translate(ctx context.Context, req TranslateRequest) (string, error) {
	if req.Text == "" || req.Language == "" {
		return "", &story.ServiceError{Message: "Text and target language are required"}
	}
	prompt := fmt.Sprintf("Translate the following text to %s, maintaining the original formatting and structure:\n\n%s", req.Language, req.Text)
	return g.generate(ctx, nil, genai.NewPartFromText(prompt))
}

func (g *GeminiService) generate(ctx context.Context, cfg *genai.GenerateContentConfig, parts ...*genai.Part) (string, error) {
	resp, err := g.models.GenerateContent(ctx, g.model, []*genai.Content{
		{Parts: parts, Role: "user"},
	}, cfg)
	if err != nil {
		logrus.WithError(err).WithField("model", g.model).Warn("Gemini request failed")
		return "", &story.ServiceError{Message: err.Error()}
	}
	if resp == nil {
		return "", nil
	}
	return resp.Text(), nil
}

func imagePart(img story.EncodedImage) *genai.Part {
	mime := img.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return genai.NewPartFromBytes(img.Data, mime)
}
