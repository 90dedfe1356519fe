package generator

import (
	"context"

	"picturebook/internal/domain/story"
)

// Service is the remote generation backend consumed by the orchestrator.
type Service interface {
	SupportedLanguages(ctx context.Context) ([]story.LanguageCode, error)
	GenerateStory(ctx context.Context, req StoryRequest) (string, error)
	GenerateCaption(ctx context.Context, req CaptionRequest) (string, error)
	Translate(ctx context.Context, req TranslateRequest) (string, error)
}

type StoryRequest struct {
	Image     story.EncodedImage
	Category  string
	WordLimit int
}

type CaptionRequest struct {
	Image story.EncodedImage
}

type TranslateRequest struct {
	Text     string
	Language story.LanguageCode
}
