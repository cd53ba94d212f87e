package image

import (
	"context"

	"batchedit/internal/domain"
	"batchedit/internal/providers/genai"
)

// Editor is the contract implemented by image editing providers.
type Editor interface {
	Edit(ctx context.Context, src domain.ImagePayload, prompt string) (domain.ImagePayload, error)
}

// GeminiEditor adapts the Gemini client to the Editor contract.
type GeminiEditor struct {
	client *genai.Client
}

func NewGeminiEditor(client *genai.Client) *GeminiEditor {
	return &GeminiEditor{client: client}
}

func (g *GeminiEditor) Edit(ctx context.Context, src domain.ImagePayload, prompt string) (domain.ImagePayload, error) {
	return g.client.EditImage(ctx, src, prompt)
}

var _ Editor = (*GeminiEditor)(nil)
