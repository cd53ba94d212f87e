package preview

import (
	"bytes"
	"context"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"batchedit/internal/domain"
	"batchedit/internal/storage"
)

// Renderer produces renderable previews of source images and manages their
// lifetime. A preview is a downscaled JPEG written into the file store; the
// returned storage key is the handle, released when the owning item is
// discarded.
type Renderer struct {
	store  *storage.FileStore
	maxDim int
	logger zerolog.Logger
}

// NewRenderer creates a Renderer writing previews bounded to maxDim pixels
// on the longest side.
func NewRenderer(store *storage.FileStore, maxDim int, logger zerolog.Logger) *Renderer {
	if maxDim <= 0 {
		maxDim = 512
	}
	return &Renderer{store: store, maxDim: maxDim, logger: logger}
}

// Render decodes src, fits it inside the configured bounds and stores the
// thumbnail under a key derived from the item ID.
func (r *Renderer) Render(ctx context.Context, id string, src domain.ImagePayload) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(src.Data))
	if err != nil {
		return "", fmt.Errorf("preview: decode image: %w", err)
	}
	thumb := imaging.Fit(img, r.maxDim, r.maxDim, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("preview: encode thumbnail: %w", err)
	}
	return r.store.Write(ctx, fmt.Sprintf("previews/%s.jpg", id), buf.Bytes())
}

// Release deletes the preview behind the given handle. Empty keys are a
// no-op.
func (r *Renderer) Release(key string) {
	if key == "" {
		return
	}
	if err := r.store.Remove(key); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("preview: release failed")
	}
}
