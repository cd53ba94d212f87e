package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"batchedit/internal/domain"
)

// Normalized failure reasons for responses that carried no image.
var (
	ErrSafetyRejected = errors.New("image edit rejected by safety policy")
	ErrNoImage        = errors.New("no image was produced")
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Client is a thin facade over the Gemini generateContent endpoint, scoped
// to image editing. It collapses the API's multi-part response into exactly
// one of {edited payload, failure reason} so the batch controller only ever
// sees a binary outcome.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     zerolog.Logger
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiSafetyRating struct {
	Category    string `json:"category,omitempty"`
	Probability string `json:"probability,omitempty"`
}

type geminiCandidate struct {
	Content       geminiContent        `json:"content"`
	FinishReason  string               `json:"finishReason,omitempty"`
	SafetyRatings []geminiSafetyRating `json:"safetyRatings,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client. The API key is required; callers may
// provide a nil HTTP client to get one with a sane timeout.
func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("genai: api key is required")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash-image-preview"
	}

	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

// EditImage sends one source image plus the edit instruction and returns the
// edited payload, or the normalized failure reason when the model declined
// to produce an image.
func (c *Client) EditImage(ctx context.Context, src domain.ImagePayload, prompt string) (domain.ImagePayload, error) {
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{InlineData: &geminiInlineData{
					MimeType: src.MIME,
					Data:     base64.StdEncoding.EncodeToString(src.Data),
				}},
				{Text: prompt},
			},
		}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
		},
	}

	var response geminiGenerateContentResponse
	path := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model))
	if err := c.invoke(ctx, path, payload, &response); err != nil {
		return domain.ImagePayload{}, err
	}

	edited, err := normalizeResponse(response)
	if err != nil {
		c.logger.Debug().Err(err).Str("model", c.model).Msg("genai: edit produced no image")
		return domain.ImagePayload{}, err
	}
	return edited, nil
}

// normalizeResponse collapses the response into one payload or one failure.
// The first inline-image part wins; otherwise a text explanation beats the
// safety verdict, which beats the generic reason.
func normalizeResponse(resp geminiGenerateContentResponse) (domain.ImagePayload, error) {
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return domain.ImagePayload{}, fmt.Errorf("decode inline image: %w", err)
			}
			mime := part.InlineData.MimeType
			if mime == "" {
				mime = "image/png"
			}
			return domain.ImagePayload{Data: data, MIME: mime}, nil
		}
	}

	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if text := strings.TrimSpace(part.Text); text != "" {
				return domain.ImagePayload{}, fmt.Errorf("model returned text instead of an image: %q", text)
			}
		}
	}

	if safetyRejected(resp) {
		return domain.ImagePayload{}, ErrSafetyRejected
	}
	return domain.ImagePayload{}, ErrNoImage
}

func safetyRejected(resp geminiGenerateContentResponse) bool {
	for _, candidate := range resp.Candidates {
		switch candidate.FinishReason {
		case "SAFETY", "IMAGE_SAFETY", "PROHIBITED_CONTENT":
			return true
		}
		for _, rating := range candidate.SafetyRatings {
			if rating.Probability != "" && rating.Probability != "NEGLIGIBLE" {
				return true
			}
		}
	}
	return false
}

func (c *Client) invoke(ctx context.Context, path string, payload any, out any) error {
	endpoint := c.baseURL + path
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("key", c.apiKey)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		var apiErr geminiErrorResponse
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		if len(data) > 0 {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("gemini status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}
