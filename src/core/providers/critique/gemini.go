package critique

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"drawing-assistant-go/src/configs"
	"drawing-assistant-go/src/core/utils"
)

// maxErrorBody bounds how much of an error response ends up in messages.
const maxErrorBody = 500

// geminiBackend speaks the generateContent REST contract: a contents/parts
// request with optional inline image data, a candidates/content/parts reply.
type geminiBackend struct {
	apiKey string
	apiURL string
	client *http.Client
	logger *utils.TaggedLogger
}

func init() {
	Register("gemini", func(cfg configs.CritiqueConfig, logger *utils.Logger) (backend, error) {
		return &geminiBackend{
			apiKey: cfg.APIKey,
			apiURL: cfg.BaseURL,
			client: &http.Client{},
			logger: logger.WithTag("gemini"),
		}, nil
	})
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (b *geminiBackend) invoke(ctx context.Context, prompt, imageB64, imageFormat string) (string, error) {
	if b.apiKey == "" {
		return "", &ConfigError{Missing: "API key"}
	}
	if b.apiURL == "" {
		return "", &ConfigError{Missing: "API URL"}
	}

	parts := []geminiPart{{Text: prompt}}
	if imageB64 != "" {
		parts = append(parts, geminiPart{
			InlineData: &geminiInlineData{
				MimeType: "image/" + imageFormat,
				Data:     imageB64,
			},
		})
	}

	payload, err := json.Marshal(geminiRequest{Contents: []geminiContent{{Parts: parts}}})
	if err != nil {
		return "", fmt.Errorf("marshal request: %v", err)
	}

	url := fmt.Sprintf("%s?key=%s", b.apiURL, b.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &TransportError{Status: resp.StatusCode, Body: string(body)}
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &TransportError{Err: fmt.Errorf("decode response: %v", err)}
	}

	// Any deviation from the expected shape maps to an empty response: no
	// candidates, no parts, or a blank text string.
	if len(parsed.Candidates) == 0 {
		b.logger.Warn("response contained no candidates")
		return "", ErrEmptyResponse
	}
	candidateParts := parsed.Candidates[0].Content.Parts
	if len(candidateParts) == 0 {
		b.logger.Warn("first candidate contained no content parts")
		return "", ErrEmptyResponse
	}
	if candidateParts[0].Text == "" {
		return "", ErrEmptyResponse
	}

	return candidateParts[0].Text, nil
}
