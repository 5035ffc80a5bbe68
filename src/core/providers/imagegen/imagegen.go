package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"drawing-assistant-go/src/configs"
	"drawing-assistant-go/src/core/utils"
)

// callTimeout bounds one generation request.
const callTimeout = 60 * time.Second

// Client turns a text prompt into a generated image persisted on disk.
type Client interface {
	// Generate issues one request for exactly one image. On success it
	// returns the saved file path; on any failure it returns ok=false and
	// leaves no partial output behind.
	Generate(ctx context.Context, prompt string) (string, bool)
}

// NewClient builds a client for the configured backend type.
func NewClient(cfg configs.ImageGenConfig, outputDir string, logger *utils.Logger) (Client, error) {
	switch cfg.Type {
	case "gemini":
		return &geminiClient{
			cfg:       cfg,
			outputDir: outputDir,
			client:    &http.Client{},
			logger:    logger.WithTag("imagegen"),
		}, nil
	default:
		return nil, fmt.Errorf("unknown image generation backend type %q", cfg.Type)
	}
}

// geminiClient speaks the predict REST contract: an instances/prompt request,
// a predictions list carrying base64 image payloads.
type geminiClient struct {
	cfg       configs.ImageGenConfig
	outputDir string
	client    *http.Client
	logger    *utils.TaggedLogger
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParameters struct {
	SampleCount int `json:"sampleCount"`
}

type predictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
	} `json:"predictions"`
}

func (c *geminiClient) Generate(ctx context.Context, prompt string) (string, bool) {
	if c.cfg.APIKey == "" || c.cfg.BaseURL == "" {
		c.logger.Error("image generation is not configured (missing API key or URL)")
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	payload, err := json.Marshal(predictRequest{
		Instances:  []predictInstance{{Prompt: prompt}},
		Parameters: predictParameters{SampleCount: 1},
	})
	if err != nil {
		c.logger.Error(fmt.Sprintf("marshal request: %v", err))
		return "", false
	}

	url := fmt.Sprintf("%s?key=%s", c.cfg.BaseURL, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		c.logger.Error(fmt.Sprintf("build request: %v", err))
		return "", false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error(fmt.Sprintf("generation request failed: %v", err))
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		c.logger.Error(fmt.Sprintf("generation returned status %d: %s", resp.StatusCode, body))
		return "", false
	}

	var parsed predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.logger.Error(fmt.Sprintf("decode response: %v", err))
		return "", false
	}
	if len(parsed.Predictions) == 0 {
		c.logger.Error("generation response contained no predictions")
		return "", false
	}

	raw, err := base64.StdEncoding.DecodeString(parsed.Predictions[0].BytesBase64Encoded)
	if err != nil {
		c.logger.Error(fmt.Sprintf("decode image payload: %v", err))
		return "", false
	}

	path, err := c.saveAsPNG(raw)
	if err != nil {
		c.logger.Error(fmt.Sprintf("save generated image: %v", err))
		return "", false
	}

	c.logger.Info(fmt.Sprintf("generated image saved to %s", path))
	return path, true
}

// saveAsPNG validates the payload decodes as a raster image and persists it
// as PNG under a timestamp-qualified name.
func (c *geminiClient) saveAsPNG(raw []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("payload is not a decodable image: %v", err)
	}

	if err := os.MkdirAll(c.outputDir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %v", err)
	}

	path := filepath.Join(c.outputDir, fmt.Sprintf("reference_%d.png", time.Now().Unix()))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create output file: %v", err)
	}

	if err := png.Encode(file, img); err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("encode PNG: %v", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close output file: %v", err)
	}

	return path, nil
}
