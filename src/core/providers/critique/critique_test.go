package critique

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"drawing-assistant-go/src/configs"
	imageproc "drawing-assistant-go/src/core/image"
	"drawing-assistant-go/src/core/utils"
)

func newTestLogger(t *testing.T) *utils.Logger {
	t.Helper()
	cfg := &configs.Config{}
	cfg.Log.LogLevel = "info"
	cfg.Log.LogDir = t.TempDir()
	cfg.Log.LogFile = "test.log"
	logger, err := utils.NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func newGeminiClient(t *testing.T, serverURL string) Client {
	t.Helper()
	logger := newTestLogger(t)
	client, err := NewClient(configs.CritiqueConfig{
		Type:    "gemini",
		BaseURL: serverURL,
		APIKey:  "test-key",
	}, imageproc.NewProcessor(0, logger), logger)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func geminiReply(text string) string {
	return `{"candidates":[{"content":{"parts":[{"text":` + jsonStr(text) + `}]}}]}`
}

func jsonStr(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func jpegData() []byte {
	return []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46, 0xFF, 0xD9}
}

func TestContainsFailureMarker(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"The shading is excellent", false},
		{"Error: Vision API key not configured.", true},
		{"the request FAILED upstream", true},
		{"An unexpected eRRor occurred", true},
		{"", false},
	}
	for _, tt := range tests {
		if got := ContainsFailureMarker(tt.text); got != tt.want {
			t.Errorf("ContainsFailureMarker(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestCritiqueSuccess(t *testing.T) {
	var gotBody geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			t.Error("request missing API key")
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(geminiReply("Strong linework. Consider refining the hand anatomy.")))
	}))
	defer server.Close()

	client := newGeminiClient(t, server.URL)
	result := client.Critique(context.Background(), jpegData(), "critique this drawing")

	if !result.Succeeded {
		t.Fatalf("Critique() failed: %s", result.Text)
	}
	if result.Text != "Strong linework. Consider refining the hand anatomy." {
		t.Errorf("unexpected text: %q", result.Text)
	}
	if len(gotBody.Contents) != 1 || len(gotBody.Contents[0].Parts) != 2 {
		t.Fatalf("request shape: contents=%d", len(gotBody.Contents))
	}
	if gotBody.Contents[0].Parts[0].Text != "critique this drawing" {
		t.Errorf("prompt part = %q", gotBody.Contents[0].Parts[0].Text)
	}
	if gotBody.Contents[0].Parts[1].InlineData == nil ||
		gotBody.Contents[0].Parts[1].InlineData.MimeType != "image/jpeg" {
		t.Error("inline image part missing or mislabeled")
	}
}

func TestCritiqueErrorMarkedTextFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geminiReply("Error: I cannot analyze this image.")))
	}))
	defer server.Close()

	result := newGeminiClient(t, server.URL).Critique(context.Background(), jpegData(), "p")
	if result.Succeeded {
		t.Error("error-marked text reported as success")
	}
}

func TestCritiqueTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	result := newGeminiClient(t, server.URL).Critique(context.Background(), jpegData(), "p")
	if result.Succeeded {
		t.Fatal("transport failure reported as success")
	}
	if !strings.Contains(result.Text, "429") {
		t.Errorf("result text missing status code: %q", result.Text)
	}
	if !strings.Contains(result.Text, "quota exceeded") {
		t.Errorf("result text missing response body: %q", result.Text)
	}
}

func TestCritiqueEmptyResponse(t *testing.T) {
	bodies := map[string]string{
		"no candidates": `{"candidates":[]}`,
		"no parts":      `{"candidates":[{"content":{"parts":[]}}]}`,
		"empty text":    geminiReply(""),
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer server.Close()

			result := newGeminiClient(t, server.URL).Critique(context.Background(), jpegData(), "p")
			if result.Succeeded {
				t.Error("empty response reported as success")
			}
			if result.Text != "No response content received from AI." {
				t.Errorf("text = %q", result.Text)
			}
		})
	}
}

func TestCritiqueMissingKey(t *testing.T) {
	logger := newTestLogger(t)
	client, err := NewClient(configs.CritiqueConfig{
		Type:    "gemini",
		BaseURL: "http://localhost:1",
	}, imageproc.NewProcessor(0, logger), logger)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	result := client.Critique(context.Background(), jpegData(), "p")
	if result.Succeeded {
		t.Error("missing key reported as success")
	}
	if !strings.Contains(result.Text, "API key not configured") {
		t.Errorf("text = %q", result.Text)
	}
}

func TestDescribeUsesFixedPrompt(t *testing.T) {
	var gotBody geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(geminiReply("A pencil sketch of a standing figure.")))
	}))
	defer server.Close()

	result := newGeminiClient(t, server.URL).Describe(context.Background(), jpegData())
	if !result.Succeeded {
		t.Fatalf("Describe() failed: %s", result.Text)
	}
	if !strings.Contains(gotBody.Contents[0].Parts[0].Text, "objective and factual") {
		t.Errorf("description prompt = %q", gotBody.Contents[0].Parts[0].Text)
	}
}

func TestRefinePromptTruncatesAfterMarker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geminiReply("Here you go.\nGENERATED IMAGE PROMPT: comic art, dynamic pose, corrected anatomy")))
	}))
	defer server.Close()

	result := newGeminiClient(t, server.URL).RefinePrompt(context.Background(), "a sketch", "fix the arms")
	if !result.Succeeded {
		t.Fatalf("RefinePrompt() failed: %s", result.Text)
	}
	if result.Text != "comic art, dynamic pose, corrected anatomy" {
		t.Errorf("text = %q", result.Text)
	}
}

func TestRefinePromptTextOnlyRequest(t *testing.T) {
	var gotBody geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(geminiReply("prompt text")))
	}))
	defer server.Close()

	newGeminiClient(t, server.URL).RefinePrompt(context.Background(), "desc", "crit")
	if len(gotBody.Contents[0].Parts) != 1 {
		t.Fatalf("text-only call sent %d parts, want 1", len(gotBody.Contents[0].Parts))
	}
	prompt := gotBody.Contents[0].Parts[0].Text
	if !strings.Contains(prompt, "desc") || !strings.Contains(prompt, "crit") {
		t.Error("meta-prompt missing description or critique")
	}
}
