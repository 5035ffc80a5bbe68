package critique

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"drawing-assistant-go/src/configs"
	imageproc "drawing-assistant-go/src/core/image"
	"drawing-assistant-go/src/core/utils"
)

// callTimeout bounds every model call; exceeding it surfaces as a transport
// failure, never a hang.
const callTimeout = 45 * time.Second

// promptMarker separates the refinement meta-prompt from the model's answer;
// replies are truncated to everything after it when present.
const promptMarker = "GENERATED IMAGE PROMPT:"

const descriptionPrompt = "Describe this drawing in detail. Focus on the main subject, pose, " +
	"key elements, overall composition, and apparent artistic style (e.g., sketch, line art, cartoon). " +
	"Be objective and factual."

// Result is the outcome of one model call. Failures never surface as Go
// errors past this package; they are folded into a failed Result whose text
// is displayable as-is.
type Result struct {
	Text      string
	Succeeded bool
}

// ContainsFailureMarker reports whether text carries a recognized error
// marker. Downstream logic treats marked text as a failed critique.
func ContainsFailureMarker(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "error") || strings.Contains(lower, "failed")
}

// Client sends critique, description and prompt-refinement requests to a
// vision/text model.
type Client interface {
	// Critique analyzes imageData (an encoded raster image) with the prompt.
	Critique(ctx context.Context, imageData []byte, prompt string) Result
	// Describe requests an objective, factual description of the drawing.
	Describe(ctx context.Context, imageData []byte) Result
	// RefinePrompt turns a description plus critique into a standalone
	// text-to-image prompt.
	RefinePrompt(ctx context.Context, description, critique string) Result
}

// ConfigError marks a missing credential or endpoint.
type ConfigError struct {
	Missing string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("vision %s not configured", e.Missing)
}

// TransportError marks a network failure, timeout or non-2xx response.
type TransportError struct {
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("status %d: %s", e.Status, e.Body)
	}
	return e.Err.Error()
}

// ErrEmptyResponse marks a transport success carrying no usable text.
var ErrEmptyResponse = errors.New("no usable text in model response")

// backend is one wire protocol for a vision/text model. imageB64 is empty for
// text-only calls.
type backend interface {
	invoke(ctx context.Context, prompt, imageB64, imageFormat string) (string, error)
}

// Factory builds a backend from its configuration.
type Factory func(cfg configs.CritiqueConfig, logger *utils.Logger) (backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend type available to NewClient. Called from backend
// init functions.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// NewClient builds a Client for the configured backend type.
func NewClient(cfg configs.CritiqueConfig, processor *imageproc.Processor, logger *utils.Logger) (Client, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown critique backend type %q", cfg.Type)
	}

	b, err := factory(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &client{
		backend:   b,
		processor: processor,
		logger:    logger.WithTag("critique"),
	}, nil
}

type client struct {
	backend   backend
	processor *imageproc.Processor
	logger    *utils.TaggedLogger
}

func (c *client) Critique(ctx context.Context, imageData []byte, prompt string) Result {
	b64, format, err := c.processor.Prepare(imageData)
	if err != nil {
		c.logger.Error(fmt.Sprintf("frame preparation failed: %v", err))
		return Result{Text: fmt.Sprintf("Error: could not process the captured frame: %v", err)}
	}
	return c.run(ctx, prompt, b64, format)
}

func (c *client) Describe(ctx context.Context, imageData []byte) Result {
	b64, format, err := c.processor.Prepare(imageData)
	if err != nil {
		c.logger.Error(fmt.Sprintf("frame preparation failed: %v", err))
		return Result{Text: fmt.Sprintf("Error: could not process the captured frame: %v", err)}
	}
	return c.run(ctx, descriptionPrompt, b64, format)
}

func (c *client) RefinePrompt(ctx context.Context, description, critique string) Result {
	prompt := "You are an expert prompt engineer for text-to-image models, specializing in comic book art. " +
		"Based on the following description of an original drawing and the critique provided, " +
		"create a concise and effective text-to-image prompt. " +
		"The goal is to generate a *new* reference image that addresses the critique points " +
		"(especially anatomy and perspective) while retaining the core subject, pose, and style " +
		"described in the original description. " +
		"Focus the prompt on visual elements. Do not include conversational text, just the final prompt.\n\n" +
		"ORIGINAL DRAWING DESCRIPTION:\n" + description + "\n\n" +
		"CRITIQUE/SUGGESTIONS:\n" + critique + "\n\n" +
		promptMarker

	result := c.run(ctx, prompt, "", "")
	if idx := strings.LastIndex(result.Text, promptMarker); idx >= 0 {
		result.Text = strings.TrimSpace(result.Text[idx+len(promptMarker):])
	}
	return result
}

// run executes one model call and folds every failure mode into a Result.
func (c *client) run(ctx context.Context, prompt, imageB64, imageFormat string) Result {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	text, err := c.backend.invoke(ctx, prompt, imageB64, imageFormat)
	if err != nil {
		return c.resultFromError(err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return c.resultFromError(ErrEmptyResponse)
	}

	return Result{Text: text, Succeeded: !ContainsFailureMarker(text)}
}

func (c *client) resultFromError(err error) Result {
	var confErr *ConfigError
	var transErr *TransportError
	switch {
	case errors.As(err, &confErr):
		c.logger.Error(fmt.Sprintf("configuration error: %v", confErr))
		return Result{Text: fmt.Sprintf("Error: %v.", confErr)}
	case errors.As(err, &transErr):
		c.logger.Error(fmt.Sprintf("transport error: %v", transErr))
		return Result{Text: fmt.Sprintf("Error communicating with vision API: %v", transErr)}
	case errors.Is(err, ErrEmptyResponse):
		c.logger.Warn("model returned no usable text")
		return Result{Text: "No response content received from AI."}
	default:
		c.logger.Error(fmt.Sprintf("unexpected error: %v", err))
		return Result{Text: fmt.Sprintf("Error communicating with vision API: %v", err)}
	}
}
