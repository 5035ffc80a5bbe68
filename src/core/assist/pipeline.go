package assist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"drawing-assistant-go/src/core/analyzer"
	"drawing-assistant-go/src/core/camera"
	imageproc "drawing-assistant-go/src/core/image"
	"drawing-assistant-go/src/core/providers/critique"
	"drawing-assistant-go/src/core/providers/imagegen"
	"drawing-assistant-go/src/core/providers/speech"
	"drawing-assistant-go/src/core/session"
	"drawing-assistant-go/src/core/utils"
)

// Stage identifies the workflow step where an operation failed.
type Stage string

const (
	StageCapture      Stage = "capture"
	StagePrecondition Stage = "precondition"
	StageDecode       Stage = "decode"
	StageDescription  Stage = "description"
	StageRefinement   Stage = "refinement"
	StageGeneration   Stage = "generation"
)

// StageError carries a short user-facing message for a failed workflow stage.
// Never a stack trace.
type StageError struct {
	Stage   Stage
	Message string
}

func (e *StageError) Error() string {
	return e.Message
}

// FrameGrabber captures the current camera frame.
type FrameGrabber interface {
	Grab() (*camera.Frame, bool)
}

// Speaker voices text without blocking the request.
type Speaker interface {
	Speak(text string, mode speech.Mode) bool
}

// Notifier pushes pipeline events to connected UI clients.
type Notifier interface {
	// NotifyAssistance delivers analyzed critique text with its capture
	// timestamp.
	NotifyAssistance(text string, timestamp int64)
	// NotifyReference delivers the web-relative path of a freshly
	// generated reference image.
	NotifyReference(imagePath string)
}

// Pipeline orchestrates one drawing-assistance flow: camera capture, AI
// critique, analysis, UI notification and optional speech, plus the chained
// reference-image generation flow.
type Pipeline struct {
	frames      FrameGrabber
	critic      critique.Client
	images      imagegen.Client
	speaker     Speaker
	analyzer    *analyzer.Analyzer
	session     *session.State
	processor   *imageproc.Processor
	notifier    Notifier
	capturedDir string
	logger      *utils.TaggedLogger
}

func NewPipeline(
	frames FrameGrabber,
	critic critique.Client,
	images imagegen.Client,
	speaker Speaker,
	feedbackAnalyzer *analyzer.Analyzer,
	sessionState *session.State,
	processor *imageproc.Processor,
	notifier Notifier,
	capturedDir string,
	logger *utils.Logger,
) *Pipeline {
	return &Pipeline{
		frames:      frames,
		critic:      critic,
		images:      images,
		speaker:     speaker,
		analyzer:    feedbackAnalyzer,
		session:     sessionState,
		processor:   processor,
		notifier:    notifier,
		capturedDir: capturedDir,
		logger:      logger.WithTag("assist"),
	}
}

// RequestAssistance captures the current frame, critiques it with a
// session-aware prompt, and fans the result out to the UI and the speaker.
// A failed critique does not abort the flow: its error text is displayed and
// spoken like any other feedback, and only the capture step itself can fail
// the call. Returns the capture timestamp on success.
func (p *Pipeline) RequestAssistance(ctx context.Context) (int64, error) {
	frame, ok := p.frames.Grab()
	if !ok {
		p.logger.Warn("failed to capture frame for assistance request")
		return 0, &StageError{StageCapture, "Failed to capture frame"}
	}

	timestamp := time.Now().Unix()
	framePath := filepath.Join(p.capturedDir, fmt.Sprintf("request_%d.jpg", timestamp))
	if err := os.WriteFile(framePath, frame.Data, 0o644); err != nil {
		p.logger.Error(fmt.Sprintf("saving captured frame failed: %v", err))
		return 0, &StageError{StageCapture, "Failed to save captured frame"}
	}
	// Recorded before the critique call: a later reference-generation
	// request can reuse the frame even if this critique fails.
	p.session.SetLastFrame(framePath)
	p.logger.Debug(fmt.Sprintf("frame saved to %s", framePath))

	prompt := p.session.NextPrompt()
	p.logger.Info(fmt.Sprintf("requesting critique with prompt: %.80s...", prompt))

	result := p.critic.Critique(ctx, frame.Data, prompt)
	if result.Succeeded {
		p.session.RecordCritique(result.Text)
	} else {
		p.logger.Error(fmt.Sprintf("critique failed: %s", result.Text))
	}

	feedback := p.analyzer.Analyze(result.Text)

	if p.notifier != nil {
		p.notifier.NotifyAssistance(feedback.DisplayText, timestamp)
	}

	if p.speaker != nil && feedback.ShouldSpeak {
		p.speaker.Speak(utils.StripMarkdown(feedback.SpokenText()), speech.ModeAsync)
	}

	return timestamp, nil
}

// GenerateReference chains description, prompt refinement and image
// generation off the last snapped frame and critique. Strictly sequential, no
// retries: the first failing stage aborts with its own message. Returns the
// web-relative path of the generated image.
func (p *Pipeline) GenerateReference(ctx context.Context) (string, error) {
	framePath := p.session.LastFrame()
	if framePath == "" || !fileExists(framePath) {
		p.logger.Warn("no snapped frame available for reference generation")
		return "", &StageError{StagePrecondition, "No image has been snapped yet. Please request assistance first."}
	}

	critiqueText := p.session.LastCritique()
	if critiqueText == "" {
		p.logger.Warn("no critique available for reference generation")
		return "", &StageError{StagePrecondition, "No critique available. Please request assistance first."}
	}

	frameData, err := os.ReadFile(framePath)
	if err != nil {
		p.logger.Error(fmt.Sprintf("reading snapped frame failed: %v", err))
		return "", &StageError{StageDecode, "Failed to process snapped image."}
	}
	if _, err := p.processor.Decode(frameData); err != nil {
		p.logger.Error(fmt.Sprintf("decoding snapped frame failed: %v", err))
		return "", &StageError{StageDecode, "Failed to process snapped image."}
	}

	description := p.critic.Describe(ctx, frameData)
	if !description.Succeeded {
		p.logger.Error(fmt.Sprintf("image description failed: %s", description.Text))
		return "", &StageError{StageDescription, fmt.Sprintf("Failed to get image description: %s", description.Text)}
	}
	p.logger.Info(fmt.Sprintf("image description: %.100s...", description.Text))

	refined := p.critic.RefinePrompt(ctx, description.Text, critiqueText)
	if !refined.Succeeded {
		p.logger.Error(fmt.Sprintf("prompt refinement failed: %s", refined.Text))
		return "", &StageError{StageRefinement, fmt.Sprintf("Failed to refine generation prompt: %s", refined.Text)}
	}
	p.logger.Info(fmt.Sprintf("refined generation prompt: %s", refined.Text))

	imagePath, ok := p.images.Generate(ctx, refined.Text)
	if !ok {
		return "", &StageError{StageGeneration, "Failed to generate reference image."}
	}

	relPath := webRelative(imagePath)
	p.logger.Info(fmt.Sprintf("reference image generated: %s", relPath))

	if p.notifier != nil {
		p.notifier.NotifyReference(relPath)
	}
	return relPath, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// webRelative rewrites an on-disk image path relative to the working
// directory so the front end can request it over HTTP.
func webRelative(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(wd, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
