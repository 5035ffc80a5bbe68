package assist

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"drawing-assistant-go/src/configs"
	"drawing-assistant-go/src/core/analyzer"
	"drawing-assistant-go/src/core/camera"
	imageproc "drawing-assistant-go/src/core/image"
	"drawing-assistant-go/src/core/providers/critique"
	"drawing-assistant-go/src/core/providers/speech"
	"drawing-assistant-go/src/core/session"
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

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(2, 2, color.RGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encoding test JPEG: %v", err)
	}
	return buf.Bytes()
}

type fakeGrabber struct {
	frame *camera.Frame
	ok    bool
}

func (g *fakeGrabber) Grab() (*camera.Frame, bool) {
	return g.frame, g.ok
}

type fakeCritic struct {
	critiqueResult critique.Result
	describeResult critique.Result
	refineResult   critique.Result

	prompts       []string
	describeCalls int
	refineCalls   int
	refineDesc    string
	refineCrit    string
}

func (c *fakeCritic) Critique(_ context.Context, _ []byte, prompt string) critique.Result {
	c.prompts = append(c.prompts, prompt)
	return c.critiqueResult
}

func (c *fakeCritic) Describe(context.Context, []byte) critique.Result {
	c.describeCalls++
	return c.describeResult
}

func (c *fakeCritic) RefinePrompt(_ context.Context, description, crit string) critique.Result {
	c.refineCalls++
	c.refineDesc = description
	c.refineCrit = crit
	return c.refineResult
}

type fakeImageGen struct {
	path  string
	ok    bool
	calls int
}

func (g *fakeImageGen) Generate(context.Context, string) (string, bool) {
	g.calls++
	return g.path, g.ok
}

type fakeSpeaker struct {
	spoken []string
}

func (s *fakeSpeaker) Speak(text string, _ speech.Mode) bool {
	s.spoken = append(s.spoken, text)
	return true
}

type fakeNotifier struct {
	assistanceText string
	assistanceTS   int64
	referencePath  string
}

func (n *fakeNotifier) NotifyAssistance(text string, timestamp int64) {
	n.assistanceText = text
	n.assistanceTS = timestamp
}

func (n *fakeNotifier) NotifyReference(imagePath string) {
	n.referencePath = imagePath
}

type fixture struct {
	pipeline *Pipeline
	grabber  *fakeGrabber
	critic   *fakeCritic
	images   *fakeImageGen
	speaker  *fakeSpeaker
	notifier *fakeNotifier
	session  *session.State
	captured string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := newTestLogger(t)

	f := &fixture{
		grabber:  &fakeGrabber{frame: &camera.Frame{Data: jpegBytes(t)}, ok: true},
		critic:   &fakeCritic{critiqueResult: critique.Result{Text: "Nice linework.", Succeeded: true}},
		images:   &fakeImageGen{ok: true},
		speaker:  &fakeSpeaker{},
		notifier: &fakeNotifier{},
		session:  session.NewState("base prompt"),
		captured: t.TempDir(),
	}
	feedbackAnalyzer := analyzer.NewAnalyzer(configs.AnalyzerConfig{}, logger)
	f.pipeline = NewPipeline(
		f.grabber, f.critic, f.images, f.speaker,
		feedbackAnalyzer, f.session, imageproc.NewProcessor(1024, logger),
		f.notifier, f.captured, logger,
	)
	return f
}

// seedSnappedFrame primes the session as if an assistance request already ran.
func (f *fixture) seedSnappedFrame(t *testing.T, data []byte, critiqueText string) string {
	t.Helper()
	path := filepath.Join(f.captured, "request_1.jpg")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing seed frame: %v", err)
	}
	f.session.SetLastFrame(path)
	if critiqueText != "" {
		f.session.RecordCritique(critiqueText)
	}
	return path
}

func TestRequestAssistanceSuccess(t *testing.T) {
	f := newFixture(t)

	ts, err := f.pipeline.RequestAssistance(context.Background())
	if err != nil {
		t.Fatalf("RequestAssistance: %v", err)
	}
	if ts == 0 {
		t.Error("timestamp = 0")
	}

	if f.notifier.assistanceText != "Nice linework." || f.notifier.assistanceTS != ts {
		t.Errorf("notification = (%q, %d), want (%q, %d)",
			f.notifier.assistanceText, f.notifier.assistanceTS, "Nice linework.", ts)
	}
	if len(f.speaker.spoken) != 1 || f.speaker.spoken[0] != "Nice linework." {
		t.Errorf("spoken = %v", f.speaker.spoken)
	}
	if got := f.session.LastCritique(); got != "Nice linework." {
		t.Errorf("LastCritique() = %q", got)
	}

	framePath := f.session.LastFrame()
	if framePath == "" {
		t.Fatal("last frame not recorded")
	}
	if _, err := os.Stat(framePath); err != nil {
		t.Errorf("persisted frame missing: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(framePath), "request_") {
		t.Errorf("frame filename = %s", filepath.Base(framePath))
	}
}

func TestRequestAssistanceCaptureFailure(t *testing.T) {
	f := newFixture(t)
	f.grabber.ok = false

	_, err := f.pipeline.RequestAssistance(context.Background())
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageCapture {
		t.Fatalf("err = %v, want capture StageError", err)
	}
	if len(f.critic.prompts) != 0 {
		t.Error("critique was called despite capture failure")
	}
	if f.notifier.assistanceText != "" {
		t.Error("notification sent despite capture failure")
	}
}

func TestRequestAssistanceCritiqueFailureDegrades(t *testing.T) {
	f := newFixture(t)
	f.critic.critiqueResult = critique.Result{Text: "Error communicating with vision API: timeout"}

	ts, err := f.pipeline.RequestAssistance(context.Background())
	if err != nil {
		t.Fatalf("RequestAssistance: %v", err)
	}
	if ts == 0 {
		t.Error("timestamp = 0")
	}

	// The failure degrades to displayable text; it never enters the session.
	if got := f.session.LastCritique(); got != "" {
		t.Errorf("LastCritique() = %q, want empty", got)
	}
	if f.session.HistorySize() != 0 {
		t.Error("failed critique entered history")
	}
	if !strings.Contains(f.notifier.assistanceText, "Error communicating") {
		t.Errorf("notification = %q, want error text shown", f.notifier.assistanceText)
	}
	if f.session.LastFrame() == "" {
		t.Error("frame not recorded despite capture success")
	}
}

func TestRequestAssistancePromptProgression(t *testing.T) {
	f := newFixture(t)

	if _, err := f.pipeline.RequestAssistance(context.Background()); err != nil {
		t.Fatalf("first RequestAssistance: %v", err)
	}
	f.critic.critiqueResult = critique.Result{Text: "Now fix the perspective.", Succeeded: true}
	if _, err := f.pipeline.RequestAssistance(context.Background()); err != nil {
		t.Fatalf("second RequestAssistance: %v", err)
	}

	if len(f.critic.prompts) != 2 {
		t.Fatalf("critique called %d times, want 2", len(f.critic.prompts))
	}
	if f.critic.prompts[0] != "base prompt" {
		t.Errorf("first prompt = %q, want base prompt", f.critic.prompts[0])
	}
	if !strings.Contains(f.critic.prompts[1], "Nice linework.") {
		t.Errorf("second prompt = %q, want previous critique embedded", f.critic.prompts[1])
	}
}

func TestRequestAssistanceStripsMarkdownForSpeech(t *testing.T) {
	f := newFixture(t)
	f.critic.critiqueResult = critique.Result{
		Text:      "**Try** this [link](http://x) ![img](http://y)",
		Succeeded: true,
	}

	if _, err := f.pipeline.RequestAssistance(context.Background()); err != nil {
		t.Fatalf("RequestAssistance: %v", err)
	}
	if len(f.speaker.spoken) != 1 || f.speaker.spoken[0] != "Try this link" {
		t.Errorf("spoken = %v, want [Try this link]", f.speaker.spoken)
	}
	// The display text keeps its markdown.
	if f.notifier.assistanceText != "**Try** this [link](http://x) ![img](http://y)" {
		t.Errorf("notification = %q", f.notifier.assistanceText)
	}
}

func TestGenerateReferenceSuccess(t *testing.T) {
	f := newFixture(t)
	f.seedSnappedFrame(t, jpegBytes(t), "fix the arms")
	f.critic.describeResult = critique.Result{Text: "a figure sketch", Succeeded: true}
	f.critic.refineResult = critique.Result{Text: "comic style figure, corrected arms", Succeeded: true}
	f.images.path = filepath.Join("generated_images", "reference_99.png")

	path, err := f.pipeline.GenerateReference(context.Background())
	if err != nil {
		t.Fatalf("GenerateReference: %v", err)
	}
	if path != "generated_images/reference_99.png" {
		t.Errorf("path = %q", path)
	}

	if f.critic.refineDesc != "a figure sketch" || f.critic.refineCrit != "fix the arms" {
		t.Errorf("refine inputs = (%q, %q)", f.critic.refineDesc, f.critic.refineCrit)
	}
	if f.notifier.referencePath != path {
		t.Errorf("notification path = %q, want %q", f.notifier.referencePath, path)
	}
}

func TestGenerateReferencePreconditions(t *testing.T) {
	t.Run("no snapped frame", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.pipeline.GenerateReference(context.Background())
		var stageErr *StageError
		if !errors.As(err, &stageErr) || stageErr.Stage != StagePrecondition {
			t.Fatalf("err = %v, want precondition StageError", err)
		}
		if !strings.Contains(stageErr.Message, "No image has been snapped yet") {
			t.Errorf("message = %q", stageErr.Message)
		}
	})

	t.Run("no critique", func(t *testing.T) {
		f := newFixture(t)
		f.seedSnappedFrame(t, jpegBytes(t), "")

		_, err := f.pipeline.GenerateReference(context.Background())
		var stageErr *StageError
		if !errors.As(err, &stageErr) || stageErr.Stage != StagePrecondition {
			t.Fatalf("err = %v, want precondition StageError", err)
		}
		if !strings.Contains(stageErr.Message, "No critique available") {
			t.Errorf("message = %q", stageErr.Message)
		}
	})

	// Precondition failures make no AI calls at all.
	f := newFixture(t)
	f.pipeline.GenerateReference(context.Background())
	if f.critic.describeCalls != 0 || f.critic.refineCalls != 0 || f.images.calls != 0 {
		t.Error("precondition failure reached the AI clients")
	}
}

func TestGenerateReferenceDecodeFailure(t *testing.T) {
	f := newFixture(t)
	f.seedSnappedFrame(t, []byte("not an image"), "fix the arms")

	_, err := f.pipeline.GenerateReference(context.Background())
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageDecode {
		t.Fatalf("err = %v, want decode StageError", err)
	}
	if f.critic.describeCalls != 0 {
		t.Error("describe called despite decode failure")
	}
}

func TestGenerateReferenceStageFailures(t *testing.T) {
	t.Run("description fails", func(t *testing.T) {
		f := newFixture(t)
		f.seedSnappedFrame(t, jpegBytes(t), "fix the arms")
		f.critic.describeResult = critique.Result{Text: "Error: quota exceeded"}

		_, err := f.pipeline.GenerateReference(context.Background())
		var stageErr *StageError
		if !errors.As(err, &stageErr) || stageErr.Stage != StageDescription {
			t.Fatalf("err = %v, want description StageError", err)
		}
		if f.critic.refineCalls != 0 || f.images.calls != 0 {
			t.Error("later stages ran after description failure")
		}
	})

	t.Run("refinement fails", func(t *testing.T) {
		f := newFixture(t)
		f.seedSnappedFrame(t, jpegBytes(t), "fix the arms")
		f.critic.describeResult = critique.Result{Text: "a sketch", Succeeded: true}
		f.critic.refineResult = critique.Result{Text: "Error: empty reply"}

		_, err := f.pipeline.GenerateReference(context.Background())
		var stageErr *StageError
		if !errors.As(err, &stageErr) || stageErr.Stage != StageRefinement {
			t.Fatalf("err = %v, want refinement StageError", err)
		}
		if f.images.calls != 0 {
			t.Error("generation ran after refinement failure")
		}
	})

	t.Run("generation fails", func(t *testing.T) {
		f := newFixture(t)
		f.seedSnappedFrame(t, jpegBytes(t), "fix the arms")
		f.critic.describeResult = critique.Result{Text: "a sketch", Succeeded: true}
		f.critic.refineResult = critique.Result{Text: "refined prompt", Succeeded: true}
		f.images.ok = false

		_, err := f.pipeline.GenerateReference(context.Background())
		var stageErr *StageError
		if !errors.As(err, &stageErr) || stageErr.Stage != StageGeneration {
			t.Fatalf("err = %v, want generation StageError", err)
		}
		if f.notifier.referencePath != "" {
			t.Error("notification sent despite generation failure")
		}
	})
}
