package speech

import (
	"fmt"
	"os/exec"
	"strconv"
	"sync"

	"drawing-assistant-go/src/core/utils"
)

// CommandEngine shells out to a local speech tool such as espeak or say.
// Useful on machines without network access to a synthesis service.
type CommandEngine struct {
	mu      sync.Mutex
	binary  string
	rate    int
	volume  float64
	voiceID string
	current *exec.Cmd
	logger  *utils.TaggedLogger
}

// NewCommandEngine creates the engine for the given speech binary.
func NewCommandEngine(binary string, logger *utils.Logger) (*CommandEngine, error) {
	if binary == "" {
		binary = "espeak"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("speech tool %q not found: %v", binary, err)
	}

	return &CommandEngine{
		binary: binary,
		rate:   baselineRate,
		volume: 0.8,
		logger: logger.WithTag("speech-cmd"),
	}, nil
}

// Speak blocks until the speech tool exits.
func (e *CommandEngine) Speak(text string) error {
	e.mu.Lock()
	args := e.buildArgs(text)
	cmd := exec.Command(e.binary, args...)
	e.current = cmd
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.current = nil
		e.mu.Unlock()
	}()

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %v", e.binary, err)
	}
	return nil
}

// buildArgs assembles espeak-style options; other binaries just get the text.
func (e *CommandEngine) buildArgs(text string) []string {
	if e.binary != "espeak" && e.binary != "espeak-ng" {
		return []string{text}
	}

	args := []string{
		"-s", strconv.Itoa(e.rate),
		"-a", strconv.Itoa(int(e.volume * 200)),
	}
	if e.voiceID != "" {
		args = append(args, "-v", e.voiceID)
	}
	return append(args, text)
}

// Stop kills any in-flight speech process.
func (e *CommandEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || e.current.Process == nil {
		return nil
	}
	return e.current.Process.Kill()
}

func (e *CommandEngine) SetRate(wordsPerMinute int) error {
	if wordsPerMinute <= 0 {
		return fmt.Errorf("rate must be positive, got %d", wordsPerMinute)
	}
	e.mu.Lock()
	e.rate = wordsPerMinute
	e.mu.Unlock()
	return nil
}

func (e *CommandEngine) SetVolume(volume float64) error {
	e.mu.Lock()
	e.volume = volume
	e.mu.Unlock()
	return nil
}

func (e *CommandEngine) SetVoice(voiceID string) error {
	e.mu.Lock()
	e.voiceID = voiceID
	e.mu.Unlock()
	return nil
}

// Voices lists the default espeak voice set.
func (e *CommandEngine) Voices() []Voice {
	return []Voice{
		{Name: "English", ID: "en"},
		{Name: "English (US)", ID: "en-us"},
		{Name: "English (Scotland)", ID: "en-sc"},
	}
}
