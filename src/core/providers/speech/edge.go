package speech

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"github.com/wujunwei928/edge-tts-go/edge_tts"

	"drawing-assistant-go/src/core/utils"
)

// baselineRate is the words-per-minute rate treated as normal playback speed.
const baselineRate = 150

// EdgeEngine synthesizes speech through the Edge TTS service and plays the
// resulting audio with an external player binary. Rate and volume are applied
// at playback time since synthesis yields fixed-rate audio.
type EdgeEngine struct {
	mu        sync.Mutex
	voice     string
	rate      int
	volume    float64
	outputDir string
	playerCmd string
	current   *exec.Cmd
	logger    *utils.TaggedLogger
}

// NewEdgeEngine creates the engine. playerCmd is the audio player binary; an
// empty value selects ffplay.
func NewEdgeEngine(outputDir, playerCmd, voice string, logger *utils.Logger) (*EdgeEngine, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create speech output directory: %v", err)
	}
	if playerCmd == "" {
		playerCmd = "ffplay"
	}
	if _, err := exec.LookPath(playerCmd); err != nil {
		return nil, fmt.Errorf("audio player %q not found: %v", playerCmd, err)
	}
	if voice == "" {
		voice = "en-US-AriaNeural"
	}

	return &EdgeEngine{
		voice:     voice,
		rate:      baselineRate,
		volume:    0.8,
		outputDir: outputDir,
		playerCmd: playerCmd,
		logger:    logger.WithTag("edge-tts"),
	}, nil
}

// Speak synthesizes text and blocks until playback completes.
func (e *EdgeEngine) Speak(text string) error {
	e.mu.Lock()
	voice := e.voice
	rate := e.rate
	volume := e.volume
	e.mu.Unlock()

	conn, err := edge_tts.NewCommunicate(text, edge_tts.SetVoice(voice))
	if err != nil {
		return fmt.Errorf("create edge-tts session: %v", err)
	}

	audio, err := conn.Stream()
	if err != nil {
		return fmt.Errorf("edge-tts synthesis: %v", err)
	}

	duration, err := mp3Duration(audio)
	if err != nil {
		return fmt.Errorf("synthesized audio is not valid mp3: %v", err)
	}
	e.logger.Debug(fmt.Sprintf("synthesized %.1fs of audio for %d characters", duration.Seconds(), len(text)))

	path := filepath.Join(e.outputDir, fmt.Sprintf("utterance_%d.mp3", time.Now().UnixNano()))
	if err := os.WriteFile(path, audio, 0644); err != nil {
		return fmt.Errorf("write audio file: %v", err)
	}
	defer os.Remove(path)

	return e.play(path, rate, volume)
}

func (e *EdgeEngine) play(path string, rate int, volume float64) error {
	args := playerArgs(e.playerCmd, path, rate, volume)
	cmd := exec.Command(e.playerCmd, args...)

	e.mu.Lock()
	e.current = cmd
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.current = nil
		e.mu.Unlock()
	}()

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("audio playback: %v", err)
	}
	return nil
}

// playerArgs builds player arguments; ffplay gets tempo and volume filters,
// other players just receive the file.
func playerArgs(player, path string, rate int, volume float64) []string {
	if filepath.Base(player) != "ffplay" {
		return []string{path}
	}

	tempo := float64(rate) / baselineRate
	if tempo < 0.5 {
		tempo = 0.5
	}
	if tempo > 2.0 {
		tempo = 2.0
	}

	filter := fmt.Sprintf("atempo=%.2f,volume=%.2f", tempo, volume)
	return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-af", filter, path}
}

// Stop kills any in-flight playback process.
func (e *EdgeEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || e.current.Process == nil {
		return nil
	}
	return e.current.Process.Kill()
}

func (e *EdgeEngine) SetRate(wordsPerMinute int) error {
	if wordsPerMinute <= 0 {
		return fmt.Errorf("rate must be positive, got %d", wordsPerMinute)
	}
	e.mu.Lock()
	e.rate = wordsPerMinute
	e.mu.Unlock()
	return nil
}

func (e *EdgeEngine) SetVolume(volume float64) error {
	e.mu.Lock()
	e.volume = volume
	e.mu.Unlock()
	return nil
}

func (e *EdgeEngine) SetVoice(voiceID string) error {
	if !strings.Contains(voiceID, "Neural") {
		return fmt.Errorf("unknown edge voice %q", voiceID)
	}
	e.mu.Lock()
	e.voice = voiceID
	e.mu.Unlock()
	return nil
}

// Voices lists commonly available Edge neural voices.
func (e *EdgeEngine) Voices() []Voice {
	return []Voice{
		{Name: "Aria (US English)", ID: "en-US-AriaNeural"},
		{Name: "Guy (US English)", ID: "en-US-GuyNeural"},
		{Name: "Jenny (US English)", ID: "en-US-JennyNeural"},
		{Name: "Sonia (UK English)", ID: "en-GB-SoniaNeural"},
		{Name: "Ryan (UK English)", ID: "en-GB-RyanNeural"},
		{Name: "Natasha (AU English)", ID: "en-AU-NatashaNeural"},
	}
}

// mp3Duration decodes enough of the audio to validate it and compute its
// playing time.
func mp3Duration(audio []byte) (time.Duration, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(audio))
	if err != nil {
		return 0, err
	}
	// Length is total PCM bytes: 2 channels x 2 bytes per sample.
	seconds := float64(decoder.Length()) / 4 / float64(decoder.SampleRate())
	return time.Duration(seconds * float64(time.Second)), nil
}
