package speech

import (
	"fmt"
	"sync"
	"time"

	"drawing-assistant-go/src/configs"
	"drawing-assistant-go/src/core/utils"
	"drawing-assistant-go/src/models"
)

const (
	// previousWorkerWait bounds how long an async speak waits for the
	// previous utterance's worker before starting its own.
	previousWorkerWait = 500 * time.Millisecond
	// engineAcquireWait bounds how long an async worker waits for the
	// engine lock; on timeout it skips speaking instead of piling up.
	engineAcquireWait = 100 * time.Millisecond
)

// Mode selects blocking behavior for Speak.
type Mode int

const (
	// ModeAsync returns once the utterance worker is scheduled.
	ModeAsync Mode = iota
	// ModeSync blocks until the utterance completes.
	ModeSync
)

// Voice identifies one selectable engine voice.
type Voice struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Engine is a stateful speech engine: property setters plus a blocking speak
// primitive and a best-effort stop.
type Engine interface {
	// Speak blocks until the utterance completes.
	Speak(text string) error
	// Stop interrupts any in-flight utterance; best effort.
	Stop() error
	SetRate(wordsPerMinute int) error
	SetVolume(volume float64) error
	SetVoice(voiceID string) error
	Voices() []Voice
}

// SettingsStore persists user speech preferences.
type SettingsStore interface {
	Save(s models.SpeechSettings) error
	Load() (models.SpeechSettings, bool, error)
}

// Speaker serializes use of a single speech engine. At most one caller is
// inside the engine's speak primitive at any instant, enforced by one lock
// shared between the sync and async paths.
type Speaker struct {
	mu      sync.Mutex // guards settings and worker bookkeeping
	engine  Engine
	enabled bool
	rate    int
	volume  float64
	voiceID string

	// engineLock is a capacity-1 semaphore; timed acquisition keeps async
	// workers from blocking indefinitely.
	engineLock chan struct{}
	workerDone chan struct{}

	store  SettingsStore
	logger *utils.TaggedLogger
}

// NewSpeaker wires an engine to the boot configuration, overlaying any
// persisted user preferences. A nil engine yields a permanently disabled
// speaker rather than an error: speech is optional.
func NewSpeaker(engine Engine, cfg configs.TTSConfig, store SettingsStore, logger *utils.Logger) *Speaker {
	s := &Speaker{
		engine:     engine,
		enabled:    cfg.Enabled && engine != nil,
		rate:       cfg.Rate,
		volume:     cfg.Volume,
		voiceID:    cfg.Voice,
		engineLock: make(chan struct{}, 1),
		store:      store,
		logger:     logger.WithTag("speech"),
	}

	if store != nil {
		if saved, ok, err := store.Load(); err != nil {
			s.logger.Warn(fmt.Sprintf("loading persisted speech settings failed: %v", err))
		} else if ok {
			s.enabled = saved.Enabled && engine != nil
			s.rate = saved.Rate
			s.volume = saved.Volume
			if saved.VoiceID != "" {
				s.voiceID = saved.VoiceID
			}
		}
	}

	if engine != nil {
		s.applyToEngine()
	}
	return s
}

func (s *Speaker) applyToEngine() {
	if err := s.engine.SetRate(s.rate); err != nil {
		s.logger.Warn(fmt.Sprintf("set rate failed: %v", err))
	}
	if err := s.engine.SetVolume(s.volume); err != nil {
		s.logger.Warn(fmt.Sprintf("set volume failed: %v", err))
	}
	if s.voiceID != "" {
		if err := s.engine.SetVoice(s.voiceID); err != nil {
			s.logger.Warn(fmt.Sprintf("set voice failed: %v", err))
		}
	}
}

// Speak converts text to speech. Returns false without side effects when
// speech is disabled or the engine never initialized. Any in-flight utterance
// is stopped first.
func (s *Speaker) Speak(text string, mode Mode) bool {
	s.mu.Lock()
	if !s.enabled || s.engine == nil {
		s.mu.Unlock()
		s.logger.Debug("speech disabled or engine unavailable, skipping utterance")
		return false
	}
	engine := s.engine
	previous := s.workerDone
	s.mu.Unlock()

	// Replace policy: stop whatever is playing before starting anew.
	if err := engine.Stop(); err != nil {
		s.logger.Warn(fmt.Sprintf("stopping previous utterance failed: %v", err))
	}

	if mode == ModeSync {
		s.engineLock <- struct{}{}
		defer func() { <-s.engineLock }()

		if err := engine.Speak(text); err != nil {
			s.logger.Error(fmt.Sprintf("synchronous speech failed: %v", err))
			return false
		}
		return true
	}

	// Wait briefly for the previous worker; an utterance that overstays is
	// abandoned to its own fate.
	if previous != nil {
		select {
		case <-previous:
		case <-time.After(previousWorkerWait):
			s.logger.Debug("previous speech worker still running, proceeding anyway")
		}
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.workerDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)

		select {
		case s.engineLock <- struct{}{}:
		case <-time.After(engineAcquireWait):
			s.logger.Warn("could not acquire speech engine lock, skipping utterance")
			return
		}
		defer func() { <-s.engineLock }()

		if err := engine.Speak(text); err != nil {
			s.logger.Error(fmt.Sprintf("speech worker failed: %v", err))
		}
	}()

	return true
}

// SetEnabled toggles speech and persists the preference.
func (s *Speaker) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled && s.engine != nil
	s.mu.Unlock()
	s.persist()
}

// Enabled reports whether utterances will be played.
func (s *Speaker) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetRate updates the speech rate in words per minute.
func (s *Speaker) SetRate(wordsPerMinute int) error {
	s.mu.Lock()
	s.rate = wordsPerMinute
	engine := s.engine
	s.mu.Unlock()

	if engine != nil {
		if err := engine.SetRate(wordsPerMinute); err != nil {
			return err
		}
	}
	s.persist()
	return nil
}

// SetVolume updates playback volume in [0, 1].
func (s *Speaker) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return fmt.Errorf("volume %v out of range [0, 1]", volume)
	}

	s.mu.Lock()
	s.volume = volume
	engine := s.engine
	s.mu.Unlock()

	if engine != nil {
		if err := engine.SetVolume(volume); err != nil {
			return err
		}
	}
	s.persist()
	return nil
}

// SetVoice selects an engine voice by ID.
func (s *Speaker) SetVoice(voiceID string) error {
	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()

	if engine == nil {
		return fmt.Errorf("speech engine unavailable")
	}
	if err := engine.SetVoice(voiceID); err != nil {
		return err
	}

	s.mu.Lock()
	s.voiceID = voiceID
	s.mu.Unlock()
	s.persist()
	return nil
}

// Voices lists the selectable voices, or nil when no engine is present.
func (s *Speaker) Voices() []Voice {
	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()

	if engine == nil {
		return nil
	}
	return engine.Voices()
}

func (s *Speaker) persist() {
	if s.store == nil {
		return
	}

	s.mu.Lock()
	settings := models.SpeechSettings{
		ID:      1,
		Enabled: s.enabled,
		Rate:    s.rate,
		Volume:  s.volume,
		VoiceID: s.voiceID,
	}
	s.mu.Unlock()

	if err := s.store.Save(settings); err != nil {
		s.logger.Warn(fmt.Sprintf("persisting speech settings failed: %v", err))
	}
}
