package session

import (
	"fmt"
	"sync"
)

// historyCap bounds how many recent critiques feed the continuation prompt.
const historyCap = 5

const continuationTemplate = "Continue providing brief, actionable feedback for the user's comic drawing based on previous suggestions. " +
	"Only mention new or ongoing improvements.\n" +
	"Previous suggestion: %s"

// State is the process-wide rolling drawing session: the most recently snapped
// frame, the most recent successful critique, and a short critique history
// that steers follow-up prompts. One mutex serializes all access; requests
// arrive concurrently from the web layer.
type State struct {
	mu               sync.Mutex
	basePrompt       string
	history          []string
	lastCritiqueText string
	lastFramePath    string
}

func NewState(basePrompt string) *State {
	return &State{basePrompt: basePrompt}
}

// NextPrompt returns the system prompt for the next critique call: the full
// base prompt for a fresh session, or a continuation prompt embedding the
// most recent critique once history exists.
func (s *State) NextPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.history) == 0 {
		return s.basePrompt
	}
	return fmt.Sprintf(continuationTemplate, s.history[len(s.history)-1])
}

// RecordCritique stores a successful critique. Callers must not record failed
// results; failures never enter history.
func (s *State) RecordCritique(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, text)
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	s.lastCritiqueText = text
}

// LastCritique returns the most recent successful critique text, or "" when
// none has been recorded since the last reset.
func (s *State) LastCritique() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCritiqueText
}

// SetLastFrame records the path of the most recently persisted frame.
func (s *State) SetLastFrame(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFramePath = path
}

// LastFrame returns the path of the most recently persisted frame, or "".
func (s *State) LastFrame() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFramePath
}

// Reset clears the critique history and last critique so the assistant starts
// over. The last snapped frame is kept: a reference image can still be
// requested for it after a fresh critique.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.lastCritiqueText = ""
}

// HistorySize reports how many critiques are currently retained.
func (s *State) HistorySize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}
