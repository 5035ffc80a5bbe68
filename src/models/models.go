package models

// SpeechSettings persists the user's TTS preferences across restarts.
// Only one row exists; ID is always 1.
type SpeechSettings struct {
	ID      uint `gorm:"primaryKey"`
	Enabled bool
	Rate    int
	Volume  float64
	VoiceID string
}
