package speech

import (
	"errors"

	"gorm.io/gorm"

	"drawing-assistant-go/src/models"
)

// DBSettingsStore persists speech settings in the local settings database.
type DBSettingsStore struct {
	db *gorm.DB
}

// NewDBSettingsStore wraps an open database handle.
func NewDBSettingsStore(db *gorm.DB) *DBSettingsStore {
	return &DBSettingsStore{db: db}
}

// Save upserts the single settings row.
func (s *DBSettingsStore) Save(settings models.SpeechSettings) error {
	settings.ID = 1
	return s.db.Save(&settings).Error
}

// Load returns the persisted settings; ok=false when none were saved yet.
func (s *DBSettingsStore) Load() (models.SpeechSettings, bool, error) {
	var settings models.SpeechSettings
	err := s.db.First(&settings, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.SpeechSettings{}, false, nil
	}
	if err != nil {
		return models.SpeechSettings{}, false, err
	}
	return settings, true, nil
}
