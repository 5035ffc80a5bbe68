package database

import (
	"os"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"drawing-assistant-go/src/models"
)

// InitDB opens the local settings database. DATABASE_URL may point at an
// alternate sqlite file using the sqlite:// scheme; with no value set the
// database lives next to the other app data.
func InitDB() (*gorm.DB, error) {
	path := "data/assistant.db"
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		path = strings.TrimPrefix(dsn, "sqlite://")
	}

	if dir := strings.TrimSuffix(path, "/"); strings.Contains(dir, "/") {
		if err := os.MkdirAll(path[:strings.LastIndex(path, "/")], 0755); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&models.SpeechSettings{}); err != nil {
		return nil, err
	}

	return db, nil
}
