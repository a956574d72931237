package db

import (
	"errors"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/outlook-relay/internal/db/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// AllModels lists every table managed by AutoMigrate.
var AllModels = []interface{}{
	&models.User{},
	&models.UserConfig{},
	&models.Message{},
	&models.SendLog{},
	&models.FetchLog{},
	&models.Session{},
}

// Dialector picks the gorm driver for a DATABASE_URL. postgres:// URLs use the
// Postgres driver; anything else is treated as a SQLite path or DSN.
func Dialector(url string) gorm.Dialector {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return postgres.Open(url)
	}
	return sqlite.Open(url)
}

// InitDB opens the database and runs migrations.
func InitDB(url string) (*gorm.DB, error) {
	return Open(Dialector(url), logger.Warn)
}

// Open connects with the given dialector and migrates all models.
func Open(dialector gorm.Dialector, level logger.LogLevel) (*gorm.DB, error) {
	database, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(AllModels...); err != nil {
		return nil, err
	}
	return database, nil
}

// IsDuplicateKey reports whether err is a unique-constraint violation.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// IsNotFound reports whether err is gorm's record-not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
