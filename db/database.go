package db

import (
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/ncruces/go-sqlite3/gormlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// zapWriter routes gorm's log output into zap. stdout is never used because
// the worker speaks its protocol there.
type zapWriter struct {
	log *zap.SugaredLogger
}

func (w zapWriter) Printf(format string, args ...interface{}) {
	w.log.Warnf(format, args...)
}

// InitDatabase opens the SQLite database at dbPath and migrates the engine's
// models.
func InitDatabase(dbPath string, log *zap.SugaredLogger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	newLogger := gormlogger.New(
		zapWriter{log: log.With(zap.String("source", "gorm"))},
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(gormlite.Open(dbPath), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := db.AutoMigrate(&AppliedMod{}, &AppliedElement{}, &InstallHistory{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}
	return db, nil
}
