package database

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"memtest-go/internal/config"
	logging "memtest-go/internal/logging"
	"memtest-go/internal/models"
)

// Open connects to the configured database without migrating it.
func Open(dbConf config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := dialectorFor(dbConf)
	if err != nil {
		return nil, err
	}

	gormLogger := logging.NewGormZapLogger(log)
	gormLogger.LogLevel = logger.Warn

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Database connection established successfully.", zap.String("driver", dbConf.Driver))
	return db, nil
}

// Init opens the database and runs migrations.
func Init(dbConf config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := Open(dbConf, log)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, log); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates the result tables. Trial rows share one model but live in
// one table per variant.
func Migrate(db *gorm.DB, log *zap.Logger) error {
	for _, table := range []string{models.TableTrialsColor, models.TableTrialsMonochrome} {
		if err := db.Table(table).AutoMigrate(&models.TrialResult{}); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", table, err)
		}
	}
	if err := db.AutoMigrate(&models.QuestionnaireResult{}); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", models.TableQuestionnaire, err)
	}
	log.Info("Database migrations completed successfully.")
	return nil
}

func dialectorFor(dbConf config.DatabaseConfig) (gorm.Dialector, error) {
	switch dbConf.Driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			dbConf.Host, dbConf.User, dbConf.Password, dbConf.DBName, dbConf.Port)
		return postgres.Open(dsn), nil
	case "sqlite":
		if dbConf.Path != ":memory:" && dbConf.Path != "" {
			if err := os.MkdirAll(filepath.Dir(dbConf.Path), 0755); err != nil {
				return nil, fmt.Errorf("could not create database directory: %w", err)
			}
		}
		return sqlite.Open(dbConf.Path), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dbConf.Driver)
	}
}
