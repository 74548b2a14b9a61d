package database

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/lshigami/examprep/config"
	"github.com/lshigami/examprep/internal/model"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SingleActiveIndex is the partial unique index that keeps at most one
// in_progress attempt per (user_id, test_id).
const SingleActiveIndex = "idx_test_attempts_single_active"

func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Database.Driver {
	case "sqlite":
		db, err = OpenSQLite(cfg.Database.Path)
	case "postgres", "":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port)
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		log.Error().Err(err).Str("driver", cfg.Database.Driver).Msg("Failed to connect to database")
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Database.Driver != "sqlite" {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	log.Info().Str("driver", cfg.Database.Driver).Msg("Database connection established")
	return db, nil
}

// OpenSQLite opens a SQLite database on a single connection, which SQLite
// needs for transactional writes.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// Migrate creates or updates the tables. The single-active index is
// created separately by EnsureSingleActiveIndex, since existing duplicate
// in-progress attempts make it fail until they are reconciled.
func Migrate(db *gorm.DB) error {
	log.Info().Msg("Running database migrations...")
	err := db.AutoMigrate(
		&model.Exam{},
		&model.Subject{},
		&model.Topic{},
		&model.Question{},
		&model.ScoringRule{},
		&model.Test{},
		&model.TestQuestion{},
		&model.TestAttempt{},
		&model.AttemptQuestion{},
		&model.AnswerRecord{},
	)
	if err != nil {
		log.Error().Err(err).Msg("Database migration failed")
		return err
	}
	log.Info().Msg("Database migration completed successfully.")
	return nil
}

// EnsureSingleActiveIndex creates the partial unique index keeping one
// in_progress attempt per (user_id, test_id). It fails while duplicates exist.
func EnsureSingleActiveIndex(db *gorm.DB) error {
	stmt := "CREATE UNIQUE INDEX IF NOT EXISTS " + SingleActiveIndex +
		" ON test_attempts (user_id, test_id) WHERE status = '" + model.AttemptStatusInProgress + "'"
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("creating %s: %w", SingleActiveIndex, err)
	}
	return nil
}
