// Package storage owns the relational store described in spec.md §1/§3.
// Grounded on the teacher's database/db.go: same connect-then-create-db
// dance, widened to this system's own table set.
package storage

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mediabridge/config"
	"mediabridge/storage/models"
)

// Open connects to Postgres, creating the target database if it does
// not yet exist, and auto-migrates every entity in spec.md §3.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	adminDSN := fmt.Sprintf("host=%s user=%s password=%s dbname=postgres port=%s sslmode=disable",
		cfg.Host, cfg.User, cfg.Password, cfg.Port)

	adminDB, err := gorm.Open(postgres.Open(adminDSN), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("storage: connecting to postgres: %w", err)
	}

	var count int64
	adminDB.Raw("SELECT count(*) FROM pg_database WHERE datname = ?", cfg.Name).Scan(&count)
	if count == 0 {
		if err := adminDB.Exec(fmt.Sprintf("CREATE DATABASE %s", cfg.Name)).Error; err != nil {
			return nil, fmt.Errorf("storage: creating database %s: %w", cfg.Name, err)
		}
	}

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("storage: connecting to %s: %w", cfg.Name, err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate runs AutoMigrate for every table this system owns.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.PersonIdentity{},
		&models.TranslationEntry{},
		&models.MediaMetadata{},
		&models.WatchlistEntry{},
		&models.UserMediaState{},
		&models.CustomCollection{},
		&models.CleanupTask{},
		&models.UserTemplate{},
		&models.Invitation{},
		&models.UserExtension{},
		&models.ActiveSession{},
		&models.SubscriptionDailyQuota{},
		&models.ReviewQueueEntry{},
		&models.ProcessedItem{},
		&models.ActorSubscription{},
	)
	if err != nil {
		return fmt.Errorf("storage: migrating schema: %w", err)
	}
	return nil
}
