package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"sentra/internal/models"
)

// Open opens the embedded knowledge store at path and migrates the
// schema. The store is single-writer: concurrent readers are fine, all
// mutation funnels through one connection with a busy timeout.
func Open(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open knowledge store: %w", err)
	}

	// Serialize writes at the connection level.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access underlying store handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.Entity{},
		&models.EntityRelationship{},
		&models.ToolExecution{},
	); err != nil {
		return nil, fmt.Errorf("migrate knowledge store: %w", err)
	}

	logrus.WithField("path", path).Info("Knowledge store opened and migrated")
	return db, nil
}
