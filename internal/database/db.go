package database

import (
	"fmt"
	"log"
	"strings"

	"fruittrace/internal/config"
	"fruittrace/internal/model"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Models lists every table owned by the service, in migration order.
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.RefreshToken{},
		&model.Farm{},
		&model.Certification{},
		&model.Product{},
		&model.ProductImage{},
		&model.ProductCertification{},
		&model.ApprovalRequest{},
		&model.AuditLog{},
	}
}

// NewConnection initializes a new connection pool using GORM
func NewConnection(cfg config.DBConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(withForeignKeys(cfg.DSN)), gormCfg)
	case "postgres", "":
		db, err = gorm.Open(postgres.Open(cfg.PostgresDSN()), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "sqlite" {
		// one writer at a time; shared in-memory databases vanish when the last connection closes
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	return db, nil
}

// AutoMigrate creates or updates the schema for all models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	log.Println("Database schema is up to date.")
	return nil
}

// Close releases the underlying pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// withForeignKeys turns on SQLite FK enforcement, which cascading deletes rely on.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}
