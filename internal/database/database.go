package database

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/l0lsec/XRayViewer/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SchemaVersion is the current storage schema version. Bumping it adds
// stores or indexes on the next open; migrations never delete or alter
// existing data.
const SchemaVersion = 2

// Config holds database configuration. Driver selects the embedded
// sqlite store (default) or an external postgres database.
type Config struct {
	Driver   string
	Path     string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	LogLevel string
}

// Client owns the storage engine connection. The connection is opened
// lazily on first use; concurrent first callers share the one open
// attempt instead of racing to open redundantly. A failed open is not
// cached: a transient condition such as a locked database file is
// retried on the next call rather than pinned until restart.
type Client struct {
	cfg Config
	mu  sync.Mutex
	db  *gorm.DB
}

// NewClient creates a client without opening a connection.
func NewClient(cfg Config) *Client {
	return &Client{cfg: cfg}
}

// DB returns the shared gorm handle, opening and migrating on first
// successful call. An unavailable engine is reported as an error,
// never a panic.
func (c *Client) DB(ctx context.Context) (*gorm.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		db, err := c.open()
		if err != nil {
			return nil, err
		}
		c.db = db
	}
	return c.db.WithContext(ctx), nil
}

func (c *Client) open() (*gorm.DB, error) {
	// Configure GORM logger
	var gormLogger logger.Interface
	switch c.cfg.LogLevel {
	case "silent":
		gormLogger = logger.Default.LogMode(logger.Silent)
	case "error":
		gormLogger = logger.Default.LogMode(logger.Error)
	case "warn":
		gormLogger = logger.Default.LogMode(logger.Warn)
	default:
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	gormConfig := &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var db *gorm.DB
	var err error
	switch c.cfg.Driver {
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.cfg.Host, c.cfg.Port, c.cfg.User, c.cfg.Password, c.cfg.DBName, c.cfg.SSLMode,
		)
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	default:
		db, err = gorm.Open(sqlite.Open(c.cfg.Path), gormConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying DB: %w", err)
	}

	// The embedded store is single-writer; postgres gets a small pool.
	if c.cfg.Driver == "postgres" {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	} else {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Usage reports bytes used by the storage engine. Only the embedded
// sqlite backend exposes usage; other backends report zero, matching
// platforms where no quota API exists.
func (c *Client) Usage() (int64, error) {
	if c.cfg.Driver == "postgres" || c.cfg.Path == "" || c.cfg.Path == ":memory:" {
		return 0, nil
	}
	info, err := os.Stat(c.cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to stat database file: %w", err)
	}
	return info.Size(), nil
}

// Ping reports whether the engine is reachable.
func (c *Client) Ping(ctx context.Context) error {
	db, err := c.DB(ctx)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection if one was opened.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	c.db = nil
	return sqlDB.Close()
}

// schemaMeta is the single row recording the schema version last
// applied to this database.
type schemaMeta struct {
	ID        int `gorm:"primaryKey"`
	Version   int
	UpdatedAt time.Time
}

func (schemaMeta) TableName() string {
	return "schema_meta"
}

// migrate applies additive, idempotent migrations up to SchemaVersion.
// Each step checks for existing stores before creating them, so a
// database opened at any prior version upgrades in place with its data
// intact.
func migrate(db *gorm.DB) error {
	m := db.Migrator()

	if !m.HasTable(&schemaMeta{}) {
		if err := m.CreateTable(&schemaMeta{}); err != nil {
			return fmt.Errorf("failed to create schema_meta: %w", err)
		}
	}

	var meta schemaMeta
	if err := db.Where("id = ?", 1).First(&meta).Error; err != nil {
		if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		meta = schemaMeta{ID: 1, Version: 0}
	}

	if meta.Version >= SchemaVersion {
		return nil
	}

	// Version 1 introduced studies, images, preferences and recent
	// files; version 2 added thumbnails. AutoMigrate only ever adds
	// missing tables, columns and indexes.
	if err := db.AutoMigrate(
		&models.StoredStudy{},
		&models.StoredImage{},
		&models.PreferenceRecord{},
		&models.RecentFile{},
		&models.ThumbnailEntry{},
	); err != nil {
		return fmt.Errorf("failed to migrate stores: %w", err)
	}

	meta.Version = SchemaVersion
	meta.UpdatedAt = time.Now().UTC()
	if err := db.Save(&meta).Error; err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return nil
}
