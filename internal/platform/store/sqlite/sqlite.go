// Package sqlite implements a SQLite-based option store using GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/store"
)

// DBFile is the database file name inside the data dir.
const DBFile = "sophi.db"

func init() {
	store.Register("sqlite", NewDriver)
}

// Driver implements store.Backend using SQLite via GORM.
type Driver struct {
	dataDir string
	db      *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Backend, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}

	return &Driver{
		dataDir: cfg.DataDir,
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Init opens the SQLite database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	if err := os.MkdirAll(d.dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	dbPath := filepath.Join(d.dataDir, DBFile)

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	d.db = db

	if err := db.WithContext(ctx).AutoMigrate(&store.Option{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetOption returns the stored value.
func (d *Driver) GetOption(ctx context.Context, name string) ([]byte, error) {
	if d.db == nil {
		return nil, store.ErrClosed
	}

	var opt store.Option
	result := d.db.WithContext(ctx).First(&opt, "name = ?", name)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return []byte(opt.Value), nil
}

// UpdateOption upserts the value.
func (d *Driver) UpdateOption(ctx context.Context, name string, value []byte) error {
	if d.db == nil {
		return store.ErrClosed
	}

	opt := store.Option{
		Name:      name,
		Value:     string(value),
		UpdatedAt: time.Now().Unix(),
	}
	return d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&opt).Error
}

// DeleteOption removes the option.
func (d *Driver) DeleteOption(ctx context.Context, name string) error {
	if d.db == nil {
		return store.ErrClosed
	}
	return d.db.WithContext(ctx).Delete(&store.Option{}, "name = ?", name).Error
}

// ListOptions returns the stored option names, sorted.
func (d *Driver) ListOptions(ctx context.Context) ([]string, error) {
	if d.db == nil {
		return nil, store.ErrClosed
	}

	var names []string
	if err := d.db.WithContext(ctx).Model(&store.Option{}).Order("name").Pluck("name", &names).Error; err != nil {
		return nil, err
	}
	return names, nil
}

// Ensure Driver implements store.Backend.
var _ store.Backend = (*Driver)(nil)
