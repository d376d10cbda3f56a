package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"ggnhomes/server/config"
	"ggnhomes/server/internal/models"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var ErrAreaNotFound = errors.New("area not found")

type Database struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewDatabase(driver, dsn string, logger *logrus.Logger) (*Database, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	gormConfig := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}

	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case DriverSQLite, "sqlite", "":
		db, err = openSQLite(dsn, gormConfig)
	case DriverPostgres:
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	if err != nil {
		return nil, err
	}

	logger.WithField("driver", driver).Info("Database connection established")
	return &Database{db: db, logger: logger}, nil
}

// openSQLite opens the file through mattn/go-sqlite3 and hands the pool to gorm.
// SQLite allows one writer, so the pool is pinned to a single connection.
func openSQLite(dsn string, gormConfig *gorm.Config) (*gorm.DB, error) {
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}
	if _, err := sqlDB.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, err
	}

	return gorm.Open(sqlite.New(sqlite.Config{DriverName: DriverSQLite, Conn: sqlDB}), gormConfig)
}

// NewTestDB returns a migrated in-memory database
func NewTestDB() (*gorm.DB, error) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	d, err := NewDatabase(DriverSQLite, ":memory:", logger)
	if err != nil {
		return nil, err
	}
	if err := MigrateSchema(d.db); err != nil {
		return nil, err
	}
	return d.db, nil
}

// Wrap builds a Database around an already opened gorm handle
func Wrap(db *gorm.DB, logger *logrus.Logger) *Database {
	if logger == nil {
		logger = logrus.New()
	}
	return &Database{db: db, logger: logger}
}

func (d *Database) GetDB() *gorm.DB {
	return d.db
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the connection, used by the health endpoint
func (d *Database) Ping() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// InsertProperties stores a batch of listings. The property service owns these rows;
// this is used for seeding and tests.
func (d *Database) InsertProperties(properties []models.Property) error {
	if len(properties) == 0 {
		return nil
	}
	now := time.Now()
	for i := range properties {
		if properties[i].ListedAt.IsZero() {
			properties[i].ListedAt = now
		}
		if properties[i].DefaultPropertyType == "" {
			properties[i].DefaultPropertyType = models.PropertyTypeRental
		}
	}
	if err := d.db.CreateInBatches(properties, 100).Error; err != nil {
		return fmt.Errorf("failed to insert properties: %w", err)
	}
	return nil
}

// ListAreas returns the stored area catalogue ordered by name
func (d *Database) ListAreas() ([]config.Area, error) {
	var rows []models.Area
	if err := d.db.Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query areas: %w", err)
	}

	areas := make([]config.Area, 0, len(rows))
	for _, row := range rows {
		areas = append(areas, config.Area{Name: row.Name, City: row.City})
	}
	return areas, nil
}

// UpsertArea adds an area, leaving an existing entry with the same name untouched
func (d *Database) UpsertArea(area config.Area) error {
	name := strings.TrimSpace(area.Name)
	if name == "" {
		return fmt.Errorf("area name is required")
	}
	row := models.Area{Name: name, City: area.City}
	if row.City == "" {
		row.City = "Gurgaon"
	}
	err := d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to insert area: %w", err)
	}
	return nil
}

// DeleteArea removes an area by exact name
func (d *Database) DeleteArea(name string) error {
	result := d.db.Where("name = ?", name).Delete(&models.Area{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete area: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrAreaNotFound, name)
	}
	return nil
}

// DistinctSectors returns the sector names present on active listings
func (d *Database) DistinctSectors() ([]string, error) {
	var sectors []string
	err := d.db.Model(&models.Property{}).
		Where("is_active = ? AND sector <> ''", true).
		Distinct().
		Order("sector").
		Pluck("sector", &sectors).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query sectors: %w", err)
	}
	return sectors, nil
}
