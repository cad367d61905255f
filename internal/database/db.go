package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warrenlibrary/library-backend/internal/config"
	"github.com/warrenlibrary/library-backend/internal/models"
	"github.com/warrenlibrary/library-backend/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// openBorrowIndexSQL enforces "at most one open borrow per book" in the store
// itself. MySQL has no partial indexes; there the row lock taken by Borrow is
// the only guard.
const openBorrowIndexSQL = `CREATE UNIQUE INDEX IF NOT EXISTS idx_borrows_open_book ON borrows (book_id) WHERE return_date IS NULL`

// Connect opens the configured database and sizes its connection pool.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := Dialector(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxIdleTime(30 * time.Second)
	if cfg.DatabaseDriver == config.DriverSQLite {
		// One writer at a time; avoids SQLITE_BUSY under concurrent borrows.
		sqlDB.SetMaxOpenConns(1)
	}

	logger.Log.Info("Database connected",
		zap.String("driver", cfg.DatabaseDriver),
	)
	return db, nil
}

// Dialector maps a configured driver name to its GORM dialector.
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case config.DriverPostgres:
		return postgres.Open(dsn), nil
	case config.DriverSQLite:
		return sqlite.Open(dsn), nil
	case config.DriverMySQL:
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Migrate creates the schema and the open-borrow guard index.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Book{}, &models.Borrow{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	if db.Dialector.Name() != config.DriverMySQL {
		if err := db.Exec(openBorrowIndexSQL).Error; err != nil {
			return fmt.Errorf("create open borrow index: %w", err)
		}
	}

	logger.Log.Info("Database migration completed")
	return nil
}

// IsUniqueViolation reports whether err is a unique-constraint failure on any
// supported driver.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "duplicate entry")
}
