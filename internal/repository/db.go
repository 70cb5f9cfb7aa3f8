package repository

import (
	"fmt"
	"strings"

	"github.com/coursehub/portal-access/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB opens the portal database. Postgres DSNs are recognized by prefix;
// anything else is treated as a sqlite path (":memory:" included).
func OpenDB(dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "host=") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.Representative{},
		&domain.AccessCodeRecord{},
		&domain.SiteSettings{},
	); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
