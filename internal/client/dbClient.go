package client

import (
	"fmt"
	"time"

	"subscription-billing/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// InitDBClient opens the configured database and migrates the schema.
// TranslateError is on so duplicate-key inserts surface as
// gorm.ErrDuplicatedKey; the completion ledger depends on that.
func InitDBClient(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Connection pool (important for webhooks)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&model.Plan{},
		&model.CheckoutIntent{},
		&model.CompletionEvent{},
		&model.Subscription{},
		&model.DiscountCode{},
		&model.CouponUsage{},
		&model.Commission{},
		&model.PayoutRequest{},
		&model.PayoutAudit{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return db, nil
}
