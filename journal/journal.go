package journal

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"quote-engine-go/gateway"
)

// FillRecord is one persisted execution with the position and realized PnL
// right after it was applied.
type FillRecord struct {
	ID         uint      `gorm:"primaryKey"`
	Ts         time.Time `gorm:"index"`
	Instrument string    `gorm:"index"`
	OrderID    string
	ClientID   string
	Side       string
	Price      string // decimal strings survive SQLite exactly
	Size       string
	Position   string
	Realized   string
	CreatedAt  time.Time
}

// Journal writes fills to a local SQLite file.
type Journal struct {
	db *gorm.DB
}

// Open creates or migrates the journal database.
func Open(path string) (*Journal, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.AutoMigrate(&FillRecord{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// RecordFill persists one execution.
func (j *Journal) RecordFill(f gateway.Fill, position, realized decimal.Decimal) error {
	rec := FillRecord{
		Ts:         f.Ts,
		Instrument: f.Instrument,
		OrderID:    f.OrderID,
		ClientID:   f.ClientID,
		Side:       string(f.Side),
		Price:      f.Price.String(),
		Size:       f.Size.String(),
		Position:   position.String(),
		Realized:   realized.String(),
	}
	return j.db.Create(&rec).Error
}

// Fills returns the most recent fills for one instrument, newest first.
func (j *Journal) Fills(instrument string, limit int) ([]FillRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []FillRecord
	err := j.db.Where("instrument = ?", instrument).
		Order("ts desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Close releases the underlying connection.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
