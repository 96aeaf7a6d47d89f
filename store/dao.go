package store

import (
	"fmt"
	"log"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverMysql  = "mysql"
	DriverSqlite = "sqlite"
)

type Dao struct {
	db *gorm.DB
}

// NewDao opens the journal database. dsn is a mysql dsn
// (user:passwd@tcp(host)/scheme?charset=utf8) or a sqlite file name.
func NewDao(driver, dsn string, l *log.Logger) (*Dao, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverMysql:
		dialector = mysql.Open(dsn)
	case DriverSqlite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown db driver: %s", driver)
	}
	Logger := logger.New(l, logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
	db, err := gorm.Open(dialector, &gorm.Config{Logger: Logger})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.AutoMigrate(&SwapRecord{}, &MarketRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Dao{db: db}, nil
}

func (dao *Dao) SaveSwap(record *SwapRecord) error {
	return dao.db.Create(record).Error
}

// SaveMarket inserts or replaces the record of a binding.
func (dao *Dao) SaveMarket(record *MarketRecord) error {
	return dao.db.Save(record).Error
}

func (dao *Dao) SelectSwap(id uint64) ([]*SwapRecord, error) {
	records := make([]*SwapRecord, 0)
	res := dao.db.Where("id = ?", id).Find(&records)
	return records, res.Error
}

// SelectSwaps returns the latest swaps of a binding, newest first.
func (dao *Dao) SelectSwaps(binding string, limit int) ([]*SwapRecord, error) {
	records := make([]*SwapRecord, 0)
	res := dao.db.Where("binding = ?", binding).Order("id desc").Limit(limit).Find(&records)
	return records, res.Error
}

func (dao *Dao) SelectMarkets(saver string) ([]*MarketRecord, error) {
	records := make([]*MarketRecord, 0)
	res := dao.db.Where("saver = ?", saver).Order("create_time").Find(&records)
	return records, res.Error
}

func (dao *Dao) Close() error {
	sqlDB, err := dao.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
