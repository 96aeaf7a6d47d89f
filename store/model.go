package store

// SwapRecord is one swap as the controller saw it: the bounds it sent and
// what its wallets gained or lost.
type SwapRecord struct {
	Id           uint64 `gorm:"primaryKey;autoIncrement"`
	Binding      string `gorm:"type:varchar(48);not null;index"`
	Market       string `gorm:"type:varchar(48);not null"`
	Side         string `gorm:"type:varchar(8);not null"`
	LimitPrice   uint64 `gorm:"type:bigint(20);not null"`
	MaxCoinQty   uint64 `gorm:"type:bigint(20);not null"`
	MaxNativePc  uint64 `gorm:"type:bigint(20);not null"`
	CoinDelta    int64  `gorm:"type:bigint(20);not null"`
	PcDelta      int64  `gorm:"type:bigint(20);not null"`
	Slot         uint64 `gorm:"type:bigint(20);not null"`
	Signature    string `gorm:"type:varchar(120);not null"`
	Error        string `gorm:"type:varchar(512);not null"`
	// BalanceError marks a committed swap whose deltas could not be read.
	BalanceError string `gorm:"type:varchar(512);not null"`
	CreateTime   int64  `gorm:"type:bigint(20);not null"`
}

type MarketRecord struct {
	Binding     string `gorm:"primaryKey;type:varchar(48);not null"`
	Saver       string `gorm:"type:varchar(48);not null;index"`
	Market      string `gorm:"type:varchar(48);not null"`
	OpenOrders  string `gorm:"type:varchar(48);not null"`
	CoinVault   string `gorm:"type:varchar(48);not null"`
	PcVault     string `gorm:"type:varchar(48);not null"`
	CoinLotSize uint64 `gorm:"type:bigint(20);not null"`
	CreateTime  int64  `gorm:"type:bigint(20);not null"`
}
