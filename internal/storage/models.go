package storage

// Trade is one stored execution row. Uniqueness on the natural key
// (contractName, time, price, quantity) makes inserts idempotent: replaying
// the same message collapses to one row.
type Trade struct {
	ID                uint     `gorm:"primaryKey;autoIncrement"`
	ContractName      string   `gorm:"column:contractName;not null;uniqueIndex:ux_trades_key;index:ix_trades_cn_time,priority:1"`
	Time              string   `gorm:"column:time;not null;uniqueIndex:ux_trades_key;index:ix_trades_cn_time,priority:2"`
	Price             float64  `gorm:"column:price;not null;uniqueIndex:ux_trades_key"`
	Quantity          float64  `gorm:"column:quantity;not null;uniqueIndex:ux_trades_key"`
	Region            *string  `gorm:"column:region"`
	SnapshotTimestamp string   `gorm:"column:snapshotTimestamp;not null;index:ix_trades_snap"`
	AOF1h             *float64 `gorm:"column:aof1h"`
}

// TableName overrides the gorm default.
func (Trade) TableName() string { return "trades" }

// Board is one stored order-board snapshot. The composite primary key
// (contractName, time) gives later snapshots last-write-wins semantics.
type Board struct {
	ContractName  string   `gorm:"column:contractName;primaryKey"`
	Time          string   `gorm:"column:time;primaryKey;index:ix_boardinfo_time"`
	AveragePrice  *float64 `gorm:"column:averagePrice"`
	MinPrice      *float64 `gorm:"column:minPrice"`
	MaxPrice      *float64 `gorm:"column:maxPrice"`
	MCP           *float64 `gorm:"column:mcp"`
	LastPrice     *float64 `gorm:"column:lastPrice"`
	Total         *float64 `gorm:"column:total"`
	Volume        *float64 `gorm:"column:volume"`
	BestBuyPrice  *float64 `gorm:"column:bestBuyPrice"`
	BestSellPrice *float64 `gorm:"column:bestSellPrice"`
}

// TableName overrides the gorm default.
func (Board) TableName() string { return "boardinfo" }
