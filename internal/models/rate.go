package models

import "time"

// TradeCounter counts accepted trades per caller within one logical block.
// The counter resets when a new block is observed for the caller.
type TradeCounter struct {
	Address     string    `gorm:"primaryKey;size:64" json:"address"`
	BlockNumber int64     `gorm:"not null" json:"block_number"`
	Count       int       `gorm:"not null;default:0" json:"count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (TradeCounter) TableName() string {
	return "trade_counters"
}

// OpinionTradeMark records the last logical block in which a caller traded
// a given opinion, enforcing the one-trade-per-block cooldown.
type OpinionTradeMark struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Address     string    `gorm:"size:64;not null;uniqueIndex:idx_trade_mark" json:"address"`
	OpinionID   uint      `gorm:"not null;uniqueIndex:idx_trade_mark" json:"opinion_id"`
	BlockNumber int64     `gorm:"not null" json:"block_number"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (OpinionTradeMark) TableName() string {
	return "opinion_trade_marks"
}
