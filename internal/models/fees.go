package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeBalance is the accumulated claimable balance for one payee address.
// It only grows until the payee withdraws, which zeroes it in one step.
type FeeBalance struct {
	Address   string    `gorm:"primaryKey;size:64" json:"address"`
	Amount    int64     `gorm:"not null;default:0" json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (FeeBalance) TableName() string {
	return "fee_balances"
}

// AmountDecimal returns the claimable balance in token units.
func (fb *FeeBalance) AmountDecimal() decimal.Decimal {
	return AmountDecimal(fb.Amount)
}
