package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AmountScale is the fixed-point scale of all amounts: 1 token = 1e6 units.
const AmountScale = 6

// AllowedCategories is the fixed category allow-list for opinions.
var AllowedCategories = []string{
	"crypto",
	"politics",
	"science",
	"technology",
	"sports",
	"entertainment",
	"culture",
	"finance",
	"other",
}

// IsAllowedCategory reports whether the category is on the allow-list.
func IsAllowedCategory(category string) bool {
	for _, c := range AllowedCategories {
		if c == category {
			return true
		}
	}
	return false
}

// AmountDecimal renders a smallest-unit amount as a token-denominated decimal.
func AmountDecimal(amount int64) decimal.Decimal {
	return decimal.New(amount, -AmountScale)
}

// Opinion represents a question whose current answer is owned and tradable.
// All prices are in smallest token units.
type Opinion struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Question           string    `gorm:"size:255;not null" json:"question"`
	CurrentAnswer      string    `gorm:"size:255;not null" json:"current_answer"`
	CurrentDescription string    `gorm:"size:500" json:"current_description"`
	Link               string    `gorm:"size:500" json:"link"`
	IpfsHash           string    `gorm:"size:255" json:"ipfs_hash"`
	Categories         string    `gorm:"size:255;not null" json:"categories"` // comma-joined, validated against AllowedCategories
	Creator            string    `gorm:"size:64;not null;index" json:"creator"`
	CurrentOwner       string    `gorm:"size:64;not null;index" json:"current_owner"`
	LastPrice          int64     `gorm:"not null" json:"last_price"`
	NextPrice          int64     `gorm:"not null" json:"next_price"`
	TotalVolume        int64     `gorm:"not null;default:0" json:"total_volume"`
	Competitive        bool      `gorm:"not null;default:false" json:"competitive"`
	IsActive           bool      `gorm:"not null;default:true;index" json:"is_active"`
	LastTradeAt        int64     `gorm:"not null;default:0" json:"last_trade_at"` // logical time units
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (Opinion) TableName() string {
	return "opinions"
}

// NextPriceDecimal returns the next price in token units for API responses.
func (o *Opinion) NextPriceDecimal() decimal.Decimal {
	return AmountDecimal(o.NextPrice)
}

// TotalVolumeDecimal returns the cumulative volume in token units.
func (o *Opinion) TotalVolumeDecimal() decimal.Decimal {
	return AmountDecimal(o.TotalVolume)
}

type AnswerSource string

const (
	AnswerSourceCreate AnswerSource = "CREATE"
	AnswerSourceTrade  AnswerSource = "TRADE"
	AnswerSourcePool   AnswerSource = "POOL"
)

// AnswerHistory is the append-only record of every accepted answer,
// including the creation entry. Position is 1-based and strictly ordered
// per opinion.
type AnswerHistory struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	OpinionID   uint         `gorm:"not null;uniqueIndex:idx_history_position" json:"opinion_id"`
	Position    int          `gorm:"not null;uniqueIndex:idx_history_position" json:"position"`
	Answer      string       `gorm:"size:255;not null" json:"answer"`
	Description string       `gorm:"size:500" json:"description"`
	Owner       string       `gorm:"size:64;not null" json:"owner"`
	Price       int64        `gorm:"not null" json:"price"`
	Source      AnswerSource `gorm:"size:20;not null" json:"source"`
	Block       int64        `gorm:"not null" json:"block"`
	LogicalTime int64        `gorm:"not null" json:"logical_time"`
	CreatedAt   time.Time    `json:"created_at"`
}

func (AnswerHistory) TableName() string {
	return "answer_histories"
}

// CreateOpinionRequest is the payload for creating an opinion
type CreateOpinionRequest struct {
	Question     string   `json:"question" binding:"required"`
	Answer       string   `json:"answer" binding:"required"`
	Description  string   `json:"description"`
	Link         string   `json:"link"`
	IpfsHash     string   `json:"ipfs_hash"`
	InitialPrice int64    `json:"initial_price" binding:"required"`
	Categories   []string `json:"categories" binding:"required"`
}

// SubmitAnswerRequest is the payload for submitting a competing answer
type SubmitAnswerRequest struct {
	Answer      string `json:"answer" binding:"required"`
	Description string `json:"description"`
	Link        string `json:"link"`
	IpfsHash    string `json:"ipfs_hash"`
}
