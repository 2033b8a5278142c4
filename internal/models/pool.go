package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PoolStatus string

const (
	PoolStatusActive   PoolStatus = "ACTIVE"
	PoolStatusExecuted PoolStatus = "EXECUTED"
	PoolStatusExpired  PoolStatus = "EXPIRED"
)

// Pool crowdfunds a single proposed answer for an opinion. Target is the
// opinion's next price captured at pool creation; Deadline is a logical
// timestamp. Status moves Active -> Executed or Active -> Expired, never back.
type Pool struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	OpinionID         uint       `gorm:"not null;index" json:"opinion_id"`
	Name              string     `gorm:"size:255" json:"name"`
	ProposedAnswer    string     `gorm:"size:255;not null" json:"proposed_answer"`
	Description       string     `gorm:"size:500" json:"description"`
	IpfsHash          string     `gorm:"size:255" json:"ipfs_hash"`
	Creator           string     `gorm:"size:64;not null;index" json:"creator"`
	Beneficiary       string     `gorm:"size:64" json:"beneficiary"`
	TargetAmount      int64      `gorm:"not null" json:"target_amount"`
	ContributedAmount int64      `gorm:"not null;default:0" json:"contributed_amount"`
	Deadline          int64      `gorm:"not null" json:"deadline"` // logical time units
	Status            PoolStatus `gorm:"size:20;not null;default:ACTIVE;index" json:"status"`
	ExecutedAt        *time.Time `json:"executed_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (Pool) TableName() string {
	return "pools"
}

// RemainingAmount returns how much funding is still needed.
func (p *Pool) RemainingAmount() int64 {
	remaining := p.TargetAmount - p.ContributedAmount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TargetDecimal returns the funding target in token units.
func (p *Pool) TargetDecimal() decimal.Decimal {
	return AmountDecimal(p.TargetAmount)
}

// ContributedDecimal returns the funded amount in token units.
func (p *Pool) ContributedDecimal() decimal.Decimal {
	return AmountDecimal(p.ContributedAmount)
}

// PoolContribution is the cumulative amount one address has put into a pool.
// The sum of all entries for a pool always equals the pool's contributed total.
type PoolContribution struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PoolID      uint      `gorm:"not null;uniqueIndex:idx_pool_contributor" json:"pool_id"`
	Contributor string    `gorm:"size:64;not null;uniqueIndex:idx_pool_contributor" json:"contributor"`
	Amount      int64     `gorm:"not null;default:0" json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (PoolContribution) TableName() string {
	return "pool_contributions"
}

// CreatePoolRequest is the payload for creating a pool
type CreatePoolRequest struct {
	OpinionID           uint   `json:"opinion_id" binding:"required"`
	Name                string `json:"name"`
	ProposedAnswer      string `json:"proposed_answer" binding:"required"`
	Description         string `json:"description"`
	IpfsHash            string `json:"ipfs_hash"`
	Beneficiary         string `json:"beneficiary"`
	Deadline            int64  `json:"deadline" binding:"required"`
	InitialContribution int64  `json:"initial_contribution" binding:"required"`
}

// ContributeRequest is the payload for contributing to a pool
type ContributeRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}
