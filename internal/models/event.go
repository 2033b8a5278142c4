package models

import (
	"time"

	"github.com/google/uuid"
)

type ActivityEventType string

const (
	EventOpinionCreated      ActivityEventType = "OPINION_CREATED"
	EventAnswerSubmitted     ActivityEventType = "ANSWER_SUBMITTED"
	EventOpinionDeactivated  ActivityEventType = "OPINION_DEACTIVATED"
	EventOpinionReactivated  ActivityEventType = "OPINION_REACTIVATED"
	EventPoolCreated         ActivityEventType = "POOL_CREATED"
	EventPoolContribution    ActivityEventType = "POOL_CONTRIBUTION"
	EventPoolExecuted        ActivityEventType = "POOL_EXECUTED"
	EventPoolExecutionFailed ActivityEventType = "POOL_EXECUTION_FAILED"
	EventPoolExpired         ActivityEventType = "POOL_EXPIRED"
	EventPoolRefund          ActivityEventType = "POOL_REFUND"
	EventFeesWithdrawn       ActivityEventType = "FEES_WITHDRAWN"
)

// ActivityEvent is the audit trail appended alongside every state change.
// It is written in the same transaction as the change it records.
type ActivityEvent struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Type      ActivityEventType `gorm:"size:40;not null;index" json:"type"`
	Actor     string            `gorm:"size:64;not null;index" json:"actor"`
	OpinionID *uint             `gorm:"index" json:"opinion_id,omitempty"`
	PoolID    *uint             `gorm:"index" json:"pool_id,omitempty"`
	Amount    int64             `gorm:"not null;default:0" json:"amount"`
	Detail    string            `gorm:"size:500" json:"detail,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func (ActivityEvent) TableName() string {
	return "activity_events"
}
