package services

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"opinion-market/internal/models"
)

// emitEvent appends an audit entry inside the caller's transaction.
func emitEvent(tx *gorm.DB, evt models.ActivityEvent) error {
	evt.ID = uuid.New()
	return tx.Create(&evt).Error
}

func opinionRef(id uint) *uint { return &id }
func poolRef(id uint) *uint    { return &id }
