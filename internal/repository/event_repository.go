package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"invoicechat/internal/model"
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Record stores ev; a redelivered event with a known event id is a no-op.
func (r *EventRepository) Record(ctx context.Context, ev *model.DocumentEvent) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(ev)
	if result.Error != nil {
		return false, fmt.Errorf("record document event failed: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
