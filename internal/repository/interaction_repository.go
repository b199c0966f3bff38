package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"invoicechat/internal/model"
)

type InteractionRepository struct {
	db *gorm.DB
}

func NewInteractionRepository(db *gorm.DB) *InteractionRepository {
	return &InteractionRepository{db: db}
}

// CreateTurn writes the question and then the answer inside one transaction.
func (r *InteractionRepository) CreateTurn(ctx context.Context, question, answer *model.Interaction) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(question).Error; err != nil {
			return fmt.Errorf("create question interaction failed: %w", err)
		}
		if err := tx.Create(answer).Error; err != nil {
			return fmt.Errorf("create answer interaction failed: %w", err)
		}
		return nil
	})
}
