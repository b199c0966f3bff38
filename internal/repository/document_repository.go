package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"invoicechat/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// CreateWithOwner resolves the owner and inserts doc in one transaction, so a
// failed document insert never leaves a freshly synthesized user behind.
func (r *DocumentRepository) CreateWithOwner(ctx context.Context, owner *model.User, doc *model.Document) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := NewUserRepository(tx).Ensure(ctx, owner); err != nil {
			return err
		}
		doc.UserID = owner.ID
		if err := tx.Create(doc).Error; err != nil {
			return fmt.Errorf("create document failed: %w", err)
		}
		return nil
	})
}

// GetWithInteractions returns nil, nil when the id is unknown.
func (r *DocumentRepository) GetWithInteractions(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).
		Preload("Interactions", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("id = ?", id).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) ListSummariesByUserID(ctx context.Context, userID string) ([]model.DocumentSummary, error) {
	list := make([]model.DocumentSummary, 0)
	err := r.db.WithContext(ctx).
		Model(&model.Document{}).
		Select("id", "title", "created_at", "file_url").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}
