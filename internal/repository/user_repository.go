package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"invoicechat/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Ensure inserts user unless a row with the same id already exists, then loads
// the stored row into user. It reports whether a new row was written.
func (r *UserRepository) Ensure(ctx context.Context, user *model.User) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(user)
	if result.Error != nil {
		return false, fmt.Errorf("ensure user failed: %w", result.Error)
	}
	if err := r.db.WithContext(ctx).Where("id = ?", user.ID).First(user).Error; err != nil {
		return false, fmt.Errorf("load ensured user failed: %w", err)
	}
	return result.RowsAffected > 0, nil
}
