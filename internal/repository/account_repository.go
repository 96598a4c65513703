package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"upgrade-tracker/internal/model"
)

// AccountRepository manages the game accounts timers belong to.
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetOrCreate(ctx context.Context, userID uint, name string) (*model.Account, error) {
	if name == "" {
		return nil, nil
	}

	var account model.Account
	db := r.db.WithContext(ctx)
	err := db.Where("user_id = ? AND name = ?", userID, name).First(&account).Error
	switch {
	case err == nil:
		return &account, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		account = model.Account{UserID: userID, Name: name}
		if err := db.Create(&account).Error; err != nil {
			return nil, fmt.Errorf("create account: %w", err)
		}
		return &account, nil
	default:
		return nil, fmt.Errorf("find account: %w", err)
	}
}

func (r *AccountRepository) ListByUser(ctx context.Context, userID uint) ([]model.Account, error) {
	var accounts []model.Account
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("name ASC").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id uint) (*model.Account, error) {
	var account model.Account
	if err := r.db.WithContext(ctx).First(&account, id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}
