package service

import (
	"context"

	"upgrade-tracker/internal/model"
	"upgrade-tracker/internal/repository"
)

// AccountService provides helpers around game accounts.
type AccountService struct {
	repo *repository.AccountRepository
}

func NewAccountService(repo *repository.AccountRepository) *AccountService {
	return &AccountService{repo: repo}
}

func (s *AccountService) List(ctx context.Context, user *model.User) ([]model.Account, error) {
	return s.repo.ListByUser(ctx, user.ID)
}
