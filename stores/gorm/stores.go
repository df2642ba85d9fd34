//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	authservice "github.com/Matidza/Auth-Service"
)

// AutoMigrate runs database migrations for all service tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&AccountModel{},
		&PostModel{},
	)
}

// isUniqueViolation recognizes unique constraint failures across drivers.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}

// =============================================================================
// AccountStore
// =============================================================================

// AccountStore implements authservice.AccountStore using GORM
type AccountStore struct {
	db *gorm.DB
}

func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) CreateAccount(ctx context.Context, account *authservice.Account) error {
	account.Email = authservice.NormalizeEmail(account.Email)
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	model := AccountToModel(account)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return authservice.ErrDuplicateEmail
		}
		return fmt.Errorf("create account: %w", err)
	}
	account.CreatedAt = model.CreatedAt
	account.UpdatedAt = model.UpdatedAt
	return nil
}

func (s *AccountStore) GetAccountByID(ctx context.Context, id string) (*authservice.Account, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *AccountStore) GetAccountByEmail(ctx context.Context, email string) (*authservice.Account, error) {
	return s.first(ctx, "email = ?", authservice.NormalizeEmail(email))
}

func (s *AccountStore) first(ctx context.Context, query string, arg any) (*authservice.Account, error) {
	var model AccountModel
	if err := s.db.WithContext(ctx).First(&model, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authservice.ErrAccountNotFound
		}
		return nil, err
	}
	return model.ToAccount(), nil
}

// SaveAccount writes every column, including cleared code slots.
func (s *AccountStore) SaveAccount(ctx context.Context, account *authservice.Account) error {
	model := AccountToModel(account)
	result := s.db.WithContext(ctx).Model(&AccountModel{ID: account.ID}).
		Select("*").Omit("id", "email", "created_at").
		Updates(model)
	if result.Error != nil {
		return fmt.Errorf("save account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return authservice.ErrAccountNotFound
	}
	return nil
}

// =============================================================================
// PostStore
// =============================================================================

// PostStore implements authservice.PostStore using GORM
type PostStore struct {
	db *gorm.DB
}

func NewPostStore(db *gorm.DB) *PostStore {
	return &PostStore{db: db}
}

func (s *PostStore) CreatePost(ctx context.Context, post *authservice.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(PostToModel(post)).Error
}

func (s *PostStore) GetPost(ctx context.Context, id string) (*authservice.Post, error) {
	var model PostModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authservice.ErrPostNotFound
		}
		return nil, err
	}
	return model.ToPost(), nil
}

func (s *PostStore) ListPosts(ctx context.Context, offset, limit int) ([]*authservice.Post, error) {
	offset = max(offset, 0)
	var models []PostModel
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	posts := make([]*authservice.Post, len(models))
	for i := range models {
		posts[i] = models[i].ToPost()
	}
	return posts, nil
}

func (s *PostStore) SavePost(ctx context.Context, post *authservice.Post) error {
	result := s.db.WithContext(ctx).Model(&PostModel{ID: post.ID}).
		Select("title", "description", "updated_at").
		Updates(PostToModel(post))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return authservice.ErrPostNotFound
	}
	return nil
}

func (s *PostStore) DeletePost(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&PostModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return authservice.ErrPostNotFound
	}
	return nil
}
