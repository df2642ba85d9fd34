//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"

	authservice "github.com/Matidza/Auth-Service"
)

// AccountEntity is the Datastore entity for accounts
type AccountEntity struct {
	Key                        *datastore.Key `datastore:"__key__"`
	Email                      string         `datastore:"email"`
	PasswordHash               string         `datastore:"password_hash,noindex"`
	Provider                   string         `datastore:"provider"`
	ExternalID                 string         `datastore:"external_id"`
	DisplayName                string         `datastore:"display_name,noindex"`
	Role                       string         `datastore:"role"`
	Verified                   bool           `datastore:"verified"`
	VerificationCodeDigest     string         `datastore:"verification_code_digest,noindex"`
	VerificationCodeIssuedAt   time.Time      `datastore:"verification_code_issued_at,noindex"`
	ForgotPasswordCodeDigest   string         `datastore:"forgot_password_code_digest,noindex"`
	ForgotPasswordCodeIssuedAt time.Time      `datastore:"forgot_password_code_issued_at,noindex"`
	CreatedAt                  time.Time      `datastore:"created_at"`
	UpdatedAt                  time.Time      `datastore:"updated_at"`
	Version                    int            `datastore:"version"`
}

func (e *AccountEntity) ToAccount() *authservice.Account {
	return &authservice.Account{
		ID:                 e.Key.Name,
		Email:              e.Email,
		PasswordHash:       e.PasswordHash,
		Provider:           authservice.Provider(e.Provider),
		ExternalID:         e.ExternalID,
		DisplayName:        e.DisplayName,
		Role:               authservice.Role(e.Role),
		Verified:           e.Verified,
		VerificationCode:   authservice.CodeState{Digest: e.VerificationCodeDigest, IssuedAt: e.VerificationCodeIssuedAt},
		ForgotPasswordCode: authservice.CodeState{Digest: e.ForgotPasswordCodeDigest, IssuedAt: e.ForgotPasswordCodeIssuedAt},
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
}

func AccountToEntity(a *authservice.Account, key *datastore.Key) *AccountEntity {
	return &AccountEntity{
		Key:                        key,
		Email:                      a.Email,
		PasswordHash:               a.PasswordHash,
		Provider:                   string(a.Provider),
		ExternalID:                 a.ExternalID,
		DisplayName:                a.DisplayName,
		Role:                       string(a.Role),
		Verified:                   a.Verified,
		VerificationCodeDigest:     a.VerificationCode.Digest,
		VerificationCodeIssuedAt:   a.VerificationCode.IssuedAt,
		ForgotPasswordCodeDigest:   a.ForgotPasswordCode.Digest,
		ForgotPasswordCodeIssuedAt: a.ForgotPasswordCode.IssuedAt,
		CreatedAt:                  a.CreatedAt,
		UpdatedAt:                  a.UpdatedAt,
	}
}

// AccountEmailEntity reserves an email for one account.
// Key format: the normalized email
type AccountEmailEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	AccountID string         `datastore:"account_id"`
	CreatedAt time.Time      `datastore:"created_at"`
}

// PostEntity is the Datastore entity for posts
type PostEntity struct {
	Key         *datastore.Key `datastore:"__key__"`
	Title       string         `datastore:"title,noindex"`
	Description string         `datastore:"description,noindex"`
	OwnerID     string         `datastore:"owner_id"`
	CreatedAt   time.Time      `datastore:"created_at"`
	UpdatedAt   time.Time      `datastore:"updated_at"`
}

func (e *PostEntity) ToPost() *authservice.Post {
	return &authservice.Post{
		ID:          e.Key.Name,
		Title:       e.Title,
		Description: e.Description,
		OwnerID:     e.OwnerID,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func PostToEntity(p *authservice.Post, key *datastore.Key) *PostEntity {
	return &PostEntity{
		Key:         key,
		Title:       p.Title,
		Description: p.Description,
		OwnerID:     p.OwnerID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
