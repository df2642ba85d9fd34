//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	authservice "github.com/Matidza/Auth-Service"
)

// AccountModel is the GORM model for accounts
type AccountModel struct {
	ID           string `gorm:"primaryKey;size:64"`
	Email        string `gorm:"size:255;uniqueIndex"`
	PasswordHash string `gorm:"size:255"`
	Provider     string `gorm:"size:32;default:local"`
	ExternalID   string `gorm:"size:255"`
	DisplayName  string `gorm:"size:255"`
	Role         string `gorm:"size:16;default:mentee"`
	Verified     bool   `gorm:"default:false"`

	VerificationCodeDigest     string `gorm:"size:128"`
	VerificationCodeIssuedAt   *time.Time
	ForgotPasswordCodeDigest   string `gorm:"size:128"`
	ForgotPasswordCodeIssuedAt *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (AccountModel) TableName() string {
	return "accounts"
}

func (m *AccountModel) ToAccount() *authservice.Account {
	return &authservice.Account{
		ID:                 m.ID,
		Email:              m.Email,
		PasswordHash:       m.PasswordHash,
		Provider:           authservice.Provider(m.Provider),
		ExternalID:         m.ExternalID,
		DisplayName:        m.DisplayName,
		Role:               authservice.Role(m.Role),
		Verified:           m.Verified,
		VerificationCode:   codeState(m.VerificationCodeDigest, m.VerificationCodeIssuedAt),
		ForgotPasswordCode: codeState(m.ForgotPasswordCodeDigest, m.ForgotPasswordCodeIssuedAt),
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func AccountToModel(a *authservice.Account) *AccountModel {
	return &AccountModel{
		ID:                         a.ID,
		Email:                      a.Email,
		PasswordHash:               a.PasswordHash,
		Provider:                   string(a.Provider),
		ExternalID:                 a.ExternalID,
		DisplayName:                a.DisplayName,
		Role:                       string(a.Role),
		Verified:                   a.Verified,
		VerificationCodeDigest:     a.VerificationCode.Digest,
		VerificationCodeIssuedAt:   issuedAt(a.VerificationCode),
		ForgotPasswordCodeDigest:   a.ForgotPasswordCode.Digest,
		ForgotPasswordCodeIssuedAt: issuedAt(a.ForgotPasswordCode),
		CreatedAt:                  a.CreatedAt,
		UpdatedAt:                  a.UpdatedAt,
	}
}

// A cleared slot is stored as an empty digest and a NULL timestamp.
func issuedAt(c authservice.CodeState) *time.Time {
	if !c.Issued() {
		return nil
	}
	t := c.IssuedAt
	return &t
}

func codeState(digest string, issued *time.Time) authservice.CodeState {
	if digest == "" || issued == nil {
		return authservice.CodeState{}
	}
	return authservice.CodeState{Digest: digest, IssuedAt: *issued}
}

// PostModel is the GORM model for posts
type PostModel struct {
	ID          string    `gorm:"primaryKey;size:64"`
	Title       string    `gorm:"size:255"`
	Description string    `gorm:"type:text"`
	OwnerID     string    `gorm:"size:64;index"`
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
}

func (PostModel) TableName() string {
	return "posts"
}

func (m *PostModel) ToPost() *authservice.Post {
	return &authservice.Post{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		OwnerID:     m.OwnerID,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func PostToModel(p *authservice.Post) *PostModel {
	return &PostModel{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		OwnerID:     p.OwnerID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
