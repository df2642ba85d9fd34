package authservice

import (
	"context"
	"strings"
	"time"
)

// Role is the two-valued tag carried by every account.
type Role string

const (
	RoleMentee Role = "mentee"
	RoleMentor Role = "mentor"
)

func (r Role) Valid() bool { return r == RoleMentee || r == RoleMentor }

// Provider records where an account's credential comes from.
type Provider string

const (
	ProviderLocal    Provider = "local"
	ProviderGoogle   Provider = "google"
	ProviderGithub   Provider = "github"
	ProviderLinkedIn Provider = "linkedin"
)

// CodeSlot names one of the two independent one-time code slots of an account.
type CodeSlot string

const (
	SlotVerification   CodeSlot = "verification"
	SlotForgotPassword CodeSlot = "forgot-password"
)

// CodeState is the persisted state of a code slot. Digest and IssuedAt are
// always set and cleared together.
type CodeState struct {
	Digest   string    `json:"digest,omitempty"`
	IssuedAt time.Time `json:"issued_at,omitempty"`
}

// Issued reports whether the slot holds an outstanding code.
func (c CodeState) Issued() bool { return c.Digest != "" && !c.IssuedAt.IsZero() }

func (c *CodeState) Clear() {
	c.Digest = ""
	c.IssuedAt = time.Time{}
}

// Account is a registered identity, local or federated.
type Account struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	PasswordHash       string    `json:"password_hash"`
	Provider           Provider  `json:"provider"`
	ExternalID         string    `json:"external_id,omitempty"`
	DisplayName        string    `json:"display_name,omitempty"`
	Role               Role      `json:"role"`
	Verified           bool      `json:"verified"`
	VerificationCode   CodeState `json:"verification_code"`
	ForgotPasswordCode CodeState `json:"forgot_password_code"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Slot returns a pointer to the code state for the given slot.
func (a *Account) Slot(slot CodeSlot) *CodeState {
	if slot == SlotForgotPassword {
		return &a.ForgotPasswordCode
	}
	return &a.VerificationCode
}

// Summary is the public view of an account. It never carries secrets.
func (a *Account) Summary() map[string]any {
	return map[string]any{
		"accountId": a.ID,
		"email":     a.Email,
		"role":      a.Role,
		"verified":  a.Verified,
		"provider":  a.Provider,
	}
}

// NormalizeEmail lower-cases and trims an email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Post is a blog entry owned by one account.
type Post struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	OwnerID     string    `json:"ownerId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// AccountStore persists accounts keyed by id with a unique email index.
type AccountStore interface {
	// CreateAccount inserts a new account. The store assigns ID when empty
	// and returns ErrDuplicateEmail if the email is taken.
	CreateAccount(ctx context.Context, account *Account) error

	// GetAccountByID returns ErrAccountNotFound when absent.
	GetAccountByID(ctx context.Context, id string) (*Account, error)

	// GetAccountByEmail expects a normalized email and returns
	// ErrAccountNotFound when absent.
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)

	// SaveAccount replaces an existing account.
	SaveAccount(ctx context.Context, account *Account) error
}

// PostStore persists posts.
type PostStore interface {
	// CreatePost inserts a post, assigning ID when empty.
	CreatePost(ctx context.Context, post *Post) error

	// GetPost returns ErrPostNotFound when absent.
	GetPost(ctx context.Context, id string) (*Post, error)

	// ListPosts returns posts newest first.
	ListPosts(ctx context.Context, offset, limit int) ([]*Post, error)

	SavePost(ctx context.Context, post *Post) error

	// DeletePost returns ErrPostNotFound when absent.
	DeletePost(ctx context.Context, id string) error
}
