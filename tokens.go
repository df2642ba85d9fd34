package authservice

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes access from refresh tokens inside the claims.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Default token lifetimes
const (
	DefaultAccessTokenTTL    = 30 * time.Minute
	DefaultRefreshTokenTTL   = 7 * 24 * time.Hour
	DefaultFederatedTokenTTL = 6 * time.Hour
)

// Claims carried by every session token.
type Claims struct {
	jwt.RegisteredClaims
	AccountID string    `json:"accountId"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	Verified  bool      `json:"verified"`
	Type      TokenType `json:"type"`
}

// IssuedToken is a signed token with its expiry.
type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
	TTL       time.Duration
}

// TokenPair is what a successful sign in produces.
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// TokenIssuer mints and verifies HS256 session tokens. Access and refresh
// tokens are signed with different secrets so one can never stand in for
// the other.
type TokenIssuer struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	FederatedTTL  time.Duration
	Now           func() time.Time
}

func (t *TokenIssuer) EnsureDefaults() *TokenIssuer {
	if t.AccessTTL <= 0 {
		t.AccessTTL = DefaultAccessTokenTTL
	}
	if t.RefreshTTL <= 0 {
		t.RefreshTTL = DefaultRefreshTokenTTL
	}
	if t.FederatedTTL <= 0 {
		t.FederatedTTL = DefaultFederatedTokenTTL
	}
	if t.Issuer == "" {
		t.Issuer = "auth-service"
	}
	if t.Now == nil {
		t.Now = time.Now
	}
	return t
}

// IssueAccess mints a short lived access token.
func (t *TokenIssuer) IssueAccess(account *Account) (IssuedToken, error) {
	return t.sign(account, TokenTypeAccess, t.AccessTTL, t.AccessSecret)
}

// IssueFederated mints the longer lived access token handed out at the end
// of an OAuth callback.
func (t *TokenIssuer) IssueFederated(account *Account) (IssuedToken, error) {
	return t.sign(account, TokenTypeAccess, t.FederatedTTL, t.AccessSecret)
}

func (t *TokenIssuer) IssueRefresh(account *Account) (IssuedToken, error) {
	return t.sign(account, TokenTypeRefresh, t.RefreshTTL, t.RefreshSecret)
}

func (t *TokenIssuer) IssuePair(account *Account) (TokenPair, error) {
	access, err := t.IssueAccess(account)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := t.IssueRefresh(account)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

func (t *TokenIssuer) sign(account *Account, tokenType TokenType, ttl time.Duration, secret []byte) (IssuedToken, error) {
	t.EnsureDefaults()
	if len(secret) == 0 {
		return IssuedToken{}, fmt.Errorf("no signing secret configured for %s tokens", tokenType)
	}
	now := t.Now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			Issuer:    t.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		AccountID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
		Verified:  account.Verified,
		Type:      tokenType,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return IssuedToken{Value: signed, ExpiresAt: expiresAt, TTL: ttl}, nil
}

// ParseAccess verifies an access token. Every failure (malformed, bad
// signature, expired, wrong type) comes back as ErrUnauthorized.
func (t *TokenIssuer) ParseAccess(tokenString string) (*Claims, error) {
	claims, err := t.parse(tokenString, TokenTypeAccess, t.AccessSecret)
	if err != nil {
		return nil, WrapAuthError(KindUnauthorized, "Invalid or expired access token", "", err)
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token, returning ErrInvalidToken on failure.
func (t *TokenIssuer) ParseRefresh(tokenString string) (*Claims, error) {
	claims, err := t.parse(tokenString, TokenTypeRefresh, t.RefreshSecret)
	if err != nil {
		return nil, WrapAuthError(KindInvalidToken, "Invalid refresh token", "", err)
	}
	return claims, nil
}

func (t *TokenIssuer) parse(tokenString string, expected TokenType, secret []byte) (*Claims, error) {
	t.EnsureDefaults()
	if tokenString == "" {
		return nil, fmt.Errorf("empty token")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithIssuer(t.Issuer),
		jwt.WithTimeFunc(t.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Type != expected {
		return nil, fmt.Errorf("invalid token type %q", claims.Type)
	}
	if claims.AccountID == "" || claims.Subject != claims.AccountID {
		return nil, fmt.Errorf("missing subject")
	}
	return claims, nil
}
