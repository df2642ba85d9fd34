package authservice

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	oa "github.com/Matidza/Auth-Service/oauth2"
)

const roleHintSessionKey = "oauthRoleHint"

// FederatedProfile is the provider identity handed to HandleOAuthCallback.
type FederatedProfile struct {
	Provider    Provider
	ExternalID  string
	Email       string
	DisplayName string
}

// FederatedLogin describes the outcome of a federated sign in.
type FederatedLogin struct {
	Account *Account
	Created bool
	Token   IssuedToken

	// RoleChange is set when the user asked for a role other than the one
	// the existing account carries. The role itself is left alone.
	RoleChange Role
}

// FederatedAuth links provider identities to accounts and finishes the
// browser flow.
type FederatedAuth struct {
	Accounts AccountStore
	Hasher   PasswordHasher
	Tokens   *TokenIssuer
	Cookies  CookieConfig
	Sessions *scs.SessionManager
	Logger   *zap.Logger
	Metrics  *Metrics
	Now      func() time.Time

	SuccessURL string
	FailureURL string
}

func (f *FederatedAuth) EnsureDefaults() *FederatedAuth {
	if f.Logger == nil {
		f.Logger = zap.NewNop()
	}
	if f.Now == nil {
		f.Now = time.Now
	}
	if f.Tokens != nil {
		f.Tokens.EnsureDefaults()
	}
	return f
}

// HandleOAuthCallback finds or creates the account for profile and issues
// the federated access token. roleHint is the role the user picked before
// leaving for the provider; empty means none was picked.
func (f *FederatedAuth) HandleOAuthCallback(ctx context.Context, profile FederatedProfile, roleHint Role) (*FederatedLogin, error) {
	f.EnsureDefaults()
	email := NormalizeEmail(profile.Email)
	if email == "" {
		return nil, NewAuthError(KindValidation, "No email associated with this account", "email")
	}
	if roleHint != "" && !roleHint.Valid() {
		roleHint = ""
	}

	login := &FederatedLogin{}
	account, err := f.Accounts.GetAccountByEmail(ctx, email)
	switch {
	case err == nil:
		if roleHint != "" && roleHint != account.Role {
			login.RoleChange = roleHint
		}
	case errors.Is(err, ErrAccountNotFound):
		account, login.Created, err = f.createAccount(ctx, profile, email, roleHint)
		if err != nil {
			return nil, err
		}
	default:
		return nil, WrapAuthError(KindInternal, "Internal server error", "", err)
	}

	login.Account = account
	login.Token, err = f.Tokens.IssueFederated(account)
	if err != nil {
		return nil, WrapAuthError(KindInternal, "Internal server error", "", err)
	}
	f.Metrics.oauthLogin(profile.Provider, login.Created)
	return login, nil
}

func (f *FederatedAuth) createAccount(ctx context.Context, profile FederatedProfile, email string, role Role) (*Account, bool, error) {
	if role == "" {
		role = RoleMentee
	}
	placeholder, err := f.Hasher.PlaceholderHash()
	if err != nil {
		return nil, false, WrapAuthError(KindInternal, "Internal server error", "", err)
	}
	now := f.Now()
	account := &Account{
		Email:        email,
		PasswordHash: placeholder,
		Provider:     profile.Provider,
		ExternalID:   profile.ExternalID,
		DisplayName:  profile.DisplayName,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = f.Accounts.CreateAccount(ctx, account)
	if errors.Is(err, ErrDuplicateEmail) {
		// A concurrent callback for the same email won the insert.
		existing, getErr := f.Accounts.GetAccountByEmail(ctx, email)
		if getErr != nil {
			return nil, false, WrapAuthError(KindInternal, "Internal server error", "", getErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, WrapAuthError(KindInternal, "Internal server error", "", err)
	}
	f.Metrics.signup(profile.Provider, role)
	f.Logger.Info("federated account created",
		zap.String("accountId", account.ID), zap.String("provider", string(profile.Provider)))
	return account, true, nil
}

// StartHandler remembers the ?role= query parameter for the callback and
// then runs next, which redirects to the provider.
func (f *FederatedAuth) StartHandler(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if f.Sessions != nil {
			if role := Role(r.URL.Query().Get("role")); role.Valid() {
				f.Sessions.Put(r.Context(), roleHintSessionKey, string(role))
			} else {
				f.Sessions.Remove(r.Context(), roleHintSessionKey)
			}
		}
		next(w, r)
	}
}

// HandleUser receives the profile from a provider callback, signs the user
// in and redirects back to the front end.
func (f *FederatedAuth) HandleUser(provider string, _ *oauth2.Token, profile *oa.Profile, w http.ResponseWriter, r *http.Request) {
	f.EnsureDefaults()
	var roleHint Role
	if f.Sessions != nil {
		roleHint = Role(f.Sessions.PopString(r.Context(), roleHintSessionKey))
	}

	login, err := f.HandleOAuthCallback(r.Context(), FederatedProfile{
		Provider:    Provider(provider),
		ExternalID:  profile.ID,
		Email:       profile.Email,
		DisplayName: profile.Name,
	}, roleHint)
	if err != nil {
		authErr := AsAuthError(err)
		f.Logger.Warn("federated login failed", zap.String("provider", provider), zap.Error(err))
		http.Redirect(w, r, oa.WithQuery(f.FailureURL, "error", string(authErr.Kind)), http.StatusFound)
		return
	}

	f.Cookies.SetAccessCookie(w, login.Token)
	target := f.SuccessURL
	if login.RoleChange != "" {
		target = oa.WithQuery(target, "roleChange", string(login.RoleChange))
	}
	http.Redirect(w, r, target, http.StatusFound)
}
