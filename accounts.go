package authservice

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Session is the result of any operation that signs an account in.
type Session struct {
	Account *Account
	Tokens  TokenPair
}

// AccountService owns the credential lifecycle: registration, sign in,
// password changes and the two one-time code flows.
type AccountService struct {
	Accounts AccountStore
	Hasher   PasswordHasher
	Codes    *CodeMechanism
	Tokens   *TokenIssuer
	Logger   *zap.Logger
	Metrics  *Metrics
	Now      func() time.Time
}

func (s *AccountService) EnsureDefaults() *AccountService {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	if s.Codes != nil {
		s.Codes.EnsureDefaults()
	}
	if s.Tokens != nil {
		s.Tokens.EnsureDefaults()
	}
	return s
}

// Register creates a local account and signs it in. The role defaults to
// mentee.
func (s *AccountService) Register(ctx context.Context, req SignupRequest) (*Session, error) {
	s.EnsureDefaults()
	if err := req.Validate().Err(); err != nil {
		return nil, err
	}
	role := req.Role
	if role == "" {
		role = RoleMentee
	}

	hash, err := s.Hasher.Hash(req.Password)
	if err != nil {
		return nil, WrapAuthError(KindInternal, "Internal server error", "", err)
	}

	now := s.Now()
	account := &Account{
		Email:        NormalizeEmail(req.Email),
		PasswordHash: hash,
		Provider:     ProviderLocal,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, NewAuthError(KindDuplicateAccount, "User already exists!", "email")
		}
		return nil, WrapAuthError(KindInternal, "Internal server error", "", err)
	}
	s.Metrics.signup(ProviderLocal, role)
	s.Logger.Info("account registered", zap.String("accountId", account.ID), zap.String("role", string(role)))

	return s.newSession(account)
}

// RegisterAsMentor is Register with the role forced to mentor.
func (s *AccountService) RegisterAsMentor(ctx context.Context, req SignupRequest) (*Session, error) {
	req.Role = RoleMentor
	return s.Register(ctx, req)
}

// Authenticate checks an email and password. Unknown emails and wrong
// passwords are reported separately.
func (s *AccountService) Authenticate(ctx context.Context, req SigninRequest) (*Session, error) {
	s.EnsureDefaults()
	if err := req.Validate().Err(); err != nil {
		s.Metrics.signin("invalid")
		return nil, err
	}
	account, err := s.accountByEmail(ctx, req.Email)
	if err != nil {
		s.Metrics.signin("unknown")
		return nil, err
	}
	if !s.Hasher.Matches(account.PasswordHash, req.Password) {
		s.Metrics.signin("bad_password")
		return nil, NewAuthError(KindInvalidCredentials, "Invalid credentials", "password")
	}
	s.Metrics.signin("success")
	return s.newSession(account)
}

// ChangePassword replaces the password of a signed in account. Tokens
// already issued stay valid.
func (s *AccountService) ChangePassword(ctx context.Context, accountID string, req ChangePasswordRequest) error {
	s.EnsureDefaults()
	if err := req.Validate().Err(); err != nil {
		return err
	}
	account, err := s.accountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !s.Hasher.Matches(account.PasswordHash, req.OldPassword) {
		return NewAuthError(KindInvalidCredentials, "Old password is incorrect", "oldPassword")
	}
	if err := s.setPassword(account, req.NewPassword); err != nil {
		return err
	}
	if err := s.save(ctx, account); err != nil {
		return err
	}
	s.Logger.Info("password changed", zap.String("accountId", account.ID))
	return nil
}

// ChangeRole switches the account between mentee and mentor and re-issues
// tokens so the claims carry the new role.
func (s *AccountService) ChangeRole(ctx context.Context, accountID string, req ChangeRoleRequest) (*Session, error) {
	s.EnsureDefaults()
	if err := req.Validate().Err(); err != nil {
		return nil, err
	}
	account, err := s.accountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Role != req.Role {
		account.Role = req.Role
		if err := s.save(ctx, account); err != nil {
			return nil, err
		}
		s.Logger.Info("role changed", zap.String("accountId", account.ID), zap.String("role", string(req.Role)))
	}
	return s.newSession(account)
}

// CurrentAccount loads the account behind a verified access token.
func (s *AccountService) CurrentAccount(ctx context.Context, accountID string) (*Account, error) {
	s.EnsureDefaults()
	return s.accountByID(ctx, accountID)
}

// SendVerificationCode emails a fresh verification code.
func (s *AccountService) SendVerificationCode(ctx context.Context, req SendCodeRequest) error {
	s.EnsureDefaults()
	if err := req.Validate().Err(); err != nil {
		return err
	}
	account, err := s.accountByEmail(ctx, req.Email)
	if err != nil {
		return err
	}
	if account.Verified {
		return NewAuthError(KindAlreadyVerified, "User is already verified", "")
	}
	return s.issue(ctx, account, SlotVerification)
}

// VerifyVerificationCode consumes the verification code and marks the
// account verified.
func (s *AccountService) VerifyVerificationCode(ctx context.Context, req VerifyCodeRequest) (*Account, error) {
	s.EnsureDefaults()
	if err := req.Validate().Err(); err != nil {
		return nil, err
	}
	account, err := s.accountByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	// A consumed code leaves the slot empty, so resubmitting it reports
	// NotIssued rather than AlreadyVerified.
	if account.Verified && account.VerificationCode.Issued() {
		return nil, NewAuthError(KindAlreadyVerified, "User is already verified", "")
	}
	if err := s.consume(ctx, account, SlotVerification, string(req.code())); err != nil {
		return nil, err
	}
	account.Verified = true
	if err := s.save(ctx, account); err != nil {
		return nil, err
	}
	s.Logger.Info("account verified", zap.String("accountId", account.ID))
	return account, nil
}

// SendForgotPasswordCode emails a password reset code.
func (s *AccountService) SendForgotPasswordCode(ctx context.Context, req SendCodeRequest) error {
	s.EnsureDefaults()
	if err := req.Validate().Err(); err != nil {
		return err
	}
	account, err := s.accountByEmail(ctx, req.Email)
	if err != nil {
		return err
	}
	return s.issue(ctx, account, SlotForgotPassword)
}

// ResetPassword consumes the reset code and sets the new password.
func (s *AccountService) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	s.EnsureDefaults()
	if err := req.Validate().Err(); err != nil {
		return err
	}
	account, err := s.accountByEmail(ctx, req.Email)
	if err != nil {
		return err
	}
	if err := s.consume(ctx, account, SlotForgotPassword, string(req.code())); err != nil {
		return err
	}
	if err := s.setPassword(account, req.NewPassword); err != nil {
		return err
	}
	if err := s.save(ctx, account); err != nil {
		return err
	}
	s.Logger.Info("password reset", zap.String("accountId", account.ID))
	return nil
}

// Refresh verifies a refresh token and mints a new access token for the
// account it names. The account is re-read so deleted accounts cannot refresh.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (*Account, IssuedToken, error) {
	s.EnsureDefaults()
	claims, err := s.Tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, IssuedToken{}, err
	}
	account, err := s.Accounts.GetAccountByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, IssuedToken{}, NewAuthError(KindInvalidToken, "Invalid refresh token", "")
		}
		return nil, IssuedToken{}, WrapAuthError(KindInternal, "Internal server error", "", err)
	}
	access, err := s.Tokens.IssueAccess(account)
	if err != nil {
		return nil, IssuedToken{}, WrapAuthError(KindInternal, "Internal server error", "", err)
	}
	return account, access, nil
}

func (s *AccountService) newSession(account *Account) (*Session, error) {
	pair, err := s.Tokens.IssuePair(account)
	if err != nil {
		return nil, WrapAuthError(KindInternal, "Internal server error", "", err)
	}
	return &Session{Account: account, Tokens: pair}, nil
}

func (s *AccountService) issue(ctx context.Context, account *Account, slot CodeSlot) error {
	err := s.Codes.Issue(ctx, account, slot)
	s.Metrics.codeIssued(slot, err)
	if err != nil {
		return err
	}
	return s.save(ctx, account)
}

// consume runs the code check and persists whatever the mechanism changed,
// including the cleared slot of an expired code.
func (s *AccountService) consume(ctx context.Context, account *Account, slot CodeSlot, code string) error {
	changed, err := s.Codes.Consume(account, slot, code)
	s.Metrics.codeConsumed(slot, err)
	if changed && err != nil {
		if saveErr := s.save(ctx, account); saveErr != nil {
			s.Logger.Error("failed to persist cleared code", zap.String("accountId", account.ID), zap.Error(saveErr))
		}
	}
	return err
}

func (s *AccountService) setPassword(account *Account, password string) error {
	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return WrapAuthError(KindInternal, "Internal server error", "", err)
	}
	account.PasswordHash = hash
	return nil
}

func (s *AccountService) save(ctx context.Context, account *Account) error {
	account.UpdatedAt = s.Now()
	if err := s.Accounts.SaveAccount(ctx, account); err != nil {
		return WrapAuthError(KindInternal, "Internal server error", "", err)
	}
	return nil
}

func (s *AccountService) accountByEmail(ctx context.Context, email string) (*Account, error) {
	account, err := s.Accounts.GetAccountByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, NewAuthError(KindNotFound, "User doesn't exist", "email")
		}
		return nil, WrapAuthError(KindInternal, "Internal server error", "", err)
	}
	return account, nil
}

func (s *AccountService) accountByID(ctx context.Context, id string) (*Account, error) {
	account, err := s.Accounts.GetAccountByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, NewAuthError(KindNotFound, "User doesn't exist", "user")
		}
		return nil, WrapAuthError(KindInternal, "Internal server error", "", err)
	}
	return account, nil
}
