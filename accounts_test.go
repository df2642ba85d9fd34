package authservice_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authservice "github.com/Matidza/Auth-Service"
)

func TestRegister(t *testing.T) {
	f := newFixture(t)
	session := f.register(t, "Alice@Example.com")

	assert.NotEmpty(t, session.Account.ID)
	assert.Equal(t, "alice@example.com", session.Account.Email)
	assert.Equal(t, authservice.RoleMentee, session.Account.Role)
	assert.Equal(t, authservice.ProviderLocal, session.Account.Provider)
	assert.False(t, session.Account.Verified)
	assert.NotEqual(t, testPassword, session.Account.PasswordHash)
	assert.NotEmpty(t, session.Tokens.Access.Value)
	assert.NotEmpty(t, session.Tokens.Refresh.Value)

	stored := f.reload(t, session.Account.ID)
	assert.Equal(t, session.Account.Email, stored.Email)
}

func TestRegister_DuplicateEmailAnyCase(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")

	for _, email := range []string{"alice@example.com", "ALICE@example.com", "  Alice@Example.COM "} {
		_, err := f.svc.Register(context.Background(), authservice.SignupRequest{Email: email, Password: testPassword})
		authErr := requireKind(t, err, authservice.KindDuplicateAccount)
		assert.Equal(t, "email", authErr.Field)
		assert.Equal(t, "User already exists!", authErr.Message)
	}
}

// longPassword meets the strength policy but is longer than bcrypt accepts.
var longPassword = "Aa1!" + strings.Repeat("x", 80)

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name  string
		req   authservice.SignupRequest
		field string
	}{
		{"missing email", authservice.SignupRequest{Password: testPassword}, "email"},
		{"bad email", authservice.SignupRequest{Email: "not-an-email", Password: testPassword}, "email"},
		{"weak password", authservice.SignupRequest{Email: "a@example.com", Password: "password"}, "password"},
		{"password over 72 bytes", authservice.SignupRequest{Email: "a@example.com", Password: longPassword}, "password"},
		{"unknown role", authservice.SignupRequest{Email: "a@example.com", Password: testPassword, Role: "admin"}, "role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(context.Background(), tt.req)
			authErr := requireKind(t, err, authservice.KindValidation)
			assert.Equal(t, tt.field, authErr.Field)
			assert.True(t, errors.Is(err, authservice.ErrValidation))
		})
	}
}

func TestRegisterAsMentor(t *testing.T) {
	f := newFixture(t)
	session, err := f.svc.RegisterAsMentor(context.Background(), authservice.SignupRequest{
		Email: "mentor@example.com", Password: testPassword, Role: authservice.RoleMentee,
	})
	require.NoError(t, err)
	assert.Equal(t, authservice.RoleMentor, session.Account.Role)

	claims, err := f.tokens.ParseAccess(session.Tokens.Access.Value)
	require.NoError(t, err)
	assert.Equal(t, authservice.RoleMentor, claims.Role)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	registered := f.register(t, "alice@example.com")

	session, err := f.svc.Authenticate(context.Background(), authservice.SigninRequest{Email: "ALICE@example.com", Password: testPassword})
	require.NoError(t, err)

	claims, err := f.tokens.ParseAccess(session.Tokens.Access.Value)
	require.NoError(t, err)
	assert.Equal(t, registered.Account.ID, claims.AccountID)
	assert.Equal(t, registered.Account.ID, claims.Subject)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, f.clock.Now().Add(30*time.Minute).Unix(), claims.ExpiresAt.Unix())

	_, err = f.svc.Authenticate(context.Background(), authservice.SigninRequest{Email: "alice@example.com", Password: "Wr0ng!pass"})
	authErr := requireKind(t, err, authservice.KindInvalidCredentials)
	assert.Equal(t, "password", authErr.Field)

	_, err = f.svc.Authenticate(context.Background(), authservice.SigninRequest{Email: "bob@example.com", Password: testPassword})
	authErr = requireKind(t, err, authservice.KindNotFound)
	assert.Equal(t, "email", authErr.Field)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	session := f.register(t, "alice@example.com")
	ctx := context.Background()

	err := f.svc.ChangePassword(ctx, session.Account.ID, authservice.ChangePasswordRequest{OldPassword: "Wr0ng!pass", NewPassword: "N3w!passw0rd"})
	authErr := requireKind(t, err, authservice.KindInvalidCredentials)
	assert.Equal(t, "oldPassword", authErr.Field)

	err = f.svc.ChangePassword(ctx, session.Account.ID, authservice.ChangePasswordRequest{OldPassword: testPassword, NewPassword: longPassword})
	authErr = requireKind(t, err, authservice.KindValidation)
	assert.Equal(t, "newPassword", authErr.Field)

	require.NoError(t, f.svc.ChangePassword(ctx, session.Account.ID, authservice.ChangePasswordRequest{OldPassword: testPassword, NewPassword: "N3w!passw0rd"}))

	_, err = f.svc.Authenticate(ctx, authservice.SigninRequest{Email: "alice@example.com", Password: testPassword})
	requireKind(t, err, authservice.KindInvalidCredentials)
	_, err = f.svc.Authenticate(ctx, authservice.SigninRequest{Email: "alice@example.com", Password: "N3w!passw0rd"})
	require.NoError(t, err)
}

func TestChangeRole(t *testing.T) {
	f := newFixture(t)
	session := f.register(t, "alice@example.com")

	updated, err := f.svc.ChangeRole(context.Background(), session.Account.ID, authservice.ChangeRoleRequest{Role: authservice.RoleMentor})
	require.NoError(t, err)
	assert.Equal(t, authservice.RoleMentor, updated.Account.Role)
	assert.Equal(t, authservice.RoleMentor, f.reload(t, session.Account.ID).Role)

	claims, err := f.tokens.ParseAccess(updated.Tokens.Access.Value)
	require.NoError(t, err)
	assert.Equal(t, authservice.RoleMentor, claims.Role)

	_, err = f.svc.ChangeRole(context.Background(), session.Account.ID, authservice.ChangeRoleRequest{Role: "admin"})
	requireKind(t, err, authservice.KindValidation)
}

func TestVerificationCode_WithinWindow(t *testing.T) {
	f := newFixture(t)
	session := f.register(t, "alice@example.com")
	code := f.sendVerification(t, "alice@example.com")

	stored := f.reload(t, session.Account.ID)
	assert.True(t, stored.VerificationCode.Issued())
	assert.NotEqual(t, code, stored.VerificationCode.Digest)

	f.clock.Advance(299 * time.Second)
	account, err := f.svc.VerifyVerificationCode(context.Background(), authservice.VerifyCodeRequest{Email: "alice@example.com", Code: authservice.CodeValue(code)})
	require.NoError(t, err)
	assert.True(t, account.Verified)

	stored = f.reload(t, session.Account.ID)
	assert.True(t, stored.Verified)
	assert.False(t, stored.VerificationCode.Issued())
}

func TestVerificationCode_Expired(t *testing.T) {
	f := newFixture(t)
	session := f.register(t, "alice@example.com")
	code := f.sendVerification(t, "alice@example.com")

	f.clock.Advance(301 * time.Second)
	_, err := f.svc.VerifyVerificationCode(context.Background(), authservice.VerifyCodeRequest{Email: "alice@example.com", Code: authservice.CodeValue(code)})
	requireKind(t, err, authservice.KindExpired)

	stored := f.reload(t, session.Account.ID)
	assert.False(t, stored.Verified)
	assert.False(t, stored.VerificationCode.Issued(), "expired code should be cleared")

	_, err = f.svc.VerifyVerificationCode(context.Background(), authservice.VerifyCodeRequest{Email: "alice@example.com", Code: authservice.CodeValue(code)})
	requireKind(t, err, authservice.KindNotIssued)
}

func TestVerificationCode_ConsumeTwice(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")
	code := f.sendVerification(t, "alice@example.com")
	req := authservice.VerifyCodeRequest{Email: "alice@example.com", ProvidedCodeValue: authservice.CodeValue(code)}

	_, err := f.svc.VerifyVerificationCode(context.Background(), req)
	require.NoError(t, err)
	_, err = f.svc.VerifyVerificationCode(context.Background(), req)
	requireKind(t, err, authservice.KindNotIssued)
}

func TestVerificationCode_WrongCodeAllowsRetry(t *testing.T) {
	f := newFixture(t)
	session := f.register(t, "alice@example.com")
	code := f.sendVerification(t, "alice@example.com")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err := f.svc.VerifyVerificationCode(context.Background(), authservice.VerifyCodeRequest{Email: "alice@example.com", Code: authservice.CodeValue(wrong)})
	authErr := requireKind(t, err, authservice.KindInvalidCode)
	assert.Equal(t, "code", authErr.Field)
	assert.True(t, f.reload(t, session.Account.ID).VerificationCode.Issued())

	_, err = f.svc.VerifyVerificationCode(context.Background(), authservice.VerifyCodeRequest{Email: "alice@example.com", Code: authservice.CodeValue(code)})
	require.NoError(t, err)
}

func TestSendVerificationCode_AlreadyVerified(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")
	code := f.sendVerification(t, "alice@example.com")
	_, err := f.svc.VerifyVerificationCode(context.Background(), authservice.VerifyCodeRequest{Email: "alice@example.com", Code: authservice.CodeValue(code)})
	require.NoError(t, err)

	err = f.svc.SendVerificationCode(context.Background(), authservice.SendCodeRequest{Email: "alice@example.com"})
	requireKind(t, err, authservice.KindAlreadyVerified)
}

func TestSendVerificationCode_DeliveryFailure(t *testing.T) {
	f := newFixture(t)
	session := f.register(t, "alice@example.com")

	f.notifier.fail = true
	err := f.svc.SendVerificationCode(context.Background(), authservice.SendCodeRequest{Email: "alice@example.com"})
	requireKind(t, err, authservice.KindDelivery)
	assert.False(t, f.reload(t, session.Account.ID).VerificationCode.Issued())

	f.notifier.fail = false
	f.notifier.reject = true
	err = f.svc.SendVerificationCode(context.Background(), authservice.SendCodeRequest{Email: "alice@example.com"})
	requireKind(t, err, authservice.KindDelivery)
	assert.False(t, f.reload(t, session.Account.ID).VerificationCode.Issued())
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.register(t, "alice@example.com")

	require.NoError(t, f.svc.SendForgotPasswordCode(ctx, authservice.SendCodeRequest{Email: "alice@example.com"}))
	msg := f.notifier.last(t)
	assert.Equal(t, authservice.SlotForgotPassword, msg.Slot)

	err := f.svc.ResetPassword(ctx, authservice.ResetPasswordRequest{Email: "alice@example.com", Code: authservice.CodeValue(msg.Code), NewPassword: "weak"})
	requireKind(t, err, authservice.KindValidation)

	err = f.svc.ResetPassword(ctx, authservice.ResetPasswordRequest{Email: "alice@example.com", Code: authservice.CodeValue(msg.Code), NewPassword: longPassword})
	authErr := requireKind(t, err, authservice.KindValidation)
	assert.Equal(t, "newPassword", authErr.Field)
	assert.True(t, f.reload(t, session.Account.ID).ForgotPasswordCode.Issued(), "a rejected request leaves the code in place")

	require.NoError(t, f.svc.ResetPassword(ctx, authservice.ResetPasswordRequest{
		Email: "alice@example.com", Code: authservice.CodeValue(msg.Code), NewPassword: "N3w!passw0rd",
	}))
	assert.False(t, f.reload(t, session.Account.ID).ForgotPasswordCode.Issued())

	_, err = f.svc.Authenticate(ctx, authservice.SigninRequest{Email: "alice@example.com", Password: "N3w!passw0rd"})
	require.NoError(t, err)

	err = f.svc.ResetPassword(ctx, authservice.ResetPasswordRequest{
		Email: "alice@example.com", Code: authservice.CodeValue(msg.Code), NewPassword: "An0ther!pass",
	})
	requireKind(t, err, authservice.KindNotIssued)
}

func TestResetPassword_SlotsAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice@example.com")

	verifyCode := f.sendVerification(t, "alice@example.com")
	err := f.svc.ResetPassword(ctx, authservice.ResetPasswordRequest{
		Email: "alice@example.com", Code: authservice.CodeValue(verifyCode), NewPassword: "N3w!passw0rd",
	})
	requireKind(t, err, authservice.KindNotIssued)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	session := f.register(t, "alice@example.com")

	account, access, err := f.svc.Refresh(context.Background(), session.Tokens.Refresh.Value)
	require.NoError(t, err)
	assert.Equal(t, session.Account.ID, account.ID)
	claims, err := f.tokens.ParseAccess(access.Value)
	require.NoError(t, err)
	assert.Equal(t, session.Account.ID, claims.AccountID)

	_, _, err = f.svc.Refresh(context.Background(), session.Tokens.Access.Value)
	requireKind(t, err, authservice.KindInvalidToken)

	f.clock.Advance(7*24*time.Hour + time.Second)
	_, _, err = f.svc.Refresh(context.Background(), session.Tokens.Refresh.Value)
	requireKind(t, err, authservice.KindInvalidToken)
}
