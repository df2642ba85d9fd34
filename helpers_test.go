package authservice_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	authservice "github.com/Matidza/Auth-Service"
	"github.com/Matidza/Auth-Service/stores/fs"
)

const testPassword = "P@ssw0rd1"

// testClock is a settable clock shared by every component of a fixture.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// captureNotifier records every code instead of sending it.
type captureNotifier struct {
	mu       sync.Mutex
	messages []authservice.CodeMessage
	fail     bool
	reject   bool
}

func (n *captureNotifier) SendCode(ctx context.Context, msg authservice.CodeMessage) (authservice.Delivery, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return authservice.Delivery{}, errors.New("smtp: connection refused")
	}
	n.messages = append(n.messages, msg)
	if n.reject {
		return authservice.Delivery{}, nil
	}
	return authservice.Delivery{Accepted: []string{msg.To}}, nil
}

func (n *captureNotifier) last(t *testing.T) authservice.CodeMessage {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.messages, "no code was sent")
	return n.messages[len(n.messages)-1]
}

type fixture struct {
	dir      string
	accounts *fs.FSAccountStore
	posts    *fs.FSPostStore
	clock    *testClock
	notifier *captureNotifier
	tokens   *authservice.TokenIssuer
	codes    *authservice.CodeMechanism
	svc      *authservice.AccountService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:      dir,
		accounts: fs.NewFSAccountStore(dir),
		posts:    fs.NewFSPostStore(dir),
		clock:    newTestClock(),
		notifier: &captureNotifier{},
	}
	f.tokens = (&authservice.TokenIssuer{
		AccessSecret:  []byte("test-access-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		Now:           f.clock.Now,
	}).EnsureDefaults()
	f.codes = &authservice.CodeMechanism{
		Secret:   []byte("test-code-secret"),
		Notifier: f.notifier,
		Now:      f.clock.Now,
	}
	f.svc = (&authservice.AccountService{
		Accounts: f.accounts,
		Hasher:   authservice.PasswordHasher{Cost: bcrypt.MinCost},
		Codes:    f.codes,
		Tokens:   f.tokens,
		Now:      f.clock.Now,
	}).EnsureDefaults()
	return f
}

func (f *fixture) register(t *testing.T, email string) *authservice.Session {
	t.Helper()
	session, err := f.svc.Register(context.Background(), authservice.SignupRequest{Email: email, Password: testPassword})
	require.NoError(t, err)
	return session
}

func (f *fixture) reload(t *testing.T, id string) *authservice.Account {
	t.Helper()
	account, err := f.accounts.GetAccountByID(context.Background(), id)
	require.NoError(t, err)
	return account
}

// sendVerification issues a verification code and returns its plaintext.
func (f *fixture) sendVerification(t *testing.T, email string) string {
	t.Helper()
	err := f.svc.SendVerificationCode(context.Background(), authservice.SendCodeRequest{Email: email})
	require.NoError(t, err)
	return f.notifier.last(t).Code
}

func requireKind(t *testing.T, err error, kind authservice.ErrorKind) *authservice.AuthError {
	t.Helper()
	require.Error(t, err)
	var authErr *authservice.AuthError
	require.True(t, errors.As(err, &authErr), "expected *AuthError, got %T: %v", err, err)
	require.Equal(t, kind, authErr.Kind, "message: %s", authErr.Message)
	return authErr
}
