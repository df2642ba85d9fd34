package authservice_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authservice "github.com/Matidza/Auth-Service"
	"github.com/Matidza/Auth-Service/config"
	"github.com/Matidza/Auth-Service/stores/fs"
)

// harness runs a full Service behind httptest. Each browser is a client
// with its own cookie jar that never follows redirects.
type harness struct {
	t        *testing.T
	cfg      *config.Config
	svc      *authservice.Service
	server   *httptest.Server
	accounts *fs.FSAccountStore
	clock    *testClock
	notifier *captureNotifier
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                config.EnvDevelopment,
		PublicURL:          "http://auth.test",
		AccessTokenSecret:  "access-secret",
		RefreshTokenSecret: "refresh-secret",
		CodeSecret:         "code-secret",
		BcryptCost:         4,
		EchoTokens:         true,
		FrontendSuccessURL: "http://app.test/dashboard",
		FrontendFailureURL: "http://app.test/login",
		PostsPerPage:       10,
	}
}

func newHarness(t *testing.T, mutate ...func(*config.Config)) *harness {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}
	dir := t.TempDir()
	h := &harness{
		t:        t,
		cfg:      cfg,
		accounts: fs.NewFSAccountStore(dir),
		clock:    newTestClock(),
		notifier: &captureNotifier{},
	}
	svc, err := authservice.New(cfg, authservice.Dependencies{
		Accounts: h.accounts,
		Posts:    fs.NewFSPostStore(dir),
		Notifier: h.notifier,
		Now:      h.clock.Now,
	})
	require.NoError(t, err)
	h.svc = svc
	h.server = httptest.NewServer(svc.Handler())
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) browser() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(h.t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

type response struct {
	*http.Response
	Raw  []byte
	Body map[string]any
}

func (r *response) cookie(name string) *http.Cookie {
	for _, c := range r.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (h *harness) request(client *http.Client, method, path string, body any, header ...string) *response {
	h.t.Helper()
	var reader io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case url.Values:
		reader = strings.NewReader(b.Encode())
		contentType = "application/x-www-form-urlencoded"
	case string:
		reader = strings.NewReader(b)
		contentType = "application/json"
	default:
		raw, err := json.Marshal(b)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
		contentType = "application/json"
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(h.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := client.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	out := &response{Response: resp, Raw: raw}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(h.t, json.Unmarshal(raw, &out.Body), "body: %s", raw)
	}
	return out
}

func (h *harness) signup(client *http.Client, email string) *response {
	h.t.Helper()
	resp := h.request(client, http.MethodPost, "/api/auth/signup", map[string]string{"email": email, "password": testPassword})
	require.Equal(h.t, http.StatusCreated, resp.StatusCode, "body: %v", resp.Body)
	return resp
}

func TestService_New(t *testing.T) {
	dir := t.TempDir()
	deps := authservice.Dependencies{Accounts: fs.NewFSAccountStore(dir), Posts: fs.NewFSPostStore(dir)}

	_, err := authservice.New(nil, deps)
	assert.Error(t, err)

	_, err = authservice.New(testConfig(), authservice.Dependencies{})
	assert.Error(t, err)

	cfg := testConfig()
	cfg.CodeSecret = ""
	_, err = authservice.New(cfg, deps)
	assert.Error(t, err)

	svc, err := authservice.New(testConfig(), deps)
	require.NoError(t, err)
	assert.Nil(t, svc.Provider("google"), "providers without credentials are not mounted")
	assert.NotNil(t, svc.Metrics)
}

func TestService_SignupVerifyScenario(t *testing.T) {
	h := newHarness(t)
	alice := h.browser()

	resp := h.signup(alice, "Alice@Example.com")
	assert.Equal(t, true, resp.Body["success"])
	assert.Contains(t, resp.Body, "field")
	assert.Nil(t, resp.Body["field"])
	assert.Equal(t, "mentee", resp.Body["role"])
	assert.NotEmpty(t, resp.Body["accessToken"])
	for _, name := range []string{authservice.AccessTokenCookie, authservice.RefreshTokenCookie} {
		c := resp.cookie(name)
		require.NotNil(t, c, name)
		assert.True(t, c.HttpOnly, name)
		assert.Equal(t, http.SameSiteStrictMode, c.SameSite, name)
		assert.False(t, c.Secure, "development cookies are not Secure")
	}

	resp = h.request(h.browser(), http.MethodPost, "/api/auth/signup", map[string]string{"email": "alice@example.com", "password": testPassword})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "email", resp.Body["field"])

	resp = h.request(h.browser(), http.MethodPost, "/api/auth/signin", map[string]string{"email": "alice@example.com", "password": "Wr0ng!pass"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, false, resp.Body["success"])
	assert.Equal(t, "password", resp.Body["field"])
	assert.Equal(t, "invalid_credentials", resp.Body["error"])

	resp = h.request(h.browser(), http.MethodPost, "/api/auth/signin", map[string]string{"email": "bob@example.com", "password": testPassword})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "email", resp.Body["field"])

	resp = h.request(alice, http.MethodPatch, "/api/auth/send-verification-code", map[string]string{"email": "alice@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %v", resp.Body)
	code := h.notifier.last(t).Code

	stored, err := h.accounts.GetAccountByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, code, stored.VerificationCode.Digest)
	assert.Len(t, stored.VerificationCode.Digest, 64)

	// Codes may be submitted as JSON numbers.
	n, err := strconv.Atoi(code)
	require.NoError(t, err)
	verify := map[string]any{"email": "alice@example.com", "code": n}
	resp = h.request(alice, http.MethodPatch, "/api/auth/verify-verification-code", verify)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %v", resp.Body)
	assert.Equal(t, true, resp.Body["verified"])

	resp = h.request(alice, http.MethodPatch, "/api/auth/verify-verification-code", verify)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "not_issued", resp.Body["error"])

	resp = h.request(alice, http.MethodPatch, "/api/auth/send-verification-code", map[string]string{"email": "alice@example.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "already_verified", resp.Body["error"])

	resp = h.request(alice, http.MethodGet, "/api/auth/check-auth", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user := resp.Body["user"].(map[string]any)
	assert.Equal(t, "alice@example.com", user["email"])
	assert.Equal(t, true, user["verified"])
	assert.NotContains(t, user, "password_hash")
}

func TestService_ForgotAndResetPassword(t *testing.T) {
	h := newHarness(t)
	h.signup(h.browser(), "alice@example.com")
	anon := h.browser()

	resp := h.request(anon, http.MethodPatch, "/api/auth/forgot-password", map[string]string{"email": "alice@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	code := h.notifier.last(t).Code

	resp = h.request(anon, http.MethodPatch, "/api/auth/reset-password", map[string]string{
		"email": "alice@example.com", "providedCodeValue": code, "newPassword": "N3w!passw0rd",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %v", resp.Body)

	resp = h.request(anon, http.MethodPost, "/api/auth/signin", map[string]string{"email": "alice@example.com", "password": testPassword})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = h.request(anon, http.MethodPost, "/api/auth/signin", map[string]string{"email": "alice@example.com", "password": "N3w!passw0rd"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	h.clock.Advance(time.Minute)
	resp = h.request(anon, http.MethodPatch, "/api/auth/forgot-password", map[string]string{"email": "alice@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	code = h.notifier.last(t).Code
	h.clock.Advance(6 * time.Minute)
	resp = h.request(anon, http.MethodPatch, "/api/auth/reset-password", map[string]string{
		"email": "alice@example.com", "code": code, "newPassword": "An0ther!pass",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "expired", resp.Body["error"])
}

func TestService_DeliveryFailure(t *testing.T) {
	h := newHarness(t)
	h.signup(h.browser(), "alice@example.com")
	h.notifier.fail = true

	resp := h.request(h.browser(), http.MethodPatch, "/api/auth/send-verification-code", map[string]string{"email": "alice@example.com"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "delivery_error", resp.Body["error"])

	stored, err := h.accounts.GetAccountByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.False(t, stored.VerificationCode.Issued())
}

func TestService_FormEncodedSignup(t *testing.T) {
	h := newHarness(t)
	form := url.Values{"email": {"carol@example.com"}, "password": {testPassword}}
	resp := h.request(h.browser(), http.MethodPost, "/api/auth/signup-as-mentor", form)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %v", resp.Body)
	assert.Equal(t, "mentor", resp.Body["role"])
}

func TestService_InvalidBodies(t *testing.T) {
	h := newHarness(t)

	resp := h.request(h.browser(), http.MethodPost, "/api/auth/signup", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", resp.Body["error"])

	resp = h.request(h.browser(), http.MethodPost, "/api/auth/signup", map[string]string{"email": "dave@example.com", "password": "password"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "password", resp.Body["field"])

	// An otherwise valid signup padded past the body limit is refused.
	oversized := map[string]string{"email": "erin@example.com", "password": testPassword, "padding": strings.Repeat("a", 2<<20)}
	resp = h.request(h.browser(), http.MethodPost, "/api/auth/signup", oversized)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", resp.Body["error"])
	_, err := h.accounts.GetAccountByEmail(context.Background(), "erin@example.com")
	assert.Error(t, err)
}

func TestService_Middleware(t *testing.T) {
	h := newHarness(t)
	resp := h.signup(h.browser(), "alice@example.com")
	access := resp.cookie(authservice.AccessTokenCookie).Value
	refresh := resp.cookie(authservice.RefreshTokenCookie).Value

	resp = h.request(h.browser(), http.MethodGet, "/api/auth/check-auth", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Unauthorized", resp.Body["message"])

	resp = h.request(h.browser(), http.MethodGet, "/api/auth/check-auth", nil, "Authorization", "Bearer "+access)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.request(h.browser(), http.MethodGet, "/api/auth/check-auth", nil, "Authorization", "Bearer "+refresh)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "refresh tokens are not access tokens")

	resp = h.request(h.browser(), http.MethodGet, "/api/auth/check-auth", nil, "Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	h.clock.Advance(31 * time.Minute)
	resp = h.request(h.browser(), http.MethodGet, "/api/auth/check-auth", nil, "Authorization", "Bearer "+access)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Unauthorized", resp.Body["message"], "every failure gets the same message")
}

func TestService_RefreshAndSignout(t *testing.T) {
	h := newHarness(t)
	alice := h.browser()
	h.signup(alice, "alice@example.com")

	h.clock.Advance(31 * time.Minute)
	resp := h.request(alice, http.MethodGet, "/api/auth/check-auth", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.request(alice, http.MethodPost, "/api/auth/refresh-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %v", resp.Body)
	assert.NotEmpty(t, resp.Body["accessToken"])
	assert.NotNil(t, resp.cookie(authservice.AccessTokenCookie))

	resp = h.request(alice, http.MethodGet, "/api/auth/check-auth", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.request(alice, http.MethodPost, "/api/auth/signout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cleared := resp.cookie(authservice.AccessTokenCookie)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)

	resp = h.request(alice, http.MethodGet, "/api/auth/check-auth", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = h.request(alice, http.MethodPost, "/api/auth/refresh-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_token", resp.Body["error"])
}

func TestService_ChangeRoleAndPassword(t *testing.T) {
	h := newHarness(t)
	alice := h.browser()
	h.signup(alice, "alice@example.com")

	resp := h.request(alice, http.MethodPatch, "/api/auth/change-role", map[string]string{"role": "admin"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "role", resp.Body["field"])

	resp = h.request(alice, http.MethodPatch, "/api/auth/change-role", map[string]string{"role": "mentor"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "mentor", resp.Body["role"])

	resp = h.request(alice, http.MethodGet, "/api/auth/check-auth", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "mentor", resp.Body["user"].(map[string]any)["role"])

	resp = h.request(alice, http.MethodPatch, "/api/auth/change-password", map[string]string{"oldPassword": "Wr0ng!pass", "newPassword": "N3w!passw0rd"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "oldPassword", resp.Body["field"])

	resp = h.request(alice, http.MethodPatch, "/api/auth/change-password", map[string]string{"oldPassword": testPassword, "newPassword": "N3w!passw0rd"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.request(h.browser(), http.MethodPost, "/api/auth/signin", map[string]string{"email": "alice@example.com", "password": "N3w!passw0rd"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestService_Posts(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.browser(), h.browser()
	h.signup(alice, "alice@example.com")
	h.signup(bob, "bob@example.com")

	resp := h.request(h.browser(), http.MethodPost, "/api/posts/create-post", map[string]string{"title": "Hi", "description": "x"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.request(alice, http.MethodPost, "/api/posts/create-post", map[string]string{"title": "  ", "description": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "title", resp.Body["field"])

	resp = h.request(alice, http.MethodPost, "/api/posts/create-post", map[string]string{"title": "First", "description": "Hello world"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %v", resp.Body)
	id := resp.Body["data"].(map[string]any)["id"].(string)
	require.NotEmpty(t, id)

	h.clock.Advance(time.Second)
	resp = h.request(bob, http.MethodPost, "/api/posts/create-post", map[string]string{"title": "Second", "description": "From bob"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = h.request(h.browser(), http.MethodGet, "/api/posts/all-posts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := resp.Body["data"].([]any)
	require.Len(t, list, 2)
	newest := list[0].(map[string]any)
	assert.Equal(t, "Second", newest["title"])
	assert.Equal(t, "bob@example.com", newest["owner"].(map[string]any)["email"])
	assert.Equal(t, "alice@example.com", list[1].(map[string]any)["owner"].(map[string]any)["email"])

	resp = h.request(h.browser(), http.MethodGet, "/api/posts/all-posts?page=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Body["data"])

	resp = h.request(h.browser(), http.MethodGet, "/api/posts/all-posts?page=922337203685477582", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", resp.Body["error"])
	assert.Equal(t, "page", resp.Body["field"])

	resp = h.request(bob, http.MethodPut, "/api/posts/update-post?id="+id, map[string]string{"title": "Mine now", "description": "x"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = h.request(bob, http.MethodDelete, "/api/posts/delete-post?id="+id, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.request(alice, http.MethodPut, "/api/posts/update-post?id="+id, map[string]string{"title": "First, edited", "description": "Hello again"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "First, edited", resp.Body["data"].(map[string]any)["title"])

	resp = h.request(bob, http.MethodGet, "/api/posts/single-post?id="+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello again", resp.Body["data"].(map[string]any)["description"])

	resp = h.request(alice, http.MethodDelete, "/api/posts/delete-post?id="+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.request(alice, http.MethodGet, "/api/posts/single-post?id="+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = h.request(alice, http.MethodDelete, "/api/posts/delete-post?id="+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestService_OperationalRoutes(t *testing.T) {
	h := newHarness(t)
	client := h.browser()

	resp := h.request(client, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	h.signup(client, "alice@example.com")

	resp = h.request(client, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(resp.Raw), `auth_service_signups_total{provider="local",role="mentee"} 1`)
	assert.Contains(t, string(resp.Raw), `route="/api/auth/signup"`)

	resp = h.request(client, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Route not found", resp.Body["message"])

	resp = h.request(client, http.MethodGet, "/api/auth/signup", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, false, resp.Body["success"])
}
