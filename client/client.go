package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// RefreshThreshold is how long before expiry to proactively refresh
const RefreshThreshold = 5 * time.Minute

// Paths on the auth service.
const (
	SigninPath    = "/api/auth/signin"
	RefreshPath   = "/api/auth/refresh-token"
	SignoutPath   = "/api/auth/signout"
	CheckAuthPath = "/api/auth/check-auth"
)

// Session cookie names set by the service.
const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
)

// AuthClient is an HTTP client with automatic token management
type AuthClient struct {
	mu            sync.Mutex
	serverURL     string
	store         CredentialStore
	httpClient    *http.Client
	baseTransport http.RoundTripper
}

// ClientOption configures an AuthClient
type ClientOption func(*AuthClient)

// WithHTTPClient copies timeout and redirect settings from client and uses
// its transport underneath the auth handling.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *AuthClient) {
		if client == nil {
			return
		}
		if client.Transport != nil {
			c.baseTransport = client.Transport
		}
		c.httpClient.Timeout = client.Timeout
		c.httpClient.CheckRedirect = client.CheckRedirect
	}
}

// WithTransport sets a custom base transport
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *AuthClient) {
		c.baseTransport = transport
	}
}

// Envelope is the response body every endpoint returns.
type Envelope struct {
	Success     bool    `json:"success"`
	Field       *string `json:"field"`
	Message     string  `json:"message"`
	Error       string  `json:"error,omitempty"`
	AccountID   string  `json:"accountId,omitempty"`
	Role        string  `json:"role,omitempty"`
	AccessToken string  `json:"accessToken,omitempty"`
}

// APIError is a failed response from the service.
type APIError struct {
	Status  int
	Kind    string
	Field   string
	Message string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewAuthClient creates a new authenticated HTTP client for a server
func NewAuthClient(serverURL string, store CredentialStore, opts ...ClientOption) *AuthClient {
	u, err := url.Parse(serverURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}

	c := &AuthClient{
		serverURL:     serverURL,
		store:         store,
		httpClient:    &http.Client{},
		baseTransport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient.Transport = &refreshTransport{client: c, base: c.baseTransport}
	return c
}

// HTTPClient returns the underlying HTTP client with auth handling
func (c *AuthClient) HTTPClient() *http.Client {
	return c.httpClient
}

func (c *AuthClient) ServerURL() string {
	return c.serverURL
}

// GetToken returns the current access token, refreshing if needed. It
// returns "" when there is no usable session.
func (c *AuthClient) GetToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred, err := c.store.GetCredential(c.serverURL)
	if err != nil || cred == nil {
		return "", err
	}

	if cred.IsExpiringSoon(RefreshThreshold) && cred.HasRefreshToken() {
		if err := c.refreshLocked(ctx, cred); err != nil {
			if !cred.IsExpired() {
				return cred.AccessToken, nil
			}
			return "", fmt.Errorf("token expired and refresh failed: %w", err)
		}
		cred, _ = c.store.GetCredential(c.serverURL)
	}

	if cred == nil || cred.IsExpired() {
		return "", nil
	}
	return cred.AccessToken, nil
}

func (c *AuthClient) GetCredential() (*ServerCredential, error) {
	return c.store.GetCredential(c.serverURL)
}

// Login signs in with email and password and stores the session.
func (c *AuthClient) Login(ctx context.Context, email, password string) (*ServerCredential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+SigninPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	env, cookies, err := c.do(req)
	if err != nil {
		return nil, err
	}

	cred := &ServerCredential{
		AccountID: env.AccountID,
		Email:     email,
		Role:      env.Role,
		CreatedAt: time.Now(),
	}
	applyCookies(cred, env, cookies)
	if cred.AccessToken == "" {
		return nil, fmt.Errorf("server returned no access token")
	}
	if err := c.store.SetCredential(c.serverURL, cred); err != nil {
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}
	return cred, nil
}

// Logout signs out on the server when possible and always forgets the
// local session.
func (c *AuthClient) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+SignoutPath, nil)
	if err != nil {
		return err
	}
	if resp, err := c.httpClient.Do(req); err == nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.RemoveCredential(c.serverURL)
}

// IsLoggedIn returns true if there is a valid (non-expired) credential
func (c *AuthClient) IsLoggedIn() bool {
	cred, err := c.store.GetCredential(c.serverURL)
	if err != nil || cred == nil {
		return false
	}
	return !cred.IsExpired()
}

// refreshLocked exchanges the refresh token for a new access token.
// Caller must hold c.mu
func (c *AuthClient) refreshLocked(ctx context.Context, cred *ServerCredential) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+RefreshPath, nil)
	if err != nil {
		return err
	}
	req.AddCookie(&http.Cookie{Name: refreshCookie, Value: cred.RefreshToken})

	env, cookies, err := c.do(req)
	if err != nil {
		return err
	}
	updated := *cred
	updated.AccessToken = ""
	applyCookies(&updated, env, cookies)
	if updated.AccessToken == "" {
		return fmt.Errorf("server returned no access token")
	}
	if err := c.store.SetCredential(c.serverURL, &updated); err != nil {
		return fmt.Errorf("failed to store refreshed credential: %w", err)
	}
	return nil
}

// do sends req on the base transport, bypassing the auth handling.
func (c *AuthClient) do(req *http.Request) (*Envelope, []*http.Cookie, error) {
	httpClient := &http.Client{Transport: c.baseTransport, Timeout: c.httpClient.Timeout}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, nil, fmt.Errorf("invalid response from server: %w", err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		apiErr := &APIError{Status: resp.StatusCode, Kind: env.Error, Message: env.Message}
		if env.Field != nil {
			apiErr.Field = *env.Field
		}
		return nil, nil, apiErr
	}
	return &env, resp.Cookies(), nil
}

// applyCookies takes tokens from the session cookies, falling back to the
// body for the access token.
func applyCookies(cred *ServerCredential, env *Envelope, cookies []*http.Cookie) {
	for _, ck := range cookies {
		switch ck.Name {
		case accessCookie:
			cred.AccessToken = ck.Value
			cred.ExpiresAt = cookieExpiry(ck)
		case refreshCookie:
			cred.RefreshToken = ck.Value
		}
	}
	if cred.AccessToken == "" && env.AccessToken != "" {
		cred.AccessToken = env.AccessToken
	}
	if cred.ExpiresAt.IsZero() {
		cred.ExpiresAt = time.Now().Add(RefreshThreshold)
	}
}

func cookieExpiry(ck *http.Cookie) time.Time {
	if ck.MaxAge > 0 {
		return time.Now().Add(time.Duration(ck.MaxAge) * time.Second)
	}
	return ck.Expires
}
