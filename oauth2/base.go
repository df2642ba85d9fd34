package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Profile is the provider profile normalized to the fields the service uses.
type Profile struct {
	Provider string
	ID       string
	Email    string
	Name     string
	Raw      map[string]any
}

// fetchProfileFunc turns an access token into a normalized profile.
type fetchProfileFunc func(ctx context.Context, token *oauth2.Token) (*Profile, error)

// BaseOAuth2 holds what every provider shares: the client config, the
// redirect and callback handlers and the HTTP client used to reach the
// provider.
type BaseOAuth2 struct {
	Provider     string
	ClientId     string
	ClientSecret string
	CallbackURL  string
	UserInfoURL  string

	// AuthFailureUrl receives the user, with an error query parameter, when
	// the callback cannot complete. An empty value answers with a plain error.
	AuthFailureUrl string

	HandleUser HandleUserFunc
	HTTPClient *http.Client
	Logger     *zap.Logger

	oauthConfig  oauth2.Config
	fetchProfile fetchProfileFunc
	mux          *http.ServeMux
}

func NewBaseOAuth2(provider, clientId, clientSecret, callbackUrl string, handleUser HandleUserFunc) *BaseOAuth2 {
	out := &BaseOAuth2{
		Provider:     provider,
		ClientId:     clientId,
		ClientSecret: clientSecret,
		CallbackURL:  callbackUrl,
		HandleUser:   handleUser,
		Logger:       zap.NewNop(),
		mux:          http.NewServeMux(),
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
		},
	}
	out.mux.HandleFunc("/callback", out.HandleCallback)
	out.mux.HandleFunc("/callback/", out.HandleCallback)
	out.mux.HandleFunc("/{$}", out.HandleStart)
	return out
}

// Handler serves the redirect at "/" and the callback at "/callback".
func (b *BaseOAuth2) Handler() http.Handler {
	return b.mux
}

// SetHTTPClient overrides the client used for token exchange and profile
// requests.
func (b *BaseOAuth2) SetHTTPClient(client *http.Client) {
	b.HTTPClient = client
}

// SetOAuthEndpoint overrides the provider's auth and token URLs.
func (b *BaseOAuth2) SetOAuthEndpoint(endpoint oauth2.Endpoint) {
	b.oauthConfig.Endpoint = endpoint
}

// Config returns a copy of the underlying client configuration.
func (b *BaseOAuth2) Config() oauth2.Config {
	return b.oauthConfig
}

func (b *BaseOAuth2) getHTTPClient() *http.Client {
	if b.HTTPClient != nil {
		return b.HTTPClient
	}
	return http.DefaultClient
}

// ExchangeContext carries the injected HTTP client into the token exchange.
func (b *BaseOAuth2) ExchangeContext(ctx context.Context) context.Context {
	if b.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, b.HTTPClient)
	}
	return ctx
}

// HandleStart redirects the browser to the provider's consent page.
func (b *BaseOAuth2) HandleStart(w http.ResponseWriter, r *http.Request) {
	OauthRedirector(&b.oauthConfig)(w, r)
}

// HandleCallback checks the state cookie, exchanges the code and hands the
// normalized profile to HandleUser.
func (b *BaseOAuth2) HandleCallback(w http.ResponseWriter, r *http.Request) {
	oauthState, _ := r.Cookie(stateCookieName)
	clearStateCookie(w)
	if oauthState == nil || oauthState.Value == "" {
		b.Logger.Info("oauth state cookie missing", zap.String("provider", b.Provider))
		b.fail(w, r, "invalid_state", http.StatusBadRequest, fmt.Errorf("invalid oauth %s state: cookie missing", b.Provider))
		return
	}
	if r.FormValue("state") != oauthState.Value {
		b.fail(w, r, "invalid_state", http.StatusBadRequest, fmt.Errorf("invalid oauth %s state: %s", b.Provider, r.FormValue("state")))
		return
	}
	if errParam := r.FormValue("error"); errParam != "" {
		b.fail(w, r, "access_denied", http.StatusBadRequest, fmt.Errorf("provider returned error: %s", errParam))
		return
	}

	token, err := b.oauthConfig.Exchange(b.ExchangeContext(r.Context()), r.FormValue("code"))
	if err != nil {
		b.Logger.Info("invalid code exchange", zap.String("provider", b.Provider), zap.Error(err))
		b.fail(w, r, "exchange_failed", http.StatusBadGateway, err)
		return
	}

	profile, err := b.fetchProfile(r.Context(), token)
	if err != nil {
		b.Logger.Info("failed fetching profile", zap.String("provider", b.Provider), zap.Error(err))
		b.fail(w, r, "profile_failed", http.StatusBadGateway, err)
		return
	}
	profile.Provider = b.Provider

	if b.HandleUser == nil {
		b.fail(w, r, "not_configured", http.StatusInternalServerError, fmt.Errorf("no user handler configured"))
		return
	}
	b.HandleUser(b.Provider, token, profile, w, r)
}

func (b *BaseOAuth2) fail(w http.ResponseWriter, r *http.Request, code string, status int, err error) {
	if b.AuthFailureUrl == "" {
		http.Error(w, err.Error(), status)
		return
	}
	http.Redirect(w, r, WithQuery(b.AuthFailureUrl, "error", code), http.StatusTemporaryRedirect)
}

// getJSON performs an authenticated GET and decodes the JSON body into out.
func (b *BaseOAuth2) getJSON(ctx context.Context, token *oauth2.Token, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	response, err := b.getHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed getting user info from %s: %w", b.Provider, err)
	}
	defer response.Body.Close()

	contents, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("failed read response: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", b.Provider, response.StatusCode)
	}
	if err := json.Unmarshal(contents, out); err != nil {
		return fmt.Errorf("failed to parse user info: %w", err)
	}
	return nil
}
