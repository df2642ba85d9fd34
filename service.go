package authservice

import (
	"errors"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Matidza/Auth-Service/config"
	oa "github.com/Matidza/Auth-Service/oauth2"
)

// Dependencies are the collaborators a Service cannot build from config
// alone. Stores and the notifier are chosen by the process bootstrap.
type Dependencies struct {
	Accounts AccountStore
	Posts    PostStore
	Notifier Notifier
	Logger   *zap.Logger

	// Optional.
	Metrics    *Metrics
	Now        func() time.Time
	HTTPClient *http.Client
}

// Service is the assembled HTTP surface: account, federated and post
// handlers behind one router.
type Service struct {
	Config     *config.Config
	Accounts   *AccountService
	Federated  *FederatedAuth
	Posts      *PostService
	Middleware *Middleware
	Metrics    *Metrics
	Sessions   *scs.SessionManager
	Logger     *zap.Logger

	providers map[string]*oa.BaseOAuth2
	router    *mux.Router
}

// New builds a Service from cfg. It does not open any connections.
func New(cfg *config.Config, deps Dependencies) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Accounts == nil || deps.Posts == nil {
		return nil, errors.New("account and post stores are required")
	}
	if cfg.AccessTokenSecret == "" || cfg.RefreshTokenSecret == "" || cfg.CodeSecret == "" {
		return nil, errors.New("token and code secrets are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics("auth_service")
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = &ConsoleNotifier{Logger: logger.Named("ConsoleNotifier")}
	}

	tokens := (&TokenIssuer{
		AccessSecret:  []byte(cfg.AccessTokenSecret),
		RefreshSecret: []byte(cfg.RefreshTokenSecret),
		Issuer:        cfg.TokenIssuer,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		FederatedTTL:  cfg.FederatedTokenTTL,
		Now:           now,
	}).EnsureDefaults()
	hasher := PasswordHasher{Cost: cfg.BcryptCost}
	cookies := CookieConfig{Secure: cfg.IsProduction(), Domain: cfg.CookieDomain}
	expose := !cfg.IsProduction()

	sessions := scs.New()
	sessions.Lifetime = 15 * time.Minute
	sessions.Cookie.Name = "auth_session"
	sessions.Cookie.HttpOnly = true
	sessions.Cookie.Secure = cfg.IsProduction()
	// The OAuth callback is a cross-site top level redirect, so Strict would
	// drop the cookie.
	sessions.Cookie.SameSite = http.SameSiteLaxMode

	s := &Service{
		Config:  cfg,
		Metrics: metrics,
		Logger:  logger,
		Accounts: (&AccountService{
			Accounts: deps.Accounts,
			Hasher:   hasher,
			Codes: &CodeMechanism{
				Secret:   []byte(cfg.CodeSecret),
				TTL:      cfg.CodeTTL,
				Notifier: notifier,
				Logger:   logger.Named("CodeMechanism"),
				Now:      now,
			},
			Tokens:  tokens,
			Logger:  logger.Named("AccountService"),
			Metrics: metrics,
			Now:     now,
		}).EnsureDefaults(),
		Federated: (&FederatedAuth{
			Accounts:   deps.Accounts,
			Hasher:     hasher,
			Tokens:     tokens,
			Cookies:    cookies,
			Sessions:   sessions,
			Logger:     logger.Named("FederatedAuth"),
			Metrics:    metrics,
			Now:        now,
			SuccessURL: cfg.FrontendSuccessURL,
			FailureURL: cfg.FrontendFailureURL,
		}).EnsureDefaults(),
		Posts: (&PostService{
			Posts:    deps.Posts,
			Accounts: deps.Accounts,
			PerPage:  cfg.PostsPerPage,
			Logger:   logger.Named("PostService"),
			Now:      now,
		}).EnsureDefaults(),
		Middleware: &Middleware{
			Tokens:       tokens,
			Logger:       logger.Named("Middleware"),
			Metrics:      metrics,
			ExposeErrors: expose,
		},
		Sessions:  sessions,
		providers: map[string]*oa.BaseOAuth2{},
	}
	s.Middleware.EnsureReasonableDefaults()
	s.setupProviders(deps.HTTPClient)
	s.setupRoutes(cookies, expose)
	return s, nil
}

func (s *Service) setupProviders(client *http.Client) {
	cfg := s.Config
	add := func(base *oa.BaseOAuth2) {
		base.AuthFailureUrl = cfg.FrontendFailureURL
		base.Logger = s.Logger.Named("oauth2." + base.Provider)
		if client != nil {
			base.SetHTTPClient(client)
		}
		s.providers[base.Provider] = base
	}
	if cfg.Google.Enabled() {
		add(oa.NewGoogleOAuth2(cfg.Google.ClientID, cfg.Google.ClientSecret,
			cfg.CallbackURL("google"), s.Federated.HandleUser).BaseOAuth2)
	}
	if cfg.Github.Enabled() {
		add(oa.NewGithubOAuth2(cfg.Github.ClientID, cfg.Github.ClientSecret,
			cfg.CallbackURL("github"), s.Federated.HandleUser).BaseOAuth2)
	}
	if cfg.LinkedIn.Enabled() {
		add(oa.NewLinkedInOAuth2(cfg.LinkedIn.ClientID, cfg.LinkedIn.ClientSecret,
			cfg.CallbackURL("linkedin"), s.Federated.HandleUser).BaseOAuth2)
	}
}

// Provider returns the configured OAuth client for name, or nil.
func (s *Service) Provider(name string) *oa.BaseOAuth2 {
	return s.providers[name]
}

func (s *Service) setupRoutes(cookies CookieConfig, expose bool) {
	auth := &AuthHandlers{
		Accounts:     s.Accounts,
		Cookies:      cookies,
		Logger:       s.Logger.Named("AuthHandlers"),
		EchoTokens:   s.Config.EchoTokens,
		ExposeErrors: expose,
	}
	posts := &PostHandlers{Posts: s.Posts, ExposeErrors: expose}
	protect := func(h http.HandlerFunc) http.Handler { return s.Middleware.RequireAccount(h) }

	r := mux.NewRouter()
	r.Use(s.Middleware.Instrument)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeSuccess(w, http.StatusOK, "ok", nil)
	}).Methods(http.MethodGet)
	r.Handle("/metrics", s.Metrics.Handler()).Methods(http.MethodGet)

	a := r.PathPrefix("/api/auth").Subrouter()
	a.HandleFunc("/signup", auth.HandleSignup).Methods(http.MethodPost)
	a.HandleFunc("/signup-as-mentor", auth.HandleSignupAsMentor).Methods(http.MethodPost)
	a.HandleFunc("/signin", auth.HandleSignin).Methods(http.MethodPost)
	a.Handle("/signout", protect(auth.HandleSignout)).Methods(http.MethodPost)
	a.HandleFunc("/refresh-token", auth.HandleRefresh).Methods(http.MethodPost)
	a.HandleFunc("/send-verification-code", auth.HandleSendVerificationCode).Methods(http.MethodPatch)
	a.HandleFunc("/verify-verification-code", auth.HandleVerifyVerificationCode).Methods(http.MethodPatch)
	a.Handle("/change-password", protect(auth.HandleChangePassword)).Methods(http.MethodPatch)
	a.Handle("/change-role", protect(auth.HandleChangeRole)).Methods(http.MethodPatch)
	a.HandleFunc("/forgot-password", auth.HandleForgotPassword).Methods(http.MethodPatch)
	a.HandleFunc("/reset-password", auth.HandleResetPassword).Methods(http.MethodPatch)
	a.Handle("/check-auth", protect(auth.HandleCheckAuth)).Methods(http.MethodGet)
	for name, provider := range s.providers {
		a.HandleFunc("/"+name, s.Federated.StartHandler(provider.HandleStart)).Methods(http.MethodGet)
		a.HandleFunc("/"+name+"/callback", provider.HandleCallback).Methods(http.MethodGet)
	}

	p := r.PathPrefix("/api/posts").Subrouter()
	p.HandleFunc("/all-posts", posts.HandleList).Methods(http.MethodGet)
	p.Handle("/create-post", protect(posts.HandleCreate)).Methods(http.MethodPost)
	p.Handle("/single-post", protect(posts.HandleGet)).Methods(http.MethodGet)
	p.Handle("/update-post", protect(posts.HandleUpdate)).Methods(http.MethodPut)
	p.Handle("/delete-post", protect(posts.HandleDelete)).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, NewAuthError(KindNotFound, "Route not found", ""), false)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, false, "", "Method not allowed", nil)
	})
	s.router = r
}

// Handler returns the root handler with session loading and panic
// recovery applied.
func (s *Service) Handler() http.Handler {
	return s.Middleware.Recover(s.Sessions.LoadAndSave(s.router))
}
