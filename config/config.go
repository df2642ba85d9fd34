// Package config loads service settings from the environment, an optional
// .env file and an optional config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Store backends
const (
	StoreFS        = "fs"
	StoreGorm      = "gorm"
	StoreMongo     = "mongo"
	StoreDatastore = "datastore"
)

// Mail transports
const (
	MailerConsole = "console"
	MailerSMTP    = "smtp"
)

type OAuthClient struct {
	ClientID     string `mapstructure:"CLIENT_ID"`
	ClientSecret string `mapstructure:"CLIENT_SECRET"`
}

// Enabled reports whether both halves of the client credentials are set.
func (o OAuthClient) Enabled() bool {
	return o.ClientID != "" && o.ClientSecret != ""
}

type Config struct {
	Env      string `mapstructure:"ENV"`
	Port     int    `mapstructure:"PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// PublicURL is where this service is reachable; OAuth callback URLs are
	// derived from it.
	PublicURL string `mapstructure:"PUBLIC_URL"`

	AccessTokenSecret  string        `mapstructure:"ACCESS_TOKEN_SECRET"`
	RefreshTokenSecret string        `mapstructure:"REFRESH_TOKEN_SECRET"`
	CodeSecret         string        `mapstructure:"HMAC_VERIFICATION_CODE_SECRET"`
	TokenIssuer        string        `mapstructure:"TOKEN_ISSUER"`
	AccessTokenTTL     time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL    time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	FederatedTokenTTL  time.Duration `mapstructure:"FEDERATED_TOKEN_TTL"`
	CodeTTL            time.Duration `mapstructure:"CODE_TTL"`
	BcryptCost         int           `mapstructure:"BCRYPT_COST"`
	EchoTokens         bool          `mapstructure:"ECHO_TOKENS"`

	CookieDomain       string `mapstructure:"COOKIE_DOMAIN"`
	FrontendSuccessURL string `mapstructure:"FRONTEND_SUCCESS_URL"`
	FrontendFailureURL string `mapstructure:"FRONTEND_FAILURE_URL"`

	Store              string `mapstructure:"STORE"`
	FSStorePath        string `mapstructure:"FS_STORE_PATH"`
	DatabaseDSN        string `mapstructure:"DATABASE_DSN"`
	MongoURI           string `mapstructure:"MONGO_URI"`
	MongoDatabase      string `mapstructure:"MONGO_DATABASE"`
	DatastoreProject   string `mapstructure:"DATASTORE_PROJECT"`
	DatastoreNamespace string `mapstructure:"DATASTORE_NAMESPACE"`

	Mailer       string `mapstructure:"MAILER"`
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	// SMTPEncryption is "ssl" for implicit TLS or "starttls".
	SMTPEncryption string `mapstructure:"SMTP_ENCRYPTION"`
	MailFrom       string `mapstructure:"MAIL_FROM"`

	Google   OAuthClient `mapstructure:"GOOGLE"`
	Github   OAuthClient `mapstructure:"GITHUB"`
	LinkedIn OAuthClient `mapstructure:"LINKEDIN"`

	PostsPerPage int `mapstructure:"POSTS_PER_PAGE"`

	// GRPCPort enables the gRPC health endpoint when non-zero.
	GRPCPort int `mapstructure:"GRPC_PORT"`
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, EnvProduction)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// CallbackURL returns the OAuth callback registered with provider.
func (c *Config) CallbackURL(provider string) string {
	return strings.TrimRight(c.PublicURL, "/") + "/api/auth/" + provider + "/callback"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8000)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PUBLIC_URL", "http://localhost:8000")
	v.SetDefault("TOKEN_ISSUER", "auth-service")
	v.SetDefault("ACCESS_TOKEN_TTL", 30*time.Minute)
	v.SetDefault("REFRESH_TOKEN_TTL", 7*24*time.Hour)
	v.SetDefault("FEDERATED_TOKEN_TTL", 6*time.Hour)
	v.SetDefault("CODE_TTL", 5*time.Minute)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("ECHO_TOKENS", true)
	v.SetDefault("FRONTEND_SUCCESS_URL", "http://localhost:5173/dashboard")
	v.SetDefault("FRONTEND_FAILURE_URL", "http://localhost:5173/login")
	v.SetDefault("STORE", StoreFS)
	v.SetDefault("FS_STORE_PATH", "./data")
	v.SetDefault("DATABASE_DSN", "auth.db")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "auth_service")
	v.SetDefault("MAILER", MailerConsole)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_ENCRYPTION", "starttls")
	v.SetDefault("POSTS_PER_PAGE", 10)
	v.SetDefault("GRPC_PORT", 0)

	// Nested keys must be known to viper for AutomaticEnv to see them.
	for _, provider := range []string{"GOOGLE", "GITHUB", "LINKEDIN"} {
		v.SetDefault(provider+".CLIENT_ID", "")
		v.SetDefault(provider+".CLIENT_SECRET", "")
	}
}

// Load reads a .env file when present, then an optional config file named
// "config" from the given directories, then the environment. Environment
// variables win. Nested keys use an underscore, e.g. GOOGLE_CLIENT_ID.
func Load(searchPaths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if len(searchPaths) > 0 {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail at first use. Missing
// secrets are fatal in production only; development gets random ones from
// the caller.
func (c *Config) Validate() error {
	var errs []error
	if c.IsProduction() {
		if c.AccessTokenSecret == "" {
			errs = append(errs, errors.New("ACCESS_TOKEN_SECRET is required in production"))
		}
		if c.RefreshTokenSecret == "" {
			errs = append(errs, errors.New("REFRESH_TOKEN_SECRET is required in production"))
		}
		if c.CodeSecret == "" {
			errs = append(errs, errors.New("HMAC_VERIFICATION_CODE_SECRET is required in production"))
		}
		if c.Mailer == MailerConsole {
			errs = append(errs, errors.New("MAILER=console is not allowed in production"))
		}
	}
	if c.AccessTokenSecret != "" && c.AccessTokenSecret == c.RefreshTokenSecret {
		errs = append(errs, errors.New("access and refresh token secrets must differ"))
	}

	switch c.Store {
	case StoreFS, StoreGorm, StoreMongo:
	case StoreDatastore:
		if c.DatastoreProject == "" {
			errs = append(errs, errors.New("DATASTORE_PROJECT is required for the datastore store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE %q", c.Store))
	}

	switch c.Mailer {
	case MailerConsole:
	case MailerSMTP:
		if c.SMTPHost == "" || c.MailFrom == "" {
			errs = append(errs, errors.New("SMTP_HOST and MAIL_FROM are required for the smtp mailer"))
		}
		switch strings.ToLower(c.SMTPEncryption) {
		case "", "ssl", "starttls":
		default:
			errs = append(errs, fmt.Errorf("unknown SMTP_ENCRYPTION %q", c.SMTPEncryption))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown MAILER %q", c.Mailer))
	}

	if c.PostsPerPage <= 0 {
		errs = append(errs, errors.New("POSTS_PER_PAGE must be positive"))
	}
	return errors.Join(errs...)
}
