// Package grpc carries authentication between HTTP front ends and gRPC
// services. Callers forward the access token in the "authorization"
// metadata entry; the interceptors verify it and expose the claims the
// same way the HTTP middleware does.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"

	authservice "github.com/Matidza/Auth-Service"
)

// Default metadata keys for authentication context.
const (
	// DefaultMetadataKeyAuthorization carries "Bearer <access token>".
	DefaultMetadataKeyAuthorization = "authorization"

	// DefaultMetadataKeyAccountID is set on outgoing calls so downstream
	// services can log the caller without parsing the token.
	DefaultMetadataKeyAccountID = "x-account-id"
)

// Config holds the metadata key configuration for auth context.
type Config struct {
	// MetadataKeyAuthorization defaults to "authorization".
	MetadataKeyAuthorization string

	// MetadataKeyAccountID defaults to "x-account-id".
	MetadataKeyAccountID string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKeyAuthorization: DefaultMetadataKeyAuthorization,
		MetadataKeyAccountID:     DefaultMetadataKeyAccountID,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthorization == "" {
		c.MetadataKeyAuthorization = DefaultMetadataKeyAuthorization
	}
	if c.MetadataKeyAccountID == "" {
		c.MetadataKeyAccountID = DefaultMetadataKeyAccountID
	}
}

// TokenFromContext returns the bearer token in the incoming metadata, or "".
func TokenFromContext(ctx context.Context, config *Config) string {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(config.MetadataKeyAuthorization)
	if len(values) == 0 {
		return ""
	}
	value := strings.TrimSpace(values[0])
	if len(value) > 7 && strings.EqualFold(value[:7], "bearer ") {
		return strings.TrimSpace(value[7:])
	}
	return ""
}

// AccountIDFromContext returns the id of the verified caller, or "" when the
// interceptor did not authenticate the call.
func AccountIDFromContext(ctx context.Context) string {
	if claims := authservice.ClaimsFromContext(ctx); claims != nil {
		return claims.AccountID
	}
	return ""
}

// IsAuthenticated returns true if the interceptor verified a caller.
func IsAuthenticated(ctx context.Context) bool {
	return AccountIDFromContext(ctx) != ""
}

// TokenToOutgoingContext forwards an access token on an outgoing call.
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAuthorization, "Bearer "+token)
}

// ForwardAuth copies the verified caller of an incoming call onto an
// outgoing one: the token itself and the account id hint.
func ForwardAuth(ctx context.Context) context.Context {
	token := TokenFromContext(ctx, nil)
	if token == "" {
		return ctx
	}
	ctx = TokenToOutgoingContext(ctx, token)
	if id := AccountIDFromContext(ctx); id != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAccountID, id)
	}
	return ctx
}
