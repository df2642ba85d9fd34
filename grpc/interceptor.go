package grpc

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	authservice "github.com/Matidza/Auth-Service"
)

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// Tokens verifies access tokens. Required.
	Tokens *authservice.TokenIssuer

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed without claims.
	RequireAuth bool

	// PublicMethods is a set of full method names ("/package.Service/Method")
	// that don't require auth.
	PublicMethods map[string]bool

	Logger *zap.Logger
}

// DefaultInterceptorConfig returns a config that requires auth for all methods.
func DefaultInterceptorConfig(tokens *authservice.TokenIssuer) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		Tokens:        tokens,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
}

// NewPublicMethodsConfig creates a config with the specified public methods.
func NewPublicMethodsConfig(tokens *authservice.TokenIssuer, publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig(tokens)
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows unauthenticated requests.
func OptionalAuthConfig(tokens *authservice.TokenIssuer) *InterceptorConfig {
	config := DefaultInterceptorConfig(tokens)
	config.RequireAuth = false
	return config
}

func (c *InterceptorConfig) ensureDefaults() {
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	if c.PublicMethods == nil {
		c.PublicMethods = make(map[string]bool)
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// authenticate returns ctx with claims attached when the call carries a
// valid token. A present but invalid token is always rejected.
func (c *InterceptorConfig) authenticate(ctx context.Context, method string) (context.Context, error) {
	token := TokenFromContext(ctx, c.Config)
	if token != "" {
		if c.Tokens == nil {
			return ctx, status.Error(codes.Internal, "token verification not configured")
		}
		claims, err := c.Tokens.ParseAccess(token)
		if err != nil {
			c.Logger.Debug("rejected token", zap.String("method", method), zap.Error(err))
			return ctx, status.Error(codes.Unauthenticated, "invalid token")
		}
		return authservice.ContextWithClaims(ctx, claims), nil
	}
	if c.RequireAuth && !c.PublicMethods[method] {
		return ctx, status.Error(codes.Unauthenticated, "authentication required")
	}
	return ctx, nil
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that verifies the
// access token and attaches its claims to the handler context.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	if config == nil {
		config = DefaultInterceptorConfig(nil)
	}
	config.ensureDefaults()

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := config.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns a gRPC stream interceptor that verifies the
// access token and attaches its claims to the stream context.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	if config == nil {
		config = DefaultInterceptorConfig(nil)
	}
	config.ensureDefaults()

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := config.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
	}
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context { return s.ctx }
