package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"prichal/internal/config"
	"prichal/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	clientKeyUnknown      = "unknown"

	permReadAvailability = "read:availability"
	permWriteBookings    = "write:bookings"
	// permPayments is granted to the payment callback; it confirms bookings as SYSTEM.
	permPayments = "payments"
	permAdmin    = "admin"
)

var (
	errMissingCredentials = errors.New("missing api key headers")
	errInvalidAPIKey      = errors.New("invalid api key")
	errInvalidExtra       = errors.New("invalid extra header")
	errPermissionDenied   = errors.New("permission denied")
)

// authenticator resolves API clients by key; shared by the HTTP and gRPC surfaces.
type authenticator struct {
	cfg     *config.APIConfig
	clients map[string]config.APIClientKey
}

func newAuthenticator(cfg *config.APIConfig) *authenticator {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &authenticator{cfg: cfg, clients: m}
}

func (a *authenticator) enabled() bool {
	return a.cfg.Enabled && a.cfg.Auth.Enabled
}

func (a *authenticator) headerNames() (string, string) {
	apiKeyHeader := strings.ToLower(strings.TrimSpace(a.cfg.Auth.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = apiKeyHeaderDefault
	}
	extraHeader := strings.ToLower(strings.TrimSpace(a.cfg.Auth.HeaderExtra))
	if extraHeader == "" {
		extraHeader = apiExtraHeaderDefault
	}
	return apiKeyHeader, extraHeader
}

func (a *authenticator) authenticate(apiKey, extra string) (config.APIClientKey, error) {
	if apiKey == "" || extra == "" {
		return config.APIClientKey{}, errMissingCredentials
	}
	client, ok := a.clients[apiKey]
	if !ok {
		return config.APIClientKey{}, errInvalidAPIKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return config.APIClientKey{}, errInvalidExtra
	}
	return client, nil
}

// hasPermission treats an empty permission list as allow-all; admin implies every permission.
func hasPermission(client config.APIClientKey, required string) bool {
	if required == "" || len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		p = strings.TrimSpace(p)
		if p == required || p == permAdmin {
			return true
		}
	}
	return false
}

// actorFor maps client permissions to the ledger actor.
func actorFor(client config.APIClientKey) models.Actor {
	actor := models.ActorCustomer
	for _, p := range client.Permissions {
		switch strings.TrimSpace(p) {
		case permAdmin:
			return models.ActorAdmin
		case permPayments:
			actor = models.ActorSystem
		}
	}
	return actor
}

type AuthInterceptor struct {
	cfg     *config.APIConfig
	auth    *authenticator
	limiter *RateLimiter
}

func NewAuthInterceptor(cfg *config.APIConfig, limiter *RateLimiter) *AuthInterceptor {
	if limiter == nil {
		limiter = NewRateLimiter(cfg, nil, nil)
	}
	return &AuthInterceptor{
		cfg:     cfg,
		auth:    newAuthenticator(cfg),
		limiter: limiter,
	}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !a.cfg.Enabled || publicMethod(info.FullMethod) {
			return handler(ctx, req)
		}

		if a.auth.enabled() {
			if err := a.checkAuth(ctx, info.FullMethod); err != nil {
				return nil, err
			}
		}
		if !a.limiter.allow(ctx, a.clientKey(ctx)) {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}

		return handler(ctx, req)
	}
}

func (a *AuthInterceptor) checkAuth(ctx context.Context, fullMethod string) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}

	apiKeyHeader, extraHeader := a.auth.headerNames()
	client, err := a.auth.authenticate(first(md.Get(apiKeyHeader)), first(md.Get(extraHeader)))
	if err != nil {
		return status.Error(codes.Unauthenticated, err.Error())
	}

	if !hasPermission(client, requiredPermission(fullMethod)) {
		return status.Error(codes.PermissionDenied, errPermissionDenied.Error())
	}
	return nil
}

// publicMethod lists RPCs load balancers call without credentials.
func publicMethod(fullMethod string) bool {
	switch fullMethod {
	case "/grpc.health.v1.Health/Check", "/grpc.health.v1.Health/Watch":
		return true
	}
	return false
}

func requiredPermission(fullMethod string) string {
	switch {
	case strings.HasPrefix(fullMethod, "/grpc.reflection."):
		return permAdmin
	case strings.HasPrefix(fullMethod, "/"+EngineServiceName+"/"):
		return permReadAvailability
	}
	return ""
}

func (a *AuthInterceptor) clientKey(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	apiKeyHeader, _ := a.auth.headerNames()
	if apiKey := first(md.Get(apiKeyHeader)); apiKey != "" {
		return apiKey
	}

	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}

func LoggingUnaryInterceptor(logger *zerolog.Logger) grpc.UnaryServerInterceptor {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "grpc").Logger()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := requestIDFromMetadata(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadataKey, requestID))

		start := time.Now()
		resp, err := handler(ctx, req)
		dur := time.Since(start)

		code := codes.OK
		if err != nil {
			code = status.Code(err)
		}

		remote := clientKeyUnknown
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		base.Info().
			Str("request_id", requestID).
			Str("method", info.FullMethod).
			Str("remote", remote).
			Str("code", code.String()).
			Dur("duration", dur).
			Msg("grpc request")

		return resp, err
	}
}

const requestIDMetadataKey = "x-request-id"

func requestIDFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if vals := md.Get(requestIDMetadataKey); len(vals) > 0 {
			if id := strings.TrimSpace(vals[0]); id != "" {
				return id
			}
		}
	}
	return uuid.NewString()
}
