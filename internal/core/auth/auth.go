// Package auth provides HMAC-based API key authentication for the gRPC
// campaign API and signature verification for vendor receipt webhooks.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// lastUsedThrottle bounds last_used_at writes per key.
const lastUsedThrottle = time.Minute

type contextKey string

const principalKey = contextKey("principal")

// Principal identifies the API key behind a request.
type Principal struct {
	APIKeyID string
	Name     string
}

// Queries defines the database operations authentication needs.
// Implemented by *db.Queries.
type Queries interface {
	GetContext(ctx context.Context, name string, dest any, args ...any) error
	ExecContext(ctx context.Context, name string, args ...any) (sql.Result, error)
}

// Authenticator validates API keys using HMAC-SHA256 hashes.
// Secrets are held in memory keyed by secret_id; keys are stored hashed.
type Authenticator struct {
	secrets map[string][]byte
	queries Queries
	now     func() time.Time
	logger  *slog.Logger
}

// NewAuthenticator creates an authenticator with HMAC secrets and queries.
func NewAuthenticator(secrets map[string][]byte, queries Queries, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		secrets: secrets,
		queries: queries,
		now:     time.Now,
		logger:  logger.With("component", "auth"),
	}
}

type apiKeyRow struct {
	APIKeyID   string         `db:"api_key_id"`
	Name       string         `db:"name"`
	RevokedAt  sql.NullString `db:"revoked_at"`
	LastUsedAt sql.NullString `db:"last_used_at"`
}

// Authenticate validates apiKey and returns its principal.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (Principal, error) {
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return Principal{}, err
	}

	secret, ok := a.secrets[secretID]
	if !ok {
		return Principal{}, ErrUnknownKey
	}

	var row apiKeyRow
	err = a.queries.GetContext(ctx, "get-api-key-by-hash", &row, ComputeHMAC(secret, apiKey))
	if errors.Is(err, sql.ErrNoRows) {
		return Principal{}, ErrInvalidKey
	}
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrDatabase, err)
	}

	if row.RevokedAt.Valid {
		return Principal{}, ErrKeyRevoked
	}

	if a.shouldUpdateLastUsed(row.LastUsedAt) {
		now := a.now().UTC().Format(time.RFC3339Nano)
		if _, err := a.queries.ExecContext(ctx, "update-last-used", now, row.APIKeyID); err != nil {
			a.logger.Warn("failed to update last_used_at", "api_key_id", row.APIKeyID, "error", err)
		}
	}

	return Principal{APIKeyID: row.APIKeyID, Name: row.Name}, nil
}

func (a *Authenticator) shouldUpdateLastUsed(lastUsed sql.NullString) bool {
	if !lastUsed.Valid {
		return true
	}
	t, err := time.Parse(time.RFC3339Nano, lastUsed.String)
	if err != nil {
		return true
	}
	return a.now().Sub(t) > lastUsedThrottle
}

// IssueKey generates a key under secretID, stores its hash and returns the
// plaintext key together with its id. The plaintext is never stored.
func (a *Authenticator) IssueKey(ctx context.Context, secretID, name string) (key, apiKeyID string, err error) {
	secret, ok := a.secrets[secretID]
	if !ok {
		return "", "", ErrUnknownKey
	}
	key, err = GenerateAPIKey(secretID)
	if err != nil {
		return "", "", err
	}

	apiKeyID = uuid.Must(uuid.NewV7()).String()
	now := a.now().UTC().Format(time.RFC3339Nano)
	if _, err := a.queries.ExecContext(ctx, "insert-api-key", apiKeyID, secretID, ComputeHMAC(secret, key), name, now); err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	return key, apiKeyID, nil
}

// RevokeKey marks a key revoked. Revoking twice is a no-op.
func (a *Authenticator) RevokeKey(ctx context.Context, apiKeyID string) error {
	now := a.now().UTC().Format(time.RFC3339Nano)
	if _, err := a.queries.ExecContext(ctx, "revoke-api-key", now, apiKeyID); err != nil {
		return fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	return nil
}

// UnaryInterceptor returns a gRPC interceptor that authenticates requests.
// Methods listed in public (full method names) skip authentication.
func (a *Authenticator) UnaryInterceptor(public ...string) grpc.UnaryServerInterceptor {
	skip := make(map[string]bool, len(public))
	for _, m := range public {
		skip[m] = true
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if skip[info.FullMethod] {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		apiKeys := md.Get("x-api-key")
		if len(apiKeys) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		p, err := a.Authenticate(ctx, apiKeys[0])
		switch {
		case err == nil:
		case errors.Is(err, ErrKeyRevoked):
			return nil, status.Error(codes.PermissionDenied, err.Error())
		case errors.Is(err, ErrDatabase):
			a.logger.Error("api key lookup failed", "method", info.FullMethod, "error", err)
			return nil, status.Error(codes.Unavailable, "authentication unavailable")
		default:
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		return handler(ContextWithPrincipal(ctx, p), req)
	}
}

// ContextWithPrincipal attaches p to ctx.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
