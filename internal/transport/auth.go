package transport

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/FallSteph/Syllabuksu/internal/config"
	"github.com/FallSteph/Syllabuksu/model"
)

// clockSkew is the leeway applied to exp, nbf and iat.
const clockSkew = 30 * time.Second

// KeySource supplies the verification key for a parsed token.
type KeySource interface {
	Key(token *jwt.Token) (any, error)
}

// HMACKey verifies HS256/384/512 tokens with a shared secret.
type HMACKey []byte

// Key implements KeySource.
func (k HMACKey) Key(*jwt.Token) (any, error) {
	if len(k) == 0 {
		return nil, errors.New("hmac secret not configured")
	}
	return []byte(k), nil
}

// NewKeySource picks the key source named by the identity config: the JWKS
// endpoint of an external provider, or a shared HMAC secret.
func NewKeySource(cfg config.IdentityConfig, logger *zap.Logger) (KeySource, error) {
	if cfg.JWKSURL != "" {
		return NewJWKSClient(cfg.JWKSURL, cfg.JWKSCacheTTL).WithLogger(logger), nil
	}
	if secret := cfg.HMACSecret(); secret != "" {
		return HMACKey(secret), nil
	}
	return nil, errors.New("identity: neither jwks_url nor an hmac secret is configured")
}

// allowedAlgorithms keeps the configured algorithms that keys can verify,
// so an HMAC deployment never accepts RS* tokens and vice versa.
func allowedAlgorithms(cfg config.IdentityConfig, keys KeySource) []string {
	_, symmetric := keys.(HMACKey)
	var out []string
	for _, alg := range cfg.Algorithms {
		if strings.HasPrefix(alg, "HS") == symmetric {
			out = append(out, alg)
		}
	}
	if len(out) == 0 && symmetric {
		out = []string{"HS256"}
	}
	return out
}

// JWTAuthenticator verifies the bearer token of each request and stores
// its claims in the request context. Failures answer 401.
func JWTAuthenticator(cfg config.IdentityConfig, keys KeySource) func(http.Handler) http.Handler {
	parser := jwt.NewParser(parserOptions(cfg, keys)...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearerToken(r)
			if err != nil {
				WriteError(w, err)
				return
			}

			claims := jwt.MapClaims{}
			token, err := parser.ParseWithClaims(raw, claims, keys.Key)
			if err != nil || !token.Valid {
				WriteError(w, model.NewUnauthorizedError(describeTokenError(err)))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func parserOptions(cfg config.IdentityConfig, keys KeySource) []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(allowedAlgorithms(cfg, keys)),
		jwt.WithLeeway(clockSkew),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return opts
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", model.NewUnauthorizedError("Missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", model.NewUnauthorizedError("Invalid authorization header format")
	}
	return strings.TrimSpace(token), nil
}

var tokenErrorMessages = []struct {
	err error
	msg string
}{
	{jwt.ErrTokenExpired, "Token expired"},
	{jwt.ErrTokenNotValidYet, "Token not valid yet"},
	{jwt.ErrTokenRequiredClaimMissing, "Token is missing a required claim"},
	{jwt.ErrTokenInvalidIssuer, "Invalid token issuer"},
	{jwt.ErrTokenInvalidAudience, "Invalid token audience"},
	{jwt.ErrTokenMalformed, "Malformed token"},
	{errMissingKid, "Unknown signing key"},
	{errUnknownKey, "Unknown signing key"},
}

// describeTokenError turns a parse failure into the client-facing message.
// Details beyond the category stay out of responses.
func describeTokenError(err error) string {
	if err == nil {
		return "Invalid token"
	}
	for _, m := range tokenErrorMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		if strings.Contains(err.Error(), "signing method") {
			return "Disallowed signing algorithm"
		}
		return "Invalid token signature"
	}
	return "Invalid token"
}
