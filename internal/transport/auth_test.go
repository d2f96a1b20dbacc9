package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/FallSteph/Syllabuksu/internal/config"
	"github.com/FallSteph/Syllabuksu/model"
)

const (
	testIssuer   = "https://login.buksu.edu.ph"
	testAudience = "syllabuksu"
)

// idp is a fake identity provider publishing a JWKS document.
type idp struct {
	rsaKey  *rsa.PrivateKey
	ecKey   *ecdsa.PrivateKey
	srv     *httptest.Server
	fetches atomic.Int32

	mu   sync.Mutex
	jwks []map[string]any
	down bool
}

func newIDP(t *testing.T) *idp {
	t.Helper()
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa key: %v", err)
	}
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("ec key: %v", err)
	}
	p := &idp{rsaKey: rsaKey, ecKey: ecKey}
	p.jwks = []map[string]any{
		{
			"kid": "rsa-1", "kty": "RSA", "use": "sig",
			"n": b64(rsaKey.N.Bytes()), "e": b64(big.NewInt(int64(rsaKey.E)).Bytes()),
		},
		{
			"kid": "ec-1", "kty": "EC", "crv": "P-256",
			"x": b64(ecKey.X.Bytes()), "y": b64(ecKey.Y.Bytes()),
		},
	}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		p.fetches.Add(1)
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.down {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": p.jwks})
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func (p *idp) setDown(down bool) {
	p.mu.Lock()
	p.down = down
	p.mu.Unlock()
}

func (p *idp) sign(t *testing.T, method jwt.SigningMethod, kid string, claims jwt.MapClaims) string {
	t.Helper()
	var key any = p.rsaKey
	if _, ok := method.(*jwt.SigningMethodECDSA); ok {
		key = p.ecKey
	}
	tok := jwt.NewWithClaims(method, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func reviewerClaims(mutate ...func(jwt.MapClaims)) jwt.MapClaims {
	now := time.Now()
	c := jwt.MapClaims{
		"sub":   "dh-it",
		"email": "dh-it@buksu.edu.ph",
		"role":  "dept_head",
		"iss":   testIssuer,
		"aud":   testAudience,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	for _, m := range mutate {
		m(c)
	}
	return c
}

func identity(algs ...string) config.IdentityConfig {
	return config.IdentityConfig{Issuer: testIssuer, Audience: testAudience, Algorithms: algs}
}

// authenticate runs one request through JWTAuthenticator and returns the
// status and the claims the next handler saw.
func authenticate(t *testing.T, cfg config.IdentityConfig, keys KeySource, header string) (int, map[string]any, model.ErrorEnvelope) {
	t.Helper()
	var seen map[string]any
	h := JWTAuthenticator(cfg, keys)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClaimsFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	if rec.Code != http.StatusNoContent {
		_ = json.NewDecoder(rec.Body).Decode(&body)
	}
	return rec.Code, seen, body.Error
}

// --- JWKSClient ---

func TestJWKSClient_resolvesRSAAndEC(t *testing.T) {
	p := newIDP(t)
	c := NewJWKSClient(p.srv.URL, time.Hour)

	rsaKey, err := c.GetKey("rsa-1")
	if err != nil {
		t.Fatalf("GetKey(rsa-1): %v", err)
	}
	if pub, ok := rsaKey.(*rsa.PublicKey); !ok || pub.N.Cmp(p.rsaKey.N) != 0 {
		t.Errorf("rsa key mismatch: %T", rsaKey)
	}

	ecKey, err := c.GetKey("ec-1")
	if err != nil {
		t.Fatalf("GetKey(ec-1): %v", err)
	}
	if pub, ok := ecKey.(*ecdsa.PublicKey); !ok || pub.X.Cmp(p.ecKey.X) != 0 {
		t.Errorf("ec key mismatch: %T", ecKey)
	}

	if n := p.fetches.Load(); n != 1 {
		t.Errorf("fetches = %d, want 1 while the cache is fresh", n)
	}
}

func TestJWKSClient_unknownKidIsRateLimited(t *testing.T) {
	p := newIDP(t)
	c := NewJWKSClient(p.srv.URL, time.Hour)

	for range 3 {
		if _, err := c.GetKey("rotated-away"); !errors.Is(err, errUnknownKey) {
			t.Fatalf("GetKey() error = %v, want errUnknownKey", err)
		}
	}
	if n := p.fetches.Load(); n != 1 {
		t.Errorf("fetches = %d, want 1 within the refresh interval", n)
	}
}

func TestJWKSClient_servesCachedKeyWhenProviderDown(t *testing.T) {
	p := newIDP(t)
	c := NewJWKSClient(p.srv.URL, 0)
	c.minRefresh = 0

	if _, err := c.GetKey("rsa-1"); err != nil {
		t.Fatalf("initial GetKey: %v", err)
	}
	p.setDown(true)

	if _, err := c.GetKey("rsa-1"); err != nil {
		t.Errorf("GetKey() with provider down = %v, want cached key", err)
	}
	if _, err := c.GetKey("never-seen"); err == nil {
		t.Error("unknown kid with provider down should fail")
	}
}

func TestJWKSClient_skipsUnusableKeys(t *testing.T) {
	p := newIDP(t)
	p.jwks = append(p.jwks,
		map[string]any{"kid": "enc-1", "kty": "RSA", "use": "enc", "n": "AQAB", "e": "AQAB"},
		map[string]any{"kid": "okp-1", "kty": "OKP", "crv": "Ed25519", "x": "AA"},
		map[string]any{"kty": "RSA", "n": "AQAB", "e": "AQAB"},
		map[string]any{"kid": "bad-e", "kty": "RSA", "n": "AQAB", "e": "AQ"},
	)
	c := NewJWKSClient(p.srv.URL, time.Hour)

	if _, err := c.GetKey("rsa-1"); err != nil {
		t.Fatalf("GetKey(rsa-1): %v", err)
	}
	for _, kid := range []string{"enc-1", "okp-1", "bad-e"} {
		if _, err := c.GetKey(kid); err == nil {
			t.Errorf("GetKey(%s) should fail", kid)
		}
	}
}

// --- JWTAuthenticator ---

func TestJWTAuthenticator_acceptsValidTokens(t *testing.T) {
	p := newIDP(t)
	keys := NewJWKSClient(p.srv.URL, time.Hour)
	cfg := identity("RS256", "ES256")

	for _, tc := range []struct {
		method jwt.SigningMethod
		kid    string
	}{
		{jwt.SigningMethodRS256, "rsa-1"},
		{jwt.SigningMethodES256, "ec-1"},
	} {
		t.Run(tc.method.Alg(), func(t *testing.T) {
			code, claims, _ := authenticate(t, cfg, keys, "Bearer "+p.sign(t, tc.method, tc.kid, reviewerClaims()))
			if code != http.StatusNoContent {
				t.Fatalf("status = %d, want 204", code)
			}
			if claims["sub"] != "dh-it" || claims["role"] != "dept_head" {
				t.Errorf("claims = %v", claims)
			}
		})
	}
}

func TestJWTAuthenticator_rejects(t *testing.T) {
	p := newIDP(t)
	keys := NewJWKSClient(p.srv.URL, time.Hour)
	cfg := identity("RS256")
	rs := func(c jwt.MapClaims) string { return "Bearer " + p.sign(t, jwt.SigningMethodRS256, "rsa-1", c) }

	tests := []struct {
		name    string
		header  string
		wantMsg string
	}{
		{"no header", "", "Missing authorization header"},
		{"basic scheme", "Basic ZGgtaXQ6cGFzcw==", "Invalid authorization header format"},
		{"empty bearer", "Bearer ", "Invalid authorization header format"},
		{"garbage", "Bearer not.a.jwt", "Malformed token"},
		{"expired", rs(reviewerClaims(func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() })), "Token expired"},
		{"not yet valid", rs(reviewerClaims(func(c jwt.MapClaims) { c["nbf"] = time.Now().Add(time.Hour).Unix() })), "Token not valid yet"},
		{"no exp", rs(reviewerClaims(func(c jwt.MapClaims) { delete(c, "exp") })), "Token is missing a required claim"},
		{"wrong issuer", rs(reviewerClaims(func(c jwt.MapClaims) { c["iss"] = "https://other.example.com" })), "Invalid token issuer"},
		{"wrong audience", rs(reviewerClaims(func(c jwt.MapClaims) { c["aud"] = "lms" })), "Invalid token audience"},
		{"algorithm not allowed", "Bearer " + p.sign(t, jwt.SigningMethodES256, "ec-1", reviewerClaims()), "Disallowed signing algorithm"},
		{"unknown kid", "Bearer " + p.sign(t, jwt.SigningMethodRS256, "rsa-9", reviewerClaims()), "Unknown signing key"},
		{"no kid", "Bearer " + p.sign(t, jwt.SigningMethodRS256, "", reviewerClaims()), "Unknown signing key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, claims, env := authenticate(t, cfg, keys, tt.header)
			if code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", code)
			}
			if claims != nil {
				t.Error("next handler should not run")
			}
			if env.Code != model.ErrUnauthorized || env.Message != tt.wantMsg {
				t.Errorf("error = %s %q, want %q", env.Code, env.Message, tt.wantMsg)
			}
		})
	}
}

func TestJWTAuthenticator_clockSkew(t *testing.T) {
	p := newIDP(t)
	keys := NewJWKSClient(p.srv.URL, time.Hour)
	tok := p.sign(t, jwt.SigningMethodRS256, "rsa-1", reviewerClaims(func(c jwt.MapClaims) {
		c["exp"] = time.Now().Add(-clockSkew / 2).Unix()
	}))

	if code, _, _ := authenticate(t, identity("RS256"), keys, "Bearer "+tok); code != http.StatusNoContent {
		t.Errorf("status = %d, want 204 within the skew allowance", code)
	}
}

func TestJWTAuthenticator_lowercaseScheme(t *testing.T) {
	p := newIDP(t)
	keys := NewJWKSClient(p.srv.URL, time.Hour)
	tok := p.sign(t, jwt.SigningMethodRS256, "rsa-1", reviewerClaims())

	if code, _, _ := authenticate(t, identity("RS256"), keys, "bearer "+tok); code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", code)
	}
}

func TestJWTAuthenticator_hmac(t *testing.T) {
	secret := HMACKey("campus-shared-secret")
	hs := func(key []byte, c jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return "Bearer " + s
	}
	p := newIDP(t)

	tests := []struct {
		name     string
		header   string
		wantCode int
	}{
		{"valid", hs(secret, reviewerClaims()), http.StatusNoContent},
		{"wrong secret", hs([]byte("guess"), reviewerClaims()), http.StatusUnauthorized},
		{"rsa token", "Bearer " + p.sign(t, jwt.SigningMethodRS256, "rsa-1", reviewerClaims()), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _, _ := authenticate(t, identity("RS256"), secret, tt.header); code != tt.wantCode {
				t.Errorf("status = %d, want %d", code, tt.wantCode)
			}
		})
	}
}

func TestAllowedAlgorithms(t *testing.T) {
	cfg := config.IdentityConfig{Algorithms: []string{"RS256", "ES384", "HS512"}}
	tests := []struct {
		name string
		cfg  config.IdentityConfig
		keys KeySource
		want []string
	}{
		{"hmac keeps HS", cfg, HMACKey("x"), []string{"HS512"}},
		{"jwks keeps asymmetric", cfg, NewJWKSClient("http://unused", time.Hour), []string{"RS256", "ES384"}},
		{"hmac default", config.IdentityConfig{}, HMACKey("x"), []string{"HS256"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := allowedAlgorithms(tt.cfg, tt.keys)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestNewKeySource(t *testing.T) {
	t.Setenv("SYLLABUKSU_TEST_HMAC", "s3cret")

	tests := []struct {
		name    string
		cfg     config.IdentityConfig
		want    string
		wantErr bool
	}{
		{"hmac", config.IdentityConfig{HMACSecretEnv: "SYLLABUKSU_TEST_HMAC"}, "transport.HMACKey", false},
		{"jwks", config.IdentityConfig{JWKSURL: "http://idp/jwks", JWKSCacheTTL: time.Hour}, "*transport.JWKSClient", false},
		{"empty secret env", config.IdentityConfig{HMACSecretEnv: "SYLLABUKSU_TEST_UNSET"}, "", true},
		{"nothing", config.IdentityConfig{}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ks, err := NewKeySource(tt.cfg, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewKeySource() error = %v", err)
			}
			if got := typeName(ks); got != tt.want {
				t.Errorf("key source = %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(v any) string {
	switch v.(type) {
	case HMACKey:
		return "transport.HMACKey"
	case *JWKSClient:
		return "*transport.JWKSClient"
	}
	return "unknown"
}

func TestExtractClaimString(t *testing.T) {
	claims := map[string]any{
		"sub":          "dean-cot",
		"app_metadata": map[string]any{"role": "dean"},
		"roles":        []any{"citl", "vpaa"},
		"empty":        []any{},
		"count":        3.0,
	}
	tests := []struct {
		path string
		want string
	}{
		{"sub", "dean-cot"},
		{"app_metadata.role", "dean"},
		{"roles", "citl"},
		{"empty", ""},
		{"count", ""},
		{"app_metadata.role.name", ""},
		{"missing.path", ""},
	}
	for _, tt := range tests {
		if got := extractClaimString(claims, tt.path); got != tt.want {
			t.Errorf("extractClaimString(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
	if got := extractClaimString(nil, "sub"); got != "" {
		t.Errorf("nil claims = %q, want empty", got)
	}
}
