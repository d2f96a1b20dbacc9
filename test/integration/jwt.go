package integration

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"maps"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testKeyID    = "buksu-idp-2026"
	testIssuer   = "https://auth.test.buksu.edu.ph"
	testAudience = "syllabuksu-test"
)

// TestClaims describes the caller a token should identify. Extra entries
// are merged last and may override the registered claims.
type TestClaims struct {
	SubjectID string
	Email     string
	Role      string
	Extra     map[string]any
}

func (c TestClaims) mapClaims(issuedAt time.Time, ttl time.Duration) jwt.MapClaims {
	mc := jwt.MapClaims{
		"iss":   testIssuer,
		"aud":   testAudience,
		"sub":   c.SubjectID,
		"email": c.Email,
		"iat":   issuedAt.Unix(),
		"exp":   issuedAt.Add(ttl).Unix(),
	}
	if c.Role != "" {
		mc["role"] = c.Role
	}
	maps.Copy(mc, c.Extra)
	return mc
}

// identityProvider stands in for the campus login service: it signs RS256
// tokens and publishes the matching key set over HTTP.
type identityProvider struct {
	t    *testing.T
	key  *rsa.PrivateKey
	jwks *httptest.Server
}

func newIdentityProvider(t *testing.T) *identityProvider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("identity provider key: %v", err)
	}

	doc, err := json.Marshal(map[string]any{"keys": []map[string]string{{
		"kid": testKeyID,
		"kty": "RSA",
		"alg": "RS256",
		"use": "sig",
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}}})
	if err != nil {
		t.Fatalf("encode key set: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	}))
	t.Cleanup(srv.Close)

	return &identityProvider{t: t, key: key, jwks: srv}
}

func (p *identityProvider) issue(claims jwt.MapClaims) string {
	p.t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = testKeyID
	signed, err := tok.SignedString(p.key)
	if err != nil {
		p.t.Fatalf("sign token: %v", err)
	}
	return signed
}

// GenerateToken returns a token valid for the next hour.
func (p *identityProvider) GenerateToken(c TestClaims) string {
	return p.issue(c.mapClaims(time.Now(), time.Hour))
}

// GenerateExpiredToken returns a token that lapsed an hour ago, well past
// any clock-skew allowance.
func (p *identityProvider) GenerateExpiredToken(c TestClaims) string {
	return p.issue(c.mapClaims(time.Now().Add(-2*time.Hour), time.Hour))
}

func (p *identityProvider) JWKSURL() string  { return p.jwks.URL }
func (p *identityProvider) Issuer() string   { return testIssuer }
func (p *identityProvider) Audience() string { return testAudience }
