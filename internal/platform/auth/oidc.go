package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Well known issuers of the supported social identity providers.
const (
	GoogleIssuer    = "https://accounts.google.com"
	MicrosoftIssuer = "https://login.microsoftonline.com/common/v2.0"
	AppleIssuer     = "https://appleid.apple.com"
)

// OIDCProvider represents an OpenID Connect provider discovered via the
// .well-known/openid-configuration endpoint.
type OIDCProvider struct {
	Issuer                  string   `json:"issuer"`
	AuthorizationEndpoint   string   `json:"authorization_endpoint"`
	TokenEndpoint           string   `json:"token_endpoint"`
	JWKSURI                 string   `json:"jwks_uri"`
	IDTokenSigningAlgValues []string `json:"id_token_signing_alg_values_supported"`
}

// NewOIDCProvider fetches and parses the OpenID Connect discovery document
// of issuerURL.
func NewOIDCProvider(ctx context.Context, issuerURL string) (*OIDCProvider, error) {
	issuerURL = strings.TrimRight(issuerURL, "/")
	discoveryURL := issuerURL + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building OIDC discovery request: %w", err)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching OIDC discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OIDC discovery endpoint returned status %d", resp.StatusCode)
	}

	var provider OIDCProvider
	if err := json.NewDecoder(resp.Body).Decode(&provider); err != nil {
		return nil, fmt.Errorf("decoding OIDC discovery document: %w", err)
	}
	if provider.JWKSURI == "" {
		return nil, fmt.Errorf("OIDC discovery document missing jwks_uri")
	}
	return &provider, nil
}

// IDTokenClaims are the claims read from a social provider ID token.
type IDTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"`
	Name          string `json:"name"`
}

// Verified reports the email_verified claim, which some providers encode as
// a string.
func (c *IDTokenClaims) Verified() bool {
	switch v := c.EmailVerified.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

// IDTokenVerifier validates RS256 ID tokens of one provider.
type IDTokenVerifier struct {
	issuer   string
	audience string
	keyFunc  jwt.Keyfunc
	// issuerPrefix accepts tenant specific issuers (Microsoft) when set.
	issuerPrefix bool
}

// NewIDTokenVerifier builds a verifier for tokens issued by issuer for
// audience, with keys taken from cache.
func NewIDTokenVerifier(issuer, audience string, cache *JWKSCache) *IDTokenVerifier {
	return &IDTokenVerifier{issuer: issuer, audience: audience, keyFunc: jwksKeyFunc(cache)}
}

// DiscoverIDTokenVerifier resolves the JWKS of issuer through OIDC discovery.
func DiscoverIDTokenVerifier(ctx context.Context, issuer, audience string) (*IDTokenVerifier, error) {
	p, err := NewOIDCProvider(ctx, issuer)
	if err != nil {
		return nil, err
	}
	v := NewIDTokenVerifier(issuer, audience, NewJWKSCache(p.JWKSURI, defaultJWKSCacheTTL))
	// Microsoft's common endpoint advertises a templated tenant issuer.
	v.issuerPrefix = strings.Contains(p.Issuer, "{tenantid}")
	return v, nil
}

// Verify parses raw and checks signature, expiry, audience and issuer.
func (v *IDTokenVerifier) Verify(raw string) (*IDTokenClaims, error) {
	claims := &IDTokenClaims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256"})}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	if !v.issuerPrefix && v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.ParseWithClaims(raw, claims, v.keyFunc, opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if v.issuerPrefix && !strings.HasPrefix(claims.Issuer, "https://login.microsoftonline.com/") {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, claims.Issuer)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
