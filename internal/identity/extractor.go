// Package identity derives tenant identifiers and principals from inbound
// requests. It makes no storage calls; resolution against the tenant store
// happens in the tenant package.
package identity

import (
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TenantHeader is the explicit tenant selection header.
const TenantHeader = "X-Tenant-ID"

// IdentifierKind says whether an identifier is a tenant id or a slug.
type IdentifierKind string

const (
	KindID   IdentifierKind = "id"
	KindSlug IdentifierKind = "slug"
)

// TenantIdentifier is a raw, unresolved tenant reference plus where it came from.
type TenantIdentifier struct {
	Value  string
	Kind   IdentifierKind
	Source string // "header", "token" or "hostname"
}

// SessionClaims are the claims carried by a session token.
type SessionClaims struct {
	TenantID string `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// Extractor derives a tenant identifier from request headers, verified
// session claims, or the request hostname, in that trust order. The header
// is the most explicit and wins; the DNS-derived hint is weakest and only
// consulted last.
type Extractor struct {
	jwtSecret []byte
}

// NewExtractor creates an extractor that verifies session tokens with the
// given secret.
func NewExtractor(jwtSecret string) *Extractor {
	return &Extractor{jwtSecret: []byte(jwtSecret)}
}

// Extract returns the tenant identifier for the request, or false when the
// request carries none.
func (e *Extractor) Extract(r *http.Request) (*TenantIdentifier, bool) {
	if header := strings.TrimSpace(r.Header.Get(TenantHeader)); header != "" {
		kind := KindSlug
		if looksLikeUUID(header) {
			kind = KindID
		}
		return &TenantIdentifier{Value: header, Kind: kind, Source: "header"}, true
	}

	if claims, err := e.ParseSessionToken(BearerToken(r)); err == nil && claims.TenantID != "" {
		return &TenantIdentifier{Value: claims.TenantID, Kind: KindID, Source: "token"}, true
	}

	if slug, ok := subdomainSlug(r.Host); ok {
		return &TenantIdentifier{Value: slug, Kind: KindSlug, Source: "hostname"}, true
	}

	return nil, false
}

// ParseSessionToken verifies an HS256 session token and returns its claims.
func (e *Extractor) ParseSessionToken(tokenString string) (*SessionClaims, error) {
	if tokenString == "" {
		return nil, jwt.ErrTokenMalformed
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return e.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// BearerToken returns the bearer credential from the Authorization header,
// or "" when absent.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}

func looksLikeUUID(value string) bool {
	if !strings.Contains(value, "-") {
		return false
	}
	_, err := uuid.Parse(value)
	return err == nil
}

var reservedLabels = map[string]bool{
	"www": true,
	"api": true,
}

// subdomainSlug returns the first hostname label as a tenant slug, for
// browser-originated traffic like acme.app.example.com. Requires at least
// three dot-separated labels so bare domains never resolve to a tenant.
func subdomainSlug(host string) (string, bool) {
	if host == "" {
		return "", false
	}

	// Strip any port
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	host = strings.ToLower(host)
	if host == "localhost" {
		return "", false
	}
	if ip := net.ParseIP(host); ip != nil {
		return "", false
	}

	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return "", false
	}

	first := labels[0]
	if first == "" || reservedLabels[first] {
		return "", false
	}

	return first, true
}
