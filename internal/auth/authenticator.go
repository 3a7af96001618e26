// Package auth authenticates bearer credentials into principals. A credential
// is either the system-wide API key, a tenant-scoped API key, or a session
// token; each request yields exactly one principal variant or none.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"

	"tenantgate/internal/common/errors"
	"tenantgate/internal/identity"
	"tenantgate/internal/storage"
)

const (
	apiKeyPrefix     = "tg"
	apiKeySecretLen  = 24
	pbkdf2Iterations = 4096
	pbkdf2KeyLen     = 32
)

// SystemKeyID marks the principal minted from the shared system secret.
const SystemKeyID = "system"

// Authenticator turns bearer tokens into principals.
type Authenticator struct {
	storage         storage.Storage
	extractor       *identity.Extractor
	jwtSecret       []byte
	sessionTTL      time.Duration
	systemKeyDigest []byte // sha256 of the configured system key, nil when unset
}

// New creates an authenticator. systemKey may be empty to disable the
// system-wide credential.
func New(store storage.Storage, extractor *identity.Extractor, jwtSecret, systemKey string) *Authenticator {
	a := &Authenticator{
		storage:    store,
		extractor:  extractor,
		jwtSecret:  []byte(jwtSecret),
		sessionTTL: 24 * time.Hour,
	}
	if systemKey != "" {
		digest := sha256.Sum256([]byte(systemKey))
		a.systemKeyDigest = digest[:]
	}
	return a
}

// Authenticate resolves the request's bearer credential to a principal.
// Returns (nil, nil) when the request carries no credential; callers decide
// whether an anonymous request is acceptable for the path.
func (a *Authenticator) Authenticate(r *http.Request) (identity.Principal, error) {
	token := identity.BearerToken(r)
	if token == "" {
		return nil, nil
	}

	// System-wide key first: a single shared secret compared in constant
	// time. Digests are compared rather than raw bytes so the comparison
	// length never depends on the presented credential.
	if a.systemKeyDigest != nil {
		presented := sha256.Sum256([]byte(token))
		if hmac.Equal(presented[:], a.systemKeyDigest) {
			return identity.APIKeyPrincipal{
				KeyID:       SystemKeyID,
				Permissions: identity.ParsePermissions([]string{"*"}),
				Active:      true,
			}, nil
		}
	}

	if strings.HasPrefix(token, apiKeyPrefix+"_") {
		return a.authenticateAPIKey(r.Context(), token)
	}

	return a.authenticateSession(token)
}

func (a *Authenticator) authenticateAPIKey(ctx context.Context, token string) (identity.Principal, error) {
	keyID, secret, err := splitAPIKey(token)
	if err != nil {
		return nil, err
	}

	record, err := a.storage.GetAPIKey(ctx, keyID)
	if err == storage.ErrNotFound {
		return nil, errors.UnauthorizedError("unknown api key")
	}
	if err != nil {
		return nil, errors.InternalError("api key lookup failed", err)
	}

	derived := pbkdf2.Key([]byte(secret), record.Salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	if !hmac.Equal(derived, record.Hash) {
		return nil, errors.UnauthorizedError("invalid api key")
	}

	if !record.Active {
		return nil, errors.UnauthorizedError("api key has been revoked")
	}

	principal := identity.APIKeyPrincipal{
		KeyID:       record.ID,
		TenantID:    record.TenantID,
		Permissions: identity.ParsePermissions(record.Permissions),
		Active:      record.Active,
		ExpiresAt:   record.ExpiresAt,
	}
	if principal.Expired(time.Now()) {
		return nil, errors.UnauthorizedError("api key has expired")
	}

	return principal, nil
}

func (a *Authenticator) authenticateSession(token string) (identity.Principal, error) {
	claims, err := a.extractor.ParseSessionToken(token)
	if err != nil {
		return nil, errors.UnauthorizedError("invalid or expired session token")
	}
	if claims.Subject == "" {
		return nil, errors.UnauthorizedError("session token has no subject")
	}

	return identity.SessionPrincipal{
		UserID:      claims.Subject,
		TenantClaim: claims.TenantID,
	}, nil
}

// IssueSessionToken mints a signed session token for a user, optionally
// carrying a tenant claim.
func (a *Authenticator) IssueSessionToken(userID, tenantID string) (string, error) {
	now := time.Now()
	claims := &identity.SessionClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.sessionTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
	if err != nil {
		return "", errors.InternalError("failed to sign session token", err)
	}
	return token, nil
}

// MintAPIKey creates an API key record bound to tenantID (nil for a
// system-scope record) and returns the record together with the plaintext
// credential. The plaintext is shown once and never stored.
func MintAPIKey(tenantID *string, name string, permissions []string, expiresAt *time.Time) (*storage.APIKey, string, error) {
	keyID := strings.ReplaceAll(uuid.NewString(), "-", "")[:20]

	secretBytes := make([]byte, apiKeySecretLen)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, "", errors.InternalError("failed to generate api key secret", err)
	}
	secret := hex.EncodeToString(secretBytes)

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, "", errors.InternalError("failed to generate api key salt", err)
	}

	record := &storage.APIKey{
		ID:          keyID,
		TenantID:    tenantID,
		Name:        name,
		Salt:        salt,
		Hash:        pbkdf2.Key([]byte(secret), salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New),
		Permissions: permissions,
		Active:      true,
		ExpiresAt:   expiresAt,
	}

	plaintext := fmt.Sprintf("%s_%s_%s", apiKeyPrefix, keyID, secret)
	return record, plaintext, nil
}

func splitAPIKey(token string) (keyID, secret string, err error) {
	parts := strings.SplitN(token, "_", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return "", "", errors.UnauthorizedError("malformed api key")
	}
	return parts[1], parts[2], nil
}
