package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/loomline/loomline/internal/tenancy"
)

// secretPlaceholder is the well-known development value that must never make
// it to a running deployment.
const secretPlaceholder = "dev-secret-change-me"

const minSecretLength = 32

// DefaultTokenTTL applies when the caller does not pass an explicit lifetime.
const DefaultTokenTTL = 12 * time.Hour

var (
	// ErrSecretMissing indicates no signing secret was configured.
	ErrSecretMissing = errors.New("auth: signing secret not configured")
	// ErrSecretPlaceholder indicates the placeholder secret was configured.
	ErrSecretPlaceholder = errors.New("auth: signing secret must not use the placeholder value")
	// ErrSecretTooShort indicates a secret below the minimum length.
	ErrSecretTooShort = errors.New("auth: signing secret must be at least 32 bytes")
)

// Subject is the claim set carried by a session token.
type Subject struct {
	UserID      int64
	Username    string
	RoleID      string
	RoleName    string
	OpenID      string
	PermRange   string
	TenantID    *int64
	TenantOwner bool
	SuperAdmin  bool
	TeamID      int64
	PwdVersion  int64
}

type tokenClaims struct {
	UID         int64  `json:"uid"`
	Uname       string `json:"uname"`
	RoleID      string `json:"roleId,omitempty"`
	RoleName    string `json:"roleName,omitempty"`
	OpenID      string `json:"openid,omitempty"`
	PermRange   string `json:"permRange,omitempty"`
	TenantID    *int64 `json:"tenantId,omitempty"`
	TenantOwner bool   `json:"tenantOwner,omitempty"`
	SuperAdmin  bool   `json:"superAdmin,omitempty"`
	TeamID      int64  `json:"teamId,omitempty"`
	PwdVersion  int64  `json:"pwdVer,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies HMAC-signed session tokens. Construction
// fails fast on a weak or placeholder secret so a misconfigured process
// refuses to boot instead of running open.
type TokenCodec struct {
	secret     []byte
	defaultTTL time.Duration
}

// NewTokenCodec validates the secret policy and returns a codec.
func NewTokenCodec(secret string, defaultTTL time.Duration) (*TokenCodec, error) {
	s := strings.TrimSpace(secret)
	if s == "" {
		return nil, ErrSecretMissing
	}
	if s == secretPlaceholder {
		return nil, ErrSecretPlaceholder
	}
	if len(s) < minSecretLength {
		return nil, ErrSecretTooShort
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTokenTTL
	}
	return &TokenCodec{secret: []byte(s), defaultTTL: defaultTTL}, nil
}

// Issue signs a compact claim set for the subject. A non-positive ttl falls
// back to the codec default.
func (c *TokenCodec) Issue(sub Subject, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := time.Now()
	claims := tokenClaims{
		UID:         sub.UserID,
		Uname:       sub.Username,
		RoleID:      sub.RoleID,
		RoleName:    sub.RoleName,
		OpenID:      sub.OpenID,
		PermRange:   sub.PermRange,
		TenantID:    sub.TenantID,
		TenantOwner: sub.TenantOwner,
		SuperAdmin:  sub.SuperAdmin,
		TeamID:      sub.TeamID,
		PwdVersion:  sub.PwdVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify parses and validates a token, returning nil for anything malformed,
// expired or carrying a bad signature. It never propagates parse errors to
// the caller; an invalid token is simply an anonymous request.
func (c *TokenCodec) Verify(token string) *Subject {
	t := strings.TrimSpace(token)
	if t == "" {
		return nil
	}

	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(t, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil
	}

	sub := &Subject{
		UserID:      claims.UID,
		Username:    claims.Uname,
		RoleID:      claims.RoleID,
		RoleName:    claims.RoleName,
		OpenID:      claims.OpenID,
		PermRange:   claims.PermRange,
		TenantID:    claims.TenantID,
		TenantOwner: claims.TenantOwner,
		SuperAdmin:  claims.SuperAdmin,
		TeamID:      claims.TeamID,
		PwdVersion:  claims.PwdVersion,
	}
	if sub.PermRange == "" {
		// Tokens issued before the permission-range claim existed default to
		// the narrowest range unless the subject clearly administers the
		// tenant; widening by default would be an escalation path.
		if sub.TenantOwner || tenancy.IsAdminRole(sub.RoleName) {
			sub.PermRange = tenancy.RangeAll
		} else {
			sub.PermRange = tenancy.RangeOwn
		}
	}
	return sub
}
