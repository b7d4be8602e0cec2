package ipc

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

// Development identity headers, honored only when no JWT secret is configured.
const (
	HeaderUser     = "X-Spine-User"
	HeaderRole     = "X-Spine-Role"
	HeaderTenant   = "X-Spine-Tenant"
	HeaderTimezone = "X-Spine-Timezone"
)

// Claims are the JWT claims mapped onto an ActorContext. sub is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Role     string `json:"role"`
	TenantID string `json:"tenant_id"`
	Timezone string `json:"tz,omitempty"`
}

// Authenticator turns a request into an ActorContext.
type Authenticator struct {
	secret []byte
	issuer string
	clock  func() time.Time
}

// NewAuthenticator verifies HS256 bearer tokens signed with secret. An empty
// secret falls back to the X-Spine-* headers.
func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer, clock: time.Now}
}

// Actor builds the ActorContext for r. nowISO is stamped from the server clock.
func (a *Authenticator) Actor(r *http.Request) (domain.ActorContext, error) {
	var actor domain.ActorContext
	if len(a.secret) == 0 {
		actor = domain.ActorContext{
			UserID:   r.Header.Get(HeaderUser),
			Role:     domain.Role(r.Header.Get(HeaderRole)),
			TenantID: r.Header.Get(HeaderTenant),
			Timezone: r.Header.Get(HeaderTimezone),
		}
	} else {
		claims, err := a.parse(r.Header.Get("Authorization"))
		if err != nil {
			return domain.ActorContext{}, err
		}
		actor = domain.ActorContext{
			UserID:   claims.Subject,
			Role:     domain.Role(claims.Role),
			TenantID: claims.TenantID,
			Timezone: claims.Timezone,
		}
	}

	actor.Channel = domain.ChannelAPI
	actor.NowISO = a.clock().UTC().Format(time.RFC3339)
	if err := actor.Validate(); err != nil {
		return domain.ActorContext{}, err
	}
	if !knownRole(actor.Role) {
		return domain.ActorContext{}, domain.NewEngineError(domain.ErrInvalidActor.Code, fmt.Sprintf("unknown role %q", actor.Role))
	}
	return actor, nil
}

func (a *Authenticator) parse(header string) (*Claims, error) {
	tokenStr, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenStr == "" {
		return nil, domain.NewEngineError(domain.ErrInvalidActor.Code, "missing bearer token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.clock),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrInvalidActor.Code, "token validation failed", err)
	}
	if !token.Valid {
		return nil, domain.NewEngineError(domain.ErrInvalidActor.Code, "invalid token")
	}
	return claims, nil
}

// Issue signs a token for the given identity. Used by the CLI and tests.
func (a *Authenticator) Issue(userID string, role domain.Role, tenantID, timezone string, ttl time.Duration) (string, error) {
	now := a.clock()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:     string(role),
		TenantID: tenantID,
		Timezone: timezone,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func knownRole(r domain.Role) bool {
	switch r {
	case domain.RoleOwner, domain.RoleAdmin, domain.RoleManager, domain.RoleStaff, domain.RoleViewer, domain.RoleClient:
		return true
	}
	return false
}
