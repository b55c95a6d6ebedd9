package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/canal-compras/disputa/internal/domain/identity"
)

type authContextKey string

const callerKey authContextKey = "caller"

// Claims are issued by the auth provider for every authenticated user.
type Claims struct {
	Name         string `json:"name,omitempty"`
	Role         string `json:"role"`
	CompanyID    string `json:"company_id,omitempty"`
	CompanySize  string `json:"company_size,omitempty"`
	CompanyState string `json:"company_state,omitempty"`
	AgencyID     string `json:"agency_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier checks HS256 bearer tokens.
type TokenVerifier struct {
	secret []byte
	issuer string
}

func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: strings.TrimSpace(issuer)}
}

// Verify parses token and returns the caller it identifies.
func (v *TokenVerifier) Verify(token string) (identity.Caller, error) {
	if token == "" {
		return identity.Caller{}, errors.New("missing bearer token")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return identity.Caller{}, fmt.Errorf("invalid token: %w", err)
	}
	role, err := identity.ParseRole(claims.Role)
	if err != nil {
		return identity.Caller{}, err
	}
	caller := identity.Caller{
		UserID:       claims.Subject,
		Name:         claims.Name,
		Role:         role,
		CompanyID:    claims.CompanyID,
		CompanySize:  claims.CompanySize,
		CompanyState: strings.ToUpper(claims.CompanyState),
		AgencyID:     claims.AgencyID,
	}
	if err := caller.Validate(); err != nil {
		return identity.Caller{}, err
	}
	return caller, nil
}

// Issue signs a token for caller. The auth provider issues production tokens;
// this is used by tooling and tests.
func (v *TokenVerifier) Issue(caller identity.Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:         caller.Name,
		Role:         string(caller.Role),
		CompanyID:    caller.CompanyID,
		CompanySize:  caller.CompanySize,
		CompanyState: caller.CompanyState,
		AgencyID:     caller.AgencyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func withCaller(ctx context.Context, c identity.Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

func callerFromContext(ctx context.Context) (identity.Caller, bool) {
	c, ok := ctx.Value(callerKey).(identity.Caller)
	return c, ok
}

func (s *Server) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.verifier.Verify(extractToken(r))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), caller)))
	})
}

// requireAction admits callers whose role is granted a.
func (s *Server) requireAction(a identity.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := callerFromContext(r.Context())
			if !ok {
				respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
				return
			}
			if !caller.Can(a) {
				respondError(w, http.StatusForbidden, "FORBIDDEN", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractToken reads the bearer header, or access_token for EventSource
// clients that cannot set headers.
func extractToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
