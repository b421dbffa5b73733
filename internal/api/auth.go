package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tripdesk/internal/config"
	"tripdesk/internal/models"
	"tripdesk/internal/service"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid bearer token")
)

// Claims is the storefront token payload. The subject carries the user id.
type Claims struct {
	Role           models.Role `json:"role"`
	SalesPartnerID *int64      `json:"sales_partner_id,omitempty"`
	DealerID       *int64      `json:"dealer_id,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator validates HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(cfg config.APIAuthConfig) *Authenticator {
	return &Authenticator{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer}
}

// Issue signs a token for caller. Used by tooling and tests.
func (a *Authenticator) Issue(caller service.Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:           caller.Role,
		SalesPartnerID: caller.SalesPartnerID,
		DealerID:       caller.DealerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(caller.UserID, 10),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) Parse(raw string) (service.Caller, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return service.Caller{}, fmt.Errorf("%w: %w", errInvalidToken, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return service.Caller{}, fmt.Errorf("%w: bad subject", errInvalidToken)
	}
	role := claims.Role
	if role == "" {
		role = models.RoleUser
	}
	if !role.Valid() {
		return service.Caller{}, fmt.Errorf("%w: unknown role %q", errInvalidToken, role)
	}
	return service.Caller{
		UserID:         userID,
		Role:           role,
		SalesPartnerID: claims.SalesPartnerID,
		DealerID:       claims.DealerID,
	}, nil
}

// FromRequest reads the Authorization header. errMissingToken means no header was sent.
func (a *Authenticator) FromRequest(r *http.Request) (service.Caller, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return service.Caller{}, errMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return service.Caller{}, errInvalidToken
	}
	return a.Parse(strings.TrimSpace(token))
}

type callerKey struct{}

func withCaller(ctx context.Context, c service.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

func callerFrom(ctx context.Context) (service.Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(service.Caller)
	return c, ok
}

// requireAuth rejects requests without a valid token.
func (s *HTTPServer) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.auth.FromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		next(w, r.WithContext(withCaller(r.Context(), caller)))
	}
}

// optionalAuth attaches the caller when a token is sent. A bad token is still rejected.
func (s *HTTPServer) optionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.auth.FromRequest(r)
		switch {
		case errors.Is(err, errMissingToken):
			next(w, r)
		case err != nil:
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		default:
			next(w, r.WithContext(withCaller(r.Context(), caller)))
		}
	}
}
