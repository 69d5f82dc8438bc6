package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

type authContextKey struct{}

// Claims is the JWT payload issued at login. Role and organization travel in
// the token so handlers never re-read the user row on every request.
type Claims struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Role           string `json:"role"`
	jwt.RegisteredClaims
}

func IssueToken(secret []byte, user models.User, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UserID:         user.UserID,
		OrganizationID: user.OrganizationID,
		Role:           user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseToken validates a bearer token and returns its claims. Exported so the
// realtime endpoint can authenticate subscribers outside the HTTP middleware.
func ParseToken(secret []byte, tokenString string) (Claims, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Claims{}, err
	}
	if !token.Valid {
		return Claims{}, jwt.ErrTokenUnverifiable
	}
	return claims, nil
}

func AuthMiddleware(secret []byte, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token != "" {
			claims, err := ParseToken(secret, token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), authContextKey{}, claims)))
			return
		}
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing token")
	})
}

func claimsFromContext(ctx context.Context) (Claims, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return Claims{}, false
	}
	claims, ok := value.(Claims)
	return claims, ok
}

// requireAuth rejects the request unless a valid token was presented.
func requireAuth(w http.ResponseWriter, r *http.Request) (Claims, bool) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing token")
		return Claims{}, false
	}
	return claims, true
}

// requireRole gates a handler to the listed roles. super_admin passes every
// gate.
func requireRole(w http.ResponseWriter, r *http.Request, roles ...string) (Claims, bool) {
	claims, ok := requireAuth(w, r)
	if !ok {
		return Claims{}, false
	}
	if claims.Role == models.RoleSuperAdmin {
		return claims, true
	}
	for _, role := range roles {
		if claims.Role == role {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "access_denied", "insufficient role")
	return Claims{}, false
}

// resolveOrganization picks the organization a request acts on. Regular users
// are pinned to their own; super_admin may target any via the organization_id
// query parameter.
func resolveOrganization(r *http.Request, claims Claims) string {
	if claims.Role == models.RoleSuperAdmin {
		if override := strings.TrimSpace(r.URL.Query().Get("organization_id")); override != "" {
			return override
		}
	}
	return claims.OrganizationID
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics", "/api/auth/login", "/api/organizations":
		return true
	case "/api/tokens":
		return r.Method == http.MethodPost
	case "/api/queue/status":
		return r.Method == http.MethodGet
	default:
		return r.Method == http.MethodOptions
	}
}
