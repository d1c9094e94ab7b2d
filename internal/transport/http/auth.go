package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"quiz-access-service/internal/domain"
)

const viewerKey = "viewer"

// Claims is the bearer token payload. The subject is the viewer id.
type Claims struct {
	Role   domain.Role `json:"role"`
	Groups []string    `json:"groups,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens issued by the platform.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
}

func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	return &Authenticator{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for viewer. Used by tests and the demo seed.
func (a *Authenticator) Issue(viewer domain.Viewer) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:   viewer.Role,
		Groups: viewer.Groups,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   viewer.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (a *Authenticator) Parse(raw string) (domain.Viewer, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return domain.Viewer{}, fmt.Errorf("failed to parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return domain.Viewer{}, errors.New("invalid token")
	}
	return domain.Viewer{ID: claims.Subject, Role: claims.Role, Groups: claims.Groups}, nil
}

// Middleware requires a bearer token. Websocket clients may pass it as the token query parameter.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("token")
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				jsonError(c, http.StatusUnauthorized, "invalid authorization header format")
				return
			}
			raw = parts[1]
		}
		if raw == "" {
			jsonError(c, http.StatusUnauthorized, "authorization header is required")
			return
		}
		viewer, err := a.Parse(raw)
		if err != nil {
			jsonError(c, http.StatusUnauthorized, "invalid token")
			return
		}
		c.Set(viewerKey, viewer)
		c.Next()
	}
}

func viewerFrom(c *gin.Context) domain.Viewer {
	v, _ := c.Get(viewerKey)
	viewer, _ := v.(domain.Viewer)
	return viewer
}
