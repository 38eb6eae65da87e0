package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/skillsphere/meetings/internal/domain"
)

const identityKey = "identity"

var ErrUnauthenticated = errors.New("unauthenticated")

// Claims is what the account service puts in a bearer token.
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Authenticator turns a request into a verified identity. Without a secret it
// runs in development mode and trusts the X-User-ID and X-User-Name headers
// (or user_id and name query parameters for browsers opening a websocket).
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id, err := a.Identify(ctx.Request)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "unauthenticated"})
			return
		}
		ctx.Set(identityKey, id)
		ctx.Next()
	}
}

func (a *Authenticator) Identify(r *http.Request) (domain.Identity, error) {
	if len(a.secret) == 0 {
		return identityFromHeaders(r)
	}

	token := bearerToken(r)
	if token == "" {
		return domain.Identity{}, fmt.Errorf("%w: token missing", ErrUnauthenticated)
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !parsed.Valid {
		return domain.Identity{}, fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}
	if claims.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return domain.Identity{UserID: claims.Subject, DisplayName: name}, nil
}

// IssueToken signs a token the Authenticator accepts.
func IssueToken(secret string, id domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name: id.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
	}
	return r.URL.Query().Get("token")
}

func identityFromHeaders(r *http.Request) (domain.Identity, error) {
	userID := r.Header.Get("X-User-ID")
	name := r.Header.Get("X-User-Name")
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}
	if name == "" {
		name = r.URL.Query().Get("name")
	}
	if userID == "" {
		return domain.Identity{}, fmt.Errorf("%w: user id missing", ErrUnauthenticated)
	}
	if name == "" {
		name = userID
	}
	return domain.Identity{UserID: userID, DisplayName: name}, nil
}

func identityFrom(ctx *gin.Context) domain.Identity {
	if v, ok := ctx.Get(identityKey); ok {
		if id, ok := v.(domain.Identity); ok {
			return id
		}
	}
	return domain.Identity{}
}
