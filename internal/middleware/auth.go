package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fruittrace/internal/model"
	"fruittrace/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	ctxUserID   = "userID"
	ctxUserRole = "userRole"
	ctxActor    = "actor"

	accessTokenCookie = "access_token"

	// RefreshTokenCookie carries the refresh token issued at login.
	RefreshTokenCookie = "refresh_token"
)

// Claims carried by access tokens
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 access token for the actor.
func IssueToken(actor model.Actor, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken validates a token and returns the actor it names. It fails closed
// on a bad signature, expiry, a malformed subject or an unknown role.
func ParseToken(tokenString string, secret []byte) (model.Actor, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return model.Actor{}, err
	}
	if !token.Valid {
		return model.Actor{}, errors.New("token is not valid")
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.Actor{}, fmt.Errorf("invalid subject: %w", err)
	}
	role := model.Role(claims.Role)
	if !role.Valid() {
		return model.Actor{}, fmt.Errorf("unknown role %q", claims.Role)
	}
	return model.Actor{ID: id, Role: role}, nil
}

// SetTokenCookies stores the access and refresh tokens as HttpOnly cookies
func SetTokenCookies(c *gin.Context, accessToken, refreshToken string, accessTTL, refreshTTL time.Duration, secure bool) {
	c.SetSameSite(sameSite(secure))
	c.SetCookie(accessTokenCookie, accessToken, int(accessTTL.Seconds()), "/", "", secure, true)
	c.SetCookie(RefreshTokenCookie, refreshToken, int(refreshTTL.Seconds()), "/", "", secure, true)
}

// ClearTokenCookies expires both auth cookies
func ClearTokenCookies(c *gin.Context, secure bool) {
	c.SetSameSite(sameSite(secure))
	c.SetCookie(accessTokenCookie, "", -1, "/", "", secure, true)
	c.SetCookie(RefreshTokenCookie, "", -1, "/", "", secure, true)
}

// Cross-origin deployments need SameSite=None, which browsers only accept with Secure.
func sameSite(secure bool) http.SameSite {
	if secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// Auth checks bearer tokens against a signing secret.
type Auth struct {
	secret []byte
}

func NewAuth(secret []byte) *Auth {
	return &Auth{secret: secret}
}

// Secret returns the signing key.
func (a *Auth) Secret() []byte {
	return a.secret
}

// RequireRole validates the JWT token and checks if the user's role exists in the allowedRoles list
func (a *Auth) RequireRole(allowedRoles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Try cookie first, fallback to Authorization header
		tokenString, cookieErr := c.Cookie(accessTokenCookie)
		if cookieErr != nil || tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid authorization format. Expected 'Bearer <token>'"))
				return
			}
			tokenString = parts[1]
		}

		actor, err := ParseToken(tokenString, a.secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token: "+err.Error()))
			return
		}

		roleAllowed := false
		for _, role := range allowedRoles {
			if actor.Role == role {
				roleAllowed = true
				break
			}
		}
		if !roleAllowed {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
			return
		}

		c.Set(ctxUserID, actor.ID.String())
		c.Set(ctxUserRole, string(actor.Role))
		c.Set(ctxActor, actor)

		c.Next()
	}
}

// ActorFrom returns the actor stored by RequireRole.
func ActorFrom(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(ctxActor)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}
