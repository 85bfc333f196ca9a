package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/dkeye/Roulette/internal/adapters/signal"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const sessionTokenKey = "ct"

// JWTClaims is what the identity provider signs.
type JWTClaims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable anonymous id kept in
// the cookie session. The display name comes from ?name=.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(sessionTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(sessionTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(signal.ClientTokenKey, token)
		c.Set(signal.ClientNameKey, c.Query("name"))
		c.Next()
	}
}

// JWTAuth requires an HS256 token in the Authorization header or, for
// browsers opening a WebSocket, in ?token=.
func JWTAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			return
		}

		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(jwtSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid || claims.UserID == "" {
			log.Debug().Err(err).Str("module", "adapters.http").Msg("rejected token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid token",
			})
			return
		}

		name := claims.Name
		if name == "" {
			name = c.Query("name")
		}
		c.Set(signal.ClientTokenKey, claims.UserID)
		c.Set(signal.ClientNameKey, name)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.Split(h, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if t := c.Query("token"); t != "" {
		return t, true
	}
	return "", false
}

// IdentityMiddleware picks JWT when a secret is configured, anonymous
// cookies otherwise.
func IdentityMiddleware(jwtSecret string) gin.HandlerFunc {
	if jwtSecret != "" {
		return JWTAuth(jwtSecret)
	}
	return ClientTokenMiddleware()
}
