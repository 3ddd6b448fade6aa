package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quocanhngo/talkcore/pkg/auth"
	"github.com/redis/go-redis/v9"
)

const (
	ctxUserID   = "user_id"
	ctxUserName = "user_name"
)

// RevocationList reports tokens the identity system has revoked (logout)
type RevocationList interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// RedisRevocationList reads the identity system's "blacklist:<token>" keys
type RedisRevocationList struct {
	rdb *redis.Client
}

func NewRedisRevocationList(rdb *redis.Client) *RedisRevocationList {
	return &RedisRevocationList{rdb: rdb}
}

func (r *RedisRevocationList) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := r.rdb.Exists(ctx, "blacklist:"+token).Result()
	return n > 0, err
}

// AuthMiddleware validates bearer tokens and injects the caller into the context.
// A nil revocation list skips the revocation check.
func AuthMiddleware(jwtManager *auth.JWTManager, revoked RevocationList) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format. Use: Bearer <token>"})
			return
		}

		claims, ok := Authenticate(c, jwtManager, revoked, parts[1])
		if !ok {
			return
		}
		SetUser(c, claims.UserID, claims.Name)
		c.Next()
	}
}

// Authenticate checks token and aborts the request when it is not acceptable.
// Failing to reach the revocation list fails closed.
func Authenticate(c *gin.Context, jwtManager *auth.JWTManager, revoked RevocationList, token string) (*auth.Claims, bool) {
	if revoked != nil {
		isRevoked, err := revoked.IsRevoked(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Auth server error"})
			return nil, false
		}
		if isRevoked {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token has been revoked"})
			return nil, false
		}
	}

	claims, err := jwtManager.ValidateToken(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return nil, false
	}
	return claims, true
}

// SetUser stores the authenticated caller for downstream handlers
func SetUser(c *gin.Context, id uuid.UUID, name string) {
	c.Set(ctxUserID, id)
	c.Set(ctxUserName, name)
}

// UserID returns the authenticated caller
func UserID(c *gin.Context) uuid.UUID {
	id, _ := c.Get(ctxUserID)
	uid, _ := id.(uuid.UUID)
	return uid
}

// UserName returns the caller's display name from the token
func UserName(c *gin.Context) string {
	return c.GetString(ctxUserName)
}
