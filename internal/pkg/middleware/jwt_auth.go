package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ctxUserID        = "user_id"
	ctxEmail         = "email"
	ctxAuthenticated = "authenticated"
)

// JWTConfig holds JWT authentication configuration
type JWTConfig struct {
	SecretKey       string
	TokenExpiration time.Duration
	Logger          *zap.Logger
	Optional        bool // If true, missing/invalid tokens won't block the request
}

// Claims represents the JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthMiddleware resolves the caller from a Bearer token. Identity is only
// ever taken from a verified token, never from request bodies or query params.
func JWTAuthMiddleware(config JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		anonymous := func(reason string, err error) {
			if config.Optional {
				config.Logger.Debug("Proceeding anonymously",
					zap.String("path", c.Request.URL.Path),
					zap.String("reason", reason),
					zap.Error(err))
				c.Set(ctxAuthenticated, false)
				c.Next()
				return
			}
			config.Logger.Warn("Rejected request", zap.String("path", c.Request.URL.Path), zap.String("reason", reason))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": reason})
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			anonymous("authorization header required", nil)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			anonymous("invalid authorization header format", nil)
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(config.SecretKey), nil
		})
		if err != nil || !token.Valid {
			anonymous("invalid or expired token", err)
			return
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			anonymous("invalid token subject", err)
			return
		}

		c.Set(ctxUserID, userID)
		c.Set(ctxEmail, claims.Email)
		c.Set(ctxAuthenticated, true)
		c.Next()
	}
}

// GenerateToken signs an HS256 token for userID.
func GenerateToken(config JWTConfig, userID uuid.UUID, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID.String(),
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(config.TokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

// RequireAuthMiddleware ensures the user is authenticated (not anonymous)
func RequireAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CallerID(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// CallerID returns the authenticated caller, if any.
func CallerID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// OptionalCallerID is CallerID as a pointer, nil for anonymous callers.
func OptionalCallerID(c *gin.Context) *uuid.UUID {
	if id, ok := CallerID(c); ok {
		return &id
	}
	return nil
}
