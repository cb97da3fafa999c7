package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// AuthorizationHeader is the header key for authorization.
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer tokens.
	BearerPrefix = "Bearer "
	// ActorIDKey is the context key for the authenticated staff member.
	ActorIDKey = "actor_id"
	// ClinicIDKey is the context key for the tenant clinic.
	ClinicIDKey = "clinic_id"
)

// Claims holds the token claims the engine cares about.
type Claims struct {
	ActorID  uuid.UUID
	ClinicID uuid.UUID
	Role     string
}

// TokenValidator validates HMAC-signed JWT bearer tokens.
type TokenValidator struct {
	secret []byte
}

// NewTokenValidator creates a token validator with the given signing secret.
func NewTokenValidator(secret string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret)}
}

// ValidateToken parses and validates a token, returning its claims.
func (v *TokenValidator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	sub, err := mapClaims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("missing subject: %w", err)
	}
	actorID, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("parse subject: %w", err)
	}

	clinicRaw, _ := mapClaims["clinic_id"].(string)
	clinicID, err := uuid.Parse(clinicRaw)
	if err != nil {
		return nil, fmt.Errorf("parse clinic_id: %w", err)
	}

	role, _ := mapClaims["role"].(string)

	return &Claims{
		ActorID:  actorID,
		ClinicID: clinicID,
		Role:     role,
	}, nil
}

// RequireAuth returns a middleware that requires a valid JWT token.
// On success it sets actor_id and clinic_id in the request context.
func RequireAuth(validator *TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Authorization header required",
				},
			})
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "INVALID_TOKEN",
					"message": "Invalid or expired token",
				},
			})
			return
		}

		c.Set(ActorIDKey, claims.ActorID)
		c.Set(ClinicIDKey, claims.ClinicID)

		c.Next()
	}
}

// extractBearerToken extracts the bearer token from the Authorization header.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader(AuthorizationHeader)
	if authHeader == "" {
		return ""
	}

	if strings.HasPrefix(authHeader, BearerPrefix) {
		return strings.TrimPrefix(authHeader, BearerPrefix)
	}

	return ""
}

// GetActorID returns the authenticated actor ID from context.
// Returns uuid.Nil if not found.
func GetActorID(c *gin.Context) uuid.UUID {
	if val, exists := c.Get(ActorIDKey); exists {
		if id, ok := val.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// GetClinicID returns the tenant clinic ID from context.
// Returns uuid.Nil if not found.
func GetClinicID(c *gin.Context) uuid.UUID {
	if val, exists := c.Get(ClinicIDKey); exists {
		if id, ok := val.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}
