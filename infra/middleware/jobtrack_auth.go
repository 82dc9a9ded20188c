package middleware

import (
	"fmt"
	"strings"
	"time"

	"jobtrack_server/pkg/apperr"
	"jobtrack_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// LocalOwnerID holds the authenticated owner's uuid.UUID.
	LocalOwnerID = "owner_id"
	localClaims  = "claims"

	clockSkew = time.Minute
)

// JWTAuth validates HS256 bearer tokens. The "sub" claim is the owner id.
func JWTAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip auth for CORS preflight requests
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		tokenString := bearerToken(c.Get(fiber.HeaderAuthorization))
		if tokenString == "" {
			return apperr.Unauthorized("missing authorization")
		}

		claims, err := parseClaims(tokenString, secret)
		if err != nil {
			logger.WithError(err).Warn("[JWTAuth] token rejected: %s %s", c.Method(), c.Path())
			return apperr.InvalidToken("invalid token")
		}

		// Reject tokens issued too far in the future
		if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
			if iat.After(time.Now().Add(clockSkew)) {
				return apperr.InvalidToken("token issued in the future")
			}
		}

		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			return apperr.InvalidToken("missing owner id in token")
		}
		ownerID, err := uuid.Parse(sub)
		if err != nil {
			return apperr.InvalidToken("invalid owner id format")
		}

		c.Locals(LocalOwnerID, ownerID)
		c.Locals(localClaims, claims)
		return c.Next()
	}
}

// OwnerID returns the owner set by JWTAuth.
func OwnerID(c *fiber.Ctx) (uuid.UUID, error) {
	ownerID, ok := c.Locals(LocalOwnerID).(uuid.UUID)
	if !ok || ownerID == uuid.Nil {
		return uuid.Nil, apperr.Unauthorized("")
	}
	return ownerID, nil
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// parseClaims verifies the signature and exp. Only HMAC methods are accepted.
func parseClaims(tokenString, secret string) (jwt.MapClaims, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret not configured")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unsupported signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token not valid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims")
	}
	return claims, nil
}
