package serverutils

import (
	"errors"
	"fmt"
	"time"

	"silo-be/internal/constant"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// ErrEmptySecret guards against signing or verifying with a zero-length HMAC key.
var ErrEmptySecret = errors.New("jwt secret is empty")

type SessionClaims struct {
	SessionID string
	ClientID  string
}

// IssueSessionToken signs an anonymous session token.
func IssueSessionToken(secret string, claims SessionClaims, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"session_id": claims.SessionID,
		"client_id":  claims.ClientID,
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

// ParseSessionToken checks the signature and expiry and returns the session claims.
func ParseSessionToken(secret, tokenStr string) (SessionClaims, error) {
	if secret == "" {
		return SessionClaims{}, ErrEmptySecret
	}
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return SessionClaims{}, err
	}
	if !token.Valid {
		return SessionClaims{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return SessionClaims{}, errors.New("invalid claims")
	}
	sessionID, _ := claims["session_id"].(string)
	clientID, _ := claims["client_id"].(string)
	if sessionID == "" || clientID == "" {
		return SessionClaims{}, errors.New("token missing session_id or client_id")
	}
	return SessionClaims{SessionID: sessionID, ClientID: clientID}, nil
}

// TokenFromRequest prefers the Authorization header and falls back to the token
// query parameter, which browsers need for WebSocket handshakes.
func TokenFromRequest(ctx *fiber.Ctx) string {
	authHeader := ctx.Get("Authorization")
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		return authHeader[7:]
	}
	return ctx.Query("token")
}

func NewJwtMiddleware(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		tokenStr := TokenFromRequest(ctx)
		if tokenStr == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Missing token"))
		}

		claims, err := ParseSessionToken(secret, tokenStr)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
		}

		ctx.Locals(constant.LocalSessionID, claims.SessionID)
		ctx.Locals(constant.LocalClientID, claims.ClientID)
		return ctx.Next()
	}
}

func SessionID(ctx *fiber.Ctx) string {
	id, _ := ctx.Locals(constant.LocalSessionID).(string)
	return id
}

func ClientID(ctx *fiber.Ctx) string {
	id, _ := ctx.Locals(constant.LocalClientID).(string)
	return id
}
