package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/legb78/mail-classification-agent/pkg/apperr"
)

// JWTAuth validates HS256 bearer tokens issued for the admin API. An
// empty secret disables authentication, which is only acceptable in
// development.
func JWTAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Next()
		}

		header := c.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return apperr.New(apperr.CodeUnauthorized, "missing bearer token", apperr.KindPermanent)
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return apperr.Wrap(err, apperr.CodeUnauthorized, "invalid token", apperr.KindPermanent)
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if sub, err := claims.GetSubject(); err == nil {
				c.Locals("subject", sub)
			}
		}
		return c.Next()
	}
}
