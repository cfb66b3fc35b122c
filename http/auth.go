package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"ticketing/entity"
)

const sessionContextKey = "session"

// sessionMiddleware resolves the optional bearer token into an entity.Session.
// Requests without a token continue anonymously, requests with an invalid one are rejected.
func sessionMiddleware(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				c.Set(sessionContextKey, entity.Session{})
				return next(c)
			}

			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			session, err := ParseSessionToken(secret, tokenString)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid session").SetInternal(err)
			}

			c.Set(sessionContextKey, session)
			return next(c)
		}
	}
}

func requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !sessionFrom(c).Authenticated() {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		return next(c)
	}
}

func sessionFrom(c echo.Context) entity.Session {
	session, _ := c.Get(sessionContextKey).(entity.Session)
	return session
}

func ParseSessionToken(secret []byte, tokenString string) (entity.Session, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return entity.Session{}, err
	}
	if !token.Valid {
		return entity.Session{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return entity.Session{}, fmt.Errorf("token has no subject")
	}

	return entity.Session{UserID: claims.Subject}, nil
}

// SignSessionToken issues a session token for userID, used by tooling and tests.
func SignSessionToken(secret []byte, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})

	return token.SignedString(secret)
}
