package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	claimSubject     = "sub"
	claimType        = "typ"
	serviceTokenType = "service"

	// HeaderAPIKey carries the shared service key.
	HeaderAPIKey = "X-API-Key"
	// HeaderTelegramSecret carries the webhook secret Telegram was registered with.
	HeaderTelegramSecret = "X-Telegram-Bot-Api-Secret-Token"

	contextKeyToken   = "user"
	contextKeyService = "service"
)

// ServiceConfig configures ServiceMiddleware. With both fields empty the middleware is a no-op.
type ServiceConfig struct {
	APIKey    string
	JWTSecret string
	Skipper   middleware.Skipper
}

// ServiceMiddleware authenticates agents-service callers by X-API-Key or by an HS256 bearer token.
func ServiceMiddleware(cfg ServiceConfig) echo.MiddlewareFunc {
	apiKey := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.JWTSecret)
	skipper := cfg.Skipper
	if skipper == nil {
		skipper = middleware.DefaultSkipper
	}
	unauthorized := func(err error, c echo.Context) error {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		viaKey := middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:" + HeaderAPIKey,
			Validator: func(key string, c echo.Context) (bool, error) {
				if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
					return false, nil
				}
				c.Set(contextKeyService, "api-key")
				return true, nil
			},
			ErrorHandler: unauthorized,
		})(next)
		viaToken := JWTMiddleware(secret, nil)(func(c echo.Context) error {
			subject, err := ServiceFromContext(c)
			if err != nil {
				return err
			}
			c.Set(contextKeyService, subject)
			return next(c)
		})

		return func(c echo.Context) error {
			if skipper(c) || (apiKey == "" && secret == "") {
				return next(c)
			}
			header := c.Request().Header
			if apiKey != "" && header.Get(HeaderAPIKey) != "" {
				return viaKey(c)
			}
			if secret != "" && strings.HasPrefix(header.Get(echo.HeaderAuthorization), "Bearer ") {
				return viaToken(c)
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "missing credentials")
		}
	}
}

// JWTMiddleware returns a JWT auth middleware configured for HS256 tokens.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: "HS256",
		TokenLookup:   "header:Authorization:Bearer ",
		ContextKey:    contextKeyToken,
		Skipper:       skipper,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		},
	})
}

// ServiceFromContext returns the authenticated caller: "api-key" or the token subject.
func ServiceFromContext(c echo.Context) (string, error) {
	if name, ok := c.Get(contextKeyService).(string); ok && name != "" {
		return name, nil
	}
	token, ok := c.Get(contextKeyToken).(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	if claimString(claims, claimType) != serviceTokenType {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid service token")
	}
	subject := claimString(claims, claimSubject)
	if subject == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "subject missing")
	}
	return subject, nil
}

// GenerateServiceToken creates a signed service JWT for the send-response API.
func GenerateServiceToken(subject, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(subject) == "" {
		return "", time.Time{}, fmt.Errorf("subject is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		claimSubject: subject,
		claimType:    serviceTokenType,
		"iat":        now.Unix(),
		"exp":        expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(strings.TrimSpace(secret)))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// WebhookSecretMiddleware rejects webhook calls whose secret header does not match.
// An empty secret disables the check.
func WebhookSecretMiddleware(secret string) echo.MiddlewareFunc {
	secret = strings.TrimSpace(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" || c.Request().Method != http.MethodPost {
				return next(c)
			}
			got := c.Request().Header.Get(HeaderTelegramSecret)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook secret")
			}
			return next(c)
		}
	}
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(raw)
	}
}
