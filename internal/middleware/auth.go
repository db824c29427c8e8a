package middleware

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"

	"SmartWater.influxDB/internal/models"
	"SmartWater.influxDB/internal/utils"
)

const jwksCacheTTL = 5 * time.Minute

// Auth0Config stores the Auth0 details needed for token validation.
type Auth0Config struct {
	Issuer   string
	Audience string
	JWKSURL  string // optional, defaults to <issuer>/.well-known/jwks.json
}

// Enabled reports whether token validation is configured.
func (c Auth0Config) Enabled() bool {
	return c.Issuer != "" && c.Audience != ""
}

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// NewAuth0Middleware returns a middleware that requires an RS256 bearer token
// issued by cfg.Issuer. When cfg is not enabled requests pass through.
func NewAuth0Middleware(cfg Auth0Config) (Middleware, error) {
	if !cfg.Enabled() {
		log.Println("Auth0 not configured, command API is unauthenticated")
		return func(next http.Handler) http.Handler { return next }, nil
	}

	issuerURL, err := url.Parse(cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("invalid Auth0 issuer %q: %w", cfg.Issuer, err)
	}

	provider := jwks.NewCachingProvider(issuerURL, jwksCacheTTL)
	if cfg.JWKSURL != "" {
		jwksURL, err := url.Parse(cfg.JWKSURL)
		if err != nil {
			return nil, fmt.Errorf("invalid Auth0 JWKS URL %q: %w", cfg.JWKSURL, err)
		}
		provider = jwks.NewCachingProvider(issuerURL, jwksCacheTTL, jwks.WithCustomJWKSURI(jwksURL))
	}

	return newJWTMiddleware(provider.KeyFunc, cfg)
}

func newJWTMiddleware(keyFunc func(context.Context) (interface{}, error), cfg Auth0Config) (Middleware, error) {
	v, err := validator.New(
		keyFunc,
		validator.RS256,
		cfg.Issuer,
		[]string{cfg.Audience},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set up JWT validator: %w", err)
	}

	m := jwtmiddleware.New(v.ValidateToken, jwtmiddleware.WithErrorHandler(unauthorized))
	return m.CheckJWT, nil
}

func unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	log.Printf("JWT authentication failed for %s %s: %v", r.Method, r.URL.Path, err)
	apiErr := models.NewAPIError(models.ErrorCodeUnauthorized, "Invalid or missing token", http.StatusUnauthorized)
	utils.RespondWithError(w, apiErr)
}
