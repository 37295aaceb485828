package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// DefaultRefreshInterval is how often the JWKS is re-fetched.
const DefaultRefreshInterval = 15 * time.Minute

// JWTValidatorConfig configures a JWTValidator.
type JWTValidatorConfig struct {
	JWKSURL         string
	Issuer          string
	Audience        string
	RefreshInterval time.Duration
}

// JWTValidator validates JWT tokens from external auth providers.
// It fetches and caches the provider's JWKS, refreshing it in the
// background to follow key rotation.
type JWTValidator struct {
	jwksURL  string
	cache    *jwk.Cache
	cancel   context.CancelFunc
	issuer   string
	audience string
}

// NewJWTValidator registers the JWKS URL and fetches it once so that
// misconfiguration fails at startup.
func NewJWTValidator(cfg JWTValidatorConfig) (*JWTValidator, error) {
	if cfg.JWKSURL == "" {
		return nil, fmt.Errorf("jwks_url is required")
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	cache := jwk.NewCache(ctx)

	if err := cache.Register(cfg.JWKSURL, jwk.WithMinRefreshInterval(cfg.RefreshInterval)); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}

	fetchCtx, fetchCancel := context.WithTimeout(ctx, 10*time.Second)
	defer fetchCancel()
	if _, err := cache.Refresh(fetchCtx, cfg.JWKSURL); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", cfg.JWKSURL, err)
	}

	return &JWTValidator{
		jwksURL:  cfg.JWKSURL,
		cache:    cache,
		cancel:   cancel,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
	}, nil
}

// ValidateToken verifies the signature, expiry, issuer and audience of a
// token and extracts its claims.
func (v *JWTValidator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &Claims{
		Subject: token.Subject(),
		Extra:   make(map[string]any),
	}

	for key, value := range token.PrivateClaims() {
		switch key {
		case "role", "roles":
			claims.addRoles(value)
		default:
			claims.Extra[key] = value
		}
	}

	return claims, nil
}

// Close stops the background JWKS refresh.
func (v *JWTValidator) Close() {
	if v.cancel != nil {
		v.cancel()
	}
}
