package api

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const (
	defaultJWKSCacheTTL = 15 * time.Minute
	envAuth0TestMode    = "AUTH0_TEST_MODE"
	envTestJWTSecret    = "TEST_JWT_SECRET"
	envLocalAuthMode    = "LOCAL_AUTH_MODE"
	envLocalAuthSecret  = "LOCAL_AUTH_SHARED_SECRET"
	envJWKSCacheTTL     = "JWKS_CACHE_TTL"
)

var (
	errMissingSubject = errors.New("missing sub")
	errBadAudience    = errors.New("invalid audience")
	errBadIssuer      = errors.New("invalid issuer")
)

// Auth validates bearer JWTs. Production tokens are RS256 and verified
// against the Auth0 JWKS; local and test deployments use an HS256 shared
// secret instead.
type Auth struct {
	jwks     *keyfunc.JWKS
	audience string
	issuer   string
	secret   []byte

	parser *jwt.Parser
	keys   sync.Map
	keyTTL time.Duration
	now    func() time.Time
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth configures an Auth from the JWKS and the process environment.
// jwks may be nil when a shared secret mode is enabled.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string) (*Auth, error) {
	secret, err := sharedSecretFromEnv()
	if err != nil {
		return nil, err
	}
	ttl, err := jwksCacheTTLFromEnv()
	if err != nil {
		return nil, err
	}
	return newAuth(jwks, audience, issuer, secret, ttl), nil
}

func newAuth(jwks *keyfunc.JWKS, audience, issuer string, secret []byte, ttl time.Duration) *Auth {
	method := "RS256"
	if secret != nil {
		method = "HS256"
	}
	return &Auth{
		jwks:     jwks,
		audience: audience,
		issuer:   issuer,
		secret:   secret,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{method})),
		keyTTL:   ttl,
		now:      time.Now,
	}
}

// SharedSecretMode reports whether tokens are verified with a shared secret.
func SharedSecretMode() bool {
	return os.Getenv(envLocalAuthMode) != "" || os.Getenv(envAuth0TestMode) == "1"
}

func sharedSecretFromEnv() ([]byte, error) {
	if mode := strings.ToLower(os.Getenv(envLocalAuthMode)); mode != "" {
		if mode != "hs256" {
			return nil, fmt.Errorf("unsupported %s value %q", envLocalAuthMode, mode)
		}
		secret := os.Getenv(envLocalAuthSecret)
		if secret == "" {
			return nil, fmt.Errorf("%s must be set when %s=hs256", envLocalAuthSecret, envLocalAuthMode)
		}
		return []byte(secret), nil
	}
	if os.Getenv(envAuth0TestMode) == "1" {
		secret := os.Getenv(envTestJWTSecret)
		if secret == "" {
			return nil, fmt.Errorf("%s must be set when %s=1", envTestJWTSecret, envAuth0TestMode)
		}
		return []byte(secret), nil
	}
	return nil, nil
}

func jwksCacheTTLFromEnv() (time.Duration, error) {
	raw := os.Getenv(envJWKSCacheTTL)
	if raw == "" {
		return defaultJWKSCacheTTL, nil
	}
	ttl, err := time.ParseDuration(raw)
	if err != nil || ttl <= 0 {
		return 0, fmt.Errorf("invalid %s %q", envJWKSCacheTTL, raw)
	}
	return ttl, nil
}

// UserIDFromAuthHeader returns the token subject of an "Authorization:
// Bearer" header value.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	token, err := bearerToken(h)
	if err != nil {
		return "", err
	}
	return a.UserIDFromToken(token)
}

// UserIDFromToken validates a raw JWT and returns its subject.
func (a *Auth) UserIDFromToken(token string) (string, error) {
	var claims jwt.RegisteredClaims
	if _, err := a.parser.ParseWithClaims(token, &claims, a.keyFor); err != nil {
		return "", err
	}
	if a.audience != "" && !claims.VerifyAudience(a.audience, true) {
		return "", errBadAudience
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, true) {
		return "", errBadIssuer
	}
	if claims.Subject == "" {
		return "", errMissingSubject
	}
	return claims.Subject, nil
}

func (a *Auth) keyFor(token *jwt.Token) (any, error) {
	if a.secret != nil {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.secret, nil
	}
	if a.jwks == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	cache := kid != "" && a.keyTTL > 0
	if cache {
		if v, ok := a.keys.Load(kid); ok {
			entry := v.(cachedKey)
			if a.now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keys.Delete(kid)
		}
	}
	key, err := a.jwks.Keyfunc(token)
	if err != nil {
		return nil, err
	}
	if cache {
		a.keys.Store(kid, cachedKey{key: key, expiresAt: a.now().Add(a.keyTTL)})
	}
	return key, nil
}
