package bot

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultKeysURL publishes the keys the connector service signs with.
	DefaultKeysURL = "https://login.botframework.com/v1/.well-known/keys"
	connectorIssuer = "https://api.botframework.com"

	keyRefreshInterval = 24 * time.Hour
	minKeyRefresh      = time.Minute
	tokenLeeway        = 5 * time.Minute
)

// ErrUnauthorized wraps every inbound token failure.
var ErrUnauthorized = errors.New("bot: unauthorized")

type connectorClaims struct {
	ServiceURL string `json:"serviceurl"`
	jwt.RegisteredClaims
}

// TokenValidator checks the bearer token the connector service attaches to
// each activity: RS256, issued by the connector, addressed to this app.
type TokenValidator struct {
	appID   string
	keysURL string
	client  *http.Client
	now     func() time.Time

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func NewTokenValidator(appID, keysURL string, client *http.Client) *TokenValidator {
	if keysURL == "" {
		keysURL = DefaultKeysURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &TokenValidator{appID: appID, keysURL: keysURL, client: client, now: time.Now}
}

// Validate verifies authHeader. When the token names a service URL it must
// match the one on the activity.
func (v *TokenValidator) Validate(ctx context.Context, authHeader, serviceURL string) error {
	raw, ok := strings.CutPrefix(strings.TrimSpace(authHeader), "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(connectorIssuer),
		jwt.WithAudience(v.appID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(tokenLeeway),
		jwt.WithTimeFunc(v.now),
	)
	claims := &connectorClaims{}
	_, err := parser.ParseWithClaims(strings.TrimSpace(raw), claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.key(ctx, kid)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.ServiceURL != "" && serviceURL != "" &&
		!strings.EqualFold(strings.TrimRight(claims.ServiceURL, "/"), strings.TrimRight(serviceURL, "/")) {
		return fmt.Errorf("%w: service url mismatch", ErrUnauthorized)
	}
	return nil
}

func (v *TokenValidator) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, errors.New("token has no kid")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	stale := v.keys == nil || now.Sub(v.fetchedAt) > keyRefreshInterval
	if k, ok := v.keys[kid]; ok && !stale {
		return k, nil
	}
	// Unknown kids trigger a refresh, at most once a minute.
	if stale || now.Sub(v.fetchedAt) > minKeyRefresh {
		keys, err := v.fetchKeys(ctx)
		if err != nil {
			if k, ok := v.keys[kid]; ok {
				return k, nil
			}
			return nil, err
		}
		v.keys, v.fetchedAt = keys, now
	}
	if k, ok := v.keys[kid]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("unknown signing key %q", kid)
}

type jwkSet struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (v *TokenValidator) fetchKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.keysURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build keys request: %w", err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch signing keys: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch signing keys: HTTP %d", resp.StatusCode)
	}
	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode signing keys: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := rsaKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, errors.New("no usable signing keys")
	}
	return keys, nil
}

func rsaKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, err
	}
	exp := new(big.Int).SetBytes(eb)
	if !exp.IsInt64() || exp.Int64() < 3 {
		return nil, errors.New("bad exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(exp.Int64())}, nil
}
