package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"meterhub-backend/application/ports"
	"meterhub-backend/domain/entities"
	apperrors "meterhub-backend/pkg/errors"
)

// Claims are the verified token claims the application consumes.
type Claims struct {
	Subject string
	Email   string
	IsAdmin bool
}

// Verifier validates RS256 bearer tokens against the issuer's JWKS. The
// key set is cached in the table and re-fetched on a cache miss or when
// verification fails, so key rotation heals itself.
type Verifier struct {
	endpoint string
	issuer   string
	audience string
	cache    ports.KeySetRepository
	http     *http.Client
	logger   *zap.Logger
}

// NewVerifier creates a token verifier.
func NewVerifier(endpoint, issuer, audience string, cache ports.KeySetRepository, logger *zap.Logger) *Verifier {
	return &Verifier{
		endpoint: endpoint,
		issuer:   issuer,
		audience: audience,
		cache:    cache,
		http:     &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// Verify decodes and validates a bearer token, returning its claims.
func (v *Verifier) Verify(ctx context.Context, token string) (Claims, error) {
	keySet, err := v.loadKeySet(ctx, false)
	if err != nil {
		return Claims{}, err
	}

	claims, err := v.parse(token, keySet)
	if err == nil {
		return claims, nil
	}

	// The cached key set may be stale after a key rotation; fetch a fresh
	// one and retry once.
	keySet, refreshErr := v.loadKeySet(ctx, true)
	if refreshErr != nil {
		return Claims{}, apperrors.NewUnauthorizedError("token verification failed")
	}
	claims, err = v.parse(token, keySet)
	if err != nil {
		return Claims{}, apperrors.NewUnauthorizedError("token verification failed")
	}
	return claims, nil
}

func (v *Verifier) parse(token string, keys map[string]*rsa.PublicKey) (Claims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		key, ok := keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return key, nil
	},
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithValidMethods([]string{"RS256"}),
	)
	if err != nil {
		return Claims{}, err
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("unexpected claims type")
	}

	subject, _ := mapClaims.GetSubject()
	if subject == "" {
		return Claims{}, fmt.Errorf("token has no subject")
	}
	email, _ := mapClaims["email"].(string)
	isAdmin, _ := mapClaims["admin"].(bool)

	return Claims{Subject: subject, Email: email, IsAdmin: isAdmin}, nil
}

// loadKeySet returns the parsed JWKS, from cache unless forced to refresh.
func (v *Verifier) loadKeySet(ctx context.Context, refresh bool) (map[string]*rsa.PublicKey, error) {
	if !refresh {
		cached, err := v.cache.Get(ctx)
		if err == nil {
			keys, parseErr := parseKeySet(cached.Blob)
			if parseErr == nil {
				return keys, nil
			}
			v.logger.Warn("Cached key set unreadable, refetching", zap.Error(parseErr))
		} else if !apperrors.IsNotFound(err) {
			return nil, err
		}
	}

	blob, err := v.fetch(ctx)
	if err != nil {
		return nil, err
	}

	keys, err := parseKeySet(blob)
	if err != nil {
		return nil, apperrors.NewExternalError("jwks endpoint", err)
	}

	if err := v.cache.Put(ctx, &entities.KeySet{
		Blob:     blob,
		CachedAt: time.Now().UnixMilli(),
	}); err != nil {
		v.logger.Warn("Failed to cache key set", zap.Error(err))
	}
	return keys, nil
}

func (v *Verifier) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, nil)
	if err != nil {
		return "", apperrors.Wrap(err, "failed to build jwks request")
	}

	resp, err := v.http.Do(req)
	if err != nil {
		return "", apperrors.NewExternalError("jwks endpoint", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.NewExternalError("jwks endpoint", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", apperrors.NewExternalError("jwks endpoint", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

type jwksDocument struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

// parseKeySet decodes the base64 JWKS blob into RSA public keys by key id.
func parseKeySet(blob string) (map[string]*rsa.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("key set blob is not base64: %w", err)
	}

	var doc jwksDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("key set blob is not a JWKS document: %w", err)
	}
	if len(doc.Keys) == 0 {
		return nil, fmt.Errorf("key set contains no keys")
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, fmt.Errorf("key %q has invalid modulus: %w", k.Kid, err)
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, fmt.Errorf("key %q has invalid exponent: %w", k.Kid, err)
		}
		keys[k.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(n),
			E: int(new(big.Int).SetBytes(e).Int64()),
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("key set contains no RSA keys")
	}
	return keys, nil
}
