package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"meterhub-backend/domain/entities"
	apperrors "meterhub-backend/pkg/errors"
)

const (
	testIssuer   = "https://issuer.test"
	testAudience = "meterhub-api"
)

type fakeKeySetCache struct {
	stored *entities.KeySet
	puts   int
}

func (c *fakeKeySetCache) Get(ctx context.Context) (*entities.KeySet, error) {
	if c.stored == nil {
		return nil, apperrors.NewNotFoundError("key set")
	}
	return c.stored, nil
}

func (c *fakeKeySetCache) Put(ctx context.Context, ks *entities.KeySet) error {
	c.stored = ks
	c.puts++
	return nil
}

func jwksJSON(t *testing.T, kid string, pub *rsa.PublicKey) []byte {
	t.Helper()
	doc := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	return raw
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func standardClaims(sub string) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":   testIssuer,
		"aud":   testAudience,
		"sub":   sub,
		"email": "a@b.io",
		"admin": true,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
}

func TestVerifyFromCachedKeySet(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	cache := &fakeKeySetCache{stored: &entities.KeySet{
		Blob:     base64.StdEncoding.EncodeToString(jwksJSON(t, "k1", &key.PublicKey)),
		CachedAt: time.Now().UnixMilli(),
	}}
	v := NewVerifier("http://unreachable.invalid", testIssuer, testAudience, cache, zap.NewNop())

	claims, err := v.Verify(context.Background(), signToken(t, key, "k1", standardClaims("sub-1")))

	require.NoError(t, err)
	assert.Equal(t, "sub-1", claims.Subject)
	assert.Equal(t, "a@b.io", claims.Email)
	assert.True(t, claims.IsAdmin)
}

func TestVerifyFetchesOnCacheMiss(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(jwksJSON(t, "k1", &key.PublicKey))
	}))
	defer srv.Close()

	cache := &fakeKeySetCache{}
	v := NewVerifier(srv.URL, testIssuer, testAudience, cache, zap.NewNop())

	claims, err := v.Verify(context.Background(), signToken(t, key, "k1", standardClaims("sub-1")))

	require.NoError(t, err)
	assert.Equal(t, "sub-1", claims.Subject)
	assert.Equal(t, 1, cache.puts, "fetched key set must be cached")
}

func TestVerifyRefreshesAfterRotation(t *testing.T) {
	oldKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	newKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(jwksJSON(t, "k2", &newKey.PublicKey))
	}))
	defer srv.Close()

	// Cache holds the rotated-out key.
	cache := &fakeKeySetCache{stored: &entities.KeySet{
		Blob:     base64.StdEncoding.EncodeToString(jwksJSON(t, "k1", &oldKey.PublicKey)),
		CachedAt: time.Now().UnixMilli(),
	}}
	v := NewVerifier(srv.URL, testIssuer, testAudience, cache, zap.NewNop())

	claims, err := v.Verify(context.Background(), signToken(t, newKey, "k2", standardClaims("sub-2")))

	require.NoError(t, err)
	assert.Equal(t, "sub-2", claims.Subject)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	cache := &fakeKeySetCache{stored: &entities.KeySet{
		Blob: base64.StdEncoding.EncodeToString(jwksJSON(t, "k1", &key.PublicKey)),
	}}
	v := NewVerifier("http://unreachable.invalid", testIssuer, testAudience, cache, zap.NewNop())

	claims := standardClaims("sub-1")
	claims["iss"] = "https://evil.test"
	_, err = v.Verify(context.Background(), signToken(t, key, "k1", claims))

	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	cache := &fakeKeySetCache{stored: &entities.KeySet{
		Blob: base64.StdEncoding.EncodeToString(jwksJSON(t, "k1", &key.PublicKey)),
	}}
	v := NewVerifier("http://unreachable.invalid", testIssuer, testAudience, cache, zap.NewNop())

	claims := standardClaims("sub-1")
	claims["exp"] = time.Now().Add(-time.Hour).Unix()
	_, err = v.Verify(context.Background(), signToken(t, key, "k1", claims))

	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestParseKeySetRejectsGarbage(t *testing.T) {
	_, err := parseKeySet("not base64!!")
	assert.Error(t, err)

	_, err = parseKeySet(base64.StdEncoding.EncodeToString([]byte(`{"keys":[]}`)))
	assert.Error(t, err)
}
