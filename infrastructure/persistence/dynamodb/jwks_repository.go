package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"go.uber.org/zap"

	"meterhub-backend/application/ports"
	"meterhub-backend/domain/entities"
	"meterhub-backend/domain/keys"
	apperrors "meterhub-backend/pkg/errors"
)

// KeySetRepository caches the JWKS document as a singleton item. A cache
// miss returns NotFound and the auth layer re-fetches from the issuer.
type KeySetRepository struct {
	store  *Store
	logger *zap.Logger
}

// NewKeySetRepository creates a key-set repository.
func NewKeySetRepository(store *Store, logger *zap.Logger) ports.KeySetRepository {
	return &KeySetRepository{store: store, logger: logger}
}

type keySetItem struct {
	PK       string `dynamodbav:"pk"`
	Blob     string `dynamodbav:"blob"`
	CachedAt int64  `dynamodbav:"cachedAt"`
}

func (r *KeySetRepository) Get(ctx context.Context) (*entities.KeySet, error) {
	item, err := r.store.Get(ctx, keys.KindJWKS)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperrors.NewNotFoundError("key set")
	}

	var stored keySetItem
	if err := attributevalue.UnmarshalMap(item, &stored); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal key set")
	}
	return &entities.KeySet{Blob: stored.Blob, CachedAt: stored.CachedAt}, nil
}

func (r *KeySetRepository) Put(ctx context.Context, ks *entities.KeySet) error {
	av, err := attributevalue.MarshalMap(keySetItem{
		PK:       keys.KindJWKS,
		Blob:     ks.Blob,
		CachedAt: ks.CachedAt,
	})
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal key set")
	}

	// Unconditional overwrite: the cache holds one value and refresh races
	// are harmless.
	if err := r.store.Put(ctx, av, nil); err != nil {
		return err
	}
	r.logger.Debug("Key set cached", zap.Int64("cachedAt", ks.CachedAt))
	return nil
}
