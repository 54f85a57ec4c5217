package dynamodb

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"go.uber.org/zap"

	"meterhub-backend/application/ports"
	"meterhub-backend/domain/entities"
	"meterhub-backend/domain/keys"
	apperrors "meterhub-backend/pkg/errors"
)

// UserRepository persists users. The internal id is the primary address;
// the OAuth subject resolves through the belongs-to index.
type UserRepository struct {
	store  *Store
	logger *zap.Logger
}

// NewUserRepository creates a user repository.
func NewUserRepository(store *Store, logger *zap.Logger) ports.UserRepository {
	return &UserRepository{store: store, logger: logger}
}

type userItem struct {
	PK      string `dynamodbav:"pk"`
	GSI1PK  string `dynamodbav:"gsi1pk"`
	GSI2PK  string `dynamodbav:"gsi2pk"`
	Data    string `dynamodbav:"data"`
	Email   string `dynamodbav:"email,omitempty"`
	Wallet  string `dynamodbav:"wallet,omitempty"`
	Created int64  `dynamodbav:"created"`
}

func (r *UserRepository) Create(ctx context.Context, user *entities.User) error {
	item := userItem{
		PK:      keys.PK(keys.KindUser, user.ID),
		GSI1PK:  keys.BelongsTo(keys.KindOAuth, user.OAuthID),
		GSI2PK:  keys.TypePartition(keys.KindUser),
		Data:    keys.Encode(keys.KindUser, user.Status),
		Email:   user.Email,
		Wallet:  user.Wallet,
		Created: user.Created,
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal user")
	}

	cond := NotExists()
	if err := r.store.Put(ctx, av, &cond); err != nil {
		if apperrors.IsNotFound(err) || apperrors.IsConflict(err) {
			return apperrors.NewConflictError("user already exists")
		}
		return err
	}

	r.logger.Debug("User created", zap.String("userID", user.ID))
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*entities.User, error) {
	item, err := r.store.Get(ctx, keys.PK(keys.KindUser, id))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperrors.NewNotFoundError("user")
	}
	return unmarshalUser(item)
}

func (r *UserRepository) GetByOAuthID(ctx context.Context, oauthID string) (*entities.User, error) {
	items, _, err := r.store.Query(ctx, QuerySpec{
		Index:    IndexBelongsTo,
		KeyValue: keys.BelongsTo(keys.KindOAuth, oauthID),
		PageSize: 1,
		Forward:  true,
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apperrors.NewNotFoundError("user")
	}
	return unmarshalUser(items[0])
}

func (r *UserRepository) SetWallet(ctx context.Context, id, wallet string) error {
	update := expression.Set(expression.Name("wallet"), expression.Value(wallet))
	if err := r.store.Update(ctx, keys.PK(keys.KindUser, id), update, nil); err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewNotFoundError("user")
		}
		return err
	}
	return nil
}

func unmarshalUser(item Item) (*entities.User, error) {
	var stored userItem
	if err := attributevalue.UnmarshalMap(item, &stored); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal user")
	}
	return &entities.User{
		ID:      strings.TrimPrefix(stored.PK, keys.KindUser+keys.Sep),
		OAuthID: strings.TrimPrefix(stored.GSI1PK, keys.KindOAuth+keys.Sep),
		Email:   stored.Email,
		Wallet:  stored.Wallet,
		Status:  keys.Status(stored.Data),
		Created: stored.Created,
	}, nil
}
