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

// PlaceRepository persists places. A place item also carries the rolling
// reading counters maintained by ingestion.
type PlaceRepository struct {
	store  *Store
	logger *zap.Logger
}

// NewPlaceRepository creates a place repository.
func NewPlaceRepository(store *Store, logger *zap.Logger) ports.PlaceRepository {
	return &PlaceRepository{store: store, logger: logger}
}

type placeItem struct {
	PK       string `dynamodbav:"pk"`
	GSI1PK   string `dynamodbav:"gsi1pk"`
	GSI2PK   string `dynamodbav:"gsi2pk"`
	Data     string `dynamodbav:"data"`
	Owner    string `dynamodbav:"owner"`
	Name     string `dynamodbav:"name"`
	Position string `dynamodbav:"position,omitempty"`
	ImageURL string `dynamodbav:"imageUrl,omitempty"`
	Created  int64  `dynamodbav:"created"`

	ConsumptionReadingCount int64 `dynamodbav:"consumptionReadingCount,omitempty"`
	AbsoluteReadingCount    int64 `dynamodbav:"absoluteReadingCount,omitempty"`
}

func (r *PlaceRepository) Create(ctx context.Context, place *entities.Place) error {
	item := placeItem{
		PK:       keys.PK(keys.KindPlace, place.ID),
		GSI1PK:   keys.BelongsTo(keys.KindUser, place.UserID),
		GSI2PK:   keys.TypePartition(keys.KindPlace),
		Data:     keys.Encode(keys.KindPlace, place.Status),
		Owner:    place.UserID,
		Name:     place.Name,
		Position: place.Position,
		ImageURL: place.ImageURL,
		Created:  place.Created,
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal place")
	}

	cond := NotExists()
	if err := r.store.Put(ctx, av, &cond); err != nil {
		if apperrors.IsNotFound(err) || apperrors.IsConflict(err) {
			return apperrors.NewConflictError("place already exists")
		}
		return err
	}

	r.logger.Debug("Place created",
		zap.String("placeID", place.ID),
		zap.String("userID", place.UserID),
	)
	return nil
}

func (r *PlaceRepository) GetByID(ctx context.Context, id string) (*entities.Place, error) {
	item, err := r.store.Get(ctx, keys.PK(keys.KindPlace, id))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperrors.NewNotFoundError("place")
	}
	return unmarshalPlace(item)
}

func (r *PlaceRepository) ListByUser(ctx context.Context, userID string, opts ports.ListOptions) (ports.Page[*entities.Place], error) {
	return r.list(ctx, QuerySpec{
		Index:      IndexBelongsTo,
		KeyValue:   keys.BelongsTo(keys.KindUser, userID),
		DataPrefix: keys.KindPlace + keys.Sep + opts.StatusPrefix,
		PageSize:   opts.PageSize,
		Token:      opts.Token,
		Forward:    opts.Forward,
	})
}

func (r *PlaceRepository) ListAll(ctx context.Context, opts ports.ListOptions) (ports.Page[*entities.Place], error) {
	return r.list(ctx, QuerySpec{
		Index:      IndexByType,
		KeyValue:   keys.TypePartition(keys.KindPlace),
		DataPrefix: keys.KindPlace + keys.Sep + opts.StatusPrefix,
		PageSize:   opts.PageSize,
		Token:      opts.Token,
		Forward:    opts.Forward,
	})
}

func (r *PlaceRepository) list(ctx context.Context, spec QuerySpec) (ports.Page[*entities.Place], error) {
	var page ports.Page[*entities.Place]

	items, nextToken, err := r.store.Query(ctx, spec)
	if err != nil {
		return page, err
	}

	page.Items = make([]*entities.Place, 0, len(items))
	for _, item := range items {
		place, err := unmarshalPlace(item)
		if err != nil {
			r.logger.Warn("Skipping unreadable place item", zap.Error(err))
			continue
		}
		page.Items = append(page.Items, place)
	}
	page.NextToken = nextToken
	return page, nil
}

func (r *PlaceRepository) UpdateStatus(ctx context.Context, id, status string) error {
	update := expression.Set(
		expression.Name("data"),
		expression.Value(keys.Encode(keys.KindPlace, status)),
	)
	if err := r.store.Update(ctx, keys.PK(keys.KindPlace, id), update, nil); err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewNotFoundError("place")
		}
		return err
	}
	return nil
}

func (r *PlaceRepository) UpdateMeta(ctx context.Context, id, name, imageURL string) error {
	update := expression.Set(expression.Name("name"), expression.Value(name)).
		Set(expression.Name("imageUrl"), expression.Value(imageURL))
	if err := r.store.Update(ctx, keys.PK(keys.KindPlace, id), update, nil); err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewNotFoundError("place")
		}
		return err
	}
	return nil
}

func (r *PlaceRepository) Delete(ctx context.Context, id string, permanent bool) error {
	if !permanent {
		return r.UpdateStatus(ctx, id, keys.StatusArchived)
	}
	if err := r.store.Delete(ctx, keys.PK(keys.KindPlace, id), nil); err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewNotFoundError("place")
		}
		return err
	}
	return nil
}

func unmarshalPlace(item Item) (*entities.Place, error) {
	var stored placeItem
	if err := attributevalue.UnmarshalMap(item, &stored); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal place")
	}
	return &entities.Place{
		ID:                      strings.TrimPrefix(stored.PK, keys.KindPlace+keys.Sep),
		UserID:                  stored.Owner,
		Name:                    stored.Name,
		Position:                stored.Position,
		ImageURL:                stored.ImageURL,
		Status:                  keys.Status(stored.Data),
		Created:                 stored.Created,
		ConsumptionReadingCount: stored.ConsumptionReadingCount,
		AbsoluteReadingCount:    stored.AbsoluteReadingCount,
	}, nil
}
