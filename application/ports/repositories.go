// Package ports defines the interfaces between the application layer and
// the infrastructure adapters.
package ports

import (
	"context"

	"meterhub-backend/domain/entities"
)

// Page carries one page of a paginated listing. NextToken is an opaque
// continuation cursor; absence signals the final page.
type Page[T any] struct {
	Items     []T
	NextToken string
}

// ListOptions control paginated listings. StatusPrefix filters on the
// status token via begins_with; Forward false reverses the index order
// (sort=desc).
type ListOptions struct {
	StatusPrefix string
	PageSize     int32
	Token        string
	Forward      bool
}

// ProjectRepository persists projects.
type ProjectRepository interface {
	Create(ctx context.Context, project *entities.Project) error
	GetByID(ctx context.Context, id string) (*entities.Project, error)
	ListByUser(ctx context.Context, userID string, opts ListOptions) (Page[*entities.Project], error)
	ListAll(ctx context.Context, opts ListOptions) (Page[*entities.Project], error)
	UpdateStatus(ctx context.Context, id, status string) error
	UpdateMeta(ctx context.Context, id, name, imageURL string) error
	SetAssetID(ctx context.Context, id, assetID string) error
	Delete(ctx context.Context, id string, permanent bool) error
}

// PlaceRepository persists places.
type PlaceRepository interface {
	Create(ctx context.Context, place *entities.Place) error
	GetByID(ctx context.Context, id string) (*entities.Place, error)
	ListByUser(ctx context.Context, userID string, opts ListOptions) (Page[*entities.Place], error)
	ListAll(ctx context.Context, opts ListOptions) (Page[*entities.Place], error)
	UpdateStatus(ctx context.Context, id, status string) error
	UpdateMeta(ctx context.Context, id, name, imageURL string) error
	Delete(ctx context.Context, id string, permanent bool) error
}

// TrackerRepository persists trackers. Create enforces ownership of the
// parent place through a transaction condition unless isAdmin is set.
type TrackerRepository interface {
	Create(ctx context.Context, tracker *entities.Tracker, userID string, isAdmin bool) error
	GetByID(ctx context.Context, id string) (*entities.Tracker, error)
	ListByPlace(ctx context.Context, placeID string, opts ListOptions) (Page[*entities.Tracker], error)
	SetUtility(ctx context.Context, id string, account entities.UtilityAccount) error
	RemoveUtility(ctx context.Context, id string) error
	Delete(ctx context.Context, id string, permanent bool) error
}

// ReadingRepository persists readings. Ingest applies a whole batch
// atomically: reading items, consumption time-bucket items and counter
// deltas on the tracker and place, or nothing at all.
type ReadingRepository interface {
	Ingest(ctx context.Context, trackerID, placeID, userID string, isAdmin bool, readings []entities.ReadingInput) error
	GetByID(ctx context.Context, id string) (*entities.Reading, error)
	ListByTracker(ctx context.Context, trackerID string, opts ListOptions) (Page[*entities.Reading], error)
}

// UserRepository persists users under their internal id, resolvable by
// OAuth subject through the belongs-to index.
type UserRepository interface {
	Create(ctx context.Context, user *entities.User) error
	GetByID(ctx context.Context, id string) (*entities.User, error)
	GetByOAuthID(ctx context.Context, oauthID string) (*entities.User, error)
	SetWallet(ctx context.Context, id, wallet string) error
}

// KeySetRepository caches the JWKS blob as a singleton item.
type KeySetRepository interface {
	Get(ctx context.Context) (*entities.KeySet, error)
	Put(ctx context.Context, ks *entities.KeySet) error
}
