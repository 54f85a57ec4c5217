package ports

import "context"

// AssetClient mints and queries blockchain assets through an external
// gateway. Failures surface as External errors, distinguishable from store
// errors.
type AssetClient interface {
	MintAsset(ctx context.Context, projectID, wallet string) (assetID string, err error)
	GetAsset(ctx context.Context, assetID string) (map[string]any, error)
}

// UtilityClient verifies utility-account details with the provider before
// a tracker is linked to them.
type UtilityClient interface {
	VerifyAccount(ctx context.Context, provider, accountNumber string) (bool, error)
}

// EventPublisher emits domain events after successful writes, best effort.
type EventPublisher interface {
	Publish(ctx context.Context, detailType string, detail any) error
}

// MetricsEmitter records operational metrics.
type MetricsEmitter interface {
	RecordIngestion(ctx context.Context, trackerID string, accepted, dropped int)
}
