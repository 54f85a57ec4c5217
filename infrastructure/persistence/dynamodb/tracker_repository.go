package dynamodb

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"meterhub-backend/application/ports"
	"meterhub-backend/domain/entities"
	"meterhub-backend/domain/keys"
	apperrors "meterhub-backend/pkg/errors"
)

// TrackerRepository persists trackers. Creating a tracker checks ownership
// of the parent place inside the same transaction as the write, so the
// check cannot race the put.
type TrackerRepository struct {
	store  *Store
	logger *zap.Logger
}

// NewTrackerRepository creates a tracker repository.
func NewTrackerRepository(store *Store, logger *zap.Logger) ports.TrackerRepository {
	return &TrackerRepository{store: store, logger: logger}
}

type trackerItem struct {
	PK      string `dynamodbav:"pk"`
	GSI1PK  string `dynamodbav:"gsi1pk"`
	GSI2PK  string `dynamodbav:"gsi2pk"`
	Data    string `dynamodbav:"data"`
	Owner   string `dynamodbav:"owner"`
	Created int64  `dynamodbav:"created"`

	UtilityProvider      string `dynamodbav:"utilityProvider,omitempty"`
	UtilityAccountNumber string `dynamodbav:"utilityAccountNumber,omitempty"`
	UtilityMeterNumber   string `dynamodbav:"utilityMeterNumber,omitempty"`

	ConsumptionReadingCount        int64   `dynamodbav:"consumptionReadingCount,omitempty"`
	AbsoluteReadingCount           int64   `dynamodbav:"absoluteReadingCount,omitempty"`
	ConsumptionDailyReadingCount   int64   `dynamodbav:"consumptionDailyReadingCount,omitempty"`
	ConsumptionWeeklyReadingCount  int64   `dynamodbav:"consumptionWeeklyReadingCount,omitempty"`
	ConsumptionMonthlyReadingCount int64   `dynamodbav:"consumptionMonthlyReadingCount,omitempty"`
	ConsumptionYearlyReadingCount  int64   `dynamodbav:"consumptionYearlyReadingCount,omitempty"`
	ConsumptionDailyReadingTotal   float64 `dynamodbav:"consumptionDailyReadingTotal,omitempty"`
	ConsumptionWeeklyReadingTotal  float64 `dynamodbav:"consumptionWeeklyReadingTotal,omitempty"`
	ConsumptionMonthlyReadingTotal float64 `dynamodbav:"consumptionMonthlyReadingTotal,omitempty"`
	ConsumptionYearlyReadingTotal  float64 `dynamodbav:"consumptionYearlyReadingTotal,omitempty"`
}

// Create writes the tracker in one transaction with a condition check on
// the parent place: the place must exist and, unless the caller is an
// administrator, be owned by the caller.
func (r *TrackerRepository) Create(ctx context.Context, tracker *entities.Tracker, userID string, isAdmin bool) error {
	if !entities.ValidTrackerType(tracker.Type) {
		return apperrors.NewValidationError("unknown tracker type " + tracker.Type)
	}

	item := trackerItem{
		PK:      keys.PK(keys.KindTracker, tracker.ID),
		GSI1PK:  keys.BelongsTo(keys.KindPlace, tracker.PlaceID),
		GSI2PK:  keys.TypePartition(keys.KindTracker, tracker.Type),
		Data:    keys.Encode(keys.KindTracker, tracker.Status, tracker.Type),
		Owner:   tracker.OwnerID,
		Created: tracker.Created,
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal tracker")
	}

	guard := OwnedBy(userID)
	if isAdmin {
		guard = Exists()
	}
	guardExpr, err := expression.NewBuilder().WithCondition(guard.builder).Build()
	if err != nil {
		return apperrors.Wrap(err, "failed to build place condition")
	}

	createExpr, err := expression.NewBuilder().
		WithCondition(expression.Name("pk").AttributeNotExists()).
		Build()
	if err != nil {
		return apperrors.Wrap(err, "failed to build create condition")
	}

	err = r.store.TransactWrite(ctx, []types.TransactWriteItem{
		{
			ConditionCheck: &types.ConditionCheck{
				TableName:                 aws.String(r.store.Table()),
				Key:                       keyOf(keys.PK(keys.KindPlace, tracker.PlaceID)),
				ConditionExpression:       guardExpr.Condition(),
				ExpressionAttributeNames:  guardExpr.Names(),
				ExpressionAttributeValues: guardExpr.Values(),
			},
		},
		{
			Put: &types.Put{
				TableName:                 aws.String(r.store.Table()),
				Item:                      av,
				ConditionExpression:       createExpr.Condition(),
				ExpressionAttributeNames:  createExpr.Names(),
				ExpressionAttributeValues: createExpr.Values(),
			},
		},
	})
	if err != nil {
		if apperrors.IsConflict(err) {
			if isAdmin {
				return apperrors.NewNotFoundError("place")
			}
			return apperrors.NewForbiddenError("caller does not own the place")
		}
		return err
	}

	r.logger.Debug("Tracker created",
		zap.String("trackerID", tracker.ID),
		zap.String("placeID", tracker.PlaceID),
		zap.String("type", tracker.Type),
	)
	return nil
}

func (r *TrackerRepository) GetByID(ctx context.Context, id string) (*entities.Tracker, error) {
	item, err := r.store.Get(ctx, keys.PK(keys.KindTracker, id))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperrors.NewNotFoundError("tracker")
	}
	return unmarshalTracker(item)
}

func (r *TrackerRepository) ListByPlace(ctx context.Context, placeID string, opts ports.ListOptions) (ports.Page[*entities.Tracker], error) {
	var page ports.Page[*entities.Tracker]

	items, nextToken, err := r.store.Query(ctx, QuerySpec{
		Index:      IndexBelongsTo,
		KeyValue:   keys.BelongsTo(keys.KindPlace, placeID),
		DataPrefix: keys.KindTracker + keys.Sep + opts.StatusPrefix,
		PageSize:   opts.PageSize,
		Token:      opts.Token,
		Forward:    opts.Forward,
	})
	if err != nil {
		return page, err
	}

	page.Items = make([]*entities.Tracker, 0, len(items))
	for _, item := range items {
		tracker, err := unmarshalTracker(item)
		if err != nil {
			r.logger.Warn("Skipping unreadable tracker item", zap.Error(err))
			continue
		}
		page.Items = append(page.Items, tracker)
	}
	page.NextToken = nextToken
	return page, nil
}

// SetUtility attaches utility-account linkage attributes to the tracker.
func (r *TrackerRepository) SetUtility(ctx context.Context, id string, account entities.UtilityAccount) error {
	update := expression.Set(expression.Name("utilityProvider"), expression.Value(account.Provider)).
		Set(expression.Name("utilityAccountNumber"), expression.Value(account.AccountNumber)).
		Set(expression.Name("utilityMeterNumber"), expression.Value(account.MeterNumber))
	if err := r.store.Update(ctx, keys.PK(keys.KindTracker, id), update, nil); err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewNotFoundError("tracker")
		}
		return err
	}
	return nil
}

// RemoveUtility removes the utility-account linkage attributes.
func (r *TrackerRepository) RemoveUtility(ctx context.Context, id string) error {
	update := expression.Remove(expression.Name("utilityProvider")).
		Remove(expression.Name("utilityAccountNumber")).
		Remove(expression.Name("utilityMeterNumber"))
	if err := r.store.Update(ctx, keys.PK(keys.KindTracker, id), update, nil); err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewNotFoundError("tracker")
		}
		return err
	}
	return nil
}

func (r *TrackerRepository) Delete(ctx context.Context, id string, permanent bool) error {
	if !permanent {
		tracker, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		update := expression.Set(
			expression.Name("data"),
			expression.Value(keys.Encode(keys.KindTracker, keys.StatusArchived, tracker.Type)),
		)
		if err := r.store.Update(ctx, keys.PK(keys.KindTracker, id), update, nil); err != nil {
			if apperrors.IsNotFound(err) {
				return apperrors.NewNotFoundError("tracker")
			}
			return err
		}
		return nil
	}
	if err := r.store.Delete(ctx, keys.PK(keys.KindTracker, id), nil); err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewNotFoundError("tracker")
		}
		return err
	}
	return nil
}

func unmarshalTracker(item Item) (*entities.Tracker, error) {
	var stored trackerItem
	if err := attributevalue.UnmarshalMap(item, &stored); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal tracker")
	}

	_, status, extra, err := keys.Decode(stored.Data)
	if err != nil {
		return nil, apperrors.Wrap(err, "malformed tracker status token")
	}
	meterType := ""
	if len(extra) > 0 {
		meterType = extra[0]
	}

	tracker := &entities.Tracker{
		ID:                      strings.TrimPrefix(stored.PK, keys.KindTracker+keys.Sep),
		PlaceID:                 strings.TrimPrefix(stored.GSI1PK, keys.KindPlace+keys.Sep),
		OwnerID:                 stored.Owner,
		Type:                    meterType,
		Status:                  status,
		Created:                 stored.Created,
		ConsumptionReadingCount: stored.ConsumptionReadingCount,
		AbsoluteReadingCount:    stored.AbsoluteReadingCount,
		CycleCounts: map[string]int64{
			keys.CycleDaily:   stored.ConsumptionDailyReadingCount,
			keys.CycleWeekly:  stored.ConsumptionWeeklyReadingCount,
			keys.CycleMonthly: stored.ConsumptionMonthlyReadingCount,
			keys.CycleYearly:  stored.ConsumptionYearlyReadingCount,
		},
		CycleTotals: map[string]float64{
			keys.CycleDaily:   stored.ConsumptionDailyReadingTotal,
			keys.CycleWeekly:  stored.ConsumptionWeeklyReadingTotal,
			keys.CycleMonthly: stored.ConsumptionMonthlyReadingTotal,
			keys.CycleYearly:  stored.ConsumptionYearlyReadingTotal,
		},
	}
	if stored.UtilityProvider != "" || stored.UtilityAccountNumber != "" {
		tracker.Utility = &entities.UtilityAccount{
			Provider:      stored.UtilityProvider,
			AccountNumber: stored.UtilityAccountNumber,
			MeterNumber:   stored.UtilityMeterNumber,
		}
	}
	return tracker, nil
}
