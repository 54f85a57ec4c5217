package dynamodb

import (
	"context"
	"strconv"
	"strings"
	"time"

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

// ReadingRepository persists readings and applies ingestion batches
// atomically: reading items, consumption time-bucket items and counter
// deltas on the tracker and place all commit together or not at all.
type ReadingRepository struct {
	store     *Store
	metrics   ports.MetricsEmitter
	publisher ports.EventPublisher
	logger    *zap.Logger

	// now is swappable in tests; absolute readings are stamped with it.
	now func() time.Time
}

// NewReadingRepository creates a reading repository. metrics and publisher
// may be nil.
func NewReadingRepository(store *Store, metrics ports.MetricsEmitter, publisher ports.EventPublisher, logger *zap.Logger) *ReadingRepository {
	return &ReadingRepository{
		store:     store,
		metrics:   metrics,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

type readingItem struct {
	PK      string   `dynamodbav:"pk"`
	GSI1PK  string   `dynamodbav:"gsi1pk"`
	GSI2PK  string   `dynamodbav:"gsi2pk"`
	Data    string   `dynamodbav:"data"`
	Owner   string   `dynamodbav:"owner"`
	Type    string   `dynamodbav:"type"`
	Cycle   string   `dynamodbav:"cycle,omitempty"`
	Value   *float64 `dynamodbav:"value,omitempty"`
	Start   *int64   `dynamodbav:"start,omitempty"`
	End     *int64   `dynamodbav:"end,omitempty"`
	IV      string   `dynamodbav:"iv,omitempty"`
	Created int64    `dynamodbav:"created"`
}

// bucketItem is an auxiliary index-only marker for a consumption reading's
// time interval. It carries no owner and no creation timestamp.
type bucketItem struct {
	PK     string `dynamodbav:"pk"`
	GSI2PK string `dynamodbav:"gsi2pk"`
	Data   string `dynamodbav:"data"`
}

// counterDelta is one atomic increment against a named numeric attribute.
type counterDelta struct {
	attr  string
	value float64
}

// cycleCountAttr and cycleTotalAttr name the per-cycle counters on the
// tracker item, e.g. consumptionWeeklyReadingCount.
func cycleCountAttr(cycle string) string {
	return "consumption" + strings.ToUpper(cycle[:1]) + cycle[1:] + "ReadingCount"
}

func cycleTotalAttr(cycle string) string {
	return "consumption" + strings.ToUpper(cycle[:1]) + cycle[1:] + "ReadingTotal"
}

const (
	attrConsumptionCount = "consumptionReadingCount"
	attrAbsoluteCount    = "absoluteReadingCount"
)

// Ingest validates each reading independently, derives the time-bucket
// keys, accumulates counter deltas in memory and submits one transaction.
// Malformed readings are dropped without error; a batch that is empty after
// validation performs no store call at all.
func (r *ReadingRepository) Ingest(ctx context.Context, trackerID, placeID, userID string, isAdmin bool, readings []entities.ReadingInput) error {
	ingestedAt := r.now().UnixMilli()

	var (
		readingOrder []string
		readingPuts  = map[string]Item{}
		bucketOrder  []string
		bucketPuts   = map[string]Item{}

		consumptionCount int64
		absoluteCount    int64
		cycleCounts      = map[string]int64{}
		cycleTotals      = map[string]float64{}
		dropped          int
	)

	for _, in := range readings {
		switch {
		case in.ValidConsumption():
			item, err := marshalReading(in, trackerID, userID, ingestedAt)
			if err != nil {
				return err
			}
			pk := keys.PK(keys.KindReading, in.ID)
			if _, seen := readingPuts[pk]; !seen {
				readingOrder = append(readingOrder, pk)
			}
			readingPuts[pk] = item

			bucketPK := keys.BucketPK(in.Cycle, trackerID, *in.Start, *in.End)
			if _, seen := bucketPuts[bucketPK]; !seen {
				bucketOrder = append(bucketOrder, bucketPK)
				bucket, err := attributevalue.MarshalMap(bucketItem{
					PK:     bucketPK,
					GSI2PK: keys.TypePartition(keys.KindImportTimestamp),
					Data:   keys.BucketData(*in.Start),
				})
				if err != nil {
					return apperrors.Wrap(err, "failed to marshal bucket item")
				}
				bucketPuts[bucketPK] = bucket
			}

			consumptionCount++
			cycleCounts[in.Cycle]++
			cycleTotals[in.Cycle] += *in.Value

		case in.ValidAbsolute():
			item, err := marshalReading(in, trackerID, userID, ingestedAt)
			if err != nil {
				return err
			}
			pk := keys.PK(keys.KindReading, in.ID)
			if _, seen := readingPuts[pk]; !seen {
				readingOrder = append(readingOrder, pk)
			}
			readingPuts[pk] = item

			absoluteCount++

		default:
			// Deliberate batch leniency: a malformed reading is excluded
			// without failing the batch and without touching any counter.
			dropped++
		}
	}

	if len(readingOrder) == 0 {
		r.logger.Debug("Ingestion batch empty after validation, skipping transaction",
			zap.String("trackerID", trackerID),
			zap.Int("dropped", dropped),
		)
		return nil
	}

	items := make([]types.TransactWriteItem, 0, len(readingOrder)+len(bucketOrder)+2)
	for _, pk := range readingOrder {
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(r.store.Table()), Item: readingPuts[pk]},
		})
	}
	for _, pk := range bucketOrder {
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(r.store.Table()), Item: bucketPuts[pk]},
		})
	}

	// Tracker counters, one update command bundling every nonzero delta.
	trackerDeltas := []counterDelta{{attrConsumptionCount, float64(consumptionCount)}}
	for _, cycle := range []string{keys.CycleDaily, keys.CycleWeekly, keys.CycleMonthly, keys.CycleYearly} {
		trackerDeltas = append(trackerDeltas,
			counterDelta{cycleCountAttr(cycle), float64(cycleCounts[cycle])},
			counterDelta{cycleTotalAttr(cycle), cycleTotals[cycle]},
		)
	}
	trackerDeltas = append(trackerDeltas, counterDelta{attrAbsoluteCount, float64(absoluteCount)})

	trackerGuard := OwnedBy(userID)
	if isAdmin {
		trackerGuard = Exists()
	}
	trackerUpdate, err := r.counterUpdate(keys.PK(keys.KindTracker, trackerID), trackerDeltas, trackerGuard)
	if err != nil {
		return err
	}
	items = append(items, *trackerUpdate)

	// Place counters: per-type counts only, aggregated across cycles.
	placeDeltas := []counterDelta{
		{attrConsumptionCount, float64(consumptionCount)},
		{attrAbsoluteCount, float64(absoluteCount)},
	}
	placeUpdate, err := r.counterUpdate(keys.PK(keys.KindPlace, placeID), placeDeltas, Exists())
	if err != nil {
		return err
	}
	items = append(items, *placeUpdate)

	if err := r.store.TransactWrite(ctx, items); err != nil {
		if apperrors.IsConflict(err) {
			if isAdmin {
				return apperrors.NewNotFoundError("tracker")
			}
			return apperrors.NewForbiddenError("caller does not own the tracker")
		}
		return err
	}

	r.logger.Info("Readings ingested",
		zap.String("trackerID", trackerID),
		zap.String("placeID", placeID),
		zap.Int("accepted", len(readingOrder)),
		zap.Int("buckets", len(bucketOrder)),
		zap.Int("dropped", dropped),
	)

	if r.metrics != nil {
		r.metrics.RecordIngestion(ctx, trackerID, len(readingOrder), dropped)
	}
	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, "readings.ingested", map[string]any{
			"trackerId": trackerID,
			"placeId":   placeID,
			"accepted":  len(readingOrder),
			"dropped":   dropped,
		}); err != nil {
			r.logger.Warn("Failed to publish ingestion event", zap.Error(err))
		}
	}
	return nil
}

// counterUpdate builds one transaction Update applying all nonzero deltas
// for a single target item as atomic ADDs. Deltas are never read-modify-
// write, so concurrent ingestions sum correctly.
func (r *ReadingRepository) counterUpdate(pk string, deltas []counterDelta, guard Condition) (*types.TransactWriteItem, error) {
	var update expression.UpdateBuilder
	applied := 0
	for _, d := range deltas {
		if d.value == 0 {
			continue
		}
		update = update.Add(expression.Name(d.attr), expression.Value(d.value))
		applied++
	}
	if applied == 0 {
		return nil, apperrors.NewInternalError("counter update with no deltas for " + pk)
	}

	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(guard.builder).
		Build()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to build counter update")
	}

	return &types.TransactWriteItem{
		Update: &types.Update{
			TableName:                 aws.String(r.store.Table()),
			Key:                       keyOf(pk),
			UpdateExpression:          expr.Update(),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		},
	}, nil
}

func marshalReading(in entities.ReadingInput, trackerID, userID string, ingestedAt int64) (Item, error) {
	timeKey := strconv.FormatInt(in.TimeKey(ingestedAt), 10)

	var data string
	if in.Type == keys.ReadingConsumption {
		data = keys.Encode(keys.KindReading, keys.StatusActive, in.Cycle, timeKey)
	} else {
		data = keys.Encode(keys.KindReading, keys.StatusActive, timeKey)
	}

	item := readingItem{
		PK:      keys.PK(keys.KindReading, in.ID),
		GSI1PK:  keys.BelongsTo(keys.KindTracker, trackerID),
		GSI2PK:  keys.TypePartition(keys.KindReading),
		Data:    data,
		Owner:   userID,
		Type:    in.Type,
		Cycle:   in.Cycle,
		Value:   in.Value,
		Start:   in.Start,
		End:     in.End,
		IV:      in.IV,
		Created: ingestedAt,
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal reading")
	}
	return av, nil
}

func (r *ReadingRepository) GetByID(ctx context.Context, id string) (*entities.Reading, error) {
	item, err := r.store.Get(ctx, keys.PK(keys.KindReading, id))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperrors.NewNotFoundError("reading")
	}
	return unmarshalReading(item)
}

func (r *ReadingRepository) ListByTracker(ctx context.Context, trackerID string, opts ports.ListOptions) (ports.Page[*entities.Reading], error) {
	var page ports.Page[*entities.Reading]

	items, nextToken, err := r.store.Query(ctx, QuerySpec{
		Index:      IndexBelongsTo,
		KeyValue:   keys.BelongsTo(keys.KindTracker, trackerID),
		DataPrefix: keys.KindReading + keys.Sep + opts.StatusPrefix,
		PageSize:   opts.PageSize,
		Token:      opts.Token,
		Forward:    opts.Forward,
	})
	if err != nil {
		return page, err
	}

	page.Items = make([]*entities.Reading, 0, len(items))
	for _, item := range items {
		reading, err := unmarshalReading(item)
		if err != nil {
			r.logger.Warn("Skipping unreadable reading item", zap.Error(err))
			continue
		}
		page.Items = append(page.Items, reading)
	}
	page.NextToken = nextToken
	return page, nil
}

func unmarshalReading(item Item) (*entities.Reading, error) {
	var stored readingItem
	if err := attributevalue.UnmarshalMap(item, &stored); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal reading")
	}
	return &entities.Reading{
		ID:        strings.TrimPrefix(stored.PK, keys.KindReading+keys.Sep),
		TrackerID: strings.TrimPrefix(stored.GSI1PK, keys.KindTracker+keys.Sep),
		OwnerID:   stored.Owner,
		Type:      stored.Type,
		Cycle:     stored.Cycle,
		Value:     stored.Value,
		Start:     stored.Start,
		End:       stored.End,
		IV:        stored.IV,
		Status:    keys.Status(stored.Data),
		Created:   stored.Created,
	}, nil
}
