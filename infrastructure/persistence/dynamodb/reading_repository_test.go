package dynamodb

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"meterhub-backend/application/ports"
	"meterhub-backend/domain/entities"
	"meterhub-backend/domain/keys"
	apperrors "meterhub-backend/pkg/errors"
)

func newTestReadingRepo(client Client) *ReadingRepository {
	repo := NewReadingRepository(newTestStore(client), nil, nil, zap.NewNop())
	repo.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return repo
}

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

func consumption(id, cycle string, value float64, start, end int64) entities.ReadingInput {
	return entities.ReadingInput{
		ID: id, Type: keys.ReadingConsumption, Cycle: cycle,
		Value: f64(value), Start: i64(start), End: i64(end), IV: "iv-" + id,
	}
}

func absolute(id string) entities.ReadingInput {
	return entities.ReadingInput{ID: id, Type: keys.ReadingAbsolute, IV: "iv-" + id}
}

// addDeltas parses the ADD clause of a transaction Update into a map of
// attribute name to increment.
func addDeltas(t *testing.T, u *types.Update) map[string]float64 {
	t.Helper()
	expr := strings.TrimSpace(aws.ToString(u.UpdateExpression))
	require.True(t, strings.HasPrefix(expr, "ADD"), "expected ADD expression, got %q", expr)
	expr = strings.TrimSpace(strings.TrimPrefix(expr, "ADD"))

	out := map[string]float64{}
	for _, pair := range strings.Split(expr, ",") {
		fields := strings.Fields(pair)
		require.Len(t, fields, 2)
		name := u.ExpressionAttributeNames[fields[0]]
		num, ok := u.ExpressionAttributeValues[fields[1]].(*types.AttributeValueMemberN)
		require.True(t, ok, "expected numeric delta for %s", name)
		v, err := strconv.ParseFloat(num.Value, 64)
		require.NoError(t, err)
		out[name] = v
	}
	return out
}

func itemString(t *testing.T, item Item, attr string) string {
	t.Helper()
	av, ok := item[attr]
	require.True(t, ok, "missing attribute %s", attr)
	s, ok := av.(*types.AttributeValueMemberS)
	require.True(t, ok, "attribute %s is not a string", attr)
	return s.Value
}

func TestIngestMixedBatchScenario(t *testing.T) {
	client := newFakeClient()
	repo := newTestReadingRepo(client)

	err := repo.Ingest(context.Background(), "T", "P", "U", false, []entities.ReadingInput{
		consumption("r-1", keys.CycleWeekly, 100, 1, 2),
		consumption("r-2", keys.CycleWeekly, 101, 3, 4),
		absolute("r-3"),
	})
	require.NoError(t, err)

	require.Len(t, client.transactInputs, 1)
	tx := client.transactInputs[0].TransactItems

	// 3 reading puts, 2 bucket puts, tracker update, place update.
	require.Len(t, tx, 7)

	// Reading items come first, in batch order.
	assert.Equal(t, "reading|r-1", itemString(t, tx[0].Put.Item, "pk"))
	assert.Equal(t, "reading|r-2", itemString(t, tx[1].Put.Item, "pk"))
	assert.Equal(t, "reading|r-3", itemString(t, tx[2].Put.Item, "pk"))

	// Consumption readings carry cycle and start in the status token.
	assert.Equal(t, "reading|active|weekly|1", itemString(t, tx[0].Put.Item, "data"))
	assert.Equal(t, "reading|active|weekly|3", itemString(t, tx[1].Put.Item, "data"))
	assert.Equal(t, "tracker|T", itemString(t, tx[0].Put.Item, "gsi1pk"))
	assert.Equal(t, "U", itemString(t, tx[0].Put.Item, "owner"))
	assert.Equal(t, "iv-r-1", itemString(t, tx[0].Put.Item, "iv"))

	// Absolute readings use the ingestion timestamp and omit the cycle.
	assert.Equal(t, "reading|active|1700000000000", itemString(t, tx[2].Put.Item, "data"))

	// One bucket item per distinct consumption interval, no owner, no created.
	bucket1 := tx[3].Put.Item
	assert.Equal(t, "weekly|T|1|2", itemString(t, bucket1, "pk"))
	assert.Equal(t, "imp-ts|1", itemString(t, bucket1, "data"))
	assert.Equal(t, "type|imp-ts", itemString(t, bucket1, "gsi2pk"))
	assert.NotContains(t, bucket1, "owner")
	assert.NotContains(t, bucket1, "created")
	assert.Equal(t, "weekly|T|3|4", itemString(t, tx[4].Put.Item, "pk"))

	// Tracker counters, zero-delta counters omitted.
	trackerUpdate := tx[5].Update
	require.NotNil(t, trackerUpdate)
	assert.Equal(t, "tracker|T", trackerUpdate.Key["pk"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, map[string]float64{
		"consumptionReadingCount":       2,
		"consumptionWeeklyReadingCount": 2,
		"consumptionWeeklyReadingTotal": 201,
		"absoluteReadingCount":          1,
	}, addDeltas(t, trackerUpdate))

	// Non-admin caller: the tracker update carries the ownership condition.
	require.NotNil(t, trackerUpdate.ConditionExpression)
	ownerGuarded := false
	for _, name := range trackerUpdate.ExpressionAttributeNames {
		if name == "owner" {
			ownerGuarded = true
		}
	}
	assert.True(t, ownerGuarded, "tracker update must check ownership")

	// Place counters aggregate across cycles.
	placeUpdate := tx[6].Update
	require.NotNil(t, placeUpdate)
	assert.Equal(t, "place|P", placeUpdate.Key["pk"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, map[string]float64{
		"consumptionReadingCount": 2,
		"absoluteReadingCount":    1,
	}, addDeltas(t, placeUpdate))
}

func TestIngestAdminSkipsOwnershipCondition(t *testing.T) {
	client := newFakeClient()
	repo := newTestReadingRepo(client)

	err := repo.Ingest(context.Background(), "T", "P", "U", true, []entities.ReadingInput{
		absolute("r-1"),
	})
	require.NoError(t, err)

	tx := client.transactInputs[0].TransactItems
	trackerUpdate := tx[len(tx)-2].Update
	require.NotNil(t, trackerUpdate)
	for _, name := range trackerUpdate.ExpressionAttributeNames {
		assert.NotEqual(t, "owner", name, "admin ingestion must not check ownership")
	}
}

func TestIngestEmptyBatchSkipsTransaction(t *testing.T) {
	client := newFakeClient()
	repo := newTestReadingRepo(client)

	err := repo.Ingest(context.Background(), "T", "P", "U", false, nil)

	require.NoError(t, err)
	assert.Empty(t, client.transactInputs)
	assert.Empty(t, client.putInputs)
	assert.Empty(t, client.updateInputs)
}

func TestIngestAllMalformedBatchSkipsTransaction(t *testing.T) {
	client := newFakeClient()
	repo := newTestReadingRepo(client)

	err := repo.Ingest(context.Background(), "T", "P", "U", false, []entities.ReadingInput{
		{ID: "r-1", Type: keys.ReadingConsumption},                                              // missing everything
		{ID: "r-2", Type: keys.ReadingConsumption, Cycle: "hourly", Value: f64(1), Start: i64(1), End: i64(2)}, // bad cycle
		{ID: "r-3", Type: "pressure"},                                                          // unknown type
		{ID: "r-4", Type: keys.ReadingConsumption, Cycle: keys.CycleDaily, Value: f64(1), Start: i64(1)}, // missing end
	})

	require.NoError(t, err)
	assert.Empty(t, client.transactInputs)
}

func TestIngestDropsMalformedWithoutCounterImpact(t *testing.T) {
	client := newFakeClient()
	repo := newTestReadingRepo(client)

	err := repo.Ingest(context.Background(), "T", "P", "U", false, []entities.ReadingInput{
		consumption("r-1", keys.CycleDaily, 5, 10, 20),
		{ID: "r-bad", Type: keys.ReadingConsumption, Cycle: keys.CycleDaily, Start: i64(1), End: i64(2)}, // missing value
	})
	require.NoError(t, err)

	tx := client.transactInputs[0].TransactItems
	// 1 reading put, 1 bucket put, 2 counter updates.
	require.Len(t, tx, 4)
	assert.Equal(t, map[string]float64{
		"consumptionReadingCount":      1,
		"consumptionDailyReadingCount": 1,
		"consumptionDailyReadingTotal": 5,
	}, addDeltas(t, tx[2].Update))
}

func TestIngestDuplicateIDsLastWriteWins(t *testing.T) {
	client := newFakeClient()
	repo := newTestReadingRepo(client)

	err := repo.Ingest(context.Background(), "T", "P", "U", false, []entities.ReadingInput{
		consumption("r-1", keys.CycleWeekly, 10, 1, 2),
		consumption("r-1", keys.CycleWeekly, 20, 1, 2),
	})
	require.NoError(t, err)

	tx := client.transactInputs[0].TransactItems
	// One put for the duplicated pk, one shared bucket, two counter updates.
	require.Len(t, tx, 4)
	value := tx[0].Put.Item["value"].(*types.AttributeValueMemberN)
	assert.Equal(t, "20", value.Value)

	// Counters still see both readings; deduplication applies to items only.
	assert.Equal(t, float64(2), addDeltas(t, tx[2].Update)["consumptionWeeklyReadingCount"])
	assert.Equal(t, float64(30), addDeltas(t, tx[2].Update)["consumptionWeeklyReadingTotal"])
}

func TestIngestOwnershipViolation(t *testing.T) {
	client := newFakeClient()
	code := "ConditionalCheckFailed"
	client.transactErr = &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: &code}},
	}
	repo := newTestReadingRepo(client)

	err := repo.Ingest(context.Background(), "T", "P", "intruder", false, []entities.ReadingInput{
		absolute("r-1"),
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsForbidden(err))
}

func TestIngestMissingTrackerAsAdmin(t *testing.T) {
	client := newFakeClient()
	code := "ConditionalCheckFailed"
	client.transactErr = &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: &code}},
	}
	repo := newTestReadingRepo(client)

	err := repo.Ingest(context.Background(), "T", "P", "U", true, []entities.ReadingInput{
		absolute("r-1"),
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestIngestStoreFailureAbortsBatch(t *testing.T) {
	client := newFakeClient()
	client.transactErr = assert.AnError
	repo := newTestReadingRepo(client)

	err := repo.Ingest(context.Background(), "T", "P", "U", false, []entities.ReadingInput{
		absolute("r-1"),
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsDatabase(err))
}

func TestListByTrackerFiltersOnStatusPrefix(t *testing.T) {
	client := newFakeClient()
	client.queryPages = []*awsdynamodb.QueryOutput{{}}
	repo := newTestReadingRepo(client)

	_, err := repo.ListByTracker(context.Background(), "T", ports.ListOptions{
		StatusPrefix: "active|weekly",
		PageSize:     25,
		Forward:      true,
	})
	require.NoError(t, err)

	require.Len(t, client.queryInputs, 1)
	prefixUsed := false
	for _, av := range client.queryInputs[0].ExpressionAttributeValues {
		if s, ok := av.(*types.AttributeValueMemberS); ok && s.Value == "reading|active|weekly" {
			prefixUsed = true
		}
	}
	assert.True(t, prefixUsed)
}
