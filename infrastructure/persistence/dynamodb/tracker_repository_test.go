package dynamodb

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"meterhub-backend/application/ports"
	"meterhub-backend/domain/entities"
	"meterhub-backend/domain/keys"
	apperrors "meterhub-backend/pkg/errors"
)

func newTestTrackerRepo(client Client) ports.TrackerRepository {
	return NewTrackerRepository(newTestStore(client), zap.NewNop())
}

func TestTrackerCreateChecksPlaceOwnershipInTransaction(t *testing.T) {
	client := newFakeClient()
	repo := newTestTrackerRepo(client)

	tracker := entities.NewTracker("p-1", "u-1", keys.TrackerGasMeter)
	require.NoError(t, repo.Create(context.Background(), tracker, "u-1", false))

	require.Len(t, client.transactInputs, 1)
	tx := client.transactInputs[0].TransactItems
	require.Len(t, tx, 2)

	check := tx[0].ConditionCheck
	require.NotNil(t, check)
	assert.Equal(t, "place|p-1", check.Key["pk"].(*types.AttributeValueMemberS).Value)
	ownerGuarded := false
	for _, name := range check.ExpressionAttributeNames {
		if name == "owner" {
			ownerGuarded = true
		}
	}
	assert.True(t, ownerGuarded)

	put := tx[1].Put
	require.NotNil(t, put)
	assert.Equal(t, "tracker|"+tracker.ID, put.Item["pk"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "place|p-1", put.Item["gsi1pk"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "type|tracker|gas-meter", put.Item["gsi2pk"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "tracker|active|gas-meter", put.Item["data"].(*types.AttributeValueMemberS).Value)
}

func TestTrackerCreateAdminSkipsOwnership(t *testing.T) {
	client := newFakeClient()
	repo := newTestTrackerRepo(client)

	tracker := entities.NewTracker("p-1", "u-1", keys.TrackerElectricityMeter)
	require.NoError(t, repo.Create(context.Background(), tracker, "admin", true))

	check := client.transactInputs[0].TransactItems[0].ConditionCheck
	require.NotNil(t, check)
	for _, name := range check.ExpressionAttributeNames {
		assert.NotEqual(t, "owner", name)
	}
}

func TestTrackerCreateRejectsUnknownType(t *testing.T) {
	client := newFakeClient()
	repo := newTestTrackerRepo(client)

	tracker := entities.NewTracker("p-1", "u-1", "water-meter")
	err := repo.Create(context.Background(), tracker, "u-1", false)

	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Empty(t, client.transactInputs)
}

func TestTrackerCreateOwnershipViolationIsForbidden(t *testing.T) {
	client := newFakeClient()
	code := "ConditionalCheckFailed"
	client.transactErr = &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: &code}},
	}
	repo := newTestTrackerRepo(client)

	tracker := entities.NewTracker("p-1", "u-1", keys.TrackerGasMeter)
	err := repo.Create(context.Background(), tracker, "intruder", false)

	require.Error(t, err)
	assert.True(t, apperrors.IsForbidden(err))
}

func TestTrackerStatusTokenRoundTrip(t *testing.T) {
	client := newFakeClient()
	client.items["tracker|t-1"] = Item{
		"pk":      strAttr("tracker|t-1"),
		"gsi1pk":  strAttr("place|p-1"),
		"gsi2pk":  strAttr("type|tracker|electricity-meter"),
		"data":    strAttr("tracker|active|electricity-meter"),
		"owner":   strAttr("u-1"),
		"created": &types.AttributeValueMemberN{Value: "1700000000000"},
	}
	repo := newTestTrackerRepo(client)

	tracker, err := repo.GetByID(context.Background(), "t-1")

	require.NoError(t, err)
	assert.Equal(t, keys.TrackerElectricityMeter, tracker.Type)
	assert.Equal(t, keys.StatusActive, tracker.Status)
	assert.Equal(t, "p-1", tracker.PlaceID)
	assert.Equal(t, "u-1", tracker.OwnerID)
}

func TestTrackerSetAndRemoveUtility(t *testing.T) {
	client := newFakeClient()
	repo := newTestTrackerRepo(client)

	require.NoError(t, repo.SetUtility(context.Background(), "t-1", entities.UtilityAccount{
		Provider:      "stadtwerke",
		AccountNumber: "ACC-1",
		MeterNumber:   "M-1",
	}))
	require.Len(t, client.updateInputs, 1)
	assert.Contains(t, *client.updateInputs[0].UpdateExpression, "SET")

	require.NoError(t, repo.RemoveUtility(context.Background(), "t-1"))
	require.Len(t, client.updateInputs, 2)
	assert.Contains(t, *client.updateInputs[1].UpdateExpression, "REMOVE")
}
