package dynamodb

import (
	"context"
	"testing"

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

func newTestProjectRepo(client Client) ports.ProjectRepository {
	return NewProjectRepository(newTestStore(client), zap.NewNop())
}

func TestProjectCreateGuardsAgainstOverwrite(t *testing.T) {
	client := newFakeClient()
	repo := newTestProjectRepo(client)

	project := entities.NewProject("u-1", "Solar roof", "https://img/x.png")
	require.NoError(t, repo.Create(context.Background(), project))

	require.Len(t, client.putInputs, 1)
	input := client.putInputs[0]
	require.NotNil(t, input.ConditionExpression)
	assert.Contains(t, *input.ConditionExpression, "attribute_not_exists")

	item := input.Item
	assert.Equal(t, "project|"+project.ID, item["pk"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "user|u-1", item["gsi1pk"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "type|project", item["gsi2pk"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "project|created", item["data"].(*types.AttributeValueMemberS).Value)
}

func TestProjectCreateConflict(t *testing.T) {
	client := newFakeClient()
	client.putErr = &types.ConditionalCheckFailedException{}
	repo := newTestProjectRepo(client)

	err := repo.Create(context.Background(), entities.NewProject("u-1", "Dup", ""))

	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}

func TestProjectGetByIDNotFound(t *testing.T) {
	repo := newTestProjectRepo(newFakeClient())

	_, err := repo.GetByID(context.Background(), "missing")

	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestProjectGetByIDRoundTrip(t *testing.T) {
	client := newFakeClient()
	client.items["project|p-1"] = Item{
		"pk":      strAttr("project|p-1"),
		"gsi1pk":  strAttr("user|u-1"),
		"gsi2pk":  strAttr("type|project"),
		"data":    strAttr("project|approved"),
		"owner":   strAttr("u-1"),
		"name":    strAttr("Solar roof"),
		"created": &types.AttributeValueMemberN{Value: "1700000000000"},
	}
	repo := newTestProjectRepo(client)

	project, err := repo.GetByID(context.Background(), "p-1")

	require.NoError(t, err)
	assert.Equal(t, "p-1", project.ID)
	assert.Equal(t, "u-1", project.UserID)
	assert.Equal(t, keys.StatusApproved, project.Status)
	assert.Equal(t, int64(1700000000000), project.Created)
}

func TestProjectArchiveIsStatusUpdate(t *testing.T) {
	client := newFakeClient()
	repo := newTestProjectRepo(client)

	require.NoError(t, repo.Delete(context.Background(), "p-1", false))

	require.Len(t, client.updateInputs, 1)
	assert.Empty(t, client.deleteInputs)

	archived := false
	for _, av := range client.updateInputs[0].ExpressionAttributeValues {
		if s, ok := av.(*types.AttributeValueMemberS); ok && s.Value == "project|archived" {
			archived = true
		}
	}
	assert.True(t, archived)
}

func TestProjectPermanentDelete(t *testing.T) {
	client := newFakeClient()
	repo := newTestProjectRepo(client)

	require.NoError(t, repo.Delete(context.Background(), "p-1", true))

	assert.Empty(t, client.updateInputs)
	require.Len(t, client.deleteInputs, 1)
	assert.NotNil(t, client.deleteInputs[0].ConditionExpression)
}

func TestProjectUpdateStatusMissingIsNotFound(t *testing.T) {
	client := newFakeClient()
	client.updateErr = &types.ConditionalCheckFailedException{}
	repo := newTestProjectRepo(client)

	err := repo.UpdateStatus(context.Background(), "missing", keys.StatusApproved)

	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestProjectListByUserScopesPrefix(t *testing.T) {
	client := newFakeClient()
	client.queryPages = []*awsdynamodb.QueryOutput{{}}
	repo := newTestProjectRepo(client)

	_, err := repo.ListByUser(context.Background(), "u-1", ports.ListOptions{
		StatusPrefix: keys.StatusApproved,
		PageSize:     10,
		Forward:      true,
	})
	require.NoError(t, err)

	prefixUsed := false
	for _, av := range client.queryInputs[0].ExpressionAttributeValues {
		if s, ok := av.(*types.AttributeValueMemberS); ok && s.Value == "project|approved" {
			prefixUsed = true
		}
	}
	assert.True(t, prefixUsed, "list must scope the data prefix to projects")
}
