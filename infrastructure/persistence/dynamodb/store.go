// Package dynamodb implements the single-table persistence layer. Every
// entity kind shares one physical table keyed by "pk", with two overlaid
// indexes: gsi1 (gsi1pk + data) for belongs-to queries and gsi2
// (gsi2pk + data) for type-partition listings.
package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"meterhub-backend/infrastructure/config"
	apperrors "meterhub-backend/pkg/errors"
)

// Item is one stored record: attribute name to typed scalar.
type Item = map[string]types.AttributeValue

// Client is the subset of the DynamoDB API the store depends on. Tests
// substitute a fake.
type Client interface {
	GetItem(ctx context.Context, params *awsdynamodb.GetItemInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *awsdynamodb.PutItemInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *awsdynamodb.UpdateItemInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *awsdynamodb.DeleteItemInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *awsdynamodb.QueryInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *awsdynamodb.TransactWriteItemsInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.TransactWriteItemsOutput, error)
}

// Store wraps the DynamoDB client with table identity and the shared
// conditional-write and pagination discipline used by all repositories.
type Store struct {
	client Client
	table  string
	gsi1   string
	gsi2   string
	logger *zap.Logger
}

// NewStore creates a store bound to the configured table and indexes.
func NewStore(client Client, cfg *config.Config, logger *zap.Logger) *Store {
	return &Store{
		client: client,
		table:  cfg.TableName,
		gsi1:   cfg.GSI1Name,
		gsi2:   cfg.GSI2Name,
		logger: logger,
	}
}

// Table returns the physical table name, for transaction items built by
// repositories.
func (s *Store) Table() string {
	return s.table
}

// Condition guards a mutation. It is translated into a native condition
// expression by the store; repositories never read-then-check.
type Condition struct {
	builder expression.ConditionBuilder
}

// Exists requires the target item to exist.
func Exists() Condition {
	return Condition{builder: expression.Name("pk").AttributeExists()}
}

// NotExists requires the target item to be absent (create semantics).
func NotExists() Condition {
	return Condition{builder: expression.Name("pk").AttributeNotExists()}
}

// OwnedBy requires the target item to exist and carry the given owner.
func OwnedBy(userID string) Condition {
	return Condition{builder: expression.Name("pk").AttributeExists().
		And(expression.Name("owner").Equal(expression.Value(userID)))}
}

// Get fetches one item by partition key. An absent item returns (nil, nil);
// callers decide what "not found" means for their entity kind.
func (s *Store) Get(ctx context.Context, pk string) (Item, error) {
	out, err := s.client.GetItem(ctx, &awsdynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       keyOf(pk),
	})
	if err != nil {
		return nil, s.translate("get", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	return out.Item, nil
}

// Put writes a full item, optionally guarded by a condition.
func (s *Store) Put(ctx context.Context, item Item, cond *Condition) error {
	input := &awsdynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}
	if cond != nil {
		expr, err := expression.NewBuilder().WithCondition(cond.builder).Build()
		if err != nil {
			return fmt.Errorf("failed to build condition: %w", err)
		}
		input.ConditionExpression = expr.Condition()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		return s.translate("put", err)
	}
	return nil
}

// Update applies a partial attribute update guarded by a condition. The
// default condition requires existence, so updating a missing item fails
// with NotFound instead of upserting.
func (s *Store) Update(ctx context.Context, pk string, update expression.UpdateBuilder, cond *Condition) error {
	guard := Exists()
	if cond != nil {
		guard = *cond
	}
	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(guard.builder).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	input := &awsdynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       keyOf(pk),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return s.translate("update", err)
	}
	return nil
}

// Delete removes an item permanently, guarded by existence so a missing
// item surfaces NotFound rather than silently succeeding.
func (s *Store) Delete(ctx context.Context, pk string, cond *Condition) error {
	guard := Exists()
	if cond != nil {
		guard = *cond
	}
	expr, err := expression.NewBuilder().WithCondition(guard.builder).Build()
	if err != nil {
		return fmt.Errorf("failed to build condition: %w", err)
	}

	input := &awsdynamodb.DeleteItemInput{
		TableName:                 aws.String(s.table),
		Key:                       keyOf(pk),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	if _, err := s.client.DeleteItem(ctx, input); err != nil {
		return s.translate("delete", err)
	}
	return nil
}

// TransactWrite submits one atomic transaction. All effects apply or none
// do. A failed condition inside the transaction surfaces as Conflict;
// callers map it to NotFound or Forbidden depending on which condition they
// attached.
func (s *Store) TransactWrite(ctx context.Context, items []types.TransactWriteItem) error {
	if len(items) == 0 {
		return nil
	}

	_, err := s.client.TransactWriteItems(ctx, &awsdynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			for _, reason := range canceled.CancellationReasons {
				if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
					return apperrors.NewConflictError("transaction condition failed").WithCause(err)
				}
			}
		}
		return s.translate("transactWrite", err)
	}

	s.logger.Debug("Transaction committed", zap.Int("itemCount", len(items)))
	return nil
}

// translate maps SDK errors into the application taxonomy. Timeouts stay
// retryable and distinct; conditional-check failures become NotFound; all
// other store failures surface unchanged inside a Database error.
func (s *Store) translate(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.NewTimeoutError(op)
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return apperrors.NewNotFoundError("item").WithCause(err)
	}
	return apperrors.NewDatabaseError(op, err)
}

func keyOf(pk string) Item {
	return Item{"pk": &types.AttributeValueMemberS{Value: pk}}
}
