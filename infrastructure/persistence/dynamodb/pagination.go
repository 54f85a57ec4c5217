package dynamodb

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	apperrors "meterhub-backend/pkg/errors"
)

// Index selectors for Query.
const (
	IndexBelongsTo = "gsi1"
	IndexByType    = "gsi2"
)

// QuerySpec describes one page of an index-scoped query. KeyValue matches
// the index partition key exactly; DataPrefix optionally narrows on the
// status token via begins_with. Token resumes a prior query and must be
// passed back unmodified.
type QuerySpec struct {
	Index      string
	KeyValue   string
	DataPrefix string
	PageSize   int32
	Token      string
	Forward    bool
}

// Query runs one paginated query against a secondary index. The returned
// token is opaque; an empty token signals the final page.
func (s *Store) Query(ctx context.Context, spec QuerySpec) ([]Item, string, error) {
	indexName, keyAttr, err := s.resolveIndex(spec.Index)
	if err != nil {
		return nil, "", err
	}

	keyCond := expression.Key(keyAttr).Equal(expression.Value(spec.KeyValue))
	if spec.DataPrefix != "" {
		keyCond = keyCond.And(expression.Key("data").BeginsWith(spec.DataPrefix))
	}

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, "", fmt.Errorf("failed to build expression: %w", err)
	}

	input := &awsdynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		IndexName:                 aws.String(indexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(spec.Forward),
	}
	if spec.PageSize > 0 {
		input.Limit = aws.Int32(spec.PageSize)
	}
	if spec.Token != "" {
		startKey, err := decodeToken(spec.Token)
		if err != nil {
			return nil, "", apperrors.NewValidationError("invalid continuation token")
		}
		input.ExclusiveStartKey = startKey
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, "", s.translate("query", err)
	}

	nextToken, err := encodeToken(out.LastEvaluatedKey)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode continuation token: %w", err)
	}
	return out.Items, nextToken, nil
}

func (s *Store) resolveIndex(index string) (name, keyAttr string, err error) {
	switch index {
	case IndexBelongsTo:
		return s.gsi1, "gsi1pk", nil
	case IndexByType:
		return s.gsi2, "gsi2pk", nil
	default:
		return "", "", fmt.Errorf("unknown index selector %q", index)
	}
}

// Continuation tokens are the base64-encoded JSON form of the last
// evaluated key. All key attributes in this table are strings, so the
// round-trip through a plain string map is lossless.
func encodeToken(lastKey Item) (string, error) {
	if len(lastKey) == 0 {
		return "", nil
	}
	plain := make(map[string]string, len(lastKey))
	for name, av := range lastKey {
		str, ok := av.(*types.AttributeValueMemberS)
		if !ok {
			return "", fmt.Errorf("unexpected key attribute type for %q", name)
		}
		plain[name] = str.Value
	}
	raw, err := json.Marshal(plain)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeToken(token string) (Item, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	var plain map[string]string
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, err
	}
	key := make(Item, len(plain))
	for name, value := range plain {
		key[name] = &types.AttributeValueMemberS{Value: value}
	}
	return key, nil
}
