package dynamodb

import (
	"context"

	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeClient implements Client for tests. It records every input and
// serves canned outputs, so tests can assert the exact shape of the
// requests the store emits.
type fakeClient struct {
	items      map[string]Item // pk -> item served by GetItem
	queryPages []*awsdynamodb.QueryOutput

	getInputs      []*awsdynamodb.GetItemInput
	putInputs      []*awsdynamodb.PutItemInput
	updateInputs   []*awsdynamodb.UpdateItemInput
	deleteInputs   []*awsdynamodb.DeleteItemInput
	queryInputs    []*awsdynamodb.QueryInput
	transactInputs []*awsdynamodb.TransactWriteItemsInput

	getErr      error
	putErr      error
	updateErr   error
	deleteErr   error
	queryErr    error
	transactErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{items: map[string]Item{}}
}

func (f *fakeClient) GetItem(ctx context.Context, params *awsdynamodb.GetItemInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.GetItemOutput, error) {
	f.getInputs = append(f.getInputs, params)
	if f.getErr != nil {
		return nil, f.getErr
	}
	pk := params.Key["pk"].(*types.AttributeValueMemberS).Value
	item, ok := f.items[pk]
	if !ok {
		return &awsdynamodb.GetItemOutput{}, nil
	}
	return &awsdynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeClient) PutItem(ctx context.Context, params *awsdynamodb.PutItemInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.PutItemOutput, error) {
	f.putInputs = append(f.putInputs, params)
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &awsdynamodb.PutItemOutput{}, nil
}

func (f *fakeClient) UpdateItem(ctx context.Context, params *awsdynamodb.UpdateItemInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.UpdateItemOutput, error) {
	f.updateInputs = append(f.updateInputs, params)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &awsdynamodb.UpdateItemOutput{}, nil
}

func (f *fakeClient) DeleteItem(ctx context.Context, params *awsdynamodb.DeleteItemInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.DeleteItemOutput, error) {
	f.deleteInputs = append(f.deleteInputs, params)
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	return &awsdynamodb.DeleteItemOutput{}, nil
}

func (f *fakeClient) Query(ctx context.Context, params *awsdynamodb.QueryInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.QueryOutput, error) {
	f.queryInputs = append(f.queryInputs, params)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if len(f.queryPages) == 0 {
		return &awsdynamodb.QueryOutput{}, nil
	}
	page := f.queryPages[0]
	f.queryPages = f.queryPages[1:]
	return page, nil
}

func (f *fakeClient) TransactWriteItems(ctx context.Context, params *awsdynamodb.TransactWriteItemsInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.TransactWriteItemsOutput, error) {
	f.transactInputs = append(f.transactInputs, params)
	if f.transactErr != nil {
		return nil, f.transactErr
	}
	return &awsdynamodb.TransactWriteItemsOutput{}, nil
}
