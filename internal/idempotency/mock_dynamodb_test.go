package idempotency

import (
	"context"
	"errors"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// simpleMock is a very small in-memory mock for PutItem/GetItem/UpdateItem used in unit tests.
// It understands exactly the expressions Store issues.
type simpleMock struct {
	mu          sync.Mutex
	table       map[string]map[string]types.AttributeValue
	putCalls    int
	getCalls    int
	updateCalls int
	failErr     error
}

func newSimpleMock() *simpleMock {
	return &simpleMock{
		table: map[string]map[string]types.AttributeValue{},
	}
}

func (m *simpleMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if m.failErr != nil {
		return nil, m.failErr
	}
	keyAttr, ok := params.Item["idempotency_key"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("missing key")
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(idempotency_key)" {
		if _, exists := m.table[keyAttr.Value]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.table[keyAttr.Value] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *simpleMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.failErr != nil {
		return nil, m.failErr
	}
	keyAttr, ok := params.Key["idempotency_key"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("missing key")
	}
	item, ok := m.table[keyAttr.Value]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

// value placeholder -> attribute it sets
var setTargets = map[string]string{
	":done":       "status",
	":failed":     "status",
	":inprogress": "status",
	":oid":        "order_id",
	":rb":         "response_body",
	":rs":         "response_status",
	":ua":         "updated_at",
	":ea":         "expires_at",
	":n":          "note",
}

func (m *simpleMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.failErr != nil {
		return nil, m.failErr
	}
	keyAttr, ok := params.Key["idempotency_key"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("missing key")
	}
	item, ok := m.table[keyAttr.Value]
	if !ok {
		return nil, errors.New("item not found")
	}

	values := params.ExpressionAttributeValues
	if params.ConditionExpression != nil && *params.ConditionExpression == "#s = :failed" {
		st, _ := item["status"].(*types.AttributeValueMemberS)
		if st == nil || st.Value != StatusFailed {
			return nil, &types.ConditionalCheckFailedException{}
		}
		// :failed is the condition operand here, not a SET value
		values = copyWithout(values, ":failed")
	}
	for placeholder, v := range values {
		if attr, ok := setTargets[placeholder]; ok {
			item[attr] = v
		}
	}
	m.table[keyAttr.Value] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func copyWithout(in map[string]types.AttributeValue, drop string) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(in))
	for k, v := range in {
		if k != drop {
			out[k] = v
		}
	}
	return out
}
