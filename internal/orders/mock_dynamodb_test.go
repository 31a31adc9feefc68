package orders

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo is a small in-memory table keyed by order_id. It understands
// only the expressions DynamoStore emits: SET lists, attribute_exists,
// attribute_not_exists and "#s IN (...)".
type mockDynamo struct {
	mu      sync.Mutex
	items   map[string]map[string]types.AttributeValue
	failErr error
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{items: map[string]map[string]types.AttributeValue{}}
}

var inClause = regexp.MustCompile(`#s IN \(([^)]*)\)`)

func pk(key map[string]types.AttributeValue) string {
	if v, ok := key["order_id"].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	k := pk(params.Item)
	if k == "" {
		return nil, errors.New("no primary key in put item")
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(order_id)" {
		if _, exists := m.items[k]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.items[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	item, ok := m.items[pk(params.Key)]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	k := pk(params.Key)
	item, exists := m.items[k]

	if params.ConditionExpression != nil {
		cond := *params.ConditionExpression
		if strings.Contains(cond, "attribute_exists(order_id)") && !exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
		if match := inClause.FindStringSubmatch(cond); match != nil {
			current, _ := item["status"].(*types.AttributeValueMemberS)
			allowed := false
			for _, ph := range strings.Split(match[1], ",") {
				v := params.ExpressionAttributeValues[strings.TrimSpace(ph)].(*types.AttributeValueMemberS)
				if current != nil && current.Value == v.Value {
					allowed = true
				}
			}
			if !allowed {
				ccf := &types.ConditionalCheckFailedException{}
				if params.ReturnValuesOnConditionCheckFailure == types.ReturnValuesOnConditionCheckFailureAllOld {
					ccf.Item = item
				}
				return nil, ccf
			}
		}
	}
	if !exists {
		item = map[string]types.AttributeValue{"order_id": params.Key["order_id"]}
	}

	updated := make(map[string]types.AttributeValue, len(item))
	for ak, av := range item {
		updated[ak] = av
	}
	expr := strings.TrimPrefix(*params.UpdateExpression, "SET ")
	for _, assignment := range strings.Split(expr, ", ") {
		parts := strings.SplitN(assignment, " = ", 2)
		name := parts[0]
		if strings.HasPrefix(name, "#") {
			name = params.ExpressionAttributeNames[name]
		}
		updated[name] = params.ExpressionAttributeValues[parts[1]]
	}
	m.items[k] = updated
	return &dyn.UpdateItemOutput{Attributes: updated}, nil
}
