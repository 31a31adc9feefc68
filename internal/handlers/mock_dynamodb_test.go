package handlers

import (
	"context"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// idempotencyTable fakes the three calls idempotency.Store makes.
type idempotencyTable struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newIdempotencyTable() *idempotencyTable {
	return &idempotencyTable{items: map[string]map[string]types.AttributeValue{}}
}

func keyOf(m map[string]types.AttributeValue) string {
	if v, ok := m["idempotency_key"].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (t *idempotencyTable) PutItem(_ context.Context, in *dyn.PutItemInput, _ ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := keyOf(in.Item)
	if _, ok := t.items[k]; ok && in.ConditionExpression != nil {
		return nil, &types.ConditionalCheckFailedException{}
	}
	t.items[k] = in.Item
	return &dyn.PutItemOutput{}, nil
}

func (t *idempotencyTable) GetItem(_ context.Context, in *dyn.GetItemInput, _ ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &dyn.GetItemOutput{Item: t.items[keyOf(in.Key)]}, nil
}

func (t *idempotencyTable) UpdateItem(_ context.Context, in *dyn.UpdateItemInput, _ ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	item := t.items[keyOf(in.Key)]
	vals := in.ExpressionAttributeValues
	if in.ConditionExpression != nil {
		// Reclaim: only a FAILED record moves back to IN_PROGRESS
		st, _ := item["status"].(*types.AttributeValueMemberS)
		if st == nil || st.Value != "FAILED" {
			return nil, &types.ConditionalCheckFailedException{}
		}
		item["status"] = vals[":inprogress"]
		return &dyn.UpdateItemOutput{}, nil
	}
	for placeholder, attr := range map[string]string{
		":done": "status", ":failed": "status", ":oid": "order_id",
		":rb": "response_body", ":rs": "response_status", ":n": "note",
	} {
		if v, ok := vals[placeholder]; ok {
			item[attr] = v
		}
	}
	return &dyn.UpdateItemOutput{}, nil
}
