package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/aws"
)

// Store is the order record contract shared by every stage.
type Store interface {
	Create(ctx context.Context, order Order) error
	Update(ctx context.Context, orderID string, fields Fields, ts time.Time) error
	Advance(ctx context.Context, orderID, to string, fields Fields, ts time.Time) error
	Get(ctx context.Context, orderID string) (*Order, error)
}

// DynamoStore encapsulates operations on the orders table.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewDynamoStore creates a new orders store backed by DynamoDB.
func NewDynamoStore(client aws.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Create writes a new order. Fails with ErrAlreadyExists if order_id is taken.
func (s *DynamoStore) Create(ctx context.Context, order Order) error {
	now := s.nowFunc().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns ErrNotFound if absent.
func (s *DynamoStore) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// Update merges fields into the order (last writer wins per attribute) and
// refreshes updated_at. It never creates a record.
func (s *DynamoStore) Update(ctx context.Context, orderID string, fields Fields, ts time.Time) error {
	b, err := newUpdateBuilder(fields, ts)
	if err != nil {
		return err
	}
	input := b.input(s.tableName, orderID, "attribute_exists(order_id)")

	_, err = s.client.UpdateItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// Advance sets status to `to` together with fields, provided the stored
// status may move there (see CanTransition). Returns ErrNotFound or a
// *TransitionError when the condition fails.
func (s *DynamoStore) Advance(ctx context.Context, orderID, to string, fields Fields, ts time.Time) error {
	b, err := newUpdateBuilder(fields, ts)
	if err != nil {
		return err
	}
	b.names["#s"] = "status"
	b.values[":to"] = &types.AttributeValueMemberS{Value: to}
	b.sets = append(b.sets, "#s = :to")

	preds := Predecessors(to)
	placeholders := make([]string, 0, len(preds))
	for i, p := range preds {
		ph := fmt.Sprintf(":from%d", i)
		b.values[ph] = &types.AttributeValueMemberS{Value: p}
		placeholders = append(placeholders, ph)
	}
	cond := fmt.Sprintf("attribute_exists(order_id) AND #s IN (%s)", strings.Join(placeholders, ", "))

	input := b.input(s.tableName, orderID, cond)
	input.ReturnValuesOnConditionCheckFailure = types.ReturnValuesOnConditionCheckFailureAllOld

	_, err = s.client.UpdateItem(ctx, input)
	if err == nil {
		return nil
	}
	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return fmt.Errorf("update item: %w", err)
	}
	if len(ccf.Item) == 0 {
		return ErrNotFound
	}
	var current Order
	if err := attributevalue.UnmarshalMap(ccf.Item, &current); err != nil {
		return fmt.Errorf("unmarshal rejected order: %w", err)
	}
	return &TransitionError{OrderID: orderID, From: current.Status, To: to}
}

type updateBuilder struct {
	sets   []string
	names  map[string]string
	values map[string]types.AttributeValue
}

func newUpdateBuilder(fields Fields, ts time.Time) (*updateBuilder, error) {
	b := &updateBuilder{
		names:  map[string]string{"#ua": "updated_at"},
		values: map[string]types.AttributeValue{},
	}

	ua, err := attributevalue.Marshal(ts.UTC())
	if err != nil {
		return nil, fmt.Errorf("marshal updated_at: %w", err)
	}
	b.values[":ua"] = ua
	b.sets = append(b.sets, "#ua = :ua")

	attrs := fields.attributes()
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		av, err := attributevalue.Marshal(attrs[k])
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", k, err)
		}
		name, val := fmt.Sprintf("#f%d", i), fmt.Sprintf(":f%d", i)
		b.names[name] = k
		b.values[val] = av
		b.sets = append(b.sets, name+" = "+val)
	}
	return b, nil
}

func (b *updateBuilder) input(table, orderID, condition string) *dyn.UpdateItemInput {
	return &dyn.UpdateItemInput{
		TableName:                 &table,
		Key:                       orderKey(orderID),
		UpdateExpression:          awsString("SET " + strings.Join(b.sets, ", ")),
		ConditionExpression:       awsString(condition),
		ExpressionAttributeNames:  b.names,
		ExpressionAttributeValues: b.values,
	}
}

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
