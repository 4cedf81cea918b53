package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/example/storefront-orders/internal/domain/order"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoOrderStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// dynamoOrder represents the DynamoDB item structure. Immutable parts of the
// order are stored as JSON strings; fields touched by conditional updates
// are top-level attributes.
type dynamoOrder struct {
	ID              string `dynamodbav:"id"`
	UserID          string `dynamodbav:"user_id"`
	Customer        string `dynamodbav:"customer"`
	Items           string `dynamodbav:"items"`
	Pricing         string `dynamodbav:"pricing"`
	ShippingAddress string `dynamodbav:"shipping_address"`
	PaymentMethod   string `dynamodbav:"payment_method"`
	Status          string `dynamodbav:"status"`
	IsPaid          bool   `dynamodbav:"is_paid"`
	PaidAt          string `dynamodbav:"paid_at,omitempty"`
	PaymentReceipt  string `dynamodbav:"payment_receipt,omitempty"`
	ShippedAt       string `dynamodbav:"shipped_at,omitempty"`
	DeliveredAt     string `dynamodbav:"delivered_at,omitempty"`
	CancelledAt     string `dynamodbav:"cancelled_at,omitempty"`
	CreatedAt       string `dynamodbav:"created_at"`
	UpdatedAt       string `dynamodbav:"updated_at"`
}

// DynamoOrderStore stores orders in a DynamoDB table keyed by id, with a
// global secondary index on user_id for per-user listing.
type DynamoOrderStore struct {
	client    DynamoAPI
	tableName string
	userIndex string
}

func NewDynamoOrderStore(client DynamoAPI, tableName, userIndex string) *DynamoOrderStore {
	return &DynamoOrderStore{
		client:    client,
		tableName: tableName,
		userIndex: userIndex,
	}
}

func (s *DynamoOrderStore) Create(ctx context.Context, o *order.Order) error {
	item, err := toDynamoOrder(o)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("failed to put order: %w", err)
	}
	return nil
}

func (s *DynamoOrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, order.ErrOrderNotFound
	}
	return unmarshalDynamoOrder(out.Item)
}

func (s *DynamoOrderStore) ListByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	orders := make([]*order.Order, 0)
	var startKey map[string]types.AttributeValue

	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			IndexName:              aws.String(s.userIndex),
			KeyConditionExpression: aws.String("user_id = :uid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uid": &types.AttributeValueMemberS{Value: userID},
			},
			ScanIndexForward:  aws.Bool(false),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query orders: %w", err)
		}
		if err := appendDynamoOrders(&orders, out.Items); err != nil {
			return nil, err
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	sortNewestFirst(orders)
	return orders, nil
}

func (s *DynamoOrderStore) ListAll(ctx context.Context) ([]*order.Order, error) {
	orders := make([]*order.Order, 0)
	var startKey map[string]types.AttributeValue

	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.tableName),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan orders: %w", err)
		}
		if err := appendDynamoOrders(&orders, out.Items); err != nil {
			return nil, err
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	sortNewestFirst(orders)
	return orders, nil
}

func (s *DynamoOrderStore) MarkPaid(ctx context.Context, id string, receipt order.PaymentReceipt, paidAt time.Time) (bool, error) {
	data, err := json.Marshal(receipt)
	if err != nil {
		return false, err
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 s.key(id),
		UpdateExpression:    aws.String("SET is_paid = :true, paid_at = :paid_at, payment_receipt = :receipt, updated_at = :paid_at"),
		ConditionExpression: aws.String("attribute_exists(id) AND is_paid = :false"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true":    &types.AttributeValueMemberBOOL{Value: true},
			":false":   &types.AttributeValueMemberBOOL{Value: false},
			":paid_at": &types.AttributeValueMemberS{Value: formatTime(paidAt)},
			":receipt": &types.AttributeValueMemberS{Value: string(data)},
		},
	})
	return s.applied(ctx, id, err)
}

func (s *DynamoOrderStore) UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) (bool, error) {
	update := "SET #status = :to, updated_at = :at"
	if field := statusTimestampField(to); field != "" {
		update += ", " + field + " = :at"
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.tableName),
		Key:                      s.key(id),
		UpdateExpression:         aws.String(update),
		ConditionExpression:      aws.String("attribute_exists(id) AND #status = :from"),
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":from": &types.AttributeValueMemberS{Value: string(from)},
			":to":   &types.AttributeValueMemberS{Value: string(to)},
			":at":   &types.AttributeValueMemberS{Value: formatTime(at)},
		},
	})
	return s.applied(ctx, id, err)
}

// applied turns a conditional-check failure into applied=false, or
// ErrOrderNotFound when the order does not exist at all.
func (s *DynamoOrderStore) applied(ctx context.Context, id string, err error) (bool, error) {
	if err == nil {
		return true, nil
	}

	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return false, fmt.Errorf("failed to update order: %w", err)
	}

	if _, err := s.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *DynamoOrderStore) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func appendDynamoOrders(dst *[]*order.Order, items []map[string]types.AttributeValue) error {
	for _, item := range items {
		o, err := unmarshalDynamoOrder(item)
		if err != nil {
			return err
		}
		*dst = append(*dst, o)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTimePtr(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func toDynamoOrder(o *order.Order) (*dynamoOrder, error) {
	customer, err := json.Marshal(o.Customer)
	if err != nil {
		return nil, err
	}
	items, err := json.Marshal(o.Items)
	if err != nil {
		return nil, err
	}
	pricing, err := json.Marshal(o.Pricing)
	if err != nil {
		return nil, err
	}
	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return nil, err
	}

	item := &dynamoOrder{
		ID:              o.ID,
		UserID:          o.UserID,
		Customer:        string(customer),
		Items:           string(items),
		Pricing:         string(pricing),
		ShippingAddress: string(address),
		PaymentMethod:   o.PaymentMethod,
		Status:          string(o.Status),
		IsPaid:          o.IsPaid,
		PaidAt:          formatTimePtr(o.PaidAt),
		ShippedAt:       formatTimePtr(o.ShippedAt),
		DeliveredAt:     formatTimePtr(o.DeliveredAt),
		CancelledAt:     formatTimePtr(o.CancelledAt),
		CreatedAt:       formatTime(o.CreatedAt),
		UpdatedAt:       formatTime(o.UpdatedAt),
	}
	if o.PaymentReceipt != nil {
		receipt, err := json.Marshal(o.PaymentReceipt)
		if err != nil {
			return nil, err
		}
		item.PaymentReceipt = string(receipt)
	}
	return item, nil
}

func unmarshalDynamoOrder(av map[string]types.AttributeValue) (*order.Order, error) {
	var item dynamoOrder
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}

	o := &order.Order{
		ID:            item.ID,
		UserID:        item.UserID,
		PaymentMethod: item.PaymentMethod,
		Status:        order.Status(item.Status),
		IsPaid:        item.IsPaid,
	}

	if err := json.Unmarshal([]byte(item.Customer), &o.Customer); err != nil {
		return nil, fmt.Errorf("decode customer: %w", err)
	}
	if err := json.Unmarshal([]byte(item.Items), &o.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if err := json.Unmarshal([]byte(item.Pricing), &o.Pricing); err != nil {
		return nil, fmt.Errorf("decode pricing: %w", err)
	}
	if err := json.Unmarshal([]byte(item.ShippingAddress), &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("decode shipping address: %w", err)
	}
	if item.PaymentReceipt != "" {
		var r order.PaymentReceipt
		if err := json.Unmarshal([]byte(item.PaymentReceipt), &r); err != nil {
			return nil, fmt.Errorf("decode payment receipt: %w", err)
		}
		o.PaymentReceipt = &r
	}

	var err error
	if o.CreatedAt, err = time.Parse(time.RFC3339Nano, item.CreatedAt); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if o.UpdatedAt, err = time.Parse(time.RFC3339Nano, item.UpdatedAt); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	if o.PaidAt, err = parseTimePtr(item.PaidAt); err != nil {
		return nil, fmt.Errorf("decode paid_at: %w", err)
	}
	if o.ShippedAt, err = parseTimePtr(item.ShippedAt); err != nil {
		return nil, fmt.Errorf("decode shipped_at: %w", err)
	}
	if o.DeliveredAt, err = parseTimePtr(item.DeliveredAt); err != nil {
		return nil, fmt.Errorf("decode delivered_at: %w", err)
	}
	if o.CancelledAt, err = parseTimePtr(item.CancelledAt); err != nil {
		return nil, fmt.Errorf("decode cancelled_at: %w", err)
	}

	o.RecomputeTotals()
	return o, nil
}
