package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const ordersCollection = "orders"

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

type mongoItem struct {
	ProductID string               `bson:"product_id"`
	Name      string               `bson:"name"`
	UnitPrice primitive.Decimal128 `bson:"unit_price"`
	Quantity  int                  `bson:"quantity"`
	Image     string               `bson:"image"`
}

type mongoReceipt struct {
	Gateway       string    `bson:"gateway"`
	TransactionID string    `bson:"transaction_id"`
	Status        string    `bson:"status"`
	PayerEmail    string    `bson:"payer_email,omitempty"`
	ConfirmedAt   time.Time `bson:"confirmed_at"`
}

type mongoAddress struct {
	FirstName string `bson:"first_name"`
	LastName  string `bson:"last_name"`
	Address   string `bson:"address"`
	City      string `bson:"city"`
	State     string `bson:"state,omitempty"`
	ZipCode   string `bson:"zip_code"`
	Country   string `bson:"country"`
	Phone     string `bson:"phone,omitempty"`
	Email     string `bson:"email,omitempty"`
}

type mongoOrder struct {
	ID              string               `bson:"_id"`
	UserID          string               `bson:"user_id"`
	CustomerEmail   string               `bson:"customer_email"`
	CustomerName    string               `bson:"customer_name,omitempty"`
	Items           []mongoItem          `bson:"items"`
	ItemsTotal      primitive.Decimal128 `bson:"items_total"`
	ShippingTotal   primitive.Decimal128 `bson:"shipping_total"`
	TaxTotal        primitive.Decimal128 `bson:"tax_total"`
	GrandTotal      primitive.Decimal128 `bson:"grand_total"`
	ShippingAddress mongoAddress         `bson:"shipping_address"`
	PaymentMethod   string               `bson:"payment_method"`
	Status          string               `bson:"status"`
	IsPaid          bool                 `bson:"is_paid"`
	PaidAt          *time.Time           `bson:"paid_at,omitempty"`
	PaymentReceipt  *mongoReceipt        `bson:"payment_receipt,omitempty"`
	ShippedAt       *time.Time           `bson:"shipped_at,omitempty"`
	DeliveredAt     *time.Time           `bson:"delivered_at,omitempty"`
	CancelledAt     *time.Time           `bson:"cancelled_at,omitempty"`
	CreatedAt       time.Time            `bson:"created_at"`
	UpdatedAt       time.Time            `bson:"updated_at"`
}

// MongoOrderStore stores one document per order.
type MongoOrderStore struct {
	collection *mongo.Collection
}

func NewMongoOrderStore(db *mongo.Database) *MongoOrderStore {
	return &MongoOrderStore{collection: db.Collection(ordersCollection)}
}

// EnsureIndexes creates the indexes the list queries rely on.
func (s *MongoOrderStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create order indexes: %w", err)
	}
	return nil
}

func (s *MongoOrderStore) Create(ctx context.Context, o *order.Order) error {
	doc, err := toMongoOrder(o)
	if err != nil {
		return err
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (s *MongoOrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	var doc mongoOrder
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return fromMongoOrder(&doc)
}

func (s *MongoOrderStore) ListByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	return s.find(ctx, bson.M{"user_id": userID})
}

func (s *MongoOrderStore) ListAll(ctx context.Context) ([]*order.Order, error) {
	return s.find(ctx, bson.M{})
}

func (s *MongoOrderStore) MarkPaid(ctx context.Context, id string, receipt order.PaymentReceipt, paidAt time.Time) (bool, error) {
	filter := bson.M{"_id": id, "is_paid": false}
	update := bson.M{
		"$set": bson.M{
			"is_paid":         true,
			"paid_at":         paidAt,
			"payment_receipt": toMongoReceipt(receipt),
			"updated_at":      paidAt,
		},
	}

	res, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to mark order paid: %w", err)
	}
	return s.applied(ctx, id, res)
}

func (s *MongoOrderStore) UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) (bool, error) {
	set := bson.M{
		"status":     string(to),
		"updated_at": at,
	}
	if field := statusTimestampField(to); field != "" {
		set[field] = at
	}

	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": id, "status": string(from)}, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	return s.applied(ctx, id, res)
}

func (s *MongoOrderStore) applied(ctx context.Context, id string, res *mongo.UpdateResult) (bool, error) {
	if res.MatchedCount > 0 {
		return true, nil
	}
	n, err := s.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to check order: %w", err)
	}
	if n == 0 {
		return false, order.ErrOrderNotFound
	}
	return false, nil
}

func (s *MongoOrderStore) find(ctx context.Context, filter bson.M) ([]*order.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer cursor.Close(ctx)

	orders := make([]*order.Order, 0)
	for cursor.Next(ctx) {
		var doc mongoOrder
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode order: %w", err)
		}
		o, err := fromMongoOrder(&doc)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, cursor.Err()
}

func statusTimestampField(s order.Status) string {
	switch s {
	case order.StatusShipped:
		return "shipped_at"
	case order.StatusDelivered:
		return "delivered_at"
	case order.StatusCancelled:
		return "cancelled_at"
	}
	return ""
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.StringFixed(2))
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("encode amount %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode amount %s: %w", v, err)
	}
	return d, nil
}

func toMongoReceipt(r order.PaymentReceipt) *mongoReceipt {
	return &mongoReceipt{
		Gateway:       r.Gateway,
		TransactionID: r.TransactionID,
		Status:        r.Status,
		PayerEmail:    r.PayerEmail,
		ConfirmedAt:   r.ConfirmedAt,
	}
}

func toMongoOrder(o *order.Order) (*mongoOrder, error) {
	doc := &mongoOrder{
		ID:              o.ID,
		UserID:          o.UserID,
		CustomerEmail:   o.Customer.Email,
		CustomerName:    o.Customer.Name,
		Items:           make([]mongoItem, 0, len(o.Items)),
		ShippingAddress: mongoAddress(o.ShippingAddress),
		PaymentMethod:   o.PaymentMethod,
		Status:          string(o.Status),
		IsPaid:          o.IsPaid,
		PaidAt:          o.PaidAt,
		ShippedAt:       o.ShippedAt,
		DeliveredAt:     o.DeliveredAt,
		CancelledAt:     o.CancelledAt,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.PaymentReceipt != nil {
		doc.PaymentReceipt = toMongoReceipt(*o.PaymentReceipt)
	}

	for _, item := range o.Items {
		price, err := toDecimal128(item.UnitPrice)
		if err != nil {
			return nil, err
		}
		doc.Items = append(doc.Items, mongoItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: price,
			Quantity:  item.Quantity,
			Image:     item.Image,
		})
	}

	var err error
	if doc.ItemsTotal, err = toDecimal128(o.Pricing.ItemsTotal); err != nil {
		return nil, err
	}
	if doc.ShippingTotal, err = toDecimal128(o.Pricing.ShippingTotal); err != nil {
		return nil, err
	}
	if doc.TaxTotal, err = toDecimal128(o.Pricing.TaxTotal); err != nil {
		return nil, err
	}
	if doc.GrandTotal, err = toDecimal128(o.Pricing.GrandTotal); err != nil {
		return nil, err
	}
	return doc, nil
}

func fromMongoOrder(doc *mongoOrder) (*order.Order, error) {
	o := &order.Order{
		ID:              doc.ID,
		UserID:          doc.UserID,
		Customer:        order.Customer{Email: doc.CustomerEmail, Name: doc.CustomerName},
		Items:           make([]order.Item, 0, len(doc.Items)),
		ShippingAddress: order.ShippingAddress(doc.ShippingAddress),
		PaymentMethod:   doc.PaymentMethod,
		Status:          order.Status(doc.Status),
		IsPaid:          doc.IsPaid,
		PaidAt:          doc.PaidAt,
		ShippedAt:       doc.ShippedAt,
		DeliveredAt:     doc.DeliveredAt,
		CancelledAt:     doc.CancelledAt,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
	if r := doc.PaymentReceipt; r != nil {
		o.PaymentReceipt = &order.PaymentReceipt{
			Gateway:       r.Gateway,
			TransactionID: r.TransactionID,
			Status:        r.Status,
			PayerEmail:    r.PayerEmail,
			ConfirmedAt:   r.ConfirmedAt,
		}
	}

	for _, item := range doc.Items {
		price, err := fromDecimal128(item.UnitPrice)
		if err != nil {
			return nil, err
		}
		o.Items = append(o.Items, order.Item{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: price,
			Quantity:  item.Quantity,
			Image:     item.Image,
		})
	}

	var err error
	if o.Pricing.ShippingTotal, err = fromDecimal128(doc.ShippingTotal); err != nil {
		return nil, err
	}
	if o.Pricing.TaxTotal, err = fromDecimal128(doc.TaxTotal); err != nil {
		return nil, err
	}
	o.RecomputeTotals()
	return o, nil
}
