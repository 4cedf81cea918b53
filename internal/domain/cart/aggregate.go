package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/storefront-orders/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MaxQuantity caps the units of a single product in one cart.
const MaxQuantity = 10_000

var (
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be a positive integer", domain.ErrValidation)
	ErrQuantityLimit   = fmt.Errorf("%w: at most %d units per product", ErrInvalidQuantity, MaxQuantity)
	ErrInvalidItem     = fmt.Errorf("%w: cart item is incomplete", domain.ErrValidation)
	ErrItemNotFound    = fmt.Errorf("item %w in cart", domain.ErrNotFound)

	// ErrCacheMiss is returned by a Store when no cart is stored for the user.
	ErrCacheMiss = errors.New("cart: cache miss")
)

type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Image     string          `json:"image"`
	Quantity  int             `json:"quantity"`
}

func (i Item) validate() error {
	var missing []string
	if strings.TrimSpace(i.ProductID) == "" {
		missing = append(missing, "product_id")
	}
	if strings.TrimSpace(i.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(i.Image) == "" {
		missing = append(missing, "image")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidItem, strings.Join(missing, ", "))
	}
	if i.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidItem)
	}
	return nil
}

// Cart keeps items in insertion order so checkout produces a stable line
// item sequence.
type Cart struct {
	UserID    string          `json:"user_id"`
	Items     []Item          `json:"items"`
	Total     decimal.Decimal `json:"total"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func newCart(userID string) *Cart {
	return &Cart{UserID: userID, Items: []Item{}, Total: decimal.Zero}
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c *Cart) indexOf(productID string) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// recalculate derives Total from the items; it is the only writer of Total.
func (c *Cart) recalculate() {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	c.Total = total.Round(2)
}

// Store persists carts keyed by user. Implementations are expected to
// expire idle carts.
type Store interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	Set(ctx context.Context, userID string, cart *Cart) error
	Delete(ctx context.Context, userID string) error
}

type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Get returns the user's cart, or an empty one. It never fails: a store
// read error is logged and treated as an empty cart.
func (s *Service) Get(ctx context.Context, userID string) *Cart {
	c, err := s.load(ctx, userID)
	if err != nil {
		s.logger.Warn("cart read failed, returning empty cart",
			zap.String("user_id", userID), zap.Error(err))
		return newCart(userID)
	}
	return c
}

// Add puts quantity units of item in the cart, summing with any existing
// line for the same product.
func (s *Service) Add(ctx context.Context, userID string, item Item, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	if quantity > MaxQuantity {
		return nil, ErrQuantityLimit
	}
	if err := item.validate(); err != nil {
		return nil, err
	}

	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if i := c.indexOf(item.ProductID); i >= 0 {
		if c.Items[i].Quantity > MaxQuantity-quantity {
			return nil, ErrQuantityLimit
		}
		c.Items[i].Quantity += quantity
	} else {
		item.Quantity = quantity
		c.Items = append(c.Items, item)
	}

	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SetQuantity replaces the quantity of a line; zero removes it.
func (s *Service) SetQuantity(ctx context.Context, userID, productID string, quantity int) (*Cart, error) {
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	if quantity > MaxQuantity {
		return nil, ErrQuantityLimit
	}

	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	i := c.indexOf(productID)
	if i < 0 {
		return nil, ErrItemNotFound
	}
	if quantity == 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	} else {
		c.Items[i].Quantity = quantity
	}

	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Remove is idempotent: removing an absent product is not an error.
func (s *Service) Remove(ctx context.Context, userID, productID string) (*Cart, error) {
	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	i := c.indexOf(productID)
	if i < 0 {
		return c, nil
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)

	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (s *Service) load(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.store.Get(ctx, userID)
	if errors.Is(err, ErrCacheMiss) {
		return newCart(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if c.Items == nil {
		c.Items = []Item{}
	}
	c.UserID = userID
	c.recalculate()
	return c, nil
}

func (s *Service) save(ctx context.Context, c *Cart) error {
	c.recalculate()
	c.UpdatedAt = s.now()
	if err := s.store.Set(ctx, c.UserID, c); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}
