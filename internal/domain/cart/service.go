package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/krishna-marketing/grocer/internal/domain/catalog"
	"github.com/krishna-marketing/grocer/internal/domain/coupon"
	"github.com/krishna-marketing/grocer/internal/domain/txn"
)

// ProductSource loads catalog products.
type ProductSource interface {
	Get(ctx context.Context, idOrSlug string) (*catalog.Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]catalog.Product, error)
}

// CouponEvaluator checks a coupon without consuming it.
type CouponEvaluator interface {
	Evaluate(ctx context.Context, code, userID string, amount decimal.Decimal) (*coupon.Result, error)
}

// VariantChoice selects a product variant by name and value.
type VariantChoice struct {
	Name  string
	Value string
}

// AddItemRequest holds the input for adding a product to a cart.
type AddItemRequest struct {
	ProductID string
	Quantity  int
	Variant   *VariantChoice
}

// Service implements cart use cases. Every mutation locks the cart row for
// its duration.
type Service struct {
	carts    Repository
	products ProductSource
	coupons  CouponEvaluator
	tx       txn.Runner
}

func NewService(carts Repository, products ProductSource, coupons CouponEvaluator, tx txn.Runner) *Service {
	return &Service{carts: carts, products: products, coupons: coupons, tx: tx}
}

// Get returns the cart with products attached.
func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if err := s.attachProducts(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddItem adds a product, merging with an existing line for the same product
// and variant.
func (s *Service) AddItem(ctx context.Context, userID string, req AddItemRequest) (*Cart, error) {
	if req.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	return s.mutate(ctx, userID, func(ctx context.Context, c *Cart) error {
		p, err := s.products.Get(ctx, req.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				return catalog.ErrUnavailable
			}
			return errors.Wrap(err, "get product")
		}

		price := p.Price
		var variant *VariantRef
		if req.Variant != nil {
			v, ok := p.FindVariant(req.Variant.Name, req.Variant.Value)
			if !ok {
				return ErrVariantNotFound
			}
			variant = &VariantRef{Name: v.Name, Value: v.Value, Price: v.Price}
			price = v.Price
		}

		for i := range c.Items {
			it := &c.Items[i]
			if it.ProductID != p.ID || !SameVariant(it.Variant, variant) {
				continue
			}
			if err := p.Reserve(it.Quantity + req.Quantity); err != nil {
				return err
			}
			it.Quantity += req.Quantity
			return nil
		}

		if err := p.Reserve(req.Quantity); err != nil {
			return err
		}
		c.Items = append(c.Items, Item{
			ID:        uuid.NewString(),
			ProductID: p.ID,
			Variant:   variant,
			Quantity:  req.Quantity,
			Price:     price,
		})
		return nil
	})
}

// UpdateItem sets a line's quantity. A quantity of zero or less removes it.
func (s *Service) UpdateItem(ctx context.Context, userID, itemID string, quantity int) (*Cart, error) {
	return s.mutate(ctx, userID, func(ctx context.Context, c *Cart) error {
		i := c.find(itemID)
		if i < 0 {
			return ErrItemNotFound
		}
		if quantity <= 0 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return nil
		}
		p, err := s.products.Get(ctx, c.Items[i].ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				return catalog.ErrUnavailable
			}
			return errors.Wrap(err, "get product")
		}
		if err := p.Reserve(quantity); err != nil {
			return err
		}
		c.Items[i].Quantity = quantity
		return nil
	})
}

func (s *Service) RemoveItem(ctx context.Context, userID, itemID string) (*Cart, error) {
	return s.mutate(ctx, userID, func(_ context.Context, c *Cart) error {
		i := c.find(itemID)
		if i < 0 {
			return ErrItemNotFound
		}
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return nil
	})
}

// Clear empties the cart and drops its coupon.
func (s *Service) Clear(ctx context.Context, userID string) (*Cart, error) {
	return s.mutate(ctx, userID, func(_ context.Context, c *Cart) error {
		c.Reset()
		return nil
	})
}

// ApplyCoupon validates code against the current subtotal and stores it on
// the cart. A rejected coupon leaves the cart unchanged.
func (s *Service) ApplyCoupon(ctx context.Context, userID, code string) (*Cart, error) {
	return s.mutate(ctx, userID, func(ctx context.Context, c *Cart) error {
		if len(c.Items) == 0 {
			return ErrEmpty
		}
		res, err := s.coupons.Evaluate(ctx, code, userID, c.Subtotal())
		if err != nil {
			return errors.Wrap(err, "evaluate coupon")
		}
		c.CouponID = res.Coupon.ID
		c.CouponCode = res.Coupon.Code
		c.CouponDiscount = res.Discount
		return nil
	})
}

func (s *Service) RemoveCoupon(ctx context.Context, userID string) (*Cart, error) {
	return s.mutate(ctx, userID, func(_ context.Context, c *Cart) error {
		c.ClearCoupon()
		return nil
	})
}

// mutate runs fn on the locked cart and saves the result. Nothing is written
// when fn fails.
func (s *Service) mutate(ctx context.Context, userID string, fn func(context.Context, *Cart) error) (*Cart, error) {
	var c *Cart
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.carts.Lock(ctx, userID)
		if err != nil {
			return errors.Wrap(err, "lock cart")
		}
		if err := fn(ctx, c); err != nil {
			return err
		}
		if err := s.carts.Save(ctx, c); err != nil {
			return errors.Wrap(err, "save cart")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.attachProducts(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) attachProducts(ctx context.Context, c *Cart) error {
	if len(c.Items) == 0 {
		return nil
	}
	ids := make([]string, len(c.Items))
	for i, it := range c.Items {
		ids[i] = it.ProductID
	}
	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "get products")
	}
	byID := make(map[string]*catalog.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	for i := range c.Items {
		c.Items[i].Product = byID[c.Items[i].ProductID]
	}
	return nil
}
