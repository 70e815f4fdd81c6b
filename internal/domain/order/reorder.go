package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/krishna-marketing/grocer/internal/domain/cart"
	"github.com/krishna-marketing/grocer/internal/domain/catalog"
)

// ReorderResult lists what Reorder put into the cart.
type ReorderResult struct {
	Cart    *cart.Cart
	Added   []string
	Skipped []string
}

// Reorder copies the lines of a past order into the user's cart. Quantities
// are capped to what is in stock; inactive, deleted and sold-out products are
// skipped.
func (s *Service) Reorder(ctx context.Context, userID, orderID string) (*ReorderResult, error) {
	o, err := s.GetMine(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(o.Items))
	for i, it := range o.Items {
		ids[i] = it.ProductID
	}

	res := &ReorderResult{}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.carts.Lock(ctx, userID)
		if err != nil {
			return errors.Wrap(err, "lock cart")
		}
		products, err := s.inventory.GetByIDs(ctx, ids)
		if err != nil {
			return errors.Wrap(err, "get products")
		}
		byID := make(map[string]*catalog.Product, len(products))
		for i := range products {
			byID[products[i].ID] = &products[i]
		}

		for _, it := range o.Items {
			p, ok := byID[it.ProductID]
			if !ok || !p.IsActive {
				res.Skipped = append(res.Skipped, it.Name)
				continue
			}
			if reorderLine(c, p, it) {
				res.Added = append(res.Added, p.Name)
			} else {
				res.Skipped = append(res.Skipped, p.Name)
			}
		}
		res.Cart = c
		if err := s.carts.Save(ctx, c); err != nil {
			return errors.Wrap(err, "save cart")
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "reorder")
	}
	return res, nil
}

// reorderLine merges an order line into c, capping the product's total
// quantity in the cart at its stock. It reports whether anything was added.
func reorderLine(c *cart.Cart, p *catalog.Product, it Item) bool {
	var variant *cart.VariantRef
	price := p.Price
	if it.Variant != nil {
		v, ok := p.FindVariant(it.Variant.Name, it.Variant.Value)
		if !ok {
			return false
		}
		variant = &cart.VariantRef{Name: v.Name, Value: v.Value, Price: v.Price}
		price = v.Price
	}

	inCart := 0
	for _, l := range c.Items {
		if l.ProductID == p.ID {
			inCart += l.Quantity
		}
	}
	qty := min(it.Quantity, p.Stock-inCart)
	if qty <= 0 {
		return false
	}

	for i := range c.Items {
		if c.Items[i].ProductID == p.ID && cart.SameVariant(c.Items[i].Variant, variant) {
			c.Items[i].Quantity += qty
			return true
		}
	}
	c.Items = append(c.Items, cart.Item{
		ID:        uuid.NewString(),
		ProductID: p.ID,
		Variant:   variant,
		Quantity:  qty,
		Price:     price,
	})
	return true
}
