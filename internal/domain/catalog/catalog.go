// Package catalog holds products and categories.
package catalog

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
	"github.com/krishna-marketing/grocer/internal/domain/page"
)

var (
	ErrProductNotFound  = apperr.NotFound("product not found")
	ErrCategoryNotFound = apperr.NotFound("category not found")
	ErrSlugTaken        = apperr.Validation("an item with this name already exists")
	// ErrUnavailable is returned for products that are inactive or gone.
	ErrUnavailable = apperr.Validation("product is not available")
)

// InsufficientStockError reports a product that cannot cover a quantity.
type InsufficientStockError struct {
	ProductName string
	Available   int
}

func (e *InsufficientStockError) Error() string {
	if e.Available <= 0 {
		return e.ProductName + " is out of stock"
	}
	return fmt.Sprintf("only %d of %s left in stock", e.Available, e.ProductName)
}

func (e *InsufficientStockError) ErrorKind() apperr.Kind { return apperr.KindValidation }

// Product is a sellable catalog item.
type Product struct {
	ID                string
	Name              string
	Slug              string
	Description       string
	CategoryID        string
	Price             decimal.Decimal
	MRP               decimal.Decimal
	Discount          int
	Unit              string
	Images            []string
	Stock             int
	LowStockThreshold int
	Variants          []Variant
	IsActive          bool
	IsFeatured        bool
	Rating            float64
	TotalSold         int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Variant is a purchasable option of a product, such as a pack size.
type Variant struct {
	Name  string          `json:"name"`
	Value string          `json:"value"`
	Price decimal.Decimal `json:"price"`
	MRP   decimal.Decimal `json:"mrp"`
	Stock int             `json:"stock"`
}

// Reserve checks that qty units can be sold.
func (p *Product) Reserve(qty int) error {
	if !p.IsActive {
		return ErrUnavailable
	}
	if p.Stock < qty {
		return &InsufficientStockError{ProductName: p.Name, Available: p.Stock}
	}
	return nil
}

// FindVariant returns the variant with the given name and value.
func (p *Product) FindVariant(name, value string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.Name == name && v.Value == value {
			return v, true
		}
	}
	return Variant{}, false
}

// Category groups products. Nesting is one level deep.
type Category struct {
	ID            string
	Name          string
	Slug          string
	Description   string
	ParentID      string
	IsActive      bool
	Subcategories []Category
	CreatedAt     time.Time
}

// Sort is a product listing order.
type Sort string

const (
	SortNewest     Sort = "newest"
	SortPriceAsc   Sort = "price_asc"
	SortPriceDesc  Sort = "price_desc"
	SortName       Sort = "name"
	SortPopularity Sort = "popularity"
	SortRating     Sort = "rating"
)

func (s Sort) valid() bool {
	switch s {
	case SortNewest, SortPriceAsc, SortPriceDesc, SortName, SortPopularity, SortRating:
		return true
	}
	return false
}

// Query filters a product listing.
type Query struct {
	// Category is an id or slug; products of its subcategories match too.
	Category        string
	Search          string
	MinPrice        *decimal.Decimal
	MaxPrice        *decimal.Decimal
	InStock         bool
	Featured        bool
	IncludeInactive bool
	Sort            Sort
	Page            page.Request

	// CategoryIDs is resolved from Category by the service.
	CategoryIDs []string
}

// ProductPage is a page of products.
type ProductPage struct {
	Items      []Product
	Pagination page.Info
}

// ProductRepository persists products.
type ProductRepository interface {
	List(ctx context.Context, q Query) ([]Product, int, error)
	// Get looks a product up by id or slug.
	Get(ctx context.Context, idOrSlug string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	SetActive(ctx context.Context, id string, active bool) error
	LowStock(ctx context.Context) ([]Product, error)
	// DecrementStock removes qty from stock and adds it to totalSold only if
	// at least qty is in stock; otherwise it returns *InsufficientStockError
	// with the stock that is left.
	DecrementStock(ctx context.Context, id string, qty int) error
	// RestoreStock reverses DecrementStock.
	RestoreStock(ctx context.Context, id string, qty int) error
}

// CategoryRepository persists categories.
type CategoryRepository interface {
	List(ctx context.Context, includeInactive bool) ([]Category, error)
	Get(ctx context.Context, idOrSlug string) (*Category, error)
	Children(ctx context.Context, parentID string) ([]Category, error)
	Create(ctx context.Context, c *Category) error
	Update(ctx context.Context, c *Category) error
	SetActive(ctx context.Context, id string, active bool) error
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL slug from a name.
func Slugify(name string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// DiscountPercent returns round((mrp-price)/mrp*100) when price < mrp, else 0.
func DiscountPercent(price, mrp decimal.Decimal) int {
	if !mrp.IsPositive() || !price.LessThan(mrp) {
		return 0
	}
	return int(mrp.Sub(price).Div(mrp).Mul(decimal.NewFromInt(100)).Round(0).IntPart())
}
