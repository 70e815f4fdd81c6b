package catalog

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
)

// ProductInput is the admin-editable part of a product.
type ProductInput struct {
	Name              string
	Description       string
	CategoryID        string
	Price             decimal.Decimal
	MRP               decimal.Decimal
	Unit              string
	Images            []string
	Stock             int
	LowStockThreshold int
	Variants          []Variant
	IsFeatured        bool
}

func (in *ProductInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.Name == "":
		return apperr.Validation("product name is required")
	case in.CategoryID == "":
		return apperr.Validation("category is required")
	case !in.Price.IsPositive():
		return apperr.Validation("price must be greater than 0")
	case in.Stock < 0:
		return apperr.Validation("stock cannot be negative")
	case in.LowStockThreshold < 0:
		return apperr.Validation("low stock threshold cannot be negative")
	}
	if in.MRP.IsZero() {
		in.MRP = in.Price
	}
	if in.MRP.LessThan(in.Price) {
		return apperr.Validation("mrp cannot be lower than price")
	}
	for _, v := range in.Variants {
		if v.Name == "" || v.Value == "" {
			return apperr.Validation("variant name and value are required")
		}
		if !v.Price.IsPositive() || v.Stock < 0 {
			return apperr.Validationf("invalid price or stock for variant %s", v.Value)
		}
	}
	return nil
}

// CategoryInput is the admin-editable part of a category.
type CategoryInput struct {
	Name        string
	Description string
	ParentID    string
}

// Service implements catalog use cases.
type Service struct {
	products   ProductRepository
	categories CategoryRepository
}

func NewService(products ProductRepository, categories CategoryRepository) *Service {
	return &Service{products: products, categories: categories}
}

// ListProducts returns a filtered, sorted page of products.
func (s *Service) ListProducts(ctx context.Context, q Query) (*ProductPage, error) {
	q.Page = q.Page.Normalize()
	if q.Sort == "" {
		q.Sort = SortNewest
	}
	if !q.Sort.valid() {
		return nil, apperr.Validationf("unknown sort %q", q.Sort)
	}
	if q.MinPrice != nil && q.MaxPrice != nil && q.MinPrice.GreaterThan(*q.MaxPrice) {
		return nil, apperr.Validation("minPrice cannot exceed maxPrice")
	}
	q.Search = strings.TrimSpace(q.Search)

	if q.Category != "" {
		ids, err := s.categoryScope(ctx, q.Category)
		if err != nil {
			if errors.Is(err, ErrCategoryNotFound) {
				return &ProductPage{Pagination: q.Page.Of(0)}, nil
			}
			return nil, err
		}
		q.CategoryIDs = ids
	}

	items, total, err := s.products.List(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return &ProductPage{Items: items, Pagination: q.Page.Of(total)}, nil
}

func (s *Service) categoryScope(ctx context.Context, idOrSlug string) ([]string, error) {
	c, err := s.categories.Get(ctx, idOrSlug)
	if err != nil {
		return nil, errors.Wrap(err, "get category")
	}
	children, err := s.categories.Children(ctx, c.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list subcategories")
	}
	ids := []string{c.ID}
	for _, ch := range children {
		ids = append(ids, ch.ID)
	}
	return ids, nil
}

// GetProduct returns an active product by id or slug.
func (s *Service) GetProduct(ctx context.Context, idOrSlug string) (*Product, error) {
	p, err := s.products.Get(ctx, idOrSlug)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	if !p.IsActive {
		return nil, ErrProductNotFound
	}
	return p, nil
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := s.categories.Get(ctx, in.CategoryID); err != nil {
		return nil, errors.Wrap(err, "get category")
	}
	p := &Product{ID: uuid.NewString(), IsActive: true}
	apply(p, in)
	if err := s.products.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	return p, nil
}

// UpdateProduct replaces the editable fields, re-deriving slug and discount.
func (s *Service) UpdateProduct(ctx context.Context, id string, in ProductInput) (*Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	if in.CategoryID != p.CategoryID {
		if _, err := s.categories.Get(ctx, in.CategoryID); err != nil {
			return nil, errors.Wrap(err, "get category")
		}
	}
	apply(p, in)
	if err := s.products.Update(ctx, p); err != nil {
		return nil, errors.Wrap(err, "update product")
	}
	return p, nil
}

func apply(p *Product, in ProductInput) {
	p.Name = in.Name
	p.Slug = Slugify(in.Name)
	p.Description = in.Description
	p.CategoryID = in.CategoryID
	p.Price = in.Price
	p.MRP = in.MRP
	p.Discount = DiscountPercent(in.Price, in.MRP)
	p.Unit = in.Unit
	p.Images = in.Images
	p.Stock = in.Stock
	p.LowStockThreshold = in.LowStockThreshold
	p.Variants = in.Variants
	p.IsFeatured = in.IsFeatured
}

// DeleteProduct hides a product from the storefront. The row is kept so past
// orders and carts still resolve.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.products.SetActive(ctx, id, false); err != nil {
		return errors.Wrap(err, "deactivate product")
	}
	return nil
}

// LowStock lists active products at or below their low-stock threshold.
func (s *Service) LowStock(ctx context.Context) ([]Product, error) {
	list, err := s.products.LowStock(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list low stock")
	}
	return list, nil
}

// ListCategories returns active top-level categories with their
// subcategories attached.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	all, err := s.categories.List(ctx, false)
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	return Tree(all), nil
}

// Tree nests categories under their parents. Orphans whose parent is missing
// are dropped.
func Tree(all []Category) []Category {
	children := make(map[string][]Category)
	for _, c := range all {
		if c.ParentID != "" {
			children[c.ParentID] = append(children[c.ParentID], c)
		}
	}
	var roots []Category
	for _, c := range all {
		if c.ParentID == "" {
			c.Subcategories = children[c.ID]
			roots = append(roots, c)
		}
	}
	return roots
}

func (s *Service) GetCategory(ctx context.Context, idOrSlug string) (*Category, error) {
	c, err := s.categories.Get(ctx, idOrSlug)
	if err != nil {
		return nil, errors.Wrap(err, "get category")
	}
	if !c.IsActive {
		return nil, ErrCategoryNotFound
	}
	children, err := s.categories.Children(ctx, c.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list subcategories")
	}
	c.Subcategories = children
	return c, nil
}

func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*Category, error) {
	c := &Category{ID: uuid.NewString(), IsActive: true}
	if err := s.applyCategory(ctx, c, in); err != nil {
		return nil, err
	}
	if err := s.categories.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create category")
	}
	return c, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id string, in CategoryInput) (*Category, error) {
	c, err := s.categories.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get category")
	}
	if in.ParentID == c.ID {
		return nil, apperr.Validation("category cannot be its own parent")
	}
	if in.ParentID != "" {
		children, err := s.categories.Children(ctx, c.ID)
		if err != nil {
			return nil, errors.Wrap(err, "list subcategories")
		}
		if len(children) > 0 {
			return nil, apperr.Validation("a category with subcategories cannot be nested")
		}
	}
	if err := s.applyCategory(ctx, c, in); err != nil {
		return nil, err
	}
	if err := s.categories.Update(ctx, c); err != nil {
		return nil, errors.Wrap(err, "update category")
	}
	return c, nil
}

func (s *Service) applyCategory(ctx context.Context, c *Category, in CategoryInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return apperr.Validation("category name is required")
	}
	if in.ParentID != "" {
		parent, err := s.categories.Get(ctx, in.ParentID)
		if err != nil {
			return errors.Wrap(err, "get parent category")
		}
		if parent.ParentID != "" {
			return apperr.Validation("categories can only be nested one level deep")
		}
		in.ParentID = parent.ID
	}
	c.Name = name
	c.Slug = Slugify(name)
	c.Description = in.Description
	c.ParentID = in.ParentID
	return nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if err := s.categories.SetActive(ctx, id, false); err != nil {
		return errors.Wrap(err, "deactivate category")
	}
	return nil
}
