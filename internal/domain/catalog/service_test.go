package catalog

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
	"github.com/krishna-marketing/grocer/internal/domain/page"
)

type mockProductRepo struct {
	byID      map[string]*Product
	lastQuery Query
	created   *Product
	updated   *Product
}

func (m *mockProductRepo) List(_ context.Context, q Query) ([]Product, int, error) {
	m.lastQuery = q
	var out []Product
	for _, p := range m.byID {
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (m *mockProductRepo) Get(_ context.Context, idOrSlug string) (*Product, error) {
	for _, p := range m.byID {
		if p.ID == idOrSlug || p.Slug == idOrSlug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrProductNotFound
}

func (m *mockProductRepo) GetByIDs(context.Context, []string) ([]Product, error) { return nil, nil }

func (m *mockProductRepo) Create(_ context.Context, p *Product) error {
	m.created = p
	return nil
}

func (m *mockProductRepo) Update(_ context.Context, p *Product) error {
	m.updated = p
	return nil
}

func (m *mockProductRepo) SetActive(_ context.Context, id string, active bool) error {
	p, ok := m.byID[id]
	if !ok {
		return ErrProductNotFound
	}
	p.IsActive = active
	return nil
}

func (m *mockProductRepo) LowStock(context.Context) ([]Product, error)       { return nil, nil }
func (m *mockProductRepo) DecrementStock(context.Context, string, int) error { return nil }
func (m *mockProductRepo) RestoreStock(context.Context, string, int) error   { return nil }

type mockCategoryRepo struct {
	all []Category
}

func (m *mockCategoryRepo) List(context.Context, bool) ([]Category, error) { return m.all, nil }

func (m *mockCategoryRepo) Get(_ context.Context, idOrSlug string) (*Category, error) {
	for _, c := range m.all {
		if c.ID == idOrSlug || c.Slug == idOrSlug {
			return &c, nil
		}
	}
	return nil, ErrCategoryNotFound
}

func (m *mockCategoryRepo) Children(_ context.Context, parentID string) ([]Category, error) {
	var out []Category
	for _, c := range m.all {
		if c.ParentID == parentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCategoryRepo) Create(_ context.Context, c *Category) error {
	m.all = append(m.all, *c)
	return nil
}

func (m *mockCategoryRepo) Update(context.Context, *Category) error { return nil }

func (m *mockCategoryRepo) SetActive(context.Context, string, bool) error { return nil }

func newCategories() *mockCategoryRepo {
	return &mockCategoryRepo{all: []Category{
		{ID: "c1", Slug: "staples", Name: "Staples", IsActive: true},
		{ID: "c2", Slug: "rice", Name: "Rice", ParentID: "c1", IsActive: true},
		{ID: "c3", Slug: "dal", Name: "Dal", ParentID: "c1", IsActive: true},
	}}
}

func TestListProducts_Defaults(t *testing.T) {
	products := &mockProductRepo{byID: map[string]*Product{}}
	svc := NewService(products, newCategories())

	res, err := svc.ListProducts(context.Background(), Query{Page: page.Request{Limit: 1000}})
	require.NoError(t, err)
	assert.Equal(t, SortNewest, products.lastQuery.Sort)
	assert.Equal(t, page.MaxLimit, products.lastQuery.Page.Limit)
	assert.Equal(t, 1, res.Pagination.Page)
}

func TestListProducts_CategorySlugIncludesChildren(t *testing.T) {
	products := &mockProductRepo{byID: map[string]*Product{}}
	svc := NewService(products, newCategories())

	_, err := svc.ListProducts(context.Background(), Query{Category: "staples"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2", "c3"}, products.lastQuery.CategoryIDs)
}

func TestListProducts_UnknownCategoryIsEmpty(t *testing.T) {
	svc := NewService(&mockProductRepo{byID: map[string]*Product{"p1": {ID: "p1"}}}, newCategories())

	res, err := svc.ListProducts(context.Background(), Query{Category: "nope"})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

func TestListProducts_Validation(t *testing.T) {
	lo, hi := decimal.NewFromInt(50), decimal.NewFromInt(10)
	svc := NewService(&mockProductRepo{}, newCategories())

	_, err := svc.ListProducts(context.Background(), Query{Sort: "cheapest"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.ListProducts(context.Background(), Query{MinPrice: &lo, MaxPrice: &hi})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestGetProduct_InactiveIsNotFound(t *testing.T) {
	products := &mockProductRepo{byID: map[string]*Product{
		"p1": {ID: "p1", Slug: "atta", IsActive: false},
	}}
	svc := NewService(products, newCategories())

	_, err := svc.GetProduct(context.Background(), "atta")
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestCreateProduct_DerivesSlugAndDiscount(t *testing.T) {
	products := &mockProductRepo{}
	svc := NewService(products, newCategories())

	p, err := svc.CreateProduct(context.Background(), ProductInput{
		Name:       "Sona Masoori Rice",
		CategoryID: "c2",
		Price:      decimal.NewFromInt(80),
		MRP:        decimal.NewFromInt(100),
		Stock:      10,
	})
	require.NoError(t, err)
	assert.Equal(t, "sona-masoori-rice", p.Slug)
	assert.Equal(t, 20, p.Discount)
	assert.True(t, p.IsActive)
	assert.Same(t, p, products.created)
}

func TestCreateProduct_Invalid(t *testing.T) {
	svc := NewService(&mockProductRepo{}, newCategories())
	tests := []struct {
		name string
		in   ProductInput
	}{
		{"no name", ProductInput{CategoryID: "c1", Price: decimal.NewFromInt(1)}},
		{"zero price", ProductInput{Name: "x", CategoryID: "c1"}},
		{"negative stock", ProductInput{Name: "x", CategoryID: "c1", Price: decimal.NewFromInt(1), Stock: -1}},
		{"mrp below price", ProductInput{Name: "x", CategoryID: "c1", Price: decimal.NewFromInt(10), MRP: decimal.NewFromInt(5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateProduct(context.Background(), tt.in)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}

	_, err := svc.CreateProduct(context.Background(), ProductInput{Name: "x", CategoryID: "missing", Price: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, ErrCategoryNotFound)
}

func TestDeleteProduct_SoftDeletes(t *testing.T) {
	products := &mockProductRepo{byID: map[string]*Product{"p1": {ID: "p1", IsActive: true}}}
	svc := NewService(products, newCategories())

	require.NoError(t, svc.DeleteProduct(context.Background(), "p1"))
	assert.False(t, products.byID["p1"].IsActive)
}

func TestCreateCategory_OneLevelOfNesting(t *testing.T) {
	cats := newCategories()
	svc := NewService(&mockProductRepo{}, cats)

	c, err := svc.CreateCategory(context.Background(), CategoryInput{Name: "Frozen Foods", ParentID: "staples"})
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ParentID)
	assert.Equal(t, "frozen-foods", c.Slug)

	_, err = svc.CreateCategory(context.Background(), CategoryInput{Name: "Brown Rice", ParentID: "c2"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestUpdateCategory_ParentWithChildrenCannotNest(t *testing.T) {
	cats := newCategories()
	cats.all = append(cats.all, Category{ID: "c9", Slug: "dairy", Name: "Dairy", IsActive: true})
	svc := NewService(&mockProductRepo{}, cats)

	_, err := svc.UpdateCategory(context.Background(), "c1", CategoryInput{Name: "Staples", ParentID: "c9"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
