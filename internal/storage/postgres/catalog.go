package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krishna-marketing/grocer/internal/domain/catalog"
)

const (
	productColumns = `id, name, slug, description, category_id, price, mrp, discount, unit,
		images, stock, low_stock_threshold, variants, is_active, is_featured, rating, total_sold,
		created_at, updated_at`

	getProductSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1 OR slug = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	lowStockSQL = `SELECT ` + productColumns + ` FROM products
		WHERE is_active AND stock <= low_stock_threshold ORDER BY stock, name`

	createProductSQL = `INSERT INTO products (id, name, slug, description, category_id, price, mrp,
		discount, unit, images, stock, low_stock_threshold, variants, is_active, is_featured)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at`

	updateProductSQL = `UPDATE products SET name = $2, slug = $3, description = $4, category_id = $5,
		price = $6, mrp = $7, discount = $8, unit = $9, images = $10, stock = $11,
		low_stock_threshold = $12, variants = $13, is_active = $14, is_featured = $15, updated_at = now()
		WHERE id = $1`

	setProductActiveSQL = `UPDATE products SET is_active = $2, updated_at = now() WHERE id = $1`

	decrementStockSQL = `UPDATE products SET stock = stock - $2, total_sold = total_sold + $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`

	remainingStockSQL = `SELECT name, stock FROM products WHERE id = $1`

	restoreStockSQL = `UPDATE products SET stock = stock + $2, total_sold = GREATEST(total_sold - $2, 0),
		updated_at = now() WHERE id = $1`
)

var productSorts = map[catalog.Sort]string{
	catalog.SortNewest:     "created_at DESC, id",
	catalog.SortPriceAsc:   "price ASC, id",
	catalog.SortPriceDesc:  "price DESC, id",
	catalog.SortName:       "name ASC, id",
	catalog.SortPopularity: "total_sold DESC, id",
	catalog.SortRating:     "rating DESC, id",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

var _ catalog.ProductRepository = (*ProductRepository)(nil)

// ProductRepository implements catalog.ProductRepository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns one page of products matching q and the total match count.
func (r *ProductRepository) List(ctx context.Context, q catalog.Query) ([]catalog.Product, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !q.IncludeInactive {
		where = append(where, "is_active")
	}
	if len(q.CategoryIDs) > 0 {
		where = append(where, "category_id = ANY("+arg(q.CategoryIDs)+")")
	}
	if q.Search != "" {
		p := arg("%" + likeEscaper.Replace(q.Search) + "%")
		where = append(where, "(name ILIKE "+p+" OR description ILIKE "+p+")")
	}
	if q.MinPrice != nil {
		where = append(where, "price >= "+arg(*q.MinPrice))
	}
	if q.MaxPrice != nil {
		where = append(where, "price <= "+arg(*q.MaxPrice))
	}
	if q.InStock {
		where = append(where, "stock > 0")
	}
	if q.Featured {
		where = append(where, "is_featured")
	}

	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	db := conn(ctx, r.pool)
	var total int
	if err := db.QueryRow(ctx, "SELECT count(*) FROM products"+cond, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "counting products")
	}
	if total == 0 {
		return nil, 0, nil
	}

	order, ok := productSorts[q.Sort]
	if !ok {
		order = productSorts[catalog.SortNewest]
	}
	sql := "SELECT " + productColumns + " FROM products" + cond +
		" ORDER BY " + order +
		" LIMIT " + arg(q.Page.Limit) + " OFFSET " + arg(q.Page.Offset())

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing products")
	}
	items, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing products")
	}
	return items, total, nil
}

// Get returns a product by id or slug, active or not.
func (r *ProductRepository) Get(ctx context.Context, idOrSlug string) (*catalog.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getProductSQL, idOrSlug)
	if err != nil {
		return nil, errors.Wrapf(err, "getting product %q", idOrSlug)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, errors.Wrapf(err, "getting product %q", idOrSlug)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]catalog.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "getting products by ids")
	}
	return pgx.CollectRows(rows, scanProduct)
}

func (r *ProductRepository) Create(ctx context.Context, p *catalog.Product) error {
	err := conn(ctx, r.pool).QueryRow(ctx, createProductSQL,
		p.ID, p.Name, p.Slug, p.Description, p.CategoryID, p.Price, p.MRP,
		p.Discount, p.Unit, images(p.Images), p.Stock, p.LowStockThreshold, variants(p.Variants),
		p.IsActive, p.IsFeatured,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.ErrSlugTaken
		}
		return errors.Wrapf(err, "creating product %q", p.Name)
	}
	return nil
}

func (r *ProductRepository) Update(ctx context.Context, p *catalog.Product) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, updateProductSQL,
		p.ID, p.Name, p.Slug, p.Description, p.CategoryID, p.Price, p.MRP,
		p.Discount, p.Unit, images(p.Images), p.Stock, p.LowStockThreshold, variants(p.Variants),
		p.IsActive, p.IsFeatured,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.ErrSlugTaken
		}
		return errors.Wrapf(err, "updating product %q", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

func (r *ProductRepository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, setProductActiveSQL, id, active)
	if err != nil {
		return errors.Wrapf(err, "setting product %q active=%t", id, active)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

// LowStock returns active products at or below their restock threshold.
func (r *ProductRepository) LowStock(ctx context.Context) ([]catalog.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, lowStockSQL)
	if err != nil {
		return nil, errors.Wrap(err, "listing low stock products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// DecrementStock takes qty off the shelf in a single conditional update, so
// two checkouts racing for the last units cannot both succeed.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	db := conn(ctx, r.pool)
	tag, err := db.Exec(ctx, decrementStockSQL, id, qty)
	if err != nil {
		return errors.Wrapf(err, "decrementing stock of %q", id)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var (
		name  string
		stock int
	)
	if err := db.QueryRow(ctx, remainingStockSQL, id).Scan(&name, &stock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.ErrProductNotFound
		}
		return errors.Wrapf(err, "reading stock of %q", id)
	}
	return &catalog.InsufficientStockError{ProductName: name, Available: stock}
}

func (r *ProductRepository) RestoreStock(ctx context.Context, id string, qty int) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, restoreStockSQL, id, qty); err != nil {
		return errors.Wrapf(err, "restoring stock of %q", id)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Slug, &p.Description, &p.CategoryID, &p.Price, &p.MRP, &p.Discount, &p.Unit,
		&p.Images, &p.Stock, &p.LowStockThreshold, &p.Variants, &p.IsActive, &p.IsFeatured,
		&p.Rating, &p.TotalSold, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func images(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func variants(v []catalog.Variant) []catalog.Variant {
	if v == nil {
		return []catalog.Variant{}
	}
	return v
}

const (
	categoryColumns = `id, name, slug, description, parent_id, is_active, created_at`

	listCategoriesSQL = `SELECT ` + categoryColumns + ` FROM categories
		WHERE $1 OR is_active ORDER BY name`

	getCategorySQL = `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1 OR slug = $1`

	childCategoriesSQL = `SELECT ` + categoryColumns + ` FROM categories
		WHERE parent_id = $1 AND is_active ORDER BY name`

	createCategorySQL = `INSERT INTO categories (id, name, slug, description, parent_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`

	updateCategorySQL = `UPDATE categories SET name = $2, slug = $3, description = $4, parent_id = $5,
		is_active = $6 WHERE id = $1`

	setCategoryActiveSQL = `UPDATE categories SET is_active = $2 WHERE id = $1`
)

var _ catalog.CategoryRepository = (*CategoryRepository)(nil)

// CategoryRepository implements catalog.CategoryRepository backed by
// PostgreSQL.
type CategoryRepository struct {
	pool *pgxpool.Pool
}

func NewCategoryRepository(pool *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

func (r *CategoryRepository) List(ctx context.Context, includeInactive bool) ([]catalog.Category, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listCategoriesSQL, includeInactive)
	if err != nil {
		return nil, errors.Wrap(err, "listing categories")
	}
	return pgx.CollectRows(rows, scanCategory)
}

func (r *CategoryRepository) Get(ctx context.Context, idOrSlug string) (*catalog.Category, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getCategorySQL, idOrSlug)
	if err != nil {
		return nil, errors.Wrapf(err, "getting category %q", idOrSlug)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCategory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrCategoryNotFound
		}
		return nil, errors.Wrapf(err, "getting category %q", idOrSlug)
	}
	return &c, nil
}

// Children returns the active direct subcategories of parentID.
func (r *CategoryRepository) Children(ctx context.Context, parentID string) ([]catalog.Category, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, childCategoriesSQL, parentID)
	if err != nil {
		return nil, errors.Wrapf(err, "listing subcategories of %q", parentID)
	}
	return pgx.CollectRows(rows, scanCategory)
}

func (r *CategoryRepository) Create(ctx context.Context, c *catalog.Category) error {
	err := conn(ctx, r.pool).QueryRow(ctx, createCategorySQL,
		c.ID, c.Name, c.Slug, c.Description, nullString(c.ParentID), c.IsActive,
	).Scan(&c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.ErrSlugTaken
		}
		return errors.Wrapf(err, "creating category %q", c.Name)
	}
	return nil
}

func (r *CategoryRepository) Update(ctx context.Context, c *catalog.Category) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, updateCategorySQL,
		c.ID, c.Name, c.Slug, c.Description, nullString(c.ParentID), c.IsActive,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.ErrSlugTaken
		}
		return errors.Wrapf(err, "updating category %q", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrCategoryNotFound
	}
	return nil
}

func (r *CategoryRepository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, setCategoryActiveSQL, id, active)
	if err != nil {
		return errors.Wrapf(err, "setting category %q active=%t", id, active)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrCategoryNotFound
	}
	return nil
}

func scanCategory(row pgx.CollectableRow) (catalog.Category, error) {
	var (
		c        catalog.Category
		parentID *string
	)
	err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &parentID, &c.IsActive, &c.CreatedAt)
	c.ParentID = deref(parentID)
	return c, err
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
