package handler

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/krishna-marketing/grocer/internal/domain/auth"
	"github.com/krishna-marketing/grocer/internal/domain/catalog"
	"github.com/krishna-marketing/grocer/internal/domain/page"
)

type productPageDTO struct {
	Products   []productDTO `json:"products"`
	Pagination page.Info    `json:"pagination"`
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := catalog.Query{
		Category: q.Get("category"),
		Search:   strings.TrimSpace(q.Get("search")),
		InStock:  boolQuery(r, "inStock"),
		Featured: boolQuery(r, "featured"),
		Sort:     catalog.Sort(q.Get("sort")),
		Page:     pageOf(r),
	}
	var err error
	if query.MinPrice, err = decimalQuery(r, "minPrice"); err != nil {
		fail(w, r, err)
		return
	}
	if query.MaxPrice, err = decimalQuery(r, "maxPrice"); err != nil {
		fail(w, r, err)
		return
	}
	if p, found := auth.FromContext(r.Context()); found && p.IsAdmin() {
		query.IncludeInactive = boolQuery(r, "includeInactive")
	}

	res, err := h.catalog.ListProducts(r.Context(), query)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, productPageDTO{Products: h.products(res.Items), Pagination: res.Pagination})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetProduct(r.Context(), param(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, h.product(p))
}

type variantRequest struct {
	Name  string          `json:"name"`
	Value string          `json:"value"`
	Price decimal.Decimal `json:"price"`
	MRP   decimal.Decimal `json:"mrp"`
	Stock int             `json:"stock"`
}

type productRequest struct {
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	CategoryID        string           `json:"categoryId"`
	Price             decimal.Decimal  `json:"price"`
	MRP               decimal.Decimal  `json:"mrp"`
	Unit              string           `json:"unit"`
	Images            []string         `json:"images"`
	Stock             int              `json:"stock"`
	LowStockThreshold int              `json:"lowStockThreshold"`
	Variants          []variantRequest `json:"variants"`
	IsFeatured        bool             `json:"isFeatured"`
}

func (req productRequest) input() catalog.ProductInput {
	in := catalog.ProductInput{
		Name:              req.Name,
		Description:       req.Description,
		CategoryID:        req.CategoryID,
		Price:             req.Price,
		MRP:               req.MRP,
		Unit:              req.Unit,
		Images:            req.Images,
		Stock:             req.Stock,
		LowStockThreshold: req.LowStockThreshold,
		IsFeatured:        req.IsFeatured,
	}
	for _, v := range req.Variants {
		in.Variants = append(in.Variants, catalog.Variant{
			Name:  v.Name,
			Value: v.Value,
			Price: v.Price,
			MRP:   v.MRP,
			Stock: v.Stock,
		})
	}
	return in
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.catalog.CreateProduct(r.Context(), req.input())
	if err != nil {
		fail(w, r, err)
		return
	}
	created(w, "Product created", h.product(p))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.catalog.UpdateProduct(r.Context(), param(r, "id"), req.input())
	if err != nil {
		fail(w, r, err)
		return
	}
	okMessage(w, "Product updated", h.product(p))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteProduct(r.Context(), param(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	okMessage(w, "Product deleted", nil)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	list, err := h.catalog.LowStock(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, h.products(list))
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	list, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]categoryDTO, len(list))
	for i := range list {
		out[i] = category(&list[i])
	}
	ok(w, out)
}

func (h *Handler) getCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.catalog.GetCategory(r.Context(), param(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, category(c))
}

type categoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ParentID    string `json:"parentId"`
}

func (req categoryRequest) input() catalog.CategoryInput {
	return catalog.CategoryInput{Name: req.Name, Description: req.Description, ParentID: req.ParentID}
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.catalog.CreateCategory(r.Context(), req.input())
	if err != nil {
		fail(w, r, err)
		return
	}
	created(w, "Category created", category(c))
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.catalog.UpdateCategory(r.Context(), param(r, "id"), req.input())
	if err != nil {
		fail(w, r, err)
		return
	}
	okMessage(w, "Category updated", category(c))
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteCategory(r.Context(), param(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	okMessage(w, "Category deleted", nil)
}
