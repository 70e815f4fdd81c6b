// Package handler exposes the store over a JSON HTTP API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
	"github.com/krishna-marketing/grocer/internal/domain/auth"
	"github.com/krishna-marketing/grocer/internal/domain/cart"
	"github.com/krishna-marketing/grocer/internal/domain/catalog"
	"github.com/krishna-marketing/grocer/internal/domain/coupon"
	"github.com/krishna-marketing/grocer/internal/domain/customer"
	"github.com/krishna-marketing/grocer/internal/domain/delivery"
	"github.com/krishna-marketing/grocer/internal/domain/loyalty"
	"github.com/krishna-marketing/grocer/internal/domain/order"
	"github.com/krishna-marketing/grocer/internal/domain/page"
	"github.com/krishna-marketing/grocer/internal/notify"
)

// Catalog is implemented by *catalog.Service.
type Catalog interface {
	ListProducts(ctx context.Context, q catalog.Query) (*catalog.ProductPage, error)
	GetProduct(ctx context.Context, idOrSlug string) (*catalog.Product, error)
	CreateProduct(ctx context.Context, in catalog.ProductInput) (*catalog.Product, error)
	UpdateProduct(ctx context.Context, id string, in catalog.ProductInput) (*catalog.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	LowStock(ctx context.Context) ([]catalog.Product, error)
	ListCategories(ctx context.Context) ([]catalog.Category, error)
	GetCategory(ctx context.Context, idOrSlug string) (*catalog.Category, error)
	CreateCategory(ctx context.Context, in catalog.CategoryInput) (*catalog.Category, error)
	UpdateCategory(ctx context.Context, id string, in catalog.CategoryInput) (*catalog.Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

// Carts is implemented by *cart.Service.
type Carts interface {
	Get(ctx context.Context, userID string) (*cart.Cart, error)
	AddItem(ctx context.Context, userID string, req cart.AddItemRequest) (*cart.Cart, error)
	UpdateItem(ctx context.Context, userID, itemID string, quantity int) (*cart.Cart, error)
	RemoveItem(ctx context.Context, userID, itemID string) (*cart.Cart, error)
	Clear(ctx context.Context, userID string) (*cart.Cart, error)
	ApplyCoupon(ctx context.Context, userID, code string) (*cart.Cart, error)
	RemoveCoupon(ctx context.Context, userID string) (*cart.Cart, error)
}

// Coupons is implemented by *coupon.Service.
type Coupons interface {
	Evaluate(ctx context.Context, code, userID string, amount decimal.Decimal) (*coupon.Result, error)
	Create(ctx context.Context, in coupon.Input) (*coupon.Coupon, error)
	List(ctx context.Context) ([]coupon.Coupon, error)
	Deactivate(ctx context.Context, id string) error
}

// Customers is implemented by *customer.Service.
type Customers interface {
	Get(ctx context.Context, id string) (*customer.Customer, error)
	CreateAddress(ctx context.Context, userID string, in customer.AddressInput) (*customer.Address, error)
	ListAddresses(ctx context.Context, userID string) ([]customer.Address, error)
}

// Orders is implemented by *order.Service.
type Orders interface {
	Create(ctx context.Context, userID string, req order.CreateRequest) (*order.Order, error)
	ListMine(ctx context.Context, userID string, status order.Status, p page.Request) (*order.Page, error)
	ListAll(ctx context.Context, status order.Status, p page.Request) (*order.Page, error)
	GetMine(ctx context.Context, userID, id string) (*order.Order, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	Cancel(ctx context.Context, userID, orderID, reason string) (*order.Order, error)
	UpdateStatus(ctx context.Context, orderID string, to order.Status, note string) (*order.Order, error)
	Reorder(ctx context.Context, userID, orderID string) (*order.ReorderResult, error)
	ConfirmPayment(ctx context.Context, number string, status order.PaymentStatus, reference string) (*order.Order, error)
}

// Delivery is implemented by *delivery.Service.
type Delivery interface {
	Apply(ctx context.Context, userID string, req delivery.ApplyRequest) (*delivery.Agent, error)
	List(ctx context.Context, status delivery.ApplicationStatus) ([]delivery.Agent, error)
	Review(ctx context.Context, agentID string, decision delivery.ApplicationStatus) (*delivery.Agent, error)
	AssignAgent(ctx context.Context, orderID, agentID string) (*order.Order, error)
	UpdateStatus(ctx context.Context, agentUserID, orderID string, to order.Status, otp string) (*order.Order, error)
	CompleteDelivery(ctx context.Context, agentUserID, otp string) (*order.Order, error)
	ToggleAvailability(ctx context.Context, agentUserID string) (*delivery.Agent, error)
	UpdateLocation(ctx context.Context, agentUserID string, loc delivery.Location) (*delivery.Agent, error)
	Nearby(ctx context.Context, q delivery.NearbyQuery) ([]delivery.Nearby, error)
	CurrentOrder(ctx context.Context, agentUserID string) (*order.Order, error)
	Me(ctx context.Context, agentUserID string) (*delivery.Agent, error)
}

// Loyalty is implemented by *loyalty.Ledger.
type Loyalty interface {
	Summary(ctx context.Context, userID string) (*loyalty.Summary, error)
}

// Events is implemented by *notify.Hub.
type Events interface {
	Subscribe(orderID string) (<-chan notify.Event, func())
}

// Config holds non-dependency settings of the API.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
	// JWTSecret verifies HS256 bearer tokens.
	JWTSecret []byte
	// APIKeyPepper is the HMAC key API keys are hashed with.
	APIKeyPepper []byte
	// RequestTimeout bounds every request except event streams.
	RequestTimeout time.Duration
	// Heartbeat is the keep-alive interval of event streams.
	Heartbeat time.Duration
}

// Deps are the services behind the API.
type Deps struct {
	Catalog   Catalog
	Carts     Carts
	Coupons   Coupons
	Customers Customers
	Orders    Orders
	Delivery  Delivery
	Loyalty   Loyalty
	Events    Events
	APIKeys   auth.Repository
}

// Handler serves the /api routes.
type Handler struct {
	cfg Config

	catalog   Catalog
	carts     Carts
	coupons   Coupons
	customers Customers
	orders    Orders
	delivery  Delivery
	loyalty   Loyalty
	events    Events
	apikeys   auth.Repository
}

func NewHandler(cfg Config, d Deps) *Handler {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 25 * time.Second
	}
	return &Handler{
		cfg:       cfg,
		catalog:   d.Catalog,
		carts:     d.Carts,
		coupons:   d.Coupons,
		customers: d.Customers,
		orders:    d.Orders,
		delivery:  d.Delivery,
		loyalty:   d.Loyalty,
		events:    d.Events,
		apikeys:   d.APIKeys,
	}
}

// Routes returns the API router, meant to be mounted at /api.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Message: "Route not found", Kind: apperr.KindNotFound})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Message: "Method not allowed"})
	})

	// Streams outlive the request timeout.
	r.With(h.authenticate).Get("/orders/{id}/events", h.orderEvents)

	r.Group(func(r chi.Router) {
		if h.cfg.RequestTimeout > 0 {
			r.Use(chimw.Timeout(h.cfg.RequestTimeout))
		}

		r.With(h.optionalAuth).Get("/products", h.listProducts)
		r.Get("/products/{id}", h.getProduct)
		r.Get("/categories", h.listCategories)
		r.Get("/categories/{id}", h.getCategory)
		r.With(h.optionalAuth).Post("/coupons/validate", h.validateCoupon)
		r.With(h.requireAPIKey(auth.ScopePaymentsWebhook)).Post("/payments/webhook", h.paymentWebhook)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate, requireRole(auth.RoleCustomer))

			r.Get("/cart", h.getCart)
			r.Delete("/cart", h.clearCart)
			r.Post("/cart/items", h.addCartItem)
			r.Put("/cart/items/{itemId}", h.updateCartItem)
			r.Delete("/cart/items/{itemId}", h.removeCartItem)
			r.Post("/cart/coupon", h.applyCartCoupon)
			r.Delete("/cart/coupon", h.removeCartCoupon)

			r.Get("/addresses", h.listAddresses)
			r.Post("/addresses", h.createAddress)

			r.Post("/orders", h.createOrder)
			r.Get("/orders/my-orders", h.myOrders)
			r.Get("/orders/my-orders/{id}", h.myOrder)
			r.Put("/orders/{id}/cancel", h.cancelOrder)
			r.Post("/orders/{id}/reorder", h.reorder)

			r.Post("/delivery/apply", h.applyAsAgent)
			r.Get("/loyalty", h.loyaltySummary)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate, requireRole(auth.RoleDelivery))

			r.Get("/delivery/me", h.agentMe)
			r.Get("/delivery/current-order", h.agentCurrentOrder)
			r.Put("/delivery/toggle-availability", h.toggleAvailability)
			r.Put("/delivery/location", h.updateLocation)
			r.Put("/delivery/status", h.updateDeliveryStatus)
			r.Post("/delivery/complete", h.completeDelivery)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate, requireRole(auth.RoleAdmin))

			r.Get("/products/admin/low-stock", h.lowStock)
			r.Post("/products", h.createProduct)
			r.Put("/products/{id}", h.updateProduct)
			r.Delete("/products/{id}", h.deleteProduct)

			r.Post("/categories", h.createCategory)
			r.Put("/categories/{id}", h.updateCategory)
			r.Delete("/categories/{id}", h.deleteCategory)

			r.Get("/coupons", h.listCoupons)
			r.Post("/coupons", h.createCoupon)
			r.Delete("/coupons/{id}", h.deactivateCoupon)

			r.Get("/orders/admin/all", h.allOrders)
			r.Get("/orders/admin/{id}", h.adminOrder)
			r.Put("/orders/admin/{id}/status", h.adminUpdateStatus)
			r.Put("/orders/admin/{id}/assign-agent", h.assignAgent)

			r.Get("/delivery/admin/agents", h.listAgents)
			r.Get("/delivery/admin/nearby", h.nearbyAgents)
			r.Put("/delivery/admin/{id}/review", h.reviewAgent)
		})
	})
	return r
}
