package handler

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/krishna-marketing/grocer/internal/domain/cart"
	"github.com/krishna-marketing/grocer/internal/domain/catalog"
	"github.com/krishna-marketing/grocer/internal/domain/coupon"
	"github.com/krishna-marketing/grocer/internal/domain/customer"
	"github.com/krishna-marketing/grocer/internal/domain/delivery"
	"github.com/krishna-marketing/grocer/internal/domain/loyalty"
	"github.com/krishna-marketing/grocer/internal/domain/order"
	"github.com/krishna-marketing/grocer/internal/domain/page"
)

func money(d decimal.Decimal) float64 { return d.Round(2).InexactFloat64() }

type variantDTO struct {
	Name  string  `json:"name"`
	Value string  `json:"value"`
	Price float64 `json:"price"`
	MRP   float64 `json:"mrp,omitempty"`
	Stock int     `json:"stock,omitempty"`
}

type productDTO struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	Slug              string       `json:"slug"`
	Description       string       `json:"description,omitempty"`
	CategoryID        string       `json:"categoryId"`
	Price             float64      `json:"price"`
	MRP               float64      `json:"mrp"`
	Discount          int          `json:"discount"`
	Unit              string       `json:"unit"`
	Images            []string     `json:"images"`
	Stock             int          `json:"stock"`
	LowStockThreshold int          `json:"lowStockThreshold"`
	Variants          []variantDTO `json:"variants"`
	IsActive          bool         `json:"isActive"`
	IsFeatured        bool         `json:"isFeatured"`
	Rating            float64      `json:"rating"`
	TotalSold         int          `json:"totalSold"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

// imageURL prepends the configured base URL to relative image paths.
func (h *Handler) imageURL(path string) string {
	if h.cfg.ImageBaseURL == "" || path == "" ||
		strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(h.cfg.ImageBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func (h *Handler) product(p *catalog.Product) productDTO {
	images := make([]string, len(p.Images))
	for i, img := range p.Images {
		images[i] = h.imageURL(img)
	}
	variants := make([]variantDTO, len(p.Variants))
	for i, v := range p.Variants {
		variants[i] = variantDTO{Name: v.Name, Value: v.Value, Price: money(v.Price), MRP: money(v.MRP), Stock: v.Stock}
	}
	return productDTO{
		ID:                p.ID,
		Name:              p.Name,
		Slug:              p.Slug,
		Description:       p.Description,
		CategoryID:        p.CategoryID,
		Price:             money(p.Price),
		MRP:               money(p.MRP),
		Discount:          p.Discount,
		Unit:              p.Unit,
		Images:            images,
		Stock:             p.Stock,
		LowStockThreshold: p.LowStockThreshold,
		Variants:          variants,
		IsActive:          p.IsActive,
		IsFeatured:        p.IsFeatured,
		Rating:            p.Rating,
		TotalSold:         p.TotalSold,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func (h *Handler) products(list []catalog.Product) []productDTO {
	out := make([]productDTO, len(list))
	for i := range list {
		out[i] = h.product(&list[i])
	}
	return out
}

type categoryDTO struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Slug          string        `json:"slug"`
	Description   string        `json:"description,omitempty"`
	ParentID      string        `json:"parentId,omitempty"`
	IsActive      bool          `json:"isActive"`
	Subcategories []categoryDTO `json:"subcategories,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

func category(c *catalog.Category) categoryDTO {
	dto := categoryDTO{
		ID:          c.ID,
		Name:        c.Name,
		Slug:        c.Slug,
		Description: c.Description,
		ParentID:    c.ParentID,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
	}
	for i := range c.Subcategories {
		dto.Subcategories = append(dto.Subcategories, category(&c.Subcategories[i]))
	}
	return dto
}

type cartItemDTO struct {
	ID        string      `json:"id"`
	ProductID string      `json:"productId"`
	Product   *productDTO `json:"product,omitempty"`
	Variant   *variantDTO `json:"variant,omitempty"`
	Quantity  int         `json:"quantity"`
	Price     float64     `json:"price"`
	Total     float64     `json:"total"`
}

type cartDTO struct {
	ID             string        `json:"id,omitempty"`
	Items          []cartItemDTO `json:"items"`
	ItemCount      int           `json:"itemCount"`
	Subtotal       float64       `json:"subtotal"`
	CouponCode     string        `json:"couponCode,omitempty"`
	CouponDiscount float64       `json:"couponDiscount"`
	Total          float64       `json:"total"`
	UpdatedAt      time.Time     `json:"updatedAt,omitzero"`
}

func (h *Handler) cart(c *cart.Cart) cartDTO {
	dto := cartDTO{
		ID:             c.ID,
		Items:          make([]cartItemDTO, len(c.Items)),
		ItemCount:      c.ItemCount(),
		CouponCode:     c.CouponCode,
		CouponDiscount: money(c.CouponDiscount),
		UpdatedAt:      c.UpdatedAt,
	}
	subtotal := c.Subtotal()
	dto.Subtotal = money(subtotal)
	total := subtotal.Sub(c.CouponDiscount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	dto.Total = money(total)

	for i, it := range c.Items {
		item := cartItemDTO{
			ID:        it.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     money(it.Price),
			Total:     money(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))),
		}
		if it.Variant != nil {
			item.Variant = &variantDTO{Name: it.Variant.Name, Value: it.Variant.Value, Price: money(it.Variant.Price)}
		}
		if it.Product != nil {
			p := h.product(it.Product)
			item.Product = &p
		}
		dto.Items[i] = item
	}
	return dto
}

type couponDTO struct {
	ID              string    `json:"id"`
	Code            string    `json:"code"`
	Description     string    `json:"description,omitempty"`
	Type            string    `json:"type"`
	Value           float64   `json:"value"`
	MinOrderAmount  float64   `json:"minOrderAmount"`
	MaxDiscount     float64   `json:"maxDiscount,omitempty"`
	MaxUsage        int       `json:"maxUsage"`
	UsageCount      int       `json:"usageCount"`
	MaxUsagePerUser int       `json:"maxUsagePerUser"`
	StartDate       time.Time `json:"startDate,omitzero"`
	EndDate         time.Time `json:"endDate,omitzero"`
	IsActive        bool      `json:"isActive"`
	CreatedAt       time.Time `json:"createdAt"`
}

func couponOf(c *coupon.Coupon) couponDTO {
	return couponDTO{
		ID:              c.ID,
		Code:            c.Code,
		Description:     c.Description,
		Type:            string(c.Type),
		Value:           money(c.Value),
		MinOrderAmount:  money(c.MinOrderAmount),
		MaxDiscount:     money(c.MaxDiscount),
		MaxUsage:        c.MaxUsage,
		UsageCount:      c.UsageCount,
		MaxUsagePerUser: c.MaxUsagePerUser,
		StartDate:       c.StartDate,
		EndDate:         c.EndDate,
		IsActive:        c.IsActive,
		CreatedAt:       c.CreatedAt,
	}
}

type addressDTO struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Line1     string `json:"line1"`
	Line2     string `json:"line2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state"`
	Pincode   string `json:"pincode"`
	Phone     string `json:"phone,omitempty"`
	IsDefault bool   `json:"isDefault"`
}

func address(a *customer.Address) addressDTO {
	return addressDTO{
		ID:        a.ID,
		Label:     a.Label,
		Line1:     a.Line1,
		Line2:     a.Line2,
		City:      a.City,
		State:     a.State,
		Pincode:   a.Pincode,
		Phone:     a.Phone,
		IsDefault: a.IsDefault,
	}
}

type orderItemDTO struct {
	ProductID string      `json:"productId"`
	Name      string      `json:"name"`
	Image     string      `json:"image,omitempty"`
	Variant   *variantDTO `json:"variant,omitempty"`
	Price     float64     `json:"price"`
	Quantity  int         `json:"quantity"`
	Total     float64     `json:"total"`
}

type statusChangeDTO struct {
	Status string    `json:"status"`
	Note   string    `json:"note,omitempty"`
	At     time.Time `json:"timestamp"`
}

// orderDTO is the read model of an order. The delivery OTP is deliberately
// absent.
type orderDTO struct {
	ID                    string            `json:"id"`
	OrderNumber           string            `json:"orderNumber"`
	UserID                string            `json:"userId"`
	Items                 []orderItemDTO    `json:"items"`
	ShippingAddress       order.Address     `json:"shippingAddress"`
	Subtotal              float64           `json:"subtotal"`
	DeliveryCharge        float64           `json:"deliveryCharge"`
	CouponCode            string            `json:"couponCode,omitempty"`
	CouponDiscount        float64           `json:"couponDiscount"`
	LoyaltyPointsUsed     int64             `json:"loyaltyPointsUsed"`
	LoyaltyPointsDiscount float64           `json:"loyaltyPointsDiscount"`
	LoyaltyPointsEarned   int64             `json:"loyaltyPointsEarned"`
	TotalAmount           float64           `json:"totalAmount"`
	PaymentMethod         string            `json:"paymentMethod"`
	PaymentStatus         string            `json:"paymentStatus"`
	Status                string            `json:"status"`
	StatusHistory         []statusChangeDTO `json:"statusHistory"`
	DeliveryAgentID       string            `json:"deliveryAgentId,omitempty"`
	CancelReason          string            `json:"cancelReason,omitempty"`
	Notes                 string            `json:"notes,omitempty"`
	ConfirmedAt           *time.Time        `json:"confirmedAt,omitempty"`
	PickedUpAt            *time.Time        `json:"pickedUpAt,omitempty"`
	DeliveredAt           *time.Time        `json:"deliveredAt,omitempty"`
	CancelledAt           *time.Time        `json:"cancelledAt,omitempty"`
	CreatedAt             time.Time         `json:"createdAt"`
	UpdatedAt             time.Time         `json:"updatedAt"`
}

func (h *Handler) order(o *order.Order) orderDTO {
	dto := orderDTO{
		ID:                    o.ID,
		OrderNumber:           o.Number,
		UserID:                o.UserID,
		Items:                 make([]orderItemDTO, len(o.Items)),
		ShippingAddress:       o.Address,
		Subtotal:              money(o.Subtotal),
		DeliveryCharge:        money(o.DeliveryCharge),
		CouponCode:            o.CouponCode,
		CouponDiscount:        money(o.CouponDiscount),
		LoyaltyPointsUsed:     o.LoyaltyPointsUsed,
		LoyaltyPointsDiscount: money(o.LoyaltyPointsDiscount),
		LoyaltyPointsEarned:   o.LoyaltyPointsEarned,
		TotalAmount:           money(o.TotalAmount),
		PaymentMethod:         string(o.PaymentMethod),
		PaymentStatus:         string(o.PaymentStatus),
		Status:                string(o.Status),
		StatusHistory:         make([]statusChangeDTO, len(o.History)),
		DeliveryAgentID:       o.DeliveryAgentID,
		CancelReason:          o.CancelReason,
		Notes:                 o.Notes,
		ConfirmedAt:           o.ConfirmedAt,
		PickedUpAt:            o.PickedUpAt,
		DeliveredAt:           o.DeliveredAt,
		CancelledAt:           o.CancelledAt,
		CreatedAt:             o.CreatedAt,
		UpdatedAt:             o.UpdatedAt,
	}
	for i, it := range o.Items {
		item := orderItemDTO{
			ProductID: it.ProductID,
			Name:      it.Name,
			Image:     h.imageURL(it.Image),
			Price:     money(it.Price),
			Quantity:  it.Quantity,
			Total:     money(it.Total),
		}
		if it.Variant != nil {
			item.Variant = &variantDTO{Name: it.Variant.Name, Value: it.Variant.Value, Price: money(it.Variant.Price)}
		}
		dto.Items[i] = item
	}
	for i, c := range o.History {
		dto.StatusHistory[i] = statusChangeDTO{Status: string(c.Status), Note: c.Note, At: c.At}
	}
	return dto
}

type orderPageDTO struct {
	Orders     []orderDTO `json:"orders"`
	Pagination page.Info  `json:"pagination"`
}

func (h *Handler) orderPage(p *order.Page) orderPageDTO {
	out := orderPageDTO{Orders: make([]orderDTO, len(p.Items)), Pagination: p.Pagination}
	for i := range p.Items {
		out.Orders[i] = h.order(&p.Items[i])
	}
	return out
}

type agentDTO struct {
	ID                string             `json:"id"`
	UserID            string             `json:"userId"`
	Name              string             `json:"name,omitempty"`
	Phone             string             `json:"phone,omitempty"`
	VehicleType       string             `json:"vehicleType"`
	VehicleNumber     string             `json:"vehicleNumber,omitempty"`
	Status            string             `json:"status"`
	IsActive          bool               `json:"isActive"`
	IsOnline          bool               `json:"isOnline"`
	IsAvailable       bool               `json:"isAvailable"`
	Location          *delivery.Location `json:"location,omitempty"`
	LocationUpdatedAt *time.Time         `json:"locationUpdatedAt,omitempty"`
	CurrentOrderID    string             `json:"currentOrderId,omitempty"`
	TotalDeliveries   int                `json:"totalDeliveries"`
	Rating            float64            `json:"rating"`
	Earnings          float64            `json:"earnings"`
	DistanceMeters    *float64           `json:"distance,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
}

func agent(a *delivery.Agent) agentDTO {
	return agentDTO{
		ID:                a.ID,
		UserID:            a.UserID,
		Name:              a.Name,
		Phone:             a.Phone,
		VehicleType:       a.VehicleType,
		VehicleNumber:     a.VehicleNumber,
		Status:            string(a.Status),
		IsActive:          a.IsActive,
		IsOnline:          a.IsOnline,
		IsAvailable:       a.IsAvailable,
		Location:          a.Location,
		LocationUpdatedAt: a.LocationUpdatedAt,
		CurrentOrderID:    a.CurrentOrderID,
		TotalDeliveries:   a.TotalDeliveries,
		Rating:            a.Rating,
		Earnings:          money(a.Earnings),
		CreatedAt:         a.CreatedAt,
	}
}

type ledgerEntryDTO struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Points      int64      `json:"points"`
	OrderID     string     `json:"orderId,omitempty"`
	Description string     `json:"description"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type loyaltyDTO struct {
	Balance int64            `json:"balance"`
	Value   float64          `json:"value"`
	History []ledgerEntryDTO `json:"history"`
}

func loyaltyOf(s *loyalty.Summary) loyaltyDTO {
	dto := loyaltyDTO{
		Balance: s.Balance,
		Value:   money(loyalty.Value(s.Balance)),
		History: make([]ledgerEntryDTO, len(s.History)),
	}
	for i, e := range s.History {
		dto.History[i] = ledgerEntryDTO{
			ID:          e.ID,
			Type:        string(e.Type),
			Points:      e.Points,
			OrderID:     e.OrderID,
			Description: e.Description,
			ExpiresAt:   e.ExpiresAt,
			CreatedAt:   e.CreatedAt,
		}
	}
	return dto
}
