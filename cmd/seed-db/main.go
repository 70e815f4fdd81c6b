// Command seed-db applies migrations and loads demo data: accounts, a saved
// address, categories, products, coupons, an approved delivery partner and
// the payment webhook API key. --shoppers adds that many extra customers,
// each with an address. Running it again leaves existing rows alone.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/krishna-marketing/grocer/internal/domain/auth"
	"github.com/krishna-marketing/grocer/internal/domain/catalog"
	"github.com/krishna-marketing/grocer/internal/domain/coupon"
	"github.com/krishna-marketing/grocer/internal/domain/customer"
	"github.com/krishna-marketing/grocer/internal/domain/delivery"
	"github.com/krishna-marketing/grocer/internal/domain/order"
	"github.com/krishna-marketing/grocer/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
		shoppers     int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "payment webhook API key to seed (or GROCER_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or GROCER_API_KEY_PEPPER env)")
	flag.IntVar(&shoppers, "shoppers", 0, "extra customer accounts to create, shopper01@example.com onwards")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("GROCER_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or GROCER_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("GROCER_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, apiKey, apiKeyPepper, shoppers); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

type seeder struct {
	customers *postgres.CustomerRepository
	apikeys   *postgres.APIKeyRepository

	accounts *customer.Service
	catalog  *catalog.Service
	coupons  *coupon.Service
	delivery *delivery.Service
}

func run(ctx context.Context, databaseURL, apiKey, pepper string, shoppers int) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL, 0)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	tx := postgres.NewTransactor(pool)
	customers := postgres.NewCustomerRepository(pool)
	s := &seeder{
		customers: customers,
		apikeys:   postgres.NewAPIKeyRepository(pool),
		accounts:  customer.NewService(customers, tx),
		catalog:   catalog.NewService(postgres.NewProductRepository(pool), postgres.NewCategoryRepository(pool)),
		coupons:   coupon.NewService(postgres.NewCouponRepository(pool)),
	}
	// Agents are only reviewed here, so no order service is needed.
	s.delivery = delivery.NewService(postgres.NewAgentRepository(pool), noOrders{}, customers, nil, tx)

	users, err := s.seedUsers(ctx)
	if err != nil {
		return errors.Wrap(err, "seed users")
	}
	if err := s.seedAddress(ctx, users["customer"]); err != nil {
		return errors.Wrap(err, "seed address")
	}
	if err := s.seedShoppers(ctx, shoppers); err != nil {
		return errors.Wrap(err, "seed shoppers")
	}
	categories, err := s.seedCategories(ctx)
	if err != nil {
		return errors.Wrap(err, "seed categories")
	}
	if err := s.seedProducts(ctx, categories); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := s.seedCoupons(ctx); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := s.seedAgent(ctx, users["delivery"]); err != nil {
		return errors.Wrap(err, "seed agent")
	}
	if err := s.seedAPIKey(ctx, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	return nil
}

func (s *seeder) seedUsers(ctx context.Context) (map[string]string, error) {
	accounts := []struct {
		key  string
		user customer.Customer
	}{
		{"superadmin", customer.Customer{Name: "Owner", Email: "owner@krishnamarketing.in", Phone: "9000000001", Role: auth.RoleSuperAdmin}},
		{"admin", customer.Customer{Name: "Store Admin", Email: "admin@krishnamarketing.in", Phone: "9000000002", Role: auth.RoleAdmin}},
		{"customer", customer.Customer{Name: "Asha Verma", Email: "asha@example.com", Phone: "9000000003", Role: auth.RoleCustomer}},
		{"delivery", customer.Customer{Name: "Ravi Kumar", Email: "ravi@example.com", Phone: "9000000004", Role: auth.RoleDelivery}},
	}

	ids := make(map[string]string, len(accounts))
	for _, a := range accounts {
		u := a.user
		u.ID = userID(u.Email)
		u.IsActive = true
		if err := s.customers.UpsertUser(ctx, &u); err != nil {
			return nil, err
		}
		ids[a.key] = u.ID
		slog.Info("upserted user", slog.String("id", u.ID), slog.String("email", u.Email), slog.String("role", string(u.Role)))
	}
	return ids, nil
}

func (s *seeder) seedShoppers(ctx context.Context, n int) error {
	for i := 1; i <= n; i++ {
		u := customer.Customer{
			Name:     fmt.Sprintf("Shopper %02d", i),
			Email:    fmt.Sprintf("shopper%02d@example.com", i),
			Phone:    fmt.Sprintf("91%08d", i),
			Role:     auth.RoleCustomer,
			IsActive: true,
		}
		u.ID = userID(u.Email)
		if err := s.customers.UpsertUser(ctx, &u); err != nil {
			return err
		}
		if err := s.seedAddress(ctx, u.ID); err != nil {
			return errors.Wrapf(err, "address of %s", u.Email)
		}
	}
	if n > 0 {
		slog.Info("upserted shoppers", slog.Int("count", n))
	}
	return nil
}

// userID derives a stable account id from the e-mail so reruns and test
// clients agree on it.
func userID(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+email)).String()
}

func (s *seeder) seedAddress(ctx context.Context, userID string) error {
	existing, err := s.accounts.ListAddresses(ctx, userID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		slog.Info("address exists, skipping", slog.String("user_id", userID))
		return nil
	}
	a, err := s.accounts.CreateAddress(ctx, userID, customer.AddressInput{
		Label:     "Home",
		Line1:     "14, 2nd Cross, Indiranagar",
		City:      "Bengaluru",
		State:     "Karnataka",
		Pincode:   "560038",
		Phone:     "9000000003",
		IsDefault: true,
	})
	if err != nil {
		return err
	}
	slog.Info("created address", slog.String("id", a.ID))
	return nil
}

// seedCategories returns category ids by name.
func (s *seeder) seedCategories(ctx context.Context) (map[string]string, error) {
	tree := []struct {
		name     string
		desc     string
		children []string
	}{
		{"Staples", "Rice, flour, pulses and oil", []string{"Rice", "Atta & Flours", "Dals & Pulses"}},
		{"Dairy", "Milk, curd and paneer", nil},
		{"Snacks", "Namkeen, biscuits and chips", nil},
	}

	ids := map[string]string{}
	for _, c := range tree {
		id, err := s.category(ctx, catalog.CategoryInput{Name: c.name, Description: c.desc})
		if err != nil {
			return nil, err
		}
		ids[c.name] = id
		for _, child := range c.children {
			childID, err := s.category(ctx, catalog.CategoryInput{Name: child, ParentID: id})
			if err != nil {
				return nil, err
			}
			ids[child] = childID
		}
	}
	return ids, nil
}

func (s *seeder) category(ctx context.Context, in catalog.CategoryInput) (string, error) {
	c, err := s.catalog.CreateCategory(ctx, in)
	if errors.Is(err, catalog.ErrSlugTaken) {
		c, err = s.catalog.GetCategory(ctx, catalog.Slugify(in.Name))
		if err != nil {
			return "", errors.Wrapf(err, "get category %s", in.Name)
		}
		return c.ID, nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "create category %s", in.Name)
	}
	slog.Info("created category", slog.String("id", c.ID), slog.String("name", c.Name))
	return c.ID, nil
}

func (s *seeder) seedProducts(ctx context.Context, categories map[string]string) error {
	d := decimal.RequireFromString
	products := []struct {
		category string
		in       catalog.ProductInput
	}{
		{"Rice", catalog.ProductInput{
			Name: "India Gate Basmati Rice", Unit: "1 kg", Price: d("145"), MRP: d("180"), Stock: 120,
			LowStockThreshold: 10, IsFeatured: true, Images: []string{"products/basmati.jpg"},
			Variants: []catalog.Variant{
				{Name: "Pack", Value: "5 kg", Price: d("690"), MRP: d("850"), Stock: 40},
			},
		}},
		{"Atta & Flours", catalog.ProductInput{
			Name: "Aashirvaad Whole Wheat Atta", Unit: "5 kg", Price: d("265"), MRP: d("295"), Stock: 80,
			LowStockThreshold: 10, Images: []string{"products/atta.jpg"},
		}},
		{"Dals & Pulses", catalog.ProductInput{
			Name: "Toor Dal", Unit: "1 kg", Price: d("160"), MRP: d("175"), Stock: 60,
			LowStockThreshold: 8, Images: []string{"products/toor-dal.jpg"},
		}},
		{"Dairy", catalog.ProductInput{
			Name: "Nandini Toned Milk", Unit: "500 ml", Price: d("24"), MRP: d("24"), Stock: 200,
			LowStockThreshold: 30, IsFeatured: true, Images: []string{"products/milk.jpg"},
		}},
		{"Dairy", catalog.ProductInput{
			Name: "Amul Fresh Paneer", Unit: "200 g", Price: d("90"), MRP: d("95"), Stock: 5,
			LowStockThreshold: 10, Images: []string{"products/paneer.jpg"},
		}},
		{"Snacks", catalog.ProductInput{
			Name: "Haldiram's Aloo Bhujia", Unit: "400 g", Price: d("105"), MRP: d("120"), Stock: 75,
			LowStockThreshold: 10, Images: []string{"products/bhujia.jpg"},
		}},
	}

	for _, p := range products {
		in := p.in
		in.CategoryID = categories[p.category]
		created, err := s.catalog.CreateProduct(ctx, in)
		if errors.Is(err, catalog.ErrSlugTaken) {
			slog.Info("product exists, skipping", slog.String("name", in.Name))
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "create product %s", in.Name)
		}
		slog.Info("created product", slog.String("id", created.ID), slog.String("slug", created.Slug))
	}
	return nil
}

func (s *seeder) seedCoupons(ctx context.Context) error {
	now := time.Now()
	coupons := []coupon.Input{
		{
			Code:           "SAVE20",
			Description:    "20% off orders above Rs 300, up to Rs 100",
			Type:           coupon.TypePercentage,
			Value:          decimal.NewFromInt(20),
			MinOrderAmount: decimal.NewFromInt(300),
			MaxDiscount:    decimal.NewFromInt(100),
			StartDate:      now,
			EndDate:        now.AddDate(1, 0, 0),
		},
		{
			Code:            "WELCOME50",
			Description:     "Rs 50 off your first order",
			Type:            coupon.TypeFlat,
			Value:           decimal.NewFromInt(50),
			MinOrderAmount:  decimal.NewFromInt(199),
			MaxUsagePerUser: 1,
			StartDate:       now,
			EndDate:         now.AddDate(0, 6, 0),
		},
	}

	for _, in := range coupons {
		c, err := s.coupons.Create(ctx, in)
		if errors.Is(err, coupon.ErrCodeTaken) {
			slog.Info("coupon exists, skipping", slog.String("code", in.Code))
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "create coupon %s", in.Code)
		}
		slog.Info("created coupon", slog.String("code", c.Code), slog.String("description", c.Description))
	}
	return nil
}

func (s *seeder) seedAgent(ctx context.Context, userID string) error {
	a, err := s.delivery.Apply(ctx, userID, delivery.ApplyRequest{
		VehicleType:   "motorcycle",
		VehicleNumber: "KA01AB1234",
	})
	if errors.Is(err, delivery.ErrAlreadyApplied) {
		slog.Info("delivery partner exists, skipping", slog.String("user_id", userID))
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := s.delivery.Review(ctx, a.ID, delivery.ApplicationApproved); err != nil {
		return errors.Wrap(err, "approve")
	}
	slog.Info("approved delivery partner", slog.String("id", a.ID), slog.String("user_id", userID))
	return nil
}

func (s *seeder) seedAPIKey(ctx context.Context, apiKey, pepper string) error {
	slog.Info("seeding payment webhook API key")

	info := auth.APIKeyInfo{
		ID:      "payments",
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "Payment gateway webhook",
		Scopes:  []string{auth.ScopePaymentsWebhook},
	}
	if err := s.apikeys.Save(ctx, info); err != nil {
		return err
	}

	slog.Info("upserted API key", slog.String("id", info.ID), slog.String("name", info.Name))
	return nil
}

// noOrders satisfies delivery.Orders for tooling that never touches orders.
type noOrders struct{}

var errNoOrders = errors.New("orders are not available in seed-db")

func (noOrders) Get(context.Context, string) (*order.Order, error) { return nil, errNoOrders }

func (noOrders) Dispatch(context.Context, string, string) (*order.Order, error) {
	return nil, errNoOrders
}

func (noOrders) Advance(context.Context, string, string, order.Status, string) (*order.Order, error) {
	return nil, errNoOrders
}
