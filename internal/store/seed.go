// ABOUTME: Inserts products and orders, and seeds a demo catalog with randomized order history
// ABOUTME: Used by the seed command and by tests that need a populated database

package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"
)

// execer is satisfied by *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InsertProduct stores a product and returns its id.
func (s *SQLStore) InsertProduct(ctx context.Context, p Product) (int64, error) {
	return s.insertProduct(ctx, s.db, p)
}

// InsertOrder stores an order and returns its id.
func (s *SQLStore) InsertOrder(ctx context.Context, o Order) (int64, error) {
	return s.insertOrder(ctx, s.db, o)
}

func (s *SQLStore) insertProduct(ctx context.Context, ex execer, p Product) (int64, error) {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}

	var active any = p.IsActive
	if s.dialect.name != DialectPostgres {
		active = boolInt(p.IsActive)
	}

	id, err := s.insert(ctx, ex, TableProducts,
		[]string{"name", "description", "price", "stock_quantity", "category", "is_active", "created_at", "updated_at"},
		p.Name, p.Description, p.Price, p.StockQuantity, p.Category, active,
		p.CreatedAt.Format(DateTimeLayout), p.UpdatedAt.Format(DateTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("inserting product %q: %w", p.Name, err)
	}
	return id, nil
}

func (s *SQLStore) insertOrder(ctx context.Context, ex execer, o Order) (int64, error) {
	now := time.Now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	if o.Status == "" {
		o.Status = StatusPending
	}

	var productID any
	if o.ProductID != 0 {
		productID = o.ProductID
	}

	id, err := s.insert(ctx, ex, TableOrders,
		[]string{"transaction_id", "name", "amount", "status", "product_id", "quantity", "created_at", "updated_at"},
		o.TransactionID, o.CustomerName, o.Amount, o.Status, productID, o.Quantity,
		o.CreatedAt.Format(DateTimeLayout), o.UpdatedAt.Format(DateTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("inserting order %q: %w", o.TransactionID, err)
	}
	return id, nil
}

func (s *SQLStore) insert(ctx context.Context, ex execer, table string, cols []string, args ...any) (int64, error) {
	marks := make([]string, len(args))
	for i := range args {
		marks[i] = s.dialect.placeholder(i + 1)
	}
	query := "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"

	// lib/pq does not implement LastInsertId
	if s.dialect.name == DialectPostgres {
		var id int64
		if err := ex.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SampleProducts is the demo catalog: drinks, snacks, and ice cream.
var SampleProducts = []Product{
	{Name: "可口可樂", Description: "經典汽水飲料", Price: 15.50, StockQuantity: 100, Category: "飲料", IsActive: true},
	{Name: "樂事薯片", Description: "原味薯片", Price: 12.80, StockQuantity: 80, Category: "零食", IsActive: true},
	{Name: "哈根達斯雪糕", Description: "雲呢拿味雪糕", Price: 45.00, StockQuantity: 30, Category: "雪糕", IsActive: true},
	{Name: "百事可樂", Description: "百事汽水", Price: 14.90, StockQuantity: 120, Category: "飲料", IsActive: true},
	{Name: "品客薯片", Description: "酸忌廉洋蔥味", Price: 18.50, StockQuantity: 60, Category: "零食", IsActive: true},
	{Name: "明治雪糕", Description: "朱古力味雪糕", Price: 25.00, StockQuantity: 40, Category: "雪糕", IsActive: true},
	{Name: "芬達橙汁", Description: "橙味汽水", Price: 13.50, StockQuantity: 90, Category: "飲料", IsActive: true},
	{Name: "奇多芝士條", Description: "芝士味玉米條", Price: 16.80, StockQuantity: 70, Category: "零食", IsActive: true},
	{Name: "和路雪雪糕", Description: "士多啤梨味雪糕", Price: 22.50, StockQuantity: 35, Category: "雪糕", IsActive: true},
	{Name: "雪碧", Description: "檸檬汽水", Price: 14.50, StockQuantity: 110, Category: "飲料", IsActive: true},
}

// SampleCustomers are the customer names used for generated orders.
var SampleCustomers = []string{
	"陳大明", "李小芳", "王志強", "張美麗", "劉家豪",
	"黃詩雅", "林建華", "吳雅文", "鄭志明", "何淑儀",
	"梁偉強", "蔡美玲", "羅家輝", "馬詩琪", "徐志偉",
}

// SeedOptions controls demo data generation
type SeedOptions struct {
	Orders int
	Days   int // orders are spread over this many days before Now
	Now    time.Time
	Rand   *rand.Rand
}

// SeedResult reports what Seed inserted
type SeedResult struct {
	Products int
	Orders   int
}

// Seed inserts SampleProducts and opts.Orders random orders inside one transaction.
func (s *SQLStore) Seed(ctx context.Context, opts SeedOptions) (SeedResult, error) {
	if opts.Orders <= 0 {
		opts.Orders = 500
	}
	if opts.Days <= 0 {
		opts.Days = 30
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(uint64(opts.Now.UnixNano()), 0))
	}
	rng := opts.Rand

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SeedResult{}, fmt.Errorf("beginning seed transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	products := make([]Product, 0, len(SampleProducts))
	for _, p := range SampleProducts {
		p.CreatedAt = opts.Now
		id, err := s.insertProduct(ctx, tx, p)
		if err != nil {
			return SeedResult{}, err
		}
		p.ID = id
		products = append(products, p)
	}

	for i := 1; i <= opts.Orders; i++ {
		p := products[rng.IntN(len(products))]
		qty := rng.IntN(5) + 1
		created := opts.Now.Add(-time.Duration(rng.IntN(opts.Days+1)) * 24 * time.Hour).
			Add(-time.Duration(rng.IntN(24)) * time.Hour).
			Add(-time.Duration(rng.IntN(60)) * time.Minute)
		updated := created.Add(time.Duration(rng.IntN(72)) * time.Hour)
		if updated.After(opts.Now) {
			updated = opts.Now
		}

		o := Order{
			TransactionID: fmt.Sprintf("TXN%06d", i),
			CustomerName:  SampleCustomers[rng.IntN(len(SampleCustomers))],
			Amount:        math.Round(p.Price*float64(qty)*100) / 100,
			Status:        Statuses[rng.IntN(len(Statuses))],
			ProductID:     p.ID,
			Quantity:      qty,
			CreatedAt:     created,
			UpdatedAt:     updated,
		}
		if _, err := s.insertOrder(ctx, tx, o); err != nil {
			return SeedResult{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return SeedResult{}, fmt.Errorf("committing seed transaction: %w", err)
	}

	s.logger.Info("seeded sample data", "products", len(products), "orders", opts.Orders)
	return SeedResult{Products: len(products), Orders: opts.Orders}, nil
}
