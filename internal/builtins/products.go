// ABOUTME: get_products tool: catalog lookup by name, category, price range, and active flag.

package builtins

import (
	"context"
	"fmt"
	"time"

	"github.com/2389/orders-mcp/internal/schema"
	"github.com/2389/orders-mcp/internal/store"
)

// GetProducts looks up catalog entries.
type GetProducts struct {
	deps Deps
}

type productsArgs struct {
	Name     string   `json:"name"`
	Category string   `json:"category"`
	MinPrice *float64 `json:"min_price"`
	MaxPrice *float64 `json:"max_price"`
	Active   *bool    `json:"active"`
	Limit    int      `json:"limit"`
}

// ProductView is one product as returned to clients.
type ProductView struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Price         float64 `json:"price"`
	Category      string  `json:"category"`
	StockQuantity int64   `json:"stock_quantity"`
	IsActive      bool    `json:"is_active"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

// ProductsResult is the get_products response.
type ProductsResult struct {
	Success  bool          `json:"success"`
	Total    int           `json:"total"`
	Products []ProductView `json:"products"`
}

func (t *GetProducts) Name() string { return "get_products" }

func (t *GetProducts) Description() string {
	return "Look up products by name, category, price range, or active flag."
}

func (t *GetProducts) InputSchema() *schema.Schema {
	return schema.Object(map[string]*schema.Schema{
		"name":      schema.String("Product name (substring match)"),
		"category":  schema.String("Category (substring match)"),
		"min_price": schema.Number("Minimum price").Min(0),
		"max_price": schema.Number("Maximum price").Min(0),
		"active":    schema.Boolean("Only active (true) or inactive (false) products"),
		"limit":     schema.Integer("Maximum number of products").Min(1).Max(100).WithDefault(10),
	}).WithRange("min_price", "max_price")
}

func (t *GetProducts) Timeout() time.Duration { return t.deps.Timeouts.Query + handlerSlack }

func (t *GetProducts) Execute(ctx context.Context, raw map[string]any) (any, error) {
	var args productsArgs
	if err := schema.Decode(raw, &args); err != nil {
		return nil, err
	}
	if args.Limit <= 0 {
		args.Limit = 10
	}

	var filters []store.Filter
	filters = likeFilter(filters, "name", args.Name)
	filters = likeFilter(filters, "category", args.Category)
	if args.MinPrice != nil {
		filters = append(filters, store.Filter{Column: "price", Op: store.OpGte, Value: *args.MinPrice})
	}
	if args.MaxPrice != nil {
		filters = append(filters, store.Filter{Column: "price", Op: store.OpLte, Value: *args.MaxPrice})
	}
	if args.Active != nil {
		filters = append(filters, store.Filter{Column: "is_active", Op: store.OpEq, Value: *args.Active})
	}

	rows, err := t.deps.query(ctx, store.Query{
		Table:   store.TableProducts,
		Filters: filters,
		Sort:    []store.Sort{{Column: "name"}},
		Limit:   args.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve products: %w", err)
	}

	products := make([]ProductView, 0, len(rows))
	for _, r := range rows {
		products = append(products, productView(r))
	}
	return ProductsResult{Success: true, Total: len(products), Products: products}, nil
}

func productView(r store.Row) ProductView {
	return ProductView{
		ID:            toInt(r["id"]),
		Name:          toString(r["name"]),
		Description:   toString(r["description"]),
		Price:         round2(r["price"]),
		Category:      toString(r["category"]),
		StockQuantity: toInt(r["stock_quantity"]),
		IsActive:      toBool(r["is_active"]),
		CreatedAt:     toString(r["created_at"]),
		UpdatedAt:     toString(r["updated_at"]),
	}
}
