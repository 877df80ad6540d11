// ABOUTME: get_orders tool: filtered order lookup joined with product names.
// ABOUTME: Results are newest first and never exceed the requested limit.

package builtins

import (
	"context"
	"fmt"
	"time"

	"github.com/2389/orders-mcp/internal/schema"
	"github.com/2389/orders-mcp/internal/store"
)

// GetOrders looks up orders.
type GetOrders struct {
	deps Deps
}

type ordersArgs struct {
	TransactionID string   `json:"transaction_id"`
	CustomerName  string   `json:"customer_name"`
	Status        string   `json:"status"`
	ProductName   string   `json:"product_name"`
	MinAmount     *float64 `json:"min_amount"`
	MaxAmount     *float64 `json:"max_amount"`
	DateFrom      string   `json:"date_from"`
	DateTo        string   `json:"date_to"`
	Limit         int      `json:"limit"`
}

// OrderView is one order as returned to clients.
type OrderView struct {
	TransactionID string  `json:"transaction_id"`
	CustomerName  string  `json:"customer_name"`
	ProductName   string  `json:"product_name"`
	Quantity      int64   `json:"quantity"`
	Amount        float64 `json:"amount"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

// OrdersResult is the get_orders response.
type OrdersResult struct {
	Success bool        `json:"success"`
	Total   int         `json:"total"`
	Orders  []OrderView `json:"orders"`
}

func (t *GetOrders) Name() string { return "get_orders" }

func (t *GetOrders) Description() string {
	return "Look up orders by transaction id, customer, status, product, amount range, or date range. " +
		`Use status "all" for every status.`
}

func (t *GetOrders) InputSchema() *schema.Schema {
	return schema.Object(map[string]*schema.Schema{
		"transaction_id": schema.String("Transaction id (substring match)"),
		"customer_name":  schema.String("Customer name (substring match)"),
		"status":         schema.String("Order status").OneOf(statusEnum()...),
		"product_name":   schema.String("Product name (substring match)"),
		"min_amount":     schema.Number("Minimum order amount").Min(0),
		"max_amount":     schema.Number("Maximum order amount").Min(0),
		"date_from":      schema.Date("Earliest order date (YYYY-MM-DD)"),
		"date_to":        schema.Date("Latest order date (YYYY-MM-DD)"),
		"limit":          schema.Integer("Maximum number of orders").Min(1).Max(100).WithDefault(10),
	}).WithRange("min_amount", "max_amount").WithRange("date_from", "date_to")
}

func (t *GetOrders) Timeout() time.Duration { return t.deps.Timeouts.Query + handlerSlack }

func (t *GetOrders) Execute(ctx context.Context, raw map[string]any) (any, error) {
	var args ordersArgs
	if err := schema.Decode(raw, &args); err != nil {
		return nil, err
	}
	if args.Limit <= 0 {
		args.Limit = 10
	}

	filters := statusFilter("status", args.Status)
	filters = likeFilter(filters, "transaction_id", args.TransactionID)
	filters = likeFilter(filters, "customer_name", args.CustomerName)
	filters = likeFilter(filters, "product_name", args.ProductName)
	if args.MinAmount != nil {
		filters = append(filters, store.Filter{Column: "amount", Op: store.OpGte, Value: *args.MinAmount})
	}
	if args.MaxAmount != nil {
		filters = append(filters, store.Filter{Column: "amount", Op: store.OpLte, Value: *args.MaxAmount})
	}
	filters = dateFilters(filters, "created_at", args.DateFrom, args.DateTo)

	rows, err := t.deps.query(ctx, store.Query{
		Table: store.TableOrderDetails,
		Columns: []string{
			"transaction_id", "customer_name", "product_name", "quantity",
			"amount", "status", "created_at", "updated_at",
		},
		Filters: filters,
		Sort:    []store.Sort{{Column: "created_at", Desc: true}, {Column: "id", Desc: true}},
		Limit:   args.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve orders: %w", err)
	}

	orders := make([]OrderView, 0, len(rows))
	for _, r := range rows {
		orders = append(orders, orderView(r))
	}
	return OrdersResult{Success: true, Total: len(orders), Orders: orders}, nil
}

func orderView(r store.Row) OrderView {
	product := toString(r["product_name"])
	if product == "" {
		product = "Unknown"
	}
	return OrderView{
		TransactionID: toString(r["transaction_id"]),
		CustomerName:  toString(r["customer_name"]),
		ProductName:   product,
		Quantity:      toInt(r["quantity"]),
		Amount:        round2(r["amount"]),
		Status:        toString(r["status"]),
		CreatedAt:     toString(r["created_at"]),
		UpdatedAt:     toString(r["updated_at"]),
	}
}
