// ABOUTME: get_customer_stats tool: per-customer order totals plus overall figures.
// ABOUTME: Both the ranking and the overall figures use the same filters.

package builtins

import (
	"context"
	"fmt"
	"time"

	"github.com/2389/orders-mcp/internal/schema"
	"github.com/2389/orders-mcp/internal/store"
)

// GetCustomerStats aggregates orders by customer.
type GetCustomerStats struct {
	deps Deps
}

type customerArgs struct {
	CustomerName string `json:"customer_name"`
	DateFrom     string `json:"date_from"`
	DateTo       string `json:"date_to"`
	Status       string `json:"status"`
	Limit        int    `json:"limit"`
}

// OverallStats summarizes every matching order.
type OverallStats struct {
	UniqueCustomers   int64   `json:"unique_customers"`
	TotalOrders       int64   `json:"total_orders"`
	TotalRevenue      float64 `json:"total_revenue"`
	AverageOrderValue float64 `json:"average_order_value"`
}

// CustomerView is one customer's totals.
type CustomerView struct {
	CustomerName       string  `json:"customer_name"`
	TotalOrders        int64   `json:"total_orders"`
	TotalSpent         float64 `json:"total_spent"`
	AverageOrderAmount float64 `json:"average_order_amount"`
	FirstOrderDate     string  `json:"first_order_date"`
	LastOrderDate      string  `json:"last_order_date"`
}

// CustomerStatsResult is the get_customer_stats response.
type CustomerStatsResult struct {
	Success           bool           `json:"success"`
	OverallStatistics OverallStats   `json:"overall_statistics"`
	CustomerCount     int            `json:"customer_count"`
	Customers         []CustomerView `json:"customers"`
}

func (t *GetCustomerStats) Name() string { return "get_customer_stats" }

func (t *GetCustomerStats) Description() string {
	return "Rank customers by total spend with order counts and first/last order dates. " +
		`Use status "all" for every status.`
}

func (t *GetCustomerStats) InputSchema() *schema.Schema {
	return schema.Object(map[string]*schema.Schema{
		"customer_name": schema.String("Customer name (substring match)"),
		"date_from":     schema.Date("Earliest order date (YYYY-MM-DD)"),
		"date_to":       schema.Date("Latest order date (YYYY-MM-DD)"),
		"status":        schema.String("Order status").OneOf(statusEnum()...),
		"limit":         schema.Integer("Maximum number of customers").Min(1).Max(100).WithDefault(20),
	}).WithRange("date_from", "date_to")
}

// Timeout covers the two aggregate queries.
func (t *GetCustomerStats) Timeout() time.Duration { return 2*t.deps.Timeouts.Query + handlerSlack }

func (t *GetCustomerStats) Execute(ctx context.Context, raw map[string]any) (any, error) {
	var args customerArgs
	if err := schema.Decode(raw, &args); err != nil {
		return nil, err
	}
	if args.Limit <= 0 {
		args.Limit = 20
	}

	filters := statusFilter("status", args.Status)
	filters = likeFilter(filters, "name", args.CustomerName)
	filters = dateFilters(filters, "created_at", args.DateFrom, args.DateTo)

	rows, err := t.deps.aggregate(ctx, store.Aggregate{
		Table:   store.TableOrders,
		GroupBy: []store.GroupExpr{{Column: "name", Alias: "customer_name"}},
		Metrics: []store.Metric{
			{Func: store.FuncCount, Alias: "total_orders"},
			{Func: store.FuncSum, Column: "amount", Alias: "total_spent"},
			{Func: store.FuncAvg, Column: "amount", Alias: "average_order_amount"},
			{Func: store.FuncMin, Column: "created_at", Alias: "first_order_date"},
			{Func: store.FuncMax, Column: "created_at", Alias: "last_order_date"},
		},
		Filters: filters,
		Sort:    []store.Sort{{Column: "total_spent", Desc: true}, {Column: "customer_name"}},
		Limit:   args.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve customer statistics: %w", err)
	}

	overall, err := t.deps.aggregate(ctx, store.Aggregate{
		Table: store.TableOrders,
		Metrics: []store.Metric{
			{Func: store.FuncCountDistinct, Column: "name", Alias: "unique_customers"},
			{Func: store.FuncCount, Alias: "total_orders"},
			{Func: store.FuncSum, Column: "amount", Alias: "total_revenue"},
			{Func: store.FuncAvg, Column: "amount", Alias: "average_order_value"},
		},
		Filters: filters,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve customer statistics: %w", err)
	}

	res := CustomerStatsResult{Success: true, Customers: make([]CustomerView, 0, len(rows))}
	if len(overall) > 0 {
		o := overall[0]
		res.OverallStatistics = OverallStats{
			UniqueCustomers:   toInt(o["unique_customers"]),
			TotalOrders:       toInt(o["total_orders"]),
			TotalRevenue:      round2(o["total_revenue"]),
			AverageOrderValue: round2(o["average_order_value"]),
		}
	}
	for _, r := range rows {
		res.Customers = append(res.Customers, CustomerView{
			CustomerName:       toString(r["customer_name"]),
			TotalOrders:        toInt(r["total_orders"]),
			TotalSpent:         round2(r["total_spent"]),
			AverageOrderAmount: round2(r["average_order_amount"]),
			FirstOrderDate:     toString(r["first_order_date"]),
			LastOrderDate:      toString(r["last_order_date"]),
		})
	}
	res.CustomerCount = len(res.Customers)
	return res, nil
}
