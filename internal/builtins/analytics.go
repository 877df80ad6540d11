// ABOUTME: get_order_analytics tool: order volume and revenue grouped by day, month, status, or product.
// ABOUTME: Each analytics type maps to one Aggregate against the store.

package builtins

import (
	"context"
	"fmt"
	"time"

	"github.com/2389/orders-mcp/internal/schema"
	"github.com/2389/orders-mcp/internal/store"
)

// Analytics types.
const (
	AnalyticsDaily   = "daily"
	AnalyticsMonthly = "monthly"
	AnalyticsStatus  = "status"
	AnalyticsProduct = "product"
)

// GetOrderAnalytics aggregates orders along one dimension.
type GetOrderAnalytics struct {
	deps Deps
}

type analyticsArgs struct {
	AnalyticsType string `json:"analytics_type"`
	DateFrom      string `json:"date_from"`
	DateTo        string `json:"date_to"`
	Status        string `json:"status"`
	Limit         int    `json:"limit"`
}

// AnalyticsResult is the get_order_analytics response. Data holds one map per
// group; its keys depend on AnalyticsType.
type AnalyticsResult struct {
	Success       bool             `json:"success"`
	AnalyticsType string           `json:"analytics_type"`
	Data          []map[string]any `json:"data"`
}

func (t *GetOrderAnalytics) Name() string { return "get_order_analytics" }

func (t *GetOrderAnalytics) Description() string {
	return "Order counts, revenue, and averages grouped by day, month, status, or product. " +
		`Use status "all" for every status.`
}

func (t *GetOrderAnalytics) InputSchema() *schema.Schema {
	return schema.Object(map[string]*schema.Schema{
		"analytics_type": schema.String("Grouping dimension").
			OneOf(AnalyticsDaily, AnalyticsStatus, AnalyticsProduct, AnalyticsMonthly).
			WithDefault(AnalyticsDaily),
		"date_from": schema.Date("Earliest order date (YYYY-MM-DD)"),
		"date_to":   schema.Date("Latest order date (YYYY-MM-DD)"),
		"status":    schema.String("Order status").OneOf(statusEnum()...),
		"limit":     schema.Integer("Maximum number of groups").Min(1).Max(100).WithDefault(30),
	}).WithRange("date_from", "date_to")
}

func (t *GetOrderAnalytics) Timeout() time.Duration { return t.deps.Timeouts.Query + handlerSlack }

var revenueMetrics = []store.Metric{
	{Func: store.FuncCount, Alias: "order_count"},
	{Func: store.FuncSum, Column: "amount", Alias: "total_revenue"},
	{Func: store.FuncAvg, Column: "amount", Alias: "average_order_value"},
}

func (t *GetOrderAnalytics) Execute(ctx context.Context, raw map[string]any) (any, error) {
	var args analyticsArgs
	if err := schema.Decode(raw, &args); err != nil {
		return nil, err
	}
	if args.AnalyticsType == "" {
		args.AnalyticsType = AnalyticsDaily
	}
	if args.Limit <= 0 {
		args.Limit = 30
	}

	filters := statusFilter("status", args.Status)
	filters = dateFilters(filters, "created_at", args.DateFrom, args.DateTo)

	agg := store.Aggregate{Table: store.TableOrders, Filters: filters, Limit: args.Limit}
	uniqueCustomers := store.Metric{Func: store.FuncCountDistinct, Column: "name", Alias: "unique_customers"}

	switch args.AnalyticsType {
	case AnalyticsDaily:
		agg.GroupBy = []store.GroupExpr{{Column: "created_at", Part: store.PartDate, Alias: "date"}}
		agg.Metrics = append(append([]store.Metric{}, revenueMetrics...), uniqueCustomers)
		agg.Sort = []store.Sort{{Column: "date", Desc: true}}
	case AnalyticsMonthly:
		agg.GroupBy = []store.GroupExpr{
			{Column: "created_at", Part: store.PartYear, Alias: "year"},
			{Column: "created_at", Part: store.PartMonth, Alias: "month"},
		}
		agg.Metrics = append(append([]store.Metric{}, revenueMetrics...), uniqueCustomers)
		agg.Sort = []store.Sort{{Column: "year", Desc: true}, {Column: "month", Desc: true}}
	case AnalyticsStatus:
		agg.GroupBy = []store.GroupExpr{{Column: "status"}}
		agg.Metrics = append(append([]store.Metric{}, revenueMetrics...), uniqueCustomers)
		agg.Sort = []store.Sort{{Column: "order_count", Desc: true}, {Column: "status"}}
	case AnalyticsProduct:
		agg.Table = store.TableOrderDetails
		agg.GroupBy = []store.GroupExpr{{Column: "product_id"}, {Column: "product_name"}}
		agg.Metrics = append([]store.Metric{
			{Func: store.FuncSum, Column: "quantity", Alias: "total_quantity"},
		}, revenueMetrics...)
		agg.Sort = []store.Sort{{Column: "total_quantity", Desc: true}, {Column: "product_id"}}
	default:
		// unreachable once the schema enum has been applied
		return nil, fmt.Errorf("unknown analytics type %q", args.AnalyticsType)
	}

	rows, err := t.deps.aggregate(ctx, agg)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve order analytics: %w", err)
	}

	data := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		data = append(data, analyticsItem(args.AnalyticsType, r))
	}
	return AnalyticsResult{Success: true, AnalyticsType: args.AnalyticsType, Data: data}, nil
}

func analyticsItem(kind string, r store.Row) map[string]any {
	item := map[string]any{
		"order_count":         toInt(r["order_count"]),
		"total_revenue":       round2(r["total_revenue"]),
		"average_order_value": round2(r["average_order_value"]),
	}

	switch kind {
	case AnalyticsDaily:
		item["date"] = toString(r["date"])
		item["unique_customers"] = toInt(r["unique_customers"])
	case AnalyticsMonthly:
		month := toInt(r["month"])
		item["year"] = toInt(r["year"])
		item["month"] = month
		if month >= 1 && month <= 12 {
			item["month_name"] = time.Month(month).String()
		}
		item["unique_customers"] = toInt(r["unique_customers"])
	case AnalyticsStatus:
		item["status"] = toString(r["status"])
		item["unique_customers"] = toInt(r["unique_customers"])
	case AnalyticsProduct:
		name := toString(r["product_name"])
		if name == "" {
			name = "Unknown"
		}
		item["product_id"] = toInt(r["product_id"])
		item["product_name"] = name
		item["total_quantity"] = toInt(r["total_quantity"])
	}
	return item
}
