// ABOUTME: Store interface and data types for orders-mcp persistence
// ABOUTME: Defines Order, Product, the filter/aggregate query model, and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownTable is returned when a query names a table outside the whitelist
var ErrUnknownTable = errors.New("unknown table")

// ErrUnknownColumn is returned when a query names a column the table does not expose
var ErrUnknownColumn = errors.New("unknown column")

// ErrUnsupportedDSN is returned when a connection string matches no known driver
var ErrUnsupportedDSN = errors.New("unsupported database connection string")

// Table names exposed to queries
const (
	TableOrders       = "orders"
	TableProducts     = "products"
	TableOrderDetails = "order_details" // orders joined with their product name
)

// Order statuses
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusRefunded   = "refunded"
)

// Statuses lists every order status in lifecycle order
var Statuses = []string{StatusPending, StatusProcessing, StatusCompleted, StatusCancelled, StatusRefunded}

// Product is a catalog entry
type Product struct {
	ID            int64
	Name          string
	Description   string
	Price         float64
	StockQuantity int
	Category      string
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Order is one purchase of a product by a customer
type Order struct {
	ID            int64
	TransactionID string
	CustomerName  string
	Amount        float64
	Status        string
	ProductID     int64
	Quantity      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Op is a filter comparison
type Op string

// Filter operators
const (
	OpEq      Op = "eq"
	OpLike    Op = "like" // substring match
	OpGte     Op = "gte"
	OpLte     Op = "lte"
	OpDateGte Op = "date_gte" // compares the calendar date of a datetime column
	OpDateLte Op = "date_lte"
)

// Filter restricts rows by one column
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Sort orders results by a column (or an aggregate alias)
type Sort struct {
	Column string
	Desc   bool
}

// Query selects rows from one table
type Query struct {
	Table   string
	Columns []string // empty selects every exposed column
	Filters []Filter
	Sort    []Sort
	Limit   int // 0 means unlimited
}

// Part extracts a component of a datetime column for grouping
type Part string

// Grouping parts
const (
	PartNone  Part = ""
	PartDate  Part = "date"
	PartYear  Part = "year"
	PartMonth Part = "month"
)

// GroupExpr is one GROUP BY expression
type GroupExpr struct {
	Column string
	Part   Part
	Alias  string // defaults to the column name
}

// AggFunc is an aggregate function
type AggFunc string

// Aggregate functions
const (
	FuncCount         AggFunc = "count"
	FuncCountDistinct AggFunc = "count_distinct"
	FuncSum           AggFunc = "sum"
	FuncAvg           AggFunc = "avg"
	FuncMin           AggFunc = "min"
	FuncMax           AggFunc = "max"
)

// Metric is one aggregate column
type Metric struct {
	Func   AggFunc
	Column string // ignored for FuncCount
	Alias  string
}

// Aggregate groups rows of one table and computes metrics per group.
// An empty GroupBy yields a single row over the whole filtered set.
type Aggregate struct {
	Table   string
	GroupBy []GroupExpr
	Metrics []Metric
	Filters []Filter
	Sort    []Sort
	Limit   int
}

// Row is one result row keyed by column name or alias.
// Values are normalized to string, int64, float64, bool, or nil.
type Row map[string]any

// Store is the read side consumed by tool handlers
type Store interface {
	Query(ctx context.Context, q Query) ([]Row, error)
	Aggregate(ctx context.Context, a Aggregate) ([]Row, error)
	Ping(ctx context.Context) error
	Close() error
}
