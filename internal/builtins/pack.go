// ABOUTME: Assembles the order/product tools and registers them with a tool registry.
// ABOUTME: Holds the shared collaborators, per-call timeouts, and row conversion helpers.

package builtins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/2389/orders-mcp/internal/config"
	"github.com/2389/orders-mcp/internal/export"
	"github.com/2389/orders-mcp/internal/mail"
	"github.com/2389/orders-mcp/internal/store"
	"github.com/2389/orders-mcp/internal/tools"
)

// StatusAll disables status filtering.
const StatusAll = "all"

// Default collaborator timeouts.
const (
	DefaultQueryTimeout  = 30 * time.Second
	DefaultExportTimeout = 60 * time.Second
	DefaultMailTimeout   = 120 * time.Second
	DefaultMaxExportRows = 10000
)

// handlerSlack is how much longer the router waits than a handler's own
// deadline, so the handler reports its timeout itself.
const handlerSlack = 2 * time.Second

// Timeouts bound each call a tool makes to an external collaborator.
type Timeouts struct {
	Query  time.Duration
	Export time.Duration
	Mail   time.Duration
}

// TimeoutsFrom copies the tool timeouts out of config.
func TimeoutsFrom(cfg config.ToolsConfig) Timeouts {
	return Timeouts{Query: cfg.QueryTimeout, Export: cfg.ExportTimeout, Mail: cfg.MailTimeout}
}

// Deps are the collaborators the tools call.
type Deps struct {
	Store         store.Store
	Exporter      export.Exporter
	Mailer        mail.Sender
	Timeouts      Timeouts
	MaxExportRows int
	Logger        *slog.Logger
	Now           func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Timeouts.Query <= 0 {
		d.Timeouts.Query = DefaultQueryTimeout
	}
	if d.Timeouts.Export <= 0 {
		d.Timeouts.Export = DefaultExportTimeout
	}
	if d.Timeouts.Mail <= 0 {
		d.Timeouts.Mail = DefaultMailTimeout
	}
	if d.MaxExportRows <= 0 {
		d.MaxExportRows = DefaultMaxExportRows
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	d.Logger = d.Logger.With("component", "builtins")
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Tools builds every order/product tool. send_excel_email is only included
// when both an Exporter and a Mailer are configured.
func Tools(d Deps) ([]tools.Tool, error) {
	if d.Store == nil {
		return nil, errors.New("builtins: store is required")
	}
	d = d.withDefaults()

	ts := []tools.Tool{
		&GetOrders{deps: d},
		&GetProducts{deps: d},
		&GetCustomerStats{deps: d},
		&GetOrderAnalytics{deps: d},
	}
	if d.Exporter != nil && d.Mailer != nil {
		ts = append(ts, &SendExcelEmail{deps: d})
	} else {
		d.Logger.Warn("send_excel_email disabled: exporter or mailer not configured")
	}
	return ts, nil
}

// Register adds every tool to r, failing on the first collision.
func Register(r *tools.Registry, d Deps) error {
	ts, err := Tools(d)
	if err != nil {
		return err
	}
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// statusEnum is the accepted status values including the "all" bypass.
func statusEnum() []string {
	return append(slices.Clone(store.Statuses), StatusAll)
}

// statusFilter returns the filter for status; "all" and "" mean no filter.
func statusFilter(column, status string) []store.Filter {
	if status == "" || status == StatusAll {
		return nil
	}
	return []store.Filter{{Column: column, Op: store.OpEq, Value: status}}
}

// likeFilter appends a substring match when value is non-empty.
func likeFilter(fs []store.Filter, column, value string) []store.Filter {
	if value == "" {
		return fs
	}
	return append(fs, store.Filter{Column: column, Op: store.OpLike, Value: value})
}

// dateFilters appends the inclusive calendar-date range on column.
func dateFilters(fs []store.Filter, column, from, to string) []store.Filter {
	if from != "" {
		fs = append(fs, store.Filter{Column: column, Op: store.OpDateGte, Value: from})
	}
	if to != "" {
		fs = append(fs, store.Filter{Column: column, Op: store.OpDateLte, Value: to})
	}
	return fs
}

func (d Deps) query(ctx context.Context, q store.Query) ([]store.Row, error) {
	ctx, cancel := context.WithTimeout(ctx, d.Timeouts.Query)
	defer cancel()
	return d.Store.Query(ctx, q)
}

func (d Deps) aggregate(ctx context.Context, a store.Aggregate) ([]store.Row, error) {
	ctx, cancel := context.WithTimeout(ctx, d.Timeouts.Query)
	defer cancel()
	return d.Store.Aggregate(ctx, a)
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}

func toInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}

func toBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case string:
		return b == "1" || b == "true" || b == "t"
	default:
		return false
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func round2(v any) float64 {
	return math.Round(toFloat(v)*100) / 100
}
