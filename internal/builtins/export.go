// ABOUTME: send_excel_email tool: exports orders or products to xlsx and mails the file.
// ABOUTME: The temporary file is removed on every exit path; dry_run skips delivery only.

package builtins

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/2389/orders-mcp/internal/export"
	"github.com/2389/orders-mcp/internal/mail"
	"github.com/2389/orders-mcp/internal/metrics"
	"github.com/2389/orders-mcp/internal/schema"
	"github.com/2389/orders-mcp/internal/store"
)

// Export data types.
const (
	ExportOrders   = "orders"
	ExportProducts = "products"
)

const exportTimestamp = "2006-01-02_15-04-05"

// SendExcelEmail exports data as a spreadsheet and emails it.
type SendExcelEmail struct {
	deps Deps
}

type exportFilters struct {
	Status       string `json:"status"`
	CustomerName string `json:"customer_name"`
	ProductName  string `json:"product_name"`
	Category     string `json:"category"`
	Active       *bool  `json:"active"`
	DateFrom     string `json:"date_from"`
	DateTo       string `json:"date_to"`
}

type exportArgs struct {
	Type    string        `json:"type"`
	Email   string        `json:"email"`
	Subject string        `json:"subject"`
	Message string        `json:"message"`
	Filters exportFilters `json:"filters"`
	Limit   int           `json:"limit"`
	DryRun  bool          `json:"dry_run"`
}

// ExportData describes a finished export.
type ExportData struct {
	Type         string `json:"type"`
	Email        string `json:"email"`
	Filename     string `json:"filename"`
	RecordsCount int    `json:"records_count"`
	ExportTime   string `json:"export_time"`
	Subject      string `json:"subject"`
	DryRun       bool   `json:"dry_run"`
}

// ExportResult is the send_excel_email response.
type ExportResult struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Data    ExportData `json:"data"`
}

func (t *SendExcelEmail) Name() string { return "send_excel_email" }

func (t *SendExcelEmail) Description() string {
	return "Export orders or products to an Excel file and email it as an attachment. " +
		"Set dry_run to build the file without sending it."
}

func (t *SendExcelEmail) InputSchema() *schema.Schema {
	filters := schema.Object(map[string]*schema.Schema{
		"status":        schema.String("Order status (orders only)").OneOf(statusEnum()...),
		"customer_name": schema.String("Customer name (orders only, substring match)"),
		"product_name":  schema.String("Product name (substring match)"),
		"category":      schema.String("Category (products only, substring match)"),
		"active":        schema.Boolean("Active flag (products only)"),
		"date_from":     schema.Date("Earliest created date (YYYY-MM-DD)"),
		"date_to":       schema.Date("Latest created date (YYYY-MM-DD)"),
	}).WithRange("date_from", "date_to")
	filters.Description = "Optional filters applied before export"

	return schema.Object(map[string]*schema.Schema{
		"type":    schema.String("Data to export").OneOf(ExportOrders, ExportProducts),
		"email":   schema.Email("Recipient address"),
		"subject": schema.String("Email subject (defaults to a timestamped title)"),
		"message": schema.String("Email body (defaults to a summary of the export)"),
		"filters": filters,
		"limit":   schema.Integer("Maximum number of rows").Min(1).Max(DefaultMaxExportRows).WithDefault(1000),
		"dry_run": schema.Boolean("Generate the file but do not send it").WithDefault(false),
	}, "type", "email")
}

// Timeout covers the query, the file write, and delivery in sequence.
func (t *SendExcelEmail) Timeout() time.Duration {
	to := t.deps.Timeouts
	return to.Query + to.Export + to.Mail + handlerSlack
}

func (t *SendExcelEmail) Execute(ctx context.Context, raw map[string]any) (res any, err error) {
	var args exportArgs
	if err := schema.Decode(raw, &args); err != nil {
		return nil, err
	}
	if args.Limit <= 0 {
		args.Limit = 1000
	}
	if args.Limit > t.deps.MaxExportRows {
		args.Limit = t.deps.MaxExportRows
	}

	defer func() {
		outcome := metrics.OutcomeOK
		if err != nil {
			outcome = metrics.OutcomeError
			if errors.Is(err, context.DeadlineExceeded) {
				outcome = metrics.OutcomeTimeout
			}
		}
		metrics.ExportsTotal.WithLabelValues(args.Type, outcome).Inc()
	}()

	logger := t.deps.Logger.With("tool", t.Name(), "type", args.Type, "email", args.Email)
	now := t.deps.Now()
	stamp := now.Format(exportTimestamp)

	sheet, err := t.collect(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve %s: %w", args.Type, err)
	}

	exportCtx, cancel := context.WithTimeout(ctx, t.deps.Timeouts.Export)
	path, err := t.deps.Exporter.WriteSpreadsheet(exportCtx, sheet)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to generate Excel file: %w", err)
	}
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			logger.Warn("failed to remove export file", "path", path, "error", rmErr)
		}
	}()

	filename := export.Filename(args.Type, now)
	logger.Info("export file created", "path", path, "records", len(sheet.Rows))

	subject := args.Subject
	if subject == "" {
		subject = fmt.Sprintf("%s export - %s", titles[args.Type], stamp)
	}
	body := args.Message
	if body == "" {
		body = fmt.Sprintf("Attached is the %s export you requested.\n\nExport time: %s\nRecords: %d",
			args.Type, stamp, len(sheet.Rows))
	}

	data := ExportData{
		Type:         args.Type,
		Email:        args.Email,
		Filename:     filename,
		RecordsCount: len(sheet.Rows),
		ExportTime:   stamp,
		Subject:      subject,
		DryRun:       args.DryRun,
	}

	if args.DryRun {
		logger.Info("dry run: skipping delivery", "filename", filename)
		return ExportResult{
			Success: true,
			Message: fmt.Sprintf("Excel file generated for %s (dry run, not sent)", args.Email),
			Data:    data,
		}, nil
	}

	mailCtx, cancelMail := context.WithTimeout(ctx, t.deps.Timeouts.Mail)
	defer cancelMail()
	err = t.deps.Mailer.Send(mailCtx, mail.Message{
		To:             args.Email,
		Subject:        subject,
		Body:           body,
		AttachmentPath: path,
		AttachmentName: filename,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	logger.Info("export delivered", "filename", filename, "records", len(sheet.Rows))
	return ExportResult{
		Success: true,
		Message: fmt.Sprintf("Excel file sent to %s", args.Email),
		Data:    data,
	}, nil
}

var titles = map[string]string{ExportOrders: "Orders", ExportProducts: "Products"}

var orderColumns = []string{
	"Transaction ID", "Customer Name", "Product Name", "Quantity", "Amount", "Status", "Order Date",
}

var productColumns = []string{
	"ID", "Name", "Description", "Category", "Price", "Stock Quantity", "Active", "Created At", "Updated At",
}

// collect queries the rows for the export and shapes them into a sheet.
func (t *SendExcelEmail) collect(ctx context.Context, args exportArgs) (export.Sheet, error) {
	f := args.Filters
	sheet := export.Sheet{Name: titles[args.Type]}

	switch args.Type {
	case ExportOrders:
		filters := statusFilter("status", f.Status)
		filters = likeFilter(filters, "customer_name", f.CustomerName)
		filters = likeFilter(filters, "product_name", f.ProductName)
		filters = dateFilters(filters, "created_at", f.DateFrom, f.DateTo)

		rows, err := t.deps.query(ctx, store.Query{
			Table:   store.TableOrderDetails,
			Filters: filters,
			Sort:    []store.Sort{{Column: "created_at", Desc: true}, {Column: "id", Desc: true}},
			Limit:   args.Limit,
		})
		if err != nil {
			return sheet, err
		}
		sheet.Columns = orderColumns
		for _, r := range rows {
			o := orderView(r)
			sheet.Rows = append(sheet.Rows, []any{
				o.TransactionID, o.CustomerName, o.ProductName, o.Quantity, o.Amount, o.Status, o.CreatedAt,
			})
		}

	case ExportProducts:
		var filters []store.Filter
		filters = likeFilter(filters, "name", f.ProductName)
		filters = likeFilter(filters, "category", f.Category)
		if f.Active != nil {
			filters = append(filters, store.Filter{Column: "is_active", Op: store.OpEq, Value: *f.Active})
		}
		filters = dateFilters(filters, "created_at", f.DateFrom, f.DateTo)

		rows, err := t.deps.query(ctx, store.Query{
			Table:   store.TableProducts,
			Filters: filters,
			Sort:    []store.Sort{{Column: "name"}},
			Limit:   args.Limit,
		})
		if err != nil {
			return sheet, err
		}
		sheet.Columns = productColumns
		for _, r := range rows {
			p := productView(r)
			active := "No"
			if p.IsActive {
				active = "Yes"
			}
			sheet.Rows = append(sheet.Rows, []any{
				p.ID, p.Name, p.Description, p.Category, p.Price, p.StockQuantity, active, p.CreatedAt, p.UpdatedAt,
			})
		}

	default:
		return sheet, fmt.Errorf("unknown export type %q", args.Type)
	}
	return sheet, nil
}
