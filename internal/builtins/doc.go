// Package builtins provides the order and product tools served over MCP.
//
// # Tools
//
//   - get_orders: filtered order lookup, newest first
//   - get_products: catalog lookup by name, category, price, active flag
//   - get_customer_stats: customers ranked by total spend
//   - get_order_analytics: totals grouped by day, month, status, or product
//   - send_excel_email: xlsx export of orders or products, delivered by mail
//
// Every tool receives arguments already validated against its schema and
// decodes them into a typed struct. A status of "all" (or no status) applies
// no status filter. limit is passed to the store as SQL LIMIT.
//
// Each store, exporter, and mailer call runs under its own timeout from
// Deps.Timeouts; a deadline surfaces to the client as an internal error.
package builtins
