// Package export writes query results to spreadsheet files for delivery by mail.
package export
