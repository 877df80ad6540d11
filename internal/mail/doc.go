// Package mail delivers exported spreadsheets by email.
//
// Drivers:
//
//   - ses: Amazon SES v2 with the raw MIME message (attachments supported)
//   - smtp: any SMTP relay via go-mail
//   - log: logs the message instead of sending it
//
// A fallback driver can be configured; New then returns a FallbackSender that
// tries the primary first and the fallback when it fails.
package mail
