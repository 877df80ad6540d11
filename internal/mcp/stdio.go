// ABOUTME: Line-delimited stdio transport: one JSON-RPC message per input line.
// ABOUTME: Responses are written one per line and flushed immediately; logs never touch stdout.

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ServeStdio reads newline-delimited JSON-RPC messages from in and writes
// responses to out until in reaches EOF or ctx is done. Blank lines are
// skipped and a leading byte-order mark is stripped. A line longer than
// MaxRequestBodySize is discarded and answered with an Invalid Request error.
// It returns nil on EOF.
func (d *Dispatcher) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	reader := bufio.NewReaderSize(in, 64*1024)
	writer := bufio.NewWriter(out)

	d.logger.Info("stdio transport started")
	defer d.logger.Info("stdio transport stopped")

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		line, oversized, readErr := readLine(reader, MaxRequestBodySize)
		switch {
		case oversized:
			d.logger.Warn("stdio message too large", "limit", MaxRequestBodySize)
			if err := writeLine(writer, tooLargeResponse); err != nil {
				return err
			}
		case len(line) > 0:
			if err := d.serveLine(ctx, line, writer); err != nil {
				return err
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading stdin: %w", readErr)
		}
	}
}

func (d *Dispatcher) serveLine(ctx context.Context, line []byte, w *bufio.Writer) error {
	line = bytes.TrimPrefix(line, utf8BOM)
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}

	resp, ok := d.Dispatch(ctx, line)
	if !ok {
		return nil
	}
	return writeLine(w, resp)
}

var tooLargeResponse, _ = json.Marshal(errorResponse(nullID, CodeInvalidRequest, "Invalid Request",
	fmt.Sprintf("message exceeds %d bytes", MaxRequestBodySize)))

// readLine returns the next line, newline included. A line longer than limit
// is read through to its end but not kept, and reported as oversized.
func readLine(r *bufio.Reader, limit int) ([]byte, bool, error) {
	var line []byte
	oversized := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !oversized {
			if len(line)+len(chunk) > limit+len("\r\n") {
				oversized, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if !oversized && len(bytes.TrimRight(line, "\r\n")) > limit {
			oversized, line = true, nil
		}
		return line, oversized, err
	}
}

func writeLine(w *bufio.Writer, resp []byte) error {
	if _, err := w.Write(resp); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing response: %w", err)
	}
	return nil
}
