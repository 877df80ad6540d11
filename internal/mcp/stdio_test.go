// ABOUTME: Tests for the line-delimited stdio transport.
// ABOUTME: Feeds scripted input through a reader and inspects the written lines.

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeStdio(t *testing.T) {
	h := newTestHarness(t)

	input := strings.Join([]string{
		"\xEF\xBB\xBF" + `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		"",
		"   ",
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"get_orders","arguments":{"limit":4}}}`,
		`{"method": "tools/list", "id": 3`,
		`{"jsonrpc":"2.0","id":4,"method":"ping"}`, // no trailing newline
	}, "\r\n")

	var out bytes.Buffer
	err := h.dispatcher.ServeStdio(context.Background(), strings.NewReader(input), &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 4, "notification and blank lines produce no output")

	var ids []string
	for _, line := range lines {
		var resp rawResponse
		require.NoError(t, json.Unmarshal([]byte(line), &resp))
		ids = append(ids, string(resp.ID))
	}
	assert.Equal(t, []string{"1", "2", "null", "4"}, ids)
	assert.Contains(t, lines[2], `-32700`)
}

func TestServeStdio_StopsWhenContextDone(t *testing.T) {
	h := newTestHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := h.dispatcher.ServeStdio(ctx, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n"), &out)
	require.NoError(t, err)
	assert.Zero(t, out.Len())
}

func TestServeStdio_OversizedLine(t *testing.T) {
	h := newTestHarness(t)

	big := `{"jsonrpc":"2.0","id":2,"method":"ping","params":{"pad":"` + strings.Repeat("x", MaxRequestBodySize) + `"}}`
	input := `{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n" +
		big + "\n" +
		`{"jsonrpc":"2.0","id":3,"method":"ping"}` + "\n"

	var out bytes.Buffer
	err := h.dispatcher.ServeStdio(context.Background(), strings.NewReader(input), &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 3, "the stream keeps going after an oversized line")

	var resp rawResponse
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &resp))
	assert.Equal(t, "null", string(resp.ID))
	assert.Contains(t, lines[1], `-32600`)
	assert.Contains(t, lines[2], `"id":3`)
}

func TestReadLine(t *testing.T) {
	r := bufio.NewReaderSize(strings.NewReader("abcd\r\nabcdef\nab"), 16)

	line, oversized, err := readLine(r, 4)
	require.NoError(t, err)
	assert.False(t, oversized, "the line terminator does not count")
	assert.Equal(t, "abcd\r\n", string(line))

	line, oversized, err = readLine(r, 4)
	require.NoError(t, err)
	assert.True(t, oversized)
	assert.Nil(t, line)

	line, oversized, err = readLine(r, 4)
	assert.ErrorIs(t, err, io.EOF)
	assert.False(t, oversized)
	assert.Equal(t, "ab", string(line))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestServeStdio_WriteError(t *testing.T) {
	h := newTestHarness(t)

	err := h.dispatcher.ServeStdio(context.Background(), strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n"), failingWriter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
}
