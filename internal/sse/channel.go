// ABOUTME: Channel abstracts one open event stream so the lifecycle loop can be driven without HTTP.
// ABOUTME: httpChannel implements it over a go-sse session bound to the inbound request.

package sse

import (
	"fmt"
	"net/http"

	gosse "github.com/tmaxmax/go-sse"
)

// Channel is the output side of one SSE connection.
type Channel interface {
	// Send writes one frame without flushing.
	Send(msg *gosse.Message) error
	// Flush pushes buffered frames to the client.
	Flush() error
	// Keepalive writes a frame with no content and flushes it.
	Keepalive() error
	// Aborted reports that the client's request has gone away.
	Aborted() bool
	// Abnormal reports that the connection can no longer be used, e.g. the server is stopping.
	Abnormal() bool
}

// Finisher is implemented by channels that must release the request explicitly when a session ends.
type Finisher interface {
	Finish()
}

// Stream headers. go-sse sets the content type itself on the first write.
var streamHeaders = map[string]string{
	"Content-Type":                 "text/event-stream",
	"Cache-Control":                "no-cache, no-store, must-revalidate",
	"X-Accel-Buffering":            "no",
	"Connection":                   "keep-alive",
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "Cache-Control, Last-Event-ID, Authorization, Content-Type",
}

type httpChannel struct {
	sess    *gosse.Session
	req     *http.Request
	closing <-chan struct{}
}

// newHTTPChannel upgrades the response to an event stream. Headers are only
// written with the first frame, so they are still mutable here.
func newHTTPChannel(w http.ResponseWriter, r *http.Request, closing <-chan struct{}) (*httpChannel, error) {
	sess, err := gosse.Upgrade(w, r)
	if err != nil {
		return nil, fmt.Errorf("upgrading to event stream: %w", err)
	}

	h := w.Header()
	for k, v := range streamHeaders {
		h.Set(k, v)
	}

	return &httpChannel{sess: sess, req: r, closing: closing}, nil
}

func (c *httpChannel) Send(msg *gosse.Message) error {
	return c.sess.Send(msg)
}

func (c *httpChannel) Flush() error {
	return c.sess.Flush()
}

func (c *httpChannel) Keepalive() error {
	msg := &gosse.Message{}
	msg.AppendComment("keepalive")
	if err := c.sess.Send(msg); err != nil {
		return err
	}
	return c.sess.Flush()
}

func (c *httpChannel) Aborted() bool {
	return c.req.Context().Err() != nil
}

func (c *httpChannel) Abnormal() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}
