package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/bbatchelder/tap/internal/control"
)

const requestTimeout = 5 * time.Second

// clientError carries a stable control-plane error code for failures
// detected on the client side of the socket, before any HTTP response body
// is available to decode (spec.md §6).
type clientError struct {
	Code    string
	Message string
}

func (e *clientError) Error() string { return e.Message }

// classifyDialErr distinguishes a runner that didn't answer in time from one
// that isn't there at all, per the error codes in spec.md §6.
func classifyDialErr(socketPath string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &clientError{Code: control.CodeRequestTimeout, Message: fmt.Sprintf("request to %s timed out: %v", socketPath, err)}
	}
	return &clientError{Code: control.CodeNoRunner, Message: fmt.Sprintf("no runner reachable at %s: %v", socketPath, err)}
}

// client talks HTTP to a runner over its Unix socket.
type client struct {
	socketPath string
	http       *http.Client
}

func newClient(socketPath string) *client {
	return &client{
		socketPath: socketPath,
		http: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					d := net.Dialer{}
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

func (c *client) get(path string, query url.Values, out any) error {
	u := "http://tap" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	resp, err := c.http.Get(u)
	if err != nil {
		return classifyDialErr(c.socketPath, err)
	}
	defer resp.Body.Close()
	return decodeOrError(resp, out)
}

func (c *client) post(path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	resp, err := c.http.Post("http://tap"+path, "application/json", &buf)
	if err != nil {
		return classifyDialErr(c.socketPath, err)
	}
	defer resp.Body.Close()
	return decodeOrError(resp, out)
}

func decodeOrError(resp *http.Response, out any) error {
	if resp.StatusCode >= 300 {
		var eb control.ErrorBody
		if err := json.NewDecoder(resp.Body).Decode(&eb); err == nil && eb.Message != "" {
			return fmt.Errorf("%s: %s", eb.Error, eb.Message)
		}
		return fmt.Errorf("runner returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) status() (*control.RunnerStatus, error) {
	var s control.RunnerStatus
	if err := c.get("/v1/status", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
