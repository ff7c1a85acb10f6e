// Package client implements the small synchronous client used by the
// administrative CLI commands (status, ping) to talk to a running
// daemon over its unix domain socket: one connection, one framed
// request, one framed response.
package client

import (
	"fmt"
	"net"
	"time"

	"github.com/vkolb/waldb/internal/protocol"
	"github.com/vkolb/waldb/rpc/common"
	"github.com/vkolb/waldb/rpc/serializer"
)

// Client is a short-lived connection to one daemon endpoint. It is not
// meant to be kept open across commands; each CLI invocation opens one,
// issues one request, and closes.
type Client struct {
	conn    net.Conn
	ser     serializer.IRPCSerializer
	timeout time.Duration
}

// Dial connects to the daemon listening on cfg.Endpoint.
func Dial(cfg *common.ClientConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("client: no endpoint configured")
	}

	timeout := time.Duration(cfg.TimeoutSecond) * time.Second
	conn, err := net.DialTimeout("unix", cfg.Endpoint, timeout)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", cfg.Endpoint, err)
	}

	return &Client{conn: conn, ser: serializer.NewJSONSerializer(), timeout: timeout}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Do sends req and returns the daemon's response.
func (c *Client) Do(req *protocol.Request) (*protocol.Response, error) {
	if c.timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.timeout))
	}

	payload, err := c.ser.SerializeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("client: serialize request: %w", err)
	}
	if err := protocol.WriteFrame(c.conn, payload); err != nil {
		return nil, fmt.Errorf("client: write request: %w", err)
	}

	out, err := protocol.ReadFrame(c.conn, nil, protocol.DefaultMaxFrameSize)
	if err != nil {
		return nil, fmt.Errorf("client: read response: %w", err)
	}

	resp, err := c.ser.DeserializeResponse(out)
	if err != nil {
		return nil, fmt.Errorf("client: deserialize response: %w", err)
	}
	return resp, nil
}
