package ipc

import (
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

const (
	dialTimeout        = 2 * time.Second
	defaultCallTimeout = 5 * time.Second
)

// Client provides RPC access to the daemon.
type Client struct {
	conn    net.Conn
	client  *rpc.Client
	timeout time.Duration
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient, timeout: defaultCallTimeout}, nil
}

// SetTimeout bounds each call. Zero or negative restores the default.
func (c *Client) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = defaultCallTimeout
	}
	c.timeout = d
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	pending := c.client.Go(ServiceName+"."+method, req, resp, make(chan *rpc.Call, 1))
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case done := <-pending.Done:
		return done.Error
	case <-timer.C:
		return fmt.Errorf("%s: no reply within %s", method, c.timeout)
	}
}

// Latest fetches the newest telemetry row.
func (c *Client) Latest() (*LatestResponse, error) {
	var resp LatestResponse
	if err := c.call("Latest", LatestRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Snapshot fetches one column by name or index.
func (c *Client) Snapshot(req SnapshotRequest) (*SnapshotResponse, error) {
	var resp SnapshotResponse
	if err := c.call("Snapshot", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Rows fetches retained rows, oldest first.
func (c *Client) Rows(req RowsRequest) (*RowsResponse, error) {
	var resp RowsResponse
	if err := c.call("Rows", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History lists persisted samples, newest first.
func (c *Client) History(req HistoryRequest) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.call("History", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Sessions lists recorded sessions.
func (c *Client) Sessions(req SessionsRequest) (*SessionsResponse, error) {
	var resp SessionsResponse
	if err := c.call("Sessions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
