package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// Client talks to a running daemon. Each call opens one connection.
type Client struct {
	socketPath string
	timeout    time.Duration
	requestID  atomic.Uint64
}

// NewClient creates a new daemon client.
func NewClient(cfg Config) *Client {
	return &Client{
		socketPath: cfg.SocketPath,
		timeout:    cfg.Timeout,
	}
}

// Connect establishes a connection to the daemon.
func (c *Client) Connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return conn, nil
}

// IsRunning checks if the daemon is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := c.Connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Ping checks if the daemon is responsive.
func (c *Client) Ping(ctx context.Context) error {
	var res PingResult
	if err := c.call(ctx, MethodPing, nil, &res, true); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// Status retrieves daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var status StatusResult
	if err := c.call(ctx, MethodStatus, nil, &status, true); err != nil {
		return nil, fmt.Errorf("status failed: %w", err)
	}
	return &status, nil
}

// Upsert asks the daemon to re-read and write the documents for id.
func (c *Client) Upsert(ctx context.Context, id string) (*OutcomeResult, error) {
	return c.outcome(ctx, MethodUpsert, IDParams{ID: id})
}

// Delete asks the daemon to delete the document for id.
func (c *Client) Delete(ctx context.Context, id string) (*OutcomeResult, error) {
	return c.outcome(ctx, MethodDelete, IDParams{ID: id})
}

// BatchDelete asks the daemon to delete every id in one bulk request.
func (c *Client) BatchDelete(ctx context.Context, ids []string) (*OutcomeResult, error) {
	return c.outcome(ctx, MethodBatchDelete, BatchDeleteParams{IDs: ids})
}

func (c *Client) outcome(ctx context.Context, method string, params any) (*OutcomeResult, error) {
	var res OutcomeResult
	if err := c.call(ctx, method, params, &res, true); err != nil {
		return nil, fmt.Errorf("%s failed: %w", method, err)
	}
	return &res, nil
}

// Reindex starts a reindex run. With wait the call blocks until the run
// ends, bounded only by ctx.
func (c *Client) Reindex(ctx context.Context, suffix string, wait bool) (*ReindexReply, error) {
	var reply ReindexReply
	params := ReindexParams{Suffix: suffix, Wait: wait}
	if err := c.call(ctx, MethodReindex, params, &reply, !wait); err != nil {
		return nil, fmt.Errorf("reindex failed: %w", err)
	}
	return &reply, nil
}

// call sends one request and decodes the result into out. Errors reported
// by the daemon are returned as *Error.
func (c *Client) call(ctx context.Context, method string, params, out any, bounded bool) error {
	req, err := NewRequest(c.nextID(), method, params)
	if err != nil {
		return err
	}

	conn, err := c.Connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	var deadline time.Time
	if bounded {
		deadline = time.Now().Add(c.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	// Unblock reads when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := c.send(conn, req); err != nil {
		return err
	}

	resp, err := c.receive(conn)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

// send encodes and writes a request to the connection.
func (c *Client) send(conn net.Conn, req Request) error {
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	return nil
}

// receive reads and decodes a response from the connection.
func (c *Client) receive(conn net.Conn) (*Response, error) {
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to receive response: %w", err)
	}
	return &resp, nil
}

// nextID generates a unique request ID.
func (c *Client) nextID() string {
	return fmt.Sprintf("req-%d", c.requestID.Add(1))
}
