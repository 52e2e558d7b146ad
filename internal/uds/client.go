package uds

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrNotRunning is returned when nothing listens on the socket.
var ErrNotRunning = errors.New("monitor is not running")

type Client struct {
	socketPath string
	timeout    time.Duration
}

func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

func (c *Client) Send(req *Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to %s: %v (start it with: pipeline-monitor serve)",
			ErrNotRunning, c.socketPath, err)
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	if err := WriteFrame(conn, req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	var resp Response
	if err := ReadFrame(conn, &resp); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &resp, nil
}

func (c *Client) SendCommand(command string, params any) (*Response, error) {
	req, err := NewRequest(command, params)
	if err != nil {
		return nil, err
	}
	return c.Send(req)
}

// Ping asks the running monitor for its pid and address.
func (c *Client) Ping() (PingData, error) {
	var data PingData
	resp, err := c.SendCommand(CommandPing, nil)
	if err != nil {
		return data, err
	}
	return data, resp.Decode(&data)
}
