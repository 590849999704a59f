package daemon

import (
	"bufio"
	"fmt"
	"net"
)

// Client sends control requests to a running daemon. Every call opens
// a fresh connection for one request/response exchange.
type Client struct {
	socketPath string
}

// NewClient creates a client for the daemon behind socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Do sends one request and decodes the response. A response with
// status "error" is surfaced as a Go error.
func (c *Client) Do(req Request) (Response, error) {
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return Response{}, fmt.Errorf("connect to daemon: %w", err)
	}
	defer conn.Close()

	data, err := ipcJSON.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return Response{}, fmt.Errorf("read response: %w", err)
		}
		return Response{}, fmt.Errorf("empty response from daemon")
	}

	var resp Response
	if err := ipcJSON.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status == "error" {
		return resp, fmt.Errorf("daemon: %s", resp.Error)
	}
	return resp, nil
}

// GetVar reads one variable from the daemon's store.
func (c *Client) GetVar(name string) (string, error) {
	resp, err := c.Do(Request{Command: "get-var", Name: name})
	return resp.Value, err
}

// SetVar writes one variable into the daemon's store.
func (c *Client) SetVar(name, value string) error {
	_, err := c.Do(Request{Command: "set-var", Name: name, Value: value})
	return err
}

// RotateVar cycles a variable through the candidate values and returns
// the new value.
func (c *Client) RotateVar(name string, values []string) (string, error) {
	resp, err := c.Do(Request{Command: "rotate-var", Name: name, Values: values})
	return resp.Value, err
}

// ListVars dumps the daemon's full variable namespace.
func (c *Client) ListVars() (map[string]string, error) {
	resp, err := c.Do(Request{Command: "list-vars"})
	return resp.Vars, err
}

// Poke forces an immediate re-evaluation pass.
func (c *Client) Poke() error {
	_, err := c.Do(Request{Command: "poke"})
	return err
}

// Status returns the per-command supervisor stats, rendered by the
// daemon as name=value pairs.
func (c *Client) Status() (map[string]string, error) {
	resp, err := c.Do(Request{Command: "status"})
	return resp.Vars, err
}
