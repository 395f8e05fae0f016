// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/halyard-chat/halyard/lib/codec"
)

// dialTimeout bounds the connect phase only.
const dialTimeout = 5 * time.Second

// DefaultCallTimeout is how long a Client waits for a response after
// writing its request. It covers a full confirmation wait plus a slow
// homeserver.
const DefaultCallTimeout = 2 * time.Minute

// maxResponseSize bounds one CBOR response. A page of messages is the
// largest.
const maxResponseSize = 8 * 1024 * 1024

// RemoteError is returned by Call when the daemon answered ok=false.
type RemoteError struct {
	Action  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

// Client sends requests to a daemon socket. Each Call opens a new
// connection, matching the server's one-request-per-connection model.
type Client struct {
	socketPath string

	// Timeout overrides DefaultCallTimeout when positive.
	Timeout time.Duration
}

// NewClient returns a client for the socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// SocketPath returns the socket the client dials.
func (c *Client) SocketPath() string { return c.socketPath }

// Call sends action with the given request fields and decodes the
// response data into result.
//
// fields may be nil, a map, or a struct with cbor or json tags; it
// must not carry its own "action" key. On ok=false, Call returns a
// *RemoteError. Connection and encoding failures are returned as plain
// errors.
func (c *Client) Call(ctx context.Context, action string, fields any, result any) error {
	request, err := buildRequest(action, fields)
	if err != nil {
		return fmt.Errorf("encoding %q request: %w", action, err)
	}

	response, err := c.send(ctx, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}

	if !response.OK {
		return &RemoteError{Action: action, Message: response.Error}
	}

	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}
	return nil
}

// buildRequest flattens fields into a map and adds "action" and a
// fresh "request_id" that the server logs with the action. Structs
// go through a CBOR round trip so their tags decide the field names.
func buildRequest(action string, fields any) (map[string]any, error) {
	request := make(map[string]any)
	switch typed := fields.(type) {
	case nil:
	case map[string]any:
		for key, value := range typed {
			request[key] = value
		}
	default:
		data, err := codec.Marshal(fields)
		if err != nil {
			return nil, err
		}
		if err := codec.Unmarshal(data, &request); err != nil {
			return nil, fmt.Errorf("request fields must encode as a map: %w", err)
		}
	}
	request["action"] = action
	request["request_id"] = uuid.NewString()
	return request, nil
}

// send connects, writes the request, and reads the response.
func (c *Client) send(ctx context.Context, request any) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	// Abort the blocking read when ctx ends.
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	conn.SetReadDeadline(time.Now().Add(timeout))
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &response, nil
}
