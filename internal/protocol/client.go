// Package protocol wraps the MCP handshake and session for spawned backend
// processes. Process ownership stays with the instance managers; this
// package only speaks the wire protocol over pipes it is handed.
package protocol

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"mcpbridge/pkg/logging"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// DefaultInitTimeout bounds the protocol handshake when the caller's context
// carries no deadline of its own.
const DefaultInitTimeout = 10 * time.Second

// Client is the protocol-side view of a backend instance. The lifecycle core
// only needs the handshake outcome and a liveness probe; tool invocation is
// exposed for the aggregation layer that sits above.
type Client interface {
	// Ping checks whether the backend is responsive.
	Ping(ctx context.Context) error

	// ListTools returns the tools the backend advertises.
	ListTools(ctx context.Context) ([]mcp.Tool, error)

	// CallTool invokes a tool on the backend.
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)

	// Close shuts the protocol session down. It does not terminate the
	// backend process; process ownership stays with the scoped manager.
	Close() error
}

// Factory connects a protocol client to an already-spawned process. The
// scoped managers own the process; the factory only gets its pipes, so a
// test can substitute a fake without spawning anything.
type Factory interface {
	// Connect performs the protocol handshake over the given stdio pipes.
	// A successful return means the instance may be considered running.
	Connect(ctx context.Context, stdin io.WriteCloser, stdout io.ReadCloser, stderr io.ReadCloser) (Client, error)
}

// NewFactory returns the production factory backed by the MCP stdio
// protocol.
func NewFactory() Factory {
	return &mcpFactory{}
}

type mcpFactory struct{}

func (f *mcpFactory) Connect(ctx context.Context, stdin io.WriteCloser, stdout io.ReadCloser, stderr io.ReadCloser) (Client, error) {
	// The IO transport speaks the wire protocol over pipes we already own;
	// the process itself was spawned by the caller.
	t := transport.NewIO(stdout, stdin, stderr)
	mcpClient := client.NewClient(t)

	initCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, DefaultInitTimeout)
		defer cancel()
	}

	if err := mcpClient.Start(initCtx); err != nil {
		return nil, fmt.Errorf("failed to start MCP transport: %w", err)
	}

	initResult, err := mcpClient.Initialize(initCtx, mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: "2024-11-05",
			ClientInfo: mcp.Implementation{
				Name:    "mcpbridge",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		if closeErr := mcpClient.Close(); closeErr != nil {
			logging.Debug("ProtocolClient", "Error closing failed client: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize MCP protocol: %w", err)
	}

	if initResult.Capabilities.Tools != nil {
		logging.Debug("ProtocolClient", "Backend %s supports tools", initResult.ServerInfo.Name)
	}

	return &mcpClientAdapter{client: mcpClient}, nil
}

// mcpClientAdapter adapts the mcp-go client to the Client interface.
type mcpClientAdapter struct {
	mu     sync.RWMutex
	client *client.Client
	closed bool
}

func (c *mcpClientAdapter) Ping(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return fmt.Errorf("client closed")
	}
	return c.client.Ping(ctx)
}

func (c *mcpClientAdapter) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, fmt.Errorf("client closed")
	}

	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	return result.Tools, nil
}

func (c *mcpClientAdapter) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, fmt.Errorf("client closed")
	}

	result, err := c.client.CallTool(ctx, mcp.CallToolRequest{
		Params: struct {
			Name      string    `json:"name"`
			Arguments any       `json:"arguments,omitempty"`
			Meta      *mcp.Meta `json:"_meta,omitempty"`
		}{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call tool %s: %w", name, err)
	}
	return result, nil
}

func (c *mcpClientAdapter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.client.Close()
}
