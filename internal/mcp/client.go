package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// ToolClient is the uniform interface every transport adapter satisfies.
// Whatever the underlying transport, a connected server can list its tools,
// call one, and be closed.
type ToolClient interface {
	// ListTools retrieves the server's tool definitions.
	ListTools(ctx context.Context) ([]ToolDefinition, error)

	// CallTool executes a tool with the given arguments.
	CallTool(ctx context.Context, req ToolCallRequest) (*ToolCallResponse, error)

	// Close releases the connection. For stdio transports this terminates
	// the subprocess.
	Close() error
}

// ClientFactory creates connected ToolClients from server configs. The
// Manager depends on this interface so tests can substitute stub clients.
type ClientFactory interface {
	// Connect validates nothing: it assumes config already passed Validate
	// and performs transport construction plus MCP initialization.
	Connect(ctx context.Context, name string, config ServerConfig) (ToolClient, error)
}

// defaultTimeout bounds individual tool calls when the config does not set one.
const defaultTimeout = 30 * time.Second

// StandardFactory is the production ClientFactory backed by mark3labs/mcp-go.
type StandardFactory struct{}

// NewStandardFactory creates the production client factory.
func NewStandardFactory() *StandardFactory {
	return &StandardFactory{}
}

// Connect builds the transport for config, starts it, and runs the MCP
// initialize handshake. The returned client is ready for ListTools/CallTool.
func (f *StandardFactory) Connect(ctx context.Context, name string, config ServerConfig) (ToolClient, error) {
	raw, err := newProtocolClient(config)
	if err != nil {
		return nil, err
	}

	if err := raw.Start(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		serverName: name,
		client:     raw,
		timeout:    timeout,
	}

	if err := c.initialize(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize MCP server: %w", err)
	}

	return c, nil
}

// newProtocolClient constructs the transport-specific mcp-go client.
func newProtocolClient(config ServerConfig) (*mcpclient.Client, error) {
	switch config.EffectiveTransport() {
	case TransportStdio:
		env := make([]string, 0, len(config.Env))
		for key, value := range config.Env {
			env = append(env, fmt.Sprintf("%s=%s", key, value))
		}
		return mcpclient.NewStdioMCPClient(config.Command, env, config.Args...)

	case TransportSSE:
		var options []mcptransport.ClientOption
		if len(config.Headers) > 0 {
			options = append(options, mcptransport.WithHeaders(config.Headers))
		}
		return mcpclient.NewSSEMCPClient(config.URL, options...)

	case TransportStreamableHTTP:
		var options []mcptransport.StreamableHTTPCOption
		if len(config.Headers) > 0 {
			options = append(options, mcptransport.WithHTTPHeaders(config.Headers))
		}
		return mcpclient.NewStreamableHttpClient(config.URL, options...)

	default:
		return nil, ErrInvalidConfig(fmt.Sprintf("unknown transport '%s'", config.Transport))
	}
}

// Client wraps an MCP server connection behind the ToolClient interface.
type Client struct {
	// serverName is the unique identifier for this server
	serverName string

	// client is the underlying MCP protocol client
	client *mcpclient.Client

	// timeout is the default timeout for tool calls
	timeout time.Duration
}

// initialize sends the initialize request to the MCP server.
func (c *Client) initialize(ctx context.Context) error {
	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "switchboard",
				Version: "0.1.0",
			},
		},
	}

	if _, err := c.client.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("initialize request failed: %w", err)
	}

	return nil
}

// ServerName returns the unique identifier for this server.
func (c *Client) ServerName() string {
	return c.serverName
}

// ListTools retrieves the list of available tools from the MCP server.
func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	tools := make([]ToolDefinition, len(result.Tools))
	for i, tool := range result.Tools {
		// Use RawInputSchema when the server supplied one, otherwise
		// round-trip the typed schema through JSON.
		var schemaBytes []byte
		if len(tool.RawInputSchema) > 0 {
			schemaBytes = tool.RawInputSchema
		} else {
			toolBytes, err := tool.MarshalJSON()
			if err != nil {
				return nil, fmt.Errorf("failed to marshal tool %s: %w", tool.Name, err)
			}
			var toolMap map[string]any
			if err := json.Unmarshal(toolBytes, &toolMap); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tool %s: %w", tool.Name, err)
			}
			if inputSchema, ok := toolMap["inputSchema"]; ok {
				schemaBytes, err = json.Marshal(inputSchema)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal input schema for %s: %w", tool.Name, err)
				}
			}
		}

		tools[i] = ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schemaBytes,
		}
	}

	return tools, nil
}

// CallTool executes an MCP tool with the given arguments.
func (c *Client) CallTool(ctx context.Context, req ToolCallRequest) (*ToolCallResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	mcpReq := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      req.Name,
			Arguments: req.Arguments,
		},
	}

	result, err := c.client.CallTool(ctx, mcpReq)
	if err != nil {
		return nil, fmt.Errorf("tool call failed: %w", err)
	}

	response := &ToolCallResponse{
		IsError: result.IsError,
		Content: make([]ContentItem, len(result.Content)),
	}

	for i, content := range result.Content {
		item := ContentItem{}

		if textContent, ok := mcp.AsTextContent(content); ok {
			item.Type = textContent.Type
			item.Text = textContent.Text
		} else if imageContent, ok := mcp.AsImageContent(content); ok {
			item.Type = imageContent.Type
			item.Data = imageContent.Data
			item.MimeType = imageContent.MIMEType
		} else {
			// Fallback: marshal to JSON to extract fields.
			contentBytes, err := json.Marshal(content)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal content: %w", err)
			}
			var contentMap map[string]any
			if err := json.Unmarshal(contentBytes, &contentMap); err != nil {
				return nil, fmt.Errorf("failed to unmarshal content: %w", err)
			}

			if contentType, ok := contentMap["type"].(string); ok {
				item.Type = contentType
			}
			if text, ok := contentMap["text"].(string); ok {
				item.Text = text
			}
			if data, ok := contentMap["data"].(string); ok {
				item.Data = data
			}
			if mimeType, ok := contentMap["mimeType"].(string); ok {
				item.MimeType = mimeType
			}
		}

		response.Content[i] = item
	}

	return response, nil
}

// Close closes the connection to the MCP server.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close MCP client: %w", err)
	}

	return nil
}
