// Copyright 2025 The Switchboard Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcp

import (
	"encoding/json"
	"time"
)

// ServerStatus represents the connection state of a tool server.
type ServerStatus string

const (
	// StatusConnecting means a connection attempt is in flight.
	StatusConnecting ServerStatus = "connecting"
	// StatusAvailable means the server is connected and its tools are registered.
	StatusAvailable ServerStatus = "available"
	// StatusUnavailable means the last connection attempt failed.
	StatusUnavailable ServerStatus = "unavailable"
)

// ToolDefinition describes a tool exposed by an MCP server.
type ToolDefinition struct {
	// Name is the tool's identifier, unique within its server.
	Name string `json:"name"`

	// Description explains what the tool does.
	Description string `json:"description,omitempty"`

	// InputSchema is the JSON schema for the tool's arguments.
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ToolCallRequest represents a request to execute a tool.
type ToolCallRequest struct {
	// Name is the tool to execute.
	Name string

	// Arguments are the input parameters for the tool.
	Arguments map[string]any
}

// ToolCallResponse represents the result of a tool execution.
type ToolCallResponse struct {
	// Content contains the response content items.
	Content []ContentItem

	// IsError indicates the tool itself reported a failure.
	IsError bool
}

// ContentItem represents a single piece of content in a tool response.
type ContentItem struct {
	// Type is the content type ("text", "image", ...).
	Type string

	// Text is the text content (for type "text").
	Text string

	// Data is base64-encoded binary data (for type "image").
	Data string

	// MimeType is the MIME type of the data.
	MimeType string
}

// TextContent concatenates the text content items of a response.
func (r *ToolCallResponse) TextContent() string {
	var out string
	for _, item := range r.Content {
		if item.Type == "text" {
			out += item.Text
		}
	}
	return out
}

// ServerState is a point-in-time snapshot of a server's connection state.
// Snapshots are copies; mutating one has no effect on the Manager.
type ServerState struct {
	// Status is the current connection status.
	Status ServerStatus `json:"status"`

	// Error describes the most recent failure, empty when available.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of consecutive failed attempts.
	RetryCount int `json:"retryCount"`

	// LastAttempt is when the most recent connection attempt started.
	LastAttempt time.Time `json:"lastAttempt"`

	// Tools are the definitions fetched from the server, nil unless available.
	Tools []ToolDefinition `json:"tools,omitempty"`
}
