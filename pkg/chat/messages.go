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

// Package chat defines the message types exchanged between the LLM-driving
// loop and the tool orchestration layer. The LLM side is an external
// collaborator: it emits tool calls and consumes tool results, and this
// package is the only vocabulary the two sides share.
package chat

// MessageRole identifies the sender of a message.
type MessageRole string

const (
	// RoleSystem indicates a system message (context, instructions).
	RoleSystem MessageRole = "system"

	// RoleUser indicates a message from the user.
	RoleUser MessageRole = "user"

	// RoleAssistant indicates a message from the LLM.
	RoleAssistant MessageRole = "assistant"

	// RoleTool indicates a tool execution result.
	RoleTool MessageRole = "tool"
)

// Message represents a single message in a conversation.
type Message struct {
	// Role indicates who sent this message.
	Role MessageRole `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content,omitempty"`

	// ToolCalls contains any tool invocations made by the assistant.
	// Only valid when Role is "assistant".
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`

	// ToolCallID links this message to a specific tool call.
	// Only valid when Role is "tool".
	ToolCallID string `json:"toolCallId,omitempty"`
}

// ToolCall represents a function invocation requested by the LLM.
type ToolCall struct {
	// ID uniquely identifies this tool call within a completion.
	ID string `json:"toolCallId"`

	// Name is the tool name to invoke.
	Name string `json:"toolName"`

	// Arguments contains the input parameters for the tool.
	Arguments map[string]any `json:"args,omitempty"`
}

// ToolResult carries a tool's outcome back into the conversation stream.
// The orchestrator guarantees that every handled tool call produces exactly
// one ToolResult: the tool's return value on success, or a sentinel message
// (denial, missing executor, execution error) on failure.
type ToolResult struct {
	// ToolCallID correlates the result with the originating call.
	ToolCallID string `json:"toolCallId"`

	// Content is the textual result delivered to the LLM.
	Content string `json:"result"`

	// IsError marks sentinel results so UIs can render them distinctly.
	// The LLM loop treats error results as ordinary tool output.
	IsError bool `json:"isError,omitempty"`
}

// ToolCallAnnotation informs the conversation stream which tool is about to
// run, before the result is known.
type ToolCallAnnotation struct {
	// Type is always "toolCall".
	Type string `json:"type"`

	// ToolCallID correlates the annotation with the originating call.
	ToolCallID string `json:"toolCallId"`

	// ServerName is the tool server that owns the tool.
	ServerName string `json:"serverName"`

	// ToolName is the tool being invoked.
	ToolName string `json:"toolName"`

	// ToolDescription explains what the tool does.
	ToolDescription string `json:"toolDescription,omitempty"`
}

// NewToolCallAnnotation builds an annotation for a call routed to a server.
func NewToolCallAnnotation(toolCallID, serverName, toolName, description string) ToolCallAnnotation {
	return ToolCallAnnotation{
		Type:            "toolCall",
		ToolCallID:      toolCallID,
		ServerName:      serverName,
		ToolName:        toolName,
		ToolDescription: description,
	}
}
