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

// Package invoke coordinates tool executions requested by the LLM-driving
// loop: approval gating, argument validation, dispatch to the owning server,
// and bookkeeping (history, rolling stats, prometheus metrics).
//
// The coordinator never propagates a tool failure as an error to the LLM
// loop. Every handled call settles into exactly one chat.ToolResult: the
// tool's output on success, or a sentinel message on denial, validation
// failure, or execution error.
package invoke

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/switchboard-dev/switchboard/internal/log"
	"github.com/switchboard-dev/switchboard/internal/mcp"
	"github.com/switchboard-dev/switchboard/pkg/chat"
)

// deniedSentinel is the fixed result delivered when a human denies a call.
const deniedSentinel = "Tool execution was denied by the user."

// blockedSentinel is delivered when policy forbids the tool outright.
const blockedSentinel = "Tool execution is blocked by policy."

// Executor dispatches an approved tool call to the server that owns the
// tool. *mcp.Manager satisfies this. The ctx carries the conversation so
// far, readable via chat.ConversationFromContext; the MCP wire call itself
// transmits only the tool name and arguments.
type Executor interface {
	CallTool(ctx context.Context, toolName string, args map[string]any) (*mcp.ToolCallResponse, error)
}

// AnnotationSink receives a ToolCallAnnotation before each execution so the
// conversation stream can show which tool is about to run.
type AnnotationSink func(chat.ToolCallAnnotation)

// Config configures a Coordinator.
type Config struct {
	// Registry resolves tool names to owning servers.
	Registry *mcp.ToolRegistry

	// Executor dispatches approved calls.
	Executor Executor

	// Policy decides which calls need approval.
	Policy Policy

	// Annotations, when set, receives pre-execution annotations.
	Annotations AnnotationSink

	// History records executions. A fresh one is created when nil.
	History *History

	// Metrics records outcomes. A fresh unexported registry is used when nil.
	Metrics *Metrics

	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Coordinator runs the approve/deny/execute state machine for tool calls.
type Coordinator struct {
	registry    *mcp.ToolRegistry
	executor    Executor
	policy      Policy
	annotations AnnotationSink
	history     *History
	metrics     *Metrics
	validator   *ArgValidator
	logger      *slog.Logger

	mu      sync.Mutex
	pending map[string]chan bool
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.History == nil {
		cfg.History = NewHistory()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Coordinator{
		registry:    cfg.Registry,
		executor:    cfg.Executor,
		policy:      cfg.Policy,
		annotations: cfg.Annotations,
		history:     cfg.History,
		metrics:     cfg.Metrics,
		validator:   NewArgValidator(),
		logger:      cfg.Logger,
		pending:     make(map[string]chan bool),
	}
}

// History returns the coordinator's execution history.
func (c *Coordinator) History() *History {
	return c.history
}

// Metrics returns the coordinator's metrics.
func (c *Coordinator) Metrics() *Metrics {
	return c.metrics
}

// HandleToolCall runs one tool call through the state machine. convo is the
// conversation accumulated so far; it is attached to the executor's context
// via chat.WithConversation when the call is dispatched. The second return
// value is false when the tool is unknown to the registry; the call passes
// through unmodified so the caller can surface "unknown tool" itself.
//
// For handled calls this blocks until the execution settles, including the
// approval wait. Cancelling ctx during the wait fails the execution.
func (c *Coordinator) HandleToolCall(ctx context.Context, call chat.ToolCall, convo []chat.Message) (chat.ToolResult, bool) {
	server, ok := c.registry.OwningServer(call.Name)
	if !ok {
		return chat.ToolResult{}, false
	}
	def, _ := c.registry.Definition(call.Name)

	if c.annotations != nil {
		c.annotations(chat.NewToolCallAnnotation(call.ID, server, call.Name, def.Description))
	}

	exec := ToolExecution{
		ID:         uuid.NewString(),
		ToolCallID: call.ID,
		ToolName:   call.Name,
		ServerName: server,
		Arguments:  call.Arguments,
		Status:     StatusPending,
		CreatedAt:  time.Now(),
	}

	// The decision channel must be registered before the execution becomes
	// visible in history, so an Approve racing a pending listing always
	// finds it.
	blocked := c.policy.Blocked(server, call.Name)
	var decision chan bool
	if !blocked && c.policy.RequiresApproval(server, call.Name) {
		decision = make(chan bool, 1)
		c.mu.Lock()
		c.pending[exec.ID] = decision
		c.mu.Unlock()
	}
	c.history.Add(exec)

	if blocked {
		c.logger.Info("tool execution blocked by policy",
			log.ExecutionIDKey, exec.ID, log.ToolKey, call.Name, log.ServerKey, server)
		return c.fail(exec, blockedSentinel, "blocked by policy", false, 0), true
	}

	if err := c.validator.Validate(def.InputSchema, call.Arguments); err != nil {
		c.discard(exec.ID)
		return c.fail(exec, err.Error(), err.Error(), false, 0), true
	}

	if decision != nil {
		approved, err := c.awaitDecision(ctx, exec.ID, decision)
		if err != nil {
			return c.fail(exec, fmt.Sprintf("Tool execution was not approved: %v", err), err.Error(), false, 0), true
		}
		if !approved {
			c.logger.Info("tool execution denied",
				log.ExecutionIDKey, exec.ID, log.ToolKey, call.Name, log.ServerKey, server)
			return c.fail(exec, deniedSentinel, "denied by user", false, 0), true
		}
	}
	c.history.SetStatus(exec.ID, StatusApproved)

	c.history.SetStatus(exec.ID, StatusExecuting)
	start := time.Now()
	resp, err := c.executor.CallTool(chat.WithConversation(ctx, convo), call.Name, call.Arguments)
	duration := time.Since(start)

	if err != nil {
		sentinel := fmt.Sprintf("Error executing tool '%s': %v", call.Name, err)
		if oerr := mcp.AsOrchError(err); oerr != nil && oerr.Class == mcp.ErrClassNotFound {
			sentinel = fmt.Sprintf("No execute function available for tool '%s'.", call.Name)
		}
		c.logger.Warn("tool execution failed",
			log.ExecutionIDKey, exec.ID, log.ToolKey, call.Name, log.ServerKey, server,
			log.DurationKey, duration.Milliseconds(), log.Error(err))
		return c.fail(exec, sentinel, err.Error(), true, duration), true
	}

	content := renderContent(resp)
	c.history.Finish(exec.ID, StatusCompleted, content, "", duration)
	c.metrics.RecordOutcome(call.Name, server, StatusCompleted, true, duration)
	c.logger.Info("tool execution completed",
		log.ExecutionIDKey, exec.ID, log.ToolKey, call.Name, log.ServerKey, server,
		log.DurationKey, duration.Milliseconds())

	return chat.ToolResult{
		ToolCallID: call.ID,
		Content:    content,
		IsError:    resp.IsError,
	}, true
}

// awaitDecision parks the call until Approve or Deny resolves the
// pre-registered decision channel, or the caller's context is cancelled.
func (c *Coordinator) awaitDecision(ctx context.Context, executionID string, decision chan bool) (bool, error) {
	c.logger.Info("tool execution awaiting approval", log.ExecutionIDKey, executionID)

	select {
	case approved := <-decision:
		return approved, nil
	case <-ctx.Done():
		c.discard(executionID)
		return false, ctx.Err()
	}
}

// discard drops a registered decision channel for an execution that settled
// without waiting on it.
func (c *Coordinator) discard(executionID string) {
	c.mu.Lock()
	delete(c.pending, executionID)
	c.mu.Unlock()
}

// Approve releases a pending execution for dispatch.
func (c *Coordinator) Approve(executionID string) error {
	return c.resolve(executionID, true)
}

// Deny terminates a pending execution. The underlying tool is never called.
func (c *Coordinator) Deny(executionID string) error {
	return c.resolve(executionID, false)
}

func (c *Coordinator) resolve(executionID string, approved bool) error {
	c.mu.Lock()
	decision, ok := c.pending[executionID]
	if ok {
		delete(c.pending, executionID)
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("no pending execution '%s'", executionID)
	}
	decision <- approved
	return nil
}

// fail settles an execution as failed and builds the sentinel result. ran
// distinguishes calls that reached the tool from ones stopped earlier.
func (c *Coordinator) fail(exec ToolExecution, sentinel, errMsg string, ran bool, duration time.Duration) chat.ToolResult {
	c.history.Finish(exec.ID, StatusFailed, "", errMsg, duration)
	c.metrics.RecordOutcome(exec.ToolName, exec.ServerName, StatusFailed, ran, duration)
	return chat.ToolResult{
		ToolCallID: exec.ToolCallID,
		Content:    sentinel,
		IsError:    true,
	}
}

// renderContent flattens a tool response into the text delivered to the LLM
// loop. Non-text content falls back to its JSON form.
func renderContent(resp *mcp.ToolCallResponse) string {
	if text := resp.TextContent(); text != "" {
		return text
	}
	if len(resp.Content) == 0 {
		return ""
	}
	raw, err := json.Marshal(resp.Content)
	if err != nil {
		return fmt.Sprintf("%v", resp.Content)
	}
	return string(raw)
}
