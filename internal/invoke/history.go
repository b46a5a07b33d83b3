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

package invoke

import (
	"encoding/json"
	"sync"
	"time"
)

// ExecutionStatus tracks a tool execution through its lifecycle.
type ExecutionStatus string

const (
	// StatusPending means the execution is waiting for approval.
	StatusPending ExecutionStatus = "pending"
	// StatusApproved means the execution was approved but not yet started.
	StatusApproved ExecutionStatus = "approved"
	// StatusExecuting means the tool call is in flight.
	StatusExecuting ExecutionStatus = "executing"
	// StatusCompleted means the tool returned a result.
	StatusCompleted ExecutionStatus = "completed"
	// StatusFailed means the execution was denied or the tool call failed.
	StatusFailed ExecutionStatus = "failed"
)

// ToolExecution is one tool invocation's record, from request to outcome.
type ToolExecution struct {
	// ID uniquely identifies this execution.
	ID string `json:"id"`

	// ToolCallID is the LLM loop's identifier for the originating call.
	ToolCallID string `json:"toolCallId"`

	// ToolName is the tool that was invoked.
	ToolName string `json:"toolName"`

	// ServerName is the server that owned the tool at invocation time.
	ServerName string `json:"serverName"`

	// Arguments are the call's input parameters.
	Arguments map[string]any `json:"arguments,omitempty"`

	// Status is the execution's current lifecycle state.
	Status ExecutionStatus `json:"status"`

	// Result is the textual outcome delivered to the LLM loop.
	Result string `json:"result,omitempty"`

	// Error describes the failure for failed executions.
	Error string `json:"error,omitempty"`

	// CreatedAt is when the request was received.
	CreatedAt time.Time `json:"createdAt"`

	// Duration is how long the tool call itself took. Zero for executions
	// that never ran.
	Duration time.Duration `json:"duration"`
}

// History is the append-only record of tool executions. Entries are added
// when a call is received and updated in place as the execution progresses;
// nothing is ever removed except by an explicit Clear.
type History struct {
	mu      sync.RWMutex
	entries []*ToolExecution
	byID    map[string]*ToolExecution
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{
		byID: make(map[string]*ToolExecution),
	}
}

// Add appends a new execution record.
func (h *History) Add(exec ToolExecution) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry := exec
	h.entries = append(h.entries, &entry)
	h.byID[entry.ID] = &entry
}

// SetStatus transitions an execution to a new status.
func (h *History) SetStatus(id string, status ExecutionStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if entry, ok := h.byID[id]; ok {
		entry.Status = status
	}
}

// Finish records an execution's terminal outcome.
func (h *History) Finish(id string, status ExecutionStatus, result, errMsg string, duration time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.byID[id]
	if !ok {
		return
	}
	entry.Status = status
	entry.Result = result
	entry.Error = errMsg
	entry.Duration = duration
}

// Get returns a copy of one execution record.
func (h *History) Get(id string) (ToolExecution, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entry, ok := h.byID[id]
	if !ok {
		return ToolExecution{}, false
	}
	return *entry, true
}

// List returns copies of all execution records in insertion order.
func (h *History) List() []ToolExecution {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ToolExecution, len(h.entries))
	for i, entry := range h.entries {
		out[i] = *entry
	}
	return out
}

// Pending returns copies of executions still waiting for approval.
func (h *History) Pending() []ToolExecution {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []ToolExecution
	for _, entry := range h.entries {
		if entry.Status == StatusPending {
			out = append(out, *entry)
		}
	}
	return out
}

// Len returns the number of recorded executions.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.entries)
}

// Clear removes all records.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = nil
	h.byID = make(map[string]*ToolExecution)
}

// ExportJSON renders the full history for display or download.
func (h *History) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(h.List(), "", "  ")
}
