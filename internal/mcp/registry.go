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
	"log/slog"
	"sync"

	"github.com/switchboard-dev/switchboard/internal/log"
)

// ToolRegistry maps tool names to the server that owns them. Registration is
// last-writer-wins: when two servers expose the same tool name, the most
// recently registered server takes ownership and a warning names both
// parties. All lookups are O(1).
type ToolRegistry struct {
	mu sync.RWMutex

	// owner maps tool name -> owning server name.
	owner map[string]string

	// defs maps tool name -> definition from the owning server.
	defs map[string]ToolDefinition

	// byServer maps server name -> that server's own tool definitions,
	// including tools it lost to a later registrant.
	byServer map[string][]ToolDefinition

	logger *slog.Logger
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry(logger *slog.Logger) *ToolRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolRegistry{
		owner:    make(map[string]string),
		defs:     make(map[string]ToolDefinition),
		byServer: make(map[string][]ToolDefinition),
		logger:   logger,
	}
}

// Register records a server's tools, taking ownership of every name. A name
// already owned by a different server is overwritten with a single warning.
func (r *ToolRegistry) Register(server string, tools []ToolDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byServer[server] = append([]ToolDefinition(nil), tools...)

	for _, tool := range tools {
		if prev, ok := r.owner[tool.Name]; ok && prev != server {
			r.logger.Warn("tool name collision, later registration wins",
				log.ToolKey, tool.Name,
				"previous_server", prev,
				"new_server", server)
		}
		r.owner[tool.Name] = server
		r.defs[tool.Name] = tool
	}
}

// Unregister removes a server's tools. Only entries the server still owns
// are removed: a tool this server lost to a later registrant is left alone.
func (r *ToolRegistry) Unregister(server string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, tool := range r.byServer[server] {
		if r.owner[tool.Name] == server {
			delete(r.owner, tool.Name)
			delete(r.defs, tool.Name)
		}
	}
	delete(r.byServer, server)
}

// Clear removes everything.
func (r *ToolRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.owner = make(map[string]string)
	r.defs = make(map[string]ToolDefinition)
	r.byServer = make(map[string][]ToolDefinition)
}

// HasTool reports whether a tool name is registered.
func (r *ToolRegistry) HasTool(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.owner[name]
	return ok
}

// OwningServer returns the server that currently owns a tool name.
func (r *ToolRegistry) OwningServer(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	server, ok := r.owner[name]
	return server, ok
}

// Definition returns the registered definition for a tool name.
func (r *ToolRegistry) Definition(name string) (ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[name]
	return def, ok
}

// ToolsForServer returns the definitions a server currently owns. A tool the
// server lost to a later registrant is not included.
func (r *ToolRegistry) ToolsForServer(server string) []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ToolDefinition
	for _, tool := range r.byServer[server] {
		if r.owner[tool.Name] == server {
			out = append(out, tool)
		}
	}
	return out
}

// Definitions returns every currently owned tool definition. The result is a
// copy; callers may mutate it freely.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ToolDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	return out
}

// Len returns the number of owned tool names.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.defs)
}
