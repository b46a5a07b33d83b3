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

// Package mcp manages connections to external MCP tool servers.
//
// The package connects to servers over three transports (stdio subprocess,
// SSE, and streamable HTTP) and presents them uniformly: every connected
// server is a client that can list tools and call them. A Manager owns the
// set of connections, tracks per-server availability with capped exponential
// backoff, and keeps a ToolRegistry mapping tool names to the server that
// owns them.
//
// Key pieces:
//
//   - ServerConfig: the per-server configuration union, validated before any
//     connection is attempted.
//   - ClientFactory / ToolClient: transport construction behind an interface
//     so tests can substitute stub clients.
//   - Manager: the connection state machine (connecting, available,
//     unavailable) with UpdateConfig, CheckAvailabilities, and manual retry.
//   - Poller: drives periodic availability checks.
//   - ToolRegistry: last-writer-wins tool name index with O(1) lookups.
//
// All blocking operations take a context. The Manager is safe for concurrent
// use; snapshots returned from it are copies.
package mcp
