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
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/switchboard-dev/switchboard/internal/log"
)

const (
	// defaultBaseDelay is the backoff unit: wait baseDelay * 2^retryCount
	// before a failed server becomes eligible again.
	defaultBaseDelay = 10 * time.Second

	// defaultAttemptTimeout bounds a single connection attempt, covering
	// transport construction, the initialize handshake, and tool listing.
	defaultAttemptTimeout = 30 * time.Second

	// defaultMaxRetryAttempts is how many consecutive failures are allowed
	// before a server is left unavailable until a manual retry.
	defaultMaxRetryAttempts = 3
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Factory creates tool clients. Defaults to the production
	// mark3labs-backed factory.
	Factory ClientFactory

	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger

	// BaseDelay is the backoff unit. Defaults to 10s.
	BaseDelay time.Duration

	// AttemptTimeout bounds each connection attempt. Defaults to 30s.
	AttemptTimeout time.Duration

	// MaxRetryAttempts caps automatic retries. Defaults to 3.
	MaxRetryAttempts int
}

// serverEntry is the Manager's internal record for one configured server.
// All fields are guarded by the Manager mutex.
type serverEntry struct {
	config      ServerConfig
	client      ToolClient
	status      ServerStatus
	errMsg      string
	retryCount  int
	lastAttempt time.Time
	tools       []ToolDefinition

	// inFlight serializes connection attempts: at most one per server,
	// even under concurrent CheckAvailabilities and manual retries.
	inFlight bool
}

// Manager owns the lifecycle of all configured tool servers. It materializes
// clients from configs, tracks per-server availability with capped
// exponential backoff, and keeps the tool registry in sync with what is
// actually connected.
type Manager struct {
	mu      sync.Mutex
	servers map[string]*serverEntry

	registry *ToolRegistry
	factory  ClientFactory
	logger   *slog.Logger
	throttle *logThrottle

	baseDelay        time.Duration
	attemptTimeout   time.Duration
	maxRetryAttempts int
}

// NewManager creates a Manager with no configured servers.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Factory == nil {
		cfg.Factory = NewStandardFactory()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.AttemptTimeout == 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}
	if cfg.MaxRetryAttempts == 0 {
		cfg.MaxRetryAttempts = defaultMaxRetryAttempts
	}

	return &Manager{
		servers:          make(map[string]*serverEntry),
		registry:         NewToolRegistry(cfg.Logger),
		factory:          cfg.Factory,
		logger:           cfg.Logger,
		throttle:         newLogThrottle(),
		baseDelay:        cfg.BaseDelay,
		attemptTimeout:   cfg.AttemptTimeout,
		maxRetryAttempts: cfg.MaxRetryAttempts,
	}
}

// Registry returns the tool registry. The registry is owned by the Manager;
// callers read from it but only the Manager writes.
func (m *Manager) Registry() *ToolRegistry {
	return m.registry
}

// UpdateConfig replaces the entire server set. All existing clients are
// closed first (best effort, failures logged), all registry state is
// cleared, then every server in the new config is connected concurrently.
// One server's failure never blocks or rolls back the others; the method
// returns once every attempt has settled.
func (m *Manager) UpdateConfig(ctx context.Context, configs map[string]ServerConfig) map[string]ServerState {
	m.mu.Lock()
	for name, entry := range m.servers {
		if entry.client != nil {
			if err := entry.client.Close(); err != nil {
				m.logger.Warn("failed to close tool server client",
					log.ServerKey, name, log.Error(err))
			}
		}
	}
	m.registry.Clear()

	now := time.Now()
	fresh := make(map[string]*serverEntry, len(configs))
	for name, config := range configs {
		m.logger.Debug("configuring tool server",
			log.ServerKey, name,
			"transport", config.EffectiveTransport(),
			"env", RedactSecrets(config.Env),
			"headers", RedactSecrets(config.Headers))
		m.throttle.reset(name)
		fresh[name] = &serverEntry{
			config:      config,
			status:      StatusConnecting,
			inFlight:    true,
			lastAttempt: now,
		}
	}
	m.servers = fresh
	m.mu.Unlock()

	var wg sync.WaitGroup
	for name, entry := range fresh {
		wg.Add(1)
		go func(name string, entry *serverEntry) {
			defer wg.Done()
			m.attempt(ctx, name, entry)
		}(name, entry)
	}
	wg.Wait()

	return m.States()
}

// CheckAvailabilities re-checks every tracked server that is eligible for a
// connection attempt:
//
//   - servers with an attempt already in flight are skipped,
//   - available servers are left alone,
//   - unavailable servers still inside their backoff window are skipped,
//   - unavailable servers past MaxRetryAttempts are skipped until a manual
//     retry resets them.
//
// Eligible attempts run concurrently and independently; the method returns
// once all of them have settled.
func (m *Manager) CheckAvailabilities(ctx context.Context) map[string]ServerState {
	now := time.Now()

	m.mu.Lock()
	var pending []string
	for name, entry := range m.servers {
		if entry.inFlight || entry.status == StatusAvailable {
			continue
		}
		if entry.retryCount >= m.maxRetryAttempts {
			continue
		}
		if now.Sub(entry.lastAttempt) < m.backoffDelay(entry.retryCount) {
			continue
		}
		entry.status = StatusConnecting
		entry.inFlight = true
		entry.lastAttempt = now
		pending = append(pending, name)
	}
	entries := make([]*serverEntry, len(pending))
	for i, name := range pending {
		entries[i] = m.servers[name]
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for i, name := range pending {
		wg.Add(1)
		go func(name string, entry *serverEntry) {
			defer wg.Done()
			m.attempt(ctx, name, entry)
		}(name, entries[i])
	}
	wg.Wait()

	return m.States()
}

// RetryServerConnection forces an immediate reconnection attempt for one
// server, bypassing the backoff wait. The retry record and log throttle are
// reset so the attempt behaves like a first one. An attempt already in
// flight is left to finish; only the retry record is reset, and the current
// states are returned without starting a second attempt.
func (m *Manager) RetryServerConnection(ctx context.Context, name string) (map[string]ServerState, error) {
	m.mu.Lock()
	entry, ok := m.servers[name]
	if !ok {
		m.mu.Unlock()
		return m.States(), ErrServerNotFound(name)
	}

	entry.retryCount = 0
	m.throttle.reset(name)

	if entry.inFlight {
		m.mu.Unlock()
		return m.States(), nil
	}

	if entry.client != nil {
		if err := entry.client.Close(); err != nil {
			m.logger.Warn("failed to close tool server client",
				log.ServerKey, name, log.Error(err))
		}
		entry.client = nil
		m.registry.Unregister(name)
	}

	entry.status = StatusConnecting
	entry.inFlight = true
	entry.lastAttempt = time.Now()
	m.mu.Unlock()

	m.attempt(ctx, name, entry)

	return m.States(), nil
}

// attempt runs one bounded connection attempt for a server and records the
// outcome. The caller must have marked the entry connecting and in flight.
func (m *Manager) attempt(ctx context.Context, name string, entry *serverEntry) {
	attemptCtx, cancel := context.WithTimeout(ctx, m.attemptTimeout)
	defer cancel()

	var (
		client ToolClient
		tools  []ToolDefinition
		oerr   *OrchError
	)

	if err := entry.config.Validate(name); err != nil {
		if classified := AsOrchError(err); classified != nil {
			oerr = classified
		} else {
			oerr = ErrInvalidConfig(err.Error())
		}
	} else {
		var err error
		client, err = m.factory.Connect(attemptCtx, name, entry.config)
		if err != nil {
			oerr = ErrConnectionFailed(name, err)
		} else {
			tools, err = client.ListTools(attemptCtx)
			if err != nil {
				if closeErr := client.Close(); closeErr != nil {
					m.logger.Warn("failed to close tool server client",
						log.ServerKey, name, log.Error(closeErr))
				}
				client = nil
				oerr = ErrToolListFailed(name, err)
			}
		}
	}

	m.mu.Lock()
	// The config may have been replaced while this attempt was in flight.
	// In that case the entry no longer belongs to the manager: discard the
	// outcome and release whatever we opened.
	if m.servers[name] != entry {
		m.mu.Unlock()
		if client != nil {
			client.Close()
		}
		return
	}

	logger := log.WithServer(m.logger, name)

	entry.inFlight = false
	if oerr == nil {
		entry.client = client
		entry.status = StatusAvailable
		entry.errMsg = ""
		entry.retryCount = 0
		entry.tools = tools
		m.registry.Register(name, tools)
		m.mu.Unlock()

		logger.Info("tool server available", "tools", len(tools))
		return
	}

	entry.client = nil
	entry.status = StatusUnavailable
	entry.errMsg = classifiedMessage(oerr)
	entry.retryCount++
	entry.tools = nil
	errMsg, retryCount := entry.errMsg, entry.retryCount
	m.mu.Unlock()

	if m.throttle.allow(name, errMsg) {
		logger.Warn("tool server unavailable",
			"error", errMsg,
			"retry_count", retryCount)
	}
}

// classifiedMessage renders the human-readable reason stored on the entry.
func classifiedMessage(oerr *OrchError) string {
	if oerr.Detail != "" {
		return fmt.Sprintf("%s: %s", oerr.Message, oerr.Detail)
	}
	return oerr.Message
}

// backoffDelay computes the wait before a server with the given retry count
// becomes eligible again.
func (m *Manager) backoffDelay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	// Shift is bounded by maxRetryAttempts, which is small.
	return m.baseDelay * time.Duration(1<<retryCount)
}

// CallTool routes a tool call to the server that owns the tool.
func (m *Manager) CallTool(ctx context.Context, toolName string, args map[string]any) (*ToolCallResponse, error) {
	server, ok := m.registry.OwningServer(toolName)
	if !ok {
		return nil, ErrToolNotFound(toolName)
	}

	m.mu.Lock()
	entry, ok := m.servers[server]
	if !ok || entry.status != StatusAvailable || entry.client == nil {
		m.mu.Unlock()
		return nil, NewOrchError(ErrClassExecution,
			fmt.Sprintf("tool server '%s' is not available", server))
	}
	client := entry.client
	m.mu.Unlock()

	resp, err := client.CallTool(ctx, ToolCallRequest{Name: toolName, Arguments: args})
	if err != nil {
		return nil, ErrExecutionFailed(toolName, err)
	}
	return resp, nil
}

// States returns a consistent snapshot of every tracked server's state.
func (m *Manager) States() map[string]ServerState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]ServerState, len(m.servers))
	for name, entry := range m.servers {
		out[name] = ServerState{
			Status:      entry.status,
			Error:       entry.errMsg,
			RetryCount:  entry.retryCount,
			LastAttempt: entry.lastAttempt,
			Tools:       append([]ToolDefinition(nil), entry.tools...),
		}
	}
	return out
}

// Close shuts down every client and clears all state.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, entry := range m.servers {
		if entry.client != nil {
			if err := entry.client.Close(); err != nil {
				m.logger.Warn("failed to close tool server client",
					log.ServerKey, name, log.Error(err))
			}
		}
	}
	m.servers = make(map[string]*serverEntry)
	m.registry.Clear()
	return nil
}
