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
	"errors"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClient is a ToolClient for tests.
type stubClient struct {
	mu     sync.Mutex
	server string
	tools  []ToolDefinition
	closed bool

	callCount int
	callResp  *ToolCallResponse
	callErr   error
}

func (c *stubClient) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	return append([]ToolDefinition(nil), c.tools...), nil
}

func (c *stubClient) CallTool(ctx context.Context, req ToolCallRequest) (*ToolCallResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callCount++
	if c.callErr != nil {
		return nil, c.callErr
	}
	if c.callResp != nil {
		return c.callResp, nil
	}
	return &ToolCallResponse{Content: []ContentItem{{Type: "text", Text: "ok"}}}, nil
}

func (c *stubClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *stubClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// stubFactory is a ClientFactory for tests. Per-server failures, per-server
// tools, attempt counting, and an optional hold channel to keep attempts in
// flight.
type stubFactory struct {
	mu       sync.Mutex
	connects map[string]int
	inFlight map[string]int
	maxInFly map[string]int
	fail     map[string]error
	tools    map[string][]ToolDefinition
	clients  map[string][]*stubClient

	// hold, when set, blocks every Connect until the channel closes.
	hold chan struct{}
}

func newStubFactory() *stubFactory {
	return &stubFactory{
		connects: make(map[string]int),
		inFlight: make(map[string]int),
		maxInFly: make(map[string]int),
		fail:     make(map[string]error),
		tools:    make(map[string][]ToolDefinition),
		clients:  make(map[string][]*stubClient),
	}
}

func (f *stubFactory) Connect(ctx context.Context, name string, config ServerConfig) (ToolClient, error) {
	f.mu.Lock()
	f.connects[name]++
	f.inFlight[name]++
	if f.inFlight[name] > f.maxInFly[name] {
		f.maxInFly[name] = f.inFlight[name]
	}
	hold := f.hold
	f.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight[name]--

	if err := f.fail[name]; err != nil {
		return nil, err
	}

	c := &stubClient{server: name, tools: f.tools[name]}
	f.clients[name] = append(f.clients[name], c)
	return c, nil
}

func (f *stubFactory) connectCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects[name]
}

func stdioConfig() ServerConfig {
	return ServerConfig{Command: "test-server"}
}

func newTestManager(factory ClientFactory) *Manager {
	return NewManager(ManagerConfig{
		Factory:   factory,
		BaseDelay: time.Nanosecond,
	})
}

func TestManagerUpdateConfigAllSettled(t *testing.T) {
	factory := newStubFactory()
	factory.tools["good"] = []ToolDefinition{tool("search")}
	factory.fail["bad"] = errors.New("dial tcp: connect: connection refused")
	m := newTestManager(factory)
	defer m.Close()

	states := m.UpdateConfig(context.Background(), map[string]ServerConfig{
		"good": stdioConfig(),
		"bad":  stdioConfig(),
	})

	require.Len(t, states, 2)

	assert.Equal(t, StatusAvailable, states["good"].Status)
	assert.Equal(t, 0, states["good"].RetryCount)
	require.Len(t, states["good"].Tools, 1)

	assert.Equal(t, StatusUnavailable, states["bad"].Status)
	assert.Equal(t, 1, states["bad"].RetryCount)
	assert.Contains(t, states["bad"].Error, "connection refused")

	// The failure did not block the success: the registry has good's tools.
	assert.True(t, m.Registry().HasTool("search"))
	owner, _ := m.Registry().OwningServer("search")
	assert.Equal(t, "good", owner)
}

func TestManagerUpdateConfigClosesAllOldClients(t *testing.T) {
	factory := newStubFactory()
	factory.tools["one"] = []ToolDefinition{tool("a")}
	factory.tools["two"] = []ToolDefinition{tool("b")}
	m := newTestManager(factory)
	defer m.Close()

	m.UpdateConfig(context.Background(), map[string]ServerConfig{
		"one": stdioConfig(),
		"two": stdioConfig(),
	})

	factory.mu.Lock()
	oldOne := factory.clients["one"][0]
	oldTwo := factory.clients["two"][0]
	factory.mu.Unlock()

	m.UpdateConfig(context.Background(), map[string]ServerConfig{
		"one": stdioConfig(),
	})

	assert.True(t, oldOne.isClosed())
	assert.True(t, oldTwo.isClosed())

	// Registry reflects only the new config.
	assert.True(t, m.Registry().HasTool("a"))
	assert.False(t, m.Registry().HasTool("b"))

	states := m.States()
	require.Len(t, states, 1)
	assert.Contains(t, states, "one")
}

func TestManagerBadCommandUnavailableAfterOneAttempt(t *testing.T) {
	factory := newStubFactory()
	factory.fail["bad"] = &exec.Error{Name: "nonexistent-cmd", Err: exec.ErrNotFound}
	m := newTestManager(factory)
	defer m.Close()

	states := m.UpdateConfig(context.Background(), map[string]ServerConfig{
		"bad": {Command: "nonexistent-cmd"},
	})

	assert.Equal(t, StatusUnavailable, states["bad"].Status)
	assert.Equal(t, 1, states["bad"].RetryCount)
	assert.Contains(t, states["bad"].Error, "command not found")
	assert.Equal(t, 1, factory.connectCount("bad"))
}

func TestManagerInvalidConfigNeverConnects(t *testing.T) {
	factory := newStubFactory()
	m := newTestManager(factory)
	defer m.Close()

	states := m.UpdateConfig(context.Background(), map[string]ServerConfig{
		"bad": {Transport: TransportStdio}, // no command
	})

	assert.Equal(t, StatusUnavailable, states["bad"].Status)
	assert.Contains(t, states["bad"].Error, "requires a command")
	assert.Equal(t, 0, factory.connectCount("bad"))
}

func TestManagerBackoffSkipsWithinWindow(t *testing.T) {
	factory := newStubFactory()
	factory.fail["flaky"] = errors.New("connection refused")
	m := NewManager(ManagerConfig{
		Factory:   factory,
		BaseDelay: time.Hour,
	})
	defer m.Close()

	m.UpdateConfig(context.Background(), map[string]ServerConfig{
		"flaky": stdioConfig(),
	})
	require.Equal(t, 1, factory.connectCount("flaky"))

	// Inside the backoff window: no new attempt.
	states := m.CheckAvailabilities(context.Background())
	assert.Equal(t, 1, factory.connectCount("flaky"))
	assert.Equal(t, StatusUnavailable, states["flaky"].Status)

	// Manual retry bypasses the backoff.
	states, err := m.RetryServerConnection(context.Background(), "flaky")
	require.NoError(t, err)
	assert.Equal(t, 2, factory.connectCount("flaky"))
	assert.Equal(t, StatusUnavailable, states["flaky"].Status)
	assert.Equal(t, 1, states["flaky"].RetryCount)
}

func TestManagerStopsAfterMaxRetryAttempts(t *testing.T) {
	factory := newStubFactory()
	factory.fail["down"] = errors.New("connection refused")
	m := newTestManager(factory)
	defer m.Close()

	m.UpdateConfig(context.Background(), map[string]ServerConfig{
		"down": stdioConfig(),
	})

	// Backoff is a nanosecond, so every check is eligible until the retry
	// cap is reached.
	for i := 0; i < 5; i++ {
		time.Sleep(time.Millisecond)
		m.CheckAvailabilities(context.Background())
	}

	assert.Equal(t, defaultMaxRetryAttempts, factory.connectCount("down"))
	states := m.States()
	assert.Equal(t, defaultMaxRetryAttempts, states["down"].RetryCount)

	// Manual retry resets the record and attempts again.
	_, err := m.RetryServerConnection(context.Background(), "down")
	require.NoError(t, err)
	assert.Equal(t, defaultMaxRetryAttempts+1, factory.connectCount("down"))
	assert.Equal(t, 1, m.States()["down"].RetryCount)
}

func TestManagerNoOverlappingAttempts(t *testing.T) {
	factory := newStubFactory()
	factory.hold = make(chan struct{})
	factory.tools["slow"] = []ToolDefinition{tool("x")}
	m := newTestManager(factory)
	defer m.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.UpdateConfig(context.Background(), map[string]ServerConfig{
			"slow": stdioConfig(),
		})
	}()

	// Wait until the attempt is in flight.
	require.Eventually(t, func() bool {
		return factory.connectCount("slow") == 1
	}, time.Second, time.Millisecond)

	// Concurrent checks and retries must not start a second attempt.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.CheckAvailabilities(context.Background())
			m.RetryServerConnection(context.Background(), "slow")
		}()
	}
	wg.Wait()

	factory.mu.Lock()
	maxInFlight := factory.maxInFly["slow"]
	factory.mu.Unlock()
	assert.Equal(t, 1, maxInFlight)
	assert.Equal(t, 1, factory.connectCount("slow"))

	close(factory.hold)
	<-done

	require.Eventually(t, func() bool {
		return m.States()["slow"].Status == StatusAvailable
	}, time.Second, time.Millisecond)
}

func TestManagerCallTool(t *testing.T) {
	factory := newStubFactory()
	factory.tools["github"] = []ToolDefinition{tool("create_issue")}
	m := newTestManager(factory)
	defer m.Close()

	m.UpdateConfig(context.Background(), map[string]ServerConfig{
		"github": stdioConfig(),
	})

	resp, err := m.CallTool(context.Background(), "create_issue", map[string]any{"title": "bug"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.TextContent())

	_, err = m.CallTool(context.Background(), "unknown_tool", nil)
	require.Error(t, err)
	oerr := AsOrchError(err)
	require.NotNil(t, oerr)
	assert.Equal(t, ErrClassNotFound, oerr.Class)
}

func TestManagerRetryUnknownServer(t *testing.T) {
	m := newTestManager(newStubFactory())
	defer m.Close()

	_, err := m.RetryServerConnection(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, ErrClassNotFound, AsOrchError(err).Class)
}

func TestManagerClose(t *testing.T) {
	factory := newStubFactory()
	factory.tools["github"] = []ToolDefinition{tool("a")}
	m := newTestManager(factory)

	m.UpdateConfig(context.Background(), map[string]ServerConfig{
		"github": stdioConfig(),
	})

	factory.mu.Lock()
	client := factory.clients["github"][0]
	factory.mu.Unlock()

	require.NoError(t, m.Close())
	assert.True(t, client.isClosed())
	assert.Empty(t, m.States())
	assert.Equal(t, 0, m.Registry().Len())
}
