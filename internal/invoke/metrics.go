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
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ToolStats is the rolling per-(tool, server) execution summary.
type ToolStats struct {
	// Total is the number of settled executions, denials included.
	Total int64 `json:"total"`

	// Successes counts executions that completed.
	Successes int64 `json:"successes"`

	// Failures counts denials and execution errors.
	Failures int64 `json:"failures"`

	// AvgDuration is the running average over executions that actually ran.
	AvgDuration time.Duration `json:"avgDuration"`
}

type statKey struct {
	tool   string
	server string
}

// Metrics tracks execution outcomes twice: an in-memory rolling summary per
// (tool, server) for UI display, and prometheus series for scraping.
type Metrics struct {
	mu    sync.RWMutex
	stats map[statKey]*ToolStats
	ran   map[statKey]int64 // executions with a measured duration

	execTotal        *prometheus.CounterVec
	execDuration     *prometheus.HistogramVec
	availableServers prometheus.Gauge
}

// NewMetrics creates a Metrics registered against reg. A nil reg gets a
// private registry, which keeps repeated construction (tests) panic-free.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		stats: make(map[statKey]*ToolStats),
		ran:   make(map[statKey]int64),
		execTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "switchboard_tool_executions_total",
			Help: "Tool executions by tool, server, and outcome.",
		}, []string{"tool", "server", "status"}),
		execDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "switchboard_tool_execution_duration_seconds",
			Help:    "Duration of tool executions that ran.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool", "server"}),
		availableServers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "switchboard_available_servers",
			Help: "Number of tool servers currently available.",
		}),
	}
}

// RecordOutcome records a settled execution. ran distinguishes executions
// that invoked the tool (with a measured duration) from denials and
// validation failures, which never ran.
func (m *Metrics) RecordOutcome(tool, server string, status ExecutionStatus, ran bool, duration time.Duration) {
	m.execTotal.WithLabelValues(tool, server, string(status)).Inc()
	if ran {
		m.execDuration.WithLabelValues(tool, server).Observe(duration.Seconds())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := statKey{tool: tool, server: server}
	stats, ok := m.stats[key]
	if !ok {
		stats = &ToolStats{}
		m.stats[key] = stats
	}

	stats.Total++
	if status == StatusCompleted {
		stats.Successes++
	} else {
		stats.Failures++
	}

	if ran {
		m.ran[key]++
		n := m.ran[key]
		stats.AvgDuration += (duration - stats.AvgDuration) / time.Duration(n)
	}
}

// SetAvailableServers updates the availability gauge.
func (m *Metrics) SetAvailableServers(n int) {
	m.availableServers.Set(float64(n))
}

// Stats returns the rolling summary for one (tool, server) pair.
func (m *Metrics) Stats(tool, server string) (ToolStats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats, ok := m.stats[statKey{tool: tool, server: server}]
	if !ok {
		return ToolStats{}, false
	}
	return *stats, true
}

// AllStats returns a copy of every rolling summary, keyed tool -> server.
func (m *Metrics) AllStats() map[string]map[string]ToolStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]map[string]ToolStats)
	for key, stats := range m.stats {
		byServer, ok := out[key.tool]
		if !ok {
			byServer = make(map[string]ToolStats)
			out[key.tool] = byServer
		}
		byServer[key.server] = *stats
	}
	return out
}
