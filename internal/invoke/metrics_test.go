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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRollingStats(t *testing.T) {
	m := NewMetrics(nil)

	m.RecordOutcome("create_issue", "github", StatusCompleted, true, 100*time.Millisecond)
	m.RecordOutcome("create_issue", "github", StatusCompleted, true, 300*time.Millisecond)
	m.RecordOutcome("create_issue", "github", StatusFailed, true, 200*time.Millisecond)

	stats, ok := m.Stats("create_issue", "github")
	require.True(t, ok)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.Successes)
	assert.Equal(t, int64(1), stats.Failures)
	assert.Equal(t, 200*time.Millisecond, stats.AvgDuration)
}

func TestMetricsDenialDoesNotSkewDuration(t *testing.T) {
	m := NewMetrics(nil)

	m.RecordOutcome("create_issue", "github", StatusCompleted, true, 100*time.Millisecond)
	// A denial settles instantly but never ran; it must not drag the
	// average toward zero.
	m.RecordOutcome("create_issue", "github", StatusFailed, false, 0)

	stats, ok := m.Stats("create_issue", "github")
	require.True(t, ok)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Failures)
	assert.Equal(t, 100*time.Millisecond, stats.AvgDuration)
}

func TestMetricsKeyedByToolAndServer(t *testing.T) {
	m := NewMetrics(nil)

	m.RecordOutcome("search", "github", StatusCompleted, true, time.Millisecond)
	m.RecordOutcome("search", "jira", StatusFailed, true, time.Millisecond)

	github, ok := m.Stats("search", "github")
	require.True(t, ok)
	assert.Equal(t, int64(1), github.Successes)

	jira, ok := m.Stats("search", "jira")
	require.True(t, ok)
	assert.Equal(t, int64(1), jira.Failures)

	_, ok = m.Stats("search", "linear")
	assert.False(t, ok)

	all := m.AllStats()
	require.Contains(t, all, "search")
	assert.Len(t, all["search"], 2)
}
