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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThrottleFirstOccurrenceAllowed(t *testing.T) {
	th := newLogThrottle()

	assert.True(t, th.allow("github", "connection refused"))
	assert.False(t, th.allow("github", "connection refused"))
}

func TestThrottleDistinctKeysIndependent(t *testing.T) {
	th := newLogThrottle()

	assert.True(t, th.allow("github", "connection refused"))

	// Different message for the same server is a new key.
	assert.True(t, th.allow("github", "connection timed out"))

	// Same message for a different server is a new key.
	assert.True(t, th.allow("jira", "connection refused"))

	// Repeats stay suppressed.
	assert.False(t, th.allow("github", "connection refused"))
	assert.False(t, th.allow("jira", "connection refused"))
}

func TestThrottleResetClearsServer(t *testing.T) {
	th := newLogThrottle()

	assert.True(t, th.allow("github", "connection refused"))
	assert.True(t, th.allow("jira", "connection refused"))

	th.reset("github")

	// github logs immediately again; jira stays suppressed.
	assert.True(t, th.allow("github", "connection refused"))
	assert.False(t, th.allow("jira", "connection refused"))
}

func TestThrottleCacheBounded(t *testing.T) {
	th := newLogThrottle()

	// Fill the cache past capacity with distinct keys.
	for i := 0; i < throttleCacheCap+10; i++ {
		assert.True(t, th.allow("server", fmt.Sprintf("error %d", i)))
	}

	assert.LessOrEqual(t, len(th.limiters), throttleCacheCap)
	assert.Equal(t, len(th.limiters), len(th.order))

	// The oldest keys were evicted, so they log again as new.
	assert.True(t, th.allow("server", "error 0"))
}
