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
	"github.com/bmatcuk/doublestar/v4"
)

// Policy decides which tool calls need a human in the loop. Patterns match
// either the bare tool name or the server-qualified "server.tool" form, with
// doublestar glob syntax ("github.*", "*_read").
type Policy struct {
	// ApproveAll bypasses the gate entirely. Intended for automation.
	ApproveAll bool `yaml:"approveAll,omitempty" json:"approveAll,omitempty"`

	// TrustedTools run without approval.
	TrustedTools []string `yaml:"trustedTools,omitempty" json:"trustedTools,omitempty"`

	// BlockedTools are denied outright, without asking. Takes precedence
	// over TrustedTools and ApproveAll.
	BlockedTools []string `yaml:"blockedTools,omitempty" json:"blockedTools,omitempty"`
}

// Blocked reports whether a tool call is denied by policy.
func (p Policy) Blocked(server, tool string) bool {
	return matchAny(p.BlockedTools, server, tool)
}

// RequiresApproval reports whether a tool call must wait for a human
// decision. Blocked tools never reach this question.
func (p Policy) RequiresApproval(server, tool string) bool {
	if p.ApproveAll {
		return false
	}
	return !matchAny(p.TrustedTools, server, tool)
}

func matchAny(patterns []string, server, tool string) bool {
	qualified := server + "." + tool
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, tool); err == nil && ok {
			return true
		}
		if ok, err := doublestar.Match(pattern, qualified); err == nil && ok {
			return true
		}
	}
	return false
}
