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

package chat

import "context"

type conversationKey struct{}

// WithConversation returns a context carrying the conversation messages
// accumulated so far. The orchestrator attaches the conversation before
// dispatching a tool call so executors and middleware can read it.
func WithConversation(ctx context.Context, convo []Message) context.Context {
	return context.WithValue(ctx, conversationKey{}, convo)
}

// ConversationFromContext returns the conversation attached by
// WithConversation, or nil when none was attached.
func ConversationFromContext(ctx context.Context) []Message {
	convo, _ := ctx.Value(conversationKey{}).([]Message)
	return convo
}
