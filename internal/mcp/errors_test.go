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
	"fmt"
	"net"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrchErrorBuilder(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := NewOrchError(ErrClassConnection, "failed to connect").
		WithDetail("connection refused").
		WithSuggestions("Check the server is running").
		WithCause(cause)

	assert.Equal(t, ErrClassConnection, err.Class)
	assert.Contains(t, err.Error(), "failed to connect")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, err.UserMessage(), "Check the server is running")
	assert.ErrorIs(t, err, cause)
}

func TestAsOrchError(t *testing.T) {
	oerr := ErrInvalidConfig("bad entry")
	wrapped := fmt.Errorf("loading config: %w", oerr)

	got := AsOrchError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, ErrClassConfig, got.Class)

	assert.Nil(t, AsOrchError(errors.New("plain")))
	assert.Nil(t, AsOrchError(nil))
}

func TestClassifyConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "nil",
			err:  nil,
			want: "",
		},
		{
			name: "dns error",
			err:  &net.DNSError{Err: "no such host", Name: "missing.example.com"},
			want: "hostname could not be resolved: missing.example.com",
		},
		{
			name: "exec not found",
			err:  &exec.Error{Name: "nonexistent-cmd", Err: exec.ErrNotFound},
			want: "command not found: nonexistent-cmd",
		},
		{
			name: "deadline exceeded",
			err:  context.DeadlineExceeded,
			want: "connection timed out",
		},
		{
			name: "refused by message",
			err:  errors.New("dial tcp 127.0.0.1:9999: connect: connection refused"),
			want: "connection refused",
		},
		{
			name: "no such host by message",
			err:  errors.New("lookup missing.example.com: no such host"),
			want: "hostname could not be resolved",
		},
		{
			name: "unauthorized",
			err:  errors.New("unexpected status 401 Unauthorized"),
			want: "unauthorized (check credentials)",
		},
		{
			name: "forbidden",
			err:  errors.New("server returned 403 Forbidden"),
			want: "forbidden (check permissions)",
		},
		{
			name: "not found",
			err:  errors.New("unexpected status 404"),
			want: "endpoint not found (check the URL)",
		},
		{
			name: "executable not found by message",
			err:  errors.New(`exec: "whatever": executable file not found in $PATH`),
			want: "command not found",
		},
		{
			name: "permission denied",
			err:  errors.New("fork/exec ./server: permission denied"),
			want: "permission denied",
		},
		{
			name: "certificate",
			err:  errors.New("x509: certificate signed by unknown authority"),
			want: "certificate error",
		},
		{
			name: "unclassified passes through",
			err:  errors.New("something odd happened"),
			want: "something odd happened",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyConnectionError(tt.err))
		})
	}
}

func TestErrConnectionFailedClassifies(t *testing.T) {
	cause := errors.New("dial tcp: connect: connection refused")
	err := ErrConnectionFailed("remote", cause)

	assert.Equal(t, ErrClassConnection, err.Class)
	assert.Equal(t, "connection refused", err.Detail)
	assert.ErrorIs(t, err, cause)
}

func TestErrApprovalDenied(t *testing.T) {
	err := ErrApprovalDenied("delete_repo")
	assert.Equal(t, ErrClassApprovalDenied, err.Class)
	assert.Contains(t, err.Error(), "denied by the user")
}
