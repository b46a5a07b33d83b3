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
	"regexp"
	"strings"
	"time"
)

// TransportKind identifies how switchboard talks to a tool server.
type TransportKind string

const (
	// TransportStdio runs the server as a subprocess speaking MCP over
	// stdin/stdout.
	TransportStdio TransportKind = "stdio"
	// TransportSSE connects to a remote server over Server-Sent Events.
	TransportSSE TransportKind = "sse"
	// TransportStreamableHTTP connects to a remote server over the
	// streamable HTTP transport.
	TransportStreamableHTTP TransportKind = "streamable-http"
)

// ServerNameRegex validates server names: must start with a letter, contain
// only alphanumeric characters, hyphens, and underscores, max 64 chars.
var ServerNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,63}$`)

// ServerConfig is the configuration for a single tool server. It is a tagged
// union over Transport: stdio entries use Command/Args/Cwd/Env, URL-based
// entries use URL/Headers. When Transport is empty it is inferred from which
// fields are set.
type ServerConfig struct {
	// Transport selects the connection mechanism. Empty means inferred:
	// Command set implies stdio, URL set implies streamable-http.
	Transport TransportKind `yaml:"transport,omitempty" json:"transport,omitempty"`

	// Command is the executable to run (stdio only).
	Command string `yaml:"command,omitempty" json:"command,omitempty"`

	// Args are the command-line arguments (stdio only).
	Args []string `yaml:"args,omitempty" json:"args,omitempty"`

	// Cwd is the working directory for the subprocess (stdio only).
	Cwd string `yaml:"cwd,omitempty" json:"cwd,omitempty"`

	// Env are environment variables passed to the subprocess (stdio only).
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// URL is the server endpoint (sse and streamable-http only).
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// Headers are sent with every request (sse and streamable-http only).
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// Timeout bounds individual tool calls. Zero means the default (30s).
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// EffectiveTransport returns the configured transport, inferring it from the
// populated fields when unset. Inference never fails; Validate reports the
// unconfigurable cases.
func (c *ServerConfig) EffectiveTransport() TransportKind {
	if c.Transport != "" {
		return c.Transport
	}
	if c.Command != "" {
		return TransportStdio
	}
	return TransportStreamableHTTP
}

// Validate checks the configuration for the named server. It is pure: no
// filesystem or network access, safe to call speculatively on user input
// before any connection state changes.
func (c *ServerConfig) Validate(name string) error {
	if err := ValidateServerName(name); err != nil {
		return err
	}

	if c.Command != "" && c.URL != "" {
		return ErrInvalidConfig(fmt.Sprintf("server '%s': command and url are mutually exclusive", name))
	}

	switch c.EffectiveTransport() {
	case TransportStdio:
		if c.Command == "" {
			return ErrInvalidConfig(fmt.Sprintf("server '%s': stdio transport requires a command", name))
		}
		if c.URL != "" {
			return ErrInvalidConfig(fmt.Sprintf("server '%s': stdio transport does not accept a url", name))
		}
	case TransportSSE, TransportStreamableHTTP:
		if c.URL == "" {
			return ErrInvalidConfig(fmt.Sprintf("server '%s': %s transport requires a url", name, c.EffectiveTransport()))
		}
		if c.Command != "" {
			return ErrInvalidConfig(fmt.Sprintf("server '%s': %s transport does not accept a command", name, c.EffectiveTransport()))
		}
		if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
			return ErrInvalidConfig(fmt.Sprintf("server '%s': url must start with http:// or https://", name))
		}
	default:
		return ErrInvalidConfig(fmt.Sprintf("server '%s': unknown transport '%s'", name, c.Transport))
	}

	for key := range c.Env {
		if key == "" || strings.Contains(key, "=") {
			return ErrInvalidConfig(fmt.Sprintf("server '%s': invalid environment variable name '%s'", name, key))
		}
	}

	if c.Timeout < 0 {
		return ErrInvalidConfig(fmt.Sprintf("server '%s': timeout must not be negative", name))
	}

	return nil
}

// ValidateServerName checks that a server name is valid.
func ValidateServerName(name string) error {
	if name == "" {
		return ErrInvalidConfig("server name must not be empty")
	}
	if !ServerNameRegex.MatchString(name) {
		return ErrInvalidServerName(name)
	}
	return nil
}

// sensitiveEnvPatterns match env var and header names whose values should be
// redacted in logs and status output.
var sensitiveEnvPatterns = []string{
	"TOKEN", "KEY", "SECRET", "PASSWORD", "PASSWD", "CREDENTIAL", "AUTH",
}

// IsSensitiveKey reports whether an env var or header name looks like it
// carries a secret.
func IsSensitiveKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, pattern := range sensitiveEnvPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}

// RedactSecrets returns a copy of the map with sensitive values replaced by
// [REDACTED]. Used when logging configs and rendering status.
func RedactSecrets(kv map[string]string) map[string]string {
	if kv == nil {
		return nil
	}
	out := make(map[string]string, len(kv))
	for k, v := range kv {
		if IsSensitiveKey(k) {
			out[k] = "[REDACTED]"
		} else {
			out[k] = v
		}
	}
	return out
}
