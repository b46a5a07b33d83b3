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

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/switchboard-dev/switchboard/internal/config"
	"github.com/switchboard-dev/switchboard/internal/log"
	pkgerrors "github.com/switchboard-dev/switchboard/pkg/errors"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	root := &cobra.Command{
		Use:     "switchboard",
		Short:   "MCP tool-server orchestrator",
		Long:    "switchboard connects a set of MCP tool servers over stdio, SSE, or streamable HTTP and exposes their tools to an LLM-driving loop with availability tracking and approval-gated execution.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "servers.yaml", "path to the server configuration file")

	root.AddCommand(newServeCmd(logger))
	root.AddCommand(newValidateCmd())

	if err := root.Execute(); err != nil {
		if uve, ok := pkgerrors.AsUserVisible(err); ok {
			fmt.Fprintln(os.Stderr, uve.UserMessage())
		}
		os.Exit(1)
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the server configuration file without connecting",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d server(s) OK\n", configPath, len(cfg.Servers))
			for name, server := range cfg.Servers {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s (%s)\n", name, server.EffectiveTransport())
			}
			return nil
		},
	}
}
