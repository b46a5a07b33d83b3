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
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/switchboard-dev/switchboard/internal/config"
	"github.com/switchboard-dev/switchboard/internal/invoke"
	"github.com/switchboard-dev/switchboard/internal/mcp"
)

func newServeCmd(logger *slog.Logger) *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect all configured tool servers and run the orchestrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), logger, listenAddr)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:7432", "address for the status/metrics HTTP endpoint")

	return cmd
}

func runServe(parent context.Context, logger *slog.Logger, listenAddr string) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	manager := mcp.NewManager(mcp.ManagerConfig{Logger: logger})
	defer manager.Close()

	promReg := prometheus.NewRegistry()
	metrics := invoke.NewMetrics(promReg)

	coordinator := invoke.NewCoordinator(invoke.Config{
		Registry: manager.Registry(),
		Executor: manager,
		Policy:   cfg.Approval,
		Metrics:  metrics,
		Logger:   logger,
	})

	states := manager.UpdateConfig(ctx, cfg.Servers)
	logStartupStates(logger, states)
	metrics.SetAvailableServers(countAvailable(states))

	poller := mcp.NewPoller(manager, cfg.Defaults.PollInterval, logger)
	poller.Start(ctx)
	defer poller.Close()

	watcher, err := config.NewWatcher(config.WatcherConfig{
		Path:   configPath,
		Logger: logger,
		OnChange: func(next *config.FileConfig) {
			states := manager.UpdateConfig(ctx, next.Servers)
			logStartupStates(logger, states)
			metrics.SetAvailableServers(countAvailable(states))
			poller.CheckNow()
		},
	})
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Keep the availability gauge current between config changes.
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.SetAvailableServers(countAvailable(manager.States()))
			}
		}
	}()

	server := &http.Server{
		Addr:    listenAddr,
		Handler: newStatusMux(ctx, manager, coordinator, promReg),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("switchboard serving",
		"listen", listenAddr,
		"servers", len(cfg.Servers),
		"config", configPath)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newStatusMux exposes orchestrator state over HTTP: prometheus metrics,
// server states, the tool catalog, and execution history, plus a manual
// retry affordance.
func newStatusMux(ctx context.Context, manager *mcp.Manager, coordinator *invoke.Coordinator, promReg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("GET /v1/servers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, manager.States())
	})

	mux.HandleFunc("POST /v1/servers/{name}/retry", func(w http.ResponseWriter, r *http.Request) {
		states, err := manager.RetryServerConnection(ctx, r.PathValue("name"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, states)
	})

	mux.HandleFunc("GET /v1/tools", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, manager.Registry().Definitions())
	})

	mux.HandleFunc("GET /v1/history", func(w http.ResponseWriter, r *http.Request) {
		raw, err := coordinator.History().ExportJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(raw)
	})

	mux.HandleFunc("GET /v1/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, coordinator.Metrics().AllStats())
	})

	mux.HandleFunc("POST /v1/executions/{id}/approve", func(w http.ResponseWriter, r *http.Request) {
		if err := coordinator.Approve(r.PathValue("id")); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /v1/executions/{id}/deny", func(w http.ResponseWriter, r *http.Request) {
		if err := coordinator.Deny(r.PathValue("id")); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func logStartupStates(logger *slog.Logger, states map[string]mcp.ServerState) {
	for name, state := range states {
		if state.Status == mcp.StatusAvailable {
			logger.Info("tool server connected",
				"server", name, "tools", len(state.Tools))
		} else {
			logger.Warn("tool server not connected",
				"server", name, "status", state.Status, "error", state.Error)
		}
	}
}

func countAvailable(states map[string]mcp.ServerState) int {
	n := 0
	for _, state := range states {
		if state.Status == mcp.StatusAvailable {
			n++
		}
	}
	return n
}
