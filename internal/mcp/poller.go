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
	"log/slog"
	"sync"
	"time"
)

// defaultPollInterval is how often the poller re-checks server availability.
const defaultPollInterval = 30 * time.Second

// Poller drives Manager.CheckAvailabilities on a fixed interval, with an
// on-demand kick for config changes. The poller never blocks callers: a
// CheckNow during an in-progress check is coalesced into one pending kick.
type Poller struct {
	manager  *Manager
	interval time.Duration
	logger   *slog.Logger

	kick chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewPoller creates a poller for the manager. Zero interval means the
// default (30s).
func NewPoller(manager *Manager, interval time.Duration, logger *slog.Logger) *Poller {
	if interval == 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		manager:  manager,
		interval: interval,
		logger:   logger,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start launches the polling loop. The loop stops when ctx is cancelled or
// Close is called.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.run(ctx)
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
		case <-p.kick:
		}

		p.manager.CheckAvailabilities(ctx)
	}
}

// CheckNow requests an immediate availability check without waiting for the
// next tick. Non-blocking; redundant requests are coalesced.
func (p *Poller) CheckNow() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Close stops the polling loop and waits for it to exit. An availability
// check already running is allowed to settle.
func (p *Poller) Close() {
	p.once.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}
