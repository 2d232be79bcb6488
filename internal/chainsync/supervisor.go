// Copyright © 2024 Kaleido, Inc.
//
// SPDX-License-Identifier: Apache-2.0
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

package chainsync

import (
	"context"
	"sync"
	"time"

	"github.com/evmlogs/indexer/internal/broadcast"
	"github.com/evmlogs/indexer/internal/store"
	"github.com/hyperledger/firefly-common/pkg/log"
)

// runningWorker tracks one live Worker goroutine alongside the exact
// RemoteConfig it was started with, so the Supervisor can tell a config
// change from a no-op reconciliation (§4.5).
type runningWorker struct {
	config store.RemoteConfig
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor reconciles the set of running Workers against the `config`
// table every tick, starting workers for newly-enabled chains, stopping
// workers whose row changed or was disabled, and reaping workers whose
// goroutine already exited. Ported from the reference run(config) loop.
type Supervisor struct {
	Store     *store.Store
	Broadcast *broadcast.Channel

	mu      sync.Mutex
	workers map[uint64]*runningWorker
}

func NewSupervisor(st *store.Store, bc *broadcast.Channel) *Supervisor {
	return &Supervisor{
		Store:     st,
		Broadcast: bc,
		workers:   map[uint64]*runningWorker{},
	}
}

// Run polls the config table every interval until ctx is cancelled,
// reconciling running workers against it (§4.5).
func (s *Supervisor) Run(ctx context.Context, interval time.Duration, build func(ctx context.Context, cfg store.RemoteConfig) (*Worker, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.reconcile(ctx, build)
	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			return
		case <-ticker.C:
			s.reconcile(ctx, build)
		}
	}
}

func (s *Supervisor) reconcile(ctx context.Context, build func(ctx context.Context, cfg store.RemoteConfig) (*Worker, error)) {
	configs, err := s.Store.LoadRemoteConfigs(ctx)
	if err != nil {
		log.L(ctx).Errorf("supervisor: failed to load remote config: %s", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.reapLocked()

	desired := map[uint64]store.RemoteConfig{}
	for _, c := range configs {
		if c.Enabled {
			desired[c.Chain] = c
		}
	}

	// Stop workers whose chain was disabled or whose config row changed.
	for chain, rw := range s.workers {
		cfg, stillWanted := desired[chain]
		if !stillWanted || cfg != rw.config {
			rw.cancel()
			<-rw.done
			delete(s.workers, chain)
		}
	}

	// Start workers for newly-desired chains.
	for chain, cfg := range desired {
		if _, running := s.workers[chain]; running {
			continue
		}
		worker, err := build(ctx, cfg)
		if err != nil {
			log.L(ctx).Errorf("supervisor: failed to build worker for chain %d: %s", chain, err)
			continue
		}
		workerCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		s.workers[chain] = &runningWorker{config: cfg, cancel: cancel, done: done}
		go func() {
			defer close(done)
			worker.Run(workerCtx)
		}()
	}
}

// reapLocked drops any worker whose goroutine has already exited on its
// own (e.g. a non-recoverable init_blocks failure) - must be called with
// s.mu held.
func (s *Supervisor) reapLocked() {
	for chain, rw := range s.workers {
		select {
		case <-rw.done:
			delete(s.workers, chain)
		default:
		}
	}
}

func (s *Supervisor) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for chain, rw := range s.workers {
		rw.cancel()
		<-rw.done
		delete(s.workers, chain)
	}
}
