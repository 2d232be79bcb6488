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

// Package limiter implements the C7 admission gate of §5: a streaming
// query holds three semaphore permits at once - global, per-plan, and
// per-IP - released on every exit path, plus a process-wide cache of
// account limits refreshed on a timer so request handling never blocks on
// a limits lookup.
package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/evmlogs/indexer/internal/apperr"
	"golang.org/x/sync/semaphore"
)

// AccountLimit is the per-plan concurrency and timeout budget read from
// the `account_limits` table.
type AccountLimit struct {
	Plan            string
	MaxConcurrent   int64
	StatementTimeout time.Duration
}

// AccountLimitSource loads the current set of account limits, keyed by
// plan name.
type AccountLimitSource interface {
	LoadAccountLimits(ctx context.Context) (map[string]AccountLimit, error)
}

// Cache holds the most recently loaded AccountLimit set, refreshed by a
// dedicated background tick rather than on every request (§5 "Shared
// resources").
type Cache struct {
	source AccountLimitSource
	mu     sync.RWMutex
	limits map[string]AccountLimit
}

func NewCache(source AccountLimitSource) *Cache {
	return &Cache{source: source, limits: map[string]AccountLimit{}}
}

// Get returns a copy of the cached limit for plan, or false if unknown.
func (c *Cache) Get(plan string) (AccountLimit, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.limits[plan]
	return l, ok
}

// Run refreshes the cache every interval until ctx is cancelled.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refresh(ctx)
		}
	}
}

func (c *Cache) refresh(ctx context.Context) {
	limits, err := c.source.LoadAccountLimits(ctx)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.limits = limits
	c.mu.Unlock()
}

// Gate holds the three admission semaphores a streaming query must
// acquire before it starts producing rows: one process-wide, one per
// plan, one per client IP.
type Gate struct {
	global *semaphore.Weighted

	mu      sync.Mutex
	perPlan map[string]*semaphore.Weighted
	perIP   map[string]*semaphore.Weighted

	planLimit int64
	ipLimit   int64
}

func NewGate(globalLimit, planLimit, ipLimit int64) *Gate {
	return &Gate{
		global:    semaphore.NewWeighted(globalLimit),
		perPlan:   map[string]*semaphore.Weighted{},
		perIP:     map[string]*semaphore.Weighted{},
		planLimit: planLimit,
		ipLimit:   ipLimit,
	}
}

// Release is returned by Acquire; callers must defer it on every exit path
// (success, error, client disconnect) as required by §5.
type Release func()

// Acquire takes all three permits, or returns a TooManyRequests apperr if
// any one of them is exhausted. It acquires in a fixed order
// (global, plan, ip) and releases any already-held permit before
// returning on failure, so a caller that loses the race never leaks a
// held semaphore.
func (g *Gate) Acquire(ctx context.Context, plan, ip string) (Release, error) {
	if !g.global.TryAcquire(1) {
		return nil, apperr.TooManyRequests("too many concurrent requests")
	}

	planSem := g.semaphoreFor(&g.perPlan, plan, g.planLimit)
	if !planSem.TryAcquire(1) {
		g.global.Release(1)
		return nil, apperr.TooManyRequests("too many concurrent requests for plan %s", plan)
	}

	ipSem := g.semaphoreFor(&g.perIP, ip, g.ipLimit)
	if !ipSem.TryAcquire(1) {
		planSem.Release(1)
		g.global.Release(1)
		return nil, apperr.TooManyRequests("too many concurrent requests from %s", ip)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			ipSem.Release(1)
			planSem.Release(1)
			g.global.Release(1)
		})
	}
	return release, nil
}

func (g *Gate) semaphoreFor(m *map[string]*semaphore.Weighted, key string, limit int64) *semaphore.Weighted {
	g.mu.Lock()
	defer g.mu.Unlock()
	sem, ok := (*m)[key]
	if !ok {
		sem = semaphore.NewWeighted(limit)
		(*m)[key] = sem
	}
	return sem
}
