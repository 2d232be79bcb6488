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

package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateAcquireAndRelease(t *testing.T) {
	g := NewGate(2, 1, 1)
	release, err := g.Acquire(context.Background(), "plan-a", "1.2.3.4")
	require.NoError(t, err)
	release()

	release2, err := g.Acquire(context.Background(), "plan-a", "1.2.3.4")
	require.NoError(t, err)
	release2()
}

func TestGateAcquireFailsWhenPlanExhausted(t *testing.T) {
	g := NewGate(10, 1, 10)
	release, err := g.Acquire(context.Background(), "plan-a", "1.1.1.1")
	require.NoError(t, err)
	defer release()

	_, err = g.Acquire(context.Background(), "plan-a", "2.2.2.2")
	assert.Error(t, err)
}

func TestGateAcquireFailsWhenIPExhausted(t *testing.T) {
	g := NewGate(10, 10, 1)
	release, err := g.Acquire(context.Background(), "plan-a", "1.1.1.1")
	require.NoError(t, err)
	defer release()

	_, err = g.Acquire(context.Background(), "plan-b", "1.1.1.1")
	assert.Error(t, err)
}

func TestGateAcquireDoesNotLeakPermitsOnFailure(t *testing.T) {
	g := NewGate(2, 1, 10)
	release, err := g.Acquire(context.Background(), "plan-a", "1.1.1.1")
	require.NoError(t, err)

	// Fails on the plan semaphore after the global permit was taken.
	_, err = g.Acquire(context.Background(), "plan-a", "2.2.2.2")
	require.Error(t, err)

	// The second global permit must still be free - proves the global permit
	// wasn't leaked by the failed attempt path.
	release2, err := g.Acquire(context.Background(), "plan-b", "3.3.3.3")
	require.NoError(t, err)
	release2()
	release()
}

func TestGateReleaseIsIdempotent(t *testing.T) {
	g := NewGate(1, 1, 1)
	release, err := g.Acquire(context.Background(), "plan-a", "1.1.1.1")
	require.NoError(t, err)
	release()
	release()
}

type fakeSource struct {
	limits map[string]AccountLimit
}

func (f *fakeSource) LoadAccountLimits(ctx context.Context) (map[string]AccountLimit, error) {
	return f.limits, nil
}

func TestCacheGetMissingPlan(t *testing.T) {
	c := NewCache(&fakeSource{limits: map[string]AccountLimit{}})
	_, ok := c.Get("unknown")
	assert.False(t, ok)
}

func TestCacheRefreshPopulatesLimits(t *testing.T) {
	src := &fakeSource{limits: map[string]AccountLimit{
		"gold": {Plan: "gold", MaxConcurrent: 5, StatementTimeout: 30 * time.Second},
	}}
	c := NewCache(src)
	c.refresh(context.Background())

	limit, ok := c.Get("gold")
	require.True(t, ok)
	assert.Equal(t, int64(5), limit.MaxConcurrent)
	assert.Equal(t, 30*time.Second, limit.StatementTimeout)
}
