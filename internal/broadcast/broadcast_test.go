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

package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	c := New()
	ch, unsubscribe := c.Subscribe()
	defer unsubscribe()

	c.Publish(NewBlock{Chain: 1, BlockNum: 100})

	select {
	case n := <-ch:
		assert.Equal(t, NewBlock{Chain: 1, BlockNum: 100}, n)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestPublishFanOut(t *testing.T) {
	c := New()
	ch1, unsub1 := c.Subscribe()
	ch2, unsub2 := c.Subscribe()
	defer unsub1()
	defer unsub2()

	c.Publish(NewBlock{Chain: 1, BlockNum: 1})

	assert.Equal(t, NewBlock{Chain: 1, BlockNum: 1}, <-ch1)
	assert.Equal(t, NewBlock{Chain: 1, BlockNum: 1}, <-ch2)
}

func TestPublishDropsOldestWhenFull(t *testing.T) {
	c := New()
	ch, unsubscribe := c.Subscribe()
	defer unsubscribe()

	for i := 0; i < subscriberCapacity+5; i++ {
		c.Publish(NewBlock{Chain: 1, BlockNum: uint64(i)})
	}

	// The channel never blocks the publisher, and the most recent
	// notification is always observable even though early ones were dropped.
	var last NewBlock
	for {
		select {
		case n := <-ch:
			last = n
		default:
			assert.Equal(t, uint64(subscriberCapacity+4), last.BlockNum)
			return
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	c := New()
	ch, unsubscribe := c.Subscribe()
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok)
}

func TestCloseClosesAllSubscribers(t *testing.T) {
	c := New()
	ch1, _ := c.Subscribe()
	ch2, _ := c.Subscribe()
	c.Close()

	_, ok1 := <-ch1
	_, ok2 := <-ch2
	assert.False(t, ok1)
	assert.False(t, ok2)
}
