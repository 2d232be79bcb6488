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

package queryexec

import (
	"context"
	"time"

	"github.com/evmlogs/indexer/internal/apperr"
	"github.com/evmlogs/indexer/internal/broadcast"
	"github.com/evmlogs/indexer/internal/cursor"
)

// Stream implements §4.6's SSE loop: wrap the one-shot in a loop, handing
// each iteration's response to emit, then block on the head-broadcast
// channel until a chain named by the cursor advances. It returns nil when
// the channel closes or emit reports the client disconnected, the first
// error the one-shot returns (no error is retried), and ctx's error when
// ctx is cancelled while waiting. Admission-gate permits are acquired and released by the caller
// for the whole call, matching the reference handle_sse's
// `_hold_onto_permits` tuple held across the entire stream.
func (e *Executor) Stream(ctx context.Context, cur *cursor.Cursor, statementTimeout time.Duration, requests []Request, bc *broadcast.Channel, emit func(*Response) error) error {
	for {
		resp, err := e.Run(ctx, cur, statementTimeout, requests)
		if err != nil {
			return err
		}

		if emitErr := emit(resp); emitErr != nil {
			return nil
		}

		if waitErr := e.waitForAdvance(ctx, cur, bc); waitErr != nil {
			if waitErr == errChannelClosed {
				return nil
			}
			return waitErr
		}
	}
}

var errChannelClosed = apperr.Server(nil, "head-broadcast channel closed")

// waitForAdvance blocks until bc publishes a NewBlock for a chain named by
// cur, the caller's context is cancelled, or bc itself is closed.
func (e *Executor) waitForAdvance(ctx context.Context, cur *cursor.Cursor, bc *broadcast.Channel) error {
	ch, unsubscribe := bc.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-ch:
			if !ok {
				return errChannelClosed
			}
			if cur.Contains(n.Chain) {
				return nil
			}
		}
	}
}
