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

package rpcclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/evmlogs/indexer/pkg/ethtypes"
)

// BlockHeader is the subset of `eth_getBlockByNumber` fields the sync
// worker needs: its own identity and the parent it chains from, for reorg
// detection (§4.4 step 7).
type BlockHeader struct {
	Number     *ethtypes.HexUint64    `json:"number"`
	Hash       ethtypes.HexBytes0xPrefix `json:"hash"`
	ParentHash ethtypes.HexBytes0xPrefix `json:"parentHash"`
}

// LogFilter is the `eth_getLogs` filter object; fromBlock/toBlock are
// quantity tags ("0x..." or "latest").
type LogFilter struct {
	FromBlock string                    `json:"fromBlock,omitempty"`
	ToBlock   string                    `json:"toBlock,omitempty"`
	Address   *ethtypes.Address0xHex    `json:"address,omitempty"`
}

// Log is one raw event-log entry as returned by `eth_getLogs`.
type Log struct {
	Address     ethtypes.Address0xHex       `json:"address"`
	Topics      []ethtypes.Bytes32          `json:"topics"`
	Data        ethtypes.HexBytes0xPrefix   `json:"data"`
	BlockNumber *ethtypes.HexUint64         `json:"blockNumber"`
	TxHash      ethtypes.Bytes32            `json:"transactionHash"`
	LogIndex    *ethtypes.HexUint64         `json:"logIndex"`
}

func blockTag(num uint64) string {
	return fmt.Sprintf("0x%x", num)
}

// GetBlockByNumber calls `eth_getBlockByNumber(tag, false)` - the `false`
// means "don't include full transaction objects", which this module never
// needs.
func GetBlockByNumber(ctx context.Context, c Client, num uint64) (*BlockHeader, error) {
	var header BlockHeader
	if err := c.CallRPC(ctx, &header, "eth_getBlockByNumber", blockTag(num), false); err != nil {
		return nil, err
	}
	return &header, nil
}

// GetLogs calls `eth_getLogs` over an inclusive [from, to] block range.
func GetLogs(ctx context.Context, c Client, from, to uint64) ([]Log, error) {
	filter := LogFilter{FromBlock: blockTag(from), ToBlock: blockTag(to)}
	var logs []Log
	if err := c.CallRPC(ctx, &logs, "eth_getLogs", filter); err != nil {
		return nil, err
	}
	return logs, nil
}

// GetBlockAndLogsBatch issues `eth_getBlockByNumber(to)` and
// `eth_getLogs(from..=to)` as a single atomic JSON-RPC batch, per §4.4 step
// 3's "single atomic JSON-RPC batch" path.
func GetBlockAndLogsBatch(ctx context.Context, c Client, from, to uint64) (*BlockHeader, []Log, error) {
	blockReq, err := NewRequest("eth_getBlockByNumber", blockTag(to), false)
	if err != nil {
		return nil, nil, err
	}
	logsReq, err := NewRequest("eth_getLogs", LogFilter{FromBlock: blockTag(from), ToBlock: blockTag(to)})
	if err != nil {
		return nil, nil, err
	}

	responses, err := c.BatchCall(ctx, []*Request{blockReq, logsReq})
	if err != nil {
		return nil, nil, err
	}

	var header BlockHeader
	if responses[0].Error != nil {
		return nil, nil, fmt.Errorf("%s", responses[0].Message())
	}
	if err := json.Unmarshal(responses[0].Result.Bytes(), &header); err != nil {
		return nil, nil, err
	}

	var logs []Log
	if responses[1].Error != nil {
		return nil, nil, fmt.Errorf("%s", responses[1].Message())
	}
	if err := json.Unmarshal(responses[1].Result.Bytes(), &logs); err != nil {
		return nil, nil, err
	}

	return &header, logs, nil
}
