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

// Package chainsync implements the per-chain sync worker (C5) and the
// supervisor that keeps a worker alive per enabled chain (C6). Ported from
// the reference downloader/supervisor loop, trading tokio tasks and a
// deadpool-postgres transaction for goroutines and a pgx.Tx passed through
// an internal/store callback.
package chainsync

import (
	"context"
	"math"
	"time"

	"github.com/evmlogs/indexer/internal/apperr"
	"github.com/evmlogs/indexer/internal/broadcast"
	"github.com/evmlogs/indexer/internal/indexmsgs"
	"github.com/evmlogs/indexer/internal/store"
	"github.com/evmlogs/indexer/pkg/ethtypes"
	"github.com/evmlogs/indexer/pkg/rpcclient"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/jackc/pgx/v5"
)

const maxReorgAttempts = 5000

// outcome is the Go analogue of the reference sync.rs Error enum: Wait and
// Retry are both transient (sleep 1s and try again); Fatal also halves the
// batch size before the retry.
type outcomeKind int

const (
	outcomeOK outcomeKind = iota
	outcomeWait
	outcomeRetry
	outcomeFatal
)

type outcome struct {
	kind outcomeKind
	end  uint64
	err  error
}

// Worker follows one chain's head: fetch, detect reorgs, write atomically,
// publish. One Worker per enabled RemoteConfig row, run by the Supervisor.
type Worker struct {
	Config    store.RemoteConfig
	Store     *store.Store
	RPC       rpcclient.Client
	Broadcast *broadcast.Channel
	StartFrom *uint64 // nil means start from the remote's current latest
}

// Run loops forever until ctx is cancelled, exactly mirroring the
// reference Downloader::run state machine.
func (w *Worker) Run(ctx context.Context) {
	if err := w.initBlocks(ctx); err != nil {
		log.L(ctx).Errorf("chain %d: failed to initialize blocks table: %s", w.Config.Chain, err)
		return
	}

	batchSize := w.Config.BatchSize
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		oc := w.download(ctx, batchSize)
		switch oc.kind {
		case outcomeOK:
			w.Broadcast.Publish(broadcast.NewBlock{Chain: w.Config.Chain, BlockNum: oc.end})
			batchSize = w.Config.BatchSize
		case outcomeWait:
			sleep(ctx, time.Second)
		case outcomeRetry:
			log.L(ctx).Errorf("chain %d: sync retry: %s", w.Config.Chain, oc.err)
			sleep(ctx, time.Second)
		case outcomeFatal:
			log.L(ctx).Errorf("chain %d: sync fatal: %s", w.Config.Chain, oc.err)
			batchSize = int(math.Max(1, float64(batchSize/2)))
			sleep(ctx, time.Second)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// initBlocks anchors the blocks table on first run for this chain, per
// §4.4 "Initialization".
func (w *Worker) initBlocks(ctx context.Context) error {
	_, _, found, err := w.Store.LatestBlock(ctx, w.Config.Chain)
	if err != nil {
		return err
	}
	if found {
		return nil
	}

	var header *rpcclient.BlockHeader
	if w.StartFrom != nil {
		header, err = rpcclient.GetBlockByNumber(ctx, w.RPC, *w.StartFrom)
	} else {
		// "latest" - GetBlockByNumber always takes a numeric tag, so the
		// caller resolves latest once at worker construction time and sets
		// StartFrom; nil here only happens if that resolution failed.
		return apperr.Server(nil, "worker requires a resolved start block")
	}
	if err != nil {
		return err
	}

	var hash ethtypes.Bytes32
	copy(hash[:], header.Hash)
	return w.Store.WithWriteTx(ctx, func(tx pgx.Tx) error {
		return w.Store.InsertBlock(ctx, tx, store.BlockRow{
			Chain: w.Config.Chain,
			Num:   header.Number.Uint64(),
			Hash:  hash,
		})
	})
}

// download implements §4.4's download(batch_size) step.
func (w *Worker) download(ctx context.Context, batchSize int) outcome {
	var result outcome
	err := w.Store.WithWriteTx(ctx, func(tx pgx.Tx) error {
		from, to, endHash, oc, err := w.next(ctx, tx, batchSize)
		if err != nil {
			result = oc
			return err
		}

		var logs []rpcclient.Log
		if to-from+1 >= uint64(batchSize) {
			logs, err = w.batchFetch(ctx, from, to)
		} else {
			logs, err = w.singleFetch(ctx, from, to)
		}
		if err != nil {
			result = outcome{kind: outcomeFatal, err: err}
			return err
		}

		rows := make([]store.LogRow, len(logs))
		for i, l := range logs {
			topics := make([]ethtypes.Bytes32, len(l.Topics))
			copy(topics, l.Topics)
			rows[i] = store.LogRow{
				Chain:    w.Config.Chain,
				BlockNum: l.BlockNumber.Uint64(),
				TxHash:   l.TxHash,
				LogIdx:   uint32(l.LogIndex.Uint64()),
				Address:  l.Address,
				Topics:   topics,
				Data:     l.Data,
			}
		}
		if _, err := w.Store.CopyLogs(ctx, tx, rows); err != nil {
			result = outcome{kind: outcomeFatal, err: err}
			return err
		}

		if err := w.Store.InsertBlock(ctx, tx, store.BlockRow{Chain: w.Config.Chain, Num: to, Hash: endHash}); err != nil {
			result = outcome{kind: outcomeFatal, err: err}
			return err
		}

		result = outcome{kind: outcomeOK, end: to}
		return nil
	})
	if err != nil && result.kind == outcomeOK {
		result = outcome{kind: outcomeFatal, err: err}
	}
	return result
}

// next implements §4.4's reorg-aware next(batch_size) range selection.
func (w *Worker) next(ctx context.Context, tx pgx.Tx, batchSize int) (from, to uint64, endHash ethtypes.Bytes32, oc outcome, err error) {
	for attempt := 0; attempt < maxReorgAttempts; attempt++ {
		remoteNum, rerr := w.latestRemoteBlockNumber(ctx)
		if rerr != nil {
			return 0, 0, endHash, outcome{kind: outcomeRetry, err: rerr}, rerr
		}

		localNum, localHash, _, lerr := w.Store.LatestBlockTx(ctx, tx, w.Config.Chain)
		if lerr != nil {
			return 0, 0, endHash, outcome{kind: outcomeFatal, err: lerr}, lerr
		}

		if localNum >= remoteNum {
			return 0, 0, endHash, outcome{kind: outcomeWait}, nil
		}

		delta := remoteNum - localNum
		if delta > uint64(batchSize) {
			delta = uint64(batchSize)
		}
		if delta < uint64(batchSize) {
			delta = 1
		}
		rangeFrom := localNum + 1
		rangeTo := localNum + delta

		fromHeader, ferr := rpcclient.GetBlockByNumber(ctx, w.RPC, rangeFrom)
		if ferr != nil {
			return 0, 0, endHash, outcome{kind: outcomeRetry, err: ferr}, ferr
		}
		toHeader, terr := rpcclient.GetBlockByNumber(ctx, w.RPC, rangeTo)
		if terr != nil {
			return 0, 0, endHash, outcome{kind: outcomeRetry, err: terr}, terr
		}

		var fromParent ethtypes.Bytes32
		copy(fromParent[:], fromHeader.ParentHash)
		if fromParent != localHash {
			if err := w.Store.DeleteReorgedRows(ctx, tx, w.Config.Chain, localNum); err != nil {
				return 0, 0, endHash, outcome{kind: outcomeFatal, err: err}, err
			}
			continue
		}

		copy(endHash[:], toHeader.Hash)
		return rangeFrom, rangeTo, endHash, outcome{}, nil
	}
	reorgErr := i18n.NewError(ctx, indexmsgs.MsgReorgTooDeep, maxReorgAttempts, w.Config.Chain)
	return 0, 0, endHash, outcome{kind: outcomeFatal, err: reorgErr}, reorgErr
}

func (w *Worker) latestRemoteBlockNumber(ctx context.Context) (uint64, error) {
	var result struct {
		Number *ethtypes.HexUint64 `json:"number"`
	}
	if err := w.RPC.CallRPC(ctx, &result, "eth_getBlockByNumber", "latest", false); err != nil {
		return 0, err
	}
	return result.Number.Uint64(), nil
}

// singleFetch issues the combined `eth_getBlockByNumber`+`eth_getLogs`
// batch call used when the range is smaller than batchSize (§4.4 step 3).
func (w *Worker) singleFetch(ctx context.Context, from, to uint64) ([]rpcclient.Log, error) {
	_, logs, err := rpcclient.GetBlockAndLogsBatch(ctx, w.RPC, from, to)
	return logs, err
}

// batchFetch partitions [from, to] into ceil(batchSize/concurrency)-sized
// pieces and fetches each with its own eth_getLogs call, in parallel
// (§4.4.1).
func (w *Worker) batchFetch(ctx context.Context, from, to uint64) ([]rpcclient.Log, error) {
	concurrency := w.Config.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	partSize := (uint64(w.Config.BatchSize) + uint64(concurrency) - 1) / uint64(concurrency)
	if partSize < 1 {
		partSize = 1
	}

	pieces := partitionRange(from, to, partSize)

	type result struct {
		logs []rpcclient.Log
		err  error
	}
	results := make(chan result, len(pieces))
	for _, p := range pieces {
		p := p
		go func() {
			logs, err := rpcclient.GetLogs(ctx, w.RPC, p.from, p.to)
			results <- result{logs: logs, err: err}
		}()
	}

	var all []rpcclient.Log
	var firstErr error
	for range pieces {
		r := <-results
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
		all = append(all, r.logs...)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return all, nil
}

type rangePiece struct {
	from, to uint64
}

// partitionRange splits [from, to] into contiguous chunks of at most
// partSize blocks each, used to fan batchFetch out across concurrency workers
// (§4.4.1).
func partitionRange(from, to, partSize uint64) []rangePiece {
	if partSize < 1 {
		partSize = 1
	}
	var pieces []rangePiece
	for i := from; i <= to; i += partSize {
		j := i + partSize - 1
		if j > to {
			j = to
		}
		pieces = append(pieces, rangePiece{from: i, to: j})
	}
	return pieces
}
