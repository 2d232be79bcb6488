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
	"time"

	"github.com/evmlogs/indexer/internal/broadcast"
	"github.com/evmlogs/indexer/internal/store"
	"github.com/evmlogs/indexer/pkg/ethtypes"
	"github.com/evmlogs/indexer/pkg/rpcclient"
	"github.com/go-resty/resty/v2"
)

// BuildWorker constructs a Worker for cfg: one resty-backed rpcclient.Client
// per chain (each row carries its own node URL), resolving "latest" once up
// front so Worker.initBlocks never has to special-case the tag itself.
func BuildWorker(ctx context.Context, st *store.Store, bc *broadcast.Channel, cfg store.RemoteConfig, requestTimeout time.Duration) (*Worker, error) {
	httpClient := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(requestTimeout)
	rpc := rpcclient.New(httpClient)

	var result struct {
		Number *ethtypes.HexUint64 `json:"number"`
	}
	if err := rpc.CallRPC(ctx, &result, "eth_getBlockByNumber", "latest", false); err != nil {
		return nil, err
	}
	start := result.Number.Uint64()

	return &Worker{
		Config:    cfg,
		Store:     st,
		RPC:       rpc,
		Broadcast: bc,
		StartFrom: &start,
	}, nil
}
