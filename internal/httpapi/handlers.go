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

package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/evmlogs/indexer/internal/apperr"
	"github.com/evmlogs/indexer/internal/cursor"
	"github.com/evmlogs/indexer/internal/queryexec"
	"github.com/hyperledger/firefly-common/pkg/log"
)

type handlers struct {
	cfg Config
}

// wireRequest is one entry of the §6 request body, which arrives as either
// a single object or an array of them.
type wireRequest struct {
	APIKey     string   `json:"api_key"`
	Chain      *uint64  `json:"chain"`
	Cursor     string   `json:"cursor"`
	Signatures []string `json:"signatures"`
	Query      string   `json:"query"`
}

// oneShotResponse mirrors spec.md §6: a single-query request serializes
// flat as {cursor, columns, rows}; a batch serializes its results as an
// array so no column set is ambiguously merged.
type oneShotResponse struct {
	Cursor  *cursor.Cursor      `json:"cursor"`
	Columns []queryexec.Column  `json:"columns,omitempty"`
	Rows    [][]interface{}     `json:"rows,omitempty"`
	Results []queryexec.Result  `json:"results,omitempty"`
}

func decodeWireRequests(r *http.Request) ([]wireRequest, error) {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, apperr.WrapUser(err, "invalid request body")
	}
	var batch []wireRequest
	if err := json.Unmarshal(raw, &batch); err == nil {
		return batch, nil
	}
	var single wireRequest
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, apperr.WrapUser(err, "invalid request body")
	}
	return []wireRequest{single}, nil
}

// headerChain resolves a default chain id for requests that don't name
// their own (§6, mirroring the Chain header/query-param extractor).
func headerChain(r *http.Request) (uint64, bool) {
	if v := r.URL.Query().Get("chain"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n, true
		}
	}
	if v := r.Header.Get("Chain"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func buildCursorAndRequests(r *http.Request, wire []wireRequest) (*cursor.Cursor, []queryexec.Request, error) {
	ctx := r.Context()
	cur := cursor.Empty()
	defaultChain, hasDefault := headerChain(r)

	requests := make([]queryexec.Request, len(wire))
	for i, w := range wire {
		chain := defaultChain
		if w.Chain != nil {
			chain = *w.Chain
		} else if !hasDefault {
			return nil, nil, apperr.User("missing chain: supply a Chain header, chain query parameter, or per-request chain field")
		}
		if w.Cursor != "" {
			parsed, err := cursor.Parse(ctx, w.Cursor)
			if err != nil {
				return nil, nil, err
			}
			for _, c := range parsed.Chains() {
				if n, ok := parsed.BlockHeight(c); ok {
					cur.SetBlockHeight(c, n)
				}
			}
		}
		cur.AddChains([]uint64{chain})
		requests[i] = queryexec.Request{Chain: chain, Signatures: w.Signatures, Query: w.Query}
	}
	return cur, requests, nil
}

func (h *handlers) principalAndTimeout(r *http.Request) (Principal, time.Duration, error) {
	principal, err := h.cfg.AccessControl.Authorize(r)
	if err != nil {
		return Principal{}, 0, err
	}
	timeout := h.cfg.DefaultStatementTimeout
	if h.cfg.LimitsCache != nil {
		if limit, ok := h.cfg.LimitsCache.Get(principal.Plan); ok {
			timeout = limit.StatementTimeout
		}
	}
	return principal, timeout, nil
}

func (h *handlers) handleOneShot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wire, err := decodeWireRequests(r)
	if err != nil {
		writeError(w, err)
		return
	}
	cur, requests, err := buildCursorAndRequests(r, wire)
	if err != nil {
		writeError(w, err)
		return
	}
	_, timeout, err := h.principalAndTimeout(r)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.cfg.Executor.Run(ctx, cur, timeout, requests)
	if err != nil {
		writeError(w, err)
		return
	}

	out := oneShotResponse{Cursor: resp.Cursor}
	if len(resp.Results) == 1 {
		out.Columns = resp.Results[0].Columns
		out.Rows = resp.Results[0].Rows
	} else {
		out.Results = resp.Results
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wire, err := decodeWireRequests(r)
	if err != nil {
		writeError(w, err)
		return
	}
	cur, requests, err := buildCursorAndRequests(r, wire)
	if err != nil {
		writeError(w, err)
		return
	}
	principal, timeout, err := h.principalAndTimeout(r)
	if err != nil {
		writeError(w, err)
		return
	}

	release, err := h.cfg.Gate.Acquire(ctx, principal.Plan, principal.IP)
	if err != nil {
		writeError(w, err)
		return
	}
	defer release()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperr.Server(nil, "streaming not supported by this response writer"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	streamErr := h.cfg.Executor.Stream(ctx, cur, timeout, requests, h.cfg.Broadcast, func(resp *queryexec.Response) error {
		out := oneShotResponse{Cursor: resp.Cursor}
		if len(resp.Results) == 1 {
			out.Columns = resp.Results[0].Columns
			out.Rows = resp.Results[0].Rows
		} else {
			out.Results = resp.Results
		}
		return writeSSEEvent(w, flusher, out)
	})
	if streamErr != nil {
		log.L(ctx).Errorf("query stream ended: %s", streamErr)
		_ = writeSSERaw(w, flusher, `"`+apperr.Classify(streamErr).Message+`"`)
		return
	}
	_ = writeSSERaw(w, flusher, `"closed"`)
}
