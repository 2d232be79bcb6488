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

// Package queryexec is the query executor (C7): it compiles every request
// in a batch against its own signatures and cursor position, runs the
// compiled SQL inside one shared repeatable-read transaction, maps rows to
// JSON by column OID, and advances the response cursor. Grounded on
// original_source/be/src/api_sql.rs's query()/handle_rows - the per-request
// fan-out into one shared transaction, the block_height read-back, and the
// OID-keyed row mapping are all ported from there onto pgx/v5.
package queryexec

import (
	"context"
	"time"

	"github.com/evmlogs/indexer/internal/apperr"
	"github.com/evmlogs/indexer/internal/cursor"
	"github.com/evmlogs/indexer/internal/store"
	"github.com/evmlogs/indexer/pkg/sqlcompile"
	"github.com/jackc/pgx/v5"
)

// Request is one entry of the (possibly batched) incoming request body
// (§6 "HTTP request surface"): a chain-scoped SQL query compiled against a
// fixed set of event signatures, optionally resuming from a prior cursor
// position for that chain.
type Request struct {
	Chain      uint64
	Signatures []string
	Query      string
}

// Result is one compiled request's output rows (§4.6 step 6).
type Result struct {
	Columns []Column        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// Response is the full one-shot reply: the advanced cursor plus one Result
// per request in the batch, in request order.
type Response struct {
	Cursor  *cursor.Cursor `json:"cursor"`
	Results []Result       `json:"results"`
}

// Executor runs compiled queries against the storage engine.
type Executor struct {
	Store *store.Store
}

func New(st *store.Store) *Executor {
	return &Executor{Store: st}
}

// Run implements §4.6's one-shot algorithm for a batch of requests that
// share one cursor and one statement timeout.
func (e *Executor) Run(ctx context.Context, cur *cursor.Cursor, statementTimeout time.Duration, requests []Request) (*Response, error) {
	if len(requests) == 0 {
		return nil, apperr.User("at least one query is required")
	}

	compiledSQL := make([]string, len(requests))
	for i, req := range requests {
		var floor *uint64
		if n, ok := cur.BlockHeight(req.Chain); ok && n > 0 {
			floor = &n
		}
		sql, err := sqlcompile.Compile(ctx, req.Chain, floor, req.Query, req.Signatures)
		if err != nil {
			return nil, err
		}
		compiledSQL[i] = sql
	}

	resp := &Response{Cursor: cur, Results: make([]Result, len(requests))}

	err := e.Store.WithReadTx(ctx, statementTimeout.Milliseconds(), func(tx pgx.Tx) error {
		for i, req := range requests {
			rows, err := tx.Query(ctx, compiledSQL[i])
			if err != nil {
				return apperr.Server(err, "query execution failed")
			}
			result, err := collectRows(ctx, rows)
			rows.Close()
			if err != nil {
				return err
			}
			resp.Results[i] = result
		}

		advanced := map[uint64]bool{}
		for _, req := range requests {
			if advanced[req.Chain] {
				continue
			}
			advanced[req.Chain] = true
			latest, err := e.Store.CursorFloorTx(ctx, tx, req.Chain)
			if err != nil {
				return err
			}
			cur.SetBlockHeight(req.Chain, latest+1)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// collectRows maps every row of an already-executed pgx.Rows into the
// JSON-ready shape of §4.6 step 5, using the result set's own field
// descriptions to resolve each column's OID.
func collectRows(ctx context.Context, rows pgx.Rows) (Result, error) {
	fields := rows.FieldDescriptions()
	columns := make([]Column, len(fields))
	for i, f := range fields {
		columns[i] = Column{Name: f.Name, Type: pgTypeName(f.DataTypeOID)}
	}

	var out [][]interface{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return Result{}, apperr.Server(err, "failed reading result row")
		}
		jsonRow := make([]interface{}, len(values))
		for i, v := range values {
			mapped, err := valueToJSON(ctx, fields[i].DataTypeOID, fields[i].Name, v)
			if err != nil {
				return Result{}, err
			}
			jsonRow[i] = mapped
		}
		out = append(out, jsonRow)
	}
	if err := rows.Err(); err != nil {
		return Result{}, apperr.Server(err, "failed iterating result rows")
	}
	return Result{Columns: columns, Rows: out}, nil
}
