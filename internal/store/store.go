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

// Package store is the Postgres storage layer backing both the chain sync
// worker (C5, writer) and the query executor (C7, reader): the partitioned
// `logs`/`blocks` tables, the `config` table C6 polls, and the account
// limits C7's admission gate reads. Built on pgx/v5, grounded on the pack's
// repeated use of jackc/pgx for exactly this role (manifests for
// rodolfodpk-go-crablet, mickamy-sql-tap, 0xkanth-polymarket-indexer and
// citizenwallet-engine all depend on it).
package store

import (
	"context"
	"strconv"
	"time"

	"github.com/evmlogs/indexer/internal/apperr"
	"github.com/evmlogs/indexer/internal/limiter"
	"github.com/evmlogs/indexer/pkg/ethtypes"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LogRow is one row to be COPY-ed into the `logs` table (§3).
type LogRow struct {
	Chain    uint64
	BlockNum uint64
	TxHash   ethtypes.Bytes32
	LogIdx   uint32
	Address  ethtypes.Address0xHex
	Topics   []ethtypes.Bytes32
	Data     []byte
}

// BlockRow is one row of the `blocks` head-tracking table.
type BlockRow struct {
	Chain      uint64
	Num        uint64
	Hash       ethtypes.Bytes32
	ParentHash *ethtypes.Bytes32
}

// RemoteConfig mirrors the `config` table row C6 polls (§3).
type RemoteConfig struct {
	Chain       uint64
	URL         string
	BatchSize   int
	Concurrency int
	Enabled     bool
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func Connect(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, apperr.Server(err, "invalid storage DSN")
	}
	cfg.MaxConns = maxConns
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, apperr.Server(err, "failed to connect to storage")
	}
	return New(pool), nil
}

func (s *Store) Close() { s.pool.Close() }

// LatestBlock returns the highest committed block number for chain, and
// its hash - used by the sync worker's initBlocks to tell whether the chain
// is already anchored. The reorg check in next() uses LatestBlockTx.
func (s *Store) LatestBlock(ctx context.Context, chain uint64) (num uint64, hash ethtypes.Bytes32, found bool, err error) {
	row := s.pool.QueryRow(ctx, `SELECT num, hash FROM blocks WHERE chain = $1 ORDER BY num DESC LIMIT 1`, chain)
	var hashBytes []byte
	if scanErr := row.Scan(&num, &hashBytes); scanErr != nil {
		if scanErr == pgx.ErrNoRows {
			return 0, ethtypes.Bytes32{}, false, nil
		}
		return 0, ethtypes.Bytes32{}, false, apperr.Server(scanErr, "failed reading latest block")
	}
	copy(hash[:], hashBytes)
	return num, hash, true, nil
}

// CursorFloor implements the `select coalesce(max(num),0) from blocks
// where chain=$1` query named in §6.
func (s *Store) CursorFloor(ctx context.Context, chain uint64) (uint64, error) {
	var num uint64
	err := s.pool.QueryRow(ctx, `SELECT coalesce(max(num), 0) FROM blocks WHERE chain = $1`, chain).Scan(&num)
	if err != nil {
		return 0, apperr.Server(err, "failed reading cursor floor")
	}
	return num, nil
}

// WithWriteTx runs fn inside a single serializable writer transaction, the
// way C5's download() step does all of its work (§4.4 step 1) - commits on
// a nil return, rolls back otherwise.
func (s *Store) WithWriteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return apperr.Server(err, "failed to open write transaction")
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Server(err, "failed to commit write transaction")
	}
	return nil
}

// DeleteReorgedRows removes every blocks/logs row at or above fromNum for
// chain - the rewind step taken when a reorg is detected (§4.4 step 7).
// Must be called within the same transaction as the subsequent retry.
func (s *Store) DeleteReorgedRows(ctx context.Context, tx pgx.Tx, chain, fromNum uint64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM logs WHERE chain = $1 AND block_num >= $2`, chain, fromNum); err != nil {
		return apperr.Server(err, "failed deleting reorged logs")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM blocks WHERE chain = $1 AND num >= $2`, chain, fromNum); err != nil {
		return apperr.Server(err, "failed deleting reorged blocks")
	}
	return nil
}

// InsertBlock writes the new head-tracking row for chain within tx.
func (s *Store) InsertBlock(ctx context.Context, tx pgx.Tx, row BlockRow) error {
	var parent []byte
	if row.ParentHash != nil {
		parent = row.ParentHash[:]
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO blocks (chain, num, hash, parent_hash) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (chain, num) DO UPDATE SET hash = EXCLUDED.hash, parent_hash = EXCLUDED.parent_hash`,
		row.Chain, row.Num, row.Hash[:], parent)
	if err != nil {
		return apperr.Server(err, "failed inserting block row")
	}
	return nil
}

// CopyLogs bulk-loads rows into `logs` via Postgres COPY, the write path
// named explicitly in §4.4 step 4.
func (s *Store) CopyLogs(ctx context.Context, tx pgx.Tx, rows []LogRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	source := pgx.CopyFromSlice(len(rows), func(i int) ([]interface{}, error) {
		r := rows[i]
		topics := make([][]byte, len(r.Topics))
		for j, t := range r.Topics {
			topics[j] = t[:]
		}
		return []interface{}{r.Chain, r.BlockNum, r.TxHash[:], r.LogIdx, r.Address[:], topics, r.Data}, nil
	})
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"logs"}, []string{"chain", "block_num", "tx_hash", "log_idx", "address", "topics", "data"}, source)
	if err != nil {
		return 0, apperr.Server(err, "failed copying log rows")
	}
	return n, nil
}

// LoadRemoteConfigs returns every row of the `config` table C6 polls
// (§4.5 step 1).
func (s *Store) LoadRemoteConfigs(ctx context.Context) ([]RemoteConfig, error) {
	rows, err := s.pool.Query(ctx, `SELECT chain, url, batch_size, concurrency, enabled FROM config`)
	if err != nil {
		return nil, apperr.Server(err, "failed loading remote config")
	}
	defer rows.Close()

	var out []RemoteConfig
	for rows.Next() {
		var c RemoteConfig
		if err := rows.Scan(&c.Chain, &c.URL, &c.BatchSize, &c.Concurrency, &c.Enabled); err != nil {
			return nil, apperr.Server(err, "failed scanning remote config row")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LoadAccountLimits implements limiter.AccountLimitSource against the
// `account_limits` table (§5 "Shared resources").
func (s *Store) LoadAccountLimits(ctx context.Context) (map[string]limiter.AccountLimit, error) {
	rows, err := s.pool.Query(ctx, `SELECT plan, max_concurrent, statement_timeout_ms FROM account_limits`)
	if err != nil {
		return nil, apperr.Server(err, "failed loading account limits")
	}
	defer rows.Close()

	out := map[string]limiter.AccountLimit{}
	for rows.Next() {
		var plan string
		var maxConcurrent, timeoutMS int64
		if err := rows.Scan(&plan, &maxConcurrent, &timeoutMS); err != nil {
			return nil, apperr.Server(err, "failed scanning account limit row")
		}
		out[plan] = limiter.AccountLimit{
			Plan:             plan,
			MaxConcurrent:    maxConcurrent,
			StatementTimeout: time.Duration(timeoutMS) * time.Millisecond,
		}
	}
	return out, rows.Err()
}

// QueryRows runs one compiled SQL statement inside its own repeatable-read
// transaction with the caller-supplied statement timeout (§4.6 step 2), and
// hands the resulting pgx.Rows to fn for column-aware JSON mapping
// (internal/queryexec owns that logic - store only owns transaction/timeout
// semantics). Prefer WithReadTx for a batch that must share one snapshot.
func (s *Store) QueryRows(ctx context.Context, sql string, statementTimeoutMS int64, fn func(pgx.Rows) error) error {
	return s.WithReadTx(ctx, statementTimeoutMS, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql)
		if err != nil {
			log.L(ctx).Errorf("compiled query failed: %s", err)
			return apperr.Server(err, "query execution failed")
		}
		defer rows.Close()
		return fn(rows)
	})
}

// WithReadTx opens a single repeatable-read, read-only transaction with the
// caller-supplied statement timeout and runs fn inside it, so a batch of
// compiled queries (and the cursor floor read-back that follows them) all
// observe one consistent (blocks, logs) snapshot (§4.6 steps 2-4).
func (s *Store) WithReadTx(ctx context.Context, statementTimeoutMS int64, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return apperr.Server(err, "failed to open read transaction")
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, "SET LOCAL statement_timeout = "+strconv.FormatInt(statementTimeoutMS, 10)); err != nil {
		return apperr.Server(err, "failed to set statement timeout")
	}

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CursorFloorTx is CursorFloor run against an already-open transaction, so
// it shares the read snapshot the compiled queries just ran against.
func (s *Store) CursorFloorTx(ctx context.Context, tx pgx.Tx, chain uint64) (uint64, error) {
	var num uint64
	err := tx.QueryRow(ctx, `SELECT coalesce(max(num), 0) FROM blocks WHERE chain = $1`, chain).Scan(&num)
	if err != nil {
		return 0, apperr.Server(err, "failed reading cursor floor")
	}
	return num, nil
}

// LatestBlockTx is LatestBlock run against an already-open transaction.
// The reorg-aware next() step must call this rather than LatestBlock so
// that a DeleteReorgedRows done earlier in the same transaction is
// visible to the re-read that follows it (§4.4 step 7) - a read through
// the pool would open a separate connection and never see the
// transaction's own uncommitted deletes.
func (s *Store) LatestBlockTx(ctx context.Context, tx pgx.Tx, chain uint64) (num uint64, hash ethtypes.Bytes32, found bool, err error) {
	row := tx.QueryRow(ctx, `SELECT num, hash FROM blocks WHERE chain = $1 ORDER BY num DESC LIMIT 1`, chain)
	var hashBytes []byte
	if scanErr := row.Scan(&num, &hashBytes); scanErr != nil {
		if scanErr == pgx.ErrNoRows {
			return 0, ethtypes.Bytes32{}, false, nil
		}
		return 0, ethtypes.Bytes32{}, false, apperr.Server(scanErr, "failed reading latest block")
	}
	copy(hash[:], hashBytes)
	return num, hash, true, nil
}
