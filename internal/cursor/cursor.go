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

// Package cursor implements the per-chain resumption token carried on a
// streaming query (§6): a set of chain IDs each paired with the block number
// the next query starts from, serialized as "-"-separated integers
// (chain-block-chain-block-...). A chain with no recorded position serializes
// its block number as 0 and contributes only a chain-equality predicate.
package cursor

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/evmlogs/indexer/internal/apperr"
	"github.com/evmlogs/indexer/internal/indexmsgs"
	"github.com/hyperledger/firefly-common/pkg/i18n"
)

// Cursor tracks, for each chain it names, the lowest block number the next
// query reads from (the executor stores the local head plus one) - or no
// position at all if the chain was only just added to the query.
type Cursor struct {
	positions map[uint64]*uint64
}

// New returns a cursor naming a single chain, optionally with a starting
// block height.
func New(chain uint64, blockNum *uint64) *Cursor {
	c := &Cursor{positions: map[uint64]*uint64{}}
	c.positions[chain] = blockNum
	return c
}

func Empty() *Cursor {
	return &Cursor{positions: map[uint64]*uint64{}}
}

// AddChains registers chains with no recorded position, leaving any chain
// already present untouched.
func (c *Cursor) AddChains(chains []uint64) {
	for _, chain := range chains {
		if _, ok := c.positions[chain]; !ok {
			c.positions[chain] = nil
		}
	}
}

func (c *Cursor) Contains(chain uint64) bool {
	_, ok := c.positions[chain]
	return ok
}

// Chains returns the chain IDs in ascending order.
func (c *Cursor) Chains() []uint64 {
	chains := make([]uint64, 0, len(c.positions))
	for chain := range c.positions {
		chains = append(chains, chain)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })
	return chains
}

// Chain returns an arbitrary chain from the set, or 0 if it's empty - used
// only where a single-chain caller needs a representative value.
func (c *Cursor) Chain() uint64 {
	for chain := range c.positions {
		return chain
	}
	return 0
}

func (c *Cursor) SetBlockHeight(chain uint64, blockNum uint64) {
	n := blockNum
	c.positions[chain] = &n
}

func (c *Cursor) BlockHeight(chain uint64) (uint64, bool) {
	n, ok := c.positions[chain]
	if !ok || n == nil {
		return 0, false
	}
	return *n, true
}

// ToSQL renders the cursor as a WHERE predicate fragment over colName, one
// disjunct per chain: `(chain = c and colName >= n)` when a position is
// recorded, or bare `chain = c` when it isn't. Callers never interpolate
// cursor-derived chain/block numbers as anything but integers parsed by
// Parse, so this is safe to splice directly into generated SQL.
func (c *Cursor) ToSQL(colName string) string {
	chains := c.Chains()
	predicates := make([]string, 0, len(chains))
	for _, chain := range chains {
		if n, ok := c.BlockHeight(chain); ok {
			predicates = append(predicates, "(chain = "+strconv.FormatUint(chain, 10)+" and "+colName+" >= "+strconv.FormatUint(n, 10)+")")
		} else {
			predicates = append(predicates, "chain = "+strconv.FormatUint(chain, 10))
		}
	}
	if len(predicates) == 1 {
		return predicates[0]
	}
	return "(" + strings.Join(predicates, " or ") + ")"
}

// Parse decodes the "-"-separated wire format into a Cursor.
func Parse(ctx context.Context, s string) (*Cursor, error) {
	parts := strings.Split(s, "-")
	numbers := make([]uint64, len(parts))
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, apperr.WrapUser(err, "%s", i18n.NewError(ctx, indexmsgs.MsgCursorNotNumeric))
		}
		numbers[i] = n
	}
	if len(numbers)%2 != 0 {
		return nil, apperr.User("%s", i18n.NewError(ctx, indexmsgs.MsgCursorOddLength))
	}
	c := Empty()
	for i := 0; i < len(numbers); i += 2 {
		c.SetBlockHeight(numbers[i], numbers[i+1])
	}
	return c, nil
}

// String renders the cursor back to its wire format. A chain with no
// recorded position serializes its block number as 0.
func (c *Cursor) String() string {
	chains := c.Chains()
	pairs := make([]string, 0, len(chains)*2)
	for _, chain := range chains {
		n, _ := c.BlockHeight(chain)
		pairs = append(pairs, strconv.FormatUint(chain, 10), strconv.FormatUint(n, 10))
	}
	return strings.Join(pairs, "-")
}

func (c *Cursor) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Cursor) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := Parse(context.Background(), s)
	if err != nil {
		return err
	}
	*c = *parsed
	return nil
}
