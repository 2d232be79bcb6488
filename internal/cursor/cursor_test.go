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

package cursor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRoundTrip(t *testing.T) {
	c, err := Parse(context.Background(), "1-100-2-200")
	assert.NoError(t, err)
	n, ok := c.BlockHeight(1)
	assert.True(t, ok)
	assert.Equal(t, uint64(100), n)
	n, ok = c.BlockHeight(2)
	assert.True(t, ok)
	assert.Equal(t, uint64(200), n)
	assert.Equal(t, []uint64{1, 2}, c.Chains())
}

func TestParseSingleChainNoPosition(t *testing.T) {
	c, err := Parse(context.Background(), "1-0")
	assert.NoError(t, err)
	n, ok := c.BlockHeight(1)
	assert.True(t, ok)
	assert.Equal(t, uint64(0), n)
}

func TestParseOddLength(t *testing.T) {
	_, err := Parse(context.Background(), "1-100-2")
	assert.Error(t, err)
}

func TestParseNotNumeric(t *testing.T) {
	_, err := Parse(context.Background(), "one-100")
	assert.Error(t, err)
}

func TestStringRoundTrip(t *testing.T) {
	c := Empty()
	c.SetBlockHeight(5, 42)
	c.SetBlockHeight(9, 7)
	s := c.String()
	reparsed, err := Parse(context.Background(), s)
	assert.NoError(t, err)
	assert.Equal(t, c.Chains(), reparsed.Chains())
	n, _ := reparsed.BlockHeight(5)
	assert.Equal(t, uint64(42), n)
}

func TestToSQLSingleChain(t *testing.T) {
	c := New(1, nil)
	assert.Equal(t, "chain = 1", c.ToSQL("block_num"))

	n := uint64(100)
	c2 := New(1, &n)
	assert.Equal(t, "(chain = 1 and block_num >= 100)", c2.ToSQL("block_num"))
}

func TestToSQLMultiChain(t *testing.T) {
	c := Empty()
	c.SetBlockHeight(1, 100)
	c.AddChains([]uint64{2})
	sql := c.ToSQL("block_num")
	assert.Equal(t, "((chain = 1 and block_num >= 100) or chain = 2)", sql)
}

func TestAddChainsDoesNotOverwrite(t *testing.T) {
	c := New(1, nil)
	c.SetBlockHeight(1, 50)
	c.AddChains([]uint64{1, 2})
	n, ok := c.BlockHeight(1)
	assert.True(t, ok)
	assert.Equal(t, uint64(50), n)
	assert.True(t, c.Contains(2))
}

func TestMarshalUnmarshalJSON(t *testing.T) {
	c := New(1, nil)
	c.SetBlockHeight(1, 77)
	b, err := c.MarshalJSON()
	assert.NoError(t, err)

	var round Cursor
	assert.NoError(t, round.UnmarshalJSON(b))
	n, ok := round.BlockHeight(1)
	assert.True(t, ok)
	assert.Equal(t, uint64(77), n)
}
