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

package sqlcompile

import (
	"context"
	"testing"

	"github.com/evmlogs/indexer/pkg/abiparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const transferSig = "Transfer(address indexed from, address indexed to, uint256 amount)"

func TestCompileSimpleProjection(t *testing.T) {
	sql, err := Compile(context.Background(), 1, nil, "select amount from Transfer", []string{transferSig})
	require.NoError(t, err)
	assert.Contains(t, sql, "WITH")
	assert.Contains(t, sql, `transfer AS NOT MATERIALIZED`)
	assert.Contains(t, sql, "abi_uint(amount)")
}

func TestCompileRejectsMultipleStatements(t *testing.T) {
	_, err := Compile(context.Background(), 1, nil, "select 1; select 2", []string{transferSig})
	require.Error(t, err)
}

func TestCompileRejectsWith(t *testing.T) {
	_, err := Compile(context.Background(), 1, nil, "with x as (select 1) select * from x", []string{transferSig})
	require.Error(t, err)
}

func TestCompileRejectsUnknownTable(t *testing.T) {
	_, err := Compile(context.Background(), 1, nil, "select amount from Approval", []string{transferSig})
	require.Error(t, err)
}

func TestCompileRejectsUnknownFunction(t *testing.T) {
	_, err := Compile(context.Background(), 1, nil, "select now() from Transfer", []string{transferSig})
	require.Error(t, err)
}

func TestCompileCursorFloorAddsBlockFilter(t *testing.T) {
	from := uint64(100)
	sql, err := Compile(context.Background(), 1, &from, "select amount from Transfer", []string{transferSig})
	require.NoError(t, err)
	assert.Contains(t, sql, "block_num >= 100")
}

func TestCompileMetadataColumn(t *testing.T) {
	sql, err := Compile(context.Background(), 1, nil, "select block_num from Transfer", []string{transferSig})
	require.NoError(t, err)
	assert.Contains(t, sql, "block_num")
}

func TestCompileRejectsWildcard(t *testing.T) {
	_, err := Compile(context.Background(), 1, nil, "select * from Transfer", []string{transferSig})
	require.Error(t, err)
}

func TestCompileRejectsQualifiedWildcard(t *testing.T) {
	_, err := Compile(context.Background(), 1, nil, "select amount, t.* from Transfer t", []string{transferSig})
	require.Error(t, err)
}

func TestCompileTopicSlotsUseDeclarationPosition(t *testing.T) {
	sig := "Transfer(address indexed from, address indexed to, uint256 indexed tokens)"
	sql, err := Compile(context.Background(), 1, nil, `select "from", tokens from Transfer`, []string{sig})
	require.NoError(t, err)
	assert.Contains(t, sql, "topics[2]")
	assert.Contains(t, sql, "topics[4]")
	assert.NotContains(t, sql, "topics[3]")
}

func TestCompileHexLiteralCoercedToPaddedHex(t *testing.T) {
	sql, err := Compile(context.Background(), 1, nil,
		`select amount from Transfer where "from" = '0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef'`,
		[]string{transferSig})
	require.NoError(t, err)
	assert.Contains(t, sql, `\x000000000000000000000000deadbeefdeadbeefdeadbeefdeadbeefdeadbeef`)
}

func TestFindParamMatchesByName(t *testing.T) {
	ev, err := abiparse.ParseEventSignature(context.Background(), transferSig)
	require.NoError(t, err)
	p := findParam(ev.Params, []string{"amount"})
	require.NotNil(t, p)
	assert.True(t, p.Touched)
}
