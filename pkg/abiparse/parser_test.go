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

package abiparse

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSimpleEvent(t *testing.T) {
	ev, err := ParseEventSignature(context.Background(), "Transfer(address indexed from, address indexed to, uint256 value)")
	assert.NoError(t, err)
	assert.Equal(t, "Transfer", ev.Name)
	assert.Len(t, ev.Params, 3)
	assert.True(t, ev.Params[0].Indexed)
	assert.Equal(t, "from", ev.Params[0].Name)
	assert.Equal(t, KindAddress, ev.Params[0].Kind)
	assert.False(t, ev.Params[2].Indexed)
	assert.Equal(t, KindUint, ev.Params[2].Kind)
	assert.Equal(t, uint16(256), ev.Params[2].Bits)
}

func TestParseWithEventKeyword(t *testing.T) {
	ev, err := ParseEventSignature(context.Background(), "event Approval(address indexed owner, address indexed spender, uint256 value)")
	assert.NoError(t, err)
	assert.Equal(t, "Approval", ev.Name)
}

func TestCanonicalSignatureHasNoNamesOrIndexed(t *testing.T) {
	ev, err := ParseEventSignature(context.Background(), "Transfer(address indexed from, address indexed to, uint256 value)")
	assert.NoError(t, err)
	assert.Equal(t, "Transfer(address,address,uint256)", ev.CanonicalSignature())
}

func TestTransferSelector(t *testing.T) {
	ev, err := ParseEventSignature(context.Background(), "Transfer(address indexed from, address indexed to, uint256 value)")
	assert.NoError(t, err)
	sel := ev.Selector()
	// Well known selector for Transfer(address,address,uint256).
	assert.Equal(t, "ddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef", hex.EncodeToString(sel[:]))
}

func TestParseDefaultBitsAndSize(t *testing.T) {
	ev, err := ParseEventSignature(context.Background(), "E(int a, uint b, bytes c)")
	assert.NoError(t, err)
	assert.Equal(t, uint16(256), ev.Params[0].Bits)
	assert.Equal(t, uint16(256), ev.Params[1].Bits)
	assert.Equal(t, uint16(0), ev.Params[2].Size)
	assert.False(t, ev.Params[2].IsStatic())
}

func TestParseFixedBytes(t *testing.T) {
	ev, err := ParseEventSignature(context.Background(), "E(bytes32 a)")
	assert.NoError(t, err)
	assert.Equal(t, uint16(32), ev.Params[0].Size)
	assert.True(t, ev.Params[0].IsStatic())
}

func TestParseArraySuffixesNestOutermostLast(t *testing.T) {
	// uint256[3][] means a dynamic array of fixed-3 arrays of uint256.
	ev, err := ParseEventSignature(context.Background(), "E(uint256[3][] a)")
	assert.NoError(t, err)
	outer := ev.Params[0]
	assert.Equal(t, KindArray, outer.Kind)
	assert.Nil(t, outer.ArrayLen)
	inner := outer.Elem
	assert.Equal(t, KindArray, inner.Kind)
	assert.NotNil(t, inner.ArrayLen)
	assert.Equal(t, uint64(3), *inner.ArrayLen)
	assert.Equal(t, KindUint, inner.Elem.Kind)
	assert.Equal(t, "uint256[3][]", outer.Canonical())
}

func TestParseTuple(t *testing.T) {
	ev, err := ParseEventSignature(context.Background(), "E((uint256 a, address b) pair)")
	assert.NoError(t, err)
	p := ev.Params[0]
	assert.Equal(t, KindTuple, p.Kind)
	assert.Equal(t, "pair", p.Name)
	assert.Len(t, p.Components, 2)
	assert.Equal(t, "(uint256,address)", p.Canonical())
	assert.True(t, p.IsStatic())
}

func TestParseDynamicTupleInArray(t *testing.T) {
	ev, err := ParseEventSignature(context.Background(), "E((uint256 a, string b)[] items)")
	assert.NoError(t, err)
	p := ev.Params[0]
	assert.Equal(t, KindArray, p.Kind)
	assert.False(t, p.IsStatic())
	assert.False(t, p.Elem.IsStatic())
}

func TestIndexedMustPrecedeName(t *testing.T) {
	_, err := ParseEventSignature(context.Background(), "E(uint256 value indexed)")
	assert.Error(t, err)
}

func TestUnsupportedType(t *testing.T) {
	_, err := ParseEventSignature(context.Background(), "E(foo a)")
	assert.Error(t, err)
}

func TestSyntaxError(t *testing.T) {
	_, err := ParseEventSignature(context.Background(), "E(uint256 a; )")
	assert.Error(t, err)
}

func TestInvalidArrayLength(t *testing.T) {
	_, err := lex(context.Background(), "E(uint256[99999999999999999999] a)")
	assert.Error(t, err)
}

func TestMaxDepthExceeded(t *testing.T) {
	sig := "E("
	for i := 0; i < 64; i++ {
		sig += "("
	}
	sig += "uint256 a"
	for i := 0; i < 64; i++ {
		sig += ")"
	}
	sig += ")"
	_, err := ParseEventSignatureDepth(context.Background(), sig, 8)
	assert.Error(t, err)
}

func TestHeadSizeStaticTuple(t *testing.T) {
	ev, err := ParseEventSignature(context.Background(), "E((uint256 a, address b) pair)")
	assert.NoError(t, err)
	assert.Equal(t, uint64(64), ev.Params[0].HeadSize())
}

func TestHeadSizeFixedArray(t *testing.T) {
	ev, err := ParseEventSignature(context.Background(), "E(uint256[4] a)")
	assert.NoError(t, err)
	assert.Equal(t, uint64(128), ev.Params[0].HeadSize())
}

func TestHeadSizeDynamicIsOneWord(t *testing.T) {
	ev, err := ParseEventSignature(context.Background(), "E(string a, uint256[] b)")
	assert.NoError(t, err)
	assert.Equal(t, uint64(32), ev.Params[0].HeadSize())
	assert.Equal(t, uint64(32), ev.Params[1].HeadSize())
}

func TestIndexedAndNonIndexedPartition(t *testing.T) {
	ev, err := ParseEventSignature(context.Background(), "Transfer(address indexed from, address indexed to, uint256 value)")
	assert.NoError(t, err)
	assert.Len(t, ev.IndexedParams(), 2)
	assert.Len(t, ev.NonIndexedParams(), 1)
}

func TestRejectsOversizeBits(t *testing.T) {
	_, err := ParseEventSignature(context.Background(), "E(uint257 a)")
	assert.Error(t, err)
}

func TestRejectsNonByteMultipleBits(t *testing.T) {
	_, err := ParseEventSignature(context.Background(), "E(uint7 a)")
	assert.Error(t, err)
}

func TestRejectsZeroBits(t *testing.T) {
	_, err := ParseEventSignature(context.Background(), "E(int0 a)")
	assert.Error(t, err)
}

func TestAcceptsBitsBoundaries(t *testing.T) {
	ev, err := ParseEventSignature(context.Background(), "E(uint8 a, int256 b)")
	assert.NoError(t, err)
	assert.Equal(t, uint16(8), ev.Params[0].Bits)
	assert.Equal(t, uint16(256), ev.Params[1].Bits)
}
