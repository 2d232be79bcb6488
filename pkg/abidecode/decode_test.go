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

package abidecode

import (
	"context"
	"testing"

	"github.com/evmlogs/indexer/pkg/abiparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wordUint(n uint64) []byte {
	w := make([]byte, 32)
	for i := 0; i < 8; i++ {
		w[31-i] = byte(n >> (8 * i))
	}
	return w
}

func padRight(b []byte) []byte {
	out := make([]byte, (len(b)+31)/32*32)
	if len(out) == 0 {
		out = make([]byte, 32)
	}
	copy(out, b)
	return out
}

func TestDecodeSingleUint(t *testing.T) {
	params := []*abiparse.Parameter{{Kind: abiparse.KindUint, Bits: 256, Name: "value"}}
	data := wordUint(42)
	out, err := DecodeEventData(context.Background(), params, data)
	assert.NoError(t, err)
	assert.Equal(t, "42", out["value"])
}

func TestDecodeSignedNegative(t *testing.T) {
	params := []*abiparse.Parameter{{Kind: abiparse.KindInt, Bits: 256, Name: "value"}}
	word := make([]byte, 32)
	for i := range word {
		word[i] = 0xff
	}
	out, err := DecodeEventData(context.Background(), params, word)
	assert.NoError(t, err)
	assert.Equal(t, "-1", out["value"])
}

func TestDecodeAddress(t *testing.T) {
	params := []*abiparse.Parameter{{Kind: abiparse.KindAddress, Name: "a"}}
	word := make([]byte, 32)
	addr := []byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01}
	copy(word[12:], addr)
	out, err := DecodeEventData(context.Background(), params, word)
	assert.NoError(t, err)
	assert.Equal(t, "deadbeef00000000000000000000000000000001", out["a"])
}

func TestDecodeBool(t *testing.T) {
	params := []*abiparse.Parameter{{Kind: abiparse.KindBool, Name: "flag"}}
	word := make([]byte, 32)
	word[31] = 1
	out, err := DecodeEventData(context.Background(), params, word)
	assert.NoError(t, err)
	assert.Equal(t, true, out["flag"])
}

func TestDecodeFixedBytes(t *testing.T) {
	params := []*abiparse.Parameter{{Kind: abiparse.KindBytes, Size: 4, Name: "sel"}}
	word := make([]byte, 32)
	copy(word, []byte{0xaa, 0xbb, 0xcc, 0xdd})
	out, err := DecodeEventData(context.Background(), params, word)
	assert.NoError(t, err)
	assert.Equal(t, "aabbccdd", out["sel"])
}

func TestDecodeString(t *testing.T) {
	params := []*abiparse.Parameter{{Kind: abiparse.KindString, Name: "s"}}
	var data []byte
	data = append(data, wordUint(32)...)       // head: offset to tail
	data = append(data, wordUint(2)...)        // tail: length
	data = append(data, padRight([]byte("hi"))...)
	out, err := DecodeEventData(context.Background(), params, data)
	assert.NoError(t, err)
	assert.Equal(t, "hi", out["s"])
}

func TestDecodeDynamicUintArray(t *testing.T) {
	params := []*abiparse.Parameter{{Kind: abiparse.KindArray, Name: "nums", Elem: &abiparse.Parameter{Kind: abiparse.KindUint, Bits: 256}}}
	var data []byte
	data = append(data, wordUint(32)...) // head: offset to tail
	data = append(data, wordUint(2)...)  // tail: array length
	data = append(data, wordUint(10)...)
	data = append(data, wordUint(20)...)
	out, err := DecodeEventData(context.Background(), params, data)
	assert.NoError(t, err)
	nums := out["nums"].([]interface{})
	assert.Equal(t, []interface{}{"10", "20"}, nums)
}

func TestDecodeFixedArrayOfStaticElements(t *testing.T) {
	n := uint64(2)
	params := []*abiparse.Parameter{{Kind: abiparse.KindArray, Name: "pair", ArrayLen: &n, Elem: &abiparse.Parameter{Kind: abiparse.KindUint, Bits: 256}}}
	var data []byte
	data = append(data, wordUint(7)...)
	data = append(data, wordUint(8)...)
	out, err := DecodeEventData(context.Background(), params, data)
	assert.NoError(t, err)
	assert.Equal(t, []interface{}{"7", "8"}, out["pair"])
}

func TestDecodeStaticTuple(t *testing.T) {
	params := []*abiparse.Parameter{{
		Kind: abiparse.KindTuple,
		Name: "pair",
		Components: []*abiparse.Parameter{
			{Kind: abiparse.KindUint, Bits: 256, Name: "a"},
			{Kind: abiparse.KindBool, Name: "b"},
		},
	}}
	var data []byte
	data = append(data, wordUint(5)...)
	boolWord := make([]byte, 32)
	boolWord[31] = 1
	data = append(data, boolWord...)
	out, err := DecodeEventData(context.Background(), params, data)
	assert.NoError(t, err)
	pair := out["pair"].(map[string]interface{})
	assert.Equal(t, "5", pair["a"])
	assert.Equal(t, true, pair["b"])
}

func TestDecodeNestedDynamicTuple(t *testing.T) {
	params := []*abiparse.Parameter{{
		Kind: abiparse.KindTuple,
		Name: "meta",
		Components: []*abiparse.Parameter{
			{Kind: abiparse.KindString, Name: "note"},
		},
	}}
	var data []byte
	data = append(data, wordUint(32)...) // head: offset to the tuple's own frame
	data = append(data, wordUint(32)...) // tuple frame head: offset to string tail, relative to the tuple frame
	data = append(data, wordUint(2)...)  // string tail: length
	data = append(data, padRight([]byte("hi"))...)
	out, err := DecodeEventData(context.Background(), params, data)
	require.NoError(t, err)
	meta := out["meta"].(map[string]interface{})
	assert.Equal(t, "hi", meta["note"])
}

func TestDecodeUnexpectedEOF(t *testing.T) {
	params := []*abiparse.Parameter{{Kind: abiparse.KindUint, Bits: 256, Name: "value"}}
	_, err := DecodeEventData(context.Background(), params, []byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestDecodeMultipleParamsAdvanceHead(t *testing.T) {
	params := []*abiparse.Parameter{
		{Kind: abiparse.KindUint, Bits: 256, Name: "a"},
		{Kind: abiparse.KindUint, Bits: 256, Name: "b"},
	}
	var data []byte
	data = append(data, wordUint(1)...)
	data = append(data, wordUint(2)...)
	out, err := DecodeEventData(context.Background(), params, data)
	assert.NoError(t, err)
	assert.Equal(t, "1", out["a"])
	assert.Equal(t, "2", out["b"])
}
