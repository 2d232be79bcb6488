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

// Package abidecode decodes raw ABI-encoded log bytes against a
// pkg/abiparse Parameter tree into plain Go values suitable for JSON
// encoding (§4.2). The head/tail walking algorithm follows the teacher's
// pkg/abi abidecode.go; the leaf value set and JSON shape are this
// package's own, built to the signature-derived Parameter tree instead of
// the teacher's JSON-ABI TypeComponent tree.
package abidecode

import (
	"context"
	"encoding/hex"
	"math/big"
	"unicode/utf8"

	"github.com/evmlogs/indexer/internal/indexmsgs"
	"github.com/evmlogs/indexer/pkg/abiparse"
	"github.com/hyperledger/firefly-common/pkg/i18n"
)

// DecodeEventData decodes a log's `data` payload against the event's
// non-indexed parameters, exactly as if they were the components of one
// synthetic tuple occupying the whole buffer. Unlike an ordinary nested
// tuple, there is no leading offset word in front of top-level event data
// (cf. the teacher's walkTupleABIBytes, which never reads one either) - so
// this always decodes inline, never through decodeDynamicTuple's
// offset-indirection, regardless of whether the synthetic tuple itself is
// static.
func DecodeEventData(ctx context.Context, params []*abiparse.Parameter, data []byte) (map[string]interface{}, error) {
	tuple := &abiparse.Parameter{Kind: abiparse.KindTuple, Components: params}
	_, value, err := decodeStaticTuple(ctx, "data", data, 0, 0, tuple)
	if err != nil {
		return nil, err
	}
	return value.(map[string]interface{}), nil
}

// DecodeIndexedTopic decodes a single indexed parameter from its 32-byte
// topic word. Dynamic indexed parameters (string, bytes, arrays, dynamic
// tuples) are not re-encoded into the topic by the EVM - the topic holds
// only their keccak256 hash - so callers must special-case those rather
// than calling this for them.
func DecodeIndexedTopic(ctx context.Context, p *abiparse.Parameter, topic [32]byte) (interface{}, error) {
	_, value, err := decodeElement(ctx, "topic", topic[:], 0, 0, p)
	return value, err
}

// decodeElement mirrors the teacher's decodeABIElement dispatch: it reads
// exactly headBytesRead bytes of head region for this parameter (always 32
// for a leaf, a computed multiple of 32 for a static tuple/array) and
// returns the decoded value plus how many head bytes it consumed.
func decodeElement(ctx context.Context, path string, block []byte, headStart, headPosition int, p *abiparse.Parameter) (headBytesRead int, value interface{}, err error) {
	switch p.Kind {
	case abiparse.KindTuple:
		if p.IsStatic() {
			return decodeStaticTuple(ctx, path, block, headStart, headPosition, p)
		}
		return decodeDynamicTuple(ctx, path, block, headStart, headPosition, p)
	case abiparse.KindArray:
		if p.ArrayLen != nil && p.Elem.IsStatic() {
			return decodeFixedArray(ctx, path, block, headStart, headPosition, p)
		}
		return decodeArrayAsDynamic(ctx, path, block, headStart, headPosition, p)
	default:
		v, err := decodeLeaf(ctx, path, block, headStart, headPosition, p)
		if err != nil {
			return -1, nil, err
		}
		return 32, v, nil
	}
}

// decodeLeaf reads a leaf value from the head region described by
// (headStart, headPosition): headPosition is always relative to headStart,
// so every head-word read below resolves the absolute index as
// headStart+headPosition.
func decodeLeaf(ctx context.Context, path string, block []byte, headStart, headPosition int, p *abiparse.Parameter) (interface{}, error) {
	switch p.Kind {
	case abiparse.KindAddress:
		word, err := readWord(ctx, path, block, headStart+headPosition)
		if err != nil {
			return nil, err
		}
		return hex.EncodeToString(word[12:]), nil
	case abiparse.KindBool:
		word, err := readWord(ctx, path, block, headStart+headPosition)
		if err != nil {
			return nil, err
		}
		return word[31] == 1, nil
	case abiparse.KindInt:
		word, err := readWord(ctx, path, block, headStart+headPosition)
		if err != nil {
			return nil, err
		}
		return parseSignedTwosComplement(word).String(), nil
	case abiparse.KindUint:
		word, err := readWord(ctx, path, block, headStart+headPosition)
		if err != nil {
			return nil, err
		}
		return new(big.Int).SetBytes(word[:]).String(), nil
	case abiparse.KindBytes:
		if p.Size > 0 {
			word, err := readWord(ctx, path, block, headStart+headPosition)
			if err != nil {
				return nil, err
			}
			return hex.EncodeToString(word[:p.Size]), nil
		}
		raw, err := decodeDynamicBytes(ctx, path, block, headStart, headPosition)
		if err != nil {
			return nil, err
		}
		return hex.EncodeToString(raw), nil
	case abiparse.KindString:
		raw, err := decodeDynamicBytes(ctx, path, block, headStart, headPosition)
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(raw) {
			return nil, i18n.NewError(ctx, indexmsgs.MsgInvalidUTF8, path)
		}
		return string(raw), nil
	default:
		return nil, i18n.NewError(ctx, indexmsgs.MsgUnsupportedABIType, p.Canonical())
	}
}

func readWord(ctx context.Context, path string, block []byte, offset int) ([32]byte, error) {
	var w [32]byte
	if offset+32 > len(block) {
		return w, i18n.NewError(ctx, indexmsgs.MsgUnexpectedEOF, path, offset)
	}
	copy(w[:], block[offset:offset+32])
	return w, nil
}

func parseSignedTwosComplement(word [32]byte) *big.Int {
	v := new(big.Int).SetBytes(word[:])
	if word[0]&0x80 != 0 {
		max := new(big.Int).Lsh(big.NewInt(1), 256)
		v.Sub(v, max)
	}
	return v
}

func decodeLength(ctx context.Context, path string, block []byte, offset int) (int, error) {
	word, err := readWord(ctx, path, block, offset)
	if err != nil {
		return -1, err
	}
	n := new(big.Int).SetBytes(word[:])
	if n.BitLen() > 32 {
		return -1, i18n.NewError(ctx, indexmsgs.MsgArrayTooLarge, n.String(), path)
	}
	return int(n.Int64()), nil
}

// decodeDynamicBytes reads the `uint32 length ‖ payload` tail for a
// `string`/`bytes` parameter whose head slot holds an offset to it.
// headPosition is relative to headStart, as in decodeLeaf.
func decodeDynamicBytes(ctx context.Context, path string, block []byte, headStart, headPosition int) ([]byte, error) {
	relOffset, err := decodeLength(ctx, path, block, headStart+headPosition)
	if err != nil {
		return nil, err
	}
	dataOffset := headStart + relOffset
	length, err := decodeLength(ctx, path, block, dataOffset)
	if err != nil {
		return nil, err
	}
	start := dataOffset + 32
	if start+length > len(block) {
		return nil, i18n.NewError(ctx, indexmsgs.MsgUnexpectedEOF, path, start)
	}
	out := make([]byte, length)
	copy(out, block[start:start+length])
	return out, nil
}

func decodeStaticTuple(ctx context.Context, path string, block []byte, headStart, headPosition int, p *abiparse.Parameter) (int, interface{}, error) {
	result := make(map[string]interface{}, len(p.Components))
	headBytesRead := 0
	for i, child := range p.Components {
		childHeadBytes, value, err := decodeElement(ctx, path, block, headStart, headPosition, child)
		if err != nil {
			return -1, nil, err
		}
		result[componentKey(child, i)] = value
		headBytesRead += childHeadBytes
		headPosition += childHeadBytes
	}
	return headBytesRead, result, nil
}

func decodeDynamicTuple(ctx context.Context, path string, block []byte, headStart, headPosition int, p *abiparse.Parameter) (int, interface{}, error) {
	relOffset, err := decodeLength(ctx, path, block, headStart+headPosition)
	if err != nil {
		return -1, nil, err
	}
	tupleStart := headStart + relOffset
	result := make(map[string]interface{}, len(p.Components))
	innerHeadPos := 0
	for i, child := range p.Components {
		childHeadBytes, value, err := decodeElement(ctx, path, block, tupleStart, innerHeadPos, child)
		if err != nil {
			return -1, nil, err
		}
		result[componentKey(child, i)] = value
		innerHeadPos += childHeadBytes
	}
	return 32, result, nil
}

// decodeFixedArray decodes a `T[N]` array whose element type is static, so
// the whole array occupies N contiguous head slots with no offset
// indirection (§4.2 "Arrays" rule).
func decodeFixedArray(ctx context.Context, path string, block []byte, headStart, headPosition int, p *abiparse.Parameter) (int, interface{}, error) {
	n := int(*p.ArrayLen)
	values := make([]interface{}, n)
	headBytesRead := 0
	for i := 0; i < n; i++ {
		childHeadBytes, value, err := decodeElement(ctx, path, block, headStart, headPosition, p.Elem)
		if err != nil {
			return -1, nil, err
		}
		values[i] = value
		headBytesRead += childHeadBytes
		headPosition += childHeadBytes
	}
	return headBytesRead, values, nil
}

// decodeArrayAsDynamic decodes any array form other than a fixed-length
// static-element array: a dynamic-length array, or a fixed-length array of
// a dynamic element type. Both carry their own `uint32 length` tail.
func decodeArrayAsDynamic(ctx context.Context, path string, block []byte, headStart, headPosition int, p *abiparse.Parameter) (int, interface{}, error) {
	relOffset, err := decodeLength(ctx, path, block, headStart+headPosition)
	if err != nil {
		return -1, nil, err
	}
	dataOffset := headStart + relOffset
	length, err := decodeLength(ctx, path, block, dataOffset)
	if err != nil {
		return -1, nil, err
	}
	if p.ArrayLen != nil && length != int(*p.ArrayLen) {
		return -1, nil, i18n.NewError(ctx, indexmsgs.MsgArrayTooLarge, big.NewInt(int64(length)).String(), path)
	}
	elemStart := dataOffset + 32
	values := make([]interface{}, length)
	elemHeadPos := 0
	for i := 0; i < length; i++ {
		childHeadBytes, value, err := decodeElement(ctx, path, block, elemStart, elemHeadPos, p.Elem)
		if err != nil {
			return -1, nil, err
		}
		values[i] = value
		elemHeadPos += childHeadBytes
	}
	return 32, values, nil
}

func componentKey(p *abiparse.Parameter, index int) string {
	if p.Name != "" {
		return p.Name
	}
	return indexKey(index)
}

func indexKey(i int) string {
	const digits = "0123456789"
	if i < 10 {
		return string(digits[i])
	}
	return indexKey(i/10) + string(digits[i%10])
}
