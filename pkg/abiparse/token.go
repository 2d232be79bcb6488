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

// Package abiparse tokenizes and parses Solidity event signature text
// ("Transfer(address indexed from, address indexed to, uint256 value)")
// into a Parameter tree, the way the teacher's pkg/abi turns a JSON ABI
// "type" string into a TypeComponent tree - except here the source is the
// full human-written signature, not a pre-split JSON field.
package abiparse

import "fmt"

type tokenKind int

const (
	tokOpenParen tokenKind = iota
	tokCloseParen
	tokComma
	tokWord
	tokArray
	tokEOF
)

type token struct {
	kind   tokenKind
	word   string  // set for tokWord
	length *uint64 // set for tokArray; nil means no number was given ("[]")
	pos    int
}

func (t token) String() string {
	switch t.kind {
	case tokOpenParen:
		return "("
	case tokCloseParen:
		return ")"
	case tokComma:
		return ","
	case tokWord:
		return t.word
	case tokArray:
		if t.length == nil {
			return "[]"
		}
		return fmt.Sprintf("[%d]", *t.length)
	default:
		return "<eof>"
	}
}
