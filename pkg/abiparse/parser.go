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
	"strconv"

	"github.com/evmlogs/indexer/internal/indexmsgs"
	"github.com/hyperledger/firefly-common/pkg/i18n"
)

// DefaultMaxDepth bounds tuple/array nesting so a crafted signature can't
// exhaust the stack during recursive descent.
const DefaultMaxDepth = 32

type parser struct {
	ctx      context.Context
	tokens   []token
	pos      int
	maxDepth int
}

// ParseEventSignature tokenizes and parses a single Solidity event
// signature ("event" keyword optional) into an Event tree, per the §4.1
// grammar.
func ParseEventSignature(ctx context.Context, sig string) (*Event, error) {
	return ParseEventSignatureDepth(ctx, sig, DefaultMaxDepth)
}

// ParseEventSignatureDepth is ParseEventSignature with an explicit nesting
// limit.
func ParseEventSignatureDepth(ctx context.Context, sig string, maxDepth int) (*Event, error) {
	tokens, err := lex(ctx, sig)
	if err != nil {
		return nil, err
	}
	p := &parser{ctx: ctx, tokens: tokens, maxDepth: maxDepth}
	return p.parseEvent()
}

func (p *parser) peek() token  { return p.tokens[p.pos] }
func (p *parser) advance() token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, want string) (token, error) {
	t := p.peek()
	if t.kind != kind {
		return t, i18n.NewError(p.ctx, indexmsgs.MsgUnexpectedToken, t.String(), want)
	}
	return p.advance(), nil
}

// parseEvent implements: event := [ "event" ] Word tuple
func (p *parser) parseEvent() (*Event, error) {
	nameTok, err := p.expect(tokWord, "<event name>")
	if err != nil {
		return nil, err
	}
	name := nameTok.word
	if name == "event" {
		nameTok, err = p.expect(tokWord, "<event name>")
		if err != nil {
			return nil, err
		}
		name = nameTok.word
	}
	params, err := p.parseTuple(0)
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, i18n.NewError(p.ctx, indexmsgs.MsgUnexpectedToken, p.peek().String(), "<eof>")
	}
	return &Event{Name: name, Params: params}, nil
}

// parseTuple implements: tuple := "(" [ parameter ("," parameter)* ] ")"
func (p *parser) parseTuple(depth int) ([]*Parameter, error) {
	if depth > p.maxDepth {
		return nil, i18n.NewError(p.ctx, indexmsgs.MsgMaxDepthExceeded, p.maxDepth)
	}
	if _, err := p.expect(tokOpenParen, "("); err != nil {
		return nil, err
	}
	var params []*Parameter
	if p.peek().kind != tokCloseParen {
		for {
			param, err := p.parseParameter(depth)
			if err != nil {
				return nil, err
			}
			params = append(params, param)
			if p.peek().kind != tokComma {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(tokCloseParen, ")"); err != nil {
		return nil, err
	}
	return params, nil
}

// parseParameter implements:
//
//	parameter := ( tuple | typedesc ) array* [ "indexed" ] [ Word ]
func (p *parser) parseParameter(depth int) (*Parameter, error) {
	var base *Parameter
	if p.peek().kind == tokOpenParen {
		components, err := p.parseTuple(depth + 1)
		if err != nil {
			return nil, err
		}
		base = &Parameter{Kind: KindTuple, Components: components}
	} else {
		td, err := p.parseTypeDesc()
		if err != nil {
			return nil, err
		}
		base = td
	}

	for p.peek().kind == tokArray {
		depth++
		if depth > p.maxDepth {
			return nil, i18n.NewError(p.ctx, indexmsgs.MsgMaxDepthExceeded, p.maxDepth)
		}
		arrTok := p.advance()
		base = &Parameter{Kind: KindArray, Elem: base, ArrayLen: arrTok.length}
	}

	if p.peek().kind == tokWord && p.peek().word == "indexed" {
		p.advance()
		base.Indexed = true
	}

	if p.peek().kind == tokWord {
		nameTok := p.advance()
		if nameTok.word == "indexed" {
			// A name token spelled `indexed` (e.g. "uint256 indexed indexed")
			// is rejected here. "uint256 foo indexed" is rejected by
			// parseTuple, which finds `indexed` where it expects "," or ")".
			return nil, i18n.NewError(p.ctx, indexmsgs.MsgInvalidIndexedPos, nameTok.word)
		}
		base.Name = nameTok.word
	}

	return base, nil
}

// parseTypeDesc implements:
//
//	typedesc := "int"[Bits] | "uint"[Bits] | "bytes"[Size] | "address" | "bool" | "string"
func (p *parser) parseTypeDesc() (*Parameter, error) {
	tok, err := p.expect(tokWord, "<type>")
	if err != nil {
		return nil, err
	}
	name := tok.word

	switch {
	case name == "address":
		return &Parameter{Kind: KindAddress}, nil
	case name == "bool":
		return &Parameter{Kind: KindBool}, nil
	case name == "string":
		return &Parameter{Kind: KindString}, nil
	case name == "bytes":
		return &Parameter{Kind: KindBytes, Size: 0}, nil
	case name == "int":
		return &Parameter{Kind: KindInt, Bits: 256}, nil
	case name == "uint":
		return &Parameter{Kind: KindUint, Bits: 256}, nil
	case hasNumericSuffix(name, "int"):
		bits, err := parseSuffix(p.ctx, name, "int")
		if err != nil {
			return nil, err
		}
		if err := validateBits(p.ctx, name, bits); err != nil {
			return nil, err
		}
		return &Parameter{Kind: KindInt, Bits: bits}, nil
	case hasNumericSuffix(name, "uint"):
		bits, err := parseSuffix(p.ctx, name, "uint")
		if err != nil {
			return nil, err
		}
		if err := validateBits(p.ctx, name, bits); err != nil {
			return nil, err
		}
		return &Parameter{Kind: KindUint, Bits: bits}, nil
	case hasNumericSuffix(name, "bytes"):
		size, err := parseSuffix(p.ctx, name, "bytes")
		if err != nil {
			return nil, err
		}
		return &Parameter{Kind: KindBytes, Size: size}, nil
	default:
		return nil, i18n.NewError(p.ctx, indexmsgs.MsgUnsupportedABIType, name)
	}
}

func hasNumericSuffix(name, prefix string) bool {
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return false
	}
	for i := len(prefix); i < len(name); i++ {
		if !isDigit(name[i]) {
			return false
		}
	}
	return true
}

// validateBits enforces §3's invariant that intN/uintN widths are a
// multiple of 8 in the range 8..256 - rejecting malformed signatures like
// `uint257` or `uint7` at parse time rather than letting them through to
// the decoder.
func validateBits(ctx context.Context, name string, bits uint16) error {
	if bits < 8 || bits > 256 || bits%8 != 0 {
		return i18n.NewError(ctx, indexmsgs.MsgUnsupportedABIType, name)
	}
	return nil
}

func parseSuffix(ctx context.Context, name, prefix string) (uint16, error) {
	n, err := strconv.ParseUint(name[len(prefix):], 10, 16)
	if err != nil {
		return 0, i18n.NewError(ctx, indexmsgs.MsgUnsupportedABIType, name)
	}
	return uint16(n), nil
}
