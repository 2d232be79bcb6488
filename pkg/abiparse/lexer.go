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

func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// lexer splits signature source text into the token stream the grammar in
// §4.1 is defined over: OpenParen, CloseParen, Comma, Word and Array.
// Whitespace between tokens is skipped; anything else is a syntax error.
type lexer struct {
	ctx    context.Context
	src    string
	pos    int
	tokens []token
}

func lex(ctx context.Context, src string) ([]token, error) {
	l := &lexer{ctx: ctx, src: src}
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.pos++
		case c == '(':
			l.emit(tokOpenParen, "", nil)
			l.pos++
		case c == ')':
			l.emit(tokCloseParen, "", nil)
			l.pos++
		case c == ',':
			l.emit(tokComma, "", nil)
			l.pos++
		case c == '[':
			if err := l.lexArray(); err != nil {
				return nil, err
			}
		case isWordChar(c):
			l.lexWord()
		default:
			return nil, i18n.NewError(ctx, indexmsgs.MsgSyntaxError, c, l.pos)
		}
	}
	l.tokens = append(l.tokens, token{kind: tokEOF, pos: l.pos})
	return l.tokens, nil
}

func (l *lexer) emit(kind tokenKind, word string, length *uint64) {
	l.tokens = append(l.tokens, token{kind: kind, word: word, length: length, pos: l.pos})
}

func (l *lexer) lexWord() {
	start := l.pos
	for l.pos < len(l.src) && isWordChar(l.src[l.pos]) {
		l.pos++
	}
	l.emit(tokWord, l.src[start:l.pos], nil)
}

func (l *lexer) lexArray() error {
	start := l.pos
	l.pos++ // consume '['
	digitsStart := l.pos
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.src) || l.src[l.pos] != ']' {
		if l.pos >= len(l.src) {
			return i18n.NewError(l.ctx, indexmsgs.MsgSyntaxError, byte(0), l.pos)
		}
		return i18n.NewError(l.ctx, indexmsgs.MsgSyntaxError, l.src[l.pos], l.pos)
	}
	var length *uint64
	if l.pos > digitsStart {
		n, err := strconv.ParseUint(l.src[digitsStart:l.pos], 10, 32)
		if err != nil {
			return i18n.NewError(l.ctx, indexmsgs.MsgInvalidArrayLength, l.src[digitsStart:l.pos])
		}
		length = &n
	}
	l.pos++ // consume ']'
	l.tokens = append(l.tokens, token{kind: tokArray, length: length, pos: start})
	return nil
}
