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
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies a Parameter node the way ComponentType classifies a
// TypeComponent in the teacher's JSON-ABI parser, except the leaf set here
// is exactly what the signature grammar in §4.1 admits.
type Kind int

const (
	KindAddress Kind = iota
	KindBool
	KindString
	KindBytes // Size == 0 means the dynamic `bytes` type; Size > 0 means bytesN
	KindInt
	KindUint
	KindTuple
	KindArray
)

// Parameter is one node of the type tree C1 builds from signature text.
// Tuple and Array nodes recurse into Components/Elem; everything else is a
// leaf.
type Parameter struct {
	Kind    Kind
	Name    string // parameter name, if the signature gave one
	Indexed bool

	Bits uint16 // for KindInt/KindUint: bit width, 8..256 in steps of 8
	Size uint16 // for KindBytes: byte length, 0 means dynamic `bytes`

	Components []*Parameter // for KindTuple
	Elem       *Parameter   // for KindArray
	ArrayLen   *uint64      // for KindArray: nil means dynamic-length

	// Touched marks that a query compiled against this parameter's Event
	// referenced this field, so it belongs in the generated CTE projection
	// (§4.3.2-§4.3.3 of the query compiler). Parameter trees are re-parsed
	// per compiled query, so this is always query-scoped state, never
	// shared across compilations.
	Touched bool
}

// Select marks this parameter as touched by a compiled query.
func (p *Parameter) Select() { p.Touched = true }

// Selected reports whether any parameter in this subtree was touched.
func (p *Parameter) Selected() bool {
	if p.Touched {
		return true
	}
	for _, c := range p.Components {
		if c.Selected() {
			return true
		}
	}
	return false
}

// IsStatic reports whether the ABI encoding of this parameter has a fixed
// byte length known from its type alone (§4.2).
func (p *Parameter) IsStatic() bool {
	switch p.Kind {
	case KindString:
		return false
	case KindBytes:
		return p.Size > 0
	case KindTuple:
		for _, c := range p.Components {
			if !c.IsStatic() {
				return false
			}
		}
		return true
	case KindArray:
		return p.ArrayLen != nil && p.Elem.IsStatic()
	default:
		return true
	}
}

// HeadSize is the number of bytes this parameter occupies in the head
// region of its enclosing frame: 32 for any dynamic type (an offset word)
// or any elementary/static-leaf type, and the sum of children's head sizes
// for a static tuple or static fixed-size array (§4.2, §4.3.3).
func (p *Parameter) HeadSize() uint64 {
	if !p.IsStatic() {
		return 32
	}
	switch p.Kind {
	case KindTuple:
		var total uint64
		for _, c := range p.Components {
			total += c.HeadSize()
		}
		return total
	case KindArray:
		return *p.ArrayLen * p.Elem.HeadSize()
	default:
		return 32
	}
}

// Canonical renders the bare type descriptor with no names and no
// `indexed` markers - the form fed into the selector hash.
func (p *Parameter) Canonical() string {
	switch p.Kind {
	case KindAddress:
		return "address"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindBytes:
		if p.Size == 0 {
			return "bytes"
		}
		return fmt.Sprintf("bytes%d", p.Size)
	case KindInt:
		return fmt.Sprintf("int%d", p.Bits)
	case KindUint:
		return fmt.Sprintf("uint%d", p.Bits)
	case KindTuple:
		parts := make([]string, len(p.Components))
		for i, c := range p.Components {
			parts[i] = c.Canonical()
		}
		return "(" + strings.Join(parts, ",") + ")"
	case KindArray:
		if p.ArrayLen == nil {
			return p.Elem.Canonical() + "[]"
		}
		return p.Elem.Canonical() + "[" + strconv.FormatUint(*p.ArrayLen, 10) + "]"
	default:
		return "<unknown>"
	}
}

// Named renders the same tree with parameter names and `indexed` markers,
// for error messages and debug output - never used for the selector.
func (p *Parameter) Named() string {
	s := p.Canonical()
	if p.Indexed {
		s += " indexed"
	}
	if p.Name != "" {
		s += " " + p.Name
	}
	return s
}

// Event is the top-level tree produced by parsing one signature: a name
// plus its parameter list.
type Event struct {
	Name   string
	Params []*Parameter
}

// CanonicalSignature renders `Name(T1,T2,...)` with no whitespace - the
// exact bytes hashed for the selector.
func (e *Event) CanonicalSignature() string {
	parts := make([]string, len(e.Params))
	for i, p := range e.Params {
		parts[i] = p.Canonical()
	}
	return e.Name + "(" + strings.Join(parts, ",") + ")"
}

// NamedSignature renders the signature with parameter names/indexed
// markers, used in diagnostics.
func (e *Event) NamedSignature() string {
	parts := make([]string, len(e.Params))
	for i, p := range e.Params {
		parts[i] = p.Named()
	}
	return e.Name + "(" + strings.Join(parts, ", ") + ")"
}

// IndexedParams returns the subset of Params marked `indexed`, in
// declaration order - these consume topic slots 2..N (slot 1 is the
// selector).
func (e *Event) IndexedParams() []*Parameter {
	var out []*Parameter
	for _, p := range e.Params {
		if p.Indexed {
			out = append(out, p)
		}
	}
	return out
}

// AnySelected reports whether the query touched any of this event's
// parameters.
func (e *Event) AnySelected() bool {
	for _, p := range e.Params {
		if p.Selected() {
			return true
		}
	}
	return false
}

// NonIndexedParams returns the subset of Params NOT marked `indexed`, in
// declaration order - these make up the log's `data` payload.
func (e *Event) NonIndexedParams() []*Parameter {
	var out []*Parameter
	for _, p := range e.Params {
		if !p.Indexed {
			out = append(out, p)
		}
	}
	return out
}
