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
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/evmlogs/indexer/pkg/abiparse"
)

// metadataColumns are the raw `logs` table columns every relation may
// project regardless of whether it carries an event (§4.3.2).
var metadataColumns = []string{"address", "block_num", "chain", "log_idx", "tx_hash", "topics", "data"}

func isMetadataColumn(name string) bool {
	for _, m := range metadataColumns {
		if strings.EqualFold(m, name) {
			return true
		}
	}
	return false
}

// relation is one FROM-clause entry: either the bare `logs` table (no
// event) or an event table. A single event may be referenced more than
// once under different aliases (self-joins), all sharing one relation
// entry, matching the reference UserQuery model.
type relation struct {
	event      *abiparse.Event // nil for the bare `logs` relation
	tableName  string
	aliases    map[string]bool
	metadata   map[string]bool // touched metadata column names, original case
}

func newBareRelation() *relation {
	return &relation{tableName: "logs", aliases: map[string]bool{}, metadata: map[string]bool{}}
}

func newEventRelation(ev *abiparse.Event) *relation {
	return &relation{event: ev, tableName: ev.Name, aliases: map[string]bool{}, metadata: map[string]bool{}}
}

// named reports whether ident (case-insensitive) refers to this relation,
// either by table name or by a previously-bound alias.
func (r *relation) named(ident string) bool {
	if strings.EqualFold(r.tableName, ident) {
		return true
	}
	return r.aliases[strings.ToLower(ident)]
}

func (r *relation) addAlias(alias string) {
	r.aliases[strings.ToLower(alias)] = true
}

// field resolves a dotted identifier path (already stripped of any table
// qualifier) against this relation's event parameter tree, marking the
// match Touched. Returns nil if this relation has no event, the path starts
// with a metadata column name, or nothing matches.
func (r *relation) field(path []string) *abiparse.Parameter {
	if len(path) == 0 || r.event == nil {
		return nil
	}
	if isMetadataColumn(path[0]) {
		return nil
	}
	return findParam(r.event.Params, path)
}

// findParam matches the first segment of a dotted path (case-insensitively)
// against the names of the top-level parameters in params, marks the match
// Touched and returns it. Later segments are not resolved against tuple
// Components; a tuple is projected as one CTE column (§4.3.2, §4.3.3
// data-projection table: tuples are decoded whole via abi2json).
func findParam(params []*abiparse.Parameter, path []string) *abiparse.Parameter {
	if len(path) == 0 {
		return nil
	}
	head := path[0]
	for _, p := range params {
		if strings.EqualFold(p.Name, head) {
			p.Select()
			return p
		}
	}
	return nil
}

// hasSelection reports whether this relation should produce a CTE at all
// (§4.3.6: "Relations with no touched fields are omitted").
func (r *relation) hasSelection() bool {
	if len(r.metadata) > 0 {
		return true
	}
	return r.event != nil && r.event.AnySelected()
}

// dataProjection renders the §4.3.3 data-projection expression for a
// non-indexed field at the given running head offset.
func dataProjection(p *abiparse.Parameter, headOffset uint64) string {
	switch {
	case p.Kind == abiparse.KindString || (p.Kind == abiparse.KindBytes && p.Size == 0):
		return fmt.Sprintf("abi_bytes(abi_dynamic(data, %d))", headOffset)
	case !p.IsStatic():
		return fmt.Sprintf("abi_dynamic(data, %d)", headOffset)
	default:
		return fmt.Sprintf("abi_fixed_bytes(data, %d, %d)", headOffset, p.HeadSize())
	}
}

// toSQL renders the relation's non-materialized CTE body (§4.3.3).
func (r *relation) toSQL(chain uint64, fromBlock *uint64) string {
	var selectList []string

	names := make([]string, 0, len(r.metadata))
	for name := range r.metadata {
		names = append(names, name)
	}
	sort.Strings(names)
	selectList = append(selectList, names...)

	if r.event != nil {
		for k, p := range r.event.IndexedParams() {
			// topics[1] is the selector; indexed params start at slot 2,
			// numbered by declaration position so an untouched param in
			// between doesn't shift the slots of the ones that follow it.
			if p.Touched {
				selectList = append(selectList, fmt.Sprintf("topics[%d] AS %s", k+2, quoteIdent(p.Name)))
			}
		}
		var headOffset uint64
		for _, p := range r.event.NonIndexedParams() {
			if p.Touched {
				selectList = append(selectList, fmt.Sprintf("%s AS %s", dataProjection(p, headOffset), quoteIdent(p.Name)))
			}
			headOffset += p.HeadSize()
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s AS NOT MATERIALIZED (", quoteIdent(r.tableName))
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(selectList, ", "))
	fmt.Fprintf(&b, " FROM logs WHERE chain = %d", chain)
	if r.event != nil {
		sel := r.event.Selector()
		fmt.Fprintf(&b, " AND topics[1] = '\\x%s'", hex.EncodeToString(sel[:]))
	}
	if fromBlock != nil {
		fmt.Fprintf(&b, " AND block_num >= %d", *fromBlock)
	}
	b.WriteString(")")
	return b.String()
}

// quoteIdent double-quotes an identifier only when it isn't already a
// plain lowercase snake_case word, to keep generated SQL readable.
func quoteIdent(name string) string {
	plain := true
	for i, r := range name {
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r == '_' || (i > 0 && r >= '0' && r <= '9') {
			continue
		}
		plain = false
		break
	}
	if plain && name != "" {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
