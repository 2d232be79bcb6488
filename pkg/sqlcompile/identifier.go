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

import pgquery "github.com/pganalyze/pg_query_go/v2"

// identParts collects the dotted-name path out of a column reference
// expression, the way the reference ExprExt::collect walks
// Identifier/CompoundIdentifier. Returns nil for anything else (literals,
// function calls, subscripts on non-identifiers, ...).
func identParts(n *pgquery.Node) []string {
	if n == nil {
		return nil
	}
	if ref := n.GetColumnRef(); ref != nil {
		var parts []string
		for _, f := range ref.Fields {
			if s := f.GetString_(); s != nil {
				parts = append(parts, s.Str)
			} else {
				// A_Star or similar - not a plain identifier path.
				return nil
			}
		}
		return parts
	}
	if ind := n.GetAIndices(); ind != nil {
		return nil
	}
	if sub := n.GetAIndirection(); sub != nil {
		return identParts(sub.Arg)
	}
	return nil
}

// isWildcardRef reports whether n is a ColumnRef containing a `*` - either
// a bare `*` or a qualified `t.*` - which identParts otherwise silently
// drops to a nil path indistinguishable from "not an identifier at all".
func isWildcardRef(n *pgquery.Node) bool {
	ref := n.GetColumnRef()
	if ref == nil {
		return false
	}
	for _, f := range ref.Fields {
		if f.GetAStar() != nil {
			return true
		}
	}
	return false
}

// lastIdent returns the final segment of an identifier path, used both as
// the implicit projection alias and to recognize metadata columns like
// `address`/`tx_hash`/`topics` referenced bare on the LHS of a comparison.
func lastIdent(n *pgquery.Node) string {
	parts := identParts(n)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}
