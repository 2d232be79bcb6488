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
	"strings"

	"github.com/evmlogs/indexer/internal/apperr"
	"github.com/evmlogs/indexer/pkg/abiparse"
)

// touchRelation binds a FROM-clause table name (optionally aliased) to one
// of the known relations (§4.3.1 "one or more unqualified table names").
func (c *Compiler) touchRelation(name string, alias string) error {
	for _, r := range c.relations {
		if r.named(name) {
			r.tableName = name
			if alias != "" {
				r.addAlias(alias)
			}
			return nil
		}
	}
	known := make([]string, 0, len(c.relations))
	for _, r := range c.relations {
		known = append(known, r.tableName)
	}
	return apperr.User("you are attempting to query '%s' but it isn't defined. Possible tables to query are: %s", name, strings.Join(known, ", "))
}

// touchMetadata attaches a bare or compound metadata reference to the
// relation it qualifies, or to the first relation when unqualified
// (§4.3.2 rule 2, preferring the bare `logs` relation).
func (c *Compiler) touchMetadata(path []string) {
	if len(path) == 0 {
		return
	}
	field := path[len(path)-1]
	if !isMetadataColumn(field) {
		return
	}
	if len(path) > 1 {
		qualifier := path[0]
		for _, r := range c.relations {
			if r.named(qualifier) {
				r.metadata[field] = true
				return
			}
		}
		return
	}
	// Unqualified: prefer the bare `logs` relation if present.
	for _, r := range c.relations {
		if r.event == nil {
			r.metadata[field] = true
			return
		}
	}
	if len(c.relations) > 0 {
		c.relations[0].metadata[field] = true
	}
}

// touchParam resolves a (possibly compound) identifier path to an ABI
// parameter, marking it touched, per §4.3.2 rule 1 (compound) and rule 2
// (plain, first relation iteration order wins).
func (c *Compiler) touchParam(path []string) *abiparse.Parameter {
	if len(path) == 0 {
		return nil
	}
	if len(path) > 1 {
		qualifier := path[0]
		for _, r := range c.relations {
			if r.named(qualifier) {
				return r.field(path[1:])
			}
		}
	}
	for _, r := range c.relations {
		if p := r.field(path); p != nil {
			return p
		}
	}
	return nil
}
