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
	"context"
	"sort"
	"strings"

	"github.com/evmlogs/indexer/internal/apperr"
	"github.com/evmlogs/indexer/pkg/abiparse"
	pgquery "github.com/pganalyze/pg_query_go/v2"
)

// Compiler holds the set of known relations (the bare `logs` table plus
// one per distinct event signature) for a single compilation.
type Compiler struct {
	relations []*relation
}

// newCompiler parses every event signature up front, the way
// UserQuery::new does, skipping blank entries.
func newCompiler(ctx context.Context, eventSigs []string) (*Compiler, error) {
	c := &Compiler{relations: []*relation{newBareRelation()}}
	for _, sig := range eventSigs {
		sig = strings.TrimSpace(sig)
		if sig == "" {
			continue
		}
		ev, err := abiparse.ParseEventSignature(ctx, sig)
		if err != nil {
			return nil, apperr.WrapUser(err, "unable to parse event signature: %s", sig)
		}
		c.relations = append(c.relations, newEventRelation(ev))
	}
	return c, nil
}

// Compile validates and rewrites userQuery against eventSigs, returning the
// final compiled SQL (§4.3.6): the per-event decoding CTEs followed by the
// rewritten user query. chain scopes every CTE to one chain id; from, when
// non-nil, adds the cursor's `block_num >=` floor to every CTE.
func Compile(ctx context.Context, chain uint64, from *uint64, userQuery string, eventSigs []string) (string, error) {
	c, err := newCompiler(ctx, eventSigs)
	if err != nil {
		return "", err
	}

	result, err := pgquery.Parse(userQuery)
	if err != nil {
		return "", apperr.WrapUser(err, "unable to parse query")
	}
	if len(result.Stmts) != 1 {
		return "", apperr.User("query must be exactly one SQL statement")
	}
	sel := result.Stmts[0].Stmt.GetSelectStmt()
	if sel == nil {
		return "", apperr.User("only SELECT queries are supported")
	}

	if err := c.validateQuery(ctx, sel); err != nil {
		return "", err
	}

	rewritten, err := pgquery.Deparse(result)
	if err != nil {
		return "", apperr.Server(err, "failed to render compiled query")
	}

	ctes := c.activeCTEs(chain, from)
	if len(ctes) == 0 {
		return "", apperr.User("query does not select any field from `logs` or a known event")
	}
	return "WITH " + strings.Join(ctes, ", ") + " " + rewritten, nil
}

// activeCTEs renders every relation with at least one touched field,
// sorted by table name the way UserQuery::relations() does.
func (c *Compiler) activeCTEs(chain uint64, from *uint64) []string {
	active := make([]*relation, 0, len(c.relations))
	for _, r := range c.relations {
		if r.hasSelection() {
			active = append(active, r)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].tableName < active[j].tableName })

	out := make([]string, len(active))
	for i, r := range active {
		out[i] = r.toSQL(chain, from)
	}
	return out
}
