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

// Package sqlcompile validates and rewrites a user-supplied SQL query
// against a set of event signatures, emitting per-event decoding CTEs plus
// a rewritten version of the query that performs last-mile ABI decoding.
// Grounded on original_source/be/src/query.rs's UserQuery walk over the
// sqlparser-rs AST, translated onto github.com/pganalyze/pg_query_go/v2's
// protobuf AST (which mirrors PostgreSQL's own parsenodes.h).
package sqlcompile

import (
	"context"
	"strings"

	"github.com/evmlogs/indexer/internal/apperr"
	pgquery "github.com/pganalyze/pg_query_go/v2"
)

// validFuncs is the closed function whitelist of §4.3.1.
var validFuncs = map[string]bool{
	"min": true, "max": true, "sum": true, "count": true,
	"b2i": true, "h2s": true,
	"abi_bool": true, "abi_fixed_bytes": true, "abi_address": true,
	"abi_uint": true, "abi_int": true, "abi_uint_array": true,
	"abi_int_array": true, "abi_fixed_bytes_array": true, "abi_string": true,
}

func unsupported(_ context.Context, construct string) error {
	return apperr.WrapUser(nil, "%s not supported", construct)
}

// validateQuery enforces §4.3.1's top-level shape: no WITH, no locking
// clauses, and walks the select body plus ORDER BY list.
func (c *Compiler) validateQuery(ctx context.Context, q *pgquery.SelectStmt) error {
	if q.WithClause != nil {
		return unsupported(ctx, "with")
	}
	if len(q.LockingClause) > 0 {
		return unsupported(ctx, "for update")
	}
	if q.Op != pgquery.SetOperation_SETOP_NONE {
		return unsupported(ctx, "set operations (UNION/INTERSECT/EXCEPT)")
	}
	if err := c.validateSelect(ctx, q); err != nil {
		return err
	}
	for _, sortNode := range q.SortClause {
		if sc := sortNode.GetSortBy(); sc != nil {
			if err := c.validateExpression(ctx, sc.Node); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Compiler) validateSelect(ctx context.Context, s *pgquery.SelectStmt) error {
	if s.IntoClause != nil {
		return unsupported(ctx, "into")
	}
	if s.HavingClause != nil {
		return unsupported(ctx, "having")
	}
	if len(s.WindowClause) > 0 {
		return unsupported(ctx, "named_window")
	}
	if len(s.FromClause) == 0 {
		return unsupported(ctx, "empty tables")
	}
	for _, from := range s.FromClause {
		if err := c.validateFromItem(ctx, from); err != nil {
			return err
		}
	}
	if s.DistinctClause != nil {
		for _, n := range s.DistinctClause {
			if err := c.validateExpression(ctx, n); err != nil {
				return err
			}
		}
	}
	if s.WhereClause != nil {
		if err := c.validateExpression(ctx, s.WhereClause); err != nil {
			return err
		}
	}
	for _, g := range s.GroupClause {
		if err := c.validateExpression(ctx, g); err != nil {
			return err
		}
	}
	for _, item := range s.TargetList {
		rt := item.GetResTarget()
		if rt == nil {
			return unsupported(ctx, "projection item")
		}
		c.rewriteSelectItem(rt)
		if err := c.validateExpression(ctx, rt.Val); err != nil {
			return err
		}
	}
	return nil
}

// validateFromItem walks one FROM-clause entry: a bare/aliased table, or a
// join tree of such tables (§4.3.1 "FROM"/"Joins allowed").
func (c *Compiler) validateFromItem(ctx context.Context, n *pgquery.Node) error {
	if rv := n.GetRangeVar(); rv != nil {
		return c.validateRangeVar(ctx, rv)
	}
	if j := n.GetJoinExpr(); j != nil {
		switch j.Jointype {
		case pgquery.JoinType_JOIN_INNER, pgquery.JoinType_JOIN_LEFT, pgquery.JoinType_JOIN_RIGHT:
		default:
			return unsupported(ctx, "must be inner, left outer, or right outer join")
		}
		if err := c.validateFromItem(ctx, j.Larg); err != nil {
			return err
		}
		if err := c.validateFromItem(ctx, j.Rarg); err != nil {
			return err
		}
		if j.Quals == nil {
			return unsupported(ctx, "must use ON join constraint")
		}
		return c.validateExpression(ctx, j.Quals)
	}
	return unsupported(ctx, "from item")
}

func (c *Compiler) validateRangeVar(ctx context.Context, rv *pgquery.RangeVar) error {
	if rv.Catalogname != "" || rv.Schemaname != "" {
		return apperr.WrapUser(nil, "table %s has multiple parts; only unqualified table names supported", rv.Relname)
	}
	alias := ""
	if rv.Alias != nil {
		alias = rv.Alias.Aliasname
	}
	return c.touchRelation(rv.Relname, alias)
}

// validateExpression is the §4.3.1 expression-form dispatcher.
func (c *Compiler) validateExpression(ctx context.Context, n *pgquery.Node) error {
	if n == nil {
		return nil
	}
	switch {
	case n.GetColumnRef() != nil:
		if isWildcardRef(n) {
			return unsupported(ctx, "wildcard projection (*)")
		}
		path := identParts(n)
		c.touchMetadata(path)
		c.touchParam(path)
		return nil
	case n.GetAConst() != nil:
		return nil
	case n.GetNullTest() != nil:
		return c.validateExpression(ctx, n.GetNullTest().Arg)
	case n.GetBooleanTest() != nil:
		return c.validateExpression(ctx, n.GetBooleanTest().Arg)
	case n.GetSubLink() != nil:
		sl := n.GetSubLink()
		if sub := sl.Subselect.GetSelectStmt(); sub != nil {
			return c.validateQuery(ctx, sub)
		}
		return nil
	case n.GetRowExpr() != nil:
		for _, a := range n.GetRowExpr().Args {
			if err := c.validateExpression(ctx, a); err != nil {
				return err
			}
		}
		return nil
	case n.GetAExpr() != nil:
		ae := n.GetAExpr()
		op := opName(ae.Name)
		if op == "->" || op == "->>" {
			if err := c.validateExpression(ctx, ae.Lexpr); err != nil {
				return err
			}
			return c.validateExpression(ctx, ae.Rexpr)
		}
		if err := c.rewriteBinaryExpr(ctx, ae); err != nil {
			return err
		}
		if err := c.validateExpression(ctx, ae.Lexpr); err != nil {
			return err
		}
		return c.validateExpression(ctx, ae.Rexpr)
	case n.GetList() != nil:
		for _, item := range n.GetList().Items {
			if err := c.validateExpression(ctx, item); err != nil {
				return err
			}
		}
		return nil
	case n.GetBoolExpr() != nil:
		for _, a := range n.GetBoolExpr().Args {
			if err := c.validateExpression(ctx, a); err != nil {
				return err
			}
		}
		return nil
	case n.GetAIndirection() != nil:
		return c.validateExpression(ctx, n.GetAIndirection().Arg)
	case n.GetSubstring() != nil:
		return c.validateExpression(ctx, n.GetSubstring().Arg)
	case n.GetFuncCall() != nil:
		return c.validateFuncCall(ctx, n.GetFuncCall())
	case n.GetTypeCast() != nil:
		return c.validateExpression(ctx, n.GetTypeCast().Arg)
	case n.GetCaseExpr() != nil:
		ce := n.GetCaseExpr()
		if ce.Arg != nil {
			if err := c.validateExpression(ctx, ce.Arg); err != nil {
				return err
			}
		}
		if ce.Defresult != nil {
			if err := c.validateExpression(ctx, ce.Defresult); err != nil {
				return err
			}
		}
		for _, w := range ce.Args {
			cw := w.GetCaseWhen()
			if cw == nil {
				continue
			}
			if err := c.validateExpression(ctx, cw.Expr); err != nil {
				return err
			}
			if err := c.validateExpression(ctx, cw.Result); err != nil {
				return err
			}
		}
		return nil
	default:
		return unsupported(ctx, "expression")
	}
}

func (c *Compiler) validateFuncCall(ctx context.Context, f *pgquery.FuncCall) error {
	name := strings.ToLower(funcName(f.Funcname))
	if !validFuncs[name] {
		return apperr.WrapUser(nil, "'%s' function not supported", name)
	}
	for _, a := range f.Args {
		if err := c.validateExpression(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func funcName(parts []*pgquery.Node) string {
	if len(parts) == 0 {
		return ""
	}
	last := parts[len(parts)-1]
	if s := last.GetString_(); s != nil {
		return s.Str
	}
	return ""
}

func opName(parts []*pgquery.Node) string {
	if len(parts) == 0 {
		return ""
	}
	if s := parts[0].GetString_(); s != nil {
		return s.Str
	}
	return ""
}
