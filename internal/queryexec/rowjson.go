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

package queryexec

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/evmlogs/indexer/internal/apperr"
	"github.com/evmlogs/indexer/internal/indexmsgs"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/jackc/pgx/v5/pgtype"
)

// Column describes one projected column of a compiled query's result set,
// carried alongside the rows so a caller can render a table without
// re-inspecting Postgres catalog metadata (§4.6 step 6).
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// valueToJSON maps one decoded column value to its wire JSON representation
// by Postgres OID, following §4.6 step 5's type-tag table exactly. NULL
// becomes `null` for every type except bool, which maps to `false` - the
// surviving behavior documented as an open question in §9.
func valueToJSON(ctx context.Context, oid uint32, name string, v interface{}) (interface{}, error) {
	if v == nil {
		if oid == pgtype.BoolOID {
			return false, nil
		}
		return nil, nil
	}

	switch oid {
	case pgtype.BoolOID:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case pgtype.NumericOID:
		return numericToDecimalString(v)
	case pgtype.Int2OID:
		return asInt64(v)
	case pgtype.Int4OID:
		return asInt64(v)
	case pgtype.Int8OID:
		return asInt64(v)
	case pgtype.ByteaOID:
		if b, ok := v.([]byte); ok {
			return "0x" + hex.EncodeToString(b), nil
		}
	case pgtype.TextOID, pgtype.VarcharOID, pgtype.BPCharOID:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case pgtype.DateOID:
		return timeLikeToString(v, "2006-01-02")
	case pgtype.TimestamptzOID, pgtype.TimestampOID:
		return timeLikeToString(v, time.RFC3339)
	case pgtype.ByteaArrayOID:
		return byteaArrayToHexStrings(v)
	case pgtype.JSONOID, pgtype.JSONBOID:
		return v, nil
	}
	return nil, apperr.User("%s", i18n.NewError(ctx, indexmsgs.MsgUnknownColumnOID, oid, name))
}

// numericToDecimalString renders a decoded NUMERIC value (256-bit signed
// ABI integers land here) as a base-10 string rather than a JSON number, so
// values beyond float64/int64 precision round-trip exactly.
func numericToDecimalString(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case pgtype.Numeric:
		if !n.Valid {
			return nil, nil
		}
		f, err := n.Value()
		if err != nil {
			return nil, apperr.Server(err, "failed rendering numeric column")
		}
		return fmt.Sprintf("%v", f), nil
	case string:
		return n, nil
	case fmt.Stringer:
		return n.String(), nil
	default:
		return fmt.Sprintf("%v", n), nil
	}
}

func asInt64(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	default:
		return nil, apperr.Server(nil, "unexpected integer representation %T", v)
	}
}

func timeLikeToString(v interface{}, layout string) (interface{}, error) {
	switch t := v.(type) {
	case time.Time:
		return t.Format(layout), nil
	case pgtype.Date:
		if !t.Valid {
			return nil, nil
		}
		return t.Time.Format(layout), nil
	case pgtype.Timestamptz:
		if !t.Valid {
			return nil, nil
		}
		return t.Time.Format(layout), nil
	case pgtype.Timestamp:
		if !t.Valid {
			return nil, nil
		}
		return t.Time.Format(layout), nil
	default:
		return nil, apperr.Server(nil, "unexpected time representation %T", v)
	}
}

// pgTypeName renders a human-readable type tag for the §4.6 step 6 column
// descriptor, independent of the decoding performed by valueToJSON.
func pgTypeName(oid uint32) string {
	switch oid {
	case pgtype.BoolOID:
		return "bool"
	case pgtype.NumericOID:
		return "numeric"
	case pgtype.Int2OID:
		return "int2"
	case pgtype.Int4OID:
		return "int4"
	case pgtype.Int8OID:
		return "int8"
	case pgtype.ByteaOID:
		return "bytea"
	case pgtype.TextOID:
		return "text"
	case pgtype.VarcharOID:
		return "varchar"
	case pgtype.BPCharOID:
		return "bpchar"
	case pgtype.DateOID:
		return "date"
	case pgtype.TimestamptzOID:
		return "timestamptz"
	case pgtype.TimestampOID:
		return "timestamp"
	case pgtype.ByteaArrayOID:
		return "bytea[]"
	case pgtype.JSONOID:
		return "json"
	case pgtype.JSONBOID:
		return "jsonb"
	default:
		return fmt.Sprintf("oid:%d", oid)
	}
}

// byteaArrayToHexStrings implements §4.6 step 5's bytea-array case: the
// `topics` column is the one array type read directly (every other decoded
// array goes through an abi_*_array scalar function into json/jsonb).
func byteaArrayToHexStrings(v interface{}) (interface{}, error) {
	arr, ok := v.([][]byte)
	if !ok {
		return nil, apperr.Server(nil, "unexpected bytea[] representation %T", v)
	}
	out := make([]string, len(arr))
	for i, b := range arr {
		out[i] = "0x" + hex.EncodeToString(b)
	}
	return out, nil
}
