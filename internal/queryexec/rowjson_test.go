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
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueToJSONBoolNullMapsToFalse(t *testing.T) {
	v, err := valueToJSON(context.Background(), pgtype.BoolOID, "flag", nil)
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestValueToJSONBoolTrue(t *testing.T) {
	v, err := valueToJSON(context.Background(), pgtype.BoolOID, "flag", true)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestValueToJSONOtherNullMapsToNull(t *testing.T) {
	v, err := valueToJSON(context.Background(), pgtype.TextOID, "name", nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestValueToJSONBytea(t *testing.T) {
	v, err := valueToJSON(context.Background(), pgtype.ByteaOID, "data", []byte{0xde, 0xad, 0xbe, 0xef})
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", v)
}

func TestValueToJSONByteaArray(t *testing.T) {
	v, err := valueToJSON(context.Background(), pgtype.ByteaArrayOID, "topics", [][]byte{{0x01}, {0xff}})
	require.NoError(t, err)
	assert.Equal(t, []string{"0x01", "0xff"}, v)
}

func TestValueToJSONInt8(t *testing.T) {
	v, err := valueToJSON(context.Background(), pgtype.Int8OID, "n", int64(42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestValueToJSONText(t *testing.T) {
	v, err := valueToJSON(context.Background(), pgtype.TextOID, "s", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestValueToJSONUnknownOIDErrors(t *testing.T) {
	_, err := valueToJSON(context.Background(), 999999, "mystery", "x")
	require.Error(t, err)
}

func TestPgTypeNameKnownAndUnknown(t *testing.T) {
	assert.Equal(t, "bool", pgTypeName(pgtype.BoolOID))
	assert.Equal(t, "bytea[]", pgTypeName(pgtype.ByteaArrayOID))
	assert.Contains(t, pgTypeName(999999), "oid:")
}
