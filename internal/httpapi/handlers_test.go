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

package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/evmlogs/indexer/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeWireRequestsSingleObject(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query":"select * from logs"}`))
	wire, err := decodeWireRequests(req)
	require.NoError(t, err)
	require.Len(t, wire, 1)
	assert.Equal(t, "select * from logs", wire[0].Query)
}

func TestDecodeWireRequestsArray(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`[{"query":"a"},{"query":"b"}]`))
	wire, err := decodeWireRequests(req)
	require.NoError(t, err)
	require.Len(t, wire, 2)
	assert.Equal(t, "a", wire[0].Query)
	assert.Equal(t, "b", wire[1].Query)
}

func TestDecodeWireRequestsInvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`not json`))
	_, err := decodeWireRequests(req)
	assert.Error(t, err)
}

func TestHeaderChainFromQueryParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/query?chain=42", nil)
	chain, ok := headerChain(req)
	require.True(t, ok)
	assert.Equal(t, uint64(42), chain)
}

func TestHeaderChainFromHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/query", nil)
	req.Header.Set("Chain", "7")
	chain, ok := headerChain(req)
	require.True(t, ok)
	assert.Equal(t, uint64(7), chain)
}

func TestHeaderChainMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/query", nil)
	_, ok := headerChain(req)
	assert.False(t, ok)
}

func TestBuildCursorAndRequestsUsesDefaultChain(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/query?chain=1", nil)
	cur, reqs, err := buildCursorAndRequests(req, []wireRequest{{Query: "select 1"}})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, uint64(1), reqs[0].Chain)
	assert.True(t, cur.Contains(1))
}

func TestBuildCursorAndRequestsPerItemChainOverridesDefault(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/query?chain=1", nil)
	chain2 := uint64(2)
	cur, reqs, err := buildCursorAndRequests(req, []wireRequest{{Query: "a", Chain: &chain2}})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), reqs[0].Chain)
	assert.True(t, cur.Contains(2))
	assert.False(t, cur.Contains(1))
}

func TestBuildCursorAndRequestsMergesPerItemCursor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/query", nil)
	chain1 := uint64(1)
	chain2 := uint64(2)
	cur, _, err := buildCursorAndRequests(req, []wireRequest{
		{Query: "a", Chain: &chain1, Cursor: "1-100"},
		{Query: "b", Chain: &chain2, Cursor: "2-200"},
	})
	require.NoError(t, err)
	h1, ok := cur.BlockHeight(1)
	require.True(t, ok)
	assert.Equal(t, uint64(100), h1)
	h2, ok := cur.BlockHeight(2)
	require.True(t, ok)
	assert.Equal(t, uint64(200), h2)
}

func TestBuildCursorAndRequestsRequiresAChain(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/query", nil)
	_, _, err := buildCursorAndRequests(req, []wireRequest{{Query: "select 1"}})
	assert.Error(t, err)
}

func TestWriteErrorMapsUserErrorToBadRequest(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, apperr.User("bad input"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/query", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.5")
	assert.Equal(t, "203.0.113.5", clientIP(req))
}

func TestClientIPFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/query", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1:1234", clientIP(req))
}
