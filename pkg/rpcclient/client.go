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

// Package rpcclient is the JSON-RPC transport the chain sync worker (C5)
// uses to call a node's `eth_getBlockByNumber`/`eth_getLogs` methods, single
// or batched in one HTTP round trip. Adapted from the teacher's
// pkg/rpcbackend, which only ever sent one request per HTTP call.
package rpcclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/evmlogs/indexer/internal/indexmsgs"
	"github.com/go-resty/resty/v2"
	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/sirupsen/logrus"
)

type RPCCode int64

const (
	RPCCodeParseError     RPCCode = -32700
	RPCCodeInvalidRequest RPCCode = -32600
	RPCCodeInternalError  RPCCode = -32603
)

// Client performs JSON-RPC communication with an EVM node.
type Client interface {
	CallRPC(ctx context.Context, result interface{}, method string, params ...interface{}) error
	SyncRequest(ctx context.Context, req *Request) (*Response, error)
	// BatchCall issues every request in reqs as a single JSON-RPC batch HTTP
	// call, returning responses in the same order. Used by download() to
	// fetch a block header and its logs in one round trip (§4.4).
	BatchCall(ctx context.Context, reqs []*Request) ([]*Response, error)
}

func New(client *resty.Client) Client {
	return &rpcClient{client: client}
}

type rpcClient struct {
	client         *resty.Client
	requestCounter int64
}

type Request struct {
	JSONRpc string             `json:"jsonrpc"`
	ID      *fftypes.JSONAny   `json:"id"`
	Method  string             `json:"method"`
	Params  []*fftypes.JSONAny `json:"params,omitempty"`
}

type RPCError struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    fftypes.JSONAny `json:"data,omitempty"`
}

type Response struct {
	JSONRpc string           `json:"jsonrpc"`
	ID      *fftypes.JSONAny `json:"id"`
	Result  *fftypes.JSONAny `json:"result,omitempty"`
	Error   *RPCError        `json:"error,omitempty"`
}

func (r *Response) Message() string {
	if r.Error != nil {
		return r.Error.Message
	}
	return ""
}

func NewRequest(method string, params ...interface{}) (*Request, error) {
	req := &Request{
		JSONRpc: "2.0",
		Method:  method,
		Params:  make([]*fftypes.JSONAny, len(params)),
	}
	for i, param := range params {
		b, err := json.Marshal(param)
		if err != nil {
			return nil, i18n.NewError(context.Background(), indexmsgs.MsgInvalidParam, i, method, err)
		}
		req.Params[i] = fftypes.JSONAnyPtrBytes(b)
	}
	return req, nil
}

func (rc *rpcClient) allocateRequestID(req *Request) string {
	reqID := fmt.Sprintf(`%.9d`, atomic.AddInt64(&rc.requestCounter, 1))
	req.ID = fftypes.JSONAnyPtr(`"` + reqID + `"`)
	return reqID
}

func (rc *rpcClient) CallRPC(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	req, err := NewRequest(method, params...)
	if err != nil {
		return err
	}
	res, err := rc.SyncRequest(ctx, req)
	if err != nil {
		return err
	}
	return json.Unmarshal(res.Result.Bytes(), &result)
}

// SyncRequest sends a single RPC request and waits for its response.
func (rc *rpcClient) SyncRequest(ctx context.Context, rpcReq *Request) (*Response, error) {
	beReq := *rpcReq
	beReq.JSONRpc = "2.0"
	rpcTraceID := rc.allocateRequestID(&beReq)

	rpcRes := new(Response)
	log.L(ctx).Debugf("RPC[%s] --> %s", rpcTraceID, rpcReq.Method)
	if logrus.IsLevelEnabled(logrus.TraceLevel) {
		jsonInput, _ := json.Marshal(rpcReq)
		log.L(ctx).Tracef("RPC[%s] INPUT: %s", rpcTraceID, jsonInput)
	}

	res, err := rc.client.R().
		SetContext(ctx).
		SetBody(beReq).
		SetResult(rpcRes).
		SetError(rpcRes).
		Post("")

	rpcRes.ID = rpcReq.ID
	if err != nil {
		wrapped := i18n.NewError(ctx, indexmsgs.MsgRPCRequestFailed)
		log.L(ctx).Errorf("RPC[%s] <-- ERROR: %s", rpcTraceID, wrapped)
		return rpcErrorResponse(wrapped, rpcReq.ID, RPCCodeInternalError), wrapped
	}
	if res.IsError() || (rpcRes.Error != nil && rpcRes.Error.Code != 0) {
		log.L(ctx).Errorf("RPC[%s] <-- [%d]: %s", rpcTraceID, res.StatusCode(), rpcRes.Message())
		return rpcRes, fmt.Errorf("%s", rpcRes.Message())
	}
	log.L(ctx).Debugf("RPC[%s] <-- [%d] OK", rpcTraceID, res.StatusCode())
	if rpcRes.Result == nil {
		rpcRes.Result = fftypes.JSONAnyPtr(fftypes.NullString)
	}
	return rpcRes, nil
}

// BatchCall posts every request as one JSON array body and demultiplexes
// the responses back into request order by matching on ID. The reply must
// be a JSON array with one response per request; a single JSON object in
// reply fails the call.
func (rc *rpcClient) BatchCall(ctx context.Context, reqs []*Request) ([]*Response, error) {
	beReqs := make([]*Request, len(reqs))
	idToIndex := make(map[string]int, len(reqs))
	for i, r := range reqs {
		beReq := *r
		beReq.JSONRpc = "2.0"
		traceID := rc.allocateRequestID(&beReq)
		idToIndex[traceID] = i
		beReqs[i] = &beReq
	}

	var rawResponses []*Response
	res, err := rc.client.R().
		SetContext(ctx).
		SetBody(beReqs).
		SetResult(&rawResponses).
		Post("")
	if err != nil {
		return nil, i18n.NewError(ctx, indexmsgs.MsgRPCRequestFailed)
	}
	if res.IsError() {
		return nil, fmt.Errorf("batch RPC call failed with status %d", res.StatusCode())
	}
	if len(rawResponses) != len(reqs) {
		return nil, i18n.NewError(ctx, indexmsgs.MsgRPCBatchMismatch, len(rawResponses), len(reqs))
	}

	out := make([]*Response, len(reqs))
	for _, r := range rawResponses {
		var traceID string
		if r.ID != nil {
			traceID = r.ID.String()
		}
		idx, ok := idToIndex[trimJSONQuotes(traceID)]
		if !ok {
			return nil, i18n.NewError(ctx, indexmsgs.MsgRPCBatchMismatch, len(rawResponses), len(reqs))
		}
		r.ID = reqs[idx].ID
		out[idx] = r
	}
	return out, nil
}

func trimJSONQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func rpcErrorResponse(err error, id *fftypes.JSONAny, code RPCCode) *Response {
	return &Response{
		JSONRpc: "2.0",
		ID:      id,
		Error: &RPCError{
			Code:    int64(code),
			Message: err.Error(),
		},
	}
}
