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

// Package httpapi is the HTTP surface of §6: a thin gorilla/mux router
// exposing the one-shot and SSE query endpoints, built the way the
// teacher's internal/rpcserver/server.go builds its single-route server on
// top of firefly-common's httpserver.NewHTTPServer.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/evmlogs/indexer/internal/broadcast"
	"github.com/evmlogs/indexer/internal/indexconfig"
	"github.com/evmlogs/indexer/internal/limiter"
	"github.com/evmlogs/indexer/internal/queryexec"
	"github.com/gorilla/mux"
	"github.com/hyperledger/firefly-common/pkg/httpserver"
)

// Server is the lifecycle interface the cmd entrypoint drives, matching
// the teacher's rpcServer shape.
type Server interface {
	Start() error
	Stop()
	WaitStop() error
}

// Config bundles everything the HTTP surface needs; AccessControl may be
// nil, in which case OpenAccessControl is used.
type Config struct {
	Executor          *queryexec.Executor
	Gate              *limiter.Gate
	LimitsCache       *limiter.Cache
	Broadcast         *broadcast.Channel
	AccessControl     AccessControl
	DefaultStatementTimeout time.Duration
}

func NewServer(ctx context.Context, cfg Config) (Server, error) {
	if cfg.AccessControl == nil {
		cfg.AccessControl = OpenAccessControl{}
	}
	s := &server{
		cfg:       cfg,
		apiServerDone: make(chan error),
	}
	s.ctx, s.cancelCtx = context.WithCancel(ctx)

	h := &handlers{cfg: cfg}
	var err error
	s.apiServer, err = httpserver.NewHTTPServer(ctx, "server", router(h), s.apiServerDone, indexconfig.ServerConfig)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type server struct {
	ctx       context.Context
	cancelCtx func()

	cfg Config

	started       bool
	apiServer     httpserver.HTTPServer
	apiServerDone chan error
}

func router(h *handlers) *mux.Router {
	r := mux.NewRouter()
	r.Path("/api/query").Methods(http.MethodPost).HandlerFunc(h.handleOneShot)
	r.Path("/api/query/stream").Methods(http.MethodPost).HandlerFunc(h.handleStream)
	return r
}

func (s *server) Start() error {
	go s.apiServer.ServeHTTP(s.ctx)
	s.started = true
	return nil
}

func (s *server) Stop() {
	s.cancelCtx()
}

func (s *server) WaitStop() (err error) {
	if s.started {
		s.started = false
		err = <-s.apiServerDone
	}
	return err
}
