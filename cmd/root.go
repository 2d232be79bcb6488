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

// Package cmd is the cobra entrypoint, built the way the teacher's
// cmd/ffsigner.go wires config/logging/signal-handling before starting its
// server: here it starts both the chain sync supervisor (C5/C6) and the
// query gateway HTTP server (C7) side by side against one shared store.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/evmlogs/indexer/internal/broadcast"
	"github.com/evmlogs/indexer/internal/chainsync"
	"github.com/evmlogs/indexer/internal/httpapi"
	"github.com/evmlogs/indexer/internal/indexconfig"
	"github.com/evmlogs/indexer/internal/limiter"
	"github.com/evmlogs/indexer/internal/queryexec"
	"github.com/evmlogs/indexer/internal/store"
	"github.com/evmlogs/indexer/pkg/rpcclient"
	"github.com/hyperledger/firefly-common/pkg/config"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var sigs = make(chan os.Signal, 1)

var rootCmd = &cobra.Command{
	Use:   "evmlogs-indexer",
	Short: "EVM event-log indexer and SQL query gateway",
	Long:  ``,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

var cfgFile string

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "f", "", "config file")
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	indexconfig.Reset()
}

func run() error {

	initConfig()
	err := config.ReadConfig("evmlogs-indexer", cfgFile)

	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()
	ctx = log.WithLogger(ctx, logrus.WithField("pid", fmt.Sprintf("%d", os.Getpid())))
	ctx = log.WithLogger(ctx, logrus.WithField("prefix", "evmlogs-indexer"))

	config.SetupLogging(ctx)

	if err != nil {
		cancelCtx()
		return i18n.WrapError(ctx, err, i18n.MsgConfigFailed)
	}

	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.L(ctx).Infof("Shutting down due to %s", sig.String())
		cancelCtx()
	}()

	st, err := store.Connect(ctx, config.GetString(indexconfig.StorageURL), int32(config.GetInt(indexconfig.StorageMaxConns)))
	if err != nil {
		return err
	}
	defer st.Close()

	bc := broadcast.New()
	defer bc.Close()

	backendOpts := rpcclient.ReadConfig(indexconfig.BackendConfig)

	supervisor := chainsync.NewSupervisor(st, bc)
	go supervisor.Run(ctx, config.GetDuration(indexconfig.SyncPollInterval), func(buildCtx context.Context, cfg store.RemoteConfig) (*chainsync.Worker, error) {
		return chainsync.BuildWorker(buildCtx, st, bc, cfg, backendOpts.RequestTimeout)
	})

	limitsCache := limiter.NewCache(st)
	go limitsCache.Run(ctx, config.GetDuration(indexconfig.AccountLimitsRefreshInterval))

	gate := limiter.NewGate(
		config.GetInt64(indexconfig.AdmissionGlobalLimit),
		config.GetInt64(indexconfig.AdmissionPlanLimit),
		config.GetInt64(indexconfig.AdmissionIPLimit),
	)

	executor := queryexec.New(st)

	server, err := httpapi.NewServer(ctx, httpapi.Config{
		Executor:                executor,
		Gate:                    gate,
		LimitsCache:             limitsCache,
		Broadcast:               bc,
		DefaultStatementTimeout: config.GetDuration(indexconfig.DefaultStatementTimeout),
	})
	if err != nil {
		return err
	}
	return runServer(server)
}

func runServer(server httpapi.Server) error {
	err := server.Start()
	if err != nil {
		return err
	}
	return server.WaitStop()
}
