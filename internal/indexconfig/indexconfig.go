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

// Package indexconfig declares every configuration section this module
// reads, following the teacher's internal/signerconfig pattern: root keys
// are registered up front, viper.SetDefault fills in process-wide scalars,
// and each subsystem gets its own config.Section to read from.
package indexconfig

import (
	"github.com/evmlogs/indexer/pkg/rpcclient"
	"github.com/hyperledger/firefly-common/pkg/config"
	"github.com/hyperledger/firefly-common/pkg/httpserver"
	"github.com/spf13/viper"
)

var ffc = config.AddRootKey

var (
	// SyncPollInterval is how often the supervisor (C6) reconciles running
	// workers against the `config` table.
	SyncPollInterval = ffc("sync.pollInterval")
	// SyncMaxReorgAttempts is registered with a default of 5000. The sync
	// worker does not read it: next() is bounded by chainsync's own fixed
	// maxReorgAttempts constant (also 5000).
	SyncMaxReorgAttempts = ffc("sync.maxReorgAttempts")
	// AccountLimitsRefreshInterval is the C7 admission-limiter cache tick.
	AccountLimitsRefreshInterval = ffc("limits.refreshInterval")
	// StorageURL is the Postgres DSN of the single pgx pool shared by the
	// writer (C5) and the read-only query transactions (C7).
	StorageURL = ffc("storage.url")
	// StorageMaxConns bounds the shared pgx pool size.
	StorageMaxConns = ffc("storage.maxConns")
	// AdmissionGlobalLimit is the process-wide concurrent-stream ceiling
	// the C7 admission gate enforces.
	AdmissionGlobalLimit = ffc("limits.global")
	// AdmissionPlanLimit is the default per-plan concurrent-stream ceiling.
	AdmissionPlanLimit = ffc("limits.perPlan")
	// AdmissionIPLimit is the default per-IP concurrent-stream ceiling.
	AdmissionIPLimit = ffc("limits.perIP")
	// DefaultStatementTimeout bounds a query's Postgres statement_timeout
	// when the caller's plan has no row in the `account_limits` table.
	DefaultStatementTimeout = ffc("limits.defaultStatementTimeout")
)

var ServerConfig config.Section
var CorsConfig config.Section
var BackendConfig config.Section
var StorageConfig config.Section

func setDefaults() {
	viper.SetDefault(string(SyncPollInterval), "5s")
	viper.SetDefault(string(SyncMaxReorgAttempts), 5000)
	viper.SetDefault(string(AccountLimitsRefreshInterval), "10s")
	viper.SetDefault(string(StorageMaxConns), 20)
	viper.SetDefault(string(AdmissionGlobalLimit), 256)
	viper.SetDefault(string(AdmissionPlanLimit), 32)
	viper.SetDefault(string(AdmissionIPLimit), 8)
	viper.SetDefault(string(DefaultStatementTimeout), "10s")
}

func Reset() {
	config.RootConfigReset(setDefaults)

	ServerConfig = config.RootSection("server")
	httpserver.InitHTTPConfig(ServerConfig, 8080)

	CorsConfig = config.RootSection("cors")
	httpserver.InitCORSConfig(CorsConfig)

	BackendConfig = config.RootSection("backend")
	rpcclient.InitConfig(BackendConfig)

	StorageConfig = config.RootSection("storage")
}
