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

package rpcclient

import (
	"time"

	"github.com/hyperledger/firefly-common/pkg/config"
)

const (
	ConfigURL            = "url"
	ConfigRequestTimeout = "requestTimeout"
)

const (
	DefaultRequestTimeout = "30s"
)

type Options struct {
	URL            string
	RequestTimeout time.Duration
}

// InitConfig registers the keys the backend JSON-RPC node connection is
// read from - a 30-second request timeout by default, per §6.
func InitConfig(section config.Section) {
	section.AddKnownKey(ConfigURL)
	section.AddKnownKey(ConfigRequestTimeout, DefaultRequestTimeout)
}

func ReadConfig(section config.Section) Options {
	return Options{
		URL:            section.GetString(ConfigURL),
		RequestTimeout: section.GetDuration(ConfigRequestTimeout),
	}
}
