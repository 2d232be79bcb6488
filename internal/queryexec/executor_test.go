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
	"time"

	"github.com/evmlogs/indexer/internal/cursor"
	"github.com/stretchr/testify/require"
)

func TestRunRejectsEmptyBatch(t *testing.T) {
	e := New(nil)
	_, err := e.Run(context.Background(), cursor.Empty(), time.Second, nil)
	require.Error(t, err)
}
