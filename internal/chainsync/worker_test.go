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

package chainsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionRangeEvenSplit(t *testing.T) {
	pieces := partitionRange(1, 10, 5)
	assert.Equal(t, []rangePiece{{from: 1, to: 5}, {from: 6, to: 10}}, pieces)
}

func TestPartitionRangeUnevenSplit(t *testing.T) {
	pieces := partitionRange(1, 12, 5)
	assert.Equal(t, []rangePiece{{from: 1, to: 5}, {from: 6, to: 10}, {from: 11, to: 12}}, pieces)
}

func TestPartitionRangeSingleBlock(t *testing.T) {
	pieces := partitionRange(42, 42, 5)
	assert.Equal(t, []rangePiece{{from: 42, to: 42}}, pieces)
}

func TestPartitionRangeZeroPartSizeTreatedAsOne(t *testing.T) {
	pieces := partitionRange(1, 3, 0)
	assert.Equal(t, []rangePiece{{from: 1, to: 1}, {from: 2, to: 2}, {from: 3, to: 3}}, pieces)
}
