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

package abiparse

import "golang.org/x/crypto/sha3"

// Selector returns the 32-byte keccak256 hash of the event's canonical
// signature - exactly what Solidity places in topics[0] of a matching log.
func (e *Event) Selector() [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(e.CanonicalSignature()))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
