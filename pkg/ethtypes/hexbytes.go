// Copyright © 2022 Kaleido, Inc.
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

package ethtypes

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// HexBytesPlain is simple bytes that are JSON stored/retrieved as hex with no 0x prefix.
type HexBytesPlain []byte

// HexBytes0xPrefix is simple bytes that are JSON stored/retrieved as 0x-prefixed hex -
// the format JSON-RPC replies use for a log's `data` and for block hashes.
type HexBytes0xPrefix []byte

func (h *HexBytesPlain) UnmarshalJSON(b []byte) error {
	var s string
	err := json.Unmarshal(b, &s)
	if err != nil {
		return err
	}
	*h, err = hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return fmt.Errorf("bad hex: %s", err)
	}
	return nil
}

func (h HexBytesPlain) String() string {
	return hex.EncodeToString(h)
}

func (h HexBytesPlain) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`"%s"`, h.String())), nil
}

func (h *HexBytes0xPrefix) UnmarshalJSON(b []byte) error {
	return ((*HexBytesPlain)(h)).UnmarshalJSON(b)
}

func (h HexBytes0xPrefix) String() string {
	return "0x" + hex.EncodeToString(h)
}

func (h HexBytes0xPrefix) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`"%s"`, h.String())), nil
}

// Bytes32 is a fixed 32-byte word: a log topic, a transaction hash, a block
// hash, or the head-word of an ABI-encoded static value. It round-trips
// through JSON as 0x-prefixed hex and through Postgres as `bytea`.
type Bytes32 [32]byte

func (b *Bytes32) UnmarshalJSON(raw []byte) error {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return fmt.Errorf("bad bytes32: %s", err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("bad bytes32 - must be 32 bytes (len=%d)", len(decoded))
	}
	copy(b[:], decoded)
	return nil
}

func (b Bytes32) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`"%s"`, b.String())), nil
}

func (b Bytes32) String() string {
	return "0x" + hex.EncodeToString(b[:])
}

// Address extracts the right-most 20 bytes of the word - how a topic or an
// ABI head-word holding an `address` value is decoded (§4.2).
func (b Bytes32) Address() Address0xHex {
	var a Address0xHex
	copy(a[:], b[12:])
	return a
}

func NewBytes32FromHex(s string) (Bytes32, error) {
	var b Bytes32
	decoded, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return b, fmt.Errorf("bad bytes32: %s", err)
	}
	if len(decoded) != 32 {
		return b, fmt.Errorf("bad bytes32 - must be 32 bytes (len=%d)", len(decoded))
	}
	copy(b[:], decoded)
	return b, nil
}
