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

// Package indexmsgs registers every error message this module can return,
// keyed by a stable "FF..." code, following the firefly-common i18n pattern.
package indexmsgs

import "github.com/hyperledger/firefly-common/pkg/i18n"

var ffe = i18n.FFE

//revive:disable
var (
	// ABI signature lexer/parser (C1)
	MsgSyntaxError              = ffe("FF23001", "Unexpected character '%c' at position %d")
	MsgUnsupportedABIType       = ffe("FF23002", "Unsupported ABI type descriptor '%s'")
	MsgInvalidIndexedPos        = ffe("FF23003", "'indexed' must appear after array suffixes and before the parameter name: %s")
	MsgUnexpectedToken          = ffe("FF23004", "Unexpected token '%s', expected '%s'")
	MsgMaxDepthExceeded         = ffe("FF23005", "Signature nesting exceeds maximum depth of %d")
	MsgInvalidArrayLength       = ffe("FF23006", "Invalid array length '%s'")
	MsgInvalidNumberString      = ffe("FF23007", "Invalid number string '%s'")
	MsgInvalidIntPrecisionLoss  = ffe("FF23008", "Value '%s' cannot be represented as an integer without loss of precision")
	MsgInvalidJSONTypeForBigInt = ffe("FF23009", "Invalid type for integer value: %T")

	// ABI decoder (C3)
	MsgUnexpectedEOF  = ffe("FF23010", "Unexpected end of log data decoding %s at offset %d")
	MsgInvalidUTF8    = ffe("FF23011", "Invalid UTF-8 decoding string %s")
	MsgDecodeOverflow = ffe("FF23012", "Value does not fit in %d bits decoding %s")
	MsgArrayTooLarge  = ffe("FF23013", "Array length %s is too large decoding %s")
	MsgBadTopicCount  = ffe("FF23014", "Event %s has %d indexed parameters but log has %d topics")

	// SQL compiler (C4)
	MsgUnsupportedSQL     = ffe("FF23020", "%s not supported")
	MsgUnknownEvent       = ffe("FF23021", "Unable to parse event signature: %s")
	MsgUnknownField       = ffe("FF23022", "You are attempting to query '%s' but it isn't defined. Possible tables to query are: %s")
	MsgUnknownIdentifier  = ffe("FF23023", "Unknown field '%s' - not a metadata column or ABI parameter on any referenced table")
	MsgNotExactlyOneStmt  = ffe("FF23024", "Query must be exactly one SQL statement")
	MsgSelectOnly         = ffe("FF23025", "Only SELECT queries are supported")
	MsgBadLiteral         = ffe("FF23026", "Unable to interpret literal '%s' as %s")
	MsgCursorOddLength    = ffe("FF23027", "cursor must be - separated pairs of chain and block number")
	MsgCursorNotNumeric   = ffe("FF23028", "cursor must be - separated numbers")

	// Chain sync (C5/C6)
	MsgReorgTooDeep     = ffe("FF23030", "reorg too deep - exceeded %d attempts on chain %d")
	MsgMissingBlock     = ffe("FF23031", "missing block %s on chain %d")
	MsgRPCRequestFailed = ffe("FF23032", "backend RPC request failed")
	MsgInvalidParam     = ffe("FF23033", "Invalid parameter at position %d for method %s: %s")
	MsgRPCBatchMismatch = ffe("FF23034", "batch RPC response count (%d) does not match request count (%d)")

	// Query executor (C7)
	MsgStatementTimeout = ffe("FF23040", "statement exceeded timeout of %s")
	MsgTooManyRequests  = ffe("FF23041", "too many concurrent requests")
	MsgUnknownColumnOID = ffe("FF23042", "unsupported column type oid %d for column %s")
)
