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

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/evmlogs/indexer/internal/apperr"
)

// writeSSEEvent frames one JSON-encoded payload as a single `data:` SSE
// event (§6 "one SSE data: event per iteration carrying the same JSON").
func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return apperr.Server(err, "failed to serialize stream event")
	}
	return writeSSERaw(w, flusher, string(b))
}

func writeSSERaw(w http.ResponseWriter, flusher http.Flusher, data string) error {
	if _, err := w.Write([]byte("data: " + data + "\n\n")); err != nil {
		return apperr.Server(err, "failed writing stream event")
	}
	flusher.Flush()
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps an error into the §7 taxonomy response shape
// {error, message}.
func writeError(w http.ResponseWriter, err error) {
	ae := apperr.Classify(err)
	writeJSON(w, ae.HTTPStatus(), map[string]string{
		"error":   string(ae.Kind),
		"message": ae.Message,
	})
}
