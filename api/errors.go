/*
Copyright 2026 The slskd Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/slskd/slskd/internal/slskderrors"
)

// writeJSON marshals v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeError maps err onto an HTTP status via its slskderrors.Kind, per
// §7's mapping ("Handlers in api/ map these onto HTTP status codes").
func writeError(w http.ResponseWriter, err error) {
	var se *slskderrors.Error
	status := http.StatusInternalServerError
	if errors.As(err, &se) {
		status = statusFor(se.Kind)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(k slskderrors.Kind) int {
	switch k {
	case slskderrors.KindNotFound:
		return http.StatusNotFound
	case slskderrors.KindUnauthorized, slskderrors.KindKicked:
		return http.StatusUnauthorized
	case slskderrors.KindConflict, slskderrors.KindScanAlreadyInProgress:
		return http.StatusConflict
	case slskderrors.KindValidationFailed, slskderrors.KindShareValidation:
		return http.StatusBadRequest
	case slskderrors.KindTimeout:
		return http.StatusGatewayTimeout
	case slskderrors.KindCancelled:
		return http.StatusConflict
	case slskderrors.KindRemoteAgent, slskderrors.KindPeerProtocol:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
