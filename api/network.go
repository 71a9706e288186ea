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
	"io"
	"net/http"
	"strconv"

	"github.com/slskd/slskd/internal/slskderrors"
)

const maxRelayUploadMemory = 32 << 20 // buffer small form fields in memory; large parts spill to temp files.

// handleNetworkShares serves POST /network/shares/{token}: the agent's
// one-shot share-database upload (§4.C4, §6.1).
func (s *Server) handleNetworkShares(w http.ResponseWriter, r *http.Request) {
	if s.Relay == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "relay not configured"})
		return
	}
	token := r.PathValue("token")

	if err := r.ParseMultipartForm(maxRelayUploadMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	name := r.FormValue("name")
	credential := r.FormValue("credential")
	sharesJSON := []byte(r.FormValue("shares"))

	file, _, err := r.FormFile("database")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	defer file.Close()
	databaseFile, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := s.Relay.HandleShareUpload(token, name, credential, sharesJSON, databaseFile); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleNetworkFiles serves POST /network/files/{id}: the agent's
// proxied-upload body delivery (§4.C4 step 3).
func (s *Server) handleNetworkFiles(w http.ResponseWriter, r *http.Request) {
	if s.Relay == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "relay not configured"})
		return
	}
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": slskderrors.Wrap("api.handleNetworkFiles", slskderrors.KindValidationFailed, err).Error()})
		return
	}

	if err := r.ParseMultipartForm(maxRelayUploadMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	name := r.FormValue("name")
	credential := r.FormValue("credential")

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	defer file.Close()

	if err := s.Relay.ReceiveFileUpload(r.Context(), id, name, credential, file); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
