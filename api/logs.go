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

import "net/http"

// handleGetLogs serves GET /logs: the in-memory log tail the process
// keeps (cmd/slskd installs a ring-buffer io.Writer alongside the
// standard logger's output; nil here just means nothing has been
// captured yet).
func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.LogBuffer == nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	writeJSON(w, http.StatusOK, s.LogBuffer.Lines())
}
