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

// handleStartServer serves PUT /server: starts the connection
// supervisor (§6.1).
func (s *Server) handleStartServer(w http.ResponseWriter, r *http.Request) {
	if s.Watchdog == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "connection supervisor not configured"})
		return
	}
	s.Watchdog.Start()
	w.WriteHeader(http.StatusNoContent)
}

// handleStopServer serves DELETE /server: stops the supervisor with an
// intentional cause, so it does not auto-reconnect (§4.C3
// "stop(abort_reconnect=true)").
func (s *Server) handleStopServer(w http.ResponseWriter, r *http.Request) {
	if s.Watchdog == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "connection supervisor not configured"})
		return
	}
	s.Watchdog.Stop()
	w.WriteHeader(http.StatusNoContent)
}
