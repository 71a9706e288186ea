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
	"net/http"
	"runtime"
	"runtime/debug"
)

type applicationResponse struct {
	Version          string `json:"version"`
	UptimeSeconds    int64  `json:"uptimeSeconds"`
	ConnectionState  string `json:"connectionState"`
	PendingRestart   bool   `json:"pendingRestart"`
	PendingReconnect bool   `json:"pendingReconnect"`
}

// handleGetApplication serves GET /application (§6.1, §9 G's snapshot
// surfacing uptime and version alongside the pending-* flags).
func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	if s.State == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "state unavailable"})
		return
	}
	snap := s.State.Snapshot()
	writeJSON(w, http.StatusOK, applicationResponse{
		Version:          snap.Version,
		UptimeSeconds:    int64(snap.Uptime.Seconds()),
		ConnectionState:  snap.ConnectionState,
		PendingRestart:   snap.PendingRestart,
		PendingReconnect: snap.PendingReconnect,
	})
}

// handleShutdown serves DELETE /application: stops the connection
// supervisor, if any, and signals the process to exit 0 via the
// Shutdown hook installed by cmd/slskd.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if s.Watchdog != nil {
		s.Watchdog.Stop()
	}
	if s.Shutdown != nil {
		go s.Shutdown()
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleRestart serves PUT /application: the operator's "restart now"
// path, distinct from a pending-restart flag left for the next natural
// reload.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if s.Restart != nil {
		go s.Restart()
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleGC serves POST /application/gc: a manual GC hint, implemented
// literally per §10's supplemented-feature note.
func (s *Server) handleGC(w http.ResponseWriter, r *http.Request) {
	runtime.GC()
	debug.FreeOSMemory()
	w.WriteHeader(http.StatusNoContent)
}
