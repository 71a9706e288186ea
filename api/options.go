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
	"os"

	"gopkg.in/yaml.v3"

	"github.com/slskd/slskd/internal/config"
)

// handleGetOptions serves GET /options: the reload plane's live,
// currently-applied snapshot.
func (s *Server) handleGetOptions(w http.ResponseWriter, r *http.Request) {
	if s.Reload == nil {
		writeJSON(w, http.StatusOK, s.Startup)
		return
	}
	writeJSON(w, http.StatusOK, s.Reload.Current())
}

// handleGetOptionsStartup serves GET /options/startup: the snapshot
// fixed at process launch, unaffected by later reloads.
func (s *Server) handleGetOptionsStartup(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Startup)
}

// handleGetOptionsYAML serves GET /options/yaml: the raw config file
// text.
func (s *Server) handleGetOptionsYAML(w http.ResponseWriter, r *http.Request) {
	if s.YAMLPath == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no config file path configured"})
		return
	}
	raw, err := os.ReadFile(s.YAMLPath)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/x-yaml")
	w.Write(raw)
}

// handlePutOptionsYAML serves PUT /options/yaml: parses the posted YAML
// body into Options, reconciles it through the reload plane, and
// persists the raw text to disk only once reconciliation succeeds.
func (s *Server) handlePutOptionsYAML(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var next config.Options
	if err := yaml.Unmarshal(raw, &next); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if s.Reload != nil {
		if err := s.Reload.Reconcile(next); err != nil {
			writeError(w, err)
			return
		}
	}

	if s.YAMLPath != "" {
		if err := os.WriteFile(s.YAMLPath, raw, 0o644); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleValidateOptionsYAML serves POST /options/yaml/validate: parses
// the posted body without applying it, reporting whether it's valid
// YAML for the Options shape.
func (s *Server) handleValidateOptionsYAML(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var opts config.Options
	if err := yaml.Unmarshal(raw, &opts); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}
