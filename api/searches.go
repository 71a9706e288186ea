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
	"net/http"

	"github.com/slskd/slskd/internal/search"
)

type createSearchRequest struct {
	ID         string `json:"id"`
	SearchText string `json:"searchText"`
	Scope      string `json:"scope"`
}

type searchResponse struct {
	ID          string `json:"id"`
	Text        string `json:"searchText"`
	Scope       string `json:"scope"`
	Token       int32  `json:"token"`
	State       string `json:"state"`
	Responses   int    `json:"responseCount"`
	Files       int    `json:"fileCount"`
	LockedFiles int    `json:"lockedFileCount"`
}

// handleListSearches serves GET /searches.
func (s *Server) handleListSearches(w http.ResponseWriter, r *http.Request) {
	if s.Searches == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "searches not configured"})
		return
	}
	list, err := s.Searches.List()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]searchResponse, 0, len(list))
	for _, rec := range list {
		out = append(out, toSearchResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateSearch serves POST /searches, body {id, searchText}. The
// id in the body is informational only — Create assigns its own.
func (s *Server) handleCreateSearch(w http.ResponseWriter, r *http.Request) {
	if s.Searches == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "searches not configured"})
		return
	}
	var req createSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if s.SearchLimiter != nil {
		s.SearchLimiter.Get(1)
	}
	rec, err := s.Searches.Create(r.Context(), req.SearchText, req.Scope)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSearchResponse(rec))
}

// handleGetSearch serves GET /searches/{id}?includeResponses=.
func (s *Server) handleGetSearch(w http.ResponseWriter, r *http.Request) {
	if s.Searches == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "searches not configured"})
		return
	}
	rec, err := s.Searches.Find(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	resp := toSearchResponse(rec)
	if r.URL.Query().Get("includeResponses") == "true" {
		writeJSON(w, http.StatusOK, struct {
			searchResponse
			Responses any `json:"responses"`
		}{resp, rec.ResponseList})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteSearch serves DELETE /searches/{id}: treated as a cancel,
// since the store is the system of record and nothing else deletes a
// completed search's row (§6.4 persists every terminal search).
func (s *Server) handleDeleteSearch(w http.ResponseWriter, r *http.Request) {
	s.handleCancelSearch(w, r)
}

// handleCancelSearch serves PUT /searches/{id}: cancels an in-flight
// search.
func (s *Server) handleCancelSearch(w http.ResponseWriter, r *http.Request) {
	if s.Searches == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "searches not configured"})
		return
	}
	if err := s.Searches.Cancel(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toSearchResponse(rec *search.Search) searchResponse {
	return searchResponse{
		ID:          rec.ID,
		Text:        rec.Text,
		Scope:       rec.Scope,
		Token:       rec.Token,
		State:       rec.State.String(),
		Responses:   rec.Responses,
		Files:       rec.Files,
		LockedFiles: rec.LockedFiles,
	}
}
