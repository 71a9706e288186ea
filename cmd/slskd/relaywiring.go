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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/slskd/slskd/internal/relay"
	"github.com/slskd/slskd/internal/shareindex"
)

// staticAgentSecrets implements relay.AgentSecrets over the single
// agent credential this process's own configuration carries. A
// controller fronting more than one named agent would back this with a
// real registry instead.
type staticAgentSecrets struct {
	name   string
	secret string
}

func (s staticAgentSecrets) SecretFor(agentName string) (string, bool) {
	if agentName == s.name {
		return s.secret, true
	}
	return "", false
}

// remoteShareManifest is the wire shape an agent's share upload JSON
// decodes into: a flat file listing keyed by virtual path. The
// accompanying database file is opaque per relay.RemoteRepository's own
// contract and isn't interpreted here.
type remoteShareManifest struct {
	Files []struct {
		Path string `json:"path"`
		Size int64  `json:"size"`
	} `json:"files"`
}

type remoteRepository struct {
	files []relay.RemoteFile
	index map[string]struct{}
}

func (r *remoteRepository) Files() []relay.RemoteFile { return r.files }

func (r *remoteRepository) Resolve(virtualPath string) (string, bool) {
	_, ok := r.index[virtualPath]
	if !ok {
		return "", false
	}
	// Agent-resident files are fetched through the relay's file-stream
	// proxy rather than a local path, so the "real path" handed back is
	// the same virtual path the relay uses to address the agent.
	return virtualPath, true
}

// validateRemoteShares parses an agent's uploaded manifest into a
// relay.RemoteRepository, the validate callback relay.NewCoordinator is
// built with.
func validateRemoteShares(sharesJSON, _ []byte) (relay.RemoteRepository, error) {
	var manifest remoteShareManifest
	if err := json.Unmarshal(sharesJSON, &manifest); err != nil {
		return nil, fmt.Errorf("decode share manifest: %w", err)
	}
	repo := &remoteRepository{index: make(map[string]struct{}, len(manifest.Files))}
	for _, f := range manifest.Files {
		repo.files = append(repo.files, relay.RemoteFile{Path: f.Path, Size: f.Size})
		repo.index[f.Path] = struct{}{}
	}
	return repo, nil
}

// remoteRepositoryAdapter bridges a relay.RemoteRepository onto
// shareindex.ShareRepository so installRemoteShares can hand an agent's
// validated upload straight to the shared index.
type remoteRepositoryAdapter struct {
	repo relay.RemoteRepository
}

func (a remoteRepositoryAdapter) Files() []shareindex.File {
	src := a.repo.Files()
	out := make([]shareindex.File, len(src))
	for i, f := range src {
		out[i] = shareindex.File{
			Path:     f.Path,
			BitRate:  f.BitRate,
			BitDepth: f.BitDepth,
			Size:     f.Size,
			Length:   f.Length,
			IsVBR:    f.IsVBR,
		}
	}
	return out
}

func (a remoteRepositoryAdapter) Resolve(virtualPath string) (string, bool) {
	return a.repo.Resolve(virtualPath)
}

// installRemoteShares is the install callback relay.NewCoordinator is
// built with: it publishes a validated agent upload into the shared
// index under the agent's own name.
func installRemoteShares(shares *shareindex.ShareIndex) func(agentName string, repo relay.RemoteRepository) {
	return func(agentName string, repo relay.RemoteRepository) {
		shares.AddOrUpdateHost(agentName, nil, remoteRepositoryAdapter{repo: repo})
	}
}

// marshalShareManifest renders a local file listing into the wire shape
// validateRemoteShares decodes on the controller side.
func marshalShareManifest(files []shareindex.File) ([]byte, error) {
	manifest := remoteShareManifest{}
	for _, f := range files {
		manifest.Files = append(manifest.Files, struct {
			Path string `json:"path"`
			Size int64  `json:"size"`
		}{Path: f.Path, Size: f.Size})
	}
	return json.Marshal(manifest)
}

var relayUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// relayHubHandler upgrades an inbound agent connection and hands it to
// hub.Serve under a freshly minted connection id.
func relayHubHandler(hub *relay.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := relayUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connID := uuid.NewString()
		go hub.Serve(connID, conn)
	}
}

// httpPoster is the relay.HTTPPoster an agent-mode process posts its
// share upload and file-stream bodies through.
type httpPoster struct {
	client *http.Client
}

func (p httpPoster) PostMultipart(ctx context.Context, url string, fields map[string]string, fileField, fileName string, body io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if fileField != "" {
		part, err := mw.CreateFormFile(fileField, fileName)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, body); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("relay upload: unexpected status %d", resp.StatusCode)
	}
	return nil
}
