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

package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/slskd/slskd/internal/slskderrors"
	"github.com/slskd/slskd/internal/waiter"
)

// AgentLink is the narrow outbound half of the hub the coordinator needs
// (§9 "the hub layer depends on a narrow RelayCoordinator interface [...]
// the coordinator never imports hub types" — this is that inversion's
// mirror image: the coordinator only ever pushes through this).
type AgentLink interface {
	Push(connID, msgType string, payload any) error
}

// AgentSecrets resolves a registered agent's shared secret for credential
// derivation (§4.C4 step 2).
type AgentSecrets interface {
	SecretFor(agentName string) (secret string, ok bool)
}

// RemoteRepository is what a validated agent upload yields: a
// shareindex.ShareRepository shaped source, kept narrow here so this
// package does not need to import shareindex's File type for its own
// bookkeeping.
type RemoteRepository interface {
	Files() []RemoteFile
	Resolve(virtualPath string) (string, bool)
}

// RemoteFile mirrors shareindex.File's shape for repositories installed
// over the relay.
type RemoteFile struct {
	Path        string
	BitRate     int
	BitDepth    int
	Size        int64
	Length      int
	IsVBR       bool
	FolderCount int
}

// FileInfoResult is W(get_file_info)'s resolved value.
type FileInfoResult struct {
	Exists bool
	Length int64
}

// AgentRegistration is one authenticated agent connection (§3
// "AgentRegistration").
type AgentRegistration struct {
	ConnID       string
	Name         string
	RegisteredAt time.Time
}

// Coordinator implements the controller half of §4.C4: handshake, share
// upload, file-stream proxying, file-info probing, and download-complete
// fan-out. It never imports the transport (hub) package; Hub satisfies
// AgentLink and is wired in by the caller.
type Coordinator struct {
	link     AgentLink
	tokens   *TokenStore
	secrets  AgentSecrets
	w        *waiter.Waiter
	validate func(sharesJSON, databaseFile []byte) (RemoteRepository, error)
	install  func(agentName string, repo RemoteRepository)

	mu     sync.Mutex
	byConn map[string]AgentRegistration
	byName map[string]string

	now func() time.Time
}

// NewCoordinator builds a Coordinator. install is called with a freshly
// validated agent repository; it is the caller's job to plug that into
// a real ShareIndex (keeping this package decoupled from shareindex's
// concrete File type).
func NewCoordinator(link AgentLink, tokens *TokenStore, secrets AgentSecrets, w *waiter.Waiter,
	validate func(sharesJSON, databaseFile []byte) (RemoteRepository, error),
	install func(agentName string, repo RemoteRepository),
) *Coordinator {
	return &Coordinator{
		link:     link,
		tokens:   tokens,
		secrets:  secrets,
		w:        w,
		validate: validate,
		install:  install,
		byConn:   make(map[string]AgentRegistration),
		byName:   make(map[string]string),
		now:      time.Now,
	}
}

// BeginHandshake issues a fresh auth token for connID and pushes
// Challenge over the hub (§4.C4 step 1).
func (c *Coordinator) BeginHandshake(connID string) error {
	_, tokenString, err := c.tokens.Issue(KindAuth, connID, AuthTokenTTL)
	if err != nil {
		return err
	}
	return c.link.Push(connID, "Challenge", map[string]string{"authToken": tokenString})
}

// HandleLogin validates an agent's credential against the cached auth
// token for connID and, on success, registers the agent (§4.C4 step 2-3).
func (c *Coordinator) HandleLogin(connID, agentName, credentialB64 string) (bool, error) {
	secret, ok := c.secrets.SecretFor(agentName)
	if !ok {
		c.link.Push(connID, "LoginResult", map[string]bool{"success": false})
		return false, slskderrors.Wrap("relay.HandleLogin", slskderrors.KindUnauthorized, fmt.Errorf("unknown agent %q", agentName))
	}

	credential, err := base64.StdEncoding.DecodeString(credentialB64)
	if err != nil {
		c.link.Push(connID, "LoginResult", map[string]bool{"success": false})
		return false, slskderrors.Wrap("relay.HandleLogin", slskderrors.KindUnauthorized, err)
	}

	valid := c.tokens.Validate(KindAuth, connID, secret, agentName, credential)
	c.link.Push(connID, "LoginResult", map[string]bool{"success": valid})
	if !valid {
		return false, slskderrors.Wrap("relay.HandleLogin", slskderrors.KindUnauthorized, nil)
	}

	c.mu.Lock()
	c.byConn[connID] = AgentRegistration{ConnID: connID, Name: agentName, RegisteredAt: c.now()}
	c.byName[agentName] = connID
	c.mu.Unlock()
	return true, nil
}

// BeginShareUpload issues a share-upload token for an already-registered
// connection (§4.C4 "begin_share_upload").
func (c *Coordinator) BeginShareUpload(connID string) (string, error) {
	c.mu.Lock()
	_, ok := c.byConn[connID]
	c.mu.Unlock()
	if !ok {
		return "", slskderrors.Wrap("relay.BeginShareUpload", slskderrors.KindUnauthorized, fmt.Errorf("connection %s is not logged in", connID))
	}
	_, tokenString, err := c.tokens.IssueSelfKeyed(KindShareUpload, ShareUploadTokenTTL)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// HandleShareUpload validates the multipart POST to
// /network/shares/{token} and, on success, installs the repository.
func (c *Coordinator) HandleShareUpload(tokenString, agentName, credentialB64 string, sharesJSON, databaseFile []byte) error {
	secret, ok := c.secrets.SecretFor(agentName)
	if !ok {
		return slskderrors.Wrap("relay.HandleShareUpload", slskderrors.KindUnauthorized, fmt.Errorf("unknown agent %q", agentName))
	}
	credential, err := base64.StdEncoding.DecodeString(credentialB64)
	if err != nil {
		return slskderrors.Wrap("relay.HandleShareUpload", slskderrors.KindUnauthorized, err)
	}
	if !c.tokens.Validate(KindShareUpload, tokenString, secret, agentName, credential) {
		return slskderrors.Wrap("relay.HandleShareUpload", slskderrors.KindUnauthorized, nil)
	}

	repo, err := c.validate(sharesJSON, databaseFile)
	if err != nil {
		return slskderrors.Wrap("relay.HandleShareUpload", slskderrors.KindShareValidation, err)
	}
	c.install(agentName, repo)
	return nil
}

func fileStreamKey(id int) waiter.Key        { return waiter.Key{"get_file_stream", strconv.Itoa(id)} }
func fileStreamDoneKey(id int) waiter.Key    { return waiter.Key{"handle_file_stream_response", strconv.Itoa(id)} }
func fileInfoKey(agent string, id int) waiter.Key {
	return waiter.Key{"get_file_info", agent, strconv.Itoa(id)}
}

// GetFileStream drives the controller-initiated-upload proxy of §4.C4
// steps 1-5: it caches a capability token for the agent's upcoming POST,
// requests the upload over the hub, and blocks until the agent's POST
// body arrives, errors out, or timeout elapses.
func (c *Coordinator) GetFileStream(ctx context.Context, agentName, filename string, startOffset int64, id int, timeout time.Duration) (io.ReadCloser, error) {
	c.mu.Lock()
	connID, ok := c.byName[agentName]
	c.mu.Unlock()
	if !ok {
		return nil, slskderrors.Wrap("relay.GetFileStream", slskderrors.KindNotFound, fmt.Errorf("agent %q not registered", agentName))
	}

	_, tokenString, err := c.tokens.Issue(KindFileStream, strconv.Itoa(id), timeout)
	if err != nil {
		return nil, err
	}

	fut, err := waiter.Wait[io.ReadCloser](c.w, fileStreamKey(id), timeout)
	if err != nil {
		return nil, slskderrors.Wrap("relay.GetFileStream", slskderrors.KindConflict, err)
	}

	// §6.2 lists RequestFileUpload as (filename, startOffset, id), but the
	// agent's answering POST needs the file-stream token to compute its
	// credential, so it rides along as an extra field.
	payload := map[string]any{"filename": filename, "startOffset": startOffset, "id": id, "token": tokenString}
	if err := c.link.Push(connID, "RequestFileUpload", payload); err != nil {
		waiter.Throw(c.w, fileStreamKey(id), err)
		return nil, err
	}

	stream, err := fut.Wait(ctx)
	if err != nil {
		c.tokens.Revoke(KindFileStream, strconv.Itoa(id))
		// A failure the agent reported (HandleStreamUploadFailed) already
		// carries its own Kind; only an unclassified wait error is a timeout.
		var kinded *slskderrors.Error
		if errors.As(err, &kinded) {
			return nil, err
		}
		return nil, slskderrors.Wrap("relay.GetFileStream", slskderrors.KindTimeout, err)
	}
	return stream, nil
}

// ReceiveFileUpload validates the agent's credential for the
// file-stream capability token minted for id, then hands the request
// body to ReceiveFileStream. It is the entry point for the HTTP handler
// behind POST /network/files/{id} (§6.1).
func (c *Coordinator) ReceiveFileUpload(ctx context.Context, id int, agentName, credentialB64 string, body io.ReadCloser) error {
	secret, ok := c.secrets.SecretFor(agentName)
	if !ok {
		return slskderrors.Wrap("relay.ReceiveFileUpload", slskderrors.KindUnauthorized, fmt.Errorf("unknown agent %q", agentName))
	}
	credential, err := base64.StdEncoding.DecodeString(credentialB64)
	if err != nil {
		return slskderrors.Wrap("relay.ReceiveFileUpload", slskderrors.KindUnauthorized, err)
	}
	if !c.tokens.Validate(KindFileStream, strconv.Itoa(id), secret, agentName, credential) {
		return slskderrors.Wrap("relay.ReceiveFileUpload", slskderrors.KindUnauthorized, nil)
	}
	return c.ReceiveFileStream(ctx, id, body)
}

// ReceiveFileStream is called by the HTTP handler for
// POST /network/files/{id} once the agent's credential has validated. It
// registers the indefinite completion wait (W2) before handing the
// request body to GetFileStream's waiter (W1), then blocks until
// TryCloseFileStream resolves W2.
func (c *Coordinator) ReceiveFileStream(ctx context.Context, id int, body io.ReadCloser) error {
	doneFut, err := waiter.WaitIndefinitely[struct{}](c.w, fileStreamDoneKey(id))
	if err != nil {
		return slskderrors.Wrap("relay.ReceiveFileStream", slskderrors.KindConflict, err)
	}
	if err := waiter.Complete[io.ReadCloser](c.w, fileStreamKey(id), body); err != nil {
		waiter.Throw(c.w, fileStreamDoneKey(id), err)
		return slskderrors.Wrap("relay.ReceiveFileStream", slskderrors.KindConflict, err)
	}
	_, err = doneFut.Wait(ctx)
	return err
}

// TryCloseFileStream resolves W2 for id, unblocking ReceiveFileStream's
// HTTP handler and, on success, completing the request with a 2xx.
func (c *Coordinator) TryCloseFileStream(id int, cause error) error {
	if cause != nil {
		return waiter.Throw(c.w, fileStreamDoneKey(id), cause)
	}
	return waiter.Complete[struct{}](c.w, fileStreamDoneKey(id), struct{}{})
}

// HandleStreamUploadFailed processes the agent's NotifyFileUploadFailed,
// revoking the capability token and failing the pending GetFileStream
// call (§8 S4).
func (c *Coordinator) HandleStreamUploadFailed(id int) error {
	c.tokens.Revoke(KindFileStream, strconv.Itoa(id))
	return waiter.Throw(c.w, fileStreamKey(id), slskderrors.Wrap("relay.HandleStreamUploadFailed", slskderrors.KindRemoteAgent, fmt.Errorf("agent reported upload failure for id %d", id)))
}

// GetFileInfo requests file-info from agentName over the hub, with the
// request/response traversing the hub directly (no HTTP).
func (c *Coordinator) GetFileInfo(ctx context.Context, agentName, filename string, id int, timeout time.Duration) (FileInfoResult, error) {
	c.mu.Lock()
	connID, ok := c.byName[agentName]
	c.mu.Unlock()
	if !ok {
		return FileInfoResult{}, slskderrors.Wrap("relay.GetFileInfo", slskderrors.KindNotFound, fmt.Errorf("agent %q not registered", agentName))
	}

	key := fileInfoKey(agentName, id)
	fut, err := waiter.Wait[FileInfoResult](c.w, key, timeout)
	if err != nil {
		return FileInfoResult{}, slskderrors.Wrap("relay.GetFileInfo", slskderrors.KindConflict, err)
	}
	if err := c.link.Push(connID, "RequestFileInfo", map[string]any{"filename": filename, "id": id}); err != nil {
		waiter.Throw(c.w, key, err)
		return FileInfoResult{}, err
	}

	res, err := fut.Wait(ctx)
	if err != nil {
		return FileInfoResult{}, slskderrors.Wrap("relay.GetFileInfo", slskderrors.KindTimeout, err)
	}
	return res, nil
}

// HandleFileInfoResponse processes the agent's ReturnFileInfo. An
// unsolicited response — no pending wait for (agent, id) — is rejected
// with NotFound rather than silently dropped (§4.C4 "File-info probing").
func (c *Coordinator) HandleFileInfoResponse(agentName string, id int, exists bool, length int64) error {
	key := fileInfoKey(agentName, id)
	if !c.w.IsWaitingFor(key) {
		return slskderrors.Wrap("relay.HandleFileInfoResponse", slskderrors.KindNotFound, fmt.Errorf("no pending file-info request for id %d", id))
	}
	return waiter.Complete(c.w, key, FileInfoResult{Exists: exists, Length: length})
}

// NotifyDownloadCompleted broadcasts NotifyFileDownloadCompleted to every
// registered agent and caches an idempotent download-notify token for
// (path, id) (§4.C4 "Download-complete notification").
func (c *Coordinator) NotifyDownloadCompleted(relativePath string, id int) error {
	key := fmt.Sprintf("%s|%d", relativePath, id)
	if _, _, err := c.tokens.Issue(KindDownloadNotify, key, DownloadNotifyTokenTTL); err != nil {
		return err
	}

	c.mu.Lock()
	conns := make([]string, 0, len(c.byConn))
	for connID := range c.byConn {
		conns = append(conns, connID)
	}
	c.mu.Unlock()

	payload := map[string]any{"relativePath": relativePath, "id": id}
	var firstErr error
	for _, connID := range conns {
		if err := c.link.Push(connID, "NotifyFileDownloadCompleted", payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Unregister drops a connection from the registry, e.g. on hub
// disconnect.
func (c *Coordinator) Unregister(connID string) {
	c.mu.Lock()
	reg, ok := c.byConn[connID]
	if ok {
		delete(c.byConn, connID)
		if c.byName[reg.Name] == connID {
			delete(c.byName, reg.Name)
		}
	}
	c.mu.Unlock()
}

// decodeJSON is a small helper the hub dispatch glue uses to unmarshal
// envelope payloads into typed structs.
func decodeJSON[T any](raw json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}

// HandleMessage routes one inbound hub envelope from connID to the
// matching handler, the agent->controller half of §6.2's method table.
// It is the func a Hub is constructed with as its dispatch callback.
func (c *Coordinator) HandleMessage(connID string, env Envelope) {
	switch env.Type {
	case "Login":
		payload, err := decodeJSON[struct {
			AgentName  string `json:"agentName"`
			Credential string `json:"credential"`
		}](env.Payload)
		if err != nil {
			return
		}
		c.HandleLogin(connID, payload.AgentName, payload.Credential)

	case "BeginShareUpload":
		tokenString, err := c.BeginShareUpload(connID)
		if err != nil {
			return
		}
		c.link.Push(connID, "ShareUploadToken", map[string]string{"token": tokenString})

	case "ReturnFileInfo":
		payload, err := decodeJSON[struct {
			ID     int   `json:"id"`
			Exists bool  `json:"exists"`
			Length int64 `json:"length"`
		}](env.Payload)
		if err != nil {
			return
		}
		reg, ok := c.registrationFor(connID)
		if !ok {
			return
		}
		c.HandleFileInfoResponse(reg.Name, payload.ID, payload.Exists, payload.Length)

	case "NotifyFileUploadFailed":
		payload, err := decodeJSON[struct {
			ID int `json:"id"`
		}](env.Payload)
		if err != nil {
			return
		}
		c.HandleStreamUploadFailed(payload.ID)
	}
}

func (c *Coordinator) registrationFor(connID string) (AgentRegistration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reg, ok := c.byConn[connID]
	return reg, ok
}
