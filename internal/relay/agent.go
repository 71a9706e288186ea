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
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/slskd/slskd/internal/slskderrors"
	"github.com/slskd/slskd/internal/watchdog"
)

// mustJSON marshals v, panicking on failure. Every call site passes a
// small literal map of JSON-safe values, so marshaling cannot fail in
// practice.
func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}

// decodeBase62 reverses base62Encode.
func decodeBase62(s string) ([]byte, error) {
	n := new(big.Int)
	base := big.NewInt(62)
	for _, r := range s {
		idx := -1
		for i, c := range base62Alphabet {
			if c == r {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, slskderrors.Wrap("relay.decodeBase62", slskderrors.KindValidationFailed, nil)
		}
		n.Mul(n, base)
		n.Add(n, big.NewInt(int64(idx)))
	}
	raw := n.Bytes()
	if len(raw) >= tokenByteLen {
		return raw, nil
	}
	padded := make([]byte, tokenByteLen)
	copy(padded[tokenByteLen-len(raw):], raw)
	return padded, nil
}

// FileProvider resolves a filename to its bytes for servicing
// RequestFileUpload, the agent-side mirror of shareindex.ShareRepository.
type FileProvider interface {
	Open(filename string) (io.ReadCloser, int64, error)
	Stat(filename string) (exists bool, length int64)
}

// HTTPPoster performs the multipart POSTs §4.C4 routes outside the hub
// (share upload, file-stream bodies). Narrowed to this one method so
// tests can substitute a fake without standing up a real HTTP server.
type HTTPPoster interface {
	PostMultipart(ctx context.Context, url string, fields map[string]string, fileField, fileName string, body io.Reader) error
}

// Agent is the agent-side half of §4.C4: it connects to the controller's
// hub with automatic reconnect, answers the authentication challenge,
// uploads its shares exactly once, then services incoming requests.
type Agent struct {
	Name   string
	Secret string

	HubURL          string
	SharesUploadURL func(token string) string
	FileUploadURL   func(id int) string

	files  FileProvider
	poster HTTPPoster

	sharesJSON   []byte
	databaseFile []byte

	mu           sync.Mutex
	send         chan Envelope
	uploadedOnce bool

	dog *watchdog.Watchdog
}

// NewAgent builds an Agent. sharesJSON/databaseFile are the payload sent
// once per controller session via begin_share_upload.
func NewAgent(name, secret, hubURL string, files FileProvider, poster HTTPPoster, sharesJSON, databaseFile []byte) *Agent {
	a := &Agent{
		Name:         name,
		Secret:       secret,
		HubURL:       hubURL,
		files:        files,
		poster:       poster,
		sharesJSON:   sharesJSON,
		databaseFile: databaseFile,
	}
	a.dog = watchdog.New(dialerFunc(a.connectOnce), nil)
	return a
}

// Start begins the connect/reconnect loop (§4.C4 "Agent side... automatic
// reconnect").
func (a *Agent) Start() { a.dog.Start() }

// Stop ends the agent's connection permanently.
func (a *Agent) Stop() { a.dog.Stop() }

// dialerFunc adapts a plain function to watchdog.Dialer.
type dialerFunc func(ctx context.Context) error

func (f dialerFunc) Connect(ctx context.Context) error { return f(ctx) }

// connectOnce dials the hub and runs the read loop until it ends. It
// always returns a (retryable) error, so the watchdog dials again with
// backoff after a failed dial or a dropped session.
func (a *Agent) connectOnce(ctx context.Context) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, a.HubURL, nil)
	if err != nil {
		return slskderrors.Wrap("relay.Agent.connectOnce", slskderrors.KindPeerProtocol, err)
	}

	a.mu.Lock()
	a.send = make(chan Envelope, 16)
	a.uploadedOnce = false
	sendCh := a.send
	a.mu.Unlock()

	go a.writeLoop(ws, sendCh)

	// ReadJSON below doesn't observe ctx; closing the connection when ctx
	// is cancelled is what makes Stop() return promptly instead of
	// blocking on an in-flight read forever.
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-stopWatch:
		}
	}()

	for {
		var env Envelope
		if err := ws.ReadJSON(&env); err != nil {
			ws.Close()
			return slskderrors.Wrap("relay.Agent.connectOnce", slskderrors.KindPeerProtocol, err)
		}
		a.handle(ctx, env)
	}
}

func (a *Agent) writeLoop(ws *websocket.Conn, send chan Envelope) {
	for env := range send {
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteJSON(env); err != nil {
			return
		}
	}
}

func (a *Agent) push(env Envelope) {
	a.mu.Lock()
	ch := a.send
	a.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- env:
	default:
	}
}

func (a *Agent) handle(ctx context.Context, env Envelope) {
	switch env.Type {
	case "Challenge":
		payload, err := decodeJSON[struct {
			AuthToken string `json:"authToken"`
		}](env.Payload)
		if err != nil {
			return
		}
		a.respondToChallenge(payload.AuthToken)

	case "LoginResult":
		payload, err := decodeJSON[struct {
			Success bool `json:"success"`
		}](env.Payload)
		if err == nil && payload.Success {
			a.beginShareUploadOnce(ctx)
		}

	case "ShareUploadToken":
		payload, err := decodeJSON[struct {
			Token string `json:"token"`
		}](env.Payload)
		if err != nil {
			return
		}
		go a.uploadShares(ctx, payload.Token)

	case "RequestFileUpload":
		payload, err := decodeJSON[struct {
			Filename    string `json:"filename"`
			StartOffset int64  `json:"startOffset"`
			ID          int    `json:"id"`
			Token       string `json:"token"`
		}](env.Payload)
		if err != nil {
			return
		}
		go a.serviceFileUpload(ctx, payload.Filename, payload.StartOffset, payload.ID, payload.Token)

	case "RequestFileInfo":
		payload, err := decodeJSON[struct {
			Filename string `json:"filename"`
			ID       int    `json:"id"`
		}](env.Payload)
		if err != nil {
			return
		}
		exists, length := a.files.Stat(payload.Filename)
		a.push(Envelope{Type: "ReturnFileInfo", Payload: mustJSON(map[string]any{
			"id": payload.ID, "exists": exists, "length": length,
		})})

	case "NotifyFileDownloadCompleted":
		// Purely informational on the agent side; nothing to acknowledge.
	}
}

func (a *Agent) respondToChallenge(authToken string) {
	tokenBytes, err := decodeBase62(authToken)
	if err != nil {
		return
	}
	credential, err := ComputeCredential(a.Secret, a.Name, tokenBytes)
	if err != nil {
		return
	}
	a.push(Envelope{Type: "Login", Payload: mustJSON(map[string]string{
		"agentName":  a.Name,
		"credential": base64.StdEncoding.EncodeToString(credential),
	})})
}

func (a *Agent) beginShareUploadOnce(ctx context.Context) {
	a.mu.Lock()
	already := a.uploadedOnce
	a.uploadedOnce = true
	a.mu.Unlock()
	if already {
		return
	}
	a.push(Envelope{Type: "BeginShareUpload"})
}

func (a *Agent) uploadShares(ctx context.Context, token string) {
	tokenBytes, err := decodeBase62(token)
	if err != nil {
		return
	}
	credential, err := ComputeCredential(a.Secret, a.Name, tokenBytes)
	if err != nil {
		return
	}
	fields := map[string]string{
		"name":       a.Name,
		"credential": base64.StdEncoding.EncodeToString(credential),
		"shares":     string(a.sharesJSON),
	}
	url := a.SharesUploadURL(token)
	a.poster.PostMultipart(ctx, url, fields, "database", "shares.db", bytes.NewReader(a.databaseFile))
}

func (a *Agent) serviceFileUpload(ctx context.Context, filename string, startOffset int64, id int, token string) {
	body, _, err := a.files.Open(filename)
	if err != nil {
		a.push(Envelope{Type: "NotifyFileUploadFailed", Payload: mustJSON(map[string]int{"id": id})})
		return
	}
	defer body.Close()
	if startOffset > 0 {
		io.CopyN(io.Discard, body, startOffset)
	}

	tokenBytes, err := decodeBase62(token)
	if err != nil {
		a.push(Envelope{Type: "NotifyFileUploadFailed", Payload: mustJSON(map[string]int{"id": id})})
		return
	}
	credential, err := ComputeCredential(a.Secret, a.Name, tokenBytes)
	if err != nil {
		a.push(Envelope{Type: "NotifyFileUploadFailed", Payload: mustJSON(map[string]int{"id": id})})
		return
	}

	fields := map[string]string{
		"name":       a.Name,
		"credential": base64.StdEncoding.EncodeToString(credential),
	}
	url := a.FileUploadURL(id)
	if err := a.poster.PostMultipart(ctx, url, fields, "file", filename, body); err != nil {
		a.push(Envelope{Type: "NotifyFileUploadFailed", Payload: mustJSON(map[string]int{"id": id})})
	}
}
