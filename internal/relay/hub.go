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
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/slskd/slskd/internal/slskderrors"
)

// Envelope is the wire frame for every hub message, controller-to-agent
// or agent-to-controller: a type tag plus a raw JSON payload the
// RelayCoordinator decodes based on that tag.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// agentConn is one websocket-backed duplex channel, grounded on
// perkeep's pkg/search wsConn: a buffered outbound queue drained by a
// dedicated writer goroutine, and a reader goroutine that only ever
// decodes and dispatches (it never blocks on application logic).
type agentConn struct {
	connID string
	ws     *websocket.Conn
	send   chan Envelope
}

// Hub is the controller's collection of live agent connections, the
// §4.C4 "bidirectional hub (single authenticated duplex channel per
// agent)". It depends only on the dispatch/onOpen/onClose callbacks it is
// constructed with — never on Coordinator directly — so the cyclic
// hub<->coordinator reference the original has is inverted per §9.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*agentConn

	dispatch func(connID string, env Envelope)
	onOpen   func(connID string)
	onClose  func(connID string)
}

// NewHub builds a Hub that calls dispatch for every inbound frame,
// onOpen once a connection is registered and ready to Push to, and
// onClose when a connection drops.
func NewHub(dispatch func(connID string, env Envelope), onOpen func(connID string), onClose func(connID string)) *Hub {
	return &Hub{
		conns:    make(map[string]*agentConn),
		dispatch: dispatch,
		onOpen:   onOpen,
		onClose:  onClose,
	}
}

// Serve takes ownership of an already-upgraded websocket connection,
// registers it under connID, and runs its read/write pumps until the
// connection closes.
func (h *Hub) Serve(connID string, ws *websocket.Conn) {
	c := &agentConn{connID: connID, ws: ws, send: make(chan Envelope, 32)}

	h.mu.Lock()
	h.conns[connID] = c
	h.mu.Unlock()

	if h.onOpen != nil {
		h.onOpen(connID)
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *agentConn) {
	defer h.remove(c.connID)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var env Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			return
		}
		if h.dispatch != nil {
			h.dispatch(c.connID, env)
		}
	}
}

func (h *Hub) writePump(c *agentConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.ws.Close()

	for {
		select {
		case env, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.ws.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(connID string) {
	h.mu.Lock()
	c, ok := h.conns[connID]
	if ok {
		delete(h.conns, connID)
		close(c.send)
	}
	h.mu.Unlock()
	if ok && h.onClose != nil {
		h.onClose(connID)
	}
}

// Push queues payload, tagged as msgType, for delivery to connID. It
// implements the AgentLink interface the RelayCoordinator depends on.
func (h *Hub) Push(connID, msgType string, payload any) error {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return slskderrors.Wrap("relay.Hub.Push", slskderrors.KindNotFound, nil)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return slskderrors.Wrap("relay.Hub.Push", slskderrors.KindUnknown, err)
	}

	select {
	case c.send <- Envelope{Type: msgType, Payload: raw}:
		return nil
	default:
		return slskderrors.Wrap("relay.Hub.Push", slskderrors.KindUnknown, nil)
	}
}

// Disconnect forcibly drops connID, if present.
func (h *Hub) Disconnect(connID string) {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if ok {
		c.ws.Close()
	}
}
