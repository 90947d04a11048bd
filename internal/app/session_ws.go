// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/squat_counter/internal/session"
)

const (
	wsWriteWait  = 5 * time.Second
	wsSendBuffer = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is sent by the browser.
type WSMessage struct {
	Action string `json:"action"` // start, stop, recalibrate
}

// WSResponse is sent to the browser.
type WSResponse struct {
	Type    string         `json:"type"` // state, ack, forwarded, error
	State   *session.State `json:"state,omitempty"`
	Action  string         `json:"action,omitempty"`
	Message string         `json:"message,omitempty"`
}

// ControlFunc forwards a browser action to the counter.
type ControlFunc func(action string) error

// SessionHub keeps the latest session state and pushes every update to
// the connected browsers.
type SessionHub struct {
	control ControlFunc
	relayed bool
	log     logrus.FieldLogger

	mu      sync.RWMutex
	last    *session.State
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan WSResponse
}

// NewSessionHub creates a hub. control may be nil for a read-only feed.
func NewSessionHub(control ControlFunc, log logrus.FieldLogger) *SessionHub {
	return &SessionHub{
		control: control,
		log:     log,
		clients: make(map[*wsClient]struct{}),
	}
}

// NewRelayHub creates a hub whose control only hands actions to a remote
// counter. A successful hand-off is answered with "forwarded", not "ack";
// the outcome arrives later as a state update.
func NewRelayHub(control ControlFunc, log logrus.FieldLogger) *SessionHub {
	h := NewSessionHub(control, log)
	h.relayed = true
	return h
}

// Update stores s and broadcasts it. Slow clients drop updates rather
// than stall the feed.
func (h *SessionHub) Update(s session.State) {
	h.mu.Lock()
	h.last = &s
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	msg := WSResponse{Type: "state", State: &s}
	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			h.log.Debug("websocket client lagging, dropping state")
		}
	}
}

// Latest returns the last state seen, if any.
func (h *SessionHub) Latest() (session.State, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.last == nil {
		return session.State{}, false
	}
	return *h.last, true
}

// ServeState handles GET /api/session.
func (h *SessionHub) ServeState(w http.ResponseWriter, r *http.Request) {
	s, ok := h.Latest()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s); err != nil {
		h.log.WithError(err).Warn("json encode error")
	}
}

// ServeWS handles the /ws/session socket: state out, actions in.
func (h *SessionHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade error")
		return
	}

	c := &wsClient{conn: conn, send: make(chan WSResponse, wsSendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.last != nil {
		s := *h.last
		c.send <- WSResponse{Type: "state", State: &s}
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go h.writeLoop(c, done)
	h.readLoop(c)

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(done)
	conn.Close()
}

func (h *SessionHub) readLoop(c *wsClient) {
	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.WithError(err).Debug("websocket read error")
			}
			return
		}
		h.reply(c, h.apply(msg.Action))
	}
}

func (h *SessionHub) apply(action string) WSResponse {
	if h.control == nil {
		return WSResponse{Type: "error", Action: action, Message: "controls disabled"}
	}
	msg, err := DecodeControl([]byte(action))
	if err != nil {
		return WSResponse{Type: "error", Action: action, Message: err.Error()}
	}
	if err := h.control(msg.Action); err != nil {
		return WSResponse{Type: "error", Action: msg.Action, Message: err.Error()}
	}
	if h.relayed {
		return WSResponse{Type: "forwarded", Action: msg.Action, Message: "sent to counter"}
	}
	return WSResponse{Type: "ack", Action: msg.Action}
}

func (h *SessionHub) reply(c *wsClient, resp WSResponse) {
	select {
	case c.send <- resp:
	default:
		h.log.Debug("websocket client lagging, dropping reply")
	}
}

func (h *SessionHub) writeLoop(c *wsClient, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				h.log.WithError(err).Debug("websocket write error")
				c.conn.Close()
				return
			}
		}
	}
}
