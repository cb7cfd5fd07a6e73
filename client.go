package main

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"arena-server/internal/game"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 80
	maxPlayerIDLen    = 32
)

// Client represents a WebSocket connection
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	playerID   string
	sessionID  string
	remoteAddr string
	msgCount   int
	msgResetAt time.Time
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
	}
}

func (c *Client) seat() (string, string) {
	return c.sessionID, c.playerID
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.WithField("addr", c.remoteAddr).WithError(err).Debug("ws read error")
			}
			break
		}

		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			c.hub.log.WithField("addr", c.remoteAddr).Warn("rate limit exceeded, disconnecting")
			break
		}

		if msgType == websocket.BinaryMessage {
			c.handleBinaryInput(message)
		} else {
			c.handleMessage(message)
		}
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// 0xFF prefix from SendBinary marks a binary frame
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.log.WithError(err).Error("marshal error")
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }() // send on a closed channel after unregister
	select {
	case c.send <- data:
	default:
		// client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) reply(req int, err error) {
	c.replyID(req, "", err)
}

func (c *Client) replyID(req int, id string, err error) {
	res := ResultMsg{Req: req, OK: err == nil, ID: id}
	if err != nil {
		res.Reason = string(game.ReasonOf(err))
		if res.Reason == "" {
			res.Reason = string(game.ReasonInvalid)
		}
		res.Msg = err.Error()
	}
	c.SendJSON(Envelope{T: MsgResult, Data: res})
}

var errNoSeat = &game.RejectError{Reason: game.ReasonNotFound, Message: "not in a session"}

// game returns the session the client has joined.
func (c *Client) game() (*Game, error) {
	if c.sessionID == "" {
		return nil, errNoSeat
	}
	sess := c.hub.sessions.GetSession(c.sessionID)
	if sess == nil {
		return nil, &game.RejectError{Reason: game.ReasonNotFound, Message: "session not found"}
	}
	return sess.Game, nil
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.reply(0, game.ErrInvalid)
		return
	}

	switch env.T {
	case MsgList:
		c.SendJSON(Envelope{T: MsgSessions, Data: c.hub.sessions.ListSessions()})
	case MsgCreate:
		c.handleCreate(env)
	case MsgJoin:
		c.handleJoin(env)
	case MsgLeave:
		c.handleLeave(env)
	case MsgInput:
		c.handleInput(env)
	case MsgPlace:
		c.handlePlace(env)
	case MsgState:
		c.handleState(env)
	case MsgRematch:
		c.handleRematch(env)
	default:
		c.reply(env.Req, &game.RejectError{Reason: game.ReasonInvalid, Message: "unknown message " + env.T})
	}
}

func decode(env InEnvelope, v any) error {
	if len(env.D) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.D, v); err != nil {
		return &game.RejectError{Reason: game.ReasonInvalid, Message: "malformed " + env.T + " payload"}
	}
	return nil
}

func (c *Client) handleCreate(env InEnvelope) {
	var msg CreateMsg
	if err := decode(env, &msg); err != nil {
		c.reply(env.Req, err)
		return
	}
	sess, err := c.hub.sessions.CreateSession(msg)
	if err != nil {
		c.reply(env.Req, err)
		return
	}
	c.SendJSON(Envelope{T: MsgCreated, Data: map[string]string{"sid": sess.ID}})
	c.replyID(env.Req, sess.ID, nil)
}

func (c *Client) handleJoin(env InEnvelope) {
	var msg JoinMsg
	if err := decode(env, &msg); err != nil {
		c.reply(env.Req, err)
		return
	}
	if msg.PlayerID == "" || len(msg.PlayerID) > maxPlayerIDLen {
		c.reply(env.Req, &game.RejectError{Reason: game.ReasonInvalid, Message: "player id must be 1-32 characters"})
		return
	}
	if c.sessionID != "" {
		c.reply(env.Req, &game.RejectError{Reason: game.ReasonDuplicate, Message: "already in a session"})
		return
	}
	sess := c.hub.sessions.GetSession(msg.SessionID)
	if sess == nil {
		c.reply(env.Req, &game.RejectError{Reason: game.ReasonNotFound, Message: "session not found"})
		return
	}
	unit := msg.Unit
	if c.hub.tickets != nil {
		claims, err := c.hub.tickets.Verify(msg.Ticket, msg.SessionID, msg.PlayerID)
		if err != nil {
			c.reply(env.Req, &game.RejectError{Reason: game.ReasonInvalid, Message: err.Error()})
			return
		}
		if claims.Unit != "" {
			unit = claims.Unit
		}
	}
	if err := sess.Game.Join(msg.PlayerID, unit, c); err != nil {
		c.reply(env.Req, err)
		return
	}
	c.sessionID = sess.ID
	c.playerID = msg.PlayerID
	c.reply(env.Req, nil)
}

func (c *Client) handleLeave(env InEnvelope) {
	g, err := c.game()
	if err == nil {
		err = g.Leave(c.playerID)
	}
	c.sessionID = ""
	c.playerID = ""
	c.reply(env.Req, err)
}

func (c *Client) handleInput(env InEnvelope) {
	var msg InputMsg
	if err := decode(env, &msg); err != nil {
		c.reply(env.Req, err)
		return
	}
	g, err := c.game()
	if err == nil {
		err = g.Input(c.playerID, game.Vec{X: msg.X, Y: msg.Y})
	}
	// inputs stream continuously; only failures are answered
	if err != nil {
		c.reply(env.Req, err)
	}
}

// handleBinaryInput decodes a compact binary input frame
func (c *Client) handleBinaryInput(msg []byte) {
	v, ok := decodeInput(msg)
	if !ok {
		return
	}
	g, err := c.game()
	if err != nil {
		return
	}
	g.Input(c.playerID, v)
}

func (c *Client) handlePlace(env InEnvelope) {
	var msg PlaceMsg
	if err := decode(env, &msg); err != nil {
		c.reply(env.Req, err)
		return
	}
	g, err := c.game()
	if err != nil {
		c.reply(env.Req, err)
		return
	}
	id, err := g.Place(c.playerID, msg.Slot)
	c.replyID(env.Req, id, err)
}

func (c *Client) handleState(env InEnvelope) {
	g, err := c.game()
	if err != nil {
		c.reply(env.Req, err)
		return
	}
	if data := g.Snapshot(); data != nil {
		c.SendBinary(data)
	}
}

func (c *Client) handleRematch(env InEnvelope) {
	g, err := c.game()
	if err != nil {
		c.reply(env.Req, err)
		return
	}
	if g.State() != game.StateOver {
		c.reply(env.Req, &game.RejectError{Reason: game.ReasonNotActive, Message: "rematch needs a finished session"})
		return
	}
	g.Rematch()
	c.reply(env.Req, nil)
}
