package main

import (
	"encoding/json"

	"arena-server/internal/game"
)

// Client -> Server message types
const (
	MsgList    = "list"   // list sessions
	MsgCreate  = "create" // create session
	MsgJoin    = "join"
	MsgLeave   = "leave"
	MsgInput   = "input"
	MsgPlace   = "place" // place weapon from a loadout slot
	MsgState   = "state" // request a full snapshot
	MsgRematch = "rematch"
)

// Server -> Client message types
const (
	MsgResult   = "result"
	MsgSessions = "sessions"
	MsgCreated  = "created"
	MsgSnapshot = "snapshot" // binary
	MsgDiff     = "diff"     // binary
)

// Binary input frame: [binInput, x int8, y int8]
const (
	binInput    = 0x01
	binInputLen = 3
)

// Envelope wraps all outgoing JSON messages with a type field
type Envelope struct {
	T    string `json:"t"`
	Data any    `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages; json.RawMessage avoids double-unmarshal
type InEnvelope struct {
	T   string          `json:"t"`
	Req int             `json:"req,omitempty"` // echoed in the result
	D   json.RawMessage `json:"d,omitempty"`
}

// Frame is a binary msgpack state message.
type Frame struct {
	T string         `msgpack:"t"`
	D game.StateDiff `msgpack:"d"`
}

// CreateMsg creates a session. Zero fields take the mode defaults.
type CreateMsg struct {
	Name       string `json:"name"`
	Mode       string `json:"mode"`
	Width      int    `json:"w,omitempty"`
	Height     int    `json:"h,omitempty"`
	Difficulty int    `json:"difficulty,omitempty"`
	MaxPlayers int    `json:"max_players,omitempty"`
	Template   string `json:"template,omitempty"`
	Chain      string `json:"chain,omitempty"`
	Group      string `json:"group,omitempty"`
	Snake      bool   `json:"snake,omitempty"`
	Target     string `json:"target,omitempty"` // training: player|enemy
	Seed       uint64 `json:"seed,omitempty"`
}

// JoinMsg is sent when a player wants to join a session
type JoinMsg struct {
	SessionID string `json:"sid"`
	PlayerID  string `json:"pid"`
	Unit      string `json:"unit,omitempty"`
	Ticket    string `json:"ticket,omitempty"`
}

// InputMsg carries the movement vector, components in [-1, 1]
type InputMsg struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PlaceMsg places the weapon of a loadout slot
type PlaceMsg struct {
	Slot int `json:"slot"`
}

// ResultMsg answers every command
type ResultMsg struct {
	Req    int    `json:"req,omitempty"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	Msg    string `json:"msg,omitempty"`
	ID     string `json:"id,omitempty"` // created weapon or session
}

// SessionInfo is used in the session list
type SessionInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Mode    string `json:"mode"`
	State   string `json:"state"`
	Players int    `json:"players"`
	Max     int    `json:"max"`
}

// decodeInput maps a binary input frame onto a movement vector.
func decodeInput(msg []byte) (game.Vec, bool) {
	if len(msg) != binInputLen || msg[0] != binInput {
		return game.Vec{}, false
	}
	return game.Vec{
		X: float64(int8(msg[1])) / 127,
		Y: float64(int8(msg[2])) / 127,
	}, true
}
