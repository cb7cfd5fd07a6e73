package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"arena-server/internal/game"
)

// ---------- helpers ----------

var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

type testServer struct {
	srv      *httptest.Server
	wsURL    string
	hub      *Hub
	sessions *SessionManager
}

// startTestServer spins up an httptest.Server with a running Hub and a
// short session idle timeout.
func startTestServer(t *testing.T, tickets *Tickets) *testServer {
	t.Helper()
	return startServer(t, tickets, 500*time.Millisecond)
}

func startServer(t *testing.T, tickets *Tickets, idle time.Duration) *testServer {
	t.Helper()
	sessions := NewSessionManager(ManagerOptions{IdleTimeout: idle}, nil, nil, nil, quietLog())
	hub := NewHub(sessions, tickets, quietLog())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	srv := httptest.NewServer(SetupRoutes(hub))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return &testServer{
		srv:      srv,
		wsURL:    "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		hub:      hub,
		sessions: sessions,
	}
}

// dialWS opens a WebSocket connection to the test server.
func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wireMsg struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d"`
}

// sendMsg sends a typed request over the WebSocket.
func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, req int, data any) {
	t.Helper()
	raw, _ := json.Marshal(map[string]any{"t": msgType, "req": req, "d": data})
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

// readJSON reads until a text message of type want arrives, skipping state frames.
func readJSON(t *testing.T, conn *websocket.Conn, want string, v any) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read WS waiting for %s: %v", want, err)
		}
		if msgType == websocket.BinaryMessage {
			continue
		}
		var msg wireMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.T != want {
			continue
		}
		if v != nil {
			if err := json.Unmarshal(msg.D, v); err != nil {
				t.Fatalf("unmarshal %s: %v", want, err)
			}
		}
		return
	}
}

// readFrame reads binary frames until one matches.
func readFrame(t *testing.T, conn *websocket.Conn, match func(Frame) bool) Frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read WS waiting for frame: %v", err)
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		var f Frame
		if err := msgpack.Unmarshal(raw, &f); err != nil {
			t.Fatalf("msgpack unmarshal: %v", err)
		}
		if match(f) {
			return f
		}
	}
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readResult(t *testing.T, conn *websocket.Conn) ResultMsg {
	t.Helper()
	var res ResultMsg
	readJSON(t, conn, MsgResult, &res)
	return res
}

func createSession(t *testing.T, conn *websocket.Conn, msg CreateMsg) string {
	t.Helper()
	sendMsg(t, conn, MsgCreate, 1, msg)
	var created map[string]string
	readJSON(t, conn, MsgCreated, &created)
	res := readResult(t, conn)
	if !res.OK || res.ID != created["sid"] {
		t.Fatalf("create result = %+v, created = %v", res, created)
	}
	return created["sid"]
}

func joinSession(t *testing.T, conn *websocket.Conn, sid, pid string) {
	t.Helper()
	sendMsg(t, conn, MsgJoin, 2, JoinMsg{SessionID: sid, PlayerID: pid})
	if res := readResult(t, conn); !res.OK {
		t.Fatalf("join rejected: %+v", res)
	}
}

// ---------- tests ----------

func TestCreateJoinReceivesSnapshot(t *testing.T) {
	ts := startTestServer(t, nil)
	conn := dialWS(t, ts.wsURL)

	sid := createSession(t, conn, CreateMsg{Name: "Arena", Mode: "campaign", Seed: 3})
	if !uuidRegex.MatchString(sid) {
		t.Errorf("session id %q is not a uuid", sid)
	}

	sendMsg(t, conn, MsgJoin, 7, JoinMsg{SessionID: sid, PlayerID: "p1"})
	snap := readFrame(t, conn, func(f Frame) bool { return f.T == MsgSnapshot })
	if !snap.D.Full || snap.D.Map == nil || len(snap.D.Map.Rows) != snap.D.Map.Height {
		t.Fatalf("snapshot incomplete: full=%v map=%+v", snap.D.Full, snap.D.Map)
	}
	if _, ok := snap.D.Players.Changed["p1"]; !ok {
		t.Error("snapshot missing the joining player")
	}
	res := readResult(t, conn)
	if !res.OK || res.Req != 7 {
		t.Errorf("join result = %+v", res)
	}
}

func TestCreateRejectsUnknownMode(t *testing.T) {
	ts := startTestServer(t, nil)
	conn := dialWS(t, ts.wsURL)
	sendMsg(t, conn, MsgCreate, 1, CreateMsg{Mode: "capture-the-flag"})
	res := readResult(t, conn)
	if res.OK || res.Reason != string(game.ReasonInvalid) {
		t.Errorf("result = %+v", res)
	}
	if ts.sessions.Count() != 0 {
		t.Error("rejected create left a session behind")
	}
}

func TestListSessions(t *testing.T) {
	ts := startTestServer(t, nil)
	conn := dialWS(t, ts.wsURL)
	createSession(t, conn, CreateMsg{Name: "zeta", Mode: "teams"})
	createSession(t, conn, CreateMsg{Name: "alpha", Mode: "ffa"})

	sendMsg(t, conn, MsgList, 3, nil)
	var list []SessionInfo
	readJSON(t, conn, MsgSessions, &list)
	if len(list) != 2 {
		t.Fatalf("sessions = %v", list)
	}
	if list[0].Name != "alpha" || list[1].Name != "zeta" {
		t.Errorf("not sorted by name: %v", list)
	}
	if list[1].Mode != "teams" || list[1].Max == 0 {
		t.Errorf("info = %+v", list[1])
	}
}

func TestJoinUnknownSession(t *testing.T) {
	ts := startTestServer(t, nil)
	conn := dialWS(t, ts.wsURL)
	sendMsg(t, conn, MsgJoin, 1, JoinMsg{SessionID: "nope", PlayerID: "p1"})
	if res := readResult(t, conn); res.OK || res.Reason != string(game.ReasonNotFound) {
		t.Errorf("result = %+v", res)
	}
}

func TestCommandsWithoutSession(t *testing.T) {
	ts := startTestServer(t, nil)
	conn := dialWS(t, ts.wsURL)
	for _, typ := range []string{MsgPlace, MsgState, MsgRematch, MsgLeave} {
		sendMsg(t, conn, typ, 1, nil)
		if res := readResult(t, conn); res.OK || res.Reason != string(game.ReasonNotFound) {
			t.Errorf("%s result = %+v", typ, res)
		}
	}
}

func TestUnknownMessageType(t *testing.T) {
	ts := startTestServer(t, nil)
	conn := dialWS(t, ts.wsURL)
	sendMsg(t, conn, "teleport", 9, nil)
	if res := readResult(t, conn); res.OK || res.Req != 9 || res.Reason != string(game.ReasonInvalid) {
		t.Errorf("result = %+v", res)
	}
}

func TestPlaceWeapon(t *testing.T) {
	ts := startTestServer(t, nil)
	conn := dialWS(t, ts.wsURL)
	sid := createSession(t, conn, CreateMsg{Name: "bombs", Mode: "campaign", Seed: 5})
	joinSession(t, conn, sid, "p1")

	sendMsg(t, conn, MsgPlace, 4, PlaceMsg{Slot: 0})
	res := readResult(t, conn)
	if !res.OK || res.ID == "" {
		t.Fatalf("place result = %+v", res)
	}
	f := readFrame(t, conn, func(f Frame) bool {
		_, ok := f.D.Weapons.Changed[res.ID]
		return f.T == MsgDiff && ok
	})
	if f.D.Weapons.Changed[res.ID]["o"] != "p1" {
		t.Errorf("weapon fields = %v", f.D.Weapons.Changed[res.ID])
	}

	sendMsg(t, conn, MsgPlace, 5, PlaceMsg{Slot: 7})
	if res := readResult(t, conn); res.OK || res.Reason != string(game.ReasonInvalid) {
		t.Errorf("bad slot result = %+v", res)
	}
}

func TestBinaryInputMovesPlayer(t *testing.T) {
	ts := startTestServer(t, nil)
	conn := dialWS(t, ts.wsURL)
	sid := createSession(t, conn, CreateMsg{Name: "move", Mode: "campaign", Seed: 11})
	sendMsg(t, conn, MsgJoin, 2, JoinMsg{SessionID: sid, PlayerID: "p1"})
	snap := readFrame(t, conn, func(f Frame) bool { return f.T == MsgSnapshot })
	y0, _ := snap.D.Players.Changed["p1"]["y"].(float64)
	if res := readResult(t, conn); !res.OK {
		t.Fatalf("join = %+v", res)
	}

	// the first spawn is the top-left corner, so down is always open
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{binInput, 0, 127}); err != nil {
		t.Fatal(err)
	}
	readFrame(t, conn, func(f Frame) bool {
		y, ok := f.D.Players.Changed["p1"]["y"].(float64)
		return f.T == MsgDiff && ok && y > y0
	})
}

func TestStateRequestSendsSnapshot(t *testing.T) {
	ts := startTestServer(t, nil)
	conn := dialWS(t, ts.wsURL)
	sid := createSession(t, conn, CreateMsg{Name: "snap", Mode: "ffa"})
	joinSession(t, conn, sid, "p1")

	sendMsg(t, conn, MsgState, 6, nil)
	f := readFrame(t, conn, func(f Frame) bool { return f.T == MsgSnapshot })
	if f.D.Scalars.Mode != "ffa" {
		t.Errorf("scalars = %+v", f.D.Scalars)
	}
}

func TestTicketRequiredToJoin(t *testing.T) {
	tickets := NewTickets("integration-secret")
	ts := startTestServer(t, tickets)
	conn := dialWS(t, ts.wsURL)
	sid := createSession(t, conn, CreateMsg{Name: "ranked", Mode: "ffa"})

	sendMsg(t, conn, MsgJoin, 1, JoinMsg{SessionID: sid, PlayerID: "p1"})
	if res := readResult(t, conn); res.OK || res.Reason != string(game.ReasonInvalid) {
		t.Fatalf("join without ticket = %+v", res)
	}

	other, _ := tickets.Issue(sid, "p2", "", time.Minute)
	sendMsg(t, conn, MsgJoin, 2, JoinMsg{SessionID: sid, PlayerID: "p1", Ticket: other})
	if res := readResult(t, conn); res.OK {
		t.Fatal("ticket of another player accepted")
	}

	tok, err := tickets.Issue(sid, "p1", "", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	sendMsg(t, conn, MsgJoin, 3, JoinMsg{SessionID: sid, PlayerID: "p1", Ticket: tok})
	if res := readResult(t, conn); !res.OK {
		t.Fatalf("join with ticket = %+v", res)
	}
}

func TestLeaveRemovesIdleSession(t *testing.T) {
	ts := startTestServer(t, nil)
	conn := dialWS(t, ts.wsURL)
	sid := createSession(t, conn, CreateMsg{Name: "short", Mode: "campaign"})
	joinSession(t, conn, sid, "p1")

	sendMsg(t, conn, MsgLeave, 8, nil)
	if res := readResult(t, conn); !res.OK {
		t.Fatalf("leave = %+v", res)
	}
	waitFor(t, "the idle session to be removed", func() bool { return ts.sessions.GetSession(sid) == nil })
}

func TestSocketDropKeepsPlayerForGrace(t *testing.T) {
	ts := startServer(t, nil, time.Minute)
	conn := dialWS(t, ts.wsURL)
	sid := createSession(t, conn, CreateMsg{Name: "flaky", Mode: "campaign"})
	joinSession(t, conn, sid, "p1")
	sess := ts.sessions.GetSession(sid)
	conn.Close()

	waitFor(t, "the player to be marked disconnected", func() bool {
		var f Frame
		if err := msgpack.Unmarshal(sess.Game.Snapshot(), &f); err != nil {
			t.Fatal(err)
		}
		return f.D.Players.Changed["p1"]["d"] == true
	})
	waitFor(t, "the connection to be released", func() bool { return ts.hub.TotalConns() == 0 })

	again := dialWS(t, ts.wsURL)
	sendMsg(t, again, MsgJoin, 1, JoinMsg{SessionID: sid, PlayerID: "p1"})
	if res := readResult(t, again); !res.OK {
		t.Errorf("rejoin = %+v", res)
	}
}

func TestHealthz(t *testing.T) {
	ts := startTestServer(t, nil)
	conn := dialWS(t, ts.wsURL)
	createSession(t, conn, CreateMsg{Name: "h", Mode: "campaign"})
	waitFor(t, "the connection to be tracked", func() bool { return ts.hub.TotalConns() == 1 })

	resp, err := http.Get(ts.srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Sessions != 1 || body.Conns != 1 {
		t.Errorf("healthz = %+v", body)
	}
}

func TestConnectionLimitPerIP(t *testing.T) {
	ts := startTestServer(t, nil)
	for i := 0; i < maxConnsPerIP; i++ {
		dialWS(t, ts.wsURL)
	}
	waitFor(t, "all connections to be tracked", func() bool { return ts.hub.TotalConns() == maxConnsPerIP })
	_, resp, err := websocket.DefaultDialer.Dial(ts.wsURL, nil)
	if err == nil {
		t.Fatal("connection over the per-IP limit accepted")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("resp = %v", resp)
	}
}
