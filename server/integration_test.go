package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/bcrypt"

	"wavebounce/sim"
)

// ---------- helpers ----------

var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

const testWaveCount = 90

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.World.Workers = 1
	cfg.Wave = sim.WaveConfig{Count: testWaveCount, Speed: 100, Life: 5}
	return cfg
}

// startTestServer spins up an httptest.Server with a Hub and returns
// the server, its WebSocket URL, and a cleanup func. A non-nil db enables
// accounts and level storage.
func startTestServer(t *testing.T, db *DB, cfg Config) (*httptest.Server, string, func()) {
	t.Helper()

	prevIdleTimeout := RoomIdleTimeout
	RoomIdleTimeout = 150 * time.Millisecond

	// Create a temp client dir with a minimal index.html
	tmpDir := t.TempDir()
	jsDir := filepath.Join(tmpDir, "js")
	os.MkdirAll(jsDir, 0o755)
	os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte("<html>test</html>"), 0o644)
	os.WriteFile(filepath.Join(jsDir, "main.js"), []byte("// test"), 0o644)

	hub := NewHub(db, cfg)
	if db != nil {
		hub.auth.cost = bcrypt.MinCost
	}
	go hub.Run()

	mux := SetupRoutes(hub, tmpDir)
	srv := httptest.NewServer(mux)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	return srv, wsURL, func() {
		srv.Close()
		hub.Close()
		RoomIdleTimeout = prevIdleTimeout
	}
}

// dialWS opens a WebSocket connection to the test server.
func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	return conn
}

// readEnvelope reads one message from the WebSocket.
func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read WS: %v", err)
	}
	// Binary messages are msgpack-encoded FrameState
	if msgType == websocket.BinaryMessage {
		var fs FrameState
		if err := msgpack.Unmarshal(raw, &fs); err != nil {
			t.Fatalf("msgpack unmarshal: %v", err)
		}
		return Envelope{T: MsgFrame, Data: fs}
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return env
}

// readUntil skips messages until one of type msgType arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) Envelope {
	t.Helper()
	for i := 0; i < 200; i++ {
		env := readEnvelope(t, conn)
		if env.T == msgType {
			return env
		}
	}
	t.Fatalf("no %s message received", msgType)
	return Envelope{}
}

// sendMsg sends a typed message over the WebSocket.
func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	env := Envelope{T: msgType, Data: data}
	raw, _ := json.Marshal(env)
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

// dataMap extracts the Data field as map[string]interface{}.
func dataMap(t *testing.T, env Envelope) map[string]interface{} {
	t.Helper()
	raw, _ := json.Marshal(env.Data)
	var m map[string]interface{}
	json.Unmarshal(raw, &m)
	return m
}

// decodeData re-decodes the Data field into v.
func decodeData(t *testing.T, env Envelope, v interface{}) {
	t.Helper()
	raw, _ := json.Marshal(env.Data)
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode %s: %v", env.T, err)
	}
}

// createAndJoin creates a room then joins it. Returns the room ID and the
// initial obstacle set.
func createAndJoin(t *testing.T, conn *websocket.Conn, name, rname string) (string, ObstaclesMsg) {
	t.Helper()
	sendMsg(t, conn, "create", map[string]string{"name": name, "sname": rname})
	created := readEnvelope(t, conn)
	if created.T != MsgCreated {
		t.Fatalf("expected created, got %s", created.T)
	}
	sid := dataMap(t, created)["sid"].(string)

	sendMsg(t, conn, "join", map[string]string{"name": name, "sid": sid})
	joined := readEnvelope(t, conn)
	if joined.T != MsgJoined {
		t.Fatalf("expected joined, got %s", joined.T)
	}
	if welcome := readEnvelope(t, conn); welcome.T != MsgWelcome {
		t.Fatalf("expected welcome, got %s", welcome.T)
	}
	obs := readEnvelope(t, conn)
	if obs.T != MsgObstacles {
		t.Fatalf("expected obstacles, got %s", obs.T)
	}
	var state ObstaclesMsg
	decodeData(t, obs, &state)
	return sid, state
}

// ---------- UUID generation ----------

func TestGenerateUUIDFormat(t *testing.T) {
	for i := 0; i < 20; i++ {
		id := GenerateUUID()
		if !uuidRegex.MatchString(id) {
			t.Errorf("GenerateUUID() = %q, does not match UUID v4 format", id)
		}
	}
}

func TestGenerateIDLength(t *testing.T) {
	for i := 0; i < 20; i++ {
		if id := GenerateID(); len(id) != 8 {
			t.Errorf("GenerateID() = %q, want 8 chars", id)
		}
	}
}

// ---------- SPA routing ----------

func TestSPARoutingRoomPath(t *testing.T) {
	srv, _, cleanup := startTestServer(t, nil, testConfig())
	defer cleanup()

	resp, err := http.Get(srv.URL + "/" + GenerateUUID())
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", cc)
	}
	buf := make([]byte, 100)
	n, _ := resp.Body.Read(buf)
	if !strings.Contains(string(buf[:n]), "<html>") {
		t.Errorf("room path should serve index.html, got %q", buf[:n])
	}
}

func TestSPARoutingNonUUIDPath(t *testing.T) {
	srv, _, cleanup := startTestServer(t, nil, testConfig())
	defer cleanup()

	resp, err := http.Get(srv.URL + "/not-a-uuid")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("GET /not-a-uuid status = %d, want 404", resp.StatusCode)
	}
}

// ---------- Room protocol ----------

func TestCreateJoinReceivesObstacles(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t, nil, testConfig())
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()

	sid, obs := createAndJoin(t, c, "Alice", "Tank")
	if !uuidRegex.MatchString(sid) {
		t.Errorf("room id %q is not a UUID", sid)
	}
	if len(obs.Obstacles) != 8 || obs.Width != 800 {
		t.Errorf("unexpected default level: %d obstacles, width %g", len(obs.Obstacles), obs.Width)
	}
}

func TestCheckRoom(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t, nil, testConfig())
	defer cleanup()

	c1 := dialWS(t, wsURL)
	defer c1.Close()
	sid, _ := createAndJoin(t, c1, "Alice", "Tank")

	c2 := dialWS(t, wsURL)
	defer c2.Close()

	sendMsg(t, c2, "check", map[string]string{"sid": sid})
	d := dataMap(t, readUntil(t, c2, MsgChecked))
	if d["exists"] != true || d["name"] != "Tank" || d["viewers"].(float64) != 1 {
		t.Errorf("unexpected check result %v", d)
	}

	fake := GenerateUUID()
	sendMsg(t, c2, "check", map[string]string{"sid": fake})
	d = dataMap(t, readUntil(t, c2, MsgChecked))
	if d["exists"] != false || d["sid"] != fake {
		t.Errorf("unexpected check result %v", d)
	}
}

func TestJoinNonExistentRoom(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t, nil, testConfig())
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()

	sendMsg(t, c, "join", map[string]string{"name": "Lost", "sid": GenerateUUID()})
	if env := readEnvelope(t, c); env.T != MsgError {
		t.Fatalf("expected error, got %s", env.T)
	}
}

func TestSpawnBroadcastsFrames(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t, nil, testConfig())
	defer cleanup()

	c1 := dialWS(t, wsURL)
	defer c1.Close()
	sid, _ := createAndJoin(t, c1, "Alice", "Tank")

	c2 := dialWS(t, wsURL)
	defer c2.Close()
	sendMsg(t, c2, "join", map[string]string{"name": "Bob", "sid": sid})
	readUntil(t, c2, MsgObstacles)

	sendMsg(t, c1, "spawn", SpawnMsg{X: 400, Y: 150})
	var spawned SpawnedMsg
	decodeData(t, readUntil(t, c1, MsgSpawned), &spawned)
	if spawned.Count != testWaveCount {
		t.Errorf("spawned %d, want %d", spawned.Count, testWaveCount)
	}

	// The other viewer sees the particles in a frame
	for i := 0; i < 60; i++ {
		env := readUntil(t, c2, MsgFrame)
		fs := env.Data.(FrameState)
		if fs.Total == 0 {
			continue
		}
		if fs.Total != testWaveCount || len(fs.XY) != 2*testWaveCount {
			t.Fatalf("frame total=%d xy=%d", fs.Total, len(fs.XY))
		}
		return
	}
	t.Fatal("no frame with particles received")
}

func TestBinarySpawn(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t, nil, testConfig())
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()
	createAndJoin(t, c, "Alice", "Tank")

	// x=400, y=150 as big-endian int16
	msg := []byte{binarySpawn, 0x01, 0x90, 0x00, 0x96}
	if err := c.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		t.Fatal(err)
	}
	var spawned SpawnedMsg
	decodeData(t, readUntil(t, c, MsgSpawned), &spawned)
	if spawned.Live != testWaveCount {
		t.Errorf("live = %d, want %d", spawned.Live, testWaveCount)
	}
}

func TestSpawnBeforeJoin(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t, nil, testConfig())
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()

	// Ignored without a room; the next reply is for list
	sendMsg(t, c, "spawn", SpawnMsg{X: 1, Y: 1})
	sendMsg(t, c, "list", nil)
	if env := readEnvelope(t, c); env.T != MsgRooms {
		t.Errorf("expected rooms, got %s", env.T)
	}
}

func TestObstacleEditBroadcast(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t, nil, testConfig())
	defer cleanup()

	c1 := dialWS(t, wsURL)
	defer c1.Close()
	sid, initial := createAndJoin(t, c1, "Alice", "Tank")

	c2 := dialWS(t, wsURL)
	defer c2.Close()
	sendMsg(t, c2, "join", map[string]string{"name": "Bob", "sid": sid})
	readUntil(t, c2, MsgObstacles)

	sendMsg(t, c1, "obstacle", ObstacleMsg{AX: 100, AY: 600, BX: 200, BY: 600})
	var state ObstaclesMsg
	decodeData(t, readUntil(t, c2, MsgObstacles), &state)
	if len(state.Obstacles) != len(initial.Obstacles)+1 {
		t.Errorf("expected %d obstacles, got %d", len(initial.Obstacles)+1, len(state.Obstacles))
	}
	if state.Version <= initial.Version {
		t.Errorf("version %d should exceed %d", state.Version, initial.Version)
	}

	time.Sleep(150 * time.Millisecond) // edit cooldown
	sendMsg(t, c1, "erase", EraseMsg{X: 150, Y: 601})
	decodeData(t, readUntil(t, c2, MsgObstacles), &state)
	if len(state.Obstacles) != len(initial.Obstacles) {
		t.Errorf("expected %d obstacles after erase, got %d", len(initial.Obstacles), len(state.Obstacles))
	}
}

func TestAuthEditRequiresLogin(t *testing.T) {
	cfg := testConfig()
	cfg.AuthEdit = true
	_, wsURL, cleanup := startTestServer(t, nil, cfg)
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()
	createAndJoin(t, c, "Guest", "Tank")

	sendMsg(t, c, "obstacle", ObstacleMsg{AX: 100, AY: 600, BX: 200, BY: 600})
	d := dataMap(t, readUntil(t, c, MsgError))
	if d["msg"] != "login required to edit" {
		t.Errorf("unexpected error %v", d["msg"])
	}
}

func TestListRooms(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t, nil, testConfig())
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()

	sendMsg(t, c, "list", nil)
	var rooms []RoomInfo
	decodeData(t, readEnvelope(t, c), &rooms)
	if len(rooms) != 0 {
		t.Errorf("expected 0 rooms, got %d", len(rooms))
	}

	c2 := dialWS(t, wsURL)
	defer c2.Close()
	createAndJoin(t, c2, "P1", "Tank1")

	sendMsg(t, c, "list", nil)
	decodeData(t, readUntil(t, c, MsgRooms), &rooms)
	if len(rooms) != 1 {
		t.Fatalf("expected 1 room, got %d", len(rooms))
	}
	if rooms[0].Name != "Tank1" || rooms[0].Viewers != 1 {
		t.Errorf("unexpected room %+v", rooms[0])
	}
}

func TestDisconnectReapsRoom(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t, nil, testConfig())
	defer cleanup()

	c := dialWS(t, wsURL)
	sid, _ := createAndJoin(t, c, "Solo", "Temp")
	c.Close()

	time.Sleep(3*RoomIdleTimeout + 100*time.Millisecond)

	c2 := dialWS(t, wsURL)
	defer c2.Close()
	sendMsg(t, c2, "check", map[string]string{"sid": sid})
	if d := dataMap(t, readUntil(t, c2, MsgChecked)); d["exists"] != false {
		t.Error("room should be reaped after the last viewer disconnects")
	}
}

// ---------- HTTP API ----------

func TestQRCode(t *testing.T) {
	srv, wsURL, cleanup := startTestServer(t, nil, testConfig())
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()
	sid, _ := createAndJoin(t, c, "Alice", "Tank")

	resp, err := http.Get(srv.URL + "/qr/" + sid + ".png")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	head := make([]byte, 8)
	resp.Body.Read(head)
	if !bytes.Equal(head, []byte("\x89PNG\r\n\x1a\n")) {
		t.Errorf("body is not a PNG: %q", head)
	}

	missing, err := http.Get(srv.URL + "/qr/" + GenerateUUID() + ".png")
	if err != nil {
		t.Fatal(err)
	}
	missing.Body.Close()
	if missing.StatusCode != 404 {
		t.Errorf("unknown room status = %d, want 404", missing.StatusCode)
	}
}

func TestRoomURL(t *testing.T) {
	r := httptest.NewRequest("GET", "/qr/x.png", nil)
	r.Host = "waves.local:8080"
	if got := roomURL("", r, "abc"); got != "http://waves.local:8080/abc" {
		t.Errorf("roomURL = %q", got)
	}
	if got := roomURL("https://example.org/", r, "abc"); got != "https://example.org/abc" {
		t.Errorf("roomURL = %q", got)
	}
}

func TestAPIStats(t *testing.T) {
	srv, wsURL, cleanup := startTestServer(t, nil, testConfig())
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()
	createAndJoin(t, c, "Alice", "Tank")

	resp, err := http.Get(srv.URL + "/api/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var stats StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if len(stats.Rooms) != 1 || stats.Rooms[0].Name != "Tank" {
		t.Errorf("unexpected rooms %+v", stats.Rooms)
	}
}

// ---------- Accounts and levels ----------

func TestLevelSaveAndLoad(t *testing.T) {
	db := openTestDB(t)
	_, wsURL, cleanup := startTestServer(t, db, testConfig())
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()

	sendMsg(t, c, "register", RegisterMsg{Username: "alice", Password: "secret"})
	var ok AuthOKMsg
	decodeData(t, readUntil(t, c, MsgAuthOK), &ok)
	if ok.Token == "" || ok.Username != "alice" {
		t.Fatalf("unexpected auth_ok %+v", ok)
	}

	createAndJoin(t, c, "alice", "Editor")
	sendMsg(t, c, "obstacle", ObstacleMsg{AX: 100, AY: 600, BX: 200, BY: 600})
	readUntil(t, c, MsgObstacles)

	sendMsg(t, c, "level_save", LevelMsg{Name: "ledge"})
	readUntil(t, c, MsgLevelSaved)

	sendMsg(t, c, "levels", nil)
	var levels []LevelRow
	decodeData(t, readUntil(t, c, MsgLevelList), &levels)
	if len(levels) != 1 || levels[0].Name != "ledge" || levels[0].Segments != 9 || levels[0].Owner != "alice" {
		t.Fatalf("unexpected levels %+v", levels)
	}

	// A new room can start from the stored layout
	sendMsg(t, c, "create", CreateMsg{RoomName: "Copy", Level: "ledge"})
	sid := dataMap(t, readUntil(t, c, MsgCreated))["sid"].(string)
	sendMsg(t, c, "join", JoinMsg{Name: "alice", RoomID: sid})
	var state ObstaclesMsg
	decodeData(t, readUntil(t, c, MsgObstacles), &state)
	if len(state.Obstacles) != 9 {
		t.Errorf("expected 9 obstacles, got %d", len(state.Obstacles))
	}

	sendMsg(t, c, "profile", nil)
	var prof ProfileDataMsg
	decodeData(t, readUntil(t, c, MsgProfileData), &prof)
	if prof.LevelsSaved != 1 {
		t.Errorf("levels saved = %d, want 1", prof.LevelsSaved)
	}
}

func TestLevelSaveWithoutDB(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t, nil, testConfig())
	defer cleanup()

	c := dialWS(t, wsURL)
	defer c.Close()
	createAndJoin(t, c, "Alice", "Tank")

	sendMsg(t, c, "level_save", LevelMsg{Name: "x"})
	d := dataMap(t, readUntil(t, c, MsgError))
	if d["msg"] != "level storage disabled" {
		t.Errorf("unexpected error %v", d["msg"])
	}
}

func TestTokenResume(t *testing.T) {
	db := openTestDB(t)
	_, wsURL, cleanup := startTestServer(t, db, testConfig())
	defer cleanup()

	c1 := dialWS(t, wsURL)
	defer c1.Close()
	sendMsg(t, c1, "register", RegisterMsg{Username: "bob", Password: "secret"})
	var ok AuthOKMsg
	decodeData(t, readUntil(t, c1, MsgAuthOK), &ok)

	c2 := dialWS(t, wsURL)
	defer c2.Close()
	sendMsg(t, c2, "auth", AuthMsg{Token: ok.Token})
	var resumed AuthOKMsg
	decodeData(t, readUntil(t, c2, MsgAuthOK), &resumed)
	if resumed.UserID != ok.UserID || resumed.Username != "bob" {
		t.Errorf("unexpected resume %+v", resumed)
	}

	sendMsg(t, c2, "auth", AuthMsg{Token: "bogus"})
	if d := dataMap(t, readUntil(t, c2, MsgError)); d["msg"] != ErrInvalidToken.Error() {
		t.Errorf("unexpected error %v", d["msg"])
	}
}

// ---------- Hub ----------

func TestHubClientCount(t *testing.T) {
	hub := NewHub(nil, testConfig())
	defer hub.Close()
	if hub.ClientCount() != 0 || hub.TotalConns() != 0 {
		t.Error("new hub should have no clients")
	}
	if !hub.CanAccept("1.1.1.1") {
		t.Error("new hub should accept connections")
	}
	for i := 0; i < maxConnsPerIP; i++ {
		hub.TrackConnect("1.1.1.1")
	}
	if hub.CanAccept("1.1.1.1") {
		t.Error("per-IP limit should reject")
	}
	hub.TrackDisconnect("1.1.1.1")
	if !hub.CanAccept("1.1.1.1") {
		t.Error("slot should free after disconnect")
	}
}

func TestCleanName(t *testing.T) {
	if got := cleanName("   ", "Viewer", 16); got != "Viewer" {
		t.Errorf("cleanName blank = %q", got)
	}
	if got := cleanName(" abcdefghijklmnopqrstu ", "", 5); got != "abcde" {
		t.Errorf("cleanName long = %q", got)
	}
}
