package main

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"wavebounce/level"
	"wavebounce/sim"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 50
	maxNameLen        = 16
	maxRoomNameLen    = 30
	maxLevelList      = 100
)

// Client represents a WebSocket connection
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	viewerID   string
	roomID     string
	remoteAddr string
	msgCount   int
	msgResetAt time.Time
	// Auth state
	authUserID   int64  // 0 = guest
	authUsername string // "" = guest
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
				log.Printf("ws error: %v", err)
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Printf("rate limit exceeded for %s, disconnecting", c.remoteAddr)
			break
		}

		// Binary spawn: 5 bytes [0x01, x_hi, x_lo, y_hi, y_lo]
		if msgType == websocket.BinaryMessage {
			if len(message) == 5 && message[0] == binarySpawn {
				c.handleBinarySpawn(message)
			}
			continue
		}
		c.handleMessage(message)
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
			// Check for binary marker (0xFF prefix from SendBinary)
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
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
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
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message.
// Prefixes with 0xFF marker byte so WritePump can distinguish from text.
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

func (c *Client) sendError(msg string) {
	c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: msg}})
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("unmarshal error: %v", err)
		return
	}

	switch env.T {
	case MsgList:
		c.handleList()
	case MsgCreate:
		c.handleCreate(env.D)
	case MsgJoin:
		c.handleJoin(env.D)
	case MsgLeave:
		c.leaveRoom()
	case MsgCheck:
		c.handleCheck(env.D)
	case MsgSpawn:
		c.handleSpawn(env.D)
	case MsgObstacle:
		c.handleObstacle(env.D)
	case MsgErase:
		c.handleErase(env.D)
	case MsgClear:
		c.handleClear()
	case MsgLevelLoad:
		c.handleLevelLoad(env.D)
	case MsgLevelSave:
		c.handleLevelSave(env.D)
	case MsgLevels:
		c.handleLevels()
	case MsgRegister:
		c.handleRegister(env.D)
	case MsgLogin:
		c.handleLogin(env.D)
	case MsgAuth:
		c.handleAuth(env.D)
	case MsgProfile:
		c.handleProfile()
	}
}

// currentRoom returns the joined room, or nil
func (c *Client) currentRoom() *Room {
	if c.roomID == "" || c.viewerID == "" {
		return nil
	}
	return c.hub.rooms.GetRoom(c.roomID)
}

// canEdit reports whether this client may change obstacles
func (c *Client) canEdit() bool {
	if c.hub.cfg.AuthEdit && c.authUserID == 0 {
		c.sendError("login required to edit")
		return false
	}
	return true
}

func (c *Client) handleList() {
	c.SendJSON(Envelope{T: MsgRooms, Data: c.hub.rooms.ListRooms()})
}

func (c *Client) handleCreate(data json.RawMessage) {
	var msg CreateMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	rname := cleanName(msg.RoomName, "Wave Tank", maxRoomNameLen)

	var lvl *level.Level
	if msg.Level != "" {
		l, err := c.loadStoredLevel(msg.Level)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		lvl = l
	}

	room, err := c.hub.rooms.CreateRoom(rname, lvl)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.SendJSON(Envelope{T: MsgCreated, Data: map[string]string{"sid": room.ID}})
}

func (c *Client) handleJoin(data json.RawMessage) {
	var msg JoinMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	name := cleanName(msg.Name, "Viewer", maxNameLen)

	room := c.hub.rooms.GetRoom(msg.RoomID)
	if room == nil {
		c.sendError("room not found")
		return
	}
	c.leaveRoom()

	v, err := room.AddViewer(name, c.authUserID)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.hub.rooms.MarkActive(room.ID)
	c.viewerID = v.ID
	c.roomID = room.ID

	wave := room.WaveConfig()
	c.SendJSON(Envelope{T: MsgJoined, Data: map[string]string{"sid": room.ID}})
	c.SendJSON(Envelope{T: MsgWelcome, Data: WelcomeMsg{
		ID:        v.ID,
		WaveCount: wave.Count,
		WaveSpeed: wave.Speed,
		WaveLife:  wave.Life,
		Cooldown:  SpawnCooldown,
	}})
	c.SendJSON(Envelope{T: MsgObstacles, Data: room.ObstaclesState()})
	// Frames start only after the joiner has the obstacle set
	room.SetClient(v.ID, c)
}

// leaveRoom detaches the client from its room, if any
func (c *Client) leaveRoom() {
	if c.roomID == "" {
		return
	}
	v := c.hub.rooms.RemoveViewer(c.roomID, c.viewerID)
	c.hub.flushViewer(v)
	c.roomID = ""
	c.viewerID = ""
}

func (c *Client) handleCheck(data json.RawMessage) {
	var msg CheckMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	room := c.hub.rooms.GetRoom(msg.RoomID)
	if room == nil {
		c.SendJSON(Envelope{T: MsgChecked, Data: CheckedMsg{RoomID: msg.RoomID, Exists: false}})
		return
	}
	c.SendJSON(Envelope{T: MsgChecked, Data: CheckedMsg{
		RoomID:  msg.RoomID,
		Exists:  true,
		Name:    room.Name,
		Viewers: room.ViewerCount(),
	}})
}

// handleBinarySpawn decodes a compact 5-byte spawn request
func (c *Client) handleBinarySpawn(msg []byte) {
	x := float64(int16(uint16(msg[1])<<8 | uint16(msg[2])))
	y := float64(int16(uint16(msg[3])<<8 | uint16(msg[4])))
	c.spawn(x, y)
}

func (c *Client) handleSpawn(data json.RawMessage) {
	var msg SpawnMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	c.spawn(msg.X, msg.Y)
}

func (c *Client) spawn(x, y float64) {
	room := c.currentRoom()
	if room == nil {
		return
	}
	n, err := room.Spawn(c.viewerID, x, y)
	switch {
	case errors.Is(err, ErrCooldown):
		// Silently dropped; clients throttle on their side
		return
	case err != nil:
		c.sendError(err.Error())
		return
	}
	c.hub.rooms.MarkActive(room.ID)
	c.SendJSON(Envelope{T: MsgSpawned, Data: SpawnedMsg{Count: n, Live: room.ParticleCount()}})
}

func (c *Client) handleObstacle(data json.RawMessage) {
	room := c.currentRoom()
	if room == nil || !c.canEdit() {
		return
	}
	var msg ObstacleMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if !finite(msg.AX, msg.AY, msg.BX, msg.BY, msg.NX, msg.NY) {
		c.sendError(sim.ErrInvalidObstacle.Error())
		return
	}
	seg := level.Segment{AX: msg.AX, AY: msg.AY, BX: msg.BX, BY: msg.BY, NX: msg.NX, NY: msg.NY}
	if _, err := room.AddObstacle(c.viewerID, seg); err != nil && !errors.Is(err, ErrCooldown) {
		c.sendError(err.Error())
	}
}

func (c *Client) handleErase(data json.RawMessage) {
	room := c.currentRoom()
	if room == nil || !c.canEdit() {
		return
	}
	var msg EraseMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if err := room.Erase(c.viewerID, msg.X, msg.Y, msg.Radius); err != nil && !errors.Is(err, ErrCooldown) {
		c.sendError(err.Error())
	}
}

func (c *Client) handleClear() {
	room := c.currentRoom()
	if room == nil || !c.canEdit() {
		return
	}
	if err := room.ClearParticles(c.viewerID); err != nil {
		c.sendError(err.Error())
	}
}

// loadStoredLevel resolves a level name against the database and builtins
func (c *Client) loadStoredLevel(name string) (*level.Level, error) {
	if name == level.DefaultName {
		return level.Default(), nil
	}
	if c.hub.db == nil {
		return nil, ErrLevelNotFound
	}
	data, err := c.hub.db.GetLevel(name)
	if err != nil {
		return nil, err
	}
	return level.Parse(data)
}

func (c *Client) handleLevelLoad(data json.RawMessage) {
	room := c.currentRoom()
	if room == nil || !c.canEdit() {
		return
	}
	var msg LevelMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	lvl, err := c.loadStoredLevel(msg.Name)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	if err := room.LoadLevel(lvl); err != nil {
		c.sendError(err.Error())
		return
	}
	c.hub.analytics.Track(EvtLevelLoaded, c.authUserID, room.ID, "")
}

func (c *Client) handleLevelSave(data json.RawMessage) {
	room := c.currentRoom()
	if room == nil || !c.canEdit() {
		return
	}
	if c.hub.db == nil {
		c.sendError("level storage disabled")
		return
	}
	var msg LevelMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	name := cleanName(msg.Name, "", maxRoomNameLen)
	if name == "" || name == level.DefaultName {
		c.sendError("invalid level name")
		return
	}

	lvl := room.Capture(name)
	doc, err := level.Marshal(lvl)
	if err != nil {
		c.sendError("internal error")
		return
	}
	if err := c.hub.db.SaveLevel(name, c.authUserID, len(lvl.Segments), doc); err != nil {
		if !errors.Is(err, ErrLevelOwned) {
			log.Printf("level save error: %v", err)
		}
		c.sendError(err.Error())
		return
	}
	if c.authUserID != 0 {
		if err := c.hub.db.AddStats(c.authUserID, 0, 0, 1, 0); err != nil {
			log.Printf("stats update error: %v", err)
		}
	}
	c.hub.analytics.Track(EvtLevelSaved, c.authUserID, room.ID, "")
	c.SendJSON(Envelope{T: MsgLevelSaved, Data: LevelMsg{Name: name}})
}

func (c *Client) handleLevels() {
	if c.hub.db == nil {
		c.SendJSON(Envelope{T: MsgLevelList, Data: []LevelRow{}})
		return
	}
	levels, err := c.hub.db.ListLevels(maxLevelList)
	if err != nil {
		c.sendError("database error")
		return
	}
	if levels == nil {
		levels = []LevelRow{}
	}
	c.SendJSON(Envelope{T: MsgLevelList, Data: levels})
}

func (c *Client) authOK(id int64, username, token string) {
	c.authUserID = id
	c.authUsername = username
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{
		Token:    token,
		Username: username,
		UserID:   id,
	}})
}

func (c *Client) handleRegister(data json.RawMessage) {
	if c.hub.auth == nil {
		return
	}
	var msg RegisterMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Register(msg.Username, msg.Password)
	if err != nil {
		c.sendError(publicAuthError(err))
		return
	}
	c.hub.analytics.Track(EvtUserRegister, id, "", "")
	c.authOK(id, msg.Username, token)
}

func (c *Client) handleLogin(data json.RawMessage) {
	if c.hub.auth == nil {
		return
	}
	var msg LoginMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Login(msg.Username, msg.Password, c.remoteAddr)
	if err != nil {
		c.sendError(publicAuthError(err))
		return
	}
	c.authOK(id, msg.Username, token)
}

func (c *Client) handleAuth(data json.RawMessage) {
	if c.hub.auth == nil {
		return
	}
	var msg AuthMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, username, err := c.hub.auth.ValidateToken(msg.Token)
	if err != nil {
		c.sendError(ErrInvalidToken.Error())
		return
	}
	c.authOK(id, username, msg.Token)
}

func (c *Client) handleProfile() {
	if c.hub.db == nil || c.authUserID == 0 {
		c.sendError("not authenticated")
		return
	}
	stats, err := c.hub.db.GetStats(c.authUserID)
	if err != nil || stats == nil {
		c.sendError("profile not found")
		return
	}
	c.SendJSON(Envelope{T: MsgProfileData, Data: ProfileDataMsg{
		Username:     c.authUsername,
		Waves:        stats.Waves,
		Obstacles:    stats.Obstacles,
		LevelsSaved:  stats.LevelsSaved,
		WatchSeconds: stats.WatchSeconds,
	}})
}

// publicAuthError hides wrapped internal failures from clients; sentinel
// and validation errors are shown as-is
func publicAuthError(err error) string {
	if errors.Unwrap(err) != nil {
		log.Printf("auth error: %v", err)
		return "internal error"
	}
	return err.Error()
}
