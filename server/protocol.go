package main

import "encoding/json"

// Client -> Server message types
const (
	MsgJoin      = "join"
	MsgLeave     = "leave"
	MsgCreate    = "create" // create room
	MsgList      = "list"   // list rooms
	MsgCheck     = "check"  // check if room exists
	MsgSpawn     = "spawn"  // spawn a wave at a world point
	MsgObstacle  = "obstacle"
	MsgErase     = "erase"
	MsgClear     = "clear" // remove all particles
	MsgLevelLoad = "level_load"
	MsgLevelSave = "level_save"
	MsgLevels    = "levels"
	MsgRegister  = "register"
	MsgLogin     = "login"
	MsgAuth      = "auth"
	MsgProfile   = "profile"
)

// Server -> Client message types
const (
	MsgFrame       = "frame" // binary msgpack FrameState
	MsgWelcome     = "welcome"
	MsgRooms       = "rooms"
	MsgJoined      = "joined"
	MsgCreated     = "created" // room created, client should navigate
	MsgError       = "error"
	MsgChecked     = "checked"
	MsgObstacles   = "obstacles" // obstacle set changed
	MsgSpawned     = "spawned"
	MsgLevelSaved  = "level_saved"
	MsgLevelList   = "level_list"
	MsgAuthOK      = "auth_ok"
	MsgProfileData = "profile_data"
)

// binarySpawn is the first byte of a 5-byte binary spawn message
const binarySpawn = 0x01

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages; json.RawMessage avoids double-unmarshal
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// JoinMsg is sent when a viewer wants to join a room
type JoinMsg struct {
	Name   string `json:"name"`
	RoomID string `json:"sid"`
}

// CreateMsg is sent when a viewer wants to create a room
type CreateMsg struct {
	Name     string `json:"name"`
	RoomName string `json:"sname"`
	Level    string `json:"level,omitempty"` // saved level to start from
}

// SpawnMsg asks for a wave at a world position
type SpawnMsg struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ObstacleMsg adds a segment from A to B; a zero normal uses the left perpendicular
type ObstacleMsg struct {
	AX float64 `json:"ax"`
	AY float64 `json:"ay"`
	BX float64 `json:"bx"`
	BY float64 `json:"by"`
	NX float64 `json:"nx,omitempty"`
	NY float64 `json:"ny,omitempty"`
}

// EraseMsg removes the segment nearest to a point
type EraseMsg struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"r,omitempty"`
}

// LevelMsg names a stored level for load/save
type LevelMsg struct {
	Name string `json:"name"`
}

// FrameState is the binary particle broadcast. XY holds interleaved
// positions; F holds fade fractions scaled to 0-255.
type FrameState struct {
	Tick    uint64    `msgpack:"tick"`
	Version uint64    `msgpack:"ver"`
	Total   int       `msgpack:"n"` // live particles, may exceed len(F) when sampled
	XY      []float32 `msgpack:"xy"`
	F       []uint8   `msgpack:"f"`
}

// ObstacleState describes one segment in an obstacles message
type ObstacleState struct {
	ID uint32  `json:"id"`
	AX float64 `json:"ax"`
	AY float64 `json:"ay"`
	BX float64 `json:"bx"`
	BY float64 `json:"by"`
	NX float64 `json:"nx"`
	NY float64 `json:"ny"`
}

// ObstaclesMsg is the full obstacle set at a given version
type ObstaclesMsg struct {
	Version   uint64          `json:"ver"`
	Width     float64         `json:"w"`
	Height    float64         `json:"h"`
	Obstacles []ObstacleState `json:"o"`
}

// WelcomeMsg is sent to a viewer when they join
type WelcomeMsg struct {
	ID        string  `json:"id"`
	WaveCount int     `json:"count"`
	WaveSpeed float64 `json:"speed"`
	WaveLife  float64 `json:"life"`
	Cooldown  float64 `json:"cd"`
}

// SpawnedMsg acknowledges a wave
type SpawnedMsg struct {
	Count int `json:"n"`
	Live  int `json:"live"`
}

// RoomInfo is used in the room list
type RoomInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Viewers   int    `json:"viewers"`
	Particles int    `json:"particles"`
}

// ErrorMsg sends error to client
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// CheckMsg is sent by client to check if a room exists
type CheckMsg struct {
	RoomID string `json:"sid"`
}

// CheckedMsg is the response to a room check
type CheckedMsg struct {
	RoomID  string `json:"sid"`
	Exists  bool   `json:"exists"`
	Name    string `json:"name,omitempty"`
	Viewers int    `json:"viewers,omitempty"`
}

// RegisterMsg creates an account
type RegisterMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginMsg logs into an account
type LoginMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthMsg resumes a session from a stored token
type AuthMsg struct {
	Token string `json:"token"`
}

// AuthOKMsg is sent after successful register/login/auth
type AuthOKMsg struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	UserID   int64  `json:"uid"`
}

// ProfileDataMsg carries a user's lifetime stats
type ProfileDataMsg struct {
	Username     string  `json:"username"`
	Waves        int     `json:"waves"`
	Obstacles    int     `json:"obstacles"`
	LevelsSaved  int     `json:"levels_saved"`
	WatchSeconds float64 `json:"watch"`
}
