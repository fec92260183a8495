package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"wavebounce/level"
	"wavebounce/sim"
)

const (
	TickRate       = 60 // simulation ticks per second
	BroadcastRate  = 30 // frame broadcasts per second
	TickDuration   = time.Second / TickRate
	BroadcastEvery = TickRate / BroadcastRate

	maxFrameParticles  = 16384 // larger populations are sampled evenly
	defaultEraseRadius = 12.0
	maxEraseRadius     = 100.0
)

var (
	ErrRoomFull       = errors.New("room full")
	ErrUnknownViewer  = errors.New("viewer not in room")
	ErrCooldown       = errors.New("cooldown active")
	ErrNothingToErase = errors.New("no obstacle near point")
)

// Broadcaster interface for sending messages to viewers
type Broadcaster interface {
	SendJSON(msg interface{})
	SendBinary(data []byte)
}

// RoomOptions configures a new room
type RoomOptions struct {
	World     sim.Config
	Wave      sim.WaveConfig
	Level     *level.Level // nil = level.Default()
	Analytics *Analytics
}

// RoomTotals are lifetime counters for one room
type RoomTotals struct {
	Waves   int `json:"waves"`
	Bounces int `json:"bounces"`
	Expired int `json:"expired"`
}

// Room runs one shared simulation and fans its frames out to viewers
type Room struct {
	ID   string
	Name string

	mu        sync.RWMutex
	world     *sim.World
	levelName string
	width     float64
	height    float64
	wave      sim.WaveConfig
	viewers   map[string]*Viewer
	clients   map[string]Broadcaster // viewerID -> client
	tick      uint64
	running   bool
	stop      chan struct{}
	analytics *Analytics
	startedAt time.Time
	totals    RoomTotals

	views []sim.ParticleView
	frame FrameState
}

// NewRoom creates a room with the given level loaded
func NewRoom(id, name string, opts RoomOptions) (*Room, error) {
	if err := opts.Wave.Validate(); err != nil {
		return nil, err
	}
	if err := opts.World.Validate(); err != nil {
		return nil, err
	}
	lvl := opts.Level
	if lvl == nil {
		lvl = level.Default()
	}
	set := sim.NewObstacleSet()
	if err := lvl.Apply(set); err != nil {
		return nil, fmt.Errorf("load level %q: %w", lvl.Name, err)
	}
	return &Room{
		ID:        id,
		Name:      name,
		world:     sim.NewWorld(opts.World, set),
		levelName: lvl.Name,
		width:     lvl.Width,
		height:    lvl.Height,
		wave:      opts.Wave,
		viewers:   make(map[string]*Viewer),
		clients:   make(map[string]Broadcaster),
		stop:      make(chan struct{}),
		analytics: opts.Analytics,
		startedAt: time.Now(),
	}, nil
}

// Run starts the room loop
func (r *Room) Run() {
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()
	r.analytics.Track(EvtRoomStart, 0, r.ID, "")

	ticker := time.NewTicker(TickDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.update()
		case <-r.stop:
			return
		}
	}
}

// Stop terminates the room loop
func (r *Room) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		r.running = false
		close(r.stop)
		data, _ := json.Marshal(map[string]interface{}{
			"duration": time.Since(r.startedAt).Seconds(),
			"waves":    r.totals.Waves,
			"bounces":  r.totals.Bounces,
		})
		r.analytics.Track(EvtRoomEnd, 0, r.ID, string(data))
	}
}

// AddViewer adds a viewer to the room
func (r *Room) AddViewer(name string, authID int64) (*Viewer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.viewers) >= maxViewersPerRoom {
		return nil, ErrRoomFull
	}
	v := NewViewer(GenerateID(), name)
	v.AuthID = authID
	r.viewers[v.ID] = v
	return v, nil
}

// RemoveViewer removes a viewer and returns it for stats flushing
func (r *Room) RemoveViewer(id string) *Viewer {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.viewers[id]
	delete(r.viewers, id)
	delete(r.clients, id)
	return v
}

// SetClient associates a broadcaster with a viewer
func (r *Room) SetClient(viewerID string, client Broadcaster) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[viewerID] = client
}

// HasViewer reports whether id is in the room
func (r *Room) HasViewer(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.viewers[id]
	return ok
}

// ViewerCount returns the number of viewers
func (r *Room) ViewerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.viewers)
}

// ParticleCount returns the number of live particles
func (r *Room) ParticleCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.world.Len()
}

// Totals returns the room's lifetime counters
func (r *Room) Totals() RoomTotals {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totals
}

// Info summarises the room for listings
func (r *Room) Info() RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RoomInfo{
		ID:        r.ID,
		Name:      r.Name,
		Viewers:   len(r.viewers),
		Particles: r.world.Len(),
	}
}

// WaveConfig returns the room's wave parameters
func (r *Room) WaveConfig() sim.WaveConfig {
	return r.wave
}

// Spawn emits a wave at (x, y) on behalf of a viewer
func (r *Room) Spawn(viewerID string, x, y float64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.viewers[viewerID]
	if !ok {
		return 0, ErrUnknownViewer
	}
	if !v.CanSpawn() {
		return 0, ErrCooldown
	}
	n, err := r.world.Spawn(sim.V(x, y), r.wave)
	if err != nil {
		return 0, err
	}
	v.SpawnCD = SpawnCooldown
	v.Waves++
	r.totals.Waves++
	r.analytics.Track(EvtWaveSpawned, v.AuthID, r.ID, "")
	return n, nil
}

// ClearParticles removes every particle in the room
func (r *Room) ClearParticles(viewerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.viewers[viewerID]; !ok {
		return ErrUnknownViewer
	}
	r.world.Clear()
	return nil
}

// AddObstacle inserts a segment between ticks and announces the new set
func (r *Room) AddObstacle(viewerID string, seg level.Segment) (sim.ObstacleID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.viewers[viewerID]
	if !ok {
		return 0, ErrUnknownViewer
	}
	if !v.CanEdit() {
		return 0, ErrCooldown
	}
	o, err := seg.Obstacle()
	if err != nil {
		return 0, err
	}
	id, err := r.world.Obstacles().Add(o)
	if err != nil {
		return 0, err
	}
	v.EditCD = EditCooldown
	v.Obstacles++
	r.analytics.Track(EvtObstacleAdded, v.AuthID, r.ID, "")
	r.broadcastObstacles()
	return id, nil
}

// Erase removes the segment nearest to (x, y) within radius
func (r *Room) Erase(viewerID string, x, y, radius float64) error {
	if radius <= 0 {
		radius = defaultEraseRadius
	}
	radius = Clamp(radius, 0, maxEraseRadius)

	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.viewers[viewerID]
	if !ok {
		return ErrUnknownViewer
	}
	if !v.CanEdit() {
		return ErrCooldown
	}
	set := r.world.Obstacles()
	o, ok := set.Nearest(sim.V(x, y), radius)
	if !ok {
		return ErrNothingToErase
	}
	set.Remove(o.ID)
	v.EditCD = EditCooldown
	r.analytics.Track(EvtObstacleRemoved, v.AuthID, r.ID, "")
	r.broadcastObstacles()
	return nil
}

// LoadLevel replaces the room's obstacles with a level layout
func (r *Room) LoadLevel(l *level.Level) error {
	obs, err := l.Obstacles()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.world.Obstacles().Replace(obs); err != nil {
		return err
	}
	r.levelName = l.Name
	r.width, r.height = l.Width, l.Height
	r.broadcastObstacles()
	return nil
}

// Capture snapshots the current obstacle layout as a level
func (r *Room) Capture(name string) *level.Level {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return level.Capture(name, r.width, r.height, r.world.Obstacles())
}

// ObstaclesState returns the current obstacle set for a joining viewer
func (r *Room) ObstaclesState() ObstaclesMsg {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.obstaclesState()
}

func (r *Room) obstaclesState() ObstaclesMsg {
	set := r.world.Obstacles()
	msg := ObstaclesMsg{
		Version:   set.Version(),
		Width:     r.width,
		Height:    r.height,
		Obstacles: make([]ObstacleState, 0, set.Len()),
	}
	for _, o := range set.Obstacles() {
		msg.Obstacles = append(msg.Obstacles, ObstacleState{
			ID: uint32(o.ID),
			AX: o.A.X, AY: o.A.Y,
			BX: o.B.X, BY: o.B.Y,
			NX: o.Normal.X, NY: o.Normal.Y,
		})
	}
	return msg
}

// update runs one simulation tick
func (r *Room) update() {
	r.mu.Lock()
	defer r.mu.Unlock()

	dt := 1.0 / float64(TickRate)
	r.tick++

	report := r.world.Tick(dt)
	r.totals.Bounces += report.Bounces
	r.totals.Expired += report.Expired

	for _, v := range r.viewers {
		v.Update(dt)
	}

	if r.tick%BroadcastEvery == 0 {
		r.broadcastFrame()
	}
}

// broadcastFrame sends particle positions and fades to all viewers
func (r *Room) broadcastFrame() {
	if len(r.clients) == 0 {
		return
	}
	r.views = r.world.Snapshot(r.views)
	total := len(r.views)
	stride := 1
	if total > maxFrameParticles {
		stride = (total + maxFrameParticles - 1) / maxFrameParticles
	}

	f := &r.frame
	f.Tick = r.tick
	f.Version = r.world.Obstacles().Version()
	f.Total = total
	f.XY = f.XY[:0]
	f.F = f.F[:0]
	for i := 0; i < total; i += stride {
		p := r.views[i]
		f.XY = append(f.XY, float32(p.Pos.X), float32(p.Pos.Y))
		f.F = append(f.F, uint8(p.Fade*255+0.5))
	}

	data, err := msgpack.Marshal(f)
	if err != nil {
		log.Printf("frame marshal error: %v", err)
		return
	}
	for _, client := range r.clients {
		client.SendBinary(data)
	}
}

// broadcastObstacles announces the obstacle set after an edit
func (r *Room) broadcastObstacles() {
	r.broadcastMsg(Envelope{T: MsgObstacles, Data: r.obstaclesState()})
}

// broadcastMsg sends a message to all viewers in the room
func (r *Room) broadcastMsg(msg Envelope) {
	for _, client := range r.clients {
		client.SendJSON(msg)
	}
}
