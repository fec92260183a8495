package main

import (
	"log"
	"sync"

	"wavebounce/level"
	"wavebounce/sim"
)

const (
	maxConnsPerIP = 5
	maxTotalConns = 1000
)

// Config holds server-wide settings
type Config struct {
	AuthEdit  bool   // obstacle edits and level saves require an account
	PublicURL string // base URL for share links; empty = request host
	World     sim.Config
	Wave      sim.WaveConfig
	Level     *level.Level // layout for new rooms; nil = level.Default()
}

// DefaultConfig returns the stock server settings
func DefaultConfig() Config {
	return Config{
		World: sim.DefaultConfig(),
		Wave:  sim.DefaultWaveConfig(),
	}
}

// Hub manages all connected clients and routes them to rooms
type Hub struct {
	cfg        Config
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	rooms      *RoomManager
	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int
	// Persistence; db and auth are nil when running without a database
	db        *DB
	auth      *Auth
	analytics *Analytics
	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates a new Hub. db may be nil.
func NewHub(db *DB, cfg Config) *Hub {
	analytics := NewAnalytics(db)
	h := &Hub{
		cfg:        cfg,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		rooms: NewRoomManager(RoomOptions{
			World:     cfg.World,
			Wave:      cfg.Wave,
			Level:     cfg.Level,
			Analytics: analytics,
		}),
		ipConns:   make(map[string]int),
		db:        db,
		analytics: analytics,
		done:      make(chan struct{}),
	}
	if db != nil {
		h.auth = NewAuth(db)
	}
	return h
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Run processes register/unregister events until Close
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.analytics.SetLive(n, h.rooms.Count())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			client.leaveRoom()
			h.analytics.SetLive(n, h.rooms.Count())

		case <-h.done:
			return
		}
	}
}

// Close stops every room and flushes analytics
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.rooms.Close()
		h.analytics.Stop()
	})
}

// flushViewer persists a departing viewer's session totals
func (h *Hub) flushViewer(v *Viewer) {
	if h.db == nil || v == nil || v.AuthID == 0 {
		return
	}
	if err := h.db.AddStats(v.AuthID, v.Waves, v.Obstacles, 0, v.Watched().Seconds()); err != nil {
		log.Printf("stats flush error for user %d: %v", v.AuthID, err)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}
