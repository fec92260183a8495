package main

import (
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"wavebounce/level"
)

const maxRooms = 100

// RoomIdleTimeout is how long an empty room survives before it is stopped
var RoomIdleTimeout = 30 * time.Second

// ErrTooManyRooms is returned when the room limit is reached
var ErrTooManyRooms = errors.New("too many active rooms")

// RoomManager handles creation, lookup and reaping of rooms
type RoomManager struct {
	mu         sync.RWMutex
	rooms      map[string]*Room
	lastActive map[string]time.Time
	opts       RoomOptions
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewRoomManager creates a manager whose rooms share opts, and starts the
// idle reaper
func NewRoomManager(opts RoomOptions) *RoomManager {
	rm := &RoomManager{
		rooms:      make(map[string]*Room),
		lastActive: make(map[string]time.Time),
		opts:       opts,
		stop:       make(chan struct{}),
	}
	go rm.reaper()
	return rm
}

// CreateRoom creates and starts a room. A nil lvl uses the manager default.
func (rm *RoomManager) CreateRoom(name string, lvl *level.Level) (*Room, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if len(rm.rooms) >= maxRooms {
		return nil, ErrTooManyRooms
	}

	opts := rm.opts
	if lvl != nil {
		opts.Level = lvl
	}
	room, err := NewRoom(GenerateUUID(), name, opts)
	if err != nil {
		return nil, err
	}
	rm.rooms[room.ID] = room
	rm.lastActive[room.ID] = time.Now()
	go room.Run()
	return room, nil
}

// GetRoom returns a room by ID
func (rm *RoomManager) GetRoom(id string) *Room {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.rooms[id]
}

// MarkActive restarts the idle countdown for a room
func (rm *RoomManager) MarkActive(id string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, ok := rm.rooms[id]; ok {
		rm.lastActive[id] = time.Now()
	}
}

// RemoveViewer removes a viewer from a room and returns it. Empty rooms are
// left for the reaper so a reconnecting viewer can rejoin.
func (rm *RoomManager) RemoveViewer(roomID, viewerID string) *Viewer {
	room := rm.GetRoom(roomID)
	if room == nil {
		return nil
	}
	v := room.RemoveViewer(viewerID)
	if room.ViewerCount() == 0 {
		rm.MarkActive(roomID)
	}
	return v
}

// ListRooms returns info about all active rooms, newest activity first
func (rm *RoomManager) ListRooms() []RoomInfo {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	list := make([]RoomInfo, 0, len(rm.rooms))
	for _, room := range rm.rooms {
		list = append(list, room.Info())
	}
	sort.Slice(list, func(i, j int) bool {
		return rm.lastActive[list[i].ID].After(rm.lastActive[list[j].ID])
	})
	return list
}

// Count returns the number of active rooms
func (rm *RoomManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.rooms)
}

// Close stops the reaper and every room
func (rm *RoomManager) Close() {
	rm.stopOnce.Do(func() { close(rm.stop) })
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for id, room := range rm.rooms {
		room.Stop()
		delete(rm.rooms, id)
		delete(rm.lastActive, id)
	}
}

func (rm *RoomManager) reaper() {
	interval := RoomIdleTimeout / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rm.reap(time.Now())
		case <-rm.stop:
			return
		}
	}
}

// reap stops rooms that have had no viewers for RoomIdleTimeout
func (rm *RoomManager) reap(now time.Time) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	removed := 0
	for id, room := range rm.rooms {
		if room.ViewerCount() > 0 {
			continue
		}
		if now.Sub(rm.lastActive[id]) < RoomIdleTimeout {
			continue
		}
		room.Stop()
		delete(rm.rooms, id)
		delete(rm.lastActive, id)
		removed++
		log.Printf("room %s idle, removed", id)
	}
	return removed
}
