package main

import (
	"errors"
	"testing"
	"time"

	"wavebounce/level"
)

func newTestManager(t *testing.T) *RoomManager {
	t.Helper()
	rm := NewRoomManager(testRoomOptions())
	t.Cleanup(rm.Close)
	return rm
}

func TestRoomManagerCreateAndGet(t *testing.T) {
	rm := newTestManager(t)
	room, err := rm.CreateRoom("Lab", nil)
	if err != nil {
		t.Fatal(err)
	}
	if rm.GetRoom(room.ID) != room {
		t.Error("GetRoom should return the created room")
	}
	if rm.Count() != 1 {
		t.Errorf("expected 1 room, got %d", rm.Count())
	}
	if rm.GetRoom("missing") != nil {
		t.Error("unknown id should return nil")
	}
}

func TestRoomManagerCreateWithLevel(t *testing.T) {
	rm := newTestManager(t)
	lvl := &level.Level{Name: "walls", Width: 300, Height: 300, Segments: level.Bounds(300, 300)}
	room, err := rm.CreateRoom("Walls", lvl)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(room.ObstaclesState().Obstacles); n != 4 {
		t.Errorf("expected 4 obstacles, got %d", n)
	}
}

func TestRoomManagerLimit(t *testing.T) {
	rm := newTestManager(t)
	for i := 0; i < maxRooms; i++ {
		if _, err := rm.CreateRoom("r", nil); err != nil {
			t.Fatalf("room %d: %v", i, err)
		}
	}
	if _, err := rm.CreateRoom("extra", nil); !errors.Is(err, ErrTooManyRooms) {
		t.Errorf("expected ErrTooManyRooms, got %v", err)
	}
}

func TestRoomManagerReap(t *testing.T) {
	rm := newTestManager(t)
	busy, _ := rm.CreateRoom("busy", nil)
	idle, _ := rm.CreateRoom("idle", nil)
	if _, err := busy.AddViewer("Watcher", 0); err != nil {
		t.Fatal(err)
	}

	if n := rm.reap(time.Now()); n != 0 {
		t.Errorf("fresh rooms should survive, removed %d", n)
	}

	later := time.Now().Add(RoomIdleTimeout + time.Second)
	if n := rm.reap(later); n != 1 {
		t.Errorf("expected 1 room reaped, got %d", n)
	}
	if rm.GetRoom(idle.ID) != nil {
		t.Error("idle room should be gone")
	}
	if rm.GetRoom(busy.ID) == nil {
		t.Error("room with viewers should survive")
	}
}

func TestRoomManagerRemoveViewerMarksActive(t *testing.T) {
	rm := newTestManager(t)
	room, _ := rm.CreateRoom("Lab", nil)
	v, _ := room.AddViewer("Watcher", 0)

	rm.mu.Lock()
	rm.lastActive[room.ID] = time.Now().Add(-time.Hour)
	rm.mu.Unlock()

	if got := rm.RemoveViewer(room.ID, v.ID); got != v {
		t.Error("RemoveViewer should return the viewer")
	}
	// The countdown restarts when the last viewer leaves
	if n := rm.reap(time.Now()); n != 0 {
		t.Errorf("room emptied just now should survive, removed %d", n)
	}
	if rm.RemoveViewer("missing", v.ID) != nil {
		t.Error("unknown room should return nil")
	}
}

func TestRoomManagerListRooms(t *testing.T) {
	rm := newTestManager(t)
	a, _ := rm.CreateRoom("A", nil)
	b, _ := rm.CreateRoom("B", nil)

	rm.mu.Lock()
	rm.lastActive[a.ID] = time.Now().Add(-time.Minute)
	rm.mu.Unlock()

	list := rm.ListRooms()
	if len(list) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(list))
	}
	if list[0].ID != b.ID {
		t.Errorf("most recently active room should be first, got %s", list[0].Name)
	}
}

func TestRoomManagerClose(t *testing.T) {
	rm := NewRoomManager(testRoomOptions())
	rm.CreateRoom("A", nil)
	rm.Close()
	rm.Close()
	if rm.Count() != 0 {
		t.Errorf("expected 0 rooms after Close, got %d", rm.Count())
	}
}
