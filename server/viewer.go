package main

import "time"

const (
	SpawnCooldown     = 0.25 // seconds between waves from one viewer
	EditCooldown      = 0.1  // seconds between obstacle edits
	maxViewersPerRoom = 20
)

// Viewer is one connected participant in a room. Viewers share the
// room's simulation; they only send spawn and edit requests.
type Viewer struct {
	ID       string
	Name     string
	AuthID   int64 // 0 = guest
	JoinedAt time.Time

	SpawnCD float64 // spawn cooldown remaining
	EditCD  float64

	// Session totals, flushed to stats on leave
	Waves     int
	Obstacles int
}

// NewViewer creates a viewer ready to spawn
func NewViewer(id, name string) *Viewer {
	return &Viewer{
		ID:       id,
		Name:     name,
		JoinedAt: time.Now(),
	}
}

// Update ticks the viewer's cooldowns (dt in seconds)
func (v *Viewer) Update(dt float64) {
	if v.SpawnCD > 0 {
		v.SpawnCD -= dt
	}
	if v.EditCD > 0 {
		v.EditCD -= dt
	}
}

// CanSpawn returns true if the spawn cooldown has elapsed
func (v *Viewer) CanSpawn() bool {
	return v.SpawnCD <= 0
}

// CanEdit returns true if the edit cooldown has elapsed
func (v *Viewer) CanEdit() bool {
	return v.EditCD <= 0
}

// Watched returns how long the viewer has been in the room
func (v *Viewer) Watched() time.Duration {
	return time.Since(v.JoinedAt)
}
