package main

import (
	"database/sql"
	"log"
	"sync"
	"time"
)

// Event types for analytics tracking
const (
	EvtRoomStart       = "room_start"
	EvtRoomEnd         = "room_end"
	EvtWaveSpawned     = "wave_spawned"
	EvtObstacleAdded   = "obstacle_added"
	EvtObstacleRemoved = "obstacle_removed"
	EvtLevelSaved      = "level_saved"
	EvtLevelLoaded     = "level_loaded"
	EvtUserRegister    = "user_register"
)

const (
	analyticsQueueSize  = 1024
	analyticsBatchSize  = 50
	analyticsFlushEvery = 5 * time.Second
)

// AnalyticsEvent represents a single trackable event
type AnalyticsEvent struct {
	Type      string
	UserID    int64
	RoomID    string
	Data      string // JSON metadata (optional)
	Timestamp time.Time
}

// Analytics handles event tracking with batched background writes.
// A nil *Analytics drops every event.
type Analytics struct {
	db     *DB
	events chan AnalyticsEvent
	stop   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	mu      sync.RWMutex
	viewers int
	rooms   int
	dropped int
}

// NewAnalytics creates and starts the analytics background writer
func NewAnalytics(db *DB) *Analytics {
	a := &Analytics{
		db:     db,
		events: make(chan AnalyticsEvent, analyticsQueueSize),
		stop:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

// Track enqueues an event for async persistence (non-blocking)
func (a *Analytics) Track(evtType string, userID int64, roomID string, data string) {
	if a == nil {
		return
	}
	select {
	case a.events <- AnalyticsEvent{
		Type:      evtType,
		UserID:    userID,
		RoomID:    roomID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}:
	default:
		// Channel full; never block a room loop
		a.mu.Lock()
		a.dropped++
		a.mu.Unlock()
	}
}

// SetLive updates the live viewer and room counts
func (a *Analytics) SetLive(viewers, rooms int) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.viewers = viewers
	a.rooms = rooms
	a.mu.Unlock()
}

// LiveMetrics holds the current in-memory counters
type LiveMetrics struct {
	Viewers int `json:"viewers"`
	Rooms   int `json:"rooms"`
	Dropped int `json:"dropped_events"`
}

// GetLiveMetrics returns current live metrics
func (a *Analytics) GetLiveMetrics() LiveMetrics {
	if a == nil {
		return LiveMetrics{}
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return LiveMetrics{Viewers: a.viewers, Rooms: a.rooms, Dropped: a.dropped}
}

// Stop flushes pending events and shuts down the writer
func (a *Analytics) Stop() {
	if a == nil {
		return
	}
	a.once.Do(func() {
		close(a.stop)
		a.wg.Wait()
	})
}

// writer is the background goroutine that batches and writes events to DB
func (a *Analytics) writer() {
	defer a.wg.Done()

	batch := make([]AnalyticsEvent, 0, 64)
	ticker := time.NewTicker(analyticsFlushEvery)
	defer ticker.Stop()

	for {
		select {
		case evt := <-a.events:
			batch = append(batch, evt)
			if len(batch) >= analyticsBatchSize {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-a.stop:
			// Drain whatever is queued; late Track calls hit the default branch
		drain:
			for {
				select {
				case evt := <-a.events:
					batch = append(batch, evt)
				default:
					break drain
				}
			}
			a.flush(batch)
			return
		}
	}
}

// flush writes a batch of events to the database
func (a *Analytics) flush(events []AnalyticsEvent) {
	if a.db == nil || len(events) == 0 {
		return
	}
	tx, err := a.db.conn.Begin()
	if err != nil {
		log.Printf("analytics: begin tx error: %v", err)
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO analytics_events (event_type, user_id, room_id, data, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		log.Printf("analytics: prepare error: %v", err)
		return
	}
	defer stmt.Close()

	for _, evt := range events {
		uid := sql.NullInt64{Int64: evt.UserID, Valid: evt.UserID > 0}
		rid := sql.NullString{String: evt.RoomID, Valid: evt.RoomID != ""}
		data := sql.NullString{String: evt.Data, Valid: evt.Data != ""}
		if _, err := stmt.Exec(evt.Type, uid, rid, data, evt.Timestamp.Format(time.RFC3339)); err != nil {
			log.Printf("analytics: insert error: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		log.Printf("analytics: commit error: %v", err)
	}
}

// --- Query methods for the API ---

// EventCounts returns counts of each event type for the last N days
func (a *Analytics) EventCounts(days int) (map[string]int, error) {
	if a == nil || a.db == nil {
		return map[string]int{}, nil
	}
	rows, err := a.db.conn.Query(`
		SELECT event_type, COUNT(*) FROM analytics_events
		WHERE created_at >= date('now', '-' || ? || ' days')
		GROUP BY event_type ORDER BY COUNT(*) DESC
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var evtType string
		var count int
		if err := rows.Scan(&evtType, &count); err != nil {
			continue
		}
		result[evtType] = count
	}
	return result, rows.Err()
}

// RoomSummary aggregates finished rooms
type RoomSummary struct {
	Count       int     `json:"count"`
	AvgDuration float64 `json:"avg_duration"`
	AvgWaves    float64 `json:"avg_waves"`
}

// RoomStats summarises rooms that ended in the last N days
func (a *Analytics) RoomStats(days int) (RoomSummary, error) {
	var s RoomSummary
	if a == nil || a.db == nil {
		return s, nil
	}
	var avgDur, avgWaves sql.NullFloat64
	err := a.db.conn.QueryRow(`
		SELECT COUNT(*),
			AVG(CASE WHEN json_valid(data) THEN json_extract(data, '$.duration') END),
			AVG(CASE WHEN json_valid(data) THEN json_extract(data, '$.waves') END)
		FROM analytics_events
		WHERE event_type = ? AND created_at >= date('now', '-' || ? || ' days')
	`, EvtRoomEnd, days).Scan(&s.Count, &avgDur, &avgWaves)
	s.AvgDuration = avgDur.Float64
	s.AvgWaves = avgWaves.Float64
	return s, err
}

// DailyWaves returns waves spawned per day for the last N days
func (a *Analytics) DailyWaves(days int) ([]DayCount, error) {
	if a == nil || a.db == nil {
		return nil, nil
	}
	rows, err := a.db.conn.Query(`
		SELECT date(created_at) as day, COUNT(*)
		FROM analytics_events
		WHERE event_type = ? AND created_at >= date('now', '-' || ? || ' days')
		GROUP BY day ORDER BY day
	`, EvtWaveSpawned, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DayCount
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			continue
		}
		result = append(result, dc)
	}
	return result, rows.Err()
}

// DayCount holds a count for a specific day
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}
