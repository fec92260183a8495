package main

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gorilla/websocket"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	qrSize       = 256
	statsDays    = 7
	apiLevelList = 100
)

var uuidPathRe = regexp.MustCompile(`^/[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SetupRoutes configures HTTP routes. An empty clientDir disables static files.
func SetupRoutes(hub *Hub, clientDir string) *http.ServeMux {
	mux := http.NewServeMux()

	if clientDir != "" {
		// Serve static files with no-cache so browsers always revalidate
		fs := http.FileServer(http.Dir(clientDir))
		mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-cache")
			// SPA: serve index.html for root and room paths
			if r.URL.Path == "/" || uuidPathRe.MatchString(r.URL.Path) {
				http.ServeFile(w, r, filepath.Join(clientDir, "index.html"))
				return
			}
			fs.ServeHTTP(w, r)
		}))
	}

	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("upgrade error: %v", err)
			return
		}

		hub.TrackConnect(ip)

		client := NewClient(hub, conn, ip)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()
	})

	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		handleStats(hub, w, r)
	})
	mux.HandleFunc("/api/levels", func(w http.ResponseWriter, r *http.Request) {
		handleLevels(hub, w, r)
	})
	mux.HandleFunc("/qr/", func(w http.ResponseWriter, r *http.Request) {
		handleQR(hub, w, r)
	})

	return mux
}

// StatsResponse is the /api/stats payload
type StatsResponse struct {
	Live   LiveMetrics    `json:"live"`
	Rooms  []RoomInfo     `json:"rooms"`
	Ended  RoomSummary    `json:"ended"`
	Events map[string]int `json:"events"`
	Daily  []DayCount     `json:"daily_waves"`
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api encode error: %v", err)
	}
}

func handleStats(hub *Hub, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := StatsResponse{
		Live:  hub.analytics.GetLiveMetrics(),
		Rooms: hub.rooms.ListRooms(),
	}
	var err error
	if resp.Ended, err = hub.analytics.RoomStats(statsDays); err != nil {
		log.Printf("stats query error: %v", err)
	}
	if resp.Events, err = hub.analytics.EventCounts(statsDays); err != nil {
		log.Printf("stats query error: %v", err)
	}
	if resp.Daily, err = hub.analytics.DailyWaves(statsDays); err != nil {
		log.Printf("stats query error: %v", err)
	}
	writeJSON(w, resp)
}

func handleLevels(hub *Hub, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	levels := []LevelRow{}
	if hub.db != nil {
		rows, err := hub.db.ListLevels(apiLevelList)
		if err != nil {
			http.Error(w, "database error", http.StatusInternalServerError)
			return
		}
		levels = append(levels, rows...)
	}
	writeJSON(w, levels)
}

// handleQR serves /qr/{roomID}.png, a QR code of the room's share link
func handleQR(hub *Hub, w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/qr/")
	id := strings.TrimSuffix(name, ".png")
	if id == name || !uuidPathRe.MatchString("/"+id) {
		http.NotFound(w, r)
		return
	}
	if hub.rooms.GetRoom(id) == nil {
		http.NotFound(w, r)
		return
	}

	png, err := qrcode.Encode(roomURL(hub.cfg.PublicURL, r, id), qrcode.Medium, qrSize)
	if err != nil {
		log.Printf("qr encode error: %v", err)
		http.Error(w, "qr error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(png)
}

// roomURL builds the share link for a room
func roomURL(base string, r *http.Request, id string) string {
	if base == "" {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return strings.TrimRight(base, "/") + "/" + id
}
