package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"wavebounce/level"
)

func main() {
	cfg := DefaultConfig()

	addr := flag.String("addr", ":8080", "HTTP listen address")
	clientDir := flag.String("client", "", "Path to static client directory (empty disables)")
	dbPath := flag.String("db", "wavebounce.db", "SQLite database path (empty runs without storage)")
	levelPath := flag.String("level", "", "Level for new rooms (.json or .js; default board if empty)")
	flag.BoolVar(&cfg.AuthEdit, "auth-edit", false, "Require an account to edit obstacles")
	flag.StringVar(&cfg.PublicURL, "public-url", "", "Base URL used in share links")
	flag.IntVar(&cfg.World.Workers, "workers", cfg.World.Workers, "Simulation goroutines per room")
	flag.Float64Var(&cfg.World.LifeLoss, "life-loss", cfg.World.LifeLoss, "Fraction of remaining life lost per bounce")
	flag.Float64Var(&cfg.World.SpeedLoss, "speed-loss", cfg.World.SpeedLoss, "Fraction of speed lost per bounce")
	flag.IntVar(&cfg.World.MaxParticles, "max-particles", cfg.World.MaxParticles, "Particle cap per room (0 = unlimited)")
	flag.IntVar(&cfg.Wave.Count, "wave-count", cfg.Wave.Count, "Particles per wave")
	flag.Float64Var(&cfg.Wave.Speed, "wave-speed", cfg.Wave.Speed, "Particle speed (units/s)")
	flag.Float64Var(&cfg.Wave.Life, "wave-life", cfg.Wave.Life, "Particle lifetime (s)")
	flag.Parse()

	if err := cfg.World.Validate(); err != nil {
		log.Fatalf("invalid simulation settings: %v", err)
	}
	if err := cfg.Wave.Validate(); err != nil {
		log.Fatalf("invalid wave settings: %v", err)
	}
	if *levelPath != "" {
		lvl, err := level.Load(*levelPath)
		if err != nil {
			log.Fatalf("load level: %v", err)
		}
		cfg.Level = lvl
		log.Printf("Rooms start with level %q (%d segments)", lvl.Name, len(lvl.Segments))
	}

	var db *DB
	if *dbPath != "" {
		var err error
		db, err = OpenDB(*dbPath)
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
		defer db.Close()
	}

	hub := NewHub(db, cfg)
	go hub.Run()

	mux := SetupRoutes(hub, *clientDir)

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		log.Printf("Server starting on %s", *addr)
		if *clientDir != "" {
			log.Printf("Serving client files from %s", *clientDir)
		}
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down...")
	server.Close()
	hub.Close()
}
