package main

import (
	"math"
	"strings"

	"github.com/google/uuid"
)

// GenerateUUID returns a random (version 4) UUID string
func GenerateUUID() string {
	return uuid.NewString()
}

// GenerateID returns a short random hex id for viewers
func GenerateID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}

// Clamp restricts v to [min, max]
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// finite reports whether every value is a usable coordinate
func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// cleanName trims and truncates a display name, falling back to def
func cleanName(name, def string, max int) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return def
	}
	if len(name) > max {
		name = name[:max]
	}
	return name
}
