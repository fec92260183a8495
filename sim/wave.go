package sim

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidSpawnRequest is returned for non-positive count, speed or life
var ErrInvalidSpawnRequest = errors.New("invalid spawn request")

const (
	DefaultWaveCount = 10000
	DefaultWaveSpeed = 100.0 // world units/s
	DefaultWaveLife  = 10.0  // seconds
)

// WaveConfig holds the parameters shared by every particle of a wave
type WaveConfig struct {
	Count int
	Speed float64
	Life  float64
}

// DefaultWaveConfig returns the stock wave parameters
func DefaultWaveConfig() WaveConfig {
	return WaveConfig{
		Count: DefaultWaveCount,
		Speed: DefaultWaveSpeed,
		Life:  DefaultWaveLife,
	}
}

// Validate checks that the wave would produce at least one live particle
func (c WaveConfig) Validate() error {
	if c.Count <= 0 {
		return fmt.Errorf("%w: count %d must be positive", ErrInvalidSpawnRequest, c.Count)
	}
	if !(c.Speed > 0) || math.IsInf(c.Speed, 0) {
		return fmt.Errorf("%w: speed %g must be positive and finite", ErrInvalidSpawnRequest, c.Speed)
	}
	if !(c.Life > 0) || math.IsInf(c.Life, 0) {
		return fmt.Errorf("%w: life %g must be positive and finite", ErrInvalidSpawnRequest, c.Life)
	}
	return nil
}

// SpawnWave creates count particles at origin with directions evenly spaced
// around the full circle. Particle i heads at angle 2π·i/count.
func SpawnWave(origin Vec2, count int, speed, life float64) ([]Particle, error) {
	cfg := WaveConfig{Count: count, Speed: speed, Life: life}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !origin.IsFinite() {
		return nil, fmt.Errorf("%w: non-finite origin", ErrInvalidSpawnRequest)
	}

	particles := make([]Particle, count)
	step := 2 * math.Pi / float64(count)
	for i := range particles {
		angle := float64(i) * step
		particles[i] = Particle{
			Pos:             origin,
			Dir:             Vec2{X: math.Cos(angle), Y: math.Sin(angle)},
			Speed:           speed,
			Life:            life,
			InitialLife:     life,
			NeedsPrediction: true,
			Alive:           true,
		}
	}
	return particles, nil
}
