package main

import (
	"math"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"
)

const (
	sampleRate    = beep.SampleRate(44100)
	clickLength   = 15 * time.Millisecond
	clickInterval = 80 * time.Millisecond
	baseFreq      = 220.0
	maxFreq       = 1760.0
)

// Clicker turns bounce counts into short sine clicks, at most one per
// clickInterval
type Clicker struct {
	enabled bool
	last    time.Time
}

// NewClicker initializes the speaker. On failure it returns a silent
// Clicker and the error.
func NewClicker() (*Clicker, error) {
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
		return &Clicker{}, err
	}
	return &Clicker{enabled: true}, nil
}

// Close releases the audio device
func (c *Clicker) Close() {
	if c.enabled {
		speaker.Close()
		c.enabled = false
	}
}

// Bounce plays a click whose pitch rises with the number of bounces
func (c *Clicker) Bounce(now time.Time, bounces int) {
	if !c.enabled || !c.allow(now, bounces) {
		return
	}
	sine, err := generators.SineTone(sampleRate, clickFrequency(bounces))
	if err != nil {
		return
	}
	speaker.Play(beep.Take(sampleRate.N(clickLength), sine))
}

// allow applies the click throttle
func (c *Clicker) allow(now time.Time, bounces int) bool {
	if bounces <= 0 || now.Sub(c.last) < clickInterval {
		return false
	}
	c.last = now
	return true
}

// clickFrequency maps a bounce count to a pitch, one octave per 10x
func clickFrequency(bounces int) float64 {
	if bounces < 1 {
		bounces = 1
	}
	f := baseFreq * math.Pow(2, math.Log10(float64(bounces)))
	return math.Min(f, maxFreq)
}
