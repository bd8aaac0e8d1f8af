package bin_simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/binova/internal/model/entities"
	"github.com/LeonardoBeccarini/binova/internal/model/messages"
)

// jitter is the relative noise applied to each fill step.
const jitter = 0.25

// DataGenerator keeps the simulated fill level of one bin and advances it
// over time.
type DataGenerator struct {
	mu         sync.Mutex
	seeded     bool
	last       time.Time
	fill       float64 // percent, [0..100]
	ratePerMin float64
	rnd        *rand.Rand
	now        func() time.Time
}

// NewDataGenerator fills the bin by ratePerMin percent per minute on average,
// starting from initial.
func NewDataGenerator(initial, ratePerMin float64, seed int64) *DataGenerator {
	return &DataGenerator{
		fill:       clamp(initial),
		ratePerMin: math.Max(0, ratePerMin),
		rnd:        rand.New(rand.NewSource(seed)),
		now:        time.Now,
	}
}

// Next advances the fill level and returns the reading to publish.
func (g *DataGenerator) Next(bin *entities.Bin) messages.BinTelemetry {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UTC()
	if !g.seeded {
		g.last = now
		g.seeded = true
	}
	dtMin := now.Sub(g.last).Minutes()
	if dtMin < 0 {
		dtMin = 0
	}
	step := g.ratePerMin * dtMin * (1 + jitter*(2*g.rnd.Float64()-1))
	g.fill = clamp(g.fill + step)
	g.last = now

	level := int(math.Round(g.fill))
	tier := entities.Classify(level)
	status := string(tier)
	alert := tier == entities.TierFull
	lat, lon := bin.Latitude, bin.Longitude

	return messages.BinTelemetry{
		BinID:     bin.ID,
		Latitude:  &lat,
		Longitude: &lon,
		FillLevel: &level,
		Status:    &status,
		Alert:     &alert,
		Timestamp: now,
	}
}

// Empty resets the bin after a worker cleaned it.
func (g *DataGenerator) Empty() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fill = 0
	g.last = g.now().UTC()
}

// Level is the current fill level, rounded.
func (g *DataGenerator) Level() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return int(math.Round(g.fill))
}

func clamp(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 100 {
		return 100
	}
	return x
}
