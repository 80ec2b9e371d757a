package sensor

import (
	"context"
	"math"
	"sync"
	"time"
)

const (
	// simSeed is the moisture fraction every simulated channel starts from.
	simSeed = 0.45
	// simWaterBoost is added to every channel on a wet transition.
	simWaterBoost = 0.35
	// simBaseTempC and simBaseHumidity are the climate baselines.
	simBaseTempC    = 21.5
	simBaseHumidity = 55.0
)

// SimBoard stands in for the pod hardware on a development host. Moisture
// decays exponentially and jumps whenever Watered is called; climate values
// follow a slow daily swing around fixed baselines.
type SimBoard struct {
	mu        sync.Mutex
	now       func() time.Time
	decayRate float64 // per second
	last      map[int]time.Time
	moisture  map[int]float64
}

// NewSimBoard builds a simulator whose moisture halves every halfLife.
func NewSimBoard(halfLife time.Duration) *SimBoard {
	if halfLife <= 0 {
		halfLife = 12 * time.Hour
	}
	return &SimBoard{
		now:       time.Now,
		decayRate: math.Log(2) / halfLife.Seconds(),
		last:      make(map[int]time.Time),
		moisture:  make(map[int]float64),
	}
}

// Moisture returns the probe for one soil channel, as a 0..1 fraction.
func (s *SimBoard) Moisture(channel int) Probe {
	return ProbeFunc(func(context.Context) (float64, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return round3(s.advance(channel)), nil
	})
}

// Watered applies a watering boost to every channel read so far. Channels
// read for the first time afterwards start from the seed.
func (s *SimBoard) Watered() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.moisture {
		s.moisture[ch] = clamp01(s.advance(ch) + simWaterBoost)
	}
}

// advance brings the channel up to now. Callers hold s.mu.
func (s *SimBoard) advance(channel int) float64 {
	now := s.now()
	m, ok := s.moisture[channel]
	if !ok {
		m = simSeed
		s.last[channel] = now
	}
	dt := now.Sub(s.last[channel]).Seconds()
	if dt > 0 {
		m = clamp01(m * math.Exp(-s.decayRate*dt))
	}
	s.moisture[channel] = m
	s.last[channel] = now
	return m
}

func (s *SimBoard) Temperature() Probe {
	return ProbeFunc(func(context.Context) (float64, error) {
		return round1(simBaseTempC + 3*s.dailySwing()), nil
	})
}

func (s *SimBoard) Humidity() Probe {
	return ProbeFunc(func(context.Context) (float64, error) {
		return round1(simBaseHumidity - 8*s.dailySwing()), nil
	})
}

// dailySwing is -1 at midnight and +1 at noon.
func (s *SimBoard) dailySwing() float64 {
	s.mu.Lock()
	now := s.now()
	s.mu.Unlock()
	secs := float64(now.Hour()*3600 + now.Minute()*60 + now.Second())
	return -math.Cos(2 * math.Pi * secs / 86400)
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }
func round3(x float64) float64 { return math.Round(x*1000) / 1000 }
