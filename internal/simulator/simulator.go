// Package simulator broadcasts synthetic incubator sensor readings so the
// real-time channel can be exercised without hardware.
package simulator

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
)

// DefaultEvent is the notification event name of a reading batch.
const DefaultEvent = "sensor.reading"

// Broadcaster is satisfied by notify.Notifier.
type Broadcaster interface {
	Broadcast(ctx context.Context, event string, payload any) (int, error)
}

// Sensor describes one simulated channel. Values random-walk within
// [Min, Max] by at most Step per tick.
type Sensor struct {
	Name string
	Unit string
	Min  float64
	Max  float64
	Step float64
}

// DefaultSensors models an egg incubator.
var DefaultSensors = []Sensor{
	{Name: "temperature", Unit: "C", Min: 37.2, Max: 37.9, Step: 0.05},
	{Name: "humidity", Unit: "%", Min: 50, Max: 65, Step: 0.5},
	{Name: "co2", Unit: "ppm", Min: 400, Max: 2500, Step: 25},
}

type Reading struct {
	Sensor string    `json:"sensor"`
	Value  float64   `json:"value"`
	Unit   string    `json:"unit"`
	At     time.Time `json:"at"`
}

type Config struct {
	Interval time.Duration
	Event    string
	Sensors  []Sensor
	// Seed fixes the sequence; 0 seeds from the clock.
	Seed   uint64
	Now    func() time.Time
	Logger zerolog.Logger
}

type Simulator struct {
	out     Broadcaster
	cfg     Config
	rng     *rand.Rand
	current []float64
}

func New(out Broadcaster, cfg Config) (*Simulator, error) {
	if out == nil {
		return nil, errors.New("simulator: nil broadcaster")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Event == "" {
		cfg.Event = DefaultEvent
	}
	if len(cfg.Sensors) == 0 {
		cfg.Sensors = DefaultSensors
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(cfg.Now().UnixNano())
	}

	s := &Simulator{
		out:     out,
		cfg:     cfg,
		rng:     rand.New(rand.NewPCG(seed, seed>>1|1)),
		current: make([]float64, len(cfg.Sensors)),
	}
	for i, sensor := range cfg.Sensors {
		if sensor.Max < sensor.Min {
			return nil, errors.New("simulator: sensor " + sensor.Name + " has Max < Min")
		}
		s.current[i] = sensor.Min + (sensor.Max-sensor.Min)/2
	}
	return s, nil
}

// Run broadcasts one batch per interval until ctx is done.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.cfg.Logger.Info().Dur("interval", s.cfg.Interval).Int("sensors", len(s.cfg.Sensors)).Msg("sensor simulator started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick advances every sensor once and broadcasts the batch. It is not safe
// for concurrent use.
func (s *Simulator) Tick(ctx context.Context) []Reading {
	now := s.cfg.Now()
	batch := make([]Reading, len(s.cfg.Sensors))
	for i, sensor := range s.cfg.Sensors {
		v := s.current[i] + (s.rng.Float64()*2-1)*sensor.Step
		v = math.Min(sensor.Max, math.Max(sensor.Min, v))
		s.current[i] = v
		batch[i] = Reading{
			Sensor: sensor.Name,
			Value:  math.Round(v*100) / 100,
			Unit:   sensor.Unit,
			At:     now,
		}
	}

	sent, err := s.out.Broadcast(ctx, s.cfg.Event, batch)
	if err != nil {
		s.cfg.Logger.Warn().Err(err).Msg("sensor reading not relayed")
	}
	s.cfg.Logger.Trace().Int("sent", sent).Msg("sensor readings broadcast")
	return batch
}
