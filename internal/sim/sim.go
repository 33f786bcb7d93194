// Package sim drives the training loop: it turns physics state into
// observations and rewards, feeds the replay buffer and the agent, applies
// the ESP force law and handles crash/respawn for every car.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"

	"github.com/racedqn/autopilot/internal/agent"
	"github.com/racedqn/autopilot/internal/replay"
	"github.com/racedqn/autopilot/internal/reward"
	"github.com/racedqn/autopilot/internal/sensor"
	"github.com/racedqn/autopilot/internal/track"
	"github.com/racedqn/autopilot/internal/util"
	"github.com/racedqn/autopilot/internal/vehicle"
	"github.com/racedqn/autopilot/pkg/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"gonum.org/v1/gonum/spatial/r3"
)

// State is the lifecycle state of a car slot.
type State int

const (
	Driving State = iota
	AwaitingRespawn
)

func (s State) String() string {
	switch s {
	case Driving:
		return "driving"
	case AwaitingRespawn:
		return "awaiting_respawn"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Handle names one incarnation of a car slot. It goes stale on respawn.
type Handle struct {
	Index int
	Gen   uint32
}

// PersistFunc receives the newest transitions every PersistBatchSize
// inserts. firstSeq is the insert sequence number of ts[0].
type PersistFunc func(firstSeq uint64, ts []core.Transition)

// Option configures a Simulation.
type Option func(*Simulation)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulation) { s.log = l }
}

// WithPersistHook installs fn as the persistence side channel.
func WithPersistHook(fn PersistFunc) Option {
	return func(s *Simulation) { s.persist = fn }
}

// WithRand overrides the source used to pick respawn positions.
func WithRand(r *rand.Rand) Option {
	return func(s *Simulation) { s.rng = r }
}

type car struct {
	gen     uint32
	state   State
	primary bool
	body    core.BodyID
	vehicle *vehicle.Vehicle
	sensors *sensor.Array

	nextAct   float64
	respawnAt float64

	prevObs    core.Observation
	prevAction int
	hasPrev    bool

	lastObs    core.Observation
	lastReward float32
	lastOutput vehicle.Output
}

// Simulation owns the cars, the replay buffer and the agent. It is driven
// by one goroutine calling Tick; only Snapshot may be called concurrently.
type Simulation struct {
	cfg     Config
	physics Physics
	scene   Scene
	track   *track.Track
	agent   *agent.Agent
	buf     *replay.Buffer

	cars    []*car
	now     float64
	steps   int
	crashes int

	persist PersistFunc
	rng     *rand.Rand
	log     *slog.Logger
	dash    atomic.Pointer[core.Dashboard]

	crashCounter metric.Int64Counter
}

// New spawns cfg.Cars vehicles. Car 0 is the primary car: it starts at the
// beginning of the track and is the only one that triggers training.
func New(cfg Config, physics Physics, scene Scene, tr *track.Track, ag *agent.Agent, buf *replay.Buffer, opts ...Option) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sim config: %w", err)
	}
	s := &Simulation{
		cfg:     cfg,
		physics: physics,
		scene:   scene,
		track:   tr,
		agent:   ag,
		buf:     buf,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	s.crashCounter, err = otel.Meter("github.com/racedqn/autopilot/internal/sim").Int64Counter(
		"sim.crashes",
		metric.WithDescription("Vehicle collisions that ended an episode"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating crash counter: %w", err)
	}

	for i := 0; i < cfg.Cars; i++ {
		c := &car{
			primary: i == 0,
			sensors: sensor.New(cfg.Vehicle.HalfWidth, cfg.Vehicle.HalfLength, cfg.SensorRange),
		}
		s.cars = append(s.cars, c)
		if err := s.spawn(c); err != nil {
			return nil, fmt.Errorf("spawning car %d: %w", i, err)
		}
	}
	s.publish()
	return s, nil
}

// Now returns the simulated time in seconds.
func (s *Simulation) Now() float64 { return s.now }

// Steps returns the number of control steps taken across all cars.
func (s *Simulation) Steps() int { return s.steps }

// Crashes returns the total number of crashes.
func (s *Simulation) Crashes() int { return s.crashes }

// Handles returns the live handle of every car slot.
func (s *Simulation) Handles() []Handle {
	out := make([]Handle, len(s.cars))
	for i, c := range s.cars {
		out[i] = Handle{Index: i, Gen: c.gen}
	}
	return out
}

// CarView is a read-only copy of one car's state.
type CarView struct {
	State      State
	Primary    bool
	Body       core.BodyID
	Gas        float64
	Brake      float64
	Steering   float64
	LastObs    core.Observation
	LastReward float32
	LastAction int
	Output     vehicle.Output
}

// Car returns the state behind h, or false when h is stale.
func (s *Simulation) Car(h Handle) (CarView, bool) {
	if h.Index < 0 || h.Index >= len(s.cars) {
		return CarView{}, false
	}
	c := s.cars[h.Index]
	if c.gen != h.Gen {
		return CarView{}, false
	}
	return CarView{
		State:      c.state,
		Primary:    c.primary,
		Body:       c.body,
		Gas:        c.vehicle.Gas,
		Brake:      c.vehicle.Brake,
		Steering:   c.vehicle.Steering,
		LastObs:    c.lastObs,
		LastReward: c.lastReward,
		LastAction: c.prevAction,
		Output:     c.lastOutput,
	}, true
}

// Snapshot returns the latest dashboard values. Safe for concurrent use.
func (s *Simulation) Snapshot() core.Dashboard {
	if d := s.dash.Load(); d != nil {
		return *d
	}
	return core.Dashboard{}
}

// Tick advances the simulation by dt seconds.
func (s *Simulation) Tick(dt float64) {
	s.now += dt
	s.agent.Poll()

	for _, c := range s.cars {
		switch c.state {
		case AwaitingRespawn:
			if s.now >= c.respawnAt {
				if err := s.spawn(c); err != nil {
					s.log.Warn("respawn failed, retrying", "error", err)
					c.respawnAt = s.now + s.cfg.RespawnDelay.Seconds()
				}
			}
		case Driving:
			s.drive(c, dt)
		}
	}
	s.publish()
}

func (s *Simulation) drive(c *car, dt float64) {
	k, ok := s.physics.Kinematics(c.body)
	if !ok {
		s.log.Warn("vehicle body vanished", "body", c.body)
		s.retire(c)
		return
	}

	c.sensors.Update(s.physics, k.Pose)
	obs, in := s.observe(c, k)
	in.Crashed = s.collided(c.body)
	r := reward.Compute(in)
	c.lastObs, c.lastReward = obs, r

	if in.Crashed {
		s.crash(c, obs)
		return
	}

	if s.now > c.nextAct {
		c.nextAct = s.now + s.cfg.ControlPeriod.Seconds()
		s.steps++
		if c.hasPrev {
			s.store(core.Transition{
				State:     c.prevObs,
				Action:    c.prevAction,
				Reward:    r,
				NextState: obs,
			})
		}
		if c.primary {
			s.agent.Step(s.buf)
		}
		a := s.agent.Act(obs)
		gas, brake, left, right := agent.ActionControls(a)
		c.vehicle.SetControls(gas, brake, agent.Steering(left, right))
		c.prevObs, c.prevAction, c.hasPrev = obs, a, true
	}

	c.lastOutput = vehicle.ESP(c.vehicle, k, s.physics.WheelKinematics(c.body), dt)
	s.scene.ApplyWheels(c.body, c.lastOutput.Wheels)
}

// observe builds the observation and the reward inputs for this tick. The
// observation carries a signed lateral offset; the reward uses its magnitude.
func (s *Simulation) observe(c *car, k core.Kinematics) (core.Observation, reward.Inputs) {
	q := s.track.Query(track.FromWorld(k.Pose.Position))
	dir := track.DirectionWorld(q.Direction)
	forward := k.Pose.Rotation.Rotate(core.Forward)

	in := reward.Inputs{
		VelocityRatio: r3.Norm(k.LinVel) / s.cfg.TargetSpeed,
		VelCos:        util.Cos(util.Planar(k.LinVel), dir),
		PosCos:        util.Cos(util.Planar(forward), dir),
		LateralNorm:   reward.LateralNorm(q.Distance),
	}

	var obs core.Observation
	obs[core.ObsVelocityRatio] = float32(reward.SaturateRatio(in.VelocityRatio))
	obs[core.ObsYawRate] = float32(util.ZeroIfNaN(k.AngVel.Y))
	obs[core.ObsLateralOffset] = float32(in.LateralNorm * q.Side)
	obs[core.ObsVelocityHeadingCos] = float32(in.VelCos)
	obs[core.ObsPositionHeadingCos] = float32(in.PosCos)
	c.sensors.Fill(&obs)
	return obs, in
}

func (s *Simulation) collided(id core.BodyID) bool {
	for _, ct := range s.physics.Contacts(id) {
		if !ct.Road {
			return true
		}
	}
	return false
}

// crash stores the terminal transition and schedules a respawn.
func (s *Simulation) crash(c *car, obs core.Observation) {
	if c.hasPrev {
		s.store(core.Transition{
			State:     c.prevObs,
			Action:    c.prevAction,
			Reward:    reward.Crash,
			NextState: obs,
			Done:      true,
		})
	}
	s.crashes++
	s.crashCounter.Add(context.Background(), 1)
	s.log.Info("vehicle crashed",
		"body", c.body,
		"primary", c.primary,
		"crashes", s.crashes,
		"t", s.now,
	)
	s.retire(c)
}

func (s *Simulation) retire(c *car) {
	s.scene.Despawn(c.body)
	c.state = AwaitingRespawn
	c.respawnAt = s.now + s.cfg.RespawnDelay.Seconds()
	c.hasPrev = false
}

func (s *Simulation) spawn(c *car) error {
	idx := 0
	if !c.primary {
		idx = s.rng.Intn(s.track.Len())
	}
	id, err := s.scene.Spawn(SpawnRequest{
		Spec:       s.cfg.Vehicle,
		Pose:       s.track.SpawnPose(idx),
		Player:     c.primary,
		TrackIndex: idx,
	})
	if err != nil {
		return err
	}
	c.gen++
	c.body = id
	c.vehicle = vehicle.New(s.cfg.Vehicle)
	c.state = Driving
	c.nextAct = s.now
	c.hasPrev = false
	return nil
}

func (s *Simulation) store(t core.Transition) {
	s.buf.Store(t)
	n := uint64(s.cfg.PersistBatchSize)
	if s.persist == nil || s.buf.Inserts()%n != 0 {
		return
	}
	recent := s.buf.Recent(s.cfg.PersistBatchSize)
	s.persist(s.buf.Inserts()-uint64(len(recent)), recent)
}

func (s *Simulation) publish() {
	d := &core.Dashboard{
		Epsilon:      s.agent.Epsilon(),
		BufferLen:    s.buf.Len(),
		Inserts:      s.buf.Inserts(),
		Crashes:      s.crashes,
		Step:         s.agent.Steps(),
		SyncInterval: s.agent.Config().SyncInterval,
		LastReward:   s.cars[0].lastReward,
		LastLoss:     s.agent.LastLoss(),
		Training:     s.agent.InFlight(),
	}
	s.dash.Store(d)
}
