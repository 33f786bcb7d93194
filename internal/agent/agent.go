// Package agent implements the DQN agent: epsilon-greedy action selection,
// hard target-network sync and asynchronous fixed-epoch training.
//
// An Agent is owned by the simulation goroutine. Training runs on a
// separate goroutine against cloned weights; results come back over a
// bounded channel that Poll drains once per tick.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/racedqn/autopilot/internal/channel"
	"github.com/racedqn/autopilot/internal/nn"
	"github.com/racedqn/autopilot/internal/replay"
	"github.com/racedqn/autopilot/pkg/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Result is a completed training job.
type Result struct {
	Network   *nn.Network
	Optimizer *nn.Adam
	Losses    []string
	Duration  time.Duration
	LastLoss  float64
}

// StepReport describes what one training step did.
type StepReport struct {
	Step       int
	Epsilon    float64
	Synced     bool
	Dispatched bool
}

// Agent is a DQN learner with an online and a target network.
type Agent struct {
	cfg    Config
	online *nn.Network
	target *nn.Network
	opt    *nn.Adam

	epsilon  float64
	steps    int
	inFlight bool
	lastLoss float64

	results channel.Channel[Result]
	rng     *rand.Rand
	log     *slog.Logger

	jobs     metric.Int64Counter
	syncs    metric.Int64Counter
	duration metric.Float64Histogram
}

// New creates an agent with freshly initialized networks. The target
// network starts as an exact copy of the online one.
func New(cfg Config, log *slog.Logger) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent config: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	online, err := nn.New(cfg.layerSizes(core.StateSize, NumActions), rng)
	if err != nil {
		return nil, fmt.Errorf("creating online network: %w", err)
	}

	a := &Agent{
		cfg:     cfg,
		online:  online,
		target:  online.Clone(),
		opt:     nn.NewAdam(cfg.LearningRate),
		epsilon: cfg.MaxEps,
		results: channel.New[Result](1),
		rng:     rng,
		log:     log,
	}

	m := otel.Meter("github.com/racedqn/autopilot/internal/agent")
	a.jobs, err = m.Int64Counter(
		"dqn.training.jobs",
		metric.WithDescription("Training jobs completed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating jobs counter: %w", err)
	}
	a.syncs, err = m.Int64Counter(
		"dqn.target.syncs",
		metric.WithDescription("Hard target network syncs"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating syncs counter: %w", err)
	}
	a.duration, err = m.Float64Histogram(
		"dqn.training.duration",
		metric.WithDescription("Wall time of one training job"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	return a, nil
}

// Config returns the configuration the agent was built with.
func (a *Agent) Config() Config { return a.cfg }

// Epsilon returns the current exploration rate.
func (a *Agent) Epsilon() float64 { return a.epsilon }

// Steps returns the number of training steps taken.
func (a *Agent) Steps() int { return a.steps }

// InFlight reports whether a training job is running.
func (a *Agent) InFlight() bool { return a.inFlight }

// LastLoss returns the final loss of the most recently installed job.
func (a *Agent) LastLoss() float64 { return a.lastLoss }

// Online returns the online network. Callers must not mutate it.
func (a *Agent) Online() *nn.Network { return a.online }

// Target returns the target network. Callers must not mutate it.
func (a *Agent) Target() *nn.Network { return a.target }

// Act picks an action for obs: random with probability epsilon, greedy
// otherwise.
func (a *Agent) Act(obs core.Observation) int {
	if a.rng.Float64() < a.epsilon {
		return a.rng.Intn(NumActions)
	}
	return Argmax(a.online.Forward(obs.Float64s()))
}

// Argmax returns the index of the first maximum of q, skipping NaN. It
// returns 0 when q has no comparable value.
func Argmax(q []float64) int {
	best := -1
	for i, v := range q {
		if math.IsNaN(v) {
			continue
		}
		if best < 0 || v > q[best] {
			best = i
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

// Step advances one training step: decays epsilon, syncs the target
// network on schedule and dispatches a training job when none is running
// and buf holds at least one batch.
func (a *Agent) Step(buf *replay.Buffer) StepReport {
	a.steps++
	a.epsilon = math.Max(a.cfg.MinEps, a.epsilon-a.cfg.EpsDecay)

	rep := StepReport{Step: a.steps}
	if a.steps%a.cfg.SyncInterval == 0 && buf.Len() > 2*a.cfg.BatchSize {
		a.SyncTarget()
		rep.Synced = true
	}
	if !a.inFlight && buf.Len() >= a.cfg.BatchSize {
		rep.Dispatched = a.dispatch(buf)
	}
	rep.Epsilon = a.epsilon
	return rep
}

// SyncTarget copies the online weights into the target network.
func (a *Agent) SyncTarget() {
	a.target.CopyFrom(a.online)
	a.syncs.Add(context.Background(), 1)
	a.log.Debug("target network synced", "step", a.steps)
}

func (a *Agent) dispatch(buf *replay.Buffer) bool {
	batch, err := buf.SampleBatch(a.cfg.BatchSize, a.rng)
	if err != nil {
		a.log.Warn("skipping training dispatch", "error", err)
		return false
	}

	online, target, opt := a.online.Clone(), a.target.Clone(), a.opt.Clone()
	gamma, epochs := a.cfg.Gamma, a.cfg.Epochs
	job := func() Result {
		start := time.Now()
		losses := nn.Train(online, target, opt, batch, gamma, epochs)
		res := Result{Network: online, Optimizer: opt, Duration: time.Since(start)}
		for i, l := range losses {
			res.Losses = append(res.Losses, fmt.Sprintf("epoch %d loss %.6f", i, l))
		}
		if len(losses) > 0 {
			res.LastLoss = losses[len(losses)-1]
		}
		return res
	}

	if a.cfg.Inline {
		a.install(job())
		return true
	}

	a.inFlight = true
	go func() {
		a.results.Send(job())
	}()
	return true
}

// Poll installs every completed training result without blocking and
// returns how many were applied.
func (a *Agent) Poll() int {
	return channel.Drain[Result](a.results, a.install)
}

func (a *Agent) install(res Result) {
	a.online = res.Network
	a.opt = res.Optimizer
	a.inFlight = false
	a.lastLoss = res.LastLoss

	a.jobs.Add(context.Background(), 1)
	a.duration.Record(context.Background(), res.Duration.Seconds())
	a.log.Debug("training result installed",
		"duration", res.Duration,
		"loss", res.LastLoss,
		"epochs", len(res.Losses),
	)
}
