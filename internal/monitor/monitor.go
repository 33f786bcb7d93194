package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/racedqn/autopilot/internal/influx"
	"github.com/racedqn/autopilot/internal/session"
	"github.com/racedqn/autopilot/pkg/core"
)

// Source provides dashboard snapshots; *sim.Simulation implements it.
type Source interface {
	Snapshot() core.Dashboard
}

// PointWriter is the part of *influx.Manager the monitor uses.
type PointWriter interface {
	WritePoint(ctx context.Context, bucket string, point *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Source  Source
	Logger  *slog.Logger
	Session *session.Context
	// Influx is optional.
	Influx PointWriter
	// StatusFile, when set, is rewritten with the dashboard lines on every report.
	StatusFile string
	Interval   time.Duration
}

// Service periodically publishes the training dashboard
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Session == nil {
		deps.Session = session.NewContext()
	}
	if deps.Interval <= 0 {
		deps.Interval = 5 * time.Second
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// StatusLines renders a dashboard snapshot as text.
func StatusLines(d core.Dashboard) []string {
	training := "idle"
	if d.Training {
		training = "running"
	}
	syncStep := 0
	if d.SyncInterval > 0 {
		syncStep = d.Step % d.SyncInterval
	}
	return []string{
		fmt.Sprintf("epsilon:     %.4f", d.Epsilon),
		fmt.Sprintf("buffer:      %d (inserts %d)", d.BufferLen, d.Inserts),
		fmt.Sprintf("crashes:     %d", d.Crashes),
		fmt.Sprintf("sync:        %d/%d (step %d)", syncStep, d.SyncInterval, d.Step),
		fmt.Sprintf("last reward: %.4f", d.LastReward),
		fmt.Sprintf("last loss:   %.6f", d.LastLoss),
		fmt.Sprintf("training:    %s", training),
	}
}

// Report takes one snapshot and publishes it to the log, the status file and InfluxDB.
func (s *Service) Report(ctx context.Context, now time.Time) core.Dashboard {
	d := s.deps.Source.Snapshot()

	s.deps.Logger.Info("Training status",
		"epsilon", d.Epsilon,
		"buffer", d.BufferLen,
		"crashes", d.Crashes,
		"step", d.Step,
		"loss", d.LastLoss,
	)

	if s.deps.StatusFile != "" {
		body := strings.Join(StatusLines(d), "\n") + "\n"
		if err := os.WriteFile(s.deps.StatusFile, []byte(body), 0o644); err != nil {
			s.deps.Logger.Error("Error writing status file", "error", err)
		}
	}

	if s.deps.Influx != nil {
		p := influx.TrainingPoint(s.deps.Session.Get().ID, d, now)
		if err := s.deps.Influx.WritePoint(ctx, influx.TrainingBucket, p); err != nil {
			s.deps.Logger.Error("Error writing training point", "error", err)
		}
	}
	return d
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if s.deps.Source == nil {
		s.mu.Unlock()
		return fmt.Errorf("monitor: no dashboard source")
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		s.deps.Logger.Debug("Starting status monitor", "interval", s.deps.Interval)
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				s.Report(context.Background(), now)
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.isRunning = false
	s.mu.Unlock()
	<-done
}
