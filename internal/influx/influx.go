// Package influx publishes training progress to InfluxDB, spilling to a
// gzip line-protocol file when the server is unreachable.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/racedqn/autopilot/internal/config"
	"github.com/racedqn/autopilot/pkg/core"
	"github.com/rs/zerolog"
)

// TrainingBucket holds dashboard and learning-progress points.
const TrainingBucket = "racesim_training"

const retention = 90 * 24 * time.Hour

// ErrDisabled is returned by Connect when InfluxDB is turned off.
var ErrDisabled = errors.New("influxdb is disabled")

// Manager writes points to InfluxDB or, when offline, to the backup file.
type Manager struct {
	log        zerolog.Logger
	backupPath string
	buckets    []string

	client  influxdb2.Client
	writers map[string]influxdb2_api.WriteAPI
	online  bool

	mu         sync.Mutex
	backup     *gzip.Writer
	backupFile *os.File
}

func NewManager(log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		log:        log,
		backupPath: backupPath,
		buckets:    []string{TrainingBucket},
		writers:    make(map[string]influxdb2_api.WriteAPI),
	}
}

// Online reports whether points go to the server rather than the backup file.
func (m *Manager) Online() bool {
	return m.online
}

// Connect pings the server and prepares its org and buckets. An
// unreachable server is not an error; the backup file is opened instead.
func (m *Manager) Connect(cfg config.InfluxConfig) error {
	if !cfg.Enabled {
		return ErrDisabled
	}

	url := fmt.Sprintf("%s://%s:%s", cfg.Protocol, cfg.Host, cfg.Port)
	m.client = influxdb2.NewClientWithOptions(url, cfg.Token,
		influxdb2.DefaultOptions().SetBatchSize(2500).SetFlushInterval(1000))

	ctx := context.Background()
	if up, err := m.client.Ping(ctx); err != nil || !up {
		m.log.Warn().Err(err).Str("url", url).Str("backupPath", m.backupPath).
			Msg("InfluxDB unreachable, writing to backup file")
		return m.OpenBackup()
	}

	org, err := m.ensureOrg(ctx, cfg.Org)
	if err != nil {
		return err
	}
	for _, b := range m.buckets {
		if err := m.ensureBucket(ctx, org, b); err != nil {
			return err
		}
		m.startWriter(cfg.Org, b)
	}
	m.online = true
	m.log.Info().Str("url", url).Strs("buckets", m.buckets).Msg("InfluxDB client initialized")
	return nil
}

// OpenBackup opens the gzip backup file for appending. It is a no-op once open.
func (m *Manager) OpenBackup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backup != nil {
		return nil
	}
	f, err := os.OpenFile(m.backupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening influx backup %s: %w", m.backupPath, err)
	}
	m.backupFile = f
	m.backup = gzip.NewWriter(f)
	return nil
}

func (m *Manager) ensureOrg(ctx context.Context, name string) (*domain.Organization, error) {
	orgs := m.client.OrganizationsAPI()
	if org, err := orgs.FindOrganizationByName(ctx, name); err == nil {
		return org, nil
	}
	m.log.Info().Str("org", name).Msg("Creating InfluxDB organization")
	org, err := orgs.CreateOrganizationWithName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("creating organization %s: %w", name, err)
	}
	return org, nil
}

func (m *Manager) ensureBucket(ctx context.Context, org *domain.Organization, name string) error {
	buckets := m.client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, name); err == nil {
		return nil
	}
	m.log.Info().Str("bucket", name).Msg("Creating InfluxDB bucket")
	expire := domain.RetentionRuleTypeExpire
	_, err := buckets.CreateBucketWithName(ctx, org, name, domain.RetentionRule{
		Type:         &expire,
		EverySeconds: int64(retention / time.Second),
	})
	if err != nil {
		return fmt.Errorf("creating bucket %s: %w", name, err)
	}
	return nil
}

// startWriter opens the async write API for bucket and logs its errors.
func (m *Manager) startWriter(org, bucket string) {
	w := m.client.WriteAPI(org, bucket)
	m.writers[bucket] = w
	go func() {
		for err := range w.Errors() {
			m.log.Error().Err(err).Str("bucket", bucket).Msg("InfluxDB write failed")
		}
	}()
}

// WritePoint queues point for bucket.
func (m *Manager) WritePoint(_ context.Context, bucket string, point *influxdb2_write.Point) error {
	if m.online {
		w, ok := m.writers[bucket]
		if !ok {
			return fmt.Errorf("influx bucket %q not registered", bucket)
		}
		w.WritePoint(point)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backup == nil {
		return errors.New("influx offline and no backup file open")
	}
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.backup.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("writing influx backup: %w", err)
	}
	return nil
}

// TrainingPoint converts a dashboard snapshot into a "training" point.
func TrainingPoint(sessionID string, d core.Dashboard, at time.Time) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement("training").
		AddField("epsilon", d.Epsilon).
		AddField("buffer_len", d.BufferLen).
		AddField("inserts", int64(d.Inserts)).
		AddField("crashes", d.Crashes).
		AddField("step", d.Step).
		AddField("last_reward", float64(d.LastReward)).
		AddField("last_loss", d.LastLoss).
		AddField("training", d.Training).
		SetTime(at)
	if sessionID != "" {
		p.AddTag("session", sessionID)
	}
	return p
}

// Close flushes pending points and releases the client and backup file.
func (m *Manager) Close() error {
	for _, w := range m.writers {
		w.Flush()
	}
	if m.client != nil {
		m.client.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	if m.backup != nil {
		errs = append(errs, m.backup.Close())
		m.backup = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("closing influx backup: %w", err)
	}
	return nil
}
