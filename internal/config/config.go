package config

import (
	"fmt"
	"time"

	"github.com/racedqn/autopilot/internal/agent"
	"github.com/racedqn/autopilot/internal/sim"
	"github.com/racedqn/autopilot/internal/vehicle"
	"github.com/racedqn/autopilot/internal/world"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "racesim.cfg.json"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds settings for the in-memory SQLite backend
type SQLiteConfig struct {
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// RemoteConfig points at a replay server
type RemoteConfig struct {
	ServerURL string        `json:"serverUrl" mapstructure:"serverUrl"`
	APIKey    string        `json:"apiKey" mapstructure:"apiKey"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
}

// StorageConfig selects and configures the replay persistence backend
type StorageConfig struct {
	Enabled bool         `json:"enabled" mapstructure:"enabled"`
	Type    string       `json:"type" mapstructure:"type"`
	Memory  MemoryConfig `json:"memory" mapstructure:"memory"`
	SQLite  SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
	Remote  RemoteConfig `json:"remote" mapstructure:"remote"`
}

// DBConfig holds Postgres connection settings
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName   string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout  time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint      string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure      bool          `json:"insecure" mapstructure:"insecure"`
	Metrics       bool          `json:"metrics" mapstructure:"metrics"`
	MetricsPeriod time.Duration `json:"metricsPeriod" mapstructure:"metricsPeriod"`
}

// InfluxConfig holds InfluxDB settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
}

// TrackConfig describes where the centerline comes from. With no file the
// built-in oval is used.
type TrackConfig struct {
	File       string  `json:"file" mapstructure:"file"`
	LonLat     bool    `json:"lonLat" mapstructure:"lonLat"`
	Closed     bool    `json:"closed" mapstructure:"closed"`
	Width      float64 `json:"width" mapstructure:"width"`
	OvalA      float64 `json:"ovalA" mapstructure:"ovalA"`
	OvalB      float64 `json:"ovalB" mapstructure:"ovalB"`
	OvalPoints int     `json:"ovalPoints" mapstructure:"ovalPoints"`
}

// RunConfig controls the headless driver loop
type RunConfig struct {
	SceneName       string        `json:"sceneName" mapstructure:"sceneName"`
	TickInterval    time.Duration `json:"tickInterval" mapstructure:"tickInterval"`
	Ticks           int           `json:"ticks" mapstructure:"ticks"`
	BufferCapacity  int           `json:"bufferCapacity" mapstructure:"bufferCapacity"`
	MonitorInterval time.Duration `json:"monitorInterval" mapstructure:"monitorInterval"`
}

// ServerConfig configures the replay server. SqlitePath backs the sqlite
// store and the Postgres fallback.
type ServerConfig struct {
	Listen     string `json:"listen" mapstructure:"listen"`
	Storage    string `json:"storage" mapstructure:"storage"`
	APIKey     string `json:"apiKey" mapstructure:"apiKey"`
	SqlitePath string `json:"sqlitePath" mapstructure:"sqlitePath"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// SetDefaults registers every default value. Load calls it; binaries that
// run without a config file call it directly.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./racelogs")
	viper.SetDefault("logConsole", false)

	viper.SetDefault("run.sceneName", "oval")
	viper.SetDefault("run.tickInterval", "16ms")
	viper.SetDefault("run.ticks", 0)
	viper.SetDefault("run.bufferCapacity", 100000)
	viper.SetDefault("run.monitorInterval", "5s")

	sc := sim.DefaultConfig()
	viper.SetDefault("sim.cars", sc.Cars)
	viper.SetDefault("sim.controlPeriod", sc.ControlPeriod.String())
	viper.SetDefault("sim.respawnDelay", sc.RespawnDelay.String())
	viper.SetDefault("sim.targetSpeed", sc.TargetSpeed)
	viper.SetDefault("sim.sensorRange", sc.SensorRange)
	viper.SetDefault("sim.persistBatchSize", sc.PersistBatchSize)
	viper.SetDefault("sim.seed", sc.Seed)

	ac := agent.DefaultConfig()
	viper.SetDefault("dqn.hiddenSize", ac.HiddenSize)
	viper.SetDefault("dqn.hiddenLayers", ac.HiddenLayers)
	viper.SetDefault("dqn.batchSize", ac.BatchSize)
	viper.SetDefault("dqn.epochs", ac.Epochs)
	viper.SetDefault("dqn.gamma", ac.Gamma)
	viper.SetDefault("dqn.learningRate", ac.LearningRate)
	viper.SetDefault("dqn.maxEps", ac.MaxEps)
	viper.SetDefault("dqn.minEps", ac.MinEps)
	viper.SetDefault("dqn.epsDecay", ac.EpsDecay)
	viper.SetDefault("dqn.syncInterval", ac.SyncInterval)
	viper.SetDefault("dqn.inline", ac.Inline)
	viper.SetDefault("dqn.seed", ac.Seed)

	viper.SetDefault("track.file", "")
	viper.SetDefault("track.lonLat", false)
	viper.SetDefault("track.closed", true)
	viper.SetDefault("track.width", 12.0)
	viper.SetDefault("track.ovalA", 150.0)
	viper.SetDefault("track.ovalB", 80.0)
	viper.SetDefault("track.ovalPoints", 96)

	wc := world.DefaultConfig()
	viper.SetDefault("world.mass", wc.Mass)
	viper.SetDefault("world.rollingResistance", wc.RollingResistance)
	viper.SetDefault("world.drag", wc.Drag)

	viper.SetDefault("storage.enabled", false)
	viper.SetDefault("storage.type", "remote")
	viper.SetDefault("storage.memory.outputDir", "./replays")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpPath", "./replays/replay.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.remote.serverUrl", "http://localhost:5080")
	viper.SetDefault("storage.remote.apiKey", "")
	viper.SetDefault("storage.remote.timeout", "10s")

	viper.SetDefault("server.listen", ":5080")
	viper.SetDefault("server.storage", "sqlite")
	viper.SetDefault("server.apiKey", "")
	viper.SetDefault("server.sqlitePath", "./replays/replayserver.db")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "racesim")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "racesim-metrics")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "racesim")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
	viper.SetDefault("otel.metrics", false)
	viper.SetDefault("otel.metricsPeriod", "30s")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetSimConfig returns the training loop settings. The vehicle spec starts
// from the stock car and takes any "vehicle" overrides.
func GetSimConfig() (sim.Config, error) {
	cfg := sim.DefaultConfig()
	if err := viper.UnmarshalKey("sim", &cfg); err != nil {
		return cfg, fmt.Errorf("decoding sim config: %w", err)
	}
	spec, err := GetVehicleSpec()
	if err != nil {
		return cfg, err
	}
	cfg.Vehicle = spec
	return cfg, nil
}

// GetVehicleSpec returns the car constants.
func GetVehicleSpec() (vehicle.Spec, error) {
	spec := vehicle.DefaultSpec()
	if err := viper.UnmarshalKey("vehicle", &spec); err != nil {
		return spec, fmt.Errorf("decoding vehicle config: %w", err)
	}
	return spec, nil
}

// GetDQNConfig returns the agent hyperparameters.
func GetDQNConfig() (agent.Config, error) {
	cfg := agent.DefaultConfig()
	if err := viper.UnmarshalKey("dqn", &cfg); err != nil {
		return cfg, fmt.Errorf("decoding dqn config: %w", err)
	}
	return cfg, nil
}

// GetWorldConfig returns the headless physics constants.
func GetWorldConfig() (world.Config, error) {
	cfg := world.DefaultConfig()
	if err := viper.UnmarshalKey("world", &cfg); err != nil {
		return cfg, fmt.Errorf("decoding world config: %w", err)
	}
	return cfg, nil
}

// GetTrackConfig returns the track source settings.
func GetTrackConfig() (TrackConfig, error) {
	var cfg TrackConfig
	err := viper.UnmarshalKey("track", &cfg)
	return cfg, err
}

// GetRunConfig returns the driver loop settings.
func GetRunConfig() (RunConfig, error) {
	var cfg RunConfig
	err := viper.UnmarshalKey("run", &cfg)
	return cfg, err
}

// GetStorageConfig returns the replay persistence settings.
func GetStorageConfig() (StorageConfig, error) {
	var cfg StorageConfig
	err := viper.UnmarshalKey("storage", &cfg)
	return cfg, err
}

// GetServerConfig returns the replay server settings.
func GetServerConfig() (ServerConfig, error) {
	var cfg ServerConfig
	err := viper.UnmarshalKey("server", &cfg)
	return cfg, err
}

// GetDBConfig returns Postgres connection settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetOTelConfig returns OpenTelemetry settings.
func GetOTelConfig() (OTelConfig, error) {
	var cfg OTelConfig
	err := viper.UnmarshalKey("otel", &cfg)
	return cfg, err
}

// GetInfluxConfig returns InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
	}
}
