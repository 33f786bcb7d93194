package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./racelogs", viper.GetString("logsDir"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "racesim", viper.GetString("db.database"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, "remote", viper.GetString("storage.type"))
	assert.Equal(t, "3m", viper.GetString("storage.sqlite.dumpInterval"))
	assert.Equal(t, false, viper.GetBool("otel.enabled"))
	assert.Equal(t, "racesim", viper.GetString("otel.serviceName"))
	assert.Equal(t, ":5080", viper.GetString("server.listen"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestGetters(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	viper.Set("testInt", 42)
	viper.Set("testBool", true)
	assert.Equal(t, "testValue", GetString("testKey"))
	assert.Equal(t, 42, GetInt("testInt"))
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetSimConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg, err := GetSimConfig()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Cars)
	assert.Equal(t, 100*time.Millisecond, cfg.ControlPeriod)
	assert.Equal(t, time.Second, cfg.RespawnDelay)
	assert.Equal(t, 100, cfg.PersistBatchSize)
	assert.Equal(t, 45.0, cfg.Vehicle.MaxSpeed)
	require.NoError(t, cfg.Validate())
}

func TestGetSimConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"sim": { "cars": 4, "controlPeriod": "50ms", "targetSpeed": 30 },
		"vehicle": { "maxSpeed": 60, "maxWheelTorque": 800 }
	}`)))

	cfg, err := GetSimConfig()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Cars)
	assert.Equal(t, 50*time.Millisecond, cfg.ControlPeriod)
	assert.Equal(t, 30.0, cfg.TargetSpeed)
	assert.Equal(t, 60.0, cfg.Vehicle.MaxSpeed)
	assert.Equal(t, 800.0, cfg.Vehicle.MaxWheelTorque)
	assert.Equal(t, 30.0, cfg.Vehicle.MaxSteeringSpeed, "untouched fields keep the stock value")
}

func TestGetDQNConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{ "dqn": { "batchSize": 32, "inline": true } }`)))

	cfg, err := GetDQNConfig()
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.BatchSize)
	assert.True(t, cfg.Inline)
	assert.Equal(t, 0.99, cfg.Gamma)
	require.NoError(t, cfg.Validate())
}

func TestGetStorageConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"storage": {
			"enabled": true,
			"type": "sqlite",
			"memory": { "outputDir": "/tmp/out", "compressOutput": false },
			"sqlite": { "dumpInterval": "10m" }
		}
	}`)))

	sc, err := GetStorageConfig()
	require.NoError(t, err)
	assert.True(t, sc.Enabled)
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/out", sc.Memory.OutputDir)
	assert.Equal(t, false, sc.Memory.CompressOutput)
	assert.Equal(t, 10*time.Minute, sc.SQLite.DumpInterval)
	assert.Equal(t, 10*time.Second, sc.Remote.Timeout)
}

func TestGetTrackAndRunConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	tc, err := GetTrackConfig()
	require.NoError(t, err)
	assert.Equal(t, "", tc.File)
	assert.Equal(t, 96, tc.OvalPoints)
	assert.True(t, tc.Closed)

	rc, err := GetRunConfig()
	require.NoError(t, err)
	assert.Equal(t, 16*time.Millisecond, rc.TickInterval)
	assert.Equal(t, 100000, rc.BufferCapacity)
}

func TestGetOTelAndInfluxConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{ "otel": { "enabled": true, "endpoint": "collector:4318" } }`)))

	oc, err := GetOTelConfig()
	require.NoError(t, err)
	assert.True(t, oc.Enabled)
	assert.Equal(t, "collector:4318", oc.Endpoint)
	assert.Equal(t, 5*time.Second, oc.BatchTimeout)

	ic := GetInfluxConfig()
	assert.False(t, ic.Enabled)
	assert.Equal(t, "racesim-metrics", ic.Org)
}
