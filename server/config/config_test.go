package config

import (
	"bytes"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v2"
)

func TestConfigRoundtrip(t *testing.T) {
	// This test verifies that a config can be roundtripped through yaml.
	// Doing so ensures that config_dump will provide the correct config.
	// Newly added config values will automatically be tested in this
	// function because of the reflection on the config struct.

	cmd := &cobra.Command{}
	// Leaving this flag unset means that no attempt will be made to load
	// the config file
	cmd.PersistentFlags().StringP("config", "c", "", "Path to a configuration file")
	man := NewManager(cmd)

	// Use reflection magic to walk the config struct, setting unique
	// values to be verified on the roundtrip. Note that bools are always
	// set to true, which could false positive if the default value is
	// true.
	original := &LivequeryConfig{}
	v := reflect.ValueOf(original)
	for conf_index := 0; conf_index < v.Elem().NumField(); conf_index++ {
		conf_v := v.Elem().Field(conf_index)
		for key_index := 0; key_index < conf_v.NumField(); key_index++ {
			key_v := conf_v.Field(key_index)
			switch key_v.Interface().(type) {
			case string:
				key_v.SetString(v.Elem().Type().Field(conf_index).Name + "_" + conf_v.Type().Field(key_index).Name)
			case int:
				key_v.SetInt(int64(conf_index*100 + key_index))
			case bool:
				key_v.SetBool(true)
			case time.Duration:
				d := time.Duration(conf_index*100 + key_index)
				key_v.Set(reflect.ValueOf(d))
			}
		}
	}

	// Marshal the generated config
	buf, err := yaml.Marshal(original)
	require.Nil(t, err)

	// Manually load the serialized config
	man.viper.SetConfigType("yaml")
	err = man.viper.ReadConfig(bytes.NewReader(buf))
	require.Nil(t, err)

	// Ensure the read config is the same as the original
	assert.Equal(t, *original, man.LoadConfig())
}

func newTestManager() Manager {
	cmd := &cobra.Command{}
	cmd.PersistentFlags().StringP("config", "c", "", "Path to a configuration file")
	return NewManager(cmd)
}

func TestConfigDefaults(t *testing.T) {
	conf := newTestManager().LoadConfig()

	assert.Equal(t, "inmem", conf.PubSub.Backend)
	assert.Equal(t, "localhost:6379", conf.Redis.Address)
	assert.Equal(t, "0.0.0.0:8080", conf.Server.Address)
	assert.Equal(t, 5*time.Second, conf.Server.StatusInterval)
	assert.False(t, conf.Logging.Debug)
	assert.Equal(t, 500, conf.Logging.MaxSize)
	assert.Equal(t, "http://localhost:8080", conf.Watch.ServerURL)
}

func TestConfigEnvOverride(t *testing.T) {
	defer RestoreEnv(t, os.Environ())

	require.NoError(t, os.Setenv("LIVEQUERY_PUBSUB_BACKEND", "redis"))
	require.NoError(t, os.Setenv("LIVEQUERY_REDIS_DATABASE", "4"))
	require.NoError(t, os.Setenv("LIVEQUERY_LOGGING_JSON", "true"))
	require.NoError(t, os.Setenv("LIVEQUERY_SERVER_STATUS_INTERVAL", "250ms"))

	man := newTestManager()
	assert.True(t, man.IsSet("pubsub.backend"))

	conf := man.LoadConfig()
	assert.Equal(t, "redis", conf.PubSub.Backend)
	assert.Equal(t, 4, conf.Redis.Database)
	assert.True(t, conf.Logging.JSON)
	assert.Equal(t, 250*time.Millisecond, conf.Server.StatusInterval)
}

func TestConfigFlagOverride(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.PersistentFlags().StringP("config", "c", "", "Path to a configuration file")
	man := NewManager(cmd)

	require.NoError(t, cmd.PersistentFlags().Set("server_address", "127.0.0.1:9999"))
	require.NoError(t, cmd.PersistentFlags().Set("watch_insecure_skip_verify", "true"))

	conf := man.LoadConfig()
	assert.Equal(t, "127.0.0.1:9999", conf.Server.Address)
	assert.True(t, conf.Watch.InsecureSkipVerify)
}

func TestEnvNameFromConfigKey(t *testing.T) {
	assert.Equal(t, "LIVEQUERY_REDIS_USE_TLS", envNameFromConfigKey("redis.use_tls"))
	assert.Equal(t, "server_url_prefix", flagNameFromConfigKey("server.url_prefix"))
}

func TestDuplicateConfigPanics(t *testing.T) {
	man := newTestManager()
	assert.Panics(t, func() {
		man.addConfigString("redis.address", "", "duplicate")
	})
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, TestConfig().Validate())
	require.NoError(t, newTestManager().LoadConfig().Validate())

	cfg := TestConfig()
	cfg.Server.TLS = true
	cfg.Server.StatusInterval = 0
	cfg.PubSub.Backend = "redis"
	cfg.Redis.Address = ""
	cfg.Logging.MaxAge = -1
	cfg.Watch.RefreshInterval = 0

	err := cfg.Validate()
	require.Error(t, err)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 5)
	assert.Contains(t, err.Error(), "server.tls requires server.cert and server.key")
	assert.Contains(t, err.Error(), "redis.address is required")
}

func TestLookupUnknownKeyPanics(t *testing.T) {
	man := newTestManager()
	assert.Panics(t, func() { man.getConfigString("nope.key") })
	assert.Equal(t, 3, lookup(man, "redis.max_idle_conns", cast.ToIntE))
}
