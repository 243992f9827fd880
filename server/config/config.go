package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix = "LIVEQUERY"
)

// RedisConfig defines configs related to Redis
type RedisConfig struct {
	Address          string
	Password         string
	Database         int
	UseTLS           bool          `yaml:"use_tls"`
	DuplicateResults bool          `yaml:"duplicate_results"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	KeepAlive        time.Duration `yaml:"keep_alive"`
	MaxIdleConns     int           `yaml:"max_idle_conns"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
}

// PubSubConfig defines configs related to the frame pub/sub backend
type PubSubConfig struct {
	Backend string
}

// ServerConfig defines configs related to the livequery server
type ServerConfig struct {
	Address        string
	Cert           string
	Key            string
	TLS            bool
	URLPrefix      string        `yaml:"url_prefix"`
	StatusInterval time.Duration `yaml:"status_interval"`
}

// LoggingConfig defines configs related to logging
type LoggingConfig struct {
	Debug      bool
	JSON       bool
	File       string
	MaxSize    int `yaml:"max_size"`
	MaxBackups int `yaml:"max_backups"`
	MaxAge     int `yaml:"max_age"`
}

// WatchConfig defines configs used by the watch command to reach a server
type WatchConfig struct {
	ServerURL          string        `yaml:"server_url"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	RefreshInterval    time.Duration `yaml:"refresh_interval"`
}

// LivequeryConfig stores the application configuration. Each subcategory is
// broken up into it's own struct, defined above. When editing any of these
// structs, Manager.addConfigs and Manager.LoadConfig should be
// updated to set and retrieve the configurations as appropriate.
type LivequeryConfig struct {
	Redis   RedisConfig
	PubSub  PubSubConfig
	Server  ServerConfig
	Logging LoggingConfig
	Watch   WatchConfig
}

// Validate reports every inconsistent value of the configuration at once.
func (c LivequeryConfig) Validate() error {
	var err error
	if c.Server.TLS && (c.Server.Cert == "" || c.Server.Key == "") {
		err = multierror.Append(err, fmt.Errorf("server.tls requires server.cert and server.key"))
	}
	if c.Server.StatusInterval <= 0 {
		err = multierror.Append(err, fmt.Errorf("server.status_interval must be positive, got %s", c.Server.StatusInterval))
	}
	if c.PubSub.Backend == "redis" && c.Redis.Address == "" {
		err = multierror.Append(err, fmt.Errorf("redis.address is required by the redis pubsub backend"))
	}
	if c.Logging.MaxSize < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAge < 0 {
		err = multierror.Append(err, fmt.Errorf("logging rotation limits cannot be negative"))
	}
	if c.Watch.RefreshInterval <= 0 {
		err = multierror.Append(err, fmt.Errorf("watch.refresh_interval must be positive, got %s", c.Watch.RefreshInterval))
	}
	return err
}

// addConfigs adds the configuration keys and default values that will be
// filled into the LivequeryConfig struct
func (man Manager) addConfigs() {
	// Redis
	man.addConfigString("redis.address", "localhost:6379",
		"Redis server address (host:port)")
	man.addConfigString("redis.password", "",
		"Redis server password (prefer env variable for security)")
	man.addConfigInt("redis.database", 0,
		"Redis server database number")
	man.addConfigBool("redis.use_tls", false, "Redis server enable TLS")
	man.addConfigBool("redis.duplicate_results", false, "Duplicate campaign frames to another Redis channel")
	man.addConfigDuration("redis.connect_timeout", 5*time.Second, "Timeout at connection time")
	man.addConfigDuration("redis.keep_alive", 10*time.Second, "Interval between keep alive probes")
	man.addConfigInt("redis.max_idle_conns", 3, "Redis maximum idle connections")
	man.addConfigDuration("redis.idle_timeout", 240*time.Second, "Redis maximum amount of time a connection may stay idle, 0 means no limit")

	// PubSub
	man.addConfigString("pubsub.backend", "inmem",
		"Backend used to fan campaign frames out to streams (inmem, redis)")

	// Server
	man.addConfigString("server.address", "0.0.0.0:8080",
		"Livequery server address (host:port)")
	man.addConfigString("server.cert", "",
		"Livequery TLS certificate path")
	man.addConfigString("server.key", "",
		"Livequery TLS key path")
	man.addConfigBool("server.tls", false,
		"Enable TLS (required for osqueryd communication)")
	man.addConfigString("server.url_prefix", "",
		"URL prefix used on server and frontend endpoints")
	man.addConfigDuration("server.status_interval", 5*time.Second,
		"Interval between campaign status checks on result streams")

	// Logging
	man.addConfigBool("logging.debug", false,
		"Enable debug logging")
	man.addConfigBool("logging.json", false,
		"Log in JSON format")
	man.addConfigString("logging.file", "",
		"Write logs to this file instead of stderr")
	man.addConfigInt("logging.max_size", 500,
		"Maximum size in megabytes of the log file before it gets rotated")
	man.addConfigInt("logging.max_backups", 3,
		"Maximum number of rotated log files to retain")
	man.addConfigInt("logging.max_age", 28,
		"Maximum number of days to retain rotated log files")

	// Watch
	man.addConfigString("watch.server_url", "http://localhost:8080",
		"Base URL of the livequery server to stream from")
	man.addConfigBool("watch.insecure_skip_verify", false,
		"Skip TLS certificate verification when streaming")
	man.addConfigDuration("watch.refresh_interval", 500*time.Millisecond,
		"Interval between two renderings of the campaign table")
}

// LoadConfig will load the config variables into a fully initialized
// LivequeryConfig struct
func (man Manager) LoadConfig() LivequeryConfig {
	man.loadConfigFile()

	return LivequeryConfig{
		Redis: RedisConfig{
			Address:          man.getConfigString("redis.address"),
			Password:         man.getConfigString("redis.password"),
			Database:         man.getConfigInt("redis.database"),
			UseTLS:           man.getConfigBool("redis.use_tls"),
			DuplicateResults: man.getConfigBool("redis.duplicate_results"),
			ConnectTimeout:   man.getConfigDuration("redis.connect_timeout"),
			KeepAlive:        man.getConfigDuration("redis.keep_alive"),
			MaxIdleConns:     man.getConfigInt("redis.max_idle_conns"),
			IdleTimeout:      man.getConfigDuration("redis.idle_timeout"),
		},
		PubSub: PubSubConfig{
			Backend: man.getConfigString("pubsub.backend"),
		},
		Server: ServerConfig{
			Address:        man.getConfigString("server.address"),
			Cert:           man.getConfigString("server.cert"),
			Key:            man.getConfigString("server.key"),
			TLS:            man.getConfigBool("server.tls"),
			URLPrefix:      man.getConfigString("server.url_prefix"),
			StatusInterval: man.getConfigDuration("server.status_interval"),
		},
		Logging: LoggingConfig{
			Debug:      man.getConfigBool("logging.debug"),
			JSON:       man.getConfigBool("logging.json"),
			File:       man.getConfigString("logging.file"),
			MaxSize:    man.getConfigInt("logging.max_size"),
			MaxBackups: man.getConfigInt("logging.max_backups"),
			MaxAge:     man.getConfigInt("logging.max_age"),
		},
		Watch: WatchConfig{
			ServerURL:          man.getConfigString("watch.server_url"),
			InsecureSkipVerify: man.getConfigBool("watch.insecure_skip_verify"),
			RefreshInterval:    man.getConfigDuration("watch.refresh_interval"),
		},
	}
}

// IsSet determines whether a given config key has been explicitly set by any
// of the configuration sources. If false, the default value is being used.
func (man Manager) IsSet(key string) bool {
	return man.viper.IsSet(key)
}

// envNameFromConfigKey converts a config key into the corresponding
// environment variable name
func envNameFromConfigKey(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.Replace(key, ".", "_", -1))
}

// flagNameFromConfigKey converts a config key into the corresponding flag name
func flagNameFromConfigKey(key string) string {
	return strings.Replace(key, ".", "_", -1)
}

// Manager manages the addition and retrieval of config values for livequery
// configs. It's only public API method is LoadConfig, which will return the
// populated LivequeryConfig struct.
type Manager struct {
	viper    *viper.Viper
	command  *cobra.Command
	defaults map[string]interface{}
}

// NewManager initializes a Manager wrapping the provided cobra
// command. All config flags will be attached to that command (and inherited by
// the subcommands). Typically this should be called just once, with the root
// command.
func NewManager(command *cobra.Command) Manager {
	man := Manager{
		viper:    viper.New(),
		command:  command,
		defaults: map[string]interface{}{},
	}
	man.addConfigs()
	return man
}

// addDefault will check for duplication, then add a default value to the
// defaults map
func (man Manager) addDefault(key string, defVal interface{}) {
	if _, exists := man.defaults[key]; exists {
		panic("Trying to add duplicate config for key " + key)
	}

	man.defaults[key] = defVal
}

func getFlagUsage(key string, usage string) string {
	return fmt.Sprintf("Env: %s\n\t\t%s", envNameFromConfigKey(key), usage)
}

// bindKey attaches the flag registered for key to viper, along with its
// environment variable, and records the default value.
func (man Manager) bindKey(key string, defVal interface{}) {
	flags := man.command.PersistentFlags()
	man.viper.BindPFlag(key, flags.Lookup(flagNameFromConfigKey(key))) //nolint:errcheck
	man.viper.BindEnv(key, envNameFromConfigKey(key))                  //nolint:errcheck
	man.addDefault(key, defVal)
}

func (man Manager) addConfigString(key, defVal, usage string) {
	man.command.PersistentFlags().String(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.bindKey(key, defVal)
}

func (man Manager) addConfigInt(key string, defVal int, usage string) {
	man.command.PersistentFlags().Int(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.bindKey(key, defVal)
}

func (man Manager) addConfigBool(key string, defVal bool, usage string) {
	man.command.PersistentFlags().Bool(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.bindKey(key, defVal)
}

func (man Manager) addConfigDuration(key string, defVal time.Duration, usage string) {
	man.command.PersistentFlags().Duration(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.bindKey(key, defVal)
}

// lookup returns the loaded value of key, falling back to its default, cast
// with to. Keys are registered in addConfigs, so a missing key or a value of
// the wrong type is a programming error and panics.
func lookup[T any](man Manager, key string, to func(interface{}) (T, error)) T {
	raw := man.viper.Get(key)
	if raw == nil {
		var ok bool
		if raw, ok = man.defaults[key]; !ok {
			panic("no config option registered for key " + key)
		}
	}
	val, err := to(raw)
	if err != nil {
		panic(fmt.Sprintf("config key %s: %v", key, err))
	}
	return val
}

func (man Manager) getConfigString(key string) string {
	return lookup(man, key, cast.ToStringE)
}

func (man Manager) getConfigInt(key string) int {
	return lookup(man, key, cast.ToIntE)
}

func (man Manager) getConfigBool(key string) bool {
	return lookup(man, key, cast.ToBoolE)
}

func (man Manager) getConfigDuration(key string) time.Duration {
	return lookup(man, key, cast.ToDurationE)
}

// loadConfigFile handles the loading of the config file.
func (man Manager) loadConfigFile() {
	man.viper.SetConfigType("yaml")

	configFlag := man.command.PersistentFlags().Lookup("config")
	if configFlag == nil {
		return
	}
	configFile := configFlag.Value.String()

	if configFile == "" {
		// flags, env and defaults only
		return
	}

	man.viper.SetConfigFile(configFile)
	if err := man.viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config file %s: %v\n", configFile, err)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, "Using config file:", man.viper.ConfigFileUsed())
}

// TestConfig returns a barebones configuration suitable for use in tests.
// Individual tests may want to override some of the values provided.
func TestConfig() LivequeryConfig {
	return LivequeryConfig{
		Redis: RedisConfig{
			Address:        "127.0.0.1:6379",
			ConnectTimeout: 5 * time.Second,
			KeepAlive:      10 * time.Second,
			MaxIdleConns:   3,
			IdleTimeout:    240 * time.Second,
		},
		PubSub: PubSubConfig{
			Backend: "inmem",
		},
		Server: ServerConfig{
			Address:        "127.0.0.1:0",
			StatusInterval: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Debug: true,
		},
		Watch: WatchConfig{
			ServerURL:       "http://127.0.0.1:8080",
			RefreshInterval: 100 * time.Millisecond,
		},
	}
}
