// Package config loads the engine configuration document and its
// environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when STRIDEQUEST_CONFIG is not set.
const DefaultPath = "config/stridequest.yaml"

// Config is the stridequest.yaml document.
type Config struct {
	Version  int                     `yaml:"version"`
	Engine   EngineConfig            `yaml:"engine"`
	Run      RunConfig               `yaml:"run"`
	Missions MissionsConfig          `yaml:"missions"`
	Network  NetworkConfig           `yaml:"network"`
	MQTT     MQTTConfig              `yaml:"mqtt"`
	Sensors  map[string]SensorConfig `yaml:"sensors"`
	Log      LogConfig               `yaml:"log"`
}

// EngineConfig holds timing and pace constants.
type EngineConfig struct {
	ID            string        `yaml:"id"`
	TickInterval  time.Duration `yaml:"tick_interval"`
	SampleWindow  time.Duration `yaml:"sample_window"`
	StrideFeet    float64       `yaml:"stride_feet"`
	NotMovingPace float32       `yaml:"not_moving_pace"`
	SpeechRetry   time.Duration `yaml:"speech_retry"`
	SpeechLeadIn  time.Duration `yaml:"speech_lead_in"`
	// SimulatedAudio replaces the networked audio device with a silent
	// backend that completes on timers.
	SimulatedAudio bool `yaml:"simulated_audio"`
}

// RunConfig holds the defaults applied when a load request omits them.
type RunConfig struct {
	MissionMinutes  float64 `yaml:"mission_minutes"`
	IntervalMinutes float64 `yaml:"interval_minutes"`
	ChallengePace   float32 `yaml:"challenge_pace"`
}

// MissionLength returns MissionMinutes as a duration.
func (r RunConfig) MissionLength() time.Duration {
	return minutes(r.MissionMinutes)
}

// IntervalLength returns IntervalMinutes as a duration.
func (r RunConfig) IntervalLength() time.Duration {
	return minutes(r.IntervalMinutes)
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

type MissionsConfig struct {
	Dir      string        `yaml:"dir"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type NetworkConfig struct {
	UIPort int `yaml:"ui_port"`
}

// MQTTConfig holds the broker topic layout.
type MQTTConfig struct {
	ClientID           string  `yaml:"client_id"`
	Registration       string  `yaml:"registration"`
	Heartbeat          string  `yaml:"heartbeat"`
	Choice             string  `yaml:"choice"`
	AudioCommands      string  `yaml:"audio_commands"`
	AudioEvents        string  `yaml:"audio_events"`
	HeartbeatTolerance float64 `yaml:"heartbeat_tolerance"`
}

// SensorConfig describes an expected sensor.
type SensorConfig struct {
	Type         string   `yaml:"type"`
	Required     bool     `yaml:"required"`
	Capabilities []string `yaml:"capabilities"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Journal bool   `yaml:"journal"`
}

// Default returns the configuration used for anything the document omits.
func Default() *Config {
	return &Config{
		Version: 1,
		Engine: EngineConfig{
			ID:            "stridequest",
			TickInterval:  time.Second,
			SampleWindow:  10 * time.Second,
			StrideFeet:    5.5,
			NotMovingPace: 1000,
			SpeechRetry:   2500 * time.Millisecond,
			SpeechLeadIn:  500 * time.Millisecond,
		},
		Run: RunConfig{
			MissionMinutes:  30,
			IntervalMinutes: 1.5,
			ChallengePace:   20,
		},
		Missions: MissionsConfig{
			Dir:      "missions",
			CacheTTL: 24 * time.Hour,
		},
		Network: NetworkConfig{UIPort: 8080},
		MQTT: MQTTConfig{
			ClientID:           "stridequest-engine",
			Registration:       "stridequest/stations/register",
			Heartbeat:          "stridequest/stations/+/heartbeat",
			Choice:             "stridequest/input/choice",
			AudioCommands:      "stridequest/audio/commands",
			AudioEvents:        "stridequest/audio/events",
			HeartbeatTolerance: 2.0,
		},
		Sensors: map[string]SensorConfig{
			"pedometer": {Type: "step_counter", Required: true, Capabilities: []string{"step_count"}},
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Parse decodes a document over the defaults.
func Parse(b []byte) (*Config, error) {
	cfg := Default()
	cfg.Version = 0
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported stridequest.yaml version: %d", cfg.Version)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses the document at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Engine.TickInterval <= 0 {
		return fmt.Errorf("engine.tick_interval must be positive")
	}
	if c.Run.IntervalMinutes <= 0 {
		return fmt.Errorf("run.interval_minutes must be positive")
	}
	if c.Run.ChallengePace < 8 || c.Run.ChallengePace > 30 {
		return fmt.Errorf("run.challenge_pace %v outside 8-30 min/mile", c.Run.ChallengePace)
	}
	if c.Missions.Dir == "" {
		return fmt.Errorf("missions.dir is required")
	}
	return nil
}

// UIPort returns the configured UI port, defaulting to 8080 if not set.
func (c *Config) UIPort() int {
	if c.Network.UIPort == 0 {
		return 8080
	}
	return c.Network.UIPort
}

// Env holds the environment overrides.
type Env struct {
	ConfigPath   string   `env:"STRIDEQUEST_CONFIG" envDefault:"config/stridequest.yaml"`
	MQTTURL      string   `env:"MQTT_URL" envDefault:"tcp://localhost:1883"`
	MQTTUser     string   `env:"MQTT_USERNAME"`
	RedisURL     string   `env:"REDIS_URL"`
	LogLevel     string   `env:"STRIDEQUEST_LOG_LEVEL"`
	MissionsDir  string   `env:"STRIDEQUEST_MISSIONS_DIR"`
	UIPort       int      `env:"STRIDEQUEST_UI_PORT"`
	AdminUser    string   `env:"STRIDEQUEST_ADMIN_USER" envDefault:"admin"`
	OperatorUser string   `env:"STRIDEQUEST_OPERATOR_USER" envDefault:"operator"`
	TLSCert      string   `env:"STRIDEQUEST_TLS_CERT"`
	TLSKey       string   `env:"STRIDEQUEST_TLS_KEY"`
	Postgres     Postgres `envPrefix:"PG"`
}

// Postgres holds the libpq-style connection settings. The password is
// resolved separately with ResolveSecret("PGPASSWORD").
type Postgres struct {
	Enabled  bool   `env:"ENABLED" envDefault:"false"`
	Host     string `env:"HOST" envDefault:"127.0.0.1"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"stridequest"`
	Database string `env:"DATABASE" envDefault:"stridequest"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
}

// LoadEnv parses the environment overrides.
func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("environment: %w", err)
	}
	return e, nil
}

// Apply copies set overrides onto c.
func (e Env) Apply(c *Config) {
	if e.LogLevel != "" {
		c.Log.Level = e.LogLevel
	}
	if e.MissionsDir != "" {
		c.Missions.Dir = e.MissionsDir
	}
	if e.UIPort != 0 {
		c.Network.UIPort = e.UIPort
	}
}
