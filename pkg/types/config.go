package types

import "time"

// Config represents the main configuration for the Vega daemon.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Swarm   SwarmConfig   `yaml:"swarm"`
	History HistoryConfig `yaml:"history"`
	Crypto  CryptoConfig  `yaml:"crypto"`
	Roster  []AgentSpec   `yaml:"roster"`
}

// ServerConfig defines HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// SwarmConfig tunes the scheduler loop.
type SwarmConfig struct {
	// DispatchIntervalMs is the fixed timer between dispatch cycles.
	// Dispatch also runs after every enqueue and every completion.
	DispatchIntervalMs int `yaml:"dispatch_interval_ms"`

	// MonitorIntervalMs is the heartbeat/timeout sweep cadence. It should
	// sit well below the smallest roster heartbeat interval.
	MonitorIntervalMs int `yaml:"monitor_interval_ms"`

	// MissedHeartbeatFactor marks an agent unhealthy once
	// now - lastHeartbeat exceeds heartbeatInterval * factor.
	MissedHeartbeatFactor int `yaml:"missed_heartbeat_factor"`

	// FailureEscalationStreak escalates an agent to error after this many
	// consecutive failed or timed-out tasks.
	FailureEscalationStreak int `yaml:"failure_escalation_streak"`

	// DefaultTaskTimeoutSecs applies when neither the create request nor
	// the assigned agent's roster entry carries a timeout.
	DefaultTaskTimeoutSecs int `yaml:"default_task_timeout_secs"`
}

// DispatchInterval returns the dispatch timer period.
func (c *SwarmConfig) DispatchInterval() time.Duration {
	return time.Duration(c.DispatchIntervalMs) * time.Millisecond
}

// MonitorInterval returns the sweep period.
func (c *SwarmConfig) MonitorInterval() time.Duration {
	return time.Duration(c.MonitorIntervalMs) * time.Millisecond
}

// HistoryConfig defines the task/event archive settings.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // Path to the sqlite archive
}

// CryptoConfig defines encryption settings for archived payloads.
type CryptoConfig struct {
	IdentityPath string `yaml:"identity_path"` // Path to age identity file
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Swarm: SwarmConfig{
			DispatchIntervalMs:      500,
			MonitorIntervalMs:       1000,
			MissedHeartbeatFactor:   3,
			FailureEscalationStreak: 3,
			DefaultTaskTimeoutSecs:  300,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "./vega-history.db",
		},
		Crypto: CryptoConfig{
			IdentityPath: "./vega.key",
		},
	}
}
