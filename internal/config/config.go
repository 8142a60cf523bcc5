// Package config loads the tunable constants of §4/§5/§6 through viper,
// layered so a config file, environment variables and CLI flags can all
// override the same defaults, in that order of increasing precedence.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every tunable named in the spec, shared by all three
// binaries (each only reads the fields relevant to its role).
type Config struct {
	SchedulerHost   string // default 127.0.0.1, where drones/fire source dial the scheduler
	SchedulerPort   int    // default 6001
	FireSourceHost  string // default 127.0.0.1, where the scheduler acks the fire source
	FireSourcePort  int    // default 5001
	DroneBasePort   int    // 7000 + 100*k + offset
	DronePortOffset int    // default 1

	TickInterval      time.Duration // scheduler tick, default 500ms
	StallTimeout      time.Duration // T_stall, default 30s
	StatusInterval    time.Duration // T_status, default 1s
	SocketTimeout     time.Duration // per-recv bound, default 1s
	AckTimeout        time.Duration // T_ack for FireSource retries
	ResendCount       int           // N_resend, default 3
	SoftFaultRecovery time.Duration // self-heal timer, default 5s

	ZonesFile      string
	FireEventsFile string

	MetricsAddr string // prometheus /metrics listen address
}

// RegisterFlags registers every config field as a pflag on cmd, using the
// defaults below.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("scheduler-host", "127.0.0.1", "host drones and the fire source use to reach the scheduler")
	flags.Int("scheduler-port", 6001, "scheduler inbound UDP port")
	flags.String("firesource-host", "127.0.0.1", "host the scheduler uses to ack the fire source")
	flags.Int("firesource-port", 5001, "fire source inbound UDP port")
	flags.Int("drone-base-port", 7000, "base for drone inbound UDP ports (7000 + 100*k + offset)")
	flags.Int("drone-port-offset", 1, "offset added to a drone's inbound UDP port")

	flags.Duration("tick-interval", 500*time.Millisecond, "scheduler tick interval")
	flags.Duration("stall-timeout", 30*time.Second, "simulated time without progress before a drone is marked stalled")
	flags.Duration("status-interval", time.Second, "drone status emission interval")
	flags.Duration("socket-timeout", time.Second, "bounded UDP receive timeout")
	flags.Duration("ack-timeout", 2*time.Second, "fire source ack wait before resend")
	flags.Int("resend-count", 3, "fire source max resend attempts")
	flags.Duration("soft-fault-recovery", 5*time.Second, "simulated delay before a soft-faulted drone self-recovers")

	flags.String("zones-file", "zones.txt", "path to the zone definition file")
	flags.String("fire-events-file", "fire_events.txt", "path to the fire event replay file")

	flags.String("metrics-addr", ":9090", "address the prometheus /metrics endpoint listens on")
}

// Load builds a Config by binding viper to flags, environment variables
// (FIREDRONE_ prefix) and, if present, a "firedrone" config file on the
// search path. Precedence, lowest first: flag defaults, the config file,
// environment variables, flags set explicitly on the command line.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FIREDRONE")
	v.AutomaticEnv()
	v.SetConfigName("firedrone")
	v.AddConfigPath(".")
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("config: bind flags: %w", err)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	cfg := &Config{
		SchedulerHost:     v.GetString("scheduler-host"),
		SchedulerPort:     v.GetInt("scheduler-port"),
		FireSourceHost:    v.GetString("firesource-host"),
		FireSourcePort:    v.GetInt("firesource-port"),
		DroneBasePort:     v.GetInt("drone-base-port"),
		DronePortOffset:   v.GetInt("drone-port-offset"),
		TickInterval:      v.GetDuration("tick-interval"),
		StallTimeout:      v.GetDuration("stall-timeout"),
		StatusInterval:    v.GetDuration("status-interval"),
		SocketTimeout:     v.GetDuration("socket-timeout"),
		AckTimeout:        v.GetDuration("ack-timeout"),
		ResendCount:       v.GetInt("resend-count"),
		SoftFaultRecovery: v.GetDuration("soft-fault-recovery"),
		ZonesFile:         v.GetString("zones-file"),
		FireEventsFile:    v.GetString("fire-events-file"),
		MetricsAddr:       v.GetString("metrics-addr"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SchedulerPort <= 0 || c.SchedulerPort > 65535 {
		return fmt.Errorf("config: invalid scheduler port %d", c.SchedulerPort)
	}
	if c.TickInterval <= 0 || c.StallTimeout <= 0 || c.StatusInterval <= 0 || c.SocketTimeout <= 0 {
		return fmt.Errorf("config: durations must be positive")
	}
	if c.ResendCount < 0 {
		return fmt.Errorf("config: resend-count must be >= 0")
	}
	return nil
}

// DronePort returns the well-known inbound port for drone k, per §6:
// 7000 + 100*k + offset.
func (c *Config) DronePort(droneID int) int {
	return c.DroneBasePort + 100*droneID + c.DronePortOffset
}

// SchedulerAddr returns the "host:port" string drones and the fire source
// use to reach the scheduler.
func (c *Config) SchedulerAddr() string {
	return fmt.Sprintf("%s:%d", c.SchedulerHost, c.SchedulerPort)
}

// FireSourceAddr returns the "host:port" string the scheduler uses to ack
// the fire source.
func (c *Config) FireSourceAddr() string {
	return fmt.Sprintf("%s:%d", c.FireSourceHost, c.FireSourcePort)
}

// String returns a log-friendly single-line summary of the config; nothing
// here is sensitive.
func (c *Config) String() string {
	return fmt.Sprintf("Config{schedulerPort=%d, tick=%s, stall=%s, status=%s}",
		c.SchedulerPort, c.TickInterval, c.StallTimeout, c.StatusInterval)
}
