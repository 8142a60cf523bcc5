package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	return flags
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newFlags())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SchedulerPort != 6001 || cfg.FireSourcePort != 5001 {
		t.Fatalf("unexpected default ports: %+v", cfg)
	}
	if cfg.TickInterval != 500*time.Millisecond || cfg.StallTimeout != 30*time.Second {
		t.Fatalf("unexpected default durations: %+v", cfg)
	}
	if cfg.ResendCount != 3 {
		t.Fatalf("unexpected default resend count: %d", cfg.ResendCount)
	}
}

func TestLoad_RejectsInvalidPort(t *testing.T) {
	flags := newFlags()
	if err := flags.Set("scheduler-port", "0"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	if _, err := Load(flags); err == nil {
		t.Fatalf("expected error for invalid scheduler port")
	}
}

func TestSchedulerAddr_DefaultsToLoopback(t *testing.T) {
	cfg, err := Load(newFlags())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := cfg.SchedulerAddr(), "127.0.0.1:6001"; got != want {
		t.Fatalf("SchedulerAddr() = %q, want %q", got, want)
	}
}

func TestDronePort_MatchesFormula(t *testing.T) {
	cfg, err := Load(newFlags())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := cfg.DronePort(1), 7101; got != want {
		t.Fatalf("DronePort(1) = %d, want %d", got, want)
	}
	if got, want := cfg.DronePort(3), 7301; got != want {
		t.Fatalf("DronePort(3) = %d, want %d", got, want)
	}
}
