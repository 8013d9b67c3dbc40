package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/kraken-hpc/ipmisel/lib/ipmitool"
	log "github.com/sirupsen/logrus"
)

const testConfig = `
ipmitool: /usr/local/bin/ipmitool
timeout: 1 minute 20 seconds
poll_interval: 500ms
log_level: debug
connections:
  - alias: shelf
    host: 10.0.0.1
    user: admin
    password: secret
  - host: 10.0.0.2
    interface: ipmitool-raw
    lan_interface: lanplus
    user: admin
    password: secret
    target_address: 0x82
    bridge_channel: 7
    double_bridge_target_address: 0x72
    prefetch: true
  - interface: archive
    archive: /var/lib/ipmisel/sel.zst
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(testConfig))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ipmitool != "/usr/local/bin/ipmitool" || cfg.Listen != DefaultListen {
		t.Errorf("unexpected globals: %+v", cfg)
	}
	if cfg.TimeoutDuration() != 80*time.Second || cfg.PollIntervalDuration() != 500*time.Millisecond {
		t.Errorf("timeout %v, poll interval %v", cfg.TimeoutDuration(), cfg.PollIntervalDuration())
	}
	if cfg.Level() != log.DebugLevel {
		t.Errorf("Level() = %v", cfg.Level())
	}
	var aliases []string
	for _, c := range cfg.Connections {
		aliases = append(aliases, c.Alias)
	}
	if diff := cmp.Diff([]string{"shelf", "10.0.0.2", "/var/lib/ipmisel/sel.zst"}, aliases); diff != "" {
		t.Errorf("aliases mismatch (-want +got):\n%s", diff)
	}
	if cfg.Connections[0].Interface != InterfaceIpmitool {
		t.Errorf("default interface = %q", cfg.Connections[0].Interface)
	}

	seven, dbl := uint8(7), uint8(0x72)
	want := ipmitool.Params{
		Interface:                 "lanplus",
		Host:                      "10.0.0.2",
		User:                      "admin",
		Password:                  "secret",
		TargetAddress:             0x82,
		BridgeChannel:             &seven,
		DoubleBridgeTargetAddress: &dbl,
	}
	if diff := cmp.Diff(want, cfg.Connections[1].Params()); diff != "" {
		t.Errorf("Params() mismatch (-want +got):\n%s", diff)
	}
	if p := cfg.Connections[0].Params(); p.TargetAddress != DefaultTargetAddress || p.BridgeChannel != nil {
		t.Errorf("default Params() = %+v", p)
	}
}

func TestParse_defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ipmitool != ipmitool.DefaultPath || cfg.TimeoutDuration() != 3*time.Second ||
		cfg.PollIntervalDuration() != time.Second || cfg.Level() != log.InfoLevel {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if d := Default(); d.TimeoutDuration() != cfg.TimeoutDuration() || d.Listen != DefaultListen {
		t.Errorf("Default() = %+v", d)
	}
}

func TestParse_errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		msg  string
	}{
		{"unknown key", "timeot: 3s", "failed to parse"},
		{"bad timeout", "timeout: soon", "timeout"},
		{"negative interval", "poll_interval: -1s", "negative"},
		{"bad level", "log_level: loud", "log_level"},
		{"no host", "connections: [{user: admin}]", "host must be specified"},
		{"no archive", "connections: [{interface: archive}]", "archive must be specified"},
		{"bad interface", "connections: [{host: a, interface: serial}]", "unknown interface"},
		{"duplicate alias", "connections: [{host: a}, {host: b, alias: a}]", "share the alias"},
		{"target out of range", "connections: [{host: a, target_address: 0x100}]", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.in))
			if err == nil {
				t.Fatal("Parse() succeeded")
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("Parse() error = %v, want it to mention %q", err, tt.msg)
			}
		})
	}
}

func TestReadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ipmisel.yaml")
	if err := os.WriteFile(path, []byte(testConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := ReadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Connections) != 3 {
		t.Errorf("got %d connections", len(cfg.Connections))
	}
	if _, err = ReadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("ReadConfig() of a missing file succeeded")
	}
}
