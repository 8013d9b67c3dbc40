/* config.go: YAML configuration for the ipmisel command and service
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

// Package config reads the ipmisel configuration file.
package config

import (
	"fmt"
	"io/ioutil"
	"strings"
	"time"

	"github.com/kraken-hpc/ipmisel/lib/ipmitool"
	"github.com/kraken-hpc/ipmisel/lib/sel"
	"github.com/kraken-hpc/ipmisel/lib/util"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Connection interfaces
const (
	InterfaceIpmitool    = "ipmitool"
	InterfaceIpmitoolRaw = "ipmitool-raw"
	InterfaceArchive     = "archive"
)

const (
	DefaultListen        = "localhost:8269"
	DefaultTargetAddress = 0x20
)

// Connection describes one controller (or archive) to open at startup.
type Connection struct {
	// Alias names the connection; defaults to Host, or Archive for archives
	Alias string `yaml:"alias"`
	// Interface is one of "ipmitool" (default), "ipmitool-raw" or "archive"
	Interface string `yaml:"interface"`
	// LanInterface is passed to ipmitool -I (default: lan)
	LanInterface string `yaml:"lan_interface,omitempty"`
	Host         string `yaml:"host"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	// TargetAddress defaults to 0x20, the BMC
	TargetAddress             *uint8 `yaml:"target_address,omitempty"`
	BridgeChannel             *uint8 `yaml:"bridge_channel,omitempty"`
	DoubleBridgeTargetAddress *uint8 `yaml:"double_bridge_target_address,omitempty"`
	// Archive is the snapshot file read by the "archive" interface
	Archive  string `yaml:"archive,omitempty"`
	Prefetch bool   `yaml:"prefetch,omitempty"`
}

// Params returns the ipmitool connection parameters.
func (c *Connection) Params() ipmitool.Params {
	p := ipmitool.Params{
		Interface:                 c.LanInterface,
		Host:                      c.Host,
		User:                      c.User,
		Password:                  c.Password,
		TargetAddress:             DefaultTargetAddress,
		BridgeChannel:             c.BridgeChannel,
		DoubleBridgeTargetAddress: c.DoubleBridgeTargetAddress,
	}
	if c.TargetAddress != nil {
		p.TargetAddress = *c.TargetAddress
	}
	return p
}

type Config struct {
	// Ipmitool is the path of the ipmitool binary (default: ipmitool in $PATH)
	Ipmitool string `yaml:"ipmitool"`
	// Timeout and PollInterval accept Go durations or phrases such as
	// "1 minute 20 seconds" (defaults: 3s and 1s)
	Timeout      string `yaml:"timeout"`
	PollInterval string `yaml:"poll_interval"`
	// LogLevel is a logrus level name (default: info)
	LogLevel    string        `yaml:"log_level"`
	Listen      string        `yaml:"listen"`
	Connections []*Connection `yaml:"connections"`

	timeout  time.Duration
	interval time.Duration
	level    log.Level
}

func (c *Config) TimeoutDuration() time.Duration      { return c.timeout }
func (c *Config) PollIntervalDuration() time.Duration { return c.interval }
func (c *Config) Level() log.Level                    { return c.level }

// Default returns a configuration with no connections.
func Default() *Config {
	c := &Config{}
	if err := c.apply(); err != nil {
		panic(err)
	}
	return c
}

// ReadConfig reads and checks a configuration file.
func ReadConfig(file string) (*Config, error) {
	cfgData, err := ioutil.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("could not read config file %s: %v", file, err)
	}
	cfg, err := Parse(cfgData)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %v", file, err)
	}
	return cfg, nil
}

// Parse parses YAML configuration data, then applies defaults and sanity
// checks.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}
	if err := cfg.apply(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) apply() (err error) {
	if c.Ipmitool == "" {
		c.Ipmitool = ipmitool.DefaultPath
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	c.timeout = sel.DefaultTimeout
	if c.Timeout != "" {
		if c.timeout, err = util.ParseTimestr(c.Timeout); err != nil {
			return fmt.Errorf("timeout: %v", err)
		}
	}
	c.interval = sel.DefaultPollInterval
	if c.PollInterval != "" {
		if c.interval, err = util.ParseTimestr(c.PollInterval); err != nil {
			return fmt.Errorf("poll_interval: %v", err)
		}
	}
	if c.timeout < 0 || c.interval < 0 {
		return fmt.Errorf("timeout and poll_interval must not be negative")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.level, err = log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %v", err)
	}

	aliases := map[string]int{}
	for i, conn := range c.Connections {
		if conn == nil {
			return fmt.Errorf("connection %d is empty", i+1)
		}
		if conn.Interface == "" {
			conn.Interface = InterfaceIpmitool
		}
		switch conn.Interface {
		case InterfaceIpmitool, InterfaceIpmitoolRaw:
			if conn.Host == "" {
				return fmt.Errorf("connection %d: host must be specified", i+1)
			}
			if conn.Alias == "" {
				conn.Alias = conn.Host
			}
		case InterfaceArchive:
			if conn.Archive == "" {
				return fmt.Errorf("connection %d: archive must be specified", i+1)
			}
			if conn.Alias == "" {
				conn.Alias = conn.Archive
			}
		default:
			return fmt.Errorf("connection %d: unknown interface %q (want one of %s)", i+1, conn.Interface,
				strings.Join([]string{InterfaceIpmitool, InterfaceIpmitoolRaw, InterfaceArchive}, ", "))
		}
		if j, ok := aliases[conn.Alias]; ok {
			return fmt.Errorf("connections %d and %d share the alias %q", j, i+1, conn.Alias)
		}
		aliases[conn.Alias] = i + 1
	}
	return nil
}
