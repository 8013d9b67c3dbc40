/* library.go: the IPMI connection cache behind the keyword facade
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

// Package library exposes SEL and sensor operations on a set of open
// connections, taking the string arguments a keyword runner passes.
package library

import (
	"strconv"
	"time"

	"github.com/kraken-hpc/ipmisel/lib/archive"
	"github.com/kraken-hpc/ipmisel/lib/config"
	"github.com/kraken-hpc/ipmisel/lib/ipmitool"
	"github.com/kraken-hpc/ipmisel/lib/sel"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var ErrNoConnection = errors.New("no open IPMI connection")

// Connection is the state of one open controller or archive.
type Connection struct {
	Index     int
	Alias     string
	Interface string
	// Client is nil for archive connections
	Client   *ipmitool.Client
	Provider sel.Provider
	Store    *sel.Store
	Engine   *sel.Engine
	log      log.FieldLogger
}

// ConnectionInfo describes an open connection.
type ConnectionInfo struct {
	Index     int    `json:"index"`
	Alias     string `json:"alias"`
	Interface string `json:"interface"`
	Active    bool   `json:"active"`
}

type Option func(*Library)

func WithLogger(l log.FieldLogger) Option {
	return func(lib *Library) { lib.log = l }
}

// WithRunner replaces the ipmitool runner, e.g. for tests.
func WithRunner(r ipmitool.Runner) Option {
	return func(lib *Library) { lib.runner = r }
}

func WithTimeout(d time.Duration) Option {
	return func(lib *Library) { lib.timeout = d }
}

func WithPollInterval(d time.Duration) Option {
	return func(lib *Library) { lib.interval = d }
}

// WithEngineOptions are applied to the engine of every opened connection.
func WithEngineOptions(opts ...sel.EngineOption) Option {
	return func(lib *Library) { lib.engineOpts = append(lib.engineOpts, opts...) }
}

// Library holds the open connections and the wait settings shared by them.
// It is not safe for concurrent use.
type Library struct {
	log        log.FieldLogger
	runner     ipmitool.Runner
	timeout    time.Duration
	interval   time.Duration
	engineOpts []sel.EngineOption
	// conns[i] has index i+1; closed connections leave a nil slot
	conns   []*Connection
	current *Connection
}

func New(opts ...Option) *Library {
	lib := &Library{
		log:      log.StandardLogger(),
		timeout:  sel.DefaultTimeout,
		interval: sel.DefaultPollInterval,
	}
	for _, o := range opts {
		o(lib)
	}
	if lib.runner == nil {
		lib.runner = ipmitool.ExecRunner{Log: lib.log}
	}
	return lib
}

// NewFromConfig creates a library with the configured settings and opens
// every configured connection. The first one is active.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Library, error) {
	base := []Option{
		WithTimeout(cfg.TimeoutDuration()),
		WithPollInterval(cfg.PollIntervalDuration()),
	}
	lib := New(append(base, opts...)...)
	if er, ok := lib.runner.(ipmitool.ExecRunner); ok {
		er.Path = cfg.Ipmitool
		lib.runner = er
	}
	for _, c := range cfg.Connections {
		if _, err := lib.Open(c); err != nil {
			return nil, err
		}
	}
	if len(lib.conns) > 0 {
		lib.current = lib.conns[0]
	}
	return lib, nil
}

// Open opens a connection, makes it active and returns its index.
func (lib *Library) Open(c *config.Connection) (int, error) {
	alias := c.Alias
	if alias == "" {
		alias = c.Host
	}
	if alias == "" {
		alias = c.Archive
	}
	if _, ok := lib.find(alias); ok {
		return 0, errors.Wrapf(sel.ErrInvalidArgument, "connection alias %q is already in use", alias)
	}
	conn := &Connection{
		Index:     len(lib.conns) + 1,
		Alias:     alias,
		Interface: c.Interface,
		log:       lib.log.WithField("connection", alias),
	}
	switch c.Interface {
	case config.InterfaceIpmitool, "":
		conn.Interface = config.InterfaceIpmitool
		conn.Client = &ipmitool.Client{Runner: lib.runner, Params: c.Params(), Log: conn.log}
		conn.Provider = ipmitool.ListProvider{Client: conn.Client}
	case config.InterfaceIpmitoolRaw:
		conn.Client = &ipmitool.Client{Runner: lib.runner, Params: c.Params(), Log: conn.log}
		conn.Provider = ipmitool.RawProvider{Client: conn.Client}
	case config.InterfaceArchive:
		conn.Provider = archive.Provider{Path: c.Archive}
	default:
		return 0, errors.Wrapf(sel.ErrInvalidArgument, "unknown interface %q", c.Interface)
	}
	conn.Store = sel.NewStore(conn.Provider, sel.WithLogger(conn.log), sel.WithPrefetch(c.Prefetch))
	opts := append([]sel.EngineOption{
		sel.WithEngineLogger(conn.log),
		sel.WithTimeout(lib.timeout),
		sel.WithPollInterval(lib.interval),
	}, lib.engineOpts...)
	conn.Engine = sel.NewEngine(conn.Store, opts...)

	lib.conns = append(lib.conns, conn)
	lib.current = conn
	conn.log.Infof("opened %s connection %d", conn.Interface, conn.Index)
	return conn.Index, nil
}

func (lib *Library) find(indexOrAlias string) (*Connection, bool) {
	for _, c := range lib.conns {
		if c != nil && c.Alias == indexOrAlias {
			return c, true
		}
	}
	i, err := strconv.Atoi(indexOrAlias)
	if err != nil || i < 1 || i > len(lib.conns) || lib.conns[i-1] == nil {
		return nil, false
	}
	return lib.conns[i-1], true
}

// Switch activates the connection with the given index or alias and returns
// the index of the previously active connection (0 if there was none).
func (lib *Library) Switch(indexOrAlias string) (int, error) {
	c, ok := lib.find(indexOrAlias)
	if !ok {
		return 0, errors.Wrapf(sel.ErrNotFound, "no connection with index or alias %q", indexOrAlias)
	}
	old := 0
	if lib.current != nil {
		old = lib.current.Index
	}
	lib.current = c
	return old, nil
}

// Close closes the active connection. Its index is not reused.
func (lib *Library) Close() error {
	if lib.current == nil {
		return ErrNoConnection
	}
	lib.conns[lib.current.Index-1] = nil
	lib.current.log.Info("closed connection")
	lib.current = nil
	return nil
}

// CloseAll closes every connection; indices start at 1 again.
func (lib *Library) CloseAll() {
	lib.conns = nil
	lib.current = nil
}

// Active returns the active connection.
func (lib *Library) Active() (*Connection, error) {
	if lib.current == nil {
		return nil, ErrNoConnection
	}
	return lib.current, nil
}

func (lib *Library) Connections() []ConnectionInfo {
	var r []ConnectionInfo
	for _, c := range lib.conns {
		if c == nil {
			continue
		}
		r = append(r, ConnectionInfo{
			Index:     c.Index,
			Alias:     c.Alias,
			Interface: c.Interface,
			Active:    c == lib.current,
		})
	}
	return r
}

func (lib *Library) Timeout() time.Duration      { return lib.timeout }
func (lib *Library) PollInterval() time.Duration { return lib.interval }
