/* ipmitool.go: running ipmitool against a BMC over the LAN interface
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

// Package ipmitool talks to BMCs by running the external ipmitool binary.
package ipmitool

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/kraken-hpc/ipmisel/lib/ipmi"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const DefaultPath = "ipmitool"

// Params addresses one IPMI controller, possibly behind one or two bridges.
type Params struct {
	Interface     string
	Host          string
	User          string
	Password      string
	TargetAddress uint8
	// BridgeChannel is passed as -b when set
	BridgeChannel *uint8
	// DoubleBridgeTargetAddress is the intermediate target (-t) when set;
	// TargetAddress then becomes the transit target (-T)
	DoubleBridgeTargetAddress *uint8
}

// Args builds the ipmitool argument list for cmd.
func (p Params) Args(cmd ...string) []string {
	intf := p.Interface
	if intf == "" {
		intf = "lan"
	}
	args := []string{"-I", intf, "-H", p.Host}
	if p.BridgeChannel != nil {
		args = append(args, "-b", strconv.Itoa(int(*p.BridgeChannel)))
	}
	if p.DoubleBridgeTargetAddress != nil {
		args = append(args, "-t", hexByte(*p.DoubleBridgeTargetAddress), "-T", hexByte(p.TargetAddress))
	} else {
		args = append(args, "-t", hexByte(p.TargetAddress))
	}
	args = append(args, "-U", p.User, "-P", p.Password)
	return append(args, cmd...)
}

func hexByte(b uint8) string { return fmt.Sprintf("0x%02x", b) }

// Runner runs ipmitool with the given arguments and returns its combined
// stdout and stderr; `sel list -vv` writes record dumps to stderr.
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// CommandError is returned when ipmitool exits non-zero.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("ipmitool %s: %v: %s", strings.Join(e.Args, " "), e.Err, strings.TrimSpace(e.Output))
}

func (e *CommandError) Unwrap() error { return e.Err }

var rspRe = regexp.MustCompile(`rsp=0x([0-9a-fA-F]{1,2})`)

// CompletionCode extracts the completion code ipmitool reports for a failed
// raw command, if any.
func (e *CommandError) CompletionCode() (ipmi.CompletionCode, bool) {
	m := rspRe.FindStringSubmatch(e.Output)
	if m == nil {
		return 0, false
	}
	v, _ := strconv.ParseUint(m[1], 16, 8)
	return ipmi.CompletionCode(v), true
}

// maskArgs hides the value following -P
func maskArgs(args []string) []string {
	r := make([]string, len(args))
	copy(r, args)
	for i := 0; i < len(r)-1; i++ {
		if r[i] == "-P" {
			r[i+1] = "****"
		}
	}
	return r
}

// ExecRunner runs the ipmitool binary at Path.
type ExecRunner struct {
	Path string
	Log  log.FieldLogger
}

func (r ExecRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	path := r.Path
	if path == "" {
		path = DefaultPath
	}
	l := r.Log
	if l == nil {
		l = log.StandardLogger()
	}
	cmd := exec.CommandContext(ctx, path, args...)
	l.Debugf("run: %s %s", path, strings.Join(maskArgs(args), " "))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, &CommandError{Args: maskArgs(args), Output: string(out), Err: err}
	}
	return out, nil
}

// Client runs ipmitool commands against one controller.
type Client struct {
	Runner Runner
	Params Params
	Log    log.FieldLogger
}

func (c *Client) logger() log.FieldLogger {
	if c.Log == nil {
		return log.StandardLogger()
	}
	return c.Log
}

// Run runs an ipmitool command, e.g. Run(ctx, "sel", "list", "-vv").
func (c *Client) Run(ctx context.Context, cmd ...string) ([]byte, error) {
	return c.Runner.Run(ctx, c.Params.Args(cmd...)...)
}

// Raw sends a raw IPMI request and returns the response data. A non-zero
// completion code is returned as an ipmi.CompletionCode error.
func (c *Client) Raw(ctx context.Context, netFn, cmd uint8, data ...byte) ([]byte, error) {
	args := []string{"raw", hexByte(netFn), hexByte(cmd)}
	for _, b := range data {
		args = append(args, hexByte(b))
	}
	out, err := c.Run(ctx, args...)
	if err != nil {
		var ce *CommandError
		if errors.As(err, &ce) {
			if cc, ok := ce.CompletionCode(); ok {
				return nil, errors.Wrapf(cc, "raw 0x%02x 0x%02x", netFn, cmd)
			}
		}
		return nil, err
	}
	return parseRawOutput(out)
}

// parseRawOutput reads the hex bytes ipmitool prints for a raw response
func parseRawOutput(out []byte) ([]byte, error) {
	fields := strings.Fields(string(out))
	r := make([]byte, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(strings.TrimPrefix(f, "0x"), 16, 8)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing raw response %q", f)
		}
		r = append(r, uint8(v))
	}
	return r, nil
}

// ClearSEL erases the SEL.
func (c *Client) ClearSEL(ctx context.Context) error {
	_, err := c.Run(ctx, "sel", "clear")
	return err
}

// Ping checks that the controller answers `bmc info`.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Run(ctx, "bmc", "info")
	return err
}
