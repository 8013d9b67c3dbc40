/* sensors.go: sensor and controller keywords
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package library

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kraken-hpc/ipmisel/lib/ipmitool"
	"github.com/kraken-hpc/ipmisel/lib/mapping"
	"github.com/kraken-hpc/ipmisel/lib/sel"
	"github.com/pkg/errors"
)

func (lib *Library) client() (*Connection, error) {
	c, err := lib.Active()
	if err != nil {
		return nil, err
	}
	if c.Client == nil {
		return nil, errors.Wrapf(sel.ErrInvalidArgument, "connection %q has no controller", c.Alias)
	}
	return c, nil
}

// WaitUntilConnectionIsReady polls `bmc info` until the controller answers.
// Archive connections are always ready.
func (lib *Library) WaitUntilConnectionIsReady(ctx context.Context) error {
	c, err := lib.Active()
	if err != nil {
		return err
	}
	if c.Client == nil {
		return nil
	}
	return c.Engine.Poll(ctx, "connection ready", func(ctx context.Context) (bool, error) {
		if err := c.Client.Ping(ctx); err != nil {
			var ce *ipmitool.CommandError
			if errors.As(err, &ce) {
				c.log.Debugf("controller not ready: %v", err)
				return false, nil
			}
			return false, err
		}
		return true, nil
	})
}

// Sensors reads the sensor list of the active connection.
func (lib *Library) Sensors(ctx context.Context) ([]ipmitool.Sensor, error) {
	c, err := lib.client()
	if err != nil {
		return nil, err
	}
	return c.Client.SensorList(ctx)
}

func (lib *Library) sensor(ctx context.Context, name string) (ipmitool.Sensor, error) {
	sensors, err := lib.Sensors(ctx)
	if err != nil {
		return ipmitool.Sensor{}, err
	}
	for _, s := range sensors {
		if s.Name == name {
			return s, nil
		}
	}
	return ipmitool.Sensor{}, errors.Wrapf(sel.ErrNotFound, "no sensor found with name %q", name)
}

// GetSensorReading returns the reading of the named sensor.
func (lib *Library) GetSensorReading(ctx context.Context, name string) (float64, error) {
	s, err := lib.sensor(ctx, name)
	if err != nil {
		return 0, err
	}
	if s.Reading == nil {
		return 0, errors.Wrapf(sel.ErrNotFound, "sensor %q has no reading", name)
	}
	return *s.Reading, nil
}

func sensorState(s ipmitool.Sensor) (string, bool) {
	if s.Discrete() {
		if s.StateBits == nil {
			return "", false
		}
		return fmt.Sprintf("0x%04x", *s.StateBits), true
	}
	return s.Status, s.Status != ""
}

// GetSensorState returns the state bits of a discrete sensor as "0x%04x",
// or the status of a threshold sensor (e.g. "ok").
func (lib *Library) GetSensorState(ctx context.Context, name string) (string, error) {
	s, err := lib.sensor(ctx, name)
	if err != nil {
		return "", err
	}
	st, ok := sensorState(s)
	if !ok {
		return "", errors.Wrapf(sel.ErrNotFound, "sensor %q has no state", name)
	}
	return st, nil
}

// stateMatches compares a state as returned by GetSensorState with an
// expected value; discrete states compare numerically.
func stateMatches(s ipmitool.Sensor, expected string) (bool, string, error) {
	actual, ok := sensorState(s)
	if s.Discrete() {
		want, err := parseInt("state", expected)
		if err != nil {
			return false, actual, err
		}
		return ok && int(*s.StateBits) == want, actual, nil
	}
	return ok && strings.EqualFold(actual, strings.TrimSpace(expected)), actual, nil
}

func (lib *Library) SensorStateShouldBe(ctx context.Context, name, expected string) error {
	s, err := lib.sensor(ctx, name)
	if err != nil {
		return err
	}
	ok, actual, err := stateMatches(s, expected)
	if err != nil {
		return err
	}
	if !ok {
		return &sel.AssertionError{What: fmt.Sprintf("state of sensor %q", name), Expected: expected, Actual: actual}
	}
	return nil
}

// WaitUntilSensorStateIs polls the sensor list until the named sensor has
// the expected state.
func (lib *Library) WaitUntilSensorStateIs(ctx context.Context, name, state string) error {
	c, err := lib.client()
	if err != nil {
		return err
	}
	return c.Engine.Poll(ctx, fmt.Sprintf("state %s of sensor %q", state, name), func(ctx context.Context) (bool, error) {
		s, err := lib.sensor(ctx, name)
		if err != nil {
			return false, err
		}
		ok, actual, err := stateMatches(s, state)
		if err == nil && !ok {
			c.log.Debugf("sensor %q state %s", name, actual)
		}
		return ok, err
	})
}

// GetSensorThreshold returns one of the lnr, lcr, lnc, unc, ucr or unr
// thresholds of the named sensor.
func (lib *Library) GetSensorThreshold(ctx context.Context, name, threshold string) (float64, error) {
	t, err := mapping.FindThreshold(threshold)
	if err != nil {
		return 0, err
	}
	s, err := lib.sensor(ctx, name)
	if err != nil {
		return 0, err
	}
	if len(s.Thresholds) == 0 {
		return 0, errors.Wrapf(sel.ErrNotFound, "no thresholds for sensor %q", name)
	}
	v, ok := s.Thresholds[t]
	if !ok {
		return 0, errors.Wrapf(sel.ErrNotFound, "threshold %q not found for sensor %q", t, name)
	}
	return v, nil
}

func (lib *Library) SensorReadingShouldBe(ctx context.Context, name, expected string) error {
	want, err := strconv.ParseFloat(strings.TrimSpace(expected), 64)
	if err != nil {
		v, ierr := parseInt("expected reading", expected)
		if ierr != nil {
			return ierr
		}
		want = float64(v)
	}
	got, err := lib.GetSensorReading(ctx, name)
	if err != nil {
		return err
	}
	if got != want {
		return &sel.AssertionError{What: fmt.Sprintf("reading of sensor %q", name), Expected: want, Actual: got}
	}
	return nil
}
