/* sensor.go: scraping `ipmitool sensor list`
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package ipmitool

import (
	"context"
	"strconv"
	"strings"

	"github.com/kraken-hpc/ipmisel/lib/mapping"
)

// Sensor is one row of `ipmitool sensor list`:
//   name | reading | unit | status | lnr | lcr | lnc | unc | ucr | unr
type Sensor struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
	// Reading is nil when ipmitool reports "na"; discrete readings are hex
	Reading *float64 `json:"reading,omitempty"`
	// Status is the status column of threshold sensors, e.g. "ok" or "cr"
	Status string `json:"status,omitempty"`
	// StateBits is the assertion state of discrete sensors
	StateBits  *uint16            `json:"state_bits,omitempty"`
	Thresholds map[string]float64 `json:"thresholds,omitempty"`
}

func (s Sensor) Discrete() bool { return s.Unit == "discrete" }

// discreteState converts the status column of a discrete sensor (e.g.
// "0x0180", bytes 3 and 4 of Get Sensor Reading) to a state bitmask: the
// bytes are swapped and the reserved top bit is cleared.
func discreteState(s string) (uint16, bool) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 16)
	if err != nil {
		return 0, false
	}
	swapped := uint16(v>>8)&0x00ff | uint16(v<<8)&0xff00
	return swapped & 0x7fff, true
}

// ParseSensorList parses `ipmitool sensor list` output. Lines that do not
// have exactly ten columns are skipped.
func ParseSensorList(out []byte) []Sensor {
	var r []Sensor
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, "|")
		if len(cols) != 10 {
			continue
		}
		for i := range cols {
			cols[i] = strings.TrimSpace(cols[i])
		}
		s := Sensor{Name: cols[0], Unit: cols[2]}
		if s.Discrete() {
			if v, err := strconv.ParseUint(strings.TrimPrefix(cols[1], "0x"), 16, 64); err == nil {
				f := float64(v)
				s.Reading = &f
			}
			if st, ok := discreteState(cols[3]); ok {
				s.StateBits = &st
			}
		} else {
			if v, err := strconv.ParseFloat(cols[1], 64); err == nil {
				s.Reading = &v
			}
			if cols[3] != "na" {
				s.Status = cols[3]
			}
			s.Thresholds = map[string]float64{}
			for i, t := range mapping.Thresholds {
				if v, err := strconv.ParseFloat(cols[4+i], 64); err == nil {
					s.Thresholds[t] = v
				}
			}
		}
		r = append(r, s)
	}
	return r
}

// SensorList runs `sensor list` and parses the result.
func (c *Client) SensorList(ctx context.Context) ([]Sensor, error) {
	out, err := c.Run(ctx, "sensor", "list")
	if err != nil {
		return nil, err
	}
	sensors := ParseSensorList(out)
	c.logger().Debugf("parsed %d sensors", len(sensors))
	return sensors, nil
}
