/* assert.go: checks against the selected record and the snapshot
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package sel

import (
	"fmt"

	"github.com/kraken-hpc/ipmisel/lib/ipmi"
)

// Default masks for the selected record checks
const (
	EventDataMask      uint32 = 0xffffff
	EventDirectionMask uint8  = 0x01
	SensorMask         uint8  = 0xff
)

func hex24(v uint32) string { return fmt.Sprintf("0x%06x", v) }

// EventDataEquals checks the event data of the selected record. expected
// and the actual value are both masked before comparing.
func (e *Engine) EventDataEquals(expected, mask uint32) error {
	s, err := e.Selected()
	if err != nil {
		return err
	}
	want := expected & mask
	got := s.Record.EventData & mask
	if want != got {
		return &AssertionError{What: fmt.Sprintf("event data (mask %s)", hex24(mask)), Expected: hex24(want), Actual: hex24(got)}
	}
	return nil
}

func (e *Engine) EventDirectionEquals(d ipmi.EventDirection) error {
	s, err := e.Selected()
	if err != nil {
		return err
	}
	want := ipmi.EventDirection(uint8(d) & EventDirectionMask)
	got := ipmi.EventDirection(uint8(s.Record.EventDirection) & EventDirectionMask)
	if want != got {
		return &AssertionError{What: "event direction", Expected: want, Actual: got}
	}
	return nil
}

func (e *Engine) IsFromSensorNumber(n uint8) error {
	s, err := e.Selected()
	if err != nil {
		return err
	}
	if n&SensorMask != s.Record.SensorNumber&SensorMask {
		return &AssertionError{What: "sensor number", Expected: n, Actual: s.Record.SensorNumber}
	}
	return nil
}

func (e *Engine) IsFromSensorType(t ipmi.SensorType) error {
	s, err := e.Selected()
	if err != nil {
		return err
	}
	if uint8(t)&SensorMask != uint8(s.Record.SensorType)&SensorMask {
		return &AssertionError{What: "sensor type", Expected: t, Actual: s.Record.SensorType}
	}
	return nil
}

// ShouldContainEntries checks the total number of records in the snapshot.
func (e *Engine) ShouldContainEntries(n int) error {
	c, err := e.CountTotal()
	if err != nil {
		return err
	}
	if c != n {
		return &AssertionError{What: "SEL entries", Expected: n, Actual: c}
	}
	return nil
}

func (e *Engine) ShouldContainSensorTypeTimes(t ipmi.SensorType, n int) error {
	c, err := e.CountBySensorType(t)
	if err != nil {
		return err
	}
	if c != n {
		return &AssertionError{What: fmt.Sprintf("SEL records with sensor type %v", t), Expected: n, Actual: c}
	}
	return nil
}

func (e *Engine) ShouldNotContainSensorType(t ipmi.SensorType) error {
	return e.ShouldContainSensorTypeTimes(t, 0)
}
