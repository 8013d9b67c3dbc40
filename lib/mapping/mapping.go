/* mapping.go: symbolic names for IPMI and PICMG code values
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

// Package mapping resolves human readable names to IPMI code values.
// Names are compared case-insensitively ignoring everything that is not a
// letter or digit, so "Power Supply", "power_supply" and "POWER-SUPPLY" are
// the same name. Most tables also accept integer literals in any base.
package mapping

import (
	"strings"
	"unicode"

	"github.com/kraken-hpc/ipmisel/lib/ipmi"
	"github.com/kraken-hpc/ipmisel/lib/util"
	"github.com/pkg/errors"
)

func normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

type table struct {
	domain   string
	fallback bool
	codes    map[string]uint8
}

func newTable(domain string, fallback bool, names map[string]uint8) *table {
	t := &table{domain: domain, fallback: fallback, codes: make(map[string]uint8, len(names))}
	for k, v := range names {
		t.codes[normalize(k)] = v
	}
	return t
}

func (t *table) find(s string) (uint8, error) {
	if v, ok := t.codes[normalize(s)]; ok {
		return v, nil
	}
	if t.fallback {
		if v, err := util.IntAnyBase(s); err == nil {
			if v < 0 || v > 0xff {
				return 0, errors.Wrapf(ipmi.ErrInvalidArgument, "%s %q out of range", t.domain, s)
			}
			return uint8(v), nil
		}
	}
	return 0, errors.Wrapf(ipmi.ErrInvalidArgument, "%s %q not found", t.domain, s)
}

var sensorTypes = func() *table {
	names := map[string]uint8{}
	for st, desc := range ipmi.SensorTypes() {
		names[desc] = uint8(st)
	}
	// short forms
	names["temp"] = uint8(ipmi.SensorTypeTemperature)
	names["watchdog"] = uint8(ipmi.SensorTypeWatchdog2)
	names["hot swap"] = uint8(ipmi.SensorTypeFRUHotSwap)
	return newTable("sensor type", true, names)
}()

var eventDirections = newTable("event direction", true, map[string]uint8{
	"assertion":   uint8(ipmi.EventAssertion),
	"deassertion": uint8(ipmi.EventDeassertion),
})

var sdrRecordTypes = newTable("SDR record type", true, map[string]uint8{
	"FULL_SENSOR_RECORD":                   0x01,
	"COMPACT_SENSOR_RECORD":                0x02,
	"EVENT_ONLY_SENSOR_RECORD":             0x03,
	"ENTITY_ASSOCIATION_RECORD":            0x08,
	"FRU_DEVICE_LOCATOR_RECORD":            0x11,
	"MANAGEMENT_CONTROLLER_DEVICE_LOCATOR": 0x12,
	"MANAGEMENT_CONTROLLER_CONFIRMATION":   0x13,
	"BMC_MESSAGE_CHANNEL_INFO":             0x14,
	"OEM_RECORD":                           0xc0,
	"GENERIC_DEVICE_LOCATOR_RECORD":        0x10,
	"DEVICE_RELATIVE_ENTITY_ASSOCIATION":   0x09,
})

var entityIDs = newTable("entity id", true, map[string]uint8{
	"UNSPECIFIED":                       0x00,
	"OTHER":                             0x01,
	"UNKNOWN":                           0x02,
	"PROCESSOR":                         0x03,
	"DISK":                              0x04,
	"PERIPHERAL_BAY":                    0x05,
	"SYSTEM_MANAGEMENT_MODULE":          0x06,
	"SYSTEM_BOARD":                      0x07,
	"MEMORY_MODULE":                     0x08,
	"PROCESSOR_MODULE":                  0x09,
	"POWER_SUPPLY":                      0x0a,
	"ADD_IN_CARD":                       0x0b,
	"FRONT_PANEL_BOARD":                 0x0c,
	"BACK_PANEL_BOARD":                  0x0d,
	"POWER_SYSTEM_BOARD":                0x0e,
	"DRIVE_BACKPLANE":                   0x0f,
	"SYSTEM_CHASSIS":                    0x17,
	"COOLING_UNIT":                      0x1e,
	"CABLE_INTERCONNECT":                0x1f,
	"MEMORY_DEVICE":                     0x20,
	"BIOS":                              0x22,
	"BATTERY":                           0x28,
	"PICMG_FRONT_BOARD":                 0xa0,
	"PICMG_REAR_TRANSITION_MODULE":      0xc0,
	"PICMG_ADVANCED_MC":                 0xc1,
	"PICMG_MICROTCA_CARRIER_HUB":        0xc2,
	"PICMG_SHELF_MANAGEMENT_CONTROLLER": 0xf0,
	"PICMG_FILTRATION_UNIT":             0xf1,
	"PICMG_SHELF_FRU_INFORMATION":       0xf2,
	"PICMG_ALARM_PANEL":                 0xf3,
})

var ledColors = newTable("LED color", true, map[string]uint8{
	"BLUE":   0x01,
	"RED":    0x02,
	"GREEN":  0x03,
	"AMBER":  0x04,
	"ORANGE": 0x05,
	"WHITE":  0x06,
})

var linkInterfaces = newTable("link interface", true, map[string]uint8{
	"BASE":           0x00,
	"FABRIC":         0x01,
	"UPDATE_CHANNEL": 0x02,
})

var linkTypes = newTable("link type", true, map[string]uint8{
	"BASE":              0x01,
	"ETHERNET_FABRIC":   0x02,
	"INFINIBAND_FABRIC": 0x03,
	"STARFABRIC_FABRIC": 0x04,
	"PCIEXPRESS_FABRIC": 0x05,
})

var linkStates = newTable("link state", true, map[string]uint8{
	"DISABLE": 0x00,
	"ENABLE":  0x01,
})

var watchdogActions = newTable("watchdog action", true, map[string]uint8{
	"NO_ACTION":   0x00,
	"HARD_RESET":  0x01,
	"POWER_DOWN":  0x02,
	"POWER_CYCLE": 0x03,
})

var watchdogTimerUses = newTable("watchdog timer use", true, map[string]uint8{
	"BIOS_FRB2": 0x01,
	"BIOS_POST": 0x02,
	"OS_LOAD":   0x03,
	"SMS_OS":    0x04,
	"OEM":       0x05,
})

// Thresholds are the sensor threshold columns of `ipmitool sensor list`, in
// column order.
var Thresholds = []string{"lnr", "lcr", "lnc", "unc", "ucr", "unr"}

var thresholdNames = map[string]string{
	"lnr": "lnr", "lowernonrecoverable": "lnr",
	"lcr": "lcr", "lowercritical": "lcr",
	"lnc": "lnc", "lowernoncritical": "lnc",
	"unc": "unc", "uppernoncritical": "unc",
	"ucr": "ucr", "uppercritical": "ucr",
	"unr": "unr", "uppernonrecoverable": "unr",
}

func FindSensorType(s string) (ipmi.SensorType, error) {
	v, err := sensorTypes.find(s)
	return ipmi.SensorType(v), err
}

func FindEventDirection(s string) (ipmi.EventDirection, error) {
	v, err := eventDirections.find(s)
	if err == nil && v > 1 {
		return 0, errors.Wrapf(ipmi.ErrInvalidArgument, "event direction %q out of range", s)
	}
	return ipmi.EventDirection(v), err
}

func FindSDRRecordType(s string) (uint8, error)    { return sdrRecordTypes.find(s) }
func FindEntityID(s string) (uint8, error)         { return entityIDs.find(s) }
func FindLEDColor(s string) (uint8, error)         { return ledColors.find(s) }
func FindLinkInterface(s string) (uint8, error)    { return linkInterfaces.find(s) }
func FindLinkType(s string) (uint8, error)         { return linkTypes.find(s) }
func FindLinkState(s string) (uint8, error)        { return linkStates.find(s) }
func FindWatchdogAction(s string) (uint8, error)   { return watchdogActions.find(s) }
func FindWatchdogTimerUse(s string) (uint8, error) { return watchdogTimerUses.find(s) }

// FindThreshold returns the short column name (e.g. "lnr") of a threshold.
func FindThreshold(s string) (string, error) {
	if t, ok := thresholdNames[normalize(s)]; ok {
		return t, nil
	}
	return "", errors.Wrapf(ipmi.ErrInvalidArgument, "threshold %q not found", s)
}
