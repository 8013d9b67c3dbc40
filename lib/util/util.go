/* util.go: string conversions shared by the keyword library and the CLI
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package util

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// IntAnyBase parses an integer literal with an optional 0x, 0o or 0b prefix.
func IntAnyBase(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, errors.Errorf("could not parse integer %q", s)
	}
	return v, nil
}

// Uint8AnyBase is IntAnyBase limited to 0-255.
func Uint8AnyBase(s string) (uint8, error) {
	v, err := IntAnyBase(s)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > math.MaxUint8 {
		return 0, errors.Errorf("%q does not fit in a byte", s)
	}
	return uint8(v), nil
}

var timeUnits = map[string]time.Duration{
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
	"h": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"ms": time.Millisecond, "millis": time.Millisecond, "millisecond": time.Millisecond, "milliseconds": time.Millisecond,
	"us": time.Microsecond, "usec": time.Microsecond, "microsecond": time.Microsecond, "microseconds": time.Microsecond,
	"ns": time.Nanosecond, "nanosecond": time.Nanosecond, "nanoseconds": time.Nanosecond,
}

var timePart = regexp.MustCompile(`^\s*(\d+(?:\.\d*)?|\.\d+)\s*([a-z]+)`)

// ParseTimestr accepts Go durations ("1m20s"), bare seconds ("1.5") and
// phrases such as "1 minute 20 seconds", "2 min 3 s" or "1h 10ms".
func ParseTimestr(s string) (time.Duration, error) {
	in := strings.ToLower(strings.TrimSpace(s))
	if in == "" {
		return 0, errors.New("empty time string")
	}
	if d, err := time.ParseDuration(in); err == nil {
		return d, nil
	}
	if f, err := strconv.ParseFloat(in, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	neg := false
	if strings.HasPrefix(in, "-") {
		neg = true
		in = in[1:]
	}
	var d time.Duration
	rest := in
	for strings.TrimSpace(rest) != "" {
		m := timePart.FindStringSubmatch(rest)
		if m == nil {
			return 0, errors.Errorf("invalid time string %q", s)
		}
		unit, ok := timeUnits[m[2]]
		if !ok {
			return 0, errors.Errorf("invalid time unit %q in %q", m[2], s)
		}
		f, _ := strconv.ParseFloat(m[1], 64)
		d += time.Duration(f * float64(unit))
		rest = rest[len(m[0]):]
	}
	if neg {
		d = -d
	}
	return d, nil
}

// FormatTimestr renders d as e.g. "1 minute 20 seconds".
func FormatTimestr(d time.Duration) string {
	if d == 0 {
		return "0 seconds"
	}
	var parts []string
	if d < 0 {
		parts = append(parts, "-")
		d = -d
	}
	for _, u := range []struct {
		name string
		d    time.Duration
	}{
		{"day", 24 * time.Hour},
		{"hour", time.Hour},
		{"minute", time.Minute},
		{"second", time.Second},
		{"millisecond", time.Millisecond},
		{"microsecond", time.Microsecond},
		{"nanosecond", time.Nanosecond},
	} {
		n := d / u.d
		if n == 0 {
			continue
		}
		d -= n * u.d
		if n == 1 {
			parts = append(parts, fmt.Sprintf("1 %s", u.name))
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}
	if len(parts) == 0 || (len(parts) == 1 && parts[0] == "-") {
		return "0 seconds"
	}
	return strings.Join(parts, " ")
}
