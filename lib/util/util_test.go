package util

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func TestIntAnyBase(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		err  bool
	}{
		{"42", 42, false},
		{" 0x2a ", 42, false},
		{"0o52", 42, false},
		{"0b101010", 42, false},
		{"-1", -1, false},
		{"0xa10101", 0xa10101, false},
		{"forty-two", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := IntAnyBase(tt.in)
			if (err != nil) != tt.err {
				t.Fatalf("IntAnyBase(%q) error = %v", tt.in, err)
			}
			if v != tt.want {
				t.Errorf("IntAnyBase(%q) = %d, want %d", tt.in, v, tt.want)
			}
		})
	}
	if _, err := Uint8AnyBase("0x100"); err == nil {
		t.Error("Uint8AnyBase(0x100) did not fail")
	}
	if v, err := Uint8AnyBase("0xcf"); err != nil || v != 0xcf {
		t.Errorf("Uint8AnyBase(0xcf) = %d, %v", v, err)
	}
}

func TestParseTimestr(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"3", 3 * time.Second},
		{"1.5", 1500 * time.Millisecond},
		{"1m20s", 80 * time.Second},
		{"1 minute 20 seconds", 80 * time.Second},
		{"2 min 3 s", 123 * time.Second},
		{"1h 10ms", time.Hour + 10*time.Millisecond},
		{"2 minute 30 seconds", 150 * time.Second},
		{"1 day", 24 * time.Hour},
		{"- 5 seconds", -5 * time.Second},
		{"1 millisecond 500 microseconds", 1500 * time.Microsecond},
		{"250 nanoseconds", 250 * time.Nanosecond},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseTimestr(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if d != tt.want {
				t.Errorf("ParseTimestr(%q) = %v, want %v", tt.in, d, tt.want)
			}
		})
	}
	for _, bad := range []string{"", "soon", "3 fortnights", "1 minute and"} {
		if _, err := ParseTimestr(bad); err == nil {
			t.Errorf("ParseTimestr(%q) did not fail", bad)
		}
	}
}

func TestFormatTimestr(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0 seconds"},
		{time.Second, "1 second"},
		{80 * time.Second, "1 minute 20 seconds"},
		{time.Hour + time.Second, "1 hour 1 second"},
		{1500 * time.Millisecond, "1 second 500 milliseconds"},
		{-3 * time.Second, "- 3 seconds"},
		{1500 * time.Microsecond, "1 millisecond 500 microseconds"},
		{250 * time.Nanosecond, "250 nanoseconds"},
	}
	for _, tt := range tests {
		if got := FormatTimestr(tt.in); got != tt.want {
			t.Errorf("FormatTimestr(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatters(t *testing.T) {
	e := &log.Entry{
		Time:    time.Date(2021, 3, 1, 13, 4, 5, 6000000, time.UTC),
		Level:   log.WarnLevel,
		Message: "skipping SEL entry\n",
		Data:    log.Fields{"line": 3, "conn": "bmc1"},
	}
	b, _ := (&LineFormatter{Module: "ipmisel"}).Format(e)
	if got, want := string(b), "13:04:05.006:ipmisel:WARNING:skipping SEL entry conn=bmc1 line=3\n"; got != want {
		t.Errorf("LineFormatter = %q, want %q", got, want)
	}
	b, _ = (&LineFormatter{Module: "ipmisel", DisablePrefix: true}).Format(e)
	if got, want := string(b), "ipmisel:WARNING:skipping SEL entry conn=bmc1 line=3\n"; got != want {
		t.Errorf("LineFormatter = %q, want %q", got, want)
	}
	e.Data = log.Fields{}
	e.Level = log.DebugLevel
	b, _ = KeywordFormatter{}.Format(e)
	if got, want := string(b), "*DEBUG* skipping SEL entry\n"; got != want {
		t.Errorf("KeywordFormatter = %q, want %q", got, want)
	}
}
