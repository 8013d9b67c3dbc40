package sel

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/gopacket/layers"
	"github.com/kraken-hpc/ipmisel/lib/ipmi"
	"github.com/sirupsen/logrus/hooks/test"
)

func newTestEngine(t *testing.T, p Provider, opts ...EngineOption) *Engine {
	t.Helper()
	logger, _ := test.NewNullLogger()
	e := NewEngine(NewStore(p, WithLogger(logger)), append([]EngineOption{WithEngineLogger(logger)}, opts...)...)
	return e
}

func mixedBatch() Batch {
	return binaryBatch(
		rec(1, ipmi.SensorTypeVoltage, 10, 0x01, 0x000001),
		rec(2, ipmi.SensorTypeTemperature, 5, 0x81, 0xa10101),
		rec(3, ipmi.SensorTypeVoltage, 11, 0x01, 0x000002),
		rec(4, ipmi.SensorTypeFan, 10, 0x01, 0x000003),
		rec(5, ipmi.SensorTypeVoltage, 10, 0x81, 0x000004),
	)
}

func fetched(t *testing.T, e *Engine) {
	t.Helper()
	if _, err := e.Store().Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func ids(rs []ipmi.SelRecord) []ipmi.RecordID {
	r := []ipmi.RecordID{}
	for _, rec := range rs {
		r = append(r, rec.RecordID)
	}
	return r
}

func TestEngine_find(t *testing.T) {
	e := newTestEngine(t, &fakeProvider{batches: []Batch{mixedBatch()}})
	if _, err := e.CountTotal(); !errors.Is(err, ErrNotFetched) {
		t.Errorf("CountTotal() before fetch = %v", err)
	}
	fetched(t, e)

	if n, _ := e.CountTotal(); n != 5 {
		t.Errorf("CountTotal() = %d, want 5", n)
	}
	t.Run("by sensor type", func(t *testing.T) {
		r, err := e.FindBySensorType(ipmi.SensorTypeVoltage)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]ipmi.RecordID{1, 3, 5}, ids(r)); diff != "" {
			t.Errorf("FindBySensorType() mismatch (-want +got):\n%s", diff)
		}
	})
	t.Run("by sensor number", func(t *testing.T) {
		r, err := e.FindBySensorNumber(10)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]ipmi.RecordID{1, 4, 5}, ids(r)); diff != "" {
			t.Errorf("FindBySensorNumber() mismatch (-want +got):\n%s", diff)
		}
	})
	t.Run("count matches find", func(t *testing.T) {
		for i := 0; i < 256; i++ {
			st := ipmi.SensorType(i)
			r, _ := e.FindBySensorType(st)
			c, _ := e.CountBySensorType(st)
			if c != len(r) {
				t.Errorf("CountBySensorType(%v) = %d, len(FindBySensorType) = %d", st, c, len(r))
			}
			r, _ = e.FindBySensorNumber(uint8(i))
			c, _ = e.CountBySensorNumber(uint8(i))
			if c != len(r) {
				t.Errorf("CountBySensorNumber(%d) = %d, len(FindBySensorNumber) = %d", i, c, len(r))
			}
		}
	})
}

func TestEngine_Select(t *testing.T) {
	e := newTestEngine(t, &fakeProvider{batches: []Batch{mixedBatch()}})
	fetched(t, e)
	volt := ipmi.SensorTypeVoltage

	tests := []struct {
		name  string
		index int
		id    ipmi.RecordID
		err   error
	}{
		{"first", 1, 1, nil},
		{"second", 2, 3, nil},
		{"last by count", 3, 5, nil},
		{"last", -1, 5, nil},
		{"first from end", -3, 1, nil},
		{"zero", 0, 0, ErrInvalidArgument},
		{"past end", 4, 0, ErrNotFound},
		{"before start", -4, 0, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := e.SelectBySensorType(volt, tt.index)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("SelectBySensorType(%d) error = %v, want %v", tt.index, err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if s.Record.RecordID != tt.id {
				t.Errorf("SelectBySensorType(%d) = record %d, want %d", tt.index, s.Record.RecordID, tt.id)
			}
			got, err := e.Selected()
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(s, got, cmpopts.IgnoreTypes(layers.BaseLayer{})); diff != "" {
				t.Errorf("Selected() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("N equals -1", func(t *testing.T) {
		a, _ := e.SelectBySensorNumber(10, 3)
		b, _ := e.SelectBySensorNumber(10, -1)
		if a.Record.RecordID != b.Record.RecordID || a.Index != b.Index {
			t.Errorf("index 3 selected %d, index -1 selected %d", a.Record.RecordID, b.Record.RecordID)
		}
	})
	t.Run("no matches", func(t *testing.T) {
		_, err := e.SelectBySensorType(ipmi.SensorTypeBattery, 1)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("error = %v, want %v", err, ErrNotFound)
		}
	})
	t.Run("failed select keeps cursor", func(t *testing.T) {
		want, _ := e.SelectBySensorType(volt, 2)
		e.SelectBySensorType(volt, 9)
		got, err := e.Selected()
		if err != nil || got.Record.RecordID != want.Record.RecordID {
			t.Errorf("Selected() = %d, %v; want %d", got.Record.RecordID, err, want.Record.RecordID)
		}
	})
	t.Run("by record id", func(t *testing.T) {
		s, err := e.SelectByRecordID(4)
		if err != nil {
			t.Fatal(err)
		}
		if s.Record.SensorType != ipmi.SensorTypeFan || s.Index != 3 {
			t.Errorf("SelectByRecordID(4) = %+v", s)
		}
		if _, err := e.SelectByRecordID(42); !errors.Is(err, ErrNotFound) {
			t.Errorf("SelectByRecordID(42) error = %v", err)
		}
	})
	t.Run("at offset", func(t *testing.T) {
		s, err := e.SelectAtOffset(0)
		if err != nil {
			t.Fatal(err)
		}
		if s.Record.RecordID != 1 {
			t.Errorf("SelectAtOffset(0) = record %d", s.Record.RecordID)
		}
		if _, err := e.SelectAtOffset(5); !errors.Is(err, ErrNotFound) {
			t.Errorf("SelectAtOffset(5) error = %v", err)
		}
		if _, err := e.SelectAtOffset(-1); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("SelectAtOffset(-1) error = %v", err)
		}
	})
}

func TestEngine_staleSelection(t *testing.T) {
	e := newTestEngine(t, &fakeProvider{batches: []Batch{mixedBatch()}})
	if _, err := e.Selected(); !errors.Is(err, ErrNoSelection) {
		t.Errorf("Selected() with no selection = %v", err)
	}
	fetched(t, e)
	if _, err := e.SelectAtOffset(1); err != nil {
		t.Fatal(err)
	}

	e.Store().Invalidate()
	if _, err := e.Selected(); !errors.Is(err, ErrStaleSelection) {
		t.Errorf("Selected() after Invalidate = %v, want %v", err, ErrStaleSelection)
	}
	fetched(t, e)
	if _, err := e.Selected(); !errors.Is(err, ErrStaleSelection) {
		t.Errorf("Selected() after re-fetch = %v, want %v", err, ErrStaleSelection)
	}
	if err := e.EventDataEquals(0xa10101, EventDataMask); !errors.Is(err, ErrStaleSelection) {
		t.Errorf("EventDataEquals() on stale selection = %v", err)
	}

	e.SelectAtOffset(1)
	e.ClearSelection()
	if _, err := e.Selected(); !errors.Is(err, ErrNoSelection) {
		t.Errorf("Selected() after ClearSelection = %v", err)
	}
}

func TestEngine_assertions(t *testing.T) {
	e := newTestEngine(t, &fakeProvider{batches: []Batch{mixedBatch()}})
	fetched(t, e)
	if err := e.EventDataEquals(0xa10101, EventDataMask); !errors.Is(err, ErrNoSelection) {
		t.Errorf("EventDataEquals() without selection = %v", err)
	}
	// record 2: temperature, sensor 5, deassertion, data 0xa10101
	if _, err := e.SelectByRecordID(2); err != nil {
		t.Fatal(err)
	}

	t.Run("event data", func(t *testing.T) {
		if err := e.EventDataEquals(0xa10101, EventDataMask); err != nil {
			t.Error(err)
		}
		if err := e.EventDataEquals(0x010000, 0x0f0000); err != nil {
			t.Errorf("masked compare failed: %v", err)
		}
		if err := e.EventDataEquals(0xf1ffff, 0x0f0000); err != nil {
			t.Errorf("masked compare with differing unmasked bits failed: %v", err)
		}
		err := e.EventDataEquals(0xa10102, EventDataMask)
		var ae *AssertionError
		if !errors.As(err, &ae) {
			t.Fatalf("expected *AssertionError, got %v", err)
		}
		if ae.Expected != "0xa10102" || ae.Actual != "0xa10101" {
			t.Errorf("AssertionError = %+v", ae)
		}
	})
	t.Run("direction", func(t *testing.T) {
		if err := e.EventDirectionEquals(ipmi.EventDeassertion); err != nil {
			t.Error(err)
		}
		if err := e.EventDirectionEquals(ipmi.EventAssertion); err == nil {
			t.Error("expected direction mismatch")
		}
		if err := e.EventDirectionEquals(ipmi.EventDirection(0x03)); err != nil {
			t.Errorf("direction mask not applied: %v", err)
		}
	})
	t.Run("sensor", func(t *testing.T) {
		if err := e.IsFromSensorNumber(5); err != nil {
			t.Error(err)
		}
		if err := e.IsFromSensorNumber(6); err == nil {
			t.Error("expected sensor number mismatch")
		}
		if err := e.IsFromSensorType(ipmi.SensorTypeTemperature); err != nil {
			t.Error(err)
		}
		if err := e.IsFromSensorType(ipmi.SensorTypeVoltage); err == nil {
			t.Error("expected sensor type mismatch")
		}
	})
	t.Run("snapshot contents", func(t *testing.T) {
		if err := e.ShouldContainEntries(5); err != nil {
			t.Error(err)
		}
		if err := e.ShouldContainEntries(4); err == nil {
			t.Error("expected entry count mismatch")
		}
		if err := e.ShouldContainSensorTypeTimes(ipmi.SensorTypeVoltage, 3); err != nil {
			t.Error(err)
		}
		if err := e.ShouldNotContainSensorType(ipmi.SensorTypeBattery); err != nil {
			t.Error(err)
		}
		if err := e.ShouldNotContainSensorType(ipmi.SensorTypeFan); err == nil {
			t.Error("expected fan records to be reported")
		}
	})
}
