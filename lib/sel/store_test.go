package sel

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kraken-hpc/ipmisel/lib/ipmi"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// rec builds a valid system event record
func rec(id uint16, st ipmi.SensorType, num uint8, dirType uint8, data uint32) []byte {
	return []byte{
		uint8(id), uint8(id >> 8), 0x02,
		0x78, 0x56, 0x34, 0x12,
		0x20, 0x00, 0x04,
		uint8(st), num, dirType,
		uint8(data >> 16), uint8(data >> 8), uint8(data),
	}
}

type fakeProvider struct {
	batches []Batch
	err     error
	calls   int
}

func (p *fakeProvider) Fetch(ctx context.Context) (Batch, error) {
	if p.err != nil {
		return Batch{}, p.err
	}
	b := p.batches[len(p.batches)-1]
	if p.calls < len(p.batches) {
		b = p.batches[p.calls]
	}
	p.calls++
	return b, nil
}

func binaryBatch(recs ...[]byte) Batch { return Batch{Records: recs} }

func TestStore_Fetch(t *testing.T) {
	logger, _ := test.NewNullLogger()
	t.Run("binary", func(t *testing.T) {
		p := &fakeProvider{batches: []Batch{binaryBatch(
			rec(1, ipmi.SensorTypeVoltage, 1, 0x01, 0x010203),
			rec(2, ipmi.SensorTypeTemperature, 5, 0x81, 0xa10101),
		)}}
		fetched := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
		s := NewStore(p, WithLogger(logger), WithClock(func() time.Time { return fetched }))
		snap, err := s.Fetch(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if snap.Len() != 2 || s.Size() != 2 {
			t.Fatalf("Len() = %d, Size() = %d, want 2", snap.Len(), s.Size())
		}
		if snap.At(0).RecordID != 1 || snap.At(1).RecordID != 2 {
			t.Errorf("records out of device order: %d, %d", snap.At(0).RecordID, snap.At(1).RecordID)
		}
		if !snap.FetchedAt.Equal(fetched) {
			t.Errorf("FetchedAt = %v, want %v", snap.FetchedAt, fetched)
		}
		cur, err := s.Current()
		if err != nil || cur != snap {
			t.Errorf("Current() = %v, %v", cur, err)
		}
		r := snap.Records()
		r[0].SensorNumber = 99
		if snap.At(0).SensorNumber == 99 {
			t.Error("Records() exposed the snapshot's backing array")
		}
	})
	t.Run("binary fails fast", func(t *testing.T) {
		bad := rec(3, ipmi.SensorTypeFan, 1, 0x01, 0)
		bad[2] = 0xc0
		p := &fakeProvider{batches: []Batch{
			binaryBatch(rec(1, ipmi.SensorTypeFan, 1, 0x01, 0)),
			binaryBatch(rec(1, ipmi.SensorTypeFan, 1, 0x01, 0), bad),
		}}
		s := NewStore(p, WithLogger(logger))
		first, err := s.Fetch(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if _, err = s.Fetch(context.Background()); !errors.Is(err, ipmi.ErrUnsupportedRecordType) {
			t.Fatalf("Fetch() error = %v, want %v", err, ipmi.ErrUnsupportedRecordType)
		}
		if !strings.Contains(err.Error(), "SEL record 1") {
			t.Errorf("error does not name the record position: %v", err)
		}
		if cur, _ := s.Current(); cur != first {
			t.Error("failed fetch replaced the previous snapshot")
		}
	})
	t.Run("text skips bad entries", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		oem := rec(2, ipmi.SensorTypeFan, 1, 0x01, 0)
		oem[2] = 0xdf
		lines := []string{
			"SEL Record ID          : 0001",
			EntryPrefix + hex.EncodeToString(rec(1, ipmi.SensorTypeVoltage, 1, 0x01, 0)),
			EntryPrefix + hex.EncodeToString(oem),
			EntryPrefix + "02 00 02",
			"",
			EntryPrefix + strings.ToUpper(hex.EncodeToString(rec(3, ipmi.SensorTypeVoltage, 2, 0x01, 0))) + "  ",
		}
		s := NewStore(&fakeProvider{batches: []Batch{{Lines: lines}}}, WithLogger(logger))
		snap, err := s.Fetch(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if snap.Len() != 2 {
			t.Fatalf("Len() = %d, want 2", snap.Len())
		}
		if snap.At(1).RecordID != 3 {
			t.Errorf("second record id = %d, want 3", snap.At(1).RecordID)
		}
		warnings := 0
		for _, e := range hook.AllEntries() {
			if e.Level == log.WarnLevel {
				warnings++
			}
		}
		if warnings != 2 {
			t.Errorf("got %d warnings, want 2", warnings)
		}
	})
	t.Run("provider error", func(t *testing.T) {
		boom := errors.New("ipmitool exploded")
		s := NewStore(&fakeProvider{err: boom}, WithLogger(logger))
		if _, err := s.Fetch(context.Background()); !errors.Is(err, boom) {
			t.Errorf("Fetch() error = %v, want %v", err, boom)
		}
	})
}

func TestStore_cache(t *testing.T) {
	logger, _ := test.NewNullLogger()
	p := &fakeProvider{batches: []Batch{binaryBatch(rec(1, ipmi.SensorTypeFan, 1, 0x01, 0))}}
	s := NewStore(p, WithLogger(logger))
	ctx := context.Background()

	if _, err := s.Current(); !errors.Is(err, ErrNotFetched) || !errors.Is(err, ErrNotFound) {
		t.Errorf("Current() before fetch = %v, want %v", err, ErrNotFetched)
	}
	if s.Size() != 0 || s.Records() != nil {
		t.Error("empty store reports records")
	}
	if _, err := s.CachedOrFetch(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CachedOrFetch(ctx); err != nil {
		t.Fatal(err)
	}
	if p.calls != 2 {
		t.Errorf("without prefetch, provider called %d times, want 2", p.calls)
	}

	first, err := s.Prefetch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	again, err := s.CachedOrFetch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again != first || p.calls != 3 {
		t.Errorf("prefetched snapshot not reused (calls = %d)", p.calls)
	}

	s.Invalidate()
	if _, err := s.Current(); !errors.Is(err, ErrNotFetched) {
		t.Errorf("Current() after Invalidate = %v", err)
	}
	next, err := s.CachedOrFetch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if next == first || p.calls != 4 {
		t.Error("invalidated snapshot was reused")
	}
}
