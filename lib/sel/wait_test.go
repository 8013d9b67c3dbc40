package sel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kraken-hpc/ipmisel/lib/ipmi"
)

type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	return nil
}

func voltageBatches() []Batch {
	return []Batch{
		binaryBatch(rec(1, ipmi.SensorTypeFan, 1, 0x01, 0)),
		binaryBatch(rec(1, ipmi.SensorTypeFan, 1, 0x01, 0), rec(2, ipmi.SensorTypeVoltage, 7, 0x01, 0x11)),
		binaryBatch(rec(1, ipmi.SensorTypeFan, 1, 0x01, 0), rec(2, ipmi.SensorTypeVoltage, 7, 0x01, 0x11), rec(3, ipmi.SensorTypeVoltage, 8, 0x01, 0x22)),
	}
}

func TestEngine_WaitUntilCountReached(t *testing.T) {
	t.Run("reached on third poll", func(t *testing.T) {
		clk := &fakeClock{t: time.Unix(1000, 0)}
		p := &fakeProvider{batches: voltageBatches()}
		e := newTestEngine(t, p,
			WithTimeout(3*time.Second),
			WithPollInterval(time.Second),
			WithWaitClock(clk.now, clk.sleep))
		s, err := e.WaitForSensorType(context.Background(), ipmi.SensorTypeVoltage, 2)
		if err != nil {
			t.Fatal(err)
		}
		if p.calls != 3 {
			t.Errorf("polled %d times, want 3", p.calls)
		}
		if elapsed := clk.t.Sub(time.Unix(1000, 0)); elapsed != 2*time.Second {
			t.Errorf("returned after %v, want 2s", elapsed)
		}
		if s.Record.RecordID != 2 || s.Index != 1 {
			t.Errorf("selected record %d index %d, want the first match", s.Record.RecordID, s.Index)
		}
		if _, err := e.Selected(); err != nil {
			t.Errorf("Selected() after wait = %v", err)
		}
	})
	t.Run("timeout", func(t *testing.T) {
		clk := &fakeClock{t: time.Unix(1000, 0)}
		p := &fakeProvider{batches: voltageBatches()}
		e := newTestEngine(t, p,
			WithTimeout(3*time.Second),
			WithPollInterval(time.Second),
			WithWaitClock(clk.now, clk.sleep))
		_, err := e.WaitForSensorType(context.Background(), ipmi.SensorTypeVoltage, 3)
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("error = %v, want %v", err, ErrTimeout)
		}
		var te *TimeoutError
		if !errors.As(err, &te) {
			t.Fatalf("expected *TimeoutError, got %T", err)
		}
		if te.Polls != 3 || te.Count != 2 || te.Want != 3 || te.Elapsed != 3*time.Second {
			t.Errorf("TimeoutError = %+v", te)
		}
		if _, err := e.Selected(); !errors.Is(err, ErrNoSelection) {
			t.Errorf("timed out wait changed the selection: %v", err)
		}
	})
	t.Run("zero timeout polls once", func(t *testing.T) {
		clk := &fakeClock{t: time.Unix(1000, 0)}
		p := &fakeProvider{batches: voltageBatches()}
		e := newTestEngine(t, p, WithTimeout(0), WithWaitClock(clk.now, clk.sleep))
		_, err := e.WaitForSensorNumber(context.Background(), 7, 1)
		if !errors.Is(err, ErrTimeout) || p.calls != 1 {
			t.Errorf("error = %v after %d polls", err, p.calls)
		}
	})
	t.Run("by sensor number", func(t *testing.T) {
		clk := &fakeClock{t: time.Unix(1000, 0)}
		e := newTestEngine(t, &fakeProvider{batches: voltageBatches()}, WithWaitClock(clk.now, clk.sleep))
		s, err := e.WaitForSensorNumber(context.Background(), 8, 1)
		if err != nil {
			t.Fatal(err)
		}
		if s.Record.RecordID != 3 {
			t.Errorf("selected record %d, want 3", s.Record.RecordID)
		}
	})
	t.Run("cancelled", func(t *testing.T) {
		clk := &fakeClock{t: time.Unix(1000, 0)}
		p := &fakeProvider{batches: voltageBatches()}
		e := newTestEngine(t, p, WithWaitClock(clk.now, clk.sleep))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := e.WaitForSensorType(ctx, ipmi.SensorTypeVoltage, 5)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want %v", err, context.Canceled)
		}
		if p.calls != 1 {
			t.Errorf("polled %d times after cancel, want 1", p.calls)
		}
	})
	t.Run("fetch error", func(t *testing.T) {
		boom := errors.New("no route to host")
		clk := &fakeClock{t: time.Unix(1000, 0)}
		e := newTestEngine(t, &fakeProvider{err: boom}, WithWaitClock(clk.now, clk.sleep))
		if _, err := e.WaitForSensorType(context.Background(), ipmi.SensorTypeVoltage, 1); !errors.Is(err, boom) {
			t.Errorf("error = %v, want %v", err, boom)
		}
	})
	t.Run("invalid count", func(t *testing.T) {
		e := newTestEngine(t, &fakeProvider{batches: voltageBatches()})
		if _, err := e.WaitForSensorType(context.Background(), ipmi.SensorTypeVoltage, 0); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("error = %v, want %v", err, ErrInvalidArgument)
		}
	})
}

func TestEngine_settings(t *testing.T) {
	e := newTestEngine(t, &fakeProvider{batches: voltageBatches()})
	if old := e.SetTimeout(5 * time.Second); old != DefaultTimeout {
		t.Errorf("SetTimeout() = %v, want %v", old, DefaultTimeout)
	}
	if old := e.SetPollInterval(250 * time.Millisecond); old != DefaultPollInterval {
		t.Errorf("SetPollInterval() = %v, want %v", old, DefaultPollInterval)
	}
	if e.Timeout() != 5*time.Second || e.PollInterval() != 250*time.Millisecond {
		t.Errorf("settings = %v/%v", e.Timeout(), e.PollInterval())
	}
}

func TestEngine_Poll(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	e := newTestEngine(t, &fakeProvider{batches: voltageBatches()},
		WithTimeout(5*time.Second),
		WithPollInterval(2*time.Second),
		WithWaitClock(clk.now, clk.sleep))
	calls := 0
	err := e.Poll(context.Background(), "sensor state", func(context.Context) (bool, error) {
		calls++
		return calls == 2, nil
	})
	if err != nil || calls != 2 {
		t.Errorf("Poll() = %v after %d calls", err, calls)
	}

	calls = 0
	err = e.Poll(context.Background(), "sensor state", func(context.Context) (bool, error) {
		calls++
		return false, nil
	})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Poll() = %v, want %v", err, ErrTimeout)
	}
	// polls at t=0, 2s and 4s; the deadline has passed by t=6s
	if calls != 3 {
		t.Errorf("cond called %d times, want 3", calls)
	}

	boom := errors.New("bmc info failed")
	if err = e.Poll(context.Background(), "x", func(context.Context) (bool, error) { return false, boom }); !errors.Is(err, boom) {
		t.Errorf("Poll() = %v, want %v", err, boom)
	}
}
