/* wait.go: polling the SEL until enough records match
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package sel

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kraken-hpc/ipmisel/lib/ipmi"
	"github.com/pkg/errors"
)

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type pollResult struct {
	polls    int
	elapsed  time.Duration
	timedOut bool
}

// poll calls cond until it reports true. cond runs at least once; the
// deadline is checked before each further call.
func (e *Engine) poll(ctx context.Context, cond func(context.Context) (bool, error)) (pollResult, error) {
	start := e.now()
	deadline := start.Add(e.timeout)
	b := backoff.WithContext(backoff.NewConstantBackOff(e.interval), ctx)
	var r pollResult
	for {
		if r.polls > 0 && !e.now().Before(deadline) {
			r.elapsed = e.now().Sub(start)
			r.timedOut = true
			return r, nil
		}
		ok, err := cond(ctx)
		if err != nil {
			return r, err
		}
		r.polls++
		if ok {
			r.elapsed = e.now().Sub(start)
			return r, nil
		}
		next := b.NextBackOff()
		if next == backoff.Stop {
			return r, ctx.Err()
		}
		if err := e.sleep(ctx, next); err != nil {
			return r, err
		}
	}
}

// Poll calls cond with the engine's timeout, poll interval and clock until
// it reports true. A timeout matches ErrTimeout.
func (e *Engine) Poll(ctx context.Context, what string, cond func(context.Context) (bool, error)) error {
	r, err := e.poll(ctx, cond)
	if err != nil {
		return errors.Wrapf(err, "waiting for %s", what)
	}
	if r.timedOut {
		return errors.Wrapf(ErrTimeout, "%s not reached after %d polls in %v", what, r.polls, r.elapsed)
	}
	return nil
}

// WaitUntilCountReached re-fetches the SEL until at least count records
// match f, then selects the first match. The SEL is polled at least once;
// the deadline is checked before each further poll. Fetch errors and context
// cancellation end the wait early.
func (e *Engine) WaitUntilCountReached(ctx context.Context, f Filter, count int) (Selection, error) {
	if count < 1 {
		return Selection{}, errors.Wrapf(ErrInvalidArgument, "count must be positive, got %d", count)
	}
	l := e.log.WithField("filter", f.String())
	var (
		found int
		s     Selection
	)
	r, err := e.poll(ctx, func(ctx context.Context) (bool, error) {
		e.store.Invalidate()
		snap, err := e.store.Fetch(ctx)
		if err != nil {
			return false, err
		}
		matches := find(snap, f)
		found = len(matches)
		l.Debugf("%d of %d matching records", found, count)
		if found < count {
			return false, nil
		}
		s = e.setSelection(snap, matches[0], 1)
		return true, nil
	})
	if err != nil {
		return Selection{}, errors.Wrap(err, "waiting for SEL records")
	}
	if r.timedOut {
		return Selection{}, &TimeoutError{
			Filter:  f,
			Count:   found,
			Want:    count,
			Polls:   r.polls,
			Elapsed: r.elapsed,
		}
	}
	return s, nil
}

func (e *Engine) WaitForSensorType(ctx context.Context, t ipmi.SensorType, count int) (Selection, error) {
	return e.WaitUntilCountReached(ctx, BySensorType(t), count)
}

func (e *Engine) WaitForSensorNumber(ctx context.Context, n uint8, count int) (Selection, error) {
	return e.WaitUntilCountReached(ctx, BySensorNumber(n), count)
}
