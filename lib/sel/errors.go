/* errors.go: error values returned by the SEL store and query engine
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package sel

import (
	"errors"
	"fmt"
	"time"

	"github.com/kraken-hpc/ipmisel/lib/ipmi"
)

var (
	ErrNotFound        = ipmi.ErrNotFound
	ErrInvalidArgument = ipmi.ErrInvalidArgument
	ErrTimeout         = errors.New("timed out")
	ErrStaleSelection  = errors.New("selection refers to a snapshot that is no longer current")
	ErrNoSelection     = errors.New("no SEL record selected")
	// ErrNotFetched matches ErrNotFound with errors.Is
	ErrNotFetched = fmt.Errorf("SEL has not been fetched: %w", ErrNotFound)
)

// TimeoutError is returned by the wait operations when the threshold was not
// reached before the deadline.
type TimeoutError struct {
	Filter  Filter
	Count   int
	Want    int
	Polls   int
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no match found for SEL records with %v: %d of %d after %d polls in %v",
		e.Filter, e.Count, e.Want, e.Polls, e.Elapsed)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// AssertionError reports a failed check against the selected record or the
// snapshot contents.
type AssertionError struct {
	What     string
	Expected interface{}
	Actual   interface{}
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %v, got %v", e.What, e.Expected, e.Actual)
}
