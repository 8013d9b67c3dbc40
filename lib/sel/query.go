/* query.go: counting, filtering and selecting SEL records
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package sel

import (
	"context"
	"fmt"
	"time"

	"github.com/kraken-hpc/ipmisel/lib/ipmi"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultTimeout      = 3 * time.Second
	DefaultPollInterval = 1 * time.Second
)

type filterKind uint8

const (
	filterSensorType filterKind = iota
	filterSensorNumber
)

// Filter matches records on one field
type Filter struct {
	kind         filterKind
	sensorType   ipmi.SensorType
	sensorNumber uint8
}

func BySensorType(t ipmi.SensorType) Filter {
	return Filter{kind: filterSensorType, sensorType: t}
}

func BySensorNumber(n uint8) Filter {
	return Filter{kind: filterSensorNumber, sensorNumber: n}
}

func (f Filter) Match(r ipmi.SelRecord) bool {
	if f.kind == filterSensorNumber {
		return r.SensorNumber == f.sensorNumber
	}
	return r.SensorType == f.sensorType
}

func (f Filter) String() string {
	if f.kind == filterSensorNumber {
		return fmt.Sprintf("sensor number %d", f.sensorNumber)
	}
	return fmt.Sprintf("sensor type %v", f.sensorType)
}

// Selection is the cursor into a snapshot set by the Select operations.
// Index is the 1-based position among the filter matches, or the 0-based
// offset into the snapshot for selections by offset or record id.
type Selection struct {
	Record     ipmi.SelRecord
	Index      int
	SnapshotID uuid.UUID
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

func WithEngineLogger(l log.FieldLogger) EngineOption {
	return func(e *Engine) { e.log = l }
}

func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.timeout = d }
}

func WithPollInterval(d time.Duration) EngineOption {
	return func(e *Engine) { e.interval = d }
}

// WithWaitClock replaces the clock and sleep used by the wait operations.
func WithWaitClock(now func() time.Time, sleep func(context.Context, time.Duration) error) EngineOption {
	return func(e *Engine) {
		e.now = now
		e.sleep = sleep
	}
}

// Engine answers queries against the current snapshot of a Store and owns
// the selection cursor. It is not safe for concurrent use.
type Engine struct {
	store    *Store
	log      log.FieldLogger
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
	selected *Selection
}

func NewEngine(s *Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    s,
		log:      log.StandardLogger(),
		timeout:  DefaultTimeout,
		interval: DefaultPollInterval,
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Store() *Store { return e.store }

// SetTimeout sets the wait timeout and returns the previous one.
func (e *Engine) SetTimeout(d time.Duration) time.Duration {
	old := e.timeout
	e.timeout = d
	return old
}

// SetPollInterval sets the wait poll interval and returns the previous one.
func (e *Engine) SetPollInterval(d time.Duration) time.Duration {
	old := e.interval
	e.interval = d
	return old
}

func (e *Engine) Timeout() time.Duration      { return e.timeout }
func (e *Engine) PollInterval() time.Duration { return e.interval }

func find(snap *Snapshot, f Filter) []ipmi.SelRecord {
	var r []ipmi.SelRecord
	for _, rec := range snap.records {
		if f.Match(rec) {
			r = append(r, rec)
		}
	}
	return r
}

// Find returns the records matching f in device order.
func (e *Engine) Find(f Filter) ([]ipmi.SelRecord, error) {
	snap, err := e.store.Current()
	if err != nil {
		return nil, err
	}
	return find(snap, f), nil
}

func (e *Engine) Count(f Filter) (int, error) {
	r, err := e.Find(f)
	return len(r), err
}

func (e *Engine) CountTotal() (int, error) {
	snap, err := e.store.Current()
	if err != nil {
		return 0, err
	}
	return snap.Len(), nil
}

func (e *Engine) FindBySensorType(t ipmi.SensorType) ([]ipmi.SelRecord, error) {
	return e.Find(BySensorType(t))
}

func (e *Engine) FindBySensorNumber(n uint8) ([]ipmi.SelRecord, error) {
	return e.Find(BySensorNumber(n))
}

func (e *Engine) CountBySensorType(t ipmi.SensorType) (int, error) {
	return e.Count(BySensorType(t))
}

func (e *Engine) CountBySensorNumber(n uint8) (int, error) {
	return e.Count(BySensorNumber(n))
}

// Select selects the index-th record matching f. Index is 1-based; negative
// values count from the last match.
func (e *Engine) Select(f Filter, index int) (Selection, error) {
	if index == 0 {
		return Selection{}, errors.Wrap(ErrInvalidArgument, "index must not be zero")
	}
	snap, err := e.store.Current()
	if err != nil {
		return Selection{}, err
	}
	matches := find(snap, f)
	n := len(matches)
	if n == 0 {
		return Selection{}, errors.Wrapf(ErrNotFound, "no SEL record found with %v", f)
	}
	i := index - 1
	if index < 0 {
		i = n + index
	}
	if i < 0 || i >= n {
		return Selection{}, errors.Wrapf(ErrNotFound, "only %d SEL records found with %v", n, f)
	}
	return e.setSelection(snap, matches[i], i+1), nil
}

func (e *Engine) SelectBySensorType(t ipmi.SensorType, index int) (Selection, error) {
	return e.Select(BySensorType(t), index)
}

func (e *Engine) SelectBySensorNumber(n uint8, index int) (Selection, error) {
	return e.Select(BySensorNumber(n), index)
}

// SelectByRecordID selects the record with the given id.
func (e *Engine) SelectByRecordID(id ipmi.RecordID) (Selection, error) {
	snap, err := e.store.Current()
	if err != nil {
		return Selection{}, err
	}
	for i, r := range snap.records {
		if r.RecordID == id {
			return e.setSelection(snap, r, i), nil
		}
	}
	return Selection{}, errors.Wrapf(ErrNotFound, "no SEL record with id %d", id)
}

// SelectAtOffset selects the record at a 0-based offset into the snapshot.
func (e *Engine) SelectAtOffset(offset int) (Selection, error) {
	if offset < 0 {
		return Selection{}, errors.Wrapf(ErrInvalidArgument, "negative offset %d", offset)
	}
	snap, err := e.store.Current()
	if err != nil {
		return Selection{}, err
	}
	if offset >= snap.Len() {
		return Selection{}, errors.Wrapf(ErrNotFound, "offset %d beyond %d SEL records", offset, snap.Len())
	}
	return e.setSelection(snap, snap.records[offset], offset), nil
}

func (e *Engine) setSelection(snap *Snapshot, r ipmi.SelRecord, index int) Selection {
	s := Selection{Record: r, Index: index, SnapshotID: snap.ID}
	e.selected = &s
	e.log.Debugf("selected SEL record %d (index %d)", r.RecordID, index)
	return s
}

// Selected returns the selection if it still refers to the current snapshot.
func (e *Engine) Selected() (Selection, error) {
	if e.selected == nil {
		return Selection{}, ErrNoSelection
	}
	snap, err := e.store.Current()
	if err != nil || !uuid.Equal(snap.ID, e.selected.SnapshotID) {
		return Selection{}, ErrStaleSelection
	}
	return *e.selected, nil
}

func (e *Engine) ClearSelection() { e.selected = nil }
