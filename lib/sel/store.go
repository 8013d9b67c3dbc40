/* store.go: fetching, decoding and caching snapshots of the SEL
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package sel

import (
	"context"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/kraken-hpc/ipmisel/lib/ipmi"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	log "github.com/sirupsen/logrus"
)

// EntryPrefix marks a record line in the output of `ipmitool sel list -vv`
const EntryPrefix = "SEL Entry: "

// Batch is the raw result of reading a SEL. A provider fills exactly one of
// Records (16 byte binary records) or Lines (text output to scan).
type Batch struct {
	Records [][]byte
	Lines   []string
}

// A Provider reads the whole SEL from somewhere.
type Provider interface {
	Fetch(ctx context.Context) (Batch, error)
}

// ProviderFunc adapts a function to a Provider
type ProviderFunc func(ctx context.Context) (Batch, error)

func (f ProviderFunc) Fetch(ctx context.Context) (Batch, error) { return f(ctx) }

// Snapshot is an immutable, ordered view of the SEL from one fetch.
type Snapshot struct {
	ID        uuid.UUID
	FetchedAt time.Time
	records   []ipmi.SelRecord
}

// NewSnapshot wraps records in a new snapshot with a fresh ID.
func NewSnapshot(records []ipmi.SelRecord, fetchedAt time.Time) *Snapshot {
	r := make([]ipmi.SelRecord, len(records))
	copy(r, records)
	return &Snapshot{
		ID:        uuid.NewV4(),
		FetchedAt: fetchedAt,
		records:   r,
	}
}

func (s *Snapshot) Len() int { return len(s.records) }

func (s *Snapshot) At(i int) ipmi.SelRecord { return s.records[i] }

// Records returns a copy of the records in device order.
func (s *Snapshot) Records() []ipmi.SelRecord {
	r := make([]ipmi.SelRecord, len(s.records))
	copy(r, s.records)
	return r
}

// StoreOption configures a Store
type StoreOption func(*Store)

func WithLogger(l log.FieldLogger) StoreOption {
	return func(s *Store) { s.log = l }
}

func WithPrefetch(p bool) StoreOption {
	return func(s *Store) { s.prefetch = p }
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// Store holds the current snapshot for one connection. It is not safe for
// concurrent use.
type Store struct {
	provider Provider
	log      log.FieldLogger
	prefetch bool
	now      func() time.Time
	snap     *Snapshot
}

func NewStore(p Provider, opts ...StoreOption) *Store {
	s := &Store{
		provider: p,
		log:      log.StandardLogger(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Fetch always reads the SEL from the provider. On error the previous
// snapshot is kept.
func (s *Store) Fetch(ctx context.Context) (*Snapshot, error) {
	b, err := s.provider.Fetch(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetching SEL")
	}
	var records []ipmi.SelRecord
	if b.Records != nil {
		if records, err = s.decodeRecords(b.Records); err != nil {
			return nil, err
		}
	} else {
		records = s.decodeLines(b.Lines)
	}
	snap := NewSnapshot(records, s.now())
	s.snap = snap
	s.log.WithField("snapshot", snap.ID).Debugf("parsed SEL records (%d)", len(records))
	s.trace(records)
	return snap, nil
}

func (s *Store) trace(records []ipmi.SelRecord) {
	var l *log.Logger
	switch v := s.log.(type) {
	case *log.Logger:
		l = v
	case *log.Entry:
		l = v.Logger
	default:
		return
	}
	if !l.IsLevelEnabled(log.TraceLevel) {
		return
	}
	t := s.log.(log.Ext1FieldLogger)
	for _, r := range records {
		t.Tracef("%s", spew.Sdump(r))
	}
}

func (s *Store) decodeRecords(raw [][]byte) ([]ipmi.SelRecord, error) {
	records := make([]ipmi.SelRecord, 0, len(raw))
	for i, b := range raw {
		r, err := ipmi.Decode(b)
		if err != nil {
			return nil, errors.Wrapf(err, "SEL record %d", i)
		}
		records = append(records, r)
	}
	return records, nil
}

func (s *Store) decodeLines(lines []string) []ipmi.SelRecord {
	var records []ipmi.SelRecord
	for n, line := range lines {
		if !strings.HasPrefix(line, EntryPrefix) {
			continue
		}
		r, err := ipmi.DecodeHex(strings.TrimSpace(line[len(EntryPrefix):]))
		if err != nil {
			s.log.WithField("line", n+1).Warnf("skipping SEL entry: %v", err)
			continue
		}
		records = append(records, r)
	}
	return records
}

// CachedOrFetch returns the current snapshot if prefetching is enabled and a
// snapshot exists, and fetches otherwise.
func (s *Store) CachedOrFetch(ctx context.Context) (*Snapshot, error) {
	if s.prefetch && s.snap != nil {
		return s.snap, nil
	}
	return s.Fetch(ctx)
}

// Prefetch enables caching and fetches the SEL.
func (s *Store) Prefetch(ctx context.Context) (*Snapshot, error) {
	s.prefetch = true
	return s.Fetch(ctx)
}

func (s *Store) Prefetching() bool { return s.prefetch }

// Invalidate drops the current snapshot. Any selection into it becomes stale.
func (s *Store) Invalidate() { s.snap = nil }

func (s *Store) Current() (*Snapshot, error) {
	if s.snap == nil {
		return nil, ErrNotFetched
	}
	return s.snap, nil
}

// Size is the number of records in the current snapshot, or 0.
func (s *Store) Size() int {
	if s.snap == nil {
		return 0
	}
	return s.snap.Len()
}

// Records returns the records of the current snapshot, or nil.
func (s *Store) Records() []ipmi.SelRecord {
	if s.snap == nil {
		return nil
	}
	return s.snap.Records()
}
