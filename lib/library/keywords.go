/* keywords.go: SEL keywords against the active connection
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package library

import (
	"context"
	"strings"

	"github.com/kraken-hpc/ipmisel/lib/ipmi"
	"github.com/kraken-hpc/ipmisel/lib/mapping"
	"github.com/kraken-hpc/ipmisel/lib/sel"
	"github.com/kraken-hpc/ipmisel/lib/util"
	"github.com/pkg/errors"
)

func parseInt(what, s string) (int, error) {
	v, err := util.IntAnyBase(s)
	if err != nil {
		return 0, errors.Wrapf(sel.ErrInvalidArgument, "%s: %v", what, err)
	}
	return int(v), nil
}

func parseUint8(what, s string) (uint8, error) {
	v, err := util.Uint8AnyBase(s)
	if err != nil {
		return 0, errors.Wrapf(sel.ErrInvalidArgument, "%s: %v", what, err)
	}
	return v, nil
}

// parseIndex treats an empty index as the first match
func parseIndex(s string) (int, error) {
	if strings.TrimSpace(s) == "" {
		return 1, nil
	}
	return parseInt("index", s)
}

func (lib *Library) engine() (*sel.Engine, error) {
	c, err := lib.Active()
	if err != nil {
		return nil, err
	}
	return c.Engine, nil
}

// FetchSEL reads the SEL of the active connection, or returns the cached
// snapshot when prefetching. It returns the number of records.
func (lib *Library) FetchSEL(ctx context.Context) (int, error) {
	c, err := lib.Active()
	if err != nil {
		return 0, err
	}
	snap, err := c.Store.CachedOrFetch(ctx)
	if err != nil {
		return 0, err
	}
	return snap.Len(), nil
}

// PrefetchSEL fetches the SEL and keeps serving it from cache until
// InvalidateSEL.
func (lib *Library) PrefetchSEL(ctx context.Context) (int, error) {
	c, err := lib.Active()
	if err != nil {
		return 0, err
	}
	snap, err := c.Store.Prefetch(ctx)
	if err != nil {
		return 0, err
	}
	return snap.Len(), nil
}

func (lib *Library) InvalidateSEL() error {
	c, err := lib.Active()
	if err != nil {
		return err
	}
	c.Store.Invalidate()
	return nil
}

// ClearSEL erases the SEL on the controller and drops the snapshot.
func (lib *Library) ClearSEL(ctx context.Context) error {
	c, err := lib.Active()
	if err != nil {
		return err
	}
	if c.Client == nil {
		return errors.Wrapf(sel.ErrInvalidArgument, "connection %q is read-only", c.Alias)
	}
	if err = c.Client.ClearSEL(ctx); err != nil {
		return err
	}
	c.Store.Invalidate()
	return nil
}

// LogSEL reads the SEL and logs every record without touching the snapshot.
func (lib *Library) LogSEL(ctx context.Context) error {
	c, err := lib.Active()
	if err != nil {
		return err
	}
	snap, err := sel.NewStore(c.Provider, sel.WithLogger(c.log)).Fetch(ctx)
	if err != nil {
		return err
	}
	for _, r := range snap.Records() {
		c.log.Infof("SEL dump:\n%s", r)
	}
	return nil
}

func (lib *Library) SELShouldContainXEntries(count string) error {
	e, err := lib.engine()
	if err != nil {
		return err
	}
	n, err := parseInt("count", count)
	if err != nil {
		return err
	}
	return e.ShouldContainEntries(n)
}

func (lib *Library) SELShouldContainXTimesSensorType(sensorType, count string) error {
	e, err := lib.engine()
	if err != nil {
		return err
	}
	t, err := mapping.FindSensorType(sensorType)
	if err != nil {
		return err
	}
	n, err := parseInt("count", count)
	if err != nil {
		return err
	}
	return e.ShouldContainSensorTypeTimes(t, n)
}

func (lib *Library) SELShouldNotContainSensorType(sensorType string) error {
	e, err := lib.engine()
	if err != nil {
		return err
	}
	t, err := mapping.FindSensorType(sensorType)
	if err != nil {
		return err
	}
	return e.ShouldNotContainSensorType(t)
}

// WaitUntilSELContainsXTimesSensorType polls the SEL until it holds at
// least count records of the sensor type and selects the first of them.
func (lib *Library) WaitUntilSELContainsXTimesSensorType(ctx context.Context, count, sensorType string) (sel.Selection, error) {
	e, err := lib.engine()
	if err != nil {
		return sel.Selection{}, err
	}
	n, err := parseInt("count", count)
	if err != nil {
		return sel.Selection{}, err
	}
	t, err := mapping.FindSensorType(sensorType)
	if err != nil {
		return sel.Selection{}, err
	}
	return e.WaitForSensorType(ctx, t, n)
}

func (lib *Library) WaitUntilSELContainsXTimesSensorNumber(ctx context.Context, count, number string) (sel.Selection, error) {
	e, err := lib.engine()
	if err != nil {
		return sel.Selection{}, err
	}
	n, err := parseInt("count", count)
	if err != nil {
		return sel.Selection{}, err
	}
	num, err := parseUint8("sensor number", number)
	if err != nil {
		return sel.Selection{}, err
	}
	return e.WaitForSensorNumber(ctx, num, n)
}

func (lib *Library) WaitUntilSELContainsSensorType(ctx context.Context, sensorType string) (sel.Selection, error) {
	return lib.WaitUntilSELContainsXTimesSensorType(ctx, "1", sensorType)
}

// SelectSELRecordBySensorType selects the index-th record (1-based, negative
// from the end, empty for the first) with the sensor type.
func (lib *Library) SelectSELRecordBySensorType(sensorType, index string) (sel.Selection, error) {
	e, err := lib.engine()
	if err != nil {
		return sel.Selection{}, err
	}
	t, err := mapping.FindSensorType(sensorType)
	if err != nil {
		return sel.Selection{}, err
	}
	i, err := parseIndex(index)
	if err != nil {
		return sel.Selection{}, err
	}
	return e.SelectBySensorType(t, i)
}

func (lib *Library) SelectSELRecordBySensorNumber(number, index string) (sel.Selection, error) {
	e, err := lib.engine()
	if err != nil {
		return sel.Selection{}, err
	}
	n, err := parseUint8("sensor number", number)
	if err != nil {
		return sel.Selection{}, err
	}
	i, err := parseIndex(index)
	if err != nil {
		return sel.Selection{}, err
	}
	return e.SelectBySensorNumber(n, i)
}

func (lib *Library) SelectSELRecordByRecordID(id string) (sel.Selection, error) {
	e, err := lib.engine()
	if err != nil {
		return sel.Selection{}, err
	}
	v, err := parseInt("record id", id)
	if err != nil {
		return sel.Selection{}, err
	}
	if v < 0 || v > 0xffff {
		return sel.Selection{}, errors.Wrapf(sel.ErrInvalidArgument, "record id %d out of range", v)
	}
	return e.SelectByRecordID(ipmi.RecordID(v))
}

func (lib *Library) SelectSELRecordAtOffset(offset string) (sel.Selection, error) {
	e, err := lib.engine()
	if err != nil {
		return sel.Selection{}, err
	}
	o, err := parseInt("offset", offset)
	if err != nil {
		return sel.Selection{}, err
	}
	return e.SelectAtOffset(o)
}

// SelectedSELRecordsEventDataShouldBeEqual compares the event data of the
// selected record under mask (empty for all 24 bits).
func (lib *Library) SelectedSELRecordsEventDataShouldBeEqual(expected, mask string) error {
	e, err := lib.engine()
	if err != nil {
		return err
	}
	want, err := parseInt("expected value", expected)
	if err != nil {
		return err
	}
	m := int(sel.EventDataMask)
	if strings.TrimSpace(mask) != "" {
		if m, err = parseInt("mask", mask); err != nil {
			return err
		}
	}
	return e.EventDataEquals(uint32(want), uint32(m))
}

func (lib *Library) SelectedSELRecordsEventDirectionShouldBe(direction string) error {
	e, err := lib.engine()
	if err != nil {
		return err
	}
	d, err := mapping.FindEventDirection(direction)
	if err != nil {
		return err
	}
	return e.EventDirectionEquals(d)
}

func (lib *Library) SelectedSELRecordShouldBeFromSensorNumber(number string) error {
	e, err := lib.engine()
	if err != nil {
		return err
	}
	n, err := parseUint8("sensor number", number)
	if err != nil {
		return err
	}
	return e.IsFromSensorNumber(n)
}

func (lib *Library) SelectedSELRecordShouldBeFromSensorType(sensorType string) error {
	e, err := lib.engine()
	if err != nil {
		return err
	}
	t, err := mapping.FindSensorType(sensorType)
	if err != nil {
		return err
	}
	return e.IsFromSensorType(t)
}

// SetTimeout sets the wait timeout of every connection, e.g. "2 minutes 30
// seconds", and returns the old one in the same format.
func (lib *Library) SetTimeout(timeout string) (string, error) {
	d, err := util.ParseTimestr(timeout)
	if err != nil {
		return "", errors.Wrapf(sel.ErrInvalidArgument, "timeout: %v", err)
	}
	old := lib.timeout
	lib.timeout = d
	for _, c := range lib.conns {
		if c != nil {
			c.Engine.SetTimeout(d)
		}
	}
	return util.FormatTimestr(old), nil
}

func (lib *Library) SetPollInterval(interval string) (string, error) {
	d, err := util.ParseTimestr(interval)
	if err != nil {
		return "", errors.Wrapf(sel.ErrInvalidArgument, "poll interval: %v", err)
	}
	old := lib.interval
	lib.interval = d
	for _, c := range lib.conns {
		if c != nil {
			c.Engine.SetPollInterval(d)
		}
	}
	return util.FormatTimestr(old), nil
}
