/* provider.go: SEL providers backed by ipmitool
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

package ipmitool

import (
	"context"
	"errors"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/kraken-hpc/ipmisel/lib/ipmi"
	"github.com/kraken-hpc/ipmisel/lib/sel"
	pkgerrors "github.com/pkg/errors"
)

var errSELModified = errors.New("the SEL was modified during enumeration")

// ListProvider reads the SEL with `sel list -vv` and leaves the record
// lines to the store's text path.
type ListProvider struct {
	Client *Client
}

func (p ListProvider) Fetch(ctx context.Context) (sel.Batch, error) {
	out, err := p.Client.Run(ctx, "sel", "list", "-vv")
	if err != nil {
		return sel.Batch{}, err
	}
	return sel.Batch{Lines: strings.Split(string(out), "\n")}, nil
}

// RawProvider walks the SEL with Get SEL Entry raw commands and returns
// the binary records. The walk is retried if the SEL changes underneath it.
type RawProvider struct {
	Client *Client
	// BackOff paces retries; defaults to three exponential retries
	BackOff func() backoff.BackOff
}

func (p RawProvider) backOff() backoff.BackOff {
	if p.BackOff != nil {
		return p.BackOff()
	}
	return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
}

func retryable(err error) bool {
	if errors.Is(err, errSELModified) {
		return true
	}
	var cc ipmi.CompletionCode
	if errors.As(err, &cc) {
		return uint8(cc) == ipmi.IPMICmpReservationCancel || uint8(cc) == ipmi.IPMICmpBusy
	}
	return false
}

func (p RawProvider) Fetch(ctx context.Context) (sel.Batch, error) {
	var records [][]byte
	err := backoff.Retry(func() error {
		r, err := p.walk(ctx)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		if err != nil {
			p.Client.logger().Warnf("retrying SEL walk: %v", err)
			return err
		}
		records = r
		return nil
	}, backoff.WithContext(p.backOff(), ctx))
	if err != nil {
		return sel.Batch{}, err
	}
	return sel.Batch{Records: records}, nil
}

func (p RawProvider) info(ctx context.Context) (ipmi.GetSELInfoRsp, error) {
	rsp := ipmi.GetSELInfoRsp{}
	b, err := p.Client.Raw(ctx, ipmi.IPMIFnStorageReq, ipmi.IPMICmdGetSELInfo)
	if err != nil {
		return rsp, err
	}
	if err = ipmi.DefaultPacker().Unpack(b, &rsp); err != nil {
		return rsp, pkgerrors.Wrap(err, "Get SEL Info")
	}
	return rsp, nil
}

func (p RawProvider) reserve(ctx context.Context) (uint16, error) {
	b, err := p.Client.Raw(ctx, ipmi.IPMIFnStorageReq, ipmi.IPMICmdReserveSEL)
	var cc ipmi.CompletionCode
	if errors.As(err, &cc) && uint8(cc) == ipmi.IPMICmpInvalid {
		// reservations are optional; 0 is accepted when reading whole records
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	rsp := ipmi.ReserveSELRsp{}
	if err = ipmi.DefaultPacker().Unpack(b, &rsp); err != nil {
		return 0, pkgerrors.Wrap(err, "Reserve SEL")
	}
	return rsp.ReservationID, nil
}

func (p RawProvider) walk(ctx context.Context) ([][]byte, error) {
	before, err := p.info(ctx)
	if err != nil {
		return nil, err
	}
	records := [][]byte{}
	if before.Entries == 0 {
		return records, nil
	}
	resv, err := p.reserve(ctx)
	if err != nil {
		return nil, err
	}
	packer := ipmi.DefaultPacker()
	id := ipmi.SELRecordIDFirst
	for {
		req, err := packer.Pack(&ipmi.GetSELEntryReq{
			ReservationID: resv,
			RecordID:      id,
			Length:        ipmi.SELReadEntireRecord,
		})
		if err != nil {
			return nil, err
		}
		b, err := p.Client.Raw(ctx, ipmi.IPMIFnStorageReq, ipmi.IPMICmdGetSELEntry, req...)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "Get SEL Entry %#04x", uint16(id))
		}
		rsp := ipmi.GetSELEntryRsp{}
		if err = packer.Unpack(b, &rsp); err != nil {
			return nil, pkgerrors.Wrapf(err, "Get SEL Entry %#04x", uint16(id))
		}
		records = append(records, rsp.Data)
		if rsp.Next == ipmi.SELRecordIDLast {
			break
		}
		if rsp.Next == id || len(records) > int(before.Entries) {
			// a looping next-id chain means the SEL changed or the BMC is confused
			return nil, errSELModified
		}
		id = rsp.Next
	}
	after, err := p.info(ctx)
	if err != nil {
		return nil, err
	}
	if after.LastAddition != before.LastAddition || after.LastErase != before.LastErase {
		return nil, errSELModified
	}
	return records, nil
}
