/* archive.go: zstd compressed JSON line archives of SEL snapshots
 *
 * This software is open source software available under the BSD-3 license.
 * Copyright (c) 2021, Triad National Security, LLC
 * See LICENSE file for details.
 */

// Package archive persists SEL snapshots so they can be replayed later
// without a BMC.
//
// An archive is a zstd stream of JSON lines. The first line is a header:
//   {"format":"ipmisel-sel/1","snapshot":"<uuid>","fetched_at":"<rfc3339>","count":N}
// followed by N lines, one per record in device order:
//   {"record_id":2,"raw":"02000278563412200004010580a10101"}
package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/kraken-hpc/ipmisel/lib/sel"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/valyala/fastjson"
)

const Format = "ipmisel-sel/1"

var ErrInvalidHeader = errors.New("invalid SEL archive header")

var parsers fastjson.ParserPool

// Archive is the content of one archive.
type Archive struct {
	Snapshot  uuid.UUID
	FetchedAt time.Time
	// Records are the raw 16 byte records
	Records [][]byte
}

// Write writes snap to w.
func Write(w io.Writer, snap *sel.Snapshot) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	var a fastjson.Arena
	buf := make([]byte, 0, 128)

	h := a.NewObject()
	h.Set("format", a.NewString(Format))
	h.Set("snapshot", a.NewString(snap.ID.String()))
	h.Set("fetched_at", a.NewString(snap.FetchedAt.UTC().Format(time.RFC3339Nano)))
	h.Set("count", a.NewNumberInt(snap.Len()))
	buf = append(h.MarshalTo(buf), '\n')
	if _, err = enc.Write(buf); err != nil {
		enc.Close()
		return err
	}

	for i := 0; i < snap.Len(); i++ {
		a.Reset()
		r := snap.At(i)
		o := a.NewObject()
		o.Set("record_id", a.NewNumberInt(int(r.RecordID)))
		o.Set("raw", a.NewString(hex.EncodeToString(r.Raw())))
		buf = append(o.MarshalTo(buf[:0]), '\n')
		if _, err = enc.Write(buf); err != nil {
			enc.Close()
			return errors.Wrapf(err, "writing record %d", i)
		}
	}
	return enc.Close()
}

// WriteFile writes snap to a new file at path.
func WriteFile(path string, snap *sel.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err = Write(f, snap); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read reads an archive from r. Record payloads are not decoded here; that
// is left to the store.
func Read(r io.Reader) (*Archive, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	s := bufio.NewScanner(dec)
	if !s.Scan() {
		if err = s.Err(); err != nil {
			return nil, err
		}
		return nil, ErrInvalidHeader
	}
	ar, count, err := parseHeader(s.Bytes())
	if err != nil {
		return nil, err
	}
	ar.Records = make([][]byte, 0, count)
	line := 1
	for s.Scan() {
		line++
		if len(bytes.TrimSpace(s.Bytes())) == 0 {
			continue
		}
		b, err := parseRecord(s.Bytes())
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		ar.Records = append(ar.Records, b)
	}
	if err = s.Err(); err != nil {
		return nil, err
	}
	if len(ar.Records) != count {
		return nil, errors.Errorf("archive header promises %d records, found %d", count, len(ar.Records))
	}
	return ar, nil
}

// ReadFile reads the archive at path.
func ReadFile(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ar, err := Read(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return ar, nil
}

func parseHeader(b []byte) (*Archive, int, error) {
	p := parsers.Get()
	defer parsers.Put(p)
	v, err := p.ParseBytes(b)
	if err != nil {
		return nil, 0, errors.Wrap(ErrInvalidHeader, err.Error())
	}
	if string(v.GetStringBytes("format")) != Format {
		return nil, 0, errors.Wrapf(ErrInvalidHeader, "unknown format %q", v.GetStringBytes("format"))
	}
	ar := &Archive{}
	if ar.Snapshot, err = uuid.FromString(string(v.GetStringBytes("snapshot"))); err != nil {
		return nil, 0, errors.Wrap(ErrInvalidHeader, err.Error())
	}
	if ar.FetchedAt, err = time.Parse(time.RFC3339Nano, string(v.GetStringBytes("fetched_at"))); err != nil {
		return nil, 0, errors.Wrap(ErrInvalidHeader, err.Error())
	}
	count := v.GetInt("count")
	if count < 0 {
		return nil, 0, errors.Wrapf(ErrInvalidHeader, "bad count %d", count)
	}
	return ar, count, nil
}

func parseRecord(b []byte) ([]byte, error) {
	p := parsers.Get()
	defer parsers.Put(p)
	v, err := p.ParseBytes(b)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(string(v.GetStringBytes("raw")))
	if err != nil {
		return nil, errors.Wrapf(err, "record %d", v.GetUint("record_id"))
	}
	return raw, nil
}

// Provider replays an archive file through the store's binary path, so a
// corrupted record fails the fetch.
type Provider struct {
	Path string
}

func (p Provider) Fetch(ctx context.Context) (sel.Batch, error) {
	if err := ctx.Err(); err != nil {
		return sel.Batch{}, err
	}
	ar, err := ReadFile(p.Path)
	if err != nil {
		return sel.Batch{}, err
	}
	return sel.Batch{Records: ar.Records}, nil
}
