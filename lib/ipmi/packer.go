package ipmi

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Packer packs and unpacks structs according to their `pack:""` tags.
//
// Recognised flags:
//   zeros      - field is reserved; skipped on unpack, written as zeros on pack
//   fill=N     - byte slice consumes the remainder of the buffer, adjusted by N
//   len=Field  - uint8 holds the byte length of Field (pack only)
//   cksum2     - uint8 holds the 2's complement checksum of all preceding bytes
type Packer struct {
	ByteOrder binary.ByteOrder
	// Log receives checksum warnings; defaults to the logrus standard logger
	Log log.FieldLogger
}

func (p Packer) logger() log.FieldLogger {
	if p.Log == nil {
		return log.StandardLogger()
	}
	return p.Log
}

func (p Packer) parseArgs(args string) map[string]string {
	r := make(map[string]string)
	for _, arg := range strings.Split(args, ",") {
		if strings.TrimSpace(arg) == "" {
			continue
		}
		pair := strings.SplitN(arg, "=", 2)
		if len(pair) == 2 {
			r[strings.TrimSpace(pair[0])] = strings.TrimSpace(pair[1])
		} else {
			r[strings.TrimSpace(pair[0])] = ""
		}
	}
	return r
}

// Cksum2 is the IPMI 2's complement checksum
func (p Packer) Cksum2(buf []byte) uint8 {
	var c uint8
	for _, b := range buf {
		c += b
	}
	return -c
}

// Size returns the packed size of a struct with only fixed-size fields.
func (p Packer) Size(packet interface{}) (int, error) {
	st := reflect.Indirect(reflect.ValueOf(packet)).Type()
	if st.Kind() != reflect.Struct {
		return 0, fmt.Errorf("not a struct: %v", st)
	}
	n := 0
	for i := 0; i < st.NumField(); i++ {
		ft := st.Field(i)
		if _, ok := ft.Tag.Lookup("pack"); !ok {
			continue
		}
		switch ft.Type.Kind() {
		case reflect.Array:
			n += ft.Type.Len()
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			n += int(ft.Type.Size())
		default:
			return 0, fmt.Errorf("field %s has no fixed size", ft.Name)
		}
	}
	return n, nil
}

// Pack serializes packet (a struct or pointer to struct) into a new buffer.
func (p Packer) Pack(packet interface{}) ([]byte, error) {
	sv := reflect.Indirect(reflect.ValueOf(packet))
	st := sv.Type()
	if st.Kind() != reflect.Struct {
		return nil, fmt.Errorf("not a struct: %v", st)
	}
	var buf []byte
	for i := 0; i < st.NumField(); i++ {
		ft := st.Field(i)
		fv := sv.Field(i)
		flagStr, ok := ft.Tag.Lookup("pack")
		if !ok {
			continue
		}
		flags := p.parseArgs(flagStr)
		_, zeros := flags["zeros"]

		switch ft.Type.Kind() {
		case reflect.Array, reflect.Slice:
			if ft.Type.Elem().Kind() != reflect.Uint8 {
				return nil, fmt.Errorf("field %s: arrays must be of bytes", ft.Name)
			}
			n := fv.Len()
			if zeros {
				buf = append(buf, make([]byte, n)...)
				continue
			}
			for j := 0; j < n; j++ {
				buf = append(buf, uint8(fv.Index(j).Uint()))
			}
		case reflect.Uint8:
			v := uint8(fv.Uint())
			if _, ok := flags["cksum2"]; ok {
				v = p.Cksum2(buf)
			}
			if ref, ok := flags["len"]; ok {
				refv := sv.FieldByName(ref)
				if refv.IsValid() && (refv.Kind() == reflect.Array || refv.Kind() == reflect.Slice) {
					v = uint8(refv.Len() * int(refv.Type().Elem().Size()))
				}
			}
			if zeros {
				v = 0
			}
			buf = append(buf, v)
		case reflect.Uint16:
			b := make([]byte, 2)
			if !zeros {
				p.ByteOrder.PutUint16(b, uint16(fv.Uint()))
			}
			buf = append(buf, b...)
		case reflect.Uint32:
			b := make([]byte, 4)
			if !zeros {
				p.ByteOrder.PutUint32(b, uint32(fv.Uint()))
			}
			buf = append(buf, b...)
		case reflect.Uint64:
			b := make([]byte, 8)
			if !zeros {
				p.ByteOrder.PutUint64(b, fv.Uint())
			}
			buf = append(buf, b...)
		default:
			return nil, fmt.Errorf("field %s: unhandled kind: %v", ft.Name, ft.Type.Kind())
		}
	}
	return buf, nil
}

// Unpack fills packet (a pointer to struct) from b. It fails rather than
// reading past the end of b.
func (p Packer) Unpack(b []byte, packet interface{}) error {
	sv := reflect.Indirect(reflect.ValueOf(packet))
	st := sv.Type()
	if st.Kind() != reflect.Struct {
		return fmt.Errorf("not a struct: %v", st)
	}
	last := 0
	need := func(name string, n int) error {
		if n < 0 || last+n > len(b) {
			return errors.Errorf("short buffer unpacking %s.%s: need %d bytes at offset %d, have %d",
				st.Name(), name, n, last, len(b))
		}
		return nil
	}
	for i := 0; i < st.NumField(); i++ {
		ft := st.Field(i)
		fv := sv.Field(i)
		flagStr, ok := ft.Tag.Lookup("pack")
		if !ok {
			continue
		}
		flags := p.parseArgs(flagStr)
		_, zeros := flags["zeros"]
		set := !zeros && fv.CanSet()

		switch ft.Type.Kind() {
		case reflect.Array:
			if ft.Type.Elem().Kind() != reflect.Uint8 {
				return fmt.Errorf("field %s: arrays must be of bytes", ft.Name)
			}
			n := ft.Type.Len()
			if err := need(ft.Name, n); err != nil {
				return err
			}
			if set {
				reflect.Copy(fv, reflect.ValueOf(b[last:last+n]))
			}
			last += n
		case reflect.Slice:
			if ft.Type.Elem().Kind() != reflect.Uint8 {
				return fmt.Errorf("field %s: arrays must be of bytes", ft.Name)
			}
			n := len(b) - last
			if offStr, ok := flags["fill"]; ok {
				off, err := strconv.Atoi(offStr)
				if err != nil {
					return errors.Wrapf(err, "field %s: bad fill", ft.Name)
				}
				n += off
			}
			if err := need(ft.Name, n); err != nil {
				return err
			}
			if set {
				data := make([]byte, n)
				copy(data, b[last:last+n])
				fv.SetBytes(data)
			}
			last += n
		case reflect.Uint8:
			if err := need(ft.Name, 1); err != nil {
				return err
			}
			if _, ok := flags["cksum2"]; ok {
				if ck := p.Cksum2(b[0:last]); ck != b[last] {
					p.logger().Warnf("checksum mismatch in %s: %x != %x", st.Name(), ck, b[last])
				}
			}
			if set {
				fv.SetUint(uint64(b[last]))
			}
			last++
		case reflect.Uint16:
			if err := need(ft.Name, 2); err != nil {
				return err
			}
			if set {
				fv.SetUint(uint64(p.ByteOrder.Uint16(b[last:])))
			}
			last += 2
		case reflect.Uint32:
			if err := need(ft.Name, 4); err != nil {
				return err
			}
			if set {
				fv.SetUint(uint64(p.ByteOrder.Uint32(b[last:])))
			}
			last += 4
		case reflect.Uint64:
			if err := need(ft.Name, 8); err != nil {
				return err
			}
			if set {
				fv.SetUint(p.ByteOrder.Uint64(b[last:]))
			}
			last += 8
		default:
			return fmt.Errorf("field %s: unhandled kind: %v", ft.Name, ft.Type.Kind())
		}
	}
	return nil
}
