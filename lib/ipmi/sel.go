package ipmi

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// LayerTypeSELRecord is the gopacket layer type of a system event record.
var LayerTypeSELRecord = gopacket.RegisterLayerType(
	2000,
	gopacket.LayerTypeMetadata{
		Name:    "SELRecord",
		Decoder: gopacket.DecodeFunc(decodeSELRecord),
	},
)

func decodeSELRecord(data []byte, p gopacket.PacketBuilder) error {
	r := &SelRecord{}
	if err := r.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(r)
	return nil
}

// SelRecord is a decoded system event record (section 32.1 of IPMI v2.0).
// Only records of type 0x02 with an IPMI v1.5 event message are decoded.
type SelRecord struct {
	layers.BaseLayer

	RecordID   RecordID
	RecordType uint8
	// Timestamp is seconds since the epoch according to the device clock
	Timestamp  uint32
	Originator Originator
	Channel    uint8
	LUN        uint8
	EvMRev     uint8

	SensorType     SensorType
	SensorNumber   uint8
	EventDirection EventDirection

	// EventType is the whole event dir/type byte, direction bit included.
	EventType uint8

	// EventData is event data 1-3 packed as d1<<16 | d2<<8 | d3
	EventData uint32
}

// Decode parses one 16 byte SEL record.
func Decode(b []byte) (SelRecord, error) {
	r := SelRecord{}
	if err := r.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
		return SelRecord{}, err
	}
	return r, nil
}

// DecodeHex parses a SEL record from its hex representation, as printed by
// `ipmitool sel list -vv`. Whitespace between bytes is ignored.
func DecodeHex(s string) (SelRecord, error) {
	h := strings.Join(strings.Fields(s), "")
	b, err := hex.DecodeString(h)
	if err != nil {
		return SelRecord{}, &DecodeError{Kind: TruncatedInput, Value: len(h) / 2, Err: err}
	}
	return Decode(b)
}

func (*SelRecord) LayerType() gopacket.LayerType {
	return LayerTypeSELRecord
}

func (r *SelRecord) CanDecode() gopacket.LayerClass {
	return r.LayerType()
}

func (*SelRecord) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypeZero
}

// DecodeFromBytes decodes data into r. On error r is left unmodified.
func (r *SelRecord) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) != SELRecordLength {
		if len(data) < SELRecordLength {
			df.SetTruncated()
		}
		return &DecodeError{Kind: TruncatedInput, Value: len(data)}
	}
	l := selRecordLayout{}
	if err := packer.Unpack(data, &l); err != nil {
		return &DecodeError{Kind: TruncatedInput, Value: len(data), Err: err}
	}
	if l.RecordType != SELRecordTypeSystemEvent {
		return &DecodeError{Kind: UnsupportedRecordType, Value: int(l.RecordType)}
	}
	if l.EvMRev != SELEvMRevIPMI15 {
		return &DecodeError{Kind: UnsupportedEventFormat, Value: int(l.EvMRev)}
	}

	contents := make([]byte, SELRecordLength)
	copy(contents, data)
	*r = SelRecord{
		BaseLayer:  layers.BaseLayer{Contents: contents},
		RecordID:   RecordID(l.RecordID),
		RecordType: l.RecordType,
		Timestamp:  l.Timestamp,
		Originator: Originator{
			Kind: OriginatorSoftwareID,
			ID:   (l.Originator >> 1) & 0x3f,
		},
		Channel:        (l.ChannelLUN >> 4) & 0x0f,
		LUN:            l.ChannelLUN & 0x03,
		EvMRev:         l.EvMRev,
		SensorType:     SensorType(l.SensorType),
		SensorNumber:   l.SensorNumber,
		EventDirection: EventDirection((l.EventDirType >> 7) & 0x01),
		EventType:      l.EventDirType,
		EventData:      uint32(l.EventData[0])<<16 | uint32(l.EventData[1])<<8 | uint32(l.EventData[2]),
	}
	if l.Originator&0x01 != 0 {
		r.Originator.Kind = OriginatorSlaveAddress
	}
	return nil
}

// SerializeTo writes the record in its 16 byte wire format.
func (r *SelRecord) SerializeTo(b gopacket.SerializeBuffer, _ gopacket.SerializeOptions) error {
	d := r.EventDataBytes()
	raw, err := packer.Pack(&selRecordLayout{
		RecordID:     uint16(r.RecordID),
		RecordType:   r.RecordType,
		Timestamp:    r.Timestamp,
		Originator:   r.Originator.encode(),
		ChannelLUN:   (r.Channel&0x0f)<<4 | r.LUN&0x03,
		EvMRev:       r.EvMRev,
		SensorType:   uint8(r.SensorType),
		SensorNumber: r.SensorNumber,
		EventDirType: r.EventType,
		EventData:    d,
	})
	if err != nil {
		return err
	}
	bytes, err := b.PrependBytes(len(raw))
	if err != nil {
		return err
	}
	copy(bytes, raw)
	return nil
}

// Encode returns the 16 byte wire format of the record. Bit 7 of the
// originator byte and bits 2-3 of the channel/LUN byte are not retained by
// decoding and are written as zero.
func (r SelRecord) Encode() []byte {
	buf := gopacket.NewSerializeBuffer()
	if err := r.SerializeTo(buf, gopacket.SerializeOptions{}); err != nil {
		return nil
	}
	return buf.Bytes()
}

// Raw returns the bytes the record was decoded from, reserved bits
// included. Records built by hand have no contents and are encoded instead.
func (r SelRecord) Raw() []byte {
	if len(r.Contents) == SELRecordLength {
		raw := make([]byte, SELRecordLength)
		copy(raw, r.Contents)
		return raw
	}
	return r.Encode()
}

// EventDataBytes returns event data 1-3 as discrete bytes.
func (r SelRecord) EventDataBytes() [3]byte {
	return [3]byte{
		uint8(r.EventData >> 16),
		uint8(r.EventData >> 8),
		uint8(r.EventData),
	}
}

// ReadingType is the event/reading type code without the direction bit.
func (r SelRecord) ReadingType() uint8 {
	return r.EventType & 0x7f
}

// Time converts the device timestamp, which carries no timezone.
func (r SelRecord) Time() time.Time {
	return time.Unix(int64(r.Timestamp), 0).UTC()
}

func (r SelRecord) String() string {
	s := []string{
		fmt.Sprintf("SEL Record ID %d", r.RecordID),
		fmt.Sprintf("  Type %d", r.RecordType),
		fmt.Sprintf("  Timestamp %d", r.Timestamp),
		fmt.Sprintf("  %v", r.Originator),
		fmt.Sprintf("  Channel Number %d", r.Channel),
		fmt.Sprintf("  IPMB device lun %d", r.LUN),
		fmt.Sprintf("  EvM rev %d", r.EvMRev),
		fmt.Sprintf("  Sensor Type %v", r.SensorType),
		fmt.Sprintf("  Sensor Number %d", r.SensorNumber),
		fmt.Sprintf("  Event Direction %v", r.EventDirection),
		fmt.Sprintf("  Event Type 0x%02x", r.EventType),
		fmt.Sprintf("  Event Data 0x%06x", r.EventData),
	}
	return strings.Join(s, "\n")
}
