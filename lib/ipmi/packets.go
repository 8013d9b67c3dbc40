package ipmi

import "encoding/binary"

// IPMI message payloads are little endian
var packer = Packer{ByteOrder: binary.LittleEndian}

// DefaultPacker returns the little endian packer used for IPMI payloads.
func DefaultPacker() Packer { return packer }

// RecordID identifies a SEL entry.
type RecordID uint16

// GetSELInfoRsp is the response data of Get SEL Info (31.2)
type GetSELInfoRsp struct {
	Version          uint8  `pack:""`
	Entries          uint16 `pack:""`
	FreeSpace        uint16 `pack:""`
	LastAddition     uint32 `pack:""`
	LastErase        uint32 `pack:""`
	OperationSupport uint8  `pack:""`
}

// ReserveSELRsp is the response data of Reserve SEL (31.4)
type ReserveSELRsp struct {
	ReservationID uint16 `pack:""`
}

// GetSELEntryReq is the request data of Get SEL Entry (31.5).
// ReservationID may be zero when reading whole records from offset 0.
type GetSELEntryReq struct {
	ReservationID uint16   `pack:""`
	RecordID      RecordID `pack:""`
	Offset        uint8    `pack:""`
	Length        uint8    `pack:""`
}

// GetSELEntryRsp carries the next record id followed by the record bytes.
type GetSELEntryRsp struct {
	Next RecordID `pack:""`
	Data []byte   `pack:"fill=0"`
}

// selRecordLayout is the on-wire layout of a system event record
type selRecordLayout struct {
	RecordID     uint16  `pack:""`
	RecordType   uint8   `pack:""`
	Timestamp    uint32  `pack:""`
	Originator   uint8   `pack:""`
	ChannelLUN   uint8   `pack:""`
	EvMRev       uint8   `pack:""`
	SensorType   uint8   `pack:""`
	SensorNumber uint8   `pack:""`
	EventDirType uint8   `pack:""`
	EventData    [3]byte `pack:""`
}
