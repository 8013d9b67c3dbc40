package ipmi

import "fmt"

// IPMI NetFn codes
const (
	IPMIFnChassisReq   uint8 = 0x00
	IPMIFnChassisRes   uint8 = 0x01
	IPMIFnBridgeReq    uint8 = 0x02
	IPMIFnBridgeRes    uint8 = 0x03
	IPMIFnSensorReq    uint8 = 0x04
	IPMIFnSensorRes    uint8 = 0x05
	IPMIFnAppReq       uint8 = 0x06
	IPMIFnAppRes       uint8 = 0x07
	IPMIFnFirmwareReq  uint8 = 0x08
	IPMIFnFirmwareRes  uint8 = 0x09
	IPMIFnStorageReq   uint8 = 0x0a
	IPMIFnStorageRes   uint8 = 0x0b
	IPMIFnTransportReq uint8 = 0x0c
	IPMIFnTransportRes uint8 = 0x0d
	IPMIFnGroupReq     uint8 = 0x2c
	IPMIFnGroupRes     uint8 = 0x2d
	IPMIFnOEMReq       uint8 = 0x2e
	IPMIFnOEMRes       uint8 = 0x2f
)

// SEL device commands (storage NetFn), section 31 of IPMI v2.0
const (
	IPMICmdGetSELInfo    uint8 = 0x40
	IPMICmdGetSELAlloc   uint8 = 0x41
	IPMICmdReserveSEL    uint8 = 0x42
	IPMICmdGetSELEntry   uint8 = 0x43
	IPMICmdAddSELEntry   uint8 = 0x44
	IPMICmdClearSEL      uint8 = 0x47
	IPMICmdGetSELTime    uint8 = 0x48
	IPMICmdSetSELTime    uint8 = 0x49
	IPMICmdGetAuxLogStat uint8 = 0x5a
)

// SEL record layout
const (
	SELRecordLength = 16

	SELRecordTypeSystemEvent uint8 = 0x02
	SELEvMRevIPMI15          uint8 = 0x04

	// record ids with special meaning in Get SEL Entry
	SELRecordIDFirst RecordID = 0x0000
	SELRecordIDLast  RecordID = 0xffff

	// Get SEL Entry "bytes to read" value meaning the entire record
	SELReadEntireRecord uint8 = 0xff
)

// Completion codes
const (
	IPMICmpNorm              uint8 = 0x00
	IPMICmpBusy              uint8 = 0xc0
	IPMICmpInvalid           uint8 = 0xc1
	IPMICmpInvalidLUN        uint8 = 0xc2
	IPMICmpTimeout           uint8 = 0xc3
	IPMICmpOutOfSpace        uint8 = 0xc4
	IPMICmpReservationCancel uint8 = 0xc5
	IPMICmpDataTruncated     uint8 = 0xc6
	IPMICmpDataLength        uint8 = 0xc7
	IPMICmpDataLengthLimit   uint8 = 0xc8
	IPMICmpOutOfRange        uint8 = 0xc9
	IPMICmpCannotReturn      uint8 = 0xca
	IPMICmpNotPresent        uint8 = 0xcb
	IPMICmpInvalidField      uint8 = 0xcc
	IPMICmpIllegal           uint8 = 0xcd
	IPMICmpNoResponse        uint8 = 0xce
	IPMICmpDuplicate         uint8 = 0xcf
	IPMICmpSDRUpdateMode     uint8 = 0xd0
	IPMICmpFirmwareMode      uint8 = 0xd1
	IPMICmpInitInProgress    uint8 = 0xd2
	IPMICmpDestUnavailable   uint8 = 0xd3
	IPMICmpPrivilege         uint8 = 0xd4
	IPMICmpNotInState        uint8 = 0xd5
	IPMICmpSubFnDisabled     uint8 = 0xd6
	IPMICmpUnspecified       uint8 = 0xff
)

var IPMICmpString = map[uint8]string{
	IPMICmpNorm:              "Command completed normally.",
	IPMICmpBusy:              "Node Busy.",
	IPMICmpInvalid:           "Invalid Command.",
	IPMICmpInvalidLUN:        "Command invalid for given LUN.",
	IPMICmpTimeout:           "Timeout while processing command.",
	IPMICmpOutOfSpace:        "Out of space.",
	IPMICmpReservationCancel: "Reservation Canceled or Invalid Reservation ID.",
	IPMICmpDataTruncated:     "Request data truncated.",
	IPMICmpDataLength:        "Request data length invalid.",
	IPMICmpDataLengthLimit:   "Request data field length limit exceeded.",
	IPMICmpOutOfRange:        "Parameter out of range.",
	IPMICmpCannotReturn:      "Cannot return number of requested data bytes.",
	IPMICmpNotPresent:        "Requested Sensor, data, or record not present.",
	IPMICmpInvalidField:      "Invalid data field in Request.",
	IPMICmpIllegal:           "Command illegal for specified sensor or record type.",
	IPMICmpNoResponse:        "Command response could not be provided.",
	IPMICmpDuplicate:         "Cannot execute duplicated request.",
	IPMICmpSDRUpdateMode:     "SDR Repository in update mode.",
	IPMICmpFirmwareMode:      "Device in firmware update mode.",
	IPMICmpInitInProgress:    "BMC initialization in progress.",
	IPMICmpDestUnavailable:   "Destination unavailable.",
	IPMICmpPrivilege:         "Insufficient privilege level.",
	IPMICmpNotInState:        "Command not supported in present state.",
	IPMICmpSubFnDisabled:     "Command sub-function has been disabled or is unavailable.",
	IPMICmpUnspecified:       "Unspecified error.",
}

// CompletionCode is a non-zero completion code returned by the BMC.
// It satisfies error so that it can be returned directly.
type CompletionCode uint8

func (c CompletionCode) Error() string {
	if s, ok := IPMICmpString[uint8(c)]; ok {
		return fmt.Sprintf("completion code 0x%02x: %s", uint8(c), s)
	}
	return fmt.Sprintf("completion code 0x%02x", uint8(c))
}
