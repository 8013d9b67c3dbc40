package ipmi

import "fmt"

// SensorType classifies the sensor that generated an event, see Table 42-3
// of IPMI v2.0. Values above 0xc0 are OEM reserved; PICMG defines 0xf0-0xf4.
type SensorType uint8

const (
	SensorTypeTemperature SensorType = iota + 0x01
	SensorTypeVoltage
	SensorTypeCurrent
	SensorTypeFan
	SensorTypeChassisIntrusion
	SensorTypePlatformSecurity
	SensorTypeProcessor
	SensorTypePowerSupply
	SensorTypePowerUnit
	SensorTypeCoolingDevice
	SensorTypeOtherUnitsBasedSensor
	SensorTypeMemory
	SensorTypeDriveSlot
	SensorTypePostMemoryResize
	SensorTypeSystemFirmwareProgress
	SensorTypeEventLoggingDisabled
	SensorTypeWatchdog1
	SensorTypeSystemEvent
	SensorTypeCriticalInterrupt
	SensorTypeButton
	SensorTypeModuleBoard
	SensorTypeMicrocontrollerCoprocessor
	SensorTypeAddInCard
	SensorTypeChassis
	SensorTypeChipSet
	SensorTypeOtherFRU
	SensorTypeCableInterconnect
	SensorTypeTerminator
	SensorTypeSystemBootInitiated
	SensorTypeBootError
	SensorTypeOSBoot
	SensorTypeOSCriticalStop
	SensorTypeSlotConnector
	SensorTypeSystemACPIPowerState
	SensorTypeWatchdog2
	SensorTypePlatformAlert
	SensorTypeEntityPresent
	SensorTypeMonitorASIC
	SensorTypeLAN
	SensorTypeManagementSubsystemHealth
	SensorTypeBattery
	SensorTypeSessionAudit
	SensorTypeVersionChange
	SensorTypeFRUState
)

// PICMG sensor types
const (
	SensorTypeFRUHotSwap               SensorType = 0xf0
	SensorTypeIPMBPhysicalLink         SensorType = 0xf1
	SensorTypeModuleHotSwap            SensorType = 0xf2
	SensorTypePowerChannelNotification SensorType = 0xf3
	SensorTypeTelcoAlarmInput          SensorType = 0xf4
)

var sensorTypeDescriptions = map[SensorType]string{
	SensorTypeTemperature:                "Temperature",
	SensorTypeVoltage:                    "Voltage",
	SensorTypeCurrent:                    "Current",
	SensorTypeFan:                        "Fan",
	SensorTypeChassisIntrusion:           "Chassis Intrusion",
	SensorTypePlatformSecurity:           "Platform Security",
	SensorTypeProcessor:                  "Processor",
	SensorTypePowerSupply:                "Power Supply",
	SensorTypePowerUnit:                  "Power Unit",
	SensorTypeCoolingDevice:              "Cooling Device",
	SensorTypeOtherUnitsBasedSensor:      "Other Units-based Sensor",
	SensorTypeMemory:                     "Memory",
	SensorTypeDriveSlot:                  "Drive Slot",
	SensorTypePostMemoryResize:           "POST Memory Resize",
	SensorTypeSystemFirmwareProgress:     "System Firmware Progress",
	SensorTypeEventLoggingDisabled:       "Event Logging Disabled",
	SensorTypeWatchdog1:                  "Watchdog 1",
	SensorTypeSystemEvent:                "System Event",
	SensorTypeCriticalInterrupt:          "Critical Interrupt",
	SensorTypeButton:                     "Button",
	SensorTypeModuleBoard:                "Module Board",
	SensorTypeMicrocontrollerCoprocessor: "Microcontroller Coprocessor",
	SensorTypeAddInCard:                  "Add-in Card",
	SensorTypeChassis:                    "Chassis",
	SensorTypeChipSet:                    "Chip Set",
	SensorTypeOtherFRU:                   "Other FRU",
	SensorTypeCableInterconnect:          "Cable Interconnect",
	SensorTypeTerminator:                 "Terminator",
	SensorTypeSystemBootInitiated:        "System Boot Initiated",
	SensorTypeBootError:                  "Boot Error",
	SensorTypeOSBoot:                     "OS Boot",
	SensorTypeOSCriticalStop:             "OS Critical Stop",
	SensorTypeSlotConnector:              "Slot Connector",
	SensorTypeSystemACPIPowerState:       "System ACPI Power State",
	SensorTypeWatchdog2:                  "Watchdog 2",
	SensorTypePlatformAlert:              "Platform Alert",
	SensorTypeEntityPresent:              "Entity Present",
	SensorTypeMonitorASIC:                "Monitor ASIC IC",
	SensorTypeLAN:                        "LAN",
	SensorTypeManagementSubsystemHealth:  "Management Subsystem Health",
	SensorTypeBattery:                    "Battery",
	SensorTypeSessionAudit:               "Session Audit",
	SensorTypeVersionChange:              "Version Change",
	SensorTypeFRUState:                   "FRU State",
	SensorTypeFRUHotSwap:                 "FRU Hot Swap",
	SensorTypeIPMBPhysicalLink:           "IPMB Physical Link",
	SensorTypeModuleHotSwap:              "Module Hot Swap",
	SensorTypePowerChannelNotification:   "Power Channel Notification",
	SensorTypeTelcoAlarmInput:            "Telco Alarm Input",
}

// SensorTypes returns every sensor type that has a description.
func SensorTypes() map[SensorType]string {
	r := make(map[SensorType]string, len(sensorTypeDescriptions))
	for k, v := range sensorTypeDescriptions {
		r[k] = v
	}
	return r
}

func (t SensorType) Description() string {
	if desc, ok := sensorTypeDescriptions[t]; ok {
		return desc
	}
	if t >= 0xc0 {
		return "OEM Reserved"
	}
	return "Unknown"
}

func (t SensorType) String() string {
	return fmt.Sprintf("0x%02x(%v)", uint8(t), t.Description())
}

// EventDirection is bit 7 of the event dir/type byte
type EventDirection uint8

const (
	EventAssertion   EventDirection = 0
	EventDeassertion EventDirection = 1
)

func (d EventDirection) String() string {
	switch d {
	case EventAssertion:
		return "Assertion"
	case EventDeassertion:
		return "Deassertion"
	}
	return fmt.Sprintf("EventDirection(%d)", uint8(d))
}

// OriginatorKind selects which variant of Originator is populated
type OriginatorKind uint8

const (
	OriginatorSoftwareID OriginatorKind = iota
	OriginatorSlaveAddress
)

// Originator is the generator ID of an event: either the I2C slave address
// of an IPMB device or a system software ID, selected by bit 0.
type Originator struct {
	Kind OriginatorKind
	ID   uint8
}

// SlaveAddress returns the slave address if the originator is an IPMB device.
func (o Originator) SlaveAddress() (uint8, bool) {
	return o.ID, o.Kind == OriginatorSlaveAddress
}

// SoftwareID returns the software ID if the originator is system software.
func (o Originator) SoftwareID() (uint8, bool) {
	return o.ID, o.Kind == OriginatorSoftwareID
}

func (o Originator) encode() uint8 {
	b := (o.ID & 0x3f) << 1
	if o.Kind == OriginatorSlaveAddress {
		b |= 0x01
	}
	return b
}

func (o Originator) String() string {
	if o.Kind == OriginatorSlaveAddress {
		return fmt.Sprintf("I2C Slave Address 0x%02x", o.ID)
	}
	// see table 5-4 of v2.0
	var class string
	switch {
	case o.ID <= 0x0f:
		class = "BIOS"
	case o.ID <= 0x1f:
		class = "SMI Handler"
	case o.ID <= 0x2f:
		class = "System Management Software"
	default:
		class = "OEM"
	}
	return fmt.Sprintf("System Software ID 0x%02x (%s)", o.ID, class)
}
