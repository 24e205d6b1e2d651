package mgmt

// Command opcodes of the kernel Bluetooth management interface. Only the
// subset exercised by the adapter controller is enumerated; the opcode space
// itself is defined by the kernel, not by this package.
const (
	OpReadVersionInfo       uint16 = 0x0001
	OpReadIndexList         uint16 = 0x0003
	OpReadControllerInfo    uint16 = 0x0004
	OpSetPowered            uint16 = 0x0005
	OpSetDiscoverable       uint16 = 0x0006
	OpSetConnectable        uint16 = 0x0007
	OpSetFastConnectable    uint16 = 0x0008
	OpSetBondable           uint16 = 0x0009
	OpSetLinkSecurity       uint16 = 0x000A
	OpSetSecureSimplePair   uint16 = 0x000B
	OpSetHighSpeed          uint16 = 0x000C
	OpSetLowEnergy          uint16 = 0x000D
	OpSetDeviceClass        uint16 = 0x000E
	OpSetLocalName          uint16 = 0x000F
	OpSetAdvertising        uint16 = 0x0029
	OpSetBredr              uint16 = 0x002A
	OpSetSecureConnections  uint16 = 0x002D
	OpReadAdvertisingFeat   uint16 = 0x003D
	OpAddAdvertising        uint16 = 0x003E
	OpRemoveAdvertising     uint16 = 0x003F
)

// Event codes delivered on the management channel.
const (
	EvtCommandComplete    uint16 = 0x0001
	EvtCommandStatus      uint16 = 0x0002
	EvtControllerError    uint16 = 0x0003
	EvtIndexAdded         uint16 = 0x0004
	EvtIndexRemoved       uint16 = 0x0005
	EvtNewSettings        uint16 = 0x0006
	EvtClassOfDevChanged  uint16 = 0x0007
	EvtLocalNameChanged   uint16 = 0x0008
	EvtNewLinkKey         uint16 = 0x0009
	EvtDeviceConnected    uint16 = 0x000B
	EvtDeviceDisconnected uint16 = 0x000C
	EvtAdvertisingAdded   uint16 = 0x0023
	EvtAdvertisingRemoved uint16 = 0x0024
)

// Status codes returned by the controller in Command Complete / Command
// Status events.
const (
	StatusSuccess          uint8 = 0x00
	StatusUnknownCommand   uint8 = 0x01
	StatusNotConnected     uint8 = 0x02
	StatusFailed           uint8 = 0x03
	StatusConnectFailed    uint8 = 0x04
	StatusAuthFailed       uint8 = 0x05
	StatusNotPaired        uint8 = 0x06
	StatusNoResources      uint8 = 0x07
	StatusTimeout          uint8 = 0x08
	StatusAlreadyConnected uint8 = 0x09
	StatusBusy             uint8 = 0x0A
	StatusRejected         uint8 = 0x0B
	StatusNotSupported     uint8 = 0x0C
	StatusInvalidParams    uint8 = 0x0D
	StatusDisconnected     uint8 = 0x0E
	StatusNotPowered       uint8 = 0x0F
	StatusCancelled        uint8 = 0x10
	StatusInvalidIndex     uint8 = 0x11
	StatusRFKilled         uint8 = 0x12
	StatusAlreadyPaired    uint8 = 0x13
	StatusPermissionDenied uint8 = 0x14
)

// IndexNone addresses the management service itself rather than a specific
// controller (HCI_DEV_NONE).
const IndexNone uint16 = 0xFFFF

// Current-settings bits reported in Read Controller Information and
// New Settings events.
const (
	SettingPowered           uint32 = 1 << 0
	SettingConnectable       uint32 = 1 << 1
	SettingFastConnectable   uint32 = 1 << 2
	SettingDiscoverable      uint32 = 1 << 3
	SettingBondable          uint32 = 1 << 4
	SettingLinkSecurity      uint32 = 1 << 5
	SettingSecureSimplePair  uint32 = 1 << 6
	SettingBredr             uint32 = 1 << 7
	SettingHighSpeed         uint32 = 1 << 8
	SettingLowEnergy         uint32 = 1 << 9
	SettingAdvertising       uint32 = 1 << 10
	SettingSecureConnections uint32 = 1 << 11
)

var opNames = map[uint16]string{
	OpReadVersionInfo:      "Read Management Version Information",
	OpReadIndexList:        "Read Controller Index List",
	OpReadControllerInfo:   "Read Controller Information",
	OpSetPowered:           "Set Powered",
	OpSetDiscoverable:      "Set Discoverable",
	OpSetConnectable:       "Set Connectable",
	OpSetFastConnectable:   "Set Fast Connectable",
	OpSetBondable:          "Set Bondable",
	OpSetLinkSecurity:      "Set Link Security",
	OpSetSecureSimplePair:  "Set Secure Simple Pairing",
	OpSetHighSpeed:         "Set High Speed",
	OpSetLowEnergy:         "Set Low Energy",
	OpSetDeviceClass:       "Set Device Class",
	OpSetLocalName:         "Set Local Name",
	OpSetAdvertising:       "Set Advertising",
	OpSetBredr:             "Set BR/EDR",
	OpSetSecureConnections: "Set Secure Connections",
	OpReadAdvertisingFeat:  "Read Advertising Features",
	OpAddAdvertising:       "Add Advertising",
	OpRemoveAdvertising:    "Remove Advertising",
}

var evtNames = map[uint16]string{
	EvtCommandComplete:    "Command Complete",
	EvtCommandStatus:      "Command Status",
	EvtControllerError:    "Controller Error",
	EvtIndexAdded:         "Index Added",
	EvtIndexRemoved:       "Index Removed",
	EvtNewSettings:        "New Settings",
	EvtClassOfDevChanged:  "Class Of Device Changed",
	EvtLocalNameChanged:   "Local Name Changed",
	EvtNewLinkKey:         "New Link Key",
	EvtDeviceConnected:    "Device Connected",
	EvtDeviceDisconnected: "Device Disconnected",
	EvtAdvertisingAdded:   "Advertising Added",
	EvtAdvertisingRemoved: "Advertising Removed",
}

var statusNames = map[uint8]string{
	StatusSuccess:          "success",
	StatusUnknownCommand:   "unknown command",
	StatusNotConnected:     "not connected",
	StatusFailed:           "failed",
	StatusConnectFailed:    "connect failed",
	StatusAuthFailed:       "authentication failed",
	StatusNotPaired:        "not paired",
	StatusNoResources:      "no resources",
	StatusTimeout:          "timeout",
	StatusAlreadyConnected: "already connected",
	StatusBusy:             "busy",
	StatusRejected:         "rejected",
	StatusNotSupported:     "not supported",
	StatusInvalidParams:    "invalid parameters",
	StatusDisconnected:     "disconnected",
	StatusNotPowered:       "not powered",
	StatusCancelled:        "cancelled",
	StatusInvalidIndex:     "invalid index",
	StatusRFKilled:         "rfkilled",
	StatusAlreadyPaired:    "already paired",
	StatusPermissionDenied: "permission denied",
}

// OpcodeName returns a human-readable name for a command opcode.
func OpcodeName(op uint16) string {
	if n, ok := opNames[op]; ok {
		return n
	}
	return "Unknown Command"
}

// EventName returns a human-readable name for an event code.
func EventName(evt uint16) string {
	if n, ok := evtNames[evt]; ok {
		return n
	}
	return "Unknown Event"
}

// StatusName returns a human-readable name for a controller status code.
func StatusName(status uint8) string {
	if n, ok := statusNames[status]; ok {
		return n
	}
	return "unknown status"
}
