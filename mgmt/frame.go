// Package mgmt implements the control plane of a BLE peripheral: a client
// for the kernel's Bluetooth management interface. It encodes and decodes
// the fixed-layout binary frames exchanged over the management channel,
// correlates command responses, and sequences multi-step adapter
// configuration.
package mgmt

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed management frame header: opcode (or event code),
// controller index, and payload length, all little-endian uint16.
const HeaderSize = 6

// Adapter name field widths, including the NUL terminator. These are fixed
// by the Set Local Name command layout.
const (
	MaxNameLength      = 248
	MaxShortNameLength = 10

	nameFieldSize      = MaxNameLength + 1
	shortNameFieldSize = MaxShortNameLength + 1
)

// advHeaderSize is the fixed part of an Add Advertising payload before the
// advertising and scan-response data blocks.
const advHeaderSize = 11

// Frame is a single management command or event: a 6-byte header followed
// by an opcode-specific payload. Frames are constructed per call and never
// persisted.
type Frame struct {
	Code    uint16 // command opcode or event code
	Index   uint16 // zero-based controller index, or IndexNone
	Payload []byte
}

// NewCommand builds a command frame for the given opcode and controller.
func NewCommand(code, index uint16, payload []byte) Frame {
	return Frame{Code: code, Index: index, Payload: payload}
}

// Encode serializes the frame as header + payload, little-endian.
func (f Frame) Encode() []byte {
	b := make([]byte, HeaderSize+len(f.Payload))
	binary.LittleEndian.PutUint16(b[0:], f.Code)
	binary.LittleEndian.PutUint16(b[2:], f.Index)
	binary.LittleEndian.PutUint16(b[4:], uint16(len(f.Payload)))
	copy(b[HeaderSize:], f.Payload)
	return b
}

// DecodeFrame parses a single frame from b. The buffer must hold the full
// header and at least the declared payload length; anything shorter fails
// with ErrMalformedFrame. Trailing bytes beyond the declared length are
// ignored.
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) < HeaderSize {
		return Frame{}, fmt.Errorf("%w: %d bytes, want at least %d", ErrMalformedFrame, len(b), HeaderSize)
	}
	plen := int(binary.LittleEndian.Uint16(b[4:]))
	if len(b)-HeaderSize < plen {
		return Frame{}, fmt.Errorf("%w: declared payload %d bytes, have %d", ErrMalformedFrame, plen, len(b)-HeaderSize)
	}
	f := Frame{
		Code:  binary.LittleEndian.Uint16(b[0:]),
		Index: binary.LittleEndian.Uint16(b[2:]),
	}
	if plen > 0 {
		f.Payload = make([]byte, plen)
		copy(f.Payload, b[HeaderSize:HeaderSize+plen])
	}
	return f, nil
}

// TruncateName clamps a local name to the maximum the adapter accepts.
// Truncation is silent: this matches the management interface contract,
// which pads or cuts names rather than rejecting them.
func TruncateName(name string) string {
	if len(name) <= MaxNameLength {
		return name
	}
	return name[:MaxNameLength]
}

// TruncateShortName clamps a short name to the maximum the adapter accepts.
func TruncateShortName(name string) string {
	if len(name) <= MaxShortNameLength {
		return name
	}
	return name[:MaxShortNameLength]
}

// SetLocalNamePayload encodes the Set Local Name payload: a 249-byte name
// field followed by an 11-byte short-name field, both NUL-terminated and
// zero-padded to full width. Overlong inputs are silently truncated first.
func SetLocalNamePayload(name, shortName string) []byte {
	name = TruncateName(name)
	shortName = TruncateShortName(shortName)

	b := make([]byte, nameFieldSize+shortNameFieldSize)
	copy(b[0:], name)
	copy(b[nameFieldSize:], shortName)
	return b
}

// ParseLocalNamePayload decodes a Set Local Name payload back into its two
// strings, stopping each at its NUL terminator.
func ParseLocalNamePayload(b []byte) (name, shortName string, err error) {
	if len(b) != nameFieldSize+shortNameFieldSize {
		return "", "", fmt.Errorf("%w: local name payload is %d bytes, want %d",
			ErrMalformedFrame, len(b), nameFieldSize+shortNameFieldSize)
	}
	return cString(b[:nameFieldSize]), cString(b[nameFieldSize:]), nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// DiscoverableMode selects the discoverability announced by the controller.
type DiscoverableMode uint8

const (
	DiscoverableOff     DiscoverableMode = 0x00
	DiscoverableGeneral DiscoverableMode = 0x01
	DiscoverableLimited DiscoverableMode = 0x02
)

// SetDiscoverablePayload encodes the Set Discoverable payload. timeout is
// in seconds and is meaningful for limited mode, where the controller
// auto-reverts once it expires.
func SetDiscoverablePayload(mode DiscoverableMode, timeout uint16) []byte {
	b := make([]byte, 3)
	b[0] = uint8(mode)
	binary.LittleEndian.PutUint16(b[1:], timeout)
	return b
}

// ParseDiscoverablePayload decodes a Set Discoverable payload.
func ParseDiscoverablePayload(b []byte) (DiscoverableMode, uint16, error) {
	if len(b) != 3 {
		return 0, 0, fmt.Errorf("%w: discoverable payload is %d bytes, want 3", ErrMalformedFrame, len(b))
	}
	return DiscoverableMode(b[0]), binary.LittleEndian.Uint16(b[1:]), nil
}

// SetStatePayload encodes the single-byte payload shared by the various
// state-set commands (powered, bondable, connectable, LE, ...).
func SetStatePayload(state uint8) []byte {
	return []byte{state}
}

// AdvertisingData is the Add Advertising command body: a fixed header plus
// two opaque data blocks. AdvData and ScanRsp carry type-length-value
// advertising elements supplied by the caller; this layer never parses
// them.
type AdvertisingData struct {
	Instance uint8
	Flags    uint32 // bitfield of controller-synthesized fields
	Duration uint16 // seconds per advertising round, 0 = default
	Timeout  uint16 // seconds until the instance auto-expires, 0 = never
	AdvData  []byte
	ScanRsp  []byte
}

// Payload encodes the Add Advertising payload. Either data block longer
// than 255 bytes cannot be represented in its length-prefix byte and fails
// with ErrPayloadTooLarge before any I/O happens.
func (a AdvertisingData) Payload() ([]byte, error) {
	if len(a.AdvData) > 0xFF {
		return nil, fmt.Errorf("%w: advertising data is %d bytes", ErrPayloadTooLarge, len(a.AdvData))
	}
	if len(a.ScanRsp) > 0xFF {
		return nil, fmt.Errorf("%w: scan response data is %d bytes", ErrPayloadTooLarge, len(a.ScanRsp))
	}

	b := make([]byte, advHeaderSize+len(a.AdvData)+len(a.ScanRsp))
	b[0] = a.Instance
	binary.LittleEndian.PutUint32(b[1:], a.Flags)
	binary.LittleEndian.PutUint16(b[5:], a.Duration)
	binary.LittleEndian.PutUint16(b[7:], a.Timeout)
	b[9] = uint8(len(a.AdvData))
	b[10] = uint8(len(a.ScanRsp))
	copy(b[advHeaderSize:], a.AdvData)
	copy(b[advHeaderSize+len(a.AdvData):], a.ScanRsp)
	return b, nil
}

// ParseAdvertisingPayload decodes an Add Advertising payload.
func ParseAdvertisingPayload(b []byte) (AdvertisingData, error) {
	if len(b) < advHeaderSize {
		return AdvertisingData{}, fmt.Errorf("%w: advertising payload is %d bytes, want at least %d",
			ErrMalformedFrame, len(b), advHeaderSize)
	}
	advLen := int(b[9])
	rspLen := int(b[10])
	if len(b) != advHeaderSize+advLen+rspLen {
		return AdvertisingData{}, fmt.Errorf("%w: advertising payload is %d bytes, header declares %d",
			ErrMalformedFrame, len(b), advHeaderSize+advLen+rspLen)
	}
	a := AdvertisingData{
		Instance: b[0],
		Flags:    binary.LittleEndian.Uint32(b[1:]),
		Duration: binary.LittleEndian.Uint16(b[5:]),
		Timeout:  binary.LittleEndian.Uint16(b[7:]),
	}
	if advLen > 0 {
		a.AdvData = append([]byte(nil), b[advHeaderSize:advHeaderSize+advLen]...)
	}
	if rspLen > 0 {
		a.ScanRsp = append([]byte(nil), b[advHeaderSize+advLen:]...)
	}
	return a, nil
}

// ControllerInfo is the state snapshot returned by Read Controller
// Information during channel synchronization.
type ControllerInfo struct {
	Address           [6]byte
	BluetoothVersion  uint8
	Manufacturer      uint16
	SupportedSettings uint32
	CurrentSettings   uint32
	DeviceClass       [3]byte
	Name              string
	ShortName         string
}

const controllerInfoSize = 6 + 1 + 2 + 4 + 4 + 3 + nameFieldSize + shortNameFieldSize

// ParseControllerInfo decodes a Read Controller Information response body.
func ParseControllerInfo(b []byte) (ControllerInfo, error) {
	if len(b) < controllerInfoSize {
		return ControllerInfo{}, fmt.Errorf("%w: controller info is %d bytes, want %d",
			ErrMalformedFrame, len(b), controllerInfoSize)
	}
	var ci ControllerInfo
	copy(ci.Address[:], b[0:6])
	ci.BluetoothVersion = b[6]
	ci.Manufacturer = binary.LittleEndian.Uint16(b[7:])
	ci.SupportedSettings = binary.LittleEndian.Uint32(b[9:])
	ci.CurrentSettings = binary.LittleEndian.Uint32(b[13:])
	copy(ci.DeviceClass[:], b[17:20])
	ci.Name = cString(b[20 : 20+nameFieldSize])
	ci.ShortName = cString(b[20+nameFieldSize : controllerInfoSize])
	return ci, nil
}
