package mgmt

import (
	"time"

	"github.com/sirupsen/logrus"
)

// CommandSender is the part of Channel the adapter controller needs.
type CommandSender interface {
	SendCommand(Frame) ([]byte, error)
	Index() uint16
	Info() ControllerInfo
}

// SecureConnectionsMode selects the Secure Connections policy.
type SecureConnectionsMode uint8

const (
	SecureConnectionsOff  SecureConnectionsMode = 0x00
	SecureConnectionsOn   SecureConnectionsMode = 0x01
	SecureConnectionsOnly SecureConnectionsMode = 0x02
)

// AdvertisingMode selects how Set Advertising behaves.
type AdvertisingMode uint8

const (
	AdvertisingOff AdvertisingMode = 0x00
	AdvertisingOn  AdvertisingMode = 0x01
	// AdvertisingConnectable advertises connectable regardless of the
	// connectable setting.
	AdvertisingConnectable AdvertisingMode = 0x02
)

// advertisingSettleDelay gives the controller firmware time to quiesce
// after a power-off before advertising data is replaced. The state
// transition is asynchronous and not otherwise observable through the
// management protocol.
const advertisingSettleDelay = 200 * time.Millisecond

// Adapter is the adapter-facing configuration API. Each setter translates
// to one management command (or a short fixed sequence), collapses channel
// errors into a boolean result, and logs a warning naming the attempted
// state change. Callers must check the result; nothing retries or aborts.
//
// Adapter does not arbitrate concurrent configuration calls: callers
// serialize their own configuration sequences, mirroring the channel's
// single-outstanding-command constraint.
type Adapter struct {
	ch     CommandSender
	logger *logrus.Logger

	// settle is the pre-advertising quiesce delay, overridable in tests.
	settle time.Duration
}

// NewAdapter wraps a management channel for adapter configuration.
func NewAdapter(ch CommandSender, logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Adapter{ch: ch, logger: logger, settle: advertisingSettleDelay}
}

// ControllerInfo returns the controller state snapshot captured when the
// underlying channel synchronized.
func (a *Adapter) ControllerInfo() ControllerInfo {
	return a.ch.Info()
}

// SetName sets the adapter's local name and short name in a single frame;
// either both fields are sent or none. Overlong inputs are silently
// truncated to 248 and 10 bytes respectively before encoding.
func (a *Adapter) SetName(name, shortName string) bool {
	f := NewCommand(OpSetLocalName, a.ch.Index(), SetLocalNamePayload(name, shortName))
	if _, err := a.ch.SendCommand(f); err != nil {
		a.logger.WithError(err).WithFields(logrus.Fields{
			"name":       TruncateName(name),
			"short_name": TruncateShortName(shortName),
		}).Warn("failed to set adapter name")
		return false
	}
	return true
}

// SetDiscoverable sets the discoverable mode. timeout is in seconds and is
// required and meaningful only for DiscoverableLimited; passing 0 there is
// a caller error this layer does not validate.
func (a *Adapter) SetDiscoverable(mode DiscoverableMode, timeout uint16) bool {
	f := NewCommand(OpSetDiscoverable, a.ch.Index(), SetDiscoverablePayload(mode, timeout))
	if _, err := a.ch.SendCommand(f); err != nil {
		a.logger.WithError(err).WithFields(logrus.Fields{
			"mode":    mode,
			"timeout": timeout,
		}).Warn("failed to set discoverable")
		return false
	}
	return true
}

// SetRawAdvertisingData replaces the advertising payload: it powers the
// adapter off, waits for the controller to settle, then registers the
// combined advertising and scan-response data as a single advertising
// instance. The controller rejects advertising-data changes while
// advertising is active, hence the power-off bracket.
//
// Power is deliberately NOT restored afterwards; the caller is responsible
// for calling SetPowered(true) once configuration is complete.
func (a *Adapter) SetRawAdvertisingData(adv AdvertisingData) bool {
	payload, err := adv.Payload()
	if err != nil {
		a.logger.WithError(err).Warn("failed to encode advertising data")
		return false
	}

	if !a.SetPowered(false) {
		return false
	}
	time.Sleep(a.settle)

	f := NewCommand(OpAddAdvertising, a.ch.Index(), payload)
	if _, err := a.ch.SendCommand(f); err != nil {
		a.logger.WithError(err).WithFields(logrus.Fields{
			"adv_len": len(adv.AdvData),
			"rsp_len": len(adv.ScanRsp),
		}).Warn("failed to set advertising data")
		return false
	}
	return true
}

// SetPowered sets the powered state.
func (a *Adapter) SetPowered(on bool) bool {
	return a.setState(OpSetPowered, boolState(on))
}

// SetBredr enables or disables BR/EDR support.
func (a *Adapter) SetBredr(on bool) bool {
	return a.setState(OpSetBredr, boolState(on))
}

// SetSecureConnections sets the Secure Connections mode.
func (a *Adapter) SetSecureConnections(mode SecureConnectionsMode) bool {
	return a.setState(OpSetSecureConnections, uint8(mode))
}

// SetBondable sets the bondable state.
func (a *Adapter) SetBondable(on bool) bool {
	return a.setState(OpSetBondable, boolState(on))
}

// SetConnectable sets the connectable state.
func (a *Adapter) SetConnectable(on bool) bool {
	return a.setState(OpSetConnectable, boolState(on))
}

// SetLE enables or disables Low Energy support.
func (a *Adapter) SetLE(on bool) bool {
	return a.setState(OpSetLowEnergy, boolState(on))
}

// SetAdvertising sets the advertising mode.
func (a *Adapter) SetAdvertising(mode AdvertisingMode) bool {
	return a.setState(OpSetAdvertising, uint8(mode))
}

// setState handles the family of single-byte state-set commands.
func (a *Adapter) setState(code uint16, state uint8) bool {
	f := NewCommand(code, a.ch.Index(), SetStatePayload(state))
	if _, err := a.ch.SendCommand(f); err != nil {
		a.logger.WithError(err).WithFields(logrus.Fields{
			"command": OpcodeName(code),
			"state":   state,
		}).Warn("failed to set adapter state")
		return false
	}
	return true
}

func boolState(on bool) uint8 {
	if on {
		return 1
	}
	return 0
}
