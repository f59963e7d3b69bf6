package gsusb

import "github.com/canhost/gsusb/internal/wire"

// Frame is the canonical CAN frame exchanged with callers: classic or
// CAN-FD, addressed to a channel on the device. The payload lives in a
// fixed backing array rather than a slice header pointing at a heap
// allocation, so passing a Frame by value on the send/receive hot path
// never allocates.
type Frame struct {
	Channel uint8
	CanID   uint32 // 29 bits when Ext, 11 bits otherwise
	DLC     uint8  // 0..15

	raw     [64]byte
	dataLen uint8

	Ext      bool
	RTR      bool
	Err      bool
	FD       bool
	BRS      bool
	ESI      bool
	Loopback bool
}

// Data returns the payload last set by WithData, as a sub-slice of the
// frame's backing array. Validate checks that its length is DLCToLen(DLC).
func (f *Frame) Data() []byte { return f.raw[:f.dataLen] }

// WithData returns a copy of f with its payload set to data (copied into
// the backing array, truncated at 64 bytes).
func (f Frame) WithData(data []byte) Frame {
	f.dataLen = uint8(copy(f.raw[:], data))
	return f
}

// DLCToLen maps a 4-bit DLC to its payload length in bytes, per the
// CAN-FD extended length table.
func DLCToLen(dlc uint8) int { return wire.DLCToLen(dlc) }

// LenToDLC is the inverse of DLCToLen, rounding a payload length up to the
// smallest DLC whose table entry can hold it.
func LenToDLC(n int) uint8 { return wire.LenToDLC(n) }

// Validate checks the invariants from the data model: ext/id-width
// consistency, fd/rtr/brs/esi consistency, and data length matching dlc.
func (f Frame) Validate() error {
	if f.Ext {
		if f.CanID >= 1<<29 {
			return invalidFrame("extended can_id must fit in 29 bits")
		}
	} else if f.CanID >= 1<<11 {
		return invalidFrame("standard can_id must fit in 11 bits")
	}
	if f.FD && f.RTR {
		return invalidFrame("fd frames cannot set rtr")
	}
	if f.BRS && !f.FD {
		return invalidFrame("brs requires fd")
	}
	if f.ESI && !f.FD {
		return invalidFrame("esi requires fd")
	}
	if int(f.dataLen) != wire.DLCToLen(f.DLC) {
		return invalidFrame("data length does not match dlc")
	}
	return nil
}

// toHostFrame encodes f into the wire representation, assigning echoID
// (the caller is responsible for the monotonic counter and sentinel skip).
func (f Frame) toHostFrame(echoID uint32) wire.HostFrame {
	canID := f.CanID & wire.CANIDMask
	if f.Ext {
		canID |= wire.CANIDFlagExt
	}
	if f.RTR {
		canID |= wire.CANIDFlagRTR
	}
	if f.Err {
		canID |= wire.CANIDFlagErr
	}
	var flags uint8
	if f.FD {
		flags |= wire.FrameFlagFD
	}
	if f.BRS {
		flags |= wire.FrameFlagBRS
	}
	if f.ESI {
		flags |= wire.FrameFlagESI
	}
	return wire.HostFrame{
		EchoID:  echoID,
		CanID:   canID,
		DLC:     f.DLC,
		Channel: f.Channel,
		Flags:   flags,
		Data:    f.Data(),
	}
}

// fromHostFrame decodes a wire HostFrame into the caller-facing Frame,
// unpacking the flag bits folded into CanID and Flags, and classifying a
// non-sentinel echo_id as a loopback echo of a prior local send.
func fromHostFrame(hf wire.HostFrame) Frame {
	f := Frame{
		Channel:  hf.Channel,
		CanID:    hf.CanID & wire.CANIDMask,
		DLC:      hf.DLC,
		Ext:      hf.CanID&wire.CANIDFlagExt != 0,
		RTR:      hf.CanID&wire.CANIDFlagRTR != 0,
		Err:      hf.CanID&wire.CANIDFlagErr != 0,
		FD:       hf.Flags&wire.FrameFlagFD != 0,
		BRS:      hf.Flags&wire.FrameFlagBRS != 0,
		ESI:      hf.Flags&wire.FrameFlagESI != 0,
		Loopback: hf.EchoID != wire.EchoIDIngress,
	}
	return f.WithData(hf.Data)
}
