// Package wire is the bit-exact gs_usb wire codec: control-request payloads
// and bulk frame packets, little-endian throughout. It is purely functional
// and holds no state of its own; the transport layer decodes bulk-IN buffers
// through it directly, and the root package builds its public Frame type on
// top of HostFrame, so the codec lives below both rather than inside either.
package wire

import (
	"encoding/binary"
	"fmt"
)

// UsbBreq enumerates the vendor control requests understood by a gs_usb
// device. The numeric values are fixed by the device-side protocol.
type UsbBreq uint8

const (
	BreqHostFormat     UsbBreq = 0
	BreqBitTiming      UsbBreq = 1
	BreqMode           UsbBreq = 2
	BreqBerr           UsbBreq = 3
	BreqBitTimingConst UsbBreq = 4
	BreqDeviceConfig   UsbBreq = 5
	BreqTimestamp      UsbBreq = 6
	BreqIdentify       UsbBreq = 7
	BreqDataBitTiming  UsbBreq = 8
)

func (b UsbBreq) String() string {
	switch b {
	case BreqHostFormat:
		return "host_format"
	case BreqBitTiming:
		return "bit_timing"
	case BreqMode:
		return "mode"
	case BreqBerr:
		return "berr"
	case BreqBitTimingConst:
		return "bit_timing_const"
	case BreqDeviceConfig:
		return "device_config"
	case BreqTimestamp:
		return "timestamp"
	case BreqIdentify:
		return "identify"
	case BreqDataBitTiming:
		return "data_bit_timing"
	default:
		return "unknown"
	}
}

// Mode flag bits (wire byte offset 4, u32).
const (
	ModeListenOnly   uint32 = 0x01
	ModeLoopBack     uint32 = 0x02
	ModeTripleSample uint32 = 0x04
	ModeOneShot      uint32 = 0x08
	ModeHWTimestamp  uint32 = 0x10
	ModePadToMax     uint32 = 0x80
	ModeFD           uint32 = 0x100
)

// Device mode values (wire offset 0, u32) for Mode.Mode.
const (
	DeviceModeReset uint32 = 0
	DeviceModeStart uint32 = 1
)

// HostFrame flags byte bits.
const (
	FrameFlagOverflow uint8 = 0x01
	FrameFlagFD       uint8 = 0x02
	FrameFlagBRS      uint8 = 0x04
	FrameFlagESI      uint8 = 0x08
)

// CAN-id flag bits OR'd into HostFrame.CanID.
const (
	CANIDFlagExt uint32 = 0x8000_0000
	CANIDFlagRTR uint32 = 0x4000_0000
	CANIDFlagErr uint32 = 0x2000_0000
	CANIDMask    uint32 = 0x1FFF_FFFF
)

// EchoIDIngress is the sentinel echo_id identifying a genuinely received
// frame, as opposed to the loopback echo of a prior local send.
const EchoIDIngress uint32 = 0xFFFF_FFFF

// BitTimingConst feature bits (subset relevant to this driver).
const (
	FeatureFD uint32 = 0x100
)

// Mode is the wire payload for BreqMode: 8 bytes, mode:u32, flags:u32.
type Mode struct {
	Mode  uint32
	Flags uint32
}

const ModeSize = 8

// MarshalBinary encodes m into its fixed 8-byte wire form. It never fails.
func (m Mode) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ModeSize)
	binary.LittleEndian.PutUint32(buf[0:4], m.Mode)
	binary.LittleEndian.PutUint32(buf[4:8], m.Flags)
	return buf, nil
}

// UnmarshalBinary decodes buf into m. buf must be at least ModeSize bytes.
func (m *Mode) UnmarshalBinary(buf []byte) error {
	if len(buf) < ModeSize {
		return fmt.Errorf("wire: Mode buffer too short: %d bytes, want %d", len(buf), ModeSize)
	}
	m.Mode = binary.LittleEndian.Uint32(buf[0:4])
	m.Flags = binary.LittleEndian.Uint32(buf[4:8])
	return nil
}

// BitTiming is the wire payload for BreqBitTiming/BreqDataBitTiming: 20
// bytes, five u32 fields.
type BitTiming struct {
	PropSeg   uint32
	PhaseSeg1 uint32
	PhaseSeg2 uint32
	SJW       uint32
	BRP       uint32
}

const BitTimingSize = 20

// MarshalBinary encodes t into its fixed 20-byte wire form. It never fails.
func (t BitTiming) MarshalBinary() ([]byte, error) {
	buf := make([]byte, BitTimingSize)
	binary.LittleEndian.PutUint32(buf[0:4], t.PropSeg)
	binary.LittleEndian.PutUint32(buf[4:8], t.PhaseSeg1)
	binary.LittleEndian.PutUint32(buf[8:12], t.PhaseSeg2)
	binary.LittleEndian.PutUint32(buf[12:16], t.SJW)
	binary.LittleEndian.PutUint32(buf[16:20], t.BRP)
	return buf, nil
}

// UnmarshalBinary decodes buf into t. buf must be at least BitTimingSize
// bytes.
func (t *BitTiming) UnmarshalBinary(buf []byte) error {
	if len(buf) < BitTimingSize {
		return fmt.Errorf("wire: BitTiming buffer too short: %d bytes, want %d", len(buf), BitTimingSize)
	}
	t.PropSeg = binary.LittleEndian.Uint32(buf[0:4])
	t.PhaseSeg1 = binary.LittleEndian.Uint32(buf[4:8])
	t.PhaseSeg2 = binary.LittleEndian.Uint32(buf[8:12])
	t.SJW = binary.LittleEndian.Uint32(buf[12:16])
	t.BRP = binary.LittleEndian.Uint32(buf[16:20])
	return nil
}

// BitTimingConsts is the wire payload returned for BreqBitTimingConst: 40
// bytes, ten u32 fields.
type BitTimingConsts struct {
	Feature  uint32
	FClkCAN  uint32
	TSeg1Min uint32
	TSeg1Max uint32
	TSeg2Min uint32
	TSeg2Max uint32
	SJWMax   uint32
	BRPMin   uint32
	BRPMax   uint32
	BRPInc   uint32
}

const BitTimingConstsSize = 40

// MarshalBinary encodes c into its fixed 40-byte wire form. It never fails;
// the device only ever sends this payload, but the method is provided for
// symmetry and for tests that round-trip it.
func (c BitTimingConsts) MarshalBinary() ([]byte, error) {
	buf := make([]byte, BitTimingConstsSize)
	u := func(off int, v uint32) { binary.LittleEndian.PutUint32(buf[off:off+4], v) }
	u(0, c.Feature)
	u(4, c.FClkCAN)
	u(8, c.TSeg1Min)
	u(12, c.TSeg1Max)
	u(16, c.TSeg2Min)
	u(20, c.TSeg2Max)
	u(24, c.SJWMax)
	u(28, c.BRPMin)
	u(32, c.BRPMax)
	u(36, c.BRPInc)
	return buf, nil
}

// UnmarshalBinary decodes buf into c. buf must be at least
// BitTimingConstsSize bytes.
func (c *BitTimingConsts) UnmarshalBinary(buf []byte) error {
	if len(buf) < BitTimingConstsSize {
		return fmt.Errorf("wire: BitTimingConsts buffer too short: %d bytes, want %d", len(buf), BitTimingConstsSize)
	}
	u := func(off int) uint32 { return binary.LittleEndian.Uint32(buf[off : off+4]) }
	c.Feature = u(0)
	c.FClkCAN = u(4)
	c.TSeg1Min = u(8)
	c.TSeg1Max = u(12)
	c.TSeg2Min = u(16)
	c.TSeg2Max = u(20)
	c.SJWMax = u(24)
	c.BRPMin = u(28)
	c.BRPMax = u(32)
	c.BRPInc = u(36)
	return nil
}

func (c BitTimingConsts) SupportsFD() bool {
	return c.Feature&FeatureFD != 0
}

// DeviceConfig is the wire payload returned for BreqDeviceConfig: 12 bytes,
// 3 reserved bytes, icount:u8, sw_version:u32, hw_version:u32.
type DeviceConfig struct {
	ICount    uint8
	SWVersion uint32
	HWVersion uint32
}

const DeviceConfigSize = 12

// MarshalBinary encodes d into its fixed 12-byte wire form. It never fails;
// the device only ever sends this payload, but the method is provided for
// symmetry and for tests that round-trip it.
func (d DeviceConfig) MarshalBinary() ([]byte, error) {
	buf := make([]byte, DeviceConfigSize)
	buf[3] = d.ICount
	binary.LittleEndian.PutUint32(buf[4:8], d.SWVersion)
	binary.LittleEndian.PutUint32(buf[8:12], d.HWVersion)
	return buf, nil
}

// UnmarshalBinary decodes buf into d. buf must be at least DeviceConfigSize
// bytes.
func (d *DeviceConfig) UnmarshalBinary(buf []byte) error {
	if len(buf) < DeviceConfigSize {
		return fmt.Errorf("wire: DeviceConfig buffer too short: %d bytes, want %d", len(buf), DeviceConfigSize)
	}
	d.ICount = buf[3]
	d.SWVersion = binary.LittleEndian.Uint32(buf[4:8])
	d.HWVersion = binary.LittleEndian.Uint32(buf[8:12])
	return nil
}

// HostFrame is the bulk-transfer wire frame: fixed header plus a fixed-size
// payload window whose length depends on whether the device negotiated the
// classic (8-byte) or FD (64-byte) variant.
type HostFrame struct {
	EchoID  uint32
	CanID   uint32
	DLC     uint8
	Channel uint8
	Flags   uint8
	// Reserved byte (offset 11) is not surfaced; always encoded as zero.
	Data []byte

	// WireLen is the negotiated payload window (HostFrameClassicPayload or
	// HostFrameFDPayload) MarshalBinary pads Data up to. Zero means "infer
	// from len(Data)": 64 if it exceeds HostFrameClassicPayload, else 8.
	// The transport sets this explicitly from its own negotiated frame
	// format before marshaling, since that is a property of the session,
	// not of any one frame.
	WireLen int
}

const (
	HostFrameHeaderSize     = 12
	HostFrameClassicPayload = 8
	HostFrameFDPayload      = 64
	HostFrameClassicSize    = HostFrameHeaderSize + HostFrameClassicPayload
	HostFrameFDSize         = HostFrameHeaderSize + HostFrameFDPayload
)

// MarshalBinary serialises f, padding Data with zero bytes up to the
// negotiated wire length (see WireLen). It returns an error instead of
// panicking if Data is longer than that window: that would be a programmer
// error upstream, but unlike the other codec types here HostFrame's size
// depends on a second input (the session's negotiated frame format), so an
// error return is the honest way to surface a caller mistake.
func (f HostFrame) MarshalBinary() ([]byte, error) {
	payloadLen := f.WireLen
	if payloadLen == 0 {
		payloadLen = HostFrameClassicPayload
		if len(f.Data) > HostFrameClassicPayload {
			payloadLen = HostFrameFDPayload
		}
	}
	if len(f.Data) > payloadLen {
		return nil, fmt.Errorf("wire: HostFrame payload (%d bytes) exceeds wire size (%d bytes)", len(f.Data), payloadLen)
	}
	buf := make([]byte, HostFrameHeaderSize+payloadLen)
	binary.LittleEndian.PutUint32(buf[0:4], f.EchoID)
	binary.LittleEndian.PutUint32(buf[4:8], f.CanID)
	buf[8] = f.DLC
	buf[9] = f.Channel
	buf[10] = f.Flags
	buf[11] = 0
	copy(buf[HostFrameHeaderSize:], f.Data)
	return buf, nil
}

// UnmarshalBinary parses buf into f. The payload length is derived from the
// decoded DLC via DLCToLen, not from len(buf): buf may be a larger,
// fixed-size slot buffer with trailing padding or stale bytes from a
// previous transfer. buf must be at least HostFrameHeaderSize bytes, plus
// the DLC-implied payload length.
func (f *HostFrame) UnmarshalBinary(buf []byte) error {
	if len(buf) < HostFrameHeaderSize {
		return fmt.Errorf("wire: HostFrame buffer too short: %d bytes, want at least %d", len(buf), HostFrameHeaderSize)
	}
	dlc := buf[8]
	dataLen := DLCToLen(dlc)
	if len(buf) < HostFrameHeaderSize+dataLen {
		return fmt.Errorf("wire: HostFrame buffer too short for dlc %d: %d bytes, want %d", dlc, len(buf), HostFrameHeaderSize+dataLen)
	}
	f.EchoID = binary.LittleEndian.Uint32(buf[0:4])
	f.CanID = binary.LittleEndian.Uint32(buf[4:8])
	f.DLC = dlc
	f.Channel = buf[9]
	f.Flags = buf[10]
	f.Data = make([]byte, dataLen)
	copy(f.Data, buf[HostFrameHeaderSize:HostFrameHeaderSize+dataLen])
	return nil
}

// dlcToLen is the fixed CAN-FD DLC → payload-length table (§3).
var dlcToLen = [16]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 12, 16, 20, 24, 32, 48, 64}

// DLCToLen maps a 4-bit DLC (0..15) to its wire payload length in bytes.
func DLCToLen(dlc uint8) int {
	return dlcToLen[dlc&0x0F]
}

// LenToDLC is the inverse of DLCToLen for exact lengths produced by
// DLCToLen; lengths between table entries round up to the next DLC.
func LenToDLC(n int) uint8 {
	for dlc, l := range dlcToLen {
		if l >= n {
			return uint8(dlc)
		}
	}
	return 15
}
