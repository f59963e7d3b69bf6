package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBitTimingEncode checks the fixed 20-byte layout against a known vector.
func TestBitTimingEncode(t *testing.T) {
	bt := BitTiming{PropSeg: 0, PhaseSeg1: 13, PhaseSeg2: 2, SJW: 1, BRP: 6}
	want := []byte{
		0x00, 0x00, 0x00, 0x00,
		0x0D, 0x00, 0x00, 0x00,
		0x02, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x00,
		0x06, 0x00, 0x00, 0x00,
	}
	buf, err := bt.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, want, buf)
}

func TestBitTimingRoundtrip(t *testing.T) {
	bt := BitTiming{PropSeg: 0, PhaseSeg1: 7, PhaseSeg2: 2, SJW: 1, BRP: 12}
	buf, err := bt.MarshalBinary()
	require.NoError(t, err)
	var got BitTiming
	require.NoError(t, got.UnmarshalBinary(buf))
	assert.Equal(t, bt, got)
}

func TestModeRoundtrip(t *testing.T) {
	m := Mode{Mode: DeviceModeStart, Flags: ModeLoopBack | ModeFD}
	buf, err := m.MarshalBinary()
	require.NoError(t, err)
	var got Mode
	require.NoError(t, got.UnmarshalBinary(buf))
	assert.Equal(t, m, got)
}

func TestDeviceConfigDecode(t *testing.T) {
	buf := make([]byte, DeviceConfigSize)
	buf[3] = 1 // icount
	buf[4] = 0x78
	buf[5] = 0x56
	buf[6] = 0x34
	buf[7] = 0x12
	var cfg DeviceConfig
	require.NoError(t, cfg.UnmarshalBinary(buf))
	assert.Equal(t, uint8(1), cfg.ICount)
	assert.Equal(t, uint32(0x12345678), cfg.SWVersion)
}

func TestDeviceConfigUnmarshalShortBuffer(t *testing.T) {
	var cfg DeviceConfig
	assert.Error(t, cfg.UnmarshalBinary(make([]byte, DeviceConfigSize-1)))
}

func TestBitTimingConstsSupportsFD(t *testing.T) {
	buf := make([]byte, BitTimingConstsSize)
	buf[0] = 0x00
	buf[1] = 0x01 // feature = 0x100, FD bit set
	var c BitTimingConsts
	require.NoError(t, c.UnmarshalBinary(buf))
	assert.True(t, c.SupportsFD())
}

// TestHostFrameFlagDecomposition matches can_id = 0xC0000123 → ext, rtr, id 0x123.
func TestHostFrameFlagDecomposition(t *testing.T) {
	f := HostFrame{CanID: 0xC0000123}
	assert.NotZero(t, f.CanID&CANIDFlagExt)
	assert.NotZero(t, f.CanID&CANIDFlagRTR)
	assert.Equal(t, uint32(0x123), f.CanID&CANIDMask)
}

func TestHostFrameLoopbackSentinel(t *testing.T) {
	ingress := HostFrame{EchoID: EchoIDIngress}
	echo := HostFrame{EchoID: 1}
	assert.Equal(t, EchoIDIngress, ingress.EchoID)
	assert.NotEqual(t, EchoIDIngress, echo.EchoID)
}

func TestHostFrameRoundtripClassic(t *testing.T) {
	f := HostFrame{
		EchoID:  EchoIDIngress,
		CanID:   0x123,
		DLC:     2,
		Channel: 0,
		Flags:   0,
		Data:    []byte{0xAA, 0xBB},
		WireLen: HostFrameClassicPayload,
	}
	buf, err := f.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, buf, HostFrameClassicSize)
	var got HostFrame
	require.NoError(t, got.UnmarshalBinary(buf))
	assert.Equal(t, f.EchoID, got.EchoID)
	assert.Equal(t, f.CanID, got.CanID)
	assert.Equal(t, f.DLC, got.DLC)
	assert.Equal(t, f.Data, got.Data)
}

func TestHostFrameRoundtripFD(t *testing.T) {
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i)
	}
	f := HostFrame{EchoID: 7, CanID: 0x1ABCDEF, DLC: 15, Channel: 1, Flags: FrameFlagFD | FrameFlagBRS, Data: data, WireLen: HostFrameFDPayload}
	buf, err := f.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, buf, HostFrameFDSize)
	var got HostFrame
	require.NoError(t, got.UnmarshalBinary(buf))
	assert.Equal(t, f.Data, got.Data)
	assert.Equal(t, f.Flags, got.Flags)
}

func TestHostFrameMarshalInfersWireLenFromData(t *testing.T) {
	f := HostFrame{DLC: 2, Data: []byte{0x01, 0x02}}
	buf, err := f.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, buf, HostFrameClassicSize)
}

func TestHostFrameMarshalPayloadTooLarge(t *testing.T) {
	f := HostFrame{Data: make([]byte, 10), WireLen: HostFrameClassicPayload}
	_, err := f.MarshalBinary()
	assert.Error(t, err)
}

func TestDLCToLenTable(t *testing.T) {
	classic := []uint8{0, 1, 2, 3, 4, 5, 6, 7, 8}
	for _, dlc := range classic {
		assert.Equal(t, int(dlc), DLCToLen(dlc))
	}
	fd := map[uint8]int{9: 12, 10: 16, 11: 20, 12: 24, 13: 32, 14: 48, 15: 64}
	for dlc, length := range fd {
		assert.Equal(t, length, DLCToLen(dlc))
	}
}
