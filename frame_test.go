package gsusb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameValidateExtID(t *testing.T) {
	f := Frame{Ext: true, CanID: 1 << 29, DLC: 0}
	assert.ErrorIs(t, f.Validate(), ErrInvalidFrame)
}

func TestFrameValidateStandardID(t *testing.T) {
	f := Frame{Ext: false, CanID: 1 << 11, DLC: 0}
	assert.ErrorIs(t, f.Validate(), ErrInvalidFrame)
}

func TestFrameValidateFDRTRConflict(t *testing.T) {
	f := Frame{FD: true, RTR: true, DLC: 0}
	assert.ErrorIs(t, f.Validate(), ErrInvalidFrame)
}

func TestFrameValidateBRSRequiresFD(t *testing.T) {
	f := Frame{BRS: true, DLC: 0}
	assert.ErrorIs(t, f.Validate(), ErrInvalidFrame)
}

func TestFrameValidateDataLengthMismatch(t *testing.T) {
	f := Frame{DLC: 2}.WithData([]byte{0x01})
	assert.ErrorIs(t, f.Validate(), ErrInvalidFrame)
}

func TestFrameValidateOK(t *testing.T) {
	f := Frame{DLC: 2}.WithData([]byte{0xAA, 0xBB})
	assert.NoError(t, f.Validate())
}

func TestFrameHostFrameRoundtrip(t *testing.T) {
	f := Frame{Channel: 1, Ext: true, CanID: 0x1ABCDEF, DLC: 4}.WithData([]byte{1, 2, 3, 4})
	hf := f.toHostFrame(42)
	got := fromHostFrame(hf)
	assert.Equal(t, f.Channel, got.Channel)
	assert.Equal(t, f.CanID, got.CanID)
	assert.Equal(t, f.Ext, got.Ext)
	assert.Equal(t, f.Data(), got.Data())
	assert.True(t, got.Loopback) // echoID=42 is not the ingress sentinel
}

func TestDLCToLenAndBack(t *testing.T) {
	assert.Equal(t, 0, DLCToLen(0))
	assert.Equal(t, 8, DLCToLen(8))
	assert.Equal(t, 64, DLCToLen(15))
	assert.Equal(t, uint8(8), LenToDLC(8))
	assert.Equal(t, uint8(9), LenToDLC(9))
}
