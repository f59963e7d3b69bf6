package gsusb

import (
	"github.com/canhost/gsusb/internal/wire"
)

// controlWrite records one ControlOut call, for scenario assertions.
type controlWrite struct {
	req     wire.UsbBreq
	channel uint16
	data    []byte
}

// fakeTransport is the mock Transport used by the end-to-end scenario
// tests: it records every control write, serves canned control-in
// responses, and lets a test inject bulk-in frames directly onto rx.
type fakeTransport struct {
	writes []controlWrite

	deviceConfig    wire.DeviceConfig
	bitTimingConsts wire.BitTimingConsts

	rx chan wire.HostFrame

	sent [][]byte

	frameFormatFD bool
	startRxCalls  int
	stopRxCalls   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		deviceConfig: wire.DeviceConfig{ICount: 0, SWVersion: 1, HWVersion: 1},
		bitTimingConsts: wire.BitTimingConsts{
			Feature:  0,
			FClkCAN:  48_000_000,
			TSeg1Min: 1, TSeg1Max: 16,
			TSeg2Min: 1, TSeg2Max: 8,
			SJWMax: 4,
			BRPMin: 1, BRPMax: 1024, BRPInc: 1,
		},
		rx: make(chan wire.HostFrame, 16),
	}
}

func (f *fakeTransport) ControlOut(req wire.UsbBreq, channel uint16, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	f.writes = append(f.writes, controlWrite{req: req, channel: channel, data: cp})
	return nil
}

func (f *fakeTransport) ControlIn(req wire.UsbBreq, channel uint16, wantLen int) ([]byte, error) {
	switch req {
	case wire.BreqDeviceConfig:
		buf, _ := f.deviceConfig.MarshalBinary()
		return buf[:wantLen], nil
	case wire.BreqBitTimingConst:
		buf, _ := f.bitTimingConsts.MarshalBinary()
		return buf[:wantLen], nil
	default:
		return make([]byte, wantLen), nil
	}
}

func (f *fakeTransport) Send(payload []byte) error {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeTransport) StartRx() error {
	f.startRxCalls++
	return nil
}

func (f *fakeTransport) StopRx() error {
	f.stopRxCalls++
	return nil
}

func (f *fakeTransport) RecvChan() <-chan wire.HostFrame { return f.rx }

func (f *fakeTransport) SetFrameFormat(fd bool) { f.frameFormatFD = fd }

func (f *fakeTransport) Close() error { return nil }

// inject pushes a raw bulk-in buffer through the same decode path the real
// event pump uses, onto rx.
func (f *fakeTransport) inject(buf []byte) {
	var hf wire.HostFrame
	if err := hf.UnmarshalBinary(buf); err == nil {
		f.rx <- hf
	}
}
