package gsusb

import (
	"time"

	"github.com/canhost/gsusb/internal/transport"
	"github.com/canhost/gsusb/internal/wire"
)

// transportLike is the subset of *transport.Transport that Device depends
// on. Tests substitute a fake implementation to record control writes and
// inject bulk-in frames without a real USB device; production code always
// passes a genuine *transport.Transport, which satisfies this implicitly.
type transportLike interface {
	ControlOut(req wire.UsbBreq, channel uint16, data []byte) error
	ControlIn(req wire.UsbBreq, channel uint16, wantLen int) ([]byte, error)
	Send(payload []byte) error
	StartRx() error
	StopRx() error
	RecvChan() <-chan wire.HostFrame
	SetFrameFormat(fd bool)
	Close() error
}

// Device wraps a Transport and exposes the gs_usb vendor control requests
// as typed Go calls, plus tx/rx of wire frames. Interface is the layer
// callers actually use; Device is the thin session underneath it.
type Device struct {
	tr transportLike
}

func openDevice(vid, pid uint16) (*Device, error) {
	tr, err := transport.Open(vid, pid)
	if err != nil {
		return nil, wrapTransportErr(err)
	}
	return &Device{tr: tr}, nil
}

func openDeviceAt(busNumber, deviceNumber int) (*Device, error) {
	tr, err := transport.OpenAt(busNumber, deviceNumber)
	if err != nil {
		return nil, wrapTransportErr(err)
	}
	return &Device{tr: tr}, nil
}

func (d *Device) close() error {
	return d.tr.Close()
}

func (d *Device) setHostFormat(value uint32) error {
	buf := []byte{byte(value), byte(value >> 8), byte(value >> 16), byte(value >> 24)}
	return wrapTransportErr(d.tr.ControlOut(wire.BreqHostFormat, 0, buf))
}

func (d *Device) setBitTiming(channel uint8, t BitTiming) error {
	buf, err := t.toWire().MarshalBinary()
	if err != nil {
		return err
	}
	return wrapTransportErr(d.tr.ControlOut(wire.BreqBitTiming, uint16(channel), buf))
}

func (d *Device) setDataBitTiming(channel uint8, t BitTiming) error {
	buf, err := t.toWire().MarshalBinary()
	if err != nil {
		return err
	}
	return wrapTransportErr(d.tr.ControlOut(wire.BreqDataBitTiming, uint16(channel), buf))
}

func (d *Device) setMode(channel uint8, mode, flags uint32) error {
	m := wire.Mode{Mode: mode, Flags: flags}
	buf, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	return wrapTransportErr(d.tr.ControlOut(wire.BreqMode, uint16(channel), buf))
}

// setBerr is a documented pass-through with no defined response; the
// device accepts or ignores it and the caller has no contract either way.
func (d *Device) setBerr(channel uint8, data []byte) error {
	return wrapTransportErr(d.tr.ControlOut(wire.BreqBerr, uint16(channel), data))
}

func (d *Device) setIdentify(on bool) error {
	var v uint32
	if on {
		v = 1
	}
	buf := []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	return wrapTransportErr(d.tr.ControlOut(wire.BreqIdentify, 0, buf))
}

func (d *Device) getDeviceConfig() (wire.DeviceConfig, error) {
	buf, err := d.tr.ControlIn(wire.BreqDeviceConfig, 0, wire.DeviceConfigSize)
	if err != nil {
		return wire.DeviceConfig{}, wrapTransportErr(err)
	}
	var cfg wire.DeviceConfig
	if err := cfg.UnmarshalBinary(buf); err != nil {
		return wire.DeviceConfig{}, wrapTransportErr(err)
	}
	return cfg, nil
}

func (d *Device) getBitTimingConsts(channel uint8) (wire.BitTimingConsts, error) {
	buf, err := d.tr.ControlIn(wire.BreqBitTimingConst, uint16(channel), wire.BitTimingConstsSize)
	if err != nil {
		return wire.BitTimingConsts{}, wrapTransportErr(err)
	}
	var c wire.BitTimingConsts
	if err := c.UnmarshalBinary(buf); err != nil {
		return wire.BitTimingConsts{}, wrapTransportErr(err)
	}
	return c, nil
}

// timestamp reads the device's free-running hardware clock (only
// meaningful once HW_TIMESTAMP mode has been enabled on some channel).
func (d *Device) timestamp() (time.Duration, error) {
	buf, err := d.tr.ControlIn(wire.BreqTimestamp, 0, 4)
	if err != nil {
		return 0, wrapTransportErr(err)
	}
	us := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	return time.Duration(us) * time.Microsecond, nil
}

func (d *Device) setFrameFormat(fd bool) {
	d.tr.SetFrameFormat(fd)
}

func (d *Device) startRx() error {
	return wrapTransportErr(d.tr.StartRx())
}

func (d *Device) stopRx() error {
	return wrapTransportErr(d.tr.StopRx())
}

func (d *Device) send(f Frame, echoID uint32, payloadLen int) error {
	hf := f.toHostFrame(echoID)
	hf.WireLen = payloadLen
	buf, err := hf.MarshalBinary()
	if err != nil {
		return err
	}
	return wrapTransportErr(d.tr.Send(buf))
}

func (d *Device) recvChan() <-chan wire.HostFrame {
	return d.tr.RecvChan()
}
