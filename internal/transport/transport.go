// Package transport implements the asynchronous USB transfer engine: it
// owns the usbdevfs file descriptor, a fixed arena of transfer slots, and
// the event-pump goroutine that drives their completion. Everything above
// this package (device sessions, the channel façade) only ever sees
// blocking control/send calls and a channel of decoded frames.
package transport

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/canhost/gsusb/internal/logging"
	"github.com/canhost/gsusb/internal/metrics"
	"github.com/canhost/gsusb/internal/usbfs"
	"github.com/canhost/gsusb/internal/wire"
)

func slicePtr(s []byte) uintptr {
	return uintptr(unsafe.Pointer(&s[0]))
}

const (
	ifaceNum = 0

	epBulkOut = 0x02
	epBulkIn  = 0x81

	numBulkIn = 32

	controlTimeoutMS = 1000
	bulkOutTimeoutMS = 1000
	bulkInTimeoutMS  = 5000

	setupPacketSize = 8
)

// Transport owns one open gs_usb device: the usbfs handle, its transfer
// arena, and the event pump that services it.
type Transport struct {
	fd         int
	payloadLen int // 8 (classic) or 64 (FD), negotiated by the caller via SetFrameFormat

	control *transferSlot
	bulkOut *transferSlot
	bulkIn  []*transferSlot

	pinner runtime.Pinner

	running  atomic.Bool
	pumpDone chan struct{}

	rx chan wire.HostFrame

	sendMu sync.Mutex

	kernelDriverDetached bool
}

// Open finds a device by (vid, pid) over sysfs, opens its usbfs node,
// detaches any kernel driver bound to interface 0, claims it, and allocates
// the transfer arena. On any failure the partially acquired state is fully
// unwound before returning.
func Open(vid, pid uint16) (*Transport, error) {
	info, err := findByVIDPID(vid, pid)
	if err != nil {
		return nil, err
	}
	return openAt(info.BusNumber, info.DeviceNumber)
}

// OpenAt opens a device already located by bus/device number, bypassing
// VID/PID discovery (used by ListDevices-based selection).
func OpenAt(busNumber, deviceNumber int) (*Transport, error) {
	return openAt(busNumber, deviceNumber)
}

func openAt(busNumber, deviceNumber int) (t *Transport, err error) {
	fd, err := usbfs.OpenDevice(busNumber, deviceNumber)
	if err != nil {
		return nil, opErr("open", err)
	}

	tr := &Transport{
		fd:         fd,
		payloadLen: wire.HostFrameClassicPayload,
		rx:         make(chan wire.HostFrame, numBulkIn*4),
		pumpDone:   make(chan struct{}),
	}

	defer func() {
		if err != nil {
			tr.unwind()
		}
	}()

	if derr := usbfs.Disconnect(fd, ifaceNum); derr != nil {
		if derr != unix.ENODATA && derr != unix.ENOSYS {
			logging.L().Debug("kernel driver detach failed, continuing", "error", derr)
		}
	} else {
		tr.kernelDriverDetached = true
	}

	if cerr := usbfs.ClaimInterface(fd, ifaceNum); cerr != nil {
		return nil, opErr("claim_interface", cerr)
	}

	if aerr := tr.allocateArena(); aerr != nil {
		return nil, aerr
	}

	tr.running.Store(true)
	go tr.pump()

	return tr, nil
}

// SetFrameFormat switches the bulk-IN buffer size used by StartRx and by
// bulk-IN resubmission: classic (8-byte) frames or FD (64-byte) frames.
// Send is not affected; it transmits whatever payload it is given. Must be
// called before StartRx.
func (t *Transport) SetFrameFormat(fd bool) {
	if fd {
		t.payloadLen = wire.HostFrameFDPayload
	} else {
		t.payloadLen = wire.HostFrameClassicPayload
	}
}

func (t *Transport) allocateArena() error {
	t.control = newSlot(0, kindControl, setupPacketSize+256)
	t.bulkOut = newSlot(1, kindBulkOut, wire.HostFrameFDSize)
	t.bulkIn = make([]*transferSlot, numBulkIn)
	for i := 0; i < numBulkIn; i++ {
		t.bulkIn[i] = newSlot(2+i, kindBulkIn, wire.HostFrameFDSize)
	}

	t.pinner.Pin(&t.control.buf[0])
	t.pinner.Pin(t.control)
	t.pinner.Pin(&t.bulkOut.buf[0])
	t.pinner.Pin(t.bulkOut)
	for _, s := range t.bulkIn {
		t.pinner.Pin(&s.buf[0])
		t.pinner.Pin(s)
	}
	return nil
}

// ControlOut issues a host-to-device vendor control request and blocks
// until it completes.
func (t *Transport) ControlOut(req wire.UsbBreq, channel uint16, data []byte) error {
	metrics.ControlRequests.WithLabelValues(req.String()).Inc()
	return t.control0(0b0100_0001, req, channel, data)
}

// ControlIn issues a device-to-host vendor control request, blocks until
// complete, and returns the first wantLen bytes of the reply.
func (t *Transport) ControlIn(req wire.UsbBreq, channel uint16, wantLen int) ([]byte, error) {
	metrics.ControlRequests.WithLabelValues(req.String()).Inc()
	buf := make([]byte, wantLen)
	n, err := t.controlIn0(0b1100_0001, req, channel, buf)
	if err != nil {
		return nil, err
	}
	if n < wantLen {
		return nil, ErrInvalidControlResponse
	}
	return buf[:n], nil
}

func (t *Transport) control0(bmRequestType uint8, req wire.UsbBreq, channel uint16, data []byte) error {
	s := t.control
	s.urb = usbfs.URB{}
	buf := s.buf[:setupPacketSize+len(data)]
	fillSetup(buf, bmRequestType, req, channel, len(data))
	copy(buf[setupPacketSize:], data)
	return t.submitAndWait(s, usbfs.URBTypeControl, 0, buf, controlTimeoutMS)
}

func (t *Transport) controlIn0(bmRequestType uint8, req wire.UsbBreq, channel uint16, out []byte) (int, error) {
	s := t.control
	s.urb = usbfs.URB{}
	buf := s.buf[:setupPacketSize+len(out)]
	fillSetup(buf, bmRequestType, req, channel, len(out))
	for i := range buf[setupPacketSize:] {
		buf[setupPacketSize+i] = 0
	}
	if err := t.submitAndWait(s, usbfs.URBTypeControl, 0, buf, controlTimeoutMS); err != nil {
		return 0, err
	}
	n := int(s.urb.ActualLength) - setupPacketSize
	if n < 0 {
		n = 0
	}
	copy(out, buf[setupPacketSize:setupPacketSize+n])
	return n, nil
}

func fillSetup(buf []byte, bmRequestType uint8, req wire.UsbBreq, wValue uint16, wLength int) {
	buf[0] = bmRequestType
	buf[1] = uint8(req)
	binary.LittleEndian.PutUint16(buf[2:4], wValue)
	binary.LittleEndian.PutUint16(buf[4:6], 0)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(wLength))
}

// Send transmits one wire-encoded frame over bulk-OUT and blocks until the
// transfer completes. There is a single bulk-OUT slot; concurrent calls are
// serialized by sendMu, so one transfer is in flight at a time.
func (t *Transport) Send(payload []byte) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	s := t.bulkOut
	s.urb = usbfs.URB{}
	buf := s.buf[:len(payload)]
	copy(buf, payload)
	if err := t.submitAndWait(s, usbfs.URBTypeBulk, epBulkOut, buf, bulkOutTimeoutMS); err != nil {
		metrics.TransferErrors.WithLabelValues("send").Inc()
		return err
	}
	metrics.BulkOutFrames.Inc()
	return nil
}

func (t *Transport) submitAndWait(s *transferSlot, typ uint8, endpoint uint8, buf []byte, timeoutMS uint32) error {
	s.urb.Type = typ
	s.urb.Endpoint = endpoint
	s.urb.Buffer = slicePtr(buf)
	s.urb.BufferLength = int32(len(buf))
	s.urb.UserContext = uintptr(s.idx)

	// drain any stale signal from a previous use of this slot
	select {
	case <-s.done:
	default:
	}

	if err := usbfs.SubmitURB(t.fd, &s.urb); err != nil {
		return opErr("submit_urb", err)
	}

	select {
	case <-s.done:
	case <-time.After(time.Duration(timeoutMS) * time.Millisecond):
		_ = usbfs.DiscardURB(t.fd, &s.urb)
		<-s.done
		return opErr("urb_timeout", fmt.Errorf("timed out after %dms", timeoutMS))
	}

	if s.urb.Status != 0 {
		return opErr("urb_status", unix.Errno(-s.urb.Status))
	}
	return nil
}

// StartRx fills and submits all 32 bulk-IN transfers. On a submit failure
// partway through, every transfer submitted so far is discarded before
// returning, leaking nothing.
func (t *Transport) StartRx() error {
	submitted := make([]*transferSlot, 0, numBulkIn)
	for _, s := range t.bulkIn {
		s.urb = usbfs.URB{}
		s.urb.Type = usbfs.URBTypeBulk
		s.urb.Endpoint = epBulkIn
		buf := s.buf[:t.payloadLen+wireHeaderSize]
		s.urb.Buffer = slicePtr(buf)
		s.urb.BufferLength = int32(len(buf))
		s.urb.UserContext = uintptr(s.idx)
		if err := usbfs.SubmitURB(t.fd, &s.urb); err != nil {
			for _, done := range submitted {
				_ = usbfs.DiscardURB(t.fd, &done.urb)
			}
			return opErr("submit_urb", err)
		}
		submitted = append(submitted, s)
	}
	return nil
}

// StopRx cancels every outstanding bulk-IN transfer. It is idempotent and
// safe to call from Close: a NotFound from the cancel ioctl means the
// transfer already completed or was never submitted, and is treated as
// success.
func (t *Transport) StopRx() error {
	for _, s := range t.bulkIn {
		if err := usbfs.DiscardURB(t.fd, &s.urb); err != nil {
			if err != unix.ENODEV && err != unix.EINVAL {
				return opErr("discard_urb", err)
			}
		}
	}
	return nil
}

// TryRecv returns a decoded frame if one is already queued, without
// blocking.
func (t *Transport) TryRecv() (wire.HostFrame, bool) {
	select {
	case f := <-t.rx:
		return f, true
	default:
		return wire.HostFrame{}, false
	}
}

// Recv blocks until a decoded frame is available.
func (t *Transport) Recv() wire.HostFrame {
	return <-t.rx
}

// RecvChan exposes the rx channel directly for a reader goroutine's select
// loop (so it can also watch a stop signal).
func (t *Transport) RecvChan() <-chan wire.HostFrame {
	return t.rx
}

const wireHeaderSize = wire.HostFrameHeaderSize

// Close tears down the transport: stops rx, clears the running flag (which
// unblocks the event pump's blocking reap via the discards above), joins
// the pump, unpins the arena, releases the interface, reattaches the
// kernel driver if we detached it, and closes the file descriptor. Safe to
// call more than once.
func (t *Transport) Close() error {
	if !t.running.CompareAndSwap(true, false) {
		return nil
	}
	_ = t.StopRx()
	_ = usbfs.DiscardURB(t.fd, &t.control.urb)
	_ = usbfs.DiscardURB(t.fd, &t.bulkOut.urb)
	<-t.pumpDone
	t.unwind()
	return nil
}

func (t *Transport) unwind() {
	t.pinner.Unpin()
	if t.fd >= 0 {
		_ = usbfs.ReleaseInterface(t.fd, ifaceNum)
		if t.kernelDriverDetached {
			_ = usbfs.Connect(t.fd, ifaceNum)
		}
		_ = unix.Close(t.fd)
		t.fd = -1
	}
}
