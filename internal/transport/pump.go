package transport

import (
	"golang.org/x/sys/unix"

	"github.com/canhost/gsusb/internal/logging"
	"github.com/canhost/gsusb/internal/metrics"
	"github.com/canhost/gsusb/internal/usbfs"
	"github.com/canhost/gsusb/internal/wire"
)

// pump is the event-pump goroutine: it blocks in USBDEVFS_REAPURB, the
// usbfs equivalent of a platform library's handle_events call, for as long
// as running is true. Close clears running and discards every outstanding
// transfer, which is what unblocks the final reap calls.
func (t *Transport) pump() {
	defer close(t.pumpDone)
	for t.running.Load() {
		urb, err := usbfs.ReapURB(t.fd)
		if err != nil {
			if err == unix.ENODEV || err == unix.EBADF {
				return
			}
			continue
		}
		if urb == nil {
			continue
		}
		t.dispatch(urb)
	}
}

func (t *Transport) dispatch(urb *usbfs.URB) {
	idx := int(urb.UserContext)
	switch {
	case idx == t.control.idx:
		t.signal(t.control)
	case idx == t.bulkOut.idx:
		t.signal(t.bulkOut)
	default:
		for _, s := range t.bulkIn {
			if s.idx == idx {
				t.completeBulkIn(s)
				return
			}
		}
	}
}

func (t *Transport) signal(s *transferSlot) {
	select {
	case s.done <- struct{}{}:
	default:
	}
}

const cancelled = -int32(unix.ECONNRESET)

func (t *Transport) completeBulkIn(s *transferSlot) {
	if s.urb.Status == 0 {
		n := int(s.urb.ActualLength)
		var frame wire.HostFrame
		if err := frame.UnmarshalBinary(s.buf[:n]); err == nil {
			metrics.BulkInFrames.Inc()
			select {
			case t.rx <- frame:
				metrics.RxQueueDepth.Set(float64(len(t.rx)))
			default:
				logging.L().Warn("rx channel full, dropping frame")
			}
		}
	}
	if s.urb.Status == cancelled {
		return
	}
	t.resubmitBulkIn(s)
}

func (t *Transport) resubmitBulkIn(s *transferSlot) {
	s.urb = usbfs.URB{}
	s.urb.Type = usbfs.URBTypeBulk
	s.urb.Endpoint = epBulkIn
	buf := s.buf[:t.payloadLen+wire.HostFrameHeaderSize]
	s.urb.Buffer = slicePtr(buf)
	s.urb.BufferLength = int32(len(buf))
	s.urb.UserContext = uintptr(s.idx)
	if err := usbfs.SubmitURB(t.fd, &s.urb); err != nil {
		metrics.TransferErrors.WithLabelValues("resubmit").Inc()
		logging.L().Warn("failed to resubmit bulk-in transfer", "slot", s.idx, "error", err)
	}
}
