package transport

import (
	"github.com/canhost/gsusb/internal/usbfs"
)

type transferKind uint8

const (
	kindControl transferKind = iota
	kindBulkOut
	kindBulkIn
)

// transferSlot is one entry in the fixed transfer arena: a URB plus the
// buffer it owns, addressed by a stable index rather than by Go pointer.
// The kernel holds a reference to urb/buf between submit and reap; the
// owning Transport pins both for as long as the slot exists so the garbage
// collector never relocates memory the kernel doesn't know has moved.
type transferSlot struct {
	idx  int
	kind transferKind
	urb  usbfs.URB
	buf  []byte

	// done is signalled by the completion callback for control and
	// bulk-out slots, which have exactly one caller blocked on them at a
	// time. Bulk-in slots leave this nil; their completions go straight
	// to the rx channel and the slot is resubmitted in place.
	done chan struct{}
}

func newSlot(idx int, kind transferKind, bufLen int) *transferSlot {
	s := &transferSlot{
		idx:  idx,
		kind: kind,
		buf:  make([]byte, bufLen),
	}
	if kind != kindBulkIn {
		s.done = make(chan struct{}, 1)
	}
	return s
}
