package usbfs

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// URB transfer types, from linux/usb/ch9.h via usbdevice_fs.h.
const (
	URBTypeIso = uint8(0)
	URBTypeInterrupt = uint8(1)
	URBTypeControl = uint8(2)
	URBTypeBulk = uint8(3)
)

// SubmitURB queues urb for asynchronous completion on fd. The kernel reads
// urb.Buffer/BufferLength/Endpoint/Type/UserContext at call time; urb must
// stay alive and unmoved (see runtime.Pinner in the caller) until it is
// reaped or discarded.
func SubmitURB(fd int, urb *URB) error {
	_, _, e := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), ctl_usbdevfs_submiturb, uintptr(unsafe.Pointer(urb)))
	if e != 0 {
		return e
	}
	return nil
}

// DiscardURB cancels a previously submitted urb. The kernel still completes
// it (with status -ECONNRESET) and it must still be reaped.
func DiscardURB(fd int, urb *URB) error {
	_, _, e := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), ctl_usbdevfs_discardurb, uintptr(unsafe.Pointer(urb)))
	if e != 0 {
		return e
	}
	return nil
}

// ReapURB blocks until a submitted urb on fd completes and returns it.
func ReapURB(fd int) (*URB, error) {
	return reapURB(fd, ctl_usbdevfs_reapurb)
}

// ReapURBNonBlocking returns the next completed urb, or (nil, nil) if none
// is ready.
func ReapURBNonBlocking(fd int) (*URB, error) {
	urb, err := reapURB(fd, ctl_usbdevfs_reapurbndelay)
	if err == unix.EAGAIN {
		return nil, nil
	}
	return urb, err
}

func reapURB(fd int, ioc uintptr) (*URB, error) {
	var ptr uintptr
	_, _, e := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), ioc, uintptr(unsafe.Pointer(&ptr)))
	if e != 0 {
		return nil, e
	}
	return (*URB)(unsafe.Pointer(ptr)), nil
}
