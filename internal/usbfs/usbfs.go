package usbfs

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	usbDevPath = "/dev/bus/usb"
)

// GetDriver returns the kernel driver currently bound to iface, if any.
func GetDriver(fd int, iface uint32) (string, error) {
	data := &usbdevfs_getdriver{
		Interface: iface,
	}
	_, _, e := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), ctl_usbdevfs_getdriver, uintptr(unsafe.Pointer(data)))
	if e == 0 {
		return data.String(), nil
	}
	return "", e
}

// ClaimInterface claims iface for exclusive access by this process.
func ClaimInterface(fd, iface int) error {
	_, _, e := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), ctl_usbdevfs_claiminterface, uintptr(iface))
	if e == 0 {
		return nil
	}
	return e
}

// ReleaseInterface releases a previously claimed interface.
func ReleaseInterface(fd, iface int) error {
	_, _, e := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), ctl_usbdevfs_releaseinterface, uintptr(iface))
	if e == 0 {
		return nil
	}
	return e
}

// Disconnect detaches whatever kernel driver is bound to iface so this
// process can claim it instead.
func Disconnect(fd int, iface uint32) error {
	data := usbdevfs_ioctl{
		Interface: int32(iface),
		IoctlCode: int32(ctl_usbdevfs_disconnect),
		Data:      0,
	}
	_, _, e := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), ctl_usbdevfs_ioctl, uintptr(unsafe.Pointer(&data)))
	if e == 0 {
		return nil
	}
	return e
}

// Connect reattaches the kernel driver previously detached with Disconnect.
func Connect(fd int, iface uint32) error {
	data := usbdevfs_ioctl{
		Interface: int32(iface),
		IoctlCode: int32(ctl_usbdevfs_connect),
		Data:      0,
	}
	_, _, e := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), ctl_usbdevfs_ioctl, uintptr(unsafe.Pointer(&data)))
	if e == 0 {
		return nil
	}
	return e
}

// OpenDevice opens the usbfs device node for (busNumber, deviceNumber).
func OpenDevice(busNumber, deviceNumber int) (int, error) {
	devPath := fmt.Sprintf("%s/%.3d/%.3d", usbDevPath, busNumber, deviceNumber)
	fd, err := unix.Open(devPath, unix.O_RDWR, 0)
	if err != nil {
		return -1, err
	}
	return fd, nil
}
