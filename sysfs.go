package gsusb

import "github.com/canhost/gsusb/internal/transport"

// DeviceInfo identifies one USB device discovered on the system, without
// opening it.
type DeviceInfo struct {
	BusNumber    int
	DeviceNumber int
	VID          uint16
	PID          uint16
}

// ListDevices enumerates every USB device visible under sysfs. Use it to
// find candidates when more than one gs_usb-compatible adapter may be
// attached, then pass the result to WithBusDevice.
func ListDevices() ([]DeviceInfo, error) {
	devices, err := transport.EnumerateDevices()
	if err != nil {
		return nil, wrapTransportErr(err)
	}
	res := make([]DeviceInfo, len(devices))
	for i, d := range devices {
		res[i] = DeviceInfo{BusNumber: d.BusNumber, DeviceNumber: d.DeviceNumber, VID: d.VID, PID: d.PID}
	}
	return res, nil
}
