package transport

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const sysfsDeviceDir = "/sys/bus/usb/devices"

// DeviceInfo describes one USB device found by sysfs enumeration, enough to
// open it and to let a caller pick among several matches.
type DeviceInfo struct {
	BusNumber    int
	DeviceNumber int
	VID          uint16
	PID          uint16
}

func readSysfsHex(devName, attr string) (uint64, error) {
	data, err := os.ReadFile(fmt.Sprintf("%s/%s/%s", sysfsDeviceDir, devName, attr))
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), 16, 32)
}

func readSysfsInt(devName, attr string) (int, error) {
	data, err := os.ReadFile(fmt.Sprintf("%s/%s/%s", sysfsDeviceDir, devName, attr))
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 32)
	return int(v), err
}

// EnumerateDevices lists every USB device visible under sysfs. Entries whose
// vendor/product attributes can't be read (hubs, interfaces, root devices)
// are skipped rather than failing the whole enumeration.
func EnumerateDevices() ([]DeviceInfo, error) {
	entries, err := os.ReadDir(sysfsDeviceDir)
	if err != nil {
		return nil, err
	}
	res := make([]DeviceInfo, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "usb") || strings.Contains(name, ":") {
			continue
		}
		vid, err := readSysfsHex(name, "idVendor")
		if err != nil {
			continue
		}
		pid, err := readSysfsHex(name, "idProduct")
		if err != nil {
			continue
		}
		bus, err := readSysfsInt(name, "busnum")
		if err != nil {
			continue
		}
		dev, err := readSysfsInt(name, "devnum")
		if err != nil {
			continue
		}
		res = append(res, DeviceInfo{BusNumber: bus, DeviceNumber: dev, VID: uint16(vid), PID: uint16(pid)})
	}
	return res, nil
}

// findByVIDPID returns the sysfs location of the first device matching
// (vid, pid), or ErrDeviceNotFound.
func findByVIDPID(vid, pid uint16) (DeviceInfo, error) {
	devices, err := EnumerateDevices()
	if err != nil {
		return DeviceInfo{}, opErr("enumerate", err)
	}
	for _, d := range devices {
		if d.VID == vid && d.PID == pid {
			return d, nil
		}
	}
	return DeviceInfo{}, ErrDeviceNotFound
}
