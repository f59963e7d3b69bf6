package gsusb

// defaultVID and defaultPID are the device's own advertised identifiers
// (§6 External Interfaces).
const (
	defaultVID = 0x1d50
	defaultPID = 0x606f
)

type openConfig struct {
	vid, pid           uint16
	busNumber, devNumber int
	useBusDevice       bool
}

// Option configures NewInterface's device selection.
type Option func(*openConfig)

// WithVIDPID selects a device by USB vendor/product ID (the default is the
// device's own 0x1d50:0x606f).
func WithVIDPID(vid, pid uint16) Option {
	return func(c *openConfig) {
		c.vid, c.pid = vid, pid
	}
}

// WithBusDevice selects a device directly by USB bus/device number,
// bypassing VID/PID discovery entirely (useful when several compatible
// adapters are attached).
func WithBusDevice(busNumber, deviceNumber int) Option {
	return func(c *openConfig) {
		c.busNumber, c.devNumber = busNumber, deviceNumber
		c.useBusDevice = true
	}
}

func newOpenConfig(opts ...Option) openConfig {
	c := openConfig{vid: defaultVID, pid: defaultPID}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
