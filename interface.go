package gsusb

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/canhost/gsusb/internal/logging"
	"github.com/canhost/gsusb/internal/metrics"
	"github.com/canhost/gsusb/internal/wire"
)

type ifaceState uint8

const (
	stateOpen ifaceState = iota
	stateRunning
	stateClosed
)

// Interface is the single public surface of the driver: per-channel
// configuration, bit-timing resolution, and the start/stop/send lifecycle.
// It is not safe for concurrent Start/Stop/Send/setter calls from multiple
// goroutines without external synchronization beyond what's documented per
// method; internally it serializes against its own reader task.
type Interface struct {
	mu    sync.Mutex
	state ifaceState

	dev      *Device
	channels []channelConfig
	consts   []bitTimingConsts
	fdOK     bool
	payloadLen int

	echoID atomic.Uint32

	readerStop chan struct{}
	readerDone chan struct{}
}

// NewInterface opens a device (by default the gs_usb 0x1d50:0x606f VID/PID,
// overridable via WithVIDPID/WithBusDevice), negotiates host byte order,
// and reads the device's channel count and per-channel bit-timing
// constants. The returned Interface starts in the Open state with all
// channels at their defaults (500 kbit/s, enabled, other flags clear).
func NewInterface(opts ...Option) (*Interface, error) {
	cfg := newOpenConfig(opts...)

	var dev *Device
	var err error
	if cfg.useBusDevice {
		dev, err = openDeviceAt(cfg.busNumber, cfg.devNumber)
	} else {
		dev, err = openDevice(cfg.vid, cfg.pid)
	}
	if err != nil {
		return nil, err
	}

	iface, err := buildInterface(dev)
	if err != nil {
		_ = dev.close()
		return nil, err
	}
	return iface, nil
}

func buildInterface(dev *Device) (*Interface, error) {
	if err := dev.setHostFormat(0); err != nil {
		return nil, err
	}
	devCfg, err := dev.getDeviceConfig()
	if err != nil {
		return nil, err
	}
	numChannels := int(devCfg.ICount) + 1

	channels := make([]channelConfig, numChannels)
	consts := make([]bitTimingConsts, numChannels)
	fdOK := false
	for ch := 0; ch < numChannels; ch++ {
		channels[ch] = defaultChannelConfig()
		c, err := dev.getBitTimingConsts(uint8(ch))
		if err != nil {
			return nil, err
		}
		consts[ch] = fromWireConsts(c)
		if c.SupportsFD() {
			fdOK = true
		}
	}

	return &Interface{
		state:      stateOpen,
		dev:        dev,
		channels:   channels,
		consts:     consts,
		fdOK:       fdOK,
		payloadLen: wire.HostFrameClassicPayload,
	}, nil
}

// Channels returns the number of CAN channels this device exposes.
func (ifc *Interface) Channels() int {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	return len(ifc.channels)
}

// SupportsFD reports whether any channel on this device advertises CAN-FD
// support.
func (ifc *Interface) SupportsFD() bool {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	return ifc.fdOK
}

func (ifc *Interface) checkChannel(ch int) error {
	if ch < 0 || ch >= len(ifc.channels) {
		return ErrInvalidChannel
	}
	return nil
}

func (ifc *Interface) mutate(ch int, f func(c *channelConfig)) error {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	if ifc.state == stateClosed {
		return ErrNotOpen
	}
	if ifc.state == stateRunning {
		return ErrAlreadyRunning
	}
	if err := ifc.checkChannel(ch); err != nil {
		return err
	}
	f(&ifc.channels[ch])
	return nil
}

func (ifc *Interface) SetBitrate(ch int, bitsPerSecond uint32) error {
	return ifc.mutate(ch, func(c *channelConfig) { c.bitrate = bitsPerSecond })
}

func (ifc *Interface) SetDataBitrate(ch int, bitsPerSecond uint32) error {
	return ifc.mutate(ch, func(c *channelConfig) { c.dataBitrate = bitsPerSecond })
}

func (ifc *Interface) SetEnabled(ch int, enabled bool) error {
	return ifc.mutate(ch, func(c *channelConfig) { c.enabled = enabled })
}

func (ifc *Interface) SetLoopback(ch int, loopback bool) error {
	return ifc.mutate(ch, func(c *channelConfig) { c.loopback = loopback })
}

func (ifc *Interface) SetMonitor(ch int, monitor bool) error {
	return ifc.mutate(ch, func(c *channelConfig) { c.monitor = monitor })
}

func (ifc *Interface) SetFD(ch int, fd bool) error {
	if fd && !ifc.SupportsFD() {
		return ErrUnsupportedFeature
	}
	return ifc.mutate(ch, func(c *channelConfig) { c.fd = fd })
}

// Identify toggles the device's physical identification indicator (e.g. an
// LED), where supported.
func (ifc *Interface) Identify(on bool) error {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	if ifc.state == stateClosed {
		return ErrNotOpen
	}
	return ifc.dev.setIdentify(on)
}

// Timestamp reads the device's free-running hardware clock.
func (ifc *Interface) Timestamp() (time.Duration, error) {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	if ifc.state == stateClosed {
		return 0, ErrNotOpen
	}
	return ifc.dev.timestamp()
}

// SetBerr forwards a bus-error-reporting configuration payload to ch. The
// device-side response to this request is undefined by the protocol — it
// may be ignored or silently dropped — so a nil error here only means the
// control transfer itself completed.
func (ifc *Interface) SetBerr(ch int, data []byte) error {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	if ifc.state == stateClosed {
		return ErrNotOpen
	}
	if err := ifc.checkChannel(ch); err != nil {
		return err
	}
	return ifc.dev.setBerr(uint8(ch), data)
}

// Start resolves bit timing for every enabled channel, pushes BitTiming
// (and DataBitTiming/FD mode where applicable) followed by Mode=Start,
// begins filling the bulk-IN pipeline, and spawns the reader task that
// decodes incoming frames and invokes cb. cb runs on the reader goroutine
// and must not call back into Send or Stop synchronously.
func (ifc *Interface) Start(cb func(Frame)) error {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()

	switch ifc.state {
	case stateClosed:
		return ErrNotOpen
	case stateRunning:
		return ErrAlreadyRunning
	}

	anyFD := false
	for _, c := range ifc.channels {
		if c.enabled && c.fd {
			anyFD = true
		}
	}
	ifc.payloadLen = wire.HostFrameClassicPayload
	if anyFD {
		ifc.payloadLen = wire.HostFrameFDPayload
	}
	ifc.dev.setFrameFormat(anyFD)

	for ch, c := range ifc.channels {
		if !c.enabled {
			continue
		}
		bt, err := solveBitTiming(ifc.consts[ch], c.bitrate)
		if err != nil {
			return err
		}
		if err := ifc.dev.setBitTiming(uint8(ch), bt); err != nil {
			return err
		}
		if c.fd {
			dbt, err := solveBitTiming(ifc.consts[ch], c.dataBitrate)
			if err != nil {
				return err
			}
			if err := ifc.dev.setDataBitTiming(uint8(ch), dbt); err != nil {
				return err
			}
		}
		var flags uint32
		if c.monitor {
			flags |= wire.ModeListenOnly
		}
		if c.loopback {
			flags |= wire.ModeLoopBack
		}
		if c.fd {
			flags |= wire.ModeFD
		}
		if err := ifc.dev.setMode(uint8(ch), wire.DeviceModeStart, flags); err != nil {
			return err
		}
	}

	if err := ifc.dev.startRx(); err != nil {
		return err
	}

	ifc.readerStop = make(chan struct{})
	ifc.readerDone = make(chan struct{})
	go ifc.readLoop(cb, ifc.readerStop, ifc.readerDone)

	ifc.state = stateRunning
	return nil
}

func (ifc *Interface) readLoop(cb func(Frame), stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	rx := ifc.dev.recvChan()
	for {
		select {
		case <-stop:
			return
		case hf := <-rx:
			f := fromHostFrame(hf)
			if f.Loopback {
				metrics.LoopbackEchoes.Inc()
			}
			cb(f)
		}
	}
}

// Stop cancels the bulk-IN pipeline, resets every enabled channel's mode,
// and joins the reader task. No further callback invocations occur once
// Stop has returned, even if frames were already queued.
func (ifc *Interface) Stop() error {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()

	if ifc.state == stateClosed {
		return ErrNotOpen
	}
	if ifc.state != stateRunning {
		return nil
	}

	if err := ifc.dev.stopRx(); err != nil {
		logging.L().Warn("stop_rx failed", "error", err)
	}

	close(ifc.readerStop)
	<-ifc.readerDone
	ifc.readerStop = nil
	ifc.readerDone = nil

	for ch, c := range ifc.channels {
		if !c.enabled {
			continue
		}
		if err := ifc.dev.setMode(uint8(ch), wire.DeviceModeReset, 0); err != nil {
			logging.L().Warn("reset mode failed", "channel", ch, "error", err)
		}
	}

	ifc.state = stateOpen
	return nil
}

// Send encodes f and transmits it, assigning the next echo_id in the
// monotonically increasing sequence (skipping the ingress sentinel so a
// loopback echo of this send is never mistaken for genuine ingress).
func (ifc *Interface) Send(f Frame) error {
	ifc.mu.Lock()
	running := ifc.state == stateRunning
	payloadLen := ifc.payloadLen
	closed := ifc.state == stateClosed
	ifc.mu.Unlock()

	if closed {
		return ErrNotOpen
	}
	if !running {
		return ErrNotRunning
	}
	if err := f.Validate(); err != nil {
		return err
	}

	echoID := ifc.nextEchoID()
	return ifc.dev.send(f, echoID, payloadLen)
}

func (ifc *Interface) nextEchoID() uint32 {
	for {
		v := ifc.echoID.Add(1)
		if v != wire.EchoIDIngress {
			return v
		}
	}
}

// Close stops the interface if running and releases the underlying USB
// device. Safe to call more than once.
func (ifc *Interface) Close() error {
	ifc.mu.Lock()
	if ifc.state == stateClosed {
		ifc.mu.Unlock()
		return nil
	}
	running := ifc.state == stateRunning
	ifc.mu.Unlock()

	if running {
		if err := ifc.Stop(); err != nil {
			return err
		}
	}

	ifc.mu.Lock()
	ifc.state = stateClosed
	ifc.mu.Unlock()

	return ifc.dev.close()
}
