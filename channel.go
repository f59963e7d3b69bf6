package gsusb

// channelConfig holds one channel's configuration, mutated only while the
// Interface is stopped and read when Start pushes it to the device.
type channelConfig struct {
	bitrate     uint32
	dataBitrate uint32
	enabled     bool
	loopback    bool
	monitor     bool
	fd          bool
}

func defaultChannelConfig() channelConfig {
	return channelConfig{
		bitrate: 500_000,
		enabled: true,
	}
}
