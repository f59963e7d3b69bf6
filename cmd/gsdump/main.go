// gsdump is a minimal example of driving the core: it opens the first
// gs_usb device found, starts channel 0 at 500 kbit/s, and prints received
// frames until interrupted. It is not the CLI described by the driver's
// hosting layer, just a smoke test for the package.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/canhost/gsusb"
)

func main() {
	ifc, err := gsusb.NewInterface()
	if err != nil {
		slog.Error("open failed", "error", err)
		os.Exit(1)
	}
	defer ifc.Close()

	if err := ifc.SetBitrate(0, 500_000); err != nil {
		slog.Error("set_bitrate failed", "error", err)
		os.Exit(1)
	}

	err = ifc.Start(func(f gsusb.Frame) {
		fmt.Printf("ch=%d id=%#x dlc=%d data=%x loopback=%v\n", f.Channel, f.CanID, f.DLC, f.Data(), f.Loopback)
	})
	if err != nil {
		slog.Error("start failed", "error", err)
		os.Exit(1)
	}

	select {}
}
