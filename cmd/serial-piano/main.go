// Command serial-piano exposes a serial button box as a MIDI controller, so
// keycapture records it like any hardware keyboard.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/JeanRibes/keycapture/config"

	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"go.bug.st/serial"
)

func main() {
	configFile := flag.String("config", "", "config file (default: user config dir)")
	portName := flag.String("port", "", "serial port, e.g. /dev/ttyUSB0 (default: from config, else first found)")
	keymapFile := flag.String("keymap", "", "keymap file, one 'keycode:note' per line")
	outPort := flag.String("output", "", "MIDI output port name (default: a new virtual port)")
	debug := flag.Bool("debug", false, "print notes")
	flag.Parse()

	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		Level:           charmlog.InfoLevel,
		ReportTimestamp: true,
		Prefix:          "serial-piano",
	})
	if *debug {
		logger.SetLevel(charmlog.DebugLevel)
	}

	path := *configFile
	if path == "" {
		var err error
		if path, err = config.Path(); err != nil {
			logger.Fatal(err)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatal("config", "err", err)
	}
	if *portName == "" {
		*portName = cfg.Serial.Port
	}
	if *keymapFile == "" {
		*keymapFile = cfg.Serial.Keymap
	}
	if *keymapFile == "" {
		*keymapFile = "keymap.txt"
	}

	keymap, err := LoadKeymap(*keymapFile)
	if err != nil {
		logger.Fatal("keymap", "err", err)
	}

	if *portName == "" {
		ports, err := serial.GetPortsList()
		if err != nil {
			logger.Fatal(err)
		}
		if len(ports) == 0 {
			logger.Fatal("no serial ports found")
		}
		for _, port := range ports {
			logger.Info("found", "port", port)
		}
		*portName = ports[0]
	}
	port, err := serial.Open(*portName, &serial.Mode{BaudRate: cfg.Serial.Baud})
	if err != nil {
		logger.Fatal("serial", "port", *portName, "err", err)
	}
	defer port.Close()

	defer midi.CloseDriver()
	drv := drivers.Get().(*rtmididrv.Driver)
	var out drivers.Out
	if *outPort != "" {
		out, err = midi.FindOutPort(*outPort)
	}
	if out == nil {
		if *outPort != "" {
			logger.Warn("can't find output, opening a virtual one", "want", *outPort, "err", err)
		}
		out, err = drv.OpenVirtualOut("serial-piano")
		if err != nil {
			logger.Fatal(err)
		}
	}
	logger.Info("output", "port", out.String())
	send, err := midi.SendTo(out)
	if err != nil {
		logger.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	bridge := NewBridge(keymap, cfg.Timing.Channel, 64, logger)
	if err := port.ResetInputBuffer(); err != nil {
		logger.Warn("reset input", "err", err)
	}
	reader := &FrameReader{Backoff: 100 * time.Millisecond, MaxErrors: 50, Logger: logger}
	err = reader.Run(ctx, port, func(status, code byte) {
		if msg := bridge.Handle(status, code); msg != nil {
			if err := send(msg); err != nil {
				logger.Error("send", "err", err)
			}
		}
	})
	if err != nil {
		logger.Fatal("serial", "port", *portName, "err", err)
	}
	logger.Info("bye")
}
