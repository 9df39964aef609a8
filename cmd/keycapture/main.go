// Command keycapture records key presses from a MIDI controller, the
// computer keyboard or the mouse as a timed performance, plays it back
// and exports it as a standard MIDI file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/JeanRibes/keycapture/config"
	"github.com/JeanRibes/keycapture/devices"
	"github.com/JeanRibes/keycapture/music"
	. "github.com/JeanRibes/keycapture/shared"
	"github.com/JeanRibes/keycapture/synth"
	"github.com/JeanRibes/keycapture/ui"

	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "keycapture:", err)
		os.Exit(1)
	}
}

func run() error {
	configFile := flag.String("config", "", "config file (default: user config dir)")
	inPort := flag.String("input", "", "MIDI controller name (default: from config, else first found)")
	outPort := flag.String("output", "", "MIDI synth port name (default: from config, else the built-in synth)")
	bpm := flag.Float64("bpm", 0, "tempo written to exported files")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	path := *configFile
	if path == "" {
		var err error
		if path, err = config.Path(); err != nil {
			return err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if *inPort != "" {
		cfg.Input = *inPort
	}
	if *outPort != "" {
		cfg.Output = *outPort
	}
	if *bpm > 0 {
		cfg.Timing.BPM = *bpm
	}

	// the terminal belongs to the UI, logs go next to the config
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(filepath.Join(filepath.Dir(path), "keycapture.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()
	level, err := charmlog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = charmlog.InfoLevel
	}
	if *debug {
		level = charmlog.DebugLevel
	}
	logger := charmlog.NewWithOptions(logFile, charmlog.Options{
		Level:           level,
		ReportTimestamp: true,
		ReportCaller:    *debug,
		Prefix:          "keycapture",
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	defer midi.CloseDriver()
	drv := drivers.Get().(*rtmididrv.Driver)

	channel := cfg.Timing.Channel
	graph := devices.New(drv, logger.WithPrefix("devices"),
		devices.WithInput(cfg.Input),
		devices.WithOutput(cfg.Output),
		devices.WithIgnore("keycapture", "serial-piano"),
		devices.WithOpenTimeout(cfg.OpenTimeout()),
		devices.WithRescanInterval(cfg.RescanInterval()),
		devices.WithFallback(func() (devices.Synth, error) {
			return synth.Open(cfg.Synth.SampleRate, cfg.Synth.Gain)
		}),
	)
	defer func() {
		if err := graph.Close(); err != nil {
			logger.Error("close devices", "err", err)
		}
	}()

	narrative := music.NewTimingLog(logger.WithPrefix("timing"))
	session := music.NewSession(logger.WithPrefix("session"), narrative,
		music.WithResolution(cfg.Timing.Resolution),
		music.WithBPM(cfg.Timing.BPM),
	)
	clock := music.NewDurationClock(logger.WithPrefix("clock"), music.WithPeriod(cfg.ClockPeriod()))
	patches := music.NewPatches(graph, channel, logger.WithPrefix("patches"))

	SinkUI := make(chan Message, 16)
	SinkLoop := make(chan Message, 16)

	keyboard := ui.NewKeyboard(36, 96)
	decoder := music.NewDecoder(keyboard, logger.WithPrefix("feedback"))
	capture := music.NewCapture(session, clock, graph, patches, logger.WithPrefix("capture"),
		music.WithChannel(channel),
		music.WithVelocity(cfg.Timing.Velocity),
		music.WithAutoRelease(func(p music.Pitch) {
			// runs under the capture lock, never wait on the UI
			select {
			case SinkUI <- Message{Type: NoteRest, Number: int(p)}:
			default:
			}
		}),
	)

	report := graph.Connect(ctx, devices.Consumers{Tap: decoder.Receive, Recorder: capture.Receive})
	if report.Silent() {
		logger.Warn("no synth, notes will be recorded but not heard", "err", report.SynthErr)
		SinkUI <- Message{Type: Error, String: "No synth: " + report.SynthErr.Error()}
	}
	if report.ControllerErr != nil {
		logger.Warn("no controller", "err", report.ControllerErr)
	}
	SinkUI <- Message{Type: DeviceChange, String: deviceLine(report.Controller, report.Synth)}

	// playback output is queued apart from live notes
	queue, stopQueue := music.Scheduler(graph.Send, func(err error) {
		logger.Debug("playback send", "err", err)
	})
	player := music.NewPlayer(music.SenderFunc(queue), decoder, music.WithPlayerChannel(channel))

	loop := &music.Loop{
		Session:   session,
		Capture:   capture,
		Player:    player,
		Decoder:   decoder,
		Patches:   patches,
		Narrative: narrative,
		Graph:     graph,
		ExportDir: cfg.ExportDir,
		Channel:   channel,
		Logger:    logger.WithPrefix("loop"),
	}
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		music.Run(ctx, loop, SinkUI, SinkLoop)
	}()
	go graph.Watch(ctx)

	prefs := ui.NewPreferences(cfg, path)
	model := ui.NewModel(keyboard, capture, SinkUI, SinkLoop, graph.Events(), prefs, logger.WithPrefix("ui"))
	model.SetDevice(deviceLine(report.Controller, report.Synth))

	err = ui.Run(ctx, model)
	cancel()
	<-loopDone
	capture.Cancel()
	stopQueue()
	if err := prefs.Save(); err != nil {
		logger.Warn("save preferences", "err", err)
	}
	logger.Info("bye")
	return err
}

func deviceLine(controller, out string) string {
	if controller == "" {
		controller = "computer keyboard"
	}
	if out == "" {
		out = "silent"
	}
	return controller + " → " + out
}
