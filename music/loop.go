package music

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/JeanRibes/keycapture/shared"

	charmlog "github.com/charmbracelet/log"
)

// Rewirer re-runs device discovery, see devices.Graph.
type Rewirer interface {
	Rescan(ctx context.Context) error
}

// Loop gathers what the control loop drives.
type Loop struct {
	Session   *Session
	Capture   *Capture
	Player    *Player
	Decoder   *Decoder
	Patches   *Patches
	Narrative *TimingLog
	Graph     Rewirer
	ExportDir string
	Channel   uint8
	Logger    *charmlog.Logger
}

func (l *Loop) notify(ctx context.Context, SinkUI chan Message, msg Message) {
	select {
	case SinkUI <- msg:
	case <-ctx.Done():
	}
}

// Run serves the requests posted on SinkLoop until Quit or ctx is done,
// reporting state changes on SinkUI.
func Run(ctx context.Context, l *Loop, SinkUI, SinkLoop chan Message) {
	logger := l.Logger
	logger.Info("start")
	ctx = charmlog.WithContext(ctx, logger)

	var cancelPlay context.CancelFunc
	playDone := make(chan error, 1)
	stopPlaying := func() {
		if cancelPlay != nil {
			cancelPlay()
			<-playDone
			cancelPlay = nil
			l.notify(ctx, SinkUI, Message{Type: PlayPause, Boolean: false})
		}
	}
	defer stopPlaying()

loopchan:
	for {
		select {
		case <-ctx.Done():
			logger.Debug("context Done")
			break loopchan
		case err := <-playDone:
			cancelPlay = nil
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("playback", "err", err)
			}
			logger.Info("finished playing")
			l.notify(ctx, SinkUI, Message{Type: PlayPause, Boolean: false})
		case msg := <-SinkLoop:
			switch msg.Type {
			case Quit:
				break loopchan
			case Record:
				if !l.Session.Armed() {
					stopPlaying()
					l.Decoder.ReleaseAll()
				}
				if l.Capture.Toggle() == Stopped {
					logger.Info("stop recording")
					l.notify(ctx, SinkUI, Message{Type: Record, Boolean: false})
					l.notify(ctx, SinkUI, Message{Type: TrackLengthNotify, Number: l.Session.Track().Notes()})
					if l.Narrative != nil {
						l.notify(ctx, SinkUI, Message{Type: Info, String: l.Narrative.String()})
					}
				} else {
					logger.Info("start recording")
					l.notify(ctx, SinkUI, Message{Type: Record, Boolean: true})
					l.notify(ctx, SinkUI, Message{Type: TrackLengthNotify, Number: 0})
				}
			case PlayPause:
				if cancelPlay != nil {
					stopPlaying()
					logger.Info("stop playing")
					continue
				}
				seq, err := l.Session.Finalize()
				if err != nil {
					l.report(ctx, SinkUI, err)
					continue
				}
				var playCtx context.Context
				playCtx, cancelPlay = context.WithCancel(ctx)
				l.Capture.Cancel()
				l.notify(ctx, SinkUI, Message{Type: PlayPause, Boolean: true})
				logger.Info("start playing")
				go func() {
					playDone <- l.Player.Play(playCtx, seq)
				}()
			case Export:
				path, err := l.export(msg.String)
				if err != nil {
					l.report(ctx, SinkUI, err)
					continue
				}
				logger.Info("saved take", "file", path)
				l.notify(ctx, SinkUI, Message{Type: Export, String: path})
			case LoadTake:
				stopPlaying()
				if err := l.load(msg.String); err != nil {
					l.report(ctx, SinkUI, err)
					continue
				}
				logger.Info("loaded take", "file", msg.String)
				l.notify(ctx, SinkUI, Message{Type: LoadTake, String: msg.String})
				l.notify(ctx, SinkUI, Message{Type: TrackLengthNotify, Number: l.Session.Track().Notes()})
			case PatchChange:
				program, err := l.Patches.Step(msg.Number)
				if err != nil {
					l.report(ctx, SinkUI, err)
					continue
				}
				l.notify(ctx, SinkUI, Message{Type: PatchChange, Number: program, String: ProgramName(program)})
			case Volume:
				if err := l.Patches.SetVolume(l.Patches.Volume() + msg.Number); err != nil {
					l.report(ctx, SinkUI, err)
					continue
				}
				l.notify(ctx, SinkUI, Message{Type: Volume, Number: l.Patches.Volume()})
			case RescanMIDI:
				if l.Graph == nil {
					continue
				}
				if err := l.Graph.Rescan(ctx); err != nil {
					l.report(ctx, SinkUI, err)
				}
			case ClearTake:
				if l.Session.Armed() {
					logger.Warn("cannot clear while recording")
					continue
				}
				l.Session.Arm()
				l.Session.Disarm()
				l.notify(ctx, SinkUI, Message{Type: TrackLengthNotify, Number: 0})
			default:
				logger.Printf("unknown message type: %#v", msg.Type)
			}
		}
	}
	logger.Info("stop")
}

// report turns an error into a user notice: informational for an empty
// take, an error otherwise.
func (l *Loop) report(ctx context.Context, SinkUI chan Message, err error) {
	switch {
	case errors.Is(err, ErrEmptyTrack):
		l.notify(ctx, SinkUI, Message{Type: Info, String: "Nothing recorded yet: press r and play a few keys."})
	case errors.Is(err, ErrArmed):
		l.notify(ctx, SinkUI, Message{Type: Info, String: "Stop recording first."})
	default:
		l.Logger.Error(err)
		l.notify(ctx, SinkUI, Message{Type: Error, String: err.Error()})
	}
}

func (l *Loop) export(name string) (string, error) {
	seq, err := l.Session.Finalize()
	if err != nil {
		return "", err
	}
	if name == "" {
		name = "take-" + time.Now().Format("20060102-150405")
	}
	if !strings.HasSuffix(name, ".mid") {
		name += ".mid"
	}
	path := name
	if !filepath.IsAbs(name) && l.ExportDir != "" {
		if err := os.MkdirAll(l.ExportDir, 0o755); err != nil {
			return "", fmt.Errorf("export dir: %w", err)
		}
		path = filepath.Join(l.ExportDir, name)
	}
	if err := seq.WriteFile(path, l.Channel); err != nil {
		return "", fmt.Errorf("export %s: %w", path, err)
	}
	return path, nil
}

func (l *Loop) load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	seq, err := ReadSequence(f)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return l.Session.Load(seq)
}
