package ui

import (
	"github.com/JeanRibes/keycapture/devices"
	"github.com/JeanRibes/keycapture/music"
	. "github.com/JeanRibes/keycapture/shared"

	tea "github.com/charmbracelet/bubbletea"
)

type loopMsg Message

type keysMsg struct{}

type deviceMsg devices.Event

func listenLoop(SinkUI chan Message) tea.Cmd {
	return func() tea.Msg {
		return loopMsg(<-SinkUI)
	}
}

func listenKeys(kb *Keyboard) tea.Cmd {
	return func() tea.Msg {
		<-kb.Changed()
		return keysMsg{}
	}
}

func listenDevices(events <-chan devices.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		return deviceMsg(<-events)
	}
}

// handleLoop applies what the core loop reports.
func (m *Model) handleLoop(msg Message) {
	switch msg.Type {
	case Record:
		m.recording = msg.Boolean
		m.err = ""
		if msg.Boolean {
			m.notice = "recording…"
		}
	case PlayPause:
		m.playing = msg.Boolean
	case TrackLengthNotify:
		m.notes = msg.Number
	case PatchChange:
		m.patch = msg.String
	case Volume:
		m.volume = msg.Number
	case Info:
		m.notice = msg.String
	case Error:
		m.err = msg.String
		m.logger.Error(msg.String)
	case Export:
		m.notice = "saved " + msg.String
		m.selected = 0
		if m.prefs != nil {
			m.prefs.AddTake(msg.String)
			if err := m.prefs.Save(); err != nil {
				m.logger.Warn("preferences", "err", err)
			}
		}
	case DeviceChange:
		m.device = msg.String
	case NoteRest:
		m.rest(music.Pitch(msg.Number))
	case LoadTake:
		m.notice = "loaded " + msg.String
	default:
		m.logger.Debug("unhandled message", "type", msg.Type)
	}
}
