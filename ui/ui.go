// Package ui is the terminal front end: an on-screen keyboard played with
// the computer keyboard or the mouse, and the record/play controls.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JeanRibes/keycapture/devices"
	"github.com/JeanRibes/keycapture/music"
	. "github.com/JeanRibes/keycapture/shared"

	tea "github.com/charmbracelet/bubbletea"
	charmlog "github.com/charmbracelet/log"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	recStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	playStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).PaddingLeft(2)
	selStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
)

// keysTop is the screen line of the first keyboard row.
const keysTop = 3

const maxNoticeLines = 14

type Model struct {
	keyboard *Keyboard
	capture  Capturer
	SinkUI   chan Message
	SinkLoop chan Message
	devices  <-chan devices.Event
	prefs    *Preferences
	logger   *charmlog.Logger

	base       music.Pitch
	held       map[music.Pitch]bool
	mouseDown  bool
	mousePitch music.Pitch
	keysTop    int
	selected   int

	recording bool
	playing   bool
	notes     int
	patch     string
	volume    int
	device    string
	notice    string
	err       string
	quitting  bool
}

func NewModel(kb *Keyboard, capture Capturer, SinkUI, SinkLoop chan Message, events <-chan devices.Event, prefs *Preferences, logger *charmlog.Logger) *Model {
	base := kb.Low()
	if kb.High()-base >= 24 {
		base += 12
	}
	return &Model{
		keyboard: kb,
		capture:  capture,
		SinkUI:   SinkUI,
		SinkLoop: SinkLoop,
		devices:  events,
		prefs:    prefs,
		logger:   logger,
		base:     base,
		held:     map[music.Pitch]bool{},
		keysTop:  keysTop,
		patch:    ProgramName(0),
		volume:   100,
		notice:   music.DefaultNarrative,
	}
}

// SetDevice shows which controller and synth are wired.
func (m *Model) SetDevice(s string) {
	m.device = s
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		listenLoop(m.SinkUI),
		listenKeys(m.keyboard),
		listenDevices(m.devices),
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case tea.MouseMsg:
		m.handleMouse(msg)
	case loopMsg:
		m.handleLoop(Message(msg))
		return m, listenLoop(m.SinkUI)
	case keysMsg:
		return m, listenKeys(m.keyboard)
	case deviceMsg:
		ev := devices.Event(msg)
		m.notice = fmt.Sprintf("%s: %s", ev.Type, ev.Name)
		if ev.Type == devices.ControllerDisconnected {
			m.releaseAll()
		}
		return m, listenDevices(m.devices)
	}
	return m, nil
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	state := dimStyle.Render("free play")
	if m.recording {
		state = recStyle.Render("● REC")
	} else if m.playing {
		state = playStyle.Render("▶ PLAY")
	}
	b.WriteString(titleStyle.Render("keycapture") + "  " + state + "  " +
		dimStyle.Render(fmt.Sprintf("%d notes  %s  vol %d", m.notes, m.patch, m.volume)) + "\n")
	b.WriteString(dimStyle.Render(m.device) + "\n\n")
	b.WriteString(m.keyboard.Render(m.hints()) + "\n\n")
	b.WriteString(dimStyle.Render("space rec · enter play · ctrl+s save · [ ] patch · -/+ volume · z/x octave · tab release · f5 rescan · esc quit") + "\n")
	if m.err != "" {
		b.WriteString(errorStyle.Render(m.err) + "\n")
	}
	if takes := m.takes(); len(takes) > 0 {
		b.WriteString("\n" + titleStyle.Render("recent takes") + "  " + dimStyle.Render("↑/↓ select · ctrl+o load · ctrl+d forget") + "\n")
		prefix := takes.LCP()
		for i, take := range takes {
			line := strings.TrimPrefix(take.Path, prefix) + "  " + take.Time.Format("2006-01-02 15:04")
			if i == m.selected {
				b.WriteString(selStyle.Render("> "+line) + "\n")
			} else {
				b.WriteString(dimStyle.Render("  "+line) + "\n")
			}
		}
	}
	b.WriteString(noticeStyle.Render(lastLines(m.notice, maxNoticeLines)) + "\n")
	return b.String()
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// post hands a request to the core loop without blocking the UI.
func (m *Model) post(msg Message) tea.Cmd {
	return func() tea.Msg {
		m.SinkLoop <- msg
		return nil
	}
}

// Run blocks until the user quits or ctx is cancelled.
func Run(ctx context.Context, m *Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
