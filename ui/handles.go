package ui

import (
	"github.com/JeanRibes/keycapture/music"
	. "github.com/JeanRibes/keycapture/shared"

	tea "github.com/charmbracelet/bubbletea"
)

// noteKeys is the usual DAW layout: the home row plays white keys, the
// row above plays the black ones.
var noteKeys = []string{"a", "w", "s", "e", "d", "f", "t", "g", "y", "h", "u", "j", "k", "o", "l", "p", ";"}

// Capturer is the part of the capture path the keyboard drives.
type Capturer interface {
	Press(p music.Pitch) error
	Release(p music.Pitch)
	Cancel()
	Held() (music.Pitch, bool)
}

// pitchOf maps a computer key to a pitch, starting at base.
func pitchOf(key string, base music.Pitch) (music.Pitch, bool) {
	for i, k := range noteKeys {
		if k == key {
			return base + music.Pitch(i), true
		}
	}
	return 0, false
}

func (m *Model) hints() map[music.Pitch]string {
	h := make(map[music.Pitch]string, len(noteKeys))
	for i, k := range noteKeys {
		h[m.base+music.Pitch(i)] = k
	}
	return h
}

// toggle presses a key on first hit and releases it on the second, since
// terminals do not report key releases.
func (m *Model) toggle(p music.Pitch) {
	if m.held[p] && !m.letGo(p) {
		delete(m.held, p)
		m.capture.Release(p)
		m.light(p, false)
		return
	}
	delete(m.held, p)
	// one timed note at a time while recording
	if m.recording {
		for q := range m.held {
			delete(m.held, q)
			m.light(q, false)
		}
	}
	if err := m.capture.Press(p); err != nil {
		m.err = err.Error()
		return
	}
	m.held[p] = true
	m.light(p, true)
}

// letGo reports a recorded key the capture released on its own, when the
// clock cutoff ended the note.
func (m *Model) letGo(p music.Pitch) bool {
	if !m.recording {
		return false
	}
	held, ok := m.capture.Held()
	return !ok || held != p
}

// rest clears a key released behind the keyboard's back.
func (m *Model) rest(p music.Pitch) {
	if !m.held[p] {
		return
	}
	delete(m.held, p)
	m.light(p, false)
}

func (m *Model) light(p music.Pitch, on bool) {
	if k := m.keyboard.Key(p); k != nil {
		k.SetActive(on)
	}
}

func (m *Model) releaseAll() {
	m.capture.Cancel()
	for p := range m.held {
		delete(m.held, p)
		m.light(p, false)
	}
	if m.mouseDown {
		m.mouseDown = false
		m.light(m.mousePitch, false)
	}
}

func (m *Model) shiftOctave(delta int) {
	next := m.base + music.Pitch(12*delta)
	last := next + music.Pitch(len(noteKeys)-1)
	if next < m.keyboard.Low() || last > m.keyboard.High() {
		return
	}
	m.releaseAll()
	m.base = next
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.releaseAll()
		m.quitting = true
		return tea.Sequence(m.post(Message{Type: Quit}), tea.Quit)
	case " ":
		m.releaseAll()
		return m.post(Message{Type: Record})
	case "enter":
		m.releaseAll()
		return m.post(Message{Type: PlayPause})
	case "ctrl+s":
		return m.post(Message{Type: Export})
	case "ctrl+l":
		return m.post(Message{Type: ClearTake})
	case "f5":
		return m.post(Message{Type: RescanMIDI})
	case "[":
		return m.post(Message{Type: PatchChange, Number: -1})
	case "]":
		return m.post(Message{Type: PatchChange, Number: 1})
	case "-":
		return m.post(Message{Type: Volume, Number: -8})
	case "+", "=":
		return m.post(Message{Type: Volume, Number: 8})
	case "z":
		m.shiftOctave(-1)
	case "x":
		m.shiftOctave(1)
	case "tab":
		m.releaseAll()
	case "up":
		m.selectTake(-1)
	case "down":
		m.selectTake(1)
	case "ctrl+o":
		if take, ok := m.selectedTake(); ok {
			m.releaseAll()
			return m.post(Message{Type: LoadTake, String: take.Path})
		}
	case "ctrl+d":
		if take, ok := m.selectedTake(); ok {
			m.prefs.DeleteTake(take.Path)
			if err := m.prefs.Save(); err != nil {
				m.logger.Warn("preferences", "err", err)
			}
			m.selectTake(0)
		}
	default:
		if p, ok := pitchOf(msg.String(), m.base); ok {
			m.toggle(p)
		}
	}
	return nil
}

// handleMouse gives real press and release on the drawn keys.
func (m *Model) handleMouse(msg tea.MouseMsg) {
	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft || msg.Y < m.keysTop || msg.Y >= m.keysTop+3 {
			return
		}
		p, ok := m.keyboard.At(msg.X)
		if !ok {
			return
		}
		if err := m.capture.Press(p); err != nil {
			m.err = err.Error()
			return
		}
		m.mouseDown, m.mousePitch = true, p
		m.light(p, true)
	case tea.MouseActionRelease:
		if !m.mouseDown {
			return
		}
		m.mouseDown = false
		m.capture.Release(m.mousePitch)
		m.light(m.mousePitch, false)
	}
}

func (m *Model) takes() RecentFiles {
	if m.prefs == nil {
		return nil
	}
	return m.prefs.Takes()
}

// selectTake moves the selection, kept inside the list.
func (m *Model) selectTake(delta int) {
	n := len(m.takes())
	m.selected += delta
	if m.selected >= n {
		m.selected = n - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func (m *Model) selectedTake() (RecentFile, bool) {
	takes := m.takes()
	if m.selected < 0 || m.selected >= len(takes) {
		return RecentFile{}, false
	}
	return takes[m.selected], true
}
