package ui

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/JeanRibes/keycapture/config"
	"github.com/JeanRibes/keycapture/music"
	. "github.com/JeanRibes/keycapture/shared"

	tea "github.com/charmbracelet/bubbletea"
	charmlog "github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

type fakeCapture struct {
	pressed  []music.Pitch
	released []music.Pitch
	cancels  int
	held     *music.Pitch
}

func (f *fakeCapture) Press(p music.Pitch) error {
	f.pressed = append(f.pressed, p)
	f.held = &p
	return nil
}

func (f *fakeCapture) Release(p music.Pitch) {
	f.released = append(f.released, p)
	if f.held != nil && *f.held == p {
		f.held = nil
	}
}

func (f *fakeCapture) Cancel() {
	f.cancels++
	f.held = nil
}

func (f *fakeCapture) Held() (music.Pitch, bool) {
	if f.held == nil {
		return 0, false
	}
	return *f.held, true
}

func newTestModel(t *testing.T) (*Model, *fakeCapture) {
	t.Helper()
	capture := &fakeCapture{}
	kb := NewKeyboard(48, 95)
	m := NewModel(kb, capture, make(chan Message, 8), make(chan Message, 8), nil, nil, charmlog.New(io.Discard))
	return m, capture
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestKeyboardElements(t *testing.T) {
	kb := NewKeyboard(60, 71)
	require.Nil(t, kb.FindElementByPitch(59))
	require.Nil(t, kb.FindElementByPitch(72))

	el := kb.FindElementByPitch(64)
	require.NotNil(t, el)
	el.SetActive(true)
	require.True(t, kb.Key(64).Active())
	select {
	case <-kb.Changed():
	default:
		t.Fatal("no change notification")
	}

	// no notification when nothing changes
	el.SetActive(true)
	select {
	case <-kb.Changed():
		t.Fatal("spurious change notification")
	default:
	}

	p, ok := kb.At(keyWidth*2 + 1)
	require.True(t, ok)
	require.Equal(t, music.Pitch(62), p)
	_, ok = kb.At(keyWidth * 12)
	require.False(t, ok)
	require.Contains(t, kb.Render(nil), "C4")
}

func TestKeyboardWorksWithDecoder(t *testing.T) {
	kb := NewKeyboard(60, 71)
	d := music.NewDecoder(kb, charmlog.New(io.Discard))
	d.Handle([]byte{0x90, 62, 100})
	require.True(t, kb.Key(62).Active())
	d.Handle([]byte{0x80, 62, 0})
	require.False(t, kb.Key(62).Active())
}

func TestToggleKeys(t *testing.T) {
	m, capture := newTestModel(t)
	require.Equal(t, music.Pitch(60), m.base)

	m.Update(key("a"))
	require.Equal(t, []music.Pitch{60}, capture.pressed)
	require.True(t, m.keyboard.Key(60).Active())

	m.Update(key("a"))
	require.Equal(t, []music.Pitch{60}, capture.released)
	require.False(t, m.keyboard.Key(60).Active())

	m.Update(key("x"))
	require.Equal(t, music.Pitch(72), m.base)
	m.Update(key("w"))
	require.Equal(t, music.Pitch(73), capture.pressed[1])
	// no room for another octave up
	m.Update(key("x"))
	require.Equal(t, music.Pitch(72), m.base)
}

func TestRecordingHoldsOneKey(t *testing.T) {
	m, capture := newTestModel(t)
	m.handleLoop(Message{Type: Record, Boolean: true})

	m.Update(key("a"))
	m.Update(key("d"))
	require.Equal(t, []music.Pitch{60, 64}, capture.pressed)
	require.False(t, m.keyboard.Key(60).Active())
	require.True(t, m.keyboard.Key(64).Active())

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, 1, capture.cancels)
	require.False(t, m.keyboard.Key(64).Active())
}

func TestMousePressRelease(t *testing.T) {
	m, capture := newTestModel(t)

	m.Update(tea.MouseMsg{X: keyWidth*4 + 1, Y: keysTop, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	require.Equal(t, []music.Pitch{52}, capture.pressed)
	require.True(t, m.keyboard.Key(52).Active())

	m.Update(tea.MouseMsg{X: 0, Y: 0, Action: tea.MouseActionRelease})
	require.Equal(t, []music.Pitch{52}, capture.released)
	require.False(t, m.keyboard.Key(52).Active())

	// outside the keyboard rows
	m.Update(tea.MouseMsg{X: 1, Y: 0, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	require.Len(t, capture.pressed, 1)
}

func TestControlsPostToLoop(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	require.NotNil(t, cmd)
	cmd()
	require.Equal(t, Message{Type: Record}, <-m.SinkLoop)

	_, cmd = m.Update(key("]"))
	cmd()
	require.Equal(t, Message{Type: PatchChange, Number: 1}, <-m.SinkLoop)
}

func TestLoopMessages(t *testing.T) {
	m, _ := newTestModel(t)
	m.handleLoop(Message{Type: PatchChange, String: ProgramName(24)})
	m.handleLoop(Message{Type: TrackLengthNotify, Number: 7})
	m.handleLoop(Message{Type: Error, String: "port vanished"})
	view := m.View()
	require.Contains(t, view, ProgramName(24))
	require.Contains(t, view, "7 notes")
	require.Contains(t, view, "port vanished")

	m.handleLoop(Message{Type: Record, Boolean: true})
	require.NotContains(t, m.View(), "port vanished")
}

func TestPreferencesRecentTakes(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	take := filepath.Join(dir, "take.mid")
	require.NoError(t, os.WriteFile(take, []byte("MThd"), 0o644))

	cfg := config.Default()
	prefs := NewPreferences(cfg, cfgPath)
	prefs.AddTake(filepath.Join(dir, "gone.mid"))
	prefs.AddTake(take)
	require.NoError(t, prefs.Save())

	takes := prefs.Takes()
	require.Len(t, takes, 1)
	require.Equal(t, take, takes[0].Path)

	prefs.DeleteTake(take)
	require.Equal(t, []string{filepath.Join(dir, "gone.mid")}, cfg.RecentTakes)

	loaded, err := config.Load(cfgPath)
	require.NoError(t, err)
	require.Len(t, loaded.RecentTakes, 2)
	require.Equal(t, "/a/", RecentFiles{{Path: "/a/b.mid"}, {Path: "/a/c.mid"}}.LCP())
}

func TestCutoffReleasesKey(t *testing.T) {
	m, capture := newTestModel(t)
	m.handleLoop(Message{Type: Record, Boolean: true})

	m.Update(key("a"))
	require.True(t, m.keyboard.Key(60).Active())

	// the clock ran out and the capture let the note go
	capture.held = nil
	m.handleLoop(Message{Type: NoteRest, Number: 60})
	require.False(t, m.keyboard.Key(60).Active())
	require.Empty(t, m.held)

	// the next hit is a fresh press
	m.Update(key("a"))
	require.Equal(t, []music.Pitch{60, 60}, capture.pressed)
	require.Empty(t, capture.released)
	require.True(t, m.keyboard.Key(60).Active())
}

func TestStaleHeldKeyPressesAgain(t *testing.T) {
	m, capture := newTestModel(t)
	m.handleLoop(Message{Type: Record, Boolean: true})

	m.Update(key("a"))
	// released behind the model's back, with no notification
	capture.held = nil

	m.Update(key("a"))
	require.Equal(t, []music.Pitch{60, 60}, capture.pressed)
	require.Empty(t, capture.released)
	require.True(t, m.held[60])
}

func TestRecentTakes(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	for _, name := range []string{"one.mid", "two.mid"} {
		take := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(take, []byte("MThd"), 0o644))
		cfg.AddRecent(take)
	}
	prefs := NewPreferences(cfg, filepath.Join(dir, "config.yaml"))
	m := NewModel(NewKeyboard(48, 95), &fakeCapture{}, make(chan Message, 8), make(chan Message, 8), nil, prefs, charmlog.New(io.Discard))

	view := m.View()
	require.Contains(t, view, "recent takes")
	require.Contains(t, view, "> two.mid")
	require.Contains(t, view, "one.mid")
	require.NotContains(t, view, dir)

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	require.Contains(t, m.View(), "> one.mid")
	// the selection stays on the list
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	require.Equal(t, 1, m.selected)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlO})
	require.NotNil(t, cmd)
	cmd()
	require.Equal(t, Message{Type: LoadTake, String: filepath.Join(dir, "one.mid")}, <-m.SinkLoop)
	m.handleLoop(Message{Type: LoadTake, String: filepath.Join(dir, "one.mid")})
	require.Contains(t, m.View(), "loaded ")

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlD})
	require.Equal(t, []string{filepath.Join(dir, "two.mid")}, cfg.RecentTakes)
	require.Equal(t, 0, m.selected)
	loaded, err := config.Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	require.Equal(t, cfg.RecentTakes, loaded.RecentTakes)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlD})
	require.NotContains(t, m.View(), "recent takes")
	// nothing left to load
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlO})
	require.Nil(t, cmd)
}

func TestLCPStopsAtDirectory(t *testing.T) {
	require.Equal(t, "/takes/", RecentFiles{{Path: "/takes/take-1.mid"}, {Path: "/takes/take-2.mid"}}.LCP())
	require.Equal(t, "", RecentFiles{{Path: "/takes/a.mid"}}.LCP())
}
