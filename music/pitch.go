package music

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrBadPitch = errors.New("invalid pitch")

// Pitch is a MIDI note number, 60 being C4.
type Pitch int

var sharpNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var flatNames = [12]string{"C", "Db", "D", "Eb", "E", "F", "Gb", "G", "Ab", "A", "Bb", "B"}

// NewPitch derives the pitch of a note name ("C", "F#", "Bb") in an octave, C4 being 60.
func NewPitch(name string, octave int) (Pitch, error) {
	for i := range sharpNames {
		if strings.EqualFold(name, sharpNames[i]) || strings.EqualFold(name, flatNames[i]) {
			p := Pitch((octave+1)*12 + i)
			if !p.Valid() {
				return 0, fmt.Errorf("%w: %s%d out of range", ErrBadPitch, name, octave)
			}
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown note name %q", ErrBadPitch, name)
}

// ParsePitch reads "C4", "F#3", "Bb-1".
func ParsePitch(s string) (Pitch, error) {
	i := 1
	if len(s) > 1 && (s[1] == '#' || s[1] == 'b') {
		i = 2
	}
	if len(s) <= i {
		return 0, fmt.Errorf("%w: %q", ErrBadPitch, s)
	}
	octave, err := strconv.Atoi(s[i:])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadPitch, s)
	}
	return NewPitch(s[:i], octave)
}

func (p Pitch) Valid() bool {
	return p >= 0 && p <= 127
}

func (p Pitch) Name() string {
	if !p.Valid() {
		return "?"
	}
	return sharpNames[int(p)%12]
}

func (p Pitch) Octave() int {
	return int(p)/12 - 1
}

// Sharp reports whether the pitch sits on a black key.
func (p Pitch) Sharp() bool {
	return strings.HasSuffix(p.Name(), "#")
}

func (p Pitch) String() string {
	if !p.Valid() {
		return fmt.Sprintf("pitch(%d)", int(p))
	}
	return p.Name() + strconv.Itoa(p.Octave())
}
