package shared

import "fmt"

type Event int

const (
	Quit Event = iota
	Record
	PlayPause
	Export
	Error
	Info
	RescanMIDI
	DeviceChange
	PatchChange
	Volume
	LoadTake
	NoteRest
	TrackLengthNotify
	ClearTake
)

type Message struct {
	Type    Event
	Number  int
	Boolean bool
	String  string
	Number2 int
}

const DefaultResolution = 480

const DefaultBPM = float64(120)

// general MIDI program families, one name per block of 8 programs
var familyNames = [...]string{
	"piano", "chromatic percussion", "organ", "guitar",
	"bass", "strings", "ensemble", "brass",
	"reed", "pipe", "synth lead", "synth pad",
	"synth effects", "ethnic", "percussive", "sound effects",
}

func ProgramName(program int) string {
	if program < 0 || program > 127 {
		return fmt.Sprintf("program %d", program)
	}
	return fmt.Sprintf("%s %d", familyNames[program/8], program%8+1)
}
