package music

import (
	"slices"

	"gitlab.com/gomidi/midi/v2"
)

// Annotation is a playback-only copy of a note event, routed to the visual
// decoder instead of the synth.
type Annotation struct {
	Tick uint64
	Msg  midi.Message
}

// Annotate mirrors the On and Off events of a track, in tick order.
func Annotate(t Track, channel uint8) []Annotation {
	out := make([]Annotation, 0, len(t))
	for _, ev := range t {
		if ev.Kind != On && ev.Kind != Off {
			continue
		}
		msg, err := ev.Message(channel)
		if err != nil {
			continue
		}
		out = append(out, Annotation{Tick: ev.Tick, Msg: msg})
	}
	slices.SortStableFunc(out, func(a, b Annotation) int {
		switch {
		case a.Tick < b.Tick:
			return -1
		case a.Tick > b.Tick:
			return 1
		}
		return 0
	})
	return out
}
