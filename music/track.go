package music

import (
	"fmt"
	"slices"
)

// Track keeps events in insertion order, which is tick order by construction.
type Track []NoteEvent

func (t Track) Clone() Track {
	return slices.Clone(t)
}

// Notes counts the On events.
func (t Track) Notes() int {
	n := 0
	for _, ev := range t {
		if ev.Kind == On {
			n++
		}
	}
	return n
}

// Empty is true when the track holds no note, an initial program change aside.
func (t Track) Empty() bool {
	return t.Notes() == 0
}

// Normalize subtracts the first event's tick from every event so the take starts at 0.
func (t Track) Normalize() Track {
	out := t.Clone()
	if len(out) == 0 {
		return out
	}
	base := out[0].Tick
	if base == 0 {
		return out
	}
	for i := range out {
		out[i].Tick -= base
	}
	return out
}

// Paired checks that every On has exactly one later Off for the same pitch.
func (t Track) Paired() error {
	open := map[Pitch][]uint64{}
	for _, ev := range t {
		switch ev.Kind {
		case On:
			open[ev.Pitch] = append(open[ev.Pitch], ev.Tick)
		case Off:
			ons := open[ev.Pitch]
			if len(ons) == 0 {
				return fmt.Errorf("off without on: %s", ev)
			}
			if ev.Tick < ons[0] {
				return fmt.Errorf("off before its on (tick %d): %s", ons[0], ev)
			}
			open[ev.Pitch] = ons[1:]
		}
	}
	for p, ons := range open {
		if len(ons) > 0 {
			return fmt.Errorf("%s left on at tick %d", p, ons[0])
		}
	}
	return nil
}

// LastTick is the tick of the last event, 0 for an empty track.
func (t Track) LastTick() uint64 {
	if len(t) == 0 {
		return 0
	}
	return t[len(t)-1].Tick
}

// sounding reports whether p has an On still waiting for its Off.
func (t Track) sounding(p Pitch) bool {
	n := 0
	for _, ev := range t {
		if ev.Pitch != p {
			continue
		}
		switch ev.Kind {
		case On:
			n++
		case Off:
			n--
		}
	}
	return n > 0
}
