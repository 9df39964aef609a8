package music

import (
	"context"
	"time"

	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
)

type step struct {
	tick       uint64
	msg        midi.Message
	annotation bool
}

type PlayerOption func(*Player)

// WithSleep replaces the wait between events, mostly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) PlayerOption {
	return func(p *Player) {
		p.sleep = sleep
	}
}

func WithPlayerChannel(channel uint8) PlayerOption {
	return func(p *Player) {
		p.channel = channel
	}
}

// Player sends a take to the synth and its annotations to the decoder, so
// the on-screen keys follow what is heard.
type Player struct {
	out     Sender
	decoder *Decoder
	channel uint8
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewPlayer(out Sender, decoder *Decoder, opts ...PlayerOption) *Player {
	p := &Player{out: out, decoder: decoder, sleep: sleepCtx}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Player) schedule(seq *Sequence) []step {
	steps := make([]step, 0, len(seq.Track)*2)
	annotations := Annotate(seq.Track, p.channel)
	j := 0
	for _, ev := range seq.Track {
		msg, err := ev.Message(p.channel)
		if err != nil {
			continue
		}
		for j < len(annotations) && annotations[j].Tick < ev.Tick {
			steps = append(steps, step{tick: annotations[j].Tick, msg: annotations[j].Msg, annotation: true})
			j++
		}
		steps = append(steps, step{tick: ev.Tick, msg: msg})
	}
	for ; j < len(annotations); j++ {
		steps = append(steps, step{tick: annotations[j].Tick, msg: annotations[j].Msg, annotation: true})
	}
	return steps
}

// Play blocks until the take is over or ctx is cancelled. Sounding notes
// are released and on-screen marks cleared either way.
func (p *Player) Play(ctx context.Context, seq *Sequence) error {
	if seq == nil || seq.Track.Empty() {
		return ErrEmptyTrack
	}
	logger := charmlog.FromContext(ctx)
	sounding := map[Pitch]bool{}
	defer func() {
		for pitch := range sounding {
			if err := p.out.Send(midi.NoteOff(p.channel, uint8(pitch))); err != nil {
				logger.Error("release", "pitch", pitch, "err", err)
			}
		}
		if p.decoder != nil {
			p.decoder.ReleaseAll()
		}
	}()

	logger.Info("play", "events", len(seq.Track), "length", seq.Length())
	prev := seq.Track[0].Tick
	for _, st := range p.schedule(seq) {
		if st.tick > prev {
			if err := p.sleep(ctx, seq.Duration(st.tick-prev)); err != nil {
				logger.Debug("play: cancelled")
				return err
			}
			prev = st.tick
		}
		if st.annotation {
			if p.decoder != nil {
				p.decoder.Handle(st.msg)
			}
			continue
		}
		if n, ok := Decode(st.msg); ok {
			if n.On {
				sounding[n.Pitch] = true
			} else {
				delete(sounding, n.Pitch)
			}
		}
		if err := p.out.Send(st.msg); err != nil {
			logger.Error("send", "msg", st.msg, "err", err)
		}
	}
	return nil
}
