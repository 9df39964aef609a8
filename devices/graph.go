// Package devices wires the MIDI endpoints: a synthesizer for sound and an
// optional hardware controller whose notes fan out to the synth, the visual
// decoder and the recorder.
package devices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

var (
	ErrNoSynth      = errors.New("no synthesizer available")
	ErrTimeout      = errors.New("MIDI device call timed out")
	ErrPortNotFound = errors.New("MIDI port not found")
)

// Synth is where audible messages end up.
type Synth interface {
	Send(msg midi.Message) error
	Close() error
	String() string
}

// Consumers are the non-audible edges of the controller.
type Consumers struct {
	Tap      Receiver
	Recorder Receiver
}

type EventType int

const (
	ControllerConnected EventType = iota
	ControllerDisconnected
	SynthConnected
)

func (t EventType) String() string {
	switch t {
	case ControllerConnected:
		return "controller connected"
	case ControllerDisconnected:
		return "controller disconnected"
	case SynthConnected:
		return "synth connected"
	}
	return "unknown"
}

type Event struct {
	Type EventType
	Name string
}

// Report tells what Connect managed to wire. A missing controller is not an error.
type Report struct {
	Synth         string
	SynthErr      error
	Controller    string
	ControllerErr error
}

// Silent is true when notes will be recorded but not heard.
func (r Report) Silent() bool {
	return r.SynthErr != nil
}

func (r Report) Err() error {
	return multierr.Combine(r.SynthErr, r.ControllerErr)
}

type Option func(*Graph)

// WithInput selects the controller whose name contains s.
func WithInput(s string) Option {
	return func(g *Graph) { g.input = s }
}

// WithOutput selects the synth port whose name contains s.
func WithOutput(s string) Option {
	return func(g *Graph) { g.output = s }
}

// WithIgnore skips inputs whose name contains any of names, such as our own virtual ports.
func WithIgnore(names ...string) Option {
	return func(g *Graph) { g.ignore = append(g.ignore, names...) }
}

func WithOpenTimeout(d time.Duration) Option {
	return func(g *Graph) {
		if d > 0 {
			g.openTimeout = d
		}
	}
}

func WithRescanInterval(d time.Duration) Option {
	return func(g *Graph) {
		if d > 0 {
			g.rescanInterval = d
		}
	}
}

// WithFallback provides the synth used when no output port is configured or found.
func WithFallback(open func() (Synth, error)) Option {
	return func(g *Graph) { g.fallback = open }
}

func WithQueueSize(n int) Option {
	return func(g *Graph) {
		if n > 0 {
			g.queueSize = n
		}
	}
}

// Graph owns the device connections. Dispatch reads the edges under mu;
// rewiring swaps them under the write lock and only stops the old
// controller once the lock is released.
type Graph struct {
	drv            drivers.Driver
	logger         *charmlog.Logger
	input          string
	output         string
	ignore         []string
	openTimeout    time.Duration
	rescanInterval time.Duration
	queueSize      int
	fallback       func() (Synth, error)

	// wireMu serializes Connect, Rescan and Close
	wireMu sync.Mutex

	mu         sync.RWMutex
	controller drivers.In
	stopListen func()
	edges      []*transmitter
	consumers  Consumers

	synthMu sync.RWMutex
	synth   Synth

	events  chan Event
	dropped *atomic.Int64
}

func New(drv drivers.Driver, logger *charmlog.Logger, opts ...Option) *Graph {
	g := &Graph{
		drv:            drv,
		logger:         logger,
		ignore:         []string{"through"},
		openTimeout:    3 * time.Second,
		rescanInterval: 2 * time.Second,
		queueSize:      64,
		events:         make(chan Event, 16),
		dropped:        atomic.NewInt64(0),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Connect opens the synth and, when one is present, the controller.
func (g *Graph) Connect(ctx context.Context, consumers Consumers) Report {
	var rep Report

	synth, err := g.openSynth(ctx)
	if err != nil {
		g.logger.Warn("no synth, notes will be silent", "err", err)
		rep.SynthErr = err
	} else {
		g.setSynth(synth)
		rep.Synth = synth.String()
		g.logger.Info("connected", "synth", rep.Synth)
	}

	g.wireMu.Lock()
	defer g.wireMu.Unlock()
	g.mu.Lock()
	g.consumers = consumers
	g.mu.Unlock()
	ins, err := withTimeout(ctx, g.openTimeout, g.drv.Ins, nil)
	if err != nil {
		rep.ControllerErr = fmt.Errorf("list inputs: %w", err)
		return rep
	}
	in, err := g.pick(ins)
	if err != nil {
		rep.ControllerErr = err
		return rep
	}
	if in == nil {
		g.logger.Info("no controller, on-screen keyboard only")
		return rep
	}
	if err := g.wire(ctx, in); err != nil {
		rep.ControllerErr = err
		return rep
	}
	rep.Controller = in.String()
	return rep
}

func (g *Graph) openSynth(ctx context.Context) (Synth, error) {
	var portErr error
	if g.output != "" {
		s, err := g.openPort(ctx)
		if err == nil {
			return s, nil
		}
		portErr = err
		g.logger.Warn("synth port", "want", g.output, "err", err)
	}
	if g.fallback == nil {
		return nil, multierr.Append(ErrNoSynth, portErr)
	}
	s, err := g.fallback()
	if err != nil {
		return nil, multierr.Combine(ErrNoSynth, portErr, err)
	}
	return s, nil
}

func (g *Graph) openPort(ctx context.Context) (Synth, error) {
	outs, err := withTimeout(ctx, g.openTimeout, g.drv.Outs, nil)
	if err != nil {
		return nil, err
	}
	for _, out := range outs {
		if !contains(out.String(), g.output) {
			continue
		}
		send, err := withTimeout(ctx, g.openTimeout, func() (func(midi.Message) error, error) {
			return midi.SendTo(out)
		}, func(func(midi.Message) error) {
			out.Close()
		})
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", out.String(), err)
		}
		return &portSynth{out: out, send: send}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrPortNotFound, g.output)
}

// pick chooses the configured controller, or the first input that is not ignored.
func (g *Graph) pick(ins []drivers.In) (drivers.In, error) {
	for _, in := range ins {
		if g.input != "" {
			if contains(in.String(), g.input) {
				return in, nil
			}
			continue
		}
		if !g.ignored(in.String()) {
			return in, nil
		}
	}
	if g.input != "" {
		return nil, fmt.Errorf("%w: %q", ErrPortNotFound, g.input)
	}
	return nil, nil
}

func (g *Graph) ignored(name string) bool {
	for _, s := range g.ignore {
		if contains(name, s) {
			return true
		}
	}
	return false
}

// wire listens to the controller once and fans its messages out. Callers hold g.wireMu.
func (g *Graph) wire(ctx context.Context, in drivers.In) error {
	g.mu.Lock()
	edges := []*transmitter{newTransmitter("synth", g.queueSize, g.sendSynth, g.logger)}
	if g.consumers.Tap != nil {
		edges = append(edges, newTransmitter("tap", g.queueSize, g.consumers.Tap, g.logger))
	}
	if g.consumers.Recorder != nil {
		edges = append(edges, newTransmitter("recorder", g.queueSize, g.consumers.Recorder, g.logger))
	}
	g.edges = edges
	g.mu.Unlock()

	stop, err := withTimeout(ctx, g.openTimeout, func() (func(), error) {
		return midi.ListenTo(in, g.dispatch)
	}, func(stop func()) {
		stop()
		in.Close()
	})
	if err != nil {
		g.mu.Lock()
		g.edges = nil
		g.mu.Unlock()
		for _, e := range edges {
			e.close()
		}
		return fmt.Errorf("listen %s: %w", in.String(), err)
	}
	g.mu.Lock()
	g.controller = in
	g.stopListen = stop
	g.mu.Unlock()
	g.logger.Info("connected", "controller", in.String())
	return nil
}

// unwire detaches the controller under g.mu, then stops it and drains the
// edges without the lock: a driver may wait for a running callback before
// it stops. Callers hold g.wireMu.
func (g *Graph) unwire() error {
	g.mu.Lock()
	in, stop, edges := g.controller, g.stopListen, g.edges
	g.controller, g.stopListen, g.edges = nil, nil, nil
	g.mu.Unlock()
	if in == nil {
		return nil
	}
	if stop != nil {
		stop()
	}
	for _, e := range edges {
		e.close()
	}
	return in.Close()
}

func (g *Graph) dispatch(msg midi.Message, _ int32) {
	if len(msg) == 1 && msg[0] == 0xFE {
		return
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.edges) == 0 {
		// the controller is being detached
		if n := g.dropped.Inc(); n == 1 || n%100 == 0 {
			g.logger.Warn("controller detached, dropping", "dropped", n)
		}
		return
	}
	for _, e := range g.edges {
		e.offer(msg)
	}
}

func (g *Graph) setSynth(s Synth) {
	g.synthMu.Lock()
	g.synth = s
	g.synthMu.Unlock()
}

func (g *Graph) sendSynth(msg midi.Message) error {
	g.synthMu.RLock()
	defer g.synthMu.RUnlock()
	if g.synth == nil {
		return nil
	}
	return g.synth.Send(msg)
}

// Send plays a message on the synth.
func (g *Graph) Send(msg midi.Message) error {
	g.synthMu.RLock()
	defer g.synthMu.RUnlock()
	if g.synth == nil {
		return ErrNoSynth
	}
	return g.synth.Send(msg)
}

// Rescan follows controllers coming and going, and retries a missing synth.
func (g *Graph) Rescan(ctx context.Context) error {
	g.wireMu.Lock()
	defer g.wireMu.Unlock()
	var errs error
	if !g.HasSynth() {
		if s, err := g.openSynth(ctx); err == nil {
			g.setSynth(s)
			g.emit(Event{Type: SynthConnected, Name: s.String()})
		}
	}

	ins, err := withTimeout(ctx, g.openTimeout, g.drv.Ins, nil)
	if err != nil {
		return multierr.Append(errs, fmt.Errorf("list inputs: %w", err))
	}

	g.mu.RLock()
	name := ""
	if g.controller != nil {
		name = g.controller.String()
	}
	g.mu.RUnlock()
	if name != "" {
		for _, in := range ins {
			if in.String() == name {
				return errs
			}
		}
		errs = multierr.Append(errs, g.unwire())
		g.logger.Info("disconnected", "controller", name)
		g.emit(Event{Type: ControllerDisconnected, Name: name})
	}
	in, err := g.pick(ins)
	if err != nil || in == nil {
		// a configured controller that is not plugged in yet is not an error here
		return errs
	}
	if err := g.wire(ctx, in); err != nil {
		return multierr.Append(errs, err)
	}
	g.emit(Event{Type: ControllerConnected, Name: in.String()})
	return errs
}

// Watch rescans periodically until ctx is done.
func (g *Graph) Watch(ctx context.Context) {
	ticker := time.NewTicker(g.rescanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.Rescan(ctx); err != nil {
				g.logger.Warn("rescan", "err", err)
			}
		}
	}
}

func (g *Graph) emit(ev Event) {
	select {
	case g.events <- ev:
	default:
		g.logger.Warn("device event dropped", "event", ev.Type, "name", ev.Name)
	}
}

// Events reports controllers connecting and disconnecting.
func (g *Graph) Events() <-chan Event {
	return g.events
}

func (g *Graph) HasController() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.controller != nil
}

func (g *Graph) HasSynth() bool {
	g.synthMu.RLock()
	defer g.synthMu.RUnlock()
	return g.synth != nil
}

// Close releases the controller and the synth.
func (g *Graph) Close() error {
	g.wireMu.Lock()
	err := g.unwire()
	g.wireMu.Unlock()

	g.synthMu.Lock()
	defer g.synthMu.Unlock()
	if g.synth != nil {
		err = multierr.Append(err, g.synth.Close())
		g.synth = nil
	}
	return err
}

type portSynth struct {
	out  drivers.Out
	send func(midi.Message) error
}

func (p *portSynth) Send(msg midi.Message) error { return p.send(msg) }
func (p *portSynth) Close() error                { return p.out.Close() }
func (p *portSynth) String() string              { return p.out.String() }

// withTimeout bounds driver calls, some backends hang instead of failing.
// A result that arrives after the deadline is handed to discard.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func() (T, error), discard func(T)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	var zero T
	t := time.NewTimer(d)
	defer t.Stop()
	var err error
	select {
	case r := <-ch:
		return r.v, r.err
	case <-t.C:
		err = ErrTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}
	if discard != nil {
		go func() {
			if r := <-ch; r.err == nil {
				discard(r.v)
			}
		}()
	}
	return zero, err
}

func contains(name, sub string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(sub))
}
