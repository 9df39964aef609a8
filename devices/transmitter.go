package devices

import (
	charmlog "github.com/charmbracelet/log"
	"go.uber.org/atomic"
	"gitlab.com/gomidi/midi/v2"
)

// Receiver consumes messages coming out of a controller.
type Receiver func(msg midi.Message) error

// transmitter is one outgoing edge of the controller: a queue drained by its
// own goroutine so a slow consumer never holds back the others.
type transmitter struct {
	name    string
	queue   chan midi.Message
	recv    Receiver
	dropped *atomic.Int64
	done    chan struct{}
	logger  *charmlog.Logger
}

func newTransmitter(name string, size int, recv Receiver, logger *charmlog.Logger) *transmitter {
	t := &transmitter{
		name:    name,
		queue:   make(chan midi.Message, size),
		recv:    recv,
		dropped: atomic.NewInt64(0),
		done:    make(chan struct{}),
		logger:  logger.WithPrefix(name),
	}
	go t.run()
	return t
}

func (t *transmitter) run() {
	defer close(t.done)
	for msg := range t.queue {
		if err := t.recv(msg); err != nil {
			t.logger.Warn("receiver", "msg", msg, "err", err)
		}
	}
}

// offer never blocks; a full queue drops the message.
func (t *transmitter) offer(msg midi.Message) {
	select {
	case t.queue <- msg:
	default:
		if n := t.dropped.Inc(); n == 1 || n%100 == 0 {
			t.logger.Warn("queue full, dropping", "dropped", n)
		}
	}
}

func (t *transmitter) close() {
	close(t.queue)
	<-t.done
}
