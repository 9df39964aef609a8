package music

import (
	"strings"
	"sync"

	charmlog "github.com/charmbracelet/log"
)

const DefaultNarrative = "No timing measures have been recorded - Record a sequence to start debugging"

// TimingLog collects the timing narrative of the current take.
type TimingLog struct {
	mu     sync.Mutex
	b      strings.Builder
	logger *charmlog.Logger
}

func NewTimingLog(logger *charmlog.Logger) *TimingLog {
	return &TimingLog{logger: logger}
}

func (t *TimingLog) AppendTimingNarrative(text string) {
	t.mu.Lock()
	t.b.WriteString(text)
	t.b.WriteString("\n\n")
	t.mu.Unlock()
	if t.logger != nil {
		t.logger.Debug(text)
	}
}

func (t *TimingLog) ClearTimingNarrative() {
	t.mu.Lock()
	t.b.Reset()
	t.mu.Unlock()
}

func (t *TimingLog) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.b.Len() == 0 {
		return DefaultNarrative
	}
	return t.b.String()
}
