package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// FrameReader reads the box's two byte frames: a status byte and a key code.
type FrameReader struct {
	// Backoff is the pause after a failed read, doubled up to a second.
	Backoff time.Duration
	// MaxErrors consecutive failures end the loop.
	MaxErrors int
	Logger    *charmlog.Logger
}

// Run hands every frame to fn until ctx is done, the port closes or reads
// keep failing. It returns nil on a clean stop.
func (r *FrameReader) Run(ctx context.Context, port io.Reader, fn func(status, code byte)) error {
	buf := make([]byte, 2)
	failures := 0
	backoff := r.Backoff
	for {
		if _, err := io.ReadFull(port, buf); err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			failures++
			if r.MaxErrors > 0 && failures >= r.MaxErrors {
				return fmt.Errorf("%d reads failed in a row: %w", failures, err)
			}
			r.Logger.Error("read", "err", err, "failures", failures)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			if backoff = 2 * backoff; backoff > time.Second {
				backoff = time.Second
			}
			continue
		}
		failures = 0
		backoff = r.Backoff
		fn(buf[0], buf[1])
	}
}
