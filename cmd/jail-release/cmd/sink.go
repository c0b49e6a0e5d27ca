package cmd

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/oshokin/jail-release/internal/domain/event"
)

// eventSink renders lifecycle events and download progress for a terminal.
type eventSink struct {
	events   io.Writer
	progress io.Writer
	quiet    bool
}

func newEventSink(events, progress io.Writer, quiet bool) *eventSink {
	return &eventSink{events: events, progress: progress, quiet: quiet}
}

// print writes "Stage.kind [message]".
func (s *eventSink) print(e event.Event) {
	switch {
	case e.Err != nil:
		_, _ = fmt.Fprintf(s.events, "%s %v\n", e.Name(), e.Err)
	case e.Message != "":
		_, _ = fmt.Fprintf(s.events, "%s %s\n", e.Name(), e.Message)
	default:
		_, _ = fmt.Fprintln(s.events, e.Name())
	}
}

// bar returns a progress bar for one download; size -1 renders a spinner.
func (s *eventSink) bar(fileName string, size int64) io.Writer {
	if s.quiet {
		return nil
	}

	return progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(s.progress),
		progressbar.OptionSetDescription(fileName),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(progressBarWidth),
		progressbar.OptionThrottle(progressBarThrottle),
		progressbar.OptionClearOnFinish(),
	)
}
