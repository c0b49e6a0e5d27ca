package event

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestTracker verifies the event names and payloads produced per stage.
func TestTracker(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(Download, "13.2-RELEASE")

	boom := errors.New("boom")
	events := []Event{
		tracker.Begin(),
		tracker.Skip("already downloaded"),
		tracker.End(),
		tracker.Fail(boom),
	}

	require.Equal(t,
		[]string{"Download.begin", "Download.skip", "Download.end", "Download.fail"},
		Names(events),
	)
	require.Equal(t, "13.2-RELEASE Download.skip: already downloaded", events[1].String())
	require.ErrorIs(t, events[3].Err, boom)
	require.Equal(t, "13.2-RELEASE Download.begin", events[0].String())
}
