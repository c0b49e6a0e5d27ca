// Package event describes the lifecycle events emitted by release pipelines.
package event

import "fmt"

// Stage names a pipeline stage.
type Stage string

// Release pipeline stages in execution order.
const (
	PrepareStorage Stage = "PrepareStorage"
	Download       Stage = "Download"
	Extract        Stage = "Extract"
	Configure      Stage = "Configure"
	FetchUpdates   Stage = "FetchUpdates"
	ApplyUpdates   Stage = "ApplyUpdates"
	CopyBase       Stage = "CopyBase"
)

// Kind is the emission type of an event.
type Kind int

// Event kinds. Every Begin is followed by exactly one End, Skip or Fail of the same stage.
const (
	Begin Kind = iota
	End
	Skip
	Fail
)

func (k Kind) String() string {
	switch k {
	case Begin:
		return "begin"
	case End:
		return "end"
	case Skip:
		return "skip"
	case Fail:
		return "fail"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is a single lifecycle emission.
type Event struct {
	// Stage is the pipeline stage the event belongs to.
	Stage Stage
	// Kind tells whether the stage began, ended, was skipped or failed.
	Kind Kind
	// Release is the name of the release the pipeline runs for.
	Release string
	// Message explains a skip.
	Message string
	// Err is the failure cause of a Fail event.
	Err error
}

// Name returns "Stage.kind", e.g. "Download.skip".
func (e Event) Name() string {
	return string(e.Stage) + "." + e.Kind.String()
}

func (e Event) String() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Release, e.Name(), e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s %s: %s", e.Release, e.Name(), e.Message)
	default:
		return e.Release + " " + e.Name()
	}
}

// Tracker produces the events of one stage for one release.
type Tracker struct {
	stage   Stage
	release string
}

// NewTracker returns a Tracker for the stage.
func NewTracker(stage Stage, release string) Tracker {
	return Tracker{stage: stage, release: release}
}

// Begin marks the start of the stage.
func (t Tracker) Begin() Event {
	return Event{Stage: t.stage, Kind: Begin, Release: t.release}
}

// End marks the successful completion of the stage.
func (t Tracker) End() Event {
	return Event{Stage: t.stage, Kind: End, Release: t.release}
}

// Skip marks the stage as not applicable.
func (t Tracker) Skip(message string) Event {
	return Event{Stage: t.stage, Kind: Skip, Release: t.release, Message: message}
}

// Fail marks the stage as failed with err.
func (t Tracker) Fail(err error) Event {
	return Event{Stage: t.stage, Kind: Fail, Release: t.release, Err: err}
}

// Names maps events to their "Stage.kind" names.
func Names(events []Event) []string {
	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, e.Name())
	}

	return names
}
